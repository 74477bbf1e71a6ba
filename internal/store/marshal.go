package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/tasktree/internal/ir"
)

// marshalDetails converts event details to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON so identical events store identical bytes.
func marshalDetails(details map[string]string) (string, error) {
	obj := make(map[string]any, len(details))
	for k, v := range details {
		obj[k] = v
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal details: %w", err)
	}
	return string(data), nil
}

// unmarshalDetails parses stored details JSON.
func unmarshalDetails(data string) (map[string]string, error) {
	if data == "" || data == "{}" {
		return map[string]string{}, nil
	}
	var details map[string]string
	if err := json.Unmarshal([]byte(data), &details); err != nil {
		return nil, fmt.Errorf("unmarshal details: %w", err)
	}
	return details, nil
}

// nullable converts an optional reference to a bind parameter: NULL for nil.
func nullable(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// refFromNull converts a scanned nullable column back to an optional reference.
func refFromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
