package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Domain prefixes for fingerprints.
// Version suffix enables future algorithm migration.
const (
	DomainScope = "tasktree/scope/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ScopeFingerprint computes the fingerprint of a sibling group.
//
// The fingerprint covers each member's id, sequence and version, so any
// concurrent insert, delete, move, or resequence within the group changes it.
// Tasks listed in exclude (typically the task being moved) are left out, as
// are tasks that do not belong to scope. Input order does not matter.
func ScopeFingerprint(scope Scope, siblings []Task, exclude ...string) (string, error) {
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	members := make([]Task, 0, len(siblings))
	for _, t := range siblings {
		if skip[t.ID] || !scope.Contains(t) {
			continue
		}
		members = append(members, t)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })

	list := make([]any, len(members))
	for i, t := range members {
		list[i] = map[string]any{
			"id":       t.ID,
			"sequence": t.Sequence,
			"version":  t.Version,
		}
	}

	obj := map[string]any{
		"transition_id": scope.TransitionID,
		"members":       list,
	}
	if scope.MilestoneID != nil {
		obj["milestone_id"] = *scope.MilestoneID
	}
	if scope.ParentTaskID != nil {
		obj["parent_task_id"] = *scope.ParentTaskID
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ScopeFingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainScope, canonical), nil
}

// GuardFor builds a ScopeGuard from the siblings read for scope.
func GuardFor(scope Scope, siblings []Task, exclude ...string) (ScopeGuard, error) {
	fp, err := ScopeFingerprint(scope, siblings, exclude...)
	if err != nil {
		return ScopeGuard{}, err
	}
	return ScopeGuard{Scope: scope, Fingerprint: fp, Exclude: exclude}, nil
}
