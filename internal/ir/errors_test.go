package ir

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
		is   func(error) bool
		sent *Error
	}{
		{"validation", NewValidationError("bad %s", "input"), KindValidation, IsValidation, ErrValidation},
		{"not found", NewNotFoundError("task", "A"), KindNotFound, IsNotFound, ErrNotFound},
		{"scope", NewScopeError("A", "tr-1", "X", "tr-2"), KindScope, IsScope, ErrScope},
		{"cycle", NewCycleError("A", "C"), KindCycle, IsCycle, ErrCycle},
		{"conflict", NewConflictError("A", "stale"), KindConflict, IsConflict, ErrConflict},
		{"integrity", NewIntegrityError("A", "loop at %s", "B"), KindIntegrity, IsIntegrity, ErrIntegrity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.Equal(t, tt.kind, KindOf(wrapped))
			assert.True(t, tt.is(wrapped))
			assert.ErrorIs(t, wrapped, tt.sent)
		})
	}
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.False(t, IsConflict(errors.New("plain")))
}

func TestSentinelsDoNotCrossKinds(t *testing.T) {
	err := NewCycleError("A", "C")
	assert.NotErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrValidation)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "cycle: task cannot be its own parent (task=A)", NewCycleError("A", "A").Error())
	assert.Equal(t, "not_found: parent P does not exist (task=P)", NewNotFoundError("parent", "P").Error())

	cause := errors.New("disk full")
	e := &Error{Kind: KindIntegrity, Message: "read failed", Err: cause}
	assert.Equal(t, "integrity: read failed: disk full", e.Error())
	assert.ErrorIs(t, e, cause)
}

func TestDetailString(t *testing.T) {
	e := NewScopeError("A", "tr-1", "X", "tr-2")
	assert.Equal(t, "parent_task_id=X parent_transition=tr-2 transition_id=tr-1", e.DetailString())
	assert.Equal(t, "", NewConflictError("A", "x").DetailString())
}
