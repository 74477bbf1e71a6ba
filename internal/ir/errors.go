package ir

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind categorizes engine errors.
type Kind string

const (
	// KindValidation indicates a malformed request (e.g. two anchors given).
	KindValidation Kind = "validation"

	// KindNotFound indicates a referenced task, parent, or anchor does not exist.
	KindNotFound Kind = "not_found"

	// KindScope indicates an attempted move across transition boundaries.
	KindScope Kind = "scope"

	// KindCycle indicates a move would make a task its own ancestor.
	KindCycle Kind = "cycle"

	// KindConflict indicates the optimistic concurrency check failed at write time.
	// The only kind a well-behaved caller retries.
	KindConflict Kind = "conflict"

	// KindIntegrity indicates stored data already violates an invariant.
	KindIntegrity Kind = "integrity"
)

// Error is the structured error returned by the validator, engine, store,
// and tree assembler.
//
// Error includes structured fields for diagnostics. Match on kinds with
// errors.Is against the Err* sentinels or with the IsXxx helpers.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Message is a human-readable description.
	Message string

	// TaskID identifies the task the request was about, when known.
	TaskID string

	// Details contains additional context (anchor ids, scopes, versions).
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// Sentinels for errors.Is matching by kind.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrScope      = &Error{Kind: KindScope}
	ErrCycle      = &Error{Kind: KindCycle}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrIntegrity  = &Error{Kind: KindIntegrity}
)

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.TaskID != "" {
		fmt.Fprintf(&b, " (task=%s)", e.TaskID)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind. A target carrying a message or
// task id only matches an identical error; the bare sentinels match any error
// of their kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if t.Message == "" && t.TaskID == "" {
		return true
	}
	return t.Message == e.Message && t.TaskID == e.TaskID
}

// DetailString renders Details as sorted key=value pairs.
func (e *Error) DetailString() string {
	if len(e.Details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + e.Details[k]
	}
	return strings.Join(parts, " ")
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsScope returns true if err is a cross-transition scope error.
func IsScope(err error) bool { return KindOf(err) == KindScope }

// IsCycle returns true if err is a cycle error.
func IsCycle(err error) bool { return KindOf(err) == KindCycle }

// IsConflict returns true if err is an optimistic concurrency conflict.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsIntegrity returns true if err reports pre-existing data corruption.
func IsIntegrity(err error) bool { return KindOf(err) == KindIntegrity }

// NewValidationError creates a validation error.
func NewValidationError(format string, args ...any) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewNotFoundError creates a not-found error for the named entity.
// what is one of "task", "parent", "anchor".
func NewNotFoundError(what, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s %s does not exist", what, id),
		TaskID:  id,
		Details: map[string]string{"entity": what},
	}
}

// NewScopeError creates an error for a parent in a different transition.
func NewScopeError(taskID, taskTransition, parentID, parentTransition string) *Error {
	return &Error{
		Kind:    KindScope,
		Message: fmt.Sprintf("parent %s belongs to transition %s, not %s", parentID, parentTransition, taskTransition),
		TaskID:  taskID,
		Details: map[string]string{
			"parent_task_id":    parentID,
			"transition_id":     taskTransition,
			"parent_transition": parentTransition,
		},
	}
}

// NewCycleError creates an error for a move under the task itself or one of
// its descendants.
func NewCycleError(taskID, parentID string) *Error {
	msg := fmt.Sprintf("task would become its own ancestor via %s", parentID)
	if taskID == parentID {
		msg = "task cannot be its own parent"
	}
	return &Error{
		Kind:    KindCycle,
		Message: msg,
		TaskID:  taskID,
		Details: map[string]string{"parent_task_id": parentID},
	}
}

// NewConflictError creates an optimistic concurrency error.
func NewConflictError(taskID, reason string) *Error {
	return &Error{
		Kind:    KindConflict,
		Message: reason,
		TaskID:  taskID,
	}
}

// NewIntegrityError creates an error for an invariant violation found in stored data.
func NewIntegrityError(taskID, format string, args ...any) *Error {
	return &Error{
		Kind:    KindIntegrity,
		Message: fmt.Sprintf(format, args...),
		TaskID:  taskID,
	}
}

// errStopWalk ends a Forest.Walk early.
var errStopWalk = errors.New("stop walk")
