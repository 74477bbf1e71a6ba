package harness

import "github.com/roach88/tasktree/internal/ir"

// Outcome values recorded in the trace.
const (
	OutcomeOK = "ok"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	Op      string `json:"op"`
	TaskID  string `json:"task_id,omitempty"`
	Outcome string `json:"outcome"` // OutcomeOK or the error kind
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every flow step matched its expectation and every assertion held.
	Pass bool `json:"pass"`

	// Trace contains setup and flow steps in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Forest is the final tree of the scenario's transition.
	Forest *ir.Forest `json:"forest,omitempty"`

	// Events is the final ledger of the scenario's transition.
	Events []ir.Event `json:"events,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace.
func (r *Result) AddTrace(op, taskID, outcome string) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:     int64(len(r.Trace) + 1),
		Op:      op,
		TaskID:  taskID,
		Outcome: outcome,
	})
}
