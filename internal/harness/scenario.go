package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tasktree/internal/ir"
)

// Default identities used when a scenario does not name its own.
const (
	DefaultTransition = "tr-1"
	DefaultCaller     = "user-1"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Transition is the transition every step operates in.
	// Defaults to DefaultTransition.
	Transition string `yaml:"transition,omitempty"`

	// Caller is the identity every step is issued as.
	// Defaults to DefaultCaller.
	Caller string `yaml:"caller,omitempty"`

	// Setup steps establish the initial tree and must all succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow contains the steps under test.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final tree and ledger.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one engine operation.
type Step struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	// ID is the id assigned to a created task (create only).
	ID string `yaml:"id,omitempty"`

	// Task is the task operated on (every op except create and rebalance).
	Task string `yaml:"task,omitempty"`

	// Title is the created task's title (create only).
	Title string `yaml:"title,omitempty"`

	// Parent is the destination parent; empty means root.
	Parent string `yaml:"parent,omitempty"`

	// Milestone is the created task's milestone, the sibling group of a
	// rebalance, or the explicit destination milestone of a move when
	// SetMilestone is true.
	Milestone string `yaml:"milestone,omitempty"`

	SetMilestone     bool `yaml:"set_milestone,omitempty"`
	InheritMilestone bool `yaml:"inherit_milestone,omitempty"`

	Before   string `yaml:"before,omitempty"`
	After    string `yaml:"after,omitempty"`
	Position *int   `yaml:"position,omitempty"`

	// Policy is the delete policy: cascade or reparent.
	Policy string `yaml:"policy,omitempty"`

	// ExpectError is the error kind the step must fail with. Empty means the
	// step must succeed. Ignored for setup steps.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step operations.
const (
	OpCreate    = "create"
	OpMove      = "move"
	OpIndent    = "indent"
	OpOutdent   = "outdent"
	OpUp        = "up"
	OpDown      = "down"
	OpDelete    = "delete"
	OpRebalance = "rebalance"
)

var validOps = map[string]bool{
	OpCreate: true, OpMove: true, OpIndent: true, OpOutdent: true,
	OpUp: true, OpDown: true, OpDelete: true, OpRebalance: true,
}

var validKinds = map[string]bool{
	string(ir.KindValidation): true,
	string(ir.KindNotFound):   true,
	string(ir.KindScope):      true,
	string(ir.KindCycle):      true,
	string(ir.KindConflict):   true,
	string(ir.KindIntegrity):  true,
}

// Assertion validates the final tree or ledger.
type Assertion struct {
	// Type specifies the assertion type:
	// - "outline": the rendered tree equals Lines ("<index> <id>" per node)
	// - "children": the ordered children of Parent equal IDs
	// - "milestone": Task belongs to Milestone (empty = unassigned)
	// - "event_count": the ledger holds exactly Count events of EventOp
	Type string `yaml:"type"`

	// Lines is the expected outline (used by outline).
	Lines []string `yaml:"lines,omitempty"`

	// Bucket restricts the outline to one milestone: empty renders every
	// task, "-" the unassigned bucket, anything else that milestone id.
	Bucket string `yaml:"bucket,omitempty"`

	// Parent is the parent whose children are checked; empty means roots
	// (used by children).
	Parent string `yaml:"parent,omitempty"`

	// IDs is the expected child order (used by children).
	IDs []string `yaml:"ids,omitempty"`

	// Task and Milestone are used by milestone.
	Task      string `yaml:"task,omitempty"`
	Milestone string `yaml:"milestone,omitempty"`

	// EventOp and Count are used by event_count.
	EventOp string `yaml:"event_op,omitempty"`
	Count   int    `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertOutline    = "outline"
	AssertChildren   = "children"
	AssertMilestone  = "milestone"
	AssertEventCount = "event_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and fills defaults.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.Transition == "" {
		s.Transition = DefaultTransition
	}
	if s.Caller == "" {
		s.Caller = DefaultCaller
	}

	for i := range s.Setup {
		if err := validateStep(fmt.Sprintf("setup[%d]", i), &s.Setup[i]); err != nil {
			return err
		}
		if s.Setup[i].ExpectError != "" {
			return fmt.Errorf("setup[%d]: expect_error is not allowed in setup", i)
		}
	}
	for i := range s.Flow {
		if err := validateStep(fmt.Sprintf("flow[%d]", i), &s.Flow[i]); err != nil {
			return err
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(where string, st *Step) error {
	if !validOps[st.Op] {
		return fmt.Errorf("%s: unknown op %q", where, st.Op)
	}
	switch st.Op {
	case OpCreate:
		if st.ID == "" {
			return fmt.Errorf("%s: id is required for create", where)
		}
		if st.Title == "" {
			st.Title = st.ID
		}
	case OpRebalance:
	default:
		if st.Task == "" {
			return fmt.Errorf("%s: task is required for %s", where, st.Op)
		}
	}
	if st.Op == OpMove && st.Milestone != "" && !st.SetMilestone {
		return fmt.Errorf("%s: milestone on a move requires set_milestone", where)
	}
	if st.ExpectError != "" && !validKinds[st.ExpectError] {
		return fmt.Errorf("%s: unknown error kind %q", where, st.ExpectError)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOutline:
		if a.Lines == nil {
			return fmt.Errorf("assertions[%d]: lines is required for outline (use [] for an empty tree)", index)
		}
	case AssertChildren:
		if a.IDs == nil {
			return fmt.Errorf("assertions[%d]: ids is required for children (use [] for none)", index)
		}
	case AssertMilestone:
		if a.Task == "" {
			return fmt.Errorf("assertions[%d]: task is required for milestone", index)
		}
	case AssertEventCount:
		if a.EventOp == "" {
			return fmt.Errorf("assertions[%d]: event_op is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
