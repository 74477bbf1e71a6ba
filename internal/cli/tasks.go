package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tasktree/internal/engine"
	"github.com/roach88/tasktree/internal/ir"
)

// taskResult renders a task as a one-line summary in text mode.
type taskResult struct {
	ir.Task
}

func (r taskResult) String() string {
	return fmt.Sprintf("%s %q parent=%s milestone=%s seq=%s v%d",
		r.ID, r.Title, orDash(r.ParentTaskID), orDash(r.MilestoneID), r.Sequence, r.Version)
}

func orDash(p *string) string {
	if p == nil {
		return "-"
	}
	return *p
}

// runTaskWrite opens a session, runs one write under conflict retry, and
// reports the resulting task.
func runTaskWrite(cmd *cobra.Command, opts *RootOptions, op string, fn func(ctx context.Context, s *session) (ir.Task, error)) error {
	out := opts.formatter(cmd)
	s, err := openSession(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	var task ir.Task
	err = s.mutate(cmd.Context(), op, func(ctx context.Context) error {
		var err error
		task, err = fn(ctx, s)
		return err
	})
	if err != nil {
		return out.Fail(err)
	}
	return out.Success(taskResult{task})
}

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions
	Parent    string
	Milestone string
	Fields    ir.Fields
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Append a new task",
		Long: `Create a task at the end of its sibling group.

Example:
  tasktree create -t tr-1 "Write runbook"
  tasktree create -t tr-1 --parent 0192... --milestone m1 "Draft"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireTransition(); err != nil {
				return err
			}
			fields := opts.Fields
			fields.Title = args[0]
			return runTaskWrite(cmd, opts.RootOptions, "create", func(ctx context.Context, s *session) (ir.Task, error) {
				return s.engine.CreateTask(ctx, s.caller, engine.CreateRequest{
					TransitionID: opts.Transition,
					ParentTaskID: ir.StringRef(opts.Parent),
					MilestoneID:  ir.StringRef(opts.Milestone),
					Fields:       fields,
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Parent, "parent", "", "parent task id (default: root)")
	cmd.Flags().StringVar(&opts.Milestone, "milestone", "", "milestone id (default: unassigned)")
	cmd.Flags().StringVar(&opts.Fields.Description, "description", "", "task description")
	cmd.Flags().StringVar(&opts.Fields.DueDate, "due", "", "due date")
	cmd.Flags().StringVar(&opts.Fields.Priority, "priority", "", "priority")
	cmd.Flags().StringVar(&opts.Fields.Status, "status", "", "status")

	return cmd
}

// MoveOptions holds flags for the move command.
type MoveOptions struct {
	*RootOptions
	Parent           string
	Before           string
	After            string
	Position         int
	Milestone        string
	Unassign         bool
	InheritMilestone bool
}

// NewMoveCommand creates the move command.
func NewMoveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MoveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "move <task-id>",
		Short: "Move a task to a new parent and position",
		Long: `Move a task under --parent (root when omitted).

At most one of --before, --after, --position may be given; with none the
task is appended. The task keeps its milestone unless --milestone,
--unassign or --inherit-milestone is given.

Example:
  tasktree move T3 --after T1
  tasktree move T3 --parent T1 --position 0
  tasktree move T3 --parent T7 --inherit-milestone`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dest, err := opts.destination(cmd)
			if err != nil {
				return err
			}
			return runTaskWrite(cmd, opts.RootOptions, "move", func(ctx context.Context, s *session) (ir.Task, error) {
				return s.engine.MoveTask(ctx, s.caller, args[0], dest)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Parent, "parent", "", "destination parent id (default: root)")
	cmd.Flags().StringVar(&opts.Before, "before", "", "place before this sibling")
	cmd.Flags().StringVar(&opts.After, "after", "", "place after this sibling")
	cmd.Flags().IntVar(&opts.Position, "position", 0, "zero-based index among the destination siblings")
	cmd.Flags().StringVar(&opts.Milestone, "milestone", "", "move into this milestone")
	cmd.Flags().BoolVar(&opts.Unassign, "unassign", false, "move into the unassigned bucket")
	cmd.Flags().BoolVar(&opts.InheritMilestone, "inherit-milestone", false, "take the new parent's milestone")
	cmd.MarkFlagsMutuallyExclusive("milestone", "unassign", "inherit-milestone")

	return cmd
}

func (o *MoveOptions) destination(cmd *cobra.Command) (ir.Destination, error) {
	dest := ir.Destination{
		ParentTaskID:     ir.StringRef(o.Parent),
		BeforeTaskID:     o.Before,
		AfterTaskID:      o.After,
		InheritMilestone: o.InheritMilestone,
	}
	if cmd.Flags().Changed("position") {
		pos := o.Position
		dest.Position = &pos
	}
	switch {
	case cmd.Flags().Changed("milestone"):
		if o.Milestone == "" {
			return dest, NewExitError(ExitCommandError, "--milestone must not be empty (use --unassign)")
		}
		dest.SetMilestone = true
		dest.MilestoneID = ir.StringRef(o.Milestone)
	case o.Unassign:
		dest.SetMilestone = true
	}
	return dest, nil
}

// newStepCommand builds the single-argument structural commands.
func newStepCommand(rootOpts *RootOptions, use, short, long string, fn func(e *engine.Engine, ctx context.Context, caller ir.Caller, id string) (ir.Task, error)) *cobra.Command {
	return &cobra.Command{
		Use:           use + " <task-id>",
		Short:         short,
		Long:          long,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTaskWrite(cmd, rootOpts, use, func(ctx context.Context, s *session) (ir.Task, error) {
				return fn(s.engine, ctx, s.caller, args[0])
			})
		},
	}
}

// NewIndentCommand creates the indent command.
func NewIndentCommand(rootOpts *RootOptions) *cobra.Command {
	return newStepCommand(rootOpts, "indent",
		"Make a task the last child of its preceding sibling",
		"Indent fails when the task is first among its siblings.",
		(*engine.Engine).Indent)
}

// NewOutdentCommand creates the outdent command.
func NewOutdentCommand(rootOpts *RootOptions) *cobra.Command {
	return newStepCommand(rootOpts, "outdent",
		"Move a task up one level, directly after its parent",
		"Outdent fails for root tasks. The task takes its parent's milestone.",
		(*engine.Engine).Outdent)
}

// NewUpCommand creates the up command.
func NewUpCommand(rootOpts *RootOptions) *cobra.Command {
	return newStepCommand(rootOpts, "up",
		"Swap a task with its previous sibling",
		"A task already first among its siblings is left unchanged.",
		(*engine.Engine).MoveUp)
}

// NewDownCommand creates the down command.
func NewDownCommand(rootOpts *RootOptions) *cobra.Command {
	return newStepCommand(rootOpts, "down",
		"Swap a task with its next sibling",
		"A task already last among its siblings is left unchanged.",
		(*engine.Engine).MoveDown)
}

// DeleteResult is the output of the delete command.
type DeleteResult struct {
	TaskID  string   `json:"task_id"`
	Policy  string   `json:"policy"`
	Removed []string `json:"removed"`
}

func (r DeleteResult) String() string {
	return fmt.Sprintf("deleted %s (%s): %s", r.TaskID, r.Policy, strings.Join(r.Removed, " "))
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	var policy string

	cmd := &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task",
		Long: `Delete a task under an explicit child policy.

  cascade   remove the task and its whole subtree
  reparent  move its children into the task's slot

Example:
  tasktree delete T3 --policy reparent`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			s, err := openSession(rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			var removed []string
			err = s.mutate(cmd.Context(), "delete", func(ctx context.Context) error {
				var err error
				removed, err = s.engine.DeleteTask(ctx, s.caller, args[0], ir.DeletePolicy(policy))
				return err
			})
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(DeleteResult{TaskID: args[0], Policy: policy, Removed: removed})
		},
	}

	cmd.Flags().StringVar(&policy, "policy", "", "child policy: cascade or reparent (required)")
	_ = cmd.MarkFlagRequired("policy")

	return cmd
}

// RebalanceResult is the output of the rebalance command.
type RebalanceResult struct {
	Scope string    `json:"scope"`
	Tasks []ir.Task `json:"tasks"`
}

func (r RebalanceResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "rebalanced %s", r.Scope)
	for _, t := range r.Tasks {
		fmt.Fprintf(&b, "\n  %s %s", t.Sequence, t.ID)
	}
	return b.String()
}

// NewRebalanceCommand creates the rebalance command.
func NewRebalanceCommand(rootOpts *RootOptions) *cobra.Command {
	var parent, milestone string

	cmd := &cobra.Command{
		Use:   "rebalance",
		Short: "Re-space the order keys of one sibling group",
		Long: `Rebalance rewrites the order keys of one sibling group evenly,
keeping its order. Writes happen automatically when keys run out; this
command forces one.

Example:
  tasktree rebalance -t tr-1 --parent T1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rootOpts.requireTransition(); err != nil {
				return err
			}
			out := rootOpts.formatter(cmd)
			s, err := openSession(rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			scope := ir.Scope{
				TransitionID: rootOpts.Transition,
				MilestoneID:  ir.StringRef(milestone),
				ParentTaskID: ir.StringRef(parent),
			}
			var tasks []ir.Task
			err = s.mutate(cmd.Context(), "rebalance", func(ctx context.Context) error {
				var err error
				tasks, err = s.engine.Rebalance(ctx, s.caller, scope)
				return err
			})
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(RebalanceResult{Scope: scope.String(), Tasks: tasks})
		},
	}

	cmd.Flags().StringVar(&parent, "parent", "", "parent task id (default: roots)")
	cmd.Flags().StringVar(&milestone, "milestone", "", "milestone id (default: unassigned)")

	return cmd
}
