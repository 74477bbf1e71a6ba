package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tasktree/internal/ir"
	"github.com/roach88/tasktree/internal/tree"
)

// TreeOptions holds flags for the tree command.
type TreeOptions struct {
	*RootOptions
	Milestone  string
	Unassigned bool
}

// NewTreeCommand creates the tree command.
func NewTreeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TreeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Show the task outline of a transition",
		Long: `Print the nested, ordered tasks of one transition.

With --milestone or --unassigned only that bucket is shown; tasks whose
parent is outside the bucket are shown as roots.

Example:
  tasktree tree -t tr-1
  tasktree tree -t tr-1 --milestone m1 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTree(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Milestone, "milestone", "", "show only this milestone")
	cmd.Flags().BoolVar(&opts.Unassigned, "unassigned", false, "show only tasks without a milestone")
	cmd.MarkFlagsMutuallyExclusive("milestone", "unassigned")

	return cmd
}

func runTree(cmd *cobra.Command, opts *TreeOptions) error {
	if err := opts.requireTransition(); err != nil {
		return err
	}
	out := opts.formatter(cmd)
	s, err := openSession(opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	filter := tree.All()
	switch {
	case opts.Milestone != "":
		filter = tree.Milestone(ir.StringRef(opts.Milestone))
	case opts.Unassigned:
		filter = tree.Milestone(nil)
	}

	forest, err := s.engine.GetTree(cmd.Context(), opts.Transition, filter)
	if err != nil {
		return out.Fail(err)
	}
	if opts.Format == "json" {
		return out.Success(forest)
	}
	writeOutline(cmd.OutOrStdout(), forest)
	return nil
}

// writeOutline prints one indented line per task.
func writeOutline(w io.Writer, f *ir.Forest) {
	if f.Len() == 0 {
		fmt.Fprintln(w, "No tasks.")
		return
	}
	_ = f.Walk(func(n *ir.Node) error {
		line := fmt.Sprintf("%s%s %s", strings.Repeat("  ", n.Depth), n.Index, n.Task.Title)
		if n.Task.MilestoneID != nil {
			line += " [" + *n.Task.MilestoneID + "]"
		}
		fmt.Fprintf(w, "%s  (%s)\n", line, n.Task.ID)
		return nil
	})
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [task-id]",
		Short: "Show the ledger of a transition",
		Long: `Print the append-only ledger of creates, moves, resequences and
deletes in a transition, optionally for one task.

Example:
  tasktree history -t tr-1
  tasktree history -t tr-1 T3 --format json`,
		Args:          cobra.MaximumNArgs(1),
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

			taskID := ""
			if len(args) == 1 {
				taskID = args[0]
			}
			events, err := s.engine.History(cmd.Context(), rootOpts.Transition, taskID)
			if err != nil {
				return out.Fail(err)
			}
			if rootOpts.Format == "json" {
				return out.Success(events)
			}
			writeEvents(cmd.OutOrStdout(), events)
			return nil
		},
	}
	return cmd
}

func writeEvents(w io.Writer, events []ir.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events.")
		return
	}
	for _, ev := range events {
		fmt.Fprintf(w, "%4d %-10s %s by %s", ev.Seq, ev.Op, ev.TaskID, ev.CallerID)
		if len(ev.Details) > 0 {
			keys := make([]string, 0, len(ev.Details))
			for k := range ev.Details {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(w, " %s=%s", k, ev.Details[k])
			}
		}
		fmt.Fprintln(w)
	}
}
