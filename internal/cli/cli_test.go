package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tasktree/internal/engine"
	"github.com/roach88/tasktree/internal/ir"
	"github.com/roach88/tasktree/internal/testutil"
)

// cliEnv runs commands against one database file with predictable ids.
type cliEnv struct {
	t   *testing.T
	db  string
	ids engine.IDGenerator
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	return &cliEnv{
		t:   t,
		db:  filepath.Join(t.TempDir(), "tasks.db"),
		ids: testutil.NewSequentialIDs("T"),
	}
}

func (e *cliEnv) run(args ...string) (string, error) {
	e.t.Helper()
	cmd := newRootCommand(&RootOptions{IDs: e.ids})
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--db", e.db}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	require.NoError(e.t, err, "output: %s", out)
	return out
}

// tree decodes the JSON tree of transition tr-1.
func (e *cliEnv) tree(args ...string) *ir.Forest {
	e.t.Helper()
	out := e.mustRun(append([]string{"tree", "-t", "tr-1", "--format", "json"}, args...)...)
	var resp struct {
		Status string    `json:"status"`
		Data   ir.Forest `json:"data"`
	}
	require.NoError(e.t, json.Unmarshal([]byte(out), &resp))
	require.Equal(e.t, "ok", resp.Status)
	return &resp.Data
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "tasktree", cmd.Use)
	assert.Contains(t, cmd.Version, ir.EngineVersion)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"tree", "create", "move", "indent", "outdent", "up", "down", "delete", "rebalance", "history", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	transitionFlag := cmd.PersistentFlags().Lookup("transition")
	require.NotNil(t, transitionFlag)
	assert.Equal(t, "t", transitionFlag.Shorthand)

	callerFlag := cmd.PersistentFlags().Lookup("as")
	require.NotNil(t, callerFlag)
	assert.Equal(t, "cli", callerFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("tree", "-t", "tr-1", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestCreateAndTree(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun("create", "-t", "tr-1", "Alpha")
	assert.Contains(t, out, `T-1 "Alpha" parent=- milestone=- seq=V v1`)
	env.mustRun("create", "-t", "tr-1", "Beta")
	env.mustRun("create", "-t", "tr-1", "--parent", "T-1", "--milestone", "m1", "--priority", "high", "Child")

	forest := env.tree()
	assert.Equal(t, []string{"T-1", "T-2"}, forest.RootIDs())
	child := forest.Find("T-3")
	require.NotNil(t, child)
	assert.Equal(t, "1.1", child.Index)
	assert.Equal(t, "high", child.Task.Priority)
	assert.Equal(t, "m1", ir.Deref(child.Task.MilestoneID))

	text := env.mustRun("tree", "-t", "tr-1")
	assert.Contains(t, text, "1 Alpha  (T-1)")
	assert.Contains(t, text, "  1.1 Child [m1]  (T-3)")
	assert.Contains(t, text, "2 Beta  (T-2)")

	m1 := env.tree("--milestone", "m1")
	assert.Equal(t, []string{"T-3"}, m1.RootIDs())
	unassigned := env.tree("--unassigned")
	assert.Equal(t, []string{"T-1", "T-2"}, unassigned.RootIDs())
}

func TestCreateRequiresTransition(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("create", "Alpha")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--transition is required")
}

func TestEmptyTree(t *testing.T) {
	env := newCLIEnv(t)
	out := env.mustRun("tree", "-t", "tr-1")
	assert.Contains(t, out, "No tasks.")
}

func TestMove(t *testing.T) {
	env := newCLIEnv(t)
	for _, title := range []string{"A", "B", "C"} {
		env.mustRun("create", "-t", "tr-1", title)
	}

	env.mustRun("move", "T-3", "--position", "0")
	assert.Equal(t, []string{"T-3", "T-1", "T-2"}, env.tree().RootIDs())

	env.mustRun("move", "T-3", "--after", "T-1")
	assert.Equal(t, []string{"T-1", "T-3", "T-2"}, env.tree().RootIDs())

	env.mustRun("move", "T-2", "--parent", "T-1", "--milestone", "m1")
	forest := env.tree()
	assert.Equal(t, []string{"T-1", "T-3"}, forest.RootIDs())
	assert.Equal(t, []string{"T-2"}, forest.Find("T-1").ChildIDs())
	assert.Equal(t, "m1", ir.Deref(forest.Find("T-2").Task.MilestoneID))

	env.mustRun("move", "T-2", "--parent", "T-1", "--unassign")
	assert.Nil(t, env.tree().Find("T-2").Task.MilestoneID)
}

func TestMoveRejected(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("create", "-t", "tr-1", "A")
	env.mustRun("create", "-t", "tr-1", "--parent", "T-1", "B")

	out, err := env.run("move", "T-1", "--parent", "T-2")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, IsReported(err))
	assert.Contains(t, out, "Error [E103]")

	out, err = env.run("move", "T-1", "--before", "T-9", "--format", "json")
	require.Error(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)

	_, err = env.run("move", "T-1", "--before", "T-2", "--after", "T-2")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, err = env.run("move", "T-1", "--milestone", "m1", "--unassign")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none of the others can be")

	_, err = env.run("move", "T-1", "--milestone", "")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestStructuralCommands(t *testing.T) {
	env := newCLIEnv(t)
	for _, title := range []string{"A", "B", "C"} {
		env.mustRun("create", "-t", "tr-1", title)
	}

	env.mustRun("indent", "T-2")
	forest := env.tree()
	assert.Equal(t, []string{"T-1", "T-3"}, forest.RootIDs())
	assert.Equal(t, []string{"T-2"}, forest.Find("T-1").ChildIDs())

	env.mustRun("outdent", "T-2")
	assert.Equal(t, []string{"T-1", "T-2", "T-3"}, env.tree().RootIDs())

	env.mustRun("up", "T-3")
	assert.Equal(t, []string{"T-1", "T-3", "T-2"}, env.tree().RootIDs())

	env.mustRun("down", "T-1")
	assert.Equal(t, []string{"T-3", "T-1", "T-2"}, env.tree().RootIDs())

	_, err := env.run("indent", "T-3")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, err = env.run("outdent", "T-3")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestDelete(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("create", "-t", "tr-1", "A")
	env.mustRun("create", "-t", "tr-1", "--parent", "T-1", "B")
	env.mustRun("create", "-t", "tr-1", "C")
	env.mustRun("create", "-t", "tr-1", "--parent", "T-3", "D")

	_, err := env.run("delete", "T-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "policy" not set`)

	out := env.mustRun("delete", "T-1", "--policy", "cascade", "--format", "json")
	var resp struct {
		Data DeleteResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.ElementsMatch(t, []string{"T-1", "T-2"}, resp.Data.Removed)

	env.mustRun("delete", "T-3", "--policy", "reparent")
	assert.Equal(t, []string{"T-4"}, env.tree().RootIDs())

	_, err = env.run("delete", "T-4", "--policy", "shred")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestRebalance(t *testing.T) {
	env := newCLIEnv(t)
	for _, title := range []string{"A", "B", "C"} {
		env.mustRun("create", "-t", "tr-1", title)
	}

	out := env.mustRun("rebalance", "-t", "tr-1", "--format", "json")
	var resp struct {
		Data RebalanceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "tr-1/-/-", resp.Data.Scope)
	require.Len(t, resp.Data.Tasks, 3)
	assert.Equal(t, "T-1", resp.Data.Tasks[0].ID)
	assert.Equal(t, "T-3", resp.Data.Tasks[2].ID)

	_, err := env.run("rebalance")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestHistory(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("create", "-t", "tr-1", "A", "--as", "alice")
	env.mustRun("create", "-t", "tr-1", "B")
	env.mustRun("move", "T-2", "--position", "0")

	out := env.mustRun("history", "-t", "tr-1")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "create")
	assert.Contains(t, lines[0], "by alice")
	assert.Contains(t, lines[2], "move")
	assert.Contains(t, lines[2], "T-2 by cli")

	out = env.mustRun("history", "-t", "tr-1", "T-2", "--format", "json")
	var resp struct {
		Data []ir.Event `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, ir.EventMove, resp.Data[1].Op)

	out = env.mustRun("history", "-t", "tr-2")
	assert.Contains(t, out, "No events.")
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "tasktree.yaml")
	dbPath := filepath.Join(dir, "from-config.db")
	require.NoError(t, os.WriteFile(cfgPath, []byte("db:\n  path: "+dbPath+"\noutput:\n  format: json\n"), 0o644))

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "tree", "-t", "tr-1"})
	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	_, err := os.Stat(dbPath)
	assert.NoError(t, err, "database opened at the configured path")
}

func TestMissingConfigFile(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml"), "tree", "-t", "tr-1"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
