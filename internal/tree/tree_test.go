package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tasktree/internal/ir"
	"github.com/roach88/tasktree/internal/testutil"
)

var mk = testutil.Task

func inMilestone(t ir.Task, m string) ir.Task {
	t.MilestoneID = ir.StringRef(m)
	return t
}

func TestAssemble_Empty(t *testing.T) {
	f, err := Assemble("tr-1", nil, All())
	require.NoError(t, err)
	assert.Empty(t, f.Roots)
	assert.Equal(t, "tr-1", f.TransitionID)
}

func TestAssemble_OrdersBySequence(t *testing.T) {
	tasks := []ir.Task{
		mk("c", "", "X"),
		mk("a", "", "V"),
		mk("d", "", "VV"),
		mk("b", "", "W"),
	}
	f, err := Assemble("tr-1", tasks, All())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "d", "b", "c"}, f.RootIDs())
}

func TestAssemble_NestsChildrenWithIndexes(t *testing.T) {
	tasks := []ir.Task{
		mk("a", "", "V"),
		mk("b", "", "W"),
		mk("a2", "a", "W"),
		mk("a1", "a", "V"),
		mk("a1x", "a1", "V"),
	}
	f, err := Assemble("tr-1", tasks, All())
	require.NoError(t, err)

	require.Equal(t, []string{"a", "b"}, f.RootIDs())
	a := f.Find("a")
	require.NotNil(t, a)
	assert.Equal(t, []string{"a1", "a2"}, a.ChildIDs())
	assert.Equal(t, "1", a.Index)
	assert.Equal(t, "1.1", f.Find("a1").Index)
	assert.Equal(t, "1.2", f.Find("a2").Index)
	assert.Equal(t, "1.1.1", f.Find("a1x").Index)
	assert.Equal(t, 2, f.Find("a1x").Depth)
	assert.Equal(t, "2", f.Find("b").Index)
	assert.Equal(t, 5, f.Len())
}

func TestAssemble_TieBreaksById(t *testing.T) {
	tasks := []ir.Task{mk("b", "", "V"), mk("a", "", "V")}
	f, err := Assemble("tr-1", tasks, All())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, f.RootIDs())
}

func TestAssemble_Idempotent(t *testing.T) {
	tasks := []ir.Task{
		mk("a", "", "V"), mk("b", "", "W"), mk("c", "a", "V"), mk("d", "a", "U"),
	}
	first, err := Assemble("tr-1", tasks, All())
	require.NoError(t, err)

	// Shuffled input, same records.
	shuffled := []ir.Task{tasks[3], tasks[1], tasks[0], tasks[2]}
	second, err := Assemble("tr-1", shuffled, All())
	require.NoError(t, err)

	one, err := ir.MarshalCanonical(ir.CanonicalForest(first, true))
	require.NoError(t, err)
	two, err := ir.MarshalCanonical(ir.CanonicalForest(second, true))
	require.NoError(t, err)
	assert.Equal(t, string(one), string(two))
}

func TestAssemble_CycleIsIntegrityError(t *testing.T) {
	tasks := []ir.Task{
		mk("root", "", "V"),
		mk("x", "y", "V"),
		mk("y", "x", "V"),
	}
	_, err := Assemble("tr-1", tasks, All())
	require.Error(t, err)
	assert.True(t, ir.IsIntegrity(err))
}

func TestAssemble_SelfParentIsIntegrityError(t *testing.T) {
	_, err := Assemble("tr-1", []ir.Task{mk("x", "x", "V")}, All())
	require.Error(t, err)
	assert.True(t, ir.IsIntegrity(err))
}

func TestAssemble_DanglingParentIsIntegrityError(t *testing.T) {
	_, err := Assemble("tr-1", []ir.Task{mk("x", "ghost", "V")}, All())
	require.Error(t, err)
	assert.True(t, ir.IsIntegrity(err))
}

func TestAssemble_DuplicateIdIsIntegrityError(t *testing.T) {
	_, err := Assemble("tr-1", []ir.Task{mk("x", "", "V"), mk("x", "", "W")}, All())
	require.Error(t, err)
	assert.True(t, ir.IsIntegrity(err))
}

func TestAssemble_ForeignTransitionIsIntegrityError(t *testing.T) {
	other := mk("x", "", "V")
	other.TransitionID = "tr-2"
	_, err := Assemble("tr-1", []ir.Task{other}, All())
	require.Error(t, err)
	assert.True(t, ir.IsIntegrity(err))
}

func TestAssemble_MilestoneFilter(t *testing.T) {
	tasks := []ir.Task{
		inMilestone(mk("m1a", "", "V"), "m1"),
		inMilestone(mk("m1b", "", "W"), "m1"),
		mk("free", "", "V"),
		// Child in m1 under a parent in the unassigned bucket.
		inMilestone(mk("stray", "free", "U"), "m1"),
		inMilestone(mk("m1a-child", "m1a", "V"), "m1"),
	}

	m1, err := Assemble("tr-1", tasks, Milestone(ir.StringRef("m1")))
	require.NoError(t, err)
	assert.Equal(t, []string{"stray", "m1a", "m1b"}, m1.RootIDs())
	assert.Equal(t, []string{"m1a-child"}, m1.Find("m1a").ChildIDs())

	unassigned, err := Assemble("tr-1", tasks, Milestone(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"free"}, unassigned.RootIDs())
	assert.Empty(t, unassigned.Find("free").Children)

	all, err := Assemble("tr-1", tasks, All())
	require.NoError(t, err)
	assert.Equal(t, []string{"stray"}, all.Find("free").ChildIDs())
}

func TestSortSiblings(t *testing.T) {
	tasks := []ir.Task{mk("b", "", "W"), mk("a", "", "V")}
	SortSiblings(tasks)
	assert.Equal(t, "a", tasks[0].ID)
}
