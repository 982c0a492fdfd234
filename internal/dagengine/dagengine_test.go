package dagengine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tascade-run/tascade/internal/dagengine"
	"github.com/tascade-run/tascade/internal/domain/edge"
	"github.com/tascade-run/tascade/internal/domain/task"
	"github.com/tascade-run/tascade/internal/store/memory"
)

func newEngine() *dagengine.Engine {
	return dagengine.New(memory.New())
}

func TestShortIDDerivation(t *testing.T) {
	ctx := context.Background()
	e := newEngine()
	proj, err := e.CreateProject(ctx, "proj")
	require.NoError(t, err)

	ph1, err := e.CreatePhase(ctx, proj.ID, "phase one")
	require.NoError(t, err)
	assert.Equal(t, "P1", ph1.ShortID)

	ph2, err := e.CreatePhase(ctx, proj.ID, "phase two")
	require.NoError(t, err)
	assert.Equal(t, "P2", ph2.ShortID)

	m1, err := e.CreateMilestone(ctx, ph1.ID, "milestone one")
	require.NoError(t, err)
	assert.Equal(t, "P1.M1", m1.ShortID)

	tk1, err := e.CreateTask(ctx, dagengine.CreateTaskInput{
		ProjectID: proj.ID, PhaseID: ph1.ID, MilestoneID: m1.ID, Title: "first task",
	})
	require.NoError(t, err)
	assert.Equal(t, "P1.M1.T1", tk1.ShortID)

	tk2, err := e.CreateTask(ctx, dagengine.CreateTaskInput{
		ProjectID: proj.ID, PhaseID: ph1.ID, MilestoneID: m1.ID, Title: "second task",
	})
	require.NoError(t, err)
	assert.Equal(t, "P1.M1.T2", tk2.ShortID)
}

func TestAddEdgeRejectsCrossProject(t *testing.T) {
	ctx := context.Background()
	e := newEngine()
	p1, _ := e.CreateProject(ctx, "one")
	p2, _ := e.CreateProject(ctx, "two")
	ph1, _ := e.CreatePhase(ctx, p1.ID, "ph")
	m1, _ := e.CreateMilestone(ctx, ph1.ID, "m")
	ph2, _ := e.CreatePhase(ctx, p2.ID, "ph")
	m2, _ := e.CreateMilestone(ctx, ph2.ID, "m")

	a, err := e.CreateTask(ctx, dagengine.CreateTaskInput{ProjectID: p1.ID, PhaseID: ph1.ID, MilestoneID: m1.ID, Title: "a"})
	require.NoError(t, err)
	b, err := e.CreateTask(ctx, dagengine.CreateTaskInput{ProjectID: p2.ID, PhaseID: ph2.ID, MilestoneID: m2.ID, Title: "b"})
	require.NoError(t, err)

	_, err = e.AddEdge(ctx, p1.ID, a.ID, b.ID, edge.UnlockOnImplemented)
	require.Error(t, err)
}

func TestAddEdgeRejectsLongerCycle(t *testing.T) {
	ctx := context.Background()
	e := newEngine()
	proj, _ := e.CreateProject(ctx, "proj")
	ph, _ := e.CreatePhase(ctx, proj.ID, "ph")
	m, _ := e.CreateMilestone(ctx, ph.ID, "m")

	ids := make([]task.Task, 4)
	for i := range ids {
		tk, err := e.CreateTask(ctx, dagengine.CreateTaskInput{ProjectID: proj.ID, PhaseID: ph.ID, MilestoneID: m.ID, Title: "t"})
		require.NoError(t, err)
		ids[i] = tk
	}
	// a -> b -> c -> d, then d -> a must be rejected as a length-4 cycle.
	for i := 0; i < len(ids)-1; i++ {
		_, err := e.AddEdge(ctx, proj.ID, ids[i].ID, ids[i+1].ID, edge.UnlockOnImplemented)
		require.NoError(t, err)
	}
	_, err := e.AddEdge(ctx, proj.ID, ids[3].ID, ids[0].ID, edge.UnlockOnImplemented)
	require.Error(t, err)
}

func TestGetContextDepthZeroReturnsOnlyTarget(t *testing.T) {
	ctx := context.Background()
	e := newEngine()
	proj, _ := e.CreateProject(ctx, "proj")
	ph, _ := e.CreatePhase(ctx, proj.ID, "ph")
	m, _ := e.CreateMilestone(ctx, ph.ID, "m")
	a, _ := e.CreateTask(ctx, dagengine.CreateTaskInput{ProjectID: proj.ID, PhaseID: ph.ID, MilestoneID: m.ID, Title: "a"})
	b, _ := e.CreateTask(ctx, dagengine.CreateTaskInput{ProjectID: proj.ID, PhaseID: ph.ID, MilestoneID: m.ID, Title: "b"})
	_, err := e.AddEdge(ctx, proj.ID, a.ID, b.ID, edge.UnlockOnImplemented)
	require.NoError(t, err)

	sub, err := e.GetContext(ctx, dagengine.ContextQuery{ProjectID: proj.ID, TaskID: b.ID, AncestorDepth: 0, DependentDepth: 0, BypassCache: true})
	require.NoError(t, err)
	assert.Equal(t, b.ID, sub.TargetTaskID)
	assert.Empty(t, sub.Ancestors)
	assert.Empty(t, sub.Dependents)
}

func TestGetContextBoundedAncestorDepth(t *testing.T) {
	ctx := context.Background()
	e := newEngine()
	proj, _ := e.CreateProject(ctx, "proj")
	ph, _ := e.CreatePhase(ctx, proj.ID, "ph")
	m, _ := e.CreateMilestone(ctx, ph.ID, "m")
	a, _ := e.CreateTask(ctx, dagengine.CreateTaskInput{ProjectID: proj.ID, PhaseID: ph.ID, MilestoneID: m.ID, Title: "a"})
	b, _ := e.CreateTask(ctx, dagengine.CreateTaskInput{ProjectID: proj.ID, PhaseID: ph.ID, MilestoneID: m.ID, Title: "b"})
	c, _ := e.CreateTask(ctx, dagengine.CreateTaskInput{ProjectID: proj.ID, PhaseID: ph.ID, MilestoneID: m.ID, Title: "c"})
	_, err := e.AddEdge(ctx, proj.ID, a.ID, b.ID, edge.UnlockOnImplemented)
	require.NoError(t, err)
	_, err = e.AddEdge(ctx, proj.ID, b.ID, c.ID, edge.UnlockOnImplemented)
	require.NoError(t, err)

	sub, err := e.GetContext(ctx, dagengine.ContextQuery{ProjectID: proj.ID, TaskID: c.ID, AncestorDepth: 1, BypassCache: true})
	require.NoError(t, err)
	require.Len(t, sub.Ancestors, 1)
	assert.Equal(t, b.ID, sub.Ancestors[0].ID)

	sub2, err := e.GetContext(ctx, dagengine.ContextQuery{ProjectID: proj.ID, TaskID: c.ID, AncestorDepth: 2, BypassCache: true})
	require.NoError(t, err)
	require.Len(t, sub2.Ancestors, 2)
}
