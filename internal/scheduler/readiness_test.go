package scheduler_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tascade-run/tascade/internal/dagengine"
	"github.com/tascade-run/tascade/internal/domain/edge"
	"github.com/tascade-run/tascade/internal/domain/task"
	"github.com/tascade-run/tascade/internal/lifecycle"
	"github.com/tascade-run/tascade/internal/scheduler"
	"github.com/tascade-run/tascade/internal/store/memory"
)

func TestSatisfiedWithNoIncomingEdges(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	dag := dagengine.New(st)
	sched := scheduler.New(st, lifecycle.NewTable(), nil)

	proj, _ := dag.CreateProject(ctx, "proj")
	ph, _ := dag.CreatePhase(ctx, proj.ID, "ph")
	m, _ := dag.CreateMilestone(ctx, ph.ID, "m")
	tk, err := dag.CreateTask(ctx, dagengine.CreateTaskInput{ProjectID: proj.ID, PhaseID: ph.ID, MilestoneID: m.ID, Title: "a"})
	require.NoError(t, err)

	ok, err := sched.Satisfied(ctx, tk)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSatisfiedRequiresUnlockRank(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	dag := dagengine.New(st)
	sched := scheduler.New(st, lifecycle.NewTable(), nil)

	proj, _ := dag.CreateProject(ctx, "proj")
	ph, _ := dag.CreatePhase(ctx, proj.ID, "ph")
	m, _ := dag.CreateMilestone(ctx, ph.ID, "m")
	a, err := dag.CreateTask(ctx, dagengine.CreateTaskInput{ProjectID: proj.ID, PhaseID: ph.ID, MilestoneID: m.ID, Title: "a"})
	require.NoError(t, err)
	b, err := dag.CreateTask(ctx, dagengine.CreateTaskInput{ProjectID: proj.ID, PhaseID: ph.ID, MilestoneID: m.ID, Title: "b"})
	require.NoError(t, err)
	_, err = dag.AddEdge(ctx, proj.ID, a.ID, b.ID, edge.UnlockOnImplemented)
	require.NoError(t, err)

	ok, err := sched.Satisfied(ctx, b)
	require.NoError(t, err)
	require.False(t, ok, "b must wait for a to reach Implemented")

	a.State = task.Implemented
	_, err = st.UpdateTask(ctx, a)
	require.NoError(t, err)

	ok, err = sched.Satisfied(ctx, b)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRecomputeReadinessFiresBacklogToReady(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	dag := dagengine.New(st)
	sched := scheduler.New(st, lifecycle.NewTable(), nil)

	proj, _ := dag.CreateProject(ctx, "proj")
	ph, _ := dag.CreatePhase(ctx, proj.ID, "ph")
	m, _ := dag.CreateMilestone(ctx, ph.ID, "m")
	tk, err := dag.CreateTask(ctx, dagengine.CreateTaskInput{ProjectID: proj.ID, PhaseID: ph.ID, MilestoneID: m.ID, Title: "a"})
	require.NoError(t, err)
	require.Equal(t, task.Backlog, tk.State)

	require.NoError(t, sched.RecomputeReadiness(ctx, tk.ID))

	got, err := st.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	require.Equal(t, task.Ready, got.State)
	require.NotNil(t, got.ReadySince)
}

func TestRecomputeReadinessRegressesOnDependencyAdd(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	dag := dagengine.New(st)
	sched := scheduler.New(st, lifecycle.NewTable(), nil)

	proj, _ := dag.CreateProject(ctx, "proj")
	ph, _ := dag.CreatePhase(ctx, proj.ID, "ph")
	m, _ := dag.CreateMilestone(ctx, ph.ID, "m")
	a, _ := dag.CreateTask(ctx, dagengine.CreateTaskInput{ProjectID: proj.ID, PhaseID: ph.ID, MilestoneID: m.ID, Title: "a"})
	b, _ := dag.CreateTask(ctx, dagengine.CreateTaskInput{ProjectID: proj.ID, PhaseID: ph.ID, MilestoneID: m.ID, Title: "b"})

	require.NoError(t, sched.RecomputeReadiness(ctx, b.ID))
	got, err := st.GetTask(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, task.Ready, got.State)

	_, err = dag.AddEdge(ctx, proj.ID, a.ID, b.ID, edge.UnlockOnImplemented)
	require.NoError(t, err)

	require.NoError(t, sched.RecomputeReadiness(ctx, b.ID))
	got, err = st.GetTask(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, task.Backlog, got.State)
	require.Nil(t, got.ReadySince)
}
