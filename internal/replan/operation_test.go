package replan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tascade-run/tascade/internal/dagengine"
	"github.com/tascade-run/tascade/internal/domain/changeset"
	"github.com/tascade-run/tascade/internal/domain/edge"
	"github.com/tascade-run/tascade/internal/store/memory"
)

func seedTwoTasks(t *testing.T) (dag *dagengine.Engine, st *memory.Store, projectID, milestoneID, a, b string) {
	t.Helper()
	ctx := context.Background()
	st = memory.New()
	dag = dagengine.New(st)
	proj, err := dag.CreateProject(ctx, "proj")
	require.NoError(t, err)
	ph, err := dag.CreatePhase(ctx, proj.ID, "ph")
	require.NoError(t, err)
	m, err := dag.CreateMilestone(ctx, ph.ID, "m")
	require.NoError(t, err)
	ta, err := dag.CreateTask(ctx, dagengine.CreateTaskInput{ProjectID: proj.ID, PhaseID: ph.ID, MilestoneID: m.ID, Title: "a"})
	require.NoError(t, err)
	tb, err := dag.CreateTask(ctx, dagengine.CreateTaskInput{ProjectID: proj.ID, PhaseID: ph.ID, MilestoneID: m.ID, Title: "b"})
	require.NoError(t, err)
	return dag, st, proj.ID, m.ID, ta.ID, tb.ID
}

func TestDecodeUnknownKindErrors(t *testing.T) {
	_, err := Decode(changeset.OperationRecord{Kind: "bogus"})
	require.Error(t, err)
}

func TestDecodeRoundTripsAllKinds(t *testing.T) {
	kinds := []changeset.OperationKind{
		changeset.OpAddTask, changeset.OpRemoveTask, changeset.OpUpdateTask,
		changeset.OpAddEdge, changeset.OpRemoveEdge, changeset.OpReprioritize,
		changeset.OpPostpone, changeset.OpDeprecate,
	}
	for _, k := range kinds {
		op, err := Decode(changeset.OperationRecord{Kind: k})
		require.NoError(t, err, k)
		assert.Equal(t, k, op.Kind())
	}
}

func TestAddTaskValidateRequiresMilestone(t *testing.T) {
	_, st, projectID, _, _, _ := seedTwoTasks(t)
	op, err := Decode(changeset.OperationRecord{Kind: changeset.OpAddTask, Title: "new"})
	require.NoError(t, err)
	err = op.Validate(context.Background(), st, projectID)
	require.Error(t, err)
}

func TestAddTaskValidateRejectsMilestoneFromOtherProject(t *testing.T) {
	_, st, _, milestoneID, _, _ := seedTwoTasks(t)
	op, err := Decode(changeset.OperationRecord{Kind: changeset.OpAddTask, Title: "new", MilestoneID: milestoneID})
	require.NoError(t, err)
	err = op.Validate(context.Background(), st, "some-other-project")
	require.Error(t, err)
}

func TestAddTaskApplyCreatesTask(t *testing.T) {
	dag, st, projectID, milestoneID, _, _ := seedTwoTasks(t)
	op, err := Decode(changeset.OperationRecord{Kind: changeset.OpAddTask, Title: "new task", MilestoneID: milestoneID})
	require.NoError(t, err)
	require.NoError(t, op.Validate(context.Background(), st, projectID))
	require.NoError(t, op.Apply(context.Background(), dag, st, projectID, 2))
	assert.Empty(t, op.AffectedTaskIDs())
}

func TestUpdateTaskApplySetsMaterialPlanVersion(t *testing.T) {
	dag, st, projectID, _, a, _ := seedTwoTasks(t)
	op, err := Decode(changeset.OperationRecord{Kind: changeset.OpUpdateTask, TaskID: a, Title: "renamed"})
	require.NoError(t, err)
	require.NoError(t, op.Validate(context.Background(), st, projectID))
	require.NoError(t, op.Apply(context.Background(), dag, st, projectID, 7))

	got, err := st.GetTask(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.EqualValues(t, 7, got.MaterialPlanVersion)
	assert.Equal(t, []string{a}, op.AffectedTaskIDs())
}

func TestReprioritizeIsNeverMaterial(t *testing.T) {
	dag, st, projectID, _, a, _ := seedTwoTasks(t)
	op, err := Decode(changeset.OperationRecord{Kind: changeset.OpReprioritize, TaskID: a, Priority: 1})
	require.NoError(t, err)
	require.NoError(t, op.Validate(context.Background(), st, projectID))
	require.NoError(t, op.Apply(context.Background(), dag, st, projectID, 3))

	got, err := st.GetTask(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Priority)
	assert.EqualValues(t, 0, got.MaterialPlanVersion, "reprioritize must not bump MaterialPlanVersion")
	assert.Empty(t, op.AffectedTaskIDs())
}

func TestPostponeLeavesWorkSpecUntouched(t *testing.T) {
	dag, st, projectID, _, a, _ := seedTwoTasks(t)
	before, err := st.GetTask(context.Background(), a)
	require.NoError(t, err)

	op, err := Decode(changeset.OperationRecord{Kind: changeset.OpPostpone, TaskID: a, Reason: "waiting on design review"})
	require.NoError(t, err)
	require.NoError(t, op.Validate(context.Background(), st, projectID))
	require.NoError(t, op.Apply(context.Background(), dag, st, projectID, 3))

	after, err := st.GetTask(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, before.WorkSpec, after.WorkSpec, "postpone must never mutate work_spec")
	assert.Equal(t, before.Version, after.Version, "postpone must never bump the task row")
	assert.EqualValues(t, 0, after.MaterialPlanVersion)
	assert.Empty(t, op.AffectedTaskIDs())
}

func TestAddEdgeValidateRejectsCycle(t *testing.T) {
	dag, st, projectID, _, a, b := seedTwoTasks(t)
	_, err := dag.AddEdge(context.Background(), projectID, a, b, edge.UnlockOnImplemented)
	require.NoError(t, err)

	op, err := Decode(changeset.OperationRecord{Kind: changeset.OpAddEdge, FromTaskID: b, ToTaskID: a, UnlockOn: string(edge.UnlockOnImplemented)})
	require.NoError(t, err)
	err = op.Validate(context.Background(), st, projectID)
	require.Error(t, err)
}

func TestAddEdgeValidateRejectsSelfLoop(t *testing.T) {
	_, st, projectID, _, a, _ := seedTwoTasks(t)
	op, err := Decode(changeset.OperationRecord{Kind: changeset.OpAddEdge, FromTaskID: a, ToTaskID: a, UnlockOn: string(edge.UnlockOnImplemented)})
	require.NoError(t, err)
	err = op.Validate(context.Background(), st, projectID)
	require.Error(t, err)
}

func TestRemoveEdgeValidateRequiresExistingEdge(t *testing.T) {
	_, st, projectID, _, a, b := seedTwoTasks(t)
	op, err := Decode(changeset.OperationRecord{Kind: changeset.OpRemoveEdge, FromTaskID: a, ToTaskID: b})
	require.NoError(t, err)
	err = op.Validate(context.Background(), st, projectID)
	require.Error(t, err)
}

func TestDeprecateApplySetsDeprecatedInPlanVersion(t *testing.T) {
	dag, st, projectID, _, a, _ := seedTwoTasks(t)
	op, err := Decode(changeset.OperationRecord{Kind: changeset.OpDeprecate, TaskID: a})
	require.NoError(t, err)
	require.NoError(t, op.Apply(context.Background(), dag, st, projectID, 9))

	got, err := st.GetTask(context.Background(), a)
	require.NoError(t, err)
	require.NotNil(t, got.DeprecatedInPlanVersion)
	assert.EqualValues(t, 9, *got.DeprecatedInPlanVersion)
}
