package replan_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tascade-run/tascade/internal/dagengine"
	"github.com/tascade-run/tascade/internal/domain/changeset"
	"github.com/tascade-run/tascade/internal/domain/edge"
	"github.com/tascade-run/tascade/internal/domain/task"
	"github.com/tascade-run/tascade/internal/lifecycle"
	"github.com/tascade-run/tascade/internal/replan"
	"github.com/tascade-run/tascade/internal/scheduler"
	"github.com/tascade-run/tascade/internal/store/memory"
)

type rig struct {
	ctx         context.Context
	st          *memory.Store
	dag         *dagengine.Engine
	sched       *scheduler.Engine
	replan      *replan.Engine
	projectID   string
	milestoneID string
	a, b        string
}

func newRig(t *testing.T) *rig {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	dag := dagengine.New(st)
	sched := scheduler.New(st, lifecycle.NewTable(), nil)
	re := replan.New(st, dag, sched, nil)

	proj, err := dag.CreateProject(ctx, "proj")
	require.NoError(t, err)
	ph, err := dag.CreatePhase(ctx, proj.ID, "ph")
	require.NoError(t, err)
	m, err := dag.CreateMilestone(ctx, ph.ID, "m")
	require.NoError(t, err)
	a, err := dag.CreateTask(ctx, dagengine.CreateTaskInput{ProjectID: proj.ID, PhaseID: ph.ID, MilestoneID: m.ID, Title: "a"})
	require.NoError(t, err)
	b, err := dag.CreateTask(ctx, dagengine.CreateTaskInput{ProjectID: proj.ID, PhaseID: ph.ID, MilestoneID: m.ID, Title: "b"})
	require.NoError(t, err)
	require.NoError(t, sched.RecomputeReadiness(ctx, a.ID))
	require.NoError(t, sched.RecomputeReadiness(ctx, b.ID))

	return &rig{ctx: ctx, st: st, dag: dag, sched: sched, replan: re, projectID: proj.ID, milestoneID: m.ID, a: a.ID, b: b.ID}
}

func TestSubmitChangeSetRejectsEmptyOperations(t *testing.T) {
	r := newRig(t)
	_, err := r.replan.SubmitChangeSet(r.ctx, r.projectID, nil, "planner-1")
	require.Error(t, err)
}

func TestSubmitChangeSetPinsBaseVersion(t *testing.T) {
	r := newRig(t)
	cs, err := r.replan.SubmitChangeSet(r.ctx, r.projectID, []changeset.OperationRecord{
		{Kind: changeset.OpReprioritize, TaskID: r.a, Priority: 1},
	}, "planner-1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, cs.BaseVersion)
	assert.EqualValues(t, 1, cs.TargetVersion)
	assert.Equal(t, changeset.StatusDraft, cs.Status)
}

func TestPreviewComputesGateImplicationsForReviewGateClass(t *testing.T) {
	r := newRig(t)
	gate, err := r.dag.CreateTask(r.ctx, dagengine.CreateTaskInput{
		ProjectID: r.projectID, MilestoneID: r.milestoneID, Title: "gate", TaskClass: task.ClassReviewGate,
	})
	require.NoError(t, err)
	cs, err := r.replan.SubmitChangeSet(r.ctx, r.projectID, []changeset.OperationRecord{
		{Kind: changeset.OpDeprecate, TaskID: gate.ID},
	}, "planner-1")
	require.NoError(t, err)

	previewed, err := r.replan.Preview(r.ctx, cs.ID)
	require.NoError(t, err)
	assert.Equal(t, changeset.StatusValidated, previewed.Status)
	assert.Contains(t, previewed.ImpactPreview.NewlyBlockedTaskIDs, gate.ID)
	assert.NotEmpty(t, previewed.ImpactPreview.GateImplications)
}

func TestApplyRejectsStaleBaseVersion(t *testing.T) {
	r := newRig(t)
	cs, err := r.replan.SubmitChangeSet(r.ctx, r.projectID, []changeset.OperationRecord{
		{Kind: changeset.OpReprioritize, TaskID: r.a, Priority: 2},
	}, "planner-1")
	require.NoError(t, err)

	// A second change set applies first and bumps the plan version out from
	// under the first one.
	other, err := r.replan.SubmitChangeSet(r.ctx, r.projectID, []changeset.OperationRecord{
		{Kind: changeset.OpReprioritize, TaskID: r.b, Priority: 3},
	}, "planner-1")
	require.NoError(t, err)
	_, err = r.replan.Apply(r.ctx, other.ID)
	require.NoError(t, err)

	_, err = r.replan.Apply(r.ctx, cs.ID)
	require.Error(t, err)
}

func TestApplyMaterialChangeInvalidatesClaim(t *testing.T) {
	r := newRig(t)
	claimed, ok, err := r.sched.Claim(r.ctx, r.projectID, "agent-1", nil, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, r.a, claimed.Task.ID)

	cs, err := r.replan.SubmitChangeSet(r.ctx, r.projectID, []changeset.OperationRecord{
		{Kind: changeset.OpUpdateTask, TaskID: r.a, Title: "a changed materially"},
	}, "planner-1")
	require.NoError(t, err)
	_, err = r.replan.Apply(r.ctx, cs.ID)
	require.NoError(t, err)

	got, err := r.st.GetTask(r.ctx, r.a)
	require.NoError(t, err)
	assert.Equal(t, task.Ready, got.State, "material change must release the in-flight claim back to ready")
}

func TestApplyReprioritizeOnlyPreservesClaim(t *testing.T) {
	r := newRig(t)
	claimed, ok, err := r.sched.Claim(r.ctx, r.projectID, "agent-1", nil, nil)
	require.NoError(t, err)
	require.True(t, ok)

	cs, err := r.replan.SubmitChangeSet(r.ctx, r.projectID, []changeset.OperationRecord{
		{Kind: changeset.OpReprioritize, TaskID: claimed.Task.ID, Priority: 9},
	}, "planner-1")
	require.NoError(t, err)
	_, err = r.replan.Apply(r.ctx, cs.ID)
	require.NoError(t, err)

	got, err := r.st.GetTask(r.ctx, claimed.Task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.Claimed, got.State, "priority-only change must not release an in-flight claim")
}

func TestApplyAddEdgeBlocksDependentTask(t *testing.T) {
	r := newRig(t)
	cs, err := r.replan.SubmitChangeSet(r.ctx, r.projectID, []changeset.OperationRecord{
		{Kind: changeset.OpAddEdge, FromTaskID: r.a, ToTaskID: r.b, UnlockOn: string(edge.UnlockOnImplemented)},
	}, "planner-1")
	require.NoError(t, err)
	_, err = r.replan.Apply(r.ctx, cs.ID)
	require.NoError(t, err)

	got, err := r.st.GetTask(r.ctx, r.b)
	require.NoError(t, err)
	assert.Equal(t, task.Backlog, got.State, "b must regress to backlog once it gains an unsatisfied incoming edge")
}

func TestRejectIsIdempotentAndBlocksFurtherApply(t *testing.T) {
	r := newRig(t)
	cs, err := r.replan.SubmitChangeSet(r.ctx, r.projectID, []changeset.OperationRecord{
		{Kind: changeset.OpReprioritize, TaskID: r.a, Priority: 5},
	}, "planner-1")
	require.NoError(t, err)

	rejected, err := r.replan.Reject(r.ctx, cs.ID, "no longer needed")
	require.NoError(t, err)
	assert.Equal(t, changeset.StatusRejected, rejected.Status)

	again, err := r.replan.Reject(r.ctx, cs.ID, "no longer needed")
	require.NoError(t, err)
	assert.Equal(t, changeset.StatusRejected, again.Status)

	_, err = r.replan.Apply(r.ctx, cs.ID)
	require.Error(t, err)
}

func TestPauseAndResumeClaims(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.replan.PauseClaims(r.ctx, r.projectID))
	_, _, err := r.sched.Claim(r.ctx, r.projectID, "agent-1", nil, nil)
	require.Error(t, err)

	require.NoError(t, r.replan.ResumeClaims(r.ctx, r.projectID))
	_, ok, err := r.sched.Claim(r.ctx, r.projectID, "agent-1", nil, nil)
	require.NoError(t, err)
	require.True(t, ok)
}
