package gateengine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tascade-run/tascade/internal/dagengine"
	"github.com/tascade-run/tascade/internal/domain/gatedecision"
	"github.com/tascade-run/tascade/internal/domain/gaterule"
	"github.com/tascade-run/tascade/internal/domain/task"
	"github.com/tascade-run/tascade/internal/gateengine"
	"github.com/tascade-run/tascade/internal/store/memory"
	"github.com/tascade-run/tascade/pkg/tascadeerr"
)

func seedImplementedTask(t *testing.T, ctx context.Context, dag *dagengine.Engine, st *memory.Store, class task.Class) task.Task {
	t.Helper()
	proj, err := dag.CreateProject(ctx, "proj")
	require.NoError(t, err)
	ph, err := dag.CreatePhase(ctx, proj.ID, "ph")
	require.NoError(t, err)
	m, err := dag.CreateMilestone(ctx, ph.ID, "m")
	require.NoError(t, err)
	tk, err := dag.CreateTask(ctx, dagengine.CreateTaskInput{ProjectID: proj.ID, PhaseID: ph.ID, MilestoneID: m.ID, Title: "t", TaskClass: class})
	require.NoError(t, err)
	tk.State = task.Implemented
	tk.ClaimedBy = "agent-1"
	updated, err := st.UpdateTask(ctx, tk)
	require.NoError(t, err)
	return updated
}

func TestEvaluateProjectSynthesizesCheckpointOnThreshold(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	dag := dagengine.New(st)
	gate := gateengine.New(st, dag, nil)

	tk := seedImplementedTask(t, ctx, dag, st, task.ClassBackend)
	_, err := gate.CreateRule(ctx, gaterule.Rule{
		ProjectID:        tk.ProjectID,
		Name:             "review backend",
		ScopeType:        gaterule.ScopeTaskClass,
		TaskClassScope:   task.ClassBackend,
		ConditionType:    gaterule.ConditionImplementedBacklog,
		Threshold:        1,
		GateTaskClass:    task.ClassReviewGate,
		RequiredEvidence: []string{"test_report"},
	})
	require.NoError(t, err)

	require.NoError(t, gate.EvaluateProject(ctx, tk.ProjectID))

	checkpoints, err := gate.ListCheckpoints(ctx, tk.ProjectID)
	require.NoError(t, err)
	require.Len(t, checkpoints, 1)
	assert.Equal(t, 1, checkpoints[0].ReadyCandidates, "an Implemented candidate counts toward ready")
}

func TestEvaluateProjectDoesNotDuplicateOpenCheckpoint(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	dag := dagengine.New(st)
	gate := gateengine.New(st, dag, nil)

	tk := seedImplementedTask(t, ctx, dag, st, task.ClassBackend)
	_, err := gate.CreateRule(ctx, gaterule.Rule{
		ProjectID: tk.ProjectID, Name: "review backend", ScopeType: gaterule.ScopeTaskClass,
		TaskClassScope: task.ClassBackend, ConditionType: gaterule.ConditionImplementedBacklog, Threshold: 1,
	})
	require.NoError(t, err)

	require.NoError(t, gate.EvaluateProject(ctx, tk.ProjectID))
	require.NoError(t, gate.EvaluateProject(ctx, tk.ProjectID))

	checkpoints, err := gate.ListCheckpoints(ctx, tk.ProjectID)
	require.NoError(t, err)
	assert.Len(t, checkpoints, 1, "a second evaluation must not open a duplicate checkpoint for the same scope")
}

func TestEnforceIntegrationRequiresEvidenceWhenRuleApplies(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	dag := dagengine.New(st)
	gate := gateengine.New(st, dag, nil)

	tk := seedImplementedTask(t, ctx, dag, st, task.ClassBackend)
	_, err := gate.CreateRule(ctx, gaterule.Rule{
		ProjectID: tk.ProjectID, Name: "review backend", ScopeType: gaterule.ScopeTaskClass,
		TaskClassScope: task.ClassBackend, ConditionType: gaterule.ConditionImplementedBacklog, Threshold: 1,
		RequiredEvidence: []string{"test_report"},
	})
	require.NoError(t, err)

	err = gate.EnforceIntegration(ctx, tk, false, "")
	require.Error(t, err)
	assert.True(t, tascadeerr.Is(err, tascadeerr.GateEvidenceRequired))
}

func TestEnforceIntegrationPassesWithApprovingDecisionAndEvidence(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	dag := dagengine.New(st)
	gate := gateengine.New(st, dag, nil)

	tk := seedImplementedTask(t, ctx, dag, st, task.ClassBackend)
	rule, err := gate.CreateRule(ctx, gaterule.Rule{
		ProjectID: tk.ProjectID, Name: "review backend", ScopeType: gaterule.ScopeTaskClass,
		TaskClassScope: task.ClassBackend, ConditionType: gaterule.ConditionImplementedBacklog, Threshold: 1,
		RequiredEvidence: []string{"test_report"},
	})
	require.NoError(t, err)
	require.NoError(t, gate.EvaluateProject(ctx, tk.ProjectID))

	checkpoints, err := gate.ListCheckpoints(ctx, tk.ProjectID)
	require.NoError(t, err)
	require.Len(t, checkpoints, 1)

	_, err = gate.RecordDecision(ctx, checkpoints[0].TaskID, rule.ID, "reviewer-1", gatedecision.OutcomeApproved, "looks good",
		map[string]string{"test_report": "link"}, false)
	require.NoError(t, err)

	require.NoError(t, gate.EnforceIntegration(ctx, tk, false, ""))
}

func TestEnforceIntegrationRejectsSelfReview(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	dag := dagengine.New(st)
	gate := gateengine.New(st, dag, nil)

	tk := seedImplementedTask(t, ctx, dag, st, task.ClassBackend)
	rule, err := gate.CreateRule(ctx, gaterule.Rule{
		ProjectID: tk.ProjectID, Name: "review backend", ScopeType: gaterule.ScopeTaskClass,
		TaskClassScope: task.ClassBackend, ConditionType: gaterule.ConditionImplementedBacklog, Threshold: 1,
	})
	require.NoError(t, err)
	require.NoError(t, gate.EvaluateProject(ctx, tk.ProjectID))

	checkpoints, err := gate.ListCheckpoints(ctx, tk.ProjectID)
	require.NoError(t, err)
	require.Len(t, checkpoints, 1)

	_, err = gate.RecordDecision(ctx, checkpoints[0].TaskID, rule.ID, tk.ClaimedBy, gatedecision.OutcomeApproved, "", nil, false)
	require.NoError(t, err)

	err = gate.EnforceIntegration(ctx, tk, false, "")
	require.Error(t, err)
	assert.True(t, tascadeerr.Is(err, tascadeerr.GateSelfReview))
}

func TestEnforceIntegrationForceRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	dag := dagengine.New(st)
	gate := gateengine.New(st, dag, nil)

	tk := seedImplementedTask(t, ctx, dag, st, task.ClassBackend)
	_, err := gate.CreateRule(ctx, gaterule.Rule{
		ProjectID: tk.ProjectID, Name: "review backend", ScopeType: gaterule.ScopeTaskClass,
		TaskClassScope: task.ClassBackend, ConditionType: gaterule.ConditionImplementedBacklog, Threshold: 1,
	})
	require.NoError(t, err)

	err = gate.EnforceIntegration(ctx, tk, false, "backfilling")
	require.Error(t, err)
	assert.True(t, tascadeerr.Is(err, tascadeerr.GateForceRequiresAdmin))

	require.NoError(t, gate.EnforceIntegration(ctx, tk, true, "backfilling"))
}

func TestEnforceIntegrationSkipsWhenNoRuleApplies(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	dag := dagengine.New(st)
	gate := gateengine.New(st, dag, nil)

	tk := seedImplementedTask(t, ctx, dag, st, task.ClassFrontend)
	require.NoError(t, gate.EnforceIntegration(ctx, tk, false, ""))
}
