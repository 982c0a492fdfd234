package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tascade-run/tascade/internal/domain/apikey"
	"github.com/tascade-run/tascade/internal/domain/artifact"
	"github.com/tascade-run/tascade/internal/domain/changeset"
	"github.com/tascade-run/tascade/internal/domain/edge"
	"github.com/tascade-run/tascade/internal/domain/gatedecision"
	"github.com/tascade-run/tascade/internal/domain/gaterule"
	"github.com/tascade-run/tascade/internal/domain/task"
	"github.com/tascade-run/tascade/internal/engine"
	"github.com/tascade-run/tascade/pkg/tascadeerr"
)

func submitImplemented(f *fixture, taskID, actorID string) task.Task {
	f.t.Helper()
	agent := f.principal(mustProjectOf(f, taskID), apikey.RoleAgent)
	out, err := f.engine.SubmitImplemented(f.ctx, agent, engine.SubmitImplementedInput{
		TaskID:      taskID,
		ActorID:     actorID,
		Branch:      "feature/" + taskID,
		CommitSHA:   "deadbeef",
		CheckStatus: artifact.CheckPassed,
	}, "")
	require.NoError(f.t, err)
	return out
}

func mustProjectOf(f *fixture, taskID string) string {
	f.t.Helper()
	tk, err := f.engine.Store.GetTask(f.ctx, taskID)
	require.NoError(f.t, err)
	return tk.ProjectID
}

func gateRuleForTaskClass(projectID string, class task.Class) gaterule.Rule {
	return gaterule.Rule{
		ProjectID:        projectID,
		Name:             "backend review",
		ScopeType:        gaterule.ScopeTaskClass,
		TaskClassScope:   class,
		ConditionType:    gaterule.ConditionImplementedBacklog,
		Threshold:        1,
		GateTaskClass:    task.ClassReviewGate,
		RequiredEvidence: []string{"test_report"},
	}
}

// TestReadyOnCreation covers spec.md 4.4: a task with zero incoming edges
// leaves Backlog immediately.
func TestReadyOnCreation(t *testing.T) {
	f := newFixture(t)
	projectID, phaseID, milestoneID, planner := f.seedProject("proj")
	tk := f.createTask(planner, projectID, phaseID, milestoneID, "solo task")
	require.Equal(t, task.Ready, tk.State)
}

// TestDependencyGatesReadiness covers the readiness invariant: a successor
// stays in Backlog until its predecessor reaches the edge's unlock_on state.
func TestDependencyGatesReadiness(t *testing.T) {
	f := newFixture(t)
	projectID, phaseID, milestoneID, planner := f.seedProject("proj")
	upstream := f.createTask(planner, projectID, phaseID, milestoneID, "upstream")
	downstream := f.createTask(planner, projectID, phaseID, milestoneID, "downstream")
	require.Equal(t, task.Ready, downstream.State)

	f.addDependency(planner, projectID, upstream.ID, downstream.ID, edge.UnlockOnImplemented)

	downstream, err := f.engine.GetTask(f.ctx, planner, downstream.ID)
	require.NoError(t, err)
	assert.Equal(t, task.Backlog, downstream.State, "downstream must regress to Backlog once a blocking edge is added")

	agent := f.principal(projectID, apikey.RoleAgent)
	claimed, ok, err := f.engine.Claim(f.ctx, agent, projectID, "agent-1", nil, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, upstream.ID, claimed.Task.ID)

	_, err = f.engine.Start(f.ctx, agent, upstream.ID, "agent-1", "")
	require.NoError(t, err)
	submitImplemented(f, upstream.ID, "agent-1")

	downstream, err = f.engine.GetTask(f.ctx, planner, downstream.ID)
	require.NoError(t, err)
	assert.Equal(t, task.Ready, downstream.State, "downstream must become Ready once upstream reaches Implemented")
}

// TestCycleRejected covers the DAG invariant: no edge may close a cycle.
func TestCycleRejected(t *testing.T) {
	f := newFixture(t)
	projectID, phaseID, milestoneID, planner := f.seedProject("proj")
	a := f.createTask(planner, projectID, phaseID, milestoneID, "a")
	b := f.createTask(planner, projectID, phaseID, milestoneID, "b")
	c := f.createTask(planner, projectID, phaseID, milestoneID, "c")

	f.addDependency(planner, projectID, a.ID, b.ID, edge.UnlockOnImplemented)
	f.addDependency(planner, projectID, b.ID, c.ID, edge.UnlockOnImplemented)

	_, err := f.engine.AddDependency(f.ctx, planner, projectID, c.ID, a.ID, edge.UnlockOnImplemented, "")
	require.Error(t, err)
	assert.True(t, tascadeerr.Is(err, tascadeerr.CycleDetected))

	_, err = f.engine.AddDependency(f.ctx, planner, projectID, a.ID, a.ID, edge.UnlockOnImplemented, "")
	require.Error(t, err)
}

// TestParallelClaim covers spec.md section 8 scenario 1: two agents racing
// for one Ready task, exactly one wins.
func TestParallelClaim(t *testing.T) {
	f := newFixture(t)
	projectID, phaseID, milestoneID, planner := f.seedProject("proj")
	f.createTask(planner, projectID, phaseID, milestoneID, "only task")

	agent := f.principal(projectID, apikey.RoleAgent)
	first, ok1, err := f.engine.Claim(f.ctx, agent, projectID, "agent-1", nil, nil)
	require.NoError(t, err)
	require.True(t, ok1)

	second, ok2, err := f.engine.Claim(f.ctx, agent, projectID, "agent-2", nil, nil)
	require.NoError(t, err)
	assert.False(t, ok2, "a second claim attempt on the same single Ready task must fail to find a candidate")
	assert.Empty(t, second.Task.ID)
	assert.NotEmpty(t, first.Lease.Token)
}

// TestCrossProjectScopeViolation covers spec.md section 8 scenario 2.
func TestCrossProjectScopeViolation(t *testing.T) {
	f := newFixture(t)
	projectA, phaseA, milestoneA, plannerA := f.seedProject("a")
	projectB, _, _, _ := f.seedProject("b")

	tk := f.createTask(plannerA, projectA, phaseA, milestoneA, "a-task")
	cs, err := f.engine.SubmitChangeSet(f.ctx, plannerA, projectA, []changeset.OperationRecord{
		{Kind: changeset.OpReprioritize, TaskID: tk.ID, Priority: 1},
	}, "")
	require.NoError(t, err)

	plannerOnB := f.principal(projectB, apikey.RolePlanner)
	_, err = f.engine.ApplyChangeSet(f.ctx, plannerOnB, cs.ID, "")
	require.Error(t, err)
	assert.True(t, tascadeerr.Is(err, tascadeerr.ProjectScopeViolation))

	reloaded, err := f.engine.GetTask(f.ctx, plannerA, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, tk.Version, reloaded.Version, "no state change on a rejected cross-project apply attempt")
}

// TestMaterialReplanReleasesClaim covers spec.md section 8 scenario 3.
func TestMaterialReplanReleasesClaim(t *testing.T) {
	f := newFixture(t)
	projectID, phaseID, milestoneID, planner := f.seedProject("proj")
	tk := f.createTask(planner, projectID, phaseID, milestoneID, "material target")

	agent := f.principal(projectID, apikey.RoleAgent)
	result, ok, err := f.engine.Claim(f.ctx, agent, projectID, "agent-1", nil, nil)
	require.NoError(t, err)
	require.True(t, ok)
	originalFencing := result.Lease.FencingCounter

	claimed, err := f.engine.GetTask(f.ctx, planner, tk.ID)
	require.NoError(t, err)
	require.Equal(t, task.Claimed, claimed.State)

	cs, err := f.engine.SubmitChangeSet(f.ctx, planner, projectID, []changeset.OperationRecord{
		{Kind: changeset.OpUpdateTask, TaskID: tk.ID, WorkSpecAcceptanceCriteria: []string{"new acceptance criteria"}},
	}, "")
	require.NoError(t, err)
	_, err = f.engine.ApplyChangeSet(f.ctx, planner, cs.ID, "")
	require.NoError(t, err)

	reloaded, err := f.engine.GetTask(f.ctx, planner, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.Ready, reloaded.State, "a material change must release a Claimed task back to Ready")

	_, err = f.engine.Heartbeat(f.ctx, agent, projectID, result.Lease.Token, nil)
	require.Error(t, err, "the stale agent's lease should no longer be active after the material replan")

	second, ok2, err := f.engine.Claim(f.ctx, agent, projectID, "agent-2", nil, nil)
	require.NoError(t, err)
	require.True(t, ok2)
	assert.NotEqual(t, originalFencing, second.Lease.FencingCounter, "a fresh claim after a material replan must carry a new fencing counter")
}

// TestPriorityOnlyReplanPreservesClaim covers spec.md section 8 scenario 4.
func TestPriorityOnlyReplanPreservesClaim(t *testing.T) {
	f := newFixture(t)
	projectID, phaseID, milestoneID, planner := f.seedProject("proj")
	tk := f.createTask(planner, projectID, phaseID, milestoneID, "priority target")

	agent := f.principal(projectID, apikey.RoleAgent)
	result, ok, err := f.engine.Claim(f.ctx, agent, projectID, "agent-1", nil, nil)
	require.NoError(t, err)
	require.True(t, ok)

	cs, err := f.engine.SubmitChangeSet(f.ctx, planner, projectID, []changeset.OperationRecord{
		{Kind: changeset.OpReprioritize, TaskID: tk.ID, Priority: 10},
	}, "")
	require.NoError(t, err)
	_, err = f.engine.ApplyChangeSet(f.ctx, planner, cs.ID, "")
	require.NoError(t, err)

	reloaded, err := f.engine.GetTask(f.ctx, planner, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.Claimed, reloaded.State, "a priority-only change is non-material and must not release the claim")
	assert.Equal(t, 10, reloaded.Priority)

	_, err = f.engine.Heartbeat(f.ctx, agent, projectID, result.Lease.Token, nil)
	assert.NoError(t, err, "heartbeat must still succeed for a claim that survived a non-material replan")
}

// TestGateEnforcement covers spec.md section 8 scenario 5.
func TestGateEnforcement(t *testing.T) {
	f := newFixture(t)
	projectID, phaseID, milestoneID, planner := f.seedProject("proj")
	tk := f.createTask(planner, projectID, phaseID, milestoneID, "gated task")

	_, err := f.engine.Gate.CreateRule(f.ctx, gateRuleForTaskClass(projectID, tk.TaskClass))
	require.NoError(t, err)

	agent := f.principal(projectID, apikey.RoleAgent)
	_, ok, err := f.engine.Claim(f.ctx, agent, projectID, "agent-A", nil, nil)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.engine.Start(f.ctx, agent, tk.ID, "agent-A", "")
	require.NoError(t, err)
	submitImplemented(f, tk.ID, "agent-A")

	_, err = f.engine.RequestIntegrate(f.ctx, agent, engine.RequestIntegrateInput{TaskID: tk.ID, ActorID: "agent-A"}, "")
	require.Error(t, err)
	assert.True(t, tascadeerr.Is(err, tascadeerr.GateEvidenceRequired))

	reviewer := f.principal(projectID, apikey.RoleReviewer)
	checkpoints, err := f.engine.ListCheckpoints(f.ctx, reviewer, projectID)
	require.NoError(t, err)
	require.Len(t, checkpoints, 1)
	rules, err := f.engine.Store.ListGateRulesByProject(f.ctx, projectID)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	_, err = f.engine.RecordDecision(f.ctx, reviewer, engine.RecordGateDecisionInput{
		ProjectID:        projectID,
		CheckpointTaskID: checkpoints[0].TaskID,
		RuleID:           rules[0].ID,
		ActorID:          "reviewer-B",
		Outcome:          gatedecision.OutcomeApproved,
		Reason:           "looks good",
		EvidenceRefs:     map[string]string{"test_report": "link"},
	})
	require.NoError(t, err)

	integrated, err := f.engine.RequestIntegrate(f.ctx, agent, engine.RequestIntegrateInput{TaskID: tk.ID, ActorID: "agent-A"}, "")
	require.NoError(t, err)
	assert.Equal(t, task.Integrated, integrated.State)
}

// TestGateSelfReviewRejected ensures a reviewer cannot approve their own claim.
func TestGateSelfReviewRejected(t *testing.T) {
	f := newFixture(t)
	projectID, phaseID, milestoneID, planner := f.seedProject("proj")
	tk := f.createTask(planner, projectID, phaseID, milestoneID, "self review task")

	_, err := f.engine.Gate.CreateRule(f.ctx, gateRuleForTaskClass(projectID, tk.TaskClass))
	require.NoError(t, err)

	agent := f.principal(projectID, apikey.RoleAgent)
	_, ok, err := f.engine.Claim(f.ctx, agent, projectID, "agent-A", nil, nil)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = f.engine.Start(f.ctx, agent, tk.ID, "agent-A", "")
	require.NoError(t, err)
	submitImplemented(f, tk.ID, "agent-A")

	reviewer := f.principal(projectID, apikey.RoleReviewer)
	checkpoints, err := f.engine.ListCheckpoints(f.ctx, reviewer, projectID)
	require.NoError(t, err)
	require.Len(t, checkpoints, 1)
	rules, err := f.engine.Store.ListGateRulesByProject(f.ctx, projectID)
	require.NoError(t, err)

	_, err = f.engine.RecordDecision(f.ctx, reviewer, engine.RecordGateDecisionInput{
		ProjectID:        projectID,
		CheckpointTaskID: checkpoints[0].TaskID,
		RuleID:           rules[0].ID,
		ActorID:          "agent-A", // same actor as the claimant
		Outcome:          gatedecision.OutcomeApproved,
		Reason:           "self-approving",
		EvidenceRefs:     map[string]string{"test_report": "link"},
	})
	require.NoError(t, err)

	_, err = f.engine.RequestIntegrate(f.ctx, agent, engine.RequestIntegrateInput{TaskID: tk.ID, ActorID: "agent-A"}, "")
	require.Error(t, err)
	assert.True(t, tascadeerr.Is(err, tascadeerr.GateSelfReview))
}

// TestLeaseExpiryRecovery covers spec.md section 8 scenario 6.
func TestLeaseExpiryRecovery(t *testing.T) {
	f := newFixture(t)
	projectID, phaseID, milestoneID, planner := f.seedProject("proj")
	f.createTask(planner, projectID, phaseID, milestoneID, "crash target")

	agent := f.principal(projectID, apikey.RoleAgent)
	first, ok, err := f.engine.Claim(f.ctx, agent, projectID, "agent-1", nil, nil)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := f.engine.Scheduler.SweepExpiredLeases(f.ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "lease has not expired yet")

	expireLease(f, first.Lease.Token)

	n, err = f.engine.Scheduler.SweepExpiredLeases(f.ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	reloaded, err := f.engine.GetTask(f.ctx, planner, first.Task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.Ready, reloaded.State)

	second, ok2, err := f.engine.Claim(f.ctx, agent, projectID, "agent-2", nil, nil)
	require.NoError(t, err)
	require.True(t, ok2)
	assert.NotEqual(t, first.Lease.Token, second.Lease.Token)
	assert.NotEqual(t, first.Lease.FencingCounter, second.Lease.FencingCounter)
}

// TestIdempotentReplay covers spec.md section 8 idempotence: a mutating
// operation replayed with the same correlation id returns the same outcome
// (the same phase ID) instead of creating a second phase.
func TestIdempotentReplay(t *testing.T) {
	f := newFixture(t)
	projectID, _, _, planner := f.seedProject("proj")

	first, err := f.engine.CreatePhase(f.ctx, planner, projectID, "Replayed Phase", "replay-key")
	require.NoError(t, err)
	second, err := f.engine.CreatePhase(f.ctx, planner, projectID, "Replayed Phase", "replay-key")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "replaying with the same correlation id must return the original outcome")
}

// TestAssignExcludesReservedTaskFromGeneralPull covers the reservation
// invariant: reserved tasks are excluded from the pull queue for everyone
// but the assignee.
func TestAssignExcludesReservedTaskFromGeneralPull(t *testing.T) {
	f := newFixture(t)
	projectID, phaseID, milestoneID, planner := f.seedProject("proj")
	tk := f.createTask(planner, projectID, phaseID, milestoneID, "assigned task")

	operator := f.principal(projectID, apikey.RoleOperator)
	_, _, err := f.engine.Assign(f.ctx, operator, projectID, tk.ID, "assignee-agent", 0)
	require.NoError(t, err)

	otherAgent := f.principal(projectID, apikey.RoleAgent)
	_, ok, err := f.engine.Claim(f.ctx, otherAgent, projectID, "some-other-agent", nil, nil)
	require.NoError(t, err)
	assert.False(t, ok, "a reserved task must not be claimable by an agent other than the assignee")

	result, ok, err := f.engine.Claim(f.ctx, otherAgent, projectID, "assignee-agent", nil, nil)
	require.NoError(t, err)
	require.True(t, ok, "the assignee must still be able to claim its reservation")
	assert.Equal(t, tk.ID, result.Task.ID)
}

// TestReplanBarrierPausesClaims covers the replan barrier mode.
func TestReplanBarrierPausesClaims(t *testing.T) {
	f := newFixture(t)
	projectID, phaseID, milestoneID, planner := f.seedProject("proj")
	f.createTask(planner, projectID, phaseID, milestoneID, "barred task")

	operator := f.principal(projectID, apikey.RoleOperator)
	require.NoError(t, f.engine.PauseClaims(f.ctx, operator, projectID))

	agent := f.principal(projectID, apikey.RoleAgent)
	_, _, err := f.engine.Claim(f.ctx, agent, projectID, "agent-1", nil, nil)
	require.Error(t, err)
	assert.True(t, tascadeerr.Is(err, tascadeerr.ClaimsPaused))

	require.NoError(t, f.engine.ResumeClaims(f.ctx, operator, projectID))
	_, ok, err := f.engine.Claim(f.ctx, agent, projectID, "agent-1", nil, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}
