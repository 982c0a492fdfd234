// Package replan implements C5: plan change sets, impact preview, atomic
// apply under the project plan-version lock, and material-change claim
// invalidation.
package replan

import (
	"context"

	"github.com/tascade-run/tascade/internal/dagengine"
	"github.com/tascade-run/tascade/internal/domain/changeset"
	"github.com/tascade-run/tascade/internal/domain/edge"
	"github.com/tascade-run/tascade/internal/domain/task"
	"github.com/tascade-run/tascade/internal/store"
	"github.com/tascade-run/tascade/pkg/tascadeerr"
)

// Operation is one mutation within a change set. Each OperationKind has a
// concrete type implementing it; Decode builds the right one from its
// persisted OperationRecord.
type Operation interface {
	Kind() changeset.OperationKind
	// Validate checks the operation is well-formed and legal against the
	// current store state, without mutating it.
	Validate(ctx context.Context, s store.Store, projectID string) error
	// Apply performs the mutation against s, which the caller has already
	// locked for the duration of the whole change set.
	Apply(ctx context.Context, dag *dagengine.Engine, s store.Store, projectID string, planVersion int64) error
	// AffectedTaskIDs returns the task ids whose execution semantics this
	// operation may affect, for material-change classification.
	AffectedTaskIDs() []string
}

// Decode builds the typed Operation for a persisted OperationRecord.
func Decode(r changeset.OperationRecord) (Operation, error) {
	switch r.Kind {
	case changeset.OpAddTask:
		return &addTask{r: r}, nil
	case changeset.OpRemoveTask:
		return removeTask{r}, nil
	case changeset.OpUpdateTask:
		return updateTask{r}, nil
	case changeset.OpAddEdge:
		return addEdge{r}, nil
	case changeset.OpRemoveEdge:
		return removeEdge{r}, nil
	case changeset.OpReprioritize:
		return reprioritize{r}, nil
	case changeset.OpPostpone:
		return postpone{r}, nil
	case changeset.OpDeprecate:
		return deprecate{r}, nil
	default:
		return nil, tascadeerr.InvalidArgumentf("kind", "unknown operation kind")
	}
}

// --- add_task ---

type addTask struct {
	r         changeset.OperationRecord
	createdID string
}

func (o *addTask) Kind() changeset.OperationKind { return changeset.OpAddTask }

func (o *addTask) Validate(ctx context.Context, s store.Store, projectID string) error {
	if o.r.Title == "" {
		return tascadeerr.InvalidArgumentf("title", "must not be empty")
	}
	if o.r.MilestoneID == "" {
		return tascadeerr.InvalidArgumentf("milestone_id", "add_task requires a milestone")
	}
	m, err := s.GetMilestone(ctx, o.r.MilestoneID)
	if err != nil {
		return err
	}
	if m.ProjectID != projectID {
		return tascadeerr.InvalidArgumentf("milestone_id", "milestone belongs to a different project")
	}
	return nil
}

func (o *addTask) Apply(ctx context.Context, dag *dagengine.Engine, s store.Store, projectID string, planVersion int64) error {
	class := task.Class(o.r.TaskClass)
	created, err := dag.CreateTask(ctx, dagengine.CreateTaskInput{
		ProjectID:       projectID,
		PhaseID:         o.r.PhaseID,
		MilestoneID:     o.r.MilestoneID,
		Title:           o.r.Title,
		Description:     o.r.Description,
		Priority:        o.r.Priority,
		TaskClass:       class,
		CapabilityTags:  o.r.CapabilityTags,
		ExpectedTouches: o.r.ExpectedTouches,
		ExclusivePaths:  o.r.ExclusivePaths,
		SharedPaths:     o.r.SharedPaths,
		WorkSpec: task.WorkSpec{
			Objective:          o.r.WorkSpecObjective,
			Constraints:        o.r.WorkSpecConstraints,
			AcceptanceCriteria: o.r.WorkSpecAcceptanceCriteria,
			Interfaces:         o.r.WorkSpecInterfaces,
			PathHints:          o.r.WorkSpecPathHints,
		},
		PlanVersion: planVersion,
	})
	if err != nil {
		return err
	}
	o.createdID = created.ID
	return nil
}

func (o *addTask) AffectedTaskIDs() []string { return nil } // the new task has no pre-apply snapshot

// --- remove_task (soft: deprecate in place, see design note in deprecate) ---

type removeTask struct{ r changeset.OperationRecord }

func (o removeTask) Kind() changeset.OperationKind { return changeset.OpRemoveTask }

func (o removeTask) Validate(ctx context.Context, s store.Store, projectID string) error {
	return requireTaskInProject(ctx, s, projectID, o.r.TaskID)
}

func (o removeTask) Apply(ctx context.Context, dag *dagengine.Engine, s store.Store, projectID string, planVersion int64) error {
	t, err := s.GetTask(ctx, o.r.TaskID)
	if err != nil {
		return err
	}
	v := planVersion
	t.DeprecatedInPlanVersion = &v
	t.Version++
	_, err = s.UpdateTask(ctx, t)
	return err
}

func (o removeTask) AffectedTaskIDs() []string { return []string{o.r.TaskID} }

// --- update_task ---

type updateTask struct{ r changeset.OperationRecord }

func (o updateTask) Kind() changeset.OperationKind { return changeset.OpUpdateTask }

func (o updateTask) Validate(ctx context.Context, s store.Store, projectID string) error {
	return requireTaskInProject(ctx, s, projectID, o.r.TaskID)
}

func (o updateTask) Apply(ctx context.Context, dag *dagengine.Engine, s store.Store, projectID string, planVersion int64) error {
	t, err := s.GetTask(ctx, o.r.TaskID)
	if err != nil {
		return err
	}
	if o.r.Title != "" {
		t.Title = o.r.Title
	}
	if o.r.Description != "" {
		t.Description = o.r.Description
	}
	if o.r.TaskClass != "" {
		t.TaskClass = task.Class(o.r.TaskClass)
	}
	if o.r.CapabilityTags != nil {
		t.CapabilityTags = o.r.CapabilityTags
	}
	if o.r.ExpectedTouches != nil {
		t.ExpectedTouches = o.r.ExpectedTouches
	}
	if o.r.ExclusivePaths != nil {
		t.ExclusivePaths = o.r.ExclusivePaths
	}
	if o.r.SharedPaths != nil {
		t.SharedPaths = o.r.SharedPaths
	}
	if o.r.WorkSpecObjective != "" {
		t.WorkSpec.Objective = o.r.WorkSpecObjective
	}
	if o.r.WorkSpecConstraints != nil {
		t.WorkSpec.Constraints = o.r.WorkSpecConstraints
	}
	if o.r.WorkSpecAcceptanceCriteria != nil {
		t.WorkSpec.AcceptanceCriteria = o.r.WorkSpecAcceptanceCriteria
	}
	if o.r.WorkSpecInterfaces != nil {
		t.WorkSpec.Interfaces = o.r.WorkSpecInterfaces
	}
	if o.r.WorkSpecPathHints != nil {
		t.WorkSpec.PathHints = o.r.WorkSpecPathHints
	}
	t.MaterialPlanVersion = planVersion
	t.Version++
	_, err = s.UpdateTask(ctx, t)
	return err
}

func (o updateTask) AffectedTaskIDs() []string { return []string{o.r.TaskID} }

// --- add_edge ---

type addEdge struct{ r changeset.OperationRecord }

func (o addEdge) Kind() changeset.OperationKind { return changeset.OpAddEdge }

func (o addEdge) Validate(ctx context.Context, s store.Store, projectID string) error {
	if err := requireTaskInProject(ctx, s, projectID, o.r.FromTaskID); err != nil {
		return err
	}
	if err := requireTaskInProject(ctx, s, projectID, o.r.ToTaskID); err != nil {
		return err
	}
	if o.r.FromTaskID == o.r.ToTaskID {
		return tascadeerr.InvalidArgumentf("to_task_id", "self-loops are not allowed")
	}
	would, err := s.WouldCycle(ctx, projectID, o.r.FromTaskID, o.r.ToTaskID)
	if err != nil {
		return err
	}
	if would {
		return tascadeerr.CycleDetectedErr([]string{o.r.FromTaskID, o.r.ToTaskID})
	}
	return nil
}

func (o addEdge) Apply(ctx context.Context, dag *dagengine.Engine, s store.Store, projectID string, planVersion int64) error {
	unlockOn := edge.UnlockOn(o.r.UnlockOn)
	_, err := dag.AddEdge(ctx, projectID, o.r.FromTaskID, o.r.ToTaskID, unlockOn)
	return err
}

func (o addEdge) AffectedTaskIDs() []string { return []string{o.r.ToTaskID} }

// --- remove_edge ---

type removeEdge struct{ r changeset.OperationRecord }

func (o removeEdge) Kind() changeset.OperationKind { return changeset.OpRemoveEdge }

func (o removeEdge) Validate(ctx context.Context, s store.Store, projectID string) error {
	_, err := s.GetEdge(ctx, projectID, o.r.FromTaskID, o.r.ToTaskID)
	return err
}

func (o removeEdge) Apply(ctx context.Context, dag *dagengine.Engine, s store.Store, projectID string, planVersion int64) error {
	return dag.RemoveEdge(ctx, projectID, o.r.FromTaskID, o.r.ToTaskID)
}

func (o removeEdge) AffectedTaskIDs() []string { return []string{o.r.ToTaskID} }

// --- reprioritize (non-material: priority only, per spec.md section 4.5) ---

type reprioritize struct{ r changeset.OperationRecord }

func (o reprioritize) Kind() changeset.OperationKind { return changeset.OpReprioritize }

func (o reprioritize) Validate(ctx context.Context, s store.Store, projectID string) error {
	return requireTaskInProject(ctx, s, projectID, o.r.TaskID)
}

func (o reprioritize) Apply(ctx context.Context, dag *dagengine.Engine, s store.Store, projectID string, planVersion int64) error {
	t, err := s.GetTask(ctx, o.r.TaskID)
	if err != nil {
		return err
	}
	t.Priority = o.r.Priority
	t.Version++
	_, err = s.UpdateTask(ctx, t)
	return err
}

func (o reprioritize) AffectedTaskIDs() []string { return nil } // priority-only: never material

// --- postpone (informational: records Reason, no structural change) ---

type postpone struct{ r changeset.OperationRecord }

func (o postpone) Kind() changeset.OperationKind { return changeset.OpPostpone }

func (o postpone) Validate(ctx context.Context, s store.Store, projectID string) error {
	return requireTaskInProject(ctx, s, projectID, o.r.TaskID)
}

// Apply is a no-op against the task row: a postpone carries only a
// ready-blocking Reason for the audit trail (see the
// changeset.operation_applied event in replan.Engine.Apply), never a
// work_spec mutation, so it cannot be material per spec.md section 4.5.
func (o postpone) Apply(ctx context.Context, dag *dagengine.Engine, s store.Store, projectID string, planVersion int64) error {
	_, err := s.GetTask(ctx, o.r.TaskID)
	return err
}

func (o postpone) AffectedTaskIDs() []string { return nil } // informational only: never material

// --- deprecate (hard: task is retired, same effect as removeTask) ---

type deprecate struct{ r changeset.OperationRecord }

func (o deprecate) Kind() changeset.OperationKind { return changeset.OpDeprecate }

func (o deprecate) Validate(ctx context.Context, s store.Store, projectID string) error {
	return requireTaskInProject(ctx, s, projectID, o.r.TaskID)
}

func (o deprecate) Apply(ctx context.Context, dag *dagengine.Engine, s store.Store, projectID string, planVersion int64) error {
	t, err := s.GetTask(ctx, o.r.TaskID)
	if err != nil {
		return err
	}
	v := planVersion
	t.DeprecatedInPlanVersion = &v
	t.Version++
	_, err = s.UpdateTask(ctx, t)
	return err
}

func (o deprecate) AffectedTaskIDs() []string { return []string{o.r.TaskID} }

func requireTaskInProject(ctx context.Context, s store.Store, projectID, taskID string) error {
	t, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.ProjectID != projectID {
		return tascadeerr.DependencyProjectMismatchErr(taskID, projectID)
	}
	return nil
}
