// Package dagengine implements C2: persistent project/phase/milestone/task/
// edge storage with cycle and cross-project invariants, short-id generation,
// and bounded ancestor/dependent context retrieval.
package dagengine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tascade-run/tascade/internal/domain/edge"
	"github.com/tascade-run/tascade/internal/domain/milestone"
	"github.com/tascade-run/tascade/internal/domain/phase"
	"github.com/tascade-run/tascade/internal/domain/project"
	"github.com/tascade-run/tascade/internal/domain/task"
	"github.com/tascade-run/tascade/internal/store"
	"github.com/tascade-run/tascade/pkg/tascadeerr"
)

// Default and max bounded-context depths per spec.md section 4.2/6.
const (
	DefaultAncestorDepth  = 2
	DefaultDependentDepth = 1
	MaxContextDepth       = 5
)

// Engine implements C2's operations against a store.Store.
type Engine struct {
	Store store.Store
}

// New wires a dagengine.Engine onto the given store.
func New(s store.Store) *Engine { return &Engine{Store: s} }

// CreateProject creates a new project. Bootstrap/admin-only per spec.md
// section 4.7; authorization is enforced by the caller (internal/engine).
func (e *Engine) CreateProject(ctx context.Context, name string) (project.Project, error) {
	if name == "" {
		return project.Project{}, tascadeerr.InvalidArgumentf("name", "must not be empty")
	}
	return e.Store.CreateProject(ctx, project.Project{Name: name, Status: project.StatusActive})
}

// CreatePhase creates a phase with the next sequence number in the project
// and derives its short id ("P<n>").
func (e *Engine) CreatePhase(ctx context.Context, projectID, name string) (phase.Phase, error) {
	if _, err := e.Store.GetProject(ctx, projectID); err != nil {
		return phase.Phase{}, err
	}
	seq, err := e.Store.NextPhaseSequence(ctx, projectID)
	if err != nil {
		return phase.Phase{}, err
	}
	p := phase.Phase{
		ProjectID: projectID,
		Name:      name,
		Sequence:  seq,
		ShortID:   fmt.Sprintf("P%d", seq),
	}
	return e.Store.CreatePhase(ctx, p)
}

// CreateMilestone creates a milestone under a phase and derives its short
// id ("P<n>.M<m>").
func (e *Engine) CreateMilestone(ctx context.Context, phaseID, name string) (milestone.Milestone, error) {
	ph, err := e.Store.GetPhase(ctx, phaseID)
	if err != nil {
		return milestone.Milestone{}, err
	}
	seq, err := e.Store.NextMilestoneSequence(ctx, phaseID)
	if err != nil {
		return milestone.Milestone{}, err
	}
	m := milestone.Milestone{
		ProjectID: ph.ProjectID,
		PhaseID:   phaseID,
		Name:      name,
		Sequence:  seq,
		ShortID:   fmt.Sprintf("%s.M%d", ph.ShortID, seq),
	}
	return e.Store.CreateMilestone(ctx, m)
}

// CreateTaskInput carries the creatable fields of a task.
type CreateTaskInput struct {
	ProjectID       string
	PhaseID         string
	MilestoneID     string
	Title           string
	Description     string
	Priority        int
	TaskClass       task.Class
	CapabilityTags  []string
	ExpectedTouches []string
	ExclusivePaths  []string
	SharedPaths     []string
	WorkSpec        task.WorkSpec
	PlanVersion     int64 // IntroducedInPlanVersion; 0 for bootstrap creation
}

// CreateTask creates a task within a milestone, deriving its short id
// ("P.M.T<k>") and starting it in Backlog.
func (e *Engine) CreateTask(ctx context.Context, in CreateTaskInput) (task.Task, error) {
	if in.Title == "" {
		return task.Task{}, tascadeerr.InvalidArgumentf("title", "must not be empty")
	}
	if in.MilestoneID == "" {
		return task.Task{}, tascadeerr.InvalidArgumentf("milestone_id", "task must belong to a milestone")
	}
	m, err := e.Store.GetMilestone(ctx, in.MilestoneID)
	if err != nil {
		return task.Task{}, err
	}
	if m.ProjectID != in.ProjectID {
		return task.Task{}, tascadeerr.InvalidArgumentf("milestone_id", "milestone belongs to a different project")
	}
	seq, err := e.Store.NextTaskSequence(ctx, in.MilestoneID)
	if err != nil {
		return task.Task{}, err
	}
	if in.TaskClass == "" {
		in.TaskClass = task.ClassOther
	}
	t := task.Task{
		ProjectID:               in.ProjectID,
		PhaseID:                 in.PhaseID,
		MilestoneID:             in.MilestoneID,
		ShortID:                 fmt.Sprintf("%s.T%d", m.ShortID, seq),
		Title:                   in.Title,
		Description:             in.Description,
		Priority:                in.Priority,
		TaskClass:               in.TaskClass,
		CapabilityTags:          in.CapabilityTags,
		ExpectedTouches:         in.ExpectedTouches,
		ExclusivePaths:          in.ExclusivePaths,
		SharedPaths:             in.SharedPaths,
		WorkSpec:                in.WorkSpec,
		State:                   task.Backlog,
		Version:                 1,
		IntroducedInPlanVersion: in.PlanVersion,
	}
	return e.Store.CreateTask(ctx, t)
}

// AddEdge adds a dependency edge, enforcing same-project endpoints, no
// self-loops, and no cycles. Uniqueness on (project, from, to) is handled
// idempotently by the store (a duplicate add returns the existing edge).
func (e *Engine) AddEdge(ctx context.Context, projectID, fromTaskID, toTaskID string, unlockOn edge.UnlockOn) (edge.Edge, error) {
	if unlockOn == "" {
		unlockOn = edge.UnlockOnImplemented
	}
	return e.Store.AddEdge(ctx, edge.Edge{
		ProjectID: projectID,
		FromTask:  fromTaskID,
		ToTask:    toTaskID,
		UnlockOn:  unlockOn,
	})
}

// RemoveEdge removes a dependency edge.
func (e *Engine) RemoveEdge(ctx context.Context, projectID, fromTaskID, toTaskID string) error {
	return e.Store.RemoveEdge(ctx, projectID, fromTaskID, toTaskID)
}

// ProjectGraph is the full set of tasks and edges in a project, as read by
// ReadProjectGraph.
type ProjectGraph struct {
	Tasks []task.Task
	Edges []edge.Edge
}

// ReadProjectGraph returns every task and edge in a project.
func (e *Engine) ReadProjectGraph(ctx context.Context, projectID string) (ProjectGraph, error) {
	tasks, err := e.Store.ListTasks(ctx, store.TaskFilter{ProjectID: projectID})
	if err != nil {
		return ProjectGraph{}, err
	}
	edges, err := e.Store.ListEdgesByProject(ctx, projectID)
	if err != nil {
		return ProjectGraph{}, err
	}
	return ProjectGraph{Tasks: tasks, Edges: edges}, nil
}

// ContextSubgraph is the bounded ancestor/dependent neighborhood of a task.
type ContextSubgraph struct {
	TargetTaskID string
	Ancestors    []task.Task
	Dependents   []task.Task
	ComputedAt   time.Time
}

// ContextQuery parameterizes bounded context retrieval.
type ContextQuery struct {
	ProjectID      string
	TaskID         string
	AncestorDepth  int
	DependentDepth int
	BypassCache    bool
}

func clampDepth(d, def int) int {
	if d < 0 {
		return def
	}
	if d > MaxContextDepth {
		return MaxContextDepth
	}
	return d
}

func cacheKey(q ContextQuery) string {
	return fmt.Sprintf("%s|ctx|%s|%d|%d", q.ProjectID, q.TaskID, q.AncestorDepth, q.DependentDepth)
}

// GetContext computes (or returns cached) the bounded ancestor/dependent
// subgraph for a task. Depth 0 returns only the target in the respective
// direction (i.e. no ancestors/dependents beyond it).
func (e *Engine) GetContext(ctx context.Context, q ContextQuery) (ContextSubgraph, error) {
	q.AncestorDepth = clampDepth(q.AncestorDepth, DefaultAncestorDepth)
	q.DependentDepth = clampDepth(q.DependentDepth, DefaultDependentDepth)

	if !q.BypassCache {
		if v, computedAt, ok := e.Store.GetContextCache(ctx, cacheKey(q)); ok {
			if sub, ok := v.(ContextSubgraph); ok {
				sub.ComputedAt = computedAt
				return sub, nil
			}
		}
	}

	if _, err := e.Store.GetTask(ctx, q.TaskID); err != nil {
		return ContextSubgraph{}, err
	}

	ancestors, err := e.walk(ctx, q.TaskID, q.AncestorDepth, true)
	if err != nil {
		return ContextSubgraph{}, err
	}
	dependents, err := e.walk(ctx, q.TaskID, q.DependentDepth, false)
	if err != nil {
		return ContextSubgraph{}, err
	}

	sub := ContextSubgraph{TargetTaskID: q.TaskID, Ancestors: ancestors, Dependents: dependents}
	e.Store.PutContextCache(ctx, cacheKey(q), sub)
	sub.ComputedAt = time.Now().UTC()
	return sub, nil
}

// walk performs a bounded BFS from taskID. ancestors=true follows incoming
// edges (predecessors); false follows outgoing edges (successors).
func (e *Engine) walk(ctx context.Context, taskID string, depth int, ancestors bool) ([]task.Task, error) {
	if depth <= 0 {
		return nil, nil
	}
	type frontierItem struct {
		id    string
		level int
	}
	visited := map[string]bool{taskID: true}
	var result []task.Task
	frontier := []frontierItem{{taskID, 0}}
	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		if cur.level >= depth {
			continue
		}
		var edges []edge.Edge
		var err error
		if ancestors {
			edges, err = e.Store.ListIncoming(ctx, cur.id)
		} else {
			edges, err = e.Store.ListOutgoing(ctx, cur.id)
		}
		if err != nil {
			return nil, err
		}
		for _, ed := range edges {
			neighbor := ed.FromTask
			if !ancestors {
				neighbor = ed.ToTask
			}
			if visited[neighbor] {
				continue
			}
			visited[neighbor] = true
			t, err := e.Store.GetTask(ctx, neighbor)
			if err != nil {
				continue
			}
			result = append(result, t)
			frontier = append(frontier, frontierItem{neighbor, cur.level + 1})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ShortID < result[j].ShortID })
	return result, nil
}
