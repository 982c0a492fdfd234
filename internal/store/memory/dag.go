package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tascade-run/tascade/internal/domain/edge"
	"github.com/tascade-run/tascade/internal/domain/milestone"
	"github.com/tascade-run/tascade/internal/domain/phase"
	"github.com/tascade-run/tascade/internal/domain/project"
	"github.com/tascade-run/tascade/internal/domain/task"
	"github.com/tascade-run/tascade/internal/store"
	"github.com/tascade-run/tascade/pkg/tascadeerr"
)

// --- Project ----------------------------------------------------------------

func (s *Store) CreateProject(_ context.Context, p project.Project) (project.Project, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	ts := now()
	p.CreatedAt, p.UpdatedAt = ts, ts
	if p.Status == "" {
		p.Status = project.StatusActive
	}
	s.projects[p.ID] = p
	return p, nil
}

func (s *Store) GetProject(_ context.Context, id string) (project.Project, error) {
	p, ok := s.projects[id]
	if !ok {
		return project.Project{}, tascadeerr.ProjectNotFoundErr(id)
	}
	return p, nil
}

func (s *Store) ListProjects(_ context.Context) ([]project.Project, error) {
	out := make([]project.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateProjectStatus(_ context.Context, id string, status project.Status) (project.Project, error) {
	p, ok := s.projects[id]
	if !ok {
		return project.Project{}, tascadeerr.ProjectNotFoundErr(id)
	}
	p.Status = status
	p.UpdatedAt = now()
	s.projects[id] = p
	return p, nil
}

// --- Phase -------------------------------------------------------------------

func (s *Store) CreatePhase(_ context.Context, p phase.Phase) (phase.Phase, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	ts := now()
	p.CreatedAt, p.UpdatedAt = ts, ts
	s.phases[p.ID] = p
	return p, nil
}

func (s *Store) GetPhase(_ context.Context, id string) (phase.Phase, error) {
	p, ok := s.phases[id]
	if !ok {
		return phase.Phase{}, tascadeerr.New(tascadeerr.InvalidArgument, "phase not found", 404).WithDetails("phase_id", id)
	}
	return p, nil
}

func (s *Store) ListPhasesByProject(_ context.Context, projectID string) ([]phase.Phase, error) {
	var out []phase.Phase
	for _, p := range s.phases {
		if p.ProjectID == projectID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sequence != out[j].Sequence {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) NextPhaseSequence(_ context.Context, projectID string) (int, error) {
	next := s.phaseSeq[projectID] + 1
	s.phaseSeq[projectID] = next
	return next, nil
}

// --- Milestone -----------------------------------------------------------------

func (s *Store) CreateMilestone(_ context.Context, m milestone.Milestone) (milestone.Milestone, error) {
	if m.ID == "" {
		m.ID = newID()
	}
	ts := now()
	m.CreatedAt, m.UpdatedAt = ts, ts
	s.milestones[m.ID] = m
	return m, nil
}

func (s *Store) GetMilestone(_ context.Context, id string) (milestone.Milestone, error) {
	m, ok := s.milestones[id]
	if !ok {
		return milestone.Milestone{}, tascadeerr.New(tascadeerr.InvalidArgument, "milestone not found", 404).WithDetails("milestone_id", id)
	}
	return m, nil
}

func (s *Store) ListMilestonesByPhase(_ context.Context, phaseID string) ([]milestone.Milestone, error) {
	var out []milestone.Milestone
	for _, m := range s.milestones {
		if m.PhaseID == phaseID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sequence != out[j].Sequence {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) NextMilestoneSequence(_ context.Context, phaseID string) (int, error) {
	next := s.milestoneSeq[phaseID] + 1
	s.milestoneSeq[phaseID] = next
	return next, nil
}

// --- Task ----------------------------------------------------------------------

func shortKey(projectID, shortID string) string { return projectID + "|" + shortID }

func (s *Store) CreateTask(_ context.Context, t task.Task) (task.Task, error) {
	if t.ID == "" {
		t.ID = newID()
	}
	key := shortKey(t.ProjectID, t.ShortID)
	if _, exists := s.taskByShort[key]; exists {
		return task.Task{}, tascadeerr.ShortIDConflictErr(t.ShortID)
	}
	ts := now()
	t.CreatedAt, t.UpdatedAt = ts, ts
	if t.Version == 0 {
		t.Version = 1
	}
	s.tasks[t.ID] = t.Clone()
	s.taskByShort[key] = t.ID
	return t.Clone(), nil
}

func (s *Store) GetTask(_ context.Context, id string) (task.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return task.Task{}, tascadeerr.TaskNotFoundErr(id)
	}
	return t.Clone(), nil
}

func (s *Store) GetTaskByShortID(_ context.Context, projectID, shortID string) (task.Task, error) {
	id, ok := s.taskByShort[shortKey(projectID, shortID)]
	if !ok {
		return task.Task{}, tascadeerr.TaskNotFoundErr(shortID)
	}
	return s.tasks[id].Clone(), nil
}

func (s *Store) UpdateTask(_ context.Context, t task.Task) (task.Task, error) {
	if _, ok := s.tasks[t.ID]; !ok {
		return task.Task{}, tascadeerr.TaskNotFoundErr(t.ID)
	}
	t.UpdatedAt = now()
	s.tasks[t.ID] = t.Clone()
	return t.Clone(), nil
}

func (s *Store) NextTaskSequence(_ context.Context, milestoneID string) (int, error) {
	next := s.taskSeq[milestoneID] + 1
	s.taskSeq[milestoneID] = next
	return next, nil
}

func (s *Store) ListTasks(_ context.Context, filter store.TaskFilter) ([]task.Task, error) {
	var out []task.Task
	wantStates := make(map[task.State]bool, len(filter.States))
	for _, st := range filter.States {
		wantStates[st] = true
	}
	text := strings.ToLower(strings.TrimSpace(filter.TextQuery))
	for _, t := range s.tasks {
		if filter.ProjectID != "" && t.ProjectID != filter.ProjectID {
			continue
		}
		if filter.PhaseID != "" && t.PhaseID != filter.PhaseID {
			continue
		}
		if filter.MilestoneID != "" && t.MilestoneID != filter.MilestoneID {
			continue
		}
		if filter.Class != "" && t.TaskClass != filter.Class {
			continue
		}
		if filter.CapabilityTag != "" {
			found := false
			for _, c := range t.CapabilityTags {
				if c == filter.CapabilityTag {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		if len(wantStates) > 0 && !wantStates[t.State] {
			continue
		}
		if text != "" {
			hay := strings.ToLower(t.Title + " " + t.Description)
			if !strings.Contains(hay, text) {
				continue
			}
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShortID < out[j].ShortID })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []task.Task{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

// --- Edge ------------------------------------------------------------------

func edgeKey(projectID, from, to string) string { return projectID + "|" + from + "|" + to }

func (s *Store) AddEdge(_ context.Context, e edge.Edge) (edge.Edge, error) {
	if e.FromTask == e.ToTask {
		return edge.Edge{}, tascadeerr.New(tascadeerr.InvalidArgument, "edge endpoints must differ", 400)
	}
	from, ok := s.tasks[e.FromTask]
	if !ok {
		return edge.Edge{}, tascadeerr.DependencyTaskNotFoundErr(e.FromTask)
	}
	to, ok := s.tasks[e.ToTask]
	if !ok {
		return edge.Edge{}, tascadeerr.DependencyTaskNotFoundErr(e.ToTask)
	}
	if from.ProjectID != to.ProjectID || from.ProjectID != e.ProjectID {
		return edge.Edge{}, tascadeerr.DependencyProjectMismatchErr(e.FromTask, e.ToTask)
	}
	key := edgeKey(e.ProjectID, e.FromTask, e.ToTask)
	for _, ex := range s.edges {
		if edgeKey(ex.ProjectID, ex.FromTask, ex.ToTask) == key {
			return ex, nil // idempotent on duplicate add
		}
	}
	cycles, err := s.WouldCycle(context.Background(), e.ProjectID, e.FromTask, e.ToTask)
	if err != nil {
		return edge.Edge{}, err
	}
	if cycles {
		return edge.Edge{}, tascadeerr.CycleDetectedErr([]string{e.FromTask, e.ToTask})
	}
	if e.ID == "" {
		e.ID = newID()
	}
	e.CreatedAt = now()
	s.edges[e.ID] = e
	s.outByTask[e.FromTask] = append(s.outByTask[e.FromTask], e.ID)
	s.inByTask[e.ToTask] = append(s.inByTask[e.ToTask], e.ID)
	return e, nil
}

func (s *Store) RemoveEdge(_ context.Context, projectID, fromTaskID, toTaskID string) error {
	key := edgeKey(projectID, fromTaskID, toTaskID)
	for id, ex := range s.edges {
		if edgeKey(ex.ProjectID, ex.FromTask, ex.ToTask) == key {
			delete(s.edges, id)
			s.outByTask[fromTaskID] = removeID(s.outByTask[fromTaskID], id)
			s.inByTask[toTaskID] = removeID(s.inByTask[toTaskID], id)
			return nil
		}
	}
	return nil // removing a non-existent edge is a no-op, matching idempotent semantics
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

func (s *Store) GetEdge(_ context.Context, projectID, fromTaskID, toTaskID string) (edge.Edge, error) {
	key := edgeKey(projectID, fromTaskID, toTaskID)
	for _, ex := range s.edges {
		if edgeKey(ex.ProjectID, ex.FromTask, ex.ToTask) == key {
			return ex, nil
		}
	}
	return edge.Edge{}, fmt.Errorf("edge %s->%s not found", fromTaskID, toTaskID)
}

func (s *Store) ListEdgesByProject(_ context.Context, projectID string) ([]edge.Edge, error) {
	var out []edge.Edge
	for _, e := range s.edges {
		if e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListOutgoing(_ context.Context, taskID string) ([]edge.Edge, error) {
	var out []edge.Edge
	for _, id := range s.outByTask[taskID] {
		out = append(out, s.edges[id])
	}
	return out, nil
}

func (s *Store) ListIncoming(_ context.Context, taskID string) ([]edge.Edge, error) {
	var out []edge.Edge
	for _, id := range s.inByTask[taskID] {
		out = append(out, s.edges[id])
	}
	return out, nil
}

// WouldCycle performs an in-memory DFS from `to` following outgoing edges,
// checking whether `from` is reachable — which is exactly the condition
// under which adding from->to would close a cycle.
func (s *Store) WouldCycle(_ context.Context, projectID, fromTaskID, toTaskID string) (bool, error) {
	if fromTaskID == toTaskID {
		return true, nil
	}
	visited := make(map[string]bool)
	var stack []string
	stack = append(stack, toTaskID)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == fromTaskID {
			return true, nil
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		for _, id := range s.outByTask[cur] {
			e := s.edges[id]
			if e.ProjectID != projectID {
				continue
			}
			stack = append(stack, e.ToTask)
		}
	}
	return false, nil
}
