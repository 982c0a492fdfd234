package engine_test

import (
	"testing"

	"github.com/tascade-run/tascade/internal/store"
)

func TestListTasksClampsUnboundedRequestToDefaultPageSize(t *testing.T) {
	f := newFixture(t)
	projectID, phaseID, milestoneID, planner := f.seedProject("proj")
	for i := 0; i < 30; i++ {
		f.createTask(planner, projectID, phaseID, milestoneID, "task")
	}

	got, err := f.engine.ListTasks(f.ctx, f.admin, store.TaskFilter{ProjectID: projectID})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(got) != 25 {
		t.Fatalf("expected the unbounded request to clamp to the default page size of 25, got %d", len(got))
	}
}

func TestListTasksHonorsExplicitLimitWithinMax(t *testing.T) {
	f := newFixture(t)
	projectID, phaseID, milestoneID, planner := f.seedProject("proj")
	for i := 0; i < 10; i++ {
		f.createTask(planner, projectID, phaseID, milestoneID, "task")
	}

	got, err := f.engine.ListTasks(f.ctx, f.admin, store.TaskFilter{ProjectID: projectID, Limit: 3})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected explicit limit 3 to be honored, got %d", len(got))
	}
}
