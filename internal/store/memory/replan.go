package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/tascade-run/tascade/internal/domain/changeset"
	"github.com/tascade-run/tascade/internal/domain/planversion"
	"github.com/tascade-run/tascade/internal/domain/snapshot"
	"github.com/tascade-run/tascade/pkg/tascadeerr"
)

func (s *Store) CreateChangeSet(_ context.Context, cs changeset.ChangeSet) (changeset.ChangeSet, error) {
	if cs.ID == "" {
		cs.ID = newID()
	}
	ts := now()
	cs.CreatedAt, cs.UpdatedAt = ts, ts
	if cs.Status == "" {
		cs.Status = changeset.StatusDraft
	}
	s.changeSets[cs.ID] = cs
	return cs, nil
}

func (s *Store) GetChangeSet(_ context.Context, id string) (changeset.ChangeSet, error) {
	cs, ok := s.changeSets[id]
	if !ok {
		return changeset.ChangeSet{}, tascadeerr.New(tascadeerr.InvalidArgument, "change set not found", 404).WithDetails("change_set_id", id)
	}
	return cs, nil
}

func (s *Store) UpdateChangeSet(_ context.Context, cs changeset.ChangeSet) (changeset.ChangeSet, error) {
	if _, ok := s.changeSets[cs.ID]; !ok {
		return changeset.ChangeSet{}, tascadeerr.New(tascadeerr.InvalidArgument, "change set not found", 404).WithDetails("change_set_id", cs.ID)
	}
	cs.UpdatedAt = now()
	s.changeSets[cs.ID] = cs
	return cs, nil
}

func (s *Store) CurrentPlanVersion(_ context.Context, projectID string) (int64, error) {
	return s.planVersionCurrent[projectID], nil
}

func (s *Store) RecordPlanVersion(_ context.Context, pv planversion.PlanVersion) (planversion.PlanVersion, error) {
	current := s.planVersionCurrent[pv.ProjectID]
	if pv.VersionNumber != current+1 {
		return planversion.PlanVersion{}, fmt.Errorf("plan version gap: current=%d attempted=%d", current, pv.VersionNumber)
	}
	if pv.ID == "" {
		pv.ID = newID()
	}
	pv.CreatedAt = now()
	s.planVersions[pv.ProjectID] = append(s.planVersions[pv.ProjectID], pv)
	s.planVersionCurrent[pv.ProjectID] = pv.VersionNumber
	return pv, nil
}

func (s *Store) ListPlanVersions(_ context.Context, projectID string) ([]planversion.PlanVersion, error) {
	out := make([]planversion.PlanVersion, len(s.planVersions[projectID]))
	copy(out, s.planVersions[projectID])
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber < out[j].VersionNumber })
	return out, nil
}

func (s *Store) CreateSnapshot(_ context.Context, sn snapshot.TaskExecutionSnapshot) (snapshot.TaskExecutionSnapshot, error) {
	if sn.ID == "" {
		sn.ID = newID()
	}
	sn.CapturedAt = now()
	s.snapshots[sn.TaskID] = append(s.snapshots[sn.TaskID], sn)
	return sn, nil
}

func (s *Store) LatestSnapshotByTask(_ context.Context, taskID string) (snapshot.TaskExecutionSnapshot, bool, error) {
	hist := s.snapshots[taskID]
	if len(hist) == 0 {
		return snapshot.TaskExecutionSnapshot{}, false, nil
	}
	return hist[len(hist)-1], true, nil
}
