package memory

import (
	"context"
	"sort"

	"github.com/tascade-run/tascade/internal/domain/lease"
	"github.com/tascade-run/tascade/internal/domain/reservation"
	"github.com/tascade-run/tascade/pkg/tascadeerr"
	"time"
)

// --- Lease -------------------------------------------------------------------

func (s *Store) CreateLease(_ context.Context, l lease.Lease) (lease.Lease, error) {
	if l.Status == lease.StatusActive {
		if existing, ok := s.activeLeaseTask[l.TaskID]; ok && existing != "" {
			return lease.Lease{}, tascadeerr.LeaseConflictErr(l.TaskID)
		}
	}
	if l.ID == "" {
		l.ID = newID()
	}
	if l.Token == "" {
		l.Token = newID()
	}
	ts := now()
	l.CreatedAt, l.UpdatedAt = ts, ts
	s.leases[l.ID] = l
	s.leaseByToken[l.Token] = l.ID
	if l.Status == lease.StatusActive {
		s.activeLeaseTask[l.TaskID] = l.ID
	}
	return l, nil
}

func (s *Store) GetLeaseByToken(_ context.Context, token string) (lease.Lease, error) {
	id, ok := s.leaseByToken[token]
	if !ok {
		return lease.Lease{}, tascadeerr.LeaseExpiredErr(token)
	}
	return s.leases[id], nil
}

func (s *Store) GetActiveLeaseByTask(_ context.Context, taskID string) (lease.Lease, bool, error) {
	id, ok := s.activeLeaseTask[taskID]
	if !ok {
		return lease.Lease{}, false, nil
	}
	l := s.leases[id]
	if l.Status != lease.StatusActive {
		delete(s.activeLeaseTask, taskID)
		return lease.Lease{}, false, nil
	}
	return l, true, nil
}

func (s *Store) UpdateLease(_ context.Context, l lease.Lease) (lease.Lease, error) {
	if _, ok := s.leases[l.ID]; !ok {
		return lease.Lease{}, tascadeerr.LeaseExpiredErr(l.Token)
	}
	l.UpdatedAt = now()
	s.leases[l.ID] = l
	if l.Status == lease.StatusActive {
		s.activeLeaseTask[l.TaskID] = l.ID
	} else if s.activeLeaseTask[l.TaskID] == l.ID {
		delete(s.activeLeaseTask, l.TaskID)
	}
	return l, nil
}

func (s *Store) ListExpiredLeases(_ context.Context, before time.Time, limit int) ([]lease.Lease, error) {
	var out []lease.Lease
	for _, l := range s.leases {
		if l.Status == lease.StatusActive && !l.ExpiresAt.After(before) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) NextFencingCounter(_ context.Context, taskID string) (int64, error) {
	next := s.fencing[taskID] + 1
	s.fencing[taskID] = next
	return next, nil
}

// --- Reservation ---------------------------------------------------------------

func (s *Store) CreateReservation(_ context.Context, r reservation.Reservation) (reservation.Reservation, error) {
	if r.Status == reservation.StatusActive {
		if existing, ok := s.activeReservationTask[r.TaskID]; ok && existing != "" {
			return reservation.Reservation{}, tascadeerr.ReservationConflictErr(r.TaskID)
		}
	}
	if r.ID == "" {
		r.ID = newID()
	}
	ts := now()
	r.CreatedAt, r.UpdatedAt = ts, ts
	s.reservations[r.ID] = r
	if r.Status == reservation.StatusActive {
		s.activeReservationTask[r.TaskID] = r.ID
	}
	return r, nil
}

func (s *Store) GetActiveReservationByTask(_ context.Context, taskID string) (reservation.Reservation, bool, error) {
	id, ok := s.activeReservationTask[taskID]
	if !ok {
		return reservation.Reservation{}, false, nil
	}
	r := s.reservations[id]
	if r.Status != reservation.StatusActive {
		delete(s.activeReservationTask, taskID)
		return reservation.Reservation{}, false, nil
	}
	return r, true, nil
}

func (s *Store) UpdateReservation(_ context.Context, r reservation.Reservation) (reservation.Reservation, error) {
	if _, ok := s.reservations[r.ID]; !ok {
		return reservation.Reservation{}, tascadeerr.New(tascadeerr.InvalidArgument, "reservation not found", 404)
	}
	r.UpdatedAt = now()
	s.reservations[r.ID] = r
	if r.Status == reservation.StatusActive {
		s.activeReservationTask[r.TaskID] = r.ID
	} else if s.activeReservationTask[r.TaskID] == r.ID {
		delete(s.activeReservationTask, r.TaskID)
	}
	return r, nil
}

func (s *Store) ListExpiredReservations(_ context.Context, before time.Time, limit int) ([]reservation.Reservation, error) {
	var out []reservation.Reservation
	for _, r := range s.reservations {
		if r.Status == reservation.StatusActive && !r.ExpiresAt.After(before) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
