// Package supervisor runs Tascade's background sweeps — lease expiry,
// reservation expiry, gate rule evaluation, and context-cache GC — as a
// single lifecycle-managed system.Service, grounded on the teacher's
// internal/app/services/automation.Scheduler polling loop but driven by
// robfig/cron schedules instead of a bare ticker, per the design note
// "Background sweeps": idempotent loops over a small batch size, no shared
// in-process state beyond this supervisor.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	core "github.com/tascade-run/tascade/internal/core/service"
	"github.com/tascade-run/tascade/internal/engine"
	"github.com/tascade-run/tascade/internal/metrics"
	"github.com/tascade-run/tascade/internal/system"
	"github.com/tascade-run/tascade/pkg/logger"
)

// DefaultSweepSchedule runs every sweep tick once per minute. The lease and
// reservation sweeps are cheap range scans; running them on the same cadence
// as the gate tick keeps one cron table instead of three independent ones.
const DefaultSweepSchedule = "@every 1m"

// DefaultCacheGCSchedule runs the context-cache GC less often: the cache is
// best-effort and a stale entry only costs a recompute, never correctness.
const DefaultCacheGCSchedule = "@every 5m"

// BatchSize bounds how many expired leases/reservations a single sweep tick
// reclaims, per design note "Background sweeps: ... bounded by a small batch
// size."
const BatchSize = 100

// MaxConcurrentProjects bounds how many projects' gate rules are evaluated
// concurrently within one tick.
const MaxConcurrentProjects = 8

// Config carries the schedules and cache max-age the supervisor runs with;
// callers normally derive these from internal/config.Config.
type Config struct {
	SweepSchedule   string
	CacheGCSchedule string
	CacheMaxAge     time.Duration
}

// DefaultConfig returns the Config used when the caller has no overrides.
func DefaultConfig() Config {
	return Config{
		SweepSchedule:   DefaultSweepSchedule,
		CacheGCSchedule: DefaultCacheGCSchedule,
		CacheMaxAge:     15 * time.Minute,
	}
}

// Supervisor is a system.Service that drives the periodic background
// sweeps off a robfig/cron schedule table, exactly one cron.Cron per
// process, per design note "Background state: there is none at the core
// level."
type Supervisor struct {
	system.Lifecycle

	eng *engine.Engine
	cfg Config
	log *logger.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// New builds a Supervisor wired against eng. It is registered with
// system.Manager alongside httpapi.Service so both share one start/stop
// ordering.
func New(eng *engine.Engine, cfg Config, log *logger.Logger) *Supervisor {
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = DefaultSweepSchedule
	}
	if cfg.CacheGCSchedule == "" {
		cfg.CacheGCSchedule = DefaultCacheGCSchedule
	}
	if cfg.CacheMaxAge <= 0 {
		cfg.CacheMaxAge = 15 * time.Minute
	}
	return &Supervisor{eng: eng, cfg: cfg, log: log}
}

func (s *Supervisor) Name() string { return "supervisor" }

// Descriptor advertises the background sweep loop's placement to
// system.Manager.
func (s *Supervisor) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:   s.Name(),
		Domain: "scheduling",
		Layer:  core.LayerBackground,
	}.WithCapabilities("lease-sweep", "reservation-sweep", "gate-evaluation", "context-cache-gc").
		WithDependsOn("engine")
}

// tickHooks logs each tick's start and completion (with duration and error,
// if any) through the Observe-style hook pair every cron job runs through.
func (s *Supervisor) tickHooks() core.ObservationHooks {
	return core.ObservationHooks{
		OnStart: func(_ context.Context, meta map[string]string) {
			if s.log != nil {
				s.log.WithField("tick", meta["tick"]).Debug("supervisor tick started")
			}
		},
		OnComplete: func(_ context.Context, meta map[string]string, err error, d time.Duration) {
			if s.log == nil {
				return
			}
			entry := s.log.WithField("tick", meta["tick"]).WithField("duration", d.String())
			if err != nil {
				entry.WithField("error", err).Warn("supervisor tick failed")
				return
			}
			entry.Debug("supervisor tick completed")
		},
	}
}

// Start registers the cron jobs and begins running them; it returns once
// the schedule is armed, never blocking on the jobs themselves.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := cron.New()
	if _, err := c.AddFunc(s.cfg.SweepSchedule, func() { s.sweepTick(ctx) }); err != nil {
		return err
	}
	if _, err := c.AddFunc(s.cfg.CacheGCSchedule, func() { s.cacheGCTick(ctx) }); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	if s.log != nil {
		s.log.WithField("schedule", s.cfg.SweepSchedule).Info("supervisor sweeps armed")
	}
	return nil
}

// Stop halts the cron scheduler and waits for any in-flight job to finish.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// sweepTick reclaims expired leases and reservations and evaluates gate
// rules across every active project, bounding per-project concurrency with
// errgroup per design note "bounded by a small batch size."
func (s *Supervisor) sweepTick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	done := core.StartObservation(tickCtx, s.tickHooks(), map[string]string{"tick": "sweep"})
	var tickErr error
	defer func() { done(tickErr) }()

	reclaimed, err := s.eng.Scheduler.SweepExpiredLeases(tickCtx, BatchSize)
	if err != nil {
		s.warn("lease sweep failed", err)
	} else if reclaimed > 0 {
		metrics.LeaseSweeps.WithLabelValues("lease_expired").Add(float64(reclaimed))
	}

	releasedReservations, err := s.eng.Scheduler.SweepExpiredReservations(tickCtx, BatchSize)
	if err != nil {
		s.warn("reservation sweep failed", err)
	} else if releasedReservations > 0 {
		metrics.LeaseSweeps.WithLabelValues("reservation_expired").Add(float64(releasedReservations))
	}

	projects, err := s.eng.Store.ListProjects(tickCtx)
	if err != nil {
		s.warn("list projects for gate tick failed", err)
		tickErr = err
		return
	}

	g, gCtx := errgroup.WithContext(tickCtx)
	g.SetLimit(MaxConcurrentProjects)
	for _, p := range projects {
		p := p
		g.Go(func() error {
			if err := s.eng.Gate.EvaluateProject(gCtx, p.ID); err != nil {
				s.warn("gate evaluation failed for project "+p.ID, err)
			}
			checkpoints, err := s.eng.Gate.ListCheckpoints(gCtx, p.ID)
			if err == nil {
				metrics.OpenCheckpoints.WithLabelValues(p.ID).Set(float64(len(checkpoints)))
			}
			return nil
		})
	}
	_ = g.Wait() // per-project errors are logged, never surfaced to the tick loop
}

// cacheGCTick drops context-cache entries older than CacheMaxAge.
func (s *Supervisor) cacheGCTick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	done := core.StartObservation(tickCtx, s.tickHooks(), map[string]string{"tick": "cache_gc"})
	_ = s.eng.DAG.Store.GCContextCache(tickCtx, s.cfg.CacheMaxAge)
	done(nil)
}

func (s *Supervisor) warn(msg string, err error) {
	if s.log != nil {
		s.log.WithField("error", err).Warn(msg)
	}
}
