// Package engine wires C1-C7 together and exposes the full external
// operation surface from spec.md section 6 as exported methods, each
// requiring an authz.Principal and enforcing capability/project scope
// before touching a store.
package engine

import (
	"github.com/tascade-run/tascade/internal/dagengine"
	"github.com/tascade-run/tascade/internal/eventlog"
	"github.com/tascade-run/tascade/internal/gateengine"
	"github.com/tascade-run/tascade/internal/lifecycle"
	"github.com/tascade-run/tascade/internal/replan"
	"github.com/tascade-run/tascade/internal/scheduler"
	"github.com/tascade-run/tascade/internal/store"
	"github.com/tascade-run/tascade/pkg/logger"
)

// Engine is the core's single entry point, analogous to the teacher's
// Application type: every exported method is one operation from the
// external interface surface, already authorized and transactional.
type Engine struct {
	Store     store.Store
	Hub       *eventlog.Hub
	Lifecycle *lifecycle.Table
	DAG       *dagengine.Engine
	Scheduler *scheduler.Engine
	Replan    *replan.Engine
	Gate      *gateengine.Engine
	Log       *logger.Logger

	// sessionSecret signs/verifies the short-lived JWTs minted by
	// IssueSessionToken. Empty disables session tokens entirely: callers
	// then authenticate with the raw API key on every request.
	sessionSecret []byte
}

// New wires every component against a shared store and event hub, and
// registers the cross-component lifecycle guards/effects (lease release on
// Abandon, gate enforcement on request_integrate).
func New(s store.Store, log *logger.Logger) *Engine {
	hub := eventlog.NewHub()
	lc := lifecycle.NewTable()
	dag := dagengine.New(s)
	sched := scheduler.New(s, lc, hub)
	gate := gateengine.New(s, dag, hub)
	rep := replan.New(s, dag, sched, hub)

	e := &Engine{
		Store:     s,
		Hub:       hub,
		Lifecycle: lc,
		DAG:       dag,
		Scheduler: sched,
		Replan:    rep,
		Gate:      gate,
		Log:       log,
	}
	e.registerLifecycleHooks()
	return e
}

// WithSessionSecret enables JWT session tokens, signed/verified with secret.
// Called once during wiring from internal/config.AuthConfig.JWTSecret.
func (e *Engine) WithSessionSecret(secret string) *Engine {
	if secret != "" {
		e.sessionSecret = []byte(secret)
	}
	return e
}
