// Package httpapi is Tascade's thin demo transport: chi routing and JSON
// marshalling over internal/engine.Engine, with no business logic of its
// own, following the teacher's internal/app/httpapi layout.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tascade-run/tascade/internal/authz"
	core "github.com/tascade-run/tascade/internal/core/service"
	"github.com/tascade-run/tascade/internal/engine"
	"github.com/tascade-run/tascade/internal/metrics"
	"github.com/tascade-run/tascade/internal/system"
	"github.com/tascade-run/tascade/pkg/logger"
	"github.com/tascade-run/tascade/pkg/tascadeerr"
)

type ctxKey string

const principalCtxKey ctxKey = "httpapi.principal"

// Service is a system.Service that runs the HTTP transport, following the
// teacher's httpapi.Service lifecycle shape.
type Service struct {
	system.Lifecycle
	addr   string
	server *http.Server
	eng    *engine.Engine
	log    *logger.Logger
}

// NewService builds the HTTP service. authDisabled is wired from
// internal/config.AuthConfig and must only ever be set in tests.
func NewService(eng *engine.Engine, addr string, log *logger.Logger, authDisabled bool) *Service {
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Use(metrics.InstrumentHandler)
	mux.Use(authMiddleware(eng, authDisabled))

	mux.Get("/healthz", handleHealthz)
	mux.Handle("/metrics", metrics.Handler())
	mux.Post("/v1/auth/session", handleIssueSession(eng))

	mux.Route("/v1", func(r chi.Router) {
		registerHierarchyRoutes(r, eng)
		registerTaskRoutes(r, eng)
		registerSchedulerRoutes(r, eng)
		registerTransitionRoutes(r, eng)
		registerReplanRoutes(r, eng)
		registerGateRoutes(r, eng)
		registerStreamRoutes(r, eng)
		registerAPIKeyRoutes(r, eng)
	})

	return &Service{
		addr:   addr,
		eng:    eng,
		log:    log,
		server: &http.Server{Addr: addr, Handler: mux},
	}
}

func (s *Service) Name() string { return "httpapi" }

// Descriptor advertises the HTTP transport's placement to system.Manager.
func (s *Service) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:   s.Name(),
		Domain: "transport",
		Layer:  core.LayerTransport,
	}.WithCapabilities("rest", "websocket-streaming", "auth-session-issue").
		WithRequires("engine").
		WithDependsOn("engine")
}

// Handler exposes the underlying mux for in-process testing via
// net/http/httptest, without standing up a real listener.
func (s *Service) Handler() http.Handler { return s.server.Handler }

func (s *Service) Start(ctx context.Context) error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.log != nil {
				s.log.WithField("error", err).Error("httpapi server stopped unexpectedly")
			}
		}
	}()
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleIssueSession exchanges API-key plaintext material for a short-lived
// session JWT, so a caller that made it through the authMiddleware bypass
// for this path can avoid resending the raw key on every later request.
func handleIssueSession(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			APIKey string `json:"api_key"`
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		token, err := eng.IssueSessionToken(r.Context(), body.APIKey)
		if err != nil {
			writeError(w, err)
			return
		}
		if token == "" {
			writeError(w, tascadeerr.PreconditionFailedErr("session tokens are disabled; use the api key directly"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session_token": token, "token_type": "Bearer"})
	}
}

// authMiddleware resolves a Bearer token into an authz.Principal via
// engine.ResolvePrincipal, the same hash lookup every other caller goes
// through; there is no separate trust path for the HTTP transport.
func authMiddleware(eng *engine.Engine, disabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if disabled || r.URL.Path == "/healthz" || r.URL.Path == "/metrics" || r.URL.Path == "/v1/auth/session" {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalCtxKey, authz.Principal{Admin: true})))
				return
			}
			token := extractBearer(r)
			if token == "" {
				writeError(w, tascadeerr.UnauthenticatedErr("missing bearer token"))
				return
			}
			principal, err := eng.ResolvePrincipal(r.Context(), token)
			if err != nil {
				writeError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), principalCtxKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(h, prefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, prefix))
	}
	return ""
}

func principalFrom(r *http.Request) authz.Principal {
	p, _ := r.Context().Value(principalCtxKey).(authz.Principal)
	return p
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	if terr, ok := tascadeerr.As(err); ok {
		writeJSON(w, terr.HTTPStatus, map[string]any{"code": terr.Code, "message": terr.Message, "details": terr.Details})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{"code": "INTERNAL", "message": err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func correlationID(r *http.Request) string {
	return r.Header.Get("X-Correlation-ID")
}
