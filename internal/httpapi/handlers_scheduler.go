package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tascade-run/tascade/internal/engine"
)

func registerSchedulerRoutes(r chi.Router, eng *engine.Engine) {
	r.Get("/projects/{projectID}/ready", func(w http.ResponseWriter, r *http.Request) {
		var caps []string
		if c := r.URL.Query().Get("capabilities"); c != "" {
			caps = strings.Split(c, ",")
		}
		out, err := eng.ListReadyTasks(r.Context(), principalFrom(r), chi.URLParam(r, "projectID"), caps)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Post("/projects/{projectID}/claim", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			AgentID         string
			Capabilities    []string
			SeenPlanVersion *int64
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		result, claimed, err := eng.Claim(r.Context(), principalFrom(r), chi.URLParam(r, "projectID"), body.AgentID, body.Capabilities, body.SeenPlanVersion)
		if err != nil {
			writeError(w, err)
			return
		}
		if !claimed {
			writeJSON(w, http.StatusNoContent, nil)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	r.Post("/projects/{projectID}/tasks/{taskID}/assign", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			AssigneeAgentID string
			TTLSeconds      int
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		task, res, err := eng.Assign(r.Context(), principalFrom(r), chi.URLParam(r, "projectID"), chi.URLParam(r, "taskID"), body.AssigneeAgentID, body.TTLSeconds)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"task": task, "reservation": res})
	})

	r.Delete("/projects/{projectID}/tasks/{taskID}/reservation", func(w http.ResponseWriter, r *http.Request) {
		if err := eng.ReleaseReservation(r.Context(), principalFrom(r), chi.URLParam(r, "projectID"), chi.URLParam(r, "taskID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/projects/{projectID}/leases/{token}/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			SeenPlanVersion *int64
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		out, err := eng.Heartbeat(r.Context(), principalFrom(r), chi.URLParam(r, "projectID"), chi.URLParam(r, "token"), body.SeenPlanVersion)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Delete("/projects/{projectID}/leases/{token}", func(w http.ResponseWriter, r *http.Request) {
		if err := eng.ReleaseLease(r.Context(), principalFrom(r), chi.URLParam(r, "projectID"), chi.URLParam(r, "token")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
