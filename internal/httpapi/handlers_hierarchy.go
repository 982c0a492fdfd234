package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tascade-run/tascade/internal/engine"
)

func registerHierarchyRoutes(r chi.Router, eng *engine.Engine) {
	r.Post("/projects", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Name string }
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		out, err := eng.CreateProject(r.Context(), principalFrom(r), body.Name, correlationID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	})

	r.Get("/projects", func(w http.ResponseWriter, r *http.Request) {
		out, err := eng.ListProjects(r.Context(), principalFrom(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/projects/{projectID}", func(w http.ResponseWriter, r *http.Request) {
		out, err := eng.GetProject(r.Context(), principalFrom(r), chi.URLParam(r, "projectID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Post("/projects/{projectID}/phases", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Name string }
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		out, err := eng.CreatePhase(r.Context(), principalFrom(r), chi.URLParam(r, "projectID"), body.Name, correlationID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	})

	r.Get("/phases/{phaseID}", func(w http.ResponseWriter, r *http.Request) {
		out, err := eng.GetPhase(r.Context(), principalFrom(r), chi.URLParam(r, "phaseID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Post("/phases/{phaseID}/milestones", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Name string }
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		out, err := eng.CreateMilestone(r.Context(), principalFrom(r), chi.URLParam(r, "phaseID"), body.Name, correlationID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	})

	r.Get("/milestones/{milestoneID}", func(w http.ResponseWriter, r *http.Request) {
		out, err := eng.GetMilestone(r.Context(), principalFrom(r), chi.URLParam(r, "milestoneID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})
}
