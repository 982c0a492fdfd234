package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tascade-run/tascade/internal/domain/changeset"
	"github.com/tascade-run/tascade/internal/engine"
)

func registerReplanRoutes(r chi.Router, eng *engine.Engine) {
	r.Post("/projects/{projectID}/change-sets", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Operations []changeset.OperationRecord
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		out, err := eng.SubmitChangeSet(r.Context(), principalFrom(r), chi.URLParam(r, "projectID"), body.Operations, correlationID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	})

	r.Get("/change-sets/{changeSetID}/preview", func(w http.ResponseWriter, r *http.Request) {
		out, err := eng.PreviewChangeSet(r.Context(), principalFrom(r), chi.URLParam(r, "changeSetID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Post("/change-sets/{changeSetID}/apply", func(w http.ResponseWriter, r *http.Request) {
		out, err := eng.ApplyChangeSet(r.Context(), principalFrom(r), chi.URLParam(r, "changeSetID"), correlationID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Post("/change-sets/{changeSetID}/reject", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Reason string }
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		out, err := eng.RejectChangeSet(r.Context(), principalFrom(r), chi.URLParam(r, "changeSetID"), body.Reason)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Post("/projects/{projectID}/claims/pause", func(w http.ResponseWriter, r *http.Request) {
		if err := eng.PauseClaims(r.Context(), principalFrom(r), chi.URLParam(r, "projectID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/projects/{projectID}/claims/resume", func(w http.ResponseWriter, r *http.Request) {
		if err := eng.ResumeClaims(r.Context(), principalFrom(r), chi.URLParam(r, "projectID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
