package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tascade-run/tascade/internal/domain/gatedecision"
	"github.com/tascade-run/tascade/internal/engine"
)

func registerGateRoutes(r chi.Router, eng *engine.Engine) {
	r.Get("/projects/{projectID}/checkpoints", func(w http.ResponseWriter, r *http.Request) {
		out, err := eng.ListCheckpoints(r.Context(), principalFrom(r), chi.URLParam(r, "projectID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Post("/projects/{projectID}/checkpoints/{taskID}/decisions", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			RuleID       string
			ActorID      string
			Outcome      gatedecision.Outcome
			Reason       string
			EvidenceRefs map[string]string
			Forced       bool
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		in := engine.RecordGateDecisionInput{
			ProjectID:        chi.URLParam(r, "projectID"),
			CheckpointTaskID: chi.URLParam(r, "taskID"),
			RuleID:           body.RuleID,
			ActorID:          body.ActorID,
			Outcome:          body.Outcome,
			Reason:           body.Reason,
			EvidenceRefs:     body.EvidenceRefs,
			Forced:           body.Forced,
		}
		out, err := eng.RecordDecision(r.Context(), principalFrom(r), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	})
}
