package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tascade-run/tascade/internal/domain/artifact"
	"github.com/tascade-run/tascade/internal/domain/integrationattempt"
	"github.com/tascade-run/tascade/internal/engine"
)

func registerTransitionRoutes(r chi.Router, eng *engine.Engine) {
	r.Post("/tasks/{taskID}/start", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ ActorID string }
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		out, err := eng.Start(r.Context(), principalFrom(r), chi.URLParam(r, "taskID"), body.ActorID, correlationID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Post("/tasks/{taskID}/submit-implemented", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ActorID      string
			Branch       string
			CommitSHA    string
			CheckStatus  artifact.CheckStatus
			TouchedFiles []string
			ForceAdmin   bool
			ForceReason  string
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		in := engine.SubmitImplementedInput{
			TaskID:       chi.URLParam(r, "taskID"),
			ActorID:      body.ActorID,
			Branch:       body.Branch,
			CommitSHA:    body.CommitSHA,
			CheckStatus:  body.CheckStatus,
			TouchedFiles: body.TouchedFiles,
			ForceAdmin:   body.ForceAdmin,
			ForceReason:  body.ForceReason,
		}
		out, err := eng.SubmitImplemented(r.Context(), principalFrom(r), in, correlationID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Post("/tasks/{taskID}/request-integrate", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ActorID     string
			ForceAdmin  bool
			ForceReason string
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		in := engine.RequestIntegrateInput{
			TaskID:      chi.URLParam(r, "taskID"),
			ActorID:     body.ActorID,
			ForceAdmin:  body.ForceAdmin,
			ForceReason: body.ForceReason,
		}
		out, err := eng.RequestIntegrate(r.Context(), principalFrom(r), in, correlationID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Post("/tasks/{taskID}/integration-result", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ActorID string
			Outcome integrationattempt.Outcome
			Details string
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		out, err := eng.ReportIntegrationResult(r.Context(), principalFrom(r), chi.URLParam(r, "taskID"), body.ActorID, body.Outcome, body.Details, correlationID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Post("/tasks/{taskID}/retry", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ ActorID string }
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		out, err := eng.RetryFromConflict(r.Context(), principalFrom(r), chi.URLParam(r, "taskID"), body.ActorID, correlationID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Post("/tasks/{taskID}/block", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ActorID string
			Reason  string
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		out, err := eng.Block(r.Context(), principalFrom(r), chi.URLParam(r, "taskID"), body.ActorID, body.Reason, correlationID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Post("/tasks/{taskID}/unblock", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ ActorID string }
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		out, err := eng.Unblock(r.Context(), principalFrom(r), chi.URLParam(r, "taskID"), body.ActorID, correlationID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Post("/tasks/{taskID}/cancel", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ ActorID string }
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		out, err := eng.Cancel(r.Context(), principalFrom(r), chi.URLParam(r, "taskID"), body.ActorID, correlationID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Post("/tasks/{taskID}/abandon", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ ActorID string }
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		out, err := eng.Abandon(r.Context(), principalFrom(r), chi.URLParam(r, "taskID"), body.ActorID, correlationID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})
}
