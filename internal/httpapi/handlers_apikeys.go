package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tascade-run/tascade/internal/domain/apikey"
	"github.com/tascade-run/tascade/internal/engine"
)

// registerAPIKeyRoutes wires api key issuance and revocation, both
// admin-only capabilities enforced inside engine.Engine itself.
func registerAPIKeyRoutes(r chi.Router, eng *engine.Engine) {
	r.Post("/projects/{projectID}/api-keys", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Roles []apikey.Role }
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		out, err := eng.CreateAPIKey(r.Context(), principalFrom(r), chi.URLParam(r, "projectID"), body.Roles)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	})

	r.Get("/projects/{projectID}/api-keys", func(w http.ResponseWriter, r *http.Request) {
		out, err := eng.ListAPIKeys(r.Context(), principalFrom(r), chi.URLParam(r, "projectID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Delete("/api-keys/{keyID}", func(w http.ResponseWriter, r *http.Request) {
		out, err := eng.RevokeAPIKey(r.Context(), principalFrom(r), chi.URLParam(r, "keyID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})
}
