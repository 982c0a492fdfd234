package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tascade-run/tascade/internal/dagengine"
	"github.com/tascade-run/tascade/internal/domain/edge"
	"github.com/tascade-run/tascade/internal/domain/task"
	"github.com/tascade-run/tascade/internal/engine"
	"github.com/tascade-run/tascade/internal/store"
)

func registerTaskRoutes(r chi.Router, eng *engine.Engine) {
	r.Post("/tasks", func(w http.ResponseWriter, r *http.Request) {
		var in dagengine.CreateTaskInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, err)
			return
		}
		out, err := eng.CreateTask(r.Context(), principalFrom(r), in, correlationID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	})

	r.Get("/tasks/{taskID}", func(w http.ResponseWriter, r *http.Request) {
		out, err := eng.GetTask(r.Context(), principalFrom(r), chi.URLParam(r, "taskID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Patch("/tasks/{taskID}", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Title       string
			Description string
			Priority    *int
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		in := engine.UpdateTaskInput{
			TaskID:      chi.URLParam(r, "taskID"),
			Title:       body.Title,
			Description: body.Description,
			Priority:    body.Priority,
		}
		out, err := eng.UpdateTask(r.Context(), principalFrom(r), in, correlationID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/tasks", func(w http.ResponseWriter, r *http.Request) {
		filter := store.TaskFilter{
			ProjectID:     r.URL.Query().Get("project_id"),
			PhaseID:       r.URL.Query().Get("phase_id"),
			MilestoneID:   r.URL.Query().Get("milestone_id"),
			Class:         task.Class(r.URL.Query().Get("class")),
			CapabilityTag: r.URL.Query().Get("capability"),
			TextQuery:     r.URL.Query().Get("q"),
		}
		if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
			filter.Limit = limit
		}
		if offset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
			filter.Offset = offset
		}
		out, err := eng.ListTasks(r.Context(), principalFrom(r), filter)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/tasks/{taskID}/context", func(w http.ResponseWriter, r *http.Request) {
		q := dagengine.ContextQuery{
			TaskID:         chi.URLParam(r, "taskID"),
			AncestorDepth:  dagengine.DefaultAncestorDepth,
			DependentDepth: dagengine.DefaultDependentDepth,
		}
		if d, err := strconv.Atoi(r.URL.Query().Get("ancestor_depth")); err == nil {
			q.AncestorDepth = d
		}
		if d, err := strconv.Atoi(r.URL.Query().Get("dependent_depth")); err == nil {
			q.DependentDepth = d
		}
		out, err := eng.GetContext(r.Context(), principalFrom(r), r.URL.Query().Get("project_id"), q)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Post("/projects/{projectID}/edges", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			FromTaskID string
			ToTaskID   string
			UnlockOn   edge.UnlockOn
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
		out, err := eng.AddDependency(r.Context(), principalFrom(r), chi.URLParam(r, "projectID"), body.FromTaskID, body.ToTaskID, body.UnlockOn, correlationID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	})

	r.Delete("/projects/{projectID}/edges", func(w http.ResponseWriter, r *http.Request) {
		from := r.URL.Query().Get("from_task_id")
		to := r.URL.Query().Get("to_task_id")
		if err := eng.RemoveDependency(r.Context(), principalFrom(r), chi.URLParam(r, "projectID"), from, to, correlationID(r)); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/tasks/{taskID}/artifacts", func(w http.ResponseWriter, r *http.Request) {
		out, err := eng.ListArtifacts(r.Context(), principalFrom(r), chi.URLParam(r, "taskID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})
}
