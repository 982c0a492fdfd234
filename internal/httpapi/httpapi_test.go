package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tascade-run/tascade/internal/engine"
	"github.com/tascade-run/tascade/internal/httpapi"
	"github.com/tascade-run/tascade/internal/store/memory"
	"github.com/tascade-run/tascade/pkg/logger"
)

func newTestService(authDisabled bool) (http.Handler, *engine.Engine) {
	log := logger.New(logger.LoggingConfig{Level: "error", Format: "text", Output: "stdout"})
	eng := engine.New(memory.New(), log)
	svc := httpapi.NewService(eng, ":0", log, authDisabled)
	return svc.Handler(), eng
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthzBypassesAuth(t *testing.T) {
	h, _ := newTestService(false)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestUnauthenticatedRequestIsRejected(t *testing.T) {
	h, _ := newTestService(false)
	rec := doJSON(t, h, http.MethodGet, "/v1/projects", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "UNAUTHENTICATED", body["code"])
}

func TestAuthDisabledAllowsCreatingProjectAndTask(t *testing.T) {
	h, _ := newTestService(true)

	rec := doJSON(t, h, http.MethodPost, "/v1/projects", map[string]string{"Name": "demo"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var project map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &project))
	projectID, _ := project["ID"].(string)
	require.NotEmpty(t, projectID)

	rec = doJSON(t, h, http.MethodPost, "/v1/projects/"+projectID+"/phases", map[string]string{"Name": "phase one"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var phase map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &phase))
	phaseID, _ := phase["ID"].(string)
	require.NotEmpty(t, phaseID)

	rec = doJSON(t, h, http.MethodPost, "/v1/phases/"+phaseID+"/milestones", map[string]string{"Name": "m1"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var milestone map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &milestone))
	milestoneID, _ := milestone["ID"].(string)
	require.NotEmpty(t, milestoneID)

	rec = doJSON(t, h, http.MethodPost, "/v1/tasks", map[string]any{
		"ProjectID": projectID, "PhaseID": phaseID, "MilestoneID": milestoneID, "Title": "do the thing",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "do the thing", created["Title"])

	rec = doJSON(t, h, http.MethodGet, "/v1/tasks?project_id="+projectID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 1)
}

func TestContextEndpointDefaultsDepthWhenParamsOmitted(t *testing.T) {
	h, _ := newTestService(true)

	rec := doJSON(t, h, http.MethodPost, "/v1/projects", map[string]string{"Name": "demo"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var project map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &project))
	projectID, _ := project["ID"].(string)

	rec = doJSON(t, h, http.MethodPost, "/v1/projects/"+projectID+"/phases", map[string]string{"Name": "phase one"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var phase map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &phase))
	phaseID, _ := phase["ID"].(string)

	rec = doJSON(t, h, http.MethodPost, "/v1/phases/"+phaseID+"/milestones", map[string]string{"Name": "m1"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var milestone map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &milestone))
	milestoneID, _ := milestone["ID"].(string)

	createTask := func(title string) string {
		rec := doJSON(t, h, http.MethodPost, "/v1/tasks", map[string]any{
			"ProjectID": projectID, "PhaseID": phaseID, "MilestoneID": milestoneID, "Title": title,
		}, "")
		require.Equal(t, http.StatusCreated, rec.Code)
		var created map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		id, _ := created["ID"].(string)
		require.NotEmpty(t, id)
		return id
	}
	a := createTask("a")
	b := createTask("b")
	c := createTask("c")

	addEdge := func(from, to string) {
		rec := doJSON(t, h, http.MethodPost, "/v1/projects/"+projectID+"/edges", map[string]any{
			"FromTaskID": from, "ToTaskID": to, "UnlockOn": "implemented",
		}, "")
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	addEdge(a, b)
	addEdge(b, c)

	// No ancestor_depth/dependent_depth query params: the default 2/1
	// (dagengine.DefaultAncestorDepth/DefaultDependentDepth) must apply,
	// not the Go zero value, so c's ancestor chain reaches back to a.
	rec = doJSON(t, h, http.MethodGet, "/v1/tasks/"+c+"/context?project_id="+projectID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	ancestors, _ := got["Ancestors"].([]any)
	require.Len(t, ancestors, 2)
}

func TestWriteErrorMapsDomainErrorToHTTPStatus(t *testing.T) {
	h, _ := newTestService(true)
	rec := doJSON(t, h, http.MethodGet, "/v1/tasks/does-not-exist", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["code"])
}

func TestIssueSessionBypassesAuthMiddlewareAndRejectsUnknownKey(t *testing.T) {
	h, _ := newTestService(false)
	rec := doJSON(t, h, http.MethodPost, "/v1/auth/session", map[string]string{"api_key": "bogus"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "an unknown api key must not mint a session token")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	details, _ := body["details"].(map[string]any)
	assert.Equal(t, "unknown or revoked api key", details["reason"],
		"this rejection must come from IssueSessionToken itself, not from the missing-bearer-token middleware check")
}
