package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "gocloud.dev/blob/memblob"

	"github.com/parleyhq/parley/internal/assert"
	"github.com/parleyhq/parley/internal/assert/helpers"
	"github.com/parleyhq/parley/internal/events"
	"github.com/parleyhq/parley/internal/report"
	"github.com/parleyhq/parley/internal/server"
	"github.com/parleyhq/parley/pkg/api"
)

type testServerEnv struct {
	Server  *server.Server
	Archive *report.Archive
	*helpers.TestEnv
}

func testServer(t *testing.T) *testServerEnv {
	t.Helper()

	env := helpers.NewTestEnv(t)
	archive, err := report.NewArchive(context.Background(), "mem://", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = archive.Close() })

	srv := server.NewServer(
		env.Engine, events.NewDispatcher(env.Engine), archive,
	)
	return &testServerEnv{
		Server:  srv,
		Archive: archive,
		TestEnv: env,
	}
}

// do issues a request against the router, marshaling body when present
func (e *testServerEnv) do(
	method, path string, body any,
) *httptest.ResponseRecorder {
	var data []byte
	if body != nil {
		data, _ = json.Marshal(body)
	}
	return e.doRaw(method, path, data)
}

func (e *testServerEnv) doRaw(
	method, path string, body []byte,
) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.Server.SetupRoutes().ServeHTTP(w, req)
	return w
}

// installGreeting registers a one-step workflow that completes immediately
func (e *testServerEnv) installGreeting(t *testing.T) {
	t.Helper()
	greet := helpers.NewFakeStep("greet", nil)
	e.Register(t, helpers.NewWorkflow(
		"add_profile", []api.IntentID{"add_profile"}, greet.StepID,
	), greet)
	e.Classifier.Intent = "add_profile"
}

func TestHandleMessage(t *testing.T) {
	env := testServer(t)
	as := assert.New(t)
	env.installGreeting(t)

	w := env.do("POST", "/api/v1/message", api.MessageRequest{
		UserID: "user-1", Text: "hi there",
	})
	as.Equal(http.StatusOK, w.Code)

	var accepted api.MessageAccepted
	as.Require.NoError(json.Unmarshal(w.Body.Bytes(), &accepted))
	as.Require.NotNil(accepted.Response)
	as.Equal("done", accepted.Response.Text)
}

func TestHandleMessageTrimsUser(t *testing.T) {
	env := testServer(t)
	as := assert.New(t)
	env.installGreeting(t)

	w := env.do("POST", "/api/v1/message", api.MessageRequest{
		UserID: "  user-1  ", Text: "hi",
	})
	as.Equal(http.StatusOK, w.Code)

	in, err := env.Store.Load(
		context.Background(), api.NewInstanceKey("user-1", "add_profile"),
	)
	as.Require.NoError(err)
	as.InstanceStatus(in, api.StatusCompleted)
}

func TestHandleMessageInvalidJSON(t *testing.T) {
	env := testServer(t)
	as := assert.New(t)

	w := env.doRaw("POST", "/api/v1/message", []byte("not-json"))
	as.Equal(http.StatusBadRequest, w.Code)
}

func TestHandleMessageMissingUser(t *testing.T) {
	env := testServer(t)
	as := assert.New(t)
	env.installGreeting(t)

	w := env.do("POST", "/api/v1/message", api.MessageRequest{
		Text: "hi",
	})
	as.Equal(http.StatusBadRequest, w.Code)
	as.Contains(w.Body.String(), "no user")
}

func TestHandleMessageNoFallback(t *testing.T) {
	env := testServer(t)
	as := assert.New(t)

	// no workflows registered, so routing has nowhere to land
	w := env.do("POST", "/api/v1/message", api.MessageRequest{
		UserID: "user-1", Text: "hi",
	})
	as.Equal(http.StatusInternalServerError, w.Code)
}

func TestListWorkflows(t *testing.T) {
	env := testServer(t)
	as := assert.New(t)

	a := helpers.NewFakeStep("a", nil)
	b := helpers.NewFakeStep("b", nil)
	env.Register(t, helpers.NewWorkflow(
		"add_profile", []api.IntentID{"add_profile"}, a.StepID,
	), a)
	env.Register(t, helpers.NewWorkflow(
		"generate_report", []api.IntentID{"generate_report"}, b.StepID,
	), b)

	w := env.do("GET", "/api/v1/workflows", nil)
	as.Equal(http.StatusOK, w.Code)

	var response api.WorkflowsListResponse
	as.Require.NoError(json.Unmarshal(w.Body.Bytes(), &response))
	as.Equal(2, response.Count)
	as.Require.Len(response.Workflows, 2)
	as.Equal(api.WorkflowID("add_profile"), response.Workflows[0].ID)
	as.Equal(api.WorkflowID("generate_report"), response.Workflows[1].ID)
}

func TestListInstancesEmpty(t *testing.T) {
	env := testServer(t)
	as := assert.New(t)

	w := env.do("GET", "/api/v1/instances/user-none", nil)
	as.Equal(http.StatusOK, w.Code)

	var response api.InstancesListResponse
	as.Require.NoError(json.Unmarshal(w.Body.Bytes(), &response))
	as.Equal(0, response.Count)
}

func TestListInstances(t *testing.T) {
	env := testServer(t)
	as := assert.New(t)
	env.installGreeting(t)

	w := env.do("POST", "/api/v1/message", api.MessageRequest{
		UserID: "user-1", Text: "hi",
	})
	as.Require.Equal(http.StatusOK, w.Code)

	w = env.do("GET", "/api/v1/instances/user-1", nil)
	as.Equal(http.StatusOK, w.Code)

	var response api.InstancesListResponse
	as.Require.NoError(json.Unmarshal(w.Body.Bytes(), &response))
	as.Require.Equal(1, response.Count)

	digest := response.Instances[0]
	as.Equal(api.WorkflowID("add_profile"), digest.Key.WorkflowID)
	as.Equal(api.StatusCompleted, digest.Status)
}

func TestGetReport(t *testing.T) {
	env := testServer(t)
	as := assert.New(t)

	doc := &report.Document{
		ID:        "r-1",
		UserID:    "user-1",
		ProfileID: "p-1",
		Title:     "Birth Chart Report for Asha",
		Body:      "Sun Sign: Leo",
		CreatedAt: time.Now().UTC(),
	}
	as.Require.NoError(env.Archive.Put(context.Background(), doc))

	w := env.do("GET", "/api/v1/reports/user-1/r-1", nil)
	as.Equal(http.StatusOK, w.Code)

	var got report.Document
	as.Require.NoError(json.Unmarshal(w.Body.Bytes(), &got))
	as.Equal(doc.Title, got.Title)
	as.Equal(doc.Body, got.Body)
}

func TestGetReportNotFound(t *testing.T) {
	env := testServer(t)
	as := assert.New(t)

	w := env.do("GET", "/api/v1/reports/user-1/r-404", nil)
	as.Equal(http.StatusNotFound, w.Code)
	as.Contains(w.Body.String(), "r-404")
}

func TestBasicHealthEndpoint(t *testing.T) {
	env := testServer(t)
	as := assert.New(t)

	w := env.do("GET", "/health", nil)
	as.Equal(http.StatusOK, w.Code)

	var response api.HealthResponse
	as.Require.NoError(json.Unmarshal(w.Body.Bytes(), &response))
	as.Equal("parley", response.Service)
	as.Equal("healthy", response.Status)
	as.NotEmpty(response.Version)
	as.NotEmpty(response.Uptime)
}

func TestMetricsEndpoint(t *testing.T) {
	env := testServer(t)
	as := assert.New(t)

	w := env.do("GET", "/metrics", nil)
	as.Equal(http.StatusOK, w.Code)
	as.Contains(w.Body.String(), "go_goroutines")
}

func TestCORSOptions(t *testing.T) {
	env := testServer(t)
	as := assert.New(t)

	w := env.do("OPTIONS", "/api/v1/message", nil)
	as.Equal(http.StatusOK, w.Code)
	as.Equal("*", w.Header().Get("Access-Control-Allow-Origin"))
	as.Contains(w.Header().Get("Access-Control-Allow-Methods"), "POST")
	as.Contains(
		w.Header().Get("Access-Control-Allow-Headers"), "Content-Type",
	)
}
