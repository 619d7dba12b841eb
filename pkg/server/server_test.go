package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentsdk/pkg/config"
	"github.com/kadirpekel/agentsdk/pkg/llms"
	"github.com/kadirpekel/agentsdk/pkg/queue"
	"github.com/kadirpekel/agentsdk/pkg/runtime"
)

func newTestRuntime(t *testing.T, responses ...string) *runtime.PlannerExecutorRuntime {
	t.Helper()
	provider := llms.NewMockProvider().WithResponses(responses...)
	rt, err := runtime.NewFromPreset(runtime.PresetMinimal, llms.ModelConfig{Provider: "mock", Model: "mock-model"}, provider)
	require.NoError(t, err)
	return rt
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := New(newTestRuntime(t), nil, ":0")

	rec := doRequest(t, s.Handler(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s := New(newTestRuntime(t), nil, ":0")

	rec := doRequest(t, s.Handler(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunEndpoint(t *testing.T) {
	rt := newTestRuntime(t,
		`{"task":"t","steps":[{"id":1,"description":"only step"}]}`,
		"Step summarized.",
	)
	s := New(rt, nil, ":0")

	rec := doRequest(t, s.Handler(), http.MethodPost, "/v1/runs", `{"task":"do the thing"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Messages, 2)
	assert.Contains(t, body.Messages[1].Content, "Step summarized.")
}

func TestRunEndpointValidation(t *testing.T) {
	s := New(newTestRuntime(t), nil, ":0")

	rec := doRequest(t, s.Handler(), http.MethodPost, "/v1/runs", `{"task":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s.Handler(), http.MethodPost, "/v1/runs", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitJobWithoutQueue(t *testing.T) {
	s := New(newTestRuntime(t), nil, ":0")

	rec := doRequest(t, s.Handler(), http.MethodPost, "/v1/jobs", `{"task":"queued thing"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSubmitJobEnqueues(t *testing.T) {
	rt := newTestRuntime(t,
		`{"task":"t","steps":[{"id":1,"description":"only step"}]}`,
		"done",
	)

	cfg := config.QueueConfig{Backend: "memory", PollInterval: 5 * time.Millisecond, MaxAttempts: 2}
	q := queue.New(queue.NewMemoryBackend(), queue.RuntimeHandler(rt), cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	s := New(rt, q, ":0")

	rec := doRequest(t, s.Handler(), http.MethodPost, "/v1/jobs", `{"task":"queued thing","session_id":"sess-q"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["job_id"])
}
