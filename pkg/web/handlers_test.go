package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltflow/voltflow/pkg/events"
	"github.com/voltflow/voltflow/pkg/models"
	"github.com/voltflow/voltflow/pkg/persistence"
	"github.com/voltflow/voltflow/pkg/persistence/file"
	"github.com/voltflow/voltflow/pkg/queue"
	"github.com/voltflow/voltflow/pkg/services"
	"github.com/voltflow/voltflow/pkg/web"
)

type captureQueue struct {
	jobs []*events.RunJob
}

func (q *captureQueue) Enqueue(_ context.Context, job *events.RunJob) error {
	q.jobs = append(q.jobs, job)

	return nil
}

func (q *captureQueue) Consume(_ context.Context, _ queue.JobHandler) error { return nil }

func (q *captureQueue) Close() error { return nil }

func setupTestApp(t *testing.T) (*fiber.App, persistence.Persistence, *captureQueue) {
	t.Helper()

	persist := file.NewPersistence(t.TempDir())
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	jobQueue := &captureQueue{}
	execution := services.NewExecution(persist, jobQueue, nil, logger)
	validate := validator.New(validator.WithRequiredStructEnabled())
	handlers := web.NewAPIHandlers(execution, persist, validate)

	app := fiber.New()

	flows := app.Group("/flows")
	flows.Get("/", handlers.GetFlows)
	flows.Get("/:id", handlers.GetFlow)
	flows.Post("/:id/trigger", handlers.TriggerFlow)
	flows.Get("/:id/runs", handlers.GetFlowRuns)

	runs := app.Group("/runs")
	runs.Get("/:id", handlers.GetRun)
	runs.Post("/:id/cancel", handlers.CancelRun)

	app.Post("/webhooks/:flowID", handlers.IngestWebhook)
	app.Get("/health", handlers.HealthCheck)

	return app, persist, jobQueue
}

func seedFlow(t *testing.T, persist persistence.Persistence, status models.FlowStatus) *models.Flow {
	t.Helper()

	flow := &models.Flow{
		ID:     "flow-1",
		Name:   "Order Sync",
		Status: status,
		UserID: "user-1",
		Nodes: []*models.Node{
			{ID: "n1", Type: "log", Data: map[string]any{"message": "hi"}, Enabled: true},
		},
	}

	require.NoError(t, persist.Flows().Save(context.Background(), flow))

	return flow
}

func TestTriggerFlow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		flowStatus     models.FlowStatus
		seed           bool
		requestBody    any
		expectedStatus int
		expectedJobs   int
	}{
		{
			name:           "accepted",
			seed:           true,
			flowStatus:     models.FlowStatusActive,
			requestBody:    web.TriggerRequest{UserID: "user-1"},
			expectedStatus: http.StatusAccepted,
			expectedJobs:   1,
		},
		{
			name:           "draft flow conflicts",
			seed:           true,
			flowStatus:     models.FlowStatusDraft,
			requestBody:    web.TriggerRequest{UserID: "user-1"},
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "missing user id",
			seed:           true,
			flowStatus:     models.FlowStatusActive,
			requestBody:    web.TriggerRequest{},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid json",
			seed:           true,
			flowStatus:     models.FlowStatusActive,
			requestBody:    "not-json",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "flow not found",
			seed:           false,
			requestBody:    web.TriggerRequest{UserID: "user-1"},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app, persist, jobQueue := setupTestApp(t)

			if tt.seed {
				seedFlow(t, persist, tt.flowStatus)
			}

			var body []byte
			if str, ok := tt.requestBody.(string); ok {
				body = []byte(str)
			} else {
				var err error
				body, err = json.Marshal(tt.requestBody)
				require.NoError(t, err)
			}

			req := httptest.NewRequest(http.MethodPost, "/flows/flow-1/trigger", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			require.NoError(t, err)

			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			assert.Len(t, jobQueue.jobs, tt.expectedJobs)

			if tt.expectedStatus == http.StatusAccepted {
				var run models.Run
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
				assert.Equal(t, models.RunStatusQueued, run.Status)
				assert.Equal(t, "flow-1", run.FlowID)
			}
		})
	}
}

func TestIngestWebhook(t *testing.T) {
	t.Parallel()

	t.Run("object body", func(t *testing.T) {
		t.Parallel()

		app, persist, jobQueue := setupTestApp(t)
		seedFlow(t, persist, models.FlowStatusActive)

		body := []byte(`{"order_id": "o-1"}`)
		req := httptest.NewRequest(http.MethodPost, "/webhooks/flow-1", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		assert.NotEmpty(t, payload["run_id"])
		assert.InDelta(t, 1, payload["event_count"], 0)
		assert.Len(t, jobQueue.jobs, 1)
	})

	t.Run("array body", func(t *testing.T) {
		t.Parallel()

		app, persist, _ := setupTestApp(t)
		seedFlow(t, persist, models.FlowStatusActive)

		body := []byte(`[{"order_id": "o-1"}, {"order_id": "o-2"}]`)
		req := httptest.NewRequest(http.MethodPost, "/webhooks/flow-1", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		assert.InDelta(t, 2, payload["event_count"], 0)
	})

	t.Run("invalid body", func(t *testing.T) {
		t.Parallel()

		app, persist, _ := setupTestApp(t)
		seedFlow(t, persist, models.FlowStatusActive)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/flow-1", bytes.NewBufferString("nope"))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown flow", func(t *testing.T) {
		t.Parallel()

		app, _, _ := setupTestApp(t)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/missing", bytes.NewBufferString(`{}`))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestGetRun(t *testing.T) {
	t.Parallel()

	app, persist, _ := setupTestApp(t)
	seedFlow(t, persist, models.FlowStatusActive)

	run := &models.Run{
		ID:     "run-1",
		FlowID: "flow-1",
		UserID: "user-1",
		Status: models.RunStatusQueued,
	}
	require.NoError(t, persist.Runs().Create(context.Background(), run))
	require.NoError(t, persist.NodeOutputs().Append(context.Background(), &models.NodeOutput{
		RunID:  "run-1",
		NodeID: "n1",
		Output: map[string]any{"message": "hi"},
	}))

	req := httptest.NewRequest(http.MethodGet, "/runs/run-1", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var detail services.RunDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&detail))
	require.NotNil(t, detail.Run)
	assert.Equal(t, "run-1", detail.Run.ID)
	require.Len(t, detail.Outputs, 1)
	assert.Equal(t, "n1", detail.Outputs[0].NodeID)
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/runs/missing", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelRun(t *testing.T) {
	t.Parallel()

	app, persist, _ := setupTestApp(t)
	seedFlow(t, persist, models.FlowStatusActive)

	run := &models.Run{
		ID:     "run-1",
		FlowID: "flow-1",
		UserID: "user-1",
		Status: models.RunStatusQueued,
	}
	require.NoError(t, persist.Runs().Create(context.Background(), run))

	req := httptest.NewRequest(http.MethodPost, "/runs/run-1/cancel", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var cancelled models.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cancelled))
	assert.Equal(t, models.RunStatusCancelled, cancelled.Status)

	// a settled run cannot be cancelled again
	again := httptest.NewRequest(http.MethodPost, "/runs/run-1/cancel", nil)

	resp2, err := app.Test(again)
	require.NoError(t, err)

	defer func() { _ = resp2.Body.Close() }()

	assert.Equal(t, http.StatusConflict, resp2.StatusCode)
}

func TestGetFlowRuns(t *testing.T) {
	t.Parallel()

	app, persist, _ := setupTestApp(t)
	seedFlow(t, persist, models.FlowStatusActive)

	for _, id := range []string{"run-1", "run-2", "run-3"} {
		require.NoError(t, persist.Runs().Create(context.Background(), &models.Run{
			ID:     id,
			FlowID: "flow-1",
			UserID: "user-1",
			Status: models.RunStatusQueued,
		}))
	}

	req := httptest.NewRequest(http.MethodGet, "/flows/flow-1/runs?limit=2", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Runs  []*models.Run `json:"runs"`
		Count int           `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Len(t, payload.Runs, 2)
	assert.Equal(t, 2, payload.Count)

	bad := httptest.NewRequest(http.MethodGet, "/flows/flow-1/runs?limit=zero", nil)

	resp2, err := app.Test(bad)
	require.NoError(t, err)

	defer func() { _ = resp2.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestGetFlows(t *testing.T) {
	t.Parallel()

	app, persist, _ := setupTestApp(t)
	seedFlow(t, persist, models.FlowStatusActive)

	req := httptest.NewRequest(http.MethodGet, "/flows/", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload struct {
		Flows []*models.Flow `json:"flows"`
		Count int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, 1, payload.Count)
	require.Len(t, payload.Flows, 1)
	assert.Equal(t, "Order Sync", payload.Flows[0].Name)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "healthy", payload["status"])
}
