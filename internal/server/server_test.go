package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/quizsync-go/internal/client"
	"github.com/raphaelgruber/quizsync-go/internal/config"
	"github.com/raphaelgruber/quizsync-go/internal/generation"
	"github.com/raphaelgruber/quizsync-go/internal/history"
	"github.com/raphaelgruber/quizsync-go/internal/llm"
	"github.com/raphaelgruber/quizsync-go/internal/models"
	"github.com/raphaelgruber/quizsync-go/internal/parser"
	"github.com/raphaelgruber/quizsync-go/internal/server"
	"github.com/raphaelgruber/quizsync-go/internal/service"
)

// testLogger discards output unless a test fails loudly enough to need it.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, chunk parser.Chunk, n int, taskType models.TaskType) ([]models.Task, error) {
	tasks := make([]models.Task, 0, n)
	for i := 0; i < n; i++ {
		task := models.Task{
			Type:       taskType,
			Question:   fmt.Sprintf("Question %d about %s?", i, chunk.ID),
			DocumentID: chunk.DocumentID,
			ChunkID:    chunk.ID,
		}
		if taskType == models.TaskTypeFreeText {
			task.Options = []models.Option{{Text: "Paris", IsCorrect: true}}
		} else {
			task.Options = []models.Option{{Text: "Paris", IsCorrect: true}, {Text: "Lyon"}}
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

type stubGrader struct{}

func (stubGrader) Grade(_ context.Context, _ models.Task, answer string) (llm.Grade, error) {
	if answer == "Paris" {
		return llm.Grade{Score: 0, Feedback: "Correct."}, nil
	}
	return llm.Grade{Score: 3, Feedback: "Not related."}, nil
}

func (stubGrader) Explain(context.Context, models.Task, string) (string, error) {
	return "Paris is the capital.", nil
}

func newTestServer(t *testing.T, grader llm.Grader) *httptest.Server {
	t.Helper()
	logger := testLogger()
	ctx := context.Background()

	store := history.NewMemoryStore()
	recorder := history.NewRecorder(store, logger)
	docs := service.NewMemoryDocuments()
	require.NoError(t, docs.UpsertDocument(ctx, models.Document{ID: "france", Title: "France", Content: "Paris is the capital of France.", RepositoryID: "r1"}))
	require.NoError(t, docs.UpsertDocument(ctx, models.Document{ID: "rivers", Title: "Rivers", Content: "The Seine flows through Paris.", RepositoryID: "r1"}))

	gen := service.NewGenerationService(docs, recorder, stubGenerator{}, service.NewJobManager(logger), 2, logger)
	srv := server.New(gen, service.NewTaskService(store, recorder, grader, logger), service.NewAnalyticsService(store), logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = gen.Close(closeCtx)
	})
	return ts
}

// call performs a JSON request and decodes the response into out when given.
func call(t *testing.T, method, url string, body, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func generateSync(t *testing.T, ts *httptest.Server, req models.GenerateRequest) []models.Task {
	t.Helper()
	var tasks []models.Task
	status := call(t, http.MethodPost, ts.URL+"/api/tasks/generate-for-unit?sync=true", req, &tasks)
	require.Equal(t, http.StatusOK, status)
	return tasks
}

func mcRequest(n int) models.GenerateRequest {
	return models.GenerateRequest{UnitID: "u1", DocumentIDs: []string{"france", "rivers"}, NumTasks: n, TaskType: models.TaskTypeMultipleChoice}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	assert.Equal(t, http.StatusOK, call(t, http.MethodGet, ts.URL+"/health", nil, nil))
}

func TestGenerateQueued(t *testing.T) {
	ts := newTestServer(t, nil)

	var accepted models.JobAccepted
	status := call(t, http.MethodPost, ts.URL+"/api/tasks/generate-for-unit", mcRequest(3), &accepted)
	require.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "queued", accepted.Status)
	require.NotEmpty(t, accepted.JobID)

	require.Eventually(t, func() bool {
		var view service.JobView
		call(t, http.MethodGet, ts.URL+"/api/jobs/"+accepted.JobID, nil, &view)
		return view.Status == service.JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	var tasks []models.Task
	require.Equal(t, http.StatusOK, call(t, http.MethodGet, ts.URL+"/api/units/u1/tasks", nil, &tasks))
	assert.Len(t, tasks, 3)

	var jobs []service.JobView
	require.Equal(t, http.StatusOK, call(t, http.MethodGet, ts.URL+"/api/jobs", nil, &jobs))
	assert.Len(t, jobs, 1)
	assert.Equal(t, http.StatusNotFound, call(t, http.MethodGet, ts.URL+"/api/jobs/nope", nil, nil))
}

func TestGenerateSyncModes(t *testing.T) {
	ts := newTestServer(t, nil)

	tasks := generateSync(t, ts, mcRequest(2))
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.Equal(t, "u1", task.UnitID)
		assert.Equal(t, "r1", task.RepositoryID)
		assert.NotEmpty(t, task.Options[0].ID)
	}

	var ids struct {
		TaskIDs []string `json:"task_ids"`
	}
	status := call(t, http.MethodPost, ts.URL+"/api/tasks/generate-for-unit?sync=ids", mcRequest(1), &ids)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, ids.TaskIDs, 1)
}

func TestGenerateValidation(t *testing.T) {
	ts := newTestServer(t, nil)
	url := ts.URL + "/api/tasks/generate-for-unit"

	assert.Equal(t, http.StatusBadRequest, call(t, http.MethodPost, url, mcRequest(0), nil))

	unknown := mcRequest(1)
	unknown.DocumentIDs = []string{"atlantis"}
	assert.Equal(t, http.StatusBadRequest, call(t, http.MethodPost, url, unknown, nil))

	resp, err := http.Post(url, "application/json", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTaskHistoryRoutes(t *testing.T) {
	ts := newTestServer(t, nil)
	task := generateSync(t, ts, mcRequest(1))[0]
	base := ts.URL + "/api/tasks/" + task.ID

	q := "Which city is the capital of France?"
	var edited models.Task
	require.Equal(t, http.StatusOK, call(t, http.MethodPatch, base, models.TaskUpdate{Question: &q}, &edited))
	assert.Equal(t, q, edited.Question)

	var versions []models.TaskVersion
	require.Equal(t, http.StatusOK, call(t, http.MethodGet, base+"/versions", nil, &versions))
	require.Len(t, versions, 2)
	assert.Nil(t, versions[0].Options)

	var cmp models.Comparison
	require.Equal(t, http.StatusOK, call(t, http.MethodGet, base+"/compare?version1=1&version2=2", nil, &cmp))
	require.Len(t, cmp.Differences, 1)
	assert.Equal(t, "question", cmp.Differences[0].Field)
	assert.Equal(t, q, cmp.Differences[0].After)

	assert.Equal(t, http.StatusBadRequest, call(t, http.MethodGet, base+"/compare?version1=1", nil, nil))
	assert.Equal(t, http.StatusNotFound, call(t, http.MethodGet, base+"/compare?version1=1&version2=9", nil, nil))

	var changes []models.ChangeEvent
	require.Equal(t, http.StatusOK, call(t, http.MethodGet, base+"/change-history?limit=1", nil, &changes))
	require.Len(t, changes, 1)
	assert.Equal(t, models.ChangeQuestionUpdated, changes[0].Kind)
	assert.Equal(t, http.StatusBadRequest, call(t, http.MethodGet, base+"/change-history?limit=x", nil, nil))

	assert.Equal(t, http.StatusNoContent, call(t, http.MethodDelete, base+"?user_id=teacher", nil, nil))

	var deleted models.Task
	require.Equal(t, http.StatusOK, call(t, http.MethodGet, base, nil, &deleted))
	assert.NotNil(t, deleted.DeletedAt)
	assert.Equal(t, http.StatusGone, call(t, http.MethodPatch, base, models.TaskUpdate{Question: &q}, nil))

	var unit []models.Task
	require.Equal(t, http.StatusOK, call(t, http.MethodGet, ts.URL+"/api/units/u1/tasks", nil, &unit))
	assert.Empty(t, unit)

	assert.Equal(t, http.StatusNotFound, call(t, http.MethodGet, ts.URL+"/api/tasks/missing", nil, nil))
	assert.Equal(t, http.StatusNotFound, call(t, http.MethodGet, ts.URL+"/api/tasks/missing/versions", nil, nil))
}

func TestEvaluateRoutes(t *testing.T) {
	ts := newTestServer(t, stubGrader{})
	req := mcRequest(1)
	req.TaskType = models.TaskTypeFreeText
	task := generateSync(t, ts, req)[0]
	base := ts.URL + "/api/tasks/" + task.ID

	var resp models.EvaluateResponse
	require.Equal(t, http.StatusOK, call(t, http.MethodPost, base+"/evaluate", models.EvaluateRequest{StudentAnswer: "Paris"}, &resp))
	require.NotNil(t, resp.Score)
	assert.Equal(t, 0, *resp.Score)

	var answers []models.AnswerEvent
	require.Equal(t, http.StatusOK, call(t, http.MethodGet, base+"/answer-history", nil, &answers))
	require.Len(t, answers, 1)
	assert.Equal(t, models.ResultCorrect, answers[0].Result)

	var stored models.AnswerEvent
	require.Equal(t, http.StatusCreated, call(t, http.MethodPost, base+"/answers", models.AnswerEvent{Result: models.ResultIncorrect, Answer: "Lyon"}, &stored))
	assert.Equal(t, task.ID, stored.TaskID)
	assert.Equal(t, 1, stored.TaskVersion)
	assert.Equal(t, http.StatusBadRequest, call(t, http.MethodPost, base+"/answers", models.AnswerEvent{Result: "maybe"}, nil))

	var stats models.TaskStatistics
	require.Equal(t, http.StatusOK, call(t, http.MethodGet, base+"/statistics", nil, &stats))
	assert.Equal(t, 2, stats.Answers.Total)
	assert.Equal(t, 1, stats.Answers.Correct)
}

func TestEvaluateWithoutGrader(t *testing.T) {
	ts := newTestServer(t, nil)
	task := generateSync(t, ts, mcRequest(1))[0]

	status := call(t, http.MethodPost, ts.URL+"/api/tasks/"+task.ID+"/evaluate", models.EvaluateRequest{StudentAnswer: "Paris"}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestRepositoryRoutes(t *testing.T) {
	ts := newTestServer(t, nil)
	tasks := generateSync(t, ts, mcRequest(2))
	repo := ts.URL + "/api/repositories/r1"

	require.Equal(t, http.StatusNoContent, call(t, http.MethodDelete, ts.URL+"/api/tasks/"+tasks[0].ID, nil, nil))
	require.Equal(t, http.StatusCreated, call(t, http.MethodPost, ts.URL+"/api/tasks/"+tasks[1].ID+"/answers", models.AnswerEvent{Result: models.ResultCorrect}, nil))

	entered := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	visit := models.PageVisit{Page: "quiz", RepositoryID: "r1", EnteredAt: models.At(entered), LeftAt: models.At(entered.Add(90 * time.Second))}
	require.Equal(t, http.StatusCreated, call(t, http.MethodPost, ts.URL+"/api/page-visits", visit, nil))

	backwards := visit
	backwards.LeftAt = models.At(entered.Add(-time.Second))
	assert.Equal(t, http.StatusBadRequest, call(t, http.MethodPost, ts.URL+"/api/page-visits", backwards, nil))

	var stats models.RepositoryStatistics
	require.Equal(t, http.StatusOK, call(t, http.MethodGet, repo+"/statistics", nil, &stats))
	assert.Equal(t, 2, stats.Lifecycle.Created)
	assert.Equal(t, 1, stats.Lifecycle.Deleted)
	assert.Equal(t, 1, stats.Lifecycle.Active)
	assert.InDelta(t, 50.0, stats.PercentDeleted, 1e-9)
	assert.Equal(t, 1, stats.Answers.Total)
	require.Len(t, stats.Pages, 1)
	assert.Equal(t, int64(90000), stats.Pages[0].TotalMs)

	var events models.RepositoryEvents
	require.Equal(t, http.StatusOK, call(t, http.MethodGet, repo+"/events", nil, &events))
	assert.Equal(t, stats, history.Recount(events))
}

// TestClientReconcilesQueuedGeneration drives the real client and dispatcher
// against the server: submission is queued, so the job resolves by polling.
func TestClientReconcilesQueuedGeneration(t *testing.T) {
	ts := newTestServer(t, nil)

	cfg := config.DefaultReconcile()
	cfg.BaseDelay = 20 * time.Millisecond
	cfg.MaxDelay = 50 * time.Millisecond
	cfg.EmptyRecheck = 20 * time.Millisecond
	cfg.SubmitStep = 10 * time.Millisecond
	cfg.MaxElapsed = 10 * time.Second

	backend := client.New(ts.URL, client.WithTimeout(5*time.Second))
	collection := generation.NewCollection()
	dispatcher := generation.NewDispatcher(backend, collection, generation.NewRegistry(), cfg,
		generation.WithJitter(func(time.Duration) time.Duration { return 0 }),
		generation.WithLogger(testLogger()))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	h, err := dispatcher.Dispatch(ctx, mcRequest(3))
	require.NoError(t, err)
	res, err := h.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, generation.PhaseResolved, res.Phase)
	assert.Equal(t, generation.PathPolled, res.Path)
	assert.NoError(t, res.Err)
	assert.NotEmpty(t, res.Tasks)
	assert.Equal(t, len(res.Tasks), collection.Len("u1"))
}
