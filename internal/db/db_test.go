//go:build integration

// Package db provides integration tests for SurrealDB operations.
package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/raphaelgruber/quizsync-go/internal/history"
	"github.com/raphaelgruber/quizsync-go/internal/metrics"
	"github.com/raphaelgruber/quizsync-go/internal/models"
)

var testDB *Client
var testMetrics = metrics.NewCollector()

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v2.3.7",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := container.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil, testMetrics)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = container.Terminate(ctx)
	os.Exit(code)
}

// newRecorder returns a recorder on the shared database with a unique repository.
func newRecorder(t *testing.T) (*history.Recorder, string) {
	t.Helper()
	return history.NewRecorder(testDB, nil), "repo-" + uuid.NewString()[:8]
}

func createTask(t *testing.T, rec *history.Recorder, repo, unit string) models.Task {
	t.Helper()
	task, err := rec.Create(context.Background(), models.Task{
		Type:     models.TaskTypeMultipleChoice,
		Question: "Which city is the capital of France?",
		Options: []models.Option{
			{ID: "o1", Text: "Paris", IsCorrect: true},
			{ID: "o2", Text: "Lyon"},
		},
		UnitID:       unit,
		RepositoryID: repo,
	}, nil)
	require.NoError(t, err)
	return task
}

func strPtr(s string) *string { return &s }

// =============================================================================
// TASK TESTS
// =============================================================================

func TestInsertAndGetTask(t *testing.T) {
	ctx := context.Background()
	rec, repo := newRecorder(t)
	task := createTask(t, rec, repo, "unit-"+repo)

	got, err := testDB.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.Question, got.Question)
	assert.Equal(t, task.Options, got.Options)
	assert.Equal(t, repo, got.RepositoryID)
	assert.False(t, got.IsDeleted())
	assert.True(t, task.CreatedAt.Equal(got.CreatedAt.Time))

	latest, err := testDB.LatestVersion(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, latest)

	assert.NotNil(t, testMetrics.Snapshot().Op(metrics.OpDBQuery))
}

func TestGetTaskNotFound(t *testing.T) {
	_, err := testDB.GetTask(context.Background(), "missing-"+uuid.NewString())
	assert.ErrorIs(t, err, history.ErrNotFound)

	_, err = testDB.GetVersion(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListTasksByUnitSkipsDeleted(t *testing.T) {
	ctx := context.Background()
	rec, repo := newRecorder(t)
	unit := "unit-" + repo

	first := createTask(t, rec, repo, unit)
	second := createTask(t, rec, repo, unit)
	require.NoError(t, rec.Delete(ctx, first.ID, strPtr("alice")))

	tasks, err := testDB.ListTasksByUnit(ctx, unit)
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, models.IDs(tasks))

	deleted, err := testDB.GetTask(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted())
}

// =============================================================================
// HISTORY TESTS
// =============================================================================

func TestEditVersionsAndCompare(t *testing.T) {
	ctx := context.Background()
	rec, repo := newRecorder(t)
	task := createTask(t, rec, repo, "unit-"+repo)

	_, events, err := rec.Edit(ctx, task.ID, models.TaskUpdate{
		Question: strPtr("Which city is the largest in France?"),
		Options: []models.Option{
			{ID: "o1", Text: "Paris"},
			{ID: "o2", Text: "Lyon", IsCorrect: true},
		},
	})
	require.NoError(t, err)
	require.Len(t, events, 2)

	versions, err := testDB.ListVersions(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 1, versions[0].Version)
	assert.Equal(t, 2, versions[1].Version)

	cmp, err := rec.CompareVersions(ctx, task.ID, 1, 2)
	require.NoError(t, err)
	fields := make([]string, len(cmp.Differences))
	for i, d := range cmp.Differences {
		fields[i] = d.Field
	}
	assert.Equal(t, []string{"question", "correct_option"}, fields)

	changes, err := testDB.ListChanges(ctx, task.ID, 0)
	require.NoError(t, err)
	require.Len(t, changes, 3)
	assert.Equal(t, models.ChangeTaskCreated, changes[2].Kind)

	limited, err := testDB.ListChanges(ctx, task.ID, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestDuplicateVersionRejected(t *testing.T) {
	ctx := context.Background()
	rec, repo := newRecorder(t)
	task := createTask(t, rec, repo, "unit-"+repo)

	version := models.Snapshot(task, 1, time.Now(), nil)
	err := testDB.CommitChange(ctx, task, &version, nil)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestCommitChangeUnknownTask(t *testing.T) {
	task := models.Task{ID: "missing-" + uuid.NewString(), Type: models.TaskTypeFreeText}
	err := testDB.CommitChange(context.Background(), task, nil, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryEventsAndRecount(t *testing.T) {
	ctx := context.Background()
	rec, repo := newRecorder(t)
	task := createTask(t, rec, repo, "unit-"+repo)

	_, err := rec.RecordAnswer(ctx, models.AnswerEvent{TaskID: task.ID, Result: models.ResultCorrect, ChosenOptionID: "o1"})
	require.NoError(t, err)
	_, err = rec.RecordAnswer(ctx, models.AnswerEvent{TaskID: task.ID, Result: models.ResultIncorrect, ChosenOptionID: "o2", UserID: strPtr("bob")})
	require.NoError(t, err)

	now := time.Now()
	_, err = rec.RecordVisit(ctx, models.PageVisit{
		Page:         "quiz",
		RepositoryID: repo,
		EnteredAt:    models.At(now.Add(-5 * time.Second)),
		LeftAt:       models.At(now),
	})
	require.NoError(t, err)

	events, err := testDB.RepositoryEvents(ctx, repo)
	require.NoError(t, err)
	assert.Len(t, events.Changes, 1)
	assert.Len(t, events.Answers, 2)
	assert.Len(t, events.Visits, 1)

	answers, err := testDB.ListAnswers(ctx, task.ID, 0)
	require.NoError(t, err)
	require.Len(t, answers, 2)
	assert.Equal(t, "bob", *answers[0].UserID)

	stats := history.Recount(*events)
	assert.Equal(t, 1, stats.Lifecycle.Created)
	assert.InDelta(t, 0.5, stats.Answers.SuccessRate, 1e-9)
	require.Len(t, stats.Pages, 1)
	assert.Equal(t, int64(5000), stats.Pages[0].TotalMs)
}

// =============================================================================
// DOCUMENT TESTS
// =============================================================================

func TestDocuments(t *testing.T) {
	ctx := context.Background()
	id := "doc-" + uuid.NewString()[:8]

	require.NoError(t, testDB.UpsertDocument(ctx, models.Document{ID: id, Title: "France", Content: "# France\n\nParis is the capital."}))
	require.NoError(t, testDB.UpsertDocument(ctx, models.Document{ID: id, Title: "France", Content: "# France\n\nParis."}))

	doc, err := testDB.GetDocument(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "# France\n\nParis.", doc.Content)

	_, err = testDB.GetDocument(ctx, "doc-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
