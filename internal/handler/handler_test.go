package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planner/internal/db"
	"planner/internal/model"
	"planner/internal/planner"
	"planner/internal/queue"
	"planner/internal/stats"
	"planner/internal/syncer"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	api     humatest.TestAPI
	repo    *db.Repository
	planner *planner.Planner
}

func setupAPI(t *testing.T) testEnv {
	t.Helper()
	return setupAPIWithQueue(t, queue.NewMemoryStorage())
}

func setupAPIWithQueue(t *testing.T, store queue.Storage) testEnv {
	t.Helper()
	log := discard()

	repo, err := db.Open(db.DriverSQLite, filepath.Join(t.TempDir(), "planner.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	engine := syncer.New(repo, queue.New(store, log), log)
	p := planner.New(planner.Config{UserID: "u1", UndoGrace: time.Minute}, repo, engine, log)
	t.Cleanup(func() { p.Close(context.Background()) })

	_, api := humatest.New(t)
	NewHandler(p, time.UTC, log).RegisterRoutes(api)
	return testEnv{api: api, repo: repo, planner: p}
}

// settle waits until committed writes reached the remote store or the queue.
func (e testEnv) settle() {
	e.planner.Engine().Wait()
}

// brokenStorage fails every queue read and write.
type brokenStorage struct{}

func (brokenStorage) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errDisk }
func (brokenStorage) Set(context.Context, string, []byte) error         { return errDisk }
func (brokenStorage) Remove(context.Context, string) error              { return errDisk }

var errDisk = errors.New("disk unavailable")

func decode[T any](t *testing.T, body io.Reader) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(body).Decode(&v))
	return v
}

func (e testEnv) create(t *testing.T, date, text string) model.Task {
	t.Helper()
	resp := e.api.Post("/api/v1/days/"+date+"/tasks", map[string]any{"text": text})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	return decode[model.Task](t, resp.Body)
}

func TestCreateAndGetDay(t *testing.T) {
	env := setupAPI(t)

	first := env.create(t, "2024-03-04", "Pay rent")
	env.create(t, "2024-03-04", "Gym")
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, 0, first.Position)

	resp := env.api.Get("/api/v1/days/2024-03-04")
	require.Equal(t, http.StatusOK, resp.Code)
	day := decode[model.DayResponse](t, resp.Body)
	assert.Equal(t, 2, day.Total)
	assert.Equal(t, "Pay rent", day.Tasks[0].Text)

	env.settle()
	stored, err := env.repo.FetchAll(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, stored["2024-03-04"], 2)
}

func TestCreateTask_Validation(t *testing.T) {
	env := setupAPI(t)

	resp := env.api.Post("/api/v1/days/2024-03-04/tasks", map[string]any{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = env.api.Post("/api/v1/days/2024-03-04/tasks", map[string]any{"text": "x", "time": "25:99"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = env.api.Post("/api/v1/days/not-a-date/tasks", map[string]any{"text": "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	resp = env.api.Get("/api/v1/days/2024-03-04")
	day := decode[model.DayResponse](t, resp.Body)
	assert.Zero(t, day.Total)
	assert.NotNil(t, day.Tasks)
}

func TestUpdateTask(t *testing.T) {
	env := setupAPI(t)
	task := env.create(t, "2024-03-04", "Pay rent")

	resp := env.api.Put("/api/v1/days/2024-03-04/tasks/"+task.ID, map[string]any{
		"text":     "Pay rent today",
		"priority": "high",
		"subtasks": []map[string]any{{"text": "find invoice"}},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	updated := decode[model.Task](t, resp.Body)
	assert.Equal(t, task.ID, updated.ID)
	assert.Equal(t, model.PriorityHigh, updated.Priority)
	require.Len(t, updated.Subtasks, 1)
	assert.NotEmpty(t, updated.Subtasks[0].ID)

	resp = env.api.Post("/api/v1/days/2024-03-04/tasks/" + task.ID + "/subtasks/" + updated.Subtasks[0].ID + "/toggle")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, decode[model.Task](t, resp.Body).Subtasks[0].Done)
}

func TestUpdateTask_WrongDateConflicts(t *testing.T) {
	env := setupAPI(t)
	task := env.create(t, "2024-03-04", "Pay rent")

	resp := env.api.Put("/api/v1/days/2024-03-05/tasks/"+task.ID, map[string]any{"text": "Pay rent"})
	assert.Equal(t, http.StatusConflict, resp.Code, resp.Body.String())

	resp = env.api.Get("/api/v1/days/2024-03-05")
	assert.Zero(t, decode[model.DayResponse](t, resp.Body).Total)

	env.settle()
	stored, err := env.repo.FetchAll(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, stored["2024-03-04"], 1)
	assert.Empty(t, stored["2024-03-05"])
}

func TestToggleRecurring(t *testing.T) {
	env := setupAPI(t)
	resp := env.api.Post("/api/v1/days/2024-03-08/tasks", map[string]any{"text": "Standup", "recurrence": "weekdays"})
	require.Equal(t, http.StatusCreated, resp.Code)
	task := decode[model.Task](t, resp.Body)

	resp = env.api.Post("/api/v1/days/2024-03-08/tasks/" + task.ID + "/toggle")
	require.Equal(t, http.StatusOK, resp.Code)
	toggled := decode[model.ToggleResponse](t, resp.Body)
	assert.True(t, toggled.Task.Done)
	require.NotNil(t, toggled.Spawned)
	assert.Equal(t, "2024-03-11", toggled.Spawned.Date)

	resp = env.api.Post("/api/v1/days/2024-03-08/tasks/missing/toggle")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestDeleteAndUndo(t *testing.T) {
	env := setupAPI(t)
	task := env.create(t, "2024-03-04", "Pay rent")

	resp := env.api.Delete("/api/v1/days/2024-03-04/tasks/" + task.ID)
	require.Equal(t, http.StatusOK, resp.Code)
	deleted := decode[model.DeleteResponse](t, resp.Body)
	assert.Equal(t, task.ID, deleted.Task.ID)
	assert.False(t, deleted.UndoUntil.IsZero())

	resp = env.api.Get("/api/v1/undo")
	pending := decode[model.PendingDeleteResponse](t, resp.Body)
	assert.True(t, pending.Pending)

	resp = env.api.Post("/api/v1/undo")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, task.ID, decode[model.Task](t, resp.Body).ID)

	resp = env.api.Post("/api/v1/undo")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	env.settle()
	stored, err := env.repo.FetchAll(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, stored["2024-03-04"], 1)
}

func TestVisibilityFinalizesDelete(t *testing.T) {
	env := setupAPI(t)
	task := env.create(t, "2024-03-04", "Pay rent")

	env.api.Delete("/api/v1/days/2024-03-04/tasks/" + task.ID)
	resp := env.api.Put("/api/v1/session/visibility", map[string]any{"hidden": true})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, decode[model.VisibilityResponse](t, resp.Body).Finalized)

	env.settle()
	stored, err := env.repo.FetchAll(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, stored["2024-03-04"])
}

func TestReorderAndMove(t *testing.T) {
	env := setupAPI(t)
	a := env.create(t, "2024-03-04", "a")
	b := env.create(t, "2024-03-04", "b")

	resp := env.api.Put("/api/v1/days/2024-03-04/order", map[string]any{"ids": []string{b.ID, a.ID}})
	require.Equal(t, http.StatusOK, resp.Code)
	day := decode[model.DayResponse](t, resp.Body)
	assert.Equal(t, b.ID, day.Tasks[0].ID)

	resp = env.api.Put("/api/v1/days/2024-03-04/order", map[string]any{"ids": []string{a.ID}})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = env.api.Post("/api/v1/days/2024-03-04/tasks/"+a.ID+"/move", map[string]any{"to": "2024-03-04"})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.False(t, decode[model.MoveResponse](t, resp.Body).Moved)

	resp = env.api.Post("/api/v1/days/2024-03-04/tasks/"+a.ID+"/move", map[string]any{"to": "2024-03-05"})
	require.Equal(t, http.StatusOK, resp.Code)
	moved := decode[model.MoveResponse](t, resp.Body)
	assert.True(t, moved.Moved)
	assert.Equal(t, "2024-03-05", moved.Task.Date)
}

func TestSearch(t *testing.T) {
	env := setupAPI(t)
	env.create(t, "2024-03-04", "Pay rent")
	env.create(t, "2024-03-09", "pay bills")

	resp := env.api.Get("/api/v1/tasks/search?q=pay")
	require.Equal(t, http.StatusOK, resp.Code)
	found := decode[model.SearchResponse](t, resp.Body)
	require.Len(t, found.Tasks, 2)
	assert.Equal(t, "2024-03-09", found.Tasks[0].Date)
}

func TestWeightEndpoints(t *testing.T) {
	env := setupAPI(t)

	resp := env.api.Put("/api/v1/weight/2024-03-04", map[string]any{"weight_kg": 80.5})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = env.api.Put("/api/v1/weight/2024-03-04", map[string]any{"weight_kg": 5})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	resp = env.api.Put("/api/v1/weight/goal", map[string]any{"goal_kg": 75})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = env.api.Get("/api/v1/weight")
	list := decode[model.WeightListResponse](t, resp.Body)
	assert.Equal(t, 1, list.Count)

	resp = env.api.Get("/api/v1/stats/weight?today=2024-03-04")
	require.Equal(t, http.StatusOK, resp.Code)
	ws := decode[stats.WeightStats](t, resp.Body)
	require.NotNil(t, ws.ToGoal)
	assert.InDelta(t, 5.5, *ws.ToGoal, 0.001)
}

func TestTaskStats(t *testing.T) {
	env := setupAPI(t)
	task := env.create(t, "2024-03-04", "Pay rent")
	env.api.Post("/api/v1/days/2024-03-04/tasks/" + task.ID + "/toggle")

	resp := env.api.Get("/api/v1/stats/tasks?today=2024-03-04")
	require.Equal(t, http.StatusOK, resp.Code)
	s := decode[stats.TaskStats](t, resp.Body)
	assert.Equal(t, 1, s.ThisWeekDone)
	assert.Equal(t, 1, s.Streak)
	assert.Equal(t, "Monday", s.BestWeekday)
}

func TestSyncEndpoints(t *testing.T) {
	env := setupAPI(t)

	resp := env.api.Put("/api/v1/sync/connectivity", map[string]any{"online": false})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.False(t, decode[syncer.Status](t, resp.Body).Online)

	env.create(t, "2024-03-04", "offline task")
	env.settle()
	resp = env.api.Get("/api/v1/sync")
	st := decode[syncer.Status](t, resp.Body)
	assert.Equal(t, 1, st.Queued)

	resp = env.api.Put("/api/v1/sync/connectivity", map[string]any{"online": true})
	st = decode[syncer.Status](t, resp.Body)
	assert.True(t, st.Online)
	assert.Zero(t, st.Queued)
	require.NotNil(t, st.LastFlush)
	assert.Equal(t, 1, st.LastFlush.Replayed)

	resp = env.api.Post("/api/v1/sync/flush")
	require.Equal(t, http.StatusOK, resp.Code)

	stored, err := env.repo.FetchAll(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, stored["2024-03-04"], 1)
}

func TestFlushQueue_StorageFailure(t *testing.T) {
	env := setupAPIWithQueue(t, brokenStorage{})

	resp := env.api.Post("/api/v1/sync/flush")
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code, resp.Body.String())

	resp = env.api.Get("/api/v1/sync")
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestReload_KeepsQueuedWrites(t *testing.T) {
	env := setupAPI(t)
	env.api.Put("/api/v1/sync/connectivity", map[string]any{"online": false})
	task := env.create(t, "2024-03-04", "written offline")
	env.settle()

	resp := env.api.Post("/api/v1/tasks/reload")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 1, decode[model.TaskListResponse](t, resp.Body).Count)

	resp = env.api.Get("/api/v1/days/2024-03-04")
	day := decode[model.DayResponse](t, resp.Body)
	require.Len(t, day.Tasks, 1)
	assert.Equal(t, task.ID, day.Tasks[0].ID)
}

func TestReload(t *testing.T) {
	env := setupAPI(t)
	require.NoError(t, env.repo.Upsert(context.Background(), "u1", "2024-03-04",
		model.Task{ID: "remote", Date: "2024-03-04", Text: "from elsewhere"}))

	resp := env.api.Post("/api/v1/tasks/reload")
	require.Equal(t, http.StatusOK, resp.Code)
	list := decode[model.TaskListResponse](t, resp.Body)
	assert.Equal(t, 1, list.Count)
}
