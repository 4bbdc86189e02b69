package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/assistantd/internal/agent"
	"github.com/fyrsmithlabs/assistantd/internal/chat"
	"github.com/fyrsmithlabs/assistantd/internal/logging"
	"github.com/fyrsmithlabs/assistantd/internal/memory"
	"github.com/fyrsmithlabs/assistantd/internal/store"
	"github.com/fyrsmithlabs/assistantd/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

var now = time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)

type replyDispatcher struct{}

func (replyDispatcher) Process(_ context.Context, input string, _ agent.RoutingContext) string {
	return "ok: " + input
}

// wordEmbedder puts "coffee" and "dentist" on separate axes.
type wordEmbedder struct{}

func (wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := []float32{0.01, 0.01}
	if strings.Contains(strings.ToLower(text), "coffee") {
		vec[0] = 1
	}
	if strings.Contains(strings.ToLower(text), "dentist") {
		vec[1] = 1
	}
	return vec, nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type testServer struct {
	*Server
	db  *store.InMemory
	log *logging.TestLogger
}

func setupTestServer(t *testing.T, opts ...func(*Deps)) *testServer {
	t.Helper()
	db := store.NewInMemory(func() time.Time { return now })
	ix, err := memory.NewIndex(memory.NewMemStore(), memory.Config{Dimension: 2}, nil)
	require.NoError(t, err)

	deps := Deps{
		Chat:      chat.NewService(db.Messages(), replyDispatcher{}, nil, chat.WithClock(func() time.Time { return now })),
		Tasks:     db.Tasks(),
		Reminders: db.Reminders(),
		Memories:  memory.NewService(ix, wordEmbedder{}, nil),
		DB:        pinger{},
	}
	for _, o := range opts {
		o(&deps)
	}

	tl := logging.NewTestLogger()
	srv, err := NewServer(deps, tl.Logger, nil, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return &testServer{Server: srv, db: db, log: tl}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNewServer_RequiresDeps(t *testing.T) {
	_, err := NewServer(Deps{}, nil, nil)
	assert.ErrorContains(t, err, "chat service is required")
}

func TestHealth(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[HealthResponse](t, rec).Status)

	rec = ts.do(t, http.MethodGet, "/health/db", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type tracingHealth telemetry.HealthStatus

func (h tracingHealth) Health() telemetry.HealthStatus { return telemetry.HealthStatus(h) }

func TestHealth_ReportsDegradedTracing(t *testing.T) {
	ts := setupTestServer(t, func(d *Deps) { d.Tracing = tracingHealth{Healthy: true, Degraded: true} })

	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Tracing)
	assert.True(t, resp.Tracing.Degraded)
}

func TestHealthDB_Unavailable(t *testing.T) {
	ts := setupTestServer(t, func(d *Deps) { d.DB = pinger{err: errors.New("disk gone")} })

	rec := ts.do(t, http.MethodGet, "/health/db", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "unavailable", resp.Status)
	assert.NotContains(t, resp.Error, "disk gone")
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	ts.do(t, http.MethodGet, "/health", nil)

	rec := ts.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "assistant_http_requests_total")
}

func TestChat(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/chat", ChatRequest{Message: "привет", SessionID: "s-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	reply := decode[chat.Reply](t, rec)
	assert.Equal(t, "ok: привет", reply.Message)
	assert.Equal(t, "s-1", reply.SessionID)

	rec = ts.do(t, http.MethodGet, "/api/chat/history?session_id=s-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := decode[[]store.Message](t, rec)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
	assert.Equal(t, store.RoleAssistant, msgs[1].Role)

	ts.log.AssertLogged(t, zapcore.InfoLevel, "http request")
	uri, _ := ts.log.Field("http request", "uri")
	assert.Equal(t, "/api/chat", uri)

	ts.log.AssertLogged(t, logging.TraceLevel, "chat turn")
	sid, _ := ts.log.Field("chat turn", "session.id")
	assert.Equal(t, "s-1", sid)
}

func TestChat_NewSessionAndEmptyMessage(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/chat", ChatRequest{Message: "hi"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[chat.Reply](t, rec).SessionID)

	rec = ts.do(t, http.MethodPost, "/api/chat", ChatRequest{Message: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/chat/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]store.Message](t, rec), 2)
}

func TestTasks_CRUD(t *testing.T) {
	ts := setupTestServer(t)
	due := time.Date(2026, 5, 22, 0, 0, 0, 0, time.UTC)

	rec := ts.do(t, http.MethodPost, "/api/tasks", CreateTaskRequest{Title: "Купить молоко", DueDate: &due})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[store.Task](t, rec)
	assert.Equal(t, store.PriorityMedium, created.Priority)
	assert.Equal(t, now, created.CreatedAt)
	assert.Equal(t, "/api/tasks/"+created.ID, rec.Header().Get("Location"))

	rec = ts.do(t, http.MethodGet, "/api/tasks/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Купить молоко", decode[store.Task](t, rec).Title)

	rec = ts.do(t, http.MethodGet, "/api/tasks/active", nil)
	assert.Len(t, decode[[]store.Task](t, rec), 1)

	title := "Купить кефир"
	prio := 3
	rec = ts.do(t, http.MethodPut, "/api/tasks/"+created.ID, UpdateTaskRequest{Title: &title, Priority: &prio})
	require.Equal(t, http.StatusNoContent, rec.Code)

	got, err := ts.db.Tasks().Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Купить кефир", got.Title)
	assert.Equal(t, store.PriorityHigh, got.Priority)

	rec = ts.do(t, http.MethodDelete, "/api/tasks/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/tasks/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/tasks", nil)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestTasks_CompleteStampsOnce(t *testing.T) {
	ts := setupTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/tasks", CreateTaskRequest{Title: "Отчёт", Priority: 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[store.Task](t, rec).ID

	done := true
	rec = ts.do(t, http.MethodPut, "/api/tasks/"+id, UpdateTaskRequest{Completed: &done})
	require.Equal(t, http.StatusNoContent, rec.Code)
	first, err := ts.db.Tasks().Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, first.CompletedAt)

	now = now.Add(time.Hour)
	t.Cleanup(func() { now = now.Add(-time.Hour) })
	rec = ts.do(t, http.MethodPut, "/api/tasks/"+id, UpdateTaskRequest{Completed: &done})
	require.Equal(t, http.StatusNoContent, rec.Code)
	second, err := ts.db.Tasks().Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, *first.CompletedAt, *second.CompletedAt)

	rec = ts.do(t, http.MethodGet, "/api/tasks/completed", nil)
	assert.Len(t, decode[[]store.Task](t, rec), 1)
}

func TestTasks_Validation(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/tasks", CreateTaskRequest{Title: " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "title is required", decode[ErrorResponse](t, rec).Message)

	rec = ts.do(t, http.MethodPost, "/api/tasks", CreateTaskRequest{Title: "x", Priority: 7})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	done := true
	rec = ts.do(t, http.MethodPut, "/api/tasks/missing", UpdateTaskRequest{Completed: &done})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReminders_CRUD(t *testing.T) {
	ts := setupTestServer(t)
	at := time.Date(2026, 5, 21, 18, 0, 0, 0, time.FixedZone("MSK", 3*3600))

	rec := ts.do(t, http.MethodPost, "/api/reminders", CreateReminderRequest{
		Title: "Позвонить маме", RemindAt: at, Recurring: true, RecurrencePattern: "ежедневно",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[store.Reminder](t, rec)
	assert.Equal(t, "daily", created.RecurrencePattern)
	assert.Equal(t, at.UTC(), created.RemindAt)

	rec = ts.do(t, http.MethodGet, "/api/reminders/active", nil)
	assert.Len(t, decode[[]store.Reminder](t, rec), 1)

	done := true
	rec = ts.do(t, http.MethodPut, "/api/reminders/"+created.ID, UpdateReminderRequest{Completed: &done})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/reminders/active", nil)
	assert.Empty(t, decode[[]store.Reminder](t, rec))
	rec = ts.do(t, http.MethodGet, "/api/reminders/completed", nil)
	assert.Len(t, decode[[]store.Reminder](t, rec), 1)

	rec = ts.do(t, http.MethodDelete, "/api/reminders/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/api/reminders/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReminders_Validation(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/reminders", CreateReminderRequest{Title: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/reminders", CreateReminderRequest{
		Title: "x", RemindAt: now, Recurring: true, RecurrencePattern: "hourly",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMemories(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/memories", StoreMemoryRequest{Content: "I drink coffee black"})
	require.Equal(t, http.StatusCreated, rec.Code)
	stored := decode[MemoryResponse](t, rec)
	assert.Equal(t, "api", stored.Metadata["source"])

	rec = ts.do(t, http.MethodPost, "/api/memories", StoreMemoryRequest{Content: "dentist on friday"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/memories/search?q=coffee&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode[[]MemoryResponse](t, rec)
	require.Len(t, results, 1)
	assert.Equal(t, stored.ID, results[0].ID)
	assert.Positive(t, results[0].Score)

	rec = ts.do(t, http.MethodGet, "/api/memories/search?q=coffee&limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/memories", StoreMemoryRequest{Content: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStoreFailureIsOpaque(t *testing.T) {
	ts := setupTestServer(t, func(d *Deps) { d.Tasks = failingTasks{} })

	rec := ts.do(t, http.MethodGet, "/api/tasks", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decode[ErrorResponse](t, rec).Message)
	ts.log.AssertLogged(t, zapcore.ErrorLevel, "request failed")
}

type failingTasks struct{ store.TaskStore }

func (failingTasks) List(context.Context) ([]store.Task, error) {
	return nil, store.ErrStorage
}
