package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davicafu/tasknotify/internal/mocks"
	"github.com/davicafu/tasknotify/internal/notification/application"
	notificationDomain "github.com/davicafu/tasknotify/internal/notification/domain"
)

type testEnv struct {
	router    *gin.Engine
	repo      *mocks.InMemoryNotificationRepo
	publisher *mocks.MockPublisher
}

func setupRouter(t *testing.T, checks map[string]ReadinessCheck) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := mocks.NewInMemoryNotificationRepo()
	service := application.NewNotificationService(repo, mocks.NewDummyCache(), zap.NewNop())
	publisher := new(mocks.MockPublisher)
	handler := NewNotificationHandler(service, publisher, checks, zap.NewNop())

	router := gin.New()
	RegisterNotificationRoutes(router, handler)
	return &testEnv{router: router, repo: repo, publisher: publisher}
}

func (e *testEnv) do(method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) seed(t *testing.T, id string, kind notificationDomain.EventKind, taskID string, createdAt time.Time) {
	t.Helper()
	_, err := e.repo.Save(context.Background(), &notificationDomain.Notification{
		ID: id, Kind: kind, Title: "title", Message: "message", TaskID: taskID, CreatedAt: createdAt,
	})
	require.NoError(t, err)
}

func TestHealthAndRoot(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"notification-service","version":"1.0.0"}`, w.Body.String())

	w = env.do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadiness(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		env := setupRouter(t, map[string]ReadinessCheck{
			"rabbitmq": func(context.Context) error { return nil },
			"store":    func(context.Context) error { return nil },
		})
		w := env.do(http.MethodGet, "/readiness", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ready","services":{"rabbitmq":"connected","store":"connected"}}`, w.Body.String())
	})

	t.Run("broker down", func(t *testing.T) {
		env := setupRouter(t, map[string]ReadinessCheck{
			"rabbitmq": func(context.Context) error { return errors.New("channel closed") },
			"store":    func(context.Context) error { return nil },
		})
		w := env.do(http.MethodGet, "/readiness", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "not_ready")
	})
}

func TestListNotifications(t *testing.T) {
	env := setupRouter(t, nil)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 75; i++ {
		env.seed(t, fmt.Sprintf("n-%02d", i), notificationDomain.TaskCreated, "T1", base.Add(time.Duration(i)*time.Second))
	}

	w := env.do(http.MethodGet, "/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got []notificationDomain.Notification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 50)
	assert.Equal(t, "n-74", got[0].ID)

	w = env.do(http.MethodGet, "/notifications?limit=10&skip=70", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Len(t, got, 5)
}

func TestListNotifications_Validation(t *testing.T) {
	env := setupRouter(t, nil)

	for _, q := range []string{"limit=0", "limit=101", "limit=abc", "skip=-1", "read=maybe", "event_type=task.exploded"} {
		w := env.do(http.MethodGet, "/notifications?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestListNotifications_ReadFilter(t *testing.T) {
	env := setupRouter(t, nil)
	env.seed(t, "a", notificationDomain.TaskCreated, "T1", time.Now())
	env.seed(t, "b", notificationDomain.TaskCreated, "T1", time.Now())
	require.NoError(t, env.repo.MarkRead(context.Background(), "a"))

	w := env.do(http.MethodGet, "/notifications?read=false", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got []notificationDomain.Notification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestListByTask(t *testing.T) {
	env := setupRouter(t, nil)
	env.seed(t, "a", notificationDomain.TaskCreated, "T1", time.Now().Add(-time.Minute))
	env.seed(t, "b", notificationDomain.TaskCompleted, "T1", time.Now())
	env.seed(t, "c", notificationDomain.TaskCreated, "T2", time.Now())

	w := env.do(http.MethodGet, "/notifications/task/T1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got []notificationDomain.Notification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
}

func TestMarkReadAndDelete(t *testing.T) {
	env := setupRouter(t, nil)
	env.seed(t, "a", notificationDomain.TaskCreated, "T1", time.Now())

	w := env.do(http.MethodPost, "/notifications/a/read", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"marked_as_read","notification_id":"a"}`, w.Body.String())

	w = env.do(http.MethodGet, "/notifications/a", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"read":true`)

	w = env.do(http.MethodPost, "/notifications/missing/read", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodDelete, "/notifications/a", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodDelete, "/notifications/a", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMarkAllReadAndStats(t *testing.T) {
	env := setupRouter(t, nil)
	env.seed(t, "a", notificationDomain.TaskCreated, "T1", time.Now())
	env.seed(t, "b", notificationDomain.TaskDeleted, "T2", time.Now())

	w := env.do(http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":2,"unread":2,"by_type":{"task.created":1,"task.deleted":1}}`, w.Body.String())

	w = env.do(http.MethodPost, "/notifications/read-all", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"all_marked_as_read","count":2}`, w.Body.String())

	w = env.do(http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"unread":0`)
}

func TestPurgeNotifications(t *testing.T) {
	env := setupRouter(t, nil)
	env.seed(t, "old", notificationDomain.TaskCreated, "T1", time.Now().Add(-40*24*time.Hour))
	env.seed(t, "new", notificationDomain.TaskCreated, "T1", time.Now())

	w := env.do(http.MethodDelete, "/notifications?older_than_days=30", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
	assert.Equal(t, 1, env.repo.Len())

	w = env.do(http.MethodDelete, "/notifications?older_than_days=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPublishEvent(t *testing.T) {
	env := setupRouter(t, nil)
	env.publisher.On("Publish", mock.Anything, mock.MatchedBy(func(evt notificationDomain.TaskEvent) bool {
		return evt.Kind == notificationDomain.TaskCompleted && evt.TaskID == "T9" && evt.Timestamp != ""
	})).Return(nil).Once()

	w := env.do(http.MethodPost, "/events", []byte(`{"event_type":"completed","task_id":"T9","description":"Ship","is_completed":true}`))

	assert.Equal(t, http.StatusAccepted, w.Code)
	env.publisher.AssertExpectations(t)
}

func TestPublishEvent_Errors(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do(http.MethodPost, "/events", []byte(`{"event_type":"task.created"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/events", []byte(`{"event_type":"task.exploded","task_id":"T1"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("no channel")).Once()
	w = env.do(http.MethodPost, "/events", []byte(`{"event_type":"task.created","task_id":"T1"}`))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
