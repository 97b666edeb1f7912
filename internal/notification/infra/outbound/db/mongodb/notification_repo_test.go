package mongodb

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	notificationDomain "github.com/davicafu/tasknotify/internal/notification/domain"
	sharedDomain "github.com/davicafu/tasknotify/internal/shared/domain"
	sharedQuery "github.com/davicafu/tasknotify/internal/shared/infra/platform/query"
)

func TestCriteriaToMongoFilter(t *testing.T) {
	cutoff := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	filter := criteriaToMongoFilter(sharedDomain.And(
		notificationDomain.ReadCriteria{Read: false},
		notificationDomain.TaskIDCriteria{TaskID: "T1"},
		notificationDomain.CreatedBeforeCriteria{Before: cutoff},
	))

	assert.Equal(t, bson.D{
		{Key: "read", Value: bson.M{"$eq": false}},
		{Key: "task_id", Value: bson.M{"$eq": "T1"}},
		{Key: "created_at", Value: bson.M{"$lt": cutoff}},
	}, filter)
	assert.Equal(t, bson.D{}, criteriaToMongoFilter(nil))
}

func TestMongoNotificationMapping(t *testing.T) {
	n := &notificationDomain.Notification{
		ID: "id-1", Kind: notificationDomain.TaskUpdated, Title: "t", Message: "m",
		TaskID: "T1", Read: true, CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, n, fromMongoNotification(toMongoNotification(n)))
}

// Integración real: solo se ejecuta con MONGODB_TEST_URI definido.
func newTestRepo(t *testing.T) *NotificationRepoMongoDB {
	t.Helper()
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI no definido, se omite la prueba de integración")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, ClientOptions(uri))
	require.NoError(t, err)

	dbName := "tasknotify_test_" + uuid.NewString()[:8]
	repo, err := NewNotificationRepoMongoDB(ctx, client, dbName)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Database(dbName).Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return repo
}

func TestClientOptions_BoundsConnectionTimeouts(t *testing.T) {
	opts := ClientOptions("mongodb://localhost:27017")

	require.NoError(t, opts.Validate())
	require.NotNil(t, opts.ServerSelectionTimeout)
	require.NotNil(t, opts.ConnectTimeout)
	assert.Equal(t, 5*time.Second, *opts.ServerSelectionTimeout)
	assert.Equal(t, 5*time.Second, *opts.ConnectTimeout)
	assert.Equal(t, []string{"localhost:27017"}, opts.Hosts)
}

func TestNotificationRepoMongoDB_Integration(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	evt := notificationDomain.TaskEvent{Kind: notificationDomain.TaskCreated, TaskID: "T1", Description: "Write docs", Timestamp: notificationDomain.FormatTimestamp(now)}
	n := notificationDomain.NewNotification(notificationDomain.NotificationID(evt), evt, notificationDomain.Generate(evt), now)

	id, err := repo.Save(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, n.ID, id)

	// Reentrega tras marcar como leída: no se sobrescribe.
	require.NoError(t, repo.MarkRead(ctx, id))
	_, err = repo.Save(ctx, n)
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Read)
	assert.Equal(t, "✨ New Task Created", got.Title)

	count, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	old := *n
	old.ID = uuid.NewString()
	old.CreatedAt = now.Add(-40 * 24 * time.Hour)
	_, err = repo.Save(ctx, &old)
	require.NoError(t, err)

	byKind, err := repo.CountByKind(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), byKind[notificationDomain.TaskCreated])

	list, err := repo.ListByCriteria(ctx, notificationDomain.TaskIDCriteria{TaskID: "T1"}, sharedQuery.OffsetPagination{Limit: 10}, sharedQuery.NewestFirst)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, id, list[0].ID)

	deleted, err := repo.DeleteOlderThan(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	assert.ErrorIs(t, repo.DeleteByID(ctx, old.ID), notificationDomain.ErrNotificationNotFound)
	assert.ErrorIs(t, repo.MarkRead(ctx, "missing"), notificationDomain.ErrNotificationNotFound)
	assert.NoError(t, repo.Ping(ctx))
}
