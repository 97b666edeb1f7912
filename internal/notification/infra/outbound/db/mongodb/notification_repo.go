package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	notificationDomain "github.com/davicafu/tasknotify/internal/notification/domain"
	sharedDomain "github.com/davicafu/tasknotify/internal/shared/domain"
	sharedQuery "github.com/davicafu/tasknotify/internal/shared/infra/platform/query"
)

const (
	collectionName = "notifications"

	// Límites de conexión al servidor.
	serverSelectionTimeout = 5 * time.Second
	connectTimeout         = 5 * time.Second
)

// ClientOptions construye las opciones del cliente con los tiempos de conexión acotados.
func ClientOptions(uri string) *options.ClientOptions {
	return options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(serverSelectionTimeout).
		SetConnectTimeout(connectTimeout)
}

// NotificationRepoMongoDB implementa NotificationRepository sobre MongoDB.
type NotificationRepoMongoDB struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ notificationDomain.NotificationRepository = (*NotificationRepoMongoDB)(nil)

// NewNotificationRepoMongoDB comprueba la conexión y asegura los índices.
func NewNotificationRepoMongoDB(ctx context.Context, client *mongo.Client, dbName string) (*NotificationRepoMongoDB, error) {
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("could not ping mongoDB: %w", err)
	}

	r := &NotificationRepoMongoDB{
		client: client,
		coll:   client.Database(dbName).Collection(collectionName),
	}
	if err := r.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("could not create indexes: %w", err)
	}
	return r, nil
}

func (r *NotificationRepoMongoDB) ensureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "task_id", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	return err
}

// --- Structs de BSON para el mapeo ---

type mongoNotification struct {
	ID        string    `bson:"_id"`
	Kind      string    `bson:"event_type"`
	Title     string    `bson:"title"`
	Message   string    `bson:"message"`
	TaskID    string    `bson:"task_id"`
	Read      bool      `bson:"read"`
	CreatedAt time.Time `bson:"created_at"`
}

// --- Escritura ---

// Save hace un upsert con $setOnInsert: si el _id ya existe el documento no se toca.
func (r *NotificationRepoMongoDB) Save(ctx context.Context, n *notificationDomain.Notification) (string, error) {
	mn := toMongoNotification(n)
	update := bson.M{"$setOnInsert": bson.M{
		"event_type": mn.Kind,
		"title":      mn.Title,
		"message":    mn.Message,
		"task_id":    mn.TaskID,
		"read":       mn.Read,
		"created_at": mn.CreatedAt,
	}}

	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": mn.ID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return "", fmt.Errorf("save notification: %w", err)
	}
	return n.ID, nil
}

func (r *NotificationRepoMongoDB) MarkRead(ctx context.Context, id string) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return notificationDomain.ErrNotificationNotFound
	}
	return nil
}

func (r *NotificationRepoMongoDB) MarkAllRead(ctx context.Context) (int64, error) {
	res, err := r.coll.UpdateMany(ctx, bson.M{"read": false}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *NotificationRepoMongoDB) DeleteByID(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return notificationDomain.ErrNotificationNotFound
	}
	return nil
}

func (r *NotificationRepoMongoDB) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	filter := criteriaToMongoFilter(notificationDomain.CreatedBeforeCriteria{Before: cutoff})
	res, err := r.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// --- Lectura ---

func (r *NotificationRepoMongoDB) GetByID(ctx context.Context, id string) (*notificationDomain.Notification, error) {
	var mn mongoNotification
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&mn)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notificationDomain.ErrNotificationNotFound
		}
		return nil, err
	}
	return fromMongoNotification(&mn), nil
}

func (r *NotificationRepoMongoDB) ListByCriteria(ctx context.Context, criteria sharedDomain.Criteria, pagination sharedQuery.Pagination, sort sharedQuery.Sort) ([]*notificationDomain.Notification, error) {
	filter := criteriaToMongoFilter(criteria)
	opts := options.Find()

	if p, ok := pagination.(sharedQuery.OffsetPagination); ok {
		opts.SetSkip(int64(p.Offset))
		if p.Limit > 0 {
			opts.SetLimit(int64(p.Limit))
		}
	}

	if sort.Field != "" {
		sortDir := 1
		if sort.Desc {
			sortDir = -1
		}
		// _id como desempate para que la paginación sea estable.
		opts.SetSort(bson.D{{Key: sort.Field, Value: sortDir}, {Key: "_id", Value: sortDir}})
	}

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	notifications := make([]*notificationDomain.Notification, 0)
	for cursor.Next(ctx) {
		var mn mongoNotification
		if err := cursor.Decode(&mn); err != nil {
			return nil, err
		}
		notifications = append(notifications, fromMongoNotification(&mn))
	}
	return notifications, cursor.Err()
}

func (r *NotificationRepoMongoDB) Count(ctx context.Context, criteria sharedDomain.Criteria) (int64, error) {
	return r.coll.CountDocuments(ctx, criteriaToMongoFilter(criteria))
}

func (r *NotificationRepoMongoDB) CountByKind(ctx context.Context) (map[notificationDomain.EventKind]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$event_type"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := make(map[notificationDomain.EventKind]int64)
	for cursor.Next(ctx) {
		var row struct {
			Kind  string `bson:"_id"`
			Count int64  `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		out[notificationDomain.EventKind(row.Kind)] = row.Count
	}
	return out, cursor.Err()
}

func (r *NotificationRepoMongoDB) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

// --- Helpers de Mapeo y Conversión ---

func toMongoNotification(n *notificationDomain.Notification) *mongoNotification {
	return &mongoNotification{
		ID: n.ID, Kind: string(n.Kind), Title: n.Title, Message: n.Message,
		TaskID: n.TaskID, Read: n.Read, CreatedAt: n.CreatedAt.UTC(),
	}
}

func fromMongoNotification(mn *mongoNotification) *notificationDomain.Notification {
	return &notificationDomain.Notification{
		ID: mn.ID, Kind: notificationDomain.EventKind(mn.Kind), Title: mn.Title, Message: mn.Message,
		TaskID: mn.TaskID, Read: mn.Read, CreatedAt: mn.CreatedAt.UTC(),
	}
}

func criteriaToMongoFilter(criteria sharedDomain.Criteria) bson.D {
	if criteria == nil {
		return bson.D{}
	}
	conds := criteria.ToConditions()
	if len(conds) == 0 {
		return bson.D{}
	}

	filter := bson.D{}
	for _, c := range conds {
		var mongoOp string
		switch c.Op {
		case sharedDomain.OpNe:
			mongoOp = "$ne"
		case sharedDomain.OpGt:
			mongoOp = "$gt"
		case sharedDomain.OpGte:
			mongoOp = "$gte"
		case sharedDomain.OpLt:
			mongoOp = "$lt"
		case sharedDomain.OpLte:
			mongoOp = "$lte"
		default:
			mongoOp = "$eq"
		}
		filter = append(filter, bson.E{Key: c.Field, Value: bson.M{mongoOp: c.Value}})
	}
	return filter
}
