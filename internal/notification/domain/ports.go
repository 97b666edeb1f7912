package domain

import (
	"context"
	"errors"
	"time"

	sharedDomain "github.com/davicafu/tasknotify/internal/shared/domain"
	sharedQuery "github.com/davicafu/tasknotify/internal/shared/infra/platform/query"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrMalformedEvent       = errors.New("malformed task event")
	ErrUnknownEventKind     = errors.New("unknown event kind")
)

// --- Repositorio de Notifications ---

// NotificationRepository es el contrato de almacenamiento del que depende la ingesta y la API.
type NotificationRepository interface {
	// Save inserta si no existe. Un id duplicado no modifica nada y devuelve el mismo id.
	Save(ctx context.Context, n *Notification) (string, error)
	GetByID(ctx context.Context, id string) (*Notification, error)
	ListByCriteria(ctx context.Context, criteria sharedDomain.Criteria, pagination sharedQuery.Pagination, sort sharedQuery.Sort) ([]*Notification, error)
	Count(ctx context.Context, criteria sharedDomain.Criteria) (int64, error)
	CountByKind(ctx context.Context) (map[EventKind]int64, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) (int64, error)
	DeleteByID(ctx context.Context, id string) error
	// DeleteOlderThan elimina lo creado estrictamente antes de cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Ping(ctx context.Context) error
}

// ---------- Helpers comunes (cache keys, etc.) ----------

const (
	UnreadCountCacheKey = "notifications:unread"
	StatsCacheKey       = "notifications:stats"
)

// ReadModelCacheKeys son las claves que cualquier escritura debe invalidar.
func ReadModelCacheKeys() []string {
	return []string{UnreadCountCacheKey, StatsCacheKey}
}
