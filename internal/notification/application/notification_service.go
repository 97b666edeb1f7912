package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	notificationDomain "github.com/davicafu/tasknotify/internal/notification/domain"
	sharedDomain "github.com/davicafu/tasknotify/internal/shared/domain"
	sharedCache "github.com/davicafu/tasknotify/internal/shared/infra/platform/cache"
	sharedQuery "github.com/davicafu/tasknotify/internal/shared/infra/platform/query"
	sharedUtils "github.com/davicafu/tasknotify/internal/shared/infra/utils"
)

// ErrInvalidRetention se devuelve cuando el número de días no es positivo.
var ErrInvalidRetention = errors.New("retention days must be positive")

// NotificationService define los casos de uso de lectura y gestión del feed.
// Incorpora repositorio, caché y logger.
type NotificationService struct {
	repo     notificationDomain.NotificationRepository
	cache    sharedCache.Cache
	log      *zap.Logger
	now      func() time.Time
	cacheTTL int
}

// NewNotificationService es el constructor para el servicio de notificaciones.
func NewNotificationService(repo notificationDomain.NotificationRepository, cache sharedCache.Cache, log *zap.Logger) *NotificationService {
	return &NotificationService{
		repo:     repo,
		cache:    cache,
		log:      log,
		now:      time.Now,
		cacheTTL: 30,
	}
}

// WithCacheTTL ajusta el TTL (en segundos) de los contadores cacheados.
func (s *NotificationService) WithCacheTTL(ttl time.Duration) *NotificationService {
	if secs := int(ttl / time.Second); secs > 0 {
		s.cacheTTL = secs
	}
	return s
}

// ListNotifications es un pass-through al repositorio para listados genéricos.
func (s *NotificationService) ListNotifications(ctx context.Context, criteria sharedDomain.Criteria, pagination sharedQuery.Pagination, sort sharedQuery.Sort) ([]*notificationDomain.Notification, error) {
	if sort.Field == "" {
		sort = sharedQuery.NewestFirst
	}
	return s.repo.ListByCriteria(ctx, criteria, pagination, sort)
}

// ListByTask devuelve todas las notificaciones de una tarea, la más reciente primero.
func (s *NotificationService) ListByTask(ctx context.Context, taskID string) ([]*notificationDomain.Notification, error) {
	return s.repo.ListByCriteria(ctx, notificationDomain.TaskIDCriteria{TaskID: taskID}, nil, sharedQuery.NewestFirst)
}

// GetNotification obtiene una notificación con reintentos ante fallos transitorios.
func (s *NotificationService) GetNotification(ctx context.Context, id string) (*notificationDomain.Notification, error) {
	var n *notificationDomain.Notification
	err := sharedUtils.Retry(ctx, 3, 100*time.Millisecond, func() error {
		var errRetry error
		n, errRetry = s.repo.GetByID(ctx, id)
		if errors.Is(errRetry, notificationDomain.ErrNotificationNotFound) {
			return nil
		}
		return errRetry
	})
	if err != nil {
		s.log.Error("Failed to fetch notification", zap.String("notification_id", id), zap.Error(err))
		return nil, err
	}
	if n == nil {
		return nil, notificationDomain.ErrNotificationNotFound
	}
	return n, nil
}

// MarkRead marca una notificación como leída.
func (s *NotificationService) MarkRead(ctx context.Context, id string) error {
	if err := s.repo.MarkRead(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// MarkAllRead marca todas como leídas y devuelve cuántas cambiaron.
func (s *NotificationService) MarkAllRead(ctx context.Context) (int64, error) {
	count, err := s.repo.MarkAllRead(ctx)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx)
	return count, nil
}

// DeleteNotification elimina una notificación.
func (s *NotificationService) DeleteNotification(ctx context.Context, id string) error {
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// UnreadCount usa el patrón cache-aside.
func (s *NotificationService) UnreadCount(ctx context.Context) (int64, error) {
	if s.cache != nil {
		var cached int64
		if hit, _ := s.cache.Get(ctx, notificationDomain.UnreadCountCacheKey, &cached); hit {
			return cached, nil
		}
	}

	count, err := s.repo.Count(ctx, notificationDomain.ReadCriteria{Read: false})
	if err != nil {
		s.log.Error("Failed to count unread notifications", zap.Error(err))
		return 0, err
	}

	sharedCache.SetQuietly(ctx, s.cache, notificationDomain.UnreadCountCacheKey, count, s.cacheTTL, s.log)
	return count, nil
}

// Stats devuelve total, no leídas y desglose por tipo, con cache-aside.
func (s *NotificationService) Stats(ctx context.Context) (*notificationDomain.Stats, error) {
	if s.cache != nil {
		var cached notificationDomain.Stats
		if hit, _ := s.cache.Get(ctx, notificationDomain.StatsCacheKey, &cached); hit {
			return &cached, nil
		}
	}

	byType, err := s.repo.CountByKind(ctx)
	if err != nil {
		return nil, fmt.Errorf("count by type: %w", err)
	}
	unread, err := s.repo.Count(ctx, notificationDomain.ReadCriteria{Read: false})
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}

	stats := &notificationDomain.Stats{Unread: unread, ByType: byType}
	for _, c := range byType {
		stats.Total += c
	}

	sharedCache.SetQuietly(ctx, s.cache, notificationDomain.StatsCacheKey, stats, s.cacheTTL, s.log)
	return stats, nil
}

// PurgeOlderThan elimina las notificaciones con created_at estrictamente anterior a now-days.
// Una notificación creada exactamente hace 'days' días se conserva.
func (s *NotificationService) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := s.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	deleted, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Error("Failed to purge old notifications", zap.Int("days", days), zap.Error(err))
		return 0, err
	}

	if deleted > 0 {
		s.invalidate(ctx)
	}
	s.log.Info("🧹 Old notifications purged", zap.Int("days", days), zap.Int64("deleted", deleted))
	return deleted, nil
}

// Ping comprueba que el almacenamiento responde.
func (s *NotificationService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *NotificationService) invalidate(ctx context.Context) {
	sharedCache.InvalidateKeys(ctx, s.cache, s.log, notificationDomain.ReadModelCacheKeys()...)
}
