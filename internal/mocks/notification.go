package mocks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	notificationDomain "github.com/davicafu/tasknotify/internal/notification/domain"
	sharedDomain "github.com/davicafu/tasknotify/internal/shared/domain"
	sharedQuery "github.com/davicafu/tasknotify/internal/shared/infra/platform/query"
)

// InMemoryNotificationRepo simula NotificationRepository.
// SaveErr / PingErr permiten simular un almacenamiento caído.
type InMemoryNotificationRepo struct {
	Notifications map[string]*notificationDomain.Notification
	SaveCalls     int
	SaveErr       error
	PingErr       error
	mu            sync.Mutex
}

func NewInMemoryNotificationRepo() *InMemoryNotificationRepo {
	return &InMemoryNotificationRepo{
		Notifications: make(map[string]*notificationDomain.Notification),
	}
}

// Verificación estática
var _ notificationDomain.NotificationRepository = (*InMemoryNotificationRepo)(nil)

// --- Implementación de la interfaz NotificationRepository ---

func (r *InMemoryNotificationRepo) Save(ctx context.Context, n *notificationDomain.Notification) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.SaveCalls++
	if r.SaveErr != nil {
		return "", r.SaveErr
	}
	if _, ok := r.Notifications[n.ID]; ok {
		return n.ID, nil // insert-if-absent
	}
	cp := *n
	r.Notifications[n.ID] = &cp
	return n.ID, nil
}

// Len devuelve el número de notificaciones almacenadas.
func (r *InMemoryNotificationRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Notifications)
}

func (r *InMemoryNotificationRepo) GetByID(ctx context.Context, id string) (*notificationDomain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.Notifications[id]
	if !ok {
		return nil, notificationDomain.ErrNotificationNotFound
	}
	cp := *n
	return &cp, nil
}

func (r *InMemoryNotificationRepo) ListByCriteria(
	ctx context.Context,
	criteria sharedDomain.Criteria,
	pagination sharedQuery.Pagination,
	sorts sharedQuery.Sort,
) ([]*notificationDomain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.filter(criteria)

	sort.SliceStable(list, func(i, j int) bool {
		return compareNotifications(list[i], list[j], sorts.Field, sorts.Desc)
	})

	if p, ok := pagination.(sharedQuery.OffsetPagination); ok {
		start := p.Offset
		if start > len(list) {
			return []*notificationDomain.Notification{}, nil
		}
		end := start + p.Limit
		if end > len(list) {
			end = len(list)
		}
		return list[start:end], nil
	}

	return list, nil
}

func (r *InMemoryNotificationRepo) Count(ctx context.Context, criteria sharedDomain.Criteria) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.filter(criteria))), nil
}

func (r *InMemoryNotificationRepo) CountByKind(ctx context.Context) (map[notificationDomain.EventKind]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[notificationDomain.EventKind]int64)
	for _, n := range r.Notifications {
		out[n.Kind]++
	}
	return out, nil
}

func (r *InMemoryNotificationRepo) MarkRead(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.Notifications[id]
	if !ok {
		return notificationDomain.ErrNotificationNotFound
	}
	n.MarkRead()
	return nil
}

func (r *InMemoryNotificationRepo) MarkAllRead(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var changed int64
	for _, n := range r.Notifications {
		if !n.Read {
			n.MarkRead()
			changed++
		}
	}
	return changed, nil
}

func (r *InMemoryNotificationRepo) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.Notifications[id]; !ok {
		return notificationDomain.ErrNotificationNotFound
	}
	delete(r.Notifications, id)
	return nil
}

func (r *InMemoryNotificationRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, n := range r.Notifications {
		if n.CreatedAt.Before(cutoff) {
			delete(r.Notifications, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *InMemoryNotificationRepo) Ping(ctx context.Context) error {
	return r.PingErr
}

// --- Lógica de filtrado y ordenamiento del mock ---

func (r *InMemoryNotificationRepo) filter(criteria sharedDomain.Criteria) []*notificationDomain.Notification {
	var conds []sharedDomain.Criterion
	if criteria != nil {
		conds = criteria.ToConditions()
	}

	list := make([]*notificationDomain.Notification, 0, len(r.Notifications))
	for _, n := range r.Notifications {
		if matchNotification(n, conds) {
			cp := *n
			list = append(list, &cp)
		}
	}
	return list
}

func matchNotification(n *notificationDomain.Notification, conds []sharedDomain.Criterion) bool {
	for _, cond := range conds {
		var match bool
		switch strings.ToLower(cond.Field) {
		case "read":
			read, ok := cond.Value.(bool)
			match = ok && n.Read == read
		case "task_id":
			match = n.TaskID == fmt.Sprintf("%v", cond.Value)
		case "event_type":
			match = string(n.Kind) == fmt.Sprintf("%v", cond.Value)
		case "created_at":
			ts, ok := cond.Value.(time.Time)
			if ok {
				switch cond.Op {
				case sharedDomain.OpLt:
					match = n.CreatedAt.Before(ts)
				case sharedDomain.OpLte:
					match = !n.CreatedAt.After(ts)
				case sharedDomain.OpGt:
					match = n.CreatedAt.After(ts)
				case sharedDomain.OpGte:
					match = !n.CreatedAt.Before(ts)
				}
			}
		}
		if !match {
			return false
		}
	}
	return true
}

func compareNotifications(a, b *notificationDomain.Notification, field string, desc bool) bool {
	var result bool
	switch strings.ToLower(field) {
	case "task_id":
		result = a.TaskID < b.TaskID
	case "event_type":
		result = a.Kind < b.Kind
	case "created_at":
		result = a.CreatedAt.Before(b.CreatedAt)
	default: // Orden por defecto
		result = a.ID < b.ID
	}
	if desc {
		return !result
	}
	return result
}
