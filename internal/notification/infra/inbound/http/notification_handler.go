package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/davicafu/tasknotify/internal/notification/application"
	notificationDomain "github.com/davicafu/tasknotify/internal/notification/domain"
	sharedDomain "github.com/davicafu/tasknotify/internal/shared/domain"
	sharedQuery "github.com/davicafu/tasknotify/internal/shared/infra/platform/query"
	"github.com/davicafu/tasknotify/pkg/utils"
)

const (
	ServiceName    = "notification-service"
	ServiceVersion = "1.0.0"

	defaultLimit = 50
	maxLimit     = 100

	readinessTimeout = 2 * time.Second
)

// EventPublisher publica eventos de tarea en el broker (POST /events).
type EventPublisher interface {
	Publish(ctx context.Context, evt notificationDomain.TaskEvent) error
}

// ReadinessCheck devuelve nil si la dependencia está lista.
type ReadinessCheck func(ctx context.Context) error

// NotificationHandler encapsula los endpoints HTTP del feed de notificaciones.
type NotificationHandler struct {
	service   *application.NotificationService
	publisher EventPublisher
	checks    map[string]ReadinessCheck
	log       *zap.Logger
}

// NewNotificationHandler crea el handler. publisher puede ser nil: POST /events responde 503.
func NewNotificationHandler(service *application.NotificationService, publisher EventPublisher, checks map[string]ReadinessCheck, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		service:   service,
		publisher: publisher,
		checks:    checks,
		log:       log,
	}
}

// --- Servicio ---

// Root endpoint GET /
func (h *NotificationHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Notification Service", "version": ServiceVersion})
}

// Health endpoint GET /health
func (h *NotificationHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": ServiceName,
		"version": ServiceVersion,
	})
}

// Readiness endpoint GET /readiness: 503 si alguna dependencia no responde.
func (h *NotificationHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	services := make(gin.H, len(h.checks))
	ready := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			ready = false
			services[name] = err.Error()
			h.log.Warn("✗ Readiness check failed", zap.String("dependency", name), zap.Error(err))
			continue
		}
		services[name] = "connected"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "services": services})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "services": services})
}

// --- Notificaciones ---

// ListNotifications endpoint GET /notifications?limit=&skip=&read=&event_type=
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit < 1 || limit > maxLimit {
		utils.SendBadRequest(c, "limit must be an integer between 1 and 100")
		return
	}
	skip, err := strconv.Atoi(c.DefaultQuery("skip", "0"))
	if err != nil || skip < 0 {
		utils.SendBadRequest(c, "skip must be a non-negative integer")
		return
	}

	var criterias []sharedDomain.Criteria
	if raw := c.Query("read"); raw != "" {
		read, err := strconv.ParseBool(raw)
		if err != nil {
			utils.SendBadRequest(c, "read must be true or false")
			return
		}
		criterias = append(criterias, notificationDomain.ReadCriteria{Read: read})
	}
	if raw := c.Query("event_type"); raw != "" {
		kind, err := notificationDomain.ParseEventKind(raw)
		if err != nil {
			utils.SendBadRequest(c, err.Error())
			return
		}
		criterias = append(criterias, notificationDomain.KindCriteria{Kind: kind})
	}

	notifications, err := h.service.ListNotifications(
		c.Request.Context(),
		sharedDomain.And(criterias...),
		sharedQuery.OffsetPagination{Limit: limit, Offset: skip},
		sharedQuery.NewestFirst,
	)
	if err != nil {
		h.internalError(c, "Error getting notifications", err)
		return
	}
	c.JSON(http.StatusOK, notifications)
}

// GetNotification endpoint GET /notifications/:id
func (h *NotificationHandler) GetNotification(c *gin.Context) {
	n, err := h.service.GetNotification(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "Error getting notification", err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// ListByTask endpoint GET /notifications/task/:task_id
func (h *NotificationHandler) ListByTask(c *gin.Context) {
	notifications, err := h.service.ListByTask(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		h.internalError(c, "Error getting task notifications", err)
		return
	}
	c.JSON(http.StatusOK, notifications)
}

// MarkRead endpoint POST /notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.MarkRead(c.Request.Context(), id); err != nil {
		h.writeError(c, "Error marking notification as read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "marked_as_read", "notification_id": id})
}

// MarkAllRead endpoint POST /notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	count, err := h.service.MarkAllRead(c.Request.Context())
	if err != nil {
		h.internalError(c, "Error marking all as read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "all_marked_as_read", "count": count})
}

// DeleteNotification endpoint DELETE /notifications/:id
func (h *NotificationHandler) DeleteNotification(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.DeleteNotification(c.Request.Context(), id); err != nil {
		h.writeError(c, "Error deleting notification", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "notification_id": id})
}

// PurgeNotifications endpoint DELETE /notifications?older_than_days=N
func (h *NotificationHandler) PurgeNotifications(c *gin.Context) {
	days, err := strconv.Atoi(c.Query("older_than_days"))
	if err != nil || days <= 0 {
		utils.SendBadRequest(c, "older_than_days must be a positive integer")
		return
	}

	deleted, err := h.service.PurgeOlderThan(c.Request.Context(), days)
	if err != nil {
		h.writeError(c, "Error purging notifications", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "purged", "older_than_days": days, "count": deleted})
}

// Stats endpoint GET /stats
func (h *NotificationHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		h.internalError(c, "Error getting stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// --- Eventos ---

type publishEventRequest struct {
	EventType   string `json:"event_type" binding:"required"`
	TaskID      string `json:"task_id" binding:"required"`
	Description string `json:"description"`
	IsCompleted bool   `json:"is_completed"`
}

// PublishEvent endpoint POST /events: publica un TaskEvent en el exchange.
func (h *NotificationHandler) PublishEvent(c *gin.Context) {
	if h.publisher == nil {
		utils.SendServiceUnavailable(c, "event publishing is not available")
		return
	}

	var req publishEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}
	kind, err := notificationDomain.ParseEventKind(req.EventType)
	if err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	evt := notificationDomain.NewTaskEvent(kind, req.TaskID, req.Description, req.IsCompleted)
	if err := h.publisher.Publish(c.Request.Context(), evt); err != nil {
		h.log.Error("✗ Error publishing event", zap.String("task_id", evt.TaskID), zap.Error(err))
		utils.SendServiceUnavailable(c, "could not publish event")
		return
	}
	c.JSON(http.StatusAccepted, evt)
}

// --- Helpers ---

func (h *NotificationHandler) writeError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, notificationDomain.ErrNotificationNotFound):
		utils.SendNotFound(c, "Notification not found")
	case errors.Is(err, application.ErrInvalidRetention):
		utils.SendBadRequest(c, err.Error())
	default:
		h.internalError(c, msg, err)
	}
}

func (h *NotificationHandler) internalError(c *gin.Context, msg string, err error) {
	h.log.Error("✗ "+msg, zap.Error(err))
	utils.SendInternalServerError(c, err.Error())
}
