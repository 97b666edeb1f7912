package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	notificationDomain "github.com/davicafu/tasknotify/internal/notification/domain"
	sharedBus "github.com/davicafu/tasknotify/internal/shared/infra/platform/bus"
	sharedCache "github.com/davicafu/tasknotify/internal/shared/infra/platform/cache"
)

const defaultSaveTimeout = 5 * time.Second

// Ingestor convierte un mensaje del broker en una notificación persistida.
// Es independiente del transporte: lo usan tanto el consumidor AMQP como el de Kafka.
type Ingestor struct {
	repo        notificationDomain.NotificationRepository
	cache       sharedCache.Cache
	log         *zap.Logger
	now         func() time.Time
	saveTimeout time.Duration
}

// NewIngestor es el constructor.
func NewIngestor(repo notificationDomain.NotificationRepository, cache sharedCache.Cache, log *zap.Logger) *Ingestor {
	return &Ingestor{
		repo:        repo,
		cache:       cache,
		log:         log,
		now:         time.Now,
		saveTimeout: defaultSaveTimeout,
	}
}

// HandleMessage decide ack / requeue / reject para un cuerpo de mensaje.
func (i *Ingestor) HandleMessage(ctx context.Context, key string, payload []byte) sharedBus.Outcome {
	evt, err := notificationDomain.DecodeTaskEvent(payload)
	if err != nil {
		// Mensaje venenoso: reintentarlo nunca va a funcionar.
		i.log.Warn("☠️ Mensaje inválido descartado",
			zap.String("routing_key", key),
			zap.Int("size", len(payload)),
			zap.Error(err),
		)
		return sharedBus.Reject
	}

	if !evt.Kind.IsKnown() {
		i.log.Warn("Unknown task event type, using generic template",
			zap.String("event_type", string(evt.Kind)),
			zap.String("task_id", evt.TaskID),
		)
	}

	rendered := notificationDomain.Generate(evt)
	n := notificationDomain.NewNotification(notificationDomain.NotificationID(evt), evt, rendered, i.now())

	ctxSave, cancel := context.WithTimeout(ctx, i.saveTimeout)
	defer cancel()

	id, err := i.repo.Save(ctxSave, n)
	if err != nil {
		i.log.Error("Failed to save notification, requeueing",
			zap.String("notification_id", n.ID),
			zap.String("task_id", evt.TaskID),
			zap.Error(err),
		)
		return sharedBus.Requeue
	}

	sharedCache.InvalidateKeys(ctx, i.cache, i.log, notificationDomain.ReadModelCacheKeys()...)

	i.log.Info("📬 Notification created",
		zap.String("notification_id", id),
		zap.String("event_type", string(evt.Kind)),
		zap.String("task_id", evt.TaskID),
	)
	return sharedBus.Ack
}

// Verificación estática
var _ sharedBus.MessageHandler = (*Ingestor)(nil)
