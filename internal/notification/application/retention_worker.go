package application

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Purger es lo que el worker de retención necesita del servicio.
type Purger interface {
	PurgeOlderThan(ctx context.Context, days int) (int64, error)
}

// RetentionWorker elimina periódicamente las notificaciones antiguas.
type RetentionWorker struct {
	purger   Purger
	days     int
	interval time.Duration
	log      *zap.Logger
}

func NewRetentionWorker(purger Purger, days int, interval time.Duration, log *zap.Logger) *RetentionWorker {
	return &RetentionWorker{
		purger:   purger,
		days:     days,
		interval: interval,
		log:      log,
	}
}

// Start inicia el bucle del worker. Bloquea hasta que se cancele el contexto.
func (w *RetentionWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("🚀 Retention worker iniciado",
		zap.Duration("interval", w.interval),
		zap.Int("days", w.days),
	)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("🛑 Retention worker detenido.")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce ejecuta una purga. Los errores se registran y se reintenta en el siguiente tick.
func (w *RetentionWorker) RunOnce(ctx context.Context) {
	if _, err := w.purger.PurgeOlderThan(ctx, w.days); err != nil {
		w.log.Warn("⚠️ Error al purgar notificaciones antiguas", zap.Error(err))
	}
}
