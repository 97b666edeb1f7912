package utils

import (
	"context"
	"time"
)

// Retry ejecuta una función con reintentos configurables
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-time.After(delay):
			// espera antes del siguiente intento
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// RetryPolicy describe un reintento de intervalo fijo.
// MaxAttempts == 0 significa reintentar indefinidamente.
type RetryPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// Exhausted indica si ya no quedan reintentos tras 'attempt' fallos consecutivos.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

// Wait bloquea durante el intervalo o hasta que se cancele el contexto.
func (p RetryPolicy) Wait(ctx context.Context) error {
	if p.Interval <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(p.Interval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
