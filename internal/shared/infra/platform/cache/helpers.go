package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const cacheOpTimeout = 200 * time.Millisecond

// SetQuietly guarda en caché con un timeout corto. Es síncrono para que una
// invalidación posterior no pueda quedar pisada por una escritura en vuelo.
func SetQuietly(ctx context.Context, cache Cache, key string, value interface{}, ttl int, log *zap.Logger) {
	if cache == nil {
		return
	}

	cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()

	if err := cache.Set(cacheCtx, key, value, ttl); err != nil {
		log.Warn("Cache update failed",
			zap.String("key", key),
			zap.Error(err))
	}
}

// InvalidateKeys elimina varias claves de forma síncrona con un timeout corto.
// Un fallo de la caché nunca se propaga: solo se registra.
func InvalidateKeys(ctx context.Context, cache Cache, log *zap.Logger, keys ...string) {
	if cache == nil {
		return
	}

	cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()

	for _, key := range keys {
		if err := cache.Delete(cacheCtx, key); err != nil {
			log.Warn("Cache deletion failed",
				zap.String("key", key),
				zap.Error(err))
		}
	}
}
