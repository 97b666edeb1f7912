package mocks

import (
	"context"
	"encoding/json"
	"sync"

	sharedCache "github.com/davicafu/tasknotify/internal/shared/infra/platform/cache"
)

// DummyCache es un mock de caché en memoria, genérico y seguro para concurrencia.
type DummyCache struct {
	store map[string][]byte
	mu    sync.RWMutex
}

// Verificación estática para asegurar que implementa la interfaz compartida.
var _ sharedCache.Cache = (*DummyCache)(nil)

func NewDummyCache() *DummyCache {
	return &DummyCache{
		store: make(map[string][]byte),
	}
}

func (c *DummyCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, ok := c.store[key]
	if !ok {
		return false, nil // Cache miss
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *DummyCache) Set(ctx context.Context, key string, val interface{}, ttlSecs int) error {
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = data
	return nil
}

func (c *DummyCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	return nil
}

// Has indica si la clave está presente (útil en asserts).
func (c *DummyCache) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.store[key]
	return ok
}
