package otp

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryTier keeps codes in process. Only suitable for a single instance.
type MemoryTier struct {
	mu    sync.Mutex
	items *cache.Cache
}

func NewMemoryTier(cleanupInterval time.Duration) *MemoryTier {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &MemoryTier{items: cache.New(DefaultTTL, cleanupInterval)}
}

func (t *MemoryTier) Save(_ context.Context, key string, entry FastEntry, ttl time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items.Set(key, entry, ttl)
	return nil
}

func (t *MemoryTier) ConsumeMatching(_ context.Context, key, code string) (FastEntry, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.items.Get(key)
	if !ok {
		return FastEntry{}, false, ErrFastMiss
	}
	entry := v.(FastEntry)
	if entry.Code != code {
		return entry, false, nil
	}
	t.items.Delete(key)
	return entry, true, nil
}

func (t *MemoryTier) Delete(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items.Delete(key)
	return nil
}
