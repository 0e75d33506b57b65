package otp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcachedTier has no server side compare-and-delete. Consumption is a get
// followed by a delete; the caller that loses the delete sees a miss.
type MemcachedTier struct {
	client *memcache.Client
	prefix string
}

func NewMemcachedTier(client *memcache.Client, prefix string) *MemcachedTier {
	return &MemcachedTier{client: client, prefix: prefix}
}

func (t *MemcachedTier) key(key string) string {
	if t.prefix == "" {
		return key
	}
	return t.prefix + ":" + key
}

func (t *MemcachedTier) Save(_ context.Context, key string, entry FastEntry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	seconds := int32(ttl / time.Second)
	if seconds <= 0 {
		seconds = 1
	}
	return t.client.Set(&memcache.Item{Key: t.key(key), Value: raw, Expiration: seconds})
}

func (t *MemcachedTier) ConsumeMatching(_ context.Context, key, code string) (FastEntry, bool, error) {
	k := t.key(key)
	item, err := t.client.Get(k)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return FastEntry{}, false, ErrFastMiss
	}
	if err != nil {
		return FastEntry{}, false, err
	}
	var entry FastEntry
	if err := json.Unmarshal(item.Value, &entry); err != nil {
		return FastEntry{}, false, err
	}
	if entry.Code != code {
		return entry, false, nil
	}
	if err := t.client.Delete(k); err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return FastEntry{}, false, ErrFastMiss
		}
		return FastEntry{}, false, err
	}
	return entry, true, nil
}

func (t *MemcachedTier) Delete(_ context.Context, key string) error {
	err := t.client.Delete(t.key(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}
