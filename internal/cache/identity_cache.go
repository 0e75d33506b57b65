package cache

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/xxxsen/rentdesk/internal/model"
)

const (
	defaultFloorBytes      = 5 << 20
	defaultIncrementBytes  = 5 << 20
	defaultCeilingBytes    = 50 << 20
	defaultGrowthThreshold = 0.9
	defaultIdentityTTL     = 5 * time.Minute
	defaultMaxEntries      = 10000
)

type IdentityCacheConfig struct {
	FloorBytes      int64
	IncrementBytes  int64
	CeilingBytes    int64
	GrowthThreshold float64
	TTL             time.Duration
	MaxEntries      int
}

func (c *IdentityCacheConfig) applyDefaults() {
	if c.FloorBytes <= 0 {
		c.FloorBytes = defaultFloorBytes
	}
	if c.IncrementBytes <= 0 {
		c.IncrementBytes = defaultIncrementBytes
	}
	if c.CeilingBytes <= 0 {
		c.CeilingBytes = defaultCeilingBytes
	}
	if c.GrowthThreshold <= 0 || c.GrowthThreshold > 1 {
		c.GrowthThreshold = defaultGrowthThreshold
	}
	if c.TTL <= 0 {
		c.TTL = defaultIdentityTTL
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = defaultMaxEntries
	}
}

type identityEntry struct {
	raw       []byte
	expiresAt time.Time
}

// IdentityCache is a byte-bounded LRU of identity snapshots whose capacity
// grows in fixed steps, up to a ceiling, while it runs close to full.
// Expiry is absolute from insertion; reads refresh recency only.
type IdentityCache struct {
	mu       sync.Mutex
	cfg      IdentityCacheConfig
	lru      *simplelru.LRU[string, *identityEntry]
	capacity int64
	size     int64
	now      func() time.Time
}

func NewIdentityCache(cfg IdentityCacheConfig) (*IdentityCache, error) {
	cfg.applyDefaults()
	if cfg.FloorBytes > cfg.CeilingBytes {
		return nil, fmt.Errorf("identity cache floor %d exceeds ceiling %d", cfg.FloorBytes, cfg.CeilingBytes)
	}
	c := &IdentityCache{cfg: cfg, capacity: cfg.FloorBytes, now: time.Now}
	lru, err := c.newLRU()
	if err != nil {
		return nil, err
	}
	c.lru = lru
	return c, nil
}

func (c *IdentityCache) newLRU() (*simplelru.LRU[string, *identityEntry], error) {
	return simplelru.NewLRU[string, *identityEntry](c.cfg.MaxEntries, c.onEvict)
}

// onEvict runs with mu held.
func (c *IdentityCache) onEvict(_ string, e *identityEntry) {
	c.size -= int64(len(e.raw))
}

func (c *IdentityCache) Get(id string) (*model.IdentitySnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lru.Get(id)
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		c.lru.Remove(id)
		return nil, false
	}
	var snapshot model.IdentitySnapshot
	if err := json.Unmarshal(e.raw, &snapshot); err != nil {
		c.lru.Remove(id)
		return nil, false
	}
	return &snapshot, true
}

func (c *IdentityCache) Set(snapshot *model.IdentitySnapshot) error {
	if snapshot == nil || snapshot.ID == "" {
		return fmt.Errorf("identity snapshot without id")
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode identity snapshot: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(snapshot.ID)
	if int64(len(raw)) > c.cfg.CeilingBytes {
		return nil
	}
	c.lru.Add(snapshot.ID, &identityEntry{raw: raw, expiresAt: c.now().Add(c.cfg.TTL)})
	c.size += int64(len(raw))
	c.maybeGrowLocked()
	for c.size > c.capacity {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}
	return nil
}

func (c *IdentityCache) maybeGrowLocked() {
	if c.capacity >= c.cfg.CeilingBytes {
		return
	}
	if float64(c.size)/float64(c.capacity) <= c.cfg.GrowthThreshold {
		return
	}
	next, err := c.newLRU()
	if err != nil {
		return
	}
	c.capacity += c.cfg.IncrementBytes
	if c.capacity > c.cfg.CeilingBytes {
		c.capacity = c.cfg.CeilingBytes
	}
	old := c.lru
	c.lru = next
	c.size = 0
	now := c.now()
	for _, key := range old.Keys() {
		e, ok := old.Peek(key)
		if !ok || !now.Before(e.expiresAt) {
			continue
		}
		next.Add(key, e)
		c.size += int64(len(e.raw))
	}
}

func (c *IdentityCache) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(id)
}

func (c *IdentityCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.size = 0
}

func (c *IdentityCache) Capacity() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

func (c *IdentityCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *IdentityCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
