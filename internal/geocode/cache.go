package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/example/trip-capture/internal/geo"
)

// CacheStore is the backing store for cached provider responses.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// Cached wraps a Geocoder with a read-through cache. Reverse lookups hit the
// same few coordinates repeatedly (the user nudging the map), and repeated
// search terms are common, so both directions are cached.
type Cached struct {
	Next  Geocoder
	Store CacheStore
	TTL   time.Duration
}

func NewCached(next Geocoder, store CacheStore, ttl time.Duration) *Cached {
	return &Cached{Next: next, Store: store, TTL: ttl}
}

func (c *Cached) Search(ctx context.Context, term string, bias geo.Coordinate) ([]Result, error) {
	key := searchKey(term, bias)
	if b, ok := c.Store.Get(ctx, key); ok {
		var out []Result
		if json.Unmarshal(b, &out) == nil {
			return out, nil
		}
	}
	out, err := c.Next.Search(ctx, term, bias)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(out); err == nil {
		c.Store.Set(ctx, key, b, c.TTL)
	}
	return out, nil
}

func (c *Cached) Reverse(ctx context.Context, coord geo.Coordinate) (string, error) {
	key := reverseKey(coord)
	if b, ok := c.Store.Get(ctx, key); ok {
		return string(b), nil
	}
	addr, err := c.Next.Reverse(ctx, coord)
	if err != nil {
		return "", err
	}
	c.Store.Set(ctx, key, []byte(addr), c.TTL)
	return addr, nil
}

func searchKey(term string, bias geo.Coordinate) string {
	return fmt.Sprintf("geocode:search:%s@%s", term, fmtCoord(bias))
}

func reverseKey(c geo.Coordinate) string {
	return "geocode:reverse:" + fmtCoord(c)
}

func fmtCoord(c geo.Coordinate) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

// MemoryStore is a tiny in-process CacheStore.
type MemoryStore struct {
	mu    sync.RWMutex
	store map[string]memEntry
}

type memEntry struct {
	b  []byte
	ts time.Time
	tl time.Duration
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{store: make(map[string]memEntry)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	e, ok := m.store[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if e.tl > 0 && time.Since(e.ts) > e.tl {
		m.mu.Lock()
		delete(m.store, key)
		m.mu.Unlock()
		return nil, false
	}
	return e.b, true
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	m.store[key] = memEntry{b: value, ts: time.Now(), tl: ttl}
	m.mu.Unlock()
}
