// internal/cache/cache.go
package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Cache stores fetched page bodies so repeated static scrapes of the same
// URL within the TTL skip the network round trip entirely.
type Cache interface {
	// Get returns the cached body for a key, if present and unexpired.
	Get(key string) ([]byte, bool)

	// Set stores a body under the key with the given TTL. Existing entries
	// are replaced.
	Set(key string, body []byte, ttl time.Duration) error

	// Delete removes an entry. Unknown keys are a no-op.
	Delete(key string) error

	// Clear drops every entry.
	Clear() error

	// Close stops background maintenance.
	Close()
}

type entry struct {
	body      []byte
	expiresAt time.Time
	key       string
}

// Memory is a byte-bounded in-memory cache with LRU eviction. A background
// sweep drops expired entries so the bound reflects live data.
type Memory struct {
	mu      sync.Mutex
	store   map[string]*list.Element
	lru     *list.List
	maxSize int64
	size    int64
	hits    uint64
	misses  uint64

	cancel context.CancelFunc
}

// NewMemory creates a Memory cache bounded at maxSizeBytes (default 100MB).
func NewMemory(maxSizeBytes int64) *Memory {
	if maxSizeBytes <= 0 {
		maxSizeBytes = 100 * 1024 * 1024
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Memory{
		store:   make(map[string]*list.Element),
		lru:     list.New(),
		maxSize: maxSizeBytes,
		cancel:  cancel,
	}
	go m.sweep(ctx)
	return m
}

func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	el, ok := m.store[key]
	if !ok {
		m.misses++
		m.mu.Unlock()
		return nil, false
	}
	e := el.Value.(*entry)
	if time.Now().After(e.expiresAt) {
		m.misses++
		m.removeLocked(el)
		m.mu.Unlock()
		return nil, false
	}
	m.lru.MoveToFront(el)
	m.hits++
	m.mu.Unlock()

	log.Debug().Str("key", key).Msg("Cache hit")
	return e.body, true
}

func (m *Memory) Set(key string, body []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.store[key]; ok {
		m.removeLocked(el)
	}

	size := int64(len(body)) + 128
	for m.size+size > m.maxSize && m.lru.Len() > 0 {
		m.removeLocked(m.lru.Back())
	}

	el := m.lru.PushFront(&entry{body: body, expiresAt: time.Now().Add(ttl), key: key})
	m.store[key] = el
	m.size += size

	log.Debug().Str("key", key).Dur("ttl", ttl).Int("bytes", len(body)).Msg("Cached page body")
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.store[key]; ok {
		m.removeLocked(el)
	}
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = make(map[string]*list.Element)
	m.lru = list.New()
	m.size = 0
	m.hits = 0
	m.misses = 0
	return nil
}

func (m *Memory) Close() {
	m.cancel()
}

// removeLocked drops one element; caller holds the lock.
func (m *Memory) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	m.lru.Remove(el)
	delete(m.store, e.key)
	m.size -= int64(len(e.body)) + 128
}

func (m *Memory) sweep(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		now := time.Now()
		m.mu.Lock()
		var next *list.Element
		for el := m.lru.Front(); el != nil; el = next {
			next = el.Next()
			if now.After(el.Value.(*entry).expiresAt) {
				m.removeLocked(el)
			}
		}
		m.mu.Unlock()
	}
}

// Stats reports live counters for diagnostics.
func (m *Memory) Stats() (entries int, sizeBytes int64, hits, misses uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len(), m.size, m.hits, m.misses
}

// Key builds a cache key from a URL and a config discriminator (usually the
// config name). The hash keeps keys bounded regardless of URL length.
func Key(url, discriminator string) string {
	sum := sha256.Sum256([]byte(url + "\x00" + discriminator))
	return hex.EncodeToString(sum[:16])
}
