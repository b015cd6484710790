package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// GatewayFactory builds a client bound to one instance URL and API key.
type GatewayFactory func(rawURL, apiKey string) (Gateway, error)

type poolEntry struct {
	gw       Gateway
	url      string
	key      string
	lastUsed time.Time
}

// ClientPool caches tenant gateway clients so repeated operations against the
// same tenant reuse one client. Entries expire after a TTL of inactivity, the
// least recently used entry is dropped at capacity, and a credential change
// (different URL or key) replaces the cached client. Public and privileged
// clients are cached under separate keys because they bind different API keys.
type ClientPool struct {
	mu      sync.Mutex
	factory GatewayFactory
	entries map[poolKey]*poolEntry
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

type poolKey struct {
	tenantID   uuid.UUID
	privileged bool
}

const (
	defaultPoolSize = 100
	defaultPoolTTL  = 5 * time.Minute
)

// NewClientPool constructs a pool. Zero maxSize/ttl fall back to defaults.
func NewClientPool(factory GatewayFactory, maxSize int, ttl time.Duration) *ClientPool {
	if factory == nil {
		panic("client pool requires factory")
	}
	if maxSize <= 0 {
		maxSize = defaultPoolSize
	}
	if ttl <= 0 {
		ttl = defaultPoolTTL
	}
	return &ClientPool{
		factory: factory,
		entries: make(map[poolKey]*poolEntry),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a cached client for the tenant when the credentials still match
// and the entry has not expired, building a fresh one otherwise.
func (p *ClientPool) Get(tenantID uuid.UUID, rawURL, apiKey string, privileged bool) (Gateway, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := poolKey{tenantID: tenantID, privileged: privileged}
	now := p.now()

	if e, ok := p.entries[key]; ok {
		if e.url == rawURL && e.key == apiKey && now.Sub(e.lastUsed) <= p.ttl {
			e.lastUsed = now
			return e.gw, nil
		}
		delete(p.entries, key)
	}

	if len(p.entries) >= p.maxSize {
		p.evictOldestLocked()
	}

	gw, err := p.factory(rawURL, apiKey)
	if err != nil {
		return nil, err
	}
	p.entries[key] = &poolEntry{gw: gw, url: rawURL, key: apiKey, lastUsed: now}
	return gw, nil
}

// Invalidate drops every cached client for the tenant. Called whenever
// credentials change so a stale client is never reused.
func (p *ClientPool) Invalidate(tenantID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, poolKey{tenantID: tenantID, privileged: false})
	delete(p.entries, poolKey{tenantID: tenantID, privileged: true})
}

// PurgeExpired removes entries idle past the TTL. Safe to call from a
// periodic job.
func (p *ClientPool) PurgeExpired() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	removed := 0
	for k, e := range p.entries {
		if now.Sub(e.lastUsed) > p.ttl {
			delete(p.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached clients.
func (p *ClientPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func (p *ClientPool) evictOldestLocked() {
	var (
		oldestKey poolKey
		oldest    time.Time
		found     bool
	)
	for k, e := range p.entries {
		if !found || e.lastUsed.Before(oldest) {
			oldestKey, oldest, found = k, e.lastUsed, true
		}
	}
	if found {
		delete(p.entries, oldestKey)
	}
}
