package cache

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/0xprotovox/bscradar/internal/metrics"
)

// Store names the three independent keyed stores.
type Store string

const (
	PoolStore  Store = "pool"
	PriceStore Store = "price"
	TokenStore Store = "token"
)

const (
	// How long a GetOrFill caller waits for another caller's in-flight
	// fetch before stealing the lock.
	lockTimeout  = 5 * time.Second
	lockPollStep = 50 * time.Millisecond
)

var (
	addressKeyRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	prefixKeyRe  = regexp.MustCompile(`^(v2|v3|analysis)_0x[0-9a-fA-F]{40}$`)
	genericKeyRe = regexp.MustCompile(`^[a-z0-9_x]{1,100}$`)
)

type entry struct {
	value   interface{}
	created time.Time
	expires time.Time
}

type store struct {
	name       string
	defaultTTL time.Duration

	mu     sync.RWMutex
	data   map[string]entry
	hits   int64
	misses int64
}

func newStore(name string, ttl time.Duration) *store {
	return &store{name: name, defaultTTL: ttl, data: make(map[string]entry)}
}

func (s *store) get(key string) (interface{}, time.Duration, bool) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if ok && now.After(e.expires) {
		delete(s.data, key)
		ok = false
	}
	if !ok {
		s.misses++
		return nil, 0, false
	}
	s.hits++
	return e.value, now.Sub(e.created), true
}

func (s *store) set(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	now := time.Now()
	s.mu.Lock()
	s.data[key] = entry{value: value, created: now, expires: now.Add(ttl)}
	s.mu.Unlock()
}

func (s *store) delete(key string) {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
}

func (s *store) keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for k := range s.data {
		out = append(out, k)
	}
	return out
}

func (s *store) purge(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, e := range s.data {
		if now.After(e.expires) {
			delete(s.data, k)
			removed++
		}
	}
	return removed
}

func (s *store) stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StoreStats{Entries: len(s.data), Hits: s.hits, Misses: s.misses}
}

// Config sets per-store default TTLs.
type Config struct {
	PoolTTL  time.Duration
	PriceTTL time.Duration
	TokenTTL time.Duration
}

// StoreStats is one store's counters.
type StoreStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// Stats is a snapshot across stores.
type Stats map[Store]StoreStats

// Cache is the three-store TTL cache with per-key single-flight fill locks.
type Cache struct {
	stores  map[Store]*store
	logger  *zap.Logger
	metrics *metrics.Metrics

	lockMu sync.Mutex
	locks  map[string]time.Time // key -> lock acquisition time
}

// New builds a cache. Zero TTLs select the defaults (pool 300 s, price 30 s,
// token 3600 s).
func New(cfg Config, logger *zap.Logger, m *metrics.Metrics) *Cache {
	if cfg.PoolTTL <= 0 {
		cfg.PoolTTL = 300 * time.Second
	}
	if cfg.PriceTTL <= 0 {
		cfg.PriceTTL = 30 * time.Second
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 3600 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		stores: map[Store]*store{
			PoolStore:  newStore(string(PoolStore), cfg.PoolTTL),
			PriceStore: newStore(string(PriceStore), cfg.PriceTTL),
			TokenStore: newStore(string(TokenStore), cfg.TokenTTL),
		},
		logger:  logger,
		metrics: m,
		locks:   make(map[string]time.Time),
	}
}

// ValidateKey rejects keys that do not fit the store's key shape.
func ValidateKey(st Store, key string) error {
	switch st {
	case TokenStore, PriceStore:
		if !addressKeyRe.MatchString(key) {
			return fmt.Errorf("invalid %s key %q", st, key)
		}
		return nil
	case PoolStore:
		if addressKeyRe.MatchString(key) || prefixKeyRe.MatchString(key) || genericKeyRe.MatchString(key) {
			return nil
		}
		return fmt.Errorf("invalid pool key %q", key)
	default:
		return fmt.Errorf("unknown store %q", st)
	}
}

// AnalysisKey is the pool-store key of a token's full analysis entry.
func AnalysisKey(addr string) string {
	return "analysis_" + strings.ToLower(addr)
}

// Get returns a live entry from the store.
func (c *Cache) Get(st Store, key string) (interface{}, bool) {
	v, _, ok := c.GetWithAge(st, key)
	return v, ok
}

// GetWithAge returns a live entry and its age.
func (c *Cache) GetWithAge(st Store, key string) (interface{}, time.Duration, bool) {
	s, ok := c.stores[st]
	if !ok {
		return nil, 0, false
	}
	v, age, ok := s.get(key)
	c.metrics.ObserveCache(string(st), ok)
	return v, age, ok
}

// Set writes an entry with the store's default TTL.
func (c *Cache) Set(st Store, key string, value interface{}) error {
	return c.SetTTL(st, key, value, 0)
}

// SetTTL writes an entry with an explicit TTL.
func (c *Cache) SetTTL(st Store, key string, value interface{}, ttl time.Duration) error {
	if err := ValidateKey(st, key); err != nil {
		return err
	}
	s, ok := c.stores[st]
	if !ok {
		return fmt.Errorf("unknown store %q", st)
	}
	s.set(key, value, ttl)
	return nil
}

// Delete removes an entry.
func (c *Cache) Delete(st Store, key string) {
	if s, ok := c.stores[st]; ok {
		s.delete(key)
	}
}

// GetOrFill returns the cached value for key, or runs fetch exactly once
// across concurrent callers and caches its non-nil result. A caller that has
// waited more than the lock timeout steals the lock, so a wedged fetcher can
// never stall the key forever.
func (c *Cache) GetOrFill(ctx context.Context, st Store, key string, ttl time.Duration, fetch func(context.Context) (interface{}, error)) (interface{}, error) {
	if err := ValidateKey(st, key); err != nil {
		return nil, err
	}
	s, ok := c.stores[st]
	if !ok {
		return nil, fmt.Errorf("unknown store %q", st)
	}

	if v, _, ok := s.get(key); ok {
		c.metrics.ObserveCache(string(st), true)
		return v, nil
	}
	c.metrics.ObserveCache(string(st), false)

	if err := c.acquireLock(ctx, key); err != nil {
		return nil, err
	}
	defer c.releaseLock(key)

	// Re-read: another caller may have filled while we waited.
	if v, _, ok := s.get(key); ok {
		return v, nil
	}

	v, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if v != nil {
		s.set(key, v, ttl)
	}
	return v, nil
}

func (c *Cache) acquireLock(ctx context.Context, key string) error {
	deadline := time.Now().Add(lockTimeout)
	for {
		c.lockMu.Lock()
		if _, held := c.locks[key]; !held {
			c.locks[key] = time.Now()
			c.lockMu.Unlock()
			return nil
		}
		c.lockMu.Unlock()

		if time.Now().After(deadline) {
			c.lockMu.Lock()
			delete(c.locks, key)
			c.locks[key] = time.Now()
			c.lockMu.Unlock()
			c.logger.Warn("cache fill lock stolen after timeout", zap.String("key", key))
			return nil
		}

		timer := time.NewTimer(lockPollStep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Cache) releaseLock(key string) {
	c.lockMu.Lock()
	delete(c.locks, key)
	c.lockMu.Unlock()
}

// ClearTokenAnalysis removes the analysis entry, token and price entries for
// addr, and every pool-store key that carries addr as a delimited segment.
// Substring-only matches are left alone.
func (c *Cache) ClearTokenAnalysis(addr string) int {
	lower := strings.ToLower(addr)
	removed := 0

	pool := c.stores[PoolStore]
	pool.delete(AnalysisKey(lower))
	removed++

	for _, key := range pool.keys() {
		if keyContainsAddress(key, lower) {
			pool.delete(key)
			removed++
		}
	}

	c.stores[TokenStore].delete(lower)
	c.stores[PriceStore].delete(lower)
	return removed
}

// keyContainsAddress reports whether key carries addr as a full segment
// between "_" delimiters (covers v2_/v3_/analysis_/pool_/route_ shapes).
func keyContainsAddress(key, lowerAddr string) bool {
	for _, segment := range strings.Split(strings.ToLower(key), "_") {
		if segment == lowerAddr {
			return true
		}
	}
	return false
}

// Sweep purges expired entries across all stores and returns the count.
func (c *Cache) Sweep() int {
	now := time.Now()
	total := 0
	for _, s := range c.stores {
		total += s.purge(now)
	}
	return total
}

// StatsSnapshot returns per-store counters.
func (c *Cache) StatsSnapshot() Stats {
	out := make(Stats, len(c.stores))
	for name, s := range c.stores {
		out[name] = s.stats()
	}
	return out
}
