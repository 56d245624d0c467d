// Package tagstore implements the in-memory cache entry store and tag index
// behind the cache.Store contract. A single lock guards both structures so
// the no-dangling-keys invariant holds at every observable point: every key
// in a tag bucket has a live entry, and a destroyed entry leaves no tag
// memberships behind.
package tagstore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-content-cache/cache"
)

// Config holds the store-level settings. TTL policy travels with each Put,
// so the store itself only needs to know how often to sweep.
type Config struct {
	// EvictionInterval is how often the background sweep removes expired
	// entries. Zero disables the sweep; expiry is then handled lazily on
	// access.
	EvictionInterval time.Duration
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if c.EvictionInterval < 0 {
		return &cache.ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}
	return nil
}

// Stats is a snapshot of the store counters.
type Stats struct {
	Hits          uint64
	Misses        uint64
	StaleHits     uint64
	ExpiredReads  uint64
	Invalidations uint64
	Evictions     uint64
}

// Store is the in-memory tag-indexed entry store.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*cache.Entry
	index   map[string]map[string]struct{} // tag -> set of keys

	now func() time.Time
	log logrus.FieldLogger

	hits          atomic.Uint64
	misses        atomic.Uint64
	staleHits     atomic.Uint64
	expiredReads  atomic.Uint64
	invalidations atomic.Uint64
	evictions     atomic.Uint64

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

var _ cache.Store = (*Store)(nil)

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source. Tests use this to drive entries
// through their freshness states deterministically.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used by the background sweep.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Store) { s.log = log }
}

// New creates a Store and, when the config asks for it, starts the eviction
// sweep. Call Close to stop the sweep and release the store.
func New(cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Store{
		entries: make(map[string]*cache.Entry),
		index:   make(map[string]map[string]struct{}),
		now:     time.Now,
		log:     logrus.StandardLogger(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.EvictionInterval > 0 {
		go s.sweepLoop(cfg.EvictionInterval)
	} else {
		close(s.done)
	}

	return s, nil
}

// Put stores value under key, replacing any existing entry and rebuilding its
// tag memberships so tags no longer associated are dropped from the index.
func (s *Store) Put(ctx context.Context, key string, value []byte, tags []string, policy cache.TTLPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[key]; ok {
		s.dropMembershipsLocked(key, old.Tags)
	}

	s.entries[key] = &cache.Entry{
		Key:        key,
		Value:      stored,
		Tags:       append([]string(nil), tags...),
		ComputedAt: s.now(),
		Policy:     policy,
	}
	for _, tag := range tags {
		bucket, ok := s.index[tag]
		if !ok {
			bucket = make(map[string]struct{})
			s.index[tag] = bucket
		}
		bucket[key] = struct{}{}
	}
	return nil
}

// Get returns the entry for key and its freshness. Expired entries are
// treated as absent and removed lazily.
func (s *Store) Get(ctx context.Context, key string) (cache.Lookup, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	var (
		freshness cache.Freshness
		value     []byte
	)
	if ok {
		freshness = e.Policy.Classify(s.now().Sub(e.ComputedAt))
		if freshness != cache.Expired {
			value = make([]byte, len(e.Value))
			copy(value, e.Value)
		}
	}
	s.mu.RUnlock()

	if !ok {
		s.misses.Add(1)
		return cache.Lookup{Freshness: cache.Expired}, nil
	}

	if freshness == cache.Expired {
		s.expiredReads.Add(1)
		s.removeExpired(key)
		return cache.Lookup{Freshness: cache.Expired}, nil
	}

	if freshness == cache.Stale {
		s.staleHits.Add(1)
	} else {
		s.hits.Add(1)
	}
	return cache.Lookup{Value: value, Freshness: freshness, Found: true}, nil
}

// Invalidate purges every entry whose tag set intersects tags. Idempotent:
// unknown tags and repeat invalidations are no-ops.
func (s *Store) Invalidate(ctx context.Context, tags ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	victims := make(map[string]struct{})
	for _, tag := range tags {
		for key := range s.index[tag] {
			victims[key] = struct{}{}
		}
	}

	for key := range victims {
		s.removeLocked(key)
	}

	n := len(victims)
	s.invalidations.Add(uint64(n))
	return n, nil
}

// Len reports the number of live entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entry returns a copy of the stored entry for key, including the tags it is
// indexed under and the policy it was stored with. Intended for tests and
// diagnostics.
func (s *Store) Entry(key string) (cache.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return cache.Entry{}, false
	}
	snapshot := *e
	snapshot.Value = append([]byte(nil), e.Value...)
	snapshot.Tags = append([]string(nil), e.Tags...)
	return snapshot, true
}

// TagMembers returns the keys currently indexed under tag. Intended for
// tests and diagnostics.
func (s *Store) TagMembers(tag string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.index[tag]))
	for key := range s.index[tag] {
		keys = append(keys, key)
	}
	return keys
}

// Stats returns a snapshot of the store counters.
func (s *Store) Stats() Stats {
	return Stats{
		Hits:          s.hits.Load(),
		Misses:        s.misses.Load(),
		StaleHits:     s.staleHits.Load(),
		ExpiredReads:  s.expiredReads.Load(),
		Invalidations: s.invalidations.Load(),
		Evictions:     s.evictions.Load(),
	}
}

// Sweep removes every expired entry and returns how many were evicted.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var victims []string
	for key, e := range s.entries {
		if e.Policy.Classify(now.Sub(e.ComputedAt)) == cache.Expired {
			victims = append(victims, key)
		}
	}
	for _, key := range victims {
		s.removeLocked(key)
	}

	s.evictions.Add(uint64(len(victims)))
	return len(victims)
}

// Close stops the background sweep. Safe to call multiple times.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	return nil
}

func (s *Store) sweepLoop(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.log.WithField("evicted", n).Debug("cache sweep removed expired entries")
			}
		case <-s.stop:
			return
		}
	}
}

// removeExpired removes key only if it is still expired, so a concurrent Put
// that refreshed the entry between our read and this call is preserved.
func (s *Store) removeExpired(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return
	}
	if e.Policy.Classify(s.now().Sub(e.ComputedAt)) != cache.Expired {
		return
	}
	s.removeLocked(key)
	s.evictions.Add(1)
}

func (s *Store) removeLocked(key string) {
	e, ok := s.entries[key]
	if !ok {
		return
	}
	s.dropMembershipsLocked(key, e.Tags)
	delete(s.entries, key)
}

func (s *Store) dropMembershipsLocked(key string, tags []string) {
	for _, tag := range tags {
		bucket, ok := s.index[tag]
		if !ok {
			continue
		}
		delete(bucket, key)
		if len(bucket) == 0 {
			delete(s.index, tag)
		}
	}
}
