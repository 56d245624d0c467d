// Package session implements the client-side identity/profile cache: a
// TTL cache over the account service with single-flight and debounce, plus
// the identity-change handling that keeps shared profile state from being
// clobbered by late-resolving fetches.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-content-cache/cache"
)

// Profile is the resolved identity data UI components consume.
type Profile struct {
	Identity    string
	DisplayName string
	Email       string
	Role        string
}

// Fetcher resolves an identity to its profile over the network.
type Fetcher interface {
	FetchProfile(ctx context.Context, identity string) (*Profile, error)
}

// ResourceStateFetcher answers per-resource membership questions (course
// enrollment, event registration) for an identity.
type ResourceStateFetcher interface {
	FetchResourceState(ctx context.Context, identity, resourceID string) (bool, error)
}

// EventKind classifies identity-change notifications.
type EventKind string

const (
	EventSignedIn       EventKind = "signed-in"
	EventSignedOut      EventKind = "signed-out"
	EventTokenRefreshed EventKind = "token-refreshed"
	EventUserUpdated    EventKind = "user-updated"
)

// IdentityEvent is a notification from the auth layer.
type IdentityEvent struct {
	Kind     EventKind
	Identity string
}

type entry struct {
	profile   *Profile
	fetchedAt time.Time
}

type applyMsg struct {
	identity string
	profile  *Profile
}

// Cache is the session/profile cache. Construct one per client session with
// New and release it with Close; there is no ambient global instance.
type Cache struct {
	fetcher   Fetcher
	resources ResourceStateFetcher
	log       logrus.FieldLogger

	ttl      time.Duration
	debounce time.Duration
	now      func() time.Time

	mu              sync.Mutex
	entries         map[string]entry
	inFlight        bool
	lastFetchDone   time.Time
	currentIdentity string
	current         *Profile

	apply     chan applyMsg
	done      chan struct{}
	closeOnce sync.Once

	// observed by tests to synchronize with the apply consumer
	onApplied func(identity string, applied bool)
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Cache) { c.log = log }
}

// WithResourceStates installs the per-resource membership fetcher used by
// ResourceState.
func WithResourceStates(f ResourceStateFetcher) Option {
	return func(c *Cache) { c.resources = f }
}

func withApplyObserver(fn func(identity string, applied bool)) Option {
	return func(c *Cache) { c.onApplied = fn }
}

// New creates a Cache using the session TTL and debounce window from cfg.
func New(fetcher Fetcher, cfg cache.Config, opts ...Option) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Cache{
		fetcher:  fetcher,
		log:      logrus.StandardLogger(),
		ttl:      cfg.SessionTTL,
		debounce: cfg.SessionDebounce,
		now:      time.Now,
		entries:  make(map[string]entry),
		apply:    make(chan applyMsg, 8),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.consume()
	return c, nil
}

// consume is the single writer of the shared profile state. Every fetch
// resolution arrives here as an (identity, result) message and is applied
// only if that identity is still current, so a fetch for a previous identity
// resolving late can never clobber newer state.
func (c *Cache) consume() {
	for {
		select {
		case msg := <-c.apply:
			c.mu.Lock()
			applied := msg.identity == c.currentIdentity
			if applied {
				c.current = msg.profile
			}
			c.mu.Unlock()
			if c.onApplied != nil {
				c.onApplied(msg.identity, applied)
			}
		case <-c.done:
			return
		}
	}
}

// Close stops the apply consumer. Safe to call multiple times.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// FetchProfile resolves identity to a profile. The call returns nil without
// fetching when a fetch is already in flight, or when the last fetch
// completed inside the debounce window and force is false; in both cases the
// caller relies on already-rendered state. The debounce window wins over a
// cache hit on purpose: inside it the answer is always nil, even for an
// identity the cache could serve. Outside the window a fresh cache hit
// returns synchronously with no network call. All cache-state checks happen
// before any blocking point.
func (c *Cache) FetchProfile(ctx context.Context, identity string, force bool) (*Profile, error) {
	if identity == "" {
		return nil, nil
	}

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return nil, nil
	}
	if !force && c.now().Sub(c.lastFetchDone) < c.debounce {
		c.mu.Unlock()
		return nil, nil
	}
	if e, ok := c.entries[identity]; ok && !force && c.now().Sub(e.fetchedAt) < c.ttl {
		p := cloneProfile(e.profile)
		c.mu.Unlock()
		return p, nil
	}
	c.inFlight = true
	c.mu.Unlock()

	profile, err := c.doFetch(ctx, identity)
	if err != nil {
		// Any previously cached profile stays as-is.
		return nil, fmt.Errorf("fetch profile %q: %w", identity, err)
	}

	c.mu.Lock()
	now := c.now()
	// Writing a fresh entry is also when dead weight is dropped: entries
	// for identities past their TTL never get read again unless that
	// identity comes back, in which case it refetches anyway.
	for id, e := range c.entries {
		if now.Sub(e.fetchedAt) >= c.ttl {
			delete(c.entries, id)
		}
	}
	c.entries[identity] = entry{profile: cloneProfile(profile), fetchedAt: now}
	c.mu.Unlock()

	// Route the result through the apply consumer; it decides whether the
	// identity is still current before touching shared state.
	select {
	case c.apply <- applyMsg{identity: identity, profile: cloneProfile(profile)}:
	case <-c.done:
	}

	return profile, nil
}

// doFetch performs the network call. The in-flight flag is cleared on every
// path out, success or failure, so a failed fetch never wedges future ones.
func (c *Cache) doFetch(ctx context.Context, identity string) (*Profile, error) {
	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.lastFetchDone = c.now()
		c.mu.Unlock()
	}()
	return c.fetcher.FetchProfile(ctx, identity)
}

// RefreshProfile force-fetches the current identity's profile.
func (c *Cache) RefreshProfile(ctx context.Context) error {
	c.mu.Lock()
	identity := c.currentIdentity
	c.mu.Unlock()
	if identity == "" {
		return nil
	}

	_, err := c.FetchProfile(ctx, identity, true)
	return err
}

// HandleIdentityEvent reacts to auth-layer notifications. The current
// identity mutates synchronously inside the handler; the follow-up profile
// fetch is deferred to its own goroutine because the event source deadlocks
// if async work is awaited inside its own notification callback.
func (c *Cache) HandleIdentityEvent(ev IdentityEvent) {
	c.mu.Lock()
	switch ev.Kind {
	case EventSignedOut:
		c.currentIdentity = ""
		c.current = nil
		c.entries = make(map[string]entry)
		c.mu.Unlock()
		return
	case EventSignedIn:
		c.currentIdentity = ev.Identity
	case EventTokenRefreshed, EventUserUpdated:
		if ev.Identity != "" {
			c.currentIdentity = ev.Identity
		}
	}
	identity := c.currentIdentity
	c.mu.Unlock()

	go func() {
		if _, err := c.FetchProfile(context.Background(), identity, true); err != nil {
			c.log.WithError(err).WithField("identity", identity).Warn("deferred profile fetch failed")
		}
	}()
}

// SetIdentity replaces the current identity without fetching. Intended for
// wiring and tests; event-driven flows use HandleIdentityEvent.
func (c *Cache) SetIdentity(identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentIdentity = identity
	if identity == "" {
		c.current = nil
	}
}

// CurrentIdentity returns the identity shared state currently tracks.
func (c *Cache) CurrentIdentity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentIdentity
}

// CurrentProfile returns the shared profile state, or nil when unresolved.
func (c *Cache) CurrentProfile() *Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneProfile(c.current)
}

// ResourceState reports whether the current identity holds the given
// resource (enrollment, registration). The lookup is bound to ctx — a
// component's lifetime — and a result arriving after cancellation is
// discarded unconditionally.
func (c *Cache) ResourceState(ctx context.Context, resourceID string) (bool, error) {
	if c.resources == nil {
		return false, nil
	}

	c.mu.Lock()
	identity := c.currentIdentity
	c.mu.Unlock()
	if identity == "" {
		return false, nil
	}

	state, ok, err := ScopedLookup(ctx, func(ctx context.Context) (bool, error) {
		return c.resources.FetchResourceState(ctx, identity, resourceID)
	})
	if !ok {
		return false, err
	}
	return state, nil
}

func cloneProfile(p *Profile) *Profile {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
