package di

import (
	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-content-cache/cache"
	"github.com/goliatone/go-content-cache/contentcache"
	"github.com/goliatone/go-content-cache/internal/tagstore"
	"github.com/goliatone/go-content-cache/session"
)

// Container provides dependency injection for the cache components. It owns
// the singleton tag store and key builder and provides factory functions for
// the read service, writer, and session cache so callers wire everything
// from one place.
type Container struct {
	config     cache.Config
	store      *tagstore.Store
	keys       *cache.KeyBuilder
	dispatcher *contentcache.Dispatcher
	log        logrus.FieldLogger
}

// Option customizes a Container.
type Option func(*Container)

// WithLogger sets the logger propagated to every component the container
// builds.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Container) { c.log = log }
}

// NewContainer creates a DI container with the provided configuration. It
// initializes the tag-indexed store and the shared invalidation dispatcher.
func NewContainer(config cache.Config, opts ...Option) (*Container, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Container{
		config: config,
		keys:   cache.NewKeyBuilder(config.Namespace),
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	store, err := tagstore.New(
		tagstore.Config{EvictionInterval: config.EvictionInterval},
		tagstore.WithLogger(c.log),
	)
	if err != nil {
		return nil, err
	}
	c.store = store
	c.dispatcher = contentcache.NewDispatcher(store, c.log)

	return c, nil
}

// NewContainerWithDefaults creates a container using the default
// configuration. Convenience constructor for typical use.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(cache.DefaultConfig(), opts...)
}

// Store returns the singleton tag-indexed entry store.
func (c *Container) Store() cache.Store {
	return c.store
}

// Keys returns the singleton key builder.
func (c *Container) Keys() *cache.KeyBuilder {
	return c.keys
}

// Dispatcher returns the singleton invalidation dispatcher.
func (c *Container) Dispatcher() *contentcache.Dispatcher {
	return c.dispatcher
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() cache.Config {
	return c.config
}

// Stats returns a snapshot of the store counters for monitoring.
func (c *Container) Stats() tagstore.Stats {
	return c.store.Stats()
}

// Close stops the store's background sweep.
func (c *Container) Close() error {
	return c.store.Close()
}

// NewContentService creates a read-through cache service over the given
// content store, wired to the container's entry store and configuration.
func NewContentService(c *Container, source contentcache.ContentStore, opts ...contentcache.Option) (*contentcache.Service, error) {
	opts = append([]contentcache.Option{contentcache.WithLogger(c.log)}, opts...)
	return contentcache.New(c.store, source, c.config, opts...)
}

// NewContentWriter creates a writer that commits mutations to source and
// dispatches invalidations through the container's dispatcher.
func NewContentWriter(c *Container, source contentcache.ContentStore) *contentcache.Writer {
	return contentcache.NewWriter(source, c.dispatcher, c.log)
}

// NewSessionCache creates a client session/profile cache using the session
// TTL and debounce window from the container's configuration.
func NewSessionCache(c *Container, fetcher session.Fetcher, opts ...session.Option) (*session.Cache, error) {
	opts = append([]session.Option{session.WithLogger(c.log)}, opts...)
	return session.New(fetcher, c.config, opts...)
}
