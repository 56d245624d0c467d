package contentcache

import (
	"context"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-content-cache/cache"
)

// defaultPageSize is applied when a listing request leaves the size unset.
const defaultPageSize = 10

// defaultRefreshTimeout bounds a background revalidation, which runs detached
// from the triggering caller's context.
const defaultRefreshTimeout = 30 * time.Second

// Service is the read-through cache layer over a ContentStore. Reads consult
// the entry store first; misses and expiries recompute through the store under
// single-flight so concurrent misses for one key collapse into one query, and
// stale hits return immediately while a detached refresh repopulates the key.
type Service struct {
	store    cache.Store
	source   ContentStore
	fallback FallbackSource
	keys     *cache.KeyBuilder
	log      logrus.FieldLogger

	listingTTL cache.TTLPolicy
	detailTTL  cache.TTLPolicy
	initialTTL cache.TTLPolicy

	refreshTimeout time.Duration

	group      singleflight.Group
	refreshing *xsync.MapOf[string, struct{}]

	// observed by tests to synchronize with background refreshes
	refreshDone func(key string, err error)
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the logger for refresh and invalidation diagnostics.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Service) { s.log = log }
}

// WithFallback installs a secondary source for detail lookups, consulted when
// the primary store query fails.
func WithFallback(fallback FallbackSource) Option {
	return func(s *Service) { s.fallback = fallback }
}

// WithRefreshTimeout bounds background revalidations.
func WithRefreshTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.refreshTimeout = d
		}
	}
}

func withRefreshObserver(fn func(key string, err error)) Option {
	return func(s *Service) { s.refreshDone = fn }
}

// New creates a read-through Service over store and source using the TTL
// policies and namespace from cfg.
func New(store cache.Store, source ContentStore, cfg cache.Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		store:          store,
		source:         source,
		keys:           cache.NewKeyBuilder(cfg.Namespace),
		log:            logrus.StandardLogger(),
		listingTTL:     cfg.ListingTTL,
		detailTTL:      cfg.DetailTTL,
		initialTTL:     cfg.InitialTTL,
		refreshTimeout: defaultRefreshTimeout,
		refreshing:     xsync.NewMapOf[string, struct{}](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Keys exposes the service's key builder so writers and diagnostics agree on
// key construction.
func (s *Service) Keys() *cache.KeyBuilder { return s.keys }

// GetListing returns a paginated, filtered listing view for entity.
func (s *Service) GetListing(ctx context.Context, entity EntityType, page, pageSize int, filters cache.Filters) (Listing, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	key := s.keys.ListingKey(string(entity), page, pageSize, filters)
	payload, err := s.readThrough(ctx, key, s.listingTTL, func(ctx context.Context) ([]byte, []string, error) {
		return s.computeListing(ctx, entity, page, pageSize, filters)
	})
	if err != nil {
		return Listing{}, err
	}
	return decodePayload[Listing](payload)
}

// GetDetail returns the detail view of a single resource looked up by slug or
// id. A lookup that neither the store nor the configured fallback resolves
// returns cache.ErrNotFound.
func (s *Service) GetDetail(ctx context.Context, entity EntityType, ref string) (Item, error) {
	key := s.keys.DetailKey(string(entity), ref)
	payload, err := s.readThrough(ctx, key, s.detailTTL, func(ctx context.Context) ([]byte, []string, error) {
		return s.computeDetail(ctx, entity, ref)
	})
	if err != nil {
		return Item{}, err
	}
	return decodePayload[Item](payload)
}

// GetSlugs returns the slug enumeration for entity.
func (s *Service) GetSlugs(ctx context.Context, entity EntityType) ([]string, error) {
	key := s.keys.SlugsKey(string(entity))
	payload, err := s.readThrough(ctx, key, s.detailTTL, func(ctx context.Context) ([]byte, []string, error) {
		rows, _, err := s.source.Query(ctx, entity, 1, 0, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("query %s slugs: %w", entity, err)
		}
		payload, err := encodePayload(transformSlugs(rows))
		if err != nil {
			return nil, nil, err
		}
		return payload, []string{cache.SlugsTag(string(entity))}, nil
	})
	if err != nil {
		return nil, err
	}
	return decodePayload[[]string](payload)
}

// GetStats returns the aggregate stats view for entity.
func (s *Service) GetStats(ctx context.Context, entity EntityType) (Stats, error) {
	key := s.keys.StatsKey(string(entity))
	payload, err := s.readThrough(ctx, key, s.listingTTL, func(ctx context.Context) ([]byte, []string, error) {
		rows, _, err := s.source.Query(ctx, entity, 1, 0, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("query %s stats: %w", entity, err)
		}
		payload, err := encodePayload(transformStats(rows))
		if err != nil {
			return nil, nil, err
		}
		return payload, []string{cache.StatsTag(string(entity))}, nil
	})
	if err != nil {
		return Stats{}, err
	}
	return decodePayload[Stats](payload)
}

// GetInitial returns the first-paint listing for entity: page one, default
// size, no filters, under the short-lived initial policy.
func (s *Service) GetInitial(ctx context.Context, entity EntityType) (Listing, error) {
	key := s.keys.InitialKey(string(entity))
	payload, err := s.readThrough(ctx, key, s.initialTTL, func(ctx context.Context) ([]byte, []string, error) {
		rows, total, err := s.source.Query(ctx, entity, 1, defaultPageSize, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("query %s initial page: %w", entity, err)
		}
		listing := transformListing(rows, total, 1, defaultPageSize)
		payload, err := encodePayload(listing)
		if err != nil {
			return nil, nil, err
		}
		tags := []string{cache.CoarseTag(string(entity)), cache.InitialTag(string(entity))}
		return payload, tags, nil
	})
	if err != nil {
		return Listing{}, err
	}
	return decodePayload[Listing](payload)
}

// Per-entity accessors over the generic operations.

func (s *Service) GetArticles(ctx context.Context, page, pageSize int, filters cache.Filters) (Listing, error) {
	return s.GetListing(ctx, EntityArticles, page, pageSize, filters)
}

func (s *Service) GetCourses(ctx context.Context, page, pageSize int, filters cache.Filters) (Listing, error) {
	return s.GetListing(ctx, EntityCourses, page, pageSize, filters)
}

func (s *Service) GetEvents(ctx context.Context, page, pageSize int, filters cache.Filters) (Listing, error) {
	return s.GetListing(ctx, EntityEvents, page, pageSize, filters)
}

func (s *Service) GetCommunityPosts(ctx context.Context, page, pageSize int, filters cache.Filters) (Listing, error) {
	return s.GetListing(ctx, EntityCommunity, page, pageSize, filters)
}

func (s *Service) GetArticle(ctx context.Context, ref string) (Item, error) {
	return s.GetDetail(ctx, EntityArticles, ref)
}

func (s *Service) GetCourse(ctx context.Context, ref string) (Item, error) {
	return s.GetDetail(ctx, EntityCourses, ref)
}

func (s *Service) GetEvent(ctx context.Context, ref string) (Item, error) {
	return s.GetDetail(ctx, EntityEvents, ref)
}

func (s *Service) GetCommunityPost(ctx context.Context, ref string) (Item, error) {
	return s.GetDetail(ctx, EntityCommunity, ref)
}

func (s *Service) GetArticleSlugs(ctx context.Context) ([]string, error) {
	return s.GetSlugs(ctx, EntityArticles)
}

func (s *Service) GetArticleStats(ctx context.Context) (Stats, error) {
	return s.GetStats(ctx, EntityArticles)
}

func (s *Service) GetInitialArticles(ctx context.Context) (Listing, error) {
	return s.GetInitial(ctx, EntityArticles)
}

// computeFn recomputes a cache entry: it queries the source, transforms the
// rows into the public shape and returns the encoded payload plus the tag set
// the entry should carry.
type computeFn func(ctx context.Context) ([]byte, []string, error)

// readThrough implements the freshness protocol for one key: fresh returns
// the cached payload, stale returns it while kicking off a detached refresh,
// expired or absent recomputes synchronously under single-flight.
func (s *Service) readThrough(ctx context.Context, key string, policy cache.TTLPolicy, compute computeFn) ([]byte, error) {
	lookup, err := s.store.Get(ctx, key)
	if err != nil {
		// A failing entry store degrades to a plain source query.
		s.log.WithError(err).WithField("key", key).Warn("cache get failed; querying source directly")
		lookup = cache.Lookup{Freshness: cache.Expired}
	}

	switch {
	case lookup.Found && lookup.Freshness == cache.Fresh:
		return lookup.Value, nil

	case lookup.Found && lookup.Freshness == cache.Stale:
		s.revalidate(ctx, key, policy, compute)
		return lookup.Value, nil

	default:
		payload, err, _ := s.group.Do(key, func() (any, error) {
			return s.recompute(ctx, key, policy, compute)
		})
		if err != nil {
			return nil, err
		}
		return payload.([]byte), nil
	}
}

// recompute queries the source and repopulates the entry. Query errors
// propagate without caching; any previous entry for the key is left alone.
func (s *Service) recompute(ctx context.Context, key string, policy cache.TTLPolicy, compute computeFn) ([]byte, error) {
	payload, tags, err := compute(ctx)
	if err != nil {
		return nil, err
	}

	tags = dedupeStrings(append(tags, cacheTagsFromContext(ctx)...))
	if err := s.store.Put(ctx, key, payload, tags, policy); err != nil {
		// The computed value is still good; serve it and log the store failure.
		s.log.WithError(err).WithField("key", key).Warn("cache put failed; serving uncached result")
	}
	return payload, nil
}

// revalidate refreshes a stale key in the background. The triggering caller
// is never blocked; a second stale hit while the refresh is in flight is a
// no-op. Refresh failures are logged and the stale entry stays servable until
// it expires or the next synchronous miss.
func (s *Service) revalidate(parent context.Context, key string, policy cache.TTLPolicy, compute computeFn) {
	if _, loaded := s.refreshing.LoadOrStore(key, struct{}{}); loaded {
		return
	}

	// Carry caller-attached cache tags into the detached context.
	extraTags := cacheTagsFromContext(parent)

	go func() {
		defer s.refreshing.Delete(key)

		ctx, cancel := context.WithTimeout(context.Background(), s.refreshTimeout)
		defer cancel()
		if len(extraTags) > 0 {
			ctx = WithCacheTags(ctx, extraTags...)
		}

		_, err := s.recompute(ctx, key, policy, compute)
		if err != nil {
			s.log.WithError(err).WithField("key", key).Warn("background revalidation failed; keeping stale entry")
		}
		if s.refreshDone != nil {
			s.refreshDone(key, err)
		}
	}()
}

func (s *Service) computeListing(ctx context.Context, entity EntityType, page, pageSize int, filters cache.Filters) ([]byte, []string, error) {
	rows, total, err := s.source.Query(ctx, entity, page, pageSize, filters)
	if err != nil {
		return nil, nil, fmt.Errorf("query %s listing: %w", entity, err)
	}

	listing := transformListing(rows, total, page, pageSize)
	payload, err := encodePayload(listing)
	if err != nil {
		return nil, nil, err
	}

	// Coarse tag is mandatory on every listing: writes purge it
	// unconditionally because the listing parameter space cannot be
	// enumerated from a single mutation.
	tags := []string{
		cache.CoarseTag(string(entity)),
		cache.ListingTag(string(entity), page, pageSize, filters),
	}
	for _, r := range rows {
		tags = append(tags, cache.DetailTag(string(entity), r.ID))
		if r.Slug != "" && r.Slug != r.ID {
			tags = append(tags, cache.DetailTag(string(entity), r.Slug))
		}
	}
	return payload, dedupeStrings(tags), nil
}

func (s *Service) computeDetail(ctx context.Context, entity EntityType, ref string) ([]byte, []string, error) {
	rec, err := s.source.QueryOne(ctx, entity, ref)
	if err != nil {
		if s.fallback == nil {
			return nil, nil, fmt.Errorf("query %s %q: %w", entity, ref, err)
		}
		s.log.WithError(err).WithFields(logrus.Fields{
			"entity": entity,
			"ref":    ref,
		}).Warn("primary detail query failed; consulting fallback source")
		if rec, err = s.fallback.QueryOne(ctx, entity, ref); err != nil {
			// Both tiers down: the caller sees a not-found condition.
			return nil, nil, fmt.Errorf("%s %q unavailable from primary and fallback: %w", entity, ref, cache.ErrNotFound)
		}
	}
	if rec == nil {
		return nil, nil, fmt.Errorf("%s %q: %w", entity, ref, cache.ErrNotFound)
	}

	payload, err := encodePayload(transformItem(*rec))
	if err != nil {
		return nil, nil, err
	}

	// Detail entries are tagged by every identifier the resource answers
	// to, so renames can purge both the old and the new address. They do
	// not carry the coarse tag: unrelated writes to the entity must not
	// evict hour-scale detail caches.
	tags := []string{cache.DetailTag(string(entity), rec.ID)}
	if rec.Slug != "" && rec.Slug != rec.ID {
		tags = append(tags, cache.DetailTag(string(entity), rec.Slug))
	}
	if ref != rec.ID && ref != rec.Slug {
		tags = append(tags, cache.DetailTag(string(entity), ref))
	}
	return payload, tags, nil
}
