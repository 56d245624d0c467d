package cache

import (
	"context"
	"errors"
)

// ErrNotFound is returned by higher layers when neither the live content
// store nor a configured fallback source can resolve a resource.
var ErrNotFound = errors.New("cache: not found")

// Lookup is the result of a Store.Get. Found reports whether a live entry
// exists for the key; when Found is false Freshness is always Expired.
type Lookup struct {
	Value     []byte
	Freshness Freshness
	Found     bool
}

// Store is the contract between the read-through layer and the tag-indexed
// entry store. Implementations must be safe for concurrent use; all mutation
// goes through these entry points.
type Store interface {
	// Put stores value under key with the given tag set and TTL policy,
	// replacing any existing entry and rebuilding its tag memberships.
	Put(ctx context.Context, key string, value []byte, tags []string, policy TTLPolicy) error

	// Get returns the entry for key together with its freshness state.
	Get(ctx context.Context, key string) (Lookup, error)

	// Invalidate purges every entry whose tag set intersects tags and
	// returns the number of entries removed. Invalidating tags with no
	// members is a no-op; repeat invalidation is safe.
	Invalidate(ctx context.Context, tags ...string) (int, error)
}
