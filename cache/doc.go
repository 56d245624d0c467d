// Package cache defines the shared vocabulary of the content cache-coherence
// layer: entries, freshness states, TTL policies, the Store contract, key
// construction and the invalidation tag taxonomy.
//
// # Overview
//
// Cached views of content (listings, details, slug enumerations, stats) are
// stored as immutable byte payloads under deterministic keys. Every entry
// carries a set of tags; writers purge entries by tag rather than by key, so
// a single mutation can evict every view that depended on the changed
// resource without enumerating keys.
//
// # Freshness
//
// An entry moves through three states by elapsed time alone:
//
//	Fresh   -> served as-is
//	Stale   -> served, but revalidated in the background
//	Expired -> recomputed synchronously
//
// Invalidation removes an entry outright from any state; there is no way back
// to Fresh except a new Put.
//
// # Keys and tags
//
// KeyBuilder produces keys from (entity, operation, parameters) with
// referential transparency: the same parameters always yield the same key.
// The tag constructors in tags.go implement the naming contract shared with
// the invalidation dispatcher; see that file for the exact formats.
//
// # See Also
//
// Package contentcache implements the read-through accessors and the
// invalidation dispatcher on top of this vocabulary. The in-memory Store
// implementation lives in internal/tagstore.
package cache
