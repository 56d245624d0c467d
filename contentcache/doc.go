// Package contentcache implements the read-through cache layer and the
// invalidation dispatcher for the platform's content views.
//
// # Overview
//
// Service answers listing, detail, slug-enumeration, stats and first-paint
// reads for each content type (articles, courses, events, community posts)
// from a tag-indexed entry store, falling back to the ContentStore on miss.
// Writer performs mutations against the ContentStore and reports every
// committed write to Dispatcher, which purges the affected tags.
//
// # Read path
//
//  1. Build the deterministic key for (entity, operation, parameters).
//  2. Fresh hit: return the cached payload, no store access.
//  3. Stale hit: return the cached payload immediately and refresh the key
//     in a detached goroutine (stale-while-revalidate); the later Put wins.
//  4. Expired or absent: recompute synchronously. Concurrent misses for the
//     same key collapse into one source query via singleflight.
//
// Payloads are cached as canonical msgpack bytes; recomputing from identical
// store state reproduces the cached bytes exactly.
//
// # Write path
//
// Writer commits through ContentStore.Mutate and then dispatches. The
// dispatcher always purges the entity's coarse tag (every listing carries
// it), the mutated resource's detail tags, and the aggregates the operation
// class touches: creates purge initial/stats/slugs, renames purge the old and
// new addresses plus slugs, deletes purge detail views, slugs and stats.
// Invalidation is best-effort after the commit: failures are logged and
// surfaced for out-of-band retry, never rolled into the write.
//
// # Error handling
//
// Source query failures during population propagate to the caller and are
// never cached; an existing entry for the key stays servable. Detail lookups
// may consult an optional FallbackSource when the primary query fails; only
// after both tiers fail does the caller see cache.ErrNotFound. Background
// revalidation failures are logged and the stale entry remains in place.
package contentcache
