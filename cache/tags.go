package cache

import "fmt"

// Tag constructors for the invalidation taxonomy. The formats below are a
// wire contract between writers and the entries readers populate; changing
// one side without the other silently breaks invalidation.
//
//   - coarse:    {entity}
//   - detail:    {entity}-{id}
//   - listing:   {entity}-list-{page}-{pageSize}-{filterKey}
//   - aggregate: {entity}-initial, {entity}-stats, {entity}-slugs
//
// Listings always carry their entity's coarse tag in addition to the listing
// tag: the listing parameter space cannot be enumerated from a single write,
// so writers purge the coarse tag unconditionally.

// CoarseTag returns the per-entity-type tag carried by every listing entry.
func CoarseTag(entity string) string {
	return entity
}

// DetailTag returns the fine-grained tag for a specific resource identifier.
func DetailTag(entity, id string) string {
	return fmt.Sprintf("%s-%s", entity, id)
}

// ListingTag returns the tag identifying one listing permutation.
func ListingTag(entity string, page, pageSize int, filters Filters) string {
	return fmt.Sprintf("%s-list-%d-%d-%s", entity, page, pageSize, FilterKey(filters))
}

// InitialTag returns the aggregate tag for an entity's first-paint cache.
func InitialTag(entity string) string {
	return entity + "-initial"
}

// StatsTag returns the aggregate tag for an entity's stats cache.
func StatsTag(entity string) string {
	return entity + "-stats"
}

// SlugsTag returns the aggregate tag for an entity's slug enumeration cache.
func SlugsTag(entity string) string {
	return entity + "-slugs"
}
