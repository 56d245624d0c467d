package cache

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeySeparator delimits cache key segments.
const KeySeparator = "::"

// maxLiteralFilterKey is the longest filter fingerprint we embed verbatim.
// Anything longer (free-text search terms, stacked filters) is digested so
// keys stay bounded while remaining deterministic.
const maxLiteralFilterKey = 48

// Filters holds the normalized query filters of a listing request
// (category, search term, visibility and the like).
type Filters map[string]string

// KeyBuilder derives cache keys from (entity, operation, parameters).
// Identical parameters always produce the identical key, so hits are safe.
type KeyBuilder struct {
	namespace string
}

// NewKeyBuilder returns a KeyBuilder. The namespace prefixes every key and
// lets multiple logical caches share a store without collisions; empty is
// valid and produces un-prefixed keys.
func NewKeyBuilder(namespace string) *KeyBuilder {
	return &KeyBuilder{namespace: namespace}
}

// ListingKey builds the key for a paginated, filtered listing view.
func (b *KeyBuilder) ListingKey(entity string, page, pageSize int, filters Filters) string {
	return b.join(entity, "list", fmt.Sprintf("%d", page), fmt.Sprintf("%d", pageSize), FilterKey(filters))
}

// DetailKey builds the key for a single resource looked up by slug or id.
func (b *KeyBuilder) DetailKey(entity, ref string) string {
	return b.join(entity, "detail", ref)
}

// SlugsKey builds the key for the slug/id enumeration of an entity type.
func (b *KeyBuilder) SlugsKey(entity string) string {
	return b.join(entity, "slugs")
}

// StatsKey builds the key for the aggregate stats view of an entity type.
func (b *KeyBuilder) StatsKey(entity string) string {
	return b.join(entity, "stats")
}

// InitialKey builds the key for the first-paint listing of an entity type.
func (b *KeyBuilder) InitialKey(entity string) string {
	return b.join(entity, "initial")
}

func (b *KeyBuilder) join(segments ...string) string {
	if b.namespace != "" {
		segments = append([]string{b.namespace}, segments...)
	}
	return strings.Join(segments, KeySeparator)
}

// FilterKey canonicalizes a filter set into a deterministic token: "all" for
// no filters, sorted k=v pairs for short sets, and an xxhash digest once the
// literal form would exceed the bound. The token is shared by listing keys
// and listing tags, so both sides of the invalidation contract agree on it.
func FilterKey(filters Filters) string {
	if len(filters) == 0 {
		return "all"
	}

	pairs := make([]string, 0, len(filters))
	for k, v := range filters {
		if v == "" {
			continue
		}
		pairs = append(pairs, k+"="+v)
	}
	if len(pairs) == 0 {
		return "all"
	}
	sort.Strings(pairs)

	literal := strings.Join(pairs, "&")
	if len(literal) <= maxLiteralFilterKey {
		return literal
	}
	return fmt.Sprintf("x%016x", xxhash.Sum64String(literal))
}
