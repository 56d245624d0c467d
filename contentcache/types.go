package contentcache

import (
	"context"
	"time"

	"github.com/goliatone/go-content-cache/cache"
)

// EntityType names one of the platform's content collections. The constant
// values double as the coarse invalidation tags.
type EntityType string

const (
	EntityArticles  EntityType = "articles"
	EntityCourses   EntityType = "courses"
	EntityEvents    EntityType = "events"
	EntityCommunity EntityType = "community"
)

// Record is the raw row shape the content store hands back. Field schemas of
// the concrete business entities stay in the store; the cache layer only
// depends on the identifiers and display fields every content type shares.
type Record struct {
	ID          string
	Slug        string
	Title       string
	Summary     string
	Category    string
	PublishedAt time.Time
	UpdatedAt   time.Time
}

// Item is the public value shape served from cache for a single resource.
type Item struct {
	ID          string    `msgpack:"id"`
	Slug        string    `msgpack:"slug"`
	Title       string    `msgpack:"title"`
	Summary     string    `msgpack:"summary"`
	Category    string    `msgpack:"category"`
	PublishedAt time.Time `msgpack:"published_at"`
}

// Pagination describes the window a listing covers.
type Pagination struct {
	Page       int `msgpack:"page"`
	PageSize   int `msgpack:"page_size"`
	TotalItems int `msgpack:"total_items"`
	TotalPages int `msgpack:"total_pages"`
}

// Listing is the public value shape of a paginated listing view.
type Listing struct {
	Items      []Item     `msgpack:"items"`
	Pagination Pagination `msgpack:"pagination"`
}

// CategoryCount is one bucket of a stats view. Categories are sorted so the
// encoded payload is byte-stable across recomputations.
type CategoryCount struct {
	Category string `msgpack:"category"`
	Count    int    `msgpack:"count"`
}

// Stats is the public value shape of an entity's aggregate stats view.
type Stats struct {
	Total         int             `msgpack:"total"`
	ByCategory    []CategoryCount `msgpack:"by_category"`
	LastPublished time.Time       `msgpack:"last_published"`
}

// MutationOp identifies a write operation against the content store.
type MutationOp string

const (
	OpCreate MutationOp = "create"
	OpUpdate MutationOp = "update"
	OpDelete MutationOp = "delete"
)

// MutationRequest is the payload of a ContentStore.Mutate call.
type MutationRequest struct {
	Op     MutationOp
	Record Record
}

// ContentStore is the read/write contract the cache layer holds against the
// external persistent store. The cache never reaches past it.
//
// Query must return rows in a deterministic order for fixed store state; the
// read-through layer relies on that for byte-stable payload recomputation.
// A pageSize of zero or less returns the full, unpaginated collection.
type ContentStore interface {
	Query(ctx context.Context, entity EntityType, page, pageSize int, filters cache.Filters) ([]Record, int, error)
	QueryOne(ctx context.Context, entity EntityType, ref string) (*Record, error)
	Mutate(ctx context.Context, entity EntityType, req MutationRequest) (*Record, error)
}

// FallbackSource is an optional secondary static/precomputed source consulted
// when a primary detail query fails. Keeping detail pages servable through a
// store outage is a deliberate availability choice, not error swallowing; a
// miss on both tiers surfaces cache.ErrNotFound.
type FallbackSource interface {
	QueryOne(ctx context.Context, entity EntityType, ref string) (*Record, error)
}
