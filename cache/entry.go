package cache

import (
	"fmt"
	"time"
)

// Freshness classifies how far through its TTL window a cache entry is.
type Freshness int

const (
	// Fresh entries are served as-is without touching the content store.
	Fresh Freshness = iota
	// Stale entries are still servable but should be revalidated in the
	// background for future readers.
	Stale
	// Expired entries (or absent keys) require a synchronous recomputation.
	Expired
)

// String returns the lowercase name of the freshness state.
func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("freshness(%d)", int(f))
	}
}

// TTLPolicy controls the two thresholds of an entry's lifetime: the point at
// which it turns stale and the point at which it can no longer be served.
// StaleAfter must not exceed ExpireAfter.
type TTLPolicy struct {
	StaleAfter  time.Duration
	ExpireAfter time.Duration
}

// Validate checks the invariants of the policy.
func (p TTLPolicy) Validate() error {
	if p.StaleAfter <= 0 {
		return &ConfigError{Field: "StaleAfter", Message: "must be greater than 0"}
	}
	if p.ExpireAfter <= 0 {
		return &ConfigError{Field: "ExpireAfter", Message: "must be greater than 0"}
	}
	if p.StaleAfter > p.ExpireAfter {
		return &ConfigError{Field: "StaleAfter", Message: "must not exceed ExpireAfter"}
	}
	return nil
}

// Classify maps the age of an entry onto a freshness state. The boundaries are
// half-open: an entry aged exactly StaleAfter is Stale, aged exactly
// ExpireAfter is Expired.
func (p TTLPolicy) Classify(age time.Duration) Freshness {
	switch {
	case age < p.StaleAfter:
		return Fresh
	case age < p.ExpireAfter:
		return Stale
	default:
		return Expired
	}
}

// Entry is the unit stored by a Store: an immutable payload plus the tag set
// and TTL state that govern its invalidation. Entries are replaced wholesale
// on Put, never patched in place.
type Entry struct {
	Key        string
	Value      []byte
	Tags       []string
	ComputedAt time.Time
	Policy     TTLPolicy
}
