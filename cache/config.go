package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config gathers the tuning knobs of the cache-coherence layer: TTL policies
// per view class, the eviction sweep interval, and the client session cache
// parameters.
type Config struct {
	// Namespace prefixes every cache key. Optional.
	Namespace string

	// EvictionInterval sets how often the store sweeps expired entries.
	// Zero disables the background sweep; expired entries are then removed
	// lazily on access or by invalidation.
	EvictionInterval time.Duration

	// ListingTTL governs paginated listing views. Listings tolerate
	// minutes-scale staleness: content changes become visible within
	// minutes even without an invalidating write.
	ListingTTL TTLPolicy

	// DetailTTL governs detail views and slug/id enumerations. These are
	// refreshed explicitly by invalidation on write, so the policy is
	// hours-scale rather than a freshness mechanism of its own.
	DetailTTL TTLPolicy

	// InitialTTL governs the first-paint listing caches.
	InitialTTL TTLPolicy

	// SessionTTL is the lifetime of a cached identity profile.
	SessionTTL time.Duration

	// SessionDebounce suppresses profile fetches that follow a completed
	// fetch within this window.
	SessionDebounce time.Duration
}

// DefaultConfig returns the reference TTL policy set.
func DefaultConfig() Config {
	return Config{
		EvictionInterval: time.Minute,
		ListingTTL: TTLPolicy{
			StaleAfter:  5 * time.Minute,
			ExpireAfter: 30 * time.Minute,
		},
		DetailTTL: TTLPolicy{
			StaleAfter:  6 * time.Hour,
			ExpireAfter: 24 * time.Hour,
		},
		InitialTTL: TTLPolicy{
			StaleAfter:  2 * time.Minute,
			ExpireAfter: 10 * time.Minute,
		},
		SessionTTL:      5 * time.Minute,
		SessionDebounce: time.Second,
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.ListingTTL, validation.By(ttlPolicyRule)),
		validation.Field(&c.DetailTTL, validation.By(ttlPolicyRule)),
		validation.Field(&c.InitialTTL, validation.By(ttlPolicyRule)),
		validation.Field(&c.SessionTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.SessionDebounce, validation.Min(time.Duration(0))),
	)
}

func ttlPolicyRule(value any) error {
	policy, ok := value.(TTLPolicy)
	if !ok {
		return &ConfigError{Field: "TTLPolicy", Message: "unexpected type"}
	}
	return policy.Validate()
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}
