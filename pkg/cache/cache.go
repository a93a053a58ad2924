// Package cache stores preprocessed roster data between runs.
//
// Parsing the municipal CSV exports dominates run time, so the
// pipeline caches the parsed and validated roster keyed on the source
// identity and the fixes overlay. File and Redis backends are
// provided; NullCache disables caching.
package cache

import (
	"context"
	"time"
)

// TTLs for cached data. Roster data changes only when the city
// publishes new exports, so entries live long and are invalidated by
// key (content identity) rather than by time.
const (
	// TTLRoster is the lifetime of parsed roster data.
	TTLRoster = 30 * 24 * time.Hour

	// TTLBook is the lifetime of rendered book documents.
	TTLBook = 7 * 24 * time.Hour
)

// Cache is a byte-oriented cache with per-entry TTL.
type Cache interface {
	// Get retrieves a value. The second return reports a hit.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value. A zero TTL means no expiration.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the cache.
	Close() error
}
