package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// RosterKeyOpts identifies a parsed roster in the cache.
type RosterKeyOpts struct {
	PollsID     string // identity of the polling-places input (path or hash)
	AddressesID string // identity of the addresses input
	FixesHash   string // hash of the fixes overlay, empty if none
	PollKey     string // poll key mode
}

// Keyer produces cache keys.
type Keyer interface {
	// RosterKey returns the key for parsed roster data.
	RosterKey(opts RosterKeyOpts) string

	// BookKey returns the key for a rendered book, derived from the
	// roster hash and the poll key.
	BookKey(rosterHash, poll string) string
}

// DefaultKeyer hashes key components with SHA-256.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the standard keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// RosterKey returns the key for parsed roster data.
func (DefaultKeyer) RosterKey(opts RosterKeyOpts) string {
	return hashKey("roster", opts)
}

// BookKey returns the key for a rendered book.
func (DefaultKeyer) BookKey(rosterHash, poll string) string {
	return hashKey("book", rosterHash, poll)
}

// ScopedKeyer wraps a Keyer with a prefix, isolating cache namespaces
// when one backend is shared (for example one Redis instance serving
// several election cycles).
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer that prepends prefix to all keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{inner: inner, prefix: prefix}
}

// RosterKey returns the prefixed roster key.
func (k *ScopedKeyer) RosterKey(opts RosterKeyOpts) string {
	return k.prefix + k.inner.RosterKey(opts)
}

// BookKey returns the prefixed book key.
func (k *ScopedKeyer) BookKey(rosterHash, poll string) string {
	return k.prefix + k.inner.BookKey(rosterHash, poll)
}

// hashKey generates a cache key by hashing the components.
// The key format is: prefix:hash(parts...)
func hashKey(prefix string, parts ...any) string {
	data, _ := json.Marshal(parts)
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s:%s", prefix, hex.EncodeToString(sum[:]))
}

// Hash computes the SHA-256 hash of data as a 64-character hex string.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
