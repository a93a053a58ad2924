// Package source materializes the raw election roster: polling-place
// assignments and street addresses with their precincts.
//
// Two implementations are provided. CSVSource reads the published
// municipal CSV exports (optionally bz2-compressed), applying the data
// fixes overlay while reading. MongoSource reads the same data from a
// MongoDB database, for deployments that stage municipal data there.
// Both produce the same in-memory shape, which the pipeline groups per
// polling place and hands to compaction.
package source

import (
	"context"
	"sort"

	"github.com/civicworks/precinctbook/pkg/roster"
)

// PollKeyMode selects what uniquely identifies a polling place in the
// source data. Neither field is fully reliable in published data, so
// both are implemented; cautious operators run with each and compare.
type PollKeyMode string

// Poll key modes.
const (
	// PollKeyLocation combines the location name and detail fields.
	PollKeyLocation PollKeyMode = "location"

	// PollKeyAddress uses the geocoded match address.
	PollKeyAddress PollKeyMode = "address"
)

// Valid reports whether the mode is one of the known values.
func (m PollKeyMode) Valid() bool {
	return m == PollKeyLocation || m == PollKeyAddress
}

// Address is one roster row: a street address and its precinct.
// The ZIP code disambiguates streets that exist in several
// neighborhoods city-wide; within a single polling place the street
// name and number alone identify an address.
type Address struct {
	Number   int
	Street   string
	Zip      string
	Precinct roster.Precinct
}

// PollSet maps precincts to polling places.
type PollSet struct {
	keyByPrecinct map[roster.Precinct]string
	nameByKey     map[string]string
}

// NewPollSet creates an empty poll set.
func NewPollSet() *PollSet {
	return &PollSet{
		keyByPrecinct: make(map[roster.Precinct]string),
		nameByKey:     make(map[string]string),
	}
}

// Add assigns a precinct to a polling place.
func (s *PollSet) Add(p roster.Precinct, key, name string) {
	s.keyByPrecinct[p] = key
	s.nameByKey[key] = name
}

// Lookup returns the poll key serving the given precinct.
func (s *PollSet) Lookup(p roster.Precinct) (string, bool) {
	key, ok := s.keyByPrecinct[p]
	return key, ok
}

// Name returns the display name for a poll key.
func (s *PollSet) Name(key string) string {
	return s.nameByKey[key]
}

// Precincts returns the precincts served by the given poll, sorted.
func (s *PollSet) Precincts(key string) []roster.Precinct {
	var ps []roster.Precinct
	for p, k := range s.keyByPrecinct {
		if k == key {
			ps = append(ps, p)
		}
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].Less(ps[j]) })
	return ps
}

// Keys returns all poll keys, sorted by the wards and precincts they
// serve so output ordering is stable across runs.
func (s *PollSet) Keys() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, k := range s.keyByPrecinct {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return lessPrecincts(s.Precincts(keys[i]), s.Precincts(keys[j]))
	})
	return keys
}

// Len returns the number of distinct polling places.
func (s *PollSet) Len() int {
	return len(s.nameByKey)
}

// lessPrecincts orders precinct slices lexicographically.
func lessPrecincts(a, b []roster.Precinct) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i].Less(b[i])
		}
	}
	return len(a) < len(b)
}

// Source materializes the roster.
type Source interface {
	// Polls returns the precinct to polling-place assignment.
	Polls(ctx context.Context) (*PollSet, error)

	// Addresses returns every street address with its precinct.
	Addresses(ctx context.Context) ([]Address, error)
}
