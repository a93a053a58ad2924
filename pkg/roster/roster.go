// Package roster holds the address roster model for a polling place and
// the normalizer that groups raw address records by street.
//
// The roster is the input to compaction: a flat list of AddressRecord
// rows (one per street address, as loaded by a source) is validated and
// grouped into per-street sequences of (house number, precinct) entries
// sorted by house number. Conflicting precinct assignments for the same
// address are reported as errors, never silently resolved.
package roster

import "fmt"

// Precinct identifies the smallest voting unit: a ward and a precinct
// number within that ward. Each address belongs to exactly one precinct.
type Precinct struct {
	Ward   int
	Number int
}

// String returns the "ward-precinct" label used on printed sheets.
func (p Precinct) String() string {
	return fmt.Sprintf("%d-%d", p.Ward, p.Number)
}

// Less orders precincts by ward, then precinct number.
func (p Precinct) Less(o Precinct) bool {
	if p.Ward != o.Ward {
		return p.Ward < o.Ward
	}
	return p.Number < o.Number
}

// Parity identifies which side of a street a range covers. Odd and even
// house numbers commonly sit on opposite sides and often belong to
// different precincts.
type Parity string

// Parity values.
const (
	ParityAll  Parity = "all"
	ParityOdd  Parity = "odd"
	ParityEven Parity = "even"
)

// Label returns the parity as printed on a sheet. ParityAll prints as
// an empty cell; odd and even are capitalized.
func (p Parity) Label() string {
	switch p {
	case ParityOdd:
		return "Odd"
	case ParityEven:
		return "Even"
	default:
		return ""
	}
}

// Of returns the parity of a single house number.
func Of(number int) Parity {
	if number%2 == 0 {
		return ParityEven
	}
	return ParityOdd
}

// AddressRecord is one raw roster row: a single street address and its
// precinct assignment. Records are immutable once loaded.
type AddressRecord struct {
	Street   string
	Number   int
	Unit     string
	Precinct Precinct
}

// Entry is one (house number, precinct) pair within a street group.
type Entry struct {
	Number   int
	Precinct Precinct
}

// StreetGroup is the ordered sequence of entries for one street,
// sorted strictly ascending by house number. Parity reflects the
// numbers actually present: odd-only, even-only, or ParityAll when
// both sides appear.
type StreetGroup struct {
	Street  string
	Parity  Parity
	Entries []Entry
}

// Numbers returns the house numbers in the group, in order.
func (g StreetGroup) Numbers() []int {
	ns := make([]int, len(g.Entries))
	for i, e := range g.Entries {
		ns[i] = e.Number
	}
	return ns
}

// Precincts returns the distinct precincts present in the group,
// in order of first appearance.
func (g StreetGroup) Precincts() []Precinct {
	seen := make(map[Precinct]bool)
	var ps []Precinct
	for _, e := range g.Entries {
		if !seen[e.Precinct] {
			seen[e.Precinct] = true
			ps = append(ps, e.Precinct)
		}
	}
	return ps
}
