// Package compact collapses per-street address enumerations into the
// smallest set of printable ranges that still resolves every address to
// its precinct.
//
// Compaction is lossless: a range either covers its numeric span
// exactly, or carries an explicit list of exception addresses that
// belong to a different precinct. A street whose precinct alternates
// every other number compacts to one range per number; the package
// reports the true information density rather than hiding it, because
// poll workers must be able to route every voter correctly.
//
// Per street, compaction is attempted both on the full mixed sequence
// and split by odd/even parity, and the strategy producing fewer
// printed lines wins. Ties go to the parity split, which mirrors
// real-world addressing convention.
package compact

import (
	"sort"

	"github.com/civicworks/precinctbook/pkg/errors"
	"github.com/civicworks/precinctbook/pkg/roster"
)

// Default policy values. MaxGap defaults to 2 because consecutive
// same-parity house numbers differ by 2; a larger gap signals a real
// street discontinuity and starts a new range instead of bridging it.
const (
	DefaultMaxGap                = 2
	DefaultMinExceptionRun       = 1
	DefaultMaxExceptionsPerRange = 3
)

// Options are the compaction policy parameters. The zero value gets
// the documented defaults via SetDefaults.
type Options struct {
	// MaxGap is the largest gap between consecutive house numbers
	// that a range may bridge.
	MaxGap int

	// MinExceptionRun is the longest run of deviating house numbers
	// that may be absorbed as exceptions instead of forcing a split.
	// Runs longer than this always become their own range.
	MinExceptionRun int

	// MaxExceptionsPerRange caps the exceptions a single range may
	// carry; beyond the cap a split is forced.
	MaxExceptionsPerRange int

	// AbsorbIsolated enables exception absorption. When false (the
	// default), any precinct change closes the current range and the
	// deviation becomes its own range. When true, an isolated
	// deviation flanked on both sides by the surrounding precinct is
	// folded into the range as an exception, which always reduces the
	// printed line count by two.
	AbsorbIsolated bool
}

// SetDefaults fills in zero-valued policy parameters.
func (o *Options) SetDefaults() {
	if o.MaxGap == 0 {
		o.MaxGap = DefaultMaxGap
	}
	if o.MinExceptionRun == 0 {
		o.MinExceptionRun = DefaultMinExceptionRun
	}
	if o.MaxExceptionsPerRange == 0 {
		o.MaxExceptionsPerRange = DefaultMaxExceptionsPerRange
	}
}

// Validate checks the policy parameters.
func (o Options) Validate() error {
	return errors.ValidateCompactionBounds(o.MaxGap, o.MinExceptionRun, o.MaxExceptionsPerRange)
}

// Exception is a house number inside a range's bounds that belongs to a
// different precinct than the range itself.
type Exception struct {
	Number   int
	Precinct roster.Precinct
}

// Range is one compacted output unit: the house numbers Low through
// High (of the given parity) on Street belong to Precinct, except for
// the numbers listed in Exceptions.
//
// OpenLow and OpenHigh mark bounds that may be omitted when printing
// because they are unambiguous in context (for example a street that
// compacts to a single line needs no numbers at all). The numeric
// bounds themselves are always retained.
type Range struct {
	Street   string
	Parity   roster.Parity
	Low      int
	High     int
	OpenLow  bool
	OpenHigh bool
	Precinct roster.Precinct

	Exceptions []Exception
}

// Exact reports whether every covered house number in [Low, High] of
// the matching parity truly belongs to the range's precinct.
func (r Range) Exact() bool { return len(r.Exceptions) == 0 }

// Covers reports whether the range accounts for the given house
// number, either directly or via an exception entry.
func (r Range) Covers(n int) bool {
	return n >= r.Low && n <= r.High
}

// Street compacts one street group into ranges covering every input
// house number exactly once in aggregate.
//
// For mixed-parity streets, both the merged and the split-by-parity
// strategies are computed and the one with fewer ranges is returned;
// ties go to the split. Single-parity streets have only one strategy.
func Street(group roster.StreetGroup, opts Options) ([]Range, error) {
	opts.SetDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(group.Entries) == 0 {
		return nil, nil
	}

	if group.Parity != roster.ParityAll {
		return scan(group.Street, group.Parity, group.Entries, opts), nil
	}

	merged := scan(group.Street, roster.ParityAll, group.Entries, opts)

	var odd, even []roster.Entry
	for _, e := range group.Entries {
		if e.Number%2 == 0 {
			even = append(even, e)
		} else {
			odd = append(odd, e)
		}
	}
	split := scan(group.Street, roster.ParityOdd, odd, opts)
	split = append(split, scan(group.Street, roster.ParityEven, even, opts)...)
	sort.Slice(split, func(i, j int) bool { return split[i].Low < split[j].Low })

	if len(split) <= len(merged) {
		return split, nil
	}
	return merged, nil
}

// Poll compacts every street group of a polling place and trims bounds
// for printing. Groups are compacted in input order, so the caller's
// street ordering is preserved.
func Poll(groups []roster.StreetGroup, opts Options) ([]Range, error) {
	var out []Range
	for _, g := range groups {
		rs, err := Street(g, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, TrimBounds(rs)...)
	}
	return out, nil
}

// scan walks one sorted entry sequence, accumulating a run while the
// precinct stays constant and the gap between consecutive numbers does
// not exceed MaxGap. Precinct changes either close the run or, under
// the absorption policy, fold an isolated deviation in as exceptions.
func scan(street string, parity roster.Parity, entries []roster.Entry, o Options) []Range {
	var out []Range
	var cur *Range

	i := 0
	for i < len(entries) {
		e := entries[i]

		if cur == nil {
			cur = &Range{Street: street, Parity: parity, Low: e.Number, High: e.Number, Precinct: e.Precinct}
			i++
			continue
		}

		if e.Number-cur.High > o.MaxGap {
			out = append(out, *cur)
			cur = nil
			continue
		}

		if e.Precinct == cur.Precinct {
			cur.High = e.Number
			i++
			continue
		}

		// Deviating run [i, j) of one foreign precinct with no
		// internal discontinuity.
		j := i + 1
		for j < len(entries) &&
			entries[j].Precinct == e.Precinct &&
			entries[j].Number-entries[j-1].Number <= o.MaxGap {
			j++
		}
		runLen := j - i

		// Absorption requires the run to be short enough, the cap to
		// hold, and the entry after the run to resume the current
		// precinct within MaxGap. The resuming entry extends High past
		// the exceptions, keeping them strictly inside the bounds.
		absorb := o.AbsorbIsolated &&
			runLen <= o.MinExceptionRun &&
			len(cur.Exceptions)+runLen <= o.MaxExceptionsPerRange &&
			j < len(entries) &&
			entries[j].Precinct == cur.Precinct &&
			entries[j].Number-entries[j-1].Number <= o.MaxGap

		if absorb {
			for k := i; k < j; k++ {
				cur.Exceptions = append(cur.Exceptions, Exception{
					Number:   entries[k].Number,
					Precinct: entries[k].Precinct,
				})
			}
			cur.High = entries[j-1].Number
			i = j
			continue
		}

		out = append(out, *cur)
		cur = nil
	}

	if cur != nil {
		out = append(out, *cur)
	}
	return out
}
