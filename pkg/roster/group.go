package roster

import (
	"sort"
	"strings"

	"github.com/civicworks/precinctbook/pkg/errors"
)

// GroupOptions configures grouping.
type GroupOptions struct {
	// Less orders streets for output. Nil means case-insensitive
	// alphabetical order on the normalized street name.
	Less func(a, b string) bool
}

// Group validates a polling place's address records and groups them by
// street, producing one StreetGroup per street with entries sorted
// strictly ascending by house number.
//
// Street names are matched case-insensitively with whitespace
// normalized; no fuzzy matching. The display name of a street is its
// normalized form from the first record seen.
//
// Two records for the same (street, house number, unit) with different
// precincts are a data conflict and abort grouping with a DATA_CONFLICT
// error. The same applies to two units at one house number assigned to
// different precincts: a single printed line cannot route both, and the
// underlying data needs fixing rather than silent repair.
func Group(records []AddressRecord, opts GroupOptions) ([]StreetGroup, error) {
	less := opts.Less
	if less == nil {
		less = func(a, b string) bool { return strings.ToUpper(a) < strings.ToUpper(b) }
	}

	type streetAcc struct {
		display string
		// precinct per house number; one precinct per number is an
		// invariant of the printed sheet
		byNumber map[int]Precinct
	}

	streets := make(map[string]*streetAcc)
	for _, rec := range records {
		if err := errors.ValidateStreetName(rec.Street); err != nil {
			return nil, err
		}
		if err := errors.ValidateHouseNumber(rec.Number); err != nil {
			return nil, errors.Wrap(errors.ErrCodeDataMalformed, err, "address %d %s", rec.Number, rec.Street)
		}

		display := NormalizeStreet(rec.Street)
		key := strings.ToUpper(display)
		acc, ok := streets[key]
		if !ok {
			acc = &streetAcc{display: display, byNumber: make(map[int]Precinct)}
			streets[key] = acc
		}

		if prev, ok := acc.byNumber[rec.Number]; ok {
			if prev != rec.Precinct {
				return nil, errors.New(errors.ErrCodeDataConflict,
					"conflicting precincts for %d %s: %s vs %s",
					rec.Number, acc.display, prev, rec.Precinct)
			}
			continue // duplicate row, same assignment
		}
		acc.byNumber[rec.Number] = rec.Precinct
	}

	groups := make([]StreetGroup, 0, len(streets))
	for _, acc := range streets {
		numbers := make([]int, 0, len(acc.byNumber))
		for n := range acc.byNumber {
			numbers = append(numbers, n)
		}
		sort.Ints(numbers)

		entries := make([]Entry, len(numbers))
		hasOdd, hasEven := false, false
		for i, n := range numbers {
			entries[i] = Entry{Number: n, Precinct: acc.byNumber[n]}
			if n%2 == 0 {
				hasEven = true
			} else {
				hasOdd = true
			}
		}

		parity := ParityAll
		switch {
		case hasOdd && !hasEven:
			parity = ParityOdd
		case hasEven && !hasOdd:
			parity = ParityEven
		}

		groups = append(groups, StreetGroup{
			Street:  acc.display,
			Parity:  parity,
			Entries: entries,
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		return less(groups[i].Street, groups[j].Street)
	})
	return groups, nil
}

// NormalizeStreet collapses runs of whitespace in a street name to
// single spaces and trims the ends. Case is preserved for display;
// matching is done case-insensitively on top of this.
func NormalizeStreet(street string) string {
	return strings.Join(strings.Fields(street), " ")
}
