package compact

import "github.com/civicworks/precinctbook/pkg/roster"

// TrimBounds cleans up one street's ranges for printing. It never
// removes routing information: numeric bounds stay set, only the
// Open flags and parity labels change.
//
// Two cleanups are applied, both taken from how a human would write
// the sheet:
//
//   - Parity promotion: a range labeled odd or even whose span
//     overlaps no other range on the street is relabeled to cover the
//     whole street, since the label adds nothing.
//   - Bound opening: where a bound is unambiguous it is marked open so
//     the printed line can drop it. A street with a single range needs
//     no numbers at all; a street with exactly one odd and one even
//     range needs none either; otherwise the leading bound of the
//     first range and the trailing bound of the last can be dropped
//     (for an odd/even pair at either end, of both).
//
// The input must be the complete, Low-sorted range list for a single
// street.
func TrimBounds(ranges []Range) []Range {
	if len(ranges) == 0 {
		return ranges
	}

	out := make([]Range, len(ranges))
	copy(out, ranges)

	for i := range out {
		if out[i].Parity == roster.ParityAll {
			continue
		}
		if countOverlapping(out, out[i].Low, out[i].High) == 1 {
			out[i].Parity = roster.ParityAll
		}
	}

	if len(out) == 1 {
		out[0].OpenLow = true
		out[0].OpenHigh = true
		out[0].Parity = roster.ParityAll
		return out
	}

	if len(out) == 2 && isParityPair(out[0], out[1]) {
		for i := range out {
			out[i].OpenLow = true
			out[i].OpenHigh = true
		}
		return out
	}

	if out[0].Parity == roster.ParityAll {
		out[0].OpenLow = true
	} else if len(out) > 2 && isParityPair(out[0], out[1]) {
		out[0].OpenLow = true
		out[1].OpenLow = true
	}

	last := len(out) - 1
	if out[last].Parity == roster.ParityAll {
		out[last].OpenHigh = true
	} else if len(out) > 2 && isParityPair(out[last-1], out[last]) {
		out[last-1].OpenHigh = true
		out[last].OpenHigh = true
	}

	return out
}

// countOverlapping counts ranges whose span intersects [low, high],
// including the range itself.
func countOverlapping(ranges []Range, low, high int) int {
	n := 0
	for _, r := range ranges {
		if max(low, r.Low) <= min(high, r.High) {
			n++
		}
	}
	return n
}

// isParityPair reports whether a and b are an odd/even pair, in either
// order, with neither covering both sides.
func isParityPair(a, b Range) bool {
	return a.Parity != roster.ParityAll &&
		b.Parity != roster.ParityAll &&
		a.Parity != b.Parity
}
