package roster

import (
	"reflect"
	"testing"

	"github.com/civicworks/precinctbook/pkg/errors"
)

var (
	p11 = Precinct{Ward: 1, Number: 1}
	p12 = Precinct{Ward: 1, Number: 2}
)

func TestGroupByStreet(t *testing.T) {
	records := []AddressRecord{
		{Street: "MAIN ST", Number: 3, Precinct: p11},
		{Street: "MAIN ST", Number: 1, Precinct: p11},
		{Street: "OAK AVE", Number: 2, Precinct: p12},
	}

	groups, err := Group(records, GroupOptions{})
	if err != nil {
		t.Fatalf("Group() error: %v", err)
	}

	if len(groups) != 2 {
		t.Fatalf("Group() returned %d groups, want 2", len(groups))
	}

	// Alphabetical street order, entries sorted by house number.
	if groups[0].Street != "MAIN ST" || groups[1].Street != "OAK AVE" {
		t.Errorf("street order = %q, %q, want MAIN ST, OAK AVE", groups[0].Street, groups[1].Street)
	}
	if got := groups[0].Numbers(); !reflect.DeepEqual(got, []int{1, 3}) {
		t.Errorf("MAIN ST numbers = %v, want [1 3]", got)
	}
}

func TestGroupStreetMatching(t *testing.T) {
	// Case and internal whitespace do not split a street.
	records := []AddressRecord{
		{Street: "MAIN ST", Number: 1, Precinct: p11},
		{Street: "Main  St", Number: 3, Precinct: p11},
		{Street: " main st ", Number: 5, Precinct: p11},
	}

	groups, err := Group(records, GroupOptions{})
	if err != nil {
		t.Fatalf("Group() error: %v", err)
	}

	if len(groups) != 1 {
		t.Fatalf("Group() returned %d groups, want 1", len(groups))
	}
	if groups[0].Street != "MAIN ST" {
		t.Errorf("display street = %q, want first seen form MAIN ST", groups[0].Street)
	}
	if got := groups[0].Numbers(); !reflect.DeepEqual(got, []int{1, 3, 5}) {
		t.Errorf("numbers = %v, want [1 3 5]", got)
	}
}

func TestGroupParity(t *testing.T) {
	cases := []struct {
		name    string
		numbers []int
		want    Parity
	}{
		{"odd only", []int{1, 3, 5}, ParityOdd},
		{"even only", []int{2, 4, 6}, ParityEven},
		{"mixed", []int{1, 2, 3}, ParityAll},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var records []AddressRecord
			for _, n := range tc.numbers {
				records = append(records, AddressRecord{Street: "ELM ST", Number: n, Precinct: p11})
			}

			groups, err := Group(records, GroupOptions{})
			if err != nil {
				t.Fatalf("Group() error: %v", err)
			}
			if groups[0].Parity != tc.want {
				t.Errorf("parity = %s, want %s", groups[0].Parity, tc.want)
			}
		})
	}
}

func TestGroupConflict(t *testing.T) {
	records := []AddressRecord{
		{Street: "MAIN ST", Number: 1, Precinct: p11},
		{Street: "MAIN ST", Number: 1, Precinct: p12},
	}

	_, err := Group(records, GroupOptions{})
	if err == nil {
		t.Fatal("Group() with conflicting precincts succeeded, want error")
	}
	if !errors.Is(err, errors.ErrCodeDataConflict) {
		t.Errorf("error code = %s, want %s", errors.GetCode(err), errors.ErrCodeDataConflict)
	}
}

func TestGroupDuplicateSameAssignment(t *testing.T) {
	// Duplicate rows with the same assignment are routine in published
	// data (one row per unit) and collapse silently.
	records := []AddressRecord{
		{Street: "MAIN ST", Number: 1, Unit: "A", Precinct: p11},
		{Street: "MAIN ST", Number: 1, Unit: "B", Precinct: p11},
	}

	groups, err := Group(records, GroupOptions{})
	if err != nil {
		t.Fatalf("Group() error: %v", err)
	}
	if got := groups[0].Numbers(); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("numbers = %v, want [1]", got)
	}
}

func TestGroupMalformedRecords(t *testing.T) {
	cases := []struct {
		name   string
		record AddressRecord
	}{
		{"empty street", AddressRecord{Street: "  ", Number: 1, Precinct: p11}},
		{"negative number", AddressRecord{Street: "MAIN ST", Number: -5, Precinct: p11}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Group([]AddressRecord{tc.record}, GroupOptions{})
			if err == nil {
				t.Fatal("Group() succeeded, want error")
			}
			if !errors.Is(err, errors.ErrCodeDataMalformed) {
				t.Errorf("error code = %s, want %s", errors.GetCode(err), errors.ErrCodeDataMalformed)
			}
		})
	}
}

func TestGroupCustomOrder(t *testing.T) {
	records := []AddressRecord{
		{Street: "APPLE ST", Number: 1, Precinct: p11},
		{Street: "ZOO RD", Number: 2, Precinct: p11},
	}

	groups, err := Group(records, GroupOptions{
		Less: func(a, b string) bool { return a > b },
	})
	if err != nil {
		t.Fatalf("Group() error: %v", err)
	}
	if groups[0].Street != "ZOO RD" {
		t.Errorf("first street = %q, want ZOO RD under reversed order", groups[0].Street)
	}
}

func TestNormalizeStreet(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"MAIN ST", "MAIN ST"},
		{"  MAIN   ST  ", "MAIN ST"},
		{"Main\tSt", "Main St"},
	}
	for _, tc := range cases {
		if got := NormalizeStreet(tc.in); got != tc.want {
			t.Errorf("NormalizeStreet(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPrecinctString(t *testing.T) {
	if got := p12.String(); got != "1-2" {
		t.Errorf("String() = %q, want 1-2", got)
	}
}

func TestPrecinctLess(t *testing.T) {
	cases := []struct {
		a, b Precinct
		want bool
	}{
		{Precinct{1, 1}, Precinct{1, 2}, true},
		{Precinct{1, 9}, Precinct{2, 1}, true},
		{Precinct{2, 1}, Precinct{1, 9}, false},
		{Precinct{1, 1}, Precinct{1, 1}, false},
	}
	for _, tc := range cases {
		if got := tc.a.Less(tc.b); got != tc.want {
			t.Errorf("%s.Less(%s) = %t, want %t", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestParityOf(t *testing.T) {
	if Of(3) != ParityOdd || Of(4) != ParityEven {
		t.Error("Of() misclassified parity")
	}
}

func TestParityLabel(t *testing.T) {
	cases := map[Parity]string{ParityOdd: "Odd", ParityEven: "Even", ParityAll: ""}
	for p, want := range cases {
		if got := p.Label(); got != want {
			t.Errorf("%s.Label() = %q, want %q", p, got, want)
		}
	}
}
