package source

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/civicworks/precinctbook/pkg/errors"
	"github.com/civicworks/precinctbook/pkg/fixes"
	"github.com/civicworks/precinctbook/pkg/roster"
)

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const pollsCSV = `USER_Ward,USER_Precinct,USER_Location2,USER_Location3,Match_addr
1,1,CITY HALL,1 CITY HALL SQ,1 City Hall Sq Boston MA
1,2,CITY HALL,1 CITY HALL SQ,1 City Hall Sq Boston MA
2,1,EAST BRANCH LIBRARY,276 MERIDIAN ST,276 Meridian St Boston MA
`

func TestCSVPolls(t *testing.T) {
	src := &CSVSource{PollsPath: writeCSV(t, "polls.csv", pollsCSV)}

	set, err := src.Polls(context.Background())
	if err != nil {
		t.Fatalf("Polls() error: %v", err)
	}

	if set.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 polling places", set.Len())
	}

	key, ok := set.Lookup(roster.Precinct{Ward: 1, Number: 1})
	if !ok {
		t.Fatal("Lookup(1-1) missed")
	}
	if want := "CITY HALL (1 CITY HALL SQ)"; key != want {
		t.Errorf("poll key = %q, want %q", key, want)
	}
	if got := set.Name(key); got != "CITY HALL" {
		t.Errorf("Name() = %q, want CITY HALL", got)
	}

	// Both City Hall precincts map to the same key.
	key2, _ := set.Lookup(roster.Precinct{Ward: 1, Number: 2})
	if key2 != key {
		t.Errorf("precincts 1-1 and 1-2 keyed %q and %q, want shared", key, key2)
	}

	got := set.Precincts(key)
	want := []roster.Precinct{{Ward: 1, Number: 1}, {Ward: 1, Number: 2}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Precincts() = %v, want %v", got, want)
	}
}

func TestCSVPollsByteOrderMark(t *testing.T) {
	// Exports saved from spreadsheet software carry a UTF-8 BOM; the
	// first header column must still be recognized.
	src := &CSVSource{PollsPath: writeCSV(t, "polls.csv", "\uFEFF"+pollsCSV)}

	set, err := src.Polls(context.Background())
	if err != nil {
		t.Fatalf("Polls() error: %v", err)
	}
	if set.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 polling places", set.Len())
	}
	if _, ok := set.Lookup(roster.Precinct{Ward: 1, Number: 1}); !ok {
		t.Error("Lookup(1-1) missed with BOM-prefixed header")
	}
}

func TestCSVPollsAddressKey(t *testing.T) {
	src := &CSVSource{
		PollsPath: writeCSV(t, "polls.csv", pollsCSV),
		PollKey:   PollKeyAddress,
	}

	set, err := src.Polls(context.Background())
	if err != nil {
		t.Fatalf("Polls() error: %v", err)
	}

	key, ok := set.Lookup(roster.Precinct{Ward: 2, Number: 1})
	if !ok {
		t.Fatal("Lookup(2-1) missed")
	}
	if want := "276 Meridian St Boston MA"; key != want {
		t.Errorf("poll key = %q, want %q", key, want)
	}
}

func TestCSVPollsLocationFix(t *testing.T) {
	src := &CSVSource{
		PollsPath: writeCSV(t, "polls.csv", pollsCSV),
		Fixes: &fixes.Fixes{
			Locations: []fixes.LocationFix{
				{Ward: 2, Precinct: 1, Value: "EAST BOSTON BRANCH LIBRARY"},
			},
		},
	}

	set, err := src.Polls(context.Background())
	if err != nil {
		t.Fatalf("Polls() error: %v", err)
	}

	key, _ := set.Lookup(roster.Precinct{Ward: 2, Number: 1})
	if got := set.Name(key); got != "EAST BOSTON BRANCH LIBRARY" {
		t.Errorf("Name() = %q, want fixed value", got)
	}
}

func TestCSVPollsMissing(t *testing.T) {
	src := &CSVSource{PollsPath: filepath.Join(t.TempDir(), "nope.csv")}

	_, err := src.Polls(context.Background())
	if err == nil {
		t.Fatal("Polls() on missing file succeeded, want error")
	}
	if !errors.Is(err, errors.ErrCodeFileNotFound) {
		t.Errorf("error code = %s, want %s", errors.GetCode(err), errors.ErrCodeFileNotFound)
	}
}

const addressesHeader = "FULL_ADDRESS,MAILING_NEIGHBORHOOD,WARD,PRECINCT_WARD,IS_RANGE,RANGE_FROM,RANGE_TO,STREET_NUMBER,STREET_PREFIX,STREET_BODY,STREET_SUFFIX_ABBR,STREET_SUFFIX_DIR,ZIP_CODE,SAM_ADDRESS_ID\n"

func TestCSVAddresses(t *testing.T) {
	content := addressesHeader +
		"12 MAIN ST,DORCHESTER,1,101,0,,,12,,MAIN,ST,,02122,1000\n" +
		"1-5 OAK AVE,DORCHESTER,1,102,1,1,5,,,OAK,AVE,,02122,1001\n"

	src := &CSVSource{
		PollsPath:     writeCSV(t, "polls.csv", pollsCSV),
		AddressesPath: writeCSV(t, "addr.csv", content),
	}

	got, err := src.Addresses(context.Background())
	if err != nil {
		t.Fatalf("Addresses() error: %v", err)
	}

	// The range row expands 1, 3, 5 (one side of the street).
	want := []Address{
		{Number: 12, Street: "MAIN ST", Zip: "02122", Precinct: roster.Precinct{Ward: 1, Number: 1}},
		{Number: 1, Street: "OAK AVE", Zip: "02122", Precinct: roster.Precinct{Ward: 1, Number: 2}},
		{Number: 3, Street: "OAK AVE", Zip: "02122", Precinct: roster.Precinct{Ward: 1, Number: 2}},
		{Number: 5, Street: "OAK AVE", Zip: "02122", Precinct: roster.Precinct{Ward: 1, Number: 2}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Addresses() = %+v, want %+v", got, want)
	}
}

func TestCSVAddressesSkipsBadRows(t *testing.T) {
	content := addressesHeader +
		"12 MAIN ST,DORCHESTER,,101,0,,,12,,MAIN,ST,,02122,1000\n" + // no ward
		"14 MAIN ST,DORCHESTER,1,,0,,,14,,MAIN,ST,,02122,1001\n" + // no precinct
		"XX MAIN ST,DORCHESTER,1,101,0,,,XX,,MAIN,ST,,02122,1002\n" + // bad number
		"16 MAIN ST,DORCHESTER,1,101,0,,,16,,MAIN,ST,,02122,1003\n"

	src := &CSVSource{AddressesPath: writeCSV(t, "addr.csv", content)}

	got, err := src.Addresses(context.Background())
	if err != nil {
		t.Fatalf("Addresses() error: %v", err)
	}
	if len(got) != 1 || got[0].Number != 16 {
		t.Errorf("Addresses() = %+v, want only 16 MAIN ST", got)
	}
}

func TestCSVAddressesBadRangeEnd(t *testing.T) {
	// A junk range end degrades the row to a single address.
	content := addressesHeader +
		"1-P OAK AVE,DORCHESTER,1,101,1,1,P,,,OAK,AVE,,02122,1000\n"

	src := &CSVSource{AddressesPath: writeCSV(t, "addr.csv", content)}

	got, err := src.Addresses(context.Background())
	if err != nil {
		t.Fatalf("Addresses() error: %v", err)
	}
	if len(got) != 1 || got[0].Number != 1 {
		t.Errorf("Addresses() = %+v, want single address 1 OAK AVE", got)
	}
}

func TestCSVAddressesNonRangeWins(t *testing.T) {
	// A range row sweeps number 3 into precinct 101, but a dedicated
	// row places it in 102. The dedicated row is authoritative either
	// way the rows are ordered.
	rangeRow := "1-5 OAK AVE,DORCHESTER,1,101,1,1,5,,,OAK,AVE,,02122,1000\n"
	singleRow := "3 OAK AVE,DORCHESTER,1,102,0,,,3,,OAK,AVE,,02122,1001\n"

	for _, content := range []string{
		addressesHeader + rangeRow + singleRow,
		addressesHeader + singleRow + rangeRow,
	} {
		src := &CSVSource{AddressesPath: writeCSV(t, "addr.csv", content)}

		got, err := src.Addresses(context.Background())
		if err != nil {
			t.Fatalf("Addresses() error: %v", err)
		}

		var three *Address
		for i := range got {
			if got[i].Number == 3 {
				three = &got[i]
			}
		}
		if three == nil {
			t.Fatal("address 3 OAK AVE missing")
		}
		if want := (roster.Precinct{Ward: 1, Number: 2}); three.Precinct != want {
			t.Errorf("3 OAK AVE precinct = %s, want %s from the non-range row", three.Precinct, want)
		}
	}
}

func TestCSVAddressesPrecinctRelabel(t *testing.T) {
	content := addressesHeader +
		"12 MAIN ST,DORCHESTER,5,0502A,0,,,12,,MAIN,ST,,02122,1000\n"

	src := &CSVSource{
		AddressesPath: writeCSV(t, "addr.csv", content),
		Fixes: &fixes.Fixes{
			Precincts: []fixes.PrecinctRelabel{{From: "0502A", To: "0502"}},
		},
	}

	got, err := src.Addresses(context.Background())
	if err != nil {
		t.Fatalf("Addresses() error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Addresses() = %+v, want one address", got)
	}
	if want := (roster.Precinct{Ward: 5, Number: 2}); got[0].Precinct != want {
		t.Errorf("precinct = %s, want %s after relabel", got[0].Precinct, want)
	}
}

func TestCSVAddressesAddressFix(t *testing.T) {
	content := addressesHeader +
		"60 CRESCENT CIR,BRIGHTON,22,2206,0,,,60,,CRESCENT,CIR,,02135,1000\n"

	src := &CSVSource{
		AddressesPath: writeCSV(t, "addr.csv", content),
		Fixes: &fixes.Fixes{
			Addresses: []fixes.AddressFix{
				{Number: 60, Street: "CRESCENT CIR", Zip: "02135", Ward: 22, Precinct: 7},
			},
		},
	}

	got, err := src.Addresses(context.Background())
	if err != nil {
		t.Fatalf("Addresses() error: %v", err)
	}
	if want := (roster.Precinct{Ward: 22, Number: 7}); got[0].Precinct != want {
		t.Errorf("precinct = %s, want %s from the address fix", got[0].Precinct, want)
	}
}

func TestLeadingNumber(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"12", 12, false},
		{"12A", 12, false},
		{"12-14", 12, false},
		{"P", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := leadingNumber(tc.in)
		if tc.wantErr != (err != nil) {
			t.Errorf("leadingNumber(%q) error = %v, wantErr %t", tc.in, err, tc.wantErr)
			continue
		}
		if !tc.wantErr && got != tc.want {
			t.Errorf("leadingNumber(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestJoinStreet(t *testing.T) {
	if got := joinStreet("", "MAIN", "ST", ""); got != "MAIN ST" {
		t.Errorf("joinStreet() = %q, want MAIN ST", got)
	}
	if got := joinStreet("E", "BROADWAY", "", ""); got != "E BROADWAY" {
		t.Errorf("joinStreet() = %q, want E BROADWAY", got)
	}
}

func TestPollSetKeysOrdering(t *testing.T) {
	set := NewPollSet()
	set.Add(roster.Precinct{Ward: 2, Number: 1}, "LIBRARY", "LIBRARY")
	set.Add(roster.Precinct{Ward: 1, Number: 1}, "HALL", "HALL")
	set.Add(roster.Precinct{Ward: 1, Number: 2}, "HALL", "HALL")

	got := set.Keys()
	want := []string{"HALL", "LIBRARY"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v (ordered by precinct sets)", got, want)
	}
}

func TestExportRoundTrip(t *testing.T) {
	set := NewPollSet()
	set.Add(roster.Precinct{Ward: 1, Number: 1}, "HALL", "CITY HALL")
	set.Add(roster.Precinct{Ward: 2, Number: 3}, "LIBRARY", "EAST LIBRARY")

	restored := PollSetFrom(set.Export())

	if restored.Len() != set.Len() {
		t.Fatalf("restored Len() = %d, want %d", restored.Len(), set.Len())
	}
	for _, p := range []roster.Precinct{{Ward: 1, Number: 1}, {Ward: 2, Number: 3}} {
		wantKey, _ := set.Lookup(p)
		gotKey, ok := restored.Lookup(p)
		if !ok || gotKey != wantKey {
			t.Errorf("restored Lookup(%s) = %q, %t, want %q", p, gotKey, ok, wantKey)
		}
		if restored.Name(gotKey) != set.Name(wantKey) {
			t.Errorf("restored Name mismatch for %s", p)
		}
	}
}
