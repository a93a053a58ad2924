// Package fixes loads manual corrections for known-bad rows in
// municipal source data.
//
// Published polling-place and address rosters routinely contain
// inconsistencies: misspelled location names, precinct labels like
// "0502A", addresses assigned to the wrong precinct. Rather than
// hard-coding corrections, they live in a TOML overlay file that the
// sources consult while reading. An absent overlay means no fixes.
//
// Example overlay:
//
//	[[location]]
//	ward = 15
//	precinct = 5
//	value = "UP ACADEMY OF DORCHESTER"
//
//	[[precinct]]
//	from = "0502A"
//	to = "0502"
//
//	[[address]]
//	number = 60
//	street = "N Crescent Cirt"
//	zip = "02135"
//	ward = 22
//	precinct = 7
package fixes

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/civicworks/precinctbook/pkg/errors"
)

// LocationFix overrides a location field for one ward/precinct.
type LocationFix struct {
	Ward     int    `toml:"ward"`
	Precinct int    `toml:"precinct"`
	Value    string `toml:"value"`
}

// PrecinctRelabel rewrites a raw precinct label before parsing.
type PrecinctRelabel struct {
	From string `toml:"from"`
	To   string `toml:"to"`
}

// AddressFix reassigns one address to the given ward/precinct.
type AddressFix struct {
	Number   int    `toml:"number"`
	Street   string `toml:"street"`
	Zip      string `toml:"zip"`
	Ward     int    `toml:"ward"`
	Precinct int    `toml:"precinct"`
}

// Fixes is the full overlay.
type Fixes struct {
	Locations       []LocationFix     `toml:"location"`
	LocationDetails []LocationFix     `toml:"location_detail"`
	MatchAddresses  []LocationFix     `toml:"match_address"`
	Precincts       []PrecinctRelabel `toml:"precinct"`
	Addresses       []AddressFix      `toml:"address"`
}

// Load reads an overlay file. An empty path yields an empty overlay.
func Load(path string) (*Fixes, error) {
	if path == "" {
		return &Fixes{}, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, errors.New(errors.ErrCodeFileNotFound, "fixes file not found: %s", path)
	}

	var f Fixes
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFixes, err, "parse fixes file %s", path)
	}
	return &f, nil
}

// Location returns the corrected location name for a ward/precinct,
// or def when no fix applies.
func (f *Fixes) Location(ward, precinct int, def string) string {
	return lookupLocation(f.Locations, ward, precinct, def)
}

// LocationDetail returns the corrected location detail (typically the
// street address of the polling place), or def.
func (f *Fixes) LocationDetail(ward, precinct int, def string) string {
	return lookupLocation(f.LocationDetails, ward, precinct, def)
}

// MatchAddress returns the corrected match address, or def.
func (f *Fixes) MatchAddress(ward, precinct int, def string) string {
	return lookupLocation(f.MatchAddresses, ward, precinct, def)
}

// RelabelPrecinct rewrites a raw precinct label, or returns it
// unchanged when no relabel applies.
func (f *Fixes) RelabelPrecinct(raw string) string {
	for _, r := range f.Precincts {
		if r.From == raw {
			return r.To
		}
	}
	return raw
}

// Address returns the corrected ward/precinct for an address, with ok
// reporting whether a fix applies.
func (f *Fixes) Address(number int, street, zip string) (ward, precinct int, ok bool) {
	for _, a := range f.Addresses {
		if a.Number == number && a.Street == street && a.Zip == zip {
			return a.Ward, a.Precinct, true
		}
	}
	return 0, 0, false
}

func lookupLocation(fixes []LocationFix, ward, precinct int, def string) string {
	for _, fx := range fixes {
		if fx.Ward == ward && fx.Precinct == precinct {
			return fx.Value
		}
	}
	return def
}
