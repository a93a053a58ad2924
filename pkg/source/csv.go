package source

import (
	"compress/bzip2"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/civicworks/precinctbook/pkg/errors"
	"github.com/civicworks/precinctbook/pkg/fixes"
	"github.com/civicworks/precinctbook/pkg/roster"
)

// Expected column names in the polling-places export.
const (
	colWard         = "USER_Ward"
	colPrecinct     = "USER_Precinct"
	colLocation     = "USER_Location2"
	colLocationAddr = "USER_Location3"
	colMatchAddr    = "Match_addr"
)

// Expected column names in the street-address export.
const (
	colFullAddress  = "FULL_ADDRESS"
	colNeighborhood = "MAILING_NEIGHBORHOOD"
	colAddrWard     = "WARD"
	colPrecinctWard = "PRECINCT_WARD"
	colIsRange      = "IS_RANGE"
	colRangeFrom    = "RANGE_FROM"
	colRangeTo      = "RANGE_TO"
	colStreetNumber = "STREET_NUMBER"
	colStreetPrefix = "STREET_PREFIX"
	colStreetBody   = "STREET_BODY"
	colStreetSuffix = "STREET_SUFFIX_ABBR"
	colStreetSufDir = "STREET_SUFFIX_DIR"
	colZip          = "ZIP_CODE"
	colAddressID    = "SAM_ADDRESS_ID"
)

// CSVSource reads the roster from the published municipal CSV exports.
// Files ending in .bz2 are decompressed transparently.
type CSVSource struct {
	// PollsPath is the polling-places CSV.
	PollsPath string

	// AddressesPath is the street-address CSV, optionally .bz2.
	AddressesPath string

	// PollKey selects the poll identity field; default PollKeyLocation.
	PollKey PollKeyMode

	// Fixes is the manual-correction overlay; nil means no fixes.
	Fixes *fixes.Fixes

	// Logger receives warnings about skipped rows; nil discards them.
	Logger *log.Logger
}

var _ Source = (*CSVSource)(nil)

func (s *CSVSource) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.NewWithOptions(io.Discard, log.Options{})
}

func (s *CSVSource) fixes() *fixes.Fixes {
	if s.Fixes != nil {
		return s.Fixes
	}
	return &fixes.Fixes{}
}

// Polls reads the precinct-to-polling-place assignment.
//
// The export has no unique poll identifier, so one is derived per the
// configured PollKeyMode: either the location name plus its street
// address, or the geocoded match address.
func (s *CSVSource) Polls(ctx context.Context) (*PollSet, error) {
	mode := s.PollKey
	if mode == "" {
		mode = PollKeyLocation
	}
	if !mode.Valid() {
		return nil, errors.New(errors.ErrCodeInvalidSource, "unrecognized poll key mode %q", mode)
	}

	rows, closeFn, err := openCSV(s.PollsPath)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	fx := s.fixes()
	set := NewPollSet()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := rows.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeSource, err, "read %s", s.PollsPath)
		}

		ward, err := strconv.Atoi(row.get(colWard))
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeDataMalformed, err, "bad ward in %s", s.PollsPath)
		}
		precinct, err := strconv.Atoi(row.get(colPrecinct))
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeDataMalformed, err, "bad precinct in %s", s.PollsPath)
		}

		name := fx.Location(ward, precinct, row.get(colLocation))
		var key string
		switch mode {
		case PollKeyAddress:
			key = fx.MatchAddress(ward, precinct, row.get(colMatchAddr))
		case PollKeyLocation:
			detail := fx.LocationDetail(ward, precinct, row.get(colLocationAddr))
			key = fmt.Sprintf("%s (%s)", name, detail)
		}
		if err := errors.ValidatePollKey(key); err != nil {
			return nil, err
		}

		set.Add(roster.Precinct{Ward: ward, Number: precinct}, key, name)
	}
	return set, nil
}

// numberPrefix extracts the leading digits of a street number field.
var numberPrefix = regexp.MustCompile(`^\d+`)

func leadingNumber(s string) (int, error) {
	m := numberPrefix.FindString(s)
	if m == "" {
		return 0, fmt.Errorf("no leading digits in %q", s)
	}
	return strconv.Atoi(m)
}

// Addresses reads every street address and its precinct assignment.
//
// The export encodes the precinct as ward*100+precinct in one field,
// and some rows carry address ranges covering one side of a street
// (step 2). Rows with missing or unparseable ward/precinct values are
// warned about and skipped rather than failing the run, matching the
// quality of the published data. When the same address appears with
// two different precincts, a non-range row wins over a range row
// (a range can start and end in different precincts but carries only
// one); remaining conflicts are warned about and the first assignment
// kept.
func (s *CSVSource) Addresses(ctx context.Context) ([]Address, error) {
	rows, closeFn, err := openCSV(s.AddressesPath)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	type addrKey struct {
		number int
		street string
		zip    string
	}

	logger := s.logger()
	fx := s.fixes()
	assigned := make(map[addrKey]roster.Precinct)
	fromRange := make(map[addrKey]bool)
	rowIDs := make(map[addrKey]string)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := rows.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeSource, err, "read %s", s.AddressesPath)
		}

		where := fmt.Sprintf("%s, %s", row.get(colFullAddress), row.get(colNeighborhood))
		if row.get(colAddrWard) == "" {
			logger.Warn("address has no ward", "address", where)
			continue
		}
		if row.get(colPrecinctWard) == "" {
			logger.Warn("address has no precinct", "address", where)
			continue
		}

		isRange := false
		if v, err := strconv.Atoi(row.get(colIsRange)); err == nil {
			isRange = v != 0
		}

		var rangeStart, rangeEnd int
		if isRange {
			rangeStart, err = leadingNumber(row.get(colRangeFrom))
			if err != nil {
				logger.Warn("address has bad range start", "address", where, "value", row.get(colRangeFrom))
				continue
			}
			rangeEnd, err = leadingNumber(row.get(colRangeTo))
			if err != nil {
				// Some rows end ranges with junk like "1-P"; treat
				// them as single addresses.
				logger.Warn("address has bad range end, ignoring it", "address", where, "value", row.get(colRangeTo))
				rangeEnd = rangeStart
			}
		} else {
			rangeStart, err = leadingNumber(row.get(colStreetNumber))
			if err != nil {
				logger.Warn("address has bad street number", "address", where)
				continue
			}
			rangeEnd = rangeStart
		}

		ward, err := strconv.Atoi(row.get(colAddrWard))
		if err != nil {
			logger.Warn("address has bad ward value", "address", where, "value", row.get(colAddrWard))
			continue
		}
		rawPrecinct := fx.RelabelPrecinct(row.get(colPrecinctWard))
		precinctWard, err := strconv.Atoi(rawPrecinct)
		if err != nil {
			logger.Warn("address has bad precinct value", "address", where, "value", rawPrecinct)
			continue
		}
		precinct := roster.Precinct{Ward: ward, Number: precinctWard - ward*100}

		street := joinStreet(
			row.get(colStreetPrefix),
			row.get(colStreetBody),
			row.get(colStreetSuffix),
			row.get(colStreetSufDir),
		)
		zip := row.get(colZip)

		// Ranges cover one side of the street, hence step 2.
		for number := rangeStart; number <= rangeEnd; number += 2 {
			key := addrKey{number: number, street: street, zip: zip}
			this := precinct
			if w, p, ok := fx.Address(number, street, zip); ok {
				this = roster.Precinct{Ward: w, Number: p}
			}

			if prev, ok := assigned[key]; ok && prev != this {
				if isRange != fromRange[key] {
					if isRange {
						continue // non-range entries win
					}
					delete(fromRange, key)
				} else {
					logger.Warn("precinct mismatch",
						"address", fmt.Sprintf("%d %s %s", number, street, zip),
						"have", prev.String(), "at", rowIDs[key],
						"got", this.String(), "at", row.get(colAddressID))
					continue
				}
			}
			if isRange {
				fromRange[key] = true
			}
			assigned[key] = this
			rowIDs[key] = row.get(colAddressID)
		}
	}

	out := make([]Address, 0, len(assigned))
	for key, p := range assigned {
		out = append(out, Address{Number: key.number, Street: key.street, Zip: key.zip, Precinct: p})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Street != b.Street {
			return a.Street < b.Street
		}
		if a.Number != b.Number {
			return a.Number < b.Number
		}
		return a.Zip < b.Zip
	})
	return out, nil
}

// joinStreet assembles a street name from its parts, skipping empties.
func joinStreet(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

// csvRows iterates a header-keyed CSV with whitespace-stripped values.
type csvRows struct {
	reader *csv.Reader
	index  map[string]int
}

type csvRow struct {
	index  map[string]int
	fields []string
}

// get returns the stripped value of a named column, or "".
func (r csvRow) get(col string) string {
	i, ok := r.index[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func (r *csvRows) next() (csvRow, error) {
	fields, err := r.reader.Read()
	if err != nil {
		return csvRow{}, err
	}
	return csvRow{index: r.index, fields: fields}, nil
}

// openCSV opens a CSV file, transparently decompressing .bz2, and
// reads its header. The returned close function must be called when
// iteration ends.
func openCSV(path string) (*csvRows, func(), error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil, errors.New(errors.ErrCodeFileNotFound, "source file not found: %s", path)
	}
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeSource, err, "open %s", path)
	}

	var r io.Reader = f
	if strings.HasSuffix(path, ".bz2") {
		r = bzip2.NewReader(f)
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		f.Close()
		return nil, nil, errors.Wrap(errors.ErrCodeSource, err, "read header of %s", path)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\uFEFF")
		}
		index[strings.TrimSpace(name)] = i
	}

	return &csvRows{reader: reader, index: index}, func() { f.Close() }, nil
}
