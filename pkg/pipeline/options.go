// Package pipeline runs the complete roster-to-book transformation:
// load, group, compact, lay out.
//
// The pipeline is a batch transform with no I/O in its core stages:
// the roster is materialized up front by a source, each polling place
// is processed independently (and in parallel), and the resulting
// books are handed to the renderer. A Runner adds roster caching on
// top, the way a long preprocessing step deserves.
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	opts := pipeline.Options{
//	    Source: &source.CSVSource{PollsPath: polls, AddressesPath: addrs},
//	    Layout: layout.Config{ColumnRows: 30, MaxColumns: 2},
//	}
//	result, err := runner.Execute(ctx, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = render.HTML(os.Stdout, result.Books, render.Options{})
package pipeline

import (
	"io"
	"runtime"
	"time"

	"github.com/charmbracelet/log"

	"github.com/civicworks/precinctbook/pkg/cache"
	"github.com/civicworks/precinctbook/pkg/compact"
	"github.com/civicworks/precinctbook/pkg/errors"
	"github.com/civicworks/precinctbook/pkg/layout"
	"github.com/civicworks/precinctbook/pkg/render"
	"github.com/civicworks/precinctbook/pkg/source"
)

// Default layout bounds. ColumnRows is determined empirically by how
// many rows fit when printing from a browser at 100% scale with no
// headers and footers.
const (
	DefaultColumnRows = 30
	DefaultMaxColumns = 2
)

// Options configures one pipeline run.
type Options struct {
	// Source materializes the roster. Required.
	Source source.Source

	// RosterKey identifies the source data for caching. Zero value
	// disables the roster cache for this run.
	RosterKey cache.RosterKeyOpts

	// Refresh bypasses the roster cache and re-reads the source.
	Refresh bool

	// Compact is the compaction policy.
	Compact compact.Options

	// Layout bounds the printable grid.
	Layout layout.Config

	// SplitTables lays each precinct's ranges out as its own section
	// (one page run per precinct table). Default is the combined
	// per-poll listing with a precinct column.
	SplitTables bool

	// Workers bounds the number of polling places processed
	// concurrently. Zero means one worker per CPU.
	Workers int

	// Logger receives progress and data-quality warnings.
	Logger *log.Logger

	validated bool
}

// ValidateAndSetDefaults checks required fields and applies defaults.
// Idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.Source == nil {
		return errors.New(errors.ErrCodeInvalidSource, "source is required")
	}

	if o.Layout.ColumnRows == 0 {
		o.Layout.ColumnRows = DefaultColumnRows
	}
	if o.Layout.MaxColumns == 0 {
		o.Layout.MaxColumns = DefaultMaxColumns
	}
	if err := o.Layout.Validate(); err != nil {
		return err
	}

	o.Compact.SetDefaults()
	if err := o.Compact.Validate(); err != nil {
		return err
	}

	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	o.validated = true
	return nil
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Polls     int // polling places processed
	Addresses int // roster addresses loaded
	Lines     int // compacted lines across all books
	LoadTime  time.Duration
	BuildTime time.Duration
}

// CacheInfo tracks cache hits.
type CacheInfo struct {
	RosterHit bool // whether the parsed roster came from cache
}

// PollFailure records a polling place whose roster failed validation.
// Other polls proceed independently.
type PollFailure struct {
	Poll string
	Err  error
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// Books holds one printable book per polling place, in stable
	// ward/precinct order.
	Books []render.Book

	// Overflows names the polls whose books exceed the configured
	// grid. The operator should reduce ColumnRows and re-run.
	Overflows []string

	// Failures lists polls rejected for bad data.
	Failures []PollFailure

	// RosterHash is the content hash of the parsed roster.
	RosterHash string

	Stats     Stats
	CacheInfo CacheInfo
}
