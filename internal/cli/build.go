package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/civicworks/precinctbook/pkg/cache"
	"github.com/civicworks/precinctbook/pkg/compact"
	"github.com/civicworks/precinctbook/pkg/errors"
	"github.com/civicworks/precinctbook/pkg/fixes"
	"github.com/civicworks/precinctbook/pkg/layout"
	"github.com/civicworks/precinctbook/pkg/pipeline"
	"github.com/civicworks/precinctbook/pkg/render"
	"github.com/civicworks/precinctbook/pkg/source"
)

// buildOpts holds the command-line flags for the build command.
type buildOpts struct {
	polls     string // polls CSV path (.csv or .csv.bz2)
	addresses string // addresses CSV path (.csv or .csv.bz2)
	mongoURI  string // read roster from MongoDB instead of CSV
	mongoDB   string // MongoDB database name
	fixesPath string // TOML fixes overlay
	pollKey   string // "location" or "address"
	output    string // output HTML path (stdout if "-")

	columnRows    int
	maxColumns    int
	pageNumberRow bool
	splitTables   bool

	maxGap         int
	exceptionRun   int
	maxExceptions  int
	absorbIsolated bool

	doubleSided      bool
	copiesPrecinct   int
	copiesPoll       int
	printHomogeneous bool

	refresh   bool
	noCache   bool
	redisAddr string
	workers   int
}

// buildCommand creates the build command, the main entry point of the
// tool: roster in, printable book out.
func (c *CLI) buildCommand() *cobra.Command {
	opts := buildOpts{
		pollKey: "location",
		output:  "precinct_book.html",
	}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the printable precinct book from a voter roster",
		Long: `Build reads the polling-place and address rosters, compacts each
street into precinct ranges, and writes the printable HTML book.

Examples:
  precinctbook build --polls polls.csv --addresses addresses.csv.bz2
  precinctbook build --polls polls.csv --addresses addr.csv --split-tables -o book.html
  precinctbook build --mongo mongodb://localhost:27017 --mongo-db elections`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runBuild(cmd.Context(), &opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.polls, "polls", "", "polling-place roster CSV (.csv or .csv.bz2)")
	f.StringVar(&opts.addresses, "addresses", "", "address roster CSV (.csv or .csv.bz2)")
	f.StringVar(&opts.mongoURI, "mongo", "", "MongoDB URI to read the roster from instead of CSV")
	f.StringVar(&opts.mongoDB, "mongo-db", "elections", "MongoDB database name")
	f.StringVar(&opts.fixesPath, "fixes", "", "TOML file with manual data corrections")
	f.StringVar(&opts.pollKey, "poll-key", opts.pollKey, "polling-place identity field (location|address)")
	f.StringVarP(&opts.output, "output", "o", opts.output, "output HTML file (- for stdout)")

	f.IntVar(&opts.columnRows, "column-rows", pipeline.DefaultColumnRows, "rows per printed column")
	f.IntVar(&opts.maxColumns, "max-columns", pipeline.DefaultMaxColumns, "columns per page")
	f.BoolVar(&opts.pageNumberRow, "page-number-row", false, "reserve a row for page numbers on wide sections")
	f.BoolVar(&opts.splitTables, "split-tables", false, "one table per precinct instead of a combined listing")

	f.IntVar(&opts.maxGap, "max-gap", 0, "largest house-number gap bridged within a range (0 = default)")
	f.IntVar(&opts.exceptionRun, "exception-run", 0, "longest deviant run absorbed as exceptions (0 = default)")
	f.IntVar(&opts.maxExceptions, "max-exceptions", 0, "most exceptions carried by one range (0 = default)")
	f.BoolVar(&opts.absorbIsolated, "absorb-isolated", false, "fold isolated deviant addresses into the surrounding range")

	f.BoolVar(&opts.doubleSided, "double-sided", false, "pad books to even page counts for duplex printing")
	f.IntVar(&opts.copiesPrecinct, "copies-per-precinct", opts.copiesPrecinct, "copies of each book per precinct served (0 means one copy per polling place)")
	f.IntVar(&opts.copiesPoll, "copies-per-poll", 0, "additional copies of each book per polling place")
	f.BoolVar(&opts.printHomogeneous, "print-homogeneous", false, "include single-precinct polling places")

	f.BoolVar(&opts.refresh, "refresh", false, "re-read the roster, bypassing the cache")
	f.BoolVar(&opts.noCache, "no-cache", false, "disable the roster cache")
	f.StringVar(&opts.redisAddr, "redis", "", "Redis address for the roster cache (host:port)")
	f.IntVar(&opts.workers, "workers", 0, "polling places processed concurrently (0 = CPUs)")

	return cmd
}

func (c *CLI) runBuild(ctx context.Context, opts *buildOpts) error {
	logger := loggerFromContext(ctx)

	mode := source.PollKeyMode(opts.pollKey)
	if !mode.Valid() {
		return errors.New(errors.ErrCodeInvalidConfig, "unknown poll key %q (want location or address)", opts.pollKey)
	}

	fx, err := fixes.Load(opts.fixesPath)
	if err != nil {
		return err
	}

	src, rosterKey, cleanup, err := newSource(ctx, opts, mode, fx)
	if err != nil {
		return err
	}
	defer cleanup()

	runner, err := c.newRunner(ctx, opts.noCache, opts.redisAddr)
	if err != nil {
		return err
	}
	defer runner.Close()

	prog := newProgress(logger)
	result, err := runner.Execute(ctx, pipeline.Options{
		Source:    src,
		RosterKey: rosterKey,
		Refresh:   opts.refresh,
		Compact: compact.Options{
			MaxGap:                opts.maxGap,
			MinExceptionRun:       opts.exceptionRun,
			MaxExceptionsPerRange: opts.maxExceptions,
			AbsorbIsolated:        opts.absorbIsolated,
		},
		Layout: layout.Config{
			ColumnRows:    opts.columnRows,
			MaxColumns:    opts.maxColumns,
			PageNumberRow: opts.pageNumberRow,
		},
		SplitTables: opts.splitTables,
		Workers:     opts.workers,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Built %d books with %d listing lines", result.Stats.Polls, result.Stats.Lines))

	for _, f := range result.Failures {
		printWarning("skipped %s: %v", f.Poll, f.Err)
	}
	for _, poll := range result.Overflows {
		printWarning("%s does not fit its page grid; raise --column-rows or --max-columns", poll)
	}

	out, closeOut, err := openOutput(opts.output)
	if err != nil {
		return err
	}
	defer closeOut()

	if err := render.HTML(out, result.Books, render.Options{
		DoubleSided:           opts.doubleSided,
		CopiesPerPrecinct:     opts.copiesPrecinct,
		CopiesPerPollingPlace: opts.copiesPoll,
		PrintHomogeneous:      opts.printHomogeneous,
	}); err != nil {
		return err
	}

	printSuccess("Precinct book written")
	if opts.output != "-" {
		printFile(opts.output)
	}
	printStats(result.Stats.Polls, result.Stats.Lines, result.CacheInfo.RosterHit)
	if opts.output != "-" {
		printNextStep("Check the ranges before printing", "precinctbook inspect")
	}
	return nil
}

// newSource builds the roster source from flags, along with the cache
// key identifying its data and a cleanup function.
func newSource(ctx context.Context, opts *buildOpts, mode source.PollKeyMode, fx *fixes.Fixes) (source.Source, cache.RosterKeyOpts, func(), error) {
	nop := func() {}

	if opts.mongoURI != "" {
		client, err := mongo.Connect(ctx, mongoopts.Client().ApplyURI(opts.mongoURI))
		if err != nil {
			return nil, cache.RosterKeyOpts{}, nop, errors.Wrap(errors.ErrCodeSource, err, "connect to MongoDB")
		}
		src := &source.MongoSource{
			DB:      client.Database(opts.mongoDB),
			PollKey: mode,
			Fixes:   fx,
		}
		cleanup := func() { _ = client.Disconnect(context.Background()) }
		// No stable content identity for a live database; skip the cache.
		return src, cache.RosterKeyOpts{}, cleanup, nil
	}

	if opts.polls == "" || opts.addresses == "" {
		return nil, cache.RosterKeyOpts{}, nop, errors.New(errors.ErrCodeInvalidConfig, "--polls and --addresses are required (or --mongo)")
	}

	src := &source.CSVSource{
		PollsPath:     opts.polls,
		AddressesPath: opts.addresses,
		PollKey:       mode,
		Fixes:         fx,
	}
	key := cache.RosterKeyOpts{
		PollsID:     fileID(opts.polls),
		AddressesID: fileID(opts.addresses),
		FixesHash:   fileHash(opts.fixesPath),
		PollKey:     string(mode),
	}
	return src, key, nop, nil
}

// fileID identifies a source file by path, size, and mtime. Cheap to
// compute on every run; a changed export changes the ID.
func fileID(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return path
	}
	return fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
}

// fileHash returns the content hash of a file, or "" when the path is
// empty or unreadable.
func fileHash(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return cache.Hash(data)
}

// openOutput returns a writer for path, or stdout when path is "-".
func openOutput(path string) (io.Writer, func() error, error) {
	if path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
