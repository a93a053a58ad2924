package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/civicworks/precinctbook/pkg/compact"
	"github.com/civicworks/precinctbook/pkg/errors"
	"github.com/civicworks/precinctbook/pkg/fixes"
	"github.com/civicworks/precinctbook/pkg/layout"
	"github.com/civicworks/precinctbook/pkg/pipeline"
	"github.com/civicworks/precinctbook/pkg/source"
)

// inspectCommand creates the inspect command: an interactive browser
// over the built books, for checking range compaction before printing.
func (c *CLI) inspectCommand() *cobra.Command {
	opts := buildOpts{
		pollKey: "location",
	}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Browse the compacted precinct ranges interactively",
		Long: `Inspect builds the books and opens a terminal browser over the
polling places. Select a polling place to see its compacted street
ranges as they will appear in print.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInspect(cmd.Context(), &opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.polls, "polls", "", "polling-place roster CSV (.csv or .csv.bz2)")
	f.StringVar(&opts.addresses, "addresses", "", "address roster CSV (.csv or .csv.bz2)")
	f.StringVar(&opts.mongoURI, "mongo", "", "MongoDB URI to read the roster from instead of CSV")
	f.StringVar(&opts.mongoDB, "mongo-db", "elections", "MongoDB database name")
	f.StringVar(&opts.fixesPath, "fixes", "", "TOML file with manual data corrections")
	f.StringVar(&opts.pollKey, "poll-key", opts.pollKey, "polling-place identity field (location|address)")
	f.IntVar(&opts.columnRows, "column-rows", pipeline.DefaultColumnRows, "rows per printed column")
	f.IntVar(&opts.maxColumns, "max-columns", pipeline.DefaultMaxColumns, "columns per page")
	f.BoolVar(&opts.absorbIsolated, "absorb-isolated", false, "fold isolated deviant addresses into the surrounding range")
	f.BoolVar(&opts.noCache, "no-cache", false, "disable the roster cache")
	f.StringVar(&opts.redisAddr, "redis", "", "Redis address for the roster cache (host:port)")

	return cmd
}

func (c *CLI) runInspect(ctx context.Context, opts *buildOpts) error {
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

	sp := newSpinner(ctx, "building books")
	sp.start()
	result, err := runner.Execute(ctx, pipeline.Options{
		Source:    src,
		RosterKey: rosterKey,
		Compact:   compact.Options{AbsorbIsolated: opts.absorbIsolated},
		Layout: layout.Config{
			ColumnRows: opts.columnRows,
			MaxColumns: opts.maxColumns,
		},
		Logger: logger,
	})
	if err != nil {
		sp.fail("build failed")
		return err
	}
	sp.success(fmt.Sprintf("Built %d polling places", result.Stats.Polls))

	if len(result.Books) == 0 {
		printInfo("No polling places found")
		return nil
	}

	model := newBookBrowserModel(result.Books)
	_, err = tea.NewProgram(model, tea.WithContext(ctx)).Run()
	return err
}
