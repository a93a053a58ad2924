package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/civicworks/precinctbook/pkg/cache"
	"github.com/civicworks/precinctbook/pkg/compact"
	"github.com/civicworks/precinctbook/pkg/errors"
	"github.com/civicworks/precinctbook/pkg/fixes"
	"github.com/civicworks/precinctbook/pkg/layout"
	"github.com/civicworks/precinctbook/pkg/pipeline"
	"github.com/civicworks/precinctbook/pkg/render"
	"github.com/civicworks/precinctbook/pkg/source"
)

// serveOpts holds the command-line flags for the serve command.
type serveOpts struct {
	buildOpts
	addr string
}

// serveCommand creates the serve command: an HTTP server that builds
// the book on demand, for election-office staff who preview the
// output in a browser instead of printing files locally.
func (c *CLI) serveCommand() *cobra.Command {
	opts := serveOpts{
		buildOpts: buildOpts{pollKey: "location"},
		addr:      ":8080",
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the precinct book over HTTP",
		Long: `Serve builds the precinct book from the configured roster and serves
it over HTTP. The roster is read once at startup and on explicit refresh.

Endpoints:
  GET /book              full printable document
  GET /book?refresh=1    rebuild from the roster, then serve
  GET /polls             JSON summary of polling places
  GET /polls/{index}     single polling place as HTML
  GET /healthz           liveness check`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context(), &opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", opts.addr, "listen address")
	f.StringVar(&opts.polls, "polls", "", "polling-place roster CSV (.csv or .csv.bz2)")
	f.StringVar(&opts.addresses, "addresses", "", "address roster CSV (.csv or .csv.bz2)")
	f.StringVar(&opts.mongoURI, "mongo", "", "MongoDB URI to read the roster from instead of CSV")
	f.StringVar(&opts.mongoDB, "mongo-db", "elections", "MongoDB database name")
	f.StringVar(&opts.fixesPath, "fixes", "", "TOML file with manual data corrections")
	f.StringVar(&opts.pollKey, "poll-key", opts.pollKey, "polling-place identity field (location|address)")
	f.IntVar(&opts.columnRows, "column-rows", pipeline.DefaultColumnRows, "rows per printed column")
	f.IntVar(&opts.maxColumns, "max-columns", pipeline.DefaultMaxColumns, "columns per page")
	f.BoolVar(&opts.splitTables, "split-tables", false, "one table per precinct instead of a combined listing")
	f.BoolVar(&opts.printHomogeneous, "print-homogeneous", false, "include single-precinct polling places")
	f.BoolVar(&opts.noCache, "no-cache", false, "disable the roster cache")
	f.StringVar(&opts.redisAddr, "redis", "", "Redis address for the roster cache (host:port)")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, opts *serveOpts) error {
	logger := loggerFromContext(ctx)

	runner, err := c.newRunner(ctx, opts.noCache, opts.redisAddr)
	if err != nil {
		return err
	}
	defer runner.Close()

	srv := &bookServer{
		runner: runner,
		keyer:  cache.NewScopedKeyer(runner.Keyer, "serve:"),
		opts:   opts,
		logger: logger,
	}
	if _, err := srv.result(ctx, false); err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(requestID(logger))
	r.Get("/healthz", srv.handleHealth)
	r.Get("/book", srv.handleBook)
	r.Get("/polls", srv.handlePolls)
	r.Get("/polls/{index}", srv.handlePoll)

	httpSrv := &http.Server{
		Addr:              opts.addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- httpSrv.ListenAndServe() }()
	logger.Info("serving precinct book", "addr", opts.addr)

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutCtx)
		return ctx.Err()
	case err := <-errc:
		return err
	}
}

// requestID tags each request with a fresh UUID and logs it at debug
// level, so book rebuilds can be traced back to the triggering request.
func requestID(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := uuid.NewString()
			w.Header().Set("X-Request-ID", id)
			logger.Debug("request", "id", id, "method", r.Method, "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}

// bookServer holds the pipeline state behind the HTTP handlers. The
// built result is cached in memory; refresh rebuilds it.
type bookServer struct {
	runner *pipeline.Runner
	keyer  cache.Keyer
	opts   *serveOpts
	logger *log.Logger

	mu     sync.RWMutex
	cached *pipeline.Result
}

// rendered returns the HTML for books from the shared cache, rendering
// and storing it on a miss. The key carries the roster hash, so a
// refreshed roster never serves a stale document.
func (s *bookServer) rendered(ctx context.Context, key string, books []render.Book, opts render.Options) ([]byte, error) {
	if data, ok, err := s.runner.Cache.Get(ctx, key); err == nil && ok {
		return data, nil
	}

	var buf bytes.Buffer
	if err := render.HTML(&buf, books, opts); err != nil {
		return nil, err
	}
	_ = s.runner.Cache.Set(ctx, key, buf.Bytes(), cache.TTLBook)
	return buf.Bytes(), nil
}

// result returns the cached pipeline result, rebuilding when asked or
// when nothing has been built yet.
func (s *bookServer) result(ctx context.Context, refresh bool) (*pipeline.Result, error) {
	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()
	if cached != nil && !refresh {
		return cached, nil
	}

	opts := s.opts
	mode := source.PollKeyMode(opts.pollKey)
	if !mode.Valid() {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown poll key %q (want location or address)", opts.pollKey)
	}
	fx, err := fixes.Load(opts.fixesPath)
	if err != nil {
		return nil, err
	}
	src, rosterKey, cleanup, err := newSource(ctx, &opts.buildOpts, mode, fx)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	result, err := s.runner.Execute(ctx, pipeline.Options{
		Source:    src,
		RosterKey: rosterKey,
		Refresh:   refresh,
		Compact:   compact.Options{},
		Layout: layout.Config{
			ColumnRows: opts.columnRows,
			MaxColumns: opts.maxColumns,
		},
		SplitTables: opts.splitTables,
		Logger:      s.logger,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cached = result
	s.mu.Unlock()
	return result, nil
}

func (s *bookServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *bookServer) handleBook(w http.ResponseWriter, r *http.Request) {
	refresh := r.URL.Query().Get("refresh") != ""
	result, err := s.result(r.Context(), refresh)
	if err != nil {
		s.fail(w, err)
		return
	}

	label := "_all"
	if s.opts.printHomogeneous {
		label = "_all+homogeneous"
	}
	data, err := s.rendered(r.Context(), s.keyer.BookKey(result.RosterHash, label), result.Books, render.Options{
		PrintHomogeneous: s.opts.printHomogeneous,
	})
	if err != nil {
		s.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(data); err != nil {
		s.logger.Error("write book", "err", err)
	}
}

// pollSummary is the JSON shape of one polling place in /polls.
type pollSummary struct {
	Index     int      `json:"index"`
	Name      string   `json:"name"`
	Precincts []string `json:"precincts"`
	Pages     int      `json:"pages"`
	Overflow  bool     `json:"overflow"`
}

func (s *bookServer) handlePolls(w http.ResponseWriter, r *http.Request) {
	result, err := s.result(r.Context(), false)
	if err != nil {
		s.fail(w, err)
		return
	}

	summaries := make([]pollSummary, 0, len(result.Books))
	for i, book := range result.Books {
		sum := pollSummary{Index: i, Name: book.Poll, Pages: len(book.Pages)}
		for _, p := range book.Precincts {
			sum.Precincts = append(sum.Precincts, p.String())
		}
		for _, page := range book.Pages {
			if page.Overflow {
				sum.Overflow = true
				break
			}
		}
		summaries = append(summaries, sum)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summaries); err != nil {
		s.logger.Error("write polls", "err", err)
	}
}

func (s *bookServer) handlePoll(w http.ResponseWriter, r *http.Request) {
	result, err := s.result(r.Context(), false)
	if err != nil {
		s.fail(w, err)
		return
	}

	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || idx < 0 || idx >= len(result.Books) {
		http.Error(w, "unknown polling place", http.StatusNotFound)
		return
	}

	data, err := s.rendered(r.Context(), s.keyer.BookKey(result.RosterHash, result.Books[idx].Poll), result.Books[idx:idx+1], render.Options{
		PrintHomogeneous: true,
	})
	if err != nil {
		s.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(data); err != nil {
		s.logger.Error("write poll", "err", err)
	}
}

func (s *bookServer) fail(w http.ResponseWriter, err error) {
	s.logger.Error("build failed", "err", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
