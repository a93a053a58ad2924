package pipeline

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/civicworks/precinctbook/pkg/cache"
	"github.com/civicworks/precinctbook/pkg/compact"
	"github.com/civicworks/precinctbook/pkg/layout"
	"github.com/civicworks/precinctbook/pkg/render"
	"github.com/civicworks/precinctbook/pkg/roster"
	"github.com/civicworks/precinctbook/pkg/source"
)

// Runner executes the pipeline with roster caching.
//
// The Runner is stateless except for the cache and logger; multiple
// goroutines can safely share one Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner. A nil cache disables caching; a nil
// keyer selects the default; a nil logger logs to the default logger.
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if c == nil {
		c = cache.NewNullCache()
	}
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Cache: c, Keyer: keyer, Logger: logger}
}

// rosterData is the cached form of a parsed roster.
type rosterData struct {
	Polls     []source.PollAssignment `json:"polls"`
	Addresses []source.Address        `json:"addresses"`
}

// Execute runs the full pipeline for every polling place and returns
// the printable books.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	logger := opts.Logger

	result := &Result{}

	loadStart := time.Now()
	data, hit, err := r.loadRoster(ctx, opts)
	if err != nil {
		return nil, err
	}
	result.CacheInfo.RosterHit = hit
	result.Stats.LoadTime = time.Since(loadStart)
	result.Stats.Addresses = len(data.Addresses)

	if raw, err := json.Marshal(data); err == nil {
		result.RosterHash = cache.Hash(raw)
	}

	logger.Info("loaded roster",
		"addresses", len(data.Addresses),
		"polls", len(data.Polls),
		"cached", hit,
		"duration", result.Stats.LoadTime)

	buildStart := time.Now()
	polls := source.PollSetFrom(data.Polls)
	byPoll := r.mapAddresses(logger, polls, data.Addresses)

	keys := polls.Keys()
	type pollOutput struct {
		book    render.Book
		failure *PollFailure
	}
	outputs := make(map[string]pollOutput, len(keys))

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, opts.Workers)
	)
	for _, key := range keys {
		records := byPoll[key]
		if len(records) == 0 {
			continue
		}
		wg.Add(1)
		go func(key string, records []roster.AddressRecord) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			book, failure := r.buildPoll(polls, key, records, opts)
			mu.Lock()
			outputs[key] = pollOutput{book: book, failure: failure}
			mu.Unlock()
		}(key, records)
	}
	wg.Wait()
	result.Stats.BuildTime = time.Since(buildStart)

	// Keys() order is the stable ward/precinct order; reassemble the
	// parallel outputs in it.
	for _, key := range keys {
		out, ok := outputs[key]
		if !ok {
			continue
		}
		if out.failure != nil {
			result.Failures = append(result.Failures, *out.failure)
			continue
		}
		result.Books = append(result.Books, out.book)
		result.Stats.Polls++
		for _, page := range out.book.Pages {
			result.Stats.Lines += page.Lines()
			if page.Overflow {
				result.Overflows = append(result.Overflows, out.book.Poll)
				break
			}
		}
	}

	logger.Info("built books",
		"polls", result.Stats.Polls,
		"lines", result.Stats.Lines,
		"overflows", len(result.Overflows),
		"failures", len(result.Failures),
		"duration", result.Stats.BuildTime)

	return result, nil
}

// loadRoster materializes the roster, consulting the cache first.
func (r *Runner) loadRoster(ctx context.Context, opts Options) (rosterData, bool, error) {
	useCache := opts.RosterKey != (cache.RosterKeyOpts{})
	var key string
	if useCache {
		key = r.Keyer.RosterKey(opts.RosterKey)
		if !opts.Refresh {
			if raw, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
				var data rosterData
				if err := json.Unmarshal(raw, &data); err == nil {
					return data, true, nil
				}
				// Corrupt entry; fall through to re-read.
			}
		}
	}

	polls, err := opts.Source.Polls(ctx)
	if err != nil {
		return rosterData{}, false, err
	}
	addresses, err := opts.Source.Addresses(ctx)
	if err != nil {
		return rosterData{}, false, err
	}

	data := rosterData{Polls: polls.Export(), Addresses: addresses}
	if useCache {
		if raw, err := json.Marshal(data); err == nil {
			_ = r.Cache.Set(ctx, key, raw, cache.TTLRoster)
		}
	}
	return data, false, nil
}

// mapAddresses groups roster addresses by the polling place serving
// their precinct. Addresses whose precinct has no poll assignment are
// warned about and dropped, as published data does contain them.
//
// The ZIP code is intentionally dropped here: within one polling place
// the street name and number identify an address, and some published
// rows appear under two ZIP codes. Conflicting duplicates surface
// later as grouping errors for that poll.
func (r *Runner) mapAddresses(logger *log.Logger, polls *source.PollSet, addresses []source.Address) map[string][]roster.AddressRecord {
	type pollAddr struct {
		number   int
		street   string
		precinct roster.Precinct
	}
	seen := make(map[string]map[pollAddr]bool)
	byPoll := make(map[string][]roster.AddressRecord)

	for _, a := range addresses {
		key, ok := polls.Lookup(a.Precinct)
		if !ok {
			logger.Warn("no polling place for precinct",
				"precinct", a.Precinct.String(),
				"address", a.Street)
			continue
		}
		pa := pollAddr{number: a.Number, street: a.Street, precinct: a.Precinct}
		if seen[key] == nil {
			seen[key] = make(map[pollAddr]bool)
		}
		if seen[key][pa] {
			continue
		}
		seen[key][pa] = true
		byPoll[key] = append(byPoll[key], roster.AddressRecord{
			Street:   a.Street,
			Number:   a.Number,
			Precinct: a.Precinct,
		})
	}
	return byPoll
}

// buildPoll groups, compacts, and lays out one polling place. A
// failure is confined to that poll; other polls proceed.
func (r *Runner) buildPoll(polls *source.PollSet, key string, records []roster.AddressRecord, opts Options) (render.Book, *PollFailure) {
	name := polls.Name(key)

	groups, err := roster.Group(records, roster.GroupOptions{})
	if err != nil {
		return render.Book{}, &PollFailure{Poll: name, Err: err}
	}

	ranges, err := compact.Poll(groups, opts.Compact)
	if err != nil {
		return render.Book{}, &PollFailure{Poll: name, Err: err}
	}

	precincts := polls.Precincts(key)
	sections := sectionize(name, ranges, precincts, opts.SplitTables)
	pages, err := layout.BuildAll(sections, opts.Layout)
	if err != nil {
		return render.Book{}, &PollFailure{Poll: name, Err: err}
	}

	return render.Book{Poll: name, Pages: pages, Precincts: precincts}, nil
}

// sectionize splits a poll's ranges into layout sections: one combined
// listing by default, or one section per precinct table.
func sectionize(name string, ranges []compact.Range, precincts []roster.Precinct, split bool) []layout.Section {
	if !split {
		return []layout.Section{{Title: name, Ranges: ranges}}
	}

	byPrecinct := make(map[roster.Precinct][]compact.Range)
	for _, rg := range ranges {
		byPrecinct[rg.Precinct] = append(byPrecinct[rg.Precinct], rg)
	}

	var secs []layout.Section
	for _, p := range precincts {
		rs := byPrecinct[p]
		if len(rs) == 0 {
			continue
		}
		sort.SliceStable(rs, func(i, j int) bool {
			if rs[i].Street != rs[j].Street {
				return rs[i].Street < rs[j].Street
			}
			return rs[i].Low < rs[j].Low
		})
		secs = append(secs, layout.Section{
			Title:  name + ", Precinct " + p.String(),
			Ranges: rs,
		})
	}
	return secs
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}
