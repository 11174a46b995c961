package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/oriys/novacore/canonjson"
	"github.com/oriys/novacore/kv"
	"github.com/oriys/novacore/log"
	"github.com/oriys/novacore/transport"
)

const cachePrefix = "verify:v1:"

// Fetcher is the guarded fetch dependency; transport.Fetcher satisfies
// it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts transport.FetchOptions) (*transport.Response, error)
}

// CacheRecorder observes cache effectiveness; nil disables recording.
type CacheRecorder interface {
	VerifyCache(hit bool)
}

// Config bounds one verification request.
type Config struct {
	// Enabled gates the whole feature; disabled requests return
	// unverifiable immediately.
	Enabled bool
	// MaxSources caps fetches per request (default 3).
	MaxSources int
	// MaxConcurrent caps simultaneous fetches (default 2).
	MaxConcurrent int
	// Budget is the hard per-request deadline (default 15s). Once it
	// expires no new fetch starts and stragglers are discarded.
	Budget time.Duration
	// CacheTTL is the verdict retention (default 24h).
	CacheTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxSources <= 0 {
		c.MaxSources = 3
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 2
	}
	if c.Budget <= 0 {
		c.Budget = 15 * time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 24 * time.Hour
	}
	return c
}

// Executor runs verifications. Construct with NewExecutor.
type Executor struct {
	cfg      Config
	fetcher  Fetcher
	planner  *Planner
	analyzer Analyzer
	store    kv.Store
	clock    clockwork.Clock
	logger   *log.Logger
	rec      CacheRecorder
}

// Options are the injectable collaborators.
type Options struct {
	// Fetcher is required for enabled executors.
	Fetcher Fetcher
	// Planner is required for enabled executors.
	Planner *Planner
	// Analyzer defaults to LexicalAnalyzer.
	Analyzer Analyzer
	// Store backs the verdict cache (required).
	Store kv.Store
	// Clock defaults to the real clock.
	Clock clockwork.Clock
	// Logger defaults to a no-op logger.
	Logger *log.Logger
	// Metrics is optional.
	Metrics CacheRecorder
}

// NewExecutor builds an Executor.
func NewExecutor(cfg Config, opts Options) *Executor {
	analyzer := opts.Analyzer
	if analyzer == nil {
		analyzer = LexicalAnalyzer{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Executor{
		cfg:      cfg.withDefaults(),
		fetcher:  opts.Fetcher,
		planner:  opts.Planner,
		analyzer: analyzer,
		store:    opts.Store,
		clock:    clock,
		logger:   log.OrNop(opts.Logger).Child(log.Context{Component: "verify"}),
		rec:      opts.Metrics,
	}
}

// judged pairs a fetched source with its stance.
type judged struct {
	source Source
	stance Stance
	body   string
}

// Verify evaluates the claim. It never returns an error: fetch failures
// degrade the verdict, an exhausted budget yields unverifiable, and the
// record always carries the claim hash.
func (e *Executor) Verify(ctx context.Context, claim string) Record {
	start := e.clock.Now()
	hash := ClaimHash(claim)

	if !e.cfg.Enabled {
		return Record{
			ClaimHash:   hash,
			Status:      StatusUnverifiable,
			Confidence:  0,
			Sources:     []Source{},
			Explanation: "verification disabled",
			Timing:      Timing{TotalMs: e.clock.Since(start).Milliseconds()},
			CachedAt:    start,
		}
	}

	if cached, ok := e.lookup(ctx, hash); ok {
		if e.rec != nil {
			e.rec.VerifyCache(true)
		}
		return cached
	}
	if e.rec != nil {
		e.rec.VerifyCache(false)
	}

	bctx, cancel := context.WithTimeout(ctx, e.cfg.Budget)
	defer cancel()

	fetchStart := e.clock.Now()
	results := e.fetchStage(bctx, claim, e.planner.TrustedPlan(claim, e.cfg.MaxSources))

	trusted := countStance(results, StanceCorroborates)
	if trusted == 0 && len(results) < e.cfg.MaxSources {
		// Trusted evidence was insufficient; widen to general sources
		// for the remaining slots.
		general := e.fetchStage(bctx, claim, e.planner.GeneralPlan(claim, e.cfg.MaxSources-len(results)))
		results = append(results, general...)
	}
	fetchMs := e.clock.Since(fetchStart).Milliseconds()

	analysisStart := e.clock.Now()
	record := e.compose(hash, results)
	record.Timing = Timing{
		TotalMs:    e.clock.Since(start).Milliseconds(),
		FetchMs:    fetchMs,
		AnalysisMs: e.clock.Since(analysisStart).Milliseconds(),
	}
	record.CachedAt = e.clock.Now()
	record.ExpiresAt = record.CachedAt.Add(e.cfg.CacheTTL)

	e.cache(ctx, hash, record)
	return record
}

// lookup returns an unexpired cached record with its age annotated.
func (e *Executor) lookup(ctx context.Context, hash string) (Record, bool) {
	raw, ok, err := e.store.Get(ctx, cachePrefix+hash)
	if err != nil || !ok {
		return Record{}, false
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Record{}, false
	}
	now := e.clock.Now()
	if !rec.ExpiresAt.After(now) {
		return Record{}, false
	}
	rec.CacheAgeMs = now.Sub(rec.CachedAt).Milliseconds()
	return rec, true
}

func (e *Executor) cache(ctx context.Context, hash string, rec Record) {
	raw, err := canonjson.Marshal(rec)
	if err != nil {
		e.logger.Warn("verification record not cacheable", map[string]any{"claimHash": hash})
		return
	}
	if err := e.store.Set(ctx, cachePrefix+hash, string(raw), e.cfg.CacheTTL); err != nil {
		// Advisory cache; the verdict still returns.
		e.logger.Warn("verification cache write failed", map[string]any{"claimHash": hash})
	}
}

// fetchStage runs one plan tier with bounded concurrency. Fetch errors
// skip the source; the budget context stops new launches.
func (e *Executor) fetchStage(ctx context.Context, claim string, plan []PlannedFetch) []judged {
	var mu sync.Mutex
	var results []judged

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrent)
	for _, pf := range plan {
		if ctx.Err() != nil {
			break // budget exhausted: stop spawning
		}
		g.Go(func() error {
			resp, err := e.fetcher.Fetch(gctx, pf.URL, transport.FetchOptions{})
			if err != nil {
				e.logger.Debug("source fetch failed", map[string]any{
					"domain": pf.Source.Domain, "error": err.Error(),
				})
				return nil
			}
			if ctx.Err() != nil {
				return nil // straggler past the budget: discard
			}
			stance := e.analyzer.Judge(claim, string(resp.Body))
			mu.Lock()
			results = append(results, judged{source: pf.Source, stance: stance, body: string(resp.Body)})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// compose applies the scoring rule. Confidence is
// clamp01(0.3*T + 0.1*G - 0.2*X) for T corroborating trusted sources,
// G corroborating general sources, and X conflicting sources, which
// keeps it monotonic in trusted corroboration.
func (e *Executor) compose(hash string, results []judged) Record {
	var t, g, x int
	sources := make([]Source, 0, len(results))
	evidence := ""
	for _, r := range results {
		sources = append(sources, r.source)
		switch r.stance {
		case StanceCorroborates:
			if r.source.Trusted {
				t++
			} else {
				g++
			}
			if evidence == "" {
				evidence = excerpt(r.body)
			}
		case StanceConflicts:
			x++
		}
	}

	var status Status
	switch {
	case len(results) == 0:
		status = StatusUnverifiable
	case t >= 2 && x == 0:
		status = StatusVerified
	case t >= 1:
		status = StatusLikelyTrue
	case x >= 2 && t == 0 && g == 0:
		status = StatusRefuted
	case x > t+g:
		status = StatusLikelyFalse
	default:
		status = StatusUncertain
	}

	return Record{
		ClaimHash:  hash,
		Status:     status,
		Confidence: clamp01(0.3*float64(t) + 0.1*float64(g) - 0.2*float64(x)),
		Sources:    sources,
		Evidence:   evidence,
		Explanation: fmt.Sprintf("%d trusted and %d general sources corroborate, %d conflict",
			t, g, x),
	}
}

func countStance(results []judged, stance Stance) int {
	n := 0
	for _, r := range results {
		if r.stance == stance {
			n++
		}
	}
	return n
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func excerpt(body string) string {
	const max = 240
	if len(body) <= max {
		return body
	}
	return body[:max]
}
