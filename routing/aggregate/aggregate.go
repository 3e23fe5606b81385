// Package aggregate fans a quote request out to every eligible source, waits
// out the deadline, and returns ranked route candidates. Sources are the
// internal pathfinder, the external router adapters, and the cross-chain
// composer; a failing source becomes a diagnostics entry, never a request
// failure, as long as some other source delivers.
package aggregate

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/EmediongPeter/tiwi-routing-core/routing/adapters"
	"github.com/EmediongPeter/tiwi-routing-core/routing/graph"
	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
	"github.com/EmediongPeter/tiwi-routing-core/routing/pathfind"
	"github.com/EmediongPeter/tiwi-routing-core/routing/registry"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "aggregator").Logger()
}

// Config tunes aggregation.
type Config struct {
	// MaxCandidates caps the routes returned (best + alternatives).
	MaxCandidates int
	// MaxFanoutDeadline caps the per-request deadline however large the
	// caller's budget is.
	MaxFanoutDeadline time.Duration
	// MinDeadline rejects requests whose budget is too small to be useful.
	MinDeadline time.Duration
	// DefaultDeadline applies when the request carries none.
	DefaultDeadline time.Duration
	// ScoreDropFraction drops candidates scoring more than this fraction
	// below the best.
	ScoreDropFraction float64
	// TieFraction treats scores within this relative distance as tied.
	TieFraction float64
	// QuoteTTL caps how long returned quotes are advertised as valid.
	QuoteTTL time.Duration
	// DefaultSlippageBps is the fixed tolerance applied when a request
	// carries no slippage policy at all.
	DefaultSlippageBps uint32
	// PerSourceConcurrency bounds in-flight calls per source process-wide.
	PerSourceConcurrency int64
}

// DefaultConfig returns the standard aggregation tuning.
func DefaultConfig() Config {
	return Config{
		MaxCandidates:        3,
		MaxFanoutDeadline:    5 * time.Second,
		MinDeadline:          100 * time.Millisecond,
		DefaultDeadline:      3 * time.Second,
		ScoreDropFraction:    0.05,
		TieFraction:          0.001,
		QuoteTTL:             45 * time.Second,
		DefaultSlippageBps:   50,
		PerSourceConcurrency: 32,
	}
}

// Composer is the cross-chain route builder, injected to keep the packages
// decoupled. Compose returns a route or the per-attempt diagnostics.
type Composer interface {
	Compose(ctx context.Context, req models.RouteRequest) (*models.Route, []models.AdapterError)
}

// Aggregator answers quote requests.
type Aggregator struct {
	cfg      Config
	reg      *registry.Registry
	graphs   *graph.Set
	finder   *pathfind.Finder
	adapters []adapters.Adapter
	composer Composer

	semMu sync.Mutex
	sems  map[string]*semaphore.Weighted

	stats *sourceStats
}

// New wires the aggregator. The composer may be nil when cross-chain routing
// is disabled.
func New(cfg Config, reg *registry.Registry, graphs *graph.Set, finder *pathfind.Finder, adps []adapters.Adapter, composer Composer) *Aggregator {
	def := DefaultConfig()
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = def.MaxCandidates
	}
	if cfg.MaxFanoutDeadline <= 0 {
		cfg.MaxFanoutDeadline = def.MaxFanoutDeadline
	}
	if cfg.MinDeadline <= 0 {
		cfg.MinDeadline = def.MinDeadline
	}
	if cfg.DefaultDeadline <= 0 {
		cfg.DefaultDeadline = def.DefaultDeadline
	}
	if cfg.ScoreDropFraction <= 0 {
		cfg.ScoreDropFraction = def.ScoreDropFraction
	}
	if cfg.TieFraction <= 0 {
		cfg.TieFraction = def.TieFraction
	}
	if cfg.QuoteTTL <= 0 || cfg.QuoteTTL > def.QuoteTTL {
		cfg.QuoteTTL = def.QuoteTTL
	}
	if cfg.DefaultSlippageBps == 0 {
		cfg.DefaultSlippageBps = def.DefaultSlippageBps
	}
	if cfg.PerSourceConcurrency <= 0 {
		cfg.PerSourceConcurrency = def.PerSourceConcurrency
	}
	return &Aggregator{
		cfg:      cfg,
		reg:      reg,
		graphs:   graphs,
		finder:   finder,
		adapters: adps,
		composer: composer,
		sems:     make(map[string]*semaphore.Weighted),
		stats:    newSourceStats(),
	}
}

// Stats exposes per-source health counters for the health endpoint.
func (a *Aggregator) Stats() map[string]SourceHealth { return a.stats.snapshot() }

// Quote validates the request, fans out, and ranks the results.
func (a *Aggregator) Quote(ctx context.Context, req models.RouteRequest) (*models.RouteResponse, *models.RouteError) {
	if rerr := a.validate(&req); rerr != nil {
		return nil, rerr
	}

	deadline := req.Deadline
	if deadline <= 0 {
		deadline = a.cfg.DefaultDeadline
	}
	if deadline > a.cfg.MaxFanoutDeadline {
		deadline = a.cfg.MaxFanoutDeadline
	}
	fanCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	started := time.Now()
	routes, diags, firstAt := a.fanOut(fanCtx, req)
	elapsed := time.Since(started)

	if len(routes) == 0 {
		if fanCtx.Err() == context.DeadlineExceeded {
			return nil, models.Timeout(elapsed.Milliseconds(), diags)
		}
		return nil, models.NoRoute(diags)
	}

	ranked := a.rank(req, routes, firstAt)
	best, alts := ranked[0], ranked[1:]
	log.Debug().
		Str("best", best.Source).
		Int("candidates", len(ranked)).
		Int("failures", len(diags)).
		Dur("elapsed", elapsed).
		Msg("Quote aggregated")
	return &models.RouteResponse{Best: best, Alternatives: alts, Diagnostics: diags}, nil
}

// validate applies the request-surface invariants.
func (a *Aggregator) validate(req *models.RouteRequest) *models.RouteError {
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return models.InvalidRequest("amount_in", "must be a positive integer")
	}
	if req.Deadline != 0 && req.Deadline < a.cfg.MinDeadline {
		return models.InvalidRequest("deadline",
			fmt.Sprintf("must be at least %s", a.cfg.MinDeadline))
	}
	if _, ok := a.reg.ChainByID(req.From.Chain); !ok {
		return models.UnsupportedChain(req.From.Chain)
	}
	if _, ok := a.reg.ChainByID(req.To.Chain); !ok {
		return models.UnsupportedChain(req.To.Chain)
	}
	req.From = a.reg.NormalizeRef(req.From)
	req.To = a.reg.NormalizeRef(req.To)
	if _, ok := a.reg.KnownToken(req.From); !ok {
		return models.UnsupportedToken(req.From)
	}
	if _, ok := a.reg.KnownToken(req.To); !ok {
		return models.UnsupportedToken(req.To)
	}
	if req.From == req.To {
		return models.InvalidRequest("to", "source and destination token are identical")
	}
	if req.Recipient != "" {
		if err := a.reg.ValidateRecipient(req.To.Chain, req.Recipient); err != nil {
			return models.InvalidRequest("recipient", err.Error())
		}
	}
	// An empty policy means the caller left slippage to us: fixed tolerance
	// at the configured default.
	if req.Slippage.Mode == "" {
		bps := req.Slippage.Bps
		if bps == 0 {
			bps = a.cfg.DefaultSlippageBps
		}
		req.Slippage = models.FixedSlippage(bps)
	}
	switch req.Slippage.Mode {
	case models.SlippageFixed:
		if req.Slippage.Bps > 10000 {
			return models.InvalidRequest("slippage", "fixed tolerance above 10000 bps")
		}
	case models.SlippageAuto:
		if req.Slippage.MaxBps == 0 || req.Slippage.MaxBps > 10000 {
			return models.InvalidRequest("slippage", "auto cap must be in (0, 10000] bps")
		}
	default:
		return models.InvalidRequest("slippage", fmt.Sprintf("unknown mode %q", req.Slippage.Mode))
	}
	return nil
}

// fanOut queries every eligible source in parallel. Each source failure is
// recorded and isolated; one panic or hang never takes down its siblings.
// firstAt is when the first usable route landed; zero when none did.
func (a *Aggregator) fanOut(ctx context.Context, req models.RouteRequest) ([]*models.Route, []models.AdapterError, time.Time) {
	var mu sync.Mutex
	var routes []*models.Route
	var diags []models.AdapterError
	var firstAt time.Time

	collect := func(r *models.Route, aerr *models.AdapterError) {
		mu.Lock()
		defer mu.Unlock()
		if r != nil {
			if firstAt.IsZero() {
				firstAt = time.Now()
			}
			routes = append(routes, r)
		}
		if aerr != nil {
			diags = append(diags, *aerr)
		}
	}

	// A bare group: every source returns nil so one failure never cancels
	// its siblings. Deadlines arrive through ctx.
	var g errgroup.Group

	if req.SameChain() {
		g.Go(func() error {
			collect(a.pathfinderQuote(ctx, req))
			return nil
		})
	} else if a.composer != nil {
		g.Go(func() error {
			r, attempts := a.composer.Compose(ctx, req)
			mu.Lock()
			diags = append(diags, attempts...)
			if r != nil {
				if firstAt.IsZero() {
					firstAt = time.Now()
				}
				routes = append(routes, r)
			}
			mu.Unlock()
			return nil
		})
	}

	for _, ad := range a.adapters {
		if !ad.Supports(req) {
			continue
		}
		if !req.SameChain() && !ad.Capabilities().CrossChain {
			continue
		}
		ad := ad
		g.Go(func() error {
			collect(a.adapterQuote(ctx, ad, req))
			return nil
		})
	}

	_ = g.Wait()
	return routes, diags, firstAt
}

// adapterQuote calls one adapter under its concurrency cap, retrying once on
// retryable failures.
func (a *Aggregator) adapterQuote(ctx context.Context, ad adapters.Adapter, req models.RouteRequest) (*models.Route, *models.AdapterError) {
	sem := a.semFor(ad.Name())
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, models.NewAdapterError(ad.Name(), models.AdapterTimeout, "concurrency cap wait: "+err.Error())
	}
	defer sem.Release(1)

	started := time.Now()
	route, aerr := a.quoteWithRecover(ctx, ad, req)
	if aerr != nil && aerr.Retryable && ctx.Err() == nil {
		route, aerr = a.quoteWithRecover(ctx, ad, req)
	}
	a.stats.record(ad.Name(), time.Since(started), aerr)
	return route, aerr
}

// quoteWithRecover isolates adapter panics into internal adapter errors.
func (a *Aggregator) quoteWithRecover(ctx context.Context, ad adapters.Adapter, req models.RouteRequest) (route *models.Route, aerr *models.AdapterError) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("adapter", ad.Name()).Any("panic", r).Msg("Adapter panicked")
			route = nil
			aerr = models.NewAdapterError(ad.Name(), models.AdapterInternal, fmt.Sprintf("panic: %v", r))
		}
	}()
	return ad.Quote(ctx, req)
}

// pathfinderQuote runs the internal graph search as a quote source.
func (a *Aggregator) pathfinderQuote(ctx context.Context, req models.RouteRequest) (*models.Route, *models.AdapterError) {
	snap := a.graphs.Chain(req.From.Chain).Snapshot()
	if snap.EdgeCount() == 0 {
		return nil, models.NewAdapterError(pathfind.SourceName, models.AdapterNoRoute, "liquidity graph empty")
	}
	paths := a.finder.Find(ctx, snap, req.From, req.To, req.AmountIn, req.MaxHops)
	if len(paths) == 0 {
		return nil, models.NewAdapterError(pathfind.SourceName, models.AdapterNoRoute, "no path in graph")
	}
	slippageBps, _ := req.Slippage.Clamp(0)
	return a.finder.ToRoute(&paths[0], snap, slippageBps, a.cfg.QuoteTTL), nil
}

func (a *Aggregator) semFor(name string) *semaphore.Weighted {
	a.semMu.Lock()
	defer a.semMu.Unlock()
	s, ok := a.sems[name]
	if !ok {
		s = semaphore.NewWeighted(a.cfg.PerSourceConcurrency)
		a.sems[name] = s
	}
	return s
}
