package graph

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
)

var builderLog zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	builderLog = zerolog.New(out).With().Timestamp().Str("component", "graph-builder").Logger()
}

// Tier is the refresh cadence bucket an edge falls into by liquidity.
type Tier int

const (
	TierHot Tier = iota
	TierWarm
	TierCold
)

// TierConfig carries the liquidity thresholds and refresh cadences.
type TierConfig struct {
	HotMinLiquidityUSD  decimal.Decimal
	WarmMinLiquidityUSD decimal.Decimal
	EvictThresholdUSD   decimal.Decimal

	HotRefreshInterval  time.Duration
	WarmRefreshInterval time.Duration
	ColdTTL             time.Duration
}

// DefaultTierConfig mirrors the documented defaults: hot ≥ $1M every 5
// minutes, warm $100k–$1M every 15 minutes, cold cached 5 minutes, eviction
// below $10k.
func DefaultTierConfig() TierConfig {
	return TierConfig{
		HotMinLiquidityUSD:  decimal.NewFromInt(1_000_000),
		WarmMinLiquidityUSD: decimal.NewFromInt(100_000),
		EvictThresholdUSD:   decimal.NewFromInt(10_000),
		HotRefreshInterval:  5 * time.Minute,
		WarmRefreshInterval: 15 * time.Minute,
		ColdTTL:             5 * time.Minute,
	}
}

// Builder is the single writer for every chain graph. It pulls pools from
// its sources, upserts them edge by edge, demotes edges whose refresh keeps
// failing, and evicts edges that fall below the liquidity floor.
type Builder struct {
	graphs  *Set
	sources []PairSource
	cfg     TierConfig

	mu        sync.Mutex
	failures  map[string]int // edge id -> consecutive refresh failures
	demotions map[string]int // edge id -> tiers dropped (capped at cold)
}

// NewBuilder wires a builder over the graph set and its data sources.
func NewBuilder(graphs *Set, sources []PairSource, cfg TierConfig) *Builder {
	return &Builder{
		graphs:    graphs,
		sources:   sources,
		cfg:       cfg,
		failures:  make(map[string]int),
		demotions: make(map[string]int),
	}
}

// tierOf buckets an edge, taking failure demotions into account.
func (b *Builder) tierOf(e *PoolEdge) Tier {
	t := TierCold
	if e.LiquidityUSD.GreaterThanOrEqual(b.cfg.HotMinLiquidityUSD) {
		t = TierHot
	} else if e.LiquidityUSD.GreaterThanOrEqual(b.cfg.WarmMinLiquidityUSD) {
		t = TierWarm
	}
	b.mu.Lock()
	drop := b.demotions[e.ID]
	b.mu.Unlock()
	t += Tier(drop)
	if t > TierCold {
		t = TierCold
	}
	return t
}

// RefreshChain re-scans one chain from every source and refreshes reserves
// for edges in the given tier. Each edge is upserted atomically; there is no
// all-or-nothing for the chain, and the chain stays queryable throughout.
func (b *Builder) RefreshChain(ctx context.Context, chain models.ChainID, tier Tier) UpdateReport {
	report := UpdateReport{Chain: chain}
	g := b.graphs.Chain(chain)

	minLiquidity := b.cfg.WarmMinLiquidityUSD
	if tier == TierHot {
		minLiquidity = b.cfg.HotMinLiquidityUSD
	}

	for _, src := range b.sources {
		pairs, err := src.FetchPairs(ctx, chain, minLiquidity)
		if err != nil {
			// Source failure skips the update; existing edges stay.
			builderLog.Warn().Err(err).
				Str("source", src.Name()).
				Int64("chain", int64(chain)).
				Msg("Pair fetch failed, keeping existing edges")
			report.Errors = append(report.Errors, err)
			continue
		}
		report.PairsScanned += len(pairs)
		for i := range pairs {
			if b.applyEdge(g, &pairs[i], &report) {
				report.PairsUpdated++
			}
		}
	}

	report.PairsEvicted += b.evictBelowFloor(g)

	builderLog.Info().
		Int64("chain", int64(chain)).
		Int("scanned", report.PairsScanned).
		Int("updated", report.PairsUpdated).
		Int("evicted", report.PairsEvicted).
		Int("errors", len(report.Errors)).
		Msg("Chain refresh complete")
	return report
}

// RefreshReserves re-reads reserves for the chain's edges in one tier.
func (b *Builder) RefreshReserves(ctx context.Context, chain models.ChainID, tier Tier) UpdateReport {
	report := UpdateReport{Chain: chain}
	g := b.graphs.Chain(chain)
	snap := g.Snapshot()

	var ids []string
	for id, e := range snap.edges {
		if b.tierOf(e) == tier {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return report
	}
	report.PairsScanned = len(ids)

	updated := make(map[string]bool, len(ids))
	for _, src := range b.sources {
		readings, err := src.FetchReserves(ctx, ids)
		if err != nil {
			report.Errors = append(report.Errors, err)
			continue
		}
		for id, r := range readings {
			e, ok := snap.Edge(id)
			if !ok || r.Reserve0 == nil || r.Reserve1 == nil || r.Reserve0.Sign() <= 0 || r.Reserve1.Sign() <= 0 {
				continue
			}
			fresh := *e
			fresh.Reserve0 = r.Reserve0
			fresh.Reserve1 = r.Reserve1
			fresh.LastUpdated = r.UpdatedAt
			if err := g.UpsertEdge(fresh); err != nil {
				report.Errors = append(report.Errors, err)
				continue
			}
			updated[id] = true
		}
	}

	for _, id := range ids {
		if updated[id] {
			b.noteSuccess(id)
			report.PairsUpdated++
		} else {
			b.noteFailure(id)
		}
	}
	return report
}

// EnsurePair loads pools for one token pair on demand when the snapshot has
// nothing fresh for it (the cold path during quoting). Existing cold edges
// within the TTL are left alone.
func (b *Builder) EnsurePair(ctx context.Context, chain models.ChainID, tokenA, tokenB models.TokenRef) {
	g := b.graphs.Chain(chain)
	snap := g.Snapshot()

	cutoff := time.Now().Add(-b.cfg.ColdTTL)
	for _, e := range snap.Neighbors(tokenA) {
		if other, ok := e.Other(tokenA); ok && other == tokenB && e.LastUpdated.After(cutoff) {
			return
		}
	}

	for _, src := range b.sources {
		pairs, err := src.FetchPair(ctx, chain, tokenA, tokenB)
		if err != nil {
			builderLog.Debug().Err(err).Str("source", src.Name()).Msg("Cold pair fetch failed")
			continue
		}
		var report UpdateReport
		for i := range pairs {
			b.applyEdge(g, &pairs[i], &report)
		}
		if len(pairs) > 0 {
			return
		}
	}
}

// applyEdge validates and upserts one fetched edge. Edges already below the
// eviction floor are not admitted.
func (b *Builder) applyEdge(g *ChainGraph, e *PoolEdge, report *UpdateReport) bool {
	e.Normalize()
	if err := e.Validate(); err != nil {
		report.Errors = append(report.Errors, err)
		return false
	}
	// Zero liquidity means the source could not price the pool in USD; those
	// are admitted as cold edges rather than treated as dust.
	if e.LiquidityUSD.IsPositive() && e.LiquidityUSD.LessThan(b.cfg.EvictThresholdUSD) {
		return false
	}
	if e.LastUpdated.IsZero() {
		e.LastUpdated = time.Now()
	}
	if err := g.UpsertEdge(*e); err != nil {
		report.Errors = append(report.Errors, err)
		return false
	}
	b.noteSuccess(e.ID)
	return true
}

// evictBelowFloor removes edges whose liquidity fell under the threshold.
func (b *Builder) evictBelowFloor(g *ChainGraph) int {
	snap := g.Snapshot()
	evicted := 0
	for id, e := range snap.edges {
		if e.LiquidityUSD.IsPositive() && e.LiquidityUSD.LessThan(b.cfg.EvictThresholdUSD) {
			g.RemoveEdge(id)
			b.forget(id)
			evicted++
		}
	}
	return evicted
}

func (b *Builder) noteSuccess(id string) {
	b.mu.Lock()
	delete(b.failures, id)
	b.mu.Unlock()
}

// noteFailure counts consecutive refresh failures; three in a row drop the
// edge one tier.
func (b *Builder) noteFailure(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[id]++
	if b.failures[id] >= 3 {
		b.failures[id] = 0
		if b.demotions[id] < int(TierCold) {
			b.demotions[id]++
			builderLog.Debug().Str("edge", id).Int("demotions", b.demotions[id]).Msg("Edge demoted a tier")
		}
	}
}

func (b *Builder) forget(id string) {
	b.mu.Lock()
	delete(b.failures, id)
	delete(b.demotions, id)
	b.mu.Unlock()
}

// Run drives the periodic refresh loops for the given chains until the
// context is cancelled. Hot and warm cadences come from the tier config.
func (b *Builder) Run(ctx context.Context, chains []models.ChainID) {
	hot := time.NewTicker(b.cfg.HotRefreshInterval)
	warm := time.NewTicker(b.cfg.WarmRefreshInterval)
	defer hot.Stop()
	defer warm.Stop()

	// Initial scan so quoting has a graph before the first tick.
	for _, c := range chains {
		b.RefreshChain(ctx, c, TierWarm)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-hot.C:
			for _, c := range chains {
				b.RefreshReserves(ctx, c, TierHot)
			}
		case <-warm.C:
			for _, c := range chains {
				b.RefreshChain(ctx, c, TierWarm)
			}
		}
	}
}
