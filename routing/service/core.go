// Package service exposes the routing engine behind one explicit value. The
// RPC layer and any embedding program talk to Core; nothing here is a
// process-wide singleton.
package service

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/EmediongPeter/tiwi-routing-core/routing/aggregate"
	"github.com/EmediongPeter/tiwi-routing-core/routing/graph"
	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
	"github.com/EmediongPeter/tiwi-routing-core/routing/registry"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "service").Logger()
}

// PairLoader loads pools for one token pair on demand. Implemented by the
// graph builder; split out so tests can stub it.
type PairLoader interface {
	EnsurePair(ctx context.Context, chain models.ChainID, tokenA, tokenB models.TokenRef)
}

// Core is the routing engine's front door.
type Core struct {
	reg    *registry.Registry
	graphs *graph.Set
	loader PairLoader
	agg    *aggregate.Aggregator
}

// New wires a core. The loader may be nil when on-demand loading is off.
func New(reg *registry.Registry, graphs *graph.Set, loader PairLoader, agg *aggregate.Aggregator) *Core {
	return &Core{reg: reg, graphs: graphs, loader: loader, agg: agg}
}

// GetRoute answers one quote request. Unindexed same-chain pairs trigger a
// cold on-demand load before the search runs.
func (c *Core) GetRoute(ctx context.Context, req models.RouteRequest) (*models.RouteResponse, *models.RouteError) {
	if c.loader != nil && req.SameChain() {
		c.loader.EnsurePair(ctx, req.From.Chain, c.reg.NormalizeRef(req.From), c.reg.NormalizeRef(req.To))
	}
	resp, rerr := c.agg.Quote(ctx, req)
	if rerr != nil {
		log.Debug().Str("code", string(rerr.Code)).Str("from", req.From.String()).Str("to", req.To.String()).Msg("Quote failed")
		return nil, rerr
	}
	return resp, nil
}

// MakeTokenRef builds a ref with the address normalization the chain's kind
// requires. Unknown chains keep the address verbatim; validation rejects them
// later with a proper error code.
func (c *Core) MakeTokenRef(chain models.ChainID, address string) models.TokenRef {
	if ch, ok := c.reg.ChainByID(chain); ok {
		return models.NewTokenRef(chain, ch.Kind, address)
	}
	return models.TokenRef{Chain: chain, Address: address}
}

// ChainInfo is the caller-facing chain listing entry.
type ChainInfo struct {
	ID             models.ChainID   `json:"id"`
	Name           string           `json:"name"`
	Kind           models.ChainKind `json:"kind"`
	NativeSymbol   string           `json:"native_symbol"`
	NativeDecimals int              `json:"native_decimals"`
	GraphReady     bool             `json:"graph_ready"`
}

// ListSupportedChains returns all registered chains with their graph state.
func (c *Core) ListSupportedChains() []ChainInfo {
	chains := c.reg.Chains()
	out := make([]ChainInfo, 0, len(chains))
	for _, ch := range chains {
		out = append(out, ChainInfo{
			ID:             ch.ID,
			Name:           ch.Name,
			Kind:           ch.Kind,
			NativeSymbol:   ch.NativeSymbol,
			NativeDecimals: ch.NativeDecimals,
			GraphReady:     c.graphs.Ready(ch.ID),
		})
	}
	return out
}

// Health is the readiness report.
type Health struct {
	ChainsLoaded int                               `json:"chains_loaded"`
	GraphsReady  map[models.ChainID]bool           `json:"graphs_ready"`
	Sources      map[string]aggregate.SourceHealth `json:"sources"`
}

// HealthCheck reports registry, graph, and quote-source state. The process
// is ready when the registry is loaded; individual graphs may still warm up.
func (c *Core) HealthCheck() Health {
	h := Health{
		ChainsLoaded: len(c.reg.Chains()),
		GraphsReady:  make(map[models.ChainID]bool),
		Sources:      c.agg.Stats(),
	}
	for _, ch := range c.reg.Chains() {
		h.GraphsReady[ch.ID] = c.graphs.Ready(ch.ID)
	}
	return h
}

// Ready reports whether the core can serve quotes at all.
func (c *Core) Ready() bool {
	return len(c.reg.Chains()) > 0
}
