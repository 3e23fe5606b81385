// Package crosschain composes cross-chain routes out of up to three legs:
// a source-chain swap into a bridgeable token, the bridge transfer, and a
// destination-chain swap into the target token. Bridge tokens are tried in
// the registry's priority order until one full composition succeeds.
package crosschain

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/EmediongPeter/tiwi-routing-core/routing/graph"
	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
	"github.com/EmediongPeter/tiwi-routing-core/routing/pathfind"
	"github.com/EmediongPeter/tiwi-routing-core/routing/registry"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "crosschain").Logger()
}

// SourceName identifies composed routes in quote diagnostics.
const SourceName = "composed"

// BridgeSource quotes one bridge transfer. Implemented by the relay adapter.
type BridgeSource interface {
	Name() string
	QuoteBridge(ctx context.Context, from, to models.TokenRef, amount *big.Int, recipient string) (*models.BridgeStep, *models.ExecutionHint, *models.AdapterError)
}

// Config tunes composition.
type Config struct {
	// LegSlippageDivisor splits the request's total tolerance across legs:
	// each leg gets total/divisor.
	LegSlippageDivisor uint32
	// MaxHopsPerLeg bounds each swap leg's path length.
	MaxHopsPerLeg int
	// QuoteTTL bounds composed quote validity.
	QuoteTTL time.Duration
}

// DefaultConfig returns the standard composition tuning.
func DefaultConfig() Config {
	return Config{
		LegSlippageDivisor: 3,
		MaxHopsPerLeg:      3,
		QuoteTTL:           30 * time.Second,
	}
}

// Composer builds cross-chain routes.
type Composer struct {
	cfg     Config
	reg     *registry.Registry
	graphs  *graph.Set
	finder  *pathfind.Finder
	bridges []BridgeSource
}

// New wires a composer; zero config fields fall back to defaults.
func New(cfg Config, reg *registry.Registry, graphs *graph.Set, finder *pathfind.Finder, bridges []BridgeSource) *Composer {
	def := DefaultConfig()
	if cfg.LegSlippageDivisor == 0 {
		cfg.LegSlippageDivisor = def.LegSlippageDivisor
	}
	if cfg.MaxHopsPerLeg <= 0 {
		cfg.MaxHopsPerLeg = def.MaxHopsPerLeg
	}
	if cfg.QuoteTTL <= 0 {
		cfg.QuoteTTL = def.QuoteTTL
	}
	return &Composer{cfg: cfg, reg: reg, graphs: graphs, finder: finder, bridges: bridges}
}

// Compose tries each configured bridge token in order and returns the first
// full composition, along with diagnostics for every failed attempt.
func (c *Composer) Compose(ctx context.Context, req models.RouteRequest) (*models.Route, []models.AdapterError) {
	var diags []models.AdapterError

	candidates := c.reg.BridgeTokens(req.From.Chain, req.To.Chain)
	if len(candidates) == 0 {
		diags = append(diags, *models.NewAdapterError(SourceName, models.AdapterNoRoute,
			fmt.Sprintf("no bridge tokens configured for %d -> %d", req.From.Chain, req.To.Chain)))
		return nil, diags
	}

	totalSlippage, _ := req.Slippage.Clamp(0)
	perLeg := totalSlippage / c.cfg.LegSlippageDivisor

	for _, bt := range candidates {
		if ctx.Err() != nil {
			diags = append(diags, *models.NewAdapterError(SourceName, models.AdapterTimeout, ctx.Err().Error()))
			break
		}
		route, aerr := c.composeVia(ctx, req, bt, perLeg)
		if aerr != nil {
			diags = append(diags, *aerr)
			continue
		}
		log.Debug().
			Str("bridge_token", bt.Symbol).
			Int("steps", len(route.Steps)).
			Msg("Composed cross-chain route")
		return route, diags
	}
	return nil, diags
}

// composeVia builds one candidate through a specific bridge token. Legs are
// quoted on pre-slippage amounts; the route-level floor compounds the
// per-leg tolerances at the end.
func (c *Composer) composeVia(ctx context.Context, req models.RouteRequest, bt registry.BridgeToken, perLegBps uint32) (*models.Route, *models.AdapterError) {
	var steps []models.RouteStep
	var impacts []float64
	var legSlippages []uint32
	gasUSD := decimal.Zero
	feesUSD := decimal.Zero

	amount := req.AmountIn

	// Source leg: from token into the bridgeable token.
	srcSteps, out, legMeta, aerr := c.swapLeg(ctx, req.From, bt.Source, amount, perLegBps)
	if aerr != nil {
		return nil, aerr
	}
	if len(srcSteps) > 0 {
		steps = append(steps, srcSteps...)
		impacts = append(impacts, legMeta.impacts...)
		legSlippages = append(legSlippages, perLegBps)
		gasUSD = gasUSD.Add(legMeta.gasUSD)
		feesUSD = feesUSD.Add(legMeta.feesUSD)
		amount = out
	}

	// Bridge leg.
	bridgeStep, hint, aerr := c.bridgeLeg(ctx, bt, amount, req.Recipient)
	if aerr != nil {
		return nil, aerr
	}
	steps = append(steps, models.RouteStep{Kind: models.StepBridge, Bridge: bridgeStep, Hint: hint})
	legSlippages = append(legSlippages, perLegBps)
	feesUSD = feesUSD.Add(bridgeStep.FeesUSD)
	amount = bridgeStep.AmountOutQuoted

	// Destination leg: bridged token into the target token.
	dstSteps, out, legMeta, aerr := c.swapLeg(ctx, bt.Dest, req.To, amount, perLegBps)
	if aerr != nil {
		return nil, aerr
	}
	if len(dstSteps) > 0 {
		steps = append(steps, dstSteps...)
		impacts = append(impacts, legMeta.impacts...)
		legSlippages = append(legSlippages, perLegBps)
		gasUSD = gasUSD.Add(legMeta.gasUSD)
		feesUSD = feesUSD.Add(legMeta.feesUSD)
		amount = out
	}

	route := &models.Route{
		ID:              fmt.Sprintf("cc-%s-%d-%d-%d", bt.Symbol, req.From.Chain, req.To.Chain, time.Now().UnixNano()),
		Source:          SourceName,
		Steps:           steps,
		AmountIn:        req.AmountIn,
		AmountOutQuoted: amount,
		AmountOutMin:    compoundedMinOut(amount, legSlippages),
		PriceImpactBps:  pathfind.ImpactBps(impacts),
		GasEstimateUSD:  gasUSD,
		TotalFeesUSD:    feesUSD,
		SlippageBps:     sumBps(legSlippages),
		ExpiresAt:       time.Now().Add(c.cfg.QuoteTTL),
	}
	if err := route.Validate(); err != nil {
		return nil, models.NewAdapterError(SourceName, models.AdapterInternal, err.Error())
	}
	return route, nil
}

type legMetadata struct {
	impacts []float64
	gasUSD  decimal.Decimal
	feesUSD decimal.Decimal
}

// swapLeg pathfinds one same-chain swap leg. Identity legs return no steps.
// Native endpoints go through the chain's wrapped form with explicit
// wrap/unwrap steps, since pools only hold the wrapped token.
func (c *Composer) swapLeg(ctx context.Context, from, to models.TokenRef, amount *big.Int, slippageBps uint32) ([]models.RouteStep, *big.Int, legMetadata, *models.AdapterError) {
	var meta legMetadata
	from = c.reg.NormalizeRef(from)
	to = c.reg.NormalizeRef(to)
	if from == to {
		return nil, amount, meta, nil
	}

	var steps []models.RouteStep

	searchFrom := from
	if from.IsNative() {
		w, ok := c.reg.WrappedNative(from.Chain)
		if !ok {
			return nil, nil, meta, models.NewAdapterError(SourceName, models.AdapterUnsupportedToken,
				fmt.Sprintf("chain %d has no wrapped native for %s", from.Chain, from))
		}
		steps = append(steps, models.RouteStep{
			Kind: models.StepWrap,
			Wrap: &models.WrapStep{Chain: from.Chain, Token: w, Amount: amount},
		})
		searchFrom = w
	}
	searchTo := to
	unwrapAtEnd := false
	if to.IsNative() {
		w, ok := c.reg.WrappedNative(to.Chain)
		if !ok {
			return nil, nil, meta, models.NewAdapterError(SourceName, models.AdapterUnsupportedToken,
				fmt.Sprintf("chain %d has no wrapped native for %s", to.Chain, to))
		}
		searchTo = w
		unwrapAtEnd = true
	}

	out := amount
	if searchFrom != searchTo {
		snap := c.graphs.Chain(from.Chain).Snapshot()
		paths := c.finder.Find(ctx, snap, searchFrom, searchTo, amount, c.cfg.MaxHopsPerLeg)
		if len(paths) == 0 {
			return nil, nil, meta, models.NewAdapterError(SourceName, models.AdapterNoRoute,
				fmt.Sprintf("no path %s -> %s on chain %d", searchFrom, searchTo, from.Chain))
		}
		legRoute := c.finder.ToRoute(&paths[0], snap, slippageBps, c.cfg.QuoteTTL)
		steps = append(steps, legRoute.Steps...)
		meta.impacts = paths[0].Impacts
		meta.gasUSD = legRoute.GasEstimateUSD
		meta.feesUSD = legRoute.TotalFeesUSD
		out = legRoute.AmountOutQuoted
	}

	if unwrapAtEnd {
		steps = append(steps, models.RouteStep{
			Kind: models.StepUnwrap,
			Wrap: &models.WrapStep{Chain: to.Chain, Token: searchTo, Amount: out},
		})
	}
	return steps, out, meta, nil
}

// bridgeLeg tries each bridge source in order, retrying transient failures
// once per source.
func (c *Composer) bridgeLeg(ctx context.Context, bt registry.BridgeToken, amount *big.Int, recipient string) (*models.BridgeStep, *models.ExecutionHint, *models.AdapterError) {
	if len(c.bridges) == 0 {
		return nil, nil, models.NewAdapterError(SourceName, models.AdapterNoRoute, "no bridge sources configured")
	}
	var last *models.AdapterError
	for _, b := range c.bridges {
		step, hint, aerr := b.QuoteBridge(ctx, bt.Source, bt.Dest, amount, recipient)
		if aerr != nil && aerr.Retryable && ctx.Err() == nil {
			step, hint, aerr = b.QuoteBridge(ctx, bt.Source, bt.Dest, amount, recipient)
		}
		if aerr == nil {
			return step, hint, nil
		}
		last = aerr
	}
	return nil, nil, last
}

// compoundedMinOut applies each leg's tolerance multiplicatively to the final
// quoted output, truncating once at the end:
//
//	min = quoted · Π (10000 − s_i) / 10000^n
func compoundedMinOut(quoted *big.Int, legBps []uint32) *big.Int {
	num := new(big.Int).Set(quoted)
	den := big.NewInt(1)
	ten4 := big.NewInt(10000)
	for _, s := range legBps {
		num.Mul(num, big.NewInt(int64(10000-s)))
		den.Mul(den, ten4)
	}
	return num.Quo(num, den)
}

func sumBps(legBps []uint32) uint32 {
	var total uint32
	for _, s := range legBps {
		total += s
	}
	if total > 10000 {
		total = 10000
	}
	return total
}
