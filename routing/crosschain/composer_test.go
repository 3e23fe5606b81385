package crosschain_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/EmediongPeter/tiwi-routing-core/routing/crosschain"
	"github.com/EmediongPeter/tiwi-routing-core/routing/graph"
	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
	"github.com/EmediongPeter/tiwi-routing-core/routing/pathfind"
	"github.com/EmediongPeter/tiwi-routing-core/routing/registry"
)

const (
	wethAddr  = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	usdc1Addr = "0xaaa1"
	toka1Addr = "0xbbb1"
	usdc2Addr = "0xaaa2"
	tokb2Addr = "0xbbb2"
	dai1Addr  = "0xddd1"
	dai2Addr  = "0xddd2"

	unit = 1_000_000
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(
		[]registry.Chain{
			{ID: 1, Name: "Ethereum", Kind: models.KindEVM, NativeSymbol: "ETH", NativeDecimals: 6, WrappedNative: wethAddr},
			{ID: 2, Name: "Base", Kind: models.KindEVM, NativeSymbol: "ETH", NativeDecimals: 6},
		},
		[]registry.Token{
			{Ref: models.TokenRef{Chain: 1, Address: wethAddr}, Symbol: "WETH", Decimals: 6, Category: models.CategoryBluechip},
			{Ref: models.TokenRef{Chain: 1, Address: usdc1Addr}, Symbol: "USDC", Decimals: 6, Category: models.CategoryStable},
			{Ref: models.TokenRef{Chain: 1, Address: toka1Addr}, Symbol: "TOKA", Decimals: 6, Category: models.CategoryAlt},
			{Ref: models.TokenRef{Chain: 1, Address: dai1Addr}, Symbol: "DAI", Decimals: 6, Category: models.CategoryStable},
			{Ref: models.TokenRef{Chain: 2, Address: usdc2Addr}, Symbol: "USDC", Decimals: 6, Category: models.CategoryStable},
			{Ref: models.TokenRef{Chain: 2, Address: tokb2Addr}, Symbol: "TOKB", Decimals: 6, Category: models.CategoryAlt},
			{Ref: models.TokenRef{Chain: 2, Address: dai2Addr}, Symbol: "DAI", Decimals: 6, Category: models.CategoryStable},
		},
		[]registry.BridgeToken{
			{
				Symbol:   "USDC",
				Source:   models.TokenRef{Chain: 1, Address: usdc1Addr},
				Dest:     models.TokenRef{Chain: 2, Address: usdc2Addr},
				Priority: 0,
			},
			{
				Symbol:   "DAI",
				Source:   models.TokenRef{Chain: 1, Address: dai1Addr},
				Dest:     models.TokenRef{Chain: 2, Address: dai2Addr},
				Priority: 1,
			},
		})
	assert.NoError(t, err)
	return reg
}

func tref(chain int64, addr string) models.TokenRef {
	return models.TokenRef{Chain: models.ChainID(chain), Address: addr}
}

func pool(id string, chain int64, a, b string, rA, rB int64) graph.PoolEdge {
	return graph.PoolEdge{
		ID:           id,
		Chain:        models.ChainID(chain),
		TokenA:       tref(chain, a),
		TokenB:       tref(chain, b),
		DEX:          "uniswap-v2",
		PairAddress:  "0xpair-" + id,
		Reserve0:     big.NewInt(rA),
		Reserve1:     big.NewInt(rB),
		FeeBps:       30,
		LiquidityUSD: decimal.NewFromInt(1_000_000),
		LastUpdated:  time.Now(),
	}
}

// fakeBridge bridges at a fixed output ratio in basis points.
type fakeBridge struct {
	name     string
	keepBps  int64
	calls    int
	failOnce bool
	failKind models.AdapterErrorKind
}

func (f *fakeBridge) Name() string { return f.name }

func (f *fakeBridge) QuoteBridge(ctx context.Context, from, to models.TokenRef, amount *big.Int, recipient string) (*models.BridgeStep, *models.ExecutionHint, *models.AdapterError) {
	f.calls++
	if f.failOnce && f.calls == 1 {
		return nil, nil, models.NewAdapterError(f.name, f.failKind, "transient")
	}
	out := new(big.Int).Mul(amount, big.NewInt(f.keepBps))
	out.Quo(out, big.NewInt(10000))
	return &models.BridgeStep{
		FromChain:        from.Chain,
		ToChain:          to.Chain,
		FromToken:        from,
		ToToken:          to,
		BridgeID:         f.name,
		AmountIn:         amount,
		AmountOutQuoted:  out,
		FeesUSD:          decimal.NewFromFloat(0.25),
		EstimatedSeconds: 60,
	}, nil, nil
}

func testGraphs(t *testing.T, edges ...graph.PoolEdge) *graph.Set {
	t.Helper()
	set := graph.NewSet()
	for _, e := range edges {
		assert.NoError(t, set.Chain(e.Chain).UpsertEdge(e))
	}
	return set
}

func newComposer(t *testing.T, graphs *graph.Set, bridges ...crosschain.BridgeSource) *crosschain.Composer {
	t.Helper()
	reg := testRegistry(t)
	finder := pathfind.NewFinder(reg, pathfind.Config{})
	return crosschain.New(crosschain.Config{}, reg, graphs, finder, bridges)
}

func crossRequest(from, to models.TokenRef, amount int64, slippageBps uint32) models.RouteRequest {
	return models.RouteRequest{
		From:     from,
		To:       to,
		AmountIn: big.NewInt(amount),
		Slippage: models.FixedSlippage(slippageBps),
	}
}

func TestComposeSwapBridgeSwap(t *testing.T) {
	graphs := testGraphs(t,
		pool("1:uni:tu", 1, toka1Addr, usdc1Addr, 10_000_000*unit, 10_000_000*unit),
		pool("2:uni:ut", 2, usdc2Addr, tokb2Addr, 10_000_000*unit, 10_000_000*unit),
	)
	bridge := &fakeBridge{name: "relay", keepBps: 9990}
	c := newComposer(t, graphs, bridge)

	req := crossRequest(tref(1, toka1Addr), tref(2, tokb2Addr), 1000*unit, 90)
	route, diags := c.Compose(context.Background(), req)
	assert.NotNil(t, route)
	assert.Equal(t, 0, len(diags))
	assert.Equal(t, crosschain.SourceName, route.Source)
	assert.NoError(t, route.Validate())

	// swap, bridge, swap.
	assert.Equal(t, 3, len(route.Steps))
	assert.Equal(t, models.StepSwap, route.Steps[0].Kind)
	assert.Equal(t, models.StepBridge, route.Steps[1].Kind)
	assert.Equal(t, models.StepSwap, route.Steps[2].Kind)
	assert.Equal(t, "relay", route.Steps[1].Bridge.BridgeID)

	// Three legs at 30 bps each: min = quoted * 9970^3 / 10000^3, truncated once.
	num := new(big.Int).Set(route.AmountOutQuoted)
	den := big.NewInt(1)
	for i := 0; i < 3; i++ {
		num.Mul(num, big.NewInt(9970))
		den.Mul(den, big.NewInt(10000))
	}
	want := num.Quo(num, den)
	assert.Equal(t, want.String(), route.AmountOutMin.String())
	assert.Equal(t, uint32(90), route.SlippageBps)
}

func TestComposeBridgeOnlyWhenEndpointsAreBridgeable(t *testing.T) {
	// Both endpoints are the bridge token itself: a single bridge step.
	graphs := testGraphs(t)
	bridge := &fakeBridge{name: "relay", keepBps: 9990}
	c := newComposer(t, graphs, bridge)

	req := crossRequest(tref(1, usdc1Addr), tref(2, usdc2Addr), 1000*unit, 60)
	route, _ := c.Compose(context.Background(), req)
	assert.NotNil(t, route)
	assert.NoError(t, route.Validate())
	assert.Equal(t, 1, len(route.Steps))
	assert.Equal(t, models.StepBridge, route.Steps[0].Kind)

	// One leg at 60/3 = 20 bps.
	want := new(big.Int).Mul(route.AmountOutQuoted, big.NewInt(9980))
	want.Quo(want, big.NewInt(10000))
	assert.Equal(t, want.String(), route.AmountOutMin.String())
}

func TestComposeFallsBackToNextBridgeToken(t *testing.T) {
	// No USDC pool on the destination chain, so the USDC candidate fails and
	// the DAI candidate (priority 1) completes.
	graphs := testGraphs(t,
		pool("1:uni:tu", 1, toka1Addr, usdc1Addr, 10_000_000*unit, 10_000_000*unit),
		pool("1:uni:td", 1, toka1Addr, dai1Addr, 10_000_000*unit, 10_000_000*unit),
		pool("2:uni:dt", 2, dai2Addr, tokb2Addr, 10_000_000*unit, 10_000_000*unit),
	)
	bridge := &fakeBridge{name: "relay", keepBps: 9990}
	c := newComposer(t, graphs, bridge)

	req := crossRequest(tref(1, toka1Addr), tref(2, tokb2Addr), 1000*unit, 90)
	route, diags := c.Compose(context.Background(), req)
	assert.NotNil(t, route)
	// The failed USDC attempt left a diagnostic.
	assert.Equal(t, 1, len(diags))
	assert.Equal(t, models.AdapterNoRoute, diags[0].Kind)
	assert.Equal(t, dai2Addr, route.Steps[1].Bridge.ToToken.Address)
}

func TestComposeWrapsNativeEndpoints(t *testing.T) {
	graphs := testGraphs(t,
		pool("1:uni:wu", 1, wethAddr, usdc1Addr, 10_000_000*unit, 10_000_000*unit),
		pool("2:uni:ut", 2, usdc2Addr, tokb2Addr, 10_000_000*unit, 10_000_000*unit),
	)
	bridge := &fakeBridge{name: "relay", keepBps: 9990}
	c := newComposer(t, graphs, bridge)

	req := crossRequest(tref(1, models.NativeAddress), tref(2, tokb2Addr), 1000*unit, 90)
	route, _ := c.Compose(context.Background(), req)
	assert.NotNil(t, route)
	assert.NoError(t, route.Validate())

	// wrap, swap, bridge, swap.
	assert.Equal(t, 4, len(route.Steps))
	assert.Equal(t, models.StepWrap, route.Steps[0].Kind)
	assert.Equal(t, wethAddr, route.Steps[0].Wrap.Token.Address)
	assert.Equal(t, models.StepSwap, route.Steps[1].Kind)
}

func TestComposeRetriesTransientBridgeFailure(t *testing.T) {
	graphs := testGraphs(t)
	bridge := &fakeBridge{name: "relay", keepBps: 9990, failOnce: true, failKind: models.AdapterRateLimited}
	c := newComposer(t, graphs, bridge)

	req := crossRequest(tref(1, usdc1Addr), tref(2, usdc2Addr), 1000*unit, 60)
	route, _ := c.Compose(context.Background(), req)
	assert.NotNil(t, route)
	assert.Equal(t, 2, bridge.calls)
}

func TestComposeNonRetryableBridgeFailure(t *testing.T) {
	graphs := testGraphs(t)
	bridge := &fakeBridge{name: "relay", keepBps: 9990, failOnce: true, failKind: models.AdapterInvalid}
	c := newComposer(t, graphs, bridge)

	req := crossRequest(tref(1, usdc1Addr), tref(2, usdc2Addr), 1000*unit, 60)
	route, diags := c.Compose(context.Background(), req)
	assert.Nil(t, route)
	assert.Equal(t, 1, bridge.calls)
	assert.True(t, len(diags) >= 1)
}

func TestComposeNoBridgeTokens(t *testing.T) {
	graphs := testGraphs(t)
	c := newComposer(t, graphs, &fakeBridge{name: "relay", keepBps: 9990})

	// Reverse direction has no configured bridge tokens.
	req := crossRequest(tref(2, usdc2Addr), tref(1, usdc1Addr), 1000*unit, 60)
	route, diags := c.Compose(context.Background(), req)
	assert.Nil(t, route)
	assert.Equal(t, 1, len(diags))
	assert.Equal(t, models.AdapterNoRoute, diags[0].Kind)
}
