package models_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/zeebo/assert"

	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
)

func TestNewTokenRefLowercasesEVM(t *testing.T) {
	ref := models.NewTokenRef(1, models.KindEVM, "0xC02AAA39B223FE8D0A0E5C4F27EAD9083C756CC2")
	assert.Equal(t, "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", ref.Address)

	// Non-EVM addresses are case sensitive and stay verbatim.
	sol := models.NewTokenRef(2, models.KindSolana, "So11111111111111111111111111111111111111112")
	assert.Equal(t, "So11111111111111111111111111111111111111112", sol.Address)
}

func TestMinOutTruncates(t *testing.T) {
	// 1000 at 50 bps: 1000 * 9950 / 10000 = 995
	assert.Equal(t, int64(995), models.MinOut(big.NewInt(1000), 50).Int64())
	// 999 at 50 bps: 999 * 9950 / 10000 = 994.005 -> 994 (truncated, never rounded up)
	assert.Equal(t, int64(994), models.MinOut(big.NewInt(999), 50).Int64())
	// Zero slippage is the identity.
	assert.Equal(t, int64(999), models.MinOut(big.NewInt(999), 0).Int64())
}

func TestSlippageClamp(t *testing.T) {
	fixed := models.FixedSlippage(50)
	got, clamped := fixed.Clamp(400)
	assert.Equal(t, uint32(50), got)
	assert.False(t, clamped)

	auto := models.AutoSlippage(300)
	got, clamped = auto.Clamp(120)
	assert.Equal(t, uint32(120), got)
	assert.False(t, clamped)

	got, clamped = auto.Clamp(900)
	assert.Equal(t, uint32(300), got)
	assert.True(t, clamped)

	// A source that chose nothing gets the cap.
	got, clamped = auto.Clamp(0)
	assert.Equal(t, uint32(300), got)
	assert.False(t, clamped)
}

func tokenRef(chain int64, addr string) models.TokenRef {
	return models.TokenRef{Chain: models.ChainID(chain), Address: addr}
}

func swapStep(chain int64, from, to string, in, out int64) models.RouteStep {
	return models.RouteStep{
		Kind: models.StepSwap,
		Swap: &models.SwapStep{
			Chain:           models.ChainID(chain),
			FromToken:       tokenRef(chain, from),
			ToToken:         tokenRef(chain, to),
			DEX:             "uniswap-v2",
			AmountIn:        big.NewInt(in),
			AmountOutQuoted: big.NewInt(out),
		},
	}
}

func TestRouteValidateChaining(t *testing.T) {
	route := &models.Route{
		ID:              "r1",
		Source:          "pathfinder",
		AmountIn:        big.NewInt(1000),
		AmountOutQuoted: big.NewInt(800),
		AmountOutMin:    big.NewInt(790),
		ExpiresAt:       time.Now().Add(time.Minute),
		Steps: []models.RouteStep{
			swapStep(1, "0xaa", "0xbb", 1000, 900),
			swapStep(1, "0xbb", "0xcc", 900, 800),
		},
	}
	assert.NoError(t, route.Validate())

	// Broken token continuity.
	bad := *route
	bad.Steps = []models.RouteStep{
		swapStep(1, "0xaa", "0xbb", 1000, 900),
		swapStep(1, "0xdd", "0xcc", 900, 800),
	}
	assert.Error(t, bad.Validate())

	// Broken amount threading.
	bad.Steps = []models.RouteStep{
		swapStep(1, "0xaa", "0xbb", 1000, 900),
		swapStep(1, "0xbb", "0xcc", 901, 800),
	}
	assert.Error(t, bad.Validate())

	// Min above quote is always a bug.
	bad = *route
	bad.AmountOutMin = big.NewInt(801)
	assert.Error(t, bad.Validate())

	// No steps.
	bad = *route
	bad.Steps = nil
	assert.Error(t, bad.Validate())
}

func TestAdapterErrorRetryable(t *testing.T) {
	assert.True(t, models.NewAdapterError("lifi", models.AdapterTimeout, "").Retryable)
	assert.True(t, models.NewAdapterError("lifi", models.AdapterRateLimited, "").Retryable)
	assert.False(t, models.NewAdapterError("lifi", models.AdapterNoRoute, "").Retryable)
	assert.False(t, models.NewAdapterError("lifi", models.AdapterInvalid, "").Retryable)
	assert.False(t, models.NewAdapterError("lifi", models.AdapterInternal, "").Retryable)
}
