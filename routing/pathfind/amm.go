// Package pathfind searches a chain's liquidity graph for the best swap
// paths. It simulates constant-product pools exactly in integer math and
// ranks candidate paths by a log-space edge cost.
package pathfind

import (
	"math"
	"math/big"

	"github.com/EmediongPeter/tiwi-routing-core/routing/graph"
	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
)

var bpsDenominator = big.NewInt(10000)

// AmountOut runs the constant-product formula with the pool fee taken from
// the input side, truncating division:
//
//	out = (in · (10000 − fee) · rOut) / (rIn · 10000 + in · (10000 − fee))
//
// Returns nil when the inputs cannot produce a positive output.
func AmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps uint32) *big.Int {
	if amountIn == nil || amountIn.Sign() <= 0 ||
		reserveIn == nil || reserveIn.Sign() <= 0 ||
		reserveOut == nil || reserveOut.Sign() <= 0 ||
		feeBps >= 10000 {
		return nil
	}
	inWithFee := new(big.Int).Mul(amountIn, big.NewInt(int64(10000-feeBps)))
	num := new(big.Int).Mul(inWithFee, reserveOut)
	den := new(big.Int).Mul(reserveIn, bpsDenominator)
	den.Add(den, inWithFee)
	out := num.Quo(num, den)
	if out.Sign() <= 0 {
		return nil
	}
	return out
}

// SwapEdge simulates a swap entering an edge with tokenIn. Returns nil when
// the token is not on the edge or the output would be zero.
func SwapEdge(e *graph.PoolEdge, tokenIn models.TokenRef, amountIn *big.Int) *big.Int {
	rIn, rOut, ok := e.ReservesFor(tokenIn)
	if !ok {
		return nil
	}
	return AmountOut(amountIn, rIn, rOut, e.FeeBps)
}

// Impact returns the execution-vs-spot price impact of one swap as a
// fraction in [0, 1). Spot price ignores the fee, so the fee itself counts
// toward impact, matching how quotes are presented to callers.
func Impact(amountIn, reserveIn, reserveOut, amountOut *big.Int) float64 {
	if amountIn == nil || amountOut == nil || reserveIn == nil || reserveOut == nil {
		return 1
	}
	spot := ratFloat(reserveOut, reserveIn)
	exec := ratFloat(amountOut, amountIn)
	if spot <= 0 || exec <= 0 {
		return 1
	}
	impact := 1 - exec/spot
	if impact < 0 {
		return 0
	}
	return impact
}

// ImpactBps compounds per-hop impacts into one basis-point figure:
// 1 − Π(1 − impact_i).
func ImpactBps(impacts []float64) int32 {
	kept := 1.0
	for _, im := range impacts {
		kept *= 1 - im
	}
	total := (1 - kept) * 10000
	if total < 0 {
		total = 0
	}
	if total > 10000 {
		total = 10000
	}
	return int32(math.Round(total))
}

// DrainBps returns how much of the input-side reserve the trade consumes, in
// basis points. Trades draining too much of a pool are rejected by the
// search because the executed price would be far from the snapshot.
func DrainBps(amountIn, reserveIn *big.Int) uint32 {
	if amountIn == nil || reserveIn == nil || reserveIn.Sign() <= 0 {
		return 10000
	}
	bps := new(big.Int).Mul(amountIn, bpsDenominator)
	bps.Quo(bps, reserveIn)
	if !bps.IsUint64() || bps.Uint64() > 10000 {
		return 10000
	}
	return uint32(bps.Uint64())
}

// ratFloat returns num/den as a float64 without overflowing on wide ints.
func ratFloat(num, den *big.Int) float64 {
	f, _ := new(big.Rat).SetFrac(num, den).Float64()
	return f
}
