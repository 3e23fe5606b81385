package pathfind

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/EmediongPeter/tiwi-routing-core/routing/graph"
	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
)

// SourceName identifies internally pathfound routes in quote diagnostics.
const SourceName = "pathfinder"

// ToRoute converts a found path into a quote candidate. The effective
// slippage must already be resolved by the caller's policy.
func (f *Finder) ToRoute(p *Path, snap *graph.Snapshot, slippageBps uint32, ttl time.Duration) *models.Route {
	steps := make([]models.RouteStep, 0, p.Hops())
	for i, e := range p.Edges {
		steps = append(steps, models.RouteStep{
			Kind: models.StepSwap,
			Swap: &models.SwapStep{
				Chain:           e.Chain,
				FromToken:       p.Tokens[i],
				ToToken:         p.Tokens[i+1],
				DEX:             e.DEX,
				AmountIn:        p.Amounts[i],
				AmountOutQuoted: p.Amounts[i+1],
				PoolPath:        []string{e.ID},
			},
		})
	}

	quoted := p.AmountOut()
	r := &models.Route{
		ID:              routeID(p),
		Source:          SourceName,
		Steps:           steps,
		AmountIn:        p.Amounts[0],
		AmountOutQuoted: quoted,
		AmountOutMin:    models.MinOut(quoted, slippageBps),
		PriceImpactBps:  ImpactBps(p.Impacts),
		GasEstimateUSD:  f.cfg.GasPerHopUSD.Mul(decimal.NewFromInt(int64(p.Hops()))),
		SlippageBps:     slippageBps,
		ExpiresAt:       time.Now().Add(ttl),
	}
	r.TotalFeesUSD = f.poolFeesUSD(p, snap)
	return r
}

// routeID derives a stable id from the pool sequence.
func routeID(p *Path) string {
	return fmt.Sprintf("pf-%s", p.signature())
}

// poolFeesUSD values the swap fees taken along the path, where input prices
// are known. Unpriced hops contribute zero rather than guessing.
func (f *Finder) poolFeesUSD(p *Path, snap *graph.Snapshot) decimal.Decimal {
	total := decimal.Zero
	for i, e := range p.Edges {
		node, ok := snap.Node(p.Tokens[i])
		if !ok || node.PriceUSD.IsZero() {
			continue
		}
		human := decimal.NewFromBigInt(p.Amounts[i], -int32(f.decimals(snap, p.Tokens[i])))
		fee := human.Mul(node.PriceUSD).
			Mul(decimal.NewFromInt(int64(e.FeeBps))).
			Div(decimal.NewFromInt(10000))
		total = total.Add(fee)
	}
	return total
}

// Score values a route candidate for ranking:
//
//	score = outputUSD − gasUSD − impactUSD − feesUSD
//
// When the output token has no known USD price, output units are valued at
// 1.0; candidates for one request share an output token, so the comparison
// stays fair even if the absolute number is off.
func Score(r *models.Route, outPriceUSD decimal.Decimal, outDecimals int, inValueUSD decimal.Decimal) decimal.Decimal {
	price := outPriceUSD
	if price.IsZero() {
		price = decimal.NewFromInt(1)
	}
	outUSD := decimal.NewFromBigInt(r.AmountOutQuoted, -int32(outDecimals)).Mul(price)

	impactUSD := decimal.Zero
	if !inValueUSD.IsZero() {
		impactUSD = inValueUSD.
			Mul(decimal.NewFromInt(int64(r.PriceImpactBps))).
			Div(decimal.NewFromInt(10000))
	}
	return outUSD.Sub(r.GasEstimateUSD).Sub(impactUSD).Sub(r.TotalFeesUSD)
}

// InputValueUSD values the request input from snapshot prices; zero when the
// token is unpriced.
func InputValueUSD(snap *graph.Snapshot, ref models.TokenRef, amount *big.Int, decimals int) decimal.Decimal {
	node, ok := snap.Node(ref)
	if !ok || node.PriceUSD.IsZero() {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).Mul(node.PriceUSD)
}
