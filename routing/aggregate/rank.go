package aggregate

import (
	"math/big"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
	"github.com/EmediongPeter/tiwi-routing-core/routing/pathfind"
)

// rank scores the candidates, applies the slippage policy, enforces the TTL
// cap, and trims the tail. Always returns at least one route. firstAt is when
// the fastest source answered; quote validity is anchored there.
func (a *Aggregator) rank(req models.RouteRequest, routes []*models.Route, firstAt time.Time) []*models.Route {
	for _, r := range routes {
		a.applySlippage(req, r)
		a.capTTL(r, firstAt)
	}

	scores := make(map[*models.Route]decimal.Decimal, len(routes))
	outPrice, outDecimals, inValueUSD := a.valuation(req)
	for _, r := range routes {
		scores[r] = pathfind.Score(r, outPrice, outDecimals, inValueUSD)
	}

	sort.SliceStable(routes, func(i, j int) bool {
		si, sj := scores[routes[i]], scores[routes[j]]
		if a.tied(si, sj) {
			pi, pj := a.sourcePriority(routes[i].Source), a.sourcePriority(routes[j].Source)
			if pi != pj {
				return pi < pj
			}
			if len(routes[i].Steps) != len(routes[j].Steps) {
				return len(routes[i].Steps) < len(routes[j].Steps)
			}
			return routes[i].ID < routes[j].ID
		}
		return si.GreaterThan(sj)
	})

	// Drop candidates quoting well below the best route's output; they would
	// only tempt callers into a worse execution. The cut is on raw quoted
	// amounts, not the gas-adjusted score.
	bestOut := routes[0].AmountOutQuoted
	dropBps := int64(a.cfg.ScoreDropFraction * 10000)
	outFloor := new(big.Int).Mul(bestOut, big.NewInt(10000-dropBps))
	outFloor.Quo(outFloor, big.NewInt(10000))
	kept := routes[:1]
	for _, r := range routes[1:] {
		if len(kept) >= a.cfg.MaxCandidates {
			break
		}
		if r.AmountOutQuoted.Cmp(outFloor) >= 0 {
			kept = append(kept, r)
		}
	}
	return kept
}

// tied reports whether two scores are within the tie fraction of each other.
func (a *Aggregator) tied(x, y decimal.Decimal) bool {
	diff := x.Sub(y).Abs()
	scale := x.Abs()
	if y.Abs().GreaterThan(scale) {
		scale = y.Abs()
	}
	if scale.IsZero() {
		return true
	}
	return diff.Div(scale).LessThanOrEqual(decimal.NewFromFloat(a.cfg.TieFraction))
}

// applySlippage enforces the request's policy on a candidate. The floor only
// ever tightens: auto policies clamp the source's own tolerance at the cap and
// record the clamp; a source floor looser than the policy floor is raised to
// it, a tighter one stays. Composed routes keep their compounded per-leg floor
// and per-leg slippage sum intact.
func (a *Aggregator) applySlippage(req models.RouteRequest, r *models.Route) {
	effective, clamped := req.Slippage.Clamp(r.SlippageBps)
	if clamped {
		r.SlippageClampedAt = r.SlippageBps
		r.SlippageBps = effective
	}
	policyFloor := models.MinOut(r.AmountOutQuoted, effective)
	if r.AmountOutMin == nil || r.AmountOutMin.Cmp(policyFloor) < 0 {
		r.AmountOutMin = policyFloor
		r.SlippageBps = effective
	}
}

// capTTL bounds a quote's advertised validity. The window starts when the
// fastest source answered, not when ranking runs, so time burned waiting on
// slow siblings counts against the quote's lifetime.
func (a *Aggregator) capTTL(r *models.Route, firstAt time.Time) {
	if firstAt.IsZero() {
		firstAt = time.Now()
	}
	latest := firstAt.Add(a.cfg.QuoteTTL)
	if r.ExpiresAt.IsZero() || r.ExpiresAt.After(latest) {
		r.ExpiresAt = latest
	}
}

// valuation resolves the output token's USD price and decimals plus the
// input's USD value from the destination chain's snapshot.
func (a *Aggregator) valuation(req models.RouteRequest) (decimal.Decimal, int, decimal.Decimal) {
	outDecimals := 18
	if t, ok := a.reg.KnownToken(req.To); ok {
		outDecimals = t.Decimals
	}
	outSnap := a.graphs.Chain(req.To.Chain).Snapshot()
	outPrice := decimal.Zero
	if n, ok := outSnap.Node(req.To); ok {
		outPrice = n.PriceUSD
	}

	inDecimals := 18
	if t, ok := a.reg.KnownToken(req.From); ok {
		inDecimals = t.Decimals
	}
	inSnap := a.graphs.Chain(req.From.Chain).Snapshot()
	inValueUSD := pathfind.InputValueUSD(inSnap, req.From, req.AmountIn, inDecimals)

	return outPrice, outDecimals, inValueUSD
}

// sourcePriority looks up the adapter's configured priority; the internal
// pathfinder ranks ahead of external sources on ties.
func (a *Aggregator) sourcePriority(source string) int {
	if source == pathfind.SourceName {
		return -1
	}
	for _, ad := range a.adapters {
		if ad.Name() == source {
			return ad.Capabilities().Priority
		}
	}
	return 1 << 20
}
