package rpc

import (
	"time"

	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
)

// Wire types. Token amounts travel as decimal strings so 256-bit values
// survive JSON number parsing in every client.

type slippageRequest struct {
	Mode   string `json:"mode"`
	Bps    uint32 `json:"bps,omitempty"`
	MaxBps uint32 `json:"max_bps,omitempty"`
}

type routeRequest struct {
	FromChain  int64           `json:"from_chain"`
	FromToken  string          `json:"from_token"`
	ToChain    int64           `json:"to_chain"`
	ToToken    string          `json:"to_token"`
	AmountIn   string          `json:"amount_in"`
	Slippage   slippageRequest `json:"slippage"`
	DeadlineMs int64           `json:"deadline_ms,omitempty"`
	Recipient  string          `json:"recipient,omitempty"`
	MaxHops    int             `json:"max_hops,omitempty"`
}

type swapStepWire struct {
	Chain           int64           `json:"chain_id"`
	FromToken       models.TokenRef `json:"from_token"`
	ToToken         models.TokenRef `json:"to_token"`
	DEX             string          `json:"dex"`
	AmountIn        string          `json:"amount_in"`
	AmountOutQuoted string          `json:"amount_out_quoted"`
	PoolPath        []string        `json:"pool_path,omitempty"`
	RawAmountOut    string          `json:"raw_amount_out,omitempty"`
}

type bridgeStepWire struct {
	FromChain        int64           `json:"from_chain"`
	ToChain          int64           `json:"to_chain"`
	FromToken        models.TokenRef `json:"from_token"`
	ToToken          models.TokenRef `json:"to_token"`
	BridgeID         string          `json:"bridge_id"`
	AmountIn         string          `json:"amount_in"`
	AmountOutQuoted  string          `json:"amount_out_quoted"`
	FeesUSD          string          `json:"fees_usd"`
	EstimatedSeconds int64           `json:"estimated_seconds"`
}

type wrapStepWire struct {
	Chain  int64           `json:"chain_id"`
	Token  models.TokenRef `json:"token"`
	Amount string          `json:"amount"`
}

type stepWire struct {
	Kind   string                `json:"kind"`
	Swap   *swapStepWire         `json:"swap,omitempty"`
	Bridge *bridgeStepWire       `json:"bridge,omitempty"`
	Wrap   *wrapStepWire         `json:"wrap,omitempty"`
	Hint   *models.ExecutionHint `json:"hint,omitempty"`
}

type routeWire struct {
	ID                      string     `json:"id"`
	Source                  string     `json:"source"`
	Steps                   []stepWire `json:"steps"`
	AmountIn                string     `json:"amount_in"`
	AmountOutQuoted         string     `json:"amount_out_quoted"`
	AmountOutMin            string     `json:"amount_out_min"`
	PriceImpactBps          int32      `json:"price_impact_bps"`
	GasEstimateUSD          string     `json:"gas_estimate_usd"`
	TotalFeesUSD            string     `json:"total_fees_usd"`
	SlippageBps             uint32     `json:"slippage_bps"`
	SlippageClampedAt       uint32     `json:"slippage_clamped_at,omitempty"`
	RequiresExactSimulation bool       `json:"requires_exact_simulation,omitempty"`
	ExpiresAt               time.Time  `json:"expires_at"`
}

type routeResponse struct {
	Best         *routeWire            `json:"best"`
	Alternatives []*routeWire          `json:"alternatives,omitempty"`
	Diagnostics  []models.AdapterError `json:"diagnostics,omitempty"`
}

type errorResponse struct {
	Code    string                `json:"code"`
	Message string                `json:"message"`
	Field   string                `json:"field,omitempty"`
	Sources []models.AdapterError `json:"sources,omitempty"`
}

func toStepWire(s models.RouteStep) stepWire {
	out := stepWire{Kind: string(s.Kind), Hint: s.Hint}
	switch s.Kind {
	case models.StepSwap:
		out.Swap = &swapStepWire{
			Chain:           int64(s.Swap.Chain),
			FromToken:       s.Swap.FromToken,
			ToToken:         s.Swap.ToToken,
			DEX:             s.Swap.DEX,
			AmountIn:        s.Swap.AmountIn.String(),
			AmountOutQuoted: s.Swap.AmountOutQuoted.String(),
			PoolPath:        s.Swap.PoolPath,
			RawAmountOut:    s.Swap.RawAmountOut,
		}
	case models.StepBridge:
		out.Bridge = &bridgeStepWire{
			FromChain:        int64(s.Bridge.FromChain),
			ToChain:          int64(s.Bridge.ToChain),
			FromToken:        s.Bridge.FromToken,
			ToToken:          s.Bridge.ToToken,
			BridgeID:         s.Bridge.BridgeID,
			AmountIn:         s.Bridge.AmountIn.String(),
			AmountOutQuoted:  s.Bridge.AmountOutQuoted.String(),
			FeesUSD:          s.Bridge.FeesUSD.String(),
			EstimatedSeconds: s.Bridge.EstimatedSeconds,
		}
	case models.StepWrap, models.StepUnwrap:
		out.Wrap = &wrapStepWire{
			Chain:  int64(s.Wrap.Chain),
			Token:  s.Wrap.Token,
			Amount: s.Wrap.Amount.String(),
		}
	}
	return out
}

func toRouteWire(r *models.Route) *routeWire {
	if r == nil {
		return nil
	}
	steps := make([]stepWire, 0, len(r.Steps))
	for _, s := range r.Steps {
		steps = append(steps, toStepWire(s))
	}
	return &routeWire{
		ID:                      r.ID,
		Source:                  r.Source,
		Steps:                   steps,
		AmountIn:                r.AmountIn.String(),
		AmountOutQuoted:         r.AmountOutQuoted.String(),
		AmountOutMin:            r.AmountOutMin.String(),
		PriceImpactBps:          r.PriceImpactBps,
		GasEstimateUSD:          r.GasEstimateUSD.String(),
		TotalFeesUSD:            r.TotalFeesUSD.String(),
		SlippageBps:             r.SlippageBps,
		SlippageClampedAt:       r.SlippageClampedAt,
		RequiresExactSimulation: r.RequiresExactSimulation,
		ExpiresAt:               r.ExpiresAt,
	}
}

func toRouteResponse(resp *models.RouteResponse) routeResponse {
	out := routeResponse{
		Best:        toRouteWire(resp.Best),
		Diagnostics: resp.Diagnostics,
	}
	for _, alt := range resp.Alternatives {
		out.Alternatives = append(out.Alternatives, toRouteWire(alt))
	}
	return out
}
