// Package jupiter wraps the Jupiter v6 quote API for Solana swaps.
package jupiter

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/EmediongPeter/tiwi-routing-core/routing/adapters"
	"github.com/EmediongPeter/tiwi-routing-core/routing/fetch"
	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
	"github.com/EmediongPeter/tiwi-routing-core/routing/registry"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "jupiter").Logger()
}

const providerName = "jupiter"

// Adapter quotes Solana swaps through /v6/quote.
type Adapter struct {
	client *fetch.Client
	reg    *registry.Registry
	caps   adapters.Capabilities
	ttl    time.Duration
}

// New builds the adapter over a fetch client pointed at https://quote-api.jup.ag.
func New(client *fetch.Client, reg *registry.Registry, priority int, ttl time.Duration) *Adapter {
	return &Adapter{
		client: client,
		reg:    reg,
		ttl:    ttl,
		caps: adapters.Capabilities{
			CrossChain:       false,
			SupportsExactOut: true,
			MaxSlippageBps:   10000,
			Priority:         priority,
		},
	}
}

func (a *Adapter) Name() string                        { return providerName }
func (a *Adapter) Capabilities() adapters.Capabilities { return a.caps }

// Supports accepts only same-chain requests on a Solana-kind chain with a
// jupiter identifier.
func (a *Adapter) Supports(req models.RouteRequest) bool {
	if !req.SameChain() {
		return false
	}
	chain, ok := a.reg.ChainByID(req.From.Chain)
	if !ok || chain.Kind != models.KindSolana {
		return false
	}
	_, ok = a.reg.ProviderChainID(req.From.Chain, providerName)
	return ok
}

// quoteResponse mirrors the Jupiter v6 quote payload.
type quoteResponse struct {
	InputMint            string `json:"inputMint"`
	InAmount             string `json:"inAmount"`
	OutputMint           string `json:"outputMint"`
	OutAmount            string `json:"outAmount"`
	OtherAmountThreshold string `json:"otherAmountThreshold"`
	SwapMode             string `json:"swapMode"`
	SlippageBps          int64  `json:"slippageBps"`
	PriceImpactPct       string `json:"priceImpactPct"`
	RoutePlan            []struct {
		SwapInfo struct {
			AmmKey  string `json:"ammKey"`
			Label   string `json:"label"`
			FeeMint string `json:"feeMint"`
		} `json:"swapInfo"`
		Percent int `json:"percent"`
	} `json:"routePlan"`
}

// Quote fetches one exact-in Jupiter quote. OtherAmountThreshold is already
// the slippage-adjusted minimum, so it is carried through untouched.
func (a *Adapter) Quote(ctx context.Context, req models.RouteRequest) (*models.Route, *models.AdapterError) {
	inputMint, ok := a.reg.ProviderTokenAddress(req.From, providerName)
	if !ok {
		return nil, models.NewAdapterError(providerName, models.AdapterUnsupportedToken, req.From.String())
	}
	outputMint, ok := a.reg.ProviderTokenAddress(req.To, providerName)
	if !ok {
		return nil, models.NewAdapterError(providerName, models.AdapterUnsupportedToken, req.To.String())
	}

	slippageBps, _ := req.Slippage.Clamp(0)
	params := url.Values{}
	params.Set("inputMint", inputMint)
	params.Set("outputMint", outputMint)
	params.Set("amount", req.AmountIn.String())
	params.Set("slippageBps", fmt.Sprintf("%d", slippageBps))
	params.Set("swapMode", "ExactIn")

	var resp quoteResponse
	if err := a.client.GetJSON(ctx, "/v6/quote?"+params.Encode(), &resp); err != nil {
		return nil, adapters.Classify(providerName, err)
	}

	quoted, ok := new(big.Int).SetString(resp.OutAmount, 10)
	if !ok || quoted.Sign() <= 0 {
		return nil, models.NewAdapterError(providerName, models.AdapterNoRoute,
			fmt.Sprintf("empty or unparseable outAmount %q", resp.OutAmount))
	}
	minOut, ok := new(big.Int).SetString(resp.OtherAmountThreshold, 10)
	if !ok {
		minOut = models.MinOut(quoted, slippageBps)
	}

	pools := make([]string, 0, len(resp.RoutePlan))
	labels := make([]string, 0, len(resp.RoutePlan))
	for _, hop := range resp.RoutePlan {
		pools = append(pools, hop.SwapInfo.AmmKey)
		labels = append(labels, hop.SwapInfo.Label)
	}

	route := &models.Route{
		ID:     fmt.Sprintf("jup-%s-%s-%d", inputMint, outputMint, time.Now().UnixNano()),
		Source: providerName,
		Steps: []models.RouteStep{{
			Kind: models.StepSwap,
			Swap: &models.SwapStep{
				Chain:           req.From.Chain,
				FromToken:       req.From,
				ToToken:         req.To,
				DEX:             strings.Join(labels, "+"),
				AmountIn:        req.AmountIn,
				AmountOutQuoted: quoted,
				PoolPath:        pools,
				RawAmountOut:    resp.OutAmount,
			},
			// The executable transaction comes from Jupiter's /v6/swap call,
			// issued at execution time against this quote.
			Hint: nil,
		}},
		AmountIn:        req.AmountIn,
		AmountOutQuoted: quoted,
		AmountOutMin:    minOut,
		PriceImpactBps:  impactBps(resp.PriceImpactPct),
		SlippageBps:     slippageBps,
		ExpiresAt:       time.Now().Add(a.ttl),
	}
	if err := route.Validate(); err != nil {
		return nil, models.NewAdapterError(providerName, models.AdapterInternal, err.Error())
	}
	log.Debug().Str("out", resp.OutAmount).Int("hops", len(pools)).Msg("Quote received")
	return route, nil
}

// impactBps parses Jupiter's fractional price impact ("0.0012" = 12 bps).
func impactBps(pct string) int32 {
	var f float64
	if _, err := fmt.Sscanf(pct, "%g", &f); err != nil {
		return 0
	}
	bps := f * 10000
	if bps < 0 {
		return 0
	}
	if bps > 10000 {
		return 10000
	}
	return int32(bps)
}
