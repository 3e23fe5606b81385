// Package lifi wraps the LI.FI aggregation API (https://li.quest) as a route
// adapter. LI.FI quotes both same-chain swaps and cross-chain transfers, so
// it serves as a scoring baseline for the internal pathfinder and as a
// cross-chain fallback.
package lifi

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/EmediongPeter/tiwi-routing-core/routing/adapters"
	"github.com/EmediongPeter/tiwi-routing-core/routing/fetch"
	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
	"github.com/EmediongPeter/tiwi-routing-core/routing/registry"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "lifi").Logger()
}

const providerName = "lifi"

// Adapter quotes through the LI.FI /v1/quote endpoint.
type Adapter struct {
	client *fetch.Client
	reg    *registry.Registry
	caps   adapters.Capabilities
	ttl    time.Duration
}

// New builds the adapter over a fetch client pointed at https://li.quest.
func New(client *fetch.Client, reg *registry.Registry, priority int, ttl time.Duration) *Adapter {
	return &Adapter{
		client: client,
		reg:    reg,
		ttl:    ttl,
		caps: adapters.Capabilities{
			CrossChain:       true,
			SupportsExactOut: false,
			MaxSlippageBps:   5000,
			Priority:         priority,
		},
	}
}

func (a *Adapter) Name() string                      { return providerName }
func (a *Adapter) Capabilities() adapters.Capabilities { return a.caps }

// Supports requires both chains to carry a lifi identifier.
func (a *Adapter) Supports(req models.RouteRequest) bool {
	if _, ok := a.reg.ProviderChainID(req.From.Chain, providerName); !ok {
		return false
	}
	_, ok := a.reg.ProviderChainID(req.To.Chain, providerName)
	return ok
}

// quoteResponse is the subset of LI.FI's quote payload the core consumes.
type quoteResponse struct {
	ID   string `json:"id"`
	Tool string `json:"tool"`
	Action struct {
		FromChainID int64 `json:"fromChainId"`
		ToChainID   int64 `json:"toChainId"`
		Slippage    float64 `json:"slippage"`
	} `json:"action"`
	Estimate struct {
		FromAmount        string `json:"fromAmount"`
		ToAmount          string `json:"toAmount"`
		ToAmountMin       string `json:"toAmountMin"`
		ApprovalAddress   string `json:"approvalAddress"`
		ExecutionDuration float64 `json:"executionDuration"`
		FeeCosts          []struct {
			AmountUSD string `json:"amountUsd"`
		} `json:"feeCosts"`
		GasCosts []struct {
			AmountUSD string `json:"amountUsd"`
		} `json:"gasCosts"`
	} `json:"estimate"`
	TransactionRequest struct {
		To       string `json:"to"`
		Data     string `json:"data"`
		Value    string `json:"value"`
		GasLimit string `json:"gasLimit"`
	} `json:"transactionRequest"`
}

// Quote fetches one LI.FI quote. The provider's transaction request is
// carried verbatim as the execution hint.
func (a *Adapter) Quote(ctx context.Context, req models.RouteRequest) (*models.Route, *models.AdapterError) {
	fromChain, ok := a.reg.ProviderChainID(req.From.Chain, providerName)
	if !ok {
		return nil, models.NewAdapterError(providerName, models.AdapterUnsupportedChain,
			fmt.Sprintf("chain %d", req.From.Chain))
	}
	toChain, ok := a.reg.ProviderChainID(req.To.Chain, providerName)
	if !ok {
		return nil, models.NewAdapterError(providerName, models.AdapterUnsupportedChain,
			fmt.Sprintf("chain %d", req.To.Chain))
	}
	fromToken, ok := a.reg.ProviderTokenAddress(req.From, providerName)
	if !ok {
		return nil, models.NewAdapterError(providerName, models.AdapterUnsupportedToken, req.From.String())
	}
	toToken, ok := a.reg.ProviderTokenAddress(req.To, providerName)
	if !ok {
		return nil, models.NewAdapterError(providerName, models.AdapterUnsupportedToken, req.To.String())
	}

	slippageBps, _ := req.Slippage.Clamp(0)
	params := url.Values{}
	params.Set("fromChain", fromChain)
	params.Set("toChain", toChain)
	params.Set("fromToken", fromToken)
	params.Set("toToken", toToken)
	params.Set("fromAmount", req.AmountIn.String())
	params.Set("slippage", fmt.Sprintf("%.4f", float64(slippageBps)/10000))
	if req.Recipient != "" {
		params.Set("fromAddress", req.Recipient)
		params.Set("toAddress", req.Recipient)
	}

	var resp quoteResponse
	if err := a.client.GetJSON(ctx, "/v1/quote?"+params.Encode(), &resp); err != nil {
		return nil, adapters.Classify(providerName, err)
	}
	return a.toRoute(req, &resp, slippageBps)
}

func (a *Adapter) toRoute(req models.RouteRequest, resp *quoteResponse, slippageBps uint32) (*models.Route, *models.AdapterError) {
	quoted, ok := new(big.Int).SetString(resp.Estimate.ToAmount, 10)
	if !ok || quoted.Sign() <= 0 {
		return nil, models.NewAdapterError(providerName, models.AdapterInternal,
			fmt.Sprintf("unparseable toAmount %q", resp.Estimate.ToAmount))
	}
	minOut, ok := new(big.Int).SetString(resp.Estimate.ToAmountMin, 10)
	if !ok {
		minOut = models.MinOut(quoted, slippageBps)
	}

	hint := &models.ExecutionHint{
		Kind: models.HintEVMCall,
		EVM: &models.EVMCallPlan{
			RouterAddress: resp.TransactionRequest.To,
			Calldata:      resp.TransactionRequest.Data,
			AmountIn:      req.AmountIn.String(),
			AmountOutMin:  minOut.String(),
			Value:         resp.TransactionRequest.Value,
		},
	}

	var step models.RouteStep
	if req.SameChain() {
		step = models.RouteStep{
			Kind: models.StepSwap,
			Swap: &models.SwapStep{
				Chain:           req.From.Chain,
				FromToken:       req.From,
				ToToken:         req.To,
				DEX:             resp.Tool,
				AmountIn:        req.AmountIn,
				AmountOutQuoted: quoted,
				RawAmountOut:    resp.Estimate.ToAmount,
			},
			Hint: hint,
		}
	} else {
		step = models.RouteStep{
			Kind: models.StepBridge,
			Bridge: &models.BridgeStep{
				FromChain:        req.From.Chain,
				ToChain:          req.To.Chain,
				FromToken:        req.From,
				ToToken:          req.To,
				BridgeID:         resp.Tool,
				AmountIn:         req.AmountIn,
				AmountOutQuoted:  quoted,
				FeesUSD:          sumUSD(feeAmounts(resp)),
				EstimatedSeconds: int64(resp.Estimate.ExecutionDuration),
			},
			Hint: hint,
		}
	}

	route := &models.Route{
		ID:              fmt.Sprintf("lifi-%s", resp.ID),
		Source:          providerName,
		Steps:           []models.RouteStep{step},
		AmountIn:        req.AmountIn,
		AmountOutQuoted: quoted,
		AmountOutMin:    minOut,
		GasEstimateUSD:  sumUSD(gasAmounts(resp)),
		TotalFeesUSD:    sumUSD(feeAmounts(resp)),
		SlippageBps:     slippageBps,
		ExpiresAt:       time.Now().Add(a.ttl),
	}
	if err := route.Validate(); err != nil {
		return nil, models.NewAdapterError(providerName, models.AdapterInternal, err.Error())
	}
	log.Debug().Str("tool", resp.Tool).Str("out", resp.Estimate.ToAmount).Msg("Quote received")
	return route, nil
}

func feeAmounts(resp *quoteResponse) []string {
	out := make([]string, 0, len(resp.Estimate.FeeCosts))
	for _, f := range resp.Estimate.FeeCosts {
		out = append(out, f.AmountUSD)
	}
	return out
}

func gasAmounts(resp *quoteResponse) []string {
	out := make([]string, 0, len(resp.Estimate.GasCosts))
	for _, g := range resp.Estimate.GasCosts {
		out = append(out, g.AmountUSD)
	}
	return out
}

func sumUSD(amounts []string) decimal.Decimal {
	total := decimal.Zero
	for _, s := range amounts {
		if d, err := decimal.NewFromString(s); err == nil {
			total = total.Add(d)
		}
	}
	return total
}
