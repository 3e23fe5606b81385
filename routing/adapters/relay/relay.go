// Package relay wraps the Relay bridging API (https://api.relay.link). It is
// both a direct cross-chain quote adapter and the bridge-leg provider the
// cross-chain composer calls for its middle step.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
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
	log = zerolog.New(out).With().Timestamp().Str("component", "relay").Logger()
}

const providerName = "relay"

// defaultPollInterval is how often executors should poll Relay for delivery.
const defaultPollInterval = 5 * time.Second

// Adapter quotes cross-chain transfers through Relay's /quote endpoint.
type Adapter struct {
	client *fetch.Client
	reg    *registry.Registry
	caps   adapters.Capabilities
	ttl    time.Duration
}

// New builds the adapter over a fetch client pointed at https://api.relay.link.
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

func (a *Adapter) Name() string                        { return providerName }
func (a *Adapter) Capabilities() adapters.Capabilities { return a.caps }

// Supports requires a cross-chain request where both chains carry relay ids.
func (a *Adapter) Supports(req models.RouteRequest) bool {
	if req.SameChain() {
		return false
	}
	if _, ok := a.reg.ProviderChainID(req.From.Chain, providerName); !ok {
		return false
	}
	_, ok := a.reg.ProviderChainID(req.To.Chain, providerName)
	return ok
}

type quoteRequest struct {
	User                string `json:"user,omitempty"`
	Recipient           string `json:"recipient,omitempty"`
	OriginChainID       string `json:"originChainId"`
	DestinationChainID  string `json:"destinationChainId"`
	OriginCurrency      string `json:"originCurrency"`
	DestinationCurrency string `json:"destinationCurrency"`
	Amount              string `json:"amount"`
	TradeType           string `json:"tradeType"`
}

type quoteResponse struct {
	Steps []struct {
		ID    string `json:"id"`
		Kind  string `json:"kind"`
		Items []struct {
			Data json.RawMessage `json:"data"`
		} `json:"items"`
	} `json:"steps"`
	Fees struct {
		Gas struct {
			AmountUSD string `json:"amountUsd"`
		} `json:"gas"`
		Relayer struct {
			AmountUSD string `json:"amountUsd"`
		} `json:"relayer"`
	} `json:"fees"`
	Details struct {
		CurrencyOut struct {
			Amount        string `json:"amount"`
			MinimumAmount string `json:"minimumAmount"`
		} `json:"currencyOut"`
		TimeEstimate int64 `json:"timeEstimate"`
	} `json:"details"`
}

// Quote fetches one direct cross-chain route.
func (a *Adapter) Quote(ctx context.Context, req models.RouteRequest) (*models.Route, *models.AdapterError) {
	step, hint, aerr := a.QuoteBridge(ctx, req.From, req.To, req.AmountIn, req.Recipient)
	if aerr != nil {
		return nil, aerr
	}

	slippageBps, _ := req.Slippage.Clamp(0)
	route := &models.Route{
		ID:     fmt.Sprintf("relay-%d-%d-%d", req.From.Chain, req.To.Chain, time.Now().UnixNano()),
		Source: providerName,
		Steps: []models.RouteStep{{
			Kind:   models.StepBridge,
			Bridge: step,
			Hint:   hint,
		}},
		AmountIn:        req.AmountIn,
		AmountOutQuoted: step.AmountOutQuoted,
		AmountOutMin:    models.MinOut(step.AmountOutQuoted, slippageBps),
		TotalFeesUSD:    step.FeesUSD,
		SlippageBps:     slippageBps,
		ExpiresAt:       time.Now().Add(a.ttl),
	}
	if err := route.Validate(); err != nil {
		return nil, models.NewAdapterError(providerName, models.AdapterInternal, err.Error())
	}
	return route, nil
}

// QuoteBridge fetches a bridge leg between two tokens on different chains.
// The composer calls this for its middle step.
func (a *Adapter) QuoteBridge(ctx context.Context, from, to models.TokenRef, amount *big.Int, recipient string) (*models.BridgeStep, *models.ExecutionHint, *models.AdapterError) {
	originChain, ok := a.reg.ProviderChainID(from.Chain, providerName)
	if !ok {
		return nil, nil, models.NewAdapterError(providerName, models.AdapterUnsupportedChain,
			fmt.Sprintf("chain %d", from.Chain))
	}
	destChain, ok := a.reg.ProviderChainID(to.Chain, providerName)
	if !ok {
		return nil, nil, models.NewAdapterError(providerName, models.AdapterUnsupportedChain,
			fmt.Sprintf("chain %d", to.Chain))
	}
	originCurrency, ok := a.reg.ProviderTokenAddress(from, providerName)
	if !ok {
		return nil, nil, models.NewAdapterError(providerName, models.AdapterUnsupportedToken, from.String())
	}
	destCurrency, ok := a.reg.ProviderTokenAddress(to, providerName)
	if !ok {
		return nil, nil, models.NewAdapterError(providerName, models.AdapterUnsupportedToken, to.String())
	}

	body := quoteRequest{
		User:                recipient,
		Recipient:           recipient,
		OriginChainID:       originChain,
		DestinationChainID:  destChain,
		OriginCurrency:      originCurrency,
		DestinationCurrency: destCurrency,
		Amount:              amount.String(),
		TradeType:           "EXACT_INPUT",
	}

	var resp quoteResponse
	if err := a.client.PostJSON(ctx, "/quote", body, &resp); err != nil {
		return nil, nil, adapters.Classify(providerName, err)
	}

	quoted, ok := new(big.Int).SetString(resp.Details.CurrencyOut.Amount, 10)
	if !ok || quoted.Sign() <= 0 {
		return nil, nil, models.NewAdapterError(providerName, models.AdapterNoRoute,
			fmt.Sprintf("unparseable currencyOut amount %q", resp.Details.CurrencyOut.Amount))
	}

	step := &models.BridgeStep{
		FromChain:        from.Chain,
		ToChain:          to.Chain,
		FromToken:        from,
		ToToken:          to,
		BridgeID:         providerName,
		AmountIn:         amount,
		AmountOutQuoted:  quoted,
		FeesUSD:          feesUSD(&resp),
		EstimatedSeconds: resp.Details.TimeEstimate,
	}
	hint := &models.ExecutionHint{
		Kind: models.HintBridgeCall,
		Bridge: &models.BridgeCallPlan{
			BridgeID:            providerName,
			CallParams:          depositParams(&resp),
			EstimatedSeconds:    resp.Details.TimeEstimate,
			PollIntervalSeconds: int64(defaultPollInterval.Seconds()),
		},
	}
	log.Debug().
		Str("out", resp.Details.CurrencyOut.Amount).
		Int64("eta_s", resp.Details.TimeEstimate).
		Msg("Bridge quote received")
	return step, hint, nil
}

// depositParams carries the first deposit step's data verbatim for the
// executor to replay.
func depositParams(resp *quoteResponse) json.RawMessage {
	for _, s := range resp.Steps {
		if len(s.Items) > 0 {
			return s.Items[0].Data
		}
	}
	return nil
}

func feesUSD(resp *quoteResponse) decimal.Decimal {
	total := decimal.Zero
	for _, s := range []string{resp.Fees.Gas.AmountUSD, resp.Fees.Relayer.AmountUSD} {
		if d, err := decimal.NewFromString(s); err == nil {
			total = total.Add(d)
		}
	}
	return total
}
