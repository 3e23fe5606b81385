package sources

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/EmediongPeter/tiwi-routing-core/routing/fetch"
	"github.com/EmediongPeter/tiwi-routing-core/routing/graph"
	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
	"github.com/EmediongPeter/tiwi-routing-core/routing/registry"
)

var dsLog zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	dsLog = zerolog.New(out).With().Timestamp().Str("component", "dexscreener").Logger()
}

const dexScreenerProvider = "dexscreener"

// maxPairsPerLookup is the DexScreener batch limit on the pairs endpoint.
const maxPairsPerLookup = 30

// DexScreener discovers pools by walking the registry's token watchlist
// through the DexScreener token-pairs API. It carries USD liquidity and
// prices, which the on-chain readers cannot provide.
type DexScreener struct {
	client *fetch.Client
	reg    *registry.Registry
}

// NewDexScreener builds the source over a fetch client pointed at
// https://api.dexscreener.com.
func NewDexScreener(client *fetch.Client, reg *registry.Registry) *DexScreener {
	return &DexScreener{client: client, reg: reg}
}

func (d *DexScreener) Name() string { return dexScreenerProvider }

// dsToken is the token object embedded in a DexScreener pair.
type dsToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// dsPair is one pair as the DexScreener API reports it.
type dsPair struct {
	ChainID     string  `json:"chainId"`
	DexID       string  `json:"dexId"`
	PairAddress string  `json:"pairAddress"`
	BaseToken   dsToken `json:"baseToken"`
	QuoteToken  dsToken `json:"quoteToken"`
	PriceUsd    string  `json:"priceUsd"`
	Liquidity   struct {
		USD   decimal.Decimal `json:"usd"`
		Base  decimal.Decimal `json:"base"`
		Quote decimal.Decimal `json:"quote"`
	} `json:"liquidity"`
}

// FetchPairs walks every registered token on the chain and collects its
// DexScreener pairs above the liquidity floor.
func (d *DexScreener) FetchPairs(ctx context.Context, chain models.ChainID, minLiquidityUSD decimal.Decimal) ([]graph.PoolEdge, error) {
	providerChain, ok := d.reg.ProviderChainID(chain, dexScreenerProvider)
	if !ok {
		return nil, fmt.Errorf("chain %d has no dexscreener identifier", chain)
	}

	seen := map[string]bool{}
	var out []graph.PoolEdge
	for _, token := range d.reg.TokensOnChain(chain) {
		if token.Ref.IsNative() {
			continue
		}
		var pairs []dsPair
		path := fmt.Sprintf("/token-pairs/v1/%s/%s", providerChain, token.Ref.Address)
		if err := d.client.GetJSON(ctx, path, &pairs); err != nil {
			return nil, fmt.Errorf("dexscreener token pairs for %s: %w", token.Ref, err)
		}
		for i := range pairs {
			edge, ok := d.toEdge(chain, &pairs[i])
			if !ok || seen[edge.ID] {
				continue
			}
			if edge.LiquidityUSD.LessThan(minLiquidityUSD) {
				continue
			}
			seen[edge.ID] = true
			out = append(out, edge)
		}
	}
	dsLog.Debug().Int64("chain", int64(chain)).Int("pairs", len(out)).Msg("Pair scan complete")
	return out, nil
}

// FetchPair looks up pools for one pair through tokenA's pair listing.
func (d *DexScreener) FetchPair(ctx context.Context, chain models.ChainID, tokenA, tokenB models.TokenRef) ([]graph.PoolEdge, error) {
	providerChain, ok := d.reg.ProviderChainID(chain, dexScreenerProvider)
	if !ok {
		return nil, fmt.Errorf("chain %d has no dexscreener identifier", chain)
	}
	addrA, ok := d.reg.ProviderTokenAddress(tokenA, dexScreenerProvider)
	if !ok {
		return nil, fmt.Errorf("token %s not addressable on dexscreener", tokenA)
	}
	addrB, ok := d.reg.ProviderTokenAddress(tokenB, dexScreenerProvider)
	if !ok {
		return nil, fmt.Errorf("token %s not addressable on dexscreener", tokenB)
	}

	var pairs []dsPair
	path := fmt.Sprintf("/token-pairs/v1/%s/%s", providerChain, addrA)
	if err := d.client.GetJSON(ctx, path, &pairs); err != nil {
		return nil, fmt.Errorf("dexscreener token pairs: %w", err)
	}

	var out []graph.PoolEdge
	for i := range pairs {
		p := &pairs[i]
		base := strings.ToLower(p.BaseToken.Address)
		quote := strings.ToLower(p.QuoteToken.Address)
		if !pairMatches(base, quote, strings.ToLower(addrA), strings.ToLower(addrB)) {
			continue
		}
		if edge, ok := d.toEdge(chain, p); ok {
			out = append(out, edge)
		}
	}
	return out, nil
}

// FetchReserves refreshes known pools through the batch pairs endpoint.
func (d *DexScreener) FetchReserves(ctx context.Context, poolIDs []string) (map[string]graph.ReserveReading, error) {
	byChain := map[models.ChainID][]string{}
	idByAddr := map[string]string{}
	for _, id := range poolIDs {
		chain, _, pairAddr, err := ParsePoolID(id)
		if err != nil {
			continue
		}
		byChain[chain] = append(byChain[chain], pairAddr)
		idByAddr[pairAddr] = id
	}

	out := make(map[string]graph.ReserveReading, len(poolIDs))
	for chain, addrs := range byChain {
		providerChain, ok := d.reg.ProviderChainID(chain, dexScreenerProvider)
		if !ok {
			continue
		}
		for start := 0; start < len(addrs); start += maxPairsPerLookup {
			end := start + maxPairsPerLookup
			if end > len(addrs) {
				end = len(addrs)
			}
			var resp struct {
				Pairs []dsPair `json:"pairs"`
			}
			path := fmt.Sprintf("/latest/dex/pairs/%s/%s", providerChain, strings.Join(addrs[start:end], ","))
			if err := d.client.GetJSON(ctx, path, &resp); err != nil {
				return nil, fmt.Errorf("dexscreener pairs lookup: %w", err)
			}
			now := time.Now()
			for i := range resp.Pairs {
				p := &resp.Pairs[i]
				id, ok := idByAddr[strings.ToLower(p.PairAddress)]
				if !ok {
					continue
				}
				r0, r1, ok := d.reserves(chain, p)
				if !ok {
					continue
				}
				// Readings must follow the canonical edge orientation;
				// DexScreener reports base/quote order.
				if d.baseAfterQuote(chain, p) {
					r0, r1 = r1, r0
				}
				out[id] = graph.ReserveReading{Reserve0: r0, Reserve1: r1, UpdatedAt: now}
			}
		}
	}
	return out, nil
}

// toEdge converts one DexScreener pair into a pool edge. Pairs whose tokens
// are not in the registry are skipped because their decimals are unknown.
func (d *DexScreener) toEdge(chain models.ChainID, p *dsPair) (graph.PoolEdge, bool) {
	refBase := d.reg.NormalizeRef(models.TokenRef{Chain: chain, Address: p.BaseToken.Address})
	refQuote := d.reg.NormalizeRef(models.TokenRef{Chain: chain, Address: p.QuoteToken.Address})

	r0, r1, ok := d.reserves(chain, p)
	if !ok {
		return graph.PoolEdge{}, false
	}

	edge := graph.PoolEdge{
		ID:           PoolID(chain, p.DexID, p.PairAddress),
		Chain:        chain,
		TokenA:       refBase,
		TokenB:       refQuote,
		DEX:          p.DexID,
		PairAddress:  strings.ToLower(p.PairAddress),
		Reserve0:     r0,
		Reserve1:     r1,
		FeeBps:       defaultSwapFeeBps,
		LiquidityUSD: p.Liquidity.USD,
		LastUpdated:  time.Now(),
	}
	edge.Normalize()
	if err := edge.Validate(); err != nil {
		return graph.PoolEdge{}, false
	}
	return edge, true
}

// reserves converts the pair's human-readable base/quote liquidity into raw
// base units, in the reported base/quote order. Callers reorient for their
// consumer: toEdge leaves it to Normalize, FetchReserves swaps directly.
func (d *DexScreener) reserves(chain models.ChainID, p *dsPair) (r0, r1 *big.Int, ok bool) {
	base, okA := d.reg.KnownToken(models.TokenRef{Chain: chain, Address: p.BaseToken.Address})
	quote, okB := d.reg.KnownToken(models.TokenRef{Chain: chain, Address: p.QuoteToken.Address})
	if !okA || !okB {
		return nil, nil, false
	}
	if p.Liquidity.Base.Sign() <= 0 || p.Liquidity.Quote.Sign() <= 0 {
		return nil, nil, false
	}
	return rawAmount(p.Liquidity.Base, base.Decimals), rawAmount(p.Liquidity.Quote, quote.Decimals), true
}

// baseAfterQuote reports whether the pair's base token sorts after its quote
// token, meaning DexScreener's base/quote order is the reverse of the
// canonical edge order.
func (d *DexScreener) baseAfterQuote(chain models.ChainID, p *dsPair) bool {
	base := d.reg.NormalizeRef(models.TokenRef{Chain: chain, Address: p.BaseToken.Address})
	quote := d.reg.NormalizeRef(models.TokenRef{Chain: chain, Address: p.QuoteToken.Address})
	return base.Address > quote.Address
}

func pairMatches(base, quote, a, b string) bool {
	return (base == a && quote == b) || (base == b && quote == a)
}
