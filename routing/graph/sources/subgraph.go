package sources

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/EmediongPeter/tiwi-routing-core/routing/fetch"
	"github.com/EmediongPeter/tiwi-routing-core/routing/graph"
	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
)

// Subgraph pulls v2-style pools from one DEX subgraph (The Graph schema:
// pairs with token0/token1/reserve0/reserve1/reserveUSD). One Subgraph
// instance serves one DEX on one chain.
type Subgraph struct {
	client   *fetch.Client
	chain    models.ChainID
	dex      string
	pageSize int
}

// NewSubgraph builds a source over a fetch client pointed at the subgraph's
// GraphQL endpoint base (the query path must be "", the client carries the
// full URL).
func NewSubgraph(client *fetch.Client, chain models.ChainID, dex string) *Subgraph {
	return &Subgraph{client: client, chain: chain, dex: dex, pageSize: 500}
}

func (s *Subgraph) Name() string { return "subgraph-" + s.dex }

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type sgToken struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Decimals string `json:"decimals"`
}

type sgPair struct {
	ID         string          `json:"id"`
	Token0     sgToken         `json:"token0"`
	Token1     sgToken         `json:"token1"`
	Reserve0   decimal.Decimal `json:"reserve0"`
	Reserve1   decimal.Decimal `json:"reserve1"`
	ReserveUSD decimal.Decimal `json:"reserveUSD"`
}

type sgPairsResponse struct {
	Data struct {
		Pairs []sgPair `json:"pairs"`
	} `json:"data"`
	Errors []gqlError `json:"errors"`
}

const pairsQuery = `query($minReserve: BigDecimal!, $first: Int!, $skip: Int!) {
  pairs(first: $first, skip: $skip, orderBy: reserveUSD, orderDirection: desc,
        where: {reserveUSD_gt: $minReserve}) {
    id
    token0 { id symbol decimals }
    token1 { id symbol decimals }
    reserve0
    reserve1
    reserveUSD
  }
}`

const pairByTokensQuery = `query($a: String!, $b: String!) {
  pairs(first: 10, where: {token0_in: [$a, $b], token1_in: [$a, $b]}) {
    id
    token0 { id symbol decimals }
    token1 { id symbol decimals }
    reserve0
    reserve1
    reserveUSD
  }
}`

const pairsByIDQuery = `query($ids: [ID!]!) {
  pairs(where: {id_in: $ids}) {
    id
    token0 { id symbol decimals }
    token1 { id symbol decimals }
    reserve0
    reserve1
    reserveUSD
  }
}`

func (s *Subgraph) query(ctx context.Context, q string, vars map[string]any) ([]sgPair, error) {
	var resp sgPairsResponse
	if err := s.client.PostJSON(ctx, "", gqlRequest{Query: q, Variables: vars}, &resp); err != nil {
		return nil, fmt.Errorf("subgraph %s: %w", s.dex, err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("subgraph %s: %s", s.dex, resp.Errors[0].Message)
	}
	return resp.Data.Pairs, nil
}

// FetchPairs pages through pools above the liquidity floor, largest first.
func (s *Subgraph) FetchPairs(ctx context.Context, chain models.ChainID, minLiquidityUSD decimal.Decimal) ([]graph.PoolEdge, error) {
	if chain != s.chain {
		return nil, nil
	}

	var out []graph.PoolEdge
	for skip := 0; ; skip += s.pageSize {
		pairs, err := s.query(ctx, pairsQuery, map[string]any{
			"minReserve": minLiquidityUSD.String(),
			"first":      s.pageSize,
			"skip":       skip,
		})
		if err != nil {
			return nil, err
		}
		for i := range pairs {
			if edge, ok := s.toEdge(&pairs[i]); ok {
				out = append(out, edge)
			}
		}
		if len(pairs) < s.pageSize {
			break
		}
	}
	return out, nil
}

// FetchPair looks up pools holding exactly the two tokens.
func (s *Subgraph) FetchPair(ctx context.Context, chain models.ChainID, tokenA, tokenB models.TokenRef) ([]graph.PoolEdge, error) {
	if chain != s.chain || tokenA.IsNative() || tokenB.IsNative() {
		return nil, nil
	}
	pairs, err := s.query(ctx, pairByTokensQuery, map[string]any{
		"a": strings.ToLower(tokenA.Address),
		"b": strings.ToLower(tokenB.Address),
	})
	if err != nil {
		return nil, err
	}
	var out []graph.PoolEdge
	for i := range pairs {
		if edge, ok := s.toEdge(&pairs[i]); ok {
			out = append(out, edge)
		}
	}
	return out, nil
}

// FetchReserves re-reads reserves for this source's own pools; foreign ids
// are ignored.
func (s *Subgraph) FetchReserves(ctx context.Context, poolIDs []string) (map[string]graph.ReserveReading, error) {
	ids := make([]string, 0, len(poolIDs))
	idByAddr := map[string]string{}
	for _, id := range poolIDs {
		chain, dex, pairAddr, err := ParsePoolID(id)
		if err != nil || chain != s.chain || dex != s.dex {
			continue
		}
		ids = append(ids, pairAddr)
		idByAddr[pairAddr] = id
	}
	if len(ids) == 0 {
		return map[string]graph.ReserveReading{}, nil
	}

	pairs, err := s.query(ctx, pairsByIDQuery, map[string]any{"ids": ids})
	if err != nil {
		return nil, err
	}

	out := make(map[string]graph.ReserveReading, len(pairs))
	now := time.Now()
	for i := range pairs {
		p := &pairs[i]
		id, ok := idByAddr[strings.ToLower(p.ID)]
		if !ok {
			continue
		}
		d0, d1, ok := tokenDecimals(p)
		if !ok || p.Reserve0.Sign() <= 0 || p.Reserve1.Sign() <= 0 {
			continue
		}
		out[id] = graph.ReserveReading{
			Reserve0:  rawAmount(p.Reserve0, d0),
			Reserve1:  rawAmount(p.Reserve1, d1),
			UpdatedAt: now,
		}
	}
	return out, nil
}

func (s *Subgraph) toEdge(p *sgPair) (graph.PoolEdge, bool) {
	d0, d1, ok := tokenDecimals(p)
	if !ok || p.Reserve0.Sign() <= 0 || p.Reserve1.Sign() <= 0 {
		return graph.PoolEdge{}, false
	}
	edge := graph.PoolEdge{
		ID:           PoolID(s.chain, s.dex, p.ID),
		Chain:        s.chain,
		TokenA:       models.NewTokenRef(s.chain, models.KindEVM, p.Token0.ID),
		TokenB:       models.NewTokenRef(s.chain, models.KindEVM, p.Token1.ID),
		DEX:          s.dex,
		PairAddress:  strings.ToLower(p.ID),
		Reserve0:     rawAmount(p.Reserve0, d0),
		Reserve1:     rawAmount(p.Reserve1, d1),
		FeeBps:       defaultSwapFeeBps,
		LiquidityUSD: p.ReserveUSD,
		LastUpdated:  time.Now(),
	}
	edge.Normalize()
	if err := edge.Validate(); err != nil {
		return graph.PoolEdge{}, false
	}
	return edge, true
}

// tokenDecimals parses the subgraph's string-typed decimals fields.
func tokenDecimals(p *sgPair) (d0, d1 int, ok bool) {
	var err error
	if _, err = fmt.Sscanf(p.Token0.Decimals, "%d", &d0); err != nil {
		return 0, 0, false
	}
	if _, err = fmt.Sscanf(p.Token1.Decimals, "%d", &d1); err != nil {
		return 0, 0, false
	}
	return d0, d1, true
}
