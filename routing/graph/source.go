package graph

import (
	"context"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
)

// ReserveReading is one pool's reserves at a point in time. Readings follow
// the canonical edge orientation: Reserve0 belongs to the lower token
// address. Sources that learn reserves in another order reorient them before
// returning, because the builder applies readings to stored edges verbatim.
type ReserveReading struct {
	Reserve0  *big.Int
	Reserve1  *big.Int
	UpdatedAt time.Time
}

// ReserveSource refreshes reserves for already-known pools.
type ReserveSource interface {
	Name() string
	FetchReserves(ctx context.Context, poolIDs []string) (map[string]ReserveReading, error)
}

// PairSource discovers pools above a liquidity floor on one chain. The
// builder tries sources in order and merges their results; a failing source
// only skips its update, it never removes edges.
type PairSource interface {
	ReserveSource
	FetchPairs(ctx context.Context, chain models.ChainID, minLiquidityUSD decimal.Decimal) ([]PoolEdge, error)
	// FetchPair discovers pools for one token pair, used for cold on-demand
	// loading during quoting. Sources that cannot filter by pair return
	// (nil, nil).
	FetchPair(ctx context.Context, chain models.ChainID, tokenA, tokenB models.TokenRef) ([]PoolEdge, error)
}

// FactoryReader is the on-chain lookup surface of reserve readers.
type FactoryReader interface {
	GetFactoryPair(ctx context.Context, chain models.ChainID, factory string, tokenA, tokenB models.TokenRef) (string, error)
	GetPairReserves(ctx context.Context, chain models.ChainID, pairAddress string) (ReserveReading, error)
}

// UpdateReport summarizes one chain refresh.
type UpdateReport struct {
	Chain        models.ChainID
	PairsScanned int
	PairsUpdated int
	PairsEvicted int
	Errors       []error
}
