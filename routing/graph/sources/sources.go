// Package sources implements the liquidity data sources the graph builder
// pulls from: the DexScreener REST API, Uniswap-v2 style subgraphs, and
// direct on-chain reserve reads over EVM JSON-RPC.
package sources

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
)

// PoolID builds the canonical edge id: "<chain>:<dex>:<pairAddress>".
// The pair address is lowercased so ids from different sources collide on
// the same pool.
func PoolID(chain models.ChainID, dex, pairAddress string) string {
	return fmt.Sprintf("%d:%s:%s", chain, dex, strings.ToLower(pairAddress))
}

// ParsePoolID splits an edge id back into its parts.
func ParsePoolID(id string) (chain models.ChainID, dex, pairAddress string, err error) {
	parts := strings.SplitN(id, ":", 3)
	if len(parts) != 3 {
		return 0, "", "", fmt.Errorf("malformed pool id %q", id)
	}
	var c int64
	if _, err := fmt.Sscanf(parts[0], "%d", &c); err != nil {
		return 0, "", "", fmt.Errorf("malformed pool id %q: %w", id, err)
	}
	return models.ChainID(c), parts[1], parts[2], nil
}

// rawAmount converts a human-readable token amount into raw base units,
// truncating any sub-unit remainder.
func rawAmount(human decimal.Decimal, decimals int) *big.Int {
	return human.Shift(int32(decimals)).BigInt()
}

// defaultSwapFeeBps is assumed when a source does not report the pool fee.
// Constant-product v2 pools charge 30 bps almost universally.
const defaultSwapFeeBps uint32 = 30
