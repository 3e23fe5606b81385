package sources

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/EmediongPeter/tiwi-routing-core/routing/graph"
	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
	"github.com/EmediongPeter/tiwi-routing-core/routing/registry"
)

var ocLog zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	ocLog = zerolog.New(out).With().Timestamp().Str("component", "onchain").Logger()
}

// Function selectors for UniswapV2-compatible contracts.
var (
	selGetReserves = []byte{0x09, 0x02, 0xf1, 0xac} // getReserves()
	selGetPair     = []byte{0xe6, 0xa4, 0x39, 0x05} // getPair(address,address)
)

// Factory describes one v2 factory contract the reader may query for pairs.
type Factory struct {
	Chain   models.ChainID
	DEX     string
	Address string
	FeeBps  uint32
}

// EVMReader reads pair addresses and reserves straight from EVM nodes. It is
// the ground truth for reserves; it cannot price pools in USD, so edges it
// discovers enter the graph with zero liquidity and stay cold until an
// indexer source prices them.
type EVMReader struct {
	clients   map[models.ChainID]*ethclient.Client
	factories map[models.ChainID][]Factory
	reg       *registry.Registry
}

// NewEVMReader wires the reader over dialed eth clients, one per chain.
func NewEVMReader(clients map[models.ChainID]*ethclient.Client, factories []Factory, reg *registry.Registry) *EVMReader {
	byChain := map[models.ChainID][]Factory{}
	for _, f := range factories {
		byChain[f.Chain] = append(byChain[f.Chain], f)
	}
	return &EVMReader{clients: clients, factories: byChain, reg: reg}
}

func (r *EVMReader) Name() string { return "evm-onchain" }

// Close releases all RPC connections.
func (r *EVMReader) Close() {
	for _, c := range r.clients {
		c.Close()
	}
}

func (r *EVMReader) client(chain models.ChainID) (*ethclient.Client, error) {
	c, ok := r.clients[chain]
	if !ok {
		return nil, fmt.Errorf("no RPC client for chain %d", chain)
	}
	return c, nil
}

// FetchPairs is a no-op: factories cannot be enumerated cheaply over RPC.
// Discovery comes from the indexer sources; this reader refreshes and does
// targeted pair lookups.
func (r *EVMReader) FetchPairs(ctx context.Context, chain models.ChainID, minLiquidityUSD decimal.Decimal) ([]graph.PoolEdge, error) {
	return nil, nil
}

// FetchPair asks every configured factory on the chain for the pair contract
// and reads its reserves.
func (r *EVMReader) FetchPair(ctx context.Context, chain models.ChainID, tokenA, tokenB models.TokenRef) ([]graph.PoolEdge, error) {
	if _, err := r.client(chain); err != nil {
		return nil, nil
	}
	addrA, ok := r.erc20Address(tokenA)
	if !ok {
		return nil, nil
	}
	addrB, ok := r.erc20Address(tokenB)
	if !ok {
		return nil, nil
	}
	refA := models.NewTokenRef(chain, models.KindEVM, addrA)
	refB := models.NewTokenRef(chain, models.KindEVM, addrB)
	// getReserves reports contract token0/token1 order, which is the sorted
	// token order; sort the refs so the reserves line up without a swap.
	if refA.Address > refB.Address {
		refA, refB = refB, refA
	}

	var out []graph.PoolEdge
	for _, f := range r.factories[chain] {
		pairAddr, err := r.GetFactoryPair(ctx, chain, f.Address, tokenA, tokenB)
		if err != nil {
			ocLog.Debug().Err(err).Str("dex", f.DEX).Msg("Factory pair lookup failed")
			continue
		}
		reading, err := r.GetPairReserves(ctx, chain, pairAddr)
		if err != nil {
			ocLog.Debug().Err(err).Str("pair", pairAddr).Msg("Reserve read failed")
			continue
		}
		edge := graph.PoolEdge{
			ID:          PoolID(chain, f.DEX, pairAddr),
			Chain:       chain,
			TokenA:      refA,
			TokenB:      refB,
			DEX:         f.DEX,
			Factory:     f.Address,
			PairAddress: pairAddr,
			Reserve0:    reading.Reserve0,
			Reserve1:    reading.Reserve1,
			FeeBps:      f.FeeBps,
			LastUpdated: reading.UpdatedAt,
		}
		if err := edge.Validate(); err != nil {
			continue
		}
		out = append(out, edge)
	}
	return out, nil
}

// FetchReserves reads getReserves() on each pair contract directly.
func (r *EVMReader) FetchReserves(ctx context.Context, poolIDs []string) (map[string]graph.ReserveReading, error) {
	out := make(map[string]graph.ReserveReading, len(poolIDs))
	for _, id := range poolIDs {
		chain, _, pairAddr, err := ParsePoolID(id)
		if err != nil {
			continue
		}
		if _, err := r.client(chain); err != nil {
			continue
		}
		reading, err := r.GetPairReserves(ctx, chain, pairAddr)
		if err != nil {
			ocLog.Debug().Err(err).Str("pair", pairAddr).Msg("Reserve read failed")
			continue
		}
		out[id] = reading
	}
	return out, nil
}

// GetFactoryPair calls getPair(tokenA, tokenB) on a factory. The zero address
// means the factory has no pool for the pair.
func (r *EVMReader) GetFactoryPair(ctx context.Context, chain models.ChainID, factory string, tokenA, tokenB models.TokenRef) (string, error) {
	c, err := r.client(chain)
	if err != nil {
		return "", err
	}
	addrA, ok := r.erc20Address(tokenA)
	if !ok {
		return "", fmt.Errorf("token %s has no ERC-20 form", tokenA)
	}
	addrB, ok := r.erc20Address(tokenB)
	if !ok {
		return "", fmt.Errorf("token %s has no ERC-20 form", tokenB)
	}

	data := make([]byte, 0, 4+64)
	data = append(data, selGetPair...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(addrA).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(addrB).Bytes(), 32)...)

	to := common.HexToAddress(factory)
	ret, err := c.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return "", fmt.Errorf("getPair call on %s: %w", factory, err)
	}
	if len(ret) < 32 {
		return "", fmt.Errorf("getPair returned %d bytes", len(ret))
	}
	pair := common.BytesToAddress(ret[12:32])
	if pair == (common.Address{}) {
		return "", fmt.Errorf("factory %s has no pair for %s/%s", factory, tokenA, tokenB)
	}
	return pair.Hex(), nil
}

// GetPairReserves calls getReserves() on a pair contract. Returns reserve0
// and reserve1 in the contract's token0/token1 order, which matches the
// canonical edge orientation.
func (r *EVMReader) GetPairReserves(ctx context.Context, chain models.ChainID, pairAddress string) (graph.ReserveReading, error) {
	c, err := r.client(chain)
	if err != nil {
		return graph.ReserveReading{}, err
	}
	to := common.HexToAddress(pairAddress)
	ret, err := c.CallContract(ctx, ethereum.CallMsg{To: &to, Data: selGetReserves}, nil)
	if err != nil {
		return graph.ReserveReading{}, fmt.Errorf("getReserves call on %s: %w", pairAddress, err)
	}
	if len(ret) < 96 {
		return graph.ReserveReading{}, fmt.Errorf("getReserves returned %d bytes", len(ret))
	}
	return graph.ReserveReading{
		Reserve0:  new(big.Int).SetBytes(ret[0:32]),
		Reserve1:  new(big.Int).SetBytes(ret[32:64]),
		UpdatedAt: time.Now(),
	}, nil
}

// erc20Address resolves a ref to a contract address, substituting the wrapped
// native for the native sentinel.
func (r *EVMReader) erc20Address(ref models.TokenRef) (string, bool) {
	if ref.IsNative() {
		w, ok := r.reg.WrappedNative(ref.Chain)
		if !ok {
			return "", false
		}
		return w.Address, true
	}
	return ref.Address, true
}
