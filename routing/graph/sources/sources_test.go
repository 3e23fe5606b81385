package sources_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/EmediongPeter/tiwi-routing-core/routing/fetch"
	"github.com/EmediongPeter/tiwi-routing-core/routing/graph/sources"
	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
	"github.com/EmediongPeter/tiwi-routing-core/routing/registry"
)

// tokLo sorts before tokHi, so every canonical edge holds tokLo as TokenA.
const (
	tokLo = "0xaaaa000000000000000000000000000000000001"
	tokHi = "0xbbbb000000000000000000000000000000000002"
)

func sourcesRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(
		[]registry.Chain{
			{
				ID: 1, Name: "Ethereum", Kind: models.KindEVM,
				NativeSymbol: "ETH", NativeDecimals: 18,
				ProviderIDs: map[string]string{"dexscreener": "ethereum"},
			},
		},
		[]registry.Token{
			{Ref: models.TokenRef{Chain: 1, Address: tokLo}, Symbol: "AAA", Decimals: 18, Category: models.CategoryStable},
			{Ref: models.TokenRef{Chain: 1, Address: tokHi}, Symbol: "BBB", Decimals: 18, Category: models.CategoryBluechip},
		},
		nil)
	assert.NoError(t, err)
	return reg
}

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

// dsPayload is one DexScreener pair whose base token sorts AFTER its quote
// token, the order that used to flip reserves on refresh.
const dsPayload = `{
	"chainId": "ethereum",
	"dexId": "uniswap-v2",
	"pairAddress": "0xPool1",
	"baseToken": {"address": "` + tokHi + `", "symbol": "BBB"},
	"quoteToken": {"address": "` + tokLo + `", "symbol": "AAA"},
	"priceUsd": "1.0",
	"liquidity": {"usd": 500000, "base": 100, "quote": 200}
}`

func dexScreenerServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/token-pairs/v1/ethereum/"):
			fmt.Fprintf(w, "[%s]", dsPayload)
		case strings.HasPrefix(r.URL.Path, "/latest/dex/pairs/ethereum/"):
			fmt.Fprintf(w, `{"pairs":[%s]}`, dsPayload)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestDexScreenerEdgesAreCanonical(t *testing.T) {
	srv := dexScreenerServer(t)
	defer srv.Close()
	client, err := fetch.NewClient(srv.URL)
	assert.NoError(t, err)
	defer client.Close()

	ds := sources.NewDexScreener(client, sourcesRegistry(t))
	edges, err := ds.FetchPairs(context.Background(), 1, decimal.NewFromInt(1000))
	assert.NoError(t, err)
	assert.Equal(t, 1, len(edges))

	// Base/quote arrived reversed; the edge still holds the lower address as
	// TokenA with the quote-side reserve.
	assert.Equal(t, tokLo, edges[0].TokenA.Address)
	assert.Equal(t, tokHi, edges[0].TokenB.Address)
	assert.Equal(t, e18(200).String(), edges[0].Reserve0.String())
	assert.Equal(t, e18(100).String(), edges[0].Reserve1.String())
}

func TestDexScreenerReadingsMatchEdgeOrientation(t *testing.T) {
	srv := dexScreenerServer(t)
	defer srv.Close()
	client, err := fetch.NewClient(srv.URL)
	assert.NoError(t, err)
	defer client.Close()

	ds := sources.NewDexScreener(client, sourcesRegistry(t))
	id := sources.PoolID(1, "uniswap-v2", "0xPool1")
	readings, err := ds.FetchReserves(context.Background(), []string{id})
	assert.NoError(t, err)

	// Readings are canonical like the stored edge: Reserve0 belongs to the
	// lower token address even though DexScreener reports it as the quote.
	reading, ok := readings[id]
	assert.True(t, ok)
	assert.Equal(t, e18(200).String(), reading.Reserve0.String())
	assert.Equal(t, e18(100).String(), reading.Reserve1.String())
}

// sgPayload follows The Graph's v2 schema, where token0/token1 are already in
// sorted contract order.
const sgPayload = `{"data": {"pairs": [{
	"id": "0xpool2",
	"token0": {"id": "` + tokLo + `", "symbol": "AAA", "decimals": "18"},
	"token1": {"id": "` + tokHi + `", "symbol": "BBB", "decimals": "18"},
	"reserve0": "300",
	"reserve1": "400",
	"reserveUSD": "600000"
}]}}`

func TestSubgraphReadingsMatchEdgeOrientation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, sgPayload)
	}))
	defer srv.Close()
	client, err := fetch.NewClient(srv.URL)
	assert.NoError(t, err)
	defer client.Close()

	sg := sources.NewSubgraph(client, 1, "uniswap-v2")
	edges, err := sg.FetchPairs(context.Background(), 1, decimal.NewFromInt(1000))
	assert.NoError(t, err)
	assert.Equal(t, 1, len(edges))
	assert.Equal(t, tokLo, edges[0].TokenA.Address)
	assert.Equal(t, e18(300).String(), edges[0].Reserve0.String())
	assert.Equal(t, e18(400).String(), edges[0].Reserve1.String())

	readings, err := sg.FetchReserves(context.Background(), []string{edges[0].ID})
	assert.NoError(t, err)
	reading, ok := readings[edges[0].ID]
	assert.True(t, ok)
	assert.Equal(t, e18(300).String(), reading.Reserve0.String())
	assert.Equal(t, e18(400).String(), reading.Reserve1.String())
}

// evmRPCServer fakes the two eth_call shapes the reader issues: getPair on
// the factory and getReserves on the pair.
func evmRPCServer(t *testing.T, pairAddr string, reserve0, reserve1 *big.Int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage   `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Method != "eth_call" || len(req.Params) == 0 {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}

		var call struct {
			Data string `json:"data"`
		}
		if err := json.Unmarshal(req.Params[0], &call); err != nil {
			http.Error(w, "unexpected call args", http.StatusBadRequest)
			return
		}

		var result string
		if strings.HasPrefix(call.Data, "0xe6a43905") { // getPair
			result = "0x" + strings.Repeat("0", 24) + strings.TrimPrefix(pairAddr, "0x")
		} else { // getReserves
			buf := make([]byte, 96)
			reserve0.FillBytes(buf[0:32])
			reserve1.FillBytes(buf[32:64])
			result = "0x" + hex.EncodeToString(buf)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":"%s"}`, req.ID, result)
	}))
}

func TestEVMReaderFetchPairUsesContractOrder(t *testing.T) {
	const pairAddr = "0x00000000000000000000000000000000000000cc"
	srv := evmRPCServer(t, pairAddr, big.NewInt(1000), big.NewInt(2000))
	defer srv.Close()

	client, err := ethclient.Dial(srv.URL)
	assert.NoError(t, err)
	defer client.Close()

	reader := sources.NewEVMReader(
		map[models.ChainID]*ethclient.Client{1: client},
		[]sources.Factory{{Chain: 1, DEX: "uniswap-v2", Address: "0x00000000000000000000000000000000000000ff", FeeBps: 30}},
		sourcesRegistry(t))

	// The caller asks in reversed order; getReserves still answers in the
	// contract's sorted token0/token1 order.
	edges, err := reader.FetchPair(context.Background(), 1,
		models.TokenRef{Chain: 1, Address: tokHi},
		models.TokenRef{Chain: 1, Address: tokLo})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(edges))
	assert.Equal(t, tokLo, edges[0].TokenA.Address)
	assert.Equal(t, tokHi, edges[0].TokenB.Address)
	assert.Equal(t, "1000", edges[0].Reserve0.String())
	assert.Equal(t, "2000", edges[0].Reserve1.String())
}
