package registry_test

import (
	"testing"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/zeebo/assert"

	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
	"github.com/EmediongPeter/tiwi-routing-core/routing/registry"
)

const (
	weth    = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	usdc    = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	wsol    = "So11111111111111111111111111111111111111112"
	solUSDC = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(
		[]registry.Chain{
			{
				ID: 1, Name: "Ethereum", Kind: models.KindEVM,
				NativeSymbol: "ETH", NativeDecimals: 18,
				WrappedNative: weth,
				ProviderIDs:   map[string]string{"lifi": "1", "relay": "1", "dexscreener": "ethereum"},
			},
			{
				ID: 2, Name: "Solana", Kind: models.KindSolana,
				NativeSymbol: "SOL", NativeDecimals: 9,
				WrappedNative: wsol,
				ProviderIDs:   map[string]string{"jupiter": "solana", "dexscreener": "solana"},
			},
			{
				ID: 3, Name: "Osmosis", Kind: models.KindCosmos,
				NativeSymbol: "OSMO", NativeDecimals: 6,
				Bech32Prefix: "osmo",
			},
		},
		[]registry.Token{
			{Ref: models.TokenRef{Chain: 1, Address: usdc}, Symbol: "USDC", Decimals: 6, Category: models.CategoryStable},
			{Ref: models.TokenRef{Chain: 1, Address: weth}, Symbol: "WETH", Decimals: 18, Category: models.CategoryNative},
			{Ref: models.TokenRef{Chain: 2, Address: solUSDC}, Symbol: "USDC", Decimals: 6, Category: models.CategoryStable},
		},
		[]registry.BridgeToken{
			{
				Symbol:   "USDC",
				Source:   models.TokenRef{Chain: 1, Address: usdc},
				Dest:     models.TokenRef{Chain: 2, Address: solUSDC},
				Priority: 0,
			},
		},
	)
	assert.NoError(t, err)
	return reg
}

func TestProviderChainRoundTrip(t *testing.T) {
	reg := newTestRegistry(t)

	pid, ok := reg.ProviderChainID(1, "lifi")
	assert.True(t, ok)
	assert.Equal(t, "1", pid)

	chain, ok := reg.ChainByProviderID("dexscreener", "Ethereum")
	assert.True(t, ok)
	assert.Equal(t, models.ChainID(1), chain.ID)

	// A missing provider mapping is a deliberate absence.
	_, ok = reg.ProviderChainID(3, "lifi")
	assert.False(t, ok)
	_, ok = reg.ChainByProviderID("lifi", "osmosis-1")
	assert.False(t, ok)
}

func TestDuplicateProviderIDRejected(t *testing.T) {
	_, err := registry.New(
		[]registry.Chain{
			{ID: 1, Name: "A", Kind: models.KindEVM, NativeSymbol: "ETH", ProviderIDs: map[string]string{"lifi": "1"}},
			{ID: 2, Name: "B", Kind: models.KindEVM, NativeSymbol: "ETH", ProviderIDs: map[string]string{"lifi": "1"}},
		}, nil, nil)
	assert.Error(t, err)
}

func TestKnownTokenNormalizes(t *testing.T) {
	reg := newTestRegistry(t)

	// Mixed-case lookups must hit the lowercased entry.
	tok, ok := reg.KnownToken(models.TokenRef{Chain: 1, Address: "0xA0B86991C6218B36C1D19D4A2E9EB0CE3606EB48"})
	assert.True(t, ok)
	assert.Equal(t, "USDC", tok.Symbol)
	assert.Equal(t, 6, tok.Decimals)

	// Native sentinel is always registered.
	native, ok := reg.KnownToken(models.TokenRef{Chain: 1, Address: models.NativeAddress})
	assert.True(t, ok)
	assert.Equal(t, "ETH", native.Symbol)
	assert.Equal(t, models.CategoryNative, native.Category)
}

func TestWrappedNative(t *testing.T) {
	reg := newTestRegistry(t)

	w, ok := reg.WrappedNative(1)
	assert.True(t, ok)
	assert.Equal(t, weth, w.Address)
	assert.True(t, reg.IsWrappedNative(w))
	assert.False(t, reg.IsWrappedNative(models.TokenRef{Chain: 1, Address: usdc}))

	// Cosmos chain with no wrapped form.
	_, ok = reg.WrappedNative(3)
	assert.False(t, ok)
}

func TestProviderTokenAddressTransforms(t *testing.T) {
	reg := newTestRegistry(t)
	native := models.TokenRef{Chain: 1, Address: models.NativeAddress}

	addr, ok := reg.ProviderTokenAddress(native, "lifi")
	assert.True(t, ok)
	assert.Equal(t, "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee", addr)

	addr, ok = reg.ProviderTokenAddress(native, "dexscreener")
	assert.True(t, ok)
	assert.Equal(t, weth, addr)

	solNative := models.TokenRef{Chain: 2, Address: models.NativeAddress}
	addr, ok = reg.ProviderTokenAddress(solNative, "jupiter")
	assert.True(t, ok)
	assert.Equal(t, wsol, addr)

	// ERC-20s pass through unchanged.
	addr, ok = reg.ProviderTokenAddress(models.TokenRef{Chain: 1, Address: usdc}, "lifi")
	assert.True(t, ok)
	assert.Equal(t, usdc, addr)

	// Chains the provider does not serve report unsupported.
	_, ok = reg.ProviderTokenAddress(models.TokenRef{Chain: 3, Address: "uosmo"}, "lifi")
	assert.False(t, ok)
}

func TestBridgeTokensOrderedByPriority(t *testing.T) {
	reg, err := registry.New(
		[]registry.Chain{
			{ID: 1, Name: "Ethereum", Kind: models.KindEVM, NativeSymbol: "ETH"},
			{ID: 2, Name: "Solana", Kind: models.KindSolana, NativeSymbol: "SOL"},
		},
		nil,
		[]registry.BridgeToken{
			{Symbol: "WETH", Source: models.TokenRef{Chain: 1, Address: weth}, Dest: models.TokenRef{Chain: 2, Address: wsol}, Priority: 2},
			{Symbol: "USDC", Source: models.TokenRef{Chain: 1, Address: usdc}, Dest: models.TokenRef{Chain: 2, Address: solUSDC}, Priority: 1},
		})
	assert.NoError(t, err)

	bts := reg.BridgeTokens(1, 2)
	assert.Equal(t, 2, len(bts))
	assert.Equal(t, "USDC", bts[0].Symbol)
	assert.Equal(t, "WETH", bts[1].Symbol)

	// Direction matters.
	assert.Equal(t, 0, len(reg.BridgeTokens(2, 1)))
}

func TestValidateRecipient(t *testing.T) {
	reg := newTestRegistry(t)

	assert.NoError(t, reg.ValidateRecipient(1, "0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045"))
	assert.Error(t, reg.ValidateRecipient(1, "not-an-address"))
	assert.Error(t, reg.ValidateRecipient(1, ""))

	payload, err := bech32.ConvertBits(make([]byte, 20), 8, 5, true)
	assert.NoError(t, err)
	osmoAddr, err := bech32.Encode("osmo", payload)
	assert.NoError(t, err)
	cosmosAddr, err := bech32.Encode("cosmos", payload)
	assert.NoError(t, err)

	assert.NoError(t, reg.ValidateRecipient(3, osmoAddr))
	// Wrong prefix for the chain.
	assert.Error(t, reg.ValidateRecipient(3, cosmosAddr))
	assert.Error(t, reg.ValidateRecipient(3, "osmo1notbech32"))
}

func TestTokensOnChainSorted(t *testing.T) {
	reg := newTestRegistry(t)
	toks := reg.TokensOnChain(1)
	// usdc, weth, plus the implicit native sentinel.
	assert.Equal(t, 3, len(toks))
	for i := 1; i < len(toks); i++ {
		assert.True(t, toks[i-1].Ref.Address < toks[i].Ref.Address)
	}
}
