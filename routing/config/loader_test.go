package config_test

import (
	"testing"

	"github.com/zeebo/assert"

	"github.com/EmediongPeter/tiwi-routing-core/routing/config"
	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
)

// memReader serves config files from a map, keyed by path.
type memReader map[string]string

func (m memReader) ReadFile(path string) ([]byte, error) {
	data, ok := m[path]
	if !ok {
		return nil, &pathError{path: path}
	}
	return []byte(data), nil
}

type pathError struct{ path string }

func (e *pathError) Error() string { return "no such file: " + e.path }

const registryTOML = `
[[chains]]
id = 1
name = "Ethereum"
kind = "evm"
native_symbol = "ETH"
native_decimals = 18
wrapped_native = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
rpc_url = "https://eth.llamarpc.com"
subgraph_url = "https://api.thegraph.com/subgraphs/name/uniswap/uniswap-v2"
subgraph_dex = "uniswap-v2"

[chains.providers]
lifi = "ETH"
dexscreener = "ethereum"

[[chains.factories]]
dex = "uniswap-v2"
address = "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"
fee_bps = 30

[[tokens]]
chain = 1
address = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
symbol = "USDC"
decimals = 6
category = "stable"

[[bridge_tokens]]
symbol = "USDC"
source_chain = 1
source_address = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
dest_chain = 8453
dest_address = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
priority = 0
`

const registryJSON = `{
  "chains": [
    {"id": 1, "name": "Ethereum", "kind": "evm", "native_symbol": "ETH", "native_decimals": 18}
  ],
  "tokens": [
    {"chain": 1, "address": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "symbol": "USDC", "decimals": 6, "category": "stable"}
  ]
}`

func TestLoadRegistryFileTOML(t *testing.T) {
	l := config.NewLoader(memReader{"registry.toml": registryTOML})

	rf, err := l.LoadRegistryFile("registry.toml")
	assert.NoError(t, err)
	assert.Equal(t, 1, len(rf.Chains))
	assert.Equal(t, "Ethereum", rf.Chains[0].Name)
	assert.Equal(t, "ETH", rf.Chains[0].Providers["lifi"])
	assert.Equal(t, 1, len(rf.Chains[0].Factories))
	assert.Equal(t, uint32(30), rf.Chains[0].Factories[0].FeeBps)
	assert.Equal(t, 1, len(rf.Tokens))
	assert.Equal(t, 1, len(rf.BridgeTokens))
	assert.Equal(t, int64(8453), rf.BridgeTokens[0].DestChain)
}

func TestLoadRegistryFileJSON(t *testing.T) {
	l := config.NewLoader(memReader{"registry.json": registryJSON})

	rf, err := l.LoadRegistryFile("registry.json")
	assert.NoError(t, err)
	assert.Equal(t, 1, len(rf.Chains))
	assert.Equal(t, int64(1), rf.Chains[0].ID)
	assert.Equal(t, "USDC", rf.Tokens[0].Symbol)
}

func TestLoadRegistryFileRejectsEmptyAndMissing(t *testing.T) {
	l := config.NewLoader(memReader{
		"empty.toml":  "",
		"broken.toml": "chains = not valid",
	})

	_, err := l.LoadRegistryFile("empty.toml")
	assert.Error(t, err)

	_, err = l.LoadRegistryFile("broken.toml")
	assert.Error(t, err)

	_, err = l.LoadRegistryFile("absent.toml")
	assert.Error(t, err)
}

func TestLoadRouterConfigAppliesDefaults(t *testing.T) {
	l := config.NewLoader(memReader{"router.toml": ""})

	rc, err := l.LoadRouterConfig("router.toml")
	assert.NoError(t, err)
	assert.Equal(t, 3, rc.MaxHops)
	assert.Equal(t, 3, rc.TopKPaths)
	assert.Equal(t, uint32(3000), rc.MaxDrainBps)
	assert.Equal(t, float64(0.95), rc.AlternativeFloor)
	assert.Equal(t, float64(1_000_000), rc.HotMinLiquidityUSD)
	assert.Equal(t, float64(100_000), rc.WarmMinLiquidityUSD)
	assert.Equal(t, float64(10_000), rc.EvictThresholdUSD)
	assert.Equal(t, 3000, rc.DefaultDeadlineMs)
	assert.Equal(t, 5000, rc.MaxFanoutDeadlineMs)
	assert.Equal(t, 100, rc.MinDeadlineMs)
	assert.Equal(t, uint32(50), rc.DefaultSlippageBps)
	assert.Equal(t, uint32(3), rc.CrossChainLegSlippageDivisor)
	assert.Equal(t, "https://li.quest", rc.LiFi.BaseURL)
	assert.Equal(t, "https://quote-api.jup.ag", rc.Jupiter.BaseURL)
	assert.Equal(t, "https://api.relay.link", rc.Relay.BaseURL)
	assert.Equal(t, "https://api.dexscreener.com", rc.DexScreener.BaseURL)
}

func TestLoadRouterConfigKeepsExplicitValues(t *testing.T) {
	l := config.NewLoader(memReader{"router.toml": `
max_hops = 2
hot_min_liquidity_usd = 5000000.0
default_deadline_ms = 1500

[lifi]
enabled = true
base_url = "https://staging.li.quest"
api_key = "k"
`})

	rc, err := l.LoadRouterConfig("router.toml")
	assert.NoError(t, err)
	assert.Equal(t, 2, rc.MaxHops)
	assert.Equal(t, float64(5_000_000), rc.HotMinLiquidityUSD)
	assert.Equal(t, 1500, rc.DefaultDeadlineMs)
	assert.True(t, rc.LiFi.Enabled)
	assert.Equal(t, "https://staging.li.quest", rc.LiFi.BaseURL)
}

func TestLoadRouterConfigRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"hops above ceiling":   "max_hops = 5",
		"drain above 10000":    "max_drain_bps = 12000",
		"slippage above 10000": "default_slippage_bps = 20000",
		"warm above hot":       "hot_min_liquidity_usd = 100000.0\nwarm_min_liquidity_usd = 200000.0",
		"evict above warm":     "warm_min_liquidity_usd = 50000.0\nevict_threshold_usd = 60000.0",
		"min above max":        "min_deadline_ms = 6000\nmax_fanout_deadline_ms = 5000",
	}
	for name, body := range cases {
		l := config.NewLoader(memReader{"router.toml": body})
		_, err := l.LoadRouterConfig("router.toml")
		if err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadRPCConfigDefaults(t *testing.T) {
	l := config.NewLoader(memReader{"rpc.toml": ""})

	rc, err := l.LoadRPCConfig("rpc.toml")
	assert.NoError(t, err)
	assert.Equal(t, "localhost:8080", rc.Address)
	assert.Equal(t, 100, rc.RatePerMinute)
	assert.Equal(t, 200, rc.Burst)

	l = config.NewLoader(memReader{"rpc.toml": `
address = "0.0.0.0:9090"
enable_metrics = true
allowed_origins = ["https://app.example.com"]
`})
	rc, err = l.LoadRPCConfig("rpc.toml")
	assert.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", rc.Address)
	assert.True(t, rc.EnableMetrics)
	assert.Equal(t, 1, len(rc.AllowedOrigins))
}

func TestBuildRegistryConverts(t *testing.T) {
	l := config.NewLoader(memReader{"registry.toml": registryTOML})
	rf, err := l.LoadRegistryFile("registry.toml")
	assert.NoError(t, err)

	// The bridge token references chain 8453, which must also be declared.
	rf.Chains = append(rf.Chains, config.ChainConfig{
		ID: 8453, Name: "Base", Kind: "evm", NativeSymbol: "ETH", NativeDecimals: 18,
	})

	reg, err := config.BuildRegistry(rf)
	assert.NoError(t, err)

	c, ok := reg.ChainByID(1)
	assert.True(t, ok)
	assert.Equal(t, models.KindEVM, c.Kind)

	// Token addresses are normalized to lowercase for EVM chains.
	tok, ok := reg.KnownToken(models.TokenRef{Chain: 1, Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"})
	assert.True(t, ok)
	assert.Equal(t, models.CategoryStable, tok.Category)

	bts := reg.BridgeTokens(1, 8453)
	assert.Equal(t, 1, len(bts))
	assert.Equal(t, "USDC", bts[0].Symbol)
}

func TestBuildRegistryRejectsUnknownKind(t *testing.T) {
	rf := &config.RegistryFile{Chains: []config.ChainConfig{
		{ID: 5, Name: "Mystery", Kind: "quantum"},
	}}
	_, err := config.BuildRegistry(rf)
	assert.Error(t, err)
}

func TestBuildRegistryUnknownCategoryFallsToAlt(t *testing.T) {
	rf := &config.RegistryFile{
		Chains: []config.ChainConfig{{ID: 1, Name: "Ethereum", Kind: "evm", NativeSymbol: "ETH", NativeDecimals: 18}},
		Tokens: []config.TokenConfig{{Chain: 1, Address: "0xabc1", Symbol: "WAT", Decimals: 18, Category: "exotic"}},
	}
	reg, err := config.BuildRegistry(rf)
	assert.NoError(t, err)

	tok, ok := reg.KnownToken(models.TokenRef{Chain: 1, Address: "0xabc1"})
	assert.True(t, ok)
	assert.Equal(t, models.CategoryAlt, tok.Category)
}
