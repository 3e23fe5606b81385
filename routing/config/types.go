// Package config loads the two configuration surfaces: the registry file
// (chains, tokens, bridge tokens) and the router/RPC tuning file. Files are
// TOML or JSON, decided by extension.
package config

import (
	"fmt"
	"time"
)

// RegistryFile is the on-disk registry: chain identity, the token watchlist,
// and the bridge-token table.
type RegistryFile struct {
	Chains       []ChainConfig       `toml:"chains" json:"chains"`
	Tokens       []TokenConfig       `toml:"tokens" json:"tokens"`
	BridgeTokens []BridgeTokenConfig `toml:"bridge_tokens" json:"bridge_tokens"`
}

// ChainConfig declares one chain.
type ChainConfig struct {
	ID             int64             `toml:"id" json:"id"`
	Name           string            `toml:"name" json:"name"`
	Kind           string            `toml:"kind" json:"kind"`
	NativeSymbol   string            `toml:"native_symbol" json:"native_symbol"`
	NativeDecimals int               `toml:"native_decimals" json:"native_decimals"`
	WrappedNative  string            `toml:"wrapped_native" json:"wrapped_native"`
	Bech32Prefix   string            `toml:"bech32_prefix" json:"bech32_prefix"`
	Metadata       map[string]string `toml:"metadata" json:"metadata"`
	// Providers maps provider name to that provider's chain identifier.
	Providers map[string]string `toml:"providers" json:"providers"`
	// RPCURL is the EVM JSON-RPC endpoint for on-chain reserve reads.
	RPCURL string `toml:"rpc_url" json:"rpc_url"`
	// SubgraphURL points at a v2-style DEX subgraph for pool discovery.
	SubgraphURL string `toml:"subgraph_url" json:"subgraph_url"`
	// SubgraphDEX names the DEX the subgraph indexes.
	SubgraphDEX string          `toml:"subgraph_dex" json:"subgraph_dex"`
	Factories   []FactoryConfig `toml:"factories" json:"factories"`
}

// FactoryConfig declares one v2 factory contract for on-chain pair lookups.
type FactoryConfig struct {
	DEX     string `toml:"dex" json:"dex"`
	Address string `toml:"address" json:"address"`
	FeeBps  uint32 `toml:"fee_bps" json:"fee_bps"`
}

// TokenConfig declares one watchlist token.
type TokenConfig struct {
	Chain    int64  `toml:"chain" json:"chain"`
	Address  string `toml:"address" json:"address"`
	Symbol   string `toml:"symbol" json:"symbol"`
	Decimals int    `toml:"decimals" json:"decimals"`
	Category string `toml:"category" json:"category"`
}

// BridgeTokenConfig declares one transit asset for a chain pair.
type BridgeTokenConfig struct {
	Symbol        string `toml:"symbol" json:"symbol"`
	SourceChain   int64  `toml:"source_chain" json:"source_chain"`
	SourceAddress string `toml:"source_address" json:"source_address"`
	DestChain     int64  `toml:"dest_chain" json:"dest_chain"`
	DestAddress   string `toml:"dest_address" json:"dest_address"`
	Priority      int    `toml:"priority" json:"priority"`
}

// AdapterConfig tunes one external provider.
type AdapterConfig struct {
	Enabled    bool     `toml:"enabled" json:"enabled"`
	BaseURL    string   `toml:"base_url" json:"base_url"`
	BackupURLs []string `toml:"backup_urls" json:"backup_urls"`
	APIKey     string   `toml:"api_key" json:"api_key"`
	Priority   int      `toml:"priority" json:"priority"`
}

// RouterConfig is the routing engine's tuning surface.
type RouterConfig struct {
	// Pathfinder.
	MaxHops          int     `toml:"max_hops" json:"max_hops"`
	TopKPaths        int     `toml:"top_k_paths" json:"top_k_paths"`
	MaxDrainBps      uint32  `toml:"max_drain_bps" json:"max_drain_bps"`
	StaleAfterMin    int     `toml:"stale_after_minutes" json:"stale_after_minutes"`
	GasPerHopUSD     float64 `toml:"gas_per_hop_usd" json:"gas_per_hop_usd"`
	AlternativeFloor float64 `toml:"alternative_floor" json:"alternative_floor"`

	// Graph tiers.
	HotMinLiquidityUSD  float64 `toml:"hot_min_liquidity_usd" json:"hot_min_liquidity_usd"`
	WarmMinLiquidityUSD float64 `toml:"warm_min_liquidity_usd" json:"warm_min_liquidity_usd"`
	EvictThresholdUSD   float64 `toml:"evict_threshold_usd" json:"evict_threshold_usd"`
	HotRefreshSeconds   int     `toml:"hot_refresh_seconds" json:"hot_refresh_seconds"`
	WarmRefreshSeconds  int     `toml:"warm_refresh_seconds" json:"warm_refresh_seconds"`
	ColdTTLSeconds      int     `toml:"cold_ttl_seconds" json:"cold_ttl_seconds"`

	// Aggregation.
	MaxCandidates        int     `toml:"max_candidates" json:"max_candidates"`
	DefaultDeadlineMs    int     `toml:"default_deadline_ms" json:"default_deadline_ms"`
	MaxFanoutDeadlineMs  int     `toml:"max_fanout_deadline_ms" json:"max_fanout_deadline_ms"`
	MinDeadlineMs        int     `toml:"min_deadline_ms" json:"min_deadline_ms"`
	ScoreDropFraction    float64 `toml:"score_drop_fraction" json:"score_drop_fraction"`
	QuoteTTLSeconds      int     `toml:"quote_ttl_seconds" json:"quote_ttl_seconds"`
	DefaultSlippageBps   uint32  `toml:"default_slippage_bps" json:"default_slippage_bps"`
	PerSourceConcurrency int64   `toml:"per_source_concurrency" json:"per_source_concurrency"`

	// Cross-chain composition.
	CrossChainLegSlippageDivisor uint32 `toml:"cross_chain_leg_slippage_divisor" json:"cross_chain_leg_slippage_divisor"`
	MaxHopsPerLeg                int    `toml:"max_hops_per_leg" json:"max_hops_per_leg"`

	// Providers.
	LiFi        AdapterConfig `toml:"lifi" json:"lifi"`
	Jupiter     AdapterConfig `toml:"jupiter" json:"jupiter"`
	Relay       AdapterConfig `toml:"relay" json:"relay"`
	DexScreener AdapterConfig `toml:"dexscreener" json:"dexscreener"`
}

// Normalize fills defaults in place.
func (c *RouterConfig) Normalize() {
	setInt := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	setInt(&c.MaxHops, 3)
	setInt(&c.TopKPaths, 3)
	if c.MaxDrainBps == 0 {
		c.MaxDrainBps = 3000
	}
	setInt(&c.StaleAfterMin, 30)
	if c.GasPerHopUSD <= 0 {
		c.GasPerHopUSD = 0.5
	}
	if c.AlternativeFloor <= 0 || c.AlternativeFloor > 1 {
		c.AlternativeFloor = 0.95
	}

	if c.HotMinLiquidityUSD <= 0 {
		c.HotMinLiquidityUSD = 1_000_000
	}
	if c.WarmMinLiquidityUSD <= 0 {
		c.WarmMinLiquidityUSD = 100_000
	}
	if c.EvictThresholdUSD <= 0 {
		c.EvictThresholdUSD = 10_000
	}
	setInt(&c.HotRefreshSeconds, 300)
	setInt(&c.WarmRefreshSeconds, 900)
	setInt(&c.ColdTTLSeconds, 300)

	setInt(&c.MaxCandidates, 3)
	setInt(&c.DefaultDeadlineMs, 3000)
	setInt(&c.MaxFanoutDeadlineMs, 5000)
	setInt(&c.MinDeadlineMs, 100)
	if c.ScoreDropFraction <= 0 {
		c.ScoreDropFraction = 0.05
	}
	setInt(&c.QuoteTTLSeconds, 45)
	if c.DefaultSlippageBps == 0 {
		c.DefaultSlippageBps = 50
	}
	if c.PerSourceConcurrency <= 0 {
		c.PerSourceConcurrency = 32
	}

	if c.CrossChainLegSlippageDivisor == 0 {
		c.CrossChainLegSlippageDivisor = 3
	}
	setInt(&c.MaxHopsPerLeg, 3)

	if c.LiFi.BaseURL == "" {
		c.LiFi.BaseURL = "https://li.quest"
	}
	if c.Jupiter.BaseURL == "" {
		c.Jupiter.BaseURL = "https://quote-api.jup.ag"
	}
	if c.Relay.BaseURL == "" {
		c.Relay.BaseURL = "https://api.relay.link"
	}
	if c.DexScreener.BaseURL == "" {
		c.DexScreener.BaseURL = "https://api.dexscreener.com"
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *RouterConfig) Validate() error {
	if c.MaxHops > 4 {
		return fmt.Errorf("max_hops %d above hard ceiling 4", c.MaxHops)
	}
	if c.MaxDrainBps > 10000 {
		return fmt.Errorf("max_drain_bps %d above 10000", c.MaxDrainBps)
	}
	if c.DefaultSlippageBps > 10000 {
		return fmt.Errorf("default_slippage_bps %d above 10000", c.DefaultSlippageBps)
	}
	if c.WarmMinLiquidityUSD > c.HotMinLiquidityUSD {
		return fmt.Errorf("warm_min_liquidity_usd above hot_min_liquidity_usd")
	}
	if c.EvictThresholdUSD > c.WarmMinLiquidityUSD {
		return fmt.Errorf("evict_threshold_usd above warm_min_liquidity_usd")
	}
	if c.MinDeadlineMs > c.MaxFanoutDeadlineMs {
		return fmt.Errorf("min_deadline_ms above max_fanout_deadline_ms")
	}
	return nil
}

// RPCConfig is the server's tuning surface.
type RPCConfig struct {
	Address        string   `toml:"address" json:"address"`
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins"`
	EnableMetrics  bool     `toml:"enable_metrics" json:"enable_metrics"`
	RatePerMinute  int      `toml:"rate_per_minute" json:"rate_per_minute"`
	Burst          int      `toml:"burst" json:"burst"`
	TLSCertFile    string   `toml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile     string   `toml:"tls_key_file" json:"tls_key_file"`

	// OTel toggles; endpoint settings live in the rpc package's OTelConfig.
	EnableTracing bool   `toml:"enable_tracing" json:"enable_tracing"`
	OTLPEndpoint  string `toml:"otlp_endpoint" json:"otlp_endpoint"`
	UsePrometheus bool   `toml:"use_prometheus" json:"use_prometheus"`
}

// Normalize fills server defaults in place.
func (c *RPCConfig) Normalize() {
	if c.Address == "" {
		c.Address = "localhost:8080"
	}
	if c.RatePerMinute <= 0 {
		c.RatePerMinute = 100
	}
	if c.Burst <= 0 {
		c.Burst = 200
	}
}

// Durations derived from the integer fields.

func (c *RouterConfig) StaleAfter() time.Duration { return time.Duration(c.StaleAfterMin) * time.Minute }
func (c *RouterConfig) HotRefresh() time.Duration {
	return time.Duration(c.HotRefreshSeconds) * time.Second
}
func (c *RouterConfig) WarmRefresh() time.Duration {
	return time.Duration(c.WarmRefreshSeconds) * time.Second
}
func (c *RouterConfig) ColdTTL() time.Duration { return time.Duration(c.ColdTTLSeconds) * time.Second }
func (c *RouterConfig) DefaultDeadline() time.Duration {
	return time.Duration(c.DefaultDeadlineMs) * time.Millisecond
}
func (c *RouterConfig) MaxFanoutDeadline() time.Duration {
	return time.Duration(c.MaxFanoutDeadlineMs) * time.Millisecond
}
func (c *RouterConfig) MinDeadline() time.Duration {
	return time.Duration(c.MinDeadlineMs) * time.Millisecond
}
func (c *RouterConfig) QuoteTTL() time.Duration {
	return time.Duration(c.QuoteTTLSeconds) * time.Second
}
