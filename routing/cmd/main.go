package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/EmediongPeter/tiwi-routing-core/routing/adapters"
	"github.com/EmediongPeter/tiwi-routing-core/routing/adapters/jupiter"
	"github.com/EmediongPeter/tiwi-routing-core/routing/adapters/lifi"
	"github.com/EmediongPeter/tiwi-routing-core/routing/adapters/relay"
	"github.com/EmediongPeter/tiwi-routing-core/routing/aggregate"
	"github.com/EmediongPeter/tiwi-routing-core/routing/config"
	"github.com/EmediongPeter/tiwi-routing-core/routing/crosschain"
	"github.com/EmediongPeter/tiwi-routing-core/routing/fetch"
	"github.com/EmediongPeter/tiwi-routing-core/routing/graph"
	"github.com/EmediongPeter/tiwi-routing-core/routing/graph/sources"
	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
	"github.com/EmediongPeter/tiwi-routing-core/routing/pathfind"
	"github.com/EmediongPeter/tiwi-routing-core/routing/rpc"
	"github.com/EmediongPeter/tiwi-routing-core/routing/service"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Logger()

	// Share the logger with the RPC package
	rpc.SetLogger(log)
}

func main() {
	configRPC := flag.String("config-rpc", "./rpc-config.toml", "config file for the http server")
	configRegistry := flag.String("config-registry", "./registry.toml", "registry file (chains, tokens, bridge tokens)")
	configRouter := flag.String("config-router", "./router-config.toml", "routing engine tuning file")
	registryURL := flag.String("registry-url", "", "optional remote registry source, downloaded over the registry file")
	flag.Parse()

	log.Info().
		Str("rpc_config", *configRPC).
		Str("registry", *configRegistry).
		Str("router_config", *configRouter).
		Msg("Starting Tiwi routing core")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loader := config.NewDefaultLoader()

	rpcCfg, err := loader.LoadRPCConfig(*configRPC)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load rpc config")
	}

	registryPath := *configRegistry
	if *registryURL != "" {
		dst := filepath.Join(os.TempDir(), "tiwi-registry"+filepath.Ext(*configRegistry))
		registryPath, err = config.FetchRegistryFile(ctx, *registryURL, dst)
		if err != nil {
			log.Fatal().Err(err).Str("url", *registryURL).Msg("Failed to download registry")
		}
		log.Info().Str("path", registryPath).Msg("Downloaded remote registry")
	}

	regFile, err := loader.LoadRegistryFile(registryPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load registry file")
	}
	reg, err := config.BuildRegistry(regFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build registry")
	}
	log.Info().Int("chains", len(regFile.Chains)).Int("tokens", len(regFile.Tokens)).Msg("Registry loaded")

	routerCfg, err := loader.LoadRouterConfig(*configRouter)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load router config")
	}

	graphs := graph.NewSet()

	// Pool sources: on-chain readers per configured RPC endpoint, one indexer
	// per subgraph, and the DexScreener watchlist walker.
	var pairSources []graph.PairSource
	var closers []func()

	ethClients := make(map[models.ChainID]*ethclient.Client)
	var factories []sources.Factory
	for _, cc := range regFile.Chains {
		chainID := models.ChainID(cc.ID)
		if cc.RPCURL != "" {
			client, err := ethclient.DialContext(ctx, cc.RPCURL)
			if err != nil {
				log.Error().Err(err).Str("chain", cc.Name).Msg("Failed to dial RPC, continuing without on-chain reads")
			} else {
				ethClients[chainID] = client
			}
		}
		for _, fc := range cc.Factories {
			factories = append(factories, sources.Factory{
				Chain:   chainID,
				DEX:     fc.DEX,
				Address: fc.Address,
				FeeBps:  fc.FeeBps,
			})
		}
		if cc.SubgraphURL != "" {
			client, err := fetch.NewClient(cc.SubgraphURL)
			if err != nil {
				log.Fatal().Err(err).Str("chain", cc.Name).Msg("Invalid subgraph URL")
			}
			pairSources = append(pairSources, sources.NewSubgraph(client, chainID, cc.SubgraphDEX))
			closers = append(closers, client.Close)
			log.Info().Str("chain", cc.Name).Str("dex", cc.SubgraphDEX).Msg("Subgraph source enabled")
		}
	}
	if len(ethClients) > 0 {
		reader := sources.NewEVMReader(ethClients, factories, reg)
		pairSources = append(pairSources, reader)
		closers = append(closers, reader.Close)
		log.Info().Int("chains", len(ethClients)).Msg("On-chain reader enabled")
	}
	if routerCfg.DexScreener.Enabled {
		client, err := newProviderClient(routerCfg.DexScreener, "")
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid DexScreener config")
		}
		pairSources = append(pairSources, sources.NewDexScreener(client, reg))
		closers = append(closers, client.Close)
		log.Info().Msg("DexScreener source enabled")
	}

	builder := graph.NewBuilder(graphs, pairSources, graph.TierConfig{
		HotMinLiquidityUSD:  decimal.NewFromFloat(routerCfg.HotMinLiquidityUSD),
		WarmMinLiquidityUSD: decimal.NewFromFloat(routerCfg.WarmMinLiquidityUSD),
		EvictThresholdUSD:   decimal.NewFromFloat(routerCfg.EvictThresholdUSD),
		HotRefreshInterval:  routerCfg.HotRefresh(),
		WarmRefreshInterval: routerCfg.WarmRefresh(),
		ColdTTL:             routerCfg.ColdTTL(),
	})

	finder := pathfind.NewFinder(reg, pathfind.Config{
		MaxHops:          routerCfg.MaxHops,
		TopK:             routerCfg.TopKPaths,
		MaxDrainBps:      routerCfg.MaxDrainBps,
		StaleAfter:       routerCfg.StaleAfter(),
		GasPerHopUSD:     decimal.NewFromFloat(routerCfg.GasPerHopUSD),
		AlternativeFloor: routerCfg.AlternativeFloor,
	})

	// External quote sources.
	var adps []adapters.Adapter
	var bridges []crosschain.BridgeSource
	quoteTTL := routerCfg.QuoteTTL()

	if routerCfg.LiFi.Enabled {
		client, err := newProviderClient(routerCfg.LiFi, "x-lifi-api-key")
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid LiFi config")
		}
		adps = append(adps, lifi.New(client, reg, routerCfg.LiFi.Priority, quoteTTL))
		closers = append(closers, client.Close)
		log.Info().Msg("LiFi adapter enabled")
	}
	if routerCfg.Jupiter.Enabled {
		client, err := newProviderClient(routerCfg.Jupiter, "x-api-key")
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid Jupiter config")
		}
		adps = append(adps, jupiter.New(client, reg, routerCfg.Jupiter.Priority, quoteTTL))
		closers = append(closers, client.Close)
		log.Info().Msg("Jupiter adapter enabled")
	}
	if routerCfg.Relay.Enabled {
		client, err := newProviderClient(routerCfg.Relay, "x-api-key")
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid Relay config")
		}
		relayAdapter := relay.New(client, reg, routerCfg.Relay.Priority, quoteTTL)
		adps = append(adps, relayAdapter)
		bridges = append(bridges, relayAdapter)
		closers = append(closers, client.Close)
		log.Info().Msg("Relay adapter enabled")
	}

	composer := crosschain.New(crosschain.Config{
		LegSlippageDivisor: routerCfg.CrossChainLegSlippageDivisor,
		MaxHopsPerLeg:      routerCfg.MaxHopsPerLeg,
		QuoteTTL:           quoteTTL,
	}, reg, graphs, finder, bridges)

	agg := aggregate.New(aggregate.Config{
		MaxCandidates:        routerCfg.MaxCandidates,
		MaxFanoutDeadline:    routerCfg.MaxFanoutDeadline(),
		MinDeadline:          routerCfg.MinDeadline(),
		DefaultDeadline:      routerCfg.DefaultDeadline(),
		ScoreDropFraction:    routerCfg.ScoreDropFraction,
		QuoteTTL:             quoteTTL,
		DefaultSlippageBps:   routerCfg.DefaultSlippageBps,
		PerSourceConcurrency: routerCfg.PerSourceConcurrency,
	}, reg, graphs, finder, adps, composer)

	core := service.New(reg, graphs, builder, agg)

	// Background graph maintenance across all registered chains.
	chainIDs := make([]models.ChainID, 0, len(regFile.Chains))
	for _, cc := range regFile.Chains {
		chainIDs = append(chainIDs, models.ChainID(cc.ID))
	}
	go builder.Run(ctx, chainIDs)

	server, err := rpc.NewServer(ctx, buildServerConfig(rpcCfg), core)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		var serveErr error
		if rpcCfg.TLSCertFile != "" && rpcCfg.TLSKeyFile != "" {
			serveErr = server.StartTLS(rpcCfg.TLSCertFile, rpcCfg.TLSKeyFile)
		} else {
			serveErr = server.Start()
		}
		if serveErr != nil {
			log.Error().Err(serveErr).Msg("Server error")
			sigCh <- syscall.SIGTERM
		}
	}()

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}

	for _, closeFn := range closers {
		closeFn()
	}
	log.Info().Msg("All clients closed")
}

// newProviderClient builds a failover HTTP client for one provider config.
func newProviderClient(cfg config.AdapterConfig, apiKeyHeader string) (*fetch.Client, error) {
	opts := []fetch.Option{}
	if len(cfg.BackupURLs) > 0 {
		opts = append(opts, fetch.WithBackups(cfg.BackupURLs...))
	}
	if cfg.APIKey != "" && apiKeyHeader != "" {
		opts = append(opts, fetch.WithHeader(apiKeyHeader, cfg.APIKey))
	}
	return fetch.NewClient(cfg.BaseURL, opts...)
}

// buildServerConfig converts the loaded RPCConfig to rpc.ServerConfig.
func buildServerConfig(cfg *config.RPCConfig) *rpc.ServerConfig {
	serverConfig := &rpc.ServerConfig{
		Address:        cfg.Address,
		AllowedOrigins: cfg.AllowedOrigins,
		EnableMetrics:  cfg.EnableMetrics || cfg.UsePrometheus,
	}
	if cfg.RatePerMinute > 0 {
		serverConfig.RatePerMinute = &cfg.RatePerMinute
	}
	if cfg.Burst > 0 {
		serverConfig.Burst = &cfg.Burst
	}
	if cfg.EnableTracing || cfg.UsePrometheus {
		otelCfg := rpc.DefaultOTelConfig()
		otelCfg.EnableTracing = cfg.EnableTracing
		otelCfg.UsePrometheus = cfg.UsePrometheus
		otelCfg.EnableMetrics = cfg.UsePrometheus
		if cfg.OTLPEndpoint != "" {
			otelCfg.OTLPTracesURL = cfg.OTLPEndpoint
		}
		serverConfig.OTelConfig = otelCfg
	}
	return serverConfig
}
