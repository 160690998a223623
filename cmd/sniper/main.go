// Command sniper runs the live trading engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/SynergiaOS/SolanaSniper/internal/aggregator"
	"github.com/SynergiaOS/SolanaSniper/internal/config"
	"github.com/SynergiaOS/SolanaSniper/internal/engine"
	"github.com/SynergiaOS/SolanaSniper/internal/enrichment"
	"github.com/SynergiaOS/SolanaSniper/internal/executor"
	"github.com/SynergiaOS/SolanaSniper/internal/hub"
	"github.com/SynergiaOS/SolanaSniper/internal/logging"
	"github.com/SynergiaOS/SolanaSniper/internal/observability"
	"github.com/SynergiaOS/SolanaSniper/internal/position"
	"github.com/SynergiaOS/SolanaSniper/internal/reporter"
	"github.com/SynergiaOS/SolanaSniper/internal/risk"
	"github.com/SynergiaOS/SolanaSniper/internal/solana"
	"github.com/SynergiaOS/SolanaSniper/internal/storage"
	storagememory "github.com/SynergiaOS/SolanaSniper/internal/storage/memory"
	storagepostgres "github.com/SynergiaOS/SolanaSniper/internal/storage/postgres"
	"github.com/SynergiaOS/SolanaSniper/internal/strategy"
	"github.com/SynergiaOS/SolanaSniper/internal/stream"
	"github.com/SynergiaOS/SolanaSniper/internal/venue"
	"github.com/SynergiaOS/SolanaSniper/internal/wallet"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration")
	watchlist := flag.String("watch", "", "Comma-separated symbols to watch in addition to discovery")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Logging)
	defer log.Sync()

	if err := run(cfg, splitList(*watchlist), log); err != nil {
		log.Fatal("engine failed", zap.Error(err))
	}
}

func run(cfg *config.Config, watchlist []string, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Hub: durable Badger store behind the degrade-to-local wrapper, or
	// pure memory when no path is configured.
	var store hub.Store
	if cfg.Hub.Path != "" {
		badgerStore, err := hub.OpenBadger(cfg.Hub.Path)
		if err != nil {
			return fmt.Errorf("open hub store: %w", err)
		}
		store = hub.NewResilientStore(badgerStore, log.Named("hub"))
	} else {
		log.Warn("no hub path configured, coordination state is in-memory only")
		store = hub.NewMemoryStore()
	}
	defer store.Close()
	h := hub.New(store, cfg.Hub.EventLogSize)

	// Signing key. Dry-run and paper modes may run without one.
	var keypair *wallet.Keypair
	if cfg.WalletPrivateKey != "" {
		kp, err := wallet.FromBase58(cfg.WalletPrivateKey)
		if err != nil {
			return fmt.Errorf("load wallet key: %w", err)
		}
		keypair = kp
		log.Info("wallet loaded", zap.String("address", kp.Address()))
	}

	// Chain clients.
	rpcURL := cfg.Solana.EnhancedRPCURL
	if rpcURL == "" {
		rpcURL = cfg.Solana.RPCURL
	}
	rpc := solana.NewHTTPClient(rpcURL,
		solana.WithTimeout(cfg.SolanaTimeout()),
		solana.WithCommitment(solana.Commitment(cfg.Solana.Commitment)))

	if keypair != nil {
		if lamports, err := rpc.GetBalance(ctx, keypair.Address()); err == nil {
			log.Info("wallet balance",
				zap.Float64("sol", float64(lamports)/1e9))
		}
	}

	// Venue clients per the exchanges section.
	clients, streamers, metadata := buildVenues(ctx, cfg, rpc, log)

	weights := make(map[string]float64)
	for id, ex := range cfg.Exchanges {
		if ex.Weight > 0 {
			weights[id] = ex.Weight
		}
	}

	agg := aggregator.New(aggregator.Options{
		Clients: clients,
		Weights: weights,
		Hub:     h,
		Log:     log.Named("aggregator"),
	})

	// Strategies and risk: the gate consults the live halt state.
	var riskMgr *risk.Manager
	strategies := strategy.NewManager(func() bool {
		return riskMgr != nil && riskMgr.Halted()
	}, log.Named("strategy"))
	riskMgr = risk.NewManager(cfg.Risk, cfg.Bot.InitialBalance, strategies, log.Named("risk"))
	registerStrategies(cfg, strategies)

	// Execution.
	jupiter := executor.NewJupiterClient(
		cfg.Aggregator.QuoteURL,
		cfg.Aggregator.SwapURL,
		cfg.Aggregator.MaxRetries,
		time.Duration(cfg.Aggregator.TimeoutSeconds)*time.Second,
	)
	var jito *executor.JitoClient
	if cfg.MEV.Enabled {
		jito = executor.NewJitoClient(cfg.MEV.RelayURL, cfg.MEV.TipAccounts,
			cfg.MEV.MaxTipLamports, rpc, log.Named("jito"))
	}
	exec := executor.New(executor.Options{
		Jupiter:        jupiter,
		Jito:           jito,
		RPC:            rpc,
		Keypair:        keypair,
		Hub:            h,
		Risk:           riskMgr,
		Bot:            cfg.Bot,
		MEV:            cfg.MEV,
		Commitment:     solana.Commitment(cfg.Solana.Commitment),
		MaxSlippageBps: cfg.Risk.MaxSlippageBps,
		Log:            log.Named("executor"),
	})

	positions := position.NewManager(riskMgr, h, 0.10, log.Named("position"))
	rep := reporter.New(h, log.Named("reporter"))

	var enrich enrichment.Provider
	if cfg.AI.Enabled && cfg.AI.Endpoint != "" {
		enrich = enrichment.NewHTTPProvider(cfg.AI.Endpoint, cfg.AI.Model,
			time.Duration(cfg.AI.TimeoutSeconds)*time.Second, log.Named("enrichment"))
	}

	var trades storage.TradeStore
	if cfg.Postgres.Enabled && cfg.Postgres.DSN != "" {
		pool, err := storagepostgres.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("connect trade history store: %w", err)
		}
		defer pool.Close()
		trades, err = storagepostgres.NewTradeStore(ctx, pool)
		if err != nil {
			return fmt.Errorf("prepare trade history store: %w", err)
		}
	} else {
		trades = storagememory.NewTradeStore()
	}

	streamMgr := stream.NewManager(streamers, cfg.WebSocket.Subscriptions,
		cfg.WebSocket.EventBufferSize, log.Named("stream"))

	var metrics *observability.Metrics
	if cfg.Monitoring.Enabled {
		metrics = observability.NewMetrics("sniperbot")
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Monitoring.MetricsPort)
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			log.Info("metrics listening", zap.String("addr", addr))
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	eng := engine.New(engine.Options{
		Config:     cfg,
		Hub:        h,
		Aggregator: agg,
		Strategies: strategies,
		Risk:       riskMgr,
		Executor:   exec,
		Positions:  positions,
		Reporter:   rep,
		Stream:     streamMgr,
		Enrichment: enrich,
		Trades:     trades,
		Metadata:   metadata,
		Watchlist:  watchlist,
		Metrics:    metrics,
		Log:        log.Named("engine"),
	})

	if err := eng.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))

	eng.Stop()
	cancel()
	return nil
}

// buildVenues instantiates clients for every enabled exchange section.
func buildVenues(ctx context.Context, cfg *config.Config, rpc solana.RPCClient, log *zap.Logger) ([]venue.Client, []venue.Streamer, []venue.MetadataProvider) {
	var clients []venue.Client
	var streamers []venue.Streamer
	var metadata []venue.MetadataProvider

	timeout := cfg.SolanaTimeout()

	for id, ex := range cfg.Exchanges {
		if !ex.Enabled {
			continue
		}
		switch id {
		case "binance":
			clients = append(clients, venue.NewBinanceClient(
				os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET"),
				ex.APIURL, ex.RateLimitPerSecond))
		case "raydium":
			clients = append(clients, venue.NewRaydiumClient(ex.APIURL, ex.RateLimitPerSecond, timeout))
		case "meteora":
			clients = append(clients, venue.NewMeteoraClient(ex.APIURL, ex.RateLimitPerSecond, timeout))
		case "jupiter":
			clients = append(clients, venue.NewJupiterClient(ex.APIURL, ex.RateLimitPerSecond, timeout))
		case "pumpfun":
			pf := venue.NewPumpfunClient(ex.APIURL, ex.WebSocketURL,
				ex.RateLimitPerSecond, timeout, log.Named("pumpfun"))
			clients = append(clients, pf)
			streamers = append(streamers, pf)
			metadata = append(metadata, pf)
		case "helius":
			var ws solana.WSClient
			if ex.WebSocketURL != "" {
				wsClient, err := solana.NewWSClient(ctx, ex.WebSocketURL,
					solana.Commitment(cfg.Solana.Commitment), nil, log.Named("helius-ws"))
				if err != nil {
					log.Warn("helius websocket unavailable", zap.Error(err))
				} else {
					ws = wsClient
				}
			}
			hl := venue.NewHeliusClient(rpc, ws, ex.ProgramID, log.Named("helius"))
			clients = append(clients, hl)
			metadata = append(metadata, hl)
			if ws != nil {
				streamers = append(streamers, hl)
			}
		default:
			log.Warn("unknown exchange section", zap.String("id", id))
		}
	}
	return clients, streamers, metadata
}

// registerStrategies builds the strategy set from config.
func registerStrategies(cfg *config.Config, manager *strategy.Manager) {
	for id, sc := range cfg.Strategies {
		settings := strategy.Settings{
			Enabled:             sc.Enabled,
			MinConfidence:       sc.MinConfidence,
			ConfidenceThreshold: sc.ConfidenceThreshold,
			Cooldown:            time.Duration(sc.CooldownSeconds) * time.Second,
		}
		switch id {
		case "pumpfun_sniping":
			params := strategy.DefaultPumpfunParams()
			if patched, err := params.Apply(sc.Params); err == nil {
				params = patched
			}
			manager.Register(strategy.NewPumpfunSniping(params, sc.MaxPositionSize, sc.CreatorBlacklist), settings)
		case "liquidity_sniping":
			params := strategy.DefaultLiquidityPoolParams()
			if patched, err := params.Apply(sc.Params); err == nil {
				params = patched
			}
			manager.Register(strategy.NewLiquidityPoolSniping(params, sc.MaxPositionSize, sc.PreferredQuotes), settings)
		}
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
