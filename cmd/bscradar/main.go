package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/0xprotovox/bscradar/internal/analyzer"
	"github.com/0xprotovox/bscradar/internal/cache"
	"github.com/0xprotovox/bscradar/internal/chain"
	"github.com/0xprotovox/bscradar/internal/config"
	"github.com/0xprotovox/bscradar/internal/dex"
	"github.com/0xprotovox/bscradar/internal/metrics"
	"github.com/0xprotovox/bscradar/internal/model"
	"github.com/0xprotovox/bscradar/internal/multicall"
	"github.com/0xprotovox/bscradar/internal/oracle"
	"github.com/0xprotovox/bscradar/internal/router"
	"github.com/0xprotovox/bscradar/internal/scorer"
	"github.com/0xprotovox/bscradar/internal/storage"
	"github.com/0xprotovox/bscradar/internal/token"
)

func main() {
	root := &cobra.Command{
		Use:          "bscradar",
		Short:        "BSC pool analytics",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().StringSlice("rpc", nil, "BSC RPC URLs (comma-separated, tried in order)")
	root.PersistentFlags().Int("max-retries", 3, "full failover passes over the endpoint list")
	root.PersistentFlags().Duration("retry-backoff", 500*time.Millisecond, "linear backoff base between passes")
	root.PersistentFlags().Duration("call-timeout", 10*time.Second, "per-call RPC timeout")
	root.PersistentFlags().String("metrics-listen", "", "Prometheus listen address (empty disables)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	analyzeCmd := &cobra.Command{
		Use:   "analyze <token-address>",
		Short: "Analyze every pool of a token",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().Float64("trade-usd", 1000, "assumed trade size in USD")
	analyzeCmd.Flags().Bool("fast", false, "restrict discovery to the deep base tokens")
	analyzeCmd.Flags().Bool("force-refresh", false, "invalidate cached state for the token first")
	analyzeCmd.Flags().String("out", "", "append the result to this JSONL file")
	root.AddCommand(analyzeCmd)

	routeCmd := &cobra.Command{
		Use:   "route <from-address> <to-address>",
		Short: "Find the best swap route between two tokens",
		Args:  cobra.ExactArgs(2),
		RunE:  runRoute,
	}
	routeCmd.Flags().Float64("trade-usd", 1000, "trade size in USD")
	root.AddCommand(routeCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote <from-address> <to-address> <amount>",
		Short: "Quote a direct-pool swap",
		Args:  cobra.ExactArgs(3),
		RunE:  runQuote,
	}
	quoteCmd.Flags().Float64("slippage", 0.5, "slippage tolerance percent for min output")
	root.AddCommand(quoteCmd)

	warmCmd := &cobra.Command{
		Use:   "warm",
		Short: "Pre-warm base tokens, oracle prices, and base routes",
		RunE:  runWarm,
	}
	warmCmd.Flags().Bool("precache", false, "keep the route pre-cache loop running")
	root.AddCommand(warmCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// engine bundles the wired component graph behind one teardown handle.
type engine struct {
	cfg      config.Config
	logger   *zap.Logger
	gateway  *chain.Gateway
	cache    *cache.Cache
	metrics  *metrics.Metrics
	oracle   *oracle.Oracle
	analyzer *analyzer.Analyzer
	router   *router.Router
}

func (e *engine) close() {
	e.gateway.Close()
	e.logger.Sync()
}

func buildEngine(ctx context.Context, cmd *cobra.Command) (*engine, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	if cfg.MetricsListen != "" {
		registry := prometheus.NewRegistry()
		m = metrics.New(registry)
		go serveMetrics(cfg.MetricsListen, registry, logger)
	}

	gateway, err := chain.NewGateway(ctx, cfg.RPCEndpoints, chain.GatewayConfig{
		MaxRetries:  cfg.MaxRetries,
		Backoff:     cfg.RetryBackoff,
		CallTimeout: cfg.CallTimeout,
	}, logger, m)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}

	c := cache.New(cache.Config{
		PoolTTL:  cfg.PoolTTL,
		PriceTTL: cfg.PriceTTL,
		TokenTTL: cfg.TokenTTL,
	}, logger, m)

	caller := multicall.NewCaller(gateway, common.Address{}, logger)
	registry := token.NewRegistry(caller, c, logger)
	orc := oracle.New(caller, logger)
	discovery := dex.NewDiscovery(caller, logger)
	fetcher := dex.NewFetcher(caller, registry, orc, logger)
	sc := scorer.New(logger)

	a := analyzer.New(discovery, fetcher, registry, orc, sc, c, m, logger)
	r := router.New(a, logger)

	return &engine{
		cfg:      cfg,
		logger:   logger,
		gateway:  gateway,
		cache:    c,
		metrics:  m,
		oracle:   orc,
		analyzer: a,
		router:   r,
	}, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(ctx, cmd)
	if err != nil {
		return err
	}
	defer eng.close()

	result, err := eng.analyzer.AnalyzeToken(ctx, args[0], analyzer.Options{
		TradeUSD:     eng.cfg.TradeUSD,
		Fast:         eng.cfg.FastMode,
		ForceRefresh: eng.cfg.ForceRefresh,
	})
	if err != nil {
		return err
	}

	if eng.cfg.SnapshotOut != "" {
		sink := storage.NewJsonlStorage(eng.cfg.SnapshotOut)
		if err := sink.PutAnalysis(result); err != nil {
			eng.logger.Warn("snapshot write failed", zap.Error(err))
		}
	}

	return printJSON(result)
}

func runRoute(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(ctx, cmd)
	if err != nil {
		return err
	}
	defer eng.close()

	if cached, ok := eng.cache.Get(cache.PoolStore, router.RouteKey(args[0], args[1])); ok {
		if result, ok := cached.(*model.RouteResult); ok {
			return printJSON(result)
		}
	}

	result, err := eng.router.FindBestRoute(ctx, args[0], args[1], eng.cfg.TradeUSD)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runQuote(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(ctx, cmd)
	if err != nil {
		return err
	}
	defer eng.close()

	slippage, _ := cmd.Flags().GetFloat64("slippage")
	quote, err := eng.router.QuoteDirect(ctx, args[0], args[1], args[2], slippage)
	if err != nil {
		return err
	}
	return printJSON(quote)
}

func runWarm(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(ctx, cmd)
	if err != nil {
		return err
	}
	defer eng.close()

	if err := eng.analyzer.Warm(ctx); err != nil {
		return err
	}
	eng.logger.Info("warm complete", zap.Any("endpoints", eng.gateway.Endpoints()))

	keepRunning, _ := cmd.Flags().GetBool("precache")
	if !keepRunning {
		return nil
	}

	precacher := router.NewPrecacher(eng.router, eng.cache, eng.metrics, eng.logger)
	precacher.Start(ctx)
	<-ctx.Done()
	precacher.Stop()
	return nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func serveMetrics(listen string, registry *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(listen, mux); err != nil {
		logger.Warn("metrics listener stopped", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
