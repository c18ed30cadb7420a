// Command scout runs the market position analysis HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wilhg/scout/internal/config"
	"github.com/wilhg/scout/pkg/cache"
	"github.com/wilhg/scout/pkg/cache/memcache"
	"github.com/wilhg/scout/pkg/cache/rediscache"
	"github.com/wilhg/scout/pkg/engine"
	"github.com/wilhg/scout/pkg/oracle"
	_ "github.com/wilhg/scout/pkg/oracle/gemini"
	_ "github.com/wilhg/scout/pkg/oracle/openai"
	"github.com/wilhg/scout/pkg/otel"
	"github.com/wilhg/scout/pkg/runstore/sqlstore"
	"github.com/wilhg/scout/pkg/server"
	"github.com/wilhg/scout/pkg/tool"
	"github.com/wilhg/scout/pkg/tool/tools"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	var showVersion bool
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("scout %s (commit=%s, date=%s)\n", version, commit, date)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "scout: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := otel.Init(ctx, otel.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
		UseStdout:      cfg.TraceStdout,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	store, err := sqlstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate run store: %w", err)
	}

	runCache, closeCache, err := newCache(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer closeCache()

	reg := tool.NewRegistry()
	searcher := tools.NewHTMLSearcher()
	ttls := tools.TTLs{
		Product:    cfg.ProductTTL,
		Competitor: cfg.CompetitorTTL,
		Sentiment:  cfg.SentimentTTL,
	}
	if err := tools.RegisterAll(reg, searcher, ttls); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	orc, err := newOracle(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init oracle: %w", err)
	}

	eng, err := engine.New(reg, orc, runCache, store,
		engine.WithMaxSteps(cfg.MaxSteps),
		engine.WithDecisionRetries(cfg.DecisionRetries),
		engine.WithToolTimeout(cfg.ToolTimeout),
		engine.WithRunTimeout(cfg.RunTimeout),
		engine.WithReportTTL(cfg.ReportTTL),
		engine.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}

	srv, err := server.New(server.Config{
		Runner:              eng,
		Store:               store,
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"port", cfg.Port,
			"oracle", cfg.OracleProvider,
			"cache", cfg.CacheKind,
			"version", version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func newCache(ctx context.Context, cfg config.Config) (cache.Cache, func(), error) {
	if cfg.CacheKind == "redis" {
		c, err := rediscache.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { _ = c.Close() }, nil
	}
	c := memcache.New()
	return c, c.Close, nil
}

func newOracle(ctx context.Context, cfg config.Config) (oracle.Oracle, error) {
	factory, ok := oracle.ResolveProvider(cfg.OracleProvider)
	if !ok {
		return nil, fmt.Errorf("unknown oracle provider %q (have %v)", cfg.OracleProvider, oracle.Providers())
	}
	pcfg := map[string]any{}
	switch cfg.OracleProvider {
	case "openai":
		pcfg["api_key"] = cfg.OpenAIAPIKey
	case "gemini":
		pcfg["api_key"] = cfg.GoogleAPIKey
	}
	if cfg.Model != "" {
		pcfg["model"] = cfg.Model
	}
	llm, err := factory(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	opts := []oracle.LLMOption{}
	if cfg.Model != "" {
		opts = append(opts, oracle.WithModel(cfg.Model))
	}
	if cfg.HistoryTokenBudget > 0 {
		estimate, err := oracle.NewTikTokenEstimator(cfg.Model)
		if err != nil {
			// Unknown model encoding; the rune estimator only trims harder.
			estimate = oracle.RuneEstimator
		}
		opts = append(opts, oracle.WithTokenBudget(cfg.HistoryTokenBudget, estimate))
	}
	return oracle.NewLLMOracle(llm, opts...)
}
