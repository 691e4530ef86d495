// Kestrel - Fraud and risk detection for credits-based creator marketplaces.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marketsafe/kestrel/internal/anomaly"
	"github.com/marketsafe/kestrel/internal/api"
	"github.com/marketsafe/kestrel/internal/audit"
	"github.com/marketsafe/kestrel/internal/bus"
	"github.com/marketsafe/kestrel/internal/cache"
	"github.com/marketsafe/kestrel/internal/domain"
	"github.com/marketsafe/kestrel/internal/enforce"
	"github.com/marketsafe/kestrel/internal/monitor"
	"github.com/marketsafe/kestrel/internal/notify"
	"github.com/marketsafe/kestrel/internal/repository"
	"github.com/marketsafe/kestrel/internal/rules"
	"github.com/marketsafe/kestrel/internal/scoring"
	"github.com/marketsafe/kestrel/internal/velocity"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	if interval := os.Getenv("KESTREL_SCAN_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			slog.Error("invalid KESTREL_SCAN_INTERVAL", "value", interval, "error", err)
			os.Exit(1)
		}
		cfg.Monitor.ScanInterval = d
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"store", cfg.Store.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.Bus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Store
	store, err := repository.New(cfg.Store)
	if err != nil {
		slog.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("store initialized", "driver", cfg.Store.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.Bus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.Bus.Type)

	// Audit trail: every alert, action, and report published to the bus
	// lands in the structured log.
	auditor := audit.NewRecorder(busImpl)
	if err := auditor.Start(ctx); err != nil {
		slog.Error("failed to start audit recorder", "error", err)
		os.Exit(1)
	}
	defer auditor.Stop()
	slog.Info("audit recorder subscribed")

	// Initialize Notifier
	notifier, err := notify.New(cfg.Notify)
	if err != nil {
		slog.Error("failed to initialize notifier", "error", err)
		os.Exit(1)
	}
	slog.Info("notifier initialized", "type", cfg.Notify.Type)

	// Initialize Enforcer: Pro takes actions over the bus so downstream
	// services can react; Community just logs the request.
	var enforcer domain.Enforcer = &enforce.LogEnforcer{}
	if cfg.Tier == domain.TierPro {
		enforcer = enforce.NewBusEnforcer(busImpl)
	}

	// Initialize Velocity Service
	velocitySvc := velocity.NewService(store, cacheImpl)
	slog.Info("velocity service initialized")

	// Initialize Rule Evaluator with the built-in catalog
	evaluator := rules.NewEvaluator(store, velocitySvc.NormalDailyRate, rules.DefaultCatalog())
	slog.Info("rule evaluator initialized", "rules_count", len(rules.DefaultCatalog()))

	// Initialize Custom Rule Engine
	engine, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	// Load custom rules from the store (configure via POST /rules API)
	if err := loadCustomRules(ctx, store, engine); err != nil {
		slog.Error("failed to load custom rules", "error", err)
		os.Exit(1)
	}
	slog.Info("custom rule engine initialized", "rules_count", engine.RulesCount())

	// Initialize Anomaly Detector and Scorer
	detector := anomaly.NewDetector(anomaly.ZeroCoordination{})
	scorer := scoring.NewScorer(store, detector)

	// Initialize Monitor
	mon := monitor.New(monitor.Deps{
		Ledger:    store,
		Accounts:  store,
		Evaluator: evaluator,
		Engine:    engine,
		Baseline:  velocitySvc.NormalDailyRate,
		Detector:  detector,
		Scorer:    scorer,
		Notifier:  notifier,
		Enforcer:  enforcer,
		Bus:       busImpl,
	}, cfg.Monitor)
	slog.Info("monitor initialized",
		"analysis_window_hours", cfg.Monitor.AnalysisWindowHours,
		"monitor_window_hours", cfg.Monitor.MonitorWindowHours,
	)

	// Start background scheduler if configured
	scheduler := monitor.NewScheduler(mon, cfg.Monitor.ScanInterval)
	scheduler.Start()
	if cfg.Monitor.ScanInterval > 0 {
		slog.Info("scheduler started", "interval", cfg.Monitor.ScanInterval)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, store, cacheImpl, busImpl, engine, mon, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// loadCustomRules loads persisted CEL rules into the engine. A missing
// or empty table is not an error; rules can be added via the API.
func loadCustomRules(ctx context.Context, store *repository.Store, engine *rules.Engine) error {
	stored, err := store.ListRuleConfigs(ctx)
	if err != nil {
		slog.Warn("failed to list custom rules from store", "error", err)
		return nil
	}

	if len(stored) > 0 {
		slog.Info("loading custom rules from store", "count", len(stored))
		return engine.LoadRules(stored)
	}

	slog.Info("no custom rules in store - configure via POST /rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ------------------------------------------")
	fmt.Println("   KESTREL - marketplace fraud detection")
	fmt.Println("  ------------------------------------------")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /transactions   - Ingest a ledger transaction")
	fmt.Println("    POST /accounts       - Register a creator account")
	fmt.Println("    GET  /analyze        - Read-only detection pass (7d window)")
	fmt.Println("    POST /monitor/run    - Full monitoring cycle (24h window)")
	fmt.Println("    GET  /rules          - List custom rules")
	fmt.Println("    POST /rules          - Create a custom rule")
	fmt.Println("    POST /rules/reload   - Hot-reload rules from store")
	fmt.Println("    GET  /health         - Health check")
	fmt.Println()
}
