// Package main is the entry point for the tapedeck proxy.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tapedeck/tapedeck/internal/config"
	"github.com/tapedeck/tapedeck/internal/control"
	"github.com/tapedeck/tapedeck/internal/health"
	"github.com/tapedeck/tapedeck/internal/intercept"
	"github.com/tapedeck/tapedeck/internal/middleware"
	"github.com/tapedeck/tapedeck/internal/observability"
	"github.com/tapedeck/tapedeck/internal/tape"
	"github.com/tapedeck/tapedeck/internal/upstream"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig(flags.configPath, logger)
	app := initApplication(cfg, logger)

	run(app, flags.configPath, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("TAPEDECK_CONFIG_PATH", "configs/tapedeck.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("TAPEDECK_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("TAPEDECK_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("tapedeck version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// loadConfig loads and validates the configuration.
func loadConfig(configPath string, logger observability.Logger) *config.Config {
	logger.Info("starting tapedeck",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}

	logger.Info("configuration loaded",
		observability.Int("proxy_port", cfg.Proxy.Port),
		observability.String("tape_store", cfg.Tapes.Store),
		observability.String("default_tape", cfg.Tapes.Default),
	)
	return cfg
}

// application holds all application components.
type application struct {
	config      *config.Config
	deck        *tape.Deck
	client      *upstream.Client
	proxyServer *http.Server
	controlSrv  *control.Server
	metrics     *observability.Metrics
	tracer      *observability.Tracer
	checker     *health.Checker
}

// initApplication wires all application components.
func initApplication(cfg *config.Config, logger observability.Logger) *application {
	metrics := observability.NewMetrics("tapedeck")
	metrics.SetBuildInfo(version, gitCommit, buildTime)

	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SamplingRate: cfg.Tracing.SampleRate,
		Enabled:      cfg.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal("failed to initialize tracer", observability.Error(err))
	}

	checker := health.NewChecker(version)

	store := initStore(cfg, logger, checker)
	deck := tape.NewDeck(store, tape.WithDeckLogger(logger))

	if cfg.Tapes.Default != "" {
		if err := deck.Insert(context.Background(), cfg.Tapes.Default, cfg.Tapes.ReadOnly); err != nil {
			logger.Fatal("failed to insert default tape",
				observability.String("tape", cfg.Tapes.Default),
				observability.Error(err),
			)
		}
	}

	client := upstream.NewClient(
		upstream.PoolConfig{
			MaxIdleConns:          cfg.Upstream.MaxIdleConns,
			MaxIdleConnsPerHost:   cfg.Upstream.MaxIdleConnsPerHost,
			MaxConnsPerHost:       cfg.Upstream.MaxConnsPerHost,
			IdleConnTimeout:       cfg.Upstream.IdleConnTimeout.Duration(),
			ResponseHeaderTimeout: cfg.Upstream.ResponseHeaderTimeout.Duration(),
			DialTimeout:           cfg.Upstream.DialTimeout.Duration(),
		},
		upstream.WithLogger(logger),
		upstream.WithBreaker(upstream.BreakerConfig{
			Enabled:   cfg.Upstream.CircuitBreaker.Enabled,
			Threshold: cfg.Upstream.CircuitBreaker.Threshold,
			Timeout:   cfg.Upstream.CircuitBreaker.Timeout.Duration(),
		}),
	)

	dispatcher := intercept.NewDispatcher(deck, client,
		intercept.WithLogger(logger),
		intercept.WithMetricsRegistry(metrics.Registry()),
	)

	handler := buildMiddlewareChain(dispatcher, cfg, logger, metrics, tracer)

	proxyServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Proxy.Address, cfg.Proxy.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Proxy.ReadTimeout.Duration(),
		WriteTimeout: cfg.Proxy.WriteTimeout.Duration(),
		IdleTimeout:  cfg.Proxy.IdleTimeout.Duration(),
	}

	var controlSrv *control.Server
	if cfg.Control.Enabled {
		controlSrv = control.NewServer(
			control.ServerConfig{Address: cfg.Control.Address, Port: cfg.Control.Port},
			deck,
			control.WithLogger(logger),
			control.WithHealthChecker(checker),
		)
	}

	return &application{
		config:      cfg,
		deck:        deck,
		client:      client,
		proxyServer: proxyServer,
		controlSrv:  controlSrv,
		metrics:     metrics,
		tracer:      tracer,
		checker:     checker,
	}
}

// initStore creates the configured tape store.
func initStore(cfg *config.Config, logger observability.Logger, checker *health.Checker) tape.Store {
	switch cfg.Tapes.Store {
	case config.StoreFile:
		store, err := tape.NewFileStore(cfg.Tapes.Dir)
		if err != nil {
			logger.Fatal("failed to open tape directory", observability.Error(err))
		}
		return store

	case config.StoreRedis:
		store := tape.NewRedisStore(tape.RedisStoreConfig{
			Address:   cfg.Tapes.Redis.Address,
			Password:  cfg.Tapes.Redis.Password,
			DB:        cfg.Tapes.Redis.DB,
			KeyPrefix: cfg.Tapes.Redis.KeyPrefix,
		})
		checker.RegisterCheck("redis", func() health.Check {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				return health.Check{Status: health.StatusUnhealthy, Message: err.Error()}
			}
			return health.Check{Status: health.StatusHealthy}
		})
		return store

	default:
		return tape.NewMemoryStore()
	}
}

// buildMiddlewareChain builds the proxy listener middleware chain.
func buildMiddlewareChain(
	handler http.Handler,
	cfg *config.Config,
	logger observability.Logger,
	metrics *observability.Metrics,
	tracer *observability.Tracer,
) http.Handler {
	h := handler

	if cfg.RateLimit.Enabled {
		rl := middleware.NewRateLimiter(
			cfg.RateLimit.RequestsPerSecond,
			cfg.RateLimit.Burst,
			cfg.RateLimit.PerClient,
			middleware.WithRateLimiterLogger(logger),
		)
		h = rl.Middleware()(h)
	}

	h = observability.MetricsMiddleware(metrics)(h)
	h = observability.TracingMiddleware(tracer)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.RequestID()(h)
	h = middleware.Recovery(logger)(h)

	return h
}

// run starts all servers and blocks until shutdown.
func run(app *application, configPath string, logger observability.Logger) {
	go func() {
		logger.Info("starting proxy server",
			observability.String("address", app.proxyServer.Addr),
		)
		if err := app.proxyServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("proxy server error", observability.Error(err))
		}
	}()

	if app.controlSrv != nil {
		go func() {
			if err := app.controlSrv.Start(); err != nil {
				logger.Error("control server error", observability.Error(err))
			}
		}()
	}

	if app.config.Metrics.Enabled {
		go startMetricsServer(app, logger)
	}

	watcher := startConfigWatcher(app, configPath, logger)

	waitForShutdown(app, watcher, logger)
}

// startMetricsServer serves the metrics endpoint on its own listener.
func startMetricsServer(app *application, logger observability.Logger) {
	path := app.config.Metrics.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, app.metrics.Handler())
	mux.HandleFunc("/health", app.checker.HealthHandler())
	mux.HandleFunc("/ready", app.checker.ReadinessHandler())

	addr := fmt.Sprintf(":%d", app.config.Metrics.Port)
	logger.Info("starting metrics server",
		observability.String("address", addr),
		observability.String("metrics_path", path),
	)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server error", observability.Error(err))
	}
}

// startConfigWatcher watches the configuration file for tape changes.
func startConfigWatcher(app *application, configPath string, logger observability.Logger) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, func(newCfg *config.Config) {
		logger.Info("configuration changed")
		reloadDefaultTape(app, newCfg, logger)
	}, config.WithWatcherLogger(logger))

	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(context.Background()); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
	}
	return watcher
}

// reloadDefaultTape swaps the inserted tape when the configured default
// changes. Listener and store settings require a restart.
func reloadDefaultTape(app *application, newCfg *config.Config, logger observability.Logger) {
	current := app.deck.Status()
	if newCfg.Tapes.Default == app.config.Tapes.Default && current.Inserted {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if newCfg.Tapes.Default == "" {
		if current.Inserted {
			if err := app.deck.Eject(ctx); err != nil {
				logger.Error("failed to eject tape on reload", observability.Error(err))
			}
		}
		app.config.Tapes.Default = ""
		return
	}

	if err := app.deck.Insert(ctx, newCfg.Tapes.Default, newCfg.Tapes.ReadOnly); err != nil {
		logger.Error("failed to insert tape on reload",
			observability.String("tape", newCfg.Tapes.Default),
			observability.Error(err),
		)
		return
	}
	app.config.Tapes.Default = newCfg.Tapes.Default
}

// waitForShutdown blocks on a shutdown signal then stops everything,
// persisting the active tape.
func waitForShutdown(app *application, watcher *config.Watcher, logger observability.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", observability.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
	}

	if err := app.proxyServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to stop proxy server gracefully", observability.Error(err))
	}

	if app.controlSrv != nil {
		if err := app.controlSrv.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop control server gracefully", observability.Error(err))
		}
	}

	// Persist any unsaved recordings before exit.
	if err := app.deck.Eject(shutdownCtx); err != nil && !errors.Is(err, tape.ErrNoActiveTape) {
		logger.Error("failed to persist active tape", observability.Error(err))
	}

	app.client.CloseIdleConnections()

	if err := app.tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	logger.Info("tapedeck stopped")
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
