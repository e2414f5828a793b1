package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/songzhibin97/gkit/generator"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/songzhibin97/mediaflow/config"
	"github.com/songzhibin97/mediaflow/events"
	"github.com/songzhibin97/mediaflow/metrics"
	"github.com/songzhibin97/mediaflow/provider"
	"github.com/songzhibin97/mediaflow/server"
	"github.com/songzhibin97/mediaflow/storage"
	"github.com/songzhibin97/mediaflow/templates"
	"github.com/songzhibin97/mediaflow/workflow"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

const pruneInterval = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting mediaflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	store, err := newStorage(cfg)
	if err != nil {
		logger.Fatal("failed to initialize storage", zap.Error(err))
	}
	logger.Info("storage ready", zap.String("backend", cfg.Storage.Backend))

	gen, err := newProvider(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create provider", zap.Error(err))
	}

	catalog, err := templates.Default()
	if err != nil {
		logger.Fatal("failed to load template catalog", zap.Error(err))
	}

	bus := events.NewEventBus(events.WithLogger(logger))
	bus.SubscribeFunc(events.NodeFailed, func(ctx context.Context, e events.Event) error {
		logger.Warn("node failed",
			zap.String("run_id", e.RunID),
			zap.String("node_id", e.NodeID),
			zap.Any("error", e.Data["error"]))
		return nil
	})

	collector := metrics.NewCollector(nil)

	engine, err := workflow.NewEngine(gen,
		workflow.WithLogger(logger),
		workflow.WithMetrics(collector),
		workflow.WithEventBus(bus),
		workflow.WithFailurePolicy(cfg.FailurePolicy()),
		workflow.WithConcurrency(cfg.Engine.Concurrency),
		workflow.WithNodeTimeout(cfg.Engine.NodeTimeout),
	)
	if err != nil {
		logger.Fatal("failed to create engine", zap.Error(err))
	}

	httpServer, err := server.NewServer(&server.Config{
		Addr:       cfg.GetHTTPAddr(),
		BaseURL:    cfg.BaseURL,
		Engine:     engine,
		Storage:    store,
		Templates:  catalog,
		IDs:        generator.NewSnowflake(time.Now().Add(-1*time.Second), 1),
		Metrics:    collector,
		RunTimeout: cfg.Engine.RunTimeout,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("failed to create HTTP server", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go httpServer.PruneLoop(ctx, cfg.Storage.RunRetention, pruneInterval)

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	logger.Info("mediaflow started",
		zap.String("http_addr", cfg.GetHTTPAddr()),
		zap.String("failure_policy", cfg.FailurePolicy().String()),
		zap.Int("concurrency", cfg.Engine.Concurrency),
		zap.Bool("stub_provider", cfg.Provider.Stub))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	bus.Stop()
	if err := store.Close(); err != nil {
		logger.Error("storage close error", zap.Error(err))
	}

	logger.Info("mediaflow shut down complete")
}

func newStorage(cfg *config.Config) (storage.Storage, error) {
	if cfg.Storage.Backend == config.StorageRedis {
		return storage.NewRedisStorage(storage.RedisOptions{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			IdleTimeout:  cfg.Redis.IdleTimeout,
			RunTTL:       cfg.Storage.RunRetention,
		})
	}
	return storage.NewMemoryStorage(), nil
}

func newProvider(cfg *config.Config, logger *zap.Logger) (workflow.Provider, error) {
	if cfg.Provider.Stub {
		logger.Warn("using stub provider, generated media URLs are placeholders")
		return provider.NewStub(), nil
	}
	return provider.NewHTTPProvider(cfg.Provider.BaseURL,
		provider.WithAPIKey(cfg.Provider.APIKey),
		provider.WithTimeout(cfg.Provider.RequestTimeout),
		provider.WithLogger(logger.Named("provider")),
	)
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(zapLevel)
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapConfig.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
