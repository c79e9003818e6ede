package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"hermes/internal/adapters/config"
	"hermes/internal/adapters/errors/noop"
	"hermes/internal/adapters/errors/sentry"
	"hermes/internal/adapters/kafka"
	redisadapter "hermes/internal/adapters/redis"
	"hermes/internal/archiver"
	"hermes/internal/bus"
	"hermes/internal/domain/risk"
	"hermes/internal/metrics"
	"hermes/internal/registry"
	portfolioservice "hermes/internal/services/portfolio"
	riskservice "hermes/internal/services/risk"
	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

const defaultPortfolioID = "main"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	metrics.Init()
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(cfg.Metrics.Addr); err != nil {
				log.Errorf("Metrics server stopped: %v", err)
			}
		}()
		log.Infow("Metrics server listening", "addr", cfg.Metrics.Addr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus, closeBus := initBus(ctx, cfg, log)
	defer closeBus()

	riskManager := riskservice.NewManager(risk.LimitsFromConfig(cfg.Risk), eventBus, log)
	portfolioManager := portfolioservice.NewManager(defaultPortfolioID, cfg.Portfolio, eventBus, log)

	startingEquity := decimal.NewFromFloat(cfg.Portfolio.StartingEquity)
	riskManager.Initialize(defaultPortfolioID, startingEquity)
	portfolioManager.Initialize(startingEquity)

	bots := registry.New()

	if cfg.Kafka.Enabled {
		mirror := archiver.New(eventBus, kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers}), log)
		if err := mirror.Start(ctx); err != nil {
			log.Fatalf("Failed to start analytics mirror: %v", err)
		}
		defer func() {
			if err := mirror.Stop(); err != nil {
				log.Warnf("Analytics mirror stop: %v", err)
			}
		}()
	}

	log.Infow("Coordinator ready",
		"bus", cfg.Bus.Backend,
		"bots", len(bots.List()),
		"kafka_mirror", cfg.Kafka.Enabled,
	)

	waitForShutdown(ctx, cancel, errorTracker, log)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// initBus selects the bus backend from configuration and connects it
func initBus(ctx context.Context, cfg *config.Config, log *logger.Logger) (bus.Bus, func()) {
	var b bus.Bus
	var closers []func()

	switch cfg.Bus.Backend {
	case "stream":
		client, err := redisadapter.NewClient(cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		closers = append(closers, func() { _ = client.Close() })
		b = bus.NewStreamBus(client, cfg.Bus, log)
	default:
		b = bus.NewMemoryBus(log)
	}

	if err := b.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect bus: %v", err)
	}
	closers = append(closers, func() { _ = b.Disconnect(context.Background()) })

	return b, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}

// waitForShutdown blocks until SIGINT/SIGTERM and performs graceful shutdown
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, errorTracker errors.Tracker, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down...")

	cancel()

	if errorTracker != nil {
		if err := errorTracker.Flush(ctx); err != nil {
			log.Warnf("Failed to flush error tracker: %v", err)
		}
	}

	log.Info("Shutdown complete")
}
