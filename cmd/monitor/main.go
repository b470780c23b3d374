package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yourusername/stream-monitor/internal/aggregator"
	"github.com/yourusername/stream-monitor/internal/alert"
	"github.com/yourusername/stream-monitor/internal/config"
	"github.com/yourusername/stream-monitor/internal/model"
	"github.com/yourusername/stream-monitor/internal/notify"
	"github.com/yourusername/stream-monitor/internal/pipeline"
	"github.com/yourusername/stream-monitor/internal/producer"
	"github.com/yourusername/stream-monitor/internal/source"
	"github.com/yourusername/stream-monitor/internal/storage"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	metricsAddr := flag.String("metrics-addr", ":9090", "address to listen on for metrics")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Start metrics server
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics server listening", zap.String("addr", *metricsAddr))
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			logger.Fatal("metrics server failed", zap.Error(err))
		}
	}()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	agg, err := aggregator.New(cfg.Sketch)
	if err != nil {
		logger.Fatal("failed to build aggregator", zap.Error(err))
	}

	pipe := pipeline.New(agg, cfg.Pipeline, logger)
	monitor := alert.NewMonitor(cfg.Alert)

	var notifier *notify.Client
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewClient(cfg.Notify.WebhookURL)
		logger.Info("alert webhook enabled", zap.String("url", cfg.Notify.WebhookURL))
	}

	reporter := pipeline.NewReporter(agg, pipe, monitor, notifier, cfg.Report.Interval, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := pipe.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("pipeline stopped", zap.Error(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		reporter.Run(ctx)
	}()

	switch cfg.Source.Type {
	case "postgres":
		if cfg.Source.Backfill {
			runBackfill(ctx, cfg, agg, logger)
		}
		src := source.NewPostgresSource(cfg.Source, cfg.Database, pipe, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := src.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("replication source stopped", zap.Error(err))
				cancel()
			}
		}()
	default:
		sim := producer.NewSimulator(pipe, cfg.Producer, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sim.Run(ctx)
		}()
	}

	logger.Info("stream monitor started", zap.String("source", cfg.Source.Type))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down gracefully")
	cancel()
	wg.Wait()

	snap := agg.Snapshot()
	logger.Info("final stats",
		zap.Uint64("events", snap.Events),
		zap.Uint64("unique_keys", snap.UniqueKeys),
		zap.Uint64("dropped", pipe.Dropped()),
		zap.Uint64("abandoned", pipe.Abandoned()))
}

// runBackfill replays existing rows into the aggregator before streaming
// starts, so cardinality and frequency estimates do not begin from zero.
func runBackfill(ctx context.Context, cfg *config.Config, agg *aggregator.Aggregator, logger *zap.Logger) {
	db, err := storage.NewPostgresDB(cfg.Database)
	if err != nil {
		logger.Error("backfill connection failed", zap.Error(err))
		return
	}
	defer db.Close()

	n, err := storage.BackfillEvents(ctx, db, cfg.Source, func(ev model.Event) {
		agg.IngestValue(ev.Key, ev.Value)
	})
	if err != nil {
		logger.Error("backfill failed", zap.Error(err), zap.Int("rows", n))
		return
	}
	logger.Info("backfill complete", zap.Int("rows", n))
}
