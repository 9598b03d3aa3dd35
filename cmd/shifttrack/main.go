package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shifttrack/internal/api"
	"shifttrack/internal/clock"
	"shifttrack/internal/config"
	"shifttrack/internal/crossing"
	"shifttrack/internal/history"
	"shifttrack/internal/ingest"
	"shifttrack/internal/logging"
	"shifttrack/internal/model"
	"shifttrack/internal/notify"
	"shifttrack/internal/perimeter"
	"shifttrack/internal/storage"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfgMgr, err := config.NewManager(config.ResolvePath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg := cfgMgr.Get()
	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting shifttrack", "version", version, "config", cfgMgr.Path())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("open storage", "err", err)
		os.Exit(1)
	}
	if store != nil {
		if err := store.Init(ctx); err != nil {
			logger.Error("init storage", "err", err)
			os.Exit(1)
		}
		defer store.Close()
		logger.Info("storage enabled", "driver", cfg.Storage.Driver)
	}

	registry := perimeter.NewRegistry(cfg.PerimeterSet())
	gate := clock.NewGate(registry, gateOptions(cfg))
	historyStore := history.NewStore(cfg.History.StoreLimit)
	ledger := clock.NewLedger(gate, logging.With(logger, "clock"), historyStore, store)
	crossingsStore := notify.NewStore(cfg.Crossings.StoreLimit)
	detector := crossing.NewDetector(registry, crossingsStore, logging.With(logger, "crossing"), store, monitorOptions(cfg))

	observations := make(chan model.Observation, cfg.Ingest.ChannelBuffer)
	detector.Start(ctx, observations)

	parser := ingest.NewParser()
	ingestLogger := logging.With(logger, "ingest")
	if cfg.Ingest.REST.Enabled {
		ingest.StartREST(ctx, cfgMgr, observations, ingestLogger)
	}
	if cfg.Ingest.TCPStream.Enabled {
		ingest.StartTCPStream(ctx, cfgMgr, parser, observations, ingestLogger)
	}
	if cfg.Ingest.FileTail.Enabled {
		ingest.StartFileTail(ctx, cfgMgr, parser, observations, ingestLogger)
	}
	if cfg.Ingest.Kafka.Enabled {
		ingest.StartKafka(ctx, cfgMgr, parser, observations, ingestLogger)
	}

	api.Start(ctx, cfgMgr, registry, ledger, historyStore, crossingsStore, detector, logging.With(logger, "api"), version)

	go cfgMgr.Watch(10*time.Second, func(next *config.Config) {
		registry.SetPerimeters(next.PerimeterSet())
		gate.UpdateOptions(gateOptions(next))
		detector.UpdateOptions(monitorOptions(next))
		logger.Info("config reloaded", "perimeters", len(next.Perimeters))
	}, func(err error) {
		logger.Warn("config reload failed", "err", err)
	}, ctx.Done())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Info("shutting down", "signal", s.String())
	cancel()
	time.Sleep(200 * time.Millisecond)
}

func gateOptions(cfg *config.Config) perimeter.CheckOptions {
	return perimeter.CheckOptions{
		AllowBufferMeters:       cfg.Gate.AllowBufferMeters,
		RequireHighAccuracy:     cfg.Gate.RequireHighAccuracy,
		AccuracyThresholdMeters: cfg.Gate.AccuracyThresholdMeters,
	}
}

func monitorOptions(cfg *config.Config) crossing.Options {
	return crossing.Options{
		Check: perimeter.CheckOptions{
			AllowBufferMeters:       cfg.Monitor.AllowBufferMeters,
			RequireHighAccuracy:     cfg.Monitor.RequireHighAccuracy,
			AccuracyThresholdMeters: cfg.Monitor.AccuracyThresholdMeters,
		},
		NotifyCooldown: cfg.Monitor.NotifyCooldown,
		DedupeWindow:   cfg.Monitor.DedupeWindow,
	}
}
