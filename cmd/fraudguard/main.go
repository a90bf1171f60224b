package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fraudguard/internal/api"
	"fraudguard/internal/bridge"
	"fraudguard/internal/config"
	"fraudguard/internal/engine"
	"fraudguard/internal/export"
	"fraudguard/internal/gesture"
	"fraudguard/internal/ingest"
	"fraudguard/internal/logging"
	"fraudguard/internal/model"
	"fraudguard/internal/results"
	"fraudguard/internal/storage"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "fraudguard.yaml", "path to config file")
	writeConfig := flag.Bool("write-default-config", false, "write the default config to the given path and exit")
	flag.Parse()

	if *writeConfig {
		if err := config.Save(*configPath, config.DefaultConfig()); err != nil {
			fmt.Fprintf(os.Stderr, "write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote default config to %s\n", *configPath)
		return
	}

	mgr, err := config.NewManager(config.ResolvePath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg := mgr.Get()
	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("fraudguard starting", "version", version, "config", mgr.Path())

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if store != nil {
		if err := store.Init(ctx); err != nil {
			logger.Error("storage schema init failed", "err", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	resultsStore := results.NewStore(cfg.Results.HistoryLimit)
	eng := engine.NewEngine(cfg, logger, resultsStore, store)
	if store != nil {
		if err := eng.RestoreStates(ctx); err != nil {
			logger.Warn("baseline restore failed, starting cold", "err", err)
		} else {
			logger.Info("baselines restored from storage")
		}
	}

	if cfg.Export.Enabled && eng.Touch() != nil {
		csvWriter, err := export.NewCSVWriter(cfg.Export.Path)
		if err != nil {
			logger.Error("feature export init failed", "err", err)
			os.Exit(1)
		}
		defer csvWriter.Close()
		eng.Touch().AddFeatureObserver(func(fv gesture.FeatureVector) {
			if err := csvWriter.Append(fv); err != nil {
				logger.Warn("feature export write failed", "err", err)
			}
		})
		logger.Info("gesture feature export enabled", "path", cfg.Export.Path)
	}

	if b := bridge.New(cfg.Bridge, logger); b != nil && eng.Touch() != nil {
		eng.Touch().AddFeatureObserver(func(fv gesture.FeatureVector) {
			go func() {
				verdict, err := b.Score(ctx, fv)
				if err != nil {
					logger.Warn("bridge scoring failed", "err", err)
					return
				}
				if verdict.Anomaly {
					logger.Warn("external model flagged gesture",
						"score", verdict.Score, "mse", verdict.MSE, "threshold", verdict.Threshold)
				}
			}()
		})
		logger.Info("external model bridge enabled", "command", cfg.Bridge.Command)
	}

	events := make(chan model.RawEvent, cfg.Ingest.ChannelBuffer)
	parser := ingest.NewParser()
	ingest.StartREST(ctx, mgr, parser, events, logger)
	ingest.StartTCPStream(ctx, mgr, parser, events, logger)
	ingest.StartFileTail(ctx, mgr, parser, events, logger)
	ingest.StartKafka(ctx, mgr, parser, events, logger)

	eng.Start(ctx, events)
	api.Start(ctx, mgr, resultsStore, eng, logger, version)

	stopWatch := make(chan struct{})
	go mgr.Watch(3*time.Second, func(next *config.Config) {
		logger.Info("config reloaded", "path", mgr.Path())
		eng.UpdateConfig(next)
	}, func(err error) {
		logger.Warn("config reload failed", "err", err)
	}, stopWatch)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
	close(stopWatch)

	if cfg.Engine.PersistOnStop && store != nil {
		saveCtx, saveCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := eng.SaveStates(saveCtx); err != nil {
			logger.Error("baseline save failed", "err", err)
		} else {
			logger.Info("baselines persisted")
		}
		saveCancel()
	}
	eng.Stop()
	cancel()
}
