package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tripscore/internal/api"
	"tripscore/internal/config"
	"tripscore/internal/engine"
	"tripscore/internal/ingest"
	"tripscore/internal/logging"
	"tripscore/internal/metrics"
	"tripscore/internal/model"
	"tripscore/internal/pipeline"
	"tripscore/internal/reports"
	"tripscore/internal/storage"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run ingest sources, scoring workers and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, flags)
		},
	}
}

func serve(ctx context.Context, flags *globalFlags) error {
	mgr, err := loadConfig(flags)
	if err != nil {
		return err
	}
	cfg := mgr.Get()
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("tripscore starting", "version", Version, "config", mgr.Path())

	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return err
	}
	if store != nil {
		if err := store.Init(ctx); err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		defer store.Close()
		logger.Info("storage enabled", "driver", cfg.Storage.Driver)
	}

	eng := engine.New(cat, cfg.Scoring, logger)
	reportStore := reports.NewStore(cfg.Reports.StoreLimit)
	vehicleStore := metrics.NewStore(cfg.Vehicles.StoreLimit)
	pipe := pipeline.New(eng, reportStore, vehicleStore, store, pipeline.NewGuard(cfg.Workers.ResubmitCooldown), logger)

	stop := make(chan struct{})
	defer close(stop)
	go mgr.Watch(3*time.Second, func(next *config.Config) {
		eng.UpdateConfig(next.Scoring)
		logger.Info("config reloaded")
	}, func(err error) {
		logger.Warn("config reload failed", "err", err)
	}, stop)

	queue := make(chan model.Submission, cfg.Ingest.ChannelBuffer)
	workers := pipe.Start(ctx, queue, cfg.Workers.Count)

	ingest.StartREST(ctx, mgr, cat, queue, logger)
	ingest.StartKafka(ctx, mgr, cat, queue, logger)
	ingest.StartSpool(ctx, mgr, cat, queue, logger)
	api.Start(ctx, api.Deps{
		Config:   mgr,
		Engine:   eng,
		Pipeline: pipe,
		Reports:  reportStore,
		Vehicles: vehicleStore,
		Storage:  store,
		Logger:   logger,
		Version:  Version,
	})

	<-ctx.Done()
	logger.Info("shutting down")
	workers.Wait()
	return nil
}
