// Package main is the entry point for the forge maintenance daemon.
//
// The daemon owns the background side of the platform: it connects to
// PostgreSQL, runs the document store migrations when configured, and
// drives the periodic expiry sweeps through River. Interactive
// operations go through the library packages; this process only keeps
// the data fresh.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"collabforge.io/forge/internal/config"
	"collabforge.io/forge/internal/domain"
	"collabforge.io/forge/internal/infrastructure"
	"collabforge.io/forge/internal/jobs"
	"collabforge.io/forge/internal/notification"
	"collabforge.io/forge/internal/pkg/logger"
	"collabforge.io/forge/internal/pkg/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Starting forge daemon",
		zap.String("log_level", cfg.Log.Level),
		zap.Duration("sweep_interval", cfg.Expiry.SweepInterval),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(ctx); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize:  cfg.Worker.GeneralPoolSize,
		DispatchPoolSize: cfg.Worker.DispatchPoolSize,
	})
	if err != nil {
		return fmt.Errorf("init worker pools: %w", err)
	}
	defer pools.Shutdown()

	events := domain.NewEventDispatcher()
	notification.NewTriggers(notification.LogSender{}, db.Store, pools).RegisterHooks(events)

	workers := river.NewWorkers()
	river.AddWorker(workers, jobs.NewOpportunityExpiryWorker(db.Store, events, cfg.Expiry.OpportunityTTL))
	river.AddWorker(workers, jobs.NewProposalExpiryWorker(db.Store, events, cfg.Expiry.ProposalTTL))

	if err := db.InitRiverClient(workers, cfg.River); err != nil {
		return fmt.Errorf("init river: %w", err)
	}

	db.RiverClient.PeriodicJobs().Add(river.NewPeriodicJob(
		river.PeriodicInterval(cfg.Expiry.SweepInterval),
		func() (river.JobArgs, *river.InsertOpts) {
			return jobs.OpportunityExpiryArgs{}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	))
	db.RiverClient.PeriodicJobs().Add(river.NewPeriodicJob(
		river.PeriodicInterval(cfg.Expiry.SweepInterval),
		func() (river.JobArgs, *river.InsertOpts) {
			return jobs.ProposalExpiryArgs{}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	))

	if err := db.RiverClient.Start(ctx); err != nil {
		return fmt.Errorf("start river: %w", err)
	}
	logger.Info("Expiry sweeps scheduled")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown signal received")

	if err := db.RiverClient.Stop(context.Background()); err != nil {
		return fmt.Errorf("stop river: %w", err)
	}

	logger.Info("Daemon stopped gracefully")
	return nil
}
