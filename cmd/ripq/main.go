package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/seantiz/ripq/internal/api"
	"github.com/seantiz/ripq/internal/config"
	"github.com/seantiz/ripq/internal/engine"
	"github.com/seantiz/ripq/internal/runner"
	"github.com/seantiz/ripq/internal/store"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("ripq: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"work_dir", cfg.WorkDir,
		"engine_bin", cfg.EngineBin,
		"engine_script", cfg.EngineScript,
		"concurrency", cfg.Concurrency,
		"retention", cfg.Retention.String(),
	)
	if cfg.MasterKey == "" {
		logger.Warn("no master key configured; all submissions will be rejected")
	}

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	artifacts, err := engine.NewArtifacts(cfg.WorkDir)
	if err != nil {
		log.Fatalf("failed to prepare work dir: %v", err)
	}

	proc := runner.NewProcess(cfg.EngineBin, cfg.EngineScript, cfg.EngineDir)
	eng := engine.NewEngine(engine.Config{
		Concurrency: cfg.Concurrency,
		Retention:   cfg.Retention,
	}, proc, artifacts, db, logger)

	srv := api.NewServer(cfg.ListenAddr, eng, db, api.Options{
		MasterKey:    cfg.MasterKey,
		MaxBodyBytes: cfg.MaxBodyBytes,
		WriteTimeout: cfg.WriteTimeout,
		FilesDir:     artifacts.OutputDir(),
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}

	logger.Info("waiting for running jobs", "active", eng.GlobalStatus().Active)
	eng.Wait()
	eng.Close()
}
