// testserver starts a ripq API server backed by a stub engine, for client
// development without a Lua toolchain.
// Usage: go run ./cmd/testserver
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seantiz/ripq/internal/api"
	"github.com/seantiz/ripq/internal/config"
	"github.com/seantiz/ripq/internal/engine"
	"github.com/seantiz/ripq/internal/runner"
	"github.com/seantiz/ripq/internal/store"
)

const devMasterKey = "dev"

func main() {
	addr := ":8080"
	if v := os.Getenv("RIPQ_LISTEN_ADDR"); v != "" {
		addr = v
	}

	workDir, err := os.MkdirTemp("", "ripq-testserver-")
	if err != nil {
		log.Fatalf("failed to create work dir: %v", err)
	}
	defer os.RemoveAll(workDir)

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	artifacts, err := engine.NewArtifacts(workDir)
	if err != nil {
		log.Fatalf("failed to prepare work dir: %v", err)
	}

	stub := &runner.Stub{
		Delay:  500 * time.Millisecond,
		Banner: "-- transformed by ripq testserver\n",
		Lines:  []string{"[stub] parsing", "[stub] transforming", "[stub] done"},
	}

	logger := config.NewLogger(os.Stdout, slog.LevelInfo)
	eng := engine.NewEngine(engine.Config{Concurrency: 1, Retention: 10 * time.Minute}, stub, artifacts, db, logger)
	srv := api.NewServer(addr, eng, db, api.Options{
		MasterKey: devMasterKey,
		FilesDir:  artifacts.OutputDir(),
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("testserver: starting", "addr", addr, "master_key", devMasterKey)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
	eng.Wait()
	eng.Close()
}
