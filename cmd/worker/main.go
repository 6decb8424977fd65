// Package main is the worker entrypoint.
//
// The worker:
//  1. Loads configuration (file + environment overrides).
//  2. Opens a pgxpool.Pool to the persistent run queue.
//  3. Runs N independent named worker loops concurrently, one per replica,
//     each repeatedly claiming and executing runs until the process is
//     asked to shut down.
//
// Grounded on cmd/engine/main.go's bootstrap shape (flag parsing, config
// load, component construction, signal.NotifyContext-based graceful
// shutdown) scoped down to what a queue worker needs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/nitinkhare/backtestq/internal/config"
	"github.com/nitinkhare/backtestq/internal/storage"
	"github.com/nitinkhare/backtestq/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to optional JSON config file")
	flag.Parse()

	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Printf("config loaded: worker_name=%s replicas=%d poll_interval=%.1fs", cfg.WorkerName, cfg.Replicas, cfg.PollIntervalSecs)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("failed to open database pool: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatalf("database unreachable: %v", err)
	}
	logger.Println("database connected")

	store := storage.NewPostgresStore(pool)
	pollInterval := time.Duration(cfg.PollIntervalSecs * float64(time.Second))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Replicas; i++ {
		name := cfg.WorkerName
		if cfg.Replicas > 1 {
			name = fmt.Sprintf("%s-%d", cfg.WorkerName, i+1)
		}
		w := worker.New(store, name, pollInterval, logger)
		g.Go(func() error {
			logger.Printf("[worker %s] starting", name)
			err := w.Loop(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		logger.Fatalf("worker group stopped with error: %v", err)
	}
	logger.Println("shutdown complete")
}
