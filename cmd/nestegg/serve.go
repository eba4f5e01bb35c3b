package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/nestegg/internal/api"
	"github.com/hyperengineering/nestegg/internal/goals"
	"github.com/hyperengineering/nestegg/internal/persist"
	"github.com/hyperengineering/nestegg/internal/stats"
	"github.com/hyperengineering/nestegg/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// 3. Initialize logger
	slog.SetDefault(newLogger(os.Stdout, cfg.Log))
	slog.Info("configuration loaded", "level", cfg.Log.Level, "backend", cfg.Storage.Backend)

	// 4. Open storage
	adapter, err := persist.Open(ctx, storageOptions(cfg.Storage))
	if err != nil {
		return err
	}
	slog.Info("storage opened", "backend", cfg.Storage.Backend)

	// 5. Load goals
	registry := categoryRegistry(cfg)
	writer := worker.NewWriter(adapter, writerConfig(cfg.Persist, true))
	store := goals.New(
		goals.WithLoader(adapter),
		goals.WithPersister(writer),
		goals.WithCategories(registry),
	)
	if err := store.Load(ctx); err != nil {
		slog.Warn("serving an empty collection until goals are imported or restored",
			"component", "server",
			"action", "degraded",
		)
	}

	var coordinator *worker.BackupCoordinator
	if cfg.Backup.Schedule != "" {
		uploader, err := backupUploader(cfg.Backup)
		if err == nil {
			coordinator, err = worker.NewBackupCoordinator(store, uploader, cfg.Backup.Schedule)
		}
		if err != nil {
			adapter.Close()
			return err
		}
	}

	tracker := stats.NewTracker(store, time.Now, stats.DefaultRecent)
	defer tracker.Close()

	// 6. Initialize HTTP router
	handler := api.NewHandler(store, tracker, registry, cfg.Storage.Backend, cfg.Auth.APIKey, Version)
	router := api.NewRouter(handler)

	// 7. Configure HTTP server
	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 8. Workers
	var wg sync.WaitGroup
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	startWorker(workerCtx, &wg, "persist-writer", writer.Run)
	if coordinator != nil {
		startWorker(ctx, &wg, "backup-coordinator", coordinator.Run)
	}

	// 9. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr, "version", Version)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	// 10. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 11. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// 11a. Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 11b. Stop workers; the writer flushes the last snapshot on the way out
	stopWorkers()
	wg.Wait()

	// 11c. Close storage
	if err := adapter.Close(); err != nil {
		slog.Error("storage close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Debug("worker launched", "worker", name)
		fn(ctx)
		slog.Debug("worker exited", "worker", name)
	}()
}
