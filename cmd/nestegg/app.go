package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/nestegg/internal/category"
	"github.com/hyperengineering/nestegg/internal/config"
	"github.com/hyperengineering/nestegg/internal/goals"
	"github.com/hyperengineering/nestegg/internal/persist"
	"github.com/hyperengineering/nestegg/internal/snapshot"
	"github.com/hyperengineering/nestegg/internal/worker"
)

// newUploader is replaced in tests.
var newUploader = snapshot.NewUploader

// app is the goal store wired to its configured storage for the duration of
// one command. Writes go through a Writer that is never started; close
// flushes the latest snapshot synchronously.
type app struct {
	cfg      *config.Config
	adapter  persist.Adapter
	writer   *worker.Writer
	store    *goals.Store
	registry *category.Registry
}

func storageOptions(cfg config.StorageConfig) persist.Options {
	return persist.Options{
		Backend: cfg.Backend,
		Path:    cfg.Path,
		DSN:     cfg.DSN,
		Key:     cfg.Key,
	}
}

func writerConfig(cfg config.PersistConfig, debounce bool) worker.WriterConfig {
	wc := worker.WriterConfig{
		Timeout:     time.Duration(cfg.Timeout),
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  time.Duration(cfg.RetryDelay),
	}
	if debounce {
		wc.Debounce = time.Duration(cfg.Debounce)
	}
	return wc
}

// cliLogConfig keeps one-shot commands quiet unless debug output is asked for.
func cliLogConfig(cfg config.LogConfig) config.LogConfig {
	if parseLogLevel(cfg.Level) == slog.LevelInfo {
		cfg.Level = "warn"
	}
	return cfg
}

// openApp loads configuration, opens storage and loads the goal collection.
// Unless allowLoadFailure is set, unreadable stored data aborts the command
// so that it is not overwritten by an empty collection.
func openApp(ctx context.Context, cmd *cobra.Command, allowLoadFailure bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(newLogger(cmd.ErrOrStderr(), cliLogConfig(cfg.Log)))

	adapter, err := persist.Open(ctx, storageOptions(cfg.Storage))
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}

	registry := categoryRegistry(cfg)
	writer := worker.NewWriter(adapter, writerConfig(cfg.Persist, false))
	store := goals.New(
		goals.WithLoader(adapter),
		goals.WithPersister(writer),
		goals.WithCategories(registry),
	)

	if err := store.Load(ctx); err != nil && !allowLoadFailure {
		adapter.Close()
		return nil, fmt.Errorf("stored goals could not be loaded; restore them with 'nestegg import' or 'nestegg backup restore': %w", err)
	}

	return &app{
		cfg:      cfg,
		adapter:  adapter,
		writer:   writer,
		store:    store,
		registry: registry,
	}, nil
}

// close flushes pending changes and releases storage.
func (a *app) close(ctx context.Context) error {
	flushErr := a.writer.Flush(ctx)
	closeErr := a.adapter.Close()
	return errors.Join(flushErr, closeErr)
}

// withApp runs fn against an open app and closes it afterwards. A failed
// flush is reported even when fn succeeded.
func withApp(cmd *cobra.Command, allowLoadFailure bool, fn func(ctx context.Context, a *app) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := openApp(ctx, cmd, allowLoadFailure)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return fn(ctx, a)
}
