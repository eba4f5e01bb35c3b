package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/hyperengineering/nestegg/internal/envelope"
)

// ErrPersistence wraps a save that failed after every attempt. The in-memory
// collection is never rolled back; the snapshot stays pending.
var ErrPersistence = errors.New("persistence failed")

// Saver is the durable side of the writer.
type Saver interface {
	Save(ctx context.Context, data []byte) error
}

// WriterConfig tunes a Writer.
type WriterConfig struct {
	// Debounce delays a write after the first pending snapshot so bursts of
	// mutations coalesce into one save.
	Debounce time.Duration
	// Timeout bounds a single save attempt. Zero means no timeout.
	Timeout time.Duration
	// MaxAttempts bounds retries of one save. Values below 1 mean 1.
	MaxAttempts int
	// RetryDelay is multiplied by the attempt number between retries.
	RetryDelay time.Duration
}

// WriterStats reports writer activity.
type WriterStats struct {
	Written int64 `json:"written"`
	Failed  int64 `json:"failed"`
	Pending bool  `json:"pending"`
}

// Writer is the single background writer between the goal store and its
// storage backend. Snapshots handed to Persist replace any unwritten one, so
// only the latest state is ever saved.
type Writer struct {
	saver Saver
	cfg   WriterConfig

	mu      sync.Mutex
	pending *envelope.Envelope

	// writeMu serializes saves between Run and Flush.
	writeMu sync.Mutex
	notify  chan struct{}

	written atomic.Int64
	failed  atomic.Int64
}

// NewWriter creates a writer over saver.
func NewWriter(saver Saver, cfg WriterConfig) *Writer {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Writer{
		saver:  saver,
		cfg:    cfg,
		notify: make(chan struct{}, 1),
	}
}

// Persist queues env for saving. It never blocks.
func (w *Writer) Persist(env envelope.Envelope) {
	w.mu.Lock()
	w.pending = &env
	w.mu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Run saves queued snapshots until ctx is cancelled, then flushes whatever
// is still pending. Blocks until done.
func (w *Writer) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "persist-writer",
		"action", "worker_started",
		"debounce", w.cfg.Debounce.String(),
	)

	for {
		select {
		case <-ctx.Done():
			if err := w.Flush(context.Background()); err != nil {
				slog.Error("final flush failed, latest changes not saved",
					"component", "worker",
					"worker", "persist-writer",
					"action", "final_flush_failed",
					"error", err,
				)
			}
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "persist-writer",
				"action", "worker_stopped",
				"reason", "context_cancelled",
			)
			return
		case <-w.notify:
			if !w.debounce(ctx) {
				continue
			}
			_ = w.Flush(ctx)
		}
	}
}

// debounce waits out the debounce window. Returns false if ctx ended first.
func (w *Writer) debounce(ctx context.Context) bool {
	if w.cfg.Debounce <= 0 {
		return true
	}
	timer := time.NewTimer(w.cfg.Debounce)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Flush synchronously saves the pending snapshot, if any.
func (w *Writer) Flush(ctx context.Context) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.Lock()
	env := w.pending
	w.pending = nil
	w.mu.Unlock()

	if env == nil {
		return nil
	}

	data, err := envelope.Encode(*env)
	if err != nil {
		w.failed.Add(1)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if err := w.save(ctx, data); err != nil {
		// Keep the snapshot unless a newer one arrived meanwhile
		w.mu.Lock()
		if w.pending == nil {
			w.pending = env
		}
		w.mu.Unlock()

		w.failed.Add(1)
		slog.Error("failed to persist goals",
			"component", "worker",
			"worker", "persist-writer",
			"action", "persist_failed",
			"goals", len(env.Goals),
			"error", err,
		)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	w.written.Add(1)
	slog.Debug("goals persisted",
		"component", "worker",
		"worker", "persist-writer",
		"action", "persisted",
		"goals", len(env.Goals),
		"bytes", len(data),
	)
	return nil
}

func (w *Writer) save(ctx context.Context, data []byte) error {
	attempt := 0
	var last error
	err := retry.Do(ctx, w.backoff(), func(ctx context.Context) error {
		attempt++
		last = w.attempt(ctx, data)
		if last == nil || ctx.Err() != nil {
			return last
		}

		slog.Warn("persist attempt failed",
			"component", "worker",
			"worker", "persist-writer",
			"action", "persist_retry",
			"attempt", attempt,
			"max_attempts", w.cfg.MaxAttempts,
			"error", last,
		)
		return retry.RetryableError(last)
	})
	if err != nil && last != nil && errors.Is(err, ctx.Err()) {
		return last
	}
	return err
}

// backoff waits RetryDelay times the attempt number between attempts and
// stops after MaxAttempts.
func (w *Writer) backoff() retry.Backoff {
	var n time.Duration
	linear := retry.BackoffFunc(func() (time.Duration, bool) {
		n++
		return w.cfg.RetryDelay * n, false
	})
	return retry.WithMaxRetries(uint64(w.cfg.MaxAttempts-1), linear)
}

func (w *Writer) attempt(ctx context.Context, data []byte) error {
	if w.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.Timeout)
		defer cancel()
	}
	return w.saver.Save(ctx, data)
}

// Stats returns counters for successful and failed saves.
func (w *Writer) Stats() WriterStats {
	w.mu.Lock()
	pending := w.pending != nil
	w.mu.Unlock()
	return WriterStats{
		Written: w.written.Load(),
		Failed:  w.failed.Load(),
		Pending: pending,
	}
}
