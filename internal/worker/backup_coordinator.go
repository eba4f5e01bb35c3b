package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hyperengineering/nestegg/internal/envelope"
	"github.com/hyperengineering/nestegg/internal/snapshot"
)

// SnapshotSource provides the current goal collection.
type SnapshotSource interface {
	Snapshot() envelope.Envelope
}

// BackupCoordinator uploads the current envelope on a cron schedule.
type BackupCoordinator struct {
	source   SnapshotSource
	uploader snapshot.Uploader
	schedule cron.Schedule
	spec     string
	now      func() time.Time
}

// NewBackupCoordinator parses spec (standard cron syntax or descriptors such
// as "@daily" and "@every 6h") and returns a coordinator.
func NewBackupCoordinator(source SnapshotSource, uploader snapshot.Uploader, spec string) (*BackupCoordinator, error) {
	if spec == "" {
		return nil, errors.New("backup schedule is empty")
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse backup schedule %q: %w", spec, err)
	}
	return &BackupCoordinator{
		source:   source,
		uploader: uploader,
		schedule: schedule,
		spec:     spec,
		now:      time.Now,
	}, nil
}

// Next returns the next scheduled backup after t.
func (c *BackupCoordinator) Next(t time.Time) time.Time {
	return c.schedule.Next(t)
}

// Run starts the scheduler and blocks until ctx is cancelled.
func (c *BackupCoordinator) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "backup-coordinator",
		"action", "worker_started",
		"schedule", c.spec,
		"next", c.Next(c.now()).Format(time.RFC3339),
	)

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	scheduler.Schedule(c.schedule, cron.FuncJob(func() {
		if _, err := c.BackupNow(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("scheduled backup failed",
				"component", "worker",
				"worker", "backup-coordinator",
				"action", "backup_failed",
				"error", err,
			)
		}
	}))
	scheduler.Start()

	<-ctx.Done()
	<-scheduler.Stop().Done()

	slog.Info("worker stopped",
		"component", "worker",
		"worker", "backup-coordinator",
		"action", "worker_stopped",
		"reason", "context_cancelled",
	)
}

// BackupNow uploads the current envelope and returns the backup name.
func (c *BackupCoordinator) BackupNow(ctx context.Context) (string, error) {
	return Backup(ctx, c.source, c.uploader, c.now())
}

// Backup encodes the current envelope of source and uploads it under a
// name derived from at.
func Backup(ctx context.Context, source SnapshotSource, uploader snapshot.Uploader, at time.Time) (string, error) {
	env := source.Snapshot()
	data, err := envelope.Encode(env)
	if err != nil {
		return "", err
	}

	name := snapshot.BackupName(at)
	if err := uploader.Upload(ctx, name, data); err != nil {
		return "", err
	}

	slog.Info("backup uploaded",
		"component", "worker",
		"worker", "backup-coordinator",
		"action", "backup_uploaded",
		"name", name,
		"goals", len(env.Goals),
	)
	return name, nil
}
