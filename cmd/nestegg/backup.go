package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/nestegg/internal/config"
	"github.com/hyperengineering/nestegg/internal/envelope"
	"github.com/hyperengineering/nestegg/internal/snapshot"
	"github.com/hyperengineering/nestegg/internal/worker"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Off-site backups to S3-compatible storage",
	Long:  "Upload, list and restore backups. Requires backup.bucket and backup.endpoint in the configuration.",
}

var backupNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Upload a backup of all goals",
	Args:  cobra.NoArgs,
	RunE:  runBackupNow,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored backups, oldest first",
	Args:  cobra.NoArgs,
	RunE:  runBackupList,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore [name]",
	Short: "Replace all goals with a backup (latest by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBackupRestore,
}

func init() {
	backupCmd.AddCommand(backupNowCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
}

// backupUploader returns the configured uploader, or ErrNotConfigured when
// no bucket is set.
func backupUploader(cfg config.BackupConfig) (snapshot.Uploader, error) {
	u, err := newUploader(cfg)
	if err != nil {
		return nil, err
	}
	if _, ok := u.(*snapshot.NoopUploader); ok {
		return nil, snapshot.ErrNotConfigured
	}
	return u, nil
}

func runBackupNow(cmd *cobra.Command, args []string) error {
	return withApp(cmd, false, func(ctx context.Context, a *app) error {
		uploader, err := backupUploader(a.cfg.Backup)
		if err != nil {
			return err
		}
		name, err := worker.Backup(ctx, a.store, uploader, time.Now())
		if err != nil {
			return fmt.Errorf("backup: %w", err)
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"name":  name,
				"goals": a.store.Len(),
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Uploaded backup %s (%d goals)\n", name, a.store.Len())
		return nil
	})
}

func runBackupList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	uploader, err := backupUploader(cfg.Backup)
	if err != nil {
		return err
	}

	names, err := uploader.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}

	if jsonOutput {
		if names == nil {
			names = []string{}
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"backups": names,
			"total":   len(names),
		})
	}
	if len(names) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No backups found.")
		return nil
	}
	for _, name := range names {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	return withApp(cmd, true, func(ctx context.Context, a *app) error {
		uploader, err := backupUploader(a.cfg.Backup)
		if err != nil {
			return err
		}

		var (
			name string
			data []byte
		)
		if len(args) == 1 {
			name = args[0]
			data, err = uploader.Download(ctx, name)
		} else {
			name, data, err = snapshot.Latest(ctx, uploader)
		}
		if err != nil {
			return fmt.Errorf("fetch backup: %w", err)
		}

		env, err := envelope.Decode(data)
		if err != nil {
			return fmt.Errorf("backup %s: %w", name, err)
		}
		if err := a.store.Replace(env); err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"success":  true,
				"name":     name,
				"restored": len(env.Goals),
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restored %d goals from %s\n", len(env.Goals), name)
		return nil
	})
}
