package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/nestegg/internal/envelope"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write all goals as a versioned JSON document",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file|->",
	Short: "Replace all goals with an exported document",
	Long: `Replace every goal with the contents of an export. Documents written by
any earlier version are migrated. Use - to read from standard input.
Import also works when the stored goals cannot be read.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to file instead of standard output")
}

func runExport(cmd *cobra.Command, args []string) error {
	return withApp(cmd, false, func(ctx context.Context, a *app) error {
		data, err := envelope.Encode(a.store.Snapshot())
		if err != nil {
			return err
		}

		if exportOutput == "" {
			_, err := cmd.OutOrStdout().Write(append(data, '\n'))
			return err
		}
		if err := os.WriteFile(exportOutput, data, 0o600); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d goals to %s\n", a.store.Len(), exportOutput)
		return nil
	})
}

func readImport(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read import: %w", err)
	}
	return data, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	data, err := readImport(cmd, args[0])
	if err != nil {
		return err
	}
	env, err := envelope.Decode(data)
	if err != nil {
		return fmt.Errorf("import %s: %w", args[0], err)
	}

	return withApp(cmd, true, func(ctx context.Context, a *app) error {
		if err := a.store.Replace(env); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"success":  true,
				"imported": len(env.Goals),
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d goals\n", len(env.Goals))
		return nil
	})
}
