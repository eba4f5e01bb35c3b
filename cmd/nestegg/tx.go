package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/nestegg/internal/types"
)

var (
	txAmount string
	txNote   string
	txDate   string
)

var txCmd = &cobra.Command{
	Use:     "tx",
	Aliases: []string{"transaction"},
	Short:   "Record deposits and withdrawals",
}

var txAddCmd = &cobra.Command{
	Use:   "add <goal-id>",
	Short: "Record a transaction (negative amounts are withdrawals)",
	Args:  cobra.ExactArgs(1),
	RunE:  runTxAdd,
}

var txRemoveCmd = &cobra.Command{
	Use:   "remove <goal-id> <transaction-id>",
	Short: "Delete a transaction",
	Args:  cobra.ExactArgs(2),
	RunE:  runTxRemove,
}

func init() {
	txAddCmd.Flags().StringVar(&txAmount, "amount", "", "Signed amount, e.g. 50 or -20.5")
	txAddCmd.Flags().StringVar(&txNote, "note", "", "Note")
	txAddCmd.Flags().StringVar(&txDate, "date", "", "Date (YYYY-MM-DD or RFC 3339); defaults to now")

	txCmd.AddCommand(txAddCmd)
	txCmd.AddCommand(txRemoveCmd)
}

// parseTxDate accepts a calendar date or a full timestamp. Empty means now.
func parseTxDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := types.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--date: %q is neither YYYY-MM-DD nor RFC 3339", s)
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC), nil
}

func runTxAdd(cmd *cobra.Command, args []string) error {
	amount, err := parseAmount("amount", txAmount)
	if err != nil {
		return err
	}
	if amount == nil {
		return errors.New("--amount is required")
	}
	date, err := parseTxDate(txDate)
	if err != nil {
		return err
	}

	in := types.TransactionInput{Amount: amount, Date: date, Note: txNote}

	return withApp(cmd, false, func(ctx context.Context, a *app) error {
		before, err := a.store.Goal(args[0])
		if err != nil {
			return err
		}
		tx, err := a.store.AddTransaction(args[0], in)
		if err != nil {
			return describeError(err)
		}
		after, err := a.store.Goal(args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"success":     true,
				"transaction": tx,
				"goal":        after,
			})
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Recorded %s on %q: saved %s of %s\n",
			formatSigned(tx.Amount), after.Name, formatAmount(after.Saved), formatAmount(after.Target))
		if before.Status != types.StatusCompleted && after.Status == types.StatusCompleted {
			fmt.Fprintf(out, "Goal %q completed!\n", after.Name)
		}
		return nil
	})
}

func runTxRemove(cmd *cobra.Command, args []string) error {
	goalID, txID := args[0], args[1]

	return withApp(cmd, false, func(ctx context.Context, a *app) error {
		if err := a.store.RemoveTransaction(goalID, txID); err != nil {
			return err
		}
		g, err := a.store.Goal(goalID)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"success": true,
				"goal":    g,
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed transaction %s from %q: saved %s of %s (%s)\n",
			txID, g.Name, formatAmount(g.Saved), formatAmount(g.Target), g.Status)
		return nil
	})
}
