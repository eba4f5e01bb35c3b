package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/nestegg/internal/stats"
)

var statsRecent int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show totals across all goals",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List goal categories",
	Args:  cobra.NoArgs,
	RunE:  runCategories,
}

func init() {
	statsCmd.Flags().IntVar(&statsRecent, "recent", stats.DefaultRecent, "Number of recent transactions to show")
}

func runStats(cmd *cobra.Command, args []string) error {
	return withApp(cmd, false, func(ctx context.Context, a *app) error {
		s := stats.Compute(a.store.Goals(), time.Now(), statsRecent)
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), s)
		}

		out := cmd.OutOrStdout()
		w := newTabWriter(out)
		fmt.Fprintf(w, "Goals:\t%d (%d active, %d completed, %d paused, %d cancelled)\n",
			s.TotalGoals, s.ActiveGoals, s.CompletedGoals, s.PausedGoals, s.CancelledGoals)
		fmt.Fprintf(w, "Saved:\t%s of %s (%.1f%%)\n", formatAmount(s.TotalSaved), formatAmount(s.TotalTarget), s.TotalProgress)
		fmt.Fprintf(w, "Deposits:\t%s\n", formatAmount(s.TotalDeposits))
		fmt.Fprintf(w, "Withdrawals:\t%s\n", formatAmount(s.TotalWithdrawals))
		fmt.Fprintf(w, "Average per goal:\t%s\n", formatAmount(s.AverageSaved))
		fmt.Fprintf(w, "Completion rate:\t%.0f%%\n", s.CompletionRate)
		if u := s.UrgentGoal; u != nil {
			fmt.Fprintf(w, "Most urgent:\t%s %s, due %s (%d days, %.0f%%)\n", u.Emoji, u.Name, u.Deadline, u.DaysLeft, u.Progress)
		}
		if p := s.PopularCategory; p != nil {
			name := p.ID
			if c, ok := a.registry.Lookup(p.ID); ok {
				name = c.Emoji + " " + c.Name
			}
			fmt.Fprintf(w, "Popular category:\t%s (%d goals)\n", name, p.Count)
		}
		w.Flush()

		if len(s.RecentTransactions) == 0 {
			return nil
		}
		fmt.Fprintln(out, "\nRecent transactions:")
		w = newTabWriter(out)
		for _, rt := range s.RecentTransactions {
			fmt.Fprintf(w, "  %s\t%s %s\t%s\n", rt.Date.Format("2006-01-02"), rt.GoalEmoji, rt.GoalName, formatSigned(rt.Amount))
		}
		return w.Flush()
	})
}

func runCategories(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	categories := categoryRegistry(cfg).All()

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"categories": categories,
			"total":      len(categories),
		})
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "ID\tNAME\tCOLOR")
	for _, c := range categories {
		fmt.Fprintf(w, "%s\t%s %s\t%s\n", c.ID, c.Emoji, c.Name, c.Color)
	}
	return w.Flush()
}
