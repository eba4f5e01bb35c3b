package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/hyperengineering/nestegg/internal/goals"
	"github.com/hyperengineering/nestegg/internal/query"
	"github.com/hyperengineering/nestegg/internal/types"
)

var (
	goalName          string
	goalTarget        string
	goalSaved         string
	goalEmoji         string
	goalColor         string
	goalDescription   string
	goalNotes         string
	goalCategory      string
	goalPriority      string
	goalDeadline      string
	goalStatus        string
	goalClearDeadline bool
	goalFilter        string
	goalForce         bool
)

// defaultEmoji is used by goal add when neither --emoji nor a category
// emoji is available.
const defaultEmoji = "🎯"

var goalCmd = &cobra.Command{
	Use:   "goal",
	Short: "Manage savings goals",
}

var goalAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a goal",
	Args:  cobra.NoArgs,
	RunE:  runGoalAdd,
}

var goalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List goals",
	Long: `List goals, optionally filtered by an expression over the fields
id, name, emoji, status, priority, category, saved, target, remaining,
progress, has_deadline, days_left and transactions. For example:

  nestegg goal list --filter 'status == "active" && progress >= 50'`,
	Args: cobra.NoArgs,
	RunE: runGoalList,
}

var goalShowCmd = &cobra.Command{
	Use:   "show <goal-id>",
	Short: "Show a goal and its transactions",
	Args:  cobra.ExactArgs(1),
	RunE:  runGoalShow,
}

var goalUpdateCmd = &cobra.Command{
	Use:   "update <goal-id>",
	Short: "Update goal details or status",
	Long:  "Update the given goal. Only flags that are passed change; the balance is changed with 'nestegg tx'.",
	Args:  cobra.ExactArgs(1),
	RunE:  runGoalUpdate,
}

var goalRemoveCmd = &cobra.Command{
	Use:   "remove <goal-id>",
	Short: "Delete a goal and its transactions",
	Long:  "Permanently delete a goal. Requires --force or interactive confirmation.",
	Args:  cobra.ExactArgs(1),
	RunE:  runGoalRemove,
}

func init() {
	for _, c := range []*cobra.Command{goalAddCmd, goalUpdateCmd} {
		c.Flags().StringVar(&goalName, "name", "", "Goal name")
		c.Flags().StringVar(&goalTarget, "target", "", "Target amount")
		c.Flags().StringVar(&goalEmoji, "emoji", "", "Emoji (add defaults to the category's)")
		c.Flags().StringVar(&goalColor, "color", "", "Color token")
		c.Flags().StringVar(&goalDescription, "description", "", "Description")
		c.Flags().StringVar(&goalNotes, "notes", "", "Notes")
		c.Flags().StringVar(&goalCategory, "category", "", "Category ID")
		c.Flags().StringVar(&goalPriority, "priority", "", "Priority: low, medium, high")
		c.Flags().StringVar(&goalDeadline, "deadline", "", "Deadline (YYYY-MM-DD)")
	}
	goalAddCmd.Flags().StringVar(&goalSaved, "saved", "", "Amount already saved")
	goalUpdateCmd.Flags().StringVar(&goalStatus, "status", "", "Status: active, completed, paused, cancelled")
	goalUpdateCmd.Flags().BoolVar(&goalClearDeadline, "clear-deadline", false, "Remove the deadline")
	goalListCmd.Flags().StringVar(&goalFilter, "filter", "", "Filter expression")
	goalRemoveCmd.Flags().BoolVar(&goalForce, "force", false, "Skip confirmation prompt")

	goalCmd.AddCommand(goalAddCmd)
	goalCmd.AddCommand(goalListCmd)
	goalCmd.AddCommand(goalShowCmd)
	goalCmd.AddCommand(goalUpdateCmd)
	goalCmd.AddCommand(goalRemoveCmd)
}

// parseAmount parses a decimal flag value. Empty means absent.
func parseAmount(flag, s string) (*decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("--%s: %q is not a number", flag, s)
	}
	return &d, nil
}

func parseDeadline(s string) (*types.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := types.ParseDate(s)
	if err != nil {
		return nil, fmt.Errorf("--deadline: %w", err)
	}
	return &d, nil
}

// describeError expands validation failures into one line per field.
func describeError(err error) error {
	fields := goals.FieldErrors(err)
	if len(fields) == 0 {
		return err
	}
	lines := make([]string, len(fields))
	for i, fe := range fields {
		lines[i] = "  " + fe.Error()
	}
	return fmt.Errorf("invalid goal:\n%s", strings.Join(lines, "\n"))
}

func runGoalAdd(cmd *cobra.Command, args []string) error {
	target, err := parseAmount("target", goalTarget)
	if err != nil {
		return err
	}
	saved, err := parseAmount("saved", goalSaved)
	if err != nil {
		return err
	}
	deadline, err := parseDeadline(goalDeadline)
	if err != nil {
		return err
	}

	in := types.GoalInput{
		Name:        goalName,
		Target:      target,
		Saved:       saved,
		Emoji:       goalEmoji,
		Color:       goalColor,
		Description: goalDescription,
		Notes:       goalNotes,
		CategoryID:  goalCategory,
		Priority:    types.Priority(goalPriority),
		Deadline:    deadline,
	}

	return withApp(cmd, false, func(ctx context.Context, a *app) error {
		if in.Emoji == "" {
			in.Emoji = defaultEmoji
			if c, ok := a.registry.Lookup(in.CategoryID); ok && c.Emoji != "" {
				in.Emoji = c.Emoji
			}
		}
		g, err := a.store.AddGoal(in)
		if err != nil {
			return describeError(err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"success": true,
				"goal":    g,
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created goal %q (%s)\n", g.Name, g.ID)
		return nil
	})
}

func runGoalList(cmd *cobra.Command, args []string) error {
	filter, err := query.Compile(goalFilter)
	if err != nil {
		return err
	}

	return withApp(cmd, false, func(ctx context.Context, a *app) error {
		list, err := filter.Apply(a.store.Goals(), time.Now())
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"goals": list,
				"total": len(list),
			})
		}

		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No goals found.")
			return nil
		}

		w := newTabWriter(cmd.OutOrStdout())
		fmt.Fprintln(w, "ID\tGOAL\tSAVED\tTARGET\tPROGRESS\tSTATUS\tDEADLINE")
		for _, g := range list {
			fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\t%.0f%%\t%s\t%s\n",
				g.ID,
				g.Emoji, g.Name,
				formatAmount(g.Saved),
				formatAmount(g.Target),
				g.Progress(),
				g.Status,
				formatDeadline(g.Deadline),
			)
		}
		return w.Flush()
	})
}

func runGoalShow(cmd *cobra.Command, args []string) error {
	return withApp(cmd, false, func(ctx context.Context, a *app) error {
		g, err := a.store.Goal(args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), g)
		}
		writeGoalDetail(cmd.OutOrStdout(), g, a, time.Now())
		return nil
	})
}

func writeGoalDetail(out io.Writer, g types.Goal, a *app, now time.Time) {
	w := newTabWriter(out)
	fmt.Fprintf(w, "Goal:\t%s %s\n", g.Emoji, g.Name)
	fmt.Fprintf(w, "ID:\t%s\n", g.ID)
	fmt.Fprintf(w, "Status:\t%s\n", g.Status)
	fmt.Fprintf(w, "Priority:\t%s\n", g.Priority)
	if c, ok := a.registry.Lookup(g.CategoryID); ok {
		fmt.Fprintf(w, "Category:\t%s %s\n", c.Emoji, c.Name)
	}
	fmt.Fprintf(w, "Saved:\t%s of %s (%.1f%%)\n", formatAmount(g.Saved), formatAmount(g.Target), g.Progress())
	fmt.Fprintf(w, "Remaining:\t%s\n", formatAmount(g.Remaining()))
	if days, ok := g.DaysLeft(now); ok {
		fmt.Fprintf(w, "Deadline:\t%s (%d days)\n", g.Deadline, days)
	}
	if g.Description != "" {
		fmt.Fprintf(w, "Description:\t%s\n", g.Description)
	}
	if g.Notes != "" {
		fmt.Fprintf(w, "Notes:\t%s\n", g.Notes)
	}
	w.Flush()

	if len(g.Transactions) == 0 {
		fmt.Fprintln(out, "\nNo transactions.")
		return
	}
	fmt.Fprintln(out)
	w = newTabWriter(out)
	fmt.Fprintln(w, "TRANSACTION\tDATE\tAMOUNT\tNOTE")
	for _, tx := range g.Transactions {
		note := tx.Note
		if note == "" {
			note = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", tx.ID, tx.Date.Format("2006-01-02"), formatSigned(tx.Amount), note)
	}
	w.Flush()
}

func runGoalUpdate(cmd *cobra.Command, args []string) error {
	patch, err := goalPatchFromFlags(cmd)
	if err != nil {
		return err
	}
	if patch.Empty() {
		return errors.New("nothing to update: pass at least one flag")
	}

	return withApp(cmd, false, func(ctx context.Context, a *app) error {
		g, err := a.store.UpdateGoal(args[0], patch)
		if err != nil {
			return describeError(err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"success": true,
				"goal":    g,
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated goal %q (%s)\n", g.Name, g.ID)
		return nil
	})
}

// goalPatchFromFlags builds a sparse patch from the flags the user passed.
func goalPatchFromFlags(cmd *cobra.Command) (types.GoalPatch, error) {
	var p types.GoalPatch
	flags := cmd.Flags()

	strField := func(name string, value string, dst **string) {
		if flags.Changed(name) {
			v := value
			*dst = &v
		}
	}
	strField("name", goalName, &p.Name)
	strField("emoji", goalEmoji, &p.Emoji)
	strField("color", goalColor, &p.Color)
	strField("description", goalDescription, &p.Description)
	strField("notes", goalNotes, &p.Notes)
	strField("category", goalCategory, &p.CategoryID)

	if flags.Changed("target") {
		target, err := parseAmount("target", goalTarget)
		if err != nil {
			return p, err
		}
		if target == nil {
			return p, errors.New("--target: must not be empty")
		}
		p.Target = target
	}
	if flags.Changed("priority") {
		priority := types.Priority(goalPriority)
		p.Priority = &priority
	}
	if flags.Changed("status") {
		status := types.Status(goalStatus)
		p.Status = &status
	}
	if flags.Changed("deadline") {
		deadline, err := parseDeadline(goalDeadline)
		if err != nil {
			return p, err
		}
		p.Deadline = deadline
	}
	p.ClearDeadline = goalClearDeadline

	return p, nil
}

func runGoalRemove(cmd *cobra.Command, args []string) error {
	id := args[0]

	return withApp(cmd, false, func(ctx context.Context, a *app) error {
		g, err := a.store.Goal(id)
		if err != nil {
			return err
		}

		if !goalForce {
			errOut := cmd.ErrOrStderr()
			fmt.Fprintf(errOut, "WARNING: This will permanently delete goal %q and its %d transactions.\n", g.Name, len(g.Transactions))
			fmt.Fprint(errOut, "Type the goal name to confirm: ")

			reader := bufio.NewReader(cmd.InOrStdin())
			input, err := reader.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("failed to read confirmation: %w", err)
			}
			if strings.TrimSpace(input) != g.Name {
				fmt.Fprintln(errOut, "Aborted. Goal name did not match.")
				return nil
			}
		}

		if err := a.store.RemoveGoal(id); err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"id":      id,
				"deleted": true,
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted goal %q\n", g.Name)
		return nil
	})
}

func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func formatSigned(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + d.StringFixed(2)
	}
	return d.StringFixed(2)
}

func formatDeadline(d *types.Date) string {
	if d == nil {
		return "-"
	}
	return d.String()
}
