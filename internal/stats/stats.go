// Package stats derives read-only summaries from the goal collection.
package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hyperengineering/nestegg/internal/goals"
	"github.com/hyperengineering/nestegg/internal/types"
)

// DefaultRecent is how many recent transactions a summary lists.
const DefaultRecent = 3

// Summary aggregates the goal collection.
type Summary struct {
	TotalGoals     int `json:"total_goals"`
	ActiveGoals    int `json:"active_goals"`
	CompletedGoals int `json:"completed_goals"`
	PausedGoals    int `json:"paused_goals"`
	CancelledGoals int `json:"cancelled_goals"`

	TotalTarget decimal.Decimal `json:"total_target"`
	TotalSaved  decimal.Decimal `json:"total_saved"`
	// TotalProgress is saved/target across all goals. It is not capped.
	TotalProgress float64 `json:"total_progress"`

	TotalDeposits    decimal.Decimal `json:"total_deposits"`
	TotalWithdrawals decimal.Decimal `json:"total_withdrawals"`
	AverageSaved     decimal.Decimal `json:"average_saved"`
	CompletionRate   float64         `json:"completion_rate"`

	UrgentGoal         *UrgentGoal         `json:"urgent_goal,omitempty"`
	PopularCategory    *CategoryCount      `json:"popular_category,omitempty"`
	RecentTransactions []RecentTransaction `json:"recent_transactions"`
}

// UrgentGoal is the active goal with the soonest deadline.
type UrgentGoal struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Emoji    string     `json:"emoji"`
	Deadline types.Date `json:"deadline"`
	DaysLeft int        `json:"days_left"`
	Progress float64    `json:"progress"`
}

// CategoryCount is how many goals reference a category.
type CategoryCount struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// RecentTransaction is a transaction with the goal it belongs to.
type RecentTransaction struct {
	GoalID    string `json:"goal_id"`
	GoalName  string `json:"goal_name"`
	GoalEmoji string `json:"goal_emoji"`
	types.Transaction
}

// Compute folds goals into a Summary. now is used for days-left.
func Compute(gs []types.Goal, now time.Time, recent int) Summary {
	s := Summary{
		TotalGoals:         len(gs),
		TotalTarget:        decimal.Zero,
		TotalSaved:         decimal.Zero,
		TotalDeposits:      decimal.Zero,
		TotalWithdrawals:   decimal.Zero,
		AverageSaved:       decimal.Zero,
		RecentTransactions: []RecentTransaction{},
	}

	categoryCounts := make(map[string]int)
	var categoryOrder []string
	var all []RecentTransaction

	for _, g := range gs {
		switch g.Status {
		case types.StatusActive:
			s.ActiveGoals++
		case types.StatusCompleted:
			s.CompletedGoals++
		case types.StatusPaused:
			s.PausedGoals++
		case types.StatusCancelled:
			s.CancelledGoals++
		}

		s.TotalTarget = s.TotalTarget.Add(g.Target)
		s.TotalSaved = s.TotalSaved.Add(g.Saved)

		for _, tx := range g.Transactions {
			switch {
			case tx.Amount.IsPositive():
				s.TotalDeposits = s.TotalDeposits.Add(tx.Amount)
			case tx.Amount.IsNegative():
				s.TotalWithdrawals = s.TotalWithdrawals.Add(tx.Amount.Abs())
			}
			all = append(all, RecentTransaction{GoalID: g.ID, GoalName: g.Name, GoalEmoji: g.Emoji, Transaction: tx})
		}

		// Earliest deadline wins; ties keep the first goal.
		if g.Status == types.StatusActive && g.Deadline != nil {
			if s.UrgentGoal == nil || g.Deadline.Before(s.UrgentGoal.Deadline) {
				s.UrgentGoal = &UrgentGoal{
					ID:       g.ID,
					Name:     g.Name,
					Emoji:    g.Emoji,
					Deadline: *g.Deadline,
					DaysLeft: g.Deadline.DaysFrom(now),
					Progress: g.Progress(),
				}
			}
		}

		if g.CategoryID != "" {
			if _, seen := categoryCounts[g.CategoryID]; !seen {
				categoryOrder = append(categoryOrder, g.CategoryID)
			}
			categoryCounts[g.CategoryID]++
		}
	}

	if s.TotalTarget.IsPositive() {
		s.TotalProgress, _ = s.TotalSaved.Div(s.TotalTarget).Mul(decimal.NewFromInt(100)).Float64()
	}
	if s.TotalGoals > 0 {
		s.AverageSaved = s.TotalSaved.Div(decimal.NewFromInt(int64(s.TotalGoals))).Round(2)
		s.CompletionRate = float64(s.CompletedGoals) / float64(s.TotalGoals) * 100
	}

	// Most goals wins; ties keep the category seen first.
	for _, id := range categoryOrder {
		if n := categoryCounts[id]; s.PopularCategory == nil || n > s.PopularCategory.Count {
			s.PopularCategory = &CategoryCount{ID: id, Count: n}
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Date.After(all[j].Date)
	})
	if recent < 0 {
		recent = 0
	}
	if len(all) > recent {
		all = all[:recent]
	}
	s.RecentTransactions = append(s.RecentTransactions, all...)

	return s
}

// Source is the part of the goal store a Tracker watches.
type Source interface {
	Goals() []types.Goal
	Subscribe(goals.Listener) (unsubscribe func())
}

// Tracker keeps a Summary current by recomputing it on every committed change.
type Tracker struct {
	source Source
	now    func() time.Time
	recent int

	// refreshMu orders recomputes so a later one always reads newer goals.
	refreshMu sync.Mutex
	mu        sync.RWMutex
	summary   Summary

	unsubscribe func()
}

// NewTracker computes an initial summary and subscribes to source.
func NewTracker(source Source, now func() time.Time, recent int) *Tracker {
	if now == nil {
		now = time.Now
	}
	t := &Tracker{source: source, now: now, recent: recent}
	t.refresh()
	t.unsubscribe = source.Subscribe(func(goals.Event) { t.refresh() })
	return t
}

func (t *Tracker) refresh() {
	t.refreshMu.Lock()
	defer t.refreshMu.Unlock()

	s := Compute(t.source.Goals(), t.now(), t.recent)
	t.mu.Lock()
	t.summary = s
	t.mu.Unlock()
}

// Summary returns the latest summary with days-left as of now.
func (t *Tracker) Summary() Summary {
	t.mu.RLock()
	s := t.summary
	t.mu.RUnlock()

	if s.UrgentGoal != nil {
		urgent := *s.UrgentGoal
		urgent.DaysLeft = urgent.Deadline.DaysFrom(t.now())
		s.UrgentGoal = &urgent
	}
	return s
}

// Close stops tracking changes.
func (t *Tracker) Close() {
	t.unsubscribe()
}
