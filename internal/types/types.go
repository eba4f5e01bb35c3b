package types

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Status represents the lifecycle state of a goal
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
)

// Statuses lists every valid goal status in display order.
var Statuses = []Status{StatusActive, StatusCompleted, StatusPaused, StatusCancelled}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Priority represents how urgent a goal is to the user
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Priorities lists every valid priority.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	for _, known := range Priorities {
		if p == known {
			return true
		}
	}
	return false
}

// DefaultColor is the gradient token assigned to goals created without a color.
const DefaultColor = "from-purple-500 to-indigo-500"

// Goal is a savings target with an accumulated balance and its transaction history.
type Goal struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Target       decimal.Decimal `json:"target"`
	Saved        decimal.Decimal `json:"saved"`
	Emoji        string          `json:"emoji"`
	Color        string          `json:"color,omitempty"`
	Description  string          `json:"description"`
	Notes        string          `json:"notes"`
	CategoryID   string          `json:"category,omitempty"`
	Priority     Priority        `json:"priority"`
	Deadline     *Date           `json:"deadline,omitempty"`
	Status       Status          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Transactions []Transaction   `json:"transactions"`
}

// Transaction is a signed adjustment applied to a goal's balance.
// Positive amounts are deposits, negative amounts are withdrawals.
type Transaction struct {
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Date   time.Time       `json:"date"`
	Note   string          `json:"note,omitempty"`
}

// Category is a static classification tag a goal can reference.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
	Color string `json:"color"`
}

// GoalInput is the input for creating a goal. Target and Saved are pointers so
// "not provided" can be told apart from zero.
type GoalInput struct {
	Name        string           `json:"name"`
	Target      *decimal.Decimal `json:"target"`
	Saved       *decimal.Decimal `json:"saved,omitempty"`
	Emoji       string           `json:"emoji"`
	Color       string           `json:"color,omitempty"`
	Description string           `json:"description,omitempty"`
	Notes       string           `json:"notes,omitempty"`
	CategoryID  string           `json:"category,omitempty"`
	Priority    Priority         `json:"priority,omitempty"`
	Deadline    *Date            `json:"deadline,omitempty"`
}

// GoalPatch is a sparse update of goal metadata. Balance fields are not
// patchable; balance changes go through transactions.
type GoalPatch struct {
	Name          *string          `json:"name,omitempty"`
	Target        *decimal.Decimal `json:"target,omitempty"`
	Emoji         *string          `json:"emoji,omitempty"`
	Color         *string          `json:"color,omitempty"`
	Description   *string          `json:"description,omitempty"`
	Notes         *string          `json:"notes,omitempty"`
	CategoryID    *string          `json:"category,omitempty"`
	Priority      *Priority        `json:"priority,omitempty"`
	Deadline      *Date            `json:"deadline,omitempty"`
	ClearDeadline bool             `json:"clear_deadline,omitempty"`
	Status        *Status          `json:"status,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p GoalPatch) Empty() bool {
	return p.Name == nil && p.Target == nil && p.Emoji == nil && p.Color == nil &&
		p.Description == nil && p.Notes == nil && p.CategoryID == nil &&
		p.Priority == nil && p.Deadline == nil && !p.ClearDeadline && p.Status == nil
}

// TransactionInput is the input for recording a transaction.
type TransactionInput struct {
	Amount *decimal.Decimal `json:"amount"`
	Date   time.Time        `json:"date,omitempty"`
	Note   string           `json:"note,omitempty"`
}

// Result is the uniform {success, error} outcome rendered at the presentation boundary.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ResultFrom converts an operation error into a Result.
func ResultFrom(err error) Result {
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	return Result{Success: true}
}

// Progress returns saved/target as a percentage capped at 100.
func (g Goal) Progress() float64 {
	if !g.Target.IsPositive() {
		return 0
	}
	pct, _ := g.Saved.Div(g.Target).Mul(decimal.NewFromInt(100)).Float64()
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

// Remaining returns how much is still needed to reach the target, never negative.
func (g Goal) Remaining() decimal.Decimal {
	rem := g.Target.Sub(g.Saved)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// DaysLeft returns the calendar days until the deadline relative to now.
// ok is false when the goal has no deadline.
func (g Goal) DaysLeft(now time.Time) (days int, ok bool) {
	if g.Deadline == nil {
		return 0, false
	}
	return g.Deadline.DaysFrom(now), true
}

// TransactionSum returns the sum of all transaction amounts.
func (g Goal) TransactionSum() decimal.Decimal {
	sum := decimal.Zero
	for _, tx := range g.Transactions {
		sum = sum.Add(tx.Amount)
	}
	return sum
}

// Clone returns a deep copy of the goal.
func (g Goal) Clone() Goal {
	out := g
	if g.Deadline != nil {
		d := *g.Deadline
		out.Deadline = &d
	}
	out.Transactions = make([]Transaction, len(g.Transactions))
	copy(out.Transactions, g.Transactions)
	return out
}

// MarshalJSON ensures nil transactions marshal as [] not null.
func (g Goal) MarshalJSON() ([]byte, error) {
	if g.Transactions == nil {
		g.Transactions = []Transaction{}
	}
	type Alias Goal
	return json.Marshal(Alias(g))
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	GoalCount     int    `json:"goal_count"`
	SchemaVersion int    `json:"schema_version"`
	Backend       string `json:"backend"`
}
