package client

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the client configuration.
type Config struct {
	BaseURL string        // Server URL, e.g. http://127.0.0.1:8080
	APIKey  string        // Bearer token; empty when the server has no key
	Timeout time.Duration // Per-request timeout (default: 30 seconds)
}

// Goal is a savings goal as served by the API.
type Goal struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Target       decimal.Decimal `json:"target"`
	Saved        decimal.Decimal `json:"saved"`
	Emoji        string          `json:"emoji"`
	Color        string          `json:"color,omitempty"`
	Description  string          `json:"description"`
	Notes        string          `json:"notes"`
	Category     string          `json:"category,omitempty"`
	Priority     string          `json:"priority"`
	Deadline     string          `json:"deadline,omitempty"` // YYYY-MM-DD
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Transactions []Transaction   `json:"transactions"`
}

// Transaction is a signed balance adjustment on a goal.
type Transaction struct {
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Date   time.Time       `json:"date"`
	Note   string          `json:"note,omitempty"`
}

// GoalParams holds parameters for creating a goal.
type GoalParams struct {
	Name        string           `json:"name"`
	Target      decimal.Decimal  `json:"target"`
	Saved       *decimal.Decimal `json:"saved,omitempty"`
	Emoji       string           `json:"emoji"`
	Color       string           `json:"color,omitempty"`
	Description string           `json:"description,omitempty"`
	Notes       string           `json:"notes,omitempty"`
	Category    string           `json:"category,omitempty"`
	Priority    string           `json:"priority,omitempty"`
	Deadline    string           `json:"deadline,omitempty"`
}

// GoalPatch holds a sparse goal update. Nil fields are left unchanged.
type GoalPatch struct {
	Name          *string          `json:"name,omitempty"`
	Target        *decimal.Decimal `json:"target,omitempty"`
	Emoji         *string          `json:"emoji,omitempty"`
	Color         *string          `json:"color,omitempty"`
	Description   *string          `json:"description,omitempty"`
	Notes         *string          `json:"notes,omitempty"`
	Category      *string          `json:"category,omitempty"`
	Priority      *string          `json:"priority,omitempty"`
	Deadline      *string          `json:"deadline,omitempty"`
	ClearDeadline bool             `json:"clear_deadline,omitempty"`
	Status        *string          `json:"status,omitempty"`
}

// TransactionParams holds parameters for recording a transaction.
type TransactionParams struct {
	Amount decimal.Decimal `json:"amount"`
	Date   *time.Time      `json:"date,omitempty"` // server time when nil
	Note   string          `json:"note,omitempty"`
}

// Category is a goal classification.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
	Color string `json:"color"`
}

// Health is the server health report.
type Health struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	GoalCount     int    `json:"goal_count"`
	SchemaVersion int    `json:"schema_version"`
	Backend       string `json:"backend"`
}

// Stats is the aggregate summary across all goals.
type Stats struct {
	TotalGoals       int             `json:"total_goals"`
	ActiveGoals      int             `json:"active_goals"`
	CompletedGoals   int             `json:"completed_goals"`
	PausedGoals      int             `json:"paused_goals"`
	CancelledGoals   int             `json:"cancelled_goals"`
	TotalTarget      decimal.Decimal `json:"total_target"`
	TotalSaved       decimal.Decimal `json:"total_saved"`
	TotalProgress    float64         `json:"total_progress"`
	TotalDeposits    decimal.Decimal `json:"total_deposits"`
	TotalWithdrawals decimal.Decimal `json:"total_withdrawals"`
	AverageSaved     decimal.Decimal `json:"average_saved"`
	CompletionRate   float64         `json:"completion_rate"`
	UrgentGoal       *struct {
		ID       string  `json:"id"`
		Name     string  `json:"name"`
		Deadline string  `json:"deadline"`
		DaysLeft int     `json:"days_left"`
		Progress float64 `json:"progress"`
	} `json:"urgent_goal,omitempty"`
	PopularCategory *struct {
		ID    string `json:"id"`
		Count int    `json:"count"`
	} `json:"popular_category,omitempty"`
}

// FieldError is one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
