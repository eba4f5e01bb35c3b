// Package query filters goals with boolean expressions such as
//
//	status == "active" && progress >= 50
//	category in ["travel", "car"] and days_left < 30
//
// Expressions are compiled once with expr-lang/expr and evaluated per goal.
package query

import (
	"errors"
	"fmt"
	"strings"
	"time"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/hyperengineering/nestegg/internal/types"
)

// ErrInvalidFilter is returned for expressions that do not compile to a boolean.
var ErrInvalidFilter = errors.New("invalid filter")

// Fields lists the variables available to filter expressions.
var Fields = []string{
	"id", "name", "emoji", "status", "priority", "category",
	"saved", "target", "remaining", "progress",
	"has_deadline", "days_left", "transactions",
}

// Filter is a compiled goal predicate.
type Filter struct {
	source  string
	program *exprvm.Program
}

// Compile parses and type-checks expression. An empty expression matches
// every goal.
func Compile(expression string) (*Filter, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return &Filter{}, nil
	}
	program, err := exprlang.Compile(expression,
		exprlang.Env(environment(types.Goal{}, time.Time{})),
		exprlang.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return &Filter{source: expression, program: program}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	return f.source
}

// Match reports whether g satisfies the filter. now is used for days_left.
func (f *Filter) Match(g types.Goal, now time.Time) (bool, error) {
	if f.program == nil {
		return true, nil
	}
	out, err := exprlang.Run(f.program, environment(g, now))
	if err != nil {
		return false, fmt.Errorf("evaluate filter %q on goal %s: %w", f.source, g.ID, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

// Apply returns the goals matching the filter, preserving order.
func (f *Filter) Apply(gs []types.Goal, now time.Time) ([]types.Goal, error) {
	out := make([]types.Goal, 0, len(gs))
	for _, g := range gs {
		ok, err := f.Match(g, now)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func environment(g types.Goal, now time.Time) map[string]any {
	saved, _ := g.Saved.Float64()
	target, _ := g.Target.Float64()
	remaining, _ := g.Remaining().Float64()
	daysLeft, hasDeadline := g.DaysLeft(now)

	return map[string]any{
		"id":           g.ID,
		"name":         g.Name,
		"emoji":        g.Emoji,
		"status":       string(g.Status),
		"priority":     string(g.Priority),
		"category":     g.CategoryID,
		"saved":        saved,
		"target":       target,
		"remaining":    remaining,
		"progress":     g.Progress(),
		"has_deadline": hasDeadline,
		"days_left":    daysLeft,
		"transactions": len(g.Transactions),
	}
}
