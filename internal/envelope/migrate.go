package envelope

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hyperengineering/nestegg/internal/types"
)

// Migration upgrades a raw document from one version to the next. Migrations
// must be pure: the same input always yields the same output.
type Migration func(doc map[string]any) (map[string]any, error)

// migrations maps a source version to the step that upgrades it by one.
var migrations = map[int]Migration{
	0: migrateV0ToV1,
	1: migrateV1ToV2,
}

// Migrate upgrades doc from version from to CurrentVersion one step at a time.
func Migrate(doc map[string]any, from int) (map[string]any, error) {
	if from > CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, from)
	}
	doc = copyObject(doc)
	for v := from; v < CurrentVersion; v++ {
		step, ok := migrations[v]
		if !ok {
			return nil, fmt.Errorf("%w: no migration from version %d", ErrUnsupportedVersion, v)
		}
		next, err := step(doc)
		if err != nil {
			return nil, fmt.Errorf("migrate v%d to v%d: %w", v, v+1, err)
		}
		doc = next
	}
	doc["version"] = json.Number(fmt.Sprint(CurrentVersion))
	return doc, nil
}

// goalList returns the goals array of doc as a slice of objects.
func goalList(doc map[string]any) ([]map[string]any, error) {
	raw, ok := doc["goals"]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: goals must be an array", ErrCorrupt)
	}
	out := make([]map[string]any, 0, len(items))
	for i, item := range items {
		g, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: goal at index %d is not an object", ErrCorrupt, i)
		}
		out = append(out, g)
	}
	return out, nil
}

func withGoals(doc map[string]any, goals []map[string]any) map[string]any {
	items := make([]any, len(goals))
	for i, g := range goals {
		items[i] = g
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	out["goals"] = items
	return out
}

func copyObject(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// migrateV0ToV1 fills the lifecycle fields that version 0 documents lack.
func migrateV0ToV1(doc map[string]any) (map[string]any, error) {
	goals, err := goalList(doc)
	if err != nil {
		return nil, err
	}
	for i, src := range goals {
		g := copyObject(src)
		if s, _ := g["status"].(string); s == "" {
			g["status"] = "active"
		}
		if p, _ := g["priority"].(string); p == "" {
			g["priority"] = "medium"
		}
		if _, ok := g["transactions"].([]any); !ok {
			g["transactions"] = []any{}
		}
		goals[i] = g
	}
	return withGoals(doc, goals), nil
}

// migrateV1ToV2 converts the original app layout: camelCase timestamps become
// snake_case, numeric ids become strings, amounts become decimal strings, an
// embedded category object becomes its id, and any balance not backed by
// transactions becomes an opening transaction.
func migrateV1ToV2(doc map[string]any) (map[string]any, error) {
	goals, err := goalList(doc)
	if err != nil {
		return nil, err
	}
	for i, src := range goals {
		g := copyObject(src)

		renameKey(g, "createdAt", "created_at")
		renameKey(g, "updatedAt", "updated_at")

		id, err := stringID(g["id"])
		if err != nil {
			return nil, fmt.Errorf("goal at index %d: %w", i, err)
		}
		g["id"] = id

		switch c := g["category"].(type) {
		case map[string]any:
			if cid, _ := c["id"].(string); cid != "" {
				g["category"] = cid
			} else {
				delete(g, "category")
			}
		case string:
		default:
			delete(g, "category")
		}

		for _, key := range []string{"target", "saved"} {
			amt, err := amountString(g[key])
			if err != nil {
				return nil, fmt.Errorf("goal %s %s: %w", id, key, err)
			}
			g[key] = amt
		}

		if err := migrateDeadline(g); err != nil {
			return nil, fmt.Errorf("goal %s: %w", id, err)
		}

		taken := make(map[string]bool)
		txs, sum, err := migrateTransactions(id, g["transactions"], taken)
		if err != nil {
			return nil, err
		}

		saved, _ := decimal.NewFromString(g["saved"].(string))
		if diff := saved.Sub(sum); !diff.IsZero() {
			opening := map[string]any{
				"id":     claimID(id+"-opening", taken),
				"amount": diff.String(),
				"note":   "Opening balance",
			}
			if created, ok := g["created_at"]; ok {
				opening["date"] = created
			}
			txs = append([]any{opening}, txs...)
		}
		g["transactions"] = txs

		goals[i] = g
	}
	return withGoals(doc, goals), nil
}

// migrateTransactions upgrades the transactions of one goal. Stored ids are
// kept in order of appearance; repeats and missing ids get a generated id
// that no other transaction of the goal uses. taken collects every id issued.
func migrateTransactions(goalID string, raw any, taken map[string]bool) ([]any, decimal.Decimal, error) {
	sum := decimal.Zero
	items, _ := raw.([]any)
	out := make([]any, 0, len(items))
	stored := make([]string, len(items))
	for i, item := range items {
		src, ok := item.(map[string]any)
		if !ok {
			return nil, sum, fmt.Errorf("%w: goal %s transaction %d is not an object", ErrCorrupt, goalID, i)
		}
		switch id := src["id"].(type) {
		case string:
			stored[i] = id
		case json.Number:
			stored[i] = id.String()
		}
	}
	for _, id := range stored {
		if id != "" {
			taken[id] = false
		}
	}

	for i, item := range items {
		tx := copyObject(item.(map[string]any))

		if id := stored[i]; id != "" && !taken[id] {
			taken[id] = true
			tx["id"] = id
		} else {
			tx["id"] = claimID(fmt.Sprintf("%s-tx-%d", goalID, i), taken)
		}

		amt, err := amountString(tx["amount"])
		if err != nil {
			return nil, sum, fmt.Errorf("goal %s transaction %d amount: %w", goalID, i, err)
		}
		tx["amount"] = amt
		d, _ := decimal.NewFromString(amt)
		sum = sum.Add(d)

		out = append(out, tx)
	}
	return out, sum, nil
}

// claimID returns base, or base with the first free numeric suffix, and marks
// it taken. Ids present in taken are unavailable whether issued or not.
func claimID(base string, taken map[string]bool) string {
	id := base
	for n := 2; ; n++ {
		if _, used := taken[id]; !used {
			break
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
	taken[id] = true
	return id
}

// migrateDeadline reduces a timestamp deadline to its calendar date. The
// original app stored the picked day as a UTC instant without recording the
// device zone, so the UTC date is kept: a day picked just after local
// midnight east of UTC lands on the previous date.
func migrateDeadline(g map[string]any) error {
	raw, ok := g["deadline"].(string)
	if !ok || raw == "" {
		if ok {
			delete(g, "deadline")
		}
		return nil
	}
	if _, err := time.Parse(types.DateLayout, raw); err == nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return fmt.Errorf("%w: invalid deadline %q", ErrCorrupt, raw)
	}
	g["deadline"] = t.UTC().Format(types.DateLayout)
	return nil
}

func renameKey(m map[string]any, from, to string) {
	v, ok := m[from]
	if !ok {
		return
	}
	if _, exists := m[to]; !exists {
		m[to] = v
	}
	delete(m, from)
}

func stringID(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return "", fmt.Errorf("%w: empty id", ErrCorrupt)
		}
		return v, nil
	case json.Number:
		return v.String(), nil
	default:
		return "", fmt.Errorf("%w: missing id", ErrCorrupt)
	}
}

// amountString normalizes a JSON number or numeric string into a decimal string.
// A missing amount is zero.
func amountString(raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "0", nil
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return "", fmt.Errorf("%w: invalid amount %q", ErrCorrupt, v.String())
		}
		return d.String(), nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return "", fmt.Errorf("%w: invalid amount %q", ErrCorrupt, v)
		}
		return d.String(), nil
	default:
		return "", fmt.Errorf("%w: amount must be a number", ErrCorrupt)
	}
}
