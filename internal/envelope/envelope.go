// Package envelope encodes the goal collection into its versioned persisted
// form and decodes any previously shipped version, migrating it forward to the
// current layout.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/nestegg/internal/types"
)

// CurrentVersion is the envelope version written by Encode.
const CurrentVersion = 2

var (
	// ErrCorrupt indicates persisted data that cannot be decoded.
	ErrCorrupt = errors.New("corrupt envelope")
	// ErrUnsupportedVersion indicates an envelope newer than this build understands.
	ErrUnsupportedVersion = errors.New("unsupported envelope version")
)

// Envelope is the versioned container for the persisted goal collection.
type Envelope struct {
	Version int          `json:"version"`
	Goals   []types.Goal `json:"goals"`
}

// New wraps goals in an envelope at the current version.
func New(goals []types.Goal) Envelope {
	if goals == nil {
		goals = []types.Goal{}
	}
	return Envelope{Version: CurrentVersion, Goals: goals}
}

// Encode serializes the envelope at the current version.
func Encode(env Envelope) ([]byte, error) {
	env.Version = CurrentVersion
	if env.Goals == nil {
		env.Goals = []types.Goal{}
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses persisted bytes of any shipped version, migrates them to the
// current layout and normalizes the result.
func Decode(data []byte) (Envelope, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Envelope{}, fmt.Errorf("%w: empty document", ErrCorrupt)
	}

	doc, err := parseDocument(data)
	if err != nil {
		return Envelope{}, err
	}

	version, err := documentVersion(doc)
	if err != nil {
		return Envelope{}, err
	}
	if version > CurrentVersion {
		return Envelope{}, fmt.Errorf("%w: %d (current %d)", ErrUnsupportedVersion, version, CurrentVersion)
	}

	doc = unwrapLegacyState(doc)

	migrated, err := Migrate(doc, version)
	if err != nil {
		return Envelope{}, err
	}

	raw, err := json.Marshal(migrated)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: re-encode migrated document: %v", ErrCorrupt, err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if err := normalize(&env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func parseDocument(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document is not an object", ErrCorrupt)
	}
	return doc, nil
}

// documentVersion reads the version field. A missing version is version 0.
func documentVersion(doc map[string]any) (int, error) {
	raw, ok := doc["version"]
	if !ok || raw == nil {
		return 0, nil
	}
	num, ok := raw.(json.Number)
	if !ok {
		return 0, fmt.Errorf("%w: version must be a number", ErrCorrupt)
	}
	v, err := num.Int64()
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: invalid version %q", ErrCorrupt, num.String())
	}
	return int(v), nil
}

// unwrapLegacyState lifts goals out of the {"state": {"goals": [...]}, "version": n}
// layout written by the original mobile app.
func unwrapLegacyState(doc map[string]any) map[string]any {
	if _, ok := doc["goals"]; ok {
		return doc
	}
	state, ok := doc["state"].(map[string]any)
	if !ok {
		return doc
	}
	out := map[string]any{"goals": state["goals"]}
	if v, ok := doc["version"]; ok {
		out["version"] = v
	}
	return out
}

// Validate checks that every goal has a unique id and that transaction ids
// are present and unique within their goal.
func Validate(env Envelope) error {
	seen := make(map[string]struct{}, len(env.Goals))
	for i, g := range env.Goals {
		if g.ID == "" {
			return fmt.Errorf("%w: goal at index %d has no id", ErrCorrupt, i)
		}
		if _, dup := seen[g.ID]; dup {
			return fmt.Errorf("%w: duplicate goal id %q", ErrCorrupt, g.ID)
		}
		seen[g.ID] = struct{}{}

		txs := make(map[string]struct{}, len(g.Transactions))
		for j, tx := range g.Transactions {
			if tx.ID == "" {
				return fmt.Errorf("%w: goal %q transaction at index %d has no id", ErrCorrupt, g.ID, j)
			}
			if _, dup := txs[tx.ID]; dup {
				return fmt.Errorf("%w: goal %q has duplicate transaction id %q", ErrCorrupt, g.ID, tx.ID)
			}
			txs[tx.ID] = struct{}{}
		}
	}
	return nil
}

// normalize applies field defaults and repairs balances that disagree with
// their transaction history.
func normalize(env *Envelope) error {
	env.Version = CurrentVersion
	if env.Goals == nil {
		env.Goals = []types.Goal{}
	}
	if err := Validate(*env); err != nil {
		return err
	}

	for i := range env.Goals {
		g := &env.Goals[i]

		if g.Transactions == nil {
			g.Transactions = []types.Transaction{}
		}
		if !g.Status.Valid() {
			if g.Status != "" {
				slog.Warn("unknown goal status, defaulting to active",
					"component", "envelope",
					"goal_id", g.ID,
					"status", string(g.Status),
				)
			}
			g.Status = types.StatusActive
		}
		if !g.Priority.Valid() {
			g.Priority = types.PriorityMedium
		}

		if sum := g.TransactionSum(); !sum.Equal(g.Saved) {
			slog.Warn("saved balance disagrees with transactions, repairing",
				"component", "envelope",
				"action", "balance_repaired",
				"goal_id", g.ID,
				"stored", g.Saved.String(),
				"computed", sum.String(),
			)
			g.Saved = sum
		}
	}
	return nil
}
