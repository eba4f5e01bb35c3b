// Package goals holds the in-memory goal collection and every operation that
// mutates it. All operations are serialized; committed changes are handed to a
// Persister and announced to subscribers.
package goals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperengineering/nestegg/internal/envelope"
	"github.com/hyperengineering/nestegg/internal/types"
	"github.com/hyperengineering/nestegg/internal/validation"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// ErrNotReady is returned by every operation until Load has run.
var ErrNotReady = errors.New("goal store not loaded")

// OpeningBalanceNote labels the transaction recorded for a goal created with
// an initial balance.
const OpeningBalanceNote = "Opening balance"

// Loader reads the persisted envelope. A nil slice with a nil error means
// nothing has been persisted yet.
type Loader interface {
	Load(ctx context.Context) ([]byte, error)
}

// Persister receives a snapshot after every committed mutation. Persist must
// not block; snapshots arrive in commit order.
type Persister interface {
	Persist(env envelope.Envelope)
}

type nopPersister struct{}

func (nopPersister) Persist(envelope.Envelope) {}

// Store is the single source of truth for the goal collection.
type Store struct {
	mu    sync.Mutex
	goals []types.Goal
	ready bool
	err   error

	loader     Loader
	persister  Persister
	categories validation.CategoryLookup
	now        func() time.Time
	newGoalID  func() string
	newTxID    func() string

	subMu     sync.Mutex
	listeners map[int]Listener
	nextSubID int
}

// Option configures a Store.
type Option func(*Store)

// WithLoader sets where Load reads the persisted collection from.
func WithLoader(l Loader) Option {
	return func(s *Store) { s.loader = l }
}

// WithPersister sets where committed snapshots are sent.
func WithPersister(p Persister) Option {
	return func(s *Store) {
		if p != nil {
			s.persister = p
		}
	}
}

// WithCategories sets the registry category references are validated against.
// A nil registry disables category validation.
func WithCategories(c validation.CategoryLookup) Option {
	return func(s *Store) { s.categories = c }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDs overrides goal and transaction ID generation.
func WithIDs(goalID, txID func() string) Option {
	return func(s *Store) {
		if goalID != nil {
			s.newGoalID = goalID
		}
		if txID != nil {
			s.newTxID = txID
		}
	}
}

// New creates a store. The store rejects operations with ErrNotReady until
// Load has been called.
func New(opts ...Option) *Store {
	s := &Store{
		goals:     []types.Goal{},
		persister: nopPersister{},
		now:       time.Now,
		newGoalID: func() string { return ulid.Make().String() },
		newTxID:   func() string { return uuid.NewString() },
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads and migrates the persisted collection. Whatever happens the
// store is ready afterwards: unreadable or corrupt data leaves it empty and
// the cause is returned for reporting.
func (s *Store) Load(ctx context.Context) error {
	var (
		loaded []types.Goal
		err    error
	)
	if s.loader != nil {
		loaded, err = s.read(ctx)
	}
	if err != nil {
		slog.Error("failed to load goals, starting empty",
			"component", "goals",
			"action", "load_failed",
			"error", err,
		)
		loaded = nil
	}
	if loaded == nil {
		loaded = []types.Goal{}
	}

	s.mu.Lock()
	s.goals = loaded
	s.ready = true
	s.err = err
	s.mu.Unlock()

	slog.Info("goals loaded",
		"component", "goals",
		"count", len(loaded),
	)
	return err
}

func (s *Store) read(ctx context.Context) ([]types.Goal, error) {
	data, err := s.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("read persisted goals: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	env, err := envelope.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode persisted goals: %w", err)
	}
	return env.Goals, nil
}

// LoadError returns the error encountered by the last Load, if any.
func (s *Store) LoadError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Ready reports whether Load has run.
func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// AddGoal validates in and appends a new active goal. A non-zero initial
// balance is recorded as an opening transaction.
func (s *Store) AddGoal(in types.GoalInput) (types.Goal, error) {
	if errs := validation.ValidateGoalInput(in, s.categories); len(errs) > 0 {
		return types.Goal{}, invalid(errs)
	}

	var events []Event
	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		s.emit(events)
	}()

	if !s.ready {
		return types.Goal{}, ErrNotReady
	}

	now := s.now()
	g := types.Goal{
		ID:           s.uniqueGoalID(),
		Name:         strings.TrimSpace(in.Name),
		Target:       *in.Target,
		Saved:        decimal.Zero,
		Emoji:        strings.TrimSpace(in.Emoji),
		Color:        in.Color,
		Description:  in.Description,
		Notes:        in.Notes,
		CategoryID:   in.CategoryID,
		Priority:     in.Priority,
		Status:       types.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
		Transactions: []types.Transaction{},
	}
	if g.Color == "" {
		g.Color = types.DefaultColor
	}
	if g.Priority == "" {
		g.Priority = types.PriorityMedium
	}
	if in.Deadline != nil {
		d := *in.Deadline
		g.Deadline = &d
	}
	if in.Saved != nil && !in.Saved.IsZero() {
		g.Transactions = append(g.Transactions, types.Transaction{
			ID:     s.newTxID(),
			Amount: *in.Saved,
			Date:   now,
			Note:   OpeningBalanceNote,
		})
		g.Saved = *in.Saved
	}
	promoted := promote(&g)

	s.goals = append(s.goals, g)
	s.commit()

	out := g.Clone()
	events = append(events, Event{Type: EventGoalCreated, GoalID: g.ID, Goal: &out, At: now})
	if promoted {
		events = append(events, Event{Type: EventGoalCompleted, GoalID: g.ID, Goal: &out, At: now})
	}
	return g.Clone(), nil
}

// UpdateGoal applies a sparse metadata patch. Balance and history are not
// patchable. A manual status is kept as given, except that completed requires
// saved >= target. A completed goal whose target is raised above saved is
// reopened.
func (s *Store) UpdateGoal(id string, patch types.GoalPatch) (types.Goal, error) {
	if errs := validation.ValidateGoalPatch(patch, s.categories); len(errs) > 0 {
		return types.Goal{}, invalid(errs)
	}

	var events []Event
	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		s.emit(events)
	}()

	if !s.ready {
		return types.Goal{}, ErrNotReady
	}
	idx := s.indexOf(id)
	if idx < 0 {
		return types.Goal{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	g := s.goals[idx].Clone()
	applyPatch(&g, patch)
	if patch.Status != nil && *patch.Status == types.StatusCompleted && g.Saved.LessThan(g.Target) {
		return types.Goal{}, invalid([]validation.ValidationError{{
			Field:   "status",
			Message: "cannot be completed before saved reaches target",
		}})
	}
	reopened := demote(&g)
	g.UpdatedAt = s.now()

	s.goals[idx] = g
	s.commit()

	out := g.Clone()
	events = append(events, Event{Type: EventGoalUpdated, GoalID: id, Goal: &out, At: g.UpdatedAt})
	if reopened {
		events = append(events, Event{Type: EventGoalReopened, GoalID: id, Goal: &out, At: g.UpdatedAt})
	}
	return g.Clone(), nil
}

func applyPatch(g *types.Goal, p types.GoalPatch) {
	if p.Name != nil {
		g.Name = strings.TrimSpace(*p.Name)
	}
	if p.Target != nil {
		g.Target = *p.Target
	}
	if p.Emoji != nil {
		g.Emoji = strings.TrimSpace(*p.Emoji)
	}
	if p.Color != nil {
		g.Color = *p.Color
		if g.Color == "" {
			g.Color = types.DefaultColor
		}
	}
	if p.Description != nil {
		g.Description = *p.Description
	}
	if p.Notes != nil {
		g.Notes = *p.Notes
	}
	if p.CategoryID != nil {
		g.CategoryID = *p.CategoryID
	}
	if p.Priority != nil {
		g.Priority = *p.Priority
	}
	if p.ClearDeadline {
		g.Deadline = nil
	}
	if p.Deadline != nil {
		d := *p.Deadline
		g.Deadline = &d
	}
	if p.Status != nil {
		g.Status = *p.Status
	}
}

// RemoveGoal deletes a goal and its transaction history.
func (s *Store) RemoveGoal(id string) error {
	var events []Event
	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		s.emit(events)
	}()

	if !s.ready {
		return ErrNotReady
	}
	idx := s.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	next := make([]types.Goal, 0, len(s.goals)-1)
	next = append(next, s.goals[:idx]...)
	next = append(next, s.goals[idx+1:]...)
	s.goals = next
	s.commit()

	events = append(events, Event{Type: EventGoalRemoved, GoalID: id, At: s.now()})
	return nil
}

// AddTransaction records a signed amount against a goal. An active goal whose
// balance reaches its target becomes completed.
func (s *Store) AddTransaction(goalID string, in types.TransactionInput) (types.Transaction, error) {
	if errs := validation.ValidateTransactionInput(in); len(errs) > 0 {
		return types.Transaction{}, invalid(errs)
	}

	var events []Event
	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		s.emit(events)
	}()

	if !s.ready {
		return types.Transaction{}, ErrNotReady
	}
	idx := s.indexOf(goalID)
	if idx < 0 {
		return types.Transaction{}, fmt.Errorf("%w: %s", ErrNotFound, goalID)
	}

	now := s.now()
	g := s.goals[idx].Clone()
	tx := types.Transaction{
		ID:     s.uniqueTxID(g),
		Amount: *in.Amount,
		Date:   in.Date,
		Note:   strings.TrimSpace(in.Note),
	}
	if tx.Date.IsZero() {
		tx.Date = now
	}

	g.Transactions = append(g.Transactions, tx)
	g.Saved = g.Saved.Add(tx.Amount)
	g.UpdatedAt = now
	promoted := promote(&g)

	s.goals[idx] = g
	s.commit()

	out := g.Clone()
	events = append(events, Event{Type: EventTransactionAdded, GoalID: goalID, TransactionID: tx.ID, Goal: &out, At: now})
	if promoted {
		events = append(events, Event{Type: EventGoalCompleted, GoalID: goalID, Goal: &out, At: now})
	}
	return tx, nil
}

// RemoveTransaction deletes a transaction and reverses its effect on the
// balance. A completed goal that falls below its target becomes active again.
func (s *Store) RemoveTransaction(goalID, txID string) error {
	var events []Event
	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		s.emit(events)
	}()

	if !s.ready {
		return ErrNotReady
	}
	idx := s.indexOf(goalID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, goalID)
	}

	g := s.goals[idx].Clone()
	txIdx := -1
	for i, tx := range g.Transactions {
		if tx.ID == txID {
			txIdx = i
			break
		}
	}
	if txIdx < 0 {
		return fmt.Errorf("%w: %s in goal %s", ErrTransactionNotFound, txID, goalID)
	}

	removed := g.Transactions[txIdx]
	g.Transactions = append(g.Transactions[:txIdx], g.Transactions[txIdx+1:]...)
	g.Saved = g.Saved.Sub(removed.Amount)
	g.UpdatedAt = s.now()
	reopened := demote(&g)

	s.goals[idx] = g
	s.commit()

	out := g.Clone()
	events = append(events, Event{Type: EventTransactionRemoved, GoalID: goalID, TransactionID: txID, Goal: &out, At: g.UpdatedAt})
	if reopened {
		events = append(events, Event{Type: EventGoalReopened, GoalID: goalID, Goal: &out, At: g.UpdatedAt})
	}
	return nil
}

// Replace swaps the whole collection for the goals in env, as when restoring
// an export. env must already be decoded and migrated. A successful replace
// clears the load error.
func (s *Store) Replace(env envelope.Envelope) error {
	if err := envelope.Validate(env); err != nil {
		return err
	}
	goals := cloneAll(env.Goals)

	var events []Event
	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		s.emit(events)
	}()

	if !s.ready {
		return ErrNotReady
	}
	s.goals = goals
	s.err = nil
	s.commit()

	events = append(events, Event{Type: EventGoalsReplaced, At: s.now()})
	return nil
}

// Goals returns a copy of every goal in insertion order.
func (s *Store) Goals() []types.Goal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.goals)
}

// Goal returns a copy of the goal with the given id.
func (s *Store) Goal(id string) (types.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return types.Goal{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.goals[idx].Clone(), nil
}

// Len returns the number of goals.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.goals)
}

// Snapshot returns the collection as a current-version envelope.
func (s *Store) Snapshot() envelope.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return envelope.New(cloneAll(s.goals))
}

// commit hands the current collection to the persister. Callers hold s.mu,
// which keeps snapshots in commit order.
func (s *Store) commit() {
	s.persister.Persist(envelope.New(cloneAll(s.goals)))
}

func (s *Store) indexOf(id string) int {
	for i := range s.goals {
		if s.goals[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) uniqueGoalID() string {
	for {
		id := s.newGoalID()
		if s.indexOf(id) < 0 {
			return id
		}
	}
}

func (s *Store) uniqueTxID(g types.Goal) string {
	for {
		id := s.newTxID()
		taken := false
		for _, tx := range g.Transactions {
			if tx.ID == id {
				taken = true
				break
			}
		}
		if !taken {
			return id
		}
	}
}

func promote(g *types.Goal) bool {
	if g.Status == types.StatusActive && g.Saved.GreaterThanOrEqual(g.Target) {
		g.Status = types.StatusCompleted
		return true
	}
	return false
}

func demote(g *types.Goal) bool {
	if g.Status == types.StatusCompleted && g.Saved.LessThan(g.Target) {
		g.Status = types.StatusActive
		return true
	}
	return false
}

func cloneAll(goals []types.Goal) []types.Goal {
	out := make([]types.Goal, len(goals))
	for i := range goals {
		out[i] = goals[i].Clone()
	}
	return out
}
