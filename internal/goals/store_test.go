package goals

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/hyperengineering/nestegg/internal/category"
	"github.com/hyperengineering/nestegg/internal/envelope"
	"github.com/hyperengineering/nestegg/internal/types"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)

type recordingPersister struct {
	mu    sync.Mutex
	saved []envelope.Envelope
}

func (p *recordingPersister) Persist(env envelope.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, env)
}

func (p *recordingPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saved)
}

func (p *recordingPersister) last() envelope.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saved[len(p.saved)-1]
}

type staticLoader struct {
	data []byte
	err  error
}

func (l staticLoader) Load(context.Context) ([]byte, error) {
	return l.data, l.err
}

func sequence(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *recordingPersister) {
	t.Helper()
	p := &recordingPersister{}
	base := []Option{
		WithPersister(p),
		WithCategories(category.Default()),
		WithClock(func() time.Time { return testNow }),
		WithIDs(sequence("goal-"), sequence("tx-")),
	}
	s := New(append(base, opts...)...)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return s, p
}

func amt(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func mustAddGoal(t *testing.T, s *Store, name, target string) types.Goal {
	t.Helper()
	g, err := s.AddGoal(types.GoalInput{Name: name, Target: amt(target), Emoji: "🎯"})
	if err != nil {
		t.Fatalf("AddGoal failed: %v", err)
	}
	return g
}

func mustAddTx(t *testing.T, s *Store, goalID, amount string) types.Transaction {
	t.Helper()
	tx, err := s.AddTransaction(goalID, types.TransactionInput{Amount: amt(amount)})
	if err != nil {
		t.Fatalf("AddTransaction failed: %v", err)
	}
	return tx
}

func TestAddGoal_Defaults(t *testing.T) {
	s, p := newTestStore(t)

	// When: a goal is created with only the required fields
	g, err := s.AddGoal(types.GoalInput{Name: "  Trip ", Target: amt("1000"), Emoji: "✈️"})
	if err != nil {
		t.Fatalf("AddGoal failed: %v", err)
	}

	// Then: defaults are applied
	if g.ID != "goal-1" {
		t.Errorf("ID = %q, want goal-1", g.ID)
	}
	if g.Name != "Trip" {
		t.Errorf("Name = %q, want trimmed", g.Name)
	}
	if !g.Saved.IsZero() {
		t.Errorf("Saved = %s, want 0", g.Saved)
	}
	if g.Status != types.StatusActive {
		t.Errorf("Status = %q, want active", g.Status)
	}
	if g.Priority != types.PriorityMedium {
		t.Errorf("Priority = %q, want medium", g.Priority)
	}
	if g.Color != types.DefaultColor {
		t.Errorf("Color = %q, want default", g.Color)
	}
	if g.Transactions == nil || len(g.Transactions) != 0 {
		t.Errorf("Transactions = %v, want empty", g.Transactions)
	}
	if !g.CreatedAt.Equal(testNow) || !g.UpdatedAt.Equal(testNow) {
		t.Errorf("timestamps = %v/%v, want %v", g.CreatedAt, g.UpdatedAt, testNow)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
	if p.count() != 1 {
		t.Errorf("persisted %d snapshots, want 1", p.count())
	}
}

func TestAddGoal_OpeningBalanceBecomesTransaction(t *testing.T) {
	s, _ := newTestStore(t)

	g, err := s.AddGoal(types.GoalInput{Name: "Car", Target: amt("5000"), Saved: amt("1200"), Emoji: "🚗"})
	if err != nil {
		t.Fatalf("AddGoal failed: %v", err)
	}

	if len(g.Transactions) != 1 {
		t.Fatalf("len(Transactions) = %d, want 1", len(g.Transactions))
	}
	if g.Transactions[0].Note != OpeningBalanceNote {
		t.Errorf("Note = %q, want opening balance", g.Transactions[0].Note)
	}
	if !g.Saved.Equal(decimal.NewFromInt(1200)) || !g.TransactionSum().Equal(g.Saved) {
		t.Errorf("Saved = %s, sum = %s, want 1200", g.Saved, g.TransactionSum())
	}
}

func TestAddGoal_OpeningBalanceAtTargetCompletes(t *testing.T) {
	s, _ := newTestStore(t)

	g, err := s.AddGoal(types.GoalInput{Name: "Phone", Target: amt("300"), Saved: amt("300"), Emoji: "📱"})
	if err != nil {
		t.Fatalf("AddGoal failed: %v", err)
	}
	if g.Status != types.StatusCompleted {
		t.Errorf("Status = %q, want completed", g.Status)
	}
}

func TestAddGoal_ValidationLeavesCollectionUnchanged(t *testing.T) {
	s, p := newTestStore(t)
	mustAddGoal(t, s, "Existing", "10")
	before := s.Goals()

	tests := []struct {
		name  string
		input types.GoalInput
	}{
		{"missing name", types.GoalInput{Target: amt("10"), Emoji: "🎯"}},
		{"zero target", types.GoalInput{Name: "X", Target: amt("0"), Emoji: "🎯"}},
		{"missing emoji", types.GoalInput{Name: "X", Target: amt("10")}},
		{"unknown category", types.GoalInput{Name: "X", Target: amt("10"), Emoji: "🎯", CategoryID: "pets"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AddGoal(tt.input)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("AddGoal error = %v, want ErrValidation", err)
			}
			if len(FieldErrors(err)) == 0 {
				t.Error("expected field errors")
			}
		})
	}

	if !reflect.DeepEqual(s.Goals(), before) {
		t.Error("failed AddGoal modified the collection")
	}
	if p.count() != 1 {
		t.Errorf("persisted %d snapshots, want 1", p.count())
	}
}

func TestUpdateGoal_PatchesMetadata(t *testing.T) {
	later := testNow.Add(time.Hour)
	clock := testNow
	s, _ := newTestStore(t, WithClock(func() time.Time { return clock }))
	g := mustAddGoal(t, s, "Trip", "1000")

	clock = later
	name := "Japan"
	prio := types.PriorityHigh
	deadline := types.Date{Year: 2027, Month: time.April, Day: 1}
	updated, err := s.UpdateGoal(g.ID, types.GoalPatch{Name: &name, Priority: &prio, Deadline: &deadline})
	if err != nil {
		t.Fatalf("UpdateGoal failed: %v", err)
	}

	if updated.Name != "Japan" || updated.Priority != types.PriorityHigh {
		t.Errorf("updated = %+v", updated)
	}
	if updated.Deadline == nil || *updated.Deadline != deadline {
		t.Errorf("Deadline = %v, want %v", updated.Deadline, deadline)
	}
	if !updated.UpdatedAt.Equal(later) || !updated.CreatedAt.Equal(testNow) {
		t.Errorf("timestamps = %v/%v", updated.CreatedAt, updated.UpdatedAt)
	}

	cleared, err := s.UpdateGoal(g.ID, types.GoalPatch{ClearDeadline: true})
	if err != nil {
		t.Fatalf("UpdateGoal failed: %v", err)
	}
	if cleared.Deadline != nil {
		t.Errorf("Deadline = %v, want cleared", cleared.Deadline)
	}
}

func TestUpdateGoal_StatusIsNotReevaluated(t *testing.T) {
	s, _ := newTestStore(t)
	g := mustAddGoal(t, s, "Trip", "100")
	mustAddTx(t, s, g.ID, "100")

	// A completed goal can be manually set back to active and stays there.
	active := types.StatusActive
	updated, err := s.UpdateGoal(g.ID, types.GoalPatch{Status: &active})
	if err != nil {
		t.Fatalf("UpdateGoal failed: %v", err)
	}
	if updated.Status != types.StatusActive {
		t.Errorf("Status = %q, want active", updated.Status)
	}
}

func TestUpdateGoal_RaisingTargetReopensCompletedGoal(t *testing.T) {
	s, _ := newTestStore(t)
	g := mustAddGoal(t, s, "Trip", "100")
	mustAddTx(t, s, g.ID, "100")

	var got []EventType
	s.Subscribe(func(ev Event) { got = append(got, ev.Type) })

	// When the target moves above what has been saved
	updated, err := s.UpdateGoal(g.ID, types.GoalPatch{Target: amt("500")})
	if err != nil {
		t.Fatalf("UpdateGoal failed: %v", err)
	}

	// Then the goal is active again
	if updated.Status != types.StatusActive {
		t.Errorf("Status = %q, want active (saved %s, target %s)", updated.Status, updated.Saved, updated.Target)
	}
	if len(got) != 2 || got[0] != EventGoalUpdated || got[1] != EventGoalReopened {
		t.Errorf("events = %v, want [goal_updated goal_reopened]", got)
	}

	// A target still covered by saved keeps it completed
	h := mustAddGoal(t, s, "Laptop", "100")
	mustAddTx(t, s, h.ID, "150")
	kept, err := s.UpdateGoal(h.ID, types.GoalPatch{Target: amt("120")})
	if err != nil {
		t.Fatalf("UpdateGoal failed: %v", err)
	}
	if kept.Status != types.StatusCompleted {
		t.Errorf("Status = %q, want completed", kept.Status)
	}
}

func TestUpdateGoal_CompletedRequiresTarget(t *testing.T) {
	s, _ := newTestStore(t)
	g := mustAddGoal(t, s, "Trip", "100")
	mustAddTx(t, s, g.ID, "40")
	before := s.Goals()

	completed := types.StatusCompleted
	_, err := s.UpdateGoal(g.ID, types.GoalPatch{Status: &completed})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if fe := FieldErrors(err); len(fe) != 1 || fe[0].Field != "status" {
		t.Errorf("field errors = %+v, want one status error", fe)
	}
	if !reflect.DeepEqual(s.Goals(), before) {
		t.Error("rejected UpdateGoal modified the collection")
	}

	// Lowering the target in the same patch makes completion valid
	updated, err := s.UpdateGoal(g.ID, types.GoalPatch{Status: &completed, Target: amt("40")})
	if err != nil {
		t.Fatalf("UpdateGoal failed: %v", err)
	}
	if updated.Status != types.StatusCompleted {
		t.Errorf("Status = %q, want completed", updated.Status)
	}

	// Paused and cancelled are always allowed
	for _, st := range []types.Status{types.StatusPaused, types.StatusCancelled} {
		st := st
		if _, err := s.UpdateGoal(g.ID, types.GoalPatch{Status: &st, Target: amt("1000")}); err != nil {
			t.Errorf("UpdateGoal to %q failed: %v", st, err)
		}
	}
}

func TestUpdateGoal_Errors(t *testing.T) {
	s, _ := newTestStore(t)
	g := mustAddGoal(t, s, "Trip", "100")
	before := s.Goals()

	name := "X"
	if _, err := s.UpdateGoal("missing", types.GoalPatch{Name: &name}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id error = %v, want ErrNotFound", err)
	}

	bad := types.Status("archived")
	if _, err := s.UpdateGoal(g.ID, types.GoalPatch{Status: &bad}); !errors.Is(err, ErrValidation) {
		t.Errorf("bad status error = %v, want ErrValidation", err)
	}

	if !reflect.DeepEqual(s.Goals(), before) {
		t.Error("failed UpdateGoal modified the collection")
	}
}

func TestRemoveGoal(t *testing.T) {
	s, _ := newTestStore(t)
	a := mustAddGoal(t, s, "A", "10")
	b := mustAddGoal(t, s, "B", "10")
	c := mustAddGoal(t, s, "C", "10")

	if err := s.RemoveGoal(b.ID); err != nil {
		t.Fatalf("RemoveGoal failed: %v", err)
	}

	goals := s.Goals()
	if len(goals) != 2 || goals[0].ID != a.ID || goals[1].ID != c.ID {
		t.Errorf("goals = %v, want [A C] in order", goals)
	}
	if err := s.RemoveGoal(b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second RemoveGoal error = %v, want ErrNotFound", err)
	}
}

func TestScenarioA_NewGoalStartsEmpty(t *testing.T) {
	s, _ := newTestStore(t)

	g, err := s.AddGoal(types.GoalInput{Name: "Trip", Target: amt("1000"), Emoji: "✈️"})
	if err != nil {
		t.Fatalf("AddGoal failed: %v", err)
	}
	if !g.Saved.IsZero() || g.Status != types.StatusActive || len(g.Transactions) != 0 {
		t.Errorf("goal = %+v, want saved 0, active, no transactions", g)
	}
}

func TestScenarioBC_CompletionAndReopen(t *testing.T) {
	s, _ := newTestStore(t)
	g := mustAddGoal(t, s, "Trip", "1000")

	// Scenario B: depositing the full target completes the goal
	date := time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)
	tx, err := s.AddTransaction(g.ID, types.TransactionInput{Amount: amt("1000"), Date: date})
	if err != nil {
		t.Fatalf("AddTransaction failed: %v", err)
	}
	if !tx.Date.Equal(date) {
		t.Errorf("tx.Date = %v, want %v", tx.Date, date)
	}
	got, _ := s.Goal(g.ID)
	if !got.Saved.Equal(decimal.NewFromInt(1000)) || got.Status != types.StatusCompleted {
		t.Fatalf("after deposit saved=%s status=%q, want 1000 completed", got.Saved, got.Status)
	}

	// Scenario C: removing it reopens the goal
	if err := s.RemoveTransaction(g.ID, tx.ID); err != nil {
		t.Fatalf("RemoveTransaction failed: %v", err)
	}
	got, _ = s.Goal(g.ID)
	if !got.Saved.IsZero() || got.Status != types.StatusActive {
		t.Errorf("after removal saved=%s status=%q, want 0 active", got.Saved, got.Status)
	}
}

func TestScenarioD_TransactionOnMissingGoal(t *testing.T) {
	s, p := newTestStore(t)
	mustAddGoal(t, s, "Trip", "1000")
	before := s.Goals()
	persisted := p.count()

	_, err := s.AddTransaction("nonexistent-id", types.TransactionInput{Amount: amt("50")})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if r := types.ResultFrom(err); r.Success {
		t.Error("Result.Success = true, want false")
	}
	if !reflect.DeepEqual(s.Goals(), before) {
		t.Error("collection changed")
	}
	if p.count() != persisted {
		t.Error("failed operation was persisted")
	}
}

func TestScenarioE_RemovePreservesOrder(t *testing.T) {
	s, _ := newTestStore(t)
	g := mustAddGoal(t, s, "Trip", "1000")
	first := mustAddTx(t, s, g.ID, "500")
	second := mustAddTx(t, s, g.ID, "300")

	got, _ := s.Goal(g.ID)
	if !got.Saved.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("Saved = %s, want 800", got.Saved)
	}

	if err := s.RemoveTransaction(g.ID, second.ID); err != nil {
		t.Fatalf("RemoveTransaction failed: %v", err)
	}
	got, _ = s.Goal(g.ID)
	if !got.Saved.Equal(decimal.NewFromInt(500)) {
		t.Errorf("Saved = %s, want 500", got.Saved)
	}
	if len(got.Transactions) != 1 || got.Transactions[0].ID != first.ID {
		t.Errorf("Transactions = %v, want only the +500 entry", got.Transactions)
	}
}

func TestAddTransaction_OnlyActiveGoalsComplete(t *testing.T) {
	s, _ := newTestStore(t)
	g := mustAddGoal(t, s, "Trip", "100")
	paused := types.StatusPaused
	if _, err := s.UpdateGoal(g.ID, types.GoalPatch{Status: &paused}); err != nil {
		t.Fatalf("UpdateGoal failed: %v", err)
	}

	mustAddTx(t, s, g.ID, "150")

	got, _ := s.Goal(g.ID)
	if got.Status != types.StatusPaused {
		t.Errorf("Status = %q, want paused", got.Status)
	}
}

func TestAddTransaction_WithdrawalAndZero(t *testing.T) {
	s, _ := newTestStore(t)
	g := mustAddGoal(t, s, "Trip", "100")
	mustAddTx(t, s, g.ID, "40")
	mustAddTx(t, s, g.ID, "-15.25")
	mustAddTx(t, s, g.ID, "0")

	got, _ := s.Goal(g.ID)
	if !got.Saved.Equal(decimal.RequireFromString("24.75")) {
		t.Errorf("Saved = %s, want 24.75", got.Saved)
	}
	if len(got.Transactions) != 3 {
		t.Errorf("len(Transactions) = %d, want 3", len(got.Transactions))
	}
	for _, tx := range got.Transactions {
		if !tx.Date.Equal(testNow) {
			t.Errorf("tx date = %v, want defaulted to now", tx.Date)
		}
	}
}

func TestAddTransaction_MissingAmount(t *testing.T) {
	s, _ := newTestStore(t)
	g := mustAddGoal(t, s, "Trip", "100")

	if _, err := s.AddTransaction(g.ID, types.TransactionInput{Note: "?"}); !errors.Is(err, ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestRemoveTransaction_UnknownTransaction(t *testing.T) {
	s, _ := newTestStore(t)
	g := mustAddGoal(t, s, "Trip", "100")
	mustAddTx(t, s, g.ID, "10")
	before := s.Goals()

	err := s.RemoveTransaction(g.ID, "nope")
	if !errors.Is(err, ErrTransactionNotFound) {
		t.Errorf("error = %v, want ErrTransactionNotFound", err)
	}
	if err := s.RemoveTransaction("nope", "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if !reflect.DeepEqual(s.Goals(), before) {
		t.Error("collection changed")
	}
}

func TestRemoveTransaction_PausedGoalIsNotReopened(t *testing.T) {
	s, _ := newTestStore(t)
	g := mustAddGoal(t, s, "Trip", "100")
	tx := mustAddTx(t, s, g.ID, "100")
	paused := types.StatusPaused
	if _, err := s.UpdateGoal(g.ID, types.GoalPatch{Status: &paused}); err != nil {
		t.Fatalf("UpdateGoal failed: %v", err)
	}

	if err := s.RemoveTransaction(g.ID, tx.ID); err != nil {
		t.Fatalf("RemoveTransaction failed: %v", err)
	}
	got, _ := s.Goal(g.ID)
	if got.Status != types.StatusPaused {
		t.Errorf("Status = %q, want paused", got.Status)
	}
}

func TestSavedEqualsTransactionSum(t *testing.T) {
	faker := gofakeit.New(42)
	s, p := newTestStore(t)

	var ids []string
	for i := 0; i < 5; i++ {
		g := mustAddGoal(t, s, faker.Word(), fmt.Sprint(faker.IntRange(100, 10000)))
		ids = append(ids, g.ID)
	}

	// Random sequence of deposits, withdrawals and removals
	for i := 0; i < 200; i++ {
		id := ids[faker.IntRange(0, len(ids)-1)]
		if faker.Bool() {
			cents := faker.IntRange(-50000, 100000)
			mustAddTx(t, s, id, decimal.New(int64(cents), -2).String())
			continue
		}
		g, _ := s.Goal(id)
		if len(g.Transactions) == 0 {
			continue
		}
		tx := g.Transactions[faker.IntRange(0, len(g.Transactions)-1)]
		if err := s.RemoveTransaction(id, tx.ID); err != nil {
			t.Fatalf("RemoveTransaction failed: %v", err)
		}
	}

	for _, g := range s.Goals() {
		if !g.Saved.Equal(g.TransactionSum()) {
			t.Errorf("goal %s saved = %s, sum = %s", g.ID, g.Saved, g.TransactionSum())
		}
	}
	for _, g := range p.last().Goals {
		if !g.Saved.Equal(g.TransactionSum()) {
			t.Errorf("persisted goal %s saved = %s, sum = %s", g.ID, g.Saved, g.TransactionSum())
		}
	}
}

func TestReadsReturnCopies(t *testing.T) {
	s, _ := newTestStore(t)
	g := mustAddGoal(t, s, "Trip", "100")
	mustAddTx(t, s, g.ID, "10")

	goals := s.Goals()
	goals[0].Name = "mutated"
	goals[0].Transactions[0].Amount = decimal.NewFromInt(999)

	got, _ := s.Goal(g.ID)
	if got.Name != "Trip" || !got.Transactions[0].Amount.Equal(decimal.NewFromInt(10)) {
		t.Error("caller mutation leaked into the store")
	}
}

func TestOperationsRequireLoad(t *testing.T) {
	s := New()

	if _, err := s.AddGoal(types.GoalInput{Name: "X", Target: amt("1"), Emoji: "🎯"}); !errors.Is(err, ErrNotReady) {
		t.Errorf("AddGoal error = %v, want ErrNotReady", err)
	}
	if err := s.RemoveGoal("x"); !errors.Is(err, ErrNotReady) {
		t.Errorf("RemoveGoal error = %v, want ErrNotReady", err)
	}
	if s.Ready() {
		t.Error("Ready() = true before Load")
	}
}

func TestLoad_RestoresPersistedGoals(t *testing.T) {
	src, _ := newTestStore(t)
	g := mustAddGoal(t, src, "Trip", "100")
	mustAddTx(t, src, g.ID, "25")
	data, err := envelope.Encode(src.Snapshot())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	s := New(WithLoader(staticLoader{data: data}))
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	got, err := s.Goal(g.ID)
	if err != nil {
		t.Fatalf("Goal failed: %v", err)
	}
	if !got.Saved.Equal(decimal.NewFromInt(25)) || len(got.Transactions) != 1 {
		t.Errorf("restored goal = %+v", got)
	}
}

func TestLoad_FailuresStartEmpty(t *testing.T) {
	tests := []struct {
		name    string
		loader  staticLoader
		wantErr error
	}{
		{"nothing persisted", staticLoader{}, nil},
		{"corrupt data", staticLoader{data: []byte("{not json")}, envelope.ErrCorrupt},
		{"newer version", staticLoader{data: []byte(`{"version": 99, "goals": []}`)}, envelope.ErrUnsupportedVersion},
		{"read failure", staticLoader{err: errors.New("disk gone")}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(WithLoader(tt.loader))
			err := s.Load(context.Background())

			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Load error = %v, want %v", err, tt.wantErr)
			}
			if tt.loader.err != nil && err == nil {
				t.Error("Load error = nil, want read failure")
			}
			if !s.Ready() {
				t.Error("store not ready after Load")
			}
			if s.Len() != 0 {
				t.Errorf("Len = %d, want 0", s.Len())
			}
			if !errors.Is(s.LoadError(), err) {
				t.Errorf("LoadError = %v, want %v", s.LoadError(), err)
			}
		})
	}
}

func TestReplace(t *testing.T) {
	s, p := newTestStore(t)
	mustAddGoal(t, s, "Old", "10")

	imported := envelope.New([]types.Goal{
		{ID: "imported", Name: "New", Target: decimal.NewFromInt(50), Emoji: "🎯",
			Status: types.StatusActive, Priority: types.PriorityLow, Transactions: []types.Transaction{}},
	})
	if err := s.Replace(imported); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	goals := s.Goals()
	if len(goals) != 1 || goals[0].ID != "imported" {
		t.Errorf("goals = %v, want only imported", goals)
	}
	if len(p.last().Goals) != 1 {
		t.Error("replacement was not persisted")
	}

	dup := envelope.New([]types.Goal{{ID: "a"}, {ID: "a"}})
	if err := s.Replace(dup); !errors.Is(err, envelope.ErrCorrupt) {
		t.Errorf("duplicate Replace error = %v, want ErrCorrupt", err)
	}
	if s.Len() != 1 {
		t.Error("failed Replace modified the collection")
	}

	// Transaction ids must be unique within a goal so each one can be removed
	dupTx := envelope.New([]types.Goal{{ID: "b", Transactions: []types.Transaction{
		{ID: "t", Amount: decimal.NewFromInt(1)},
		{ID: "t", Amount: decimal.NewFromInt(2)},
	}}})
	if err := s.Replace(dupTx); !errors.Is(err, envelope.ErrCorrupt) {
		t.Errorf("duplicate transaction Replace error = %v, want ErrCorrupt", err)
	}
	if goals := s.Goals(); len(goals) != 1 || goals[0].ID != "imported" {
		t.Errorf("goals = %v, want only imported", goals)
	}
}

func TestReplace_ClearsLoadError(t *testing.T) {
	// Given a store whose persisted data was unreadable
	s := New(WithLoader(staticLoader{data: []byte("{not json")}))
	if err := s.Load(context.Background()); err == nil {
		t.Fatal("expected Load error")
	}

	// When an export is imported
	if err := s.Replace(envelope.New(nil)); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	// Then the store is no longer degraded
	if err := s.LoadError(); err != nil {
		t.Errorf("LoadError = %v, want nil after Replace", err)
	}
}

func TestSnapshot_IsCurrentVersion(t *testing.T) {
	s, _ := newTestStore(t)
	mustAddGoal(t, s, "Trip", "100")

	env := s.Snapshot()
	if env.Version != envelope.CurrentVersion || len(env.Goals) != 1 {
		t.Errorf("Snapshot = %+v", env)
	}
}

func TestConcurrentOperationsKeepInvariant(t *testing.T) {
	s, _ := newTestStore(t, WithIDs(nil, nil))
	g := mustAddGoal(t, s, "Shared", "1000000")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				if _, err := s.AddTransaction(g.ID, types.TransactionInput{Amount: amt("2")}); err != nil {
					t.Errorf("AddTransaction failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	got, _ := s.Goal(g.ID)
	if len(got.Transactions) != 500 || !got.Saved.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("saved = %s with %d transactions, want 1000 with 500", got.Saved, len(got.Transactions))
	}
}
