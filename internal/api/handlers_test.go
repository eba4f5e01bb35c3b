package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hyperengineering/nestegg/internal/category"
	"github.com/hyperengineering/nestegg/internal/envelope"
	"github.com/hyperengineering/nestegg/internal/goals"
	"github.com/hyperengineering/nestegg/internal/stats"
	"github.com/hyperengineering/nestegg/internal/types"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, time.June, 1, 9, 0, 0, 0, time.UTC)

// bytesLoader serves a fixed persisted document.
type bytesLoader []byte

func (b bytesLoader) Load(ctx context.Context) ([]byte, error) {
	return b, nil
}

type testEnv struct {
	store   *goals.Store
	handler *Handler
	router  http.Handler
}

// newTestEnv wires a loaded store, a stats tracker and the router.
func newTestEnv(t *testing.T, apiKey string, opts ...goals.Option) *testEnv {
	t.Helper()
	captureLogs(t)

	clock := func() time.Time { return testNow }
	n := 0
	base := []goals.Option{
		goals.WithClock(clock),
		goals.WithCategories(category.Default()),
		goals.WithIDs(func() string { n++; return fmt.Sprintf("g%d", n) }, nil),
	}
	s := goals.New(append(base, opts...)...)
	s.Load(context.Background())

	tracker := stats.NewTracker(s, clock, stats.DefaultRecent)
	t.Cleanup(tracker.Close)

	h := NewHandler(s, tracker, category.Default(), "memory", apiKey, "1.2.3")
	h.now = clock
	return &testEnv{store: s, handler: h, router: NewRouter(h)}
}

func (e *testEnv) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func goalInput(name, target, emoji string) types.GoalInput {
	d := decimal.RequireFromString(target)
	return types.GoalInput{Name: name, Target: &d, Emoji: emoji}
}

func decodeResponse[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", w.Body.String(), err)
	}
	return v
}

func mustCreate(t *testing.T, e *testEnv, body string) types.Goal {
	t.Helper()
	w := e.do(http.MethodPost, "/api/v1/goals", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create goal: status = %d, body = %s", w.Code, w.Body.String())
	}
	return *decodeResponse[GoalResponse](t, w).Goal
}

// --- Health ---

func TestHealth(t *testing.T) {
	e := newTestEnv(t, "secret")
	mustCreate(t, e, `{"name": "Trip", "target": 1000, "emoji": "✈️"}`)

	// No Authorization header: health is public
	w := e.do(http.MethodGet, "/api/v1/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	resp := decodeResponse[types.HealthResponse](t, w)
	want := types.HealthResponse{
		Status:        "healthy",
		Version:       "1.2.3",
		GoalCount:     1,
		SchemaVersion: envelope.CurrentVersion,
		Backend:       "memory",
	}
	if resp != want {
		t.Errorf("health = %+v, want %+v", resp, want)
	}
}

func TestHealth_NotLoaded(t *testing.T) {
	captureLogs(t)
	s := goals.New()
	tracker := stats.NewTracker(s, nil, stats.DefaultRecent)
	defer tracker.Close()
	h := NewHandler(s, tracker, nil, "file", "", "dev")

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if resp := decodeResponse[types.HealthResponse](t, w); resp.Status != "starting" {
		t.Errorf("status = %q, want starting", resp.Status)
	}
}

func TestHealth_DegradedAfterCorruptLoad(t *testing.T) {
	e := newTestEnv(t, "", goals.WithLoader(bytesLoader("{not json")))

	w := e.do(http.MethodGet, "/api/v1/health", "")

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if resp := decodeResponse[types.HealthResponse](t, w); resp.Status != "degraded" || resp.GoalCount != 0 {
		t.Errorf("health = %+v, want degraded with no goals", resp)
	}
}

// --- Auth ---

func TestRoutes_AuthWhenKeyConfigured(t *testing.T) {
	e := newTestEnv(t, testAPIKey)

	if w := e.do(http.MethodGet, "/api/v1/goals", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("without token: status = %d, want 401", w.Code)
	}
	if w := e.do(http.MethodGet, "/api/v1/goals", "", "Authorization", "Bearer "+testAPIKey); w.Code != http.StatusOK {
		t.Errorf("with token: status = %d, want 200", w.Code)
	}
}

func TestRoutes_OpenWithoutKey(t *testing.T) {
	e := newTestEnv(t, "")

	if w := e.do(http.MethodGet, "/api/v1/goals", ""); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

// --- Categories ---

func TestCategories(t *testing.T) {
	e := newTestEnv(t, "")

	w := e.do(http.MethodGet, "/api/v1/categories", "")

	resp := decodeResponse[struct {
		Categories []types.Category `json:"categories"`
	}](t, w)
	if len(resp.Categories) != len(category.Default().All()) {
		t.Errorf("got %d categories, want %d", len(resp.Categories), len(category.Default().All()))
	}
	if resp.Categories[0].ID != "travel" {
		t.Errorf("first category = %q, want travel", resp.Categories[0].ID)
	}
}

// --- Goals ---

func TestCreateGoal(t *testing.T) {
	e := newTestEnv(t, "")

	// Given: a goal with an opening balance
	body := `{"name": "  Trip ", "target": "1000", "saved": "250", "emoji": "✈️", "category": "travel", "deadline": "2026-12-24"}`

	// When: it is posted
	w := e.do(http.MethodPost, "/api/v1/goals", body)

	// Then: it is created with defaults and an opening transaction
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/api/v1/goals/g1" {
		t.Errorf("Location = %q", loc)
	}
	resp := decodeResponse[GoalResponse](t, w)
	if !resp.Success || resp.Error != "" {
		t.Errorf("result = %+v, want success", resp.Result)
	}
	g := resp.Goal
	if g.ID != "g1" || g.Name != "Trip" || g.Status != types.StatusActive || g.Priority != types.PriorityMedium {
		t.Errorf("goal = %+v", g)
	}
	if !g.Saved.Equal(decimal.NewFromInt(250)) || len(g.Transactions) != 1 {
		t.Errorf("saved = %s with %d transactions, want 250 with 1", g.Saved, len(g.Transactions))
	}
	if g.Deadline == nil || g.Deadline.String() != "2026-12-24" {
		t.Errorf("deadline = %v", g.Deadline)
	}
	if e.store.Len() != 1 {
		t.Errorf("store has %d goals, want 1", e.store.Len())
	}
}

func TestCreateGoal_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantField  string
	}{
		{"invalid json", `{"name":`, http.StatusBadRequest, ""},
		{"unknown field", `{"name": "Trip", "target": 10, "emoji": "✈️", "color_scheme": "x"}`, http.StatusBadRequest, ""},
		{"trailing data", `{"name": "Trip", "target": 10, "emoji": "✈️"} {}`, http.StatusBadRequest, ""},
		{"missing name", `{"target": 10, "emoji": "✈️"}`, http.StatusUnprocessableEntity, "name"},
		{"zero target", `{"name": "Trip", "target": 0, "emoji": "✈️"}`, http.StatusUnprocessableEntity, "target"},
		{"unknown category", `{"name": "Trip", "target": 10, "emoji": "✈️", "category": "pets"}`, http.StatusUnprocessableEntity, "category"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t, "")

			w := e.do(http.MethodPost, "/api/v1/goals", tt.body)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantField != "" {
				p := decodeResponse[ProblemWithErrors](t, w)
				if len(p.Errors) == 0 || p.Errors[0].Field != tt.wantField {
					t.Errorf("errors = %+v, want field %q", p.Errors, tt.wantField)
				}
			}
			if e.store.Len() != 0 {
				t.Error("failed create must not add a goal")
			}
		})
	}
}

func TestListGoals_Filter(t *testing.T) {
	e := newTestEnv(t, "")
	mustCreate(t, e, `{"name": "Trip", "target": 1000, "saved": 900, "emoji": "✈️", "category": "travel"}`)
	mustCreate(t, e, `{"name": "Laptop", "target": 2000, "emoji": "💻", "category": "tech"}`)
	mustCreate(t, e, `{"name": "Car", "target": 100, "saved": 100, "emoji": "🚗", "category": "car"}`)

	tests := []struct {
		name   string
		filter string
		want   []string
	}{
		{"no filter keeps order", "", []string{"Trip", "Laptop", "Car"}},
		{"by status", `status == "completed"`, []string{"Car"}},
		{"by progress", `progress >= 50 && status == "active"`, []string{"Trip"}},
		{"by category list", `category in ["tech", "car"]`, []string{"Laptop", "Car"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "/api/v1/goals"
			if tt.filter != "" {
				path += "?filter=" + url.QueryEscape(tt.filter)
			}
			w := e.do(http.MethodGet, path, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
			}

			resp := decodeResponse[GoalListResponse](t, w)
			var names []string
			for _, g := range resp.Goals {
				names = append(names, g.Name)
			}
			if strings.Join(names, ",") != strings.Join(tt.want, ",") {
				t.Errorf("goals = %v, want %v", names, tt.want)
			}
			if resp.Count != len(tt.want) {
				t.Errorf("count = %d, want %d", resp.Count, len(tt.want))
			}
		})
	}
}

func TestListGoals_InvalidFilter(t *testing.T) {
	e := newTestEnv(t, "")

	for _, filter := range []string{`name +`, `saved`} {
		w := e.do(http.MethodGet, "/api/v1/goals?filter="+url.QueryEscape(filter), "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("filter %q: status = %d, want 400", filter, w.Code)
		}
	}
}

func TestListGoals_EmptyIsArray(t *testing.T) {
	e := newTestEnv(t, "")

	w := e.do(http.MethodGet, "/api/v1/goals", "")

	if !strings.Contains(w.Body.String(), `"goals":[]`) {
		t.Errorf("body = %s, want empty goals array", w.Body.String())
	}
}

func TestGetGoal(t *testing.T) {
	e := newTestEnv(t, "")
	created := mustCreate(t, e, `{"name": "Trip", "target": 1000, "emoji": "✈️"}`)

	w := e.do(http.MethodGet, "/api/v1/goals/"+created.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if g := decodeResponse[types.Goal](t, w); g.ID != created.ID || g.Name != "Trip" {
		t.Errorf("goal = %+v", g)
	}

	if w := e.do(http.MethodGet, "/api/v1/goals/missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing goal: status = %d, want 404", w.Code)
	}
}

func TestUpdateGoal(t *testing.T) {
	e := newTestEnv(t, "")
	created := mustCreate(t, e, `{"name": "Trip", "target": 1000, "emoji": "✈️", "deadline": "2026-12-24"}`)

	w := e.do(http.MethodPatch, "/api/v1/goals/"+created.ID,
		`{"name": "Japan", "priority": "high", "status": "paused", "clear_deadline": true}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	g := decodeResponse[GoalResponse](t, w).Goal
	if g.Name != "Japan" || g.Priority != types.PriorityHigh || g.Status != types.StatusPaused {
		t.Errorf("goal = %+v", g)
	}
	if g.Deadline != nil {
		t.Errorf("deadline = %v, want cleared", g.Deadline)
	}
	if g.Emoji != "✈️" {
		t.Errorf("emoji = %q, want untouched", g.Emoji)
	}
}

func TestUpdateGoal_Errors(t *testing.T) {
	e := newTestEnv(t, "")
	created := mustCreate(t, e, `{"name": "Trip", "target": 1000, "emoji": "✈️"}`)

	tests := []struct {
		name       string
		id         string
		body       string
		wantStatus int
	}{
		{"unknown goal", "missing", `{"name": "X"}`, http.StatusNotFound},
		{"blank name", created.ID, `{"name": " "}`, http.StatusUnprocessableEntity},
		{"bad status", created.ID, `{"status": "archived"}`, http.StatusUnprocessableEntity},
		{"saved is not patchable", created.ID, `{"saved": 10}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(http.MethodPatch, "/api/v1/goals/"+tt.id, tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}

	g, _ := e.store.Goal(created.ID)
	if g.Name != "Trip" || g.Status != types.StatusActive {
		t.Errorf("goal changed by failed updates: %+v", g)
	}
}

func TestDeleteGoal(t *testing.T) {
	e := newTestEnv(t, "")
	created := mustCreate(t, e, `{"name": "Trip", "target": 1000, "emoji": "✈️"}`)

	w := e.do(http.MethodDelete, "/api/v1/goals/"+created.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if r := decodeResponse[types.Result](t, w); !r.Success {
		t.Errorf("result = %+v", r)
	}

	if w := e.do(http.MethodDelete, "/api/v1/goals/"+created.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want 404", w.Code)
	}
}

// --- Transactions ---

func TestTransactions_CompleteAndReopen(t *testing.T) {
	e := newTestEnv(t, "")
	created := mustCreate(t, e, `{"name": "Trip", "target": 1000, "saved": 800, "emoji": "✈️"}`)
	path := "/api/v1/goals/" + created.ID + "/transactions"

	// When: a deposit reaches the target
	w := e.do(http.MethodPost, path, `{"amount": 200, "note": "bonus"}`)

	// Then: the goal is completed
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decodeResponse[TransactionResponse](t, w)
	if resp.Transaction == nil || !resp.Transaction.Amount.Equal(decimal.NewFromInt(200)) || resp.Transaction.Note != "bonus" {
		t.Errorf("transaction = %+v", resp.Transaction)
	}
	if !resp.Transaction.Date.Equal(testNow) {
		t.Errorf("date = %v, want defaulted to now", resp.Transaction.Date)
	}
	if resp.Goal.Status != types.StatusCompleted || !resp.Goal.Saved.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("goal status = %s saved = %s, want completed at 1000", resp.Goal.Status, resp.Goal.Saved)
	}

	// When: the deposit is removed
	w = e.do(http.MethodDelete, path+"/"+resp.Transaction.ID, "")

	// Then: the goal is reopened
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	g := decodeResponse[GoalResponse](t, w).Goal
	if g.Status != types.StatusActive || !g.Saved.Equal(decimal.NewFromInt(800)) {
		t.Errorf("goal status = %s saved = %s, want active at 800", g.Status, g.Saved)
	}
}

func TestTransactions_Errors(t *testing.T) {
	e := newTestEnv(t, "")
	created := mustCreate(t, e, `{"name": "Trip", "target": 1000, "emoji": "✈️"}`)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"missing amount", http.MethodPost, "/api/v1/goals/" + created.ID + "/transactions", `{"note": "x"}`, http.StatusUnprocessableEntity},
		{"unknown goal", http.MethodPost, "/api/v1/goals/missing/transactions", `{"amount": 5}`, http.StatusNotFound},
		{"bad amount", http.MethodPost, "/api/v1/goals/" + created.ID + "/transactions", `{"amount": "lots"}`, http.StatusBadRequest},
		{"unknown transaction", http.MethodDelete, "/api/v1/goals/" + created.ID + "/transactions/nope", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(tt.method, tt.path, tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}

	g, _ := e.store.Goal(created.ID)
	if len(g.Transactions) != 0 || !g.Saved.IsZero() {
		t.Errorf("failed transactions changed the goal: %+v", g)
	}
}

// --- Stats ---

func TestStats(t *testing.T) {
	e := newTestEnv(t, "")
	mustCreate(t, e, `{"name": "Trip", "target": 1000, "saved": 500, "emoji": "✈️", "category": "travel", "deadline": "2026-06-11"}`)
	mustCreate(t, e, `{"name": "Car", "target": 100, "saved": 100, "emoji": "🚗", "category": "travel"}`)

	w := e.do(http.MethodGet, "/api/v1/stats", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	s := decodeResponse[stats.Summary](t, w)
	if s.TotalGoals != 2 || s.CompletedGoals != 1 || s.ActiveGoals != 1 {
		t.Errorf("counts = %+v", s)
	}
	if !s.TotalSaved.Equal(decimal.NewFromInt(600)) {
		t.Errorf("total saved = %s, want 600", s.TotalSaved)
	}
	if s.UrgentGoal == nil || s.UrgentGoal.Name != "Trip" || s.UrgentGoal.DaysLeft != 10 {
		t.Errorf("urgent goal = %+v, want Trip in 10 days", s.UrgentGoal)
	}
	if s.PopularCategory == nil || s.PopularCategory.ID != "travel" || s.PopularCategory.Count != 2 {
		t.Errorf("popular category = %+v", s.PopularCategory)
	}
}

// --- Export / Import ---

func TestExportImport_RoundTrip(t *testing.T) {
	source := newTestEnv(t, "")
	mustCreate(t, source, `{"name": "Trip", "target": 1000, "saved": 300, "emoji": "✈️"}`)
	mustCreate(t, source, `{"name": "Car", "target": 5000, "emoji": "🚗"}`)

	w := source.do(http.MethodGet, "/api/v1/export", "")
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "nestegg-20260601.json") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	exported := w.Body.String()

	target := newTestEnv(t, "")
	mustCreate(t, target, `{"name": "Old", "target": 1, "emoji": "🗑️"}`)

	w = target.do(http.MethodPost, "/api/v1/import", exported)
	if w.Code != http.StatusOK {
		t.Fatalf("import status = %d, body = %s", w.Code, w.Body.String())
	}
	if r := decodeResponse[ImportResponse](t, w); !r.Success || r.Imported != 2 {
		t.Errorf("import response = %+v", r)
	}

	got := target.store.Goals()
	if len(got) != 2 || got[0].Name != "Trip" || got[1].Name != "Car" {
		t.Fatalf("imported goals = %+v", got)
	}
	if !got[0].Saved.Equal(decimal.NewFromInt(300)) || len(got[0].Transactions) != 1 {
		t.Errorf("imported balance = %s with %d transactions", got[0].Saved, len(got[0].Transactions))
	}
}

func TestImport_LegacyDocument(t *testing.T) {
	e := newTestEnv(t, "")
	legacy := `{"state": {"goals": [{"id": 1717171717171, "name": "Vacanza", "target": 1000, "saved": 50,
		"emoji": "🏖️", "createdAt": "2024-05-31T16:15:17.171Z", "status": "active", "priority": "high"}]}, "version": 1}`

	w := e.do(http.MethodPost, "/api/v1/import", legacy)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	g, err := e.store.Goal("1717171717171")
	if err != nil {
		t.Fatalf("migrated goal missing: %v", err)
	}
	if !g.TransactionSum().Equal(g.Saved) {
		t.Errorf("sum %s != saved %s", g.TransactionSum(), g.Saved)
	}
}

func TestImport_Rejected(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"not json", `{goals`, http.StatusBadRequest},
		{"duplicate ids", `{"version": 2, "goals": [{"id": "a"}, {"id": "a"}]}`, http.StatusBadRequest},
		{"future version", `{"version": 99, "goals": []}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t, "")
			mustCreate(t, e, `{"name": "Keep", "target": 10, "emoji": "🎯"}`)

			w := e.do(http.MethodPost, "/api/v1/import", tt.body)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if e.store.Len() != 1 {
				t.Error("rejected import must leave the collection untouched")
			}
		})
	}
}

func TestImport_TooLarge(t *testing.T) {
	e := newTestEnv(t, "")
	body := `{"version": 2, "goals": [], "pad": "` + strings.Repeat("x", MaxImportBytes) + `"}`

	w := e.do(http.MethodPost, "/api/v1/import", body)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
}
