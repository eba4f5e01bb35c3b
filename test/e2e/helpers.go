package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hyperengineering/nestegg/internal/api"
	"github.com/hyperengineering/nestegg/internal/category"
	"github.com/hyperengineering/nestegg/internal/goals"
	"github.com/hyperengineering/nestegg/internal/persist"
	"github.com/hyperengineering/nestegg/internal/stats"
	"github.com/hyperengineering/nestegg/internal/worker"
)

// stack is the serve wiring assembled in-process: storage, the background
// writer, the goal store and the HTTP router.
type stack struct {
	adapter persist.Adapter
	writer  *worker.Writer
	store   *goals.Store
	tracker *stats.Tracker
	server  *httptest.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// startStack opens storage, loads goals and serves them on a test server.
// The stack is stopped at test cleanup if the test did not stop it first.
func startStack(t *testing.T, opts persist.Options, apiKey string) *stack {
	t.Helper()

	ctx := context.Background()
	adapter, err := persist.Open(ctx, opts)
	if err != nil {
		t.Fatalf("open %s storage: %v", opts.Backend, err)
	}

	registry := category.Default()
	writer := worker.NewWriter(adapter, worker.WriterConfig{
		Debounce:    20 * time.Millisecond,
		Timeout:     5 * time.Second,
		MaxAttempts: 3,
		RetryDelay:  10 * time.Millisecond,
	})
	store := goals.New(
		goals.WithLoader(adapter),
		goals.WithPersister(writer),
		goals.WithCategories(registry),
	)
	_ = store.Load(ctx)

	tracker := stats.NewTracker(store, time.Now, stats.DefaultRecent)
	handler := api.NewHandler(store, tracker, registry, opts.Backend, apiKey, "e2e")

	s := &stack{
		adapter: adapter,
		writer:  writer,
		store:   store,
		tracker: tracker,
		server:  httptest.NewServer(api.NewRouter(handler)),
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		writer.Run(runCtx)
	}()

	t.Cleanup(s.stop)
	return s
}

// stop follows the serve shutdown order: HTTP first, then the writer
// (which flushes), then storage.
func (s *stack) stop() {
	s.once.Do(func() {
		s.server.Close()
		s.cancel()
		s.wg.Wait()
		s.tracker.Close()
		s.adapter.Close()
	})
}

// do sends a request and returns the status and body.
func (s *stack) do(t *testing.T, method, path string, body any, apiKey string) (int, []byte) {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		r = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.server.URL+path, r)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp.StatusCode, data
}

// decode unmarshals a response body into T.
func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

type goalBody struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Saved        string `json:"saved"`
	Status       string `json:"status"`
	Transactions []struct {
		ID     string `json:"id"`
		Amount string `json:"amount"`
	} `json:"transactions"`
}

type goalResponse struct {
	Success bool     `json:"success"`
	Goal    goalBody `json:"goal"`
}

type transactionResponse struct {
	Success     bool `json:"success"`
	Transaction struct {
		ID string `json:"id"`
	} `json:"transaction"`
	Goal goalBody `json:"goal"`
}

type healthResponse struct {
	Status    string `json:"status"`
	GoalCount int    `json:"goal_count"`
	Backend   string `json:"backend"`
}

// createGoal posts a goal and returns it.
func (s *stack) createGoal(t *testing.T, apiKey, name, target string) goalBody {
	t.Helper()
	status, data := s.do(t, http.MethodPost, "/api/v1/goals", map[string]any{
		"name":   name,
		"target": target,
		"emoji":  "🎯",
	}, apiKey)
	if status != http.StatusCreated {
		t.Fatalf("create goal: status %d: %s", status, data)
	}
	return decode[goalResponse](t, data).Goal
}

// addTransaction posts a transaction and returns the updated goal.
func (s *stack) addTransaction(t *testing.T, apiKey, goalID, amount string) transactionResponse {
	t.Helper()
	status, data := s.do(t, http.MethodPost, "/api/v1/goals/"+goalID+"/transactions", map[string]any{
		"amount": amount,
	}, apiKey)
	if status != http.StatusCreated {
		t.Fatalf("add transaction: status %d: %s", status, data)
	}
	return decode[transactionResponse](t, data)
}
