package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/nestegg/internal/category"
	"github.com/hyperengineering/nestegg/internal/envelope"
	"github.com/hyperengineering/nestegg/internal/goals"
	"github.com/hyperengineering/nestegg/internal/query"
	"github.com/hyperengineering/nestegg/internal/stats"
	"github.com/hyperengineering/nestegg/internal/types"
)

// MaxImportBytes bounds the body accepted by POST /import.
const MaxImportBytes = 10 << 20

// Handler implements the API handlers
type Handler struct {
	store      *goals.Store
	stats      *stats.Tracker
	categories *category.Registry
	backend    string
	apiKey     string
	version    string
	now        func() time.Time
}

// NewHandler creates a Handler over the goal store and its dependent views.
func NewHandler(store *goals.Store, tracker *stats.Tracker, categories *category.Registry, backend, apiKey, version string) *Handler {
	if categories == nil {
		categories = category.Default()
	}
	return &Handler{
		store:      store,
		stats:      tracker,
		categories: categories,
		backend:    backend,
		apiKey:     apiKey,
		version:    version,
		now:        time.Now,
	}
}

// GoalResponse is returned by goal mutations.
type GoalResponse struct {
	types.Result
	Goal *types.Goal `json:"goal,omitempty"`
}

// TransactionResponse is returned by POST /goals/{id}/transactions.
type TransactionResponse struct {
	types.Result
	Transaction *types.Transaction `json:"transaction,omitempty"`
	Goal        *types.Goal        `json:"goal,omitempty"`
}

// GoalListResponse is returned by GET /goals.
type GoalListResponse struct {
	Goals  []types.Goal `json:"goals"`
	Count  int          `json:"count"`
	Filter string       `json:"filter,omitempty"`
}

// ImportResponse is returned by POST /import.
type ImportResponse struct {
	types.Result
	Imported int `json:"imported"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "component", "api", "error", err)
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

// Health handles GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := types.HealthResponse{
		Status:        "healthy",
		Version:       h.version,
		GoalCount:     h.store.Len(),
		SchemaVersion: envelope.CurrentVersion,
		Backend:       h.backend,
	}

	status := http.StatusOK
	switch {
	case !h.store.Ready():
		resp.Status = "starting"
		status = http.StatusServiceUnavailable
	case h.store.LoadError() != nil:
		resp.Status = "degraded"
	}

	writeJSON(w, status, resp)
}

// Categories handles GET /api/v1/categories
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": h.categories.All()})
}

// Stats handles GET /api/v1/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.Summary())
}

// ListGoals handles GET /api/v1/goals?filter=
func (h *Handler) ListGoals(w http.ResponseWriter, r *http.Request) {
	expression := r.URL.Query().Get("filter")
	filter, err := query.Compile(expression)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}

	matched, err := filter.Apply(h.store.Goals(), h.now())
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, GoalListResponse{
		Goals:  matched,
		Count:  len(matched),
		Filter: filter.String(),
	})
}

// CreateGoal handles POST /api/v1/goals
func (h *Handler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	var in types.GoalInput
	if err := decodeBody(r, &in); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	g, err := h.store.AddGoal(in)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/goals/"+g.ID)
	writeJSON(w, http.StatusCreated, GoalResponse{Result: types.ResultFrom(nil), Goal: &g})
}

// GetGoal handles GET /api/v1/goals/{id}
func (h *Handler) GetGoal(w http.ResponseWriter, r *http.Request) {
	g, err := h.store.Goal(chi.URLParam(r, "id"))
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// UpdateGoal handles PATCH /api/v1/goals/{id}
func (h *Handler) UpdateGoal(w http.ResponseWriter, r *http.Request) {
	var patch types.GoalPatch
	if err := decodeBody(r, &patch); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	g, err := h.store.UpdateGoal(chi.URLParam(r, "id"), patch)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, GoalResponse{Result: types.ResultFrom(nil), Goal: &g})
}

// DeleteGoal handles DELETE /api/v1/goals/{id}
func (h *Handler) DeleteGoal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.RemoveGoal(id); err != nil {
		MapStoreError(w, r, err)
		return
	}

	slog.Info("goal removed", "component", "api", "goal_id", id, "request_id", GetRequestID(r.Context()))
	writeJSON(w, http.StatusOK, types.ResultFrom(nil))
}

// AddTransaction handles POST /api/v1/goals/{id}/transactions
func (h *Handler) AddTransaction(w http.ResponseWriter, r *http.Request) {
	var in types.TransactionInput
	if err := decodeBody(r, &in); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	id := chi.URLParam(r, "id")
	tx, err := h.store.AddTransaction(id, in)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	resp := TransactionResponse{Result: types.ResultFrom(nil), Transaction: &tx}
	if g, err := h.store.Goal(id); err == nil {
		resp.Goal = &g
	}
	writeJSON(w, http.StatusCreated, resp)
}

// DeleteTransaction handles DELETE /api/v1/goals/{id}/transactions/{txID}
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.RemoveTransaction(id, chi.URLParam(r, "txID")); err != nil {
		MapStoreError(w, r, err)
		return
	}

	resp := GoalResponse{Result: types.ResultFrom(nil)}
	if g, err := h.store.Goal(id); err == nil {
		resp.Goal = &g
	}
	writeJSON(w, http.StatusOK, resp)
}

// Export handles GET /api/v1/export
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := envelope.Encode(h.store.Snapshot())
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	name := fmt.Sprintf("nestegg-%s.json", h.now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Warn("export write interrupted", "component", "api", "error", err)
	}
}

// Import handles POST /api/v1/import. The body may be any shipped envelope
// version; it replaces the whole collection.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxImportBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteProblem(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("Import exceeds %d bytes", MaxImportBytes))
			return
		}
		WriteProblem(w, r, http.StatusBadRequest, "Failed to read request body")
		return
	}

	env, err := envelope.Decode(data)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	if err := h.store.Replace(env); err != nil {
		MapStoreError(w, r, err)
		return
	}

	slog.Info("goals imported",
		"component", "api",
		"action", "import",
		"count", len(env.Goals),
		"request_id", GetRequestID(r.Context()),
	)
	writeJSON(w, http.StatusOK, ImportResponse{Result: types.ResultFrom(nil), Imported: len(env.Goals)})
}
