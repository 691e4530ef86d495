package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/marketsafe/kestrel/internal/domain"
	"github.com/marketsafe/kestrel/internal/rules"
)

// Store is the persistence surface the API needs.
type Store interface {
	SaveTransaction(ctx context.Context, tx *domain.Transaction) error
	SaveAccount(ctx context.Context, creatorID string, createdAt time.Time) error
	SaveRuleConfig(ctx context.Context, rule *domain.CustomRule) error
	ListRuleConfigs(ctx context.Context) ([]*domain.CustomRule, error)
	Ping(ctx context.Context) error
}

// Pipeline runs the detection passes on demand.
type Pipeline interface {
	Analyze(ctx context.Context) (*domain.AnalysisReport, error)
	RunCycle(ctx context.Context) (*domain.MonitorReport, error)
}

// Handler holds dependencies for API handlers.
type Handler struct {
	store   Store
	cache   domain.Cache
	bus     domain.EventBus
	engine  *rules.Engine
	monitor Pipeline
	version string
}

// NewHandler creates a new API handler.
func NewHandler(store Store, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, monitor Pipeline, version string) *Handler {
	return &Handler{
		store:   store,
		cache:   cache,
		bus:     bus,
		engine:  engine,
		monitor: monitor,
		version: version,
	}
}

// IngestResponse is the response for POST /transactions.
type IngestResponse struct {
	ID        string `json:"id"`
	CreatorID string `json:"creatorId"`
	TraceID   string `json:"traceId,omitempty"`
}

// IngestTransaction handles POST /transactions requests.
func (h *Handler) IngestTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.CreatorID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "creatorId is required",
		})
		return
	}
	if !domain.ValidType(req.Type) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "type must be one of royalty, payout, bonus, refund, fee",
		})
		return
	}
	if req.Amount < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount must be non-negative",
		})
		return
	}

	tx := req.ToTransaction(uuid.New().String())

	if h.store != nil {
		if err := h.store.SaveTransaction(ctx, tx); err != nil {
			slog.Error("failed to save transaction", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save transaction",
			})
			return
		}
	}

	if h.bus != nil {
		payload, _ := json.Marshal(tx)
		if err := h.bus.Publish(ctx, domain.TopicTransactionIngested, payload); err != nil {
			slog.Error("failed to publish transaction event", "error", err)
		}
	}

	writeJSON(w, http.StatusCreated, IngestResponse{
		ID:        tx.ID,
		CreatorID: tx.CreatorID,
		TraceID:   GetTraceID(ctx),
	})
}

// RegisterAccountRequest is the request body for POST /accounts.
type RegisterAccountRequest struct {
	CreatorID string     `json:"creatorId"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// RegisterAccount records a creator account's creation time so the
// account-age detectors have something to look up.
func (h *Handler) RegisterAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RegisterAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.CreatorID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "creatorId is required",
		})
		return
	}

	createdAt := time.Now().UTC()
	if req.CreatedAt != nil {
		createdAt = req.CreatedAt.UTC()
	}

	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "store not available",
		})
		return
	}
	if err := h.store.SaveAccount(ctx, req.CreatorID, createdAt); err != nil {
		slog.Error("failed to save account", "creator_id", req.CreatorID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save account",
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"creatorId": req.CreatorID,
		"createdAt": createdAt.Format(time.RFC3339),
	})
}

// Analyze handles GET /analyze: a read-only detection pass over the
// analysis window. Nothing is persisted, dispatched, or notified.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	report, err := h.monitor.Analyze(r.Context())
	if err != nil {
		slog.Error("analysis pass failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "analysis failed",
		})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// RunMonitor handles POST /monitor/run: a full monitoring cycle with
// enforcement and notification side effects.
func (h *Handler) RunMonitor(w http.ResponseWriter, r *http.Request) {
	report, err := h.monitor.RunCycle(r.Context())
	if err != nil {
		slog.Error("monitoring cycle failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "monitoring cycle failed",
		})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns all custom rules loaded in the engine.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.engine.LoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": loaded,
		"count": len(loaded),
	})
}

// GetRule retrieves a custom rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.engine.LoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a custom rule.
type CreateRuleRequest struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Expression  string          `json:"expression"`
	Severity    domain.Severity `json:"severity"`
	Action      domain.Action   `json:"action"`
	Enabled     bool            `json:"enabled"`
}

// CreateRule validates a custom CEL rule, loads it into the engine, and
// persists it so it survives restarts.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}
	if req.Severity == "" {
		req.Severity = domain.SeverityMedium
	}
	if req.Action == "" {
		req.Action = domain.ActionFlag
	}

	rule := &domain.CustomRule{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Severity:    req.Severity,
		Action:      req.Action,
		Enabled:     req.Enabled,
	}

	// Compiling is the validation: a rule that does not produce a bool
	// never makes it into the engine. Disabled rules are validated and
	// persisted but stay out of the engine until enabled.
	if err := h.engine.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}
	if rule.Enabled {
		if err := h.engine.LoadRule(rule); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid CEL expression: " + err.Error(),
			})
			return
		}
	}

	if h.store != nil {
		if err := h.store.SaveRuleConfig(ctx, rule); err != nil {
			slog.Error("failed to save rule config", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("custom rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule": rule,
	})
}

// ReloadRules reloads all custom rules from the store into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "store not available",
		})
		return
	}

	stored, err := h.store.ListRuleConfigs(ctx)
	if err != nil {
		slog.Error("failed to list rules from store", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from store",
		})
		return
	}

	if err := h.engine.ReloadRules(stored); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("custom rules reloaded", "count", len(stored))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(stored),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
