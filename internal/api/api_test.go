package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/marketsafe/kestrel/internal/cache"
	"github.com/marketsafe/kestrel/internal/domain"
	"github.com/marketsafe/kestrel/internal/rules"
)

type fakeStore struct {
	txs      []*domain.Transaction
	accounts map[string]time.Time
	rules    map[string]*domain.CustomRule
	pingErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: make(map[string]time.Time),
		rules:    make(map[string]*domain.CustomRule),
	}
}

func (f *fakeStore) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	f.txs = append(f.txs, tx)
	return nil
}

func (f *fakeStore) SaveAccount(ctx context.Context, creatorID string, createdAt time.Time) error {
	f.accounts[creatorID] = createdAt
	return nil
}

func (f *fakeStore) SaveRuleConfig(ctx context.Context, rule *domain.CustomRule) error {
	f.rules[rule.ID] = rule
	return nil
}

func (f *fakeStore) ListRuleConfigs(ctx context.Context) ([]*domain.CustomRule, error) {
	var out []*domain.CustomRule
	for _, rule := range f.rules {
		out = append(out, rule)
	}
	return out, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	return f.pingErr
}

type fakePipeline struct {
	analyzeErr error
	cycleErr   error
	analyzed   int
	cycles     int
}

func (f *fakePipeline) Analyze(ctx context.Context) (*domain.AnalysisReport, error) {
	f.analyzed++
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	return &domain.AnalysisReport{
		Alerts: []*domain.Alert{{
			ID:        "alert-1",
			Type:      string(domain.RuleLargeSingleTransaction),
			Severity:  domain.SeverityMedium,
			CreatorID: "whale",
		}},
	}, nil
}

func (f *fakePipeline) RunCycle(ctx context.Context) (*domain.MonitorReport, error) {
	f.cycles++
	if f.cycleErr != nil {
		return nil, f.cycleErr
	}
	return &domain.MonitorReport{
		Stats: domain.ScanStats{TransactionsScanned: 7, CreatorsAnalyzed: 3},
	}, nil
}

func newTestServer(t *testing.T, store Store, pipeline Pipeline) *Server {
	t.Helper()

	engine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	if store == nil {
		store = newFakeStore()
	}
	if pipeline == nil {
		pipeline = &fakePipeline{}
	}

	return NewServer(domain.ServerConfig{Host: "127.0.0.1", Port: 0}, store, nil, nil, engine, pipeline, "test")
}

func doJSON(t *testing.T, srv *Server, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != "healthy" {
		t.Errorf("expected healthy, got %s", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("expected version test, got %s", resp["version"])
	}
}

func TestHealthDegraded(t *testing.T) {
	store := newFakeStore()
	store.pingErr = errors.New("db down")
	srv := newTestServer(t, store, nil)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != "degraded" {
		t.Errorf("expected degraded, got %s", resp["status"])
	}
}

func TestIngestTransaction(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store, nil)

	rec := doJSON(t, srv, http.MethodPost, "/transactions", domain.TransactionRequest{
		CreatorID: "creator-1",
		Type:      domain.TxRoyalty,
		Amount:    250,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp IngestResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.ID == "" {
		t.Error("expected a generated transaction ID")
	}
	if resp.CreatorID != "creator-1" {
		t.Errorf("expected creator-1, got %s", resp.CreatorID)
	}

	if len(store.txs) != 1 {
		t.Fatalf("expected 1 saved transaction, got %d", len(store.txs))
	}
	if store.txs[0].Amount != 250 || store.txs[0].Type != domain.TxRoyalty {
		t.Errorf("saved transaction mismatch: %+v", store.txs[0])
	}
}

func TestIngestTransactionValidation(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	cases := []struct {
		name string
		req  domain.TransactionRequest
	}{
		{"MissingCreator", domain.TransactionRequest{Type: domain.TxRoyalty, Amount: 10}},
		{"BadType", domain.TransactionRequest{CreatorID: "c", Type: "gift", Amount: 10}},
		{"NegativeAmount", domain.TransactionRequest{CreatorID: "c", Type: domain.TxRoyalty, Amount: -5}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, "/transactions", tc.req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestRegisterAccount(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store, nil)

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := doJSON(t, srv, http.MethodPost, "/accounts", RegisterAccountRequest{
		CreatorID: "creator-1",
		CreatedAt: &created,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if !store.accounts["creator-1"].Equal(created) {
		t.Errorf("account not saved with requested time: %v", store.accounts["creator-1"])
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	pipeline := &fakePipeline{}
	srv := newTestServer(t, nil, pipeline)

	rec := doJSON(t, srv, http.MethodGet, "/analyze", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if pipeline.analyzed != 1 {
		t.Errorf("expected 1 analysis pass, got %d", pipeline.analyzed)
	}

	var report domain.AnalysisReport
	json.Unmarshal(rec.Body.Bytes(), &report)
	if len(report.Alerts) != 1 || report.Alerts[0].CreatorID != "whale" {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestRunMonitorEndpoint(t *testing.T) {
	pipeline := &fakePipeline{}
	srv := newTestServer(t, nil, pipeline)

	rec := doJSON(t, srv, http.MethodPost, "/monitor/run", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if pipeline.cycles != 1 {
		t.Errorf("expected 1 cycle, got %d", pipeline.cycles)
	}

	var report domain.MonitorReport
	json.Unmarshal(rec.Body.Bytes(), &report)
	if report.Stats.TransactionsScanned != 7 {
		t.Errorf("unexpected stats: %+v", report.Stats)
	}
}

func TestMonitorFailure(t *testing.T) {
	pipeline := &fakePipeline{cycleErr: errors.New("ledger unavailable")}
	srv := newTestServer(t, nil, pipeline)

	rec := doJSON(t, srv, http.MethodPost, "/monitor/run", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestRuleLifecycle(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store, nil)

	// Create a valid rule.
	rec := doJSON(t, srv, http.MethodPost, "/rules", CreateRuleRequest{
		ID:         "cashout-spike",
		Name:       "Cashout spike",
		Expression: "payout_sum > 1000",
		Severity:   domain.SeverityHigh,
		Action:     domain.ActionSuspend,
		Enabled:    true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if _, ok := store.rules["cashout-spike"]; !ok {
		t.Error("rule not persisted")
	}

	// It shows up in the engine listing.
	rec = doJSON(t, srv, http.MethodGet, "/rules", nil)
	var listing struct {
		Count int `json:"count"`
	}
	json.Unmarshal(rec.Body.Bytes(), &listing)
	if listing.Count != 1 {
		t.Errorf("expected 1 loaded rule, got %d", listing.Count)
	}

	// Fetch by ID.
	rec = doJSON(t, srv, http.MethodGet, "/rules/cashout-spike", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodGet, "/rules/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	// Reload from the store.
	rec = doJSON(t, srv, http.MethodPost, "/rules/reload", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestCreateDisabledRuleStaysUnloaded(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store, nil)

	rec := doJSON(t, srv, http.MethodPost, "/rules", CreateRuleRequest{
		ID:         "dormant",
		Name:       "Dormant rule",
		Expression: "payout_sum > 1000",
		Enabled:    false,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if _, ok := store.rules["dormant"]; !ok {
		t.Error("disabled rule should still be persisted")
	}

	// Persisted but not evaluating: the engine must stay empty.
	rec = doJSON(t, srv, http.MethodGet, "/rules", nil)
	var listing struct {
		Count int `json:"count"`
	}
	json.Unmarshal(rec.Body.Bytes(), &listing)
	if listing.Count != 0 {
		t.Errorf("disabled rule was loaded into the engine: count=%d", listing.Count)
	}

	// A disabled rule with a broken expression is still rejected.
	rec = doJSON(t, srv, http.MethodPost, "/rules", CreateRuleRequest{
		ID:         "dormant-bad",
		Name:       "Dormant bad rule",
		Expression: "payout_sum + 1",
		Enabled:    false,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-bool expression, got %d", rec.Code)
	}
}

func TestCreateRuleRejectsBadExpression(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec := doJSON(t, srv, http.MethodPost, "/rules", CreateRuleRequest{
		ID:         "bad",
		Name:       "Bad rule",
		Expression: "payout_sum + 1",
		Enabled:    true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-bool expression, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	engine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	srv := NewServer(domain.ServerConfig{Host: "127.0.0.1", RateLimitPerMin: 2},
		newFakeStore(), cache.NewLRUCache(100), nil, engine, &fakePipeline{}, "test")

	// httptest requests share a RemoteAddr, so they count as one client.
	for i := 0; i < 2; i++ {
		rec := doJSON(t, srv, http.MethodGet, "/health", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 over the limit, got %d", rec.Code)
	}
}

func TestTraceHeaders(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID header")
	}
	if rec.Header().Get(TraceIDHeader) == "" {
		t.Error("expected X-Trace-ID header")
	}
}
