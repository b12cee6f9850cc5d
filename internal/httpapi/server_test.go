package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/corpsim/corpsim/internal/invariant"
	"github.com/corpsim/corpsim/internal/lease"
	"github.com/corpsim/corpsim/internal/market"
	"github.com/corpsim/corpsim/internal/model"
	"github.com/corpsim/corpsim/internal/store/memstore"
	"github.com/corpsim/corpsim/internal/tick"
)

func newTestServer(t *testing.T) (*Server, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	leases := lease.NewManager(st, "test-owner", nil)
	engine := tick.NewEngine(st, leases, market.NewEngine(nil), tick.Config{ProcessorTTL: time.Minute}, nil)
	scanner := invariant.NewScanner(st, nil)
	retry := tick.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	return New(st, engine, scanner, nil, nil, retry, nil), st
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthHealthy(t *testing.T) {
	s, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body struct {
		Status string `json:"status"`
	}
	decode(t, rr, &body)
	if body.Status != "healthy" {
		t.Errorf("status = %q, want healthy", body.Status)
	}
}

func TestGetTickState(t *testing.T) {
	s, _ := newTestServer(t)
	handler := s.Handler()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/tick", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var state tickStateResponse
	decode(t, rr, &state)
	if state.CurrentTick != 0 || state.LockVersion != 0 {
		t.Errorf("state = %+v, want fresh clock", state)
	}
}

func TestAdvanceEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	handler := s.Handler()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/tick/advance", strings.NewReader(`{"ticks": 3}`))
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rr.Code, rr.Body)
	}
	var resp advanceResponse
	decode(t, rr, &resp)
	if resp.TicksAdvanced != 3 || resp.CurrentTick != 3 {
		t.Errorf("response = %+v, want 3 ticks to 3", resp)
	}
}

func TestAdvanceDefaultsToOneTick(t *testing.T) {
	s, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/tick/advance", strings.NewReader(`{}`))
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp advanceResponse
	decode(t, rr, &resp)
	if resp.TicksAdvanced != 1 {
		t.Errorf("TicksAdvanced = %d, want 1", resp.TicksAdvanced)
	}
}

func TestAdvanceVersionConflictReturns409(t *testing.T) {
	s, _ := newTestServer(t)
	handler := s.Handler()

	// Move the clock so version 0 goes stale.
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/tick/advance", strings.NewReader(`{"ticks": 1}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("setup advance failed: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/tick/advance",
		strings.NewReader(`{"ticks": 1, "expected_lock_version": 0}`))
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rr.Code)
	}

	// Clock untouched by the rejected call.
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/tick", nil))
	var state tickStateResponse
	decode(t, rr, &state)
	if state.CurrentTick != 1 {
		t.Errorf("CurrentTick = %d, want 1", state.CurrentTick)
	}
}

func TestAdvanceBadBody(t *testing.T) {
	s, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/tick/advance", strings.NewReader(`not json`))
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestResetEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	handler := s.Handler()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/tick/advance", strings.NewReader(`{"ticks": 4}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("setup advance failed: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/tick/reset", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("reset status = %d, want 200", rr.Code)
	}
	var state tickStateResponse
	decode(t, rr, &state)
	if state.CurrentTick != 0 {
		t.Errorf("CurrentTick = %d after reset, want 0", state.CurrentTick)
	}
	if state.LockVersion != 5 {
		t.Errorf("LockVersion = %d after reset, want 5", state.LockVersion)
	}
}

func TestInvariantsEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	st.SeedCompany(model.Company{ID: "bad", CashCents: -10})

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/invariants", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var report invariant.Report
	decode(t, rr, &report)
	if !report.HasViolations || len(report.Issues) != 1 {
		t.Errorf("report = %+v, want one violation", report)
	}
	if report.Issues[0].Kind != "negative_cash" {
		t.Errorf("kind = %q, want negative_cash", report.Issues[0].Kind)
	}
}

func TestInvariantsBadLimit(t *testing.T) {
	s, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/invariants?limit=zero", nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}
