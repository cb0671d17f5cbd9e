package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"kwh-exchange/config"
	"kwh-exchange/domain"
	"kwh-exchange/matching"
)

// withChiParam returns a request carrying a chi URL param, so handlers that
// call chi.URLParam can be exercised without routing through the full Mux.
func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func testServer(t *testing.T) *Server {
	t.Helper()
	engine := matching.NewEngine("kwh-test", nil, nil, time.Second)
	engine.Start()
	t.Cleanup(engine.Stop)

	return NewServer(engine, nil, nil,
		config.APIConfig{AdminToken: "secret"},
		config.BookConfig{DepthMaxLevels: 100},
		config.WSConfig{QueueCapacity: 16},
	)
}

func TestSubmitOrderRequiresOwnerHeader(t *testing.T) {
	s := testServer(t)
	body, _ := json.Marshal(submitOrderRequest{Side: "buy", Quantity: 1000, Price: 150})
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.submitOrder(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestSubmitOrderAcceptsValidLimitOrder(t *testing.T) {
	s := testServer(t)
	body, _ := json.Marshal(submitOrderRequest{Side: "buy", Quantity: 1000, Price: 150})
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader(body))
	req.Header.Set("X-Owner-ID", "alice")
	w := httptest.NewRecorder()

	s.submitOrder(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp orderResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Owner != "alice" || resp.Status != "open" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestSubmitOrderRejectsInvalidPrice(t *testing.T) {
	s := testServer(t)
	body, _ := json.Marshal(submitOrderRequest{Side: "buy", Quantity: 1000, Price: 0})
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader(body))
	req.Header.Set("X-Owner-ID", "alice")
	w := httptest.NewRecorder()

	s.submitOrder(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCancelOrderWrongOwnerForbidden(t *testing.T) {
	s := testServer(t)
	order := domain.NewOrder("o1", "alice", domain.SideBuy, domain.OrderTypeLimit, 150, 1000, time.Now(), time.Time{})
	if _, err := s.engine.AddOrder(order); err != nil {
		t.Fatalf("AddOrder: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/orders/o1", nil)
	req.Header.Set("X-Owner-ID", "bob")
	req = withChiParam(req, "id", "o1")
	w := httptest.NewRecorder()

	s.cancelOrder(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAdminControlRejectsMissingToken(t *testing.T) {
	s := testServer(t)
	body, _ := json.Marshal(adminControlRequest{Action: "pause"})
	req := httptest.NewRequest(http.MethodPost, "/admin/control", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.adminControl(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestAdminControlPauseBlocksSubmit(t *testing.T) {
	s := testServer(t)
	body, _ := json.Marshal(adminControlRequest{Action: "pause"})
	req := httptest.NewRequest(http.MethodPost, "/admin/control", bytes.NewReader(body))
	req.Header.Set("X-Admin-Token", "secret")
	w := httptest.NewRecorder()
	s.adminControl(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	submitBody, _ := json.Marshal(submitOrderRequest{Side: "buy", Quantity: 1000, Price: 150})
	submitReq := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader(submitBody))
	submitReq.Header.Set("X-Owner-ID", "alice")
	submitW := httptest.NewRecorder()
	s.submitOrder(submitW, submitReq)

	if submitW.Code != http.StatusConflict {
		t.Fatalf("expected 409 MarketPaused, got %d: %s", submitW.Code, submitW.Body.String())
	}
}
