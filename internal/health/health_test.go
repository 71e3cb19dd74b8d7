package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func ok(context.Context) error { return nil }

func TestHealthHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewPingChecker("storage", pingerFunc(ok)))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != StatusHealthy {
		t.Errorf("expected status healthy, got %s", response.Status)
	}
	if response.Version != "v1.0.0" {
		t.Errorf("expected version v1.0.0, got %s", response.Version)
	}
	if len(response.Checks) != 1 {
		t.Errorf("expected 1 check, got %d", len(response.Checks))
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewPingChecker("storage", pingerFunc(func(context.Context) error {
		return errors.New("connection refused")
	})))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != StatusUnhealthy {
		t.Errorf("expected status unhealthy, got %s", response.Status)
	}
	if response.Checks["storage"].Message != "connection refused" {
		t.Errorf("unexpected check message: %q", response.Checks["storage"].Message)
	}
}

func TestHealthHandler_OptionalFailureIsDegraded(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewFuncChecker("storage", ok))
	handler.RegisterChecker("kafka", NewOptionalChecker("kafka", func(context.Context) error {
		return errors.New("no brokers")
	}))

	response := handler.Run(context.Background())
	if response.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %s", response.Status)
	}

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("degraded service must stay ready, got %d", w.Code)
	}
}

func TestHealthHandler_ChecksReceiveDeadline(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.timeout = 10 * time.Millisecond
	handler.RegisterChecker("slow", NewFuncChecker("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	response := handler.Run(context.Background())
	if response.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy after timeout, got %s", response.Status)
	}
}

func TestLivenessHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()

	LivenessHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Errorf("expected body 'ok', got %s", w.Body.String())
	}
}

func TestReadinessHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewFuncChecker("storage", ok))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "ready" {
		t.Errorf("expected body 'ready', got %s", w.Body.String())
	}
}

func TestReadinessHandler_NotReady(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewFuncChecker("storage", func(context.Context) error {
		return errors.New("not ready")
	}))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
	if w.Body.String() != "not ready" {
		t.Errorf("expected body 'not ready', got %s", w.Body.String())
	}
}

func TestFuncChecker_Error(t *testing.T) {
	check := NewFuncChecker("test", func(context.Context) error {
		return errors.New("test error")
	}).Check(context.Background())

	if check.Status != StatusUnhealthy {
		t.Errorf("expected status unhealthy, got %s", check.Status)
	}
	if check.Message != "test error" {
		t.Errorf("expected message 'test error', got %s", check.Message)
	}
}
