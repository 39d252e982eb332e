package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHealthChecker(t *testing.T) {
	logger := NewLogger("info")
	hc := NewHealthChecker(logger)

	hc.RegisterComponent(ComponentStateStore)
	hc.RegisterComponent(ComponentCatalog)

	// Initially unknown
	health := hc.GetHealth()
	if health.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy status with unknown components, got %v", health.Status)
	}

	hc.UpdateComponentHealth(ComponentStateStore, StatusHealthy, "")
	hc.UpdateComponentHealth(ComponentCatalog, StatusHealthy, "")

	health = hc.GetHealth()
	if health.Status != StatusHealthy {
		t.Errorf("expected healthy status, got %v", health.Status)
	}

	hc.UpdateComponentHealth(ComponentStateStore, StatusUnhealthy, "database is locked")

	health = hc.GetHealth()
	if health.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy status, got %v", health.Status)
	}
	if health.Components[ComponentStateStore].Message != "database is locked" {
		t.Errorf("expected error message, got %v", health.Components[ComponentStateStore].Message)
	}
}

func TestOptionalComponentDoesNotFailHealth(t *testing.T) {
	hc := NewHealthChecker(NewLogger("error"))

	hc.RegisterCheck(ComponentStateStore, func(ctx context.Context) error { return nil })
	hc.RegisterOptionalCheck(ComponentNotifier, func(ctx context.Context) error {
		return errors.New("no brokers reachable")
	})

	hc.RunChecks(context.Background())

	health := hc.GetHealth()
	if health.Status != StatusHealthy {
		t.Errorf("expected healthy status, got %v", health.Status)
	}
	notifier := health.Components[ComponentNotifier]
	if notifier.Status != StatusUnhealthy || !notifier.Optional {
		t.Errorf("expected optional unhealthy notifier, got %+v", notifier)
	}
}

func TestHealthHandler(t *testing.T) {
	logger := NewLogger("info")
	hc := NewHealthChecker(logger)

	hc.RegisterComponent("test")
	hc.UpdateComponentHealth("test", StatusHealthy, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler := hc.HealthHandler()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	hc.UpdateComponentHealth("test", StatusUnhealthy, "error")

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	w = httptest.NewRecorder()

	handler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}

func TestReadyHandler(t *testing.T) {
	hc := NewHealthChecker(NewLogger("error"))
	hc.RegisterComponent(ComponentWorker)

	w := httptest.NewRecorder()
	hc.ReadyHandler()(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "not_ready" {
		t.Errorf("expected not_ready, got %q", body["status"])
	}
}

func TestCheckComponent(t *testing.T) {
	logger := NewLogger("info")
	hc := NewHealthChecker(logger)

	hc.RegisterComponent("test")

	ctx := context.Background()
	hc.CheckComponent(ctx, "test", func(ctx context.Context) error {
		return nil
	})

	health := hc.GetHealth()
	if health.Components["test"].Status != StatusHealthy {
		t.Errorf("expected healthy status, got %v", health.Components["test"].Status)
	}

	hc.CheckComponent(ctx, "test", func(ctx context.Context) error {
		return errors.New("check failed")
	})

	health = hc.GetHealth()
	if health.Components["test"].Status != StatusUnhealthy {
		t.Errorf("expected unhealthy status, got %v", health.Components["test"].Status)
	}
}

func TestPeriodicChecks(t *testing.T) {
	logger := NewLogger("info")
	hc := NewHealthChecker(logger)

	var checkCount atomic.Int32
	hc.RegisterCheck("test", func(ctx context.Context) error {
		checkCount.Add(1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		hc.StartPeriodicChecks(ctx, 20*time.Millisecond)
		close(done)
	}()
	<-done

	if n := checkCount.Load(); n < 2 {
		t.Errorf("expected at least 2 checks, got %d", n)
	}
}
