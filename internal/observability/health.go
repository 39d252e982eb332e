package observability

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

// ComponentStatus represents the health status of a component
type ComponentStatus string

const (
	StatusHealthy   ComponentStatus = "healthy"
	StatusUnhealthy ComponentStatus = "unhealthy"
	StatusUnknown   ComponentStatus = "unknown"
)

// Component names reported on /health
const (
	ComponentStateStore = "statestore"
	ComponentCatalog    = "catalog"
	ComponentNotifier   = "notifier"
	ComponentWorker     = "worker"
)

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status    ComponentStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	Optional  bool            `json:"optional,omitempty"`
	LastCheck time.Time       `json:"last_check"`
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status     ComponentStatus            `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// HealthCheckFunc is a function that checks the health of a component
type HealthCheckFunc func(ctx context.Context) error

type registeredCheck struct {
	check    HealthCheckFunc
	optional bool
}

// HealthChecker tracks component health and serves /health and /ready.
// Optional components are reported but never make the service unhealthy.
type HealthChecker struct {
	mu           sync.RWMutex
	components   map[string]ComponentHealth
	checks       map[string]registeredCheck
	checkTimeout time.Duration
	logger       *slog.Logger
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(logger *slog.Logger) *HealthChecker {
	return &HealthChecker{
		components:   make(map[string]ComponentHealth),
		checks:       make(map[string]registeredCheck),
		checkTimeout: 5 * time.Second,
		logger:       logger,
	}
}

// RegisterComponent registers a component whose health is pushed via UpdateComponentHealth
func (h *HealthChecker) RegisterComponent(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.components[name] = ComponentHealth{
		Status:    StatusUnknown,
		LastCheck: time.Now(),
	}
}

// RegisterCheck registers a component probed by StartPeriodicChecks
func (h *HealthChecker) RegisterCheck(name string, check HealthCheckFunc) {
	h.register(name, check, false)
}

// RegisterOptionalCheck registers a probe whose failure is reported but not fatal
func (h *HealthChecker) RegisterOptionalCheck(name string, check HealthCheckFunc) {
	h.register(name, check, true)
}

func (h *HealthChecker) register(name string, check HealthCheckFunc, optional bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = registeredCheck{check: check, optional: optional}
	h.components[name] = ComponentHealth{
		Status:    StatusUnknown,
		Optional:  optional,
		LastCheck: time.Now(),
	}
}

// UpdateComponentHealth updates the health status of a component
func (h *HealthChecker) UpdateComponentHealth(name string, status ComponentStatus, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Optional:  h.checks[name].optional,
		LastCheck: time.Now(),
	}
}

// GetHealth returns the current health status
func (h *HealthChecker) GetHealth() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	components := make(map[string]ComponentHealth, len(h.components))
	status := StatusHealthy
	for name, health := range h.components {
		components[name] = health
		if health.Status != StatusHealthy && !health.Optional {
			status = StatusUnhealthy
		}
	}

	return HealthStatus{
		Status:     status,
		Components: components,
		Timestamp:  time.Now(),
	}
}

// CheckComponent runs a health check function and updates the component status
func (h *HealthChecker) CheckComponent(ctx context.Context, name string, checkFunc HealthCheckFunc) {
	ctx, cancel := context.WithTimeout(ctx, h.checkTimeout)
	defer cancel()

	if err := checkFunc(ctx); err != nil {
		h.UpdateComponentHealth(name, StatusUnhealthy, err.Error())
		h.logger.Warn("component health check failed",
			"component", name,
			"error", err.Error())
		return
	}
	h.UpdateComponentHealth(name, StatusHealthy, "")
}

// RunChecks probes every registered check once, in name order
func (h *HealthChecker) RunChecks(ctx context.Context) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	checks := make(map[string]registeredCheck, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.RUnlock()

	sort.Strings(names)
	for _, name := range names {
		h.CheckComponent(ctx, name, checks[name].check)
	}
}

// StartPeriodicChecks runs the registered checks now and then on every interval until ctx is done
func (h *HealthChecker) StartPeriodicChecks(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.RunChecks(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.RunChecks(ctx)
		}
	}
}

// HealthHandler returns an HTTP handler for the health endpoint
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := h.GetHealth()

		w.Header().Set("Content-Type", "application/json")
		if health.Status == StatusHealthy {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		if err := json.NewEncoder(w).Encode(health); err != nil {
			h.logger.Error("failed to encode health response",
				"error", err.Error())
		}
	}
}

// ReadyHandler returns an HTTP handler for the readiness endpoint
func (h *HealthChecker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		status, code := "ready", http.StatusOK
		if h.GetHealth().Status != StatusHealthy {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
