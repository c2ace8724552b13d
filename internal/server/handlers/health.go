package handlers

import (
	"context"
	"net/http"
	"time"
)

// Checker probes one dependency.
type Checker interface {
	CheckHealth(ctx context.Context) error
}

// HealthResponse is the /healthz payload.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// HealthManager aggregates dependency checks into one endpoint.
type HealthManager struct {
	version  string
	checkers map[string]Checker
}

// NewHealthManager creates a manager reporting the given version.
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		version:  version,
		checkers: make(map[string]Checker),
	}
}

// RegisterChecker adds a named dependency check.
func (m *HealthManager) RegisterChecker(name string, c Checker) {
	m.checkers[name] = c
}

// HealthHandler runs all checks and reports 200 when every dependency is
// reachable, 503 otherwise.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:  "healthy",
		Version: m.version,
		Checks:  make(map[string]string, len(m.checkers)),
	}

	status := http.StatusOK
	for name, c := range m.checkers {
		if err := c.CheckHealth(ctx); err != nil {
			resp.Checks[name] = "unhealthy: " + err.Error()
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "healthy"
	}

	WriteJSON(w, status, resp)
}

// CheckFunc adapts a plain function to Checker.
type CheckFunc func(ctx context.Context) error

// CheckHealth implements Checker.
func (f CheckFunc) CheckHealth(ctx context.Context) error { return f(ctx) }
