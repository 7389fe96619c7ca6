// Package health aggregates liveness checks from the relay's
// dependencies into a single status report served by the gateway.
package health

import (
	"sync"
	"time"
)

// Check reports whether one dependency is usable. Checks must be fast;
// the gateway calls them on every /health request.
type Check func() error

// Status is the aggregate health report.
type Status struct {
	Status    string            `json:"status"` // "healthy" or "unhealthy"
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"` // name -> "ok" or error text
}

// IsHealthy returns true when every check passed.
func (s Status) IsHealthy() bool {
	return s.Status == "healthy"
}

// Monitor holds named checks and evaluates them on demand.
type Monitor struct {
	mu     sync.RWMutex
	checks map[string]Check
	now    func() time.Time
}

// NewMonitor creates an empty monitor. With no checks registered it
// always reports healthy.
func NewMonitor() *Monitor {
	return &Monitor{
		checks: make(map[string]Check),
		now:    time.Now,
	}
}

// RegisterCheck adds or replaces a named check.
func (m *Monitor) RegisterCheck(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// Evaluate runs every check and aggregates the outcome. A single failing
// check makes the whole report unhealthy.
func (m *Monitor) Evaluate() Status {
	m.mu.RLock()
	checks := make(map[string]Check, len(m.checks))
	for name, c := range m.checks {
		checks[name] = c
	}
	m.mu.RUnlock()

	status := Status{
		Status:    "healthy",
		Timestamp: m.now(),
		Checks:    make(map[string]string, len(checks)),
	}
	for name, check := range checks {
		if err := check(); err != nil {
			status.Status = "unhealthy"
			status.Checks[name] = err.Error()
			continue
		}
		status.Checks[name] = "ok"
	}
	return status
}
