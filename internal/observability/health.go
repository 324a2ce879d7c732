package observability

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus int

const (
	HealthStatusUp HealthStatus = iota
	HealthStatusDown
	HealthStatusDegraded
	HealthStatusUnknown
)

var statusNames = map[HealthStatus]string{
	HealthStatusUp:       "UP",
	HealthStatusDown:     "DOWN",
	HealthStatusDegraded: "DEGRADED",
	HealthStatusUnknown:  "UNKNOWN",
}

func (s HealthStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return statusNames[HealthStatusUnknown]
}

// MarshalJSON renders the status by name
func (s HealthStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// HealthCheck represents a health check
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) HealthResult
}

// HealthResult represents the result of a health check
type HealthResult struct {
	Status   HealthStatus           `json:"status"`
	Message  string                 `json:"message,omitempty"`
	Details  map[string]interface{} `json:"details,omitempty"`
	Duration time.Duration          `json:"duration_ns"`
}

// HealthReport represents the overall health report
type HealthReport struct {
	Status     HealthStatus            `json:"status"`
	Timestamp  time.Time               `json:"timestamp"`
	Components map[string]HealthResult `json:"components"`
}

// CheckFunc adapts a function to HealthCheck
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context) HealthResult
}

func (c CheckFunc) Name() string { return c.CheckName }

func (c CheckFunc) Check(ctx context.Context) HealthResult { return c.Fn(ctx) }

// PingCheck reports DOWN when ping fails, e.g. a warehouse connection
func PingCheck(name string, ping func(ctx context.Context) error) HealthCheck {
	return CheckFunc{CheckName: name, Fn: func(ctx context.Context) HealthResult {
		if err := ping(ctx); err != nil {
			return HealthResult{
				Status:  HealthStatusDown,
				Message: "ping failed",
				Details: map[string]interface{}{"error": err.Error()},
			}
		}
		return HealthResult{Status: HealthStatusUp}
	}}
}

// HealthManager manages health checks
type HealthManager struct {
	mu      sync.RWMutex
	checks  map[string]HealthCheck
	timeout time.Duration
	logger  *Logger
}

// NewHealthManager creates a new health manager
func NewHealthManager(timeout time.Duration, logger *Logger) *HealthManager {
	if logger == nil {
		logger = GetDefaultLogger()
	}
	return &HealthManager{
		checks:  make(map[string]HealthCheck),
		timeout: timeout,
		logger:  logger,
	}
}

// RegisterCheck registers a health check
func (hm *HealthManager) RegisterCheck(check HealthCheck) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checks[check.Name()] = check
}

// Names lists registered checks, sorted
func (hm *HealthManager) Names() []string {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	names := make([]string, 0, len(hm.checks))
	for name := range hm.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckHealth runs all checks concurrently. The overall status is the worst
// component status; DOWN beats DEGRADED beats UNKNOWN.
func (hm *HealthManager) CheckHealth(ctx context.Context) HealthReport {
	hm.mu.RLock()
	checks := make(map[string]HealthCheck, len(hm.checks))
	for name, check := range hm.checks {
		checks[name] = check
	}
	hm.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, hm.timeout)
	defer cancel()

	type named struct {
		name   string
		result HealthResult
	}
	results := make(chan named, len(checks))

	for name, check := range checks {
		go func(name string, check HealthCheck) {
			start := time.Now()
			result := check.Check(ctx)
			result.Duration = time.Since(start)
			results <- named{name, result}
		}(name, check)
	}

	components := make(map[string]HealthResult, len(checks))
	overall := HealthStatusUp
	for i := 0; i < len(checks); i++ {
		r := <-results
		components[r.name] = r.result

		switch r.result.Status {
		case HealthStatusDown:
			overall = HealthStatusDown
		case HealthStatusDegraded:
			if overall != HealthStatusDown {
				overall = HealthStatusDegraded
			}
		case HealthStatusUnknown:
			if overall == HealthStatusUp {
				overall = HealthStatusUnknown
			}
		}
	}

	if overall != HealthStatusUp {
		hm.logger.WarnWithFields("Health check failed", map[string]interface{}{
			"status":     overall.String(),
			"components": len(components),
		})
	}

	return HealthReport{
		Status:     overall,
		Timestamp:  time.Now().UTC(),
		Components: components,
	}
}
