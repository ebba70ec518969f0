package observability

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents the result of one component check
type HealthCheck struct {
	Name        string                 `json:"name"`
	Status      HealthStatus           `json:"status"`
	Message     string                 `json:"message,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	Duration    time.Duration          `json:"duration_ms"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// HealthCheckFunc is a function that performs a health check
type HealthCheckFunc func(context.Context) *HealthCheck

// HealthChecker performs health checks on dependencies, caching results
// briefly so the health endpoint cannot hammer them
type HealthChecker struct {
	checks map[string]HealthCheckFunc
	cache  map[string]*HealthCheck
	mu     sync.Mutex
	ttl    time.Duration
}

// NewHealthChecker creates a new health checker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks: make(map[string]HealthCheckFunc),
		cache:  make(map[string]*HealthCheck),
		ttl:    5 * time.Second,
	}
}

// Register registers a health check
func (hc *HealthChecker) Register(name string, check HealthCheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[name] = check
}

// Check performs all health checks
func (hc *HealthChecker) Check(ctx context.Context) map[string]*HealthCheck {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	results := make(map[string]*HealthCheck)
	now := time.Now()

	for name, checkFunc := range hc.checks {
		if cached, exists := hc.cache[name]; exists && now.Sub(cached.LastChecked) < hc.ttl {
			results[name] = cached
			continue
		}

		result := checkFunc(ctx)
		result.LastChecked = time.Now()
		hc.cache[name] = result
		results[name] = result
	}

	return results
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status    HealthStatus            `json:"status"`
	Timestamp time.Time               `json:"timestamp"`
	Checks    map[string]*HealthCheck `json:"checks"`
	Metadata  map[string]interface{}  `json:"metadata,omitempty"`
}

// GetHealthResponse returns the overall status with per-component details.
// Any unhealthy component makes the whole service unhealthy; degraded
// components degrade it.
func (hc *HealthChecker) GetHealthResponse(ctx context.Context) *HealthResponse {
	checks := hc.Check(ctx)

	status := HealthStatusHealthy
	for _, check := range checks {
		switch check.Status {
		case HealthStatusUnhealthy:
			status = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if status == HealthStatusHealthy {
				status = HealthStatusDegraded
			}
		}
	}

	return &HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
		Metadata: map[string]interface{}{
			"service": "query-service",
			"version": "1.0.0",
		},
	}
}

// Common health check functions

// DatabaseHealthCheck creates a health check for database connectivity
func DatabaseHealthCheck(pingFunc func(context.Context) error) HealthCheckFunc {
	return func(ctx context.Context) *HealthCheck {
		start := time.Now()

		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		err := pingFunc(ctx)
		duration := time.Since(start)

		if err != nil {
			return &HealthCheck{
				Name:     "database",
				Status:   HealthStatusUnhealthy,
				Message:  fmt.Sprintf("Database connection failed: %v", err),
				Duration: duration,
			}
		}

		return &HealthCheck{
			Name:     "database",
			Status:   HealthStatusHealthy,
			Message:  "Database connection successful",
			Duration: duration,
		}
	}
}

// RedisHealthCheck creates a health check for the cache. A dead cache slows
// the service down but does not break it.
func RedisHealthCheck(pingFunc func(context.Context) error) HealthCheckFunc {
	return func(ctx context.Context) *HealthCheck {
		start := time.Now()

		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		err := pingFunc(ctx)
		duration := time.Since(start)

		if err != nil {
			return &HealthCheck{
				Name:     "redis",
				Status:   HealthStatusDegraded,
				Message:  fmt.Sprintf("Redis connection failed: %v", err),
				Duration: duration,
			}
		}

		return &HealthCheck{
			Name:     "redis",
			Status:   HealthStatusHealthy,
			Message:  "Redis connection successful",
			Duration: duration,
		}
	}
}

// ModelHealthCheck creates a health check for the local model server. The
// model being down is degraded, not unhealthy: pattern-matched questions
// still get answered.
func ModelHealthCheck(checkFunc func(context.Context) error) HealthCheckFunc {
	return func(ctx context.Context) *HealthCheck {
		start := time.Now()

		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		err := checkFunc(ctx)
		duration := time.Since(start)

		if err != nil {
			return &HealthCheck{
				Name:     "model",
				Status:   HealthStatusDegraded,
				Message:  fmt.Sprintf("Model server unavailable: %v", err),
				Duration: duration,
			}
		}

		return &HealthCheck{
			Name:     "model",
			Status:   HealthStatusHealthy,
			Message:  "Model server available",
			Duration: duration,
		}
	}
}

// MemoryHealthCheck creates a health check for process memory usage
func MemoryHealthCheck(limitBytes uint64) HealthCheckFunc {
	return func(ctx context.Context) *HealthCheck {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)

		usagePercent := float64(stats.Alloc) / float64(limitBytes) * 100

		status := HealthStatusHealthy
		message := "Memory usage normal"
		if usagePercent > 90 {
			status = HealthStatusUnhealthy
			message = "Memory usage critical"
		} else if usagePercent > 75 {
			status = HealthStatusDegraded
			message = "Memory usage high"
		}

		return &HealthCheck{
			Name:    "memory",
			Status:  status,
			Message: message,
			Metadata: map[string]interface{}{
				"alloc_bytes":   stats.Alloc,
				"limit_bytes":   limitBytes,
				"usage_percent": usagePercent,
			},
		}
	}
}
