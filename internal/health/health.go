package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/Shugur-Network/torstatus/internal/constants"
	"github.com/Shugur-Network/torstatus/internal/metrics"
	"github.com/Shugur-Network/torstatus/internal/storage"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentStatus represents the status of a specific component
type ComponentStatus struct {
	Name    string         `json:"name"`
	Status  HealthStatus   `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status     HealthStatus       `json:"status"`
	Timestamp  time.Time          `json:"timestamp"`
	Version    string             `json:"version"`
	Uptime     string             `json:"uptime"`
	Components []*ComponentStatus `json:"components"`
	Summary    map[string]any     `json:"summary"`
}

// Database is the part of the relay store the checker needs.
type Database interface {
	Ping(ctx context.Context) error
	Stats() storage.DatabaseStats
	LatestValidAfter(ctx context.Context) (time.Time, error)
}

// ExitIndex is the part of the exit index the checker needs.
type ExitIndex interface {
	Len() int
	BuiltAt() time.Time
}

// Memory and goroutine thresholds.
const (
	memoryWarningMB   = 500
	memoryCriticalMB  = 1000
	goroutineWarning  = 1000
	goroutineCritical = 5000
)

// HealthChecker performs health checks over the store and in-memory indexes
type HealthChecker struct {
	db        Database
	exits     ExitIndex
	logger    *zap.Logger
	startTime time.Time
	version   string
	// a snapshot older than this is reported as degraded
	staleAfter time.Duration
	now        func() time.Time
}

// NewHealthChecker creates a new health checker. exits may be nil.
func NewHealthChecker(db Database, exits ExitIndex, logger *zap.Logger, version string) *HealthChecker {
	return &HealthChecker{
		db:         db,
		exits:      exits,
		logger:     logger.Named("health"),
		startTime:  time.Now(),
		version:    version,
		staleAfter: constants.SnapshotStaleAfter,
		now:        time.Now,
	}
}

// CheckHealth runs every component check
func (h *HealthChecker) CheckHealth(ctx context.Context) *HealthResponse {
	startTime := time.Now()

	components := []*ComponentStatus{
		h.checkDatabase(ctx),
		h.checkSnapshot(ctx),
		h.checkMemory(),
		h.checkSystemResources(),
	}
	if h.exits != nil {
		components = append(components, h.checkExitIndex())
	}

	return &HealthResponse{
		Status:     determineOverallStatus(components),
		Timestamp:  h.now(),
		Version:    h.version,
		Uptime:     formatUptime(time.Since(h.startTime)),
		Components: components,
		Summary: map[string]any{
			"total_components":     len(components),
			"healthy_components":   countComponentsByStatus(components, StatusHealthy),
			"degraded_components":  countComponentsByStatus(components, StatusDegraded),
			"unhealthy_components": countComponentsByStatus(components, StatusUnhealthy),
			"check_duration_ms":    time.Since(startTime).Milliseconds(),
		},
	}
}

// checkDatabase checks database connectivity and pool utilisation
func (h *HealthChecker) checkDatabase(ctx context.Context) *ComponentStatus {
	status := &ComponentStatus{
		Name:    "database",
		Details: make(map[string]any),
	}

	if err := h.db.Ping(ctx); err != nil {
		status.Status = StatusUnhealthy
		status.Message = "Database connection failed"
		status.Details["error"] = err.Error()
		return status
	}

	stats := h.db.Stats()
	status.Details["driver"] = stats.Driver
	status.Details["open_connections"] = stats.OpenConnections
	status.Details["in_use"] = stats.InUse
	status.Details["idle"] = stats.Idle
	status.Details["max_open_connections"] = stats.MaxOpenConnections

	var utilization float64
	if stats.MaxOpenConnections > 0 {
		utilization = float64(stats.InUse) / float64(stats.MaxOpenConnections) * 100
	}
	status.Details["connection_utilization_percent"] = utilization

	switch {
	case utilization > 95:
		status.Status = StatusUnhealthy
		status.Message = "Critical database connection utilization"
	case utilization > 90:
		status.Status = StatusDegraded
		status.Message = "High database connection utilization"
	default:
		status.Status = StatusHealthy
		status.Message = "Database is healthy"
	}
	return status
}

// checkSnapshot reports the age of the current relay snapshot
func (h *HealthChecker) checkSnapshot(ctx context.Context) *ComponentStatus {
	status := &ComponentStatus{
		Name:    "snapshot",
		Details: make(map[string]any),
	}

	latest, err := h.db.LatestValidAfter(ctx)
	switch {
	case errors.Is(err, storage.ErrNoSnapshot):
		status.Status = StatusDegraded
		status.Message = "No relay snapshot imported yet"
		return status
	case err != nil:
		status.Status = StatusUnhealthy
		status.Message = "Reading snapshot failed"
		status.Details["error"] = err.Error()
		return status
	}

	age := h.now().Sub(latest)
	status.Details["valid_after"] = latest.UTC().Format(time.RFC3339)
	status.Details["age_seconds"] = int64(age.Seconds())
	if age > h.staleAfter {
		status.Status = StatusDegraded
		status.Message = fmt.Sprintf("Snapshot is stale: %s old", age.Truncate(time.Second))
	} else {
		status.Status = StatusHealthy
		status.Message = "Snapshot is current"
	}
	return status
}

func (h *HealthChecker) checkExitIndex() *ComponentStatus {
	status := &ComponentStatus{
		Name:    "exit_index",
		Details: map[string]any{"addresses": h.exits.Len()},
	}
	if h.exits.BuiltAt().IsZero() {
		status.Status = StatusDegraded
		status.Message = "Exit index not built"
		return status
	}
	status.Details["built_at"] = h.exits.BuiltAt().UTC().Format(time.RFC3339)
	status.Status = StatusHealthy
	status.Message = fmt.Sprintf("%d exit addresses indexed", h.exits.Len())
	return status
}

// checkMemory checks memory usage
func (h *HealthChecker) checkMemory() *ComponentStatus {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	status := &ComponentStatus{
		Name:    "memory",
		Details: make(map[string]any),
	}

	allocMB := float64(m.Alloc) / 1024 / 1024
	status.Details["alloc_mb"] = allocMB
	status.Details["sys_mb"] = float64(m.Sys) / 1024 / 1024
	status.Details["heap_mb"] = float64(m.HeapAlloc) / 1024 / 1024
	status.Details["num_gc"] = m.NumGC

	switch {
	case allocMB > memoryCriticalMB:
		status.Status = StatusUnhealthy
		status.Message = fmt.Sprintf("High memory usage: %.1f MB", allocMB)
	case allocMB > memoryWarningMB:
		status.Status = StatusDegraded
		status.Message = fmt.Sprintf("Elevated memory usage: %.1f MB", allocMB)
	default:
		status.Status = StatusHealthy
		status.Message = fmt.Sprintf("Memory usage normal: %.1f MB", allocMB)
	}
	return status
}

// checkSystemResources checks system-level resources
func (h *HealthChecker) checkSystemResources() *ComponentStatus {
	goroutineCount := runtime.NumGoroutine()
	status := &ComponentStatus{
		Name: "system",
		Details: map[string]any{
			"goroutines":          goroutineCount,
			"cpus":                runtime.NumCPU(),
			"requests_total":      metrics.GetRequestCount(),
			"requests_per_second": metrics.GetRequestsPerSecond(),
			"error_rate_percent":  metrics.GetErrorRate(),
			"avg_response_ms":     metrics.GetAverageResponseTime(),
			"rows_rendered":       metrics.GetRowsRendered(),
		},
	}

	switch {
	case goroutineCount > goroutineCritical:
		status.Status = StatusUnhealthy
		status.Message = fmt.Sprintf("High goroutine count: %d", goroutineCount)
	case goroutineCount > goroutineWarning:
		status.Status = StatusDegraded
		status.Message = fmt.Sprintf("Elevated goroutine count: %d", goroutineCount)
	default:
		status.Status = StatusHealthy
		status.Message = fmt.Sprintf("System resources normal: %d goroutines", goroutineCount)
	}
	return status
}

func determineOverallStatus(components []*ComponentStatus) HealthStatus {
	overall := StatusHealthy
	for _, comp := range components {
		switch comp.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

func countComponentsByStatus(components []*ComponentStatus, status HealthStatus) int {
	count := 0
	for _, comp := range components {
		if comp.Status == status {
			count++
		}
	}
	return count
}

// formatUptime formats uptime duration as a human-readable string
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// HandleHealth is the HTTP handler for health checks. Only an unhealthy
// status answers 503.
func (h *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), constants.HealthCheckTimeout)
	defer cancel()

	resp := h.CheckHealth(ctx)

	statusCode := http.StatusOK
	if resp.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
		return
	}

	h.logger.Debug("Health check completed",
		zap.String("status", string(resp.Status)),
		zap.Int("status_code", statusCode),
		zap.String("client_ip", r.RemoteAddr))
}
