package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Global counters for the stats API (prometheus metrics can't be read back directly)
var (
	requestCount      int64
	errorCount        int64
	rowsRendered      int64
	responseTimeSum   int64
	responseTimeCount int64
)

// Metrics for tracking report traffic and storage health
var (
	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torstatus_http_requests_total",
		Help: "The total number of HTTP requests by route",
	}, []string{"route"})

	HTTPRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "torstatus_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 10, 5), // 0.001, 0.01, 0.1, 1, 10
	})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torstatus_http_rate_limited_total",
		Help: "Requests rejected by the per-client rate limiter",
	})

	// Report metrics
	RowsRendered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torstatus_report_rows_rendered_total",
		Help: "Relay rows rendered into HTML reports",
	})

	Exports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torstatus_exports_total",
		Help: "CSV downloads served by kind",
	}, []string{"kind"}) // "report", "ips", "exit-ips"

	FilterRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torstatus_filter_rejections_total",
		Help: "Query options rejected while compiling a filter, by field",
	}, []string{"field"})

	ColumnEdits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torstatus_column_edits_total",
		Help: "Column preference commands by command and outcome",
	}, []string{"command", "outcome"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "torstatus_active_sessions",
		Help: "Sessions currently held in the session store",
	})

	// Error metrics
	ErrorsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torstatus_errors_total",
		Help: "The total number of errors by type",
	}, []string{"type"})

	// Snapshot metrics
	RelaysImported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torstatus_relays_imported_total",
		Help: "Relay records written by the importer",
	})

	RelaysEnriched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torstatus_relays_geo_enriched_total",
		Help: "Relays whose location was filled in from GeoIP, by outcome",
	}, []string{"outcome"})

	ExitIndexSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "torstatus_exit_index_addresses",
		Help: "Exit addresses held in the exit index",
	})

	ExitLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torstatus_exit_lookups_total",
		Help: "Exit address lookups by outcome",
	}, []string{"outcome"}) // "filtered", "confirmed", "false_positive"

	// Database metrics
	DBConnections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torstatus_db_connections_total",
		Help: "Total number of database connections by status",
	}, []string{"status"}) // "success", "failure", "closed"

	DBErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torstatus_db_errors_total",
		Help: "Total number of database errors by type",
	}, []string{"error_type"})

	DBOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torstatus_db_operations_total",
		Help: "Total number of database operations by type",
	}, []string{"operation"})
)

// RegisterMetrics pre-registers the label values we know about so that
// dashboards see zeroes instead of gaps.
func RegisterMetrics() {
	for _, route := range []string{"report", "sort", "details", "columns", "csv", "exit", "health", "static"} {
		HTTPRequests.WithLabelValues(route)
	}

	for _, kind := range []string{"report", "ips", "exit-ips"} {
		Exports.WithLabelValues(kind)
	}

	errorTypes := []string{
		"validation", "not_found", "database", "internal", "rate_limit", "timeout",
	}
	for _, errType := range errorTypes {
		ErrorsCount.WithLabelValues(errType)
	}

	for _, status := range []string{"success", "failure", "closed"} {
		DBConnections.WithLabelValues(status)
	}

	dbErrorTypes := []string{
		"connection_failed", "query_failed", "scan_failed",
		"transaction_start_failed", "transaction_commit_failed", "exit_index_failed",
	}
	for _, errType := range dbErrorTypes {
		DBErrors.WithLabelValues(errType)
	}

	for _, op := range []string{"query", "snapshot_write", "exit_index_rebuild"} {
		DBOperations.WithLabelValues(op)
	}
}

// IncrementRequests counts a request against its route.
func IncrementRequests(route string) {
	HTTPRequests.WithLabelValues(route).Inc()
	atomic.AddInt64(&requestCount, 1)
	requestWindow.Add()
}

// GetRequestCount returns the number of requests since start.
func GetRequestCount() int64 {
	return atomic.LoadInt64(&requestCount)
}

// AddRowsRendered counts report rows.
func AddRowsRendered(n int) {
	RowsRendered.Add(float64(n))
	atomic.AddInt64(&rowsRendered, int64(n))
}

// GetRowsRendered returns the number of report rows rendered since start.
func GetRowsRendered() int64 {
	return atomic.LoadInt64(&rowsRendered)
}

// AddResponseTime adds a response time measurement
func AddResponseTime(responseTimeMs float64) {
	atomic.AddInt64(&responseTimeSum, int64(responseTimeMs))
	atomic.AddInt64(&responseTimeCount, 1)
}

// GetAverageResponseTime returns the average response time in milliseconds
func GetAverageResponseTime() float64 {
	sum := atomic.LoadInt64(&responseTimeSum)
	count := atomic.LoadInt64(&responseTimeCount)
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}

// IncrementErrorCount increments the error counter
func IncrementErrorCount() {
	atomic.AddInt64(&errorCount, 1)
}

// GetErrorCount returns the current error count
func GetErrorCount() int64 {
	return atomic.LoadInt64(&errorCount)
}

// GetErrorRate calculates the error rate as a percentage of requests
func GetErrorRate() float64 {
	errors := atomic.LoadInt64(&errorCount)
	requests := atomic.LoadInt64(&requestCount)
	if requests == 0 {
		return 0
	}
	return (float64(errors) / float64(requests)) * 100
}
