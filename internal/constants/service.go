package constants

import "time"

// Database constants
const (
	DatabaseName = "torstatus"
	RelayTable   = "active_relays"
)

// Default service metadata constants
const (
	DefaultServiceName        = "TorStatus"
	DefaultServiceDescription = "Tor network relay status reports"
	DefaultContactSentinel    = "No contact information given"
	DefaultPlatformSentinel   = "NotAvailable"
	DefaultDirPortSentinel    = "None"
)

// Download constants
const (
	CSVContentType      = "text/csv"
	ReportCSVFilename   = "current_results.csv"
	AllIPsCSVFilename   = "all_ips.csv"
	ExitIPsCSVFilename  = "all_exit_ips.csv"
	ContentDisposition  = "attachment; filename=%s"
	DefaultSortField    = "nickname"
	SessionCookieName   = "torstatus_session"
	QueryTimeout        = 5 * time.Second
	ImportBatchSize     = 500
	ExitIndexMinEntries = 1024
)

// Health check constants
const (
	HealthCheckTimeout = 5 * time.Second
	// consensus documents are published hourly
	SnapshotStaleAfter = 3 * time.Hour
)

// Database connection pool constants, scaled by the expected number of
// concurrent web clients.
const (
	DBPoolSmallMaxConns  = 8 // up to 200 clients
	DBPoolSmallMinConns  = 2
	DBPoolMediumMaxConns = 25 // up to 2000 clients
	DBPoolMediumMinConns = 5
	DBPoolLargeMaxConns  = 50
	DBPoolLargeMinConns  = 10
)

// Database connection timeouts
const (
	MaxDBRetries         = 3
	DBRetryDelay         = time.Second
	NodeShutdownTimeout  = 30 * time.Second
	DBConnMaxLifetime    = 60 * time.Minute
	DBConnMaxIdleTime    = 15 * time.Minute
	DBConnAcquireTimeout = 10 * time.Second
)
