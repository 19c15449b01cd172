package storage

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Shugur-Network/torstatus/internal/constants"
	"github.com/Shugur-Network/torstatus/internal/logger"
	"github.com/Shugur-Network/torstatus/internal/metrics"
	"github.com/Shugur-Network/torstatus/internal/models"
	"github.com/Shugur-Network/torstatus/internal/query"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go.uber.org/zap"
)

// DBState represents the current state of the database connection
type DBState int

const (
	DBStateInitial DBState = iota
	DBStateConnecting
	DBStateConnected
	DBStateDisconnecting
	DBStateClosed
)

// DB is the PostgreSQL relay store.
type DB struct {
	Pool       *pgxpool.Pool
	state      DBState
	stateMu    sync.RWMutex
	errorCount atomic.Int32
}

var _ Store = (*DB)(nil)

// poolSize picks pool bounds. An explicit maximum wins; otherwise the pool
// is scaled by the number of CPUs serving report requests.
func poolSize(maxConns int) (maxSize, minSize int32, scale string) {
	if maxConns > 0 {
		minSize = int32(maxConns / 4)
		if minSize < 1 {
			minSize = 1
		}
		return int32(maxConns), minSize, "configured"
	}
	switch cpus := runtime.NumCPU(); {
	case cpus <= 2:
		return constants.DBPoolSmallMaxConns, constants.DBPoolSmallMinConns, "small"
	case cpus <= 8:
		return constants.DBPoolMediumMaxConns, constants.DBPoolMediumMinConns, "medium"
	default:
		return constants.DBPoolLargeMaxConns, constants.DBPoolLargeMinConns, "large"
	}
}

// createPool creates the pool with production settings.
func createPool(ctx context.Context, dbURI string, maxConns int) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dbURI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URI: %w", err)
	}

	maxSize, minSize, scale := poolSize(maxConns)
	config.MaxConns = maxSize
	config.MinConns = minSize
	config.MaxConnLifetime = constants.DBConnMaxLifetime
	config.MaxConnIdleTime = constants.DBConnMaxIdleTime
	config.ConnConfig.ConnectTimeout = constants.DBConnAcquireTimeout
	config.HealthCheckPeriod = 30 * time.Second

	logger.Info("Database connection pool configured",
		zap.String("scale_type", scale),
		zap.Int32("db_max_conns", maxSize),
		zap.Int32("db_min_conns", minSize),
		zap.Duration("max_lifetime", constants.DBConnMaxLifetime),
		zap.Duration("max_idle_time", constants.DBConnMaxIdleTime))

	return pgxpool.NewWithConfig(ctx, config)
}

// InitDB connects to PostgreSQL with retries and exponential backoff.
func InitDB(ctx context.Context, dbURI string, maxConns int) (*DB, error) {
	var err error
	backoff := 2 * time.Second
	attempts := 0

	db := &DB{state: DBStateConnecting}

	for i := 0; i < 5; i++ {
		attempts++
		var pool *pgxpool.Pool
		pool, err = createPool(ctx, dbURI, maxConns)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				db.Pool = pool
				db.state = DBStateConnected

				stat := pool.Stat()
				logger.Info("DB connected",
					zap.Int("attempts", attempts),
					zap.Int32("db_max_connections", stat.MaxConns()),
					zap.Int32("db_total_connections", stat.TotalConns()))
				metrics.DBConnections.WithLabelValues("success").Inc()
				return db, nil
			}
			pool.Close()
		}

		logger.Warn("Failed to connect to DB, retrying...",
			zap.Error(err),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", backoff))
		metrics.DBConnections.WithLabelValues("failure").Inc()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2 // 2s, 4s, 8s...
	}

	db.state = DBStateClosed
	metrics.DBErrors.WithLabelValues("connection_failed").Inc()
	return nil, fmt.Errorf("failed to connect to DB after %d attempts: %w", attempts, err)
}

// Close closes the pool.
func (db *DB) Close() error {
	db.stateMu.Lock()
	defer db.stateMu.Unlock()
	if db.state == DBStateDisconnecting || db.state == DBStateClosed {
		return nil
	}
	if db.Pool == nil {
		return fmt.Errorf("database pool is nil")
	}

	db.state = DBStateDisconnecting
	db.Pool.Close()
	db.state = DBStateClosed
	logger.Debug("Database connection closed")
	metrics.DBConnections.WithLabelValues("closed").Inc()
	return nil
}

// CurrentRelays runs the spec against the current snapshot.
func (db *DB) CurrentRelays(ctx context.Context, spec *query.Spec) ([]models.Relay, error) {
	if !db.isConnected() {
		return nil, fmt.Errorf("database is not connected")
	}
	stmt, args, err := postgresDialect.buildRelayQuery(spec)
	if err != nil {
		return nil, err
	}

	var relays []models.Relay
	err = db.executeWithRetry(ctx, func(ctx context.Context) error {
		relays, err = db.queryRelays(ctx, stmt, args...)
		return err
	})
	return relays, err
}

func (db *DB) queryRelays(ctx context.Context, stmt string, args ...any) ([]models.Relay, error) {
	queryCtx, cancel := context.WithTimeout(ctx, constants.QueryTimeout)
	defer cancel()

	logger.Debug("Executing query",
		zap.String("query", stmt),
		zap.Int("arg_count", len(args)))
	metrics.DBOperations.WithLabelValues("query").Inc()

	rows, err := db.Pool.Query(queryCtx, stmt, args...)
	if err != nil {
		db.recordError("query_failed", err)
		return nil, fmt.Errorf("failed to query relays: %w", err)
	}
	defer rows.Close()

	relays := make([]models.Relay, 0, 256)
	for rows.Next() {
		r, err := scanRelay(rows.Scan)
		if err != nil {
			db.recordError("scan_failed", err)
			return nil, err
		}
		relays = append(relays, r)
	}
	if err := rows.Err(); err != nil {
		db.recordError("query_failed", err)
		return nil, fmt.Errorf("failed to read relays: %w", err)
	}
	return relays, nil
}

// RelayByFingerprint returns one relay of the current snapshot.
func (db *DB) RelayByFingerprint(ctx context.Context, fingerprint string) (*models.Relay, error) {
	stmt, args := postgresDialect.relayByFingerprintQuery(fingerprint)
	relays, err := db.queryRelays(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	if len(relays) == 0 {
		return nil, ErrNotFound
	}
	return &relays[0], nil
}

// ExitAddresses returns the distinct addresses of current exit relays.
func (db *DB) ExitAddresses(ctx context.Context) ([]string, error) {
	rows, err := db.Pool.Query(ctx, postgresDialect.exitAddressesQuery())
	if err != nil {
		db.recordError("exit_index_failed", err)
		return nil, fmt.Errorf("failed to fetch exit addresses: %w", err)
	}
	addrs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		db.recordError("exit_index_failed", err)
		return nil, fmt.Errorf("failed to scan exit addresses: %w", err)
	}
	return addrs, nil
}

// LatestValidAfter returns the valid-after time of the current snapshot.
func (db *DB) LatestValidAfter(ctx context.Context) (time.Time, error) {
	var latest *string
	if err := db.Pool.QueryRow(ctx, postgresDialect.latestValidAfterQuery()).Scan(&latest); err != nil {
		db.recordError("query_failed", err)
		return time.Time{}, fmt.Errorf("failed to read latest snapshot: %w", err)
	}
	if latest == nil {
		return time.Time{}, ErrNoSnapshot
	}
	return parseTime(*latest)
}

// SaveSnapshot writes the snapshot in one transaction, in batches.
func (db *DB) SaveSnapshot(ctx context.Context, snap *models.Snapshot) (int, error) {
	if !db.isConnected() {
		return 0, fmt.Errorf("database is not connected")
	}
	validAfter := formatTime(snap.ValidAfter)

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		db.recordError("transaction_start_failed", err)
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		// no-op once committed
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, postgresDialect.deleteSnapshotQuery(), validAfter); err != nil {
		db.recordError("query_failed", err)
		return 0, fmt.Errorf("failed to clear snapshot %s: %w", validAfter, err)
	}

	insert := postgresDialect.insertRelayQuery()
	for start := 0; start < len(snap.Relays); start += constants.ImportBatchSize {
		end := min(start+constants.ImportBatchSize, len(snap.Relays))
		batch := &pgx.Batch{}
		for i := start; i < end; i++ {
			batch.Queue(insert, relayArgs(validAfter, &snap.Relays[i])...)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			db.recordError("query_failed", err)
			return 0, fmt.Errorf("batch insert failed at relay %d: %w", start, err)
		}
		logger.Debug("Snapshot batch written", zap.Int("relays", end))
	}

	if err := tx.Commit(ctx); err != nil {
		db.recordError("transaction_commit_failed", err)
		return 0, fmt.Errorf("transaction commit failed: %w", err)
	}

	metrics.DBOperations.WithLabelValues("snapshot_write").Inc()
	return len(snap.Relays), nil
}

// isConnected checks if the database is in a connected state
func (db *DB) isConnected() bool {
	db.stateMu.RLock()
	defer db.stateMu.RUnlock()
	return db.state == DBStateConnected
}

// recordError counts and logs a database error.
func (db *DB) recordError(kind string, err error) {
	count := db.errorCount.Add(1)
	metrics.DBErrors.WithLabelValues(kind).Inc()
	logger.Error("Database error",
		zap.String("error_type", kind),
		zap.Error(err),
		zap.Int32("error_count", count))
}

// executeWithRetry retries statement timeouts and deadlocks.
func (db *DB) executeWithRetry(ctx context.Context, f func(context.Context) error) error {
	retries := 3
	var lastErr error

	for i := 0; i < retries; i++ {
		err := f(ctx)
		if err == nil {
			return nil
		}

		if strings.Contains(err.Error(), "statement timeout") ||
			strings.Contains(err.Error(), "deadlock") {
			lastErr = err
			time.Sleep(time.Duration(1<<i) * 100 * time.Millisecond)
			continue
		}

		return err
	}

	return fmt.Errorf("operation failed after %d retries: %w", retries, lastErr)
}

// Ping checks database connectivity
func (db *DB) Ping(ctx context.Context) error {
	if db.Pool == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return db.Pool.Ping(ctx)
}

// Stats returns database connection pool statistics
func (db *DB) Stats() DatabaseStats {
	if db.Pool == nil {
		return DatabaseStats{Driver: postgresDialect.name}
	}

	stat := db.Pool.Stat()
	return DatabaseStats{
		Driver:             postgresDialect.name,
		OpenConnections:    int(stat.TotalConns()),
		InUse:              int(stat.AcquiredConns()),
		Idle:               int(stat.IdleConns()),
		MaxOpenConnections: int(stat.MaxConns()),
	}
}
