package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Shugur-Network/torstatus/internal/constants"
	"github.com/Shugur-Network/torstatus/internal/logger"
	"github.com/Shugur-Network/torstatus/internal/metrics"
	"github.com/Shugur-Network/torstatus/internal/models"
	"github.com/Shugur-Network/torstatus/internal/query"
	"go.uber.org/zap"
)

// SQLiteStore is the embedded relay store for single-host deployments and
// tests.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database file at path and
// applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		metrics.DBConnections.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	metrics.DBConnections.WithLabelValues("success").Inc()
	logger.Info("SQLite store opened", zap.String("path", path))
	return &SQLiteStore{db: db, path: path}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	metrics.DBConnections.WithLabelValues("closed").Inc()
	return s.db.Close()
}

// CurrentRelays runs the spec against the current snapshot.
func (s *SQLiteStore) CurrentRelays(ctx context.Context, spec *query.Spec) ([]models.Relay, error) {
	stmt, args, err := sqliteDialect.buildRelayQuery(spec)
	if err != nil {
		return nil, err
	}
	return s.queryRelays(ctx, stmt, args...)
}

func (s *SQLiteStore) queryRelays(ctx context.Context, stmt string, args ...any) ([]models.Relay, error) {
	queryCtx, cancel := context.WithTimeout(ctx, constants.QueryTimeout)
	defer cancel()

	metrics.DBOperations.WithLabelValues("query").Inc()
	rows, err := s.db.QueryContext(queryCtx, stmt, args...)
	if err != nil {
		metrics.DBErrors.WithLabelValues("query_failed").Inc()
		return nil, fmt.Errorf("querying relays: %w", err)
	}
	defer rows.Close()

	var relays []models.Relay
	for rows.Next() {
		r, err := scanRelay(rows.Scan)
		if err != nil {
			metrics.DBErrors.WithLabelValues("scan_failed").Inc()
			return nil, err
		}
		relays = append(relays, r)
	}
	if err := rows.Err(); err != nil {
		metrics.DBErrors.WithLabelValues("query_failed").Inc()
		return nil, fmt.Errorf("reading relays: %w", err)
	}
	return relays, nil
}

// RelayByFingerprint returns one relay of the current snapshot.
func (s *SQLiteStore) RelayByFingerprint(ctx context.Context, fingerprint string) (*models.Relay, error) {
	stmt, args := sqliteDialect.relayByFingerprintQuery(fingerprint)
	relays, err := s.queryRelays(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	if len(relays) == 0 {
		return nil, ErrNotFound
	}
	return &relays[0], nil
}

// ExitAddresses returns the distinct addresses of current exit relays.
func (s *SQLiteStore) ExitAddresses(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, sqliteDialect.exitAddressesQuery())
	if err != nil {
		metrics.DBErrors.WithLabelValues("exit_index_failed").Inc()
		return nil, fmt.Errorf("querying exit addresses: %w", err)
	}
	defer rows.Close()

	var addrs []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("scanning exit address: %w", err)
		}
		addrs = append(addrs, a)
	}
	return addrs, rows.Err()
}

// LatestValidAfter returns the valid-after time of the current snapshot.
func (s *SQLiteStore) LatestValidAfter(ctx context.Context) (time.Time, error) {
	var latest sql.NullString
	if err := s.db.QueryRowContext(ctx, sqliteDialect.latestValidAfterQuery()).Scan(&latest); err != nil {
		return time.Time{}, fmt.Errorf("reading latest snapshot: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, ErrNoSnapshot
	}
	return parseTime(latest.String)
}

// SaveSnapshot writes the snapshot in one transaction.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *models.Snapshot) (n int, err error) {
	validAfter := formatTime(snap.ValidAfter)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		metrics.DBErrors.WithLabelValues("transaction_start_failed").Inc()
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logger.Warn("Rollback failed", zap.Error(rbErr))
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, sqliteDialect.deleteSnapshotQuery(), validAfter); err != nil {
		return 0, fmt.Errorf("clearing snapshot %s: %w", validAfter, err)
	}

	stmt, err := tx.PrepareContext(ctx, sqliteDialect.insertRelayQuery())
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i := range snap.Relays {
		if _, err = stmt.ExecContext(ctx, relayArgs(validAfter, &snap.Relays[i])...); err != nil {
			return 0, fmt.Errorf("inserting relay %s: %w", snap.Relays[i].Fingerprint, err)
		}
	}

	if err = tx.Commit(); err != nil {
		metrics.DBErrors.WithLabelValues("transaction_commit_failed").Inc()
		return 0, fmt.Errorf("committing snapshot: %w", err)
	}
	metrics.DBOperations.WithLabelValues("snapshot_write").Inc()
	return len(snap.Relays), nil
}

// Ping checks that the database file is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Stats returns connection statistics.
func (s *SQLiteStore) Stats() DatabaseStats {
	st := s.db.Stats()
	return DatabaseStats{
		Driver:             sqliteDialect.name,
		OpenConnections:    st.OpenConnections,
		InUse:              st.InUse,
		Idle:               st.Idle,
		MaxOpenConnections: st.MaxOpenConnections,
	}
}
