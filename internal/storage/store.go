// Package storage persists relay snapshots and answers report queries
// against the current one. Two backends share one SQL translation of
// query.Spec: PostgreSQL through pgx and an embedded SQLite database.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shugur-Network/torstatus/internal/models"
	"github.com/Shugur-Network/torstatus/internal/query"
)

var (
	// ErrNotFound means no relay in the current snapshot has the fingerprint.
	ErrNotFound = errors.New("relay not found in current snapshot")
	// ErrNoSnapshot means nothing has been imported yet.
	ErrNoSnapshot = errors.New("no snapshot has been imported")
)

// Store is the read and write surface the web layer, CLI and importer use.
// Every read is limited to the current snapshot, the one with the latest
// valid-after time.
type Store interface {
	// CurrentRelays returns the relays matching spec, ordered by
	// spec.OrderBy(). A nil spec returns every relay.
	CurrentRelays(ctx context.Context, spec *query.Spec) ([]models.Relay, error)
	RelayByFingerprint(ctx context.Context, fingerprint string) (*models.Relay, error)
	// ExitAddresses returns the distinct addresses of current exit relays.
	ExitAddresses(ctx context.Context) ([]string, error)
	LatestValidAfter(ctx context.Context) (time.Time, error)
	// SaveSnapshot replaces any rows stored under the snapshot's valid-after
	// time and returns the number of relays written.
	SaveSnapshot(ctx context.Context, snap *models.Snapshot) (int, error)
	Ping(ctx context.Context) error
	Stats() DatabaseStats
	Close() error
}

// DatabaseStats represents database connection pool statistics
type DatabaseStats struct {
	Driver             string `json:"driver"`
	OpenConnections    int    `json:"open_connections"`
	InUse              int    `json:"in_use"`
	Idle               int    `json:"idle"`
	MaxOpenConnections int    `json:"max_open_connections"`
}

// timeLayout stores timestamps as fixed-width UTC text, so text order is
// time order and substring search sees what the report shows.
const timeLayout = query.PublishedLayout

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(timeLayout, s, time.UTC)
}

// relayColumns is the column order used by every SELECT and INSERT.
var relayColumns = []string{
	"valid_after", "fingerprint", "nickname", "address", "hostname",
	"orport", "dirport", "country", "latitude", "longitude",
	"bandwidthobserved", "uptime", "published", "contact", "platform",
	"isauthority", "isbaddirectory", "isbadexit", "isexit", "isfast",
	"isguard", "ishibernating", "isnamed", "isstable", "isrunning",
	"isvalid", "isv2dir",
}

// scanRelay reads one row laid out as relayColumns.
func scanRelay(scan func(dest ...any) error) (models.Relay, error) {
	var (
		r                     models.Relay
		validAfter, published string
		dirPort               *int64
	)
	err := scan(
		&validAfter, &r.Fingerprint, &r.Nickname, &r.Address, &r.Hostname,
		&r.ORPort, &dirPort, &r.Country, &r.Latitude, &r.Longitude,
		&r.BandwidthObserved, &r.Uptime, &published, &r.Contact, &r.Platform,
		&r.IsAuthority, &r.IsBadDirectory, &r.IsBadExit, &r.IsExit, &r.IsFast,
		&r.IsGuard, &r.IsHibernating, &r.IsNamed, &r.IsStable, &r.IsRunning,
		&r.IsValid, &r.IsV2Dir,
	)
	if err != nil {
		return r, fmt.Errorf("scan relay: %w", err)
	}
	if r.ValidAfter, err = parseTime(validAfter); err != nil {
		return r, fmt.Errorf("relay %s valid_after: %w", r.Fingerprint, err)
	}
	if r.Published, err = parseTime(published); err != nil {
		return r, fmt.Errorf("relay %s published: %w", r.Fingerprint, err)
	}
	if dirPort != nil {
		p := int(*dirPort)
		r.DirPort = &p
	}
	return r, nil
}

// relayArgs returns the INSERT arguments of r in relayColumns order.
func relayArgs(validAfter string, r *models.Relay) []any {
	var dirPort any
	if r.DirPort != nil {
		dirPort = int64(*r.DirPort)
	}
	return []any{
		validAfter, r.Fingerprint, r.Nickname, r.Address, r.Hostname,
		r.ORPort, dirPort, r.Country, r.Latitude, r.Longitude,
		r.BandwidthObserved, r.Uptime, formatTime(r.Published), r.Contact, r.Platform,
		r.IsAuthority, r.IsBadDirectory, r.IsBadExit, r.IsExit, r.IsFast,
		r.IsGuard, r.IsHibernating, r.IsNamed, r.IsStable, r.IsRunning,
		r.IsValid, r.IsV2Dir,
	}
}
