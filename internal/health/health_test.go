package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Shugur-Network/torstatus/internal/storage"
)

var now = time.Date(2026, 10, 1, 12, 30, 0, 0, time.UTC)

type fakeDB struct {
	pingErr  error
	latest   time.Time
	latestEr error
	stats    storage.DatabaseStats
}

func (f fakeDB) Ping(context.Context) error   { return f.pingErr }
func (f fakeDB) Stats() storage.DatabaseStats { return f.stats }
func (f fakeDB) LatestValidAfter(context.Context) (time.Time, error) {
	return f.latest, f.latestEr
}

type fakeIndex struct {
	n     int
	built time.Time
}

func (f fakeIndex) Len() int           { return f.n }
func (f fakeIndex) BuiltAt() time.Time { return f.built }

func newChecker(db Database, exits ExitIndex) *HealthChecker {
	h := NewHealthChecker(db, exits, zap.NewNop(), "test")
	h.now = func() time.Time { return now }
	return h
}

func component(resp *HealthResponse, name string) *ComponentStatus {
	for _, c := range resp.Components {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestCheckHealth(t *testing.T) {
	t.Parallel()

	healthyDB := fakeDB{latest: now.Add(-time.Hour), stats: storage.DatabaseStats{Driver: "sqlite", MaxOpenConnections: 1}}
	built := fakeIndex{n: 3, built: now}

	tests := []struct {
		name     string
		db       fakeDB
		exits    ExitIndex
		want     HealthStatus
		check    string
		checkWas HealthStatus
	}{
		{"all healthy", healthyDB, built, StatusHealthy, "snapshot", StatusHealthy},
		{"stale snapshot", fakeDB{latest: now.Add(-4 * time.Hour)}, built, StatusDegraded, "snapshot", StatusDegraded},
		{"no snapshot", fakeDB{latestEr: storage.ErrNoSnapshot}, built, StatusDegraded, "snapshot", StatusDegraded},
		{"snapshot read fails", fakeDB{latestEr: errors.New("boom")}, built, StatusUnhealthy, "snapshot", StatusUnhealthy},
		{"ping fails", fakeDB{pingErr: errors.New("down"), latest: now}, built, StatusUnhealthy, "database", StatusUnhealthy},
		{"pool saturated", fakeDB{latest: now, stats: storage.DatabaseStats{InUse: 10, MaxOpenConnections: 10}}, built, StatusUnhealthy, "database", StatusUnhealthy},
		{"index not built", healthyDB, fakeIndex{}, StatusDegraded, "exit_index", StatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := newChecker(tt.db, tt.exits).CheckHealth(context.Background())
			assert.Equal(t, tt.want, resp.Status)
			c := component(resp, tt.check)
			require.NotNil(t, c)
			assert.Equal(t, tt.checkWas, c.Status)
		})
	}
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newChecker(fakeDB{latest: now}, nil).HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "test", body.Version)
	assert.Nil(t, component(&body, "exit_index"))

	rec = httptest.NewRecorder()
	newChecker(fakeDB{pingErr: errors.New("down")}, nil).HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestFormatUptime(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "5s", formatUptime(5*time.Second))
	assert.Equal(t, "2m 3s", formatUptime(2*time.Minute+3*time.Second))
	assert.Equal(t, "1d 1h 0m 0s", formatUptime(25*time.Hour))
}
