package application

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shugur-Network/torstatus/internal/config"
	"github.com/Shugur-Network/torstatus/internal/models"
)

func TestReplaceDBNameInURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgres://u:p@host:5432/postgres?sslmode=disable", "postgres://u:p@host:5432/torstatus?sslmode=disable"},
		{"postgres://u@host:5432/postgres", "postgres://u@host:5432/torstatus"},
		{"postgres://u@host:5432", "postgres://u@host:5432/torstatus"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, replaceDBNameInURL(tt.in, "torstatus"), tt.in)
	}
}

func TestPostgresURIs(t *testing.T) {
	def, target := postgresURIs(config.DatabaseConfig{URL: "postgres://u@db:5432/postgres?sslmode=disable"})
	assert.Equal(t, "postgres://u@db:5432/postgres?sslmode=disable", def)
	assert.Equal(t, "postgres://u@db:5432/torstatus?sslmode=disable", target)

	def, target = postgresURIs(config.DatabaseConfig{Server: "db", Port: 5433})
	assert.Equal(t, "postgres://postgres@db:5433/postgres?sslmode=disable", def)
	assert.Equal(t, "postgres://postgres@db:5433/torstatus?sslmode=disable", target)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	cfg.Database.Driver = "sqlite"
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "torstatus.db")
	cfg.Web.ListenAddr = "127.0.0.1:0"
	cfg.Metrics.Enabled = false
	return cfg
}

func TestOpenStoreSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	store, err := OpenStore(ctx, cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	va := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	n, err := store.SaveSnapshot(ctx, &models.Snapshot{
		ValidAfter: va,
		Relays: []models.Relay{{
			ValidAfter:  va,
			Fingerprint: "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
			Nickname:    "alpha",
			Address:     "10.0.0.1",
			ORPort:      443,
			IsExit:      true,
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.LatestValidAfter(ctx)
	require.NoError(t, err)
	assert.True(t, va.Equal(got))
}

func TestNodeLifecycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	node, err := New(ctx, testConfig(t))
	require.NoError(t, err)
	require.NotNil(t, node.Store())
	require.NotNil(t, node.ExitIndex())
	assert.Equal(t, "sqlite", node.Store().Stats().Driver)

	require.NoError(t, node.Start(ctx))
	assert.False(t, node.GetStartTime().IsZero())

	done := make(chan struct{})
	go func() {
		node.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("shutdown did not finish")
	}
}
