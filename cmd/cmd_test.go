package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shugur-Network/torstatus/internal/query"
)

const snapshot = `{
  "valid_after": "2026-10-01T12:00:00Z",
  "relays": [
    {"fingerprint": "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", "nickname": "alpha", "address": "10.0.0.1",
     "orport": 443, "isexit": true, "isrunning": true},
    {"fingerprint": "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB", "nickname": "beta", "address": "10.0.0.2",
     "orport": 9001, "isrunning": true}
  ]
}`

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.ExecuteContext(context.Background()), strings.Join(args, " "))
	return out.String()
}

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"searchValue=a=b", "isexit=yes", "criteria="})
	require.NoError(t, err)
	assert.Equal(t, query.Options{"searchValue": "a=b", "isexit": "yes", "criteria": ""}, opts)

	_, err = parseOptions([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseOptions([]string{"=x"})
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	assert.Contains(t, run(t, "version"), "torstatus version: dev")
	assert.Contains(t, run(t, "version", "--detailed"), "Commit: unknown")
}

func TestImportQueryExport(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "torstatus.db")
	snapPath := filepath.Join(dir, "snapshot.json")
	require.NoError(t, os.WriteFile(snapPath, []byte(snapshot), 0o600))

	out := run(t, "import", snapPath, "--sqlite-path", dbPath)
	assert.Contains(t, out, "imported 2 relays (0 rejected, 0 enriched)")

	out = run(t, "query", "--sqlite-path", dbPath, "--opt", "isexit=yes", "--columns", "Router Name,IP")
	assert.Contains(t, out, "alpha")
	assert.NotContains(t, out, "beta")
	assert.Contains(t, out, "1 relays")

	exits := filepath.Join(dir, "exits.csv")
	run(t, "export", "exit-ips", "--sqlite-path", dbPath, "--out", exits)
	body, err := os.ReadFile(exits)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1\n", string(body))

	out = run(t, "export", "report", "--sqlite-path", dbPath, "--columns", "Router Name,ORPort",
		"--opt", "sortListings=orport", "--opt", "sortOrder=descending", "--out", "-")
	assert.Equal(t, "Router Name,ORPort\nbeta,9001\nalpha,443\n", out)
}
