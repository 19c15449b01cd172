package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitRejectsBadOptions(t *testing.T) {
	require.Error(t, Init(WithFormat("xml")))
	require.Error(t, Init(WithLevel("loud")))
}

func TestInitFileAndLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "torstatus.log")
	require.NoError(t, Init(
		WithLevel("warn"),
		WithFormat("json"),
		WithFile(path),
		WithComponent("test"),
		WithRotation(1, 1, 1),
	))
	t.Cleanup(func() { _ = Init() })

	assert.Equal(t, "warn", Level())
	Warn("written")
	require.NoError(t, UpdateLevel("debug"))
	assert.Equal(t, "debug", Level())
	New("child").Debug("also written")
	require.NoError(t, Shutdown())

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"msg":"written"`)
	assert.Contains(t, string(body), `"component":"child"`)
}

func TestContextHelpers(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req_1")
	assert.Equal(t, "req_1", RequestID(ctx))
	assert.Empty(t, RequestID(context.Background()))

	require.NoError(t, Init())
	assert.NotNil(t, FromContext(WithSessionID(ctx, "s")))
}
