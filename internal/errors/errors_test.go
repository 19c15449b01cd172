package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h http.Handler) (*httptest.ResponseRecorder, ErrorResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	var body ErrorResponse
	if rec.Code >= 400 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHandler_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		typ  ErrorType
	}{
		{"filter", FilterError("uptime", "search value must be a number"), http.StatusBadRequest, ErrorTypeValidation},
		{"column", ColumnError("NOT_CURRENT", "Exit is not a current column"), http.StatusBadRequest, ErrorTypeValidation},
		{"not found", NotFoundError("Relay"), http.StatusNotFound, ErrorTypeNotFound},
		{"rate limit", RateLimitError("report"), http.StatusTooManyRequests, ErrorTypeRateLimit},
		{"database", DatabaseError("query", stderrors.New("conn reset")), http.StatusServiceUnavailable, ErrorTypeDatabase},
		{"plain error", stderrors.New("boom"), http.StatusInternalServerError, ErrorTypeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := serve(t, WrapHandler(func(http.ResponseWriter, *http.Request) error { return tt.err }))
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.typ, body.Error.Type)
			assert.True(t, strings.HasPrefix(rec.Header().Get("X-Request-ID"), "req_"))
			assert.Equal(t, rec.Header().Get("X-Request-ID"), body.Error.RequestID)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestHandler_Success(t *testing.T) {
	rec, _ := serve(t, WrapHandler(func(w http.ResponseWriter, r *http.Request) error {
		assert.NotEmpty(t, RequestID(r.Context()))
		w.WriteHeader(http.StatusNoContent)
		return nil
	}))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequestIDMiddleware_KeepsExistingID(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(WrapHandler(func(w http.ResponseWriter, r *http.Request) error {
		seen = RequestID(r.Context())
		return nil
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}

func TestRecoveryMiddleware(t *testing.T) {
	rec, body := serve(t, RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	})))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "PANIC_RECOVERED", body.Error.Code)
}

func TestHandleDatabaseError(t *testing.T) {
	assert.NoError(t, HandleDatabaseError("query", nil))

	err := HandleDatabaseError("query", fmt.Errorf("querying relays: %w", context.DeadlineExceeded))
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, ErrorTypeTimeout, appErr.Type)
	assert.Equal(t, http.StatusGatewayTimeout, appErr.StatusCode())

	err = HandleDatabaseError("query", stderrors.New("syntax error"))
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "DATABASE_ERROR", appErr.Code)
	assert.ErrorContains(t, err, "syntax error")
}

func TestAppError_Wrapping(t *testing.T) {
	cause := stderrors.New("root")
	err := InternalError("failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.NotEmpty(t, err.StackTrace)
	assert.Equal(t, "[internal:INTERNAL_ERROR] failed: root", err.Error())

	assert.Same(t, err, AsAppError(err))
	assert.Empty(t, NotFoundError("Relay").StackTrace)
}
