package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Shugur-Network/torstatus/internal/constants"
	"github.com/Shugur-Network/torstatus/internal/logger"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// HandlerFunc is a function type that can return an error
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Handler wraps HandlerFunc with automatic error handling
type Handler struct {
	errorMiddleware *ErrorMiddleware
	handlerFunc     HandlerFunc
}

// NewHandler creates a new error-aware handler
func NewHandler(handlerFunc HandlerFunc) *Handler {
	return &Handler{
		errorMiddleware: GetErrorMiddleware(),
		handlerFunc:     handlerFunc,
	}
}

// ServeHTTP implements the http.Handler interface
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := RequestID(r.Context())
	if requestID == "" {
		requestID = generateRequestID()
		r = r.WithContext(logger.WithRequestID(r.Context(), requestID))
	}
	w.Header().Set("X-Request-ID", requestID)

	if err := h.handlerFunc(w, r); err != nil {
		h.errorMiddleware.HandleError(w, r, err)
	}
}

// WrapHandler wraps an error-returning handler function
func WrapHandler(handlerFunc func(w http.ResponseWriter, r *http.Request) error) http.Handler {
	return NewHandler(handlerFunc)
}

// RequestID returns the request ID stored in ctx, if any.
func RequestID(ctx context.Context) string {
	return logger.RequestID(ctx)
}

// RequestIDMiddleware assigns a request ID to every request so that
// handlers and logs can correlate on it.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := RequestID(r.Context())
		if requestID == "" {
			requestID = generateRequestID()
			r = r.WithContext(logger.WithRequestID(r.Context(), requestID))
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
	})
}

// DatabaseHandler provides error handling specifically for database operations
type DatabaseHandler struct {
	logger *zap.Logger
}

// NewDatabaseHandler creates a new database error handler
func NewDatabaseHandler() *DatabaseHandler {
	return &DatabaseHandler{
		logger: logger.New("database_error_handler"),
	}
}

// HandleDatabaseError classifies a store error and returns it as an AppError
func (dh *DatabaseHandler) HandleDatabaseError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	switch {
	case isTimeoutError(err):
		appErr = QueryTimeoutError(operation, constants.QueryTimeout)
	case isConnectionError(err):
		appErr = DatabaseConnectionError(err)
	default:
		appErr = DatabaseError(operation, err)
	}

	dh.logger.Error("Database operation failed",
		zap.String("operation", operation),
		zap.String("error_type", string(appErr.Type)),
		zap.String("error_code", appErr.Code),
		zap.String("severity", string(appErr.Severity)),
		zap.Error(err))

	return appErr
}

// DatabaseConnectionError creates an error for database connection issues
func DatabaseConnectionError(cause error) *AppError {
	return Wrap(cause, ErrorTypeDatabase, "DB_CONNECTION_ERROR", "Database connection failed").
		WithSeverity(SeverityCritical).
		WithUserMessage("The relay database is temporarily unavailable. Please try again later.")
}

// QueryTimeoutError creates an error for database query timeouts
func QueryTimeoutError(operation string, timeout time.Duration) *AppError {
	return New(ErrorTypeTimeout, "QUERY_TIMEOUT", fmt.Sprintf("Database query timed out after %s", timeout)).
		WithSeverity(SeverityMedium).
		WithDetails("operation: " + operation).
		WithUserMessage("The database query took too long. Please try again.")
}

func isConnectionError(err error) bool {
	var netErr *net.OpError
	if stderrors.As(err, &netErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	return stderrors.As(err, &connectErr)
}

func isTimeoutError(err error) bool {
	return stderrors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err)
}

func generateRequestID() string {
	return fmt.Sprintf("req_%d", time.Now().UnixNano())
}
