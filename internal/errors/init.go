package errors

import (
	"net/http"
	"sync"

	"github.com/Shugur-Network/torstatus/internal/logger"
	"go.uber.org/zap"
)

var (
	initOnce              sync.Once
	globalErrorMiddleware *ErrorMiddleware
	globalDatabaseHandler *DatabaseHandler
)

// InitErrorHandling initializes the global error handling system
func InitErrorHandling() {
	initOnce.Do(func() {
		globalErrorMiddleware = NewErrorMiddleware()
		globalDatabaseHandler = NewDatabaseHandler()

		logger.Info("Error handling system initialized",
			zap.String("component", "error_middleware"))
	})
}

// GetErrorMiddleware returns the global error middleware instance
func GetErrorMiddleware() *ErrorMiddleware {
	InitErrorHandling()
	return globalErrorMiddleware
}

// GetDatabaseHandler returns the global database error handler
func GetDatabaseHandler() *DatabaseHandler {
	InitErrorHandling()
	return globalDatabaseHandler
}

// HandleHTTPError is a convenience function for handling HTTP errors
func HandleHTTPError(w http.ResponseWriter, r *http.Request, err error) {
	GetErrorMiddleware().HandleError(w, r, err)
}

// HandleDatabaseError is a convenience function for handling database errors
func HandleDatabaseError(operation string, err error) error {
	return GetDatabaseHandler().HandleDatabaseError(operation, err)
}

// RecoveryMiddleware returns a middleware that recovers from panics
func RecoveryMiddleware(next http.Handler) http.Handler {
	return GetErrorMiddleware().RecoveryMiddleware(next)
}
