package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/Shugur-Network/torstatus/internal/logger"
	"github.com/Shugur-Network/torstatus/internal/metrics"
	"go.uber.org/zap"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeDatabase   ErrorType = "database"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeInternal   ErrorType = "internal"
)

// ErrorSeverity represents the severity level of errors
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"      // bad input, the service is fine
	SeverityMedium   ErrorSeverity = "medium"   // noticeable to the user
	SeverityHigh     ErrorSeverity = "high"     // a dependency failed
	SeverityCritical ErrorSeverity = "critical" // panics and lost connectivity
)

// AppError represents a structured application error
type AppError struct {
	Type        ErrorType     `json:"type"`
	Code        string        `json:"code"`
	Message     string        `json:"message"`
	Details     string        `json:"details,omitempty"`
	Severity    ErrorSeverity `json:"severity"`
	Timestamp   time.Time     `json:"timestamp"`
	RequestID   string        `json:"request_id,omitempty"`
	UserMessage string        `json:"user_message,omitempty"`
	Cause       error         `json:"-"`
	StackTrace  string        `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s:%s] %s: %s", e.Type, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// Unwrap implements the Unwrap interface for error wrapping
func (e *AppError) Unwrap() error {
	return e.Cause
}

// ErrorBody is the payload of an ErrorResponse.
type ErrorBody struct {
	Type      ErrorType `json:"type"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// ErrorResponse represents the JSON response format for errors
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorMiddleware handles error processing and response formatting
type ErrorMiddleware struct {
	logger *zap.Logger
}

// NewErrorMiddleware creates a new error middleware instance
func NewErrorMiddleware() *ErrorMiddleware {
	return &ErrorMiddleware{
		logger: logger.New("error_middleware"),
	}
}

// New creates a new AppError
func New(errorType ErrorType, code string, message string) *AppError {
	return &AppError{
		Type:      errorType,
		Code:      code,
		Message:   message,
		Severity:  SeverityMedium,
		Timestamp: time.Now(),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errorType ErrorType, code string, message string) *AppError {
	appErr := New(errorType, code, message)
	appErr.Cause = err
	if err != nil {
		appErr.Details = err.Error()
	}
	return appErr
}

// WithSeverity sets the severity level of an error. High and critical
// errors capture the stack.
func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	if (severity == SeverityHigh || severity == SeverityCritical) && e.StackTrace == "" {
		e.StackTrace = captureStackTrace()
	}
	return e
}

// WithDetails adds additional details to an error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithUserMessage sets a user-friendly message
func (e *AppError) WithUserMessage(message string) *AppError {
	e.UserMessage = message
	return e
}

// WithRequestID associates an error with a request ID
func (e *AppError) WithRequestID(requestID string) *AppError {
	e.RequestID = requestID
	return e
}

// StatusCode returns the HTTP status the error maps to.
func (e *AppError) StatusCode() int {
	return getHTTPStatusCode(e.Type)
}

// HandleError processes an error and sends appropriate HTTP response
func (em *ErrorMiddleware) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := AsAppError(err)

	if requestID := getRequestID(r); requestID != "" {
		appErr.RequestID = requestID
	}

	em.logError(appErr, r)

	metrics.IncrementErrorCount()
	metrics.ErrorsCount.WithLabelValues(string(appErr.Type)).Inc()

	em.sendErrorResponse(w, appErr)
}

// AsAppError returns err as an AppError, wrapping unknown errors as
// internal errors.
func AsAppError(err error) *AppError {
	if ae, ok := err.(*AppError); ok {
		return ae
	}
	return InternalError("An internal error occurred", err)
}

// logError logs an error with appropriate severity level
func (em *ErrorMiddleware) logError(err *AppError, r *http.Request) {
	fields := []zap.Field{
		zap.String("error_type", string(err.Type)),
		zap.String("error_code", err.Code),
		zap.String("severity", string(err.Severity)),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("remote_addr", r.RemoteAddr),
	}

	if err.RequestID != "" {
		fields = append(fields, zap.String("request_id", err.RequestID))
	}
	if err.Details != "" {
		fields = append(fields, zap.String("details", err.Details))
	}
	if err.Cause != nil {
		fields = append(fields, zap.Error(err.Cause))
	}
	if err.StackTrace != "" {
		fields = append(fields, zap.String("stack_trace", err.StackTrace))
	}

	switch err.Severity {
	case SeverityLow:
		em.logger.Info(err.Message, fields...)
	case SeverityMedium:
		em.logger.Warn(err.Message, fields...)
	default:
		em.logger.Error(err.Message, fields...)
	}
}

// sendErrorResponse sends a structured JSON error response
func (em *ErrorMiddleware) sendErrorResponse(w http.ResponseWriter, err *AppError) {
	response := ErrorResponse{
		Error: ErrorBody{
			Type:      err.Type,
			Code:      err.Code,
			Message:   getUserFriendlyMessage(err),
			Timestamp: err.Timestamp,
			RequestID: err.RequestID,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(err.StatusCode())

	if encodeErr := json.NewEncoder(w).Encode(response); encodeErr != nil {
		em.logger.Error("Failed to encode error response", zap.Error(encodeErr))
	}
}

// getHTTPStatusCode maps error types to HTTP status codes
func getHTTPStatusCode(errorType ErrorType) int {
	switch errorType {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case ErrorTypeDatabase:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// getUserFriendlyMessage returns a user-friendly error message
func getUserFriendlyMessage(err *AppError) string {
	if err.UserMessage != "" {
		return err.UserMessage
	}

	switch err.Type {
	case ErrorTypeValidation:
		return "The request contains invalid data. Please check your input and try again."
	case ErrorTypeNotFound:
		return "The requested resource was not found."
	case ErrorTypeRateLimit:
		return "Too many requests. Please wait before trying again."
	case ErrorTypeTimeout:
		return "The request timed out. Please try again."
	case ErrorTypeDatabase:
		return "The relay database is unavailable. Please try again later."
	default:
		return "An unexpected error occurred. Please try again."
	}
}

func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// getRequestID extracts request ID from request context or headers
func getRequestID(r *http.Request) string {
	if id := RequestID(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}

// RecoveryMiddleware recovers from panics and converts them to structured errors
func (em *ErrorMiddleware) RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				var err error
				if e, ok := recovered.(error); ok {
					err = e
				} else {
					err = fmt.Errorf("panic: %v", recovered)
				}

				panicErr := Wrap(err, ErrorTypeInternal, "PANIC_RECOVERED", "An unexpected error occurred").
					WithSeverity(SeverityCritical)
				em.HandleError(w, r, panicErr)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// Common error constructors

// ValidationError creates a validation error
func ValidationError(code, message string) *AppError {
	return New(ErrorTypeValidation, code, message).
		WithSeverity(SeverityLow).
		WithUserMessage(message)
}

// FilterError reports a search value that cannot be applied to field.
func FilterError(field, message string) *AppError {
	metrics.FilterRejections.WithLabelValues(field).Inc()
	return New(ErrorTypeValidation, "INVALID_FILTER", fmt.Sprintf("Filter validation failed: %s", message)).
		WithDetails("field: " + field).
		WithSeverity(SeverityLow).
		WithUserMessage(message)
}

// ColumnError reports a column-editor command that does not fit the
// session's current column lists.
func ColumnError(code, message string) *AppError {
	return New(ErrorTypeValidation, "COLUMN_"+code, message).
		WithSeverity(SeverityLow).
		WithUserMessage(message)
}

// NotFoundError creates a not found error
func NotFoundError(resource string) *AppError {
	return New(ErrorTypeNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", resource)).
		WithSeverity(SeverityLow).
		WithUserMessage(fmt.Sprintf("%s was not found.", resource))
}

// DatabaseError creates a database error
func DatabaseError(operation string, cause error) *AppError {
	return Wrap(cause, ErrorTypeDatabase, "DATABASE_ERROR", fmt.Sprintf("Database %s failed", operation)).
		WithSeverity(SeverityHigh).
		WithUserMessage("The relay database is unavailable. Please try again later.")
}

// RateLimitError creates a rate limit error
func RateLimitError(resource string) *AppError {
	return New(ErrorTypeRateLimit, "RATE_LIMIT_EXCEEDED", fmt.Sprintf("Rate limit exceeded for %s", resource)).
		WithSeverity(SeverityMedium).
		WithUserMessage("Too many requests. Please wait before trying again.")
}

// TimeoutError creates a timeout error
func TimeoutError(operation string) *AppError {
	return New(ErrorTypeTimeout, "TIMEOUT", fmt.Sprintf("%s operation timed out", operation)).
		WithSeverity(SeverityMedium).
		WithUserMessage("The request timed out. Please try again.")
}

// InternalError creates an internal error
func InternalError(message string, cause error) *AppError {
	return Wrap(cause, ErrorTypeInternal, "INTERNAL_ERROR", message).
		WithSeverity(SeverityHigh).
		WithUserMessage("An internal error occurred. Please try again.")
}
