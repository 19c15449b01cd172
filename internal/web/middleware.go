package web

import (
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Shugur-Network/torstatus/internal/errors"
	"github.com/Shugur-Network/torstatus/internal/logger"
	"github.com/Shugur-Network/torstatus/internal/metrics"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// SecurityHeaders defines the security headers to be applied to responses
type SecurityHeaders struct {
	// Content Security Policy
	CSP string
	// X-Frame-Options - prevents clickjacking
	XFrameOptions string
	// X-Content-Type-Options - prevents MIME sniffing
	XContentTypeOptions string
	// Referrer-Policy - controls referrer information
	ReferrerPolicy string
}

// DefaultSecurityHeaders returns the headers for report pages. Flag and
// status images are served locally; the map links open OpenStreetMap.
func DefaultSecurityHeaders() *SecurityHeaders {
	return &SecurityHeaders{
		CSP: "default-src 'self'; " +
			"style-src 'self' 'unsafe-inline'; " +
			"img-src 'self' data:; " +
			"object-src 'none'; " +
			"base-uri 'self'; " +
			"form-action 'self'; " +
			"frame-ancestors 'none'",
		XFrameOptions:       "DENY",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "same-origin",
	}
}

// APISecurityHeaders returns security headers for JSON and CSV endpoints
func APISecurityHeaders() *SecurityHeaders {
	return &SecurityHeaders{
		CSP:                 "default-src 'none'; frame-ancestors 'none'",
		XContentTypeOptions: "nosniff",
	}
}

// Apply applies the security headers directly to a ResponseWriter
func (sh *SecurityHeaders) Apply(w http.ResponseWriter) {
	if sh.CSP != "" {
		w.Header().Set("Content-Security-Policy", sh.CSP)
	}
	if sh.XFrameOptions != "" {
		w.Header().Set("X-Frame-Options", sh.XFrameOptions)
	}
	if sh.XContentTypeOptions != "" {
		w.Header().Set("X-Content-Type-Options", sh.XContentTypeOptions)
	}
	if sh.ReferrerPolicy != "" {
		w.Header().Set("Referrer-Policy", sh.ReferrerPolicy)
	}
}

// SecurityMiddleware wraps an http.Handler with security headers
func SecurityMiddleware(headers *SecurityHeaders) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headers.Apply(w)
			next.ServeHTTP(w, r)
		})
	}
}

// InputValidation bounds request sizes and rejects header injection
type InputValidation struct {
	MaxPathLength   int
	MaxQueryLength  int
	MaxHeaderLength int
}

// DefaultInputValidation returns the limits used by the report server
func DefaultInputValidation() *InputValidation {
	return &InputValidation{
		MaxPathLength:   1024,
		MaxQueryLength:  4096,
		MaxHeaderLength: 8192,
	}
}

// ValidationError represents an input validation error
type ValidationError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ValidateRequest validates an HTTP request against the input validation rules
func (iv *InputValidation) ValidateRequest(r *http.Request) error {
	if len(r.URL.Path) > iv.MaxPathLength {
		return &ValidationError{Type: "path_length", Message: "Request path too long", Field: "url_path"}
	}
	if len(r.URL.RawQuery) > iv.MaxQueryLength {
		return &ValidationError{Type: "query_length", Message: "Query string too long", Field: "query_string"}
	}
	for name, values := range r.Header {
		for _, value := range values {
			if len(value) > iv.MaxHeaderLength {
				return &ValidationError{Type: "header_length", Message: "Header value too long", Field: name}
			}
		}
	}
	for _, name := range []string{"Host", "X-Forwarded-For", "User-Agent", "Referer"} {
		if value := r.Header.Get(name); value != "" {
			if err := validateHeaderValue(name, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateHeaderValue checks header values for injection patterns
func validateHeaderValue(name, value string) error {
	if !utf8.ValidString(value) {
		return &ValidationError{Type: "invalid_encoding", Message: "Invalid character encoding in header", Field: name}
	}
	if strings.ContainsAny(value, "\x00\r\n") {
		return &ValidationError{Type: "header_injection", Message: "Potential header injection detected", Field: name}
	}
	if name == "Host" && strings.ContainsAny(value, " \t<>\"'") {
		return &ValidationError{Type: "invalid_host", Message: "Invalid characters in Host header", Field: name}
	}
	return nil
}

// ValidationMiddleware wraps an http.Handler with input validation
func ValidationMiddleware(validation *InputValidation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return errors.WrapHandler(func(w http.ResponseWriter, r *http.Request) error {
			if err := validation.ValidateRequest(r); err != nil {
				if ve, ok := err.(*ValidationError); ok {
					logger.Warn("Input validation failed",
						zap.String("type", ve.Type),
						zap.String("field", ve.Field),
						zap.String("client_ip", r.RemoteAddr),
						zap.String("path", r.URL.Path))
					return errors.ValidationError("INVALID_REQUEST", ve.Message)
				}
				return err
			}
			next.ServeHTTP(w, r)
			return nil
		})
	}
}

// clientIP returns the remote address without the port. middleware.RealIP
// runs first, so proxies' X-Forwarded-For is already applied.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware rejects clients that exceed their token bucket
func RateLimitMiddleware(l Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return errors.WrapHandler(func(w http.ResponseWriter, r *http.Request) error {
			if l != nil && !l.Allow(clientIP(r)) {
				w.Header().Set("Retry-After", "1")
				return errors.RateLimitError(r.URL.Path)
			}
			next.ServeHTTP(w, r)
			return nil
		})
	}
}

// instrument counts requests of one route and records their duration
func instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		metrics.IncrementRequests(route)
		metrics.HTTPRequestDuration.Observe(elapsed.Seconds())
		metrics.AddResponseTime(float64(elapsed.Microseconds()) / 1000)

		logger.FromContext(r.Context()).Debug("Request served",
			zap.String("route", route),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", elapsed))
	})
}
