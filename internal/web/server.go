// Package web serves the relay report: the HTML table with its search form
// and sort links, the column preference editor, relay details, CSV exports
// and the exit-check API.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Shugur-Network/torstatus/internal/columns"
	"github.com/Shugur-Network/torstatus/internal/config"
	apperrors "github.com/Shugur-Network/torstatus/internal/errors"
	"github.com/Shugur-Network/torstatus/internal/logger"
	"github.com/Shugur-Network/torstatus/internal/models"
	"github.com/Shugur-Network/torstatus/internal/query"
	"github.com/Shugur-Network/torstatus/internal/report"
	"github.com/Shugur-Network/torstatus/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// RelayStore is the read side of the relay store.
type RelayStore interface {
	CurrentRelays(ctx context.Context, spec *query.Spec) ([]models.Relay, error)
	RelayByFingerprint(ctx context.Context, fingerprint string) (*models.Relay, error)
	LatestValidAfter(ctx context.Context) (time.Time, error)
}

// ExitChecker answers exit-address lookups.
type ExitChecker interface {
	Lookup(ctx context.Context, ip string) ([]models.Relay, error)
	InSubnet(ctx context.Context, subnet string) ([]string, error)
	BuiltAt() time.Time
}

// Limiter decides whether a client may make another request.
type Limiter interface {
	Allow(key string) bool
}

// Deps groups the collaborators of a Server. Health and Limiter may be nil.
type Deps struct {
	Store    RelayStore
	Exits    ExitChecker
	Sessions *session.Store
	Limiter  Limiter
	Health   http.HandlerFunc
}

// Server is the report web server
type Server struct {
	general   config.GeneralConfig
	cfg       config.WebConfig
	deps      Deps
	editor    *columns.Editor
	templates *template.Template
	logger    *zap.Logger
	httpSrv   *http.Server
}

// NewServer parses the templates and builds the server.
func NewServer(general config.GeneralConfig, cfg config.WebConfig, deps Deps) (*Server, error) {
	if deps.Store == nil || deps.Sessions == nil || deps.Exits == nil {
		return nil, errors.New("web: store, exit index and session store are required")
	}
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	return &Server{
		general:   general,
		cfg:       cfg,
		deps:      deps,
		editor:    columns.NewEditor(report.ColumnNames()),
		templates: tmpl,
		logger:    logger.New("web"),
	}, nil
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(apperrors.RequestIDMiddleware)
	r.Use(apperrors.RecoveryMiddleware)
	r.Use(ValidationMiddleware(DefaultInputValidation()))
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))

	static, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", instrument("static",
		http.StripPrefix("/static/", http.FileServer(http.FS(static)))))
	if s.deps.Health != nil {
		r.Handle("/health", instrument("health", s.deps.Health))
	}

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(s.deps.Limiter))

		r.Group(func(r chi.Router) {
			r.Use(SecurityMiddleware(DefaultSecurityHeaders()))
			r.Method(http.MethodGet, "/", instrument("report", apperrors.WrapHandler(s.handleReport)))
			r.Method(http.MethodGet, "/columnpreferences", instrument("columns", apperrors.WrapHandler(s.handleColumns)))
			r.Method(http.MethodPost, "/columnpreferences", instrument("columns", apperrors.WrapHandler(s.handleColumnEdit)))
			r.Method(http.MethodGet, "/details/{fingerprint}", instrument("details", apperrors.WrapHandler(s.handleDetails)))
			r.Method(http.MethodGet, "/details/{address}/whois", instrument("details", apperrors.WrapHandler(s.handleWhois)))
			r.Method(http.MethodGet, "/"+sortParamPattern, instrument("sort", apperrors.WrapHandler(s.handleSort)))
		})

		r.Group(func(r chi.Router) {
			r.Use(SecurityMiddleware(APISecurityHeaders()))
			r.Method(http.MethodGet, "/current_results.csv", instrument("csv", apperrors.WrapHandler(s.handleReportCSV)))
			r.Method(http.MethodGet, "/all_ips.csv", instrument("csv", apperrors.WrapHandler(s.handleAddressCSV(false))))
			r.Method(http.MethodGet, "/all_exit_ips.csv", instrument("csv", apperrors.WrapHandler(s.handleAddressCSV(true))))
			r.Method(http.MethodGet, "/api/exit", instrument("exit", apperrors.WrapHandler(s.handleExitCheck)))
		})
	})

	r.NotFound(apperrors.WrapHandler(func(w http.ResponseWriter, r *http.Request) error {
		return apperrors.NotFoundError("Page")
	}).ServeHTTP)
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Report server listening", zap.String("addr", s.cfg.ListenAddr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down report server: %w", err)
	}
	s.logger.Info("Report server stopped")
	return nil
}
