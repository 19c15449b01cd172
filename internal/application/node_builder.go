package application

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Shugur-Network/torstatus/internal/columns"
	"github.com/Shugur-Network/torstatus/internal/config"
	"github.com/Shugur-Network/torstatus/internal/constants"
	"github.com/Shugur-Network/torstatus/internal/errors"
	"github.com/Shugur-Network/torstatus/internal/health"
	"github.com/Shugur-Network/torstatus/internal/limiter"
	"github.com/Shugur-Network/torstatus/internal/logger"
	"github.com/Shugur-Network/torstatus/internal/metrics"
	"github.com/Shugur-Network/torstatus/internal/report"
	"github.com/Shugur-Network/torstatus/internal/session"
	"github.com/Shugur-Network/torstatus/internal/storage"
	"github.com/Shugur-Network/torstatus/internal/web"
)

// NodeBuilder is used to incrementally construct a Node instance.
type NodeBuilder struct {
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config

	store     storage.Store
	exits     *storage.ExitIndex
	scheduler *cron.Cron
	sessions  *session.Store
	limiter   *limiter.ClientLimiter
	health    *health.HealthChecker
}

// NewNodeBuilder creates a new NodeBuilder with its own cancelable context.
func NewNodeBuilder(ctx context.Context, cfg *config.Config) *NodeBuilder {
	c, cancel := context.WithCancel(ctx)
	return &NodeBuilder{
		ctx:    c,
		cancel: cancel,
		config: cfg,
	}
}

// small helpers
func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func allExist(paths ...string) bool {
	for _, p := range paths {
		if !fileExists(p) {
			return false
		}
	}
	return true
}

// replaceDBNameInURL replaces the database name in a PostgreSQL connection URL.
func replaceDBNameInURL(connURL string, newDB string) string {
	schemeEnd := strings.Index(connURL, "://")
	if schemeEnd == -1 {
		return connURL
	}
	rest := connURL[schemeEnd+3:]
	slashIdx := strings.Index(rest, "/")
	if slashIdx == -1 {
		return connURL + "/" + newDB
	}
	afterSlash := rest[slashIdx+1:]
	qIdx := strings.Index(afterSlash, "?")
	if qIdx == -1 {
		return connURL[:schemeEnd+3+slashIdx+1] + newDB
	}
	return connURL[:schemeEnd+3+slashIdx+1] + newDB + afterSlash[qIdx:]
}

// postgresURIs returns the URI used to provision the database and the URI
// of the torstatus database itself.
func postgresURIs(dbCfg config.DatabaseConfig) (defaultURI, targetURI string) {
	const (
		caPath    = "./certs/ca.crt"
		rootCert  = "./certs/client.root.crt"
		rootKey   = "./certs/client.root.key"
		defaultDB = "postgres"
	)
	dbName := constants.DatabaseName

	if dbCfg.URL != "" {
		logger.Info("Building database connection (URL mode)")
		return dbCfg.URL, replaceDBNameInURL(dbCfg.URL, dbName)
	}

	host, port := dbCfg.Server, dbCfg.Port
	if fileExists(caPath) && allExist(rootCert, rootKey) {
		logger.Info("Building database connection (secure mode, verify-full)",
			zap.String("server", host),
			zap.Int("port", port))
		tmpl := "postgres://%s@%s:%d/%s?sslmode=verify-full&sslrootcert=%s&sslcert=%s&sslkey=%s"
		return fmt.Sprintf(tmpl, "postgres", host, port, defaultDB, caPath, rootCert, rootKey),
			fmt.Sprintf(tmpl, "postgres", host, port, dbName, caPath, rootCert, rootKey)
	}

	logger.Info("Building database connection (insecure mode)",
		zap.String("server", host),
		zap.Int("port", port),
		zap.Bool("certs_found", false))
	return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=disable", "postgres", host, port, defaultDB),
		fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=disable", "postgres", host, port, dbName)
}

// OpenStore opens the configured backend and makes sure its schema exists.
func OpenStore(ctx context.Context, dbCfg config.DatabaseConfig) (storage.Store, error) {
	if dbCfg.Driver == "sqlite" {
		logger.Info("Opening SQLite database", zap.String("path", dbCfg.SQLitePath))
		db, err := storage.OpenSQLite(ctx, dbCfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	}

	defaultURI, targetURI := postgresURIs(dbCfg)
	logger.Info("Connecting to default database to check/create target database...")
	defaultConn, err := storage.InitDB(ctx, defaultURI, dbCfg.MaxConnections)
	if err != nil {
		logger.Warn("Connection to default database failed; skipping create step (assuming provisioned).", zap.Error(err))
	} else {
		if err := defaultConn.CreateDatabaseIfNotExists(ctx, constants.DatabaseName); err != nil {
			logger.Warn("CreateDatabaseIfNotExists failed; continuing (database may already exist or insufficient privileges).", zap.Error(err))
		}
		if err := defaultConn.Close(); err != nil {
			logger.Warn("Failed to close default database connection", zap.Error(err))
		}
	}

	logger.Info("Connecting to target database...", zap.String("db", constants.DatabaseName))
	db, err := storage.InitDB(ctx, targetURI, dbCfg.MaxConnections)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database connection to %s: %w", constants.DatabaseName, err)
	}
	if err := db.InitializeSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	if err := db.VerifySchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database schema verification failed: %w", err)
	}
	return db, nil
}

// BuildDB opens the relay store.
func (b *NodeBuilder) BuildDB() error {
	store, err := OpenStore(b.ctx, b.config.Database)
	if err != nil {
		b.cancel()
		return err
	}
	b.store = store
	return nil
}

// BuildExitIndex loads the exit index from the current snapshot and
// schedules its refresh.
func (b *NodeBuilder) BuildExitIndex() error {
	cfg := b.config.ExitIndex
	b.exits = storage.NewExitIndex(b.store, cfg.Capacity, cfg.FalsePositiveRate)

	refresh := func() {
		n, err := b.exits.Rebuild(b.ctx)
		if err != nil {
			metrics.DBErrors.WithLabelValues("exit_index_failed").Inc()
			logger.Warn("Failed to rebuild exit index", zap.Error(err))
			return
		}
		logger.Debug("Exit index rebuilt", zap.Int("addresses", n))
	}
	refresh()

	b.scheduler = cron.New()
	if _, err := b.scheduler.AddFunc(cfg.Refresh, refresh); err != nil {
		return fmt.Errorf("scheduling exit index refresh %q: %w", cfg.Refresh, err)
	}
	return nil
}

// BuildSessions sets up the session store with the configured default
// columns.
func (b *NodeBuilder) BuildSessions() {
	initial := columns.NewState(report.ColumnNames(), b.config.Web.DefaultColumns)
	b.sessions = session.NewStore(b.config.Session, initial)
}

// BuildRateLimiter sets up the rate limiter.
func (b *NodeBuilder) BuildRateLimiter() {
	b.limiter = limiter.NewClientLimiter(b.config.RateLimit)
}

// BuildHealth sets up the health checker.
func (b *NodeBuilder) BuildHealth() {
	b.health = health.NewHealthChecker(b.store, b.exits, logger.New("node"), config.Version)
}

// Build finalizes the node construction.
func (b *NodeBuilder) Build() (*Node, error) {
	errors.InitErrorHandling()
	logger.Info("Error handling system initialized", zap.String("component", "node_builder"))

	if b.store == nil {
		return nil, fmt.Errorf("database must be built before calling Build()")
	}
	if b.exits == nil || b.scheduler == nil {
		return nil, fmt.Errorf("exit index must be built before calling Build()")
	}
	if b.sessions == nil {
		return nil, fmt.Errorf("session store must be built before calling Build()")
	}
	if b.limiter == nil {
		return nil, fmt.Errorf("rate limiter must be built before calling Build()")
	}
	if b.health == nil {
		return nil, fmt.Errorf("health checker must be built before calling Build()")
	}

	server, err := web.NewServer(b.config.General, b.config.Web, web.Deps{
		Store:    b.store,
		Exits:    b.exits,
		Sessions: b.sessions,
		Limiter:  b.limiter,
		Health:   b.health.HandleHealth,
	})
	if err != nil {
		return nil, fmt.Errorf("building web server: %w", err)
	}

	logger.Debug("Node initialized successfully via builder")
	return &Node{
		ctx:       b.ctx,
		cancel:    b.cancel,
		config:    b.config,
		store:     b.store,
		exits:     b.exits,
		scheduler: b.scheduler,
		sessions:  b.sessions,
		limiter:   b.limiter,
		server:    server,
	}, nil
}
