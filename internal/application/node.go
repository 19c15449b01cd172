package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Shugur-Network/torstatus/internal/config"
	"github.com/Shugur-Network/torstatus/internal/constants"
	"github.com/Shugur-Network/torstatus/internal/limiter"
	"github.com/Shugur-Network/torstatus/internal/logger"
	"github.com/Shugur-Network/torstatus/internal/session"
	"github.com/Shugur-Network/torstatus/internal/storage"
	"github.com/Shugur-Network/torstatus/internal/web"
)

// Node ties together the components of a running report server.
type Node struct {
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config

	store     storage.Store
	exits     *storage.ExitIndex
	scheduler *cron.Cron
	sessions  *session.Store
	limiter   *limiter.ClientLimiter
	server    *web.Server

	metricsSrv *http.Server
	wg         sync.WaitGroup
	startTime  time.Time
}

// New creates and configures a Node using the NodeBuilder pattern.
func New(ctx context.Context, cfg *config.Config) (*Node, error) {
	builder := NewNodeBuilder(ctx, cfg)

	if err := builder.BuildDB(); err != nil {
		return nil, fmt.Errorf("failed building db: %w", err)
	}
	if err := builder.BuildExitIndex(); err != nil {
		return nil, fmt.Errorf("failed building exit index: %w", err)
	}
	builder.BuildSessions()
	builder.BuildRateLimiter()
	builder.BuildHealth()

	node, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build node: %w", err)
	}
	return node, nil
}

// Start runs the background loops and the report server. It returns once
// everything is running; Shutdown stops it.
func (n *Node) Start(ctx context.Context) error {
	n.startTime = time.Now()

	n.wg.Add(2)
	go func() {
		defer n.wg.Done()
		n.sessions.Start()
	}()
	go func() {
		defer n.wg.Done()
		n.limiter.Run(n.ctx)
	}()
	n.scheduler.Start()

	if n.config.Metrics.Enabled {
		n.startMetrics()
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.server.ListenAndServe(n.ctx); err != nil {
			logger.Error("Report server error", zap.Error(err))
			n.cancel()
		}
	}()

	logger.Debug("Node started",
		zap.String("listen_addr", n.config.Web.ListenAddr),
		zap.Bool("metrics", n.config.Metrics.Enabled))
	return nil
}

func (n *Node) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	n.metricsSrv = &http.Server{
		Addr:              ":" + strconv.Itoa(n.config.Metrics.Port),
		Handler:           mux,
		ReadHeaderTimeout: n.config.Web.ReadTimeout,
	}
	go func() {
		logger.Info("Metrics listening", zap.String("addr", n.metricsSrv.Addr))
		if err := n.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()
}

// Shutdown gracefully shuts down the node.
func (n *Node) Shutdown() {
	logger.Info("Initiating graceful shutdown...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.NodeShutdownTimeout)
	defer cancel()

	var shutdownErrors []error

	// Step 1: stop scheduled exit index refreshes
	<-n.scheduler.Stop().Done()

	// Step 2: cancel the node context; the report server drains in-flight
	// requests
	n.cancel()
	n.sessions.Stop()

	if n.metricsSrv != nil {
		if err := n.metricsSrv.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server: %w", err))
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		n.wg.Wait()
	}()
	select {
	case <-done:
		logger.Debug("Background loops finished")
	case <-shutdownCtx.Done():
		shutdownErrors = append(shutdownErrors, fmt.Errorf("background loops did not stop within %v", constants.NodeShutdownTimeout))
	}

	// Step 3: close the store
	if err := n.shutdownDatabase(shutdownCtx); err != nil {
		shutdownErrors = append(shutdownErrors, err)
	}

	if len(shutdownErrors) > 0 {
		logger.Warn("Node shutdown completed with errors",
			zap.Int("error_count", len(shutdownErrors)),
			zap.Errors("errors", shutdownErrors))
		return
	}
	logger.Info("Node shutdown completed successfully")
}

// shutdownDatabase closes the store, retrying failed attempts.
func (n *Node) shutdownDatabase(ctx context.Context) error {
	var lastErr error
	for i := 0; i < constants.MaxDBRetries; i++ {
		if err := n.store.Close(); err != nil {
			lastErr = err
			logger.Warn("Failed to close database, retrying...",
				zap.Int("attempt", i+1),
				zap.Int("max_attempts", constants.MaxDBRetries),
				zap.Error(err))
			select {
			case <-time.After(constants.DBRetryDelay):
				continue
			case <-ctx.Done():
				return fmt.Errorf("database shutdown timed out during retry delay: %w", ctx.Err())
			}
		}
		return nil
	}
	return fmt.Errorf("database shutdown failed after %d retries: %w", constants.MaxDBRetries, lastErr)
}
