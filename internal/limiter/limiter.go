package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/Shugur-Network/torstatus/internal/config"
	"github.com/Shugur-Network/torstatus/internal/logger"
	"github.com/Shugur-Network/torstatus/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// client tracks the token bucket of one remote address.
type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter applies a token bucket per client key (normally the remote
// IP). Buckets idle for longer than the configured TTL are dropped by
// Cleanup.
type ClientLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	cfg     config.RateLimitConfig
	now     func() time.Time
}

// NewClientLimiter creates a limiter from config.
func NewClientLimiter(cfg config.RateLimitConfig) *ClientLimiter {
	return &ClientLimiter{
		clients: make(map[string]*client),
		cfg:     cfg,
		now:     time.Now,
	}
}

// Allow reports whether a request from key may proceed.
func (cl *ClientLimiter) Allow(key string) bool {
	if !cl.cfg.Enabled || key == "" {
		return true
	}

	cl.mu.Lock()
	now := cl.now()
	c, ok := cl.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(cl.cfg.RequestsPerSecond), cl.cfg.Burst)}
		cl.clients[key] = c
	}
	c.lastSeen = now
	allowed := c.limiter.AllowN(now, 1)
	cl.mu.Unlock()

	if !allowed {
		metrics.RateLimited.Inc()
		logger.Debug("Rate limit exceeded", zap.String("client", key))
	}
	return allowed
}

// Cleanup removes buckets idle longer than the TTL and returns how many
// were removed.
func (cl *ClientLimiter) Cleanup() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := cl.now()
	removed := 0
	for key, c := range cl.clients {
		if now.Sub(c.lastSeen) > cl.cfg.IdleTTL {
			delete(cl.clients, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients.
func (cl *ClientLimiter) Len() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.clients)
}

// Run calls Cleanup every IdleTTL until ctx is done.
func (cl *ClientLimiter) Run(ctx context.Context) {
	if !cl.cfg.Enabled {
		return
	}
	ticker := time.NewTicker(cl.cfg.IdleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := cl.Cleanup(); n > 0 {
				logger.Debug("Dropped idle rate limit buckets", zap.Int("count", n))
			}
		}
	}
}
