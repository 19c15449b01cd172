// Package session keeps per-browser state between requests: the column
// selection pair and the last query options used for a report.
package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/Shugur-Network/torstatus/internal/columns"
	"github.com/Shugur-Network/torstatus/internal/config"
	"github.com/Shugur-Network/torstatus/internal/metrics"
	"github.com/Shugur-Network/torstatus/internal/query"
)

// ErrNotFound means the session expired or never existed.
var ErrNotFound = errors.New("session not found")

// Session is one browser's state.
type Session struct {
	ID      string
	Columns columns.State
	Query   query.Options
}

func (s *Session) clone() *Session {
	return &Session{
		ID:      s.ID,
		Columns: s.Columns.Clone(),
		Query:   s.Query.Clone(),
	}
}

// Store holds sessions in memory and expires them after a period without
// access.
type Store struct {
	cache   *ttlcache.Cache[string, *Session]
	initial func() columns.State
	cfg     config.SessionConfig

	// serialises read-modify-write cycles
	mu sync.Mutex
}

// NewStore returns a store whose new sessions start from initial.
func NewStore(cfg config.SessionConfig, initial columns.State) *Store {
	opts := []ttlcache.Option[string, *Session]{
		ttlcache.WithTTL[string, *Session](cfg.TTL),
	}
	if cfg.Capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, *Session](cfg.Capacity))
	}
	cache := ttlcache.New(opts...)

	cache.OnInsertion(func(context.Context, *ttlcache.Item[string, *Session]) {
		metrics.ActiveSessions.Inc()
	})
	cache.OnEviction(func(context.Context, ttlcache.EvictionReason, *ttlcache.Item[string, *Session]) {
		metrics.ActiveSessions.Dec()
	})

	return &Store{
		cache:   cache,
		initial: func() columns.State { return initial.Clone() },
		cfg:     cfg,
	}
}

// Start runs the expiry loop until Stop is called.
func (s *Store) Start() {
	s.cache.Start()
}

// Stop ends the expiry loop.
func (s *Store) Stop() {
	s.cache.Stop()
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	return s.cache.Len()
}

// New creates a session with the initial column pair and no cached query.
func (s *Store) New() *Session {
	sess := &Session{
		ID:      uuid.NewString(),
		Columns: s.initial(),
		Query:   query.Options{},
	}
	s.cache.Set(sess.ID, sess, ttlcache.DefaultTTL)
	return sess.clone()
}

// Get returns a copy of the session and refreshes its expiry.
func (s *Store) Get(id string) (*Session, error) {
	item := s.cache.Get(id)
	if item == nil {
		return nil, ErrNotFound
	}
	return item.Value().clone(), nil
}

// Update applies fn to a copy of the session and stores the result when fn
// succeeds. Updates to the same store never interleave.
func (s *Store) Update(id string, fn func(*Session) error) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(id)
	if item == nil {
		return nil, ErrNotFound
	}
	next := item.Value().clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.cache.Set(id, next, ttlcache.DefaultTTL)
	return next.clone(), nil
}

// Load returns the request's session, creating one and setting the cookie
// when the request carries none or an expired one.
func (s *Store) Load(w http.ResponseWriter, r *http.Request) *Session {
	if c, err := r.Cookie(s.cfg.CookieName); err == nil {
		if sess, err := s.Get(c.Value); err == nil {
			return sess
		}
	}
	sess := s.New()
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(s.cfg.TTL),
	})
	return sess
}
