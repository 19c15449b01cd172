package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shugur-Network/torstatus/internal/columns"
	"github.com/Shugur-Network/torstatus/internal/config"
	"github.com/Shugur-Network/torstatus/internal/query"
)

func newStore(ttl time.Duration) *Store {
	initial := columns.NewState([]string{"Router Name", "IP", "Exit"}, []string{"Router Name"})
	return NewStore(config.SessionConfig{TTL: ttl, CookieName: "sid"}, initial)
}

func TestStore_NewAndGet(t *testing.T) {
	s := newStore(time.Hour)

	sess := s.New()
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, []string{"Router Name"}, sess.Columns.Current)
	assert.Equal(t, []string{"IP", "Exit"}, sess.Columns.Available)

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_UpdateIsolation(t *testing.T) {
	s := newStore(time.Hour)
	sess := s.New()

	_, err := s.Update(sess.ID, func(x *Session) error {
		x.Query = query.Options{"isexit": "yes"}
		x.Columns.Current = append(x.Columns.Current, "IP")
		return nil
	})
	require.NoError(t, err)

	// a failed update leaves the stored session alone
	_, err = s.Update(sess.ID, func(x *Session) error {
		x.Query["isexit"] = "no"
		return errors.New("boom")
	})
	require.Error(t, err)

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, query.Options{"isexit": "yes"}, got.Query)
	assert.Equal(t, []string{"Router Name", "IP"}, got.Columns.Current)

	// mutating a returned copy does not reach the store
	got.Query["isexit"] = "no"
	again, _ := s.Get(sess.ID)
	assert.Equal(t, "yes", again.Query["isexit"])

	_, err = s.Update("missing", func(*Session) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Expiry(t *testing.T) {
	s := newStore(10 * time.Millisecond)
	sess := s.New()
	time.Sleep(30 * time.Millisecond)

	_, err := s.Get(sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_LoadSetsCookie(t *testing.T) {
	s := newStore(time.Hour)

	rec := httptest.NewRecorder()
	sess := s.Load(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "sid", cookies[0].Name)
	assert.Equal(t, sess.ID, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	again := s.Load(rec, req)
	assert.Equal(t, sess.ID, again.ID)
	assert.Empty(t, rec.Result().Cookies())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "stale"})
	rec = httptest.NewRecorder()
	fresh := s.Load(rec, req)
	assert.NotEqual(t, "stale", fresh.ID)
	assert.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, 2, s.Len())
}
