package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/Shugur-Network/torstatus/internal/models"
	"github.com/Shugur-Network/torstatus/internal/query"
)

// relaySource serves a fixed relay list and counts confirmation queries.
type relaySource struct {
	mu      sync.Mutex
	relays  []models.Relay
	queries int
	fail    bool
}

func (s *relaySource) ExitAddresses(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errors.New("db down")
	}
	var out []string
	for _, r := range s.relays {
		if r.IsExit {
			out = append(out, r.Address)
		}
	}
	return out, nil
}

func (s *relaySource) CurrentRelays(_ context.Context, spec *query.Spec) ([]models.Relay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	if s.fail {
		return nil, errors.New("db down")
	}
	return spec.Apply(s.relays), nil
}

func (s *relaySource) queryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

func exitRelays() []models.Relay {
	return []models.Relay{
		{Fingerprint: fp(1), Nickname: "a", Address: "10.0.0.1", ORPort: 9001, IsExit: true},
		{Fingerprint: fp(2), Nickname: "b", Address: "10.0.0.1", ORPort: 443, IsExit: true},
		{Fingerprint: fp(3), Nickname: "c", Address: "10.0.1.9", ORPort: 9001, IsExit: true},
		{Fingerprint: fp(4), Nickname: "d", Address: "192.168.1.7", ORPort: 80, IsExit: true},
		{Fingerprint: fp(5), Nickname: "e", Address: "10.0.0.2", ORPort: 9001},
	}
}

func TestExitIndex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := &relaySource{relays: exitRelays()}

	x := NewExitIndex(src, 10, 0.01)
	ok, err := x.Contains(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, src.queryCount(), "an empty filter answers without the store")
	assert.True(t, x.BuiltAt().IsZero())

	n, err := x.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, x.Len())
	assert.False(t, x.BuiltAt().IsZero())

	relays, err := x.Lookup(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, []string{fp(2), fp(1)}, fingerprints(relays), "ordered by ORPort")

	ok, err = x.Contains(ctx, "192.168.1.7")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = x.Contains(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.False(t, ok)

	subnet, err := x.InSubnet(ctx, "10.0.0.0/16")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.1.9"}, subnet)
	all, err := x.InSubnet(ctx, "*")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.1.9", "192.168.1.7"}, all)
	none, err := x.InSubnet(ctx, "bogus")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestExitIndex_SkipsStoreForUnknownAddresses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := &relaySource{relays: exitRelays()}

	x := NewExitIndex(src, 1024, 1e-9)
	_, err := x.Rebuild(ctx)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		ok, err := x.Contains(ctx, fmt.Sprintf("172.16.0.%d", i))
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Zero(t, src.queryCount())

	ok, err := x.Contains(ctx, "10.0.1.9")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, src.queryCount())
}

func TestExitIndex_ConfirmsAgainstStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := &relaySource{relays: exitRelays()}

	x := NewExitIndex(src, 1024, 0.001)
	_, err := x.Rebuild(ctx)
	require.NoError(t, err)

	// the relay leaves the snapshot before the next rebuild
	src.mu.Lock()
	src.relays = src.relays[:3]
	src.mu.Unlock()

	ok, err := x.Contains(ctx, "192.168.1.7")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, src.queryCount())

	src.mu.Lock()
	src.fail = true
	src.mu.Unlock()
	_, err = x.Lookup(ctx, "10.0.0.1")
	require.Error(t, err)

	_, err = x.Rebuild(ctx)
	require.Error(t, err)
	assert.Equal(t, 4, x.Len(), "failed rebuild keeps the old filter")
}

func TestExitIndex_FromStore(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	ctx := context.Background()

	x := NewExitIndex(s, 1024, 0.001)
	_, err := x.Rebuild(ctx)
	require.NoError(t, err)

	relays, err := x.Lookup(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, []string{fp(1)}, fingerprints(relays))

	ok, err := x.Contains(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.False(t, ok)

	in, err := x.InSubnet(ctx, "192.168.0.0/16")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.1.7"}, in)
}

func TestExitIndex_AnswersExactMembership(t *testing.T) {
	octet := rapid.IntRange(0, 255)
	addr := rapid.Custom(func(t *rapid.T) string {
		return fmt.Sprintf("10.%d.%d.%d", octet.Draw(t, "b"), octet.Draw(t, "c"), octet.Draw(t, "d"))
	})

	rapid.Check(t, func(t *rapid.T) {
		in := rapid.SliceOfNDistinct(addr, 0, 50, rapid.ID[string]).Draw(t, "in")
		candidate := addr.Draw(t, "candidate")

		src := &relaySource{}
		for i, a := range in {
			src.relays = append(src.relays, models.Relay{Fingerprint: fp(i), Address: a, IsExit: true})
		}
		x := NewExitIndex(src, 1024, 0.01)
		if _, err := x.Rebuild(context.Background()); err != nil {
			t.Fatalf("rebuild: %v", err)
		}

		for _, a := range in {
			if ok, _ := x.Contains(context.Background(), a); !ok {
				t.Fatalf("indexed address %s not found", a)
			}
		}
		want := false
		for _, a := range in {
			want = want || a == candidate
		}
		if ok, _ := x.Contains(context.Background(), candidate); ok != want {
			t.Fatalf("Contains(%s) = %v, want %v", candidate, ok, want)
		}
	})
}
