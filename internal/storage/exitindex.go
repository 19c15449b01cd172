package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Shugur-Network/torstatus/internal/constants"
	"github.com/Shugur-Network/torstatus/internal/logger"
	"github.com/Shugur-Network/torstatus/internal/metrics"
	"github.com/Shugur-Network/torstatus/internal/models"
	"github.com/Shugur-Network/torstatus/internal/query"
	"github.com/Shugur-Network/torstatus/internal/relayutil"
	"github.com/willf/bloom"
	"go.uber.org/zap"
)

// ExitSource supplies current exit relays. Store implements it.
type ExitSource interface {
	// ExitAddresses returns the distinct addresses of current exit relays.
	ExitAddresses(ctx context.Context) ([]string, error)
	CurrentRelays(ctx context.Context, spec *query.Spec) ([]models.Relay, error)
}

// ExitIndex answers "is this address a current exit relay". Only a bloom
// filter of exit addresses is kept in memory: a negative answer is final,
// a positive one is confirmed against the source.
type ExitIndex struct {
	src ExitSource

	mu       sync.RWMutex
	filter   *bloom.BloomFilter
	count    int
	builtAt  time.Time
	capacity uint
	fpRate   float64
}

// NewExitIndex returns an empty index over src sized for capacity
// addresses.
func NewExitIndex(src ExitSource, capacity uint, fpRate float64) *ExitIndex {
	if capacity < constants.ExitIndexMinEntries {
		capacity = constants.ExitIndexMinEntries
	}
	return &ExitIndex{
		src:      src,
		filter:   bloom.NewWithEstimates(capacity, fpRate),
		capacity: capacity,
		fpRate:   fpRate,
	}
}

// Rebuild reloads the filter from the source's current exit addresses and
// returns how many were loaded. On error the previous filter stays.
func (x *ExitIndex) Rebuild(ctx context.Context) (int, error) {
	addrs, err := x.src.ExitAddresses(ctx)
	if err != nil {
		metrics.DBErrors.WithLabelValues("exit_index_failed").Inc()
		return 0, fmt.Errorf("rebuild exit index: %w", err)
	}

	size := x.capacity
	if n := uint(len(addrs)) * 2; n > size {
		size = n
	}
	filter := bloom.NewWithEstimates(size, x.fpRate)
	for _, a := range addrs {
		filter.AddString(a)
	}

	x.mu.Lock()
	x.filter, x.count, x.builtAt = filter, len(addrs), time.Now()
	x.mu.Unlock()

	metrics.ExitIndexSize.Set(float64(len(addrs)))
	metrics.DBOperations.WithLabelValues("exit_index_rebuild").Inc()
	logger.Info("Exit index rebuilt", zap.Int("addresses", len(addrs)))
	return len(addrs), nil
}

// Lookup returns the current exit relays announcing ip. Addresses the
// filter has never seen return without a query.
func (x *ExitIndex) Lookup(ctx context.Context, ip string) ([]models.Relay, error) {
	x.mu.RLock()
	maybe := x.filter.TestString(ip)
	x.mu.RUnlock()
	if !maybe {
		metrics.ExitLookups.WithLabelValues("filtered").Inc()
		return nil, nil
	}

	relays, err := x.src.CurrentRelays(ctx, exitsAt(ip))
	if err != nil {
		return nil, fmt.Errorf("confirm exit %s: %w", ip, err)
	}
	if len(relays) == 0 {
		metrics.ExitLookups.WithLabelValues("false_positive").Inc()
		return nil, nil
	}
	metrics.ExitLookups.WithLabelValues("confirmed").Inc()
	return relays, nil
}

// Contains reports whether ip is a current exit address.
func (x *ExitIndex) Contains(ctx context.Context, ip string) (bool, error) {
	relays, err := x.Lookup(ctx, ip)
	return len(relays) > 0, err
}

// InSubnet lists the current exit addresses inside subnet ("a.b.c.d/n"),
// sorted.
func (x *ExitIndex) InSubnet(ctx context.Context, subnet string) ([]string, error) {
	addrs, err := x.src.ExitAddresses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list exits in %s: %w", subnet, err)
	}
	var out []string
	for _, a := range addrs {
		if relayutil.IPInSubnet(a, subnet) {
			out = append(out, a)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// Len returns the number of addresses loaded by the last rebuild.
func (x *ExitIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.count
}

// BuiltAt returns when the index was last rebuilt.
func (x *ExitIndex) BuiltAt() time.Time {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.builtAt
}

func exitsAt(ip string) *query.Spec {
	return &query.Spec{
		Constraints: []query.Constraint{
			{Field: "isexit", Op: query.OpEquals, Value: int64(1)},
			{Field: "address", Op: query.OpEquals, Value: ip},
		},
		Sort: &query.Sort{Field: "orport", Direction: query.Ascending},
	}
}
