package metrics

import (
	"sync"
	"time"
)

// SlidingWindow counts events over the trailing window.
type SlidingWindow struct {
	mu      sync.Mutex
	events  []int64 // unix seconds, oldest first
	window  time.Duration
	maxSize int
	now     func() time.Time
}

// NewSlidingWindow creates a window that keeps at most maxSize events.
func NewSlidingWindow(window time.Duration, maxSize int) *SlidingWindow {
	return &SlidingWindow{
		events:  make([]int64, 0, maxSize),
		window:  window,
		maxSize: maxSize,
		now:     time.Now,
	}
}

func (sw *SlidingWindow) cutoff() int64 {
	return sw.now().Unix() - int64(sw.window.Seconds())
}

// Add records one event now.
func (sw *SlidingWindow) Add() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.events = append(sw.events, sw.now().Unix())

	cutoff := sw.cutoff()
	i := 0
	for i < len(sw.events) && sw.events[i] < cutoff {
		i++
	}
	if i > 0 {
		sw.events = sw.events[i:]
	}
	if len(sw.events) > sw.maxSize {
		sw.events = sw.events[len(sw.events)-sw.maxSize:]
	}
}

// Rate returns events per second over the window.
func (sw *SlidingWindow) Rate() float64 {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	cutoff := sw.cutoff()
	count := 0
	for _, ts := range sw.events {
		if ts >= cutoff {
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return float64(count) / sw.window.Seconds()
}

// requestWindow tracks report traffic for the health endpoint.
var requestWindow = NewSlidingWindow(60*time.Second, 100000)

// GetRequestsPerSecond returns the request rate over the last minute.
func GetRequestsPerSecond() float64 {
	return requestWindow.Rate()
}
