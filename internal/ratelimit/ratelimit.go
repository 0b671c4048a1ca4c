// Package ratelimit counts requests per key (a client IP) and decides
// whether another one is allowed.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter reports whether one more request for key fits in the budget.
// The request is counted when it is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

var _ Limiter = (*Memory)(nil)

// Memory keeps a log of request times per key in process memory. It is a
// sliding window: a request is allowed when fewer than limit requests were
// seen in the last window.
type Memory struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
}

func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-m.window)

	// drop expired entries; the log is in time order
	requests := m.requests[key]
	i := 0
	for ; i < len(requests); i++ {
		if requests[i].After(cutoff) {
			break
		}
	}
	requests = requests[i:]

	if len(requests) >= m.limit {
		m.requests[key] = requests
		return false, nil
	}

	m.requests[key] = append(requests, now)
	return true, nil
}

// Sweep forgets keys with no request inside the window. The server calls
// it periodically so idle clients do not pin memory.
func (m *Memory) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.window)
	for key, requests := range m.requests {
		if len(requests) == 0 || !requests[len(requests)-1].After(cutoff) {
			delete(m.requests, key)
		}
	}
}
