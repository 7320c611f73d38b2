package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is an exact sliding-window log: it admits at most limit
// requests per key within any trailing window.
type MemoryLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	fresh := prune(m.hits[key], now.Add(-m.window))

	if len(fresh) >= m.limit {
		m.hits[key] = fresh
		return Decision{
			Allowed:    false,
			Count:      len(fresh),
			Limit:      m.limit,
			RetryAfter: fresh[0].Add(m.window).Sub(now),
		}, nil
	}

	fresh = append(fresh, now)
	m.hits[key] = fresh
	return Decision{Allowed: true, Count: len(fresh), Limit: m.limit}, nil
}

// Sweep drops keys whose hits have all left the window.
func (m *MemoryLimiter) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.window)
	removed := 0
	for key, times := range m.hits {
		if fresh := prune(times, cutoff); len(fresh) == 0 {
			delete(m.hits, key)
			removed++
		} else {
			m.hits[key] = fresh
		}
	}
	return removed
}

// prune keeps the hits strictly after cutoff. times is in ascending order.
func prune(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	return append([]time.Time(nil), times[i:]...)
}
