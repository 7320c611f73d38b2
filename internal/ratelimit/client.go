package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiters hands out one token bucket per client. Buckets refill at
// limit per window with a burst of limit. It guards the cheap public
// endpoints where smoothing bursts matters more than an exact window.
type ClientLimiters struct {
	limit  rate.Limit
	burst  int
	idle   time.Duration
	now    func() time.Time
	mu     sync.Mutex
	byName map[string]*clientLimiter
}

func NewClientLimiters(limit int, window time.Duration) *ClientLimiters {
	return &ClientLimiters{
		limit:  rate.Limit(float64(limit) / window.Seconds()),
		burst:  limit,
		idle:   3 * window,
		now:    time.Now,
		byName: make(map[string]*clientLimiter),
	}
}

func (c *ClientLimiters) Allow(client string) bool {
	c.mu.Lock()
	l, exists := c.byName[client]
	if !exists {
		l = &clientLimiter{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.byName[client] = l
	}
	now := c.now()
	l.lastSeen = now
	c.mu.Unlock()

	return l.limiter.AllowN(now, 1)
}

// Sweep forgets clients not seen for three windows.
func (c *ClientLimiters) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for name, l := range c.byName {
		if c.now().Sub(l.lastSeen) > c.idle {
			delete(c.byName, name)
			removed++
		}
	}
	return removed
}
