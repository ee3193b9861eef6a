package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// visitor is the token bucket for one rate-limit key.
type visitor struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// MemoryLimiter implements Limiter with an in-memory token bucket per key.
//
// Each key gets an independent bucket with a configurable refill rate
// (tokens per second) and burst capacity. A background goroutine evicts
// stale entries every minute to bound memory.
type MemoryLimiter struct {
	rate  rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*visitor

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryLimiter creates a token bucket limiter.
//   - rps: sustained requests per second per key
//   - burst: maximum burst size (token bucket capacity)
//
// A background goroutine evicts keys not accessed in the last 10 minutes.
// Call Close to stop it.
func NewMemoryLimiter(rps float64, burst int) *MemoryLimiter {
	m := &MemoryLimiter{
		rate:     rate.Limit(rps),
		burst:    burst,
		visitors: make(map[string]*visitor),
		done:     make(chan struct{}),
	}
	go m.cleanup()
	return m
}

// Allow consumes one token from the bucket for key.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	v, ok := m.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(m.rate, m.burst)}
		m.visitors[key] = v
	}
	v.lastAccess = time.Now()
	m.mu.Unlock()

	return v.limiter.Allow(), nil
}

// Len returns the number of tracked keys.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.visitors)
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

const staleThreshold = 10 * time.Minute

// cleanup periodically evicts buckets that haven't been accessed recently.
func (m *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictStale(time.Now().Add(-staleThreshold))
		}
	}
}

func (m *MemoryLimiter) evictStale(cutoff time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, v := range m.visitors {
		if v.lastAccess.Before(cutoff) {
			delete(m.visitors, key)
		}
	}
}
