package server

import (
	"sync"
	"time"

	"github.com/hearthchat/hearth/internal/metrics"
)

// rateLimiter is a token bucket refilled continuously at capacity/interval.
// Denials are counted against the service-wide drop metric here so every
// caller gets the same accounting.
type rateLimiter struct {
	mu        sync.Mutex
	tokens    float64
	capacity  float64
	rate      float64
	lastCheck time.Time
	denied    uint64
}

func newRateLimiter(capacity int, interval time.Duration) *rateLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	rate := float64(capacity) / interval.Seconds()
	if rate <= 0 {
		rate = float64(capacity)
	}

	return &rateLimiter{
		tokens:    float64(capacity),
		capacity:  float64(capacity),
		rate:      rate,
		lastCheck: time.Now(),
	}
}

func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.lastCheck).Seconds()
	rl.lastCheck = now

	if elapsed > 0 {
		rl.tokens += elapsed * rl.rate
		if rl.tokens > rl.capacity {
			rl.tokens = rl.capacity
		}
	}

	if rl.tokens < 1 {
		rl.denied++
		metrics.RateLimitDrops.Inc()
		return false
	}

	rl.tokens--
	return true
}

// deniedCount returns how many requests this limiter has rejected.
func (rl *rateLimiter) deniedCount() uint64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.denied
}
