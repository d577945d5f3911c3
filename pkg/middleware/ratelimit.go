package middleware

import (
	"sync"
	"time"

	"engagement-ledger/pkg/config"

	"golang.org/x/time/rate"
)

type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key. Idle buckets are evicted on
// access after ttl.
type RateLimiter struct {
	limit    RateLimit
	ttl      time.Duration
	mu       sync.Mutex
	visitors map[string]*rateEntry
	clockNow func() time.Time
}

func NewRateLimiter(limit RateLimit) *RateLimiter {
	return &RateLimiter{
		limit:    limit,
		ttl:      5 * time.Minute,
		visitors: make(map[string]*rateEntry),
		clockNow: time.Now,
	}
}

// NewSubmitLimiter builds the limiter guarding action submission from
// LEDGER.SUBMIT_RATE_PER_MINUTE and LEDGER.SUBMIT_BURST.
func NewSubmitLimiter(cfg *config.Config) *RateLimiter {
	return NewRateLimiter(RateLimit{
		RequestsPerMinute: cfg.Ledger.SubmitRatePerMinute,
		Burst:             cfg.Ledger.SubmitBurst,
	})
}

func (r *RateLimiter) Allow(key string) bool {
	return r.obtainLimiter(key).Allow()
}

func (r *RateLimiter) obtainLimiter(id string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clockNow()
	for k, e := range r.visitors {
		if now.Sub(e.lastSeen) > r.ttl {
			delete(r.visitors, k)
		}
	}

	if entry, ok := r.visitors[id]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	perSecond := r.limit.RequestsPerMinute / 60.0
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := r.limit.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	r.visitors[id] = &rateEntry{limiter: limiter, lastSeen: now}
	return limiter
}
