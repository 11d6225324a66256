package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type RateLimiter interface {
	Wait(ctx context.Context) error
}

// OriginLimiter throttles navigations towards the scraped origin. It is
// shared by every session in the process.
type OriginLimiter struct {
	limiter *rate.Limiter
}

// NewOriginLimiter allows perSecond navigations with the given burst.
// A non-positive rate disables limiting.
func NewOriginLimiter(perSecond float64, burst int) *OriginLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}

	return &OriginLimiter{limiter: rate.NewLimiter(limit, burst)}
}

func Unlimited() *OriginLimiter {
	return NewOriginLimiter(0, 1)
}

func (o *OriginLimiter) Wait(ctx context.Context) error {
	return o.limiter.Wait(ctx)
}

// randSource guards math/rand for concurrent callers of Between.
type randSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

var jitterSource = &randSource{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}

func (r *randSource) int63n(n int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Int63n(n)
}

// Between returns a random duration in [min, max).
func Between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}

	delta := max - min
	return min + time.Duration(jitterSource.int63n(int64(delta)))
}
