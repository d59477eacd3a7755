package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Waiter blocks until the next request may be sent
type Waiter interface {
	Wait(ctx context.Context) error
}

// Limiter is a Waiter that can also be polled and reset
type Limiter interface {
	Waiter
	Allow() bool
	Reset()
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pacer waits a uniformly random duration in [min, max] on every call
type Pacer struct {
	min, max time.Duration
	sleep    SleepFunc

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewPacer creates a Pacer. A max below min is raised to min.
func NewPacer(min, max time.Duration) *Pacer {
	if max < min {
		max = min
	}
	return &Pacer{
		min:   min,
		max:   max,
		sleep: Sleep,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithSleep replaces the sleep function, for tests
func (p *Pacer) WithSleep(s SleepFunc) *Pacer {
	p.sleep = s
	return p
}

// Delay draws the next delay
func (p *Pacer) Delay() time.Duration {
	if p.max == p.min {
		return p.min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.min + time.Duration(p.rnd.Int63n(int64(p.max-p.min)+1))
}

// Wait sleeps for the next delay
func (p *Pacer) Wait(ctx context.Context) error {
	return p.sleep(ctx, p.Delay())
}

// TokenBucket allows n events per period with bursts of up to n
type TokenBucket struct {
	limiter *rate.Limiter
	n       int
	period  time.Duration
}

// NewTokenBucket creates a bucket that starts full
func NewTokenBucket(n int, period time.Duration) *TokenBucket {
	if n <= 0 {
		n = 1
	}
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Every(period/time.Duration(n)), n),
		n:       n,
		period:  period,
	}
}

// Allow takes a token if one is available
func (tb *TokenBucket) Allow() bool {
	return tb.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done
func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.limiter.Wait(ctx)
}

// Reset refills the bucket
func (tb *TokenBucket) Reset() {
	tb.limiter = rate.NewLimiter(rate.Every(tb.period/time.Duration(tb.n)), tb.n)
}
