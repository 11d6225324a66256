package ratelimit

import (
	"context"
	"time"
)

// Sleeper is the single place the pipeline waits. Tests swap in a recorder
// so no real time passes.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// RealSleeper blocks for d or until ctx is done.
var RealSleeper Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
})

// NoSleep returns immediately.
var NoSleep Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	return nil
})

// Backoff computes Base * 2^attempt plus up to Jitter of random noise,
// capped at Max.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{
		Base:   1 * time.Second,
		Max:    30 * time.Second,
		Jitter: 500 * time.Millisecond,
	}
}

func (b Backoff) Duration(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 16 {
		attempt = 16
	}

	d := b.Base << attempt
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}

	return d + Between(0, b.Jitter)
}

// Window is a randomised pause range used to mimic a human reading a page.
type Window struct {
	Min time.Duration
	Max time.Duration
}

// Pacer sleeps for a random duration inside a Window.
type Pacer struct {
	Sleeper Sleeper
}

func (p Pacer) Pause(ctx context.Context, w Window) error {
	s := p.Sleeper
	if s == nil {
		s = RealSleeper
	}
	return s.Sleep(ctx, Between(w.Min, w.Max))
}
