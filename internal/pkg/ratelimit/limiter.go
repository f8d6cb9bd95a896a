package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a sliding-window throttle: at most limit calls per window.
// Wait suspends the caller until a slot frees up instead of rejecting, so
// callers always eventually proceed in arrival order of lock acquisition.
type Limiter struct {
	limit  int
	window time.Duration

	mu         sync.Mutex
	timestamps []time.Time
	now        func() time.Time // swapped in tests
	sleep      func(context.Context, time.Duration) error
}

func NewLimiter(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Wait blocks until the call may proceed, then records it. Returns early only
// when ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)

		if len(l.timestamps) < l.limit {
			l.timestamps = append(l.timestamps, now)
			l.mu.Unlock()
			return nil
		}

		wait := l.window - now.Sub(l.timestamps[0])
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Delay reports how long a call arriving now would have to wait. Zero means
// it would proceed immediately.
func (l *Limiter) Delay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)
	if len(l.timestamps) < l.limit {
		return 0
	}
	return l.window - now.Sub(l.timestamps[0])
}

func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	keep := l.timestamps[:0]
	for _, ts := range l.timestamps {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	l.timestamps = keep
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
