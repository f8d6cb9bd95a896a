package ratelimit

import (
	"context"
	"testing"
	"time"
)

// fakeClock drives the limiter without real sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func newTestLimiter(limit int, window time.Duration) (*Limiter, *fakeClock, *[]time.Duration) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	var slept []time.Duration
	l := NewLimiter(limit, window)
	l.now = clock.now
	l.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		clock.t = clock.t.Add(d)
		return nil
	}
	return l, clock, &slept
}

func TestLimiter_UnderCapacityProceedsImmediately(t *testing.T) {
	l, _, slept := newTestLimiter(3, time.Second)
	for i := 0; i < 3; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error: %v", err)
		}
	}
	if len(*slept) != 0 {
		t.Errorf("expected no sleeps under capacity, got %v", *slept)
	}
}

func TestLimiter_OverCapacityDelaysByWindowRemainder(t *testing.T) {
	l, clock, slept := newTestLimiter(2, time.Second)

	_ = l.Wait(context.Background())
	clock.t = clock.t.Add(300 * time.Millisecond)
	_ = l.Wait(context.Background())
	clock.t = clock.t.Add(100 * time.Millisecond)

	// Third call inside the window: must wait window - elapsed-since-oldest = 600ms.
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if len(*slept) == 0 {
		t.Fatal("third call should have slept")
	}
	if (*slept)[0] != 600*time.Millisecond {
		t.Errorf("slept %v, want 600ms", (*slept)[0])
	}
}

func TestLimiter_WindowExpiryFreesSlots(t *testing.T) {
	l, clock, slept := newTestLimiter(1, time.Second)
	_ = l.Wait(context.Background())
	clock.t = clock.t.Add(1100 * time.Millisecond)
	_ = l.Wait(context.Background())
	if len(*slept) != 0 {
		t.Errorf("call after window expiry should not sleep, slept %v", *slept)
	}
}

func TestLimiter_CancelledContext(t *testing.T) {
	l := NewLimiter(1, time.Hour)
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx); err == nil {
		t.Error("Wait() with cancelled context should return an error")
	}
}
