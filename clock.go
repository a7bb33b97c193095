package main

import (
	"context"
	"time"
)

// Clock is the time source for every phase. All waits are cancellable.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
	// SleepUntil returns once Now() is at or past t.
	SleepUntil(ctx context.Context, t time.Time) error
}

// nowFunc is satisfied by *TimeSync.
type nowFunc interface {
	Now() time.Time
}

// systemClock reads wall time from src (optionally offset by a time sync)
// and waits on monotonic timers.
type systemClock struct {
	src nowFunc
	// tick caps a single timer wait so an offset resync or a wall clock
	// step is noticed within one tick.
	tick time.Duration
}

type localTime struct{}

func (localTime) Now() time.Time { return time.Now() }

func newSystemClock(src nowFunc, tick time.Duration) *systemClock {
	if src == nil {
		src = localTime{}
	}
	if tick <= 0 {
		tick = 500 * time.Millisecond
	}
	return &systemClock{src: src, tick: tick}
}

func (c *systemClock) Now() time.Time { return c.src.Now() }

func (c *systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *systemClock) SleepUntil(ctx context.Context, t time.Time) error {
	for {
		remaining := t.Sub(c.Now())
		if remaining <= 0 {
			return nil
		}
		if remaining > c.tick {
			remaining = c.tick
		}
		if err := c.Sleep(ctx, remaining); err != nil {
			return err
		}
	}
}
