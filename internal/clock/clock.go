// Package clock decouples the harvesting loops from wall-clock sleeps so they
// can be driven deterministically in tests.
package clock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrPollExhausted is returned by Poll when the ceiling is reached before the
// condition holds.
var ErrPollExhausted = errors.New("clock: poll ceiling reached")

// Clock pauses the calling goroutine.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Real sleeps on the wall clock and honours context cancellation.
type Real struct{}

// Sleep blocks for d or until ctx is done.
func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Fake records requested sleeps without blocking.
type Fake struct {
	mu    sync.Mutex
	slept []time.Duration

	// OnSleep, when set, runs after each recorded sleep. Tests use it to
	// mutate fakes between loop iterations.
	OnSleep func(d time.Duration)
}

// Sleep records d and returns immediately.
func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.slept = append(f.slept, d)
	hook := f.OnSleep
	f.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return nil
}

// Slept returns a copy of the recorded sleeps.
func (f *Fake) Slept() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.slept))
	copy(out, f.slept)
	return out
}

// Total returns the sum of the recorded sleeps.
func (f *Fake) Total() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total time.Duration
	for _, d := range f.slept {
		total += d
	}
	return total
}

// Poll calls fn until it reports done, sleeping interval between attempts.
// At most ceiling attempts are made; ceiling <= 0 means no bound. It returns
// the number of attempts made.
func Poll(ctx context.Context, c Clock, interval time.Duration, ceiling int, fn func() (bool, error)) (int, error) {
	for attempt := 1; ceiling <= 0 || attempt <= ceiling; attempt++ {
		done, err := fn()
		if err != nil {
			return attempt, err
		}
		if done {
			return attempt, nil
		}
		if ceiling > 0 && attempt == ceiling {
			break
		}
		if err := c.Sleep(ctx, interval); err != nil {
			return attempt, err
		}
	}
	return ceiling, ErrPollExhausted
}
