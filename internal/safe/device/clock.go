package device

import (
	"context"
	"sync"
	"time"
)

// Clock sleeps on the wall clock.
type Clock struct{}

func (Clock) Sleep(ctx context.Context, d time.Duration) error {
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

// FakeDelayer returns immediately and records every requested duration.
type FakeDelayer struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (f *FakeDelayer) Sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.slept = append(f.slept, d)
	f.mu.Unlock()
	return ctx.Err()
}

func (f *FakeDelayer) Slept() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.slept...)
}

// Total is the sum of every recorded sleep.
func (f *FakeDelayer) Total() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum time.Duration
	for _, d := range f.slept {
		sum += d
	}
	return sum
}

func (f *FakeDelayer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slept = nil
}
