// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// Fake returns a FakeClock initialized to the given time. Time stands
// still until Advance is called. Sleep and After register pending
// waiters that fire when the clock advances past their deadline.
//
// FakeClock is safe for concurrent use by multiple goroutines.
func Fake(initial time.Time) *FakeClock {
	fake := &FakeClock{current: initial}
	fake.changed = sync.NewCond(&fake.mu)
	return fake
}

// FakeClock is a deterministic Clock for testing. Goroutines that call
// Sleep or After block until Advance moves the clock past their
// deadline.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*waiter
	changed *sync.Cond
}

type waiter struct {
	deadline time.Time
	channel  chan time.Time
	fired    bool
}

// Now returns the fake clock's current time.
func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Sleep blocks until the clock has been advanced past d from now.
func (f *FakeClock) Sleep(d time.Duration) {
	<-f.After(d)
}

// After returns a channel that receives the fire time once the clock
// advances past d from now. If d <= 0, the channel receives
// immediately.
func (f *FakeClock) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- f.current
		return channel
	}
	f.waiters = append(f.waiters, &waiter{
		deadline: f.current.Add(d),
		channel:  channel,
	})
	f.changed.Broadcast()
	return channel
}

// Advance moves the clock forward by d, firing every pending waiter
// whose deadline has been reached, in deadline order.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.current = f.current.Add(d)

	remaining := f.waiters[:0]
	for _, w := range f.waiters {
		if w.fired {
			continue
		}
		if !w.deadline.After(f.current) {
			w.channel <- w.deadline
			w.fired = true
			continue
		}
		remaining = append(remaining, w)
	}
	f.waiters = remaining
	f.changed.Broadcast()
}

// WaitForSleepers blocks until at least n waiters are pending. Call
// this before Advance to eliminate the race between a goroutine
// registering its sleep and the test advancing the clock.
func (f *FakeClock) WaitForSleepers(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.waiters) < n {
		f.changed.Wait()
	}
}
