// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeNowAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := Fake(start)

	if got := fake.Now(); !got.Equal(start) {
		t.Errorf("Now = %v, want %v", got, start)
	}

	fake.Advance(90 * time.Second)
	want := start.Add(90 * time.Second)
	if got := fake.Now(); !got.Equal(want) {
		t.Errorf("Now after Advance = %v, want %v", got, want)
	}
}

func TestFakeAfterFiresAtDeadline(t *testing.T) {
	fake := Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	ch := fake.After(10 * time.Millisecond)

	select {
	case <-ch:
		t.Fatal("After fired before the clock advanced")
	default:
	}

	fake.Advance(9 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("After fired before its deadline")
	default:
	}

	fake.Advance(time.Millisecond)
	select {
	case <-ch:
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFakeAfterNonPositiveFiresImmediately(t *testing.T) {
	fake := Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	select {
	case <-fake.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestFakeSleepUnblocksConcurrentSleeper(t *testing.T) {
	fake := Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	done := make(chan struct{})

	go func() {
		fake.Sleep(50 * time.Millisecond)
		close(done)
	}()

	fake.WaitForSleepers(1)
	fake.Advance(50 * time.Millisecond)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sleeper did not wake after Advance")
	}
}
