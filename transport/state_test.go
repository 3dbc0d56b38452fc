// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/fuzzfleet/fuzzfleet/lib/clock"
)

type fuzzerState struct {
	Corpus     []string `cbor:"corpus"`
	Executions uint64   `cbor:"executions"`
}

func testStore(t *testing.T) *stateStore {
	t.Helper()
	return &stateStore{dir: t.TempDir(), tag: NewTag("state-test"), core: 4}
}

func TestStateStoreRoundTrip(t *testing.T) {
	store := testStore(t)

	saved := fuzzerState{Corpus: []string{"a", "bb", "ccc"}, Executions: 42}
	if err := store.save(saved); err != nil {
		t.Fatalf("save: %v", err)
	}

	restored, err := store.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if restored == nil {
		t.Fatal("load returned nil after save")
	}
	var got fuzzerState
	if err := restored.DecodeInto(&got); err != nil {
		t.Fatalf("DecodeInto: %v", err)
	}
	if got.Executions != 42 || len(got.Corpus) != 3 {
		t.Errorf("restored state = %+v, want %+v", got, saved)
	}
}

func TestStateStoreLoadMissingReturnsNil(t *testing.T) {
	restored, err := testStore(t).load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if restored != nil {
		t.Errorf("load of missing snapshot = %+v, want nil", restored)
	}
}

func TestStateStoreSaveOverwritesAtomically(t *testing.T) {
	store := testStore(t)
	if err := store.save(fuzzerState{Executions: 1}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := store.save(fuzzerState{Executions: 2}); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if _, err := os.Stat(store.snapshotPath() + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind after save")
	}

	restored, err := store.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var got fuzzerState
	if err := restored.DecodeInto(&got); err != nil {
		t.Fatalf("DecodeInto: %v", err)
	}
	if got.Executions != 2 {
		t.Errorf("Executions = %d, want the later snapshot's 2", got.Executions)
	}
}

func TestStateStoreClearIsIdempotent(t *testing.T) {
	store := testStore(t)
	if err := store.save(fuzzerState{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := store.clear(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

// restoreEndpoint builds a disconnected endpoint for exercising the
// restore policy gate directly.
func restoreEndpoint(t *testing.T, policy SaveStatePolicy, restarted bool) *ClientEndpoint {
	t.Helper()
	store := testStore(t)
	if err := store.save(fuzzerState{Executions: 7}); err != nil {
		t.Fatalf("seeding snapshot: %v", err)
	}
	return &ClientEndpoint{
		cfg:       EndpointConfig{SaveState: policy, Clock: clock.Real()},
		logger:    slog.Default(),
		store:     store,
		restarted: restarted,
	}
}

func TestRestorePolicyGate(t *testing.T) {
	tests := []struct {
		name        string
		policy      SaveStatePolicy
		restarted   bool
		wantRestore bool
	}{
		{"never", SaveNever, true, false},
		{"always first launch", SaveAlways, false, true},
		{"on-restart first launch", SaveOnRestart, false, false},
		{"on-restart after crash", SaveOnRestart, true, true},
		{"adaptive first launch", SaveAdaptive, false, false},
		{"adaptive after crash", SaveAdaptive, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint := restoreEndpoint(t, tt.policy, tt.restarted)
			restored, err := endpoint.restore()
			if err != nil {
				t.Fatalf("restore: %v", err)
			}
			if got := restored != nil; got != tt.wantRestore {
				t.Errorf("restored = %v, want %v", got, tt.wantRestore)
			}
		})
	}
}

func TestSaveStateNeverWritesNothing(t *testing.T) {
	endpoint := restoreEndpoint(t, SaveNever, false)
	if err := endpoint.store.clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := endpoint.SaveState(fuzzerState{Executions: 1}); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if _, err := os.Stat(endpoint.store.snapshotPath()); !os.IsNotExist(err) {
		t.Error("never policy wrote a snapshot")
	}
}

func TestSaveStateAdaptiveRateLimits(t *testing.T) {
	fake := clock.Fake(time.Unix(1000, 0))
	endpoint := restoreEndpoint(t, SaveAdaptive, false)
	endpoint.cfg.Clock = fake

	if err := endpoint.SaveState(fuzzerState{Executions: 1}); err != nil {
		t.Fatalf("first SaveState: %v", err)
	}
	// Immediately after, a second save is suppressed.
	if err := endpoint.SaveState(fuzzerState{Executions: 2}); err != nil {
		t.Fatalf("second SaveState: %v", err)
	}
	restored, err := endpoint.store.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var got fuzzerState
	if err := restored.DecodeInto(&got); err != nil {
		t.Fatalf("DecodeInto: %v", err)
	}
	if got.Executions != 1 {
		t.Errorf("Executions = %d, want the rate-limited first snapshot's 1", got.Executions)
	}

	// Once the interval elapses the next save goes through.
	fake.Advance(adaptiveMinInterval + time.Second)
	if err := endpoint.SaveState(fuzzerState{Executions: 3}); err != nil {
		t.Fatalf("third SaveState: %v", err)
	}
	restored, err = endpoint.store.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := restored.DecodeInto(&got); err != nil {
		t.Fatalf("DecodeInto: %v", err)
	}
	if got.Executions != 3 {
		t.Errorf("Executions = %d, want 3 after the interval elapsed", got.Executions)
	}
}
