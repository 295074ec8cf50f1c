// SPDX-License-Identifier: Apache-2.0

package koine_test

import (
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/enarx-archive/koine"
)

func TestRegistry(t *testing.T) {
	registry := koine.NewRegistry()

	keep := koine.Keep{ID: uuid.New(), Backend: koine.BackendSev, State: koine.StateReady}
	registry.Add(keep)
	if registry.Len() != 1 {
		t.Fatalf("expected 1 keep, got %d", registry.Len())
	}

	got, ok := registry.Get(keep.ID)
	if !ok {
		t.Fatal("keep not found after add")
	}
	if got != keep {
		t.Fatalf("got %+v, want %+v", got, keep)
	}

	if err := registry.SetState(keep.ID, koine.StateRunning); err != nil {
		t.Fatalf("setting state: %v", err)
	}
	if got, _ := registry.Get(keep.ID); got.State != koine.StateRunning {
		t.Errorf("state %s, want %s", got.State, koine.StateRunning)
	}

	if err := registry.SetState(uuid.New(), koine.StateError); err == nil {
		t.Error("expected error setting state of unknown keep")
	}

	if !registry.Remove(keep.ID) {
		t.Error("remove reported keep missing")
	}
	if registry.Remove(keep.ID) {
		t.Error("second remove reported keep present")
	}
	if registry.Len() != 0 {
		t.Errorf("expected empty registry, got %d keeps", registry.Len())
	}
}

func TestRegistryListOrder(t *testing.T) {
	registry := koine.NewRegistry()
	for i := 0; i < 10; i++ {
		registry.Add(koine.Keep{ID: uuid.New(), Backend: koine.BackendKvm})
	}

	keeps := registry.List()
	if len(keeps) != 10 {
		t.Fatalf("expected 10 keeps, got %d", len(keeps))
	}
	if !sort.SliceIsSorted(keeps, func(i, j int) bool {
		return keeps[i].ID.String() < keeps[j].ID.String()
	}) {
		t.Error("list not ordered by ID")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	registry := koine.NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keep := koine.Keep{ID: uuid.New(), State: koine.StateRunning}
			registry.Add(keep)
			if _, ok := registry.Get(keep.ID); !ok {
				t.Error("keep not found after concurrent add")
			}
			_ = registry.SetState(keep.ID, koine.StateShutdown)
		}()
	}
	wg.Wait()

	if registry.Len() != 32 {
		t.Fatalf("expected 32 keeps, got %d", registry.Len())
	}
	for _, k := range registry.List() {
		if k.State != koine.StateShutdown {
			t.Errorf("keep %s in state %s, want %s", k.ID, k.State, koine.StateShutdown)
		}
	}
}
