// SPDX-License-Identifier: Apache-2.0

package koine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Keep is one running (or launching) secure VM instance tracked by a
// keep manager.
type Keep struct {
	ID       uuid.UUID
	Backend  Backend
	State    LoaderState
	Address  string
	Port     uint16
	Attested time.Time
}

// KeepContract is an offer to launch a keep under a given backend.
type KeepContract struct {
	ID      uuid.UUID
	Backend Backend
}

// AvailableContracts returns one contract per backend usable on this
// host.
func AvailableContracts() []KeepContract {
	var contracts []KeepContract
	for _, b := range []Backend{BackendSev, BackendSgx, BackendKvm} {
		if !b.Available() {
			continue
		}
		contracts = append(contracts, KeepContract{ID: uuid.New(), Backend: b})
	}
	return contracts
}

// Registry is the shared set of keeps a manager knows about. All access
// goes through one mutex; callers get and put Keep values, never
// references into the registry, so concurrent handshake sessions cannot
// alias each other's records.
type Registry struct {
	mu    sync.Mutex
	keeps map[uuid.UUID]Keep
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{keeps: make(map[uuid.UUID]Keep)}
}

// Add records a keep, replacing any record with the same ID.
func (r *Registry) Add(k Keep) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keeps[k.ID] = k
}

// Get returns the keep with the given ID.
func (r *Registry) Get(id uuid.UUID) (Keep, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keeps[id]
	return k, ok
}

// SetState transitions a keep's loader state.
func (r *Registry) SetState(id uuid.UUID, state LoaderState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keeps[id]
	if !ok {
		return fmt.Errorf("koine: no keep %s", id)
	}
	k.State = state
	r.keeps[id] = k
	return nil
}

// Remove deletes a keep record, reporting whether it existed.
func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.keeps[id]
	delete(r.keeps, id)
	return ok
}

// List returns all keep records, ordered by ID for stable output.
func (r *Registry) List() []Keep {
	r.mu.Lock()
	defer r.mu.Unlock()
	keeps := make([]Keep, 0, len(r.keeps))
	for _, k := range r.keeps {
		keeps = append(keeps, k)
	}
	sort.Slice(keeps, func(i, j int) bool {
		return keeps[i].ID.String() < keeps[j].ID.String()
	})
	return keeps
}

// Len returns the number of tracked keeps.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keeps)
}
