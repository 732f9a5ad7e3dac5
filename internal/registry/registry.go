// Package registry is the single shared mutable structure of this
// module: it tracks every active Recording and nothing else. Mutations
// are limited to insert-on-start-success and delete-on-stop, both
// serialized under one mutex.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/aura-webinar/recorder/internal/recording"
)

// ErrNotFound is returned by operations referencing an id the Registry
// does not hold.
var ErrNotFound = errors.New("registry: recording not found")

// Registry is an owned value, not a package-level singleton: the
// process entrypoint constructs one and passes it by reference to
// orchestrator.NewService, so tests can exercise a fresh instance per case.
type Registry struct {
	mu    sync.RWMutex
	byID  map[recording.ID]*recording.Recording
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{byID: make(map[recording.ID]*recording.Recording)}
}

// Insert adds r to the registry. Callers insert only after a recording
// has successfully started; a recording that fails to start never
// appears here.
func (reg *Registry) Insert(r *recording.Recording) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.byID[r.ID] = r
}

// Get returns the recording for id, or ErrNotFound.
func (reg *Registry) Get(id recording.ID) (*recording.Recording, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

// Delete removes id's entry, if present. Called once both the muxer and
// its resources have quiesced.
func (reg *Registry) Delete(id recording.ID) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.byID, id)
}

// All returns a snapshot of every currently-registered recording, used
// by the health sweep and by any future listing endpoint.
func (reg *Registry) All() []*recording.Recording {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*recording.Recording, 0, len(reg.byID))
	for _, r := range reg.byID {
		out = append(out, r)
	}
	return out
}

// Len reports the number of active recordings.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.byID)
}

// Stale returns every recording whose elapsed time exceeds threshold,
// for the periodic health check to force-stop (default threshold 2h,
// checked every 30s).
func (reg *Registry) Stale(threshold time.Duration) []*recording.Recording {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	var stale []*recording.Recording
	for _, r := range reg.byID {
		if r.Elapsed() > threshold {
			stale = append(stale, r)
		}
	}
	return stale
}
