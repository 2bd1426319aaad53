package job

import (
	"cloudjobs/internal/apperrors"
	"cloudjobs/internal/cloudjob"
	"slices"
	"strings"
	"sync"
	"time"
)

// registry maps workflow ids to running or recently settled workflows.
// An id is reserved before its workflow starts so concurrent creates with
// the same id cannot both succeed.
type registry struct {
	mu      sync.Mutex
	entries map[string]*cloudjob.Handle // nil while reserved
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*cloudjob.Handle)}
}

func (r *registry) reserve(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; exists {
		return apperrors.Conflict("job", id, "job already exists")
	}
	r.entries[id] = nil
	return nil
}

func (r *registry) commit(id string, h *cloudjob.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = h
}

func (r *registry) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

func (r *registry) get(id string) (*cloudjob.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.entries[id]
	return h, h != nil
}

// list returns committed workflows ordered by start time.
func (r *registry) list() []*cloudjob.Handle {
	r.mu.Lock()
	handles := make([]*cloudjob.Handle, 0, len(r.entries))
	for _, h := range r.entries {
		if h != nil {
			handles = append(handles, h)
		}
	}
	r.mu.Unlock()

	slices.SortFunc(handles, func(a, b *cloudjob.Handle) int {
		if c := a.StartedAt().Compare(b.StartedAt()); c != 0 {
			return c
		}
		return strings.Compare(a.ID(), b.ID())
	})
	return handles
}

// expire releases workflows settled before cutoff and returns their ids.
func (r *registry) expire(cutoff time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var released []string
	for id, h := range r.entries {
		if h == nil {
			continue
		}
		if at, settled := h.Settled(); settled && at.Before(cutoff) {
			delete(r.entries, id)
			released = append(released, id)
		}
	}
	slices.Sort(released)
	return released
}

