// Package sidebuffer stores put-aside result sets in process memory or in Redis.
package sidebuffer

import (
	"context"
	"sync"
	"time"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/usecase/sidebuffer"
)

// handle addresses an arena slot. A stale generation means the slot was reused.
type handle struct {
	idx uint32
	gen uint32
}

type slot struct {
	gen   uint32
	entry *sidebuffer.Entry
}

// Arena is an in-process sidebuffer.ExpiringStore. Entries live in reusable slots
// addressed by generation-checked handles.
type Arena struct {
	mu    sync.Mutex
	slots []slot
	free  []uint32
	ids   map[string]handle
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{ids: make(map[string]handle)}
}

// Len returns the number of stored entries, expired ones included until swept.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.ids)
}

// Insert stores e unless an unexpired entry with the same id exists.
func (a *Arena) Insert(_ context.Context, e sidebuffer.Entry, now time.Time) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cur := a.lookup(e.ID); cur != nil {
		if cur.ExpiresAt.After(now) {
			return false, nil
		}
		a.release(e.ID)
	}

	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, slot{})
	}
	stored := e
	a.slots[idx].entry = &stored
	a.ids[e.ID] = handle{idx: idx, gen: a.slots[idx].gen}
	return true, nil
}

// Take removes and returns the entry when it is unexpired and owned by the claimant.
func (a *Arena) Take(_ context.Context, id string, claimant domain.Identity, now time.Time) (*sidebuffer.Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e := a.lookup(id)
	if e == nil {
		return nil, nil
	}
	if !e.ExpiresAt.After(now) {
		a.release(id)
		return nil, nil
	}
	if !owns(claimant, e.Tenant, e.User) {
		return nil, nil
	}
	a.release(id)
	return e, nil
}

// Sweep removes every entry expired at now.
func (a *Arena) Sweep(_ context.Context, now time.Time) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for id := range a.ids {
		if e := a.lookup(id); e != nil && !e.ExpiresAt.After(now) {
			a.release(id)
			n++
		}
	}
	return n, nil
}

// lookup resolves an id through its handle. Caller holds mu.
func (a *Arena) lookup(id string) *sidebuffer.Entry {
	h, ok := a.ids[id]
	if !ok || int(h.idx) >= len(a.slots) {
		return nil
	}
	s := a.slots[h.idx]
	if s.gen != h.gen {
		delete(a.ids, id)
		return nil
	}
	return s.entry
}

// release frees the slot of id and invalidates outstanding handles. Caller holds mu.
func (a *Arena) release(id string) {
	h, ok := a.ids[id]
	if !ok {
		return
	}
	delete(a.ids, id)
	s := &a.slots[h.idx]
	if s.gen != h.gen {
		return
	}
	s.entry = nil
	s.gen++
	a.free = append(a.free, h.idx)
}

// owns reports whether the claimant may take an entry. Elevated callers skip the
// user check but never cross tenants.
func owns(claimant domain.Identity, tenant, user string) bool {
	if claimant.Tenant != tenant {
		return false
	}
	return claimant.Elevated || claimant.User == user
}
