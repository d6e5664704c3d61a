package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/repository/prefs"
)

type user struct {
	tenant, name string
}

// Preferences keeps per-user page sizes in process. It implements search.Preferences.
type Preferences struct {
	mu    sync.RWMutex
	sizes map[user]int
}

// NewPreferences creates an empty preference store.
func NewPreferences() *Preferences {
	return &Preferences{sizes: make(map[user]int)}
}

// PreferredPageSize returns the stored page size, or 0 when none is stored.
func (p *Preferences) PreferredPageSize(_ context.Context, tenant, name string) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sizes[user{tenant, name}], nil
}

// SetPreferredPageSize stores a page size. 0 clears the preference.
func (p *Preferences) SetPreferredPageSize(_ context.Context, tenant, name string, n int) error {
	if n < 0 || n > prefs.MaxPageSize {
		return fmt.Errorf("%w: page size %d out of range [0, %d]", domain.ErrInvalidRequest, n, prefs.MaxPageSize)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if n == 0 {
		delete(p.sizes, user{tenant, name})
		return nil
	}
	p.sizes[user{tenant, name}] = n
	return nil
}
