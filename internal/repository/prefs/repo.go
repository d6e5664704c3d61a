// Package prefs reads per-user search preferences from Redis hashes through an in-memory cache.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/kailas-cloud/fedsearch/internal/db"
	"github.com/kailas-cloud/fedsearch/internal/domain"
)

// MaxPageSize bounds stored page sizes.
const MaxPageSize = 10000

// store is the consumer interface for preference storage (ISP).
type store interface {
	HGet(ctx context.Context, key, field string) (string, error)
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
}

type cacheKey struct {
	tenant, user string
}

// Repo implements search.Preferences. One hash per tenant holds a field per user.
type Repo struct {
	store  store
	prefix string

	mu    sync.RWMutex
	cache map[cacheKey]int
}

// New creates a preferences repository. keyPrefix namespaces the tenant hashes.
func New(s store, keyPrefix string) *Repo {
	return &Repo{store: s, prefix: keyPrefix + "prefs:", cache: make(map[cacheKey]int)}
}

// PreferredPageSize returns the stored page size, or 0 when none is stored.
// Lookups, including misses, are cached until invalidated.
func (r *Repo) PreferredPageSize(ctx context.Context, tenant, user string) (int, error) {
	k := cacheKey{tenant, user}
	r.mu.RLock()
	n, ok := r.cache[k]
	r.mu.RUnlock()
	if ok {
		return n, nil
	}

	raw, err := r.store.HGet(ctx, r.prefix+tenant, user)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		n = 0
	case err != nil:
		return 0, fmt.Errorf("page size preference %s/%s: %w", tenant, user, err)
	default:
		n, err = strconv.Atoi(raw)
		if err != nil || n < 0 || n > MaxPageSize {
			n = 0
		}
	}

	r.mu.Lock()
	r.cache[k] = n
	r.mu.Unlock()
	return n, nil
}

// SetPreferredPageSize stores a page size and refreshes the cache entry.
func (r *Repo) SetPreferredPageSize(ctx context.Context, tenant, user string, n int) error {
	if n < 0 || n > MaxPageSize {
		return fmt.Errorf("%w: page size %d out of range [0, %d]", domain.ErrInvalidRequest, n, MaxPageSize)
	}
	item := db.HashSetItem{Key: r.prefix + tenant, Fields: map[string]string{user: strconv.Itoa(n)}}
	if err := r.store.HSetMulti(ctx, []db.HashSetItem{item}); err != nil {
		return fmt.Errorf("store page size preference: %w", err)
	}
	r.mu.Lock()
	r.cache[cacheKey{tenant, user}] = n
	r.mu.Unlock()
	return nil
}

// Invalidate drops the cached preference of one user.
func (r *Repo) Invalidate(tenant, user string) {
	r.mu.Lock()
	delete(r.cache, cacheKey{tenant, user})
	r.mu.Unlock()
}

// Clear drops every cached preference.
func (r *Repo) Clear() {
	r.mu.Lock()
	clear(r.cache)
	r.mu.Unlock()
}
