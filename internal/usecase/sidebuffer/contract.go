package sidebuffer

import (
	"context"
	"time"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/usecase/search"
)

// Entry is one put-aside result set.
type Entry struct {
	ID        string
	Tenant    string
	User      string
	Payload   *search.Snapshot
	ExpiresAt time.Time
}

// ExpiringStore holds entries keyed by id. Expiry is judged against the caller's clock.
type ExpiringStore interface {
	// Insert stores e unless an unexpired entry with the same id exists.
	Insert(ctx context.Context, e Entry, now time.Time) (bool, error)
	// Take removes and returns the entry when it is unexpired and owned by the claimant.
	// A miss returns nil without touching entries owned by someone else.
	Take(ctx context.Context, id string, claimant domain.Identity, now time.Time) (*Entry, error)
	// Sweep removes every entry expired at now and returns how many were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Restorer rebuilds a live result set from its snapshot.
type Restorer interface {
	Restore(ctx context.Context, snap *search.Snapshot) (*search.ResultSet, error)
}
