// Package sidebuffer hands result sets between executions under a bounded lifetime.
package sidebuffer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/logger"
	"github.com/kailas-cloud/fedsearch/internal/metrics"
	"github.com/kailas-cloud/fedsearch/internal/usecase/search"
)

const (
	// MaxLifetimeSeconds is the upper bound of a put-aside lifetime.
	MaxLifetimeSeconds = 7200
	// MandatoryMarker prefixes an id that must be used verbatim.
	MandatoryMarker = "!"
	// MaxIDLength caps caller-supplied ids.
	MaxIDLength = 128
	// DefaultSweepInterval is the housekeeping period when none is configured.
	DefaultSweepInterval = time.Minute

	remapAttempts = 3
)

// Service puts result sets aside and reintegrates them.
type Service struct {
	store    ExpiringStore
	restorer Restorer
	now      func() time.Time
	maxLife  int
}

// New creates a side buffer service. A nil clock uses time.Now;
// maxLifetime <= 0 or above MaxLifetimeSeconds uses MaxLifetimeSeconds.
func New(store ExpiringStore, restorer Restorer, maxLifetime int, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	if maxLifetime <= 0 || maxLifetime > MaxLifetimeSeconds {
		maxLifetime = MaxLifetimeSeconds
	}
	return &Service{store: store, restorer: restorer, now: clock, maxLife: maxLifetime}
}

// PutAside stores rs under an id owned by the execution identity in ctx and detaches rs.
// An id prefixed with MandatoryMarker must be used verbatim: a collision returns "".
// Any other id is a preference: a collision derives a unique id. An empty id is generated.
func (s *Service) PutAside(ctx context.Context, rs *search.ResultSet, lifetimeSec int, id string) (string, error) {
	if err := s.ValidateLifetime(lifetimeSec); err != nil {
		return "", err
	}
	base, mandatory, err := parseID(id)
	if err != nil {
		return "", err
	}

	snap, err := rs.Snapshot()
	if err != nil {
		return "", fmt.Errorf("snapshot result set: %w", err)
	}

	who := domain.IdentityFromContext(ctx)
	now := s.now()
	entry := Entry{
		Tenant:    who.Tenant,
		User:      who.User,
		Payload:   snap,
		ExpiresAt: now.Add(time.Duration(lifetimeSec) * time.Second),
	}

	stored := ""
	for attempt := 0; attempt <= remapAttempts; attempt++ {
		entry.ID = candidateID(base, attempt)
		ok, err := s.store.Insert(ctx, entry, now)
		if err != nil {
			metrics.SideBufferPutTotal.WithLabelValues("error").Inc()
			return "", fmt.Errorf("put aside %s: %w", entry.ID, err)
		}
		if ok {
			stored = entry.ID
			break
		}
		if mandatory {
			metrics.SideBufferPutTotal.WithLabelValues("collision").Inc()
			logger.FromContext(ctx).Debug("Mandatory side buffer id taken", zap.String("id", base))
			return "", nil
		}
	}
	if stored == "" {
		metrics.SideBufferPutTotal.WithLabelValues("collision").Inc()
		return "", fmt.Errorf("put aside %s: no free id after %d attempts", base, remapAttempts)
	}

	if err := rs.Detach(); err != nil {
		return "", fmt.Errorf("detach result set: %w", err)
	}
	metrics.SideBufferPutTotal.WithLabelValues("stored").Inc()
	logger.FromContext(ctx).Debug("Result set put aside",
		zap.String("id", stored),
		zap.Int("lifetime_sec", lifetimeSec),
	)
	return stored, nil
}

// ValidateLifetime reports whether PutAside would accept lifetimeSec.
func (s *Service) ValidateLifetime(lifetimeSec int) error {
	if lifetimeSec < 1 || lifetimeSec > s.maxLife {
		return fmt.Errorf("%w: %d not in [1, %d]", domain.ErrInvalidLifetime, lifetimeSec, s.maxLife)
	}
	return nil
}

// Reintegrate removes and restores the entry stored under id. Any miss returns nil.
func (s *Service) Reintegrate(ctx context.Context, id string) *search.ResultSet {
	rs, _ := s.Claim(ctx, id)
	return rs
}

// Claim is Reintegrate that also returns the identity the entry was stored under,
// so an elevated caller can put it back without taking it over.
func (s *Service) Claim(ctx context.Context, id string) (*search.ResultSet, domain.Identity) {
	log := logger.FromContext(ctx)
	id = strings.TrimPrefix(id, MandatoryMarker)
	if id == "" {
		metrics.SideBufferReintegrateTotal.WithLabelValues("miss").Inc()
		return nil, domain.Identity{}
	}

	e, err := s.store.Take(ctx, id, domain.IdentityFromContext(ctx), s.now())
	if err != nil {
		metrics.SideBufferReintegrateTotal.WithLabelValues("error").Inc()
		log.Warn("Side buffer take failed", zap.String("id", id), zap.Error(err))
		return nil, domain.Identity{}
	}
	if e == nil {
		metrics.SideBufferReintegrateTotal.WithLabelValues("miss").Inc()
		return nil, domain.Identity{}
	}

	rs, err := s.restorer.Restore(ctx, e.Payload)
	if err != nil {
		metrics.SideBufferReintegrateTotal.WithLabelValues("error").Inc()
		log.Warn("Side buffer restore failed", zap.String("id", id), zap.Error(err))
		return nil, domain.Identity{}
	}
	metrics.SideBufferReintegrateTotal.WithLabelValues("hit").Inc()
	return rs, domain.Identity{Tenant: e.Tenant, User: e.User}
}

// Sweep reclaims expired entries.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	n, err := s.store.Sweep(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweep side buffer: %w", err)
	}
	if n > 0 {
		metrics.SideBufferSweptTotal.Add(float64(n))
		logger.FromContext(ctx).Debug("Side buffer swept", zap.Int("entries", n))
	}
	return n, nil
}

// Run sweeps every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.FromContext(ctx).Warn("Side buffer sweep failed", zap.Error(err))
			}
		}
	}
}

// parseID strips the mandatory marker and generates an id when none is given.
func parseID(id string) (base string, mandatory bool, err error) {
	if strings.HasPrefix(id, MandatoryMarker) {
		id = strings.TrimPrefix(id, MandatoryMarker)
		if id == "" {
			return "", false, fmt.Errorf("%w: mandatory marker without id", domain.ErrInvalidID)
		}
		mandatory = true
	}
	if len(id) > MaxIDLength {
		return "", false, fmt.Errorf("%w: longer than %d", domain.ErrInvalidID, MaxIDLength)
	}
	if strings.ContainsAny(id, " \t\r\n") {
		return "", false, fmt.Errorf("%w: %q contains whitespace", domain.ErrInvalidID, id)
	}
	if id == "" {
		id = uuid.NewString()
	}
	return id, mandatory, nil
}

func candidateID(base string, attempt int) string {
	if attempt == 0 {
		return base
	}
	return base + "-" + uuid.NewString()[:8]
}
