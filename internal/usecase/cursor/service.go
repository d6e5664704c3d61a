package cursor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/sorting"
	"github.com/kailas-cloud/fedsearch/internal/logger"
)

// DefaultMaxKeys caps the id list of a freshly opened cursor.
const DefaultMaxKeys = 10000

// Service opens and rebuilds cursors.
type Service struct {
	lister  KeyLister
	loader  RecordLoader
	maxKeys int
}

// New creates a cursor service. maxKeys <= 0 uses DefaultMaxKeys.
func New(lister KeyLister, loader RecordLoader, maxKeys int) *Service {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &Service{lister: lister, loader: loader, maxKeys: maxKeys}
}

// Open lists the matching keys of one resource and returns an unpositioned cursor.
func (s *Service) Open(
	ctx context.Context, resourceID string, expr filter.Expression, sort []sorting.Key,
) (*Cursor, error) {
	if resourceID == "" {
		return nil, fmt.Errorf("%w: resource id is required", domain.ErrInvalidRequest)
	}
	// One extra key tells a full list from a capped one.
	keys, err := s.lister.Keys(ctx, resourceID, expr, sort, s.maxKeys+1)
	if err != nil {
		return nil, fmt.Errorf("list keys of %s: %w", resourceID, err)
	}
	log := logger.FromContext(ctx)
	truncated := len(keys) > s.maxKeys
	if truncated {
		keys = keys[:s.maxKeys]
		log.Warn("Cursor id list capped",
			zap.String("resource", resourceID),
			zap.Int("max_keys", s.maxKeys),
		)
	}
	log.Debug("Cursor opened",
		zap.String("resource", resourceID),
		zap.Int("size", len(keys)),
	)
	c := FromIDs(resourceID, keys, s.loader)
	c.truncated = truncated
	return c, nil
}

// Rebuild restores a cursor from an exported JSON id list.
func (s *Service) Rebuild(resourceID string, data []byte) (*Cursor, error) {
	if resourceID == "" {
		return nil, fmt.Errorf("%w: resource id is required", domain.ErrInvalidRequest)
	}
	c, err := FromJSON(resourceID, data, s.loader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	return c, nil
}
