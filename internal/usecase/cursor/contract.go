package cursor

import (
	"context"

	"github.com/kailas-cloud/fedsearch/internal/domain/record"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/sorting"
)

// KeyLister lists the ordered record keys of one resource.
type KeyLister interface {
	Keys(ctx context.Context, resourceID string, expr filter.Expression, sort []sorting.Key, limit int) ([]string, error)
}

// RecordLoader materializes one record.
type RecordLoader interface {
	Load(ctx context.Context, ref record.Ref) (record.Record, error)
}
