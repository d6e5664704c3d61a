package search

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/record"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/value"
)

// Row is one hit of a ResultSet. It becomes invalid once its result set is
// disposed or put aside.
type Row struct {
	rs     *ResultSet
	index  int
	ref    record.Ref
	values []value.Value
}

func (r *Row) check() error {
	r.rs.mu.Lock()
	defer r.rs.mu.Unlock()
	return r.rs.checkLocked()
}

// Index returns the row position within the result set.
func (r *Row) Index() int { return r.index }

// Ref returns the owning resource id and backend-native key.
func (r *Row) Ref() (record.Ref, error) {
	if err := r.check(); err != nil {
		return record.Ref{}, err
	}
	return r.ref, nil
}

// Value returns the value of column i.
func (r *Row) Value(i int) (value.Value, error) {
	if err := r.check(); err != nil {
		return value.Value{}, err
	}
	if i < 0 || i >= len(r.values) {
		return value.Value{}, fmt.Errorf("column %d: %w", i, domain.ErrOutOfRange)
	}
	return r.values[i], nil
}

// ValueByName returns the value of the column with the given technical name.
func (r *Row) ValueByName(name string) (value.Value, error) {
	if err := r.check(); err != nil {
		return value.Value{}, err
	}
	i, ok := r.rs.colIdx[name]
	if !ok {
		return value.Value{}, fmt.Errorf("column %q: %w", name, domain.ErrOutOfRange)
	}
	return r.values[i], nil
}

// Values returns all column values keyed by technical name.
func (r *Row) Values() (map[string]value.Value, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	out := make(map[string]value.Value, len(r.values))
	for name, i := range r.rs.colIdx {
		out[name] = r.values[i]
	}
	return out, nil
}

// Load materializes the full record behind the row.
func (r *Row) Load(ctx context.Context) (record.Record, error) {
	ref, err := r.Ref()
	if err != nil {
		return record.Record{}, err
	}
	if r.rs.loader == nil {
		return record.Record{}, fmt.Errorf("load %s: no record loader", ref)
	}
	rec, err := r.rs.loader.Load(ctx, ref)
	if err != nil {
		return record.Record{}, fmt.Errorf("load %s: %w", ref, err)
	}
	return rec, nil
}

// clone returns a detached copy of the values for snapshots.
func (r *Row) clone() []value.Value {
	return append([]value.Value(nil), r.values...)
}
