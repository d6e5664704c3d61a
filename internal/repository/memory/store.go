// Package memory holds records in process. It backs the local environment and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/record"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/resource"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/sorting"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/value"
	"github.com/kailas-cloud/fedsearch/internal/usecase/search"
)

// Store implements search.Backend, search.Counter, search.RecordLoader and cursor.KeyLister.
type Store struct {
	mu      sync.RWMutex
	records map[string][]record.Record
}

// New creates an empty store.
func New() *Store {
	return &Store{records: make(map[string][]record.Record)}
}

// Put adds or replaces records, keeping insertion order per resource.
func (s *Store) Put(recs ...record.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		id := rec.Ref().ResourceID
		list := s.records[id]
		i := slices.IndexFunc(list, func(r record.Record) bool { return r.Key() == rec.Key() })
		if i >= 0 {
			list[i] = rec
			continue
		}
		s.records[id] = append(list, rec)
	}
}

// Delete removes one record. Missing records are ignored.
func (s *Store) Delete(ref record.Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[ref.ResourceID] = slices.DeleteFunc(s.records[ref.ResourceID], func(r record.Record) bool {
		return r.Key() == ref.Key
	})
}

// ExecuteSubQuery filters, sorts and pages one resource.
func (s *Store) ExecuteSubQuery(_ context.Context, q search.SubQuery) search.SubResult {
	matches := s.match(q.Resource, q.Text, q.Filter, q.Sort)
	total := len(matches)
	if q.Offset >= total {
		return search.SubResult{Total: total, Done: true}
	}
	end := total
	if q.Limit > 0 {
		end = min(q.Offset+q.Limit, total)
	}

	fields := q.Fields()
	rows := make([]search.SubRow, 0, end-q.Offset)
	for _, rec := range matches[q.Offset:end] {
		vals := make(map[string]value.Value, len(fields))
		for _, f := range fields {
			vals[f] = rec.Field(f)
		}
		rows = append(rows, search.SubRow{Key: rec.Key(), Fields: vals})
	}
	return search.SubResult{Rows: rows, Total: total, Done: end == total}
}

// Count returns the number of matches of a sub-query.
func (s *Store) Count(_ context.Context, q search.SubQuery) (int, error) {
	return len(s.match(q.Resource, q.Text, q.Filter, nil)), nil
}

// Load returns one record.
func (s *Store) Load(_ context.Context, ref record.Ref) (record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records[ref.ResourceID] {
		if r.Key() == ref.Key {
			return r, nil
		}
	}
	return record.Record{}, fmt.Errorf("%s: %w", ref, domain.ErrRecordNotFound)
}

// Keys lists the ordered keys of one resource, up to limit.
func (s *Store) Keys(
	_ context.Context, resourceID string, expr filter.Expression, sort []sorting.Key, limit int,
) ([]string, error) {
	res := resource.Reconstruct(resourceID, resource.Typed, "")
	matches := s.match(res, "", expr, sort)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	keys := make([]string, len(matches))
	for i, r := range matches {
		keys[i] = r.Key()
	}
	return keys, nil
}

func (s *Store) match(res resource.Descriptor, text string, expr filter.Expression, sort []sorting.Key) []record.Record {
	if res.Type() == resource.FederatedOnlyFilter {
		text = ""
	}
	text = strings.ToLower(strings.TrimSpace(text))

	s.mu.RLock()
	var out []record.Record
	for _, r := range s.records[res.ID()] {
		fields := r.Fields()
		if !expr.Matches(fields) {
			continue
		}
		if text != "" && !containsText(fields, text) {
			continue
		}
		out = append(out, r)
	}
	s.mu.RUnlock()

	if len(sort) > 0 {
		slices.SortStableFunc(out, func(a, b record.Record) int {
			return sorting.Compare(sort, a.Fields(), b.Fields())
		})
	}
	return out
}

func containsText(fields map[string]value.Value, text string) bool {
	for _, v := range fields {
		if s, ok := v.Text(); ok && strings.Contains(strings.ToLower(s), text) {
			return true
		}
	}
	return false
}
