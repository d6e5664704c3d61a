package search

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/fedsearch/internal/domain/search/resource"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/sorting"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/status"
)

// source is the per-resource merge input: rows fetched from the backend but not yet merged.
type source struct {
	res     resource.Descriptor
	backend Backend
	offset  int
	buf     []SubRow
	done    bool
	failed  bool
	total   int
	counted int
}

func newSource(res resource.Descriptor, b Backend) *source {
	return &source{res: res, backend: b, total: -1, counted: -1}
}

func (s *source) head() (SubRow, bool) {
	if len(s.buf) == 0 {
		return SubRow{}, false
	}
	return s.buf[0], true
}

func (s *source) pop() SubRow {
	h := s.buf[0]
	s.buf[0] = SubRow{}
	s.buf = s.buf[1:]
	return h
}

func (s *source) needsFill() bool { return len(s.buf) == 0 && !s.done }

// knownTotal returns the resource-wide hit count, -1 while unknown.
func (s *source) knownTotal() int {
	if s.total >= 0 {
		return s.total
	}
	if s.counted >= 0 {
		return max(s.counted, s.offset)
	}
	return -1
}

func (s *source) fail() {
	s.failed = true
	s.done = true
	s.total = s.offset
}

// fill fetches the next batch. The returned status is the backend's own diagnostic.
func (s *source) fill(ctx context.Context, tmpl SubQuery, limit int) status.Status {
	if s.backend == nil {
		s.fail()
		return status.Fatal(status.BackendFailure, fmt.Sprintf("no backend for type %s", s.res.Type()))
	}
	q := tmpl
	q.Resource = s.res
	q.Offset = s.offset
	q.Limit = limit

	res := s.backend.ExecuteSubQuery(ctx, q)
	if res.Status.IsFatal() {
		s.fail()
		return res.Status
	}

	s.buf = append(s.buf, res.Rows...)
	s.offset += len(res.Rows)
	if res.Total >= 0 {
		s.total = max(res.Total, s.offset)
	}
	if res.Done || len(res.Rows) < limit {
		s.done = true
		s.total = s.offset
	}
	return res.Status
}

// pick returns the source holding the next row in sort order. Ties go to the
// earlier resource, so an empty sort concatenates resources in request order.
func pick(sources []*source, keys []sorting.Key) *source {
	var best *source
	var bestHead SubRow
	for _, s := range sources {
		h, ok := s.head()
		if !ok {
			continue
		}
		if best == nil || sorting.Compare(keys, h.Fields, bestHead.Fields) < 0 {
			best, bestHead = s, h
		}
	}
	return best
}
