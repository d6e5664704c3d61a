package search

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/record"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/hitlist"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/request"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/resource"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/sorting"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/value"
)

// --- Mocks ---

type mockBackend struct {
	mu          sync.Mutex
	rows        map[string][]SubRow
	fail        map[string]string
	hideTotal   bool
	calls       []SubQuery
	countCalled int
}

func newMockBackend() *mockBackend {
	return &mockBackend{rows: make(map[string][]SubRow), fail: make(map[string]string)}
}

func (m *mockBackend) add(resourceID, key string, fields map[string]value.Value) {
	m.rows[resourceID] = append(m.rows[resourceID], SubRow{Key: key, Fields: fields})
}

func (m *mockBackend) matching(q SubQuery) []SubRow {
	var out []SubRow
	for _, r := range m.rows[q.Resource.ID()] {
		if q.Filter.Matches(r.Fields) {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b SubRow) int { return sorting.Compare(q.Sort, a.Fields, b.Fields) })
	return out
}

func (m *mockBackend) ExecuteSubQuery(_ context.Context, q SubQuery) SubResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, q)
	if msg, ok := m.fail[q.Resource.ID()]; ok {
		return Failed(msg)
	}
	all := m.matching(q)
	lo := min(q.Offset, len(all))
	hi := min(lo+q.Limit, len(all))
	total := len(all)
	if m.hideTotal {
		total = -1
	}
	return SubResult{Rows: all[lo:hi], Total: total, Done: hi == len(all) && !m.hideTotal}
}

// countingBackend hides totals and counts in the background once released.
type countingBackend struct {
	*mockBackend
	release chan struct{}
}

func (c *countingBackend) Count(ctx context.Context, q SubQuery) (int, error) {
	select {
	case <-c.release:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.countCalled++
	return len(c.matching(q)), nil
}

type mockCatalog struct {
	fields   map[string][]field.Descriptor
	hitlists map[string]map[string][]string
}

func (m *mockCatalog) Fields(resourceID string) ([]field.Descriptor, bool) {
	f, ok := m.fields[resourceID]
	return f, ok
}

func (m *mockCatalog) Hitlist(resourceID, name string) ([]string, bool) {
	h, ok := m.hitlists[resourceID][name]
	return h, ok
}

type mockLoader struct {
	records map[record.Ref]record.Record
}

func (m *mockLoader) Load(_ context.Context, ref record.Ref) (record.Record, error) {
	rec, ok := m.records[ref]
	if !ok {
		return record.Record{}, fmt.Errorf("%s: %w", ref, domain.ErrRecordNotFound)
	}
	return rec, nil
}

type mockPrefs struct {
	size int
	err  error
	seen domain.Identity
}

func (m *mockPrefs) PreferredPageSize(_ context.Context, tenant, user string) (int, error) {
	m.seen = domain.Identity{Tenant: tenant, User: user}
	return m.size, m.err
}

// --- Fixtures ---

func res(id string, bt resource.BackendType) resource.Descriptor {
	d, err := resource.New(id, bt, "")
	if err != nil {
		panic(err)
	}
	return d
}

func numRow(n float64, title string) map[string]value.Value {
	return map[string]value.Value{"n": value.Num(n), "title": value.Str(title)}
}

func explicit(fields ...string) hitlist.Spec {
	s, err := hitlist.ExplicitSpec(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

func newRequest(resources []resource.Descriptor, sortExpr string, spec hitlist.Spec, opts request.Options) request.Request {
	keys, err := sorting.Parse(sortExpr)
	if err != nil {
		panic(err)
	}
	expr, _ := filter.NewExpression(nil, nil, nil)
	req, err := request.New(resources, "", nil, expr, keys, spec, opts)
	if err != nil {
		panic(err)
	}
	return req
}

// twoResources seeds A with n = 1, 4, 5 and B with n = 2, 3.
func twoResources() (*mockBackend, []resource.Descriptor) {
	b := newMockBackend()
	b.add("A", "a1", numRow(1, "alpha"))
	b.add("A", "a4", numRow(4, "delta"))
	b.add("A", "a5", numRow(5, "epsilon"))
	b.add("B", "b2", numRow(2, "beta"))
	b.add("B", "b3", numRow(3, "gamma"))
	return b, []resource.Descriptor{res("A", resource.Typed), res("B", resource.Typed)}
}

func newService(b Backend, cfg Config, hooks ...Hook) *Service {
	return New(
		map[resource.BackendType]Backend{resource.Typed: b, resource.FederatedStore: b},
		&mockCatalog{}, &mockLoader{}, nil, cfg, hooks...,
	)
}

func keysOf(t *testing.T, rs *ResultSet) []string {
	t.Helper()
	n, err := rs.Loaded()
	if err != nil {
		t.Fatalf("Loaded: %v", err)
	}
	out := make([]string, n)
	for i := range n {
		row, err := rs.GetAt(i)
		if err != nil {
			t.Fatalf("GetAt(%d): %v", i, err)
		}
		ref, err := row.Ref()
		if err != nil {
			t.Fatalf("Ref: %v", err)
		}
		out[i] = ref.Key
	}
	return out
}
