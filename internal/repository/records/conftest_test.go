package records

import (
	"context"
	"testing"

	"github.com/kailas-cloud/fedsearch/internal/db"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/hitlist"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/resource"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	searchListFn  func(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error)
	searchCountFn func(ctx context.Context, q *db.ListQuery) (int, error)
	hgetallFn     func(ctx context.Context, key string) (map[string]string, error)
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error

	lists   []*db.ListQuery
	written []db.HashSetItem
}

func (m *mockStore) SearchList(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error) {
	cp := *q
	m.lists = append(m.lists, &cp)
	if m.searchListFn != nil {
		return m.searchListFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchCount(ctx context.Context, q *db.ListQuery) (int, error) {
	if m.searchCountFn != nil {
		return m.searchCountFn(ctx, q)
	}
	return 0, nil
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetallFn != nil {
		return m.hgetallFn(ctx, key)
	}
	return map[string]string{}, nil
}

func (m *mockStore) HSetMulti(_ context.Context, items []db.HashSetItem) error {
	m.written = append(m.written, items...)
	return nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

// mockCatalog declares ftOrder with a decimal amount, a date and a text body.
type mockCatalog struct{}

func (mockCatalog) Fields(resourceID string) ([]field.Descriptor, bool) {
	if resourceID != "ftOrder" {
		return nil, false
	}
	return []field.Descriptor{
		field.Reconstruct("order_no", "Order", field.String, true),
		field.Reconstruct("amount", "Amount", field.Decimal, true),
		field.Reconstruct("due", "Due", field.Date, false),
		field.Reconstruct("body", "Body", field.Text, false),
		field.Reconstruct("title", "Title", field.String, true),
	}, true
}

func (c mockCatalog) Kind(resourceID, name string) field.Kind {
	fields, _ := c.Fields(resourceID)
	for _, f := range fields {
		if f.Name() == name {
			return f.Kind()
		}
	}
	for _, col := range hitlist.RecordColumns() {
		if col.Name == name {
			return col.Kind
		}
	}
	return field.String
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms, mockCatalog{}, "fedsearch:"), ms
}

func order() resource.Descriptor {
	return resource.Reconstruct("ftOrder", resource.Typed, "")
}
