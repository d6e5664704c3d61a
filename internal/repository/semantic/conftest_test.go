package semantic

import (
	"context"
	"testing"

	"github.com/kailas-cloud/fedsearch/internal/db"
	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/mode"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/resource"
)

type mockStore struct {
	knnFn  func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	textFn func(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	listFn func(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error)

	knnCalls, textCalls int
	written             []db.HashSetItem
	created             []*db.IndexDefinition
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	m.knnCalls++
	if m.knnFn != nil {
		return m.knnFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchText(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error) {
	m.textCalls++
	if m.textFn != nil {
		return m.textFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchList(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error) {
	if m.listFn != nil {
		return m.listFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) HSetMulti(_ context.Context, items []db.HashSetItem) error {
	m.written = append(m.written, items...)
	return nil
}

func (m *mockStore) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	m.created = append(m.created, def)
	return nil
}

type mockCatalog struct {
	mode mode.Mode
}

func (mockCatalog) Fields(string) ([]field.Descriptor, bool) {
	return []field.Descriptor{
		field.Reconstruct("body", "Body", field.Text, false),
		field.Reconstruct("pages", "Pages", field.Integer, true),
	}, true
}

func (mockCatalog) Kind(_, name string) field.Kind {
	if name == "pages" {
		return field.Integer
	}
	return field.String
}

func (c mockCatalog) Mode(string) mode.Mode { return c.mode }

type mockEmbedder struct {
	err  error
	text string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.text = text
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{0.5, 0.5}}, nil
}

func newTestRepo(t *testing.T, m mode.Mode, maxK int) (*Repo, *mockStore, *mockEmbedder) {
	t.Helper()
	ms := &mockStore{}
	emb := &mockEmbedder{}
	return New(ms, mockCatalog{mode: m}, emb, "fedsearch:", 2, maxK), ms, emb
}

func docs() resource.Descriptor {
	return resource.Reconstruct("docs", resource.FederatedStore, "")
}

func entries(keys ...string) []db.SearchEntry {
	out := make([]db.SearchEntry, len(keys))
	for i, k := range keys {
		out[i] = db.SearchEntry{Key: "fedsearch:docs:" + k, Fields: map[string]string{"pages": "3"}}
	}
	return out
}
