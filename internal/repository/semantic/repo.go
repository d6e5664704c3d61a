// Package semantic serves federated-store resources ranked by vector similarity,
// keyword relevance or both.
package semantic

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/db"
	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/record"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/hitlist"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/mode"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/resource"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/status"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/value"
	"github.com/kailas-cloud/fedsearch/internal/logger"
	"github.com/kailas-cloud/fedsearch/internal/repository/records"
	"github.com/kailas-cloud/fedsearch/internal/usecase/search"
)

// DefaultMaxK caps how deep a ranked resource can be paged.
const DefaultMaxK = 1000

// VectorField is the hash field holding the record embedding.
const VectorField = "vector"

// store is the consumer interface for ranked search operations (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchText(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	SearchList(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error)
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
}

// Catalog provides field kinds and the ranking mode per resource.
type Catalog interface {
	Fields(resourceID string) ([]field.Descriptor, bool)
	Kind(resourceID, name string) field.Kind
	Mode(resourceID string) mode.Mode
}

// Repo implements search.Backend for FederatedStore resources.
type Repo struct {
	store      store
	catalog    Catalog
	embedder   domain.Embedder
	prefix     string
	dimensions int
	maxK       int
}

var errNoEmbedder = errors.New("no query embedder configured")

// New creates a semantic repository. A nil embedder ranks hybrid resources by keyword only.
// maxK <= 0 selects DefaultMaxK.
func New(s store, cat Catalog, emb domain.Embedder, keyPrefix string, dimensions, maxK int) *Repo {
	if maxK <= 0 {
		maxK = DefaultMaxK
	}
	return &Repo{
		store:      s,
		catalog:    cat,
		embedder:   emb,
		prefix:     keyPrefix,
		dimensions: dimensions,
		maxK:       maxK,
	}
}

func (r *Repo) indexName(resourceID string) string {
	return r.prefix + resourceID + ":idx"
}

func (r *Repo) keyPrefix(resourceID string) string {
	return r.prefix + resourceID + ":"
}

// ExecuteSubQuery ranks the resource against the query text. Without text it lists
// matches like a plain record resource. Ranked results have no total until exhausted.
func (r *Repo) ExecuteSubQuery(ctx context.Context, q search.SubQuery) search.SubResult {
	if strings.TrimSpace(q.Text) == "" {
		return r.list(ctx, q)
	}

	window := min(q.Offset+q.Limit, r.maxK)
	if q.Offset >= window {
		return search.SubResult{Total: -1, Done: true}
	}

	ranked, err := r.rank(ctx, q, window)
	if err != nil {
		logger.FromContext(ctx).Warn("Ranked sub-query failed",
			zap.String("resource", q.Resource.ID()), zap.Error(err))
		return search.Failed(fmt.Sprintf("search %s: %v", q.Resource.ID(), err))
	}

	var rows []search.SubRow
	if q.Offset < len(ranked) {
		rows = r.rows(q.Resource.ID(), ranked[q.Offset:])
	}
	res := search.SubResult{Rows: rows, Total: -1}
	if len(ranked) < window || window == r.maxK {
		res.Done = true
		res.Total = len(ranked)
	}
	if len(q.Sort) > 0 {
		res.Status = status.Warning(status.Unsorted,
			fmt.Sprintf("resource %s is ordered by relevance", q.Resource.ID()))
	}
	return res
}

// rank fetches the top window entries with the resource's ranking mode.
func (r *Repo) rank(ctx context.Context, q search.SubQuery, window int) ([]db.SearchEntry, error) {
	m := r.catalog.Mode(q.Resource.ID())
	if m.NeedsEmbedding() && r.embedder == nil {
		if m == mode.Semantic {
			return nil, errNoEmbedder
		}
		m = mode.Keyword
	}
	schema := r.schema(q.Resource.ID(), q.Filter.Fields())
	fields := q.Fields()

	var knn, text []db.SearchEntry
	if m.NeedsEmbedding() {
		emb, err := r.embedder.Embed(ctx, q.Text)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
			IndexName:    r.indexName(q.Resource.ID()),
			Filters:      q.Filter,
			Schema:       schema,
			Vector:       emb.Embedding,
			K:            window,
			ReturnFields: fields,
		})
		if err != nil {
			return nil, fmt.Errorf("knn: %w", err)
		}
		knn = sr.Entries
	}
	if m != mode.Semantic {
		sr, err := r.store.SearchText(ctx, &db.TextQuery{
			IndexName:    r.indexName(q.Resource.ID()),
			Query:        q.Text,
			Filters:      q.Filter,
			Schema:       schema,
			TopK:         window,
			ReturnFields: fields,
		})
		if err != nil {
			return nil, fmt.Errorf("text: %w", err)
		}
		text = sr.Entries
	}

	switch m {
	case mode.Semantic:
		return knn, nil
	case mode.Keyword:
		return text, nil
	default:
		return fuseRRF(knn, text, window), nil
	}
}

func (r *Repo) list(ctx context.Context, q search.SubQuery) search.SubResult {
	lq := &db.ListQuery{
		IndexName:    r.indexName(q.Resource.ID()),
		Filters:      q.Filter,
		Schema:       r.schema(q.Resource.ID(), q.Filter.Fields()),
		Offset:       q.Offset,
		Limit:        q.Limit,
		ReturnFields: q.Fields(),
	}
	if len(q.Sort) > 0 {
		lq.SortBy = q.Sort[0].Field()
		lq.SortDesc = q.Sort[0].Desc()
	}
	sr, err := r.store.SearchList(ctx, lq)
	if err != nil {
		return search.Failed(fmt.Sprintf("search %s: %v", q.Resource.ID(), err))
	}
	return search.SubResult{
		Rows:  r.rows(q.Resource.ID(), sr.Entries),
		Total: sr.Total,
		Done:  q.Offset+len(sr.Entries) >= sr.Total || len(sr.Entries) < q.Limit,
	}
}

func (r *Repo) rows(resourceID string, entries []db.SearchEntry) []search.SubRow {
	rows := make([]search.SubRow, len(entries))
	for i, e := range entries {
		fields := make(map[string]value.Value, len(e.Fields))
		for name, raw := range e.Fields {
			if name == VectorField || strings.HasPrefix(name, "__") {
				continue
			}
			fields[name] = records.Decode(r.catalog.Kind(resourceID, name), raw)
		}
		rows[i] = search.SubRow{Key: strings.TrimPrefix(e.Key, r.keyPrefix(resourceID)), Fields: fields}
	}
	return rows
}

func (r *Repo) schema(resourceID string, names []string) db.Schema {
	s := make(db.Schema, len(names))
	for _, n := range names {
		s[n] = records.IndexType(r.catalog.Kind(resourceID, n))
	}
	return s
}

// Index embeds content and stores the record together with its vector. Without an
// embedder or content the record is stored for keyword ranking only.
func (r *Repo) Index(ctx context.Context, rec record.Record, content string) error {
	fields := make(map[string]string)
	if r.embedder != nil && content != "" {
		emb, err := r.embedder.Embed(ctx, content)
		if err != nil {
			return fmt.Errorf("embed %s: %w", rec.Ref(), err)
		}
		fields[VectorField] = vectorBytes(emb.Embedding)
	}
	for name, v := range rec.Fields() {
		if !v.IsNull() {
			fields[name] = records.Encode(v)
		}
	}
	item := db.HashSetItem{Key: r.keyPrefix(rec.Ref().ResourceID) + rec.Key(), Fields: fields}
	if err := r.store.HSetMulti(ctx, []db.HashSetItem{item}); err != nil {
		return fmt.Errorf("index %s: %w", rec.Ref(), err)
	}
	return nil
}

// Put indexes records, embedding the text of their string fields.
func (r *Repo) Put(ctx context.Context, recs []record.Record) error {
	for _, rec := range recs {
		if err := r.Index(ctx, rec, Content(rec)); err != nil {
			return err
		}
	}
	return nil
}

// Content joins the non-empty string values of a record in field-name order.
func Content(rec record.Record) string {
	fields := rec.Fields()
	parts := make([]string, 0, len(fields))
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		if s, ok := fields[name].Text(); ok && s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// EnsureIndexes creates the vector index of every FederatedStore resource.
func (r *Repo) EnsureIndexes(ctx context.Context, resources []resource.Descriptor) error {
	log := logger.FromContext(ctx)
	for _, res := range resources {
		if res.Type() != resource.FederatedStore {
			continue
		}
		def, err := r.IndexDefinition(res.ID())
		if err != nil {
			return err
		}
		err = r.store.CreateIndex(ctx, def)
		switch {
		case errors.Is(err, db.ErrIndexExists):
			continue
		case err != nil:
			return fmt.Errorf("create index %s: %w", def.Name, err)
		}
		log.Info("Vector index created",
			zap.String("resource", res.ID()), zap.Int("dimensions", r.dimensions))
	}
	return nil
}

// IndexDefinition derives the FT schema: declared fields, record columns and an HNSW cosine vector.
func (r *Repo) IndexDefinition(resourceID string) (*db.IndexDefinition, error) {
	b := db.NewIndex(r.indexName(resourceID)).Prefix(r.keyPrefix(resourceID))
	seen := make(map[string]bool)
	fields, _ := r.catalog.Fields(resourceID)
	for _, f := range fields {
		b.Field(f.Name(), records.IndexType(f.Kind()))
		seen[f.Name()] = true
	}
	for _, c := range hitlist.RecordColumns() {
		if !seen[c.Name] {
			b.Field(c.Name, records.IndexType(c.Kind)).Sortable()
		}
	}
	b.VectorHNSW(VectorField, r.dimensions, db.DistanceCosine, 16, 200)
	def, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("vector index definition %s: %w", resourceID, err)
	}
	return def, nil
}

func vectorBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
