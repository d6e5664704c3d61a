// Package records serves typed and archive resources from Redis hashes indexed with FT.CREATE.
package records

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/db"
	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/record"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/hitlist"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/resource"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/sorting"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/status"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/value"
	"github.com/kailas-cloud/fedsearch/internal/logger"
	"github.com/kailas-cloud/fedsearch/internal/usecase/search"
)

const keyPageSize = 1000

// store is the consumer interface for record operations (ISP).
type store interface {
	SearchList(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, q *db.ListQuery) (int, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
}

// Catalog provides field kinds per resource.
type Catalog interface {
	Fields(resourceID string) ([]field.Descriptor, bool)
	Kind(resourceID, name string) field.Kind
}

// Repo implements search.Backend, search.Counter, search.RecordLoader and cursor.KeyLister.
type Repo struct {
	store   store
	catalog Catalog
	prefix  string
}

// New creates a records repository. keyPrefix namespaces every key and index.
func New(s store, cat Catalog, keyPrefix string) *Repo {
	return &Repo{store: s, catalog: cat, prefix: keyPrefix}
}

func (r *Repo) indexName(resourceID string) string {
	return r.prefix + resourceID + ":idx"
}

func (r *Repo) keyPrefix(resourceID string) string {
	return r.prefix + resourceID + ":"
}

// ExecuteSubQuery fetches one page of a resource. Failures are reported in the result.
func (r *Repo) ExecuteSubQuery(ctx context.Context, q search.SubQuery) search.SubResult {
	lq := r.listQuery(q.Resource, q.Text, q.Filter, q.Sort)
	lq.Offset = q.Offset
	lq.Limit = q.Limit
	lq.ReturnFields = q.Fields()

	sr, err := r.store.SearchList(ctx, lq)
	if err != nil {
		return search.Failed(fmt.Sprintf("search %s: %v", q.Resource.ID(), err))
	}

	rows := make([]search.SubRow, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		rows = append(rows, search.SubRow{
			Key:    strings.TrimPrefix(e.Key, r.keyPrefix(q.Resource.ID())),
			Fields: r.decode(q.Resource.ID(), e.Fields),
		})
	}

	res := search.SubResult{
		Rows:  rows,
		Total: sr.Total,
		Done:  q.Offset+len(rows) >= sr.Total || len(rows) < q.Limit,
	}
	if len(q.Sort) > 1 {
		res.Status = status.Warning(status.Unsorted,
			fmt.Sprintf("resource %s sorted by %s only", q.Resource.ID(), q.Sort[0]))
	}
	return res
}

// Count returns the number of matches of a sub-query.
func (r *Repo) Count(ctx context.Context, q search.SubQuery) (int, error) {
	n, err := r.store.SearchCount(ctx, r.listQuery(q.Resource, q.Text, q.Filter, nil))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Resource.ID(), err)
	}
	return n, nil
}

// Load materializes one record from its hash.
func (r *Repo) Load(ctx context.Context, ref record.Ref) (record.Record, error) {
	raw, err := r.store.HGetAll(ctx, r.keyPrefix(ref.ResourceID)+ref.Key)
	if err != nil {
		return record.Record{}, fmt.Errorf("load %s: %w", ref, err)
	}
	if len(raw) == 0 {
		return record.Record{}, fmt.Errorf("%s: %w", ref, domain.ErrRecordNotFound)
	}
	return record.New(ref, r.decode(ref.ResourceID, raw))
}

// Keys lists the ordered keys of one resource, up to limit.
func (r *Repo) Keys(
	ctx context.Context, resourceID string, expr filter.Expression, sort []sorting.Key, limit int,
) ([]string, error) {
	res := resource.Reconstruct(resourceID, resource.Typed, "")
	lq := r.listQuery(res, "", expr, sort)
	lq.NoContent = true

	var keys []string
	for len(keys) < limit {
		lq.Offset = len(keys)
		lq.Limit = min(keyPageSize, limit-len(keys))
		sr, err := r.store.SearchList(ctx, lq)
		if err != nil {
			return nil, fmt.Errorf("list keys %s: %w", resourceID, err)
		}
		for _, e := range sr.Entries {
			keys = append(keys, strings.TrimPrefix(e.Key, r.keyPrefix(resourceID)))
		}
		if len(sr.Entries) < lq.Limit || len(keys) >= sr.Total {
			break
		}
	}
	return keys, nil
}

// Put stores records as hashes, encoding values for the index.
func (r *Repo) Put(ctx context.Context, recs []record.Record) error {
	items := make([]db.HashSetItem, 0, len(recs))
	for _, rec := range recs {
		fields := make(map[string]string)
		for name, v := range rec.Fields() {
			if !v.IsNull() {
				fields[name] = Encode(v)
			}
		}
		items = append(items, db.HashSetItem{Key: r.keyPrefix(rec.Ref().ResourceID) + rec.Key(), Fields: fields})
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("put records: %w", err)
	}
	return nil
}

// EnsureIndexes creates the FT index of every resource that does not have one yet.
func (r *Repo) EnsureIndexes(ctx context.Context, resources []resource.Descriptor) error {
	log := logger.FromContext(ctx)
	for _, res := range resources {
		if res.Type() == resource.FederatedStore {
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
		log.Info("Index created", zap.String("resource", res.ID()), zap.String("index", def.Name))
	}
	return nil
}

// IndexDefinition derives the FT schema of a resource from its declared fields.
func (r *Repo) IndexDefinition(resourceID string) (*db.IndexDefinition, error) {
	b := db.NewIndex(r.indexName(resourceID)).Prefix(r.keyPrefix(resourceID))
	seen := make(map[string]bool)
	fields, _ := r.catalog.Fields(resourceID)
	for _, f := range fields {
		b.Field(f.Name(), IndexType(f.Kind()))
		if IndexType(f.Kind()) != db.IndexFieldText {
			b.Sortable()
		}
		seen[f.Name()] = true
	}
	for _, c := range hitlist.RecordColumns() {
		if !seen[c.Name] {
			b.Field(c.Name, IndexType(c.Kind)).Sortable()
		}
	}
	def, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("index definition %s: %w", resourceID, err)
	}
	return def, nil
}

// IndexType maps a declared field kind to its FT index type.
func IndexType(k field.Kind) db.IndexFieldType {
	switch {
	case k == field.Text:
		return db.IndexFieldText
	case k.IsNumeric():
		return db.IndexFieldNumeric
	default:
		return db.IndexFieldTag
	}
}

func (r *Repo) listQuery(res resource.Descriptor, text string, expr filter.Expression, sort []sorting.Key) *db.ListQuery {
	lq := &db.ListQuery{
		IndexName: r.indexName(res.ID()),
		Filters:   expr,
		Schema:    r.schema(res.ID(), expr.Fields()),
	}
	if res.Type() != resource.FederatedOnlyFilter {
		lq.Text = text
	}
	if len(sort) > 0 {
		lq.SortBy = sort[0].Field()
		lq.SortDesc = sort[0].Desc()
	}
	return lq
}

func (r *Repo) schema(resourceID string, names []string) db.Schema {
	s := make(db.Schema, len(names))
	for _, n := range names {
		s[n] = IndexType(r.catalog.Kind(resourceID, n))
	}
	return s
}

func (r *Repo) decode(resourceID string, raw map[string]string) map[string]value.Value {
	out := make(map[string]value.Value, len(raw))
	for name, v := range raw {
		if internalField(name) {
			continue
		}
		out[name] = Decode(r.catalog.Kind(resourceID, name), v)
	}
	return out
}
