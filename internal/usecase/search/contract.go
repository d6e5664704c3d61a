package search

import (
	"context"

	"github.com/kailas-cloud/fedsearch/internal/domain/record"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/hitlist"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/resource"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/sorting"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/status"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/value"
)

// SubQuery is the per-resource slice of a federated search.
type SubQuery struct {
	Resource resource.Descriptor
	Text     string
	Filter   filter.Expression
	Sort     []sorting.Key
	Columns  []hitlist.Column
	Offset   int
	Limit    int
}

// Fields returns the column names followed by any sort field not already a column.
// Backends return at least these fields for every row.
func (q *SubQuery) Fields() []string {
	out := make([]string, 0, len(q.Columns)+len(q.Sort))
	seen := make(map[string]bool, len(q.Columns)+len(q.Sort))
	for _, c := range q.Columns {
		if !seen[c.Name] {
			seen[c.Name] = true
			out = append(out, c.Name)
		}
	}
	for _, k := range q.Sort {
		if !seen[k.Field()] {
			seen[k.Field()] = true
			out = append(out, k.Field())
		}
	}
	return out
}

// SubRow is one backend hit: its native key plus the requested field values.
type SubRow struct {
	Key    string                 `json:"key"`
	Fields map[string]value.Value `json:"fields"`
}

// SubResult is the outcome of one sub-query. Failures are reported through a fatal
// Status, never as an error, so the federating result set can degrade gracefully.
type SubResult struct {
	Rows []SubRow
	// Total is the resource-wide hit count, -1 when unknown.
	Total int
	// Done is set when no rows follow the returned ones.
	Done   bool
	Status status.Status
}

// Failed builds a SubResult for a failed sub-query.
func Failed(text string) SubResult {
	return SubResult{Total: -1, Status: status.Fatal(status.BackendFailure, text)}
}

// Backend executes sub-queries for one backend type.
type Backend interface {
	ExecuteSubQuery(ctx context.Context, q SubQuery) SubResult
}

// Counter is implemented by backends that can count hits without listing them.
type Counter interface {
	Count(ctx context.Context, q SubQuery) (int, error)
}

// RecordLoader materializes the full record behind a row identity.
type RecordLoader interface {
	Load(ctx context.Context, ref record.Ref) (record.Record, error)
}

// Preferences provides the caller's preferred page size; 0 means none stored.
type Preferences interface {
	PreferredPageSize(ctx context.Context, tenant, user string) (int, error)
}

// Hook inspects or mutates an in-flight request. Returning domain.Cancel aborts the search.
type Hook func(ctx context.Context, qc *QueryContext) error
