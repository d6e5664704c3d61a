package fedsearch

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/hitlist"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/request"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/resource"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/sorting"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/value"
	searchuc "github.com/kailas-cloud/fedsearch/internal/usecase/search"
)

// MandatoryMarker prefixes an id that PutAside must use verbatim.
const MandatoryMarker = "!"

// ResultSet is a live, paged federated result. It is not safe to use after
// Close or a successful PutAside.
type ResultSet struct {
	rs     *searchuc.ResultSet
	client *Client
}

// Search executes a federated query and loads its first page.
// Backend failures do not fail the call; check Status.
func (c *Client) Search(ctx context.Context, q Query) (_ *ResultSet, err error) {
	start := time.Now()
	defer func() {
		c.obs.observe("search", start, err, slog.Int("resources", len(q.Resources)))
	}()

	req, err := c.buildRequest(q)
	if err != nil {
		return nil, err
	}
	rs, err := c.searchSvc.Execute(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return &ResultSet{rs: rs, client: c}, nil
}

// Reintegrate picks up a put-aside result set. Returns ErrNotFound when the id
// is unknown, expired or owned by another tenant.
func (c *Client) Reintegrate(ctx context.Context, id string) (_ *ResultSet, err error) {
	start := time.Now()
	defer func() { c.obs.observe("reintegrate", start, err) }()

	rs := c.sideBuffer.Reintegrate(ctx, id)
	if rs == nil {
		return nil, fmt.Errorf("result set %q: %w", id, domain.ErrNotFound)
	}
	return &ResultSet{rs: rs, client: c}, nil
}

func (c *Client) buildRequest(q Query) (request.Request, error) {
	if len(q.Resources) == 0 {
		return request.Request{}, fmt.Errorf("%w: at least one resource is required", domain.ErrInvalidRequest)
	}
	resources := make([]resource.Descriptor, 0, len(q.Resources))
	for _, id := range q.Resources {
		d, err := c.catalog.Resource(id)
		if err != nil {
			return request.Request{}, err
		}
		resources = append(resources, d)
	}

	criteria := make([]request.Criterion, 0, len(q.Criteria))
	for _, name := range slices.Sorted(maps.Keys(q.Criteria)) {
		d, err := c.criterionField(resources, name)
		if err != nil {
			return request.Request{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
		}
		criteria = append(criteria, request.NewCriterion(d, q.Criteria[name]))
	}

	keys, err := sorting.Parse(q.Sort)
	if err != nil {
		return request.Request{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}

	var spec hitlist.Spec
	switch {
	case q.Hitlist != "" && len(q.Fields) > 0:
		return request.Request{}, fmt.Errorf("%w: hitlist and fields are mutually exclusive", domain.ErrInvalidRequest)
	case len(q.Fields) > 0:
		spec, err = hitlist.ExplicitSpec(q.Fields...)
	case q.Hitlist != "":
		spec, err = hitlist.NamedSpec(q.Hitlist)
	default:
		spec = hitlist.AutoSpec()
	}
	if err != nil {
		return request.Request{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}

	opts := request.Options{
		PageSize:              -1,
		AllowHitLimitOverride: q.AllowHitLimitOverride,
		FullColumnLength:      q.FullColumnLength,
	}
	switch {
	case q.LoadAll:
		opts.PageSize = 0
	case q.PageSize > 0:
		opts.PageSize = q.PageSize
	}

	must := make([]filter.Condition, 0, len(q.Match))
	for _, name := range slices.Sorted(maps.Keys(q.Match)) {
		cond, err := filter.NewMatch(name, q.Match[name])
		if err != nil {
			return request.Request{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
		}
		must = append(must, cond)
	}
	expr, err := filter.NewExpression(must, nil, nil)
	if err != nil {
		return request.Request{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	return request.New(resources, q.Text, criteria, expr, keys, spec, opts)
}

// criterionField resolves a criterion against the first resource declaring it.
// Undeclared fields are searched as plain strings.
func (c *Client) criterionField(resources []resource.Descriptor, name string) (field.Descriptor, error) {
	for _, r := range resources {
		if d, ok := c.catalog.Field(r.ID(), name); ok {
			return d, nil
		}
	}
	return field.New(name, name, field.String)
}

// Columns returns the resolved hitlist.
func (r *ResultSet) Columns() ([]Column, error) {
	cols, err := r.rs.Columns()
	if err != nil {
		return nil, err
	}
	out := make([]Column, len(cols))
	for i, col := range cols {
		out[i] = Column{Name: col.Name, Label: col.Label, Kind: string(col.Kind)}
	}
	return out, nil
}

// Status returns the accumulated status of all sub-queries.
func (r *ResultSet) Status() Status {
	st := r.rs.Status()
	return Status{Code: int(st.Code()), Text: st.Text()}
}

// Diagnostic returns hook notes, e.g. resources dropped by a limit.
func (r *ResultSet) Diagnostic() string { return r.rs.Diagnostic() }

// Size returns the total hit count, or -1 while it is still being counted.
func (r *ResultSet) Size() (int, error) { return r.rs.Size() }

// Count waits for the background count to finish.
func (r *ResultSet) Count(ctx context.Context) (int, error) { return r.rs.AwaitCount(ctx) }

// Loaded returns the number of rows loaded so far.
func (r *ResultSet) Loaded() (int, error) { return r.rs.Loaded() }

// NextPage loads one more page. Returns false when nothing was appended.
func (r *ResultSet) NextPage(ctx context.Context) (_ bool, err error) {
	start := time.Now()
	defer func() { r.client.obs.observe("next_page", start, err) }()
	return r.rs.FetchNextPage(ctx)
}

// Rows returns the loaded rows from index from onward.
func (r *ResultSet) Rows(from int) ([]Row, error) {
	loaded, err := r.rs.Loaded()
	if err != nil {
		return nil, err
	}
	if from < 0 {
		from = 0
	}
	out := make([]Row, 0, max(loaded-from, 0))
	for i := from; i < loaded; i++ {
		row, err := r.rs.GetAt(i)
		if err != nil {
			return nil, err
		}
		ref, err := row.Ref()
		if err != nil {
			return nil, err
		}
		vals, err := row.Values()
		if err != nil {
			return nil, err
		}
		out = append(out, Row{Index: row.Index(), Resource: ref.ResourceID, Key: ref.Key, Values: plain(vals)})
	}
	r.client.obs.rowsReturned(len(out))
	return out, nil
}

// PutAside stores the result set for later pickup and returns its id. The lifetime
// must be a whole number of seconds. An empty id generates one; an id prefixed with
// MandatoryMarker is used verbatim and yields ErrIDTaken on collision, in which case
// the result set stays usable.
func (r *ResultSet) PutAside(ctx context.Context, lifetime time.Duration, id string) (_ string, err error) {
	start := time.Now()
	defer func() { r.client.obs.observe("put_aside", start, err) }()

	if lifetime%time.Second != 0 {
		return "", fmt.Errorf("put aside: %w: %v is not a whole number of seconds", domain.ErrInvalidLifetime, lifetime)
	}
	got, err := r.client.sideBuffer.PutAside(ctx, r.rs, int(lifetime/time.Second), id)
	if err != nil {
		return "", fmt.Errorf("put aside: %w", err)
	}
	if got == "" {
		return "", ErrIDTaken
	}
	return got, nil
}

// Close releases the result set and stops any background count.
func (r *ResultSet) Close() { r.rs.Dispose() }

func plain(fields map[string]value.Value) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v.Interface()
	}
	return out
}
