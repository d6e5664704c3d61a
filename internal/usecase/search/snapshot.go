package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/domain/record"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/hitlist"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/request"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/resource"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/sorting"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/status"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/value"
	"github.com/kailas-cloud/fedsearch/internal/logger"
)

// Snapshot is the detached, serializable state of a ResultSet: the executed request,
// resolved columns, loaded rows and per-resource continuation state.
type Snapshot struct {
	Request         RequestSnapshot  `json:"request"`
	Columns         []hitlist.Column `json:"columns"`
	Rows            []RowSnapshot    `json:"rows"`
	Sources         []SourceSnapshot `json:"sources"`
	Position        int              `json:"position"`
	PageSize        int              `json:"page_size"`
	FetchSize       int              `json:"fetch_size"`
	MaxHits         int              `json:"max_hits"`
	MaxColumnLength int              `json:"max_column_length"`
	StatusCode      int              `json:"status_code"`
	StatusText      string           `json:"status_text,omitempty"`
	Diagnostic      string           `json:"diagnostic,omitempty"`
	Exhausted       bool             `json:"exhausted"`
}

// RequestSnapshot is the serializable form of a request.
type RequestSnapshot struct {
	Resources        []ResourceSnapshot  `json:"resources"`
	Text             string              `json:"text,omitempty"`
	Criteria         []CriterionSnapshot `json:"criteria,omitempty"`
	Filter           FilterSnapshot      `json:"filter"`
	Sort             string              `json:"sort,omitempty"`
	HitlistKind      hitlist.Kind        `json:"hitlist_kind"`
	HitlistName      string              `json:"hitlist_name,omitempty"`
	HitlistFields    []string            `json:"hitlist_fields,omitempty"`
	PageSize         int                 `json:"page_size"`
	AllowHitOverride bool                `json:"allow_hit_limit_override,omitempty"`
	FullColumnLength bool                `json:"full_column_length,omitempty"`
}

// ResourceSnapshot is the serializable form of a resource descriptor.
type ResourceSnapshot struct {
	ID     string               `json:"id"`
	Type   resource.BackendType `json:"type"`
	Server string               `json:"server,omitempty"`
}

// CriterionSnapshot is the serializable form of a declared search field.
type CriterionSnapshot struct {
	Name    string     `json:"name"`
	Label   string     `json:"label"`
	Kind    field.Kind `json:"kind"`
	Listed  bool       `json:"listed,omitempty"`
	Value   string     `json:"value,omitempty"`
	Default *string    `json:"default,omitempty"`
	Locked  bool       `json:"locked,omitempty"`
}

// FilterSnapshot is the serializable form of a filter expression.
type FilterSnapshot struct {
	Must    []ConditionSnapshot `json:"must,omitempty"`
	Should  []ConditionSnapshot `json:"should,omitempty"`
	MustNot []ConditionSnapshot `json:"must_not,omitempty"`
}

// ConditionSnapshot is one match or range condition.
type ConditionSnapshot struct {
	Key   string   `json:"key"`
	Match string   `json:"match,omitempty"`
	GT    *float64 `json:"gt,omitempty"`
	GTE   *float64 `json:"gte,omitempty"`
	LT    *float64 `json:"lt,omitempty"`
	LTE   *float64 `json:"lte,omitempty"`
}

// RowSnapshot is one loaded row.
type RowSnapshot struct {
	ResourceID string        `json:"resource_id"`
	Key        string        `json:"key"`
	Values     []value.Value `json:"values"`
}

// SourceSnapshot is the continuation state of one resource.
type SourceSnapshot struct {
	Offset  int      `json:"offset"`
	Done    bool     `json:"done,omitempty"`
	Failed  bool     `json:"failed,omitempty"`
	Total   int      `json:"total"`
	Counted int      `json:"counted"`
	Buffer  []SubRow `json:"buffer,omitempty"`
}

// Snapshot captures the current state without invalidating the handle.
func (rs *ResultSet) Snapshot() (*Snapshot, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if err := rs.checkLocked(); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Request:         snapshotRequest(&rs.req),
		Columns:         append([]hitlist.Column(nil), rs.columns...),
		Rows:            make([]RowSnapshot, len(rs.rows)),
		Sources:         make([]SourceSnapshot, len(rs.sources)),
		Position:        rs.pos,
		PageSize:        rs.pageSize,
		FetchSize:       rs.fetchSize,
		MaxHits:         rs.maxHits,
		MaxColumnLength: rs.maxColLen,
		StatusCode:      int(rs.status.Code()),
		StatusText:      rs.status.Text(),
		Diagnostic:      rs.diagnostic,
		Exhausted:       rs.exhausted,
	}
	for i, r := range rs.rows {
		snap.Rows[i] = RowSnapshot{ResourceID: r.ref.ResourceID, Key: r.ref.Key, Values: r.clone()}
	}
	for i, s := range rs.sources {
		snap.Sources[i] = SourceSnapshot{
			Offset:  s.offset,
			Done:    s.done,
			Failed:  s.failed,
			Total:   s.total,
			Counted: s.counted,
			Buffer:  append([]SubRow(nil), s.buf...),
		}
	}
	return snap, nil
}

func snapshotRequest(req *request.Request) RequestSnapshot {
	out := RequestSnapshot{
		Text:             req.Text(),
		Sort:             sorting.Format(req.Sort()),
		HitlistKind:      req.Hitlist().Kind(),
		HitlistName:      req.Hitlist().Name(),
		HitlistFields:    req.Hitlist().Fields(),
		PageSize:         req.Options().PageSize,
		AllowHitOverride: req.Options().AllowHitLimitOverride,
		FullColumnLength: req.Options().FullColumnLength,
		Filter: FilterSnapshot{
			Must:    snapshotConditions(req.Filters().Must()),
			Should:  snapshotConditions(req.Filters().Should()),
			MustNot: snapshotConditions(req.Filters().MustNot()),
		},
	}
	for _, r := range req.Resources() {
		out.Resources = append(out.Resources, ResourceSnapshot{ID: r.ID(), Type: r.Type(), Server: r.ServerName()})
	}
	for _, c := range req.Criteria() {
		f := c.Field()
		cs := CriterionSnapshot{
			Name: f.Name(), Label: f.Label(), Kind: f.Kind(), Listed: f.Listed(),
			Value: c.Value(), Locked: f.DefaultLocked(),
		}
		if d, ok := f.Default(); ok {
			cs.Default = &d
		}
		out.Criteria = append(out.Criteria, cs)
	}
	return out
}

func snapshotConditions(conds []filter.Condition) []ConditionSnapshot {
	if len(conds) == 0 {
		return nil
	}
	out := make([]ConditionSnapshot, len(conds))
	for i, c := range conds {
		out[i] = ConditionSnapshot{Key: c.Key(), Match: c.Match()}
		if r := c.Range(); r != nil {
			out[i].GT, out[i].GTE, out[i].LT, out[i].LTE = r.GT(), r.GTE(), r.LT(), r.LTE()
		}
	}
	return out
}

func restoreRequest(rs RequestSnapshot) (request.Request, error) {
	resources := make([]resource.Descriptor, len(rs.Resources))
	for i, r := range rs.Resources {
		resources[i] = resource.Reconstruct(r.ID, r.Type, r.Server)
	}

	criteria := make([]request.Criterion, len(rs.Criteria))
	for i, c := range rs.Criteria {
		d := field.Reconstruct(c.Name, c.Label, c.Kind, c.Listed)
		if c.Default != nil {
			d = d.WithDefault(*c.Default, c.Locked)
		}
		criteria[i] = request.NewCriterion(d, c.Value)
	}

	must, err := restoreConditions(rs.Filter.Must)
	if err != nil {
		return request.Request{}, err
	}
	should, err := restoreConditions(rs.Filter.Should)
	if err != nil {
		return request.Request{}, err
	}
	mustNot, err := restoreConditions(rs.Filter.MustNot)
	if err != nil {
		return request.Request{}, err
	}
	expr, err := filter.NewExpression(must, should, mustNot)
	if err != nil {
		return request.Request{}, fmt.Errorf("restore filter: %w", err)
	}

	keys, err := sorting.Parse(rs.Sort)
	if err != nil {
		return request.Request{}, fmt.Errorf("restore sort: %w", err)
	}

	var spec hitlist.Spec
	switch rs.HitlistKind {
	case hitlist.Named:
		spec, err = hitlist.NamedSpec(rs.HitlistName)
	case hitlist.Explicit:
		spec, err = hitlist.ExplicitSpec(rs.HitlistFields...)
	default:
		spec = hitlist.AutoSpec()
	}
	if err != nil {
		return request.Request{}, fmt.Errorf("restore hitlist: %w", err)
	}

	return request.New(resources, rs.Text, criteria, expr, keys, spec, request.Options{
		PageSize:              rs.PageSize,
		AllowHitLimitOverride: rs.AllowHitOverride,
		FullColumnLength:      rs.FullColumnLength,
	})
}

func restoreConditions(in []ConditionSnapshot) ([]filter.Condition, error) {
	out := make([]filter.Condition, 0, len(in))
	for _, c := range in {
		var cond filter.Condition
		var err error
		if c.Match != "" {
			cond, err = filter.NewMatch(c.Key, c.Match)
		} else {
			var r filter.Range
			r, err = filter.NewRangeFilter(c.GT, c.GTE, c.LT, c.LTE)
			if err == nil {
				cond, err = filter.NewRange(c.Key, r)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("restore condition %q: %w", c.Key, err)
		}
		out = append(out, cond)
	}
	return out, nil
}

// Restore rehydrates a snapshot into a live ResultSet that continues paging
// where the original stopped.
func (s *Service) Restore(ctx context.Context, snap *Snapshot) (*ResultSet, error) {
	req, err := restoreRequest(snap.Request)
	if err != nil {
		return nil, fmt.Errorf("restore request: %w", err)
	}
	resources := req.Resources()
	if len(snap.Sources) != len(resources) {
		return nil, fmt.Errorf("restore: %d sources for %d resources", len(snap.Sources), len(resources))
	}
	expr, err := req.EffectiveFilter()
	if err != nil {
		return nil, fmt.Errorf("restore filter: %w", err)
	}

	rs := s.newResultSet(ctx, req, snap.Columns, expr)
	rs.pageSize = snap.PageSize
	rs.fetchSize = snap.FetchSize
	rs.maxHits = snap.MaxHits
	rs.maxColLen = snap.MaxColumnLength
	rs.status = status.New(status.Code(snap.StatusCode), snap.StatusText)
	rs.diagnostic = snap.Diagnostic
	rs.exhausted = snap.Exhausted
	rs.pos = snap.Position

	for i, ss := range snap.Sources {
		src := rs.sources[i]
		src.offset = ss.Offset
		src.done = ss.Done
		src.failed = ss.Failed
		src.total = ss.Total
		src.counted = ss.Counted
		src.buf = append([]SubRow(nil), ss.Buffer...)
	}
	rs.rows = make([]*Row, len(snap.Rows))
	for i, r := range snap.Rows {
		rs.rows[i] = &Row{
			rs:     rs,
			index:  i,
			ref:    record.Ref{ResourceID: r.ResourceID, Key: r.Key},
			values: append([]value.Value(nil), r.Values...),
		}
	}
	if rs.pos >= len(rs.rows) {
		rs.pos = len(rs.rows) - 1
	}

	rs.mu.Lock()
	rs.startCounting(ctx)
	rs.mu.Unlock()

	logger.FromContext(ctx).Debug("Result set restored",
		zap.Int("rows", len(rs.rows)),
		zap.Int("resources", len(resources)),
	)
	return rs, nil
}
