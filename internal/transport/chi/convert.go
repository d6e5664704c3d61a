package chi

import (
	"fmt"

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

func searchRequestFromDTO(cat resourceCatalog, req *SearchRequest) (request.Request, error) {
	if len(req.Resources) == 0 {
		return request.Request{}, fmt.Errorf("%w: at least one resource is required", domain.ErrInvalidRequest)
	}
	resources := make([]resource.Descriptor, 0, len(req.Resources))
	for _, id := range req.Resources {
		d, err := cat.Resource(id)
		if err != nil {
			return request.Request{}, err
		}
		resources = append(resources, d)
	}

	criteria := make([]request.Criterion, 0, len(req.Criteria))
	for _, c := range req.Criteria {
		d, err := criterionField(cat, resources, c.Field)
		if err != nil {
			return request.Request{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
		}
		criteria = append(criteria, request.NewCriterion(d, c.Value))
	}

	expr, err := filtersFromDTO(req.Filters)
	if err != nil {
		return request.Request{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}

	keys, err := sorting.Parse(req.Sort)
	if err != nil {
		return request.Request{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}

	spec, err := hitlistFromDTO(req)
	if err != nil {
		return request.Request{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}

	opts := request.Options{
		PageSize:              -1,
		AllowHitLimitOverride: req.AllowHitLimitOverride,
		FullColumnLength:      req.FullColumnLength,
	}
	if req.PageSize != nil {
		if *req.PageSize < 0 {
			return request.Request{}, fmt.Errorf("%w: page_size must not be negative", domain.ErrInvalidRequest)
		}
		opts.PageSize = *req.PageSize
	}

	return request.New(resources, req.Text, criteria, expr, keys, spec, opts)
}

// criterionField resolves a criterion against the first resource declaring it.
// Undeclared fields are searched as plain strings.
func criterionField(cat resourceCatalog, resources []resource.Descriptor, name string) (field.Descriptor, error) {
	for _, r := range resources {
		if d, ok := cat.Field(r.ID(), name); ok {
			return d, nil
		}
	}
	return field.New(name, name, field.String)
}

func hitlistFromDTO(req *SearchRequest) (hitlist.Spec, error) {
	switch {
	case req.Hitlist != "" && len(req.Fields) > 0:
		return hitlist.Spec{}, fmt.Errorf("hitlist and fields are mutually exclusive")
	case len(req.Fields) > 0:
		return hitlist.ExplicitSpec(req.Fields...)
	case req.Hitlist != "":
		return hitlist.NamedSpec(req.Hitlist)
	default:
		return hitlist.AutoSpec(), nil
	}
}

func filtersFromDTO(f *FiltersDTO) (filter.Expression, error) {
	if f == nil {
		return filter.NewExpression(nil, nil, nil)
	}
	must, err := conditionsFromDTO(f.Must)
	if err != nil {
		return filter.Expression{}, fmt.Errorf("must: %w", err)
	}
	should, err := conditionsFromDTO(f.Should)
	if err != nil {
		return filter.Expression{}, fmt.Errorf("should: %w", err)
	}
	mustNot, err := conditionsFromDTO(f.MustNot)
	if err != nil {
		return filter.Expression{}, fmt.Errorf("must_not: %w", err)
	}
	return filter.NewExpression(must, should, mustNot)
}

func conditionsFromDTO(in []ConditionDTO) ([]filter.Condition, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]filter.Condition, 0, len(in))
	for _, c := range in {
		cond, err := conditionFromDTO(c)
		if err != nil {
			return nil, err
		}
		out = append(out, cond)
	}
	return out, nil
}

func conditionFromDTO(c ConditionDTO) (filter.Condition, error) {
	if c.Range != nil && c.Match != "" {
		return filter.Condition{}, fmt.Errorf("condition on %q has both match and range", c.Key)
	}
	if c.Range == nil {
		return filter.NewMatch(c.Key, c.Match)
	}
	r, err := filter.NewRangeFilter(c.Range.GT, c.Range.GTE, c.Range.LT, c.Range.LTE)
	if err != nil {
		return filter.Condition{}, fmt.Errorf("range on %q: %w", c.Key, err)
	}
	return filter.NewRange(c.Key, r)
}

func plainValues(fields map[string]value.Value) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v.Interface()
	}
	return out
}

func recordToDTO(rec *record.Record) RecordDTO {
	return RecordDTO{Key: rec.Key(), Fields: plainValues(rec.Fields())}
}
