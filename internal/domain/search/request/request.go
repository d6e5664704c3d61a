package request

import (
	"fmt"
	"slices"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/hitlist"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/resource"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/sorting"
)

// Request parameter limits.
const (
	// MaxQueryLength is the maximum allowed full-text query length.
	MaxQueryLength = 4096
	MaxResources   = 32
	MaxCriteria    = 128
	MaxPageSize    = 10000
)

// Criterion is one declared search field, optionally filled with a value.
type Criterion struct {
	field field.Descriptor
	value string
}

// NewCriterion creates a criterion. An empty value declares the field without filling it.
func NewCriterion(d field.Descriptor, v string) Criterion {
	return Criterion{field: d, value: v}
}

// Field returns the field descriptor.
func (c Criterion) Field() field.Descriptor { return c.field }

// Value returns the entered value, empty when not filled.
func (c Criterion) Value() string { return c.value }

// Filled reports whether the user entered a value. Defaults never count as filled.
func (c Criterion) Filled() bool { return c.value != "" }

// WithField returns a copy carrying a different descriptor (defaults, labels).
func (c Criterion) WithField(d field.Descriptor) Criterion {
	c.field = d
	return c
}

// Options are the paging and limit options of a request.
type Options struct {
	// PageSize: 0 loads everything, >0 pages, <0 uses the caller's preferred page size.
	PageSize              int
	AllowHitLimitOverride bool
	FullColumnLength      bool
}

// Request is a validated federated search request.
type Request struct {
	resources []resource.Descriptor
	text      string
	criteria  []Criterion
	filters   filter.Expression
	sort      []sorting.Key
	hitlist   hitlist.Spec
	opts      Options
}

// New validates a request. Mis-ordered resource lists and explicit hitlists combined
// with archive resources are rejected.
func New(
	resources []resource.Descriptor,
	text string,
	criteria []Criterion,
	filters filter.Expression,
	sort []sorting.Key,
	spec hitlist.Spec,
	opts Options,
) (Request, error) {
	if len(resources) > MaxResources {
		return Request{}, fmt.Errorf("%w: too many resources (max %d)", domain.ErrInvalidRequest, MaxResources)
	}
	if err := resource.ValidateList(resources); err != nil {
		return Request{}, fmt.Errorf("%w: %w: %w", domain.ErrInvalidRequest, domain.ErrResourceOrder, err)
	}
	if spec.Kind() == hitlist.Explicit && resource.HasArchive(resources) {
		return Request{}, fmt.Errorf("%w: %w: fields %v",
			domain.ErrInvalidRequest, domain.ErrHitlistConflict, spec.Fields())
	}
	if len(text) > MaxQueryLength {
		return Request{}, fmt.Errorf("%w: query too long (max %d chars)", domain.ErrInvalidRequest, MaxQueryLength)
	}
	if len(criteria) > MaxCriteria {
		return Request{}, fmt.Errorf("%w: too many criteria (max %d)", domain.ErrInvalidRequest, MaxCriteria)
	}
	seen := make(map[string]bool, len(criteria))
	for _, c := range criteria {
		name := c.field.Name()
		if err := field.ValidateName(name); err != nil {
			return Request{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
		}
		if seen[name] {
			return Request{}, fmt.Errorf("%w: duplicate criterion %q", domain.ErrInvalidRequest, name)
		}
		seen[name] = true
	}
	if len(sort) > sorting.MaxKeys {
		return Request{}, fmt.Errorf("%w: too many sort keys (max %d)", domain.ErrInvalidRequest, sorting.MaxKeys)
	}
	if opts.PageSize > MaxPageSize {
		return Request{}, fmt.Errorf("%w: page size %d exceeds %d", domain.ErrInvalidRequest, opts.PageSize, MaxPageSize)
	}

	return Request{
		resources: slices.Clone(resources),
		text:      text,
		criteria:  slices.Clone(criteria),
		filters:   filters,
		sort:      slices.Clone(sort),
		hitlist:   spec,
		opts:      opts,
	}, nil
}

// Resources returns a copy of the ordered resource list. The first is the primary resource.
func (r *Request) Resources() []resource.Descriptor { return slices.Clone(r.resources) }

// Primary returns the primary resource.
func (r *Request) Primary() resource.Descriptor { return r.resources[0] }

// Text returns the full-text query.
func (r *Request) Text() string { return r.text }

// Criteria returns a copy of the declared criteria.
func (r *Request) Criteria() []Criterion { return slices.Clone(r.criteria) }

// Filled returns the filled criteria in declaration order.
func (r *Request) Filled() []Criterion {
	var out []Criterion
	for _, c := range r.criteria {
		if c.Filled() {
			out = append(out, c)
		}
	}
	return out
}

// Filters returns the structured filter expression.
func (r *Request) Filters() filter.Expression { return r.filters }

// Sort returns a copy of the sort keys.
func (r *Request) Sort() []sorting.Key { return slices.Clone(r.sort) }

// Hitlist returns the hitlist spec.
func (r *Request) Hitlist() hitlist.Spec { return r.hitlist }

// Options returns the paging and limit options.
func (r *Request) Options() Options { return r.opts }

// PageSize returns the requested page size.
func (r *Request) PageSize() int { return r.opts.PageSize }

// EffectiveFilter combines the structured filter with one must condition per filled criterion.
func (r *Request) EffectiveFilter() (filter.Expression, error) {
	expr := r.filters
	for _, c := range r.criteria {
		if !c.Filled() {
			continue
		}
		cond, err := filter.NewMatch(c.field.Name(), c.value)
		if err != nil {
			return filter.Expression{}, err
		}
		expr = expr.WithMust(cond)
	}
	return filter.NewExpression(expr.Must(), expr.Should(), expr.MustNot())
}
