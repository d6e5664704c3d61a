// Package filter holds the structured filter expression of a search request.
package filter

import (
	"fmt"
	"slices"

	"github.com/kailas-cloud/fedsearch/internal/domain/search/value"
)

// MaxConditionsPerGroup is the maximum number of conditions per filter group.
const MaxConditionsPerGroup = 32

// Expression is a structured filter with must/should/must_not boolean semantics.
type Expression struct {
	must    []Condition
	should  []Condition
	mustNot []Condition
}

// NewExpression validates and creates a filter Expression.
func NewExpression(must, should, mustNot []Condition) (Expression, error) {
	if len(must) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("too many must conditions (max %d)", MaxConditionsPerGroup)
	}
	if len(should) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("too many should conditions (max %d)", MaxConditionsPerGroup)
	}
	if len(mustNot) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("too many must_not conditions (max %d)", MaxConditionsPerGroup)
	}
	return Expression{must: must, should: should, mustNot: mustNot}, nil
}

// Must returns the must conditions.
func (e Expression) Must() []Condition { return e.must }

// Should returns the should conditions.
func (e Expression) Should() []Condition { return e.should }

// MustNot returns the must-not conditions.
func (e Expression) MustNot() []Condition { return e.mustNot }

// IsEmpty reports whether the expression has no conditions.
func (e Expression) IsEmpty() bool {
	return len(e.must) == 0 && len(e.should) == 0 && len(e.mustNot) == 0
}

// WithMust returns a copy with extra must conditions appended.
func (e Expression) WithMust(conds ...Condition) Expression {
	e.must = append(slices.Clip(e.must), conds...)
	return e
}

// Fields returns the distinct field names referenced by the expression, in order of appearance.
func (e Expression) Fields() []string {
	var out []string
	seen := make(map[string]bool)
	for _, group := range [][]Condition{e.must, e.should, e.mustNot} {
		for _, c := range group {
			if !seen[c.key] {
				seen[c.key] = true
				out = append(out, c.key)
			}
		}
	}
	return out
}

// Matches evaluates the expression against a field map.
// All must conditions hold, at least one should condition holds (when any), no must_not holds.
func (e Expression) Matches(fields map[string]value.Value) bool {
	for _, c := range e.must {
		if !c.Matches(fields[c.key]) {
			return false
		}
	}
	if len(e.should) > 0 && !slices.ContainsFunc(e.should, func(c Condition) bool {
		return c.Matches(fields[c.key])
	}) {
		return false
	}
	for _, c := range e.mustNot {
		if c.Matches(fields[c.key]) {
			return false
		}
	}
	return true
}

// Condition is a single filter clause: either an exact match or a numeric range.
type Condition struct {
	key       string
	match     string
	rangeExpr *Range
}

// NewMatch creates an exact match condition.
func NewMatch(key, match string) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	if match == "" {
		return Condition{}, fmt.Errorf("match value is required for key %q", key)
	}
	return Condition{key: key, match: match}, nil
}

// NewRange creates a numeric range condition.
func NewRange(key string, r Range) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	return Condition{key: key, rangeExpr: &r}, nil
}

// Key returns the field name.
func (c Condition) Key() string { return c.key }

// Match returns the exact match value.
func (c Condition) Match() string { return c.match }

// Range returns the numeric range expression.
func (c Condition) Range() *Range { return c.rangeExpr }

// IsMatch reports whether this is a match condition.
func (c Condition) IsMatch() bool { return c.match != "" }

// IsRange reports whether this is a range condition.
func (c Condition) IsRange() bool { return c.rangeExpr != nil }

// Matches evaluates the condition against one value. Enum values match when any key
// equals the match string; dates and timestamps range over unix milliseconds.
func (c Condition) Matches(v value.Value) bool {
	if v.IsNull() {
		return false
	}
	if c.IsRange() {
		n, ok := numeric(v)
		return ok && c.rangeExpr.Contains(n)
	}
	if keys, ok := v.Keys(); ok {
		return slices.Contains(keys, c.match)
	}
	return v.String() == c.match
}

func numeric(v value.Value) (float64, bool) {
	if n, ok := v.Float(); ok {
		return n, true
	}
	if t, ok := v.Time(); ok {
		return float64(t.UnixMilli()), true
	}
	return 0, false
}

// Range is a numeric range with gt/gte/lt/lte boundaries.
type Range struct {
	gt  *float64
	gte *float64
	lt  *float64
	lte *float64
}

// NewRangeFilter validates and creates a Range.
// At least one boundary required. gt/gte and lt/lte are mutually exclusive.
func NewRangeFilter(gt, gte, lt, lte *float64) (Range, error) {
	if gt == nil && gte == nil && lt == nil && lte == nil {
		return Range{}, fmt.Errorf("at least one range boundary is required")
	}
	if gt != nil && gte != nil {
		return Range{}, fmt.Errorf("cannot specify both gt and gte")
	}
	if lt != nil && lte != nil {
		return Range{}, fmt.Errorf("cannot specify both lt and lte")
	}
	return Range{gt: gt, gte: gte, lt: lt, lte: lte}, nil
}

// GT returns the lower exclusive bound.
func (r Range) GT() *float64 { return r.gt }

// GTE returns the lower inclusive bound.
func (r Range) GTE() *float64 { return r.gte }

// LT returns the upper exclusive bound.
func (r Range) LT() *float64 { return r.lt }

// LTE returns the upper inclusive bound.
func (r Range) LTE() *float64 { return r.lte }

// Contains reports whether n lies within the range.
func (r Range) Contains(n float64) bool {
	switch {
	case r.gt != nil && n <= *r.gt:
		return false
	case r.gte != nil && n < *r.gte:
		return false
	case r.lt != nil && n >= *r.lt:
		return false
	case r.lte != nil && n > *r.lte:
		return false
	}
	return true
}
