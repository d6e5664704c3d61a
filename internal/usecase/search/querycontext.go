package search

import (
	"fmt"
	"slices"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/request"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/resource"
)

// QueryContext is the restricted mutable view of an in-flight request handed to hooks.
// It works on private copies, so mutations never leak into other executions.
type QueryContext struct {
	base      request.Request
	resources []resource.Descriptor
	criteria  []request.Criterion
	lastError string
}

func newQueryContext(req request.Request) *QueryContext {
	return &QueryContext{
		base:      req,
		resources: req.Resources(),
		criteria:  req.Criteria(),
	}
}

// Text returns the full-text query.
func (qc *QueryContext) Text() string { return qc.base.Text() }

// ResourceCount returns the current number of resources.
func (qc *QueryContext) ResourceCount() int { return len(qc.resources) }

// Resource returns the resource at index i.
func (qc *QueryContext) Resource(i int) (resource.Descriptor, error) {
	if i < 0 || i >= len(qc.resources) {
		return resource.Descriptor{}, fmt.Errorf("resource %d: %w", i, domain.ErrOutOfRange)
	}
	return qc.resources[i], nil
}

// RemoveResource removes the resource at index i. The primary resource (index 0)
// can never be removed; later resources shift down on success.
func (qc *QueryContext) RemoveResource(i int) bool {
	if i <= 0 || i >= len(qc.resources) {
		return false
	}
	qc.resources = slices.Delete(qc.resources, i, i+1)
	return true
}

// RemoveResourceByID removes a resource by id, with the same primary-resource rule.
func (qc *QueryContext) RemoveResourceByID(id string) bool {
	i := slices.IndexFunc(qc.resources, func(d resource.Descriptor) bool { return d.ID() == id })
	return qc.RemoveResource(i)
}

// FieldCount returns the number of filled fields (skipEmpty) or of all declared fields.
func (qc *QueryContext) FieldCount(skipEmpty bool) int {
	if !skipEmpty {
		return len(qc.criteria)
	}
	n := 0
	for _, c := range qc.criteria {
		if c.Filled() {
			n++
		}
	}
	return n
}

// Field returns a handle to the i-th filled field (skipEmpty) or the i-th declared field.
func (qc *QueryContext) Field(i int, skipEmpty bool) (*FieldHandle, error) {
	if i < 0 {
		return nil, fmt.Errorf("field %d: %w", i, domain.ErrOutOfRange)
	}
	n := -1
	for pos, c := range qc.criteria {
		if skipEmpty && !c.Filled() {
			continue
		}
		n++
		if n == i {
			return &FieldHandle{qc: qc, pos: pos}, nil
		}
	}
	return nil, fmt.Errorf("field %d: %w", i, domain.ErrOutOfRange)
}

// FieldByName returns a handle to a declared field.
func (qc *QueryContext) FieldByName(name string) (*FieldHandle, bool) {
	pos := slices.IndexFunc(qc.criteria, func(c request.Criterion) bool { return c.Field().Name() == name })
	if pos < 0 {
		return nil, false
	}
	return &FieldHandle{qc: qc, pos: pos}, true
}

// SetLastError records the human-readable diagnostic of the hook run.
func (qc *QueryContext) SetLastError(msg string) { qc.lastError = msg }

// LastError returns the recorded diagnostic.
func (qc *QueryContext) LastError() string { return qc.lastError }

// request rebuilds a validated request from the mutated state.
func (qc *QueryContext) request() (request.Request, error) {
	return request.New(
		qc.resources, qc.base.Text(), qc.criteria,
		qc.base.Filters(), qc.base.Sort(), qc.base.Hitlist(), qc.base.Options(),
	)
}

// FieldHandle is a live reference to one declared field of a QueryContext.
type FieldHandle struct {
	qc  *QueryContext
	pos int
}

// Descriptor returns the field descriptor as currently mutated.
func (h *FieldHandle) Descriptor() field.Descriptor { return h.qc.criteria[h.pos].Field() }

// Name returns the technical field name.
func (h *FieldHandle) Name() string { return h.Descriptor().Name() }

// Value returns the entered value.
func (h *FieldHandle) Value() string { return h.qc.criteria[h.pos].Value() }

// Filled reports whether the user entered a value.
func (h *FieldHandle) Filled() bool { return h.qc.criteria[h.pos].Filled() }

// SetDefault attaches a presentation default. The field's filled classification is unchanged.
func (h *FieldHandle) SetDefault(v string, writeProtect bool) {
	c := h.qc.criteria[h.pos]
	h.qc.criteria[h.pos] = c.WithField(c.Field().WithDefault(v, writeProtect))
}
