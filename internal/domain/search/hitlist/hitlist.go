// Package hitlist resolves the column set of a federated search.
package hitlist

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/fedsearch/internal/domain/search/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/resource"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/status"
)

// DefaultName is the named hitlist used when a request names none.
const DefaultName = "Default"

// MaxColumns is the maximum number of explicit columns.
const MaxColumns = 64

// Kind tells how a Spec selects columns.
type Kind uint8

// Spec kinds.
const (
	Auto Kind = iota
	Named
	Explicit
)

// Spec is the requested hitlist: explicit field names, a hitlist name, or nothing.
type Spec struct {
	kind   Kind
	name   string
	fields []string
}

// AutoSpec selects the default hitlist, falling back to anonymous columns.
func AutoSpec() Spec { return Spec{} }

// NamedSpec selects a hitlist by name.
func NamedSpec(name string) (Spec, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Spec{}, fmt.Errorf("hitlist name is required")
	}
	return Spec{kind: Named, name: name}, nil
}

// ExplicitSpec selects exact field names, in order.
func ExplicitSpec(fields ...string) (Spec, error) {
	if len(fields) == 0 {
		return Spec{}, fmt.Errorf("at least one hitlist field is required")
	}
	if len(fields) > MaxColumns {
		return Spec{}, fmt.Errorf("too many hitlist fields (max %d)", MaxColumns)
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if err := field.ValidateName(f); err != nil {
			return Spec{}, fmt.Errorf("hitlist: %w", err)
		}
		if seen[f] {
			return Spec{}, fmt.Errorf("duplicate hitlist field %q", f)
		}
		seen[f] = true
	}
	return Spec{kind: Explicit, fields: append([]string(nil), fields...)}, nil
}

// Kind returns the spec kind.
func (s Spec) Kind() Kind { return s.kind }

// Name returns the hitlist name of a Named spec.
func (s Spec) Name() string { return s.name }

// Fields returns a copy of the field names of an Explicit spec.
func (s Spec) Fields() []string { return append([]string(nil), s.fields...) }

// Column is one result column.
type Column struct {
	Name  string     `json:"name"`
	Label string     `json:"label"`
	Kind  field.Kind `json:"kind"`
}

// Fixed record-attribute columns appended to anonymous hitlists.
var recordColumns = []Column{
	{Name: "title", Label: "Title", Kind: field.String},
	{Name: "created_at", Label: "Created", Kind: field.Timestamp},
	{Name: "owner", Label: "Owner", Kind: field.User},
	{Name: "last_modified", Label: "Last modified", Kind: field.Timestamp},
	{Name: "last_editor", Label: "Last editor", Kind: field.User},
}

// RecordColumns returns the fixed record-attribute columns.
func RecordColumns() []Column { return append([]Column(nil), recordColumns...) }

// Catalog provides the per-resource field and hitlist declarations.
type Catalog interface {
	Fields(resourceID string) ([]field.Descriptor, bool)
	Hitlist(resourceID, name string) ([]string, bool)
}

// Resolve computes the columns for a resource list. Resolution problems degrade to the
// anonymous hitlist and are reported through the returned warning; only an explicit
// spec combined with archive resources is an error.
func Resolve(resources []resource.Descriptor, spec Spec, cat Catalog) ([]Column, status.Status, error) {
	if spec.kind == Explicit {
		if resource.HasArchive(resources) {
			return nil, status.Status{}, fmt.Errorf("explicit hitlist %v with archive resources", spec.fields)
		}
		cols := make([]Column, len(spec.fields))
		for i, name := range spec.fields {
			cols[i] = lookup(resources, cat, name)
		}
		return cols, status.Status{}, nil
	}

	name := spec.name
	if spec.kind == Auto {
		name = DefaultName
	}
	for _, r := range resources {
		names, ok := cat.Hitlist(r.ID(), name)
		if !ok || len(names) == 0 {
			continue
		}
		cols := make([]Column, len(names))
		for i, n := range names {
			cols[i] = columnFor(cat, r.ID(), n)
		}
		return cols, status.Status{}, nil
	}

	var warn status.Status
	if spec.kind == Named {
		warn = status.Warning(status.HitlistFallback,
			fmt.Sprintf("hitlist %q not defined by any resource, using anonymous hitlist", name))
	}
	if servers := resource.ArchiveServers(resources); len(servers) > 1 {
		warn = warn.Merge(status.Warning(status.MultiServerHitlist,
			fmt.Sprintf("anonymous hitlist across archive servers %s", strings.Join(servers, ", "))))
	}
	return anonymous(resources, cat), warn, nil
}

// anonymous collects every resource's listed fields, then the record-attribute columns.
func anonymous(resources []resource.Descriptor, cat Catalog) []Column {
	var cols []Column
	seen := make(map[string]bool)
	for _, r := range resources {
		fields, _ := cat.Fields(r.ID())
		for _, f := range fields {
			if !f.Listed() || seen[f.Name()] {
				continue
			}
			seen[f.Name()] = true
			cols = append(cols, Column{Name: f.Name(), Label: f.Label(), Kind: f.Kind()})
		}
	}
	for _, c := range recordColumns {
		if !seen[c.Name] {
			seen[c.Name] = true
			cols = append(cols, c)
		}
	}
	return cols
}

// lookup finds a field in the first resource declaring it.
func lookup(resources []resource.Descriptor, cat Catalog, name string) Column {
	for _, r := range resources {
		fields, _ := cat.Fields(r.ID())
		for _, f := range fields {
			if f.Name() == name {
				return Column{Name: name, Label: f.Label(), Kind: f.Kind()}
			}
		}
	}
	return fallbackColumn(name)
}

func columnFor(cat Catalog, resourceID, name string) Column {
	fields, _ := cat.Fields(resourceID)
	for _, f := range fields {
		if f.Name() == name {
			return Column{Name: name, Label: f.Label(), Kind: f.Kind()}
		}
	}
	return fallbackColumn(name)
}

func fallbackColumn(name string) Column {
	for _, c := range recordColumns {
		if c.Name == name {
			return c
		}
	}
	return Column{Name: name, Label: name, Kind: field.String}
}
