// Package catalog loads the resource catalog: per-resource field declarations,
// named hitlists and retrieval modes.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/hitlist"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/mode"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/resource"
)

type fileDTO struct {
	Resources []resourceDTO `yaml:"resources"`
}

type resourceDTO struct {
	ID       string              `yaml:"id"`
	Type     string              `yaml:"type"`
	Server   string              `yaml:"server"`
	Mode     string              `yaml:"mode"`
	Fields   []fieldDTO          `yaml:"fields"`
	Hitlists map[string][]string `yaml:"hitlists"`
}

type fieldDTO struct {
	Name   string `yaml:"name"`
	Label  string `yaml:"label"`
	Kind   string `yaml:"kind"`
	Listed bool   `yaml:"listed"`
}

type entry struct {
	desc     resource.Descriptor
	mode     mode.Mode
	fields   []field.Descriptor
	byName   map[string]field.Descriptor
	hitlists map[string][]string
}

// Catalog is an immutable, in-memory resource catalog.
type Catalog struct {
	order   []string
	entries map[string]*entry
}

// Load reads and parses a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse builds a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var dto fileDTO
	if err := yaml.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{entries: make(map[string]*entry, len(dto.Resources))}
	for _, r := range dto.Resources {
		e, err := toEntry(r)
		if err != nil {
			return nil, err
		}
		if _, dup := c.entries[r.ID]; dup {
			return nil, fmt.Errorf("duplicate resource %q", r.ID)
		}
		c.entries[r.ID] = e
		c.order = append(c.order, r.ID)
	}
	return c, nil
}

func toEntry(r resourceDTO) (*entry, error) {
	desc, err := resource.New(r.ID, resource.BackendType(r.Type), r.Server)
	if err != nil {
		return nil, fmt.Errorf("resource %q: %w", r.ID, err)
	}

	m := mode.Mode(r.Mode)
	if m == "" {
		m = mode.Hybrid
	}
	if !m.IsValid() {
		return nil, fmt.Errorf("resource %q: invalid mode %q", r.ID, r.Mode)
	}

	e := &entry{
		desc:     desc,
		mode:     m,
		byName:   make(map[string]field.Descriptor, len(r.Fields)),
		hitlists: r.Hitlists,
	}
	for _, f := range r.Fields {
		d, err := field.New(f.Name, f.Label, field.Kind(f.Kind))
		if err != nil {
			return nil, fmt.Errorf("resource %q: %w", r.ID, err)
		}
		if _, dup := e.byName[d.Name()]; dup {
			return nil, fmt.Errorf("resource %q: duplicate field %q", r.ID, d.Name())
		}
		d = d.WithListed(f.Listed)
		e.fields = append(e.fields, d)
		e.byName[d.Name()] = d
	}
	for name, cols := range r.Hitlists {
		if len(cols) == 0 {
			return nil, fmt.Errorf("resource %q: hitlist %q is empty", r.ID, name)
		}
	}
	return e, nil
}

// Resources returns every declared resource in file order.
func (c *Catalog) Resources() []resource.Descriptor {
	out := make([]resource.Descriptor, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id].desc)
	}
	return out
}

// Resource looks up a resource by id.
func (c *Catalog) Resource(id string) (resource.Descriptor, error) {
	e, ok := c.entries[id]
	if !ok {
		return resource.Descriptor{}, fmt.Errorf("%w: %s", domain.ErrUnknownResource, id)
	}
	return e.desc, nil
}

// Fields implements hitlist.Catalog.
func (c *Catalog) Fields(resourceID string) ([]field.Descriptor, bool) {
	e, ok := c.entries[resourceID]
	if !ok {
		return nil, false
	}
	return append([]field.Descriptor(nil), e.fields...), true
}

// Hitlist implements hitlist.Catalog.
func (c *Catalog) Hitlist(resourceID, name string) ([]string, bool) {
	e, ok := c.entries[resourceID]
	if !ok {
		return nil, false
	}
	cols, ok := e.hitlists[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), cols...), true
}

// Field looks up one declared field of a resource.
func (c *Catalog) Field(resourceID, name string) (field.Descriptor, bool) {
	e, ok := c.entries[resourceID]
	if !ok {
		return field.Descriptor{}, false
	}
	d, ok := e.byName[name]
	return d, ok
}

// Kind returns the declared kind of a field, falling back to the fixed record columns.
// Unknown fields are plain strings.
func (c *Catalog) Kind(resourceID, name string) field.Kind {
	if d, ok := c.Field(resourceID, name); ok {
		return d.Kind()
	}
	for _, col := range hitlist.RecordColumns() {
		if col.Name == name {
			return col.Kind
		}
	}
	return field.String
}

// Mode returns the retrieval mode of a resource (hybrid when unset).
func (c *Catalog) Mode(resourceID string) mode.Mode {
	if e, ok := c.entries[resourceID]; ok {
		return e.mode
	}
	return mode.Hybrid
}
