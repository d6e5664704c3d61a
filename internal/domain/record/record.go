package record

import (
	"fmt"
	"maps"

	"github.com/kailas-cloud/fedsearch/internal/domain/search/value"
)

// Ref identifies a record by its owning resource and backend-native key.
type Ref struct {
	ResourceID string
	Key        string
}

// String renders the ref as resource/key.
func (r Ref) String() string { return r.ResourceID + "/" + r.Key }

// Record is a fully materialized record (immutable value object).
type Record struct {
	ref    Ref
	fields map[string]value.Value
}

// New validates and creates a Record. The fields map is copied.
func New(ref Ref, fields map[string]value.Value) (Record, error) {
	if ref.ResourceID == "" {
		return Record{}, fmt.Errorf("record resource id is required")
	}
	if ref.Key == "" {
		return Record{}, fmt.Errorf("record key is required")
	}
	return Record{ref: ref, fields: maps.Clone(fields)}, nil
}

// Ref returns the record identity.
func (r Record) Ref() Ref { return r.ref }

// Key returns the backend-native key.
func (r Record) Key() string { return r.ref.Key }

// Field returns a single field value; missing fields are Null.
func (r Record) Field(name string) value.Value { return r.fields[name] }

// Fields returns a copy of all field values.
func (r Record) Fields() map[string]value.Value { return maps.Clone(r.fields) }
