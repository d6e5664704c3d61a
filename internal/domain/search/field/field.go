package field

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/fedsearch/internal/domain/search/value"
)

// Kind is the declared type of a field.
type Kind string

// Field kind constants.
const (
	String           Kind = "string"
	Text             Kind = "text"
	Integer          Kind = "integer"
	Numeric          Kind = "numeric"
	Decimal          Kind = "decimal"
	Boolean          Kind = "boolean"
	Date             Kind = "date"
	Timestamp        Kind = "timestamp"
	Time             Kind = "time"
	Enumeration      Kind = "enumeration"
	MultiEnumeration Kind = "multi_enumeration"
	Reference        Kind = "reference"
	User             Kind = "user"
	Group            Kind = "group"
	Email            Kind = "email"
	URL              Kind = "url"
	FileSize         Kind = "filesize"
	Duration         Kind = "duration"
)

var valueKinds = map[Kind]value.Kind{
	String: value.String, Text: value.String, Reference: value.String, User: value.String,
	Group: value.String, Email: value.String, URL: value.String,
	Integer: value.Number, Numeric: value.Number, Decimal: value.Number,
	FileSize: value.Number, Duration: value.Number,
	Boolean:   value.Bool,
	Date:      value.Date,
	Timestamp: value.Timestamp, Time: value.Timestamp,
	Enumeration: value.EnumKeys, MultiEnumeration: value.EnumKeys,
}

// IsValid checks if the kind is one of the declared field kinds.
func (k Kind) IsValid() bool {
	_, ok := valueKinds[k]
	return ok
}

// ValueKind maps the declared kind to the typed value it is stored as.
func (k Kind) ValueKind() value.Kind {
	if vk, ok := valueKinds[k]; ok {
		return vk
	}
	return value.String
}

// IsNumeric reports whether the backend indexes the field as a number.
func (k Kind) IsNumeric() bool {
	switch k.ValueKind() {
	case value.Number, value.Date, value.Timestamp, value.Bool:
		return true
	}
	return false
}

// Descriptor describes one queryable/displayable field (immutable value object).
type Descriptor struct {
	name          string
	label         string
	kind          Kind
	listed        bool
	defaultValue  *string
	defaultLocked bool
}

// New validates and creates a Descriptor.
// Name must be non-empty, comma-free, max 64 chars. Label defaults to the name.
func New(name, label string, kind Kind) (Descriptor, error) {
	if err := ValidateName(name); err != nil {
		return Descriptor{}, err
	}
	if !kind.IsValid() {
		return Descriptor{}, fmt.Errorf("invalid field kind %q for %q", kind, name)
	}
	if label == "" {
		label = name
	}
	return Descriptor{name: name, label: label, kind: kind}, nil
}

// ValidateName checks a technical field name.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("field name is required")
	}
	if len(name) > 64 {
		return fmt.Errorf("field name %q too long (max 64)", name)
	}
	if strings.Contains(name, ",") {
		return fmt.Errorf("field name %q must not contain a comma", name)
	}
	return nil
}

// Reconstruct creates a Descriptor without validation (catalog and snapshot hydration).
func Reconstruct(name, label string, kind Kind, listed bool) Descriptor {
	return Descriptor{name: name, label: label, kind: kind, listed: listed}
}

// Name returns the technical field name.
func (d Descriptor) Name() string { return d.name }

// Label returns the localized label.
func (d Descriptor) Label() string { return d.label }

// Kind returns the declared field kind.
func (d Descriptor) Kind() Kind { return d.kind }

// Listed reports whether the field is displayed in hit lists by default.
func (d Descriptor) Listed() bool { return d.listed }

// Default returns the attached default value, if any.
func (d Descriptor) Default() (string, bool) {
	if d.defaultValue == nil {
		return "", false
	}
	return *d.defaultValue, true
}

// DefaultLocked reports whether the default is write-protected in the presentation layer.
func (d Descriptor) DefaultLocked() bool { return d.defaultLocked }

// WithListed returns a copy with the listed-by-default flag set.
func (d Descriptor) WithListed(listed bool) Descriptor {
	d.listed = listed
	return d
}

// WithDefault returns a copy carrying a default value and its write protection.
func (d Descriptor) WithDefault(v string, locked bool) Descriptor {
	d.defaultValue = &v
	d.defaultLocked = locked
	return d
}

// WithLabel returns a copy with a different label.
func (d Descriptor) WithLabel(label string) Descriptor {
	d.label = label
	return d
}
