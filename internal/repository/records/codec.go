package records

import (
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/fedsearch/internal/domain/search/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/value"
)

// Decode converts a stored hash field into a typed value of the declared kind.
// Dates and timestamps are stored as unix milliseconds; unparsable input stays a string.
func Decode(kind field.Kind, raw string) value.Value {
	vk := kind.ValueKind()
	if vk == value.Date {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return value.DateOf(time.UnixMilli(ms))
		}
	}
	v, err := value.Parse(vk, raw)
	if err != nil {
		return value.Str(raw)
	}
	return v
}

// Encode renders a value in its stored form so numeric indexes can range over it.
func Encode(v value.Value) string {
	switch v.Kind() {
	case value.Date, value.Timestamp:
		t, _ := v.Time()
		return strconv.FormatInt(t.UnixMilli(), 10)
	case value.Bool:
		if b, _ := v.Bool(); b {
			return "1"
		}
		return "0"
	default:
		return v.String()
	}
}

// internalField reports hash fields that never surface as record values.
func internalField(name string) bool {
	return strings.HasPrefix(name, "__") || name == "vector"
}
