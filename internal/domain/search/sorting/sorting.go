package sorting

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/fedsearch/internal/domain/search/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/value"
)

// MaxKeys is the maximum number of sort keys per request.
const MaxKeys = 8

// Key is one sort criterion.
type Key struct {
	field string
	desc  bool
}

// NewKey validates and creates a sort Key.
func NewKey(name string, desc bool) (Key, error) {
	if err := field.ValidateName(name); err != nil {
		return Key{}, fmt.Errorf("sort key: %w", err)
	}
	return Key{field: name, desc: desc}, nil
}

// Field returns the sorted field name.
func (k Key) Field() string { return k.field }

// Desc reports descending order.
func (k Key) Desc() bool { return k.desc }

// String renders the key as "field ASC" or "field DESC".
func (k Key) String() string {
	if k.desc {
		return k.field + " DESC"
	}
	return k.field + " ASC"
}

// Parse reads a sort expression like "created_at DESC, title".
// An empty expression yields no keys.
func Parse(expr string) ([]Key, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	parts := strings.Split(expr, ",")
	if len(parts) > MaxKeys {
		return nil, fmt.Errorf("too many sort keys (max %d)", MaxKeys)
	}
	keys := make([]Key, 0, len(parts))
	for _, p := range parts {
		tokens := strings.Fields(p)
		if len(tokens) == 0 || len(tokens) > 2 {
			return nil, fmt.Errorf("invalid sort key %q", strings.TrimSpace(p))
		}
		desc := false
		if len(tokens) == 2 {
			switch strings.ToUpper(tokens[1]) {
			case "ASC":
			case "DESC":
				desc = true
			default:
				return nil, fmt.Errorf("invalid sort direction %q", tokens[1])
			}
		}
		k, err := NewKey(tokens[0], desc)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Format renders keys back into a sort expression.
func Format(keys []Key) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, ", ")
}

// Compare orders two field maps by the given keys. Null and missing values sort last
// in both directions.
func Compare(keys []Key, a, b map[string]value.Value) int {
	for _, k := range keys {
		av, bv := a[k.field], b[k.field]
		switch {
		case av.IsNull() && bv.IsNull():
			continue
		case av.IsNull():
			return 1
		case bv.IsNull():
			return -1
		}
		c := value.Compare(av, bv)
		if c == 0 {
			continue
		}
		if k.desc {
			return -c
		}
		return c
	}
	return 0
}
