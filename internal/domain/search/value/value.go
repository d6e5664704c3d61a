// Package value holds the typed field value used for hit columns and record fields.
package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind discriminates the Value sum type.
type Kind uint8

// Value kinds.
const (
	Null Kind = iota
	String
	Number
	Bool
	Date
	Timestamp
	EnumKeys
)

var kindNames = map[Kind]string{
	Null: "null", String: "string", Number: "number", Bool: "bool",
	Date: "date", Timestamp: "timestamp", EnumKeys: "enum",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// DateLayout is the wire format of Date values.
const DateLayout = "2006-01-02"

// Value is an immutable typed field value. The zero Value is Null.
type Value struct {
	kind Kind
	s    string
	n    float64
	b    bool
	t    time.Time
	keys []string
}

// Str creates a String value.
func Str(s string) Value { return Value{kind: String, s: s} }

// Num creates a Number value.
func Num(n float64) Value { return Value{kind: Number, n: n} }

// Boolean creates a Bool value.
func Boolean(b bool) Value { return Value{kind: Bool, b: b} }

// DateOf creates a Date value truncated to the UTC day.
func DateOf(t time.Time) Value {
	u := t.UTC()
	return Value{kind: Date, t: time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)}
}

// TimestampOf creates a Timestamp value.
func TimestampOf(t time.Time) Value { return Value{kind: Timestamp, t: t.UTC()} }

// Enum creates an EnumKeys value. The keys slice is copied.
func Enum(keys ...string) Value {
	return Value{kind: EnumKeys, keys: append([]string(nil), keys...)}
}

// Kind returns the value kind.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is Null.
func (v Value) IsNull() bool { return v.kind == Null }

// Text returns the string payload of a String value.
func (v Value) Text() (string, bool) { return v.s, v.kind == String }

// Float returns the payload of a Number value.
func (v Value) Float() (float64, bool) { return v.n, v.kind == Number }

// Bool returns the payload of a Bool value.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == Bool }

// Time returns the payload of a Date or Timestamp value.
func (v Value) Time() (time.Time, bool) { return v.t, v.kind == Date || v.kind == Timestamp }

// Keys returns a copy of the payload of an EnumKeys value.
func (v Value) Keys() ([]string, bool) {
	if v.kind != EnumKeys {
		return nil, false
	}
	return append([]string(nil), v.keys...), true
}

// String renders the value in its wire representation.
func (v Value) String() string {
	switch v.kind {
	case String:
		return v.s
	case Number:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case Bool:
		return strconv.FormatBool(v.b)
	case Date:
		return v.t.Format(DateLayout)
	case Timestamp:
		return v.t.Format(time.RFC3339Nano)
	case EnumKeys:
		return strings.Join(v.keys, ",")
	default:
		return ""
	}
}

// Interface returns the payload as a plain Go value for response encoding.
func (v Value) Interface() any {
	switch v.kind {
	case String:
		return v.s
	case Number:
		return v.n
	case Bool:
		return v.b
	case Date, Timestamp:
		return v.String()
	case EnumKeys:
		return append([]string(nil), v.keys...)
	default:
		return nil
	}
}

// Truncate shortens a String value to at most maxRunes runes. Other kinds are returned unchanged.
func (v Value) Truncate(maxRunes int) Value {
	if v.kind != String || maxRunes <= 0 || utf8.RuneCountInString(v.s) <= maxRunes {
		return v
	}
	i, n := 0, 0
	for i = range v.s {
		if n == maxRunes {
			break
		}
		n++
	}
	return Str(v.s[:i])
}

// Parse converts a raw stored string into a value of kind k.
// Empty input yields Null for every kind except String.
func Parse(k Kind, raw string) (Value, error) {
	if raw == "" && k != String {
		return Value{}, nil
	}
	switch k {
	case Null:
		return Value{}, nil
	case String:
		return Str(raw), nil
	case Number:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse number %q: %w", raw, err)
		}
		return Num(n), nil
	case Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return Value{}, fmt.Errorf("parse bool %q: %w", raw, err)
		}
		return Boolean(b), nil
	case Date:
		t, err := time.Parse(DateLayout, raw)
		if err != nil {
			return Value{}, fmt.Errorf("parse date %q: %w", raw, err)
		}
		return DateOf(t), nil
	case Timestamp:
		t, err := parseTimestamp(raw)
		if err != nil {
			return Value{}, err
		}
		return TimestampOf(t), nil
	case EnumKeys:
		return Enum(strings.Split(raw, ",")...), nil
	default:
		return Value{}, fmt.Errorf("unknown value kind %d", k)
	}
}

// parseTimestamp accepts RFC 3339 or unix milliseconds.
func parseTimestamp(raw string) (time.Time, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return t, nil
}

// Compare orders two values: -1, 0 or +1. Values of different kinds order by kind;
// Null sorts before everything, callers that want nulls last handle that themselves.
func Compare(a, b Value) int {
	if a.kind != b.kind {
		return cmpInt(int(a.kind), int(b.kind))
	}
	switch a.kind {
	case String:
		return strings.Compare(a.s, b.s)
	case Number:
		return cmpFloat(a.n, b.n)
	case Bool:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		default:
			return 1
		}
	case Date, Timestamp:
		return a.t.Compare(b.t)
	case EnumKeys:
		return strings.Compare(strings.Join(a.keys, ","), strings.Join(b.keys, ","))
	default:
		return 0
	}
}

// Equal reports whether two values have the same kind and payload.
func Equal(a, b Value) bool { return Compare(a, b) == 0 }

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case math.IsNaN(a) && math.IsNaN(b):
		return 0
	case math.IsNaN(a):
		return -1
	case math.IsNaN(b):
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// wireValue is the JSON envelope of a Value.
type wireValue struct {
	Kind  string   `json:"k"`
	Value string   `json:"v,omitempty"`
	Keys  []string `json:"keys,omitempty"`
}

// MarshalJSON encodes the value with its kind so it round-trips exactly.
func (v Value) MarshalJSON() ([]byte, error) {
	w := wireValue{Kind: v.kind.String()}
	if v.kind == EnumKeys {
		w.Keys = v.keys
	} else {
		w.Value = v.String()
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a value produced by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	for k, name := range kindNames {
		if name != w.Kind {
			continue
		}
		if k == EnumKeys {
			*v = Enum(w.Keys...)
			return nil
		}
		if k == String {
			*v = Str(w.Value)
			return nil
		}
		parsed, err := Parse(k, w.Value)
		if err != nil {
			return err
		}
		*v = parsed
		return nil
	}
	return fmt.Errorf("decode value: unknown kind %q", w.Kind)
}
