package value

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		raw  string
		want Value
	}{
		{"string", String, "hello", Str("hello")},
		{"empty string stays string", String, "", Str("")},
		{"number", Number, "1.5", Num(1.5)},
		{"bool", Bool, "true", Boolean(true)},
		{"date", Date, "2024-03-01", DateOf(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))},
		{"timestamp millis", Timestamp, "1700000000000", TimestampOf(time.UnixMilli(1700000000000))},
		{"timestamp rfc3339", Timestamp, "2024-03-01T10:00:00Z", TimestampOf(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))},
		{"enum", EnumKeys, "a,b", Enum("a", "b")},
		{"empty number is null", Number, "", Value{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.kind, tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Kind() != tt.want.Kind() || !Equal(got, tt.want) {
				t.Errorf("Parse = %v (%s), want %v (%s)", got, got.Kind(), tt.want, tt.want.Kind())
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, k := range []Kind{Number, Bool, Date, Timestamp} {
		if _, err := Parse(k, "not-a-value"); err == nil {
			t.Errorf("expected error for kind %s", k)
		}
	}
}

func TestCompare(t *testing.T) {
	if Compare(Num(1), Num(2)) != -1 {
		t.Error("1 < 2")
	}
	if Compare(Str("b"), Str("a")) != 1 {
		t.Error("b > a")
	}
	if Compare(Boolean(false), Boolean(true)) != -1 {
		t.Error("false < true")
	}
	if Compare(Value{}, Str("")) != -1 {
		t.Error("null sorts before string")
	}
	d1 := DateOf(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	d2 := DateOf(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	if Compare(d1, d2) != -1 {
		t.Error("earlier date sorts first")
	}
}

func TestTruncate(t *testing.T) {
	v := Str("héllo wörld")
	if got := v.Truncate(5).String(); got != "héllo" {
		t.Errorf("Truncate(5) = %q", got)
	}
	if got := v.Truncate(0).String(); got != "héllo wörld" {
		t.Errorf("Truncate(0) = %q", got)
	}
	if got := v.Truncate(100).String(); got != "héllo wörld" {
		t.Errorf("Truncate(100) = %q", got)
	}
	if got := Num(12345).Truncate(2); !Equal(got, Num(12345)) {
		t.Errorf("numbers are never truncated, got %v", got)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	vals := []Value{
		{}, Str("x"), Num(-2.25), Boolean(true),
		DateOf(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)),
		TimestampOf(time.Date(2023, 12, 31, 23, 59, 59, 500, time.UTC)),
		Enum("open", "closed"),
	}
	for _, v := range vals {
		data, err := v.MarshalJSON()
		if err != nil {
			t.Fatalf("marshal %v: %v", v, err)
		}
		var got Value
		if err := got.UnmarshalJSON(data); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if got.Kind() != v.Kind() || !Equal(got, v) {
			t.Errorf("round trip %s: got %v, want %v", data, got, v)
		}
	}
}

func TestKeys_ReturnsCopy(t *testing.T) {
	v := Enum("a", "b")
	keys, ok := v.Keys()
	if !ok {
		t.Fatal("expected enum keys")
	}
	keys[0] = "mutated"
	again, _ := v.Keys()
	if again[0] != "a" {
		t.Error("Keys() must not expose internal storage")
	}
}
