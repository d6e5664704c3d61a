package filter

import (
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/fedsearch/internal/domain/search/value"
)

func floatPtr(f float64) *float64 { return &f }

// --- Range tests ---

func TestNewRangeFilter_Valid(t *testing.T) {
	tests := []struct {
		name             string
		gt, gte, lt, lte *float64
	}{
		{"gt only", floatPtr(1), nil, nil, nil},
		{"gte only", nil, floatPtr(0), nil, nil},
		{"lt only", nil, nil, floatPtr(10), nil},
		{"lte only", nil, nil, nil, floatPtr(100)},
		{"gt+lt", floatPtr(0), nil, floatPtr(10), nil},
		{"gte+lte", nil, floatPtr(0), nil, floatPtr(10)},
		{"gt+lte", floatPtr(0), nil, nil, floatPtr(10)},
		{"gte+lt", nil, floatPtr(0), floatPtr(10), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRangeFilter(tt.gt, tt.gte, tt.lt, tt.lte)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (r.GT() == nil) != (tt.gt == nil) {
				t.Error("GT() mismatch")
			}
			if (r.GTE() == nil) != (tt.gte == nil) {
				t.Error("GTE() mismatch")
			}
			if (r.LT() == nil) != (tt.lt == nil) {
				t.Error("LT() mismatch")
			}
			if (r.LTE() == nil) != (tt.lte == nil) {
				t.Error("LTE() mismatch")
			}
		})
	}
}

func TestNewRangeFilter_NoBoundary(t *testing.T) {
	_, err := NewRangeFilter(nil, nil, nil, nil)
	if err == nil {
		t.Fatal("expected error for no boundary")
	}
	if !strings.Contains(err.Error(), "at least one") {
		t.Errorf("error = %q", err)
	}
}

func TestNewRangeFilter_BothGtAndGte(t *testing.T) {
	_, err := NewRangeFilter(floatPtr(1), floatPtr(1), nil, nil)
	if err == nil {
		t.Fatal("expected error for both gt and gte")
	}
	if !strings.Contains(err.Error(), "gt and gte") {
		t.Errorf("error = %q", err)
	}
}

func TestNewRangeFilter_BothLtAndLte(t *testing.T) {
	_, err := NewRangeFilter(nil, nil, floatPtr(1), floatPtr(1))
	if err == nil {
		t.Fatal("expected error for both lt and lte")
	}
	if !strings.Contains(err.Error(), "lt and lte") {
		t.Errorf("error = %q", err)
	}
}

// --- Condition tests ---

func TestNewMatch_Valid(t *testing.T) {
	c, err := NewMatch("status", "open")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Key() != "status" {
		t.Errorf("Key() = %q", c.Key())
	}
	if c.Match() != "open" {
		t.Errorf("Match() = %q", c.Match())
	}
	if !c.IsMatch() {
		t.Error("IsMatch() = false")
	}
	if c.IsRange() {
		t.Error("IsRange() = true for match condition")
	}
	if c.Range() != nil {
		t.Error("Range() should be nil for match")
	}
}

func TestNewMatch_EmptyKey(t *testing.T) {
	_, err := NewMatch("", "go")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "key is required") {
		t.Errorf("error = %q", err)
	}
}

func TestNewMatch_EmptyValue(t *testing.T) {
	_, err := NewMatch("status", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "match value") {
		t.Errorf("error = %q", err)
	}
}

func TestNewRange_Valid(t *testing.T) {
	r, _ := NewRangeFilter(floatPtr(0), nil, floatPtr(100), nil)
	c, err := NewRange("amount", r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Key() != "amount" {
		t.Errorf("Key() = %q", c.Key())
	}
	if !c.IsRange() {
		t.Error("IsRange() = false")
	}
	if c.IsMatch() {
		t.Error("IsMatch() = true for range condition")
	}
	if c.Match() != "" {
		t.Error("Match() should be empty for range")
	}
	if c.Range() == nil {
		t.Fatal("Range() should not be nil")
	}
}

func TestNewRange_EmptyKey(t *testing.T) {
	r, _ := NewRangeFilter(floatPtr(0), nil, nil, nil)
	_, err := NewRange("", r)
	if err == nil {
		t.Fatal("expected error")
	}
}

// --- Expression tests ---

func TestNewExpression_Valid(t *testing.T) {
	m, _ := NewMatch("status", "open")
	expr, err := NewExpression([]Condition{m}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(expr.Must()) != 1 {
		t.Errorf("Must() len = %d", len(expr.Must()))
	}
	if len(expr.Should()) != 0 {
		t.Errorf("Should() len = %d", len(expr.Should()))
	}
	if len(expr.MustNot()) != 0 {
		t.Errorf("MustNot() len = %d", len(expr.MustNot()))
	}
	if expr.IsEmpty() {
		t.Error("IsEmpty() = true for non-empty expression")
	}
}

func TestNewExpression_Empty(t *testing.T) {
	expr, err := NewExpression(nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !expr.IsEmpty() {
		t.Error("IsEmpty() = false for empty expression")
	}
}

func TestNewExpression_AllGroups(t *testing.T) {
	m1, _ := NewMatch("a", "1")
	m2, _ := NewMatch("b", "2")
	m3, _ := NewMatch("c", "3")

	expr, err := NewExpression([]Condition{m1}, []Condition{m2}, []Condition{m3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(expr.Must()) != 1 || len(expr.Should()) != 1 || len(expr.MustNot()) != 1 {
		t.Error("expected 1 condition in each group")
	}
}

func TestNewExpression_TooManyMust(t *testing.T) {
	conds := make([]Condition, MaxConditionsPerGroup+1)
	for i := range conds {
		conds[i] = Condition{key: "k", match: "v"}
	}
	_, err := NewExpression(conds, nil, nil)
	if err == nil {
		t.Fatal("expected error for too many must conditions")
	}
	if !strings.Contains(err.Error(), "too many must") {
		t.Errorf("error = %q", err)
	}
}

func TestNewExpression_AtMaxConditions(t *testing.T) {
	conds := make([]Condition, MaxConditionsPerGroup)
	for i := range conds {
		conds[i] = Condition{key: "k", match: "v"}
	}
	_, err := NewExpression(conds, conds, conds)
	if err != nil {
		t.Fatalf("unexpected error for exactly max conditions: %v", err)
	}
}

// --- Evaluation tests ---

func TestExpression_Matches(t *testing.T) {
	open, _ := NewMatch("status", "open")
	red, _ := NewMatch("tags", "red")
	blue, _ := NewMatch("tags", "blue")
	archived, _ := NewMatch("archived", "true")
	r, _ := NewRangeFilter(nil, floatPtr(10), floatPtr(100), nil)
	amount, _ := NewRange("amount", r)

	expr, err := NewExpression(
		[]Condition{open, amount},
		[]Condition{red, blue},
		[]Condition{archived},
	)
	if err != nil {
		t.Fatal(err)
	}

	base := func() map[string]value.Value {
		return map[string]value.Value{
			"status":   value.Str("open"),
			"amount":   value.Num(10),
			"tags":     value.Enum("green", "blue"),
			"archived": value.Boolean(false),
		}
	}

	tests := []struct {
		name   string
		mutate func(m map[string]value.Value)
		want   bool
	}{
		{"all hold", func(map[string]value.Value) {}, true},
		{"must fails", func(m map[string]value.Value) { m["status"] = value.Str("closed") }, false},
		{"range upper bound exclusive", func(m map[string]value.Value) { m["amount"] = value.Num(100) }, false},
		{"missing field", func(m map[string]value.Value) { delete(m, "amount") }, false},
		{"no should holds", func(m map[string]value.Value) { m["tags"] = value.Enum("green") }, false},
		{"must_not holds", func(m map[string]value.Value) { m["archived"] = value.Boolean(true) }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base()
			tt.mutate(m)
			if got := expr.Matches(m); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCondition_MatchesTimestampRange(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	lo := float64(ts.Add(-time.Hour).UnixMilli())
	r, _ := NewRangeFilter(floatPtr(lo), nil, nil, nil)
	c, _ := NewRange("created_at", r)
	if !c.Matches(value.TimestampOf(ts)) {
		t.Error("timestamp after lower bound should match")
	}
	if c.Matches(value.Str("2024-01-01")) {
		t.Error("strings never satisfy a range")
	}
}

func TestExpression_FieldsAndWithMust(t *testing.T) {
	a, _ := NewMatch("a", "1")
	b, _ := NewMatch("b", "2")
	expr, _ := NewExpression([]Condition{a}, []Condition{b, a}, nil)
	if got := expr.Fields(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Fields() = %v", got)
	}
	c, _ := NewMatch("c", "3")
	ext := expr.WithMust(c)
	if len(ext.Must()) != 2 || len(expr.Must()) != 1 {
		t.Errorf("WithMust must not mutate the receiver: %d, %d", len(ext.Must()), len(expr.Must()))
	}
}
