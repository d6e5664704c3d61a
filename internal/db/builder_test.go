package db

import (
	"strings"
	"testing"
)

func TestIndexBuilder_RecordIndex(t *testing.T) {
	idx := NewIndex("fedsearch:ftOrder:idx").
		Prefix("fedsearch:ftOrder:").
		Tag("status").Sortable().
		Numeric("amount").Sortable().
		Text("title").
		MustBuild()

	if len(idx.Fields) != 3 {
		t.Fatalf("fields count = %d, want 3", len(idx.Fields))
	}
	if idx.Fields[0].Name != "status" || idx.Fields[0].Type != IndexFieldTag || !idx.Fields[0].Sortable {
		t.Errorf("field[0] = %+v, want sortable status TAG", idx.Fields[0])
	}
	if idx.Fields[1].Type != IndexFieldNumeric || !idx.Fields[1].Sortable {
		t.Errorf("field[1] = %+v, want sortable NUMERIC", idx.Fields[1])
	}
	if idx.Fields[2].Sortable {
		t.Error("Sortable must only mark the preceding field")
	}
}

func TestIndexBuilder_Schema(t *testing.T) {
	idx := NewIndex("idx").
		Tag("status").
		Numeric("amount").
		Text("title").
		MustBuild()

	s := idx.Schema()
	if s["amount"] != IndexFieldNumeric || s["title"] != IndexFieldText || s["status"] != IndexFieldTag {
		t.Errorf("schema = %v", s)
	}
	if s["missing"] != IndexFieldTag {
		t.Error("unknown fields default to TAG")
	}
}

func TestIndexBuilder_VectorHNSW(t *testing.T) {
	idx := NewIndex("hnsw-idx").
		Prefix("doc:").
		Tag("type").
		VectorHNSW("vector", 768, DistanceCosine, 32, 400).
		MustBuild()

	f := idx.Fields[1]
	if f.VectorAlgo != VectorHNSW || f.VectorDim != 768 || f.VectorDistance != DistanceCosine {
		t.Errorf("vector field = %+v", f)
	}
	if f.VectorM != 32 || f.VectorEFConstruct != 400 {
		t.Errorf("M/EF = %d/%d, want 32/400", f.VectorM, f.VectorEFConstruct)
	}
}

func TestIndexBuilder_TagOptions(t *testing.T) {
	idx := NewIndex("tag-idx").
		Prefix("t:").
		TagWithOpts("labels", ",", true).
		MustBuild()

	f := idx.Fields[0]
	if f.TagSeparator != "," || !f.TagCaseSensitive {
		t.Errorf("tag options = %+v", f)
	}
}

func TestIndexBuilder_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		builder func() (*IndexDefinition, error)
		wantErr string
	}{
		{
			name: "empty name",
			builder: func() (*IndexDefinition, error) {
				return NewIndex("").Tag("x").Build()
			},
			wantErr: "index name is required",
		},
		{
			name: "no fields",
			builder: func() (*IndexDefinition, error) {
				return NewIndex("idx").Build()
			},
			wantErr: "at least one field",
		},
		{
			name: "vector without dim",
			builder: func() (*IndexDefinition, error) {
				return NewIndex("idx").Vector("v", 0, VectorFlat, DistanceCosine).Build()
			},
			wantErr: "positive DIM",
		},
		{
			name: "sortable vector",
			builder: func() (*IndexDefinition, error) {
				return NewIndex("idx").Vector("v", 4, VectorFlat, DistanceCosine).Sortable().Build()
			},
			wantErr: "cannot be sortable",
		},
		{
			name: "invalid characters",
			builder: func() (*IndexDefinition, error) {
				return NewIndex("idx with spaces").Tag("x").Build()
			},
			wantErr: "invalid characters",
		},
		{
			name: "duplicate field",
			builder: func() (*IndexDefinition, error) {
				return NewIndex("idx").Tag("x").Numeric("x").Build()
			},
			wantErr: "duplicate field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("got error %q, want containing %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestIndexDefinition_String(t *testing.T) {
	idx := NewIndex("my-idx").
		Prefix("rec:").
		Tag("cat").Sortable().
		Vector("vector", 512, VectorFlat, DistanceCosine).
		MustBuild()

	want := "FT.CREATE my-idx ON HASH PREFIX rec: SCHEMA cat TAG SORTABLE vector VECTOR FLAT"
	if got := idx.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
