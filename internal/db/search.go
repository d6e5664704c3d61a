package db

import "github.com/kailas-cloud/fedsearch/internal/domain/search/filter"

// Schema maps field names to their index type so filters render the right syntax.
// Fields absent from the schema are treated as TAG fields.
type Schema map[string]IndexFieldType

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	Filters      filter.Expression
	Schema       Schema
	Vector       []float32
	K            int
	ReturnFields []string
}

// TextQuery is the input for BM25 text search over the content field.
type TextQuery struct {
	IndexName    string
	Query        string
	Filters      filter.Expression
	Schema       Schema
	TopK         int
	ReturnFields []string
}

// ListQuery is the input for a filtered, paged and optionally sorted listing.
type ListQuery struct {
	IndexName    string
	Text         string
	Filters      filter.Expression
	Schema       Schema
	SortBy       string
	SortDesc     bool
	Offset       int
	Limit        int
	ReturnFields []string
	// NoContent returns keys only.
	NoContent bool
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single record hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
