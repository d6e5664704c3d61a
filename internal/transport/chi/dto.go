package chi

import (
	"encoding/json"

	"github.com/kailas-cloud/fedsearch/internal/domain/search/hitlist"
	"github.com/kailas-cloud/fedsearch/internal/usecase/health"
	"github.com/kailas-cloud/fedsearch/internal/version"
)

// ErrorCode is the machine-readable code of an error response.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest             ErrorCode = "bad_request"
	CodeValidationFailed       ErrorCode = "validation_failed"
	CodeUnknownResource        ErrorCode = "unknown_resource"
	CodeResultSetNotFound      ErrorCode = "result_set_not_found"
	CodeResultSetIDTaken       ErrorCode = "result_set_id_taken"
	CodeSearchCancelled        ErrorCode = "search_cancelled"
	CodeEmbeddingProviderError ErrorCode = "embedding_provider_error"
	CodeInternalError          ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// RangeDTO bounds a numeric, date or timestamp field. Dates compare as unix milliseconds.
type RangeDTO struct {
	GT  *float64 `json:"gt,omitempty"`
	GTE *float64 `json:"gte,omitempty"`
	LT  *float64 `json:"lt,omitempty"`
	LTE *float64 `json:"lte,omitempty"`
}

// ConditionDTO is either an exact match or a range over one field.
type ConditionDTO struct {
	Key   string    `json:"key"`
	Match string    `json:"match,omitempty"`
	Range *RangeDTO `json:"range,omitempty"`
}

// FiltersDTO is a structured filter with must/should/must_not groups.
type FiltersDTO struct {
	Must    []ConditionDTO `json:"must,omitempty"`
	Should  []ConditionDTO `json:"should,omitempty"`
	MustNot []ConditionDTO `json:"must_not,omitempty"`
}

// CriterionDTO declares a search field, filled when Value is set.
type CriterionDTO struct {
	Field string `json:"field"`
	Value string `json:"value,omitempty"`
}

// PutAsideDTO asks for the result set to be kept in the side buffer.
type PutAsideDTO struct {
	LifetimeSec int    `json:"lifetime_sec"`
	ID          string `json:"id,omitempty"`
}

// SearchRequest is the body of POST /v1/search.
type SearchRequest struct {
	Resources []string       `json:"resources"`
	Text      string         `json:"text,omitempty"`
	Criteria  []CriterionDTO `json:"criteria,omitempty"`
	Filters   *FiltersDTO    `json:"filters,omitempty"`
	Sort      string         `json:"sort,omitempty"`
	// Hitlist names a declared hitlist; Fields lists explicit columns. At most one is set.
	Hitlist string   `json:"hitlist,omitempty"`
	Fields  []string `json:"fields,omitempty"`
	// PageSize: absent uses the caller's preference, 0 loads everything.
	PageSize              *int         `json:"page_size,omitempty"`
	AllowHitLimitOverride bool         `json:"allow_hit_limit_override,omitempty"`
	FullColumnLength      bool         `json:"full_column_length,omitempty"`
	PutAside              *PutAsideDTO `json:"put_aside,omitempty"`
}

// StatusDTO is the non-fatal error channel: 0 ok, >0 warning, <0 fatal.
type StatusDTO struct {
	Code int    `json:"code"`
	Text string `json:"text,omitempty"`
}

// DefaultDTO is a presentation default applied by a pre-search hook.
type DefaultDTO struct {
	Value  string `json:"value"`
	Locked bool   `json:"locked,omitempty"`
}

// RowDTO is one hit.
type RowDTO struct {
	Index      int            `json:"index"`
	ResourceID string         `json:"resource_id"`
	Key        string         `json:"key"`
	Values     map[string]any `json:"values"`
}

// ResultSetResponse carries a page of a result set.
type ResultSetResponse struct {
	Columns    []hitlist.Column      `json:"columns"`
	Rows       []RowDTO              `json:"rows"`
	Size       int                   `json:"size"`
	Loaded     int                   `json:"loaded"`
	PageSize   int                   `json:"page_size"`
	Status     StatusDTO             `json:"status"`
	Diagnostic string                `json:"diagnostic,omitempty"`
	Defaults   map[string]DefaultDTO `json:"defaults,omitempty"`
	// ResultSetID is set when the result set was put aside.
	ResultSetID string `json:"result_set_id,omitempty"`
	// Fetched reports whether a next-page call appended rows.
	Fetched *bool `json:"fetched,omitempty"`
}

// CursorRequest is the body of POST /v1/cursors.
type CursorRequest struct {
	Resource string      `json:"resource"`
	Filters  *FiltersDTO `json:"filters,omitempty"`
	Sort     string      `json:"sort,omitempty"`
}

// CursorResponse carries the exported id list of an opened cursor.
type CursorResponse struct {
	Resource  string          `json:"resource"`
	Size      int             `json:"size"`
	// Truncated is set when more records matched than a cursor may hold.
	Truncated bool            `json:"truncated,omitempty"`
	IDs       json.RawMessage `json:"ids"`
}

// CursorRecordsRequest is the body of POST /v1/cursors/records.
type CursorRecordsRequest struct {
	Resource string          `json:"resource"`
	IDs      json.RawMessage `json:"ids"`
	// Last materializes only the final record.
	Last  bool `json:"last,omitempty"`
	Limit int  `json:"limit,omitempty"`
}

// RecordDTO is one materialized record.
type RecordDTO struct {
	Key    string         `json:"key"`
	Fields map[string]any `json:"fields"`
}

// CursorRecordsResponse carries materialized records. Elements that failed to load are skipped.
type CursorRecordsResponse struct {
	Records   []RecordDTO `json:"records"`
	Skipped   int         `json:"skipped"`
	Exhausted bool        `json:"exhausted"`
}

// PageSizePreference is the body of PUT /v1/preferences/page-size.
type PageSizePreference struct {
	PageSize int `json:"page_size"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  health.Status                 `json:"status"`
	Checks  map[string]health.CheckResult `json:"checks"`
	Version version.Info                  `json:"version"`
}
