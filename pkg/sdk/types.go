package fedsearch

// Query is a federated search over one or more catalog resources. The first
// resource is the primary one.
type Query struct {
	Resources []string
	Text      string
	// Criteria maps declared field names to search values.
	Criteria map[string]string
	// Match holds exact-match filters applied to every resource.
	Match map[string]string
	// Sort is a comma-separated key list like "amount DESC, order_no".
	Sort string
	// Hitlist names a declared hitlist; Fields lists explicit columns. At most one is set.
	Hitlist string
	Fields  []string
	// PageSize 0 uses the caller's preferred or the default page size.
	PageSize int
	// LoadAll loads every hit at once instead of paging.
	LoadAll               bool
	AllowHitLimitOverride bool
	FullColumnLength      bool
}

// Column is one hitlist column.
type Column struct {
	Name  string
	Label string
	Kind  string
}

// Row is one hit, flattened to plain Go values.
type Row struct {
	Index    int
	Resource string
	Key      string
	Values   map[string]any
}

// Record is one materialized record.
type Record struct {
	Resource string
	Key      string
	Fields   map[string]any
}

// Status is the non-fatal error channel of a result set: 0 ok, >0 warning, <0 fatal.
type Status struct {
	Code int
	Text string
}

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            // "ok", "degraded", "error"
	Checks map[string]string // component -> "ok"/"error"
}
