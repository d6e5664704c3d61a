package mode

// Mode is the retrieval strategy of a federated-store resource.
type Mode string

// Search mode constants.
const (
	// Hybrid fuses semantic and keyword rankings.
	Hybrid   Mode = "hybrid"
	Semantic Mode = "semantic"
	Keyword  Mode = "keyword"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Hybrid || m == Semantic || m == Keyword
}

// NeedsEmbedding reports whether the mode vectorizes the query text.
func (m Mode) NeedsEmbedding() bool {
	return m == Hybrid || m == Semantic
}
