// Package agent provides the HTTP client and wire types for the ArtiCube
// agent and content API.
package agent

// QueryRequest is the body of POST /api/agent/query.
type QueryRequest struct {
	Query             string         `json:"query"`
	AdditionalContext map[string]any `json:"additional_context"`
}

// Source is a citation returned alongside an answer.
type Source struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// QueryResponse is returned by POST /api/agent/query.
type QueryResponse struct {
	Response string         `json:"response"`
	Sources  []Source       `json:"sources,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// HistoryItem is one row of GET /api/agent/history.
type HistoryItem struct {
	ID        string `json:"id"`
	Query     string `json:"query"`
	Response  string `json:"response"`
	Timestamp string `json:"timestamp"`
}

// Content is a readable item returned by GET /api/content/{id}.
type Content struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Summary     string   `json:"summary,omitempty"`
	ContentType string   `json:"content_type,omitempty"`
	FullContent string   `json:"full_content"`
	SourceURL   string   `json:"source_url,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// SaveOptions are stored alongside a saved content item.
type SaveOptions struct {
	ReadPosition *int
	Notes        string
}

// Limits accepted by the history endpoint.
const (
	MinHistoryLimit = 1
	MaxHistoryLimit = 50
)
