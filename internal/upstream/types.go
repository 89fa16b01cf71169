package upstream

import "encoding/json"

// TaskRecord is one task as fetched from the upstream API, with foreign
// keys unresolved. Denormalization against the side tables happens during
// reconciliation, after all pages and filter dimensions are in.
type TaskRecord struct {
	ID         string
	Number     int
	Title      string
	DueDate    string
	CreatedAt  string
	UpdatedAt  string
	AssigneeID string
	ProjectID  string
	StatusID   string
	URL        string
}

// SideTables accumulate included entities across pages and filter
// dimensions, so a record's foreign keys resolve even when the referenced
// entity appeared on a different page.
type SideTables struct {
	People   map[string]string
	Projects map[string]string
	Statuses map[string]string
}

// NewSideTables returns empty side tables.
func NewSideTables() *SideTables {
	return &SideTables{
		People:   map[string]string{},
		Projects: map[string]string{},
		Statuses: map[string]string{},
	}
}

// Identity is the resolved upstream org and person for the configured token.
type Identity struct {
	OrgID    string
	PersonID string
}

// ProgressEvent is emitted once per fetched page.
type ProgressEvent struct {
	Phase   string `json:"phase"`
	Page    int    `json:"page"`
	HasMore bool   `json:"hasMore"`
	Records int    `json:"recordsSoFar"`
}

// ProgressFunc receives progress events during a fetch. May be nil.
type ProgressFunc func(ProgressEvent)

// Wire types for the upstream JSON:API payloads.

type pageResponse struct {
	Data     []resource `json:"data"`
	Included []resource `json:"included"`
	Links    pageLinks  `json:"links"`
}

type pageLinks struct {
	Next string `json:"next"`
}

type resource struct {
	ID            string                  `json:"id"`
	Type          string                  `json:"type"`
	Attributes    json.RawMessage         `json:"attributes"`
	Relationships map[string]relationship `json:"relationships"`
}

type relationship struct {
	Data *relationshipData `json:"data"`
}

type relationshipData struct {
	ID string `json:"id"`
}

type taskAttributes struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	DueDate   string `json:"due_date"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type namedAttributes struct {
	Name string `json:"name"`
}

type meResponse struct {
	Data resource `json:"data"`
}
