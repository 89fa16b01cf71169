package task

import "strconv"

// StatusUnknown is recorded on tombstoned tasks whose live status can no
// longer be observed upstream.
const StatusUnknown = "Unknown"

// Unassigned is the display name used when a task has no assignee.
const Unassigned = "Unassigned"

// Task is one unit of work mirrored from the upstream system. Tasks are
// never physically removed from the snapshot; a task that disappears from
// the upstream fetch is kept as a tombstone with Deleted set.
type Task struct {
	ID            string `json:"id"`
	TicketNumber  int    `json:"ticketNumber"`
	Title         string `json:"title"`
	ProjectID     string `json:"projectId"`
	Project       string `json:"project"`
	Status        string `json:"status"`
	AssigneeID    string `json:"assigneeId,omitempty"`
	Assignee      string `json:"assignee"`
	DueDate       string `json:"dueDate,omitempty"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
	URL           string `json:"url"`
	ProjectPrefix string `json:"projectPrefix"`
	TicketKey     string `json:"ticketKey"`
	Deleted       bool   `json:"deleted"`
}

// NumericID parses the task ID as an integer for recency ordering.
// Non-numeric IDs sort last.
func (t Task) NumericID() int64 {
	n, err := strconv.ParseInt(t.ID, 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// Project is an upstream project. Projects accumulate across syncs and are
// never removed once observed.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProjectOption is a project entry in the filter-option cache, carrying the
// assigned prefix for display.
type ProjectOption struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Prefix string `json:"prefix"`
}

// FilterOptions is the cache of distinct filter values derived from the
// task list during a sync.
type FilterOptions struct {
	Projects  []ProjectOption `json:"projects"`
	Statuses  []string        `json:"statuses"`
	Assignees []string        `json:"assignees"`
}

// ChangeSet records which task IDs were created or updated by the most
// recent sync, relative to the immediately preceding snapshot only.
type ChangeSet struct {
	New     []string `json:"new"`
	Updated []string `json:"updated"`
}

// IDs returns the union of new and updated task IDs.
func (c ChangeSet) IDs() []string {
	ids := make([]string, 0, len(c.New)+len(c.Updated))
	ids = append(ids, c.New...)
	ids = append(ids, c.Updated...)
	return ids
}

// Summary reports the outcome of one sync pass.
type Summary struct {
	RunID        string `json:"runId"`
	TaskCount    int    `json:"taskCount"`
	ActiveCount  int    `json:"activeCount"`
	DeletedCount int    `json:"deletedCount"`
	ProjectCount int    `json:"projectCount"`
	ChangedCount int    `json:"changedCount"`
	NewCount     int    `json:"newCount"`
	UpdatedCount int    `json:"updatedCount"`
}
