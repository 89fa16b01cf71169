// Package upstream is the read-only client for the project-management API
// being mirrored. It fetches tasks page by page, folding included entities
// (people, projects, workflow statuses) into shared lookup tables.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const includeParam = "assignee,project,workflow_status"

// Filter dimensions fetched during a sync.
const (
	FilterSubscriber = "subscriber_id"
	FilterAssignee   = "assignee_id"
)

// Client fetches tasks from the upstream API.
type Client struct {
	baseURL  string
	appURL   string
	token    string
	orgID    string
	pageSize int
	maxPages int
	client   *http.Client
}

// Options configures a Client.
type Options struct {
	BaseURL  string
	AppURL   string
	Token    string
	OrgID    string
	PageSize int
	MaxPages int
	// HTTPClient overrides the default http.Client, mainly for tests.
	HTTPClient *http.Client
}

// NewClient creates an upstream API client.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	appURL := opts.AppURL
	if appURL == "" {
		appURL = strings.TrimSuffix(opts.BaseURL, "/api/v2")
	}
	return &Client{
		baseURL:  strings.TrimSuffix(opts.BaseURL, "/"),
		appURL:   strings.TrimSuffix(appURL, "/"),
		token:    opts.Token,
		orgID:    opts.OrgID,
		pageSize: opts.PageSize,
		maxPages: opts.MaxPages,
		client:   httpClient,
	}
}

// FetchAllTasks pages through /tasks for one filter dimension, following the
// next link until exhausted or the page cap is hit. Included entities are
// folded into tables, which may be shared across calls. The phase on emitted
// progress events is the filter value's dimension name.
func (c *Client) FetchAllTasks(ctx context.Context, filterParam, filterValue string, tables *SideTables, progress ProgressFunc) ([]TaskRecord, error) {
	var records []TaskRecord

	for page := 1; page <= c.maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		query := url.Values{}
		query.Set("page[number]", strconv.Itoa(page))
		query.Set("page[size]", strconv.Itoa(c.pageSize))
		query.Set("include", includeParam)
		query.Set(fmt.Sprintf("filter[%s]", filterParam), filterValue)
		query.Set("sort", "-id")

		var resp pageResponse
		if err := c.get(ctx, "/tasks?"+query.Encode(), &resp); err != nil {
			return nil, err
		}

		foldIncluded(tables, resp.Included)
		for _, res := range resp.Data {
			rec, err := c.decodeTask(res)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}

		hasMore := resp.Links.Next != ""
		if progress != nil {
			progress(ProgressEvent{
				Phase:   filterParam,
				Page:    page,
				HasMore: hasMore,
				Records: len(records),
			})
		}
		if !hasMore {
			break
		}
	}

	return records, nil
}

// ResolveIdentity looks up the org and person behind the configured token.
func (c *Client) ResolveIdentity(ctx context.Context) (Identity, error) {
	var resp meResponse
	if err := c.get(ctx, "/me", &resp); err != nil {
		return Identity{}, err
	}

	identity := Identity{PersonID: resp.Data.ID, OrgID: c.orgID}
	if rel, ok := resp.Data.Relationships["organization"]; ok && rel.Data != nil {
		identity.OrgID = rel.Data.ID
	}
	if identity.PersonID == "" {
		return Identity{}, fmt.Errorf("upstream identity lookup returned no person id")
	}
	return identity, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Auth-Token", c.token)
	if c.orgID != "" {
		req.Header.Set("X-Organization-Id", c.orgID)
	}
	req.Header.Set("Content-Type", "application/vnd.api+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read upstream response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode upstream response: %w", err)
	}
	return nil
}

func (c *Client) decodeTask(res resource) (TaskRecord, error) {
	var attrs taskAttributes
	if err := json.Unmarshal(res.Attributes, &attrs); err != nil {
		return TaskRecord{}, fmt.Errorf("decode task %s attributes: %w", res.ID, err)
	}

	rec := TaskRecord{
		ID:        res.ID,
		Number:    attrs.Number,
		Title:     attrs.Title,
		DueDate:   attrs.DueDate,
		CreatedAt: attrs.CreatedAt,
		UpdatedAt: attrs.UpdatedAt,
		URL:       c.TaskURL(res.ID),
	}
	if rel, ok := res.Relationships["assignee"]; ok && rel.Data != nil {
		rec.AssigneeID = rel.Data.ID
	}
	if rel, ok := res.Relationships["project"]; ok && rel.Data != nil {
		rec.ProjectID = rel.Data.ID
	}
	if rel, ok := res.Relationships["workflow_status"]; ok && rel.Data != nil {
		rec.StatusID = rel.Data.ID
	}
	return rec, nil
}

// TaskURL builds the deep link into the upstream UI for a task.
func (c *Client) TaskURL(taskID string) string {
	if c.orgID != "" {
		return fmt.Sprintf("%s/%s/tasks/%s", c.appURL, c.orgID, taskID)
	}
	return fmt.Sprintf("%s/tasks/%s", c.appURL, taskID)
}

func foldIncluded(tables *SideTables, included []resource) {
	if tables == nil {
		return
	}
	for _, res := range included {
		var attrs namedAttributes
		if err := json.Unmarshal(res.Attributes, &attrs); err != nil {
			continue
		}
		switch res.Type {
		case "people":
			tables.People[res.ID] = attrs.Name
		case "projects":
			tables.Projects[res.ID] = attrs.Name
		case "workflow_statuses":
			tables.Statuses[res.ID] = attrs.Name
		}
	}
}
