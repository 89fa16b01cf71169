package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ganot/taskdeck/internal/domain/search"
	"github.com/ganot/taskdeck/internal/domain/sync"
	"github.com/ganot/taskdeck/internal/domain/task"
)

// SearchTasksParams are the inputs for the search_tasks tool.
type SearchTasksParams struct {
	Query    string `json:"query,omitempty" jsonschema:"ticket key, ticket number, or free text"`
	Project  string `json:"project,omitempty" jsonschema:"restrict to a project ID"`
	Status   string `json:"status,omitempty" jsonschema:"restrict to a status name"`
	Assignee string `json:"assignee,omitempty" jsonschema:"restrict to an assignee name"`
	DueBy    string `json:"due_by,omitempty" jsonschema:"only tasks due on or before this date (YYYY-MM-DD)"`
}

// SearchTasksResult is the structured output of search_tasks.
type SearchTasksResult struct {
	Tasks []task.Task `json:"tasks"`
	Count int         `json:"count"`
	Total int         `json:"total"`
}

// RefreshTasksParams are the inputs for the refresh_tasks tool.
type RefreshTasksParams struct{}

// GetFiltersParams are the inputs for the get_filters tool.
type GetFiltersParams struct{}

// ResolveTicketParams are the inputs for the resolve_ticket tool.
type ResolveTicketParams struct {
	Key string `json:"key" jsonschema:"ticket key such as PRIM-242"`
}

func registerTools(server *sdkmcp.Server, cfg Config) {
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "search_tasks",
		Description: "Search cached tasks by ticket key, number, or free text, with optional project/status/assignee/due filters",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, params SearchTasksParams) (*sdkmcp.CallToolResult, SearchTasksResult, error) {
		result, err := cfg.Search.Search(ctx, params.Query, search.Options{
			ProjectID: params.Project,
			Status:    params.Status,
			Assignee:  params.Assignee,
			DueBy:     params.DueBy,
		})
		if err != nil {
			return nil, SearchTasksResult{}, mapError(err)
		}
		return nil, SearchTasksResult{
			Tasks: result.Tasks,
			Count: result.Count,
			Total: result.Total,
		}, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "refresh_tasks",
		Description: "Fetch the latest tasks from the upstream API and rebuild the local cache",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, params RefreshTasksParams) (*sdkmcp.CallToolResult, task.Summary, error) {
		summary, err := cfg.Sync.Run(ctx, nil)
		if err != nil {
			return nil, task.Summary{}, mapError(err)
		}
		return nil, summary, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_filters",
		Description: "List the projects, statuses, and assignees available for filtering searches",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, params GetFiltersParams) (*sdkmcp.CallToolResult, *search.FilterSet, error) {
		filters, err := cfg.Search.Filters(ctx)
		if err != nil {
			return nil, nil, mapError(err)
		}
		return nil, filters, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "resolve_ticket",
		Description: "Resolve a ticket key like PRIM-242 to its task record, including the upstream URL",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, params ResolveTicketParams) (*sdkmcp.CallToolResult, *task.Task, error) {
		structured, ok := search.ParseQuery(params.Key)
		if !ok {
			return nil, nil, fmt.Errorf("invalid ticket key %q; expected a form like PRIM-242", params.Key)
		}
		t, err := cfg.Search.ResolveTicket(ctx, structured.Prefix, structured.Number)
		if err != nil {
			return nil, nil, mapError(err)
		}
		return nil, t, nil
	})
}

// mapError rewrites domain errors into messages useful to a tool caller.
func mapError(err error) error {
	var notFound *search.TicketNotFoundError
	switch {
	case errors.Is(err, search.ErrNotSynced):
		return errors.New("task cache not populated yet; call refresh_tasks first")
	case errors.Is(err, sync.ErrSyncInProgress):
		return errors.New("a refresh is already running; try again shortly")
	case errors.As(err, &notFound):
		if len(notFound.KnownPrefixes) > 0 {
			return fmt.Errorf("%s (known prefixes: %s)", notFound.Error(), strings.Join(notFound.KnownPrefixes, ", "))
		}
		return notFound
	default:
		return err
	}
}
