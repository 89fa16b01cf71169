package mcp

import (
	"context"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ganot/taskdeck/internal/domain/search"
	"github.com/ganot/taskdeck/internal/domain/task"
	"github.com/ganot/taskdeck/internal/upstream"
)

// SearchService defines the query operations exposed as MCP tools.
type SearchService interface {
	Search(ctx context.Context, query string, opts search.Options) (*search.Result, error)
	Filters(ctx context.Context) (*search.FilterSet, error)
	ResolveTicket(ctx context.Context, prefix string, number int) (*task.Task, error)
}

// SyncService defines the refresh operation exposed as an MCP tool.
type SyncService interface {
	Run(ctx context.Context, progress upstream.ProgressFunc) (task.Summary, error)
}

// Config contains server configuration.
type Config struct {
	Search SearchService
	Sync   SyncService
	Logger *slog.Logger
}

const serverInstructions = `taskdeck exposes a locally cached snapshot of the team's task board.

Use search_tasks to find tasks by ticket key (PRIM-242), ticket number, or
free text over titles, statuses, assignees, and project names. Results come
from the local cache; call refresh_tasks to pull the latest data from the
upstream API. get_filters lists the projects, statuses, and assignees
available for narrowing a search. resolve_ticket maps a ticket key to the
task record, including its upstream URL.`

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "taskdeck",
		Version: "0.1.0",
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, cfg)

	return server
}
