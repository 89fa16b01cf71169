package sync

import (
	"context"

	"github.com/ganot/taskdeck/internal/upstream"
)

// TaskSource fetches tasks and identity from the upstream API.
type TaskSource interface {
	FetchAllTasks(ctx context.Context, filterParam, filterValue string, tables *upstream.SideTables, progress upstream.ProgressFunc) ([]upstream.TaskRecord, error)
	ResolveIdentity(ctx context.Context) (upstream.Identity, error)
}
