// Package sync implements the reconciliation engine: it pulls the full task
// set from the upstream API, merges it with the previously persisted
// snapshot, tombstones vanished tasks, assigns project prefixes, detects
// changes, and writes the refreshed snapshot blob by blob.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ganot/taskdeck/internal/domain/prefix"
	"github.com/ganot/taskdeck/internal/domain/task"
	"github.com/ganot/taskdeck/internal/repository"
	"github.com/ganot/taskdeck/internal/upstream"
	"github.com/google/uuid"
)

// Settings are the reconciliation knobs taken from configuration.
type Settings struct {
	// PersonID, when set, skips the upstream identity lookup.
	PersonID        string
	PrefixMinLength int
	// PrefixLedger selects append-only prefix assignment. When false the
	// full mapping is recomputed from the observed project set every pass,
	// which can silently reassign prefixes of unrelated projects.
	PrefixLedger bool
}

// Service runs sync passes. At most one pass runs at a time; overlapping
// triggers get ErrSyncInProgress rather than racing blob writes.
type Service struct {
	source   TaskSource
	blobs    repository.BlobRepository
	cache    repository.CacheRepository
	settings Settings
	logger   *slog.Logger

	running atomic.Bool
}

// NewService creates a new sync service. If logger is nil, logging is discarded.
func NewService(source TaskSource, blobs repository.BlobRepository, cache repository.CacheRepository, settings Settings, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if settings.PrefixMinLength < 1 {
		settings.PrefixMinLength = 4
	}
	return &Service{
		source:   source,
		blobs:    blobs,
		cache:    cache,
		settings: settings,
		logger:   logger,
	}
}

// Run executes one sync pass and returns its summary. The progress callback,
// if non-nil, receives one event per fetched page. No blob is written until
// both filter dimensions have been fetched in full, so an upstream failure
// leaves the prior snapshot untouched.
func (s *Service) Run(ctx context.Context, progress upstream.ProgressFunc) (task.Summary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return task.Summary{}, ErrSyncInProgress
	}
	defer s.running.Store(false)

	runID := uuid.NewString()
	started := time.Now()
	s.logger.Info("sync started", "run_id", runID)

	personID, err := s.resolvePersonID(ctx)
	if err != nil {
		return task.Summary{}, err
	}

	prior, err := s.loadPriorTasks(ctx)
	if err != nil {
		return task.Summary{}, err
	}

	tables := upstream.NewSideTables()
	fetched := map[string]upstream.TaskRecord{}
	order := []string{}

	// Both dimensions are fetched within the same pass, so a task seen by
	// both carries identical fields; first seen wins.
	for _, filterParam := range []string{upstream.FilterSubscriber, upstream.FilterAssignee} {
		records, err := s.source.FetchAllTasks(ctx, filterParam, personID, tables, progress)
		if err != nil {
			return task.Summary{}, fmt.Errorf("fetching %s tasks: %w", filterParam, err)
		}
		for _, rec := range records {
			if _, seen := fetched[rec.ID]; seen {
				continue
			}
			fetched[rec.ID] = rec
			order = append(order, rec.ID)
		}
	}

	universe := s.projectUniverse(ctx, prior, tables, fetched)

	idToPrefix, prefixToID, ledger, err := s.assignPrefixes(ctx, universe)
	if err != nil {
		return task.Summary{}, err
	}

	merged := make([]task.Task, 0, len(fetched)+len(prior))
	for _, id := range order {
		merged = append(merged, buildTask(fetched[id], tables, prior[id]))
	}

	// Tombstone pass: anything in the prior snapshot missing from this
	// fetch is carried forward, never removed.
	deletedCount := 0
	for id, priorTask := range prior {
		if _, ok := fetched[id]; ok {
			continue
		}
		if !priorTask.Deleted {
			priorTask.Deleted = true
			priorTask.Status = task.StatusUnknown
		}
		merged = append(merged, priorTask)
	}

	for i := range merged {
		p := idToPrefix[merged[i].ProjectID]
		merged[i].ProjectPrefix = p
		merged[i].TicketKey = fmt.Sprintf("%s-%d", p, merged[i].TicketNumber)
		if merged[i].Deleted {
			deletedCount++
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].NumericID() > merged[j].NumericID()
	})

	changes := detectChanges(merged, prior)
	options := buildFilterOptions(merged, universe, idToPrefix)

	if err := s.persist(ctx, merged, idToPrefix, prefixToID, ledger, options, changes); err != nil {
		return task.Summary{}, err
	}

	summary := task.Summary{
		RunID:        runID,
		TaskCount:    len(merged),
		ActiveCount:  len(merged) - deletedCount,
		DeletedCount: deletedCount,
		ProjectCount: len(universe),
		ChangedCount: len(changes.New) + len(changes.Updated),
		NewCount:     len(changes.New),
		UpdatedCount: len(changes.Updated),
	}
	s.logger.Info("sync finished",
		"run_id", runID,
		"duration", time.Since(started),
		"tasks", summary.TaskCount,
		"deleted", summary.DeletedCount,
		"new", summary.NewCount,
		"updated", summary.UpdatedCount,
	)
	return summary, nil
}

func (s *Service) loadPriorTasks(ctx context.Context) (map[string]task.Task, error) {
	var tasks []task.Task
	err := s.blobs.Get(ctx, repository.KeyTasks, &tasks)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("loading prior snapshot: %w", err)
	}

	prior := make(map[string]task.Task, len(tasks))
	for _, t := range tasks {
		prior[t.ID] = t
	}
	return prior, nil
}

// projectUniverse is every project we have ever seen: included entities from
// this fetch, projects remembered in the filter-option cache, and any
// project ID referenced by a task but missing from both (kept with an empty
// name so it still receives a placeholder prefix).
func (s *Service) projectUniverse(ctx context.Context, prior map[string]task.Task, tables *upstream.SideTables, fetched map[string]upstream.TaskRecord) []task.Project {
	names := map[string]string{}

	var options task.FilterOptions
	if err := s.blobs.Get(ctx, repository.KeyFilterOptions, &options); err == nil {
		for _, p := range options.Projects {
			names[p.ID] = p.Name
		}
	}

	for id, name := range tables.Projects {
		names[id] = name
	}

	for _, rec := range fetched {
		if rec.ProjectID != "" {
			if _, ok := names[rec.ProjectID]; !ok {
				names[rec.ProjectID] = ""
			}
		}
	}
	for _, t := range prior {
		if t.ProjectID != "" {
			if _, ok := names[t.ProjectID]; !ok {
				names[t.ProjectID] = t.Project
			}
		}
	}

	projects := make([]task.Project, 0, len(names))
	for id, name := range names {
		projects = append(projects, task.Project{ID: id, Name: name})
	}
	return projects
}

func (s *Service) assignPrefixes(ctx context.Context, universe []task.Project) (map[string]string, map[string]string, *prefix.Ledger, error) {
	if !s.settings.PrefixLedger {
		idToPrefix, prefixToID := prefix.GenerateAll(universe, s.settings.PrefixMinLength)
		return idToPrefix, prefixToID, nil, nil
	}

	ledger := prefix.NewLedger()
	err := s.blobs.Get(ctx, repository.KeyPrefixLedger, ledger)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, nil, fmt.Errorf("loading prefix ledger: %w", err)
	}

	idToPrefix, prefixToID := ledger.Assign(universe, s.settings.PrefixMinLength)
	return idToPrefix, prefixToID, ledger, nil
}

func buildTask(rec upstream.TaskRecord, tables *upstream.SideTables, priorTask task.Task) task.Task {
	t := task.Task{
		ID:           rec.ID,
		TicketNumber: rec.Number,
		Title:        rec.Title,
		ProjectID:    rec.ProjectID,
		AssigneeID:   rec.AssigneeID,
		DueDate:      rec.DueDate,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
		URL:          rec.URL,
	}

	if name, ok := tables.Projects[rec.ProjectID]; ok && name != "" {
		t.Project = name
	} else {
		t.Project = priorTask.Project
	}

	if name, ok := tables.Statuses[rec.StatusID]; ok && name != "" {
		t.Status = name
	} else if priorTask.Status != "" && priorTask.Status != task.StatusUnknown {
		t.Status = priorTask.Status
	} else {
		t.Status = task.StatusUnknown
	}

	if rec.AssigneeID == "" {
		t.Assignee = task.Unassigned
	} else if name, ok := tables.People[rec.AssigneeID]; ok && name != "" {
		t.Assignee = name
	} else if priorTask.Assignee != "" {
		t.Assignee = priorTask.Assignee
	} else {
		t.Assignee = task.Unassigned
	}

	return t
}

// detectChanges classifies each live task against the prior snapshot. The
// change set reflects the delta versus the immediately preceding snapshot
// only; it is rebuilt from scratch every pass.
func detectChanges(merged []task.Task, prior map[string]task.Task) task.ChangeSet {
	changes := task.ChangeSet{New: []string{}, Updated: []string{}}
	for _, t := range merged {
		if t.Deleted {
			continue
		}
		priorTask, existed := prior[t.ID]
		if !existed {
			changes.New = append(changes.New, t.ID)
			continue
		}
		if priorTask.UpdatedAt != t.UpdatedAt {
			changes.Updated = append(changes.Updated, t.ID)
		}
	}
	return changes
}

func buildFilterOptions(merged []task.Task, universe []task.Project, idToPrefix map[string]string) task.FilterOptions {
	statusSet := map[string]bool{}
	assigneeSet := map[string]bool{}
	for _, t := range merged {
		if t.Deleted {
			continue
		}
		if t.Status != "" {
			statusSet[t.Status] = true
		}
		if t.Assignee != "" {
			assigneeSet[t.Assignee] = true
		}
	}

	options := task.FilterOptions{
		Projects:  make([]task.ProjectOption, 0, len(universe)),
		Statuses:  sortedKeys(statusSet),
		Assignees: sortedKeys(assigneeSet),
	}
	for _, p := range universe {
		options.Projects = append(options.Projects, task.ProjectOption{
			ID:     p.ID,
			Name:   p.Name,
			Prefix: idToPrefix[p.ID],
		})
	}
	sort.Slice(options.Projects, func(i, j int) bool {
		if options.Projects[i].Name != options.Projects[j].Name {
			return options.Projects[i].Name < options.Projects[j].Name
		}
		return options.Projects[i].ID < options.Projects[j].ID
	})
	return options
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// persist writes the snapshot one blob at a time. There is no cross-key
// atomicity: a crash mid-persist leaves a mixed snapshot, and readers must
// tolerate that.
func (s *Service) persist(ctx context.Context, merged []task.Task, idToPrefix, prefixToID map[string]string, ledger *prefix.Ledger, options task.FilterOptions, changes task.ChangeSet) error {
	writes := []struct {
		key   string
		value any
	}{
		{repository.KeyTasks, merged},
		{repository.KeyPrefixMap, idToPrefix},
		{repository.KeyPrefixIndex, prefixToID},
		{repository.KeyFilterOptions, options},
		{repository.KeyChangeSet, changes},
		{repository.KeyLastSync, time.Now().UTC()},
	}
	if ledger != nil {
		writes = append(writes, struct {
			key   string
			value any
		}{repository.KeyPrefixLedger, ledger})
	}

	for _, w := range writes {
		if err := s.blobs.Put(ctx, w.key, w.value); err != nil {
			return fmt.Errorf("persisting %s: %w", w.key, err)
		}
	}
	return nil
}
