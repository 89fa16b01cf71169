// Package search is the read path over the cached snapshot: query parsing,
// ticket-key resolution, substring search, and filter composition. It never
// writes; the snapshot is owned by the sync service.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ganot/taskdeck/internal/domain/task"
	"github.com/ganot/taskdeck/internal/repository"
)

// Options compose structural filters with the free-text query.
type Options struct {
	ProjectID string
	Status    string
	Assignee  string
	// DueBy keeps tasks whose due date is on or before this ISO date.
	DueBy string
}

// Result is a search response.
type Result struct {
	Tasks       []task.Task `json:"tasks"`
	Count       int         `json:"count"`
	Total       int         `json:"total"`
	LastUpdated time.Time   `json:"lastUpdated"`
}

// FilterSet is the data backing the dashboard's filter controls.
type FilterSet struct {
	Projects        []task.ProjectOption `json:"projects"`
	Statuses        []string             `json:"statuses"`
	Assignees       []string             `json:"assignees"`
	CurrentPersonID string               `json:"currentPersonId"`
	ChangedTaskIDs  []string             `json:"changedTaskIds"`
}

// Service reads the snapshot. All reads are defensive: optional blobs
// default to empty, and only a missing task list is an error.
type Service struct {
	blobs    repository.BlobRepository
	cache    repository.CacheRepository
	personID string
	logger   *slog.Logger
}

// NewService creates a search service. personID is the configured person, if
// any; otherwise the cached identity is reported in filter sets. If logger
// is nil, logging is discarded.
func NewService(blobs repository.BlobRepository, cache repository.CacheRepository, personID string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		blobs:    blobs,
		cache:    cache,
		personID: personID,
		logger:   logger,
	}
}

// Search runs a query against the latest snapshot.
func (s *Service) Search(ctx context.Context, rawQuery string, opts Options) (*Result, error) {
	tasks, err := s.loadTasks(ctx)
	if err != nil {
		return nil, err
	}
	total := len(tasks)

	filtered := applyFilters(tasks, opts)
	matched := s.match(ctx, filtered, rawQuery)

	return &Result{
		Tasks:       matched,
		Count:       len(matched),
		Total:       total,
		LastUpdated: s.lastUpdated(ctx),
	}, nil
}

// Filters returns the filter-option caches and the change set from the most
// recent sync.
func (s *Service) Filters(ctx context.Context) (*FilterSet, error) {
	// Probe the task list so pre-first-sync reads fail the same way
	// everywhere.
	if _, err := s.loadTasks(ctx); err != nil {
		return nil, err
	}

	set := &FilterSet{ChangedTaskIDs: []string{}}

	var options task.FilterOptions
	if err := s.blobs.Get(ctx, repository.KeyFilterOptions, &options); err == nil {
		set.Projects = options.Projects
		set.Statuses = options.Statuses
		set.Assignees = options.Assignees
	}

	var changes task.ChangeSet
	if err := s.blobs.Get(ctx, repository.KeyChangeSet, &changes); err == nil {
		set.ChangedTaskIDs = changes.IDs()
	}

	set.CurrentPersonID = s.personID
	if set.CurrentPersonID == "" && s.cache != nil {
		if cached, err := s.cache.Get(ctx, repository.CacheKeyPersonID); err == nil {
			set.CurrentPersonID = cached
		}
	}

	return set, nil
}

// ResolveTicket finds the task for a prefix and ticket number, tombstoned or
// not. On a miss the error lists the known prefixes.
func (s *Service) ResolveTicket(ctx context.Context, prefixStr string, number int) (*task.Task, error) {
	tasks, err := s.loadTasks(ctx)
	if err != nil {
		return nil, err
	}

	prefixStr = strings.ToUpper(prefixStr)
	prefixIndex := s.loadPrefixIndex(ctx)

	if projectID, ok := prefixIndex[prefixStr]; ok {
		for i := range tasks {
			if tasks[i].ProjectID == projectID && tasks[i].TicketNumber == number {
				return &tasks[i], nil
			}
		}
	}

	// The stamped ticket key may predate the current prefix index; check it
	// too before giving up.
	key := fmt.Sprintf("%s-%d", prefixStr, number)
	for i := range tasks {
		if tasks[i].TicketKey == key {
			return &tasks[i], nil
		}
	}

	known := make([]string, 0, len(prefixIndex))
	for p := range prefixIndex {
		known = append(known, p)
	}
	sort.Strings(known)
	return nil, &TicketNotFoundError{Key: key, KnownPrefixes: known}
}

func (s *Service) match(ctx context.Context, tasks []task.Task, rawQuery string) []task.Task {
	normalized := Normalize(rawQuery)
	if normalized == "" {
		return sortByIDDesc(tasks)
	}

	// Structured fast path: "<prefix> <number>" resolved through the prefix
	// index. Zero hits fall through to fuzzy search so a stale or unknown
	// prefix never turns into a false negative.
	if structured, ok := ParseQuery(normalized); ok {
		prefixIndex := s.loadPrefixIndex(ctx)
		if projectID, found := prefixIndex[structured.Prefix]; found {
			var exact []task.Task
			for _, t := range tasks {
				if t.ProjectID == projectID && t.TicketNumber == structured.Number {
					exact = append(exact, t)
				}
			}
			if len(exact) > 0 {
				return exact
			}
		}

		// Stamped ticket keys may predate the current prefix index; try them
		// before falling back to fuzzy text search.
		key := fmt.Sprintf("%s-%d", structured.Prefix, structured.Number)
		var byKey []task.Task
		for _, t := range tasks {
			if t.TicketKey == key {
				byKey = append(byKey, t)
			}
		}
		if len(byKey) > 0 {
			return byKey
		}
	}

	if isNumeric(normalized) {
		number, err := strconv.Atoi(normalized)
		if err == nil {
			var exact []task.Task
			for _, t := range tasks {
				if t.TicketNumber == number {
					exact = append(exact, t)
				}
			}
			if len(exact) > 0 {
				return exact
			}
		}
	}

	var fuzzy []task.Task
	for _, t := range tasks {
		if fuzzyMatch(t, normalized) {
			fuzzy = append(fuzzy, t)
		}
	}
	return sortByIDDesc(fuzzy)
}

func fuzzyMatch(t task.Task, normalized string) bool {
	fields := []string{
		strconv.Itoa(t.TicketNumber),
		strings.ToLower(t.TicketKey),
		strings.ToLower(t.Title),
		strings.ToLower(t.Status),
		strings.ToLower(t.Assignee),
		strings.ToLower(t.Project),
	}
	for _, field := range fields {
		if strings.Contains(field, normalized) {
			return true
		}
	}
	return false
}

func applyFilters(tasks []task.Task, opts Options) []task.Task {
	if opts.ProjectID == "" && opts.Status == "" && opts.Assignee == "" && opts.DueBy == "" {
		return tasks
	}

	var filtered []task.Task
	for _, t := range tasks {
		if opts.ProjectID != "" && t.ProjectID != opts.ProjectID {
			continue
		}
		if opts.Status != "" && !strings.EqualFold(t.Status, opts.Status) {
			continue
		}
		if opts.Assignee != "" && !strings.EqualFold(t.Assignee, opts.Assignee) {
			continue
		}
		if opts.DueBy != "" && (t.DueDate == "" || t.DueDate > opts.DueBy) {
			continue
		}
		filtered = append(filtered, t)
	}
	return filtered
}

func sortByIDDesc(tasks []task.Task) []task.Task {
	sorted := make([]task.Task, len(tasks))
	copy(sorted, tasks)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].NumericID() > sorted[j].NumericID()
	})
	return sorted
}

func (s *Service) loadTasks(ctx context.Context) ([]task.Task, error) {
	var tasks []task.Task
	err := s.blobs.Get(ctx, repository.KeyTasks, &tasks)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotSynced
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	return tasks, nil
}

func (s *Service) loadPrefixIndex(ctx context.Context) map[string]string {
	index := map[string]string{}
	if err := s.blobs.Get(ctx, repository.KeyPrefixIndex, &index); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("failed to load prefix index", "error", err)
	}
	return index
}

func (s *Service) lastUpdated(ctx context.Context) time.Time {
	var ts time.Time
	if err := s.blobs.Get(ctx, repository.KeyLastSync, &ts); err != nil {
		return time.Time{}
	}
	return ts
}
