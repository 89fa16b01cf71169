package sync_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ganot/taskdeck/internal/domain/sync"
	"github.com/ganot/taskdeck/internal/domain/task"
	"github.com/ganot/taskdeck/internal/repository"
	"github.com/ganot/taskdeck/internal/upstream"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory BlobRepository used to observe exactly which
// blobs a sync pass writes.
type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (m *memStore) Get(_ context.Context, key string, out any) error {
	raw, ok := m.data[key]
	if !ok {
		return repository.ErrNotFound
	}
	return json.Unmarshal(raw, out)
}

func (m *memStore) Put(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func (m *memStore) tasks(t *testing.T) []task.Task {
	t.Helper()
	var tasks []task.Task
	require.NoError(t, m.Get(context.Background(), repository.KeyTasks, &tasks))
	return tasks
}

func (m *memStore) taskByID(t *testing.T, id string) task.Task {
	t.Helper()
	for _, tk := range m.tasks(t) {
		if tk.ID == id {
			return tk
		}
	}
	t.Fatalf("task %s not in snapshot", id)
	return task.Task{}
}

// fakeSource serves canned records per filter dimension and folds its
// entity tables the way the paginator would.
type fakeSource struct {
	bySubscriber []upstream.TaskRecord
	byAssignee   []upstream.TaskRecord
	projects     map[string]string
	people       map[string]string
	statuses     map[string]string
	identity     upstream.Identity
	err          error

	block chan struct{} // when set, FetchAllTasks waits on it
}

func (f *fakeSource) FetchAllTasks(ctx context.Context, filterParam, filterValue string, tables *upstream.SideTables, progress upstream.ProgressFunc) ([]upstream.TaskRecord, error) {
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	for id, name := range f.projects {
		tables.Projects[id] = name
	}
	for id, name := range f.people {
		tables.People[id] = name
	}
	for id, name := range f.statuses {
		tables.Statuses[id] = name
	}

	records := f.bySubscriber
	if filterParam == upstream.FilterAssignee {
		records = f.byAssignee
	}
	if progress != nil {
		progress(upstream.ProgressEvent{Phase: filterParam, Page: 1, Records: len(records)})
	}
	return records, nil
}

func (f *fakeSource) ResolveIdentity(_ context.Context) (upstream.Identity, error) {
	return f.identity, nil
}

func record(id string, number int, projectID, updatedAt string) upstream.TaskRecord {
	return upstream.TaskRecord{
		ID:        id,
		Number:    number,
		Title:     "Task " + id,
		ProjectID: projectID,
		UpdatedAt: updatedAt,
		CreatedAt: "2026-01-01T00:00:00Z",
		URL:       "https://app.example.com/org1/tasks/" + id,
	}
}

func newService(source sync.TaskSource, store repository.BlobRepository) *sync.Service {
	return sync.NewService(source, store, nil, sync.Settings{
		PersonID:        "person1",
		PrefixMinLength: 4,
		PrefixLedger:    true,
	}, nil)
}

func TestRun_EndToEnd(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Put(context.Background(), repository.KeyTasks, []task.Task{
		{ID: "1", TicketNumber: 1, ProjectID: "p1", Project: "Atlas", Status: "Open", Assignee: task.Unassigned, UpdatedAt: "T1"},
	}))

	source := &fakeSource{
		bySubscriber: []upstream.TaskRecord{
			record("1", 1, "p1", "T1"),
			record("2", 2, "p1", "T2"),
		},
		projects: map[string]string{"p1": "Atlas"},
		statuses: map[string]string{},
	}

	summary, err := newService(source, store).Run(context.Background(), nil)
	require.NoError(t, err)

	require.Equal(t, 2, summary.TaskCount)
	require.Equal(t, 2, summary.ActiveCount)
	require.Equal(t, 0, summary.DeletedCount)
	require.Equal(t, 1, summary.NewCount)
	require.Equal(t, 0, summary.UpdatedCount)
	require.Equal(t, 1, summary.ChangedCount)
	require.NotEmpty(t, summary.RunID)

	var changes task.ChangeSet
	require.NoError(t, store.Get(context.Background(), repository.KeyChangeSet, &changes))
	require.Equal(t, []string{"2"}, changes.New)
	require.Empty(t, changes.Updated)
}

func TestRun_TombstonePreservation(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Put(context.Background(), repository.KeyTasks, []task.Task{
		{
			ID: "9", TicketNumber: 9, Title: "Gone task",
			ProjectID: "p1", Project: "Atlas", Status: "In Progress",
			Assignee: "Ada", UpdatedAt: "T1", URL: "https://app.example.com/org1/tasks/9",
		},
	}))

	source := &fakeSource{
		bySubscriber: []upstream.TaskRecord{record("10", 10, "p1", "T2")},
		projects:     map[string]string{"p1": "Atlas"},
	}

	summary, err := newService(source, store).Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 2, summary.TaskCount)
	require.Equal(t, 1, summary.ActiveCount)
	require.Equal(t, 1, summary.DeletedCount)

	tombstone := store.taskByID(t, "9")
	require.True(t, tombstone.Deleted)
	require.Equal(t, task.StatusUnknown, tombstone.Status)
	require.Equal(t, "Gone task", tombstone.Title)
	require.Equal(t, "Ada", tombstone.Assignee)
	require.Equal(t, "https://app.example.com/org1/tasks/9", tombstone.URL)
}

func TestRun_TombstoneStaysTombstoned(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Put(context.Background(), repository.KeyTasks, []task.Task{
		{ID: "9", TicketNumber: 9, ProjectID: "p1", Status: task.StatusUnknown, Deleted: true, Assignee: "Ada"},
	}))

	source := &fakeSource{
		bySubscriber: []upstream.TaskRecord{record("10", 10, "p1", "T2")},
		projects:     map[string]string{"p1": "Atlas"},
	}

	_, err := newService(source, store).Run(context.Background(), nil)
	require.NoError(t, err)

	tombstone := store.taskByID(t, "9")
	require.True(t, tombstone.Deleted)
	require.Equal(t, "Ada", tombstone.Assignee)
}

func TestRun_DedupAcrossFilterDimensions(t *testing.T) {
	store := newMemStore()
	source := &fakeSource{
		bySubscriber: []upstream.TaskRecord{record("5", 5, "p1", "T1")},
		byAssignee:   []upstream.TaskRecord{record("5", 5, "p1", "T1"), record("6", 6, "p1", "T1")},
		projects:     map[string]string{"p1": "Atlas"},
	}

	summary, err := newService(source, store).Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 2, summary.TaskCount)

	tasks := store.tasks(t)
	require.Len(t, tasks, 2)
}

func TestRun_ChangeDetectionUpdated(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Put(context.Background(), repository.KeyTasks, []task.Task{
		{ID: "1", TicketNumber: 1, ProjectID: "p1", UpdatedAt: "T1"},
		{ID: "2", TicketNumber: 2, ProjectID: "p1", UpdatedAt: "T1"},
	}))

	source := &fakeSource{
		bySubscriber: []upstream.TaskRecord{
			record("1", 1, "p1", "T9"),
			record("2", 2, "p1", "T1"),
		},
		projects: map[string]string{"p1": "Atlas"},
	}

	summary, err := newService(source, store).Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, summary.UpdatedCount)
	require.Equal(t, 0, summary.NewCount)

	var changes task.ChangeSet
	require.NoError(t, store.Get(context.Background(), repository.KeyChangeSet, &changes))
	require.Equal(t, []string{"1"}, changes.Updated)
}

func TestRun_ChangeSetResetsEachPass(t *testing.T) {
	store := newMemStore()
	source := &fakeSource{
		bySubscriber: []upstream.TaskRecord{record("1", 1, "p1", "T1")},
		projects:     map[string]string{"p1": "Atlas"},
	}
	svc := newService(source, store)

	_, err := svc.Run(context.Background(), nil)
	require.NoError(t, err)

	// Second pass with identical data: nothing is new or updated anymore.
	summary, err := svc.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 0, summary.ChangedCount)

	var changes task.ChangeSet
	require.NoError(t, store.Get(context.Background(), repository.KeyChangeSet, &changes))
	require.Empty(t, changes.New)
	require.Empty(t, changes.Updated)
}

func TestRun_SortsDescendingByNumericID(t *testing.T) {
	store := newMemStore()
	source := &fakeSource{
		bySubscriber: []upstream.TaskRecord{
			record("7", 7, "p1", "T1"),
			record("100", 100, "p1", "T1"),
			record("23", 23, "p1", "T1"),
		},
		projects: map[string]string{"p1": "Atlas"},
	}

	_, err := newService(source, store).Run(context.Background(), nil)
	require.NoError(t, err)

	tasks := store.tasks(t)
	require.Equal(t, []string{"100", "23", "7"}, []string{tasks[0].ID, tasks[1].ID, tasks[2].ID})
}

func TestRun_StampsPrefixesAndTicketKeys(t *testing.T) {
	store := newMemStore()
	source := &fakeSource{
		bySubscriber: []upstream.TaskRecord{record("1", 242, "p1", "T1")},
		projects:     map[string]string{"p1": "Prim100 Support"},
	}

	_, err := newService(source, store).Run(context.Background(), nil)
	require.NoError(t, err)

	got := store.taskByID(t, "1")
	require.Equal(t, "PRIM", got.ProjectPrefix)
	require.Equal(t, "PRIM-242", got.TicketKey)

	var prefixIndex map[string]string
	require.NoError(t, store.Get(context.Background(), repository.KeyPrefixIndex, &prefixIndex))
	require.Equal(t, "p1", prefixIndex["PRIM"])
}

func TestRun_FilterOptions(t *testing.T) {
	store := newMemStore()
	source := &fakeSource{
		bySubscriber: []upstream.TaskRecord{
			{ID: "1", Number: 1, ProjectID: "p1", StatusID: "s1", AssigneeID: "u1", UpdatedAt: "T1"},
			{ID: "2", Number: 2, ProjectID: "p2", StatusID: "s2", UpdatedAt: "T1"},
		},
		projects: map[string]string{"p1": "Beacon", "p2": "Atlas"},
		people:   map[string]string{"u1": "Ada"},
		statuses: map[string]string{"s1": "Open", "s2": "Done"},
	}

	_, err := newService(source, store).Run(context.Background(), nil)
	require.NoError(t, err)

	var options task.FilterOptions
	require.NoError(t, store.Get(context.Background(), repository.KeyFilterOptions, &options))
	require.Equal(t, []string{"Done", "Open"}, options.Statuses)
	require.Equal(t, []string{"Ada", task.Unassigned}, options.Assignees)
	require.Len(t, options.Projects, 2)
	require.Equal(t, "Atlas", options.Projects[0].Name)
	require.Equal(t, "Beacon", options.Projects[1].Name)
	require.NotEmpty(t, options.Projects[0].Prefix)
}

func TestRun_UpstreamErrorLeavesSnapshotUntouched(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Put(context.Background(), repository.KeyTasks, []task.Task{
		{ID: "1", TicketNumber: 1, ProjectID: "p1", UpdatedAt: "T1"},
	}))
	before := store.data[repository.KeyTasks]

	source := &fakeSource{
		err: &upstream.StatusError{StatusCode: 500, Body: "boom"},
	}

	_, err := newService(source, store).Run(context.Background(), nil)
	require.Error(t, err)

	var statusErr *upstream.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, before, store.data[repository.KeyTasks])
	_, hasChanges := store.data[repository.KeyChangeSet]
	require.False(t, hasChanges)
}

func TestRun_SingleFlight(t *testing.T) {
	store := newMemStore()
	source := &fakeSource{
		bySubscriber: []upstream.TaskRecord{record("1", 1, "p1", "T1")},
		projects:     map[string]string{"p1": "Atlas"},
		block:        make(chan struct{}),
	}
	svc := newService(source, store)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(context.Background(), nil)
		done <- err
	}()

	// Wait until the first run is inside the fetch, then trigger a second.
	source.block <- struct{}{}

	_, err := svc.Run(context.Background(), nil)
	require.ErrorIs(t, err, sync.ErrSyncInProgress)

	source.block <- struct{}{}
	require.NoError(t, <-done)
}

func TestRun_ProgressEventsForwarded(t *testing.T) {
	store := newMemStore()
	source := &fakeSource{
		bySubscriber: []upstream.TaskRecord{record("1", 1, "p1", "T1")},
		projects:     map[string]string{"p1": "Atlas"},
	}

	var phases []string
	_, err := newService(source, store).Run(context.Background(), func(e upstream.ProgressEvent) {
		phases = append(phases, e.Phase)
	})
	require.NoError(t, err)
	require.Equal(t, []string{upstream.FilterSubscriber, upstream.FilterAssignee}, phases)
}
