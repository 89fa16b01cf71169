// Package testserver stands up the full stack against an in-memory
// database and a stubbed upstream API, for integration tests.
package testserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ganot/taskdeck/internal/domain/search"
	domainsync "github.com/ganot/taskdeck/internal/domain/sync"
	"github.com/ganot/taskdeck/internal/sqlite"
	"github.com/ganot/taskdeck/internal/transport"
	"github.com/ganot/taskdeck/internal/upstream"
)

// UpstreamTask is one task served by the stub upstream API.
type UpstreamTask struct {
	ID         string
	Number     int
	Title      string
	DueDate    string
	CreatedAt  string
	UpdatedAt  string
	AssigneeID string
	ProjectID  string
	StatusID   string
	// Subscribed marks the task as visible on the subscriber dimension.
	Subscribed bool
}

// UpstreamStub is a fake of the upstream project-management API. Tests
// mutate its fixture between syncs to simulate upstream churn.
type UpstreamStub struct {
	mu       sync.Mutex
	PersonID string
	OrgID    string
	Tasks    []UpstreamTask
	People   map[string]string
	Projects map[string]string
	Statuses map[string]string
}

// SetTasks replaces the fixture task list.
func (u *UpstreamStub) SetTasks(tasks ...UpstreamTask) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Tasks = tasks
}

func (u *UpstreamStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()
		fmt.Fprintf(w, `{"data":{"id":%q,"type":"people","relationships":{"organization":{"data":{"id":%q}}}}}`,
			u.PersonID, u.OrgID)
	})
	mux.HandleFunc("/tasks", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()

		assignee := r.URL.Query().Get("filter[assignee_id]")
		subscriber := r.URL.Query().Get("filter[subscriber_id]")
		page, _ := strconv.Atoi(r.URL.Query().Get("page[number]"))
		size, _ := strconv.Atoi(r.URL.Query().Get("page[size]"))
		if page < 1 {
			page = 1
		}
		if size < 1 {
			size = 100
		}

		var matched []UpstreamTask
		for _, t := range u.Tasks {
			switch {
			case assignee != "":
				if t.AssigneeID == assignee {
					matched = append(matched, t)
				}
			case subscriber != "":
				if t.Subscribed {
					matched = append(matched, t)
				}
			}
		}

		start := (page - 1) * size
		if start > len(matched) {
			start = len(matched)
		}
		end := start + size
		if end > len(matched) {
			end = len(matched)
		}

		data := make([]map[string]any, 0, end-start)
		for _, t := range matched[start:end] {
			rels := map[string]any{}
			if t.AssigneeID != "" {
				rels["assignee"] = map[string]any{"data": map[string]any{"id": t.AssigneeID}}
			}
			if t.ProjectID != "" {
				rels["project"] = map[string]any{"data": map[string]any{"id": t.ProjectID}}
			}
			if t.StatusID != "" {
				rels["workflow_status"] = map[string]any{"data": map[string]any{"id": t.StatusID}}
			}
			data = append(data, map[string]any{
				"id":   t.ID,
				"type": "tasks",
				"attributes": map[string]any{
					"number":     t.Number,
					"title":      t.Title,
					"due_date":   t.DueDate,
					"created_at": t.CreatedAt,
					"updated_at": t.UpdatedAt,
				},
				"relationships": rels,
			})
		}

		included := make([]map[string]any, 0)
		appendNamed := func(typ string, m map[string]string) {
			for id, name := range m {
				included = append(included, map[string]any{
					"id":         id,
					"type":       typ,
					"attributes": map[string]any{"name": name},
				})
			}
		}
		appendNamed("people", u.People)
		appendNamed("projects", u.Projects)
		appendNamed("workflow_statuses", u.Statuses)

		links := map[string]any{}
		if end < len(matched) {
			links["next"] = fmt.Sprintf("page%d", page+1)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"data":     data,
			"included": included,
			"links":    links,
		})
	})
	return mux
}

// TestServer is the assembled stack.
type TestServer struct {
	Server   *httptest.Server
	Upstream *UpstreamStub
	Sync     *domainsync.Service
	Search   *search.Service
	DB       *sqlite.DB
	Token    string
}

// New builds the full stack: stub upstream, in-memory database, sync and
// search services, and the HTTP transport.
func New(t *testing.T, token string) *TestServer {
	t.Helper()

	stub := &UpstreamStub{
		PersonID: "me1",
		OrgID:    "org1",
		People:   map[string]string{},
		Projects: map[string]string{},
		Statuses: map[string]string{},
	}
	upstreamSrv := httptest.NewServer(stub.handler())
	t.Cleanup(upstreamSrv.Close)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	blobs := sqlite.NewBlobRepository(db)
	cache := sqlite.NewCacheRepository(db)

	client := upstream.NewClient(upstream.Options{
		BaseURL:  upstreamSrv.URL,
		AppURL:   "https://app.example.com",
		Token:    "upstream-token",
		OrgID:    stub.OrgID,
		PageSize: 2,
		MaxPages: 25,
	})

	syncSvc := domainsync.NewService(client, blobs, cache, domainsync.Settings{
		PrefixMinLength: 4,
		PrefixLedger:    true,
	}, nil)
	searchSvc := search.NewService(blobs, cache, "", nil)

	httpSrv := transport.NewServer(transport.Options{
		Search: searchSvc,
		Sync:   syncSvc,
	})
	server := httptest.NewServer(httpSrv.Router(token))

	ts := &TestServer{
		Server:   server,
		Upstream: stub,
		Sync:     syncSvc,
		Search:   searchSvc,
		DB:       db,
		Token:    token,
	}

	t.Cleanup(func() {
		server.Close()
		_ = db.Close()
	})

	return ts
}

// Get issues an authenticated GET against the stack.
func (ts *TestServer) Get(t *testing.T, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.Server.URL+path, nil)
	require.NoError(t, err)
	if ts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.Token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Post issues an authenticated POST against the stack.
func (ts *TestServer) Post(t *testing.T, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.Server.URL+path, nil)
	require.NoError(t, err)
	if ts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.Token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}
