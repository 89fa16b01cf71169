package integration

import (
	"bufio"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ganot/taskdeck/internal/domain/search"
	"github.com/ganot/taskdeck/internal/domain/task"
	"github.com/ganot/taskdeck/internal/testserver"
)

func seedUpstream(ts *testserver.TestServer) {
	ts.Upstream.People["me1"] = "Casey"
	ts.Upstream.People["u1"] = "Dana"
	ts.Upstream.Projects["p1"] = "Prim100 Support"
	ts.Upstream.Projects["p2"] = "Atlas Mobile"
	ts.Upstream.Statuses["s1"] = "Open"

	ts.Upstream.SetTasks(
		testserver.UpstreamTask{
			ID: "300", Number: 242, Title: "Fix login",
			DueDate: "2026-09-15", CreatedAt: "2026-08-01T00:00:00Z", UpdatedAt: "2026-08-20T00:00:00Z",
			AssigneeID: "u1", ProjectID: "p1", StatusID: "s1", Subscribed: true,
		},
		testserver.UpstreamTask{
			ID: "200", Number: 7, Title: "Crash on rotate",
			CreatedAt: "2026-07-01T00:00:00Z", UpdatedAt: "2026-08-10T00:00:00Z",
			AssigneeID: "me1", ProjectID: "p2", StatusID: "s1",
		},
	)
}

func runSync(t *testing.T, ts *testserver.TestServer) task.Summary {
	t.Helper()

	resp := ts.Post(t, "/api/sync")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var lines []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	require.NotEmpty(t, lines)

	var final struct {
		Summary task.Summary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &final))
	return final.Summary
}

func TestFullStack(t *testing.T) {
	ts := testserver.New(t, "integration-token")
	seedUpstream(ts)

	t.Run("queries fail before first sync", func(t *testing.T) {
		resp := ts.Get(t, "/api/tasks")
		defer resp.Body.Close()
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("sync reports both dimensions", func(t *testing.T) {
		summary := runSync(t, ts)
		require.Equal(t, 2, summary.TaskCount)
		require.Equal(t, 2, summary.ActiveCount)
		require.Equal(t, 0, summary.DeletedCount)
		require.Equal(t, 2, summary.NewCount)
	})

	t.Run("structured search finds the stamped key", func(t *testing.T) {
		resp := ts.Get(t, "/api/tasks?q=prim+242")
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var result search.Result
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		require.Len(t, result.Tasks, 1)
		got := result.Tasks[0]
		require.Equal(t, "300", got.ID)
		require.Equal(t, "PRIM-242", got.TicketKey)
		require.Equal(t, "Prim100 Support", got.Project)
		require.Equal(t, "Dana", got.Assignee)
		require.Equal(t, "Open", got.Status)
	})

	t.Run("filters list projects statuses assignees", func(t *testing.T) {
		resp := ts.Get(t, "/api/filters")
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var filters search.FilterSet
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&filters))
		require.Len(t, filters.Projects, 2)
		require.Equal(t, []string{"Open"}, filters.Statuses)
		require.Equal(t, []string{"Casey", "Dana"}, filters.Assignees)
	})

	t.Run("ticket redirect points at the upstream UI", func(t *testing.T) {
		client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}}
		resp, err := client.Get(ts.Server.URL + "/t/ATLA-7")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusFound, resp.StatusCode)
		require.Equal(t, "https://app.example.com/org1/tasks/200", resp.Header.Get("Location"))
	})

	t.Run("vanished task is tombstoned on the next sync", func(t *testing.T) {
		ts.Upstream.SetTasks(
			testserver.UpstreamTask{
				ID: "300", Number: 242, Title: "Fix login",
				DueDate: "2026-09-15", CreatedAt: "2026-08-01T00:00:00Z", UpdatedAt: "2026-08-20T00:00:00Z",
				AssigneeID: "u1", ProjectID: "p1", StatusID: "s1", Subscribed: true,
			},
		)

		summary := runSync(t, ts)
		require.Equal(t, 2, summary.TaskCount)
		require.Equal(t, 1, summary.ActiveCount)
		require.Equal(t, 1, summary.DeletedCount)

		resp := ts.Get(t, "/api/tasks?q=atla+7")
		defer resp.Body.Close()

		var result search.Result
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		require.Len(t, result.Tasks, 1)
		got := result.Tasks[0]
		require.True(t, got.Deleted)
		require.Equal(t, task.StatusUnknown, got.Status)
		require.Equal(t, "Crash on rotate", got.Title)
		require.Equal(t, "ATLA-7", got.TicketKey)
	})

	t.Run("api routes reject a missing token", func(t *testing.T) {
		resp, err := http.Get(ts.Server.URL + "/api/tasks")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}
