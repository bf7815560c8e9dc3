package query

import (
	"net/url"
	"testing"
	"time"

	"taskmanager/internal/domain/access"
	"taskmanager/internal/domain/models"
	"taskmanager/internal/domain/status"

	"github.com/stretchr/testify/assert"
)

var (
	admin = access.Actor{ID: "admin", Role: models.RoleAdmin}
	alice = access.Actor{ID: "alice", Role: models.RoleUser}
)

func sampleTasks() []models.Task {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []models.Task{
		{ID: "t1", Title: "Write report", Description: "quarterly numbers", Status: status.StoredTodo, Priority: models.PriorityHigh, CreatorID: "alice", AssigneeID: "alice", CreatedAt: base},
		{ID: "t2", Title: "Review PR", Description: "", Status: status.StoredInProgress, Priority: models.PriorityMedium, CreatorID: "admin", AssigneeID: "alice", CreatedAt: base.Add(time.Hour)},
		{ID: "t3", Title: "Deploy", Description: "Ship the REPORT service", Status: status.StoredCompleted, Priority: models.PriorityLow, CreatorID: "bob", AssigneeID: "bob", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "t4", Title: "Plan sprint", Description: "100% focus", Status: status.StoredPending, Priority: models.PriorityMedium, CreatorID: "bob", AssigneeID: "carol", CreatedAt: base.Add(2 * time.Hour)},
	}
}

func ids(q Query, tasks []models.Task) []string {
	var out []string
	for _, t := range tasks {
		if q.Match(t) {
			out = append(out, t.ID)
		}
	}
	return out
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name    string
		actor   access.Actor
		filters Filters
		want    []string
	}{
		{name: "admin sees everything", actor: admin, want: []string{"t1", "t2", "t3", "t4"}},
		{name: "user sees created and assigned", actor: alice, want: []string{"t1", "t2"}},
		{name: "status filter translated", actor: admin, filters: Filters{Status: []string{"IN_PROGRESS", "PENDING"}}, want: []string{"t2", "t4"}},
		{name: "status filter is case insensitive", actor: admin, filters: Filters{Status: []string{"completed"}}, want: []string{"t3"}},
		{name: "priority filter", actor: admin, filters: Filters{Priority: []string{"MEDIUM"}}, want: []string{"t2", "t4"}},
		{name: "users filter matches creator or assignee", actor: admin, filters: Filters{Users: []string{"carol"}}, want: []string{"t4"}},
		{name: "users filter ignored for regular users", actor: alice, filters: Filters{Users: []string{"bob"}}, want: []string{"t1", "t2"}},
		{name: "search title and description case insensitive", actor: admin, filters: Filters{Search: "report"}, want: []string{"t1", "t3"}},
		{name: "clauses combine with and", actor: alice, filters: Filters{Search: "report", Priority: []string{"HIGH"}}, want: []string{"t1"}},
		{name: "no match", actor: alice, filters: Filters{Status: []string{"COMPLETED"}}, want: nil},
		{name: "anonymous actor sees nothing", actor: access.Actor{}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Build(tt.actor, tt.filters)
			assert.Equal(t, tt.want, ids(q, sampleTasks()))
		})
	}
}

func TestParseFilters(t *testing.T) {
	v := url.Values{}
	v.Add("status", "TODO,IN_PROGRESS")
	v.Add("status", "PENDING")
	v.Add("priority", " HIGH ")
	v.Add("users", "a,,b")
	v.Set("search", "  report ")

	f := ParseFilters(v)
	assert.Equal(t, []string{"TODO", "IN_PROGRESS", "PENDING"}, f.Status)
	assert.Equal(t, []string{"HIGH"}, f.Priority)
	assert.Equal(t, []string{"a", "b"}, f.Users)
	assert.Equal(t, "report", f.Search)
	assert.False(t, f.Empty())
	assert.True(t, ParseFilters(url.Values{}).Empty())

	round := ParseFilters(f.Values())
	assert.Equal(t, f, round)
}

func TestIsDefault(t *testing.T) {
	assert.True(t, Build(alice, Filters{}).IsDefault())
	assert.False(t, Build(alice, Filters{Search: "x"}).IsDefault())
	assert.True(t, Build(alice, Filters{Users: []string{"x"}}).IsDefault())
}

func TestSort(t *testing.T) {
	tasks := sampleTasks()
	Sort(tasks)

	var order []string
	for _, task := range tasks {
		order = append(order, task.ID)
	}
	assert.Equal(t, []string{"t3", "t4", "t2", "t1"}, order)
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, "%report%", LikePattern("Report"))
	assert.Equal(t, `%100\% \_done\\%`, LikePattern(`100% _done\`))
}
