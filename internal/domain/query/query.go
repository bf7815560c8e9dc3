// Package query turns an actor and list filters into a task predicate that
// every storage backend evaluates the same way.
package query

import (
	"net/url"
	"sort"
	"strings"

	"taskmanager/internal/domain/access"
	"taskmanager/internal/domain/models"
	"taskmanager/internal/domain/status"
)

// Filters are the list criteria as they arrive from a caller, statuses in the
// client vocabulary.
type Filters struct {
	Status   []string `json:"status,omitempty"`
	Priority []string `json:"priority,omitempty"`
	Users    []string `json:"users,omitempty"`
	Search   string   `json:"search,omitempty"`
}

func (f Filters) Empty() bool {
	return len(f.Status) == 0 && len(f.Priority) == 0 && len(f.Users) == 0 && strings.TrimSpace(f.Search) == ""
}

// Values encodes the filters as URL query parameters.
func (f Filters) Values() url.Values {
	v := url.Values{}
	if len(f.Status) > 0 {
		v.Set("status", strings.Join(f.Status, ","))
	}
	if len(f.Priority) > 0 {
		v.Set("priority", strings.Join(f.Priority, ","))
	}
	if len(f.Users) > 0 {
		v.Set("users", strings.Join(f.Users, ","))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		v.Set("search", s)
	}
	return v
}

// ParseFilters accepts both repeated and comma separated parameters.
func ParseFilters(v url.Values) Filters {
	return Filters{
		Status:   splitList(v["status"]),
		Priority: splitList(v["priority"]),
		Users:    splitList(v["users"]),
		Search:   strings.TrimSpace(v.Get("search")),
	}
}

func splitList(raw []string) []string {
	var out []string
	for _, r := range raw {
		for _, part := range strings.Split(r, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Query is the normalized predicate. All non-empty clauses are ANDed.
type Query struct {
	// VisibleTo restricts results to tasks created by or assigned to this id.
	VisibleTo  string
	Statuses   []status.Internal
	Priorities []models.Priority
	Users      []string
	Search     string
}

// Build scopes the filters to what actor is allowed to see.
func Build(actor access.Actor, f Filters) Query {
	q := Local(f)
	if !actor.IsAdmin() {
		q.VisibleTo = actor.ID
		if q.VisibleTo == "" {
			// an anonymous actor must never see everything
			q.VisibleTo = "\x00"
		}
		q.Users = nil
	}
	return q
}

// Local builds the query without a visibility clause, for data that has
// already been scoped by the server.
func Local(f Filters) Query {
	q := Query{Search: strings.TrimSpace(f.Search)}
	seen := map[status.Internal]bool{}
	for _, s := range f.Status {
		in := status.ToInternal(status.Client(strings.ToUpper(s)))
		if !seen[in] {
			seen[in] = true
			q.Statuses = append(q.Statuses, in)
		}
	}
	for _, p := range f.Priority {
		q.Priorities = append(q.Priorities, models.Priority(strings.ToUpper(p)))
	}
	q.Users = append(q.Users, f.Users...)
	return q
}

// IsDefault reports whether the query only carries the visibility clause.
func (q Query) IsDefault() bool {
	return len(q.Statuses) == 0 && len(q.Priorities) == 0 && len(q.Users) == 0 && q.Search == ""
}

// StatusStrings returns the status clause as plain strings for SQL parameters.
func (q Query) StatusStrings() []string {
	out := make([]string, 0, len(q.Statuses))
	for _, s := range q.Statuses {
		out = append(out, string(s))
	}
	return out
}

func (q Query) PriorityStrings() []string {
	out := make([]string, 0, len(q.Priorities))
	for _, p := range q.Priorities {
		out = append(out, string(p))
	}
	return out
}

func (q Query) Match(t models.Task) bool {
	if q.VisibleTo != "" && t.CreatorID != q.VisibleTo && t.AssigneeID != q.VisibleTo {
		return false
	}
	if len(q.Statuses) > 0 && !contains(q.Statuses, t.Status) {
		return false
	}
	if len(q.Priorities) > 0 && !contains(q.Priorities, t.Priority) {
		return false
	}
	if len(q.Users) > 0 && !contains(q.Users, t.CreatorID) && !contains(q.Users, t.AssigneeID) {
		return false
	}
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		if !strings.Contains(strings.ToLower(t.Title), needle) &&
			!strings.Contains(strings.ToLower(t.Description), needle) {
			return false
		}
	}
	return true
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// LikePattern wraps the search term for a SQL LIKE with '\' as escape character.
func LikePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(search)) + "%"
}

// Sort orders tasks newest first, ties broken by id.
func Sort(tasks []models.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}
