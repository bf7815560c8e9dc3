package client

import (
	"context"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"
	"taskmanager/internal/domain/query"

	"golang.org/x/sync/singleflight"
)

// DebounceWindow is how long a completed fetch stays fresh.
const DebounceWindow = 5 * time.Second

// TaskService is the part of the HTTP API the cache depends on.
type TaskService interface {
	ListTasks(ctx context.Context, f query.Filters) ([]models.TaskView, error)
	CreateTask(ctx context.Context, req models.CreateTaskRequest) (*models.TaskView, error)
	UpdateTask(ctx context.Context, id string, req models.UpdateTaskRequest) (*models.TaskView, error)
	DeleteTask(ctx context.Context, id string) error
}

type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

type Notice struct {
	Level   Level
	Title   string
	Message string
}

type Notifier interface {
	Notify(n Notice)
}

type NotifierFunc func(n Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type MutationState int

const (
	MutationPending MutationState = iota
	MutationCommitted
	MutationRolledBack
)

func (s MutationState) String() string {
	switch s {
	case MutationCommitted:
		return "committed"
	case MutationRolledBack:
		return "rolled-back"
	default:
		return "pending"
	}
}

// Mutation records the outcome of an optimistic change.
type Mutation struct {
	TaskID string
	State  MutationState
	Err    error
}

// Cache is the client's working copy of the visible tasks. Network calls are
// made without holding the lock; results are applied in arrival order.
type Cache struct {
	api      TaskService
	notifier Notifier
	now      func() time.Time
	debounce time.Duration
	group    singleflight.Group

	mu        sync.Mutex
	state     State
	tasks     []models.TaskView
	filters   query.Filters
	lastFetch time.Time
	lastErr   error
	listeners []func([]models.TaskView)
}

func NewCache(api TaskService, notifier Notifier) *Cache {
	if notifier == nil {
		notifier = NotifierFunc(func(Notice) {})
	}
	return &Cache{
		api:      api,
		notifier: notifier,
		now:      time.Now,
		debounce: DebounceWindow,
	}
}

func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// OnChange registers fn to receive the filtered view after every change.
func (c *Cache) OnChange(fn func([]models.TaskView)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err is the failure of the last read, if the cache is in the error state.
func (c *Cache) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Snapshot copies the full collection.
func (c *Cache) Snapshot() []models.TaskView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.TaskView(nil), c.tasks...)
}

// Filtered derives the visible tasks from the collection and active filters.
func (c *Cache) Filtered() []models.TaskView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filteredLocked()
}

func (c *Cache) filteredLocked() []models.TaskView {
	q := query.Local(c.filters)
	out := make([]models.TaskView, 0, len(c.tasks))
	for _, t := range c.tasks {
		if q.Match(t.Record()) {
			out = append(out, t)
		}
	}
	return out
}

func (c *Cache) SetFilters(f query.Filters) {
	c.mu.Lock()
	c.filters = f
	c.mu.Unlock()
	c.changed()
}

// Fetch returns the cached collection when the last successful fetch is
// younger than the debounce window, and loads it otherwise.
func (c *Cache) Fetch(ctx context.Context) ([]models.TaskView, error) {
	c.mu.Lock()
	if c.state == StateReady && c.now().Sub(c.lastFetch) < c.debounce {
		tasks := append([]models.TaskView(nil), c.tasks...)
		c.mu.Unlock()
		return tasks, nil
	}
	c.mu.Unlock()
	return c.load(ctx)
}

// Refresh always goes to the server.
func (c *Cache) Refresh(ctx context.Context) ([]models.TaskView, error) {
	return c.load(ctx)
}

func (c *Cache) load(ctx context.Context) ([]models.TaskView, error) {
	v, err, _ := c.group.Do("tasks", func() (any, error) {
		c.mu.Lock()
		c.state = StateLoading
		c.mu.Unlock()

		tasks, err := c.api.ListTasks(ctx, query.Filters{})

		c.mu.Lock()
		if err != nil {
			c.state = StateError
			c.lastErr = err
			if c.tasks == nil {
				c.tasks = []models.TaskView{}
			}
			c.mu.Unlock()
			log.Println("[ERROR] Failed to fetch tasks:", err)
			return nil, err
		}
		if tasks == nil {
			tasks = []models.TaskView{}
		}
		c.tasks = tasks
		c.state = StateReady
		c.lastErr = nil
		c.lastFetch = c.now()
		out := append([]models.TaskView(nil), c.tasks...)
		c.mu.Unlock()

		c.changed()
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]models.TaskView(nil), v.([]models.TaskView)...), nil
}

// Create adds the task once the server has confirmed it.
func (c *Cache) Create(ctx context.Context, req models.CreateTaskRequest) (*models.TaskView, error) {
	view, err := c.api.CreateTask(ctx, req)
	if err != nil {
		c.notifier.Notify(Notice{Level: LevelError, Title: "Create failed", Message: describe("create task", err)})
		return nil, err
	}

	c.mu.Lock()
	c.tasks = append([]models.TaskView{*view}, c.tasks...)
	c.mu.Unlock()

	c.notifier.Notify(Notice{Level: LevelSuccess, Title: "Task Created", Message: fmt.Sprintf("%q has been created.", view.Title)})
	c.changed()
	return view, nil
}

// Update replaces the cached entry with the server's representation. A
// failed update leaves the cache untouched.
func (c *Cache) Update(ctx context.Context, id string, req models.UpdateTaskRequest) (*models.TaskView, error) {
	view, err := c.api.UpdateTask(ctx, id, req)
	if err != nil {
		c.notifier.Notify(Notice{Level: LevelError, Title: "Update failed", Message: describe("update task", err)})
		return nil, err
	}

	c.mu.Lock()
	if i := indexOf(c.tasks, view.ID); i >= 0 {
		c.tasks[i] = *view
	}
	c.mu.Unlock()

	c.notifier.Notify(Notice{Level: LevelSuccess, Title: "Task Updated", Message: fmt.Sprintf("%q has been updated.", view.Title)})
	c.changed()
	return view, nil
}

// Delete removes the task before asking the server. A not-found answer keeps
// the removal; any other failure puts the task back where it was.
func (c *Cache) Delete(ctx context.Context, id string) (*Mutation, error) {
	m := &Mutation{TaskID: id, State: MutationPending}

	c.mu.Lock()
	idx := indexOf(c.tasks, id)
	var removed models.TaskView
	if idx >= 0 {
		removed = c.tasks[idx]
		c.tasks = append(c.tasks[:idx:idx], c.tasks[idx+1:]...)
	}
	c.mu.Unlock()
	if idx >= 0 {
		c.changed()
	}

	err := c.api.DeleteTask(ctx, id)
	switch {
	case err == nil:
		m.State = MutationCommitted
		c.notifier.Notify(Notice{Level: LevelSuccess, Title: "Task Deleted", Message: fmt.Sprintf("%q has been deleted.", removed.Title)})
		return m, nil
	case errors.Is(err, errors.ErrNotFound):
		m.State = MutationCommitted
		c.notifier.Notify(Notice{Level: LevelInfo, Title: "Task Deleted", Message: "The task may have already been deleted."})
		return m, nil
	}

	m.State = MutationRolledBack
	m.Err = err
	if idx >= 0 {
		c.mu.Lock()
		if indexOf(c.tasks, id) < 0 {
			at := min(idx, len(c.tasks))
			c.tasks = append(c.tasks[:at], append([]models.TaskView{removed}, c.tasks[at:]...)...)
		}
		c.mu.Unlock()
		c.changed()
	}
	c.notifier.Notify(Notice{Level: LevelError, Title: "Delete failed", Message: describe("delete task", err)})
	return m, err
}

func (c *Cache) changed() {
	c.mu.Lock()
	view := c.filteredLocked()
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(view)
	}
}

func indexOf(tasks []models.TaskView, id string) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func describe(action string, err error) string {
	switch errors.Kind(err) {
	case errors.ErrTimeout:
		return fmt.Sprintf("Could not %s: the server did not respond in time.", action)
	case errors.ErrForbidden:
		return fmt.Sprintf("Could not %s: you are not allowed to do that.", action)
	case errors.ErrNotFound:
		return fmt.Sprintf("Could not %s: it no longer exists.", action)
	case errors.ErrValidationFailed:
		return fmt.Sprintf("Could not %s: %v.", action, err)
	case errors.ErrUnauthorized:
		return fmt.Sprintf("Could not %s: please log in again.", action)
	default:
		return fmt.Sprintf("Could not %s: %v.", action, err)
	}
}
