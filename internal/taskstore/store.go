// Package taskstore is the persistence boundary for tasks: it applies the
// authorization rules, fills defaults and returns tasks with their creator and
// assignee populated.
package taskstore

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"taskmanager/internal/domain/access"
	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"
	"taskmanager/internal/domain/query"
	"taskmanager/internal/domain/status"

	"github.com/google/uuid"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

type TaskRepository interface {
	CreateTask(ctx context.Context, task *models.Task) error
	GetTaskByID(ctx context.Context, id string) (*models.Task, error)
	GetTasks(ctx context.Context, q query.Query) ([]models.Task, error)
	UpdateTask(ctx context.Context, id string, task *models.Task) error
	DeleteTask(ctx context.Context, id string) error
}

// QueryTimeout bounds each store operation against the repositories.
const QueryTimeout = 15 * time.Second

type Store struct {
	users   UserRepository
	tasks   TaskRepository
	now     func() time.Time
	timeout time.Duration
}

func NewStore(users UserRepository, tasks TaskRepository) *Store {
	if users == nil || tasks == nil {
		return nil
	}
	return &Store{users: users, tasks: tasks, now: time.Now, timeout: QueryTimeout}
}

// WithClock replaces the time source, for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) WithTimeout(d time.Duration) *Store {
	if d > 0 {
		s.timeout = d
	}
	return s
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) Create(ctx context.Context, in models.TaskInput, actor access.Actor) (*models.TaskView, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, invalid(errors.ErrInvalidTitle)
	}
	if in.ReminderDate == nil || in.ReminderDate.IsZero() {
		return nil, invalid(errors.ErrMissingReminderDate)
	}
	priority := in.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		return nil, invalid(errors.ErrInvalidPriority)
	}

	creatorID := actor.ID
	if in.CreatorID != "" && in.CreatorID != actor.ID {
		if access.CanReassign(actor) {
			creatorID = in.CreatorID
		} else {
			log.Println("[WARN] Ignoring creator override from non-admin:", actor.ID)
		}
	}
	creator, err := s.referencedUser(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	assigneeID := creatorID
	if in.AssignedTo != "" && in.AssignedTo != creatorID {
		if access.CanReassign(actor) {
			assigneeID = in.AssignedTo
		} else {
			log.Println("[WARN] Ignoring assignment from non-admin:", actor.ID)
		}
	}
	assignee := creator
	if assigneeID != creatorID {
		if assignee, err = s.referencedUser(ctx, assigneeID); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	due := now.Add(models.DefaultDueIn)
	if in.DueDate != nil && !in.DueDate.IsZero() {
		due = in.DueDate.UTC()
	}

	task := models.Task{
		ID:           uuid.New().String(),
		Title:        title,
		Description:  strings.TrimSpace(in.Description),
		Status:       status.ToInternal(in.Status),
		Priority:     priority,
		DueDate:      due,
		ReminderDate: in.ReminderDate.UTC(),
		CreatorID:    creator.ID,
		AssigneeID:   assignee.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.tasks.CreateTask(ctx, &task); err != nil {
		return nil, storageErr(err)
	}

	view := models.NewTaskView(task, creator, assignee)
	return &view, nil
}

func (s *Store) Get(ctx context.Context, id string, actor access.Actor) (*models.TaskView, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	task, err := s.visibleTask(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	views := s.populate(ctx, []models.Task{*task})
	return &views[0], nil
}

func (s *Store) List(ctx context.Context, actor access.Actor, f query.Filters) ([]models.TaskView, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	q := query.Build(actor, f)
	tasks, err := s.tasks.GetTasks(ctx, q)
	if err != nil {
		return nil, storageErr(err)
	}
	query.Sort(tasks)
	return s.populate(ctx, tasks), nil
}

// Update applies patch with partial-update semantics. The creator is never
// changed and an assignee change from a non-admin is dropped while the rest of
// the patch still applies.
func (s *Store) Update(ctx context.Context, id string, patch models.TaskPatch, actor access.Actor) (*models.TaskView, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	task, err := s.visibleTask(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if !access.CanWrite(actor, *task) {
		if !access.CanChangeStatus(actor, *task) || !patch.OnlyStatus() {
			return nil, fmt.Errorf("%w: only the creator or an admin may edit this task", errors.ErrForbidden)
		}
	}

	if patch.CreatorID != nil && *patch.CreatorID != task.CreatorID {
		log.Println("[WARN] Ignoring creator change for task:", id)
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, invalid(errors.ErrInvalidTitle)
		}
		task.Title = title
	}
	if patch.Description != nil {
		task.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Status != nil {
		task.Status = status.ToInternal(*patch.Status)
	}
	if patch.Priority != nil {
		if !patch.Priority.Valid() {
			return nil, invalid(errors.ErrInvalidPriority)
		}
		task.Priority = *patch.Priority
	}
	if patch.DueDate != nil && !patch.DueDate.IsZero() {
		task.DueDate = patch.DueDate.UTC()
	}
	if patch.ReminderDate != nil && !patch.ReminderDate.IsZero() {
		task.ReminderDate = patch.ReminderDate.UTC()
	}
	if patch.AssignedTo != nil && *patch.AssignedTo != "" && *patch.AssignedTo != task.AssigneeID {
		if access.CanReassign(actor) {
			if _, err := s.referencedUser(ctx, *patch.AssignedTo); err != nil {
				return nil, err
			}
			task.AssigneeID = *patch.AssignedTo
		} else {
			log.Println("[WARN] Ignoring reassignment from non-admin:", actor.ID)
		}
	}
	task.UpdatedAt = s.now().UTC()

	if err := s.tasks.UpdateTask(ctx, id, task); err != nil {
		return nil, storageErr(err)
	}
	views := s.populate(ctx, []models.Task{*task})
	return &views[0], nil
}

func (s *Store) Delete(ctx context.Context, id string, actor access.Actor) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	task, err := s.visibleTask(ctx, id, actor)
	if err != nil {
		return err
	}
	if !access.CanWrite(actor, *task) {
		return fmt.Errorf("%w: only the creator or an admin may delete this task", errors.ErrForbidden)
	}
	if err := s.tasks.DeleteTask(ctx, id); err != nil {
		return storageErr(err)
	}
	return nil
}

// visibleTask loads a task and hides it from actors that may not read it.
func (s *Store) visibleTask(ctx context.Context, id string, actor access.Actor) (*models.Task, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: empty task id", errors.ErrNotFound)
	}
	task, err := s.tasks.GetTaskByID(ctx, id)
	if err != nil {
		return nil, storageErr(err)
	}
	if !access.CanRead(actor, *task) {
		return nil, fmt.Errorf("%w: task %s", errors.ErrNotFound, id)
	}
	return task, nil
}

func (s *Store) referencedUser(ctx context.Context, id string) (*models.User, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: %w", errors.ErrValidationFailed, errors.ErrUnknownUser)
	}
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, errors.ErrUserNotFound) || errors.Is(err, errors.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w: %s", errors.ErrValidationFailed, errors.ErrUnknownUser, id)
		}
		return nil, storageErr(err)
	}
	return u, nil
}

func (s *Store) populate(ctx context.Context, tasks []models.Task) []models.TaskView {
	cache := map[string]*models.User{}
	lookup := func(id string) *models.User {
		if u, ok := cache[id]; ok {
			return u
		}
		u, err := s.users.GetUserByID(ctx, id)
		if err != nil {
			log.Println("[WARN] Could not resolve user for task:", id, err)
			u = nil
		}
		cache[id] = u
		return u
	}

	views := make([]models.TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, models.NewTaskView(t, lookup(t.CreatorID), lookup(t.AssigneeID)))
	}
	return views
}

func invalid(field error) error {
	return fmt.Errorf("%w: %w", errors.ErrValidationFailed, field)
}

// storageErr keeps taxonomy errors and folds anything else into ErrInternalServer.
func storageErr(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", errors.ErrTimeout, err)
	case errors.Is(err, errors.ErrTaskNotFound):
		return fmt.Errorf("%w: %v", errors.ErrNotFound, err)
	case errors.Kind(err) != errors.ErrInternalServer:
		return err
	default:
		return fmt.Errorf("%w: %v", errors.ErrInternalServer, err)
	}
}
