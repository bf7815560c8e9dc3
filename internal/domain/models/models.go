package models

import (
	"encoding/json"
	"time"

	"taskmanager/internal/domain/status"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// DefaultDueIn is how far in the future a task is due when no due date is given.
const DefaultDueIn = 7 * 24 * time.Hour

type User struct {
	ID        string    `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Task is the persisted form of a task. Status is always in the internal vocabulary.
type Task struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Status       status.Internal `json:"status"`
	Priority     Priority        `json:"priority"`
	DueDate      time.Time       `json:"dueDate"`
	ReminderDate time.Time       `json:"reminderDate"`
	CreatorID    string          `json:"creatorId"`
	AssigneeID   string          `json:"assigneeId"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// UserRef is the populated creator/assignee attached to a task view.
type UserRef struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

func (r *UserRef) UnmarshalJSON(data []byte) error {
	type plain UserRef
	var aux struct {
		plain
		LegacyID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = UserRef(aux.plain)
	if r.ID == "" {
		r.ID = aux.LegacyID
	}
	return nil
}

func NewUserRef(u *User) *UserRef {
	if u == nil {
		return nil
	}
	return &UserRef{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email}
}

// TaskView is the API representation of a task: client status vocabulary and
// populated creator/assignee.
type TaskView struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Status       status.Client `json:"status"`
	Priority     Priority      `json:"priority"`
	DueDate      time.Time     `json:"dueDate"`
	ReminderDate time.Time     `json:"reminderDate"`
	UserID       string        `json:"userId"`
	AssignedTo   string        `json:"assignedTo"`
	User         *UserRef      `json:"user,omitempty"`
	AssignedUser *UserRef      `json:"assignedUser,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// UnmarshalJSON accepts the legacy "_id" field so that everything past the
// decoder only ever looks at ID.
func (v *TaskView) UnmarshalJSON(data []byte) error {
	type plain TaskView
	var aux struct {
		plain
		LegacyID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*v = TaskView(aux.plain)
	if v.ID == "" {
		v.ID = aux.LegacyID
	}
	return nil
}

func NewTaskView(t Task, creator, assignee *User) TaskView {
	return TaskView{
		ID:           t.ID,
		Title:        t.Title,
		Description:  t.Description,
		Status:       status.ToClient(t.Status),
		Priority:     t.Priority,
		DueDate:      t.DueDate,
		ReminderDate: t.ReminderDate,
		UserID:       t.CreatorID,
		AssignedTo:   t.AssigneeID,
		User:         NewUserRef(creator),
		AssignedUser: NewUserRef(assignee),
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

// Record converts the view back to its persisted form.
func (v TaskView) Record() Task {
	return Task{
		ID:           v.ID,
		Title:        v.Title,
		Description:  v.Description,
		Status:       status.ToInternal(v.Status),
		Priority:     v.Priority,
		DueDate:      v.DueDate,
		ReminderDate: v.ReminderDate,
		CreatorID:    v.UserID,
		AssigneeID:   v.AssignedTo,
		CreatedAt:    v.CreatedAt,
		UpdatedAt:    v.UpdatedAt,
	}
}

type RegisterRequest struct {
	FirstName string `json:"firstName" validate:"required,min=1,max=50"`
	LastName  string `json:"lastName" validate:"required,min=1,max=50"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	Token     string `json:"token"`
}

type CreateTaskRequest struct {
	Title        string     `json:"title" validate:"required,min=1,max=200"`
	Description  string     `json:"description" validate:"omitempty,max=2000"`
	Status       string     `json:"status,omitempty"`
	Priority     string     `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
	ReminderDate *time.Time `json:"reminderDate,omitempty"`
	AssignedTo   string     `json:"assignedTo,omitempty"`
	UserID       string     `json:"userId,omitempty"`
}

// UpdateTaskRequest uses pointers so that absent fields are left untouched.
type UpdateTaskRequest struct {
	Title        *string    `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description  *string    `json:"description,omitempty" validate:"omitempty,max=2000"`
	Status       *string    `json:"status,omitempty"`
	Priority     *string    `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
	ReminderDate *time.Time `json:"reminderDate,omitempty"`
	AssignedTo   *string    `json:"assignedTo,omitempty"`
	UserID       *string    `json:"userId,omitempty"`
}

type TaskInput struct {
	Title        string
	Description  string
	Status       status.Client
	Priority     Priority
	DueDate      *time.Time
	ReminderDate *time.Time
	AssignedTo   string
	CreatorID    string
}

type TaskPatch struct {
	Title        *string
	Description  *string
	Status       *status.Client
	Priority     *Priority
	DueDate      *time.Time
	ReminderDate *time.Time
	AssignedTo   *string
	CreatorID    *string
}

// OnlyStatus reports whether the patch touches nothing but the status.
// CreatorID and AssignedTo are excluded: they are ignored rather than applied.
func (p TaskPatch) OnlyStatus() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil &&
		p.DueDate == nil && p.ReminderDate == nil
}

func (r CreateTaskRequest) Input() TaskInput {
	return TaskInput{
		Title:        r.Title,
		Description:  r.Description,
		Status:       status.Client(r.Status),
		Priority:     Priority(r.Priority),
		DueDate:      r.DueDate,
		ReminderDate: r.ReminderDate,
		AssignedTo:   r.AssignedTo,
		CreatorID:    r.UserID,
	}
}

func (r UpdateTaskRequest) Patch() TaskPatch {
	p := TaskPatch{
		Title:        r.Title,
		Description:  r.Description,
		DueDate:      r.DueDate,
		ReminderDate: r.ReminderDate,
		AssignedTo:   r.AssignedTo,
		CreatorID:    r.UserID,
	}
	if r.Status != nil {
		s := status.Client(*r.Status)
		p.Status = &s
	}
	if r.Priority != nil {
		pr := Priority(*r.Priority)
		p.Priority = &pr
	}
	return p
}

// UserSummary is a user row in the admin overview.
type UserSummary struct {
	ID            string    `json:"id"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName"`
	Email         string    `json:"email"`
	Role          Role      `json:"role"`
	TasksCount    int       `json:"tasksCount"`
	AssignedCount int       `json:"assignedCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

type Stats struct {
	TotalTasks int                   `json:"totalTasks"`
	TotalUsers int                   `json:"totalUsers"`
	Overdue    int                   `json:"overdue"`
	ByStatus   map[status.Client]int `json:"byStatus"`
	ByPriority map[Priority]int      `json:"byPriority"`
}
