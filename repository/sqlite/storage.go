// Package sqlite is the single-file storage backend, built on gorm.
package sqlite

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"
	"taskmanager/internal/domain/query"
	"taskmanager/internal/domain/status"

	"github.com/google/uuid"
	sqlitedriver "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type userRow struct {
	ID        string `gorm:"primarykey;size:36"`
	FirstName string `gorm:"size:50;not null"`
	LastName  string `gorm:"size:50;not null"`
	Email     string `gorm:"size:255;not null;uniqueIndex"`
	Password  string `gorm:"not null"`
	Role      string `gorm:"size:16;not null;default:user"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (userRow) TableName() string { return "users" }

type taskRow struct {
	ID           string `gorm:"primarykey;size:36"`
	Title        string `gorm:"size:200;not null"`
	Description  string `gorm:"size:2000"`
	Status       string `gorm:"size:16;not null;index"`
	Priority     string `gorm:"size:8;not null"`
	DueDate      time.Time
	ReminderDate time.Time
	CreatorID    string `gorm:"size:36;not null;index"`
	AssigneeID   string `gorm:"size:36;not null;index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

func (taskRow) TableName() string { return "tasks" }

type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the database at path and migrates the schema.
// ":memory:" gives a private database pinned to a single connection.
func NewStorage(path string) (*Storage, error) {
	db, err := gorm.Open(sqlitedriver.Open(path), &gorm.Config{
		Logger: logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		TranslateError: true,
	})
	if err != nil {
		log.Println("[ERROR] Failed to open sqlite database:", err)
		return nil, err
	}
	if path == ":memory:" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&userRow{}, &taskRow{}); err != nil {
		log.Println("[ERROR] Failed to migrate sqlite database:", err)
		return nil, err
	}
	log.Println("[SUCCESS] SQLite storage ready:", path)
	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}
	user.Email = strings.ToLower(user.Email)
	row := toUserRow(user)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if stderrors.Is(err, gorm.ErrDuplicatedKey) {
			return errors.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, "id = ?", id)
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, "email = ?", strings.ToLower(email))
}

func (s *Storage) findUser(ctx context.Context, cond string, arg string) (*models.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).First(&row, cond, arg).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return row.model(), nil
}

func (s *Storage) ListUsers(ctx context.Context) ([]models.User, error) {
	var rows []userRow
	if err := s.db.WithContext(ctx).Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	users := make([]models.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, *r.model())
	}
	return users, nil
}

func (s *Storage) CreateTask(ctx context.Context, task *models.Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	row := toTaskRow(task)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if stderrors.Is(err, gorm.ErrDuplicatedKey) {
			return errors.ErrConflict
		}
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func (s *Storage) GetTaskByID(ctx context.Context, id string) (*models.Task, error) {
	var row taskRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return row.model(), nil
}

func (s *Storage) GetTasks(ctx context.Context, q query.Query) ([]models.Task, error) {
	tx := s.db.WithContext(ctx).Model(&taskRow{})
	if q.VisibleTo != "" {
		tx = tx.Where("creator_id = ? OR assignee_id = ?", q.VisibleTo, q.VisibleTo)
	}
	if len(q.Statuses) > 0 {
		tx = tx.Where("status IN ?", q.StatusStrings())
	}
	if len(q.Priorities) > 0 {
		tx = tx.Where("priority IN ?", q.PriorityStrings())
	}
	if len(q.Users) > 0 {
		tx = tx.Where("creator_id IN ? OR assignee_id IN ?", q.Users, q.Users)
	}
	// SQLite's lower() only folds ASCII; other searches are matched in Go.
	foldInGo := q.Search != "" && !isASCII(q.Search)
	if q.Search != "" && !foldInGo {
		p := query.LikePattern(q.Search)
		tx = tx.Where(`lower(title) LIKE ? ESCAPE '\' OR lower(description) LIKE ? ESCAPE '\'`, p, p)
	}

	var rows []taskRow
	if err := tx.Order("created_at DESC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	tasks := make([]models.Task, 0, len(rows))
	for _, r := range rows {
		t := r.model()
		if foldInGo && !q.Match(*t) {
			continue
		}
		tasks = append(tasks, *t)
	}
	return tasks, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func (s *Storage) UpdateTask(ctx context.Context, id string, task *models.Task) error {
	result := s.db.WithContext(ctx).Model(&taskRow{}).Where("id = ?", id).Updates(map[string]any{
		"title":         task.Title,
		"description":   task.Description,
		"status":        string(task.Status),
		"priority":      string(task.Priority),
		"due_date":      task.DueDate,
		"reminder_date": task.ReminderDate,
		"assignee_id":   task.AssigneeID,
		"updated_at":    task.UpdatedAt,
	})
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if result.RowsAffected == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// DeleteTask is a gorm soft delete; the row stays with deleted_at set.
func (s *Storage) DeleteTask(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&taskRow{}, "id = ?", id)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if result.RowsAffected == 0 {
		return errors.ErrNotFound
	}
	return nil
}

func toUserRow(u *models.User) userRow {
	return userRow{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Password:  u.Password,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (r userRow) model() *models.User {
	return &models.User{
		ID:        r.ID,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		Password:  r.Password,
		Role:      models.Role(r.Role),
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func toTaskRow(t *models.Task) taskRow {
	return taskRow{
		ID:           t.ID,
		Title:        t.Title,
		Description:  t.Description,
		Status:       string(t.Status),
		Priority:     string(t.Priority),
		DueDate:      t.DueDate,
		ReminderDate: t.ReminderDate,
		CreatorID:    t.CreatorID,
		AssigneeID:   t.AssigneeID,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func (r taskRow) model() *models.Task {
	return &models.Task{
		ID:           r.ID,
		Title:        r.Title,
		Description:  r.Description,
		Status:       status.Internal(r.Status),
		Priority:     models.Priority(r.Priority),
		DueDate:      r.DueDate.UTC(),
		ReminderDate: r.ReminderDate.UTC(),
		CreatorID:    r.CreatorID,
		AssigneeID:   r.AssigneeID,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}
