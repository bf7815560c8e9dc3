package db

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"strings"
	"time"

	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"
	"taskmanager/internal/domain/query"
	"taskmanager/internal/domain/status"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	queryTimeout   = 15 * time.Second
	uniqueViolated = "23505"
	taskColumns    = `id, title, description, status, priority, due_date, reminder_date, creator_id, assignee_id, created_at, updated_at`
	userColumns    = `id, first_name, last_name, email, password, role, created_at, updated_at`
)

type Storage struct {
	pool               *pgxpool.Pool
	prepCreateTask     string
	prepGetTaskByID    string
	prepGetTasks       string
	prepUpdateTask     string
	prepDeleteTask     string
	prepCreateUser     string
	prepGetUserByID    string
	prepGetUserByEmail string
	prepListUsers      string
	deleteQueue        chan struct{}
}

func NewStorage(connStr string) (*Storage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Println("[ERROR] Failed to connect to database:", err)
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		log.Println("[ERROR] Database is not reachable:", err)
		return nil, err
	}

	s := &Storage{
		pool:               pool,
		prepCreateTask:     `INSERT INTO tasks (` + taskColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		prepGetTaskByID:    `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND deleted = false`,
		prepGetTasks:       `SELECT ` + taskColumns + ` FROM tasks WHERE deleted = false`,
		prepUpdateTask:     `UPDATE tasks SET title = $1, description = $2, status = $3, priority = $4, due_date = $5, reminder_date = $6, assignee_id = $7, updated_at = $8 WHERE id = $9 AND deleted = false`,
		prepDeleteTask:     `UPDATE tasks SET deleted = true WHERE id = $1 AND deleted = false`,
		prepCreateUser:     `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		prepGetUserByID:    `SELECT ` + userColumns + ` FROM users WHERE id = $1`,
		prepGetUserByEmail: `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`,
		prepListUsers:      `SELECT ` + userColumns + ` FROM users ORDER BY created_at`,
		deleteQueue:        make(chan struct{}, 10),
	}
	log.Println("[SUCCESS] Database connection established")
	return s, nil
}

func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Storage) CreateTask(ctx context.Context, task *models.Task) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx, s.prepCreateTask,
		task.ID, task.Title, task.Description, string(task.Status), string(task.Priority),
		task.DueDate, task.ReminderDate, task.CreatorID, task.AssigneeID, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		log.Println("[ERROR] Failed to create task:", err)
		if isUniqueViolation(err) {
			return errors.ErrConflict
		}
		return err
	}
	log.Println("[SUCCESS] Task created:", task.ID)
	return nil
}

func (s *Storage) GetTaskByID(ctx context.Context, id string) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	task, err := scanTask(s.pool.QueryRow(ctx, s.prepGetTaskByID, id))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrNotFound
		}
		log.Println("[ERROR] Failed to load task:", err)
		return nil, err
	}
	return task, nil
}

func (s *Storage) GetTasks(ctx context.Context, q query.Query) ([]models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	sql, args := renderTaskQuery(s.prepGetTasks, q)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		log.Println("[ERROR] Failed to list tasks:", err)
		return nil, err
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			log.Println("[ERROR] Failed to read task row:", err)
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

// renderTaskQuery appends the predicate clauses of q to base, numbering
// placeholders from $1.
func renderTaskQuery(base string, q query.Query) (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(base)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.VisibleTo != "" {
		p := arg(q.VisibleTo)
		sb.WriteString(" AND (creator_id = " + p + " OR assignee_id = " + p + ")")
	}
	if len(q.Statuses) > 0 {
		sb.WriteString(" AND status = ANY(" + arg(q.StatusStrings()) + ")")
	}
	if len(q.Priorities) > 0 {
		sb.WriteString(" AND priority = ANY(" + arg(q.PriorityStrings()) + ")")
	}
	if len(q.Users) > 0 {
		p := arg(q.Users)
		sb.WriteString(" AND (creator_id = ANY(" + p + ") OR assignee_id = ANY(" + p + "))")
	}
	if q.Search != "" {
		p := arg(query.LikePattern(q.Search))
		sb.WriteString(` AND (lower(title) LIKE ` + p + ` ESCAPE '\' OR lower(description) LIKE ` + p + ` ESCAPE '\')`)
	}
	sb.WriteString(" ORDER BY created_at DESC, id ASC")
	return sb.String(), args
}

func (s *Storage) UpdateTask(ctx context.Context, id string, task *models.Task) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	ct, err := s.pool.Exec(ctx, s.prepUpdateTask,
		task.Title, task.Description, string(task.Status), string(task.Priority),
		task.DueDate, task.ReminderDate, task.AssigneeID, task.UpdatedAt, id)
	if err != nil {
		log.Println("[ERROR] Failed to update task:", err)
		return err
	}
	if ct.RowsAffected() == 0 {
		return errors.ErrNotFound
	}
	log.Println("[SUCCESS] Task updated:", id)
	return nil
}

func (s *Storage) DeleteTask(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	ct, err := s.pool.Exec(ctx, s.prepDeleteTask, id)
	if err != nil {
		log.Println("[ERROR] Failed to flag task as deleted:", err)
		return err
	}
	if ct.RowsAffected() == 0 {
		return errors.ErrNotFound
	}
	log.Println("[SUCCESS] Task flagged as deleted:", id)
	s.tryEnqueueOrFlush()
	return nil
}

func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
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
	_, err := s.pool.Exec(ctx, s.prepCreateUser,
		user.ID, user.FirstName, user.LastName, user.Email, user.Password, string(user.Role), user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.ErrUserAlreadyExists
		}
		log.Println("[ERROR] Failed to create user:", err)
		return err
	}
	log.Println("[SUCCESS] User created:", user.ID)
	return nil
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, s.prepGetUserByID, id)
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, s.prepGetUserByEmail, email)
}

func (s *Storage) getUser(ctx context.Context, sql, arg string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	user, err := scanUser(s.pool.QueryRow(ctx, sql, arg))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrUserNotFound
		}
		log.Println("[ERROR] Failed to load user:", err)
		return nil, err
	}
	return user, nil
}

func (s *Storage) ListUsers(ctx context.Context) ([]models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := s.pool.Query(ctx, s.prepListUsers)
	if err != nil {
		log.Println("[ERROR] Failed to list users:", err)
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func scanTask(row pgx.Row) (*models.Task, error) {
	t := &models.Task{}
	var st, pr string
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &st, &pr, &t.DueDate, &t.ReminderDate,
		&t.CreatorID, &t.AssigneeID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = status.Internal(st)
	t.Priority = models.Priority(pr)
	return t, nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	u := &models.User{}
	var role string
	if err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Password, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	return u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolated
}

// tryEnqueueOrFlush records a soft delete; once the queue is full every
// flagged row is purged in one statement.
func (s *Storage) tryEnqueueOrFlush() {
	if s.deleteQueue == nil {
		return
	}
	select {
	case s.deleteQueue <- struct{}{}:
	default:
		s.drainDeleteQueue()
		if affected, err := s.hardDeleteAllFlagged(context.Background()); err != nil {
			log.Println("[ERROR] Failed to purge deleted tasks:", err)
		} else if affected > 0 {
			log.Println("[SUCCESS] Purged deleted tasks:", affected)
		}
	}
}

func (s *Storage) drainDeleteQueue() {
	if s.deleteQueue == nil {
		return
	}
	for {
		select {
		case <-s.deleteQueue:
		default:
			return
		}
	}
}

func (s *Storage) hardDeleteAllFlagged(ctx context.Context) (int64, error) {
	c, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	tx, err := s.pool.Begin(c)
	if err != nil {
		return 0, err
	}
	ct, err := tx.Exec(c, `DELETE FROM tasks WHERE deleted = true`)
	if err != nil {
		_ = tx.Rollback(c)
		return 0, err
	}
	if err := tx.Commit(c); err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
