package taskstore

import (
	"context"
	"fmt"
	"sort"

	"taskmanager/internal/domain/access"
	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"
	"taskmanager/internal/domain/query"
	"taskmanager/internal/domain/status"
)

func requireAdmin(actor access.Actor) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: admin role required", errors.ErrForbidden)
	}
	return nil
}

func (s *Store) Users(ctx context.Context, actor access.Actor) ([]models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, storageErr(err)
	}
	sort.SliceStable(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (s *Store) User(ctx context.Context, id string, actor access.Actor) (*models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, errors.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %w", errors.ErrNotFound, err)
		}
		return nil, storageErr(err)
	}
	return u, nil
}

// UsersWithTaskCounts lists users with the number of tasks they created and
// the number currently assigned to them.
func (s *Store) UsersWithTaskCounts(ctx context.Context, actor access.Actor) ([]models.UserSummary, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	users, err := s.Users(ctx, actor)
	if err != nil {
		return nil, err
	}
	tasks, err := s.tasks.GetTasks(ctx, query.Build(actor, query.Filters{}))
	if err != nil {
		return nil, storageErr(err)
	}

	created := map[string]int{}
	assigned := map[string]int{}
	for _, t := range tasks {
		created[t.CreatorID]++
		assigned[t.AssigneeID]++
	}

	out := make([]models.UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, models.UserSummary{
			ID:            u.ID,
			FirstName:     u.FirstName,
			LastName:      u.LastName,
			Email:         u.Email,
			Role:          u.Role,
			TasksCount:    created[u.ID],
			AssignedCount: assigned[u.ID],
			CreatedAt:     u.CreatedAt,
		})
	}
	return out, nil
}

func (s *Store) Stats(ctx context.Context, actor access.Actor) (*models.Stats, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	users, err := s.Users(ctx, actor)
	if err != nil {
		return nil, err
	}
	tasks, err := s.tasks.GetTasks(ctx, query.Build(actor, query.Filters{}))
	if err != nil {
		return nil, storageErr(err)
	}

	stats := &models.Stats{
		TotalTasks: len(tasks),
		TotalUsers: len(users),
		ByStatus:   map[status.Client]int{},
		ByPriority: map[models.Priority]int{},
	}
	for _, c := range status.AllClient() {
		stats.ByStatus[c] = 0
	}
	for _, p := range []models.Priority{models.PriorityLow, models.PriorityMedium, models.PriorityHigh} {
		stats.ByPriority[p] = 0
	}

	now := s.now()
	for _, t := range tasks {
		stats.ByStatus[status.ToClient(t.Status)]++
		stats.ByPriority[t.Priority]++
		if t.Status != status.StoredCompleted && t.DueDate.Before(now) {
			stats.Overdue++
		}
	}
	return stats, nil
}
