// Package access decides what an authenticated actor may do with a task.
package access

import "taskmanager/internal/domain/models"

// Actor is the authenticated identity performing an operation.
type Actor struct {
	ID   string
	Role models.Role
}

func ActorOf(u *models.User) Actor {
	if u == nil {
		return Actor{}
	}
	return Actor{ID: u.ID, Role: u.Role}
}

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

func IsParticipant(a Actor, t models.Task) bool {
	if a.ID == "" {
		return false
	}
	return a.ID == t.CreatorID || a.ID == t.AssigneeID
}

func CanRead(a Actor, t models.Task) bool {
	return a.IsAdmin() || IsParticipant(a, t)
}

// CanWrite covers update and delete. Being the assignee is not enough.
func CanWrite(a Actor, t models.Task) bool {
	if a.IsAdmin() {
		return true
	}
	return a.ID != "" && a.ID == t.CreatorID
}

// CanChangeStatus is the one write an assignee gets on a task they did not create.
func CanChangeStatus(a Actor, t models.Task) bool {
	return CanWrite(a, t) || (a.ID != "" && a.ID == t.AssigneeID)
}

func CanReassign(a Actor) bool {
	return a.IsAdmin()
}
