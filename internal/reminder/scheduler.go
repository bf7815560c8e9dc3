// Package reminder raises notices for tasks whose reminder or due date is close.
package reminder

import (
	"fmt"
	"math"
	"sync"
	"time"

	"taskmanager/internal/client"
	"taskmanager/internal/domain/models"
	"taskmanager/internal/domain/status"
)

type Tier string

const (
	TierUrgent   Tier = "urgent"
	TierSoon     Tier = "soon"
	TierUpcoming Tier = "upcoming"
	TierDueToday Tier = "due-today"
)

var tiers = []struct {
	tier   Tier
	within time.Duration
}{
	{TierUrgent, time.Hour},
	{TierSoon, 24 * time.Hour},
	{TierUpcoming, 72 * time.Hour},
}

type Reminder struct {
	TaskID  string
	Title   string
	Tier    Tier
	Message string
}

type shownKey struct {
	taskID string
	tier   Tier
}

// Scheduler remembers which reminders it has raised today. The markers reset
// on the first check of a new calendar day.
type Scheduler struct {
	notifier client.Notifier
	now      func() time.Time

	mu       sync.Mutex
	day      string
	shown    map[shownKey]bool
	dueShown map[string]bool
}

func NewScheduler(notifier client.Notifier, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	if notifier == nil {
		notifier = client.NotifierFunc(func(client.Notice) {})
	}
	return &Scheduler{
		notifier: notifier,
		now:      now,
		shown:    map[shownKey]bool{},
		dueShown: map[string]bool{},
	}
}

// Check raises every reminder that is due and not yet shown today, and
// returns them.
func (s *Scheduler) Check(tasks []models.TaskView) []Reminder {
	now := s.now()

	s.mu.Lock()
	if today := now.Format(time.DateOnly); today != s.day {
		s.day = today
		s.shown = map[shownKey]bool{}
		s.dueShown = map[string]bool{}
	}

	var fired []Reminder
	for _, t := range tasks {
		if t.Status == status.Completed {
			continue
		}
		if r, ok := s.reminderFor(t, now); ok {
			fired = append(fired, r)
		}
		if r, ok := s.dueTodayFor(t, now); ok {
			fired = append(fired, r)
		}
	}
	s.mu.Unlock()

	for _, r := range fired {
		s.notifier.Notify(client.Notice{Level: client.LevelInfo, Title: r.Title, Message: r.Message})
	}
	return fired
}

func (s *Scheduler) reminderFor(t models.TaskView, now time.Time) (Reminder, bool) {
	if t.ReminderDate.IsZero() {
		return Reminder{}, false
	}
	until := t.ReminderDate.Sub(now)
	if until <= 0 {
		return Reminder{}, false
	}
	for _, tr := range tiers {
		if until > tr.within {
			continue
		}
		key := shownKey{taskID: t.ID, tier: tr.tier}
		if s.shown[key] {
			return Reminder{}, false
		}
		s.shown[key] = true
		return Reminder{TaskID: t.ID, Title: t.Title, Tier: tr.tier, Message: reminderMessage(tr.tier, until)}, true
	}
	return Reminder{}, false
}

func (s *Scheduler) dueTodayFor(t models.TaskView, now time.Time) (Reminder, bool) {
	if t.DueDate.IsZero() || s.dueShown[t.ID] {
		return Reminder{}, false
	}
	if t.DueDate.In(now.Location()).Format(time.DateOnly) != now.Format(time.DateOnly) {
		return Reminder{}, false
	}
	s.dueShown[t.ID] = true
	return Reminder{TaskID: t.ID, Title: t.Title, Tier: TierDueToday, Message: "This task is due today."}, true
}

func reminderMessage(tier Tier, until time.Duration) string {
	switch tier {
	case TierUrgent:
		return fmt.Sprintf("Reminder in %d minutes.", int(math.Ceil(until.Minutes())))
	case TierSoon:
		return fmt.Sprintf("Reminder in %d hours.", int(math.Ceil(until.Hours())))
	default:
		return fmt.Sprintf("Reminder in %d days.", int(math.Ceil(until.Hours()/24)))
	}
}
