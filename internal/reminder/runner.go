package reminder

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"taskmanager/internal/domain/models"

	"github.com/robfig/cron/v3"
)

const DefaultInterval = time.Minute

// TaskSource is the visible task collection the runner watches.
type TaskSource interface {
	Filtered() []models.TaskView
	OnChange(fn func([]models.TaskView))
}

// Runner checks the source on a fixed interval and whenever it changes.
type Runner struct {
	sched    *Scheduler
	source   TaskSource
	cron     *cron.Cron
	interval time.Duration
	running  atomic.Bool
	entry    cron.EntryID
}

func NewRunner(sched *Scheduler, source TaskSource, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	r := &Runner{
		sched:    sched,
		source:   source,
		cron:     cron.New(),
		interval: interval,
	}
	source.OnChange(func(tasks []models.TaskView) {
		if r.running.Load() {
			r.sched.Check(tasks)
		}
	})
	return r
}

// Start schedules the periodic check and runs one immediately. Starting a
// running runner does nothing.
func (r *Runner) Start() error {
	if !r.running.CompareAndSwap(false, true) {
		return nil
	}
	seconds := int(r.interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	entry, err := r.cron.AddFunc(fmt.Sprintf("@every %ds", seconds), r.Tick)
	if err != nil {
		r.running.Store(false)
		return err
	}
	r.entry = entry
	r.cron.Start()
	log.Println("[INFO] Reminder scheduler started, interval:", r.interval)
	r.Tick()
	return nil
}

// Tick runs one check against the current snapshot.
func (r *Runner) Tick() {
	r.sched.Check(r.source.Filtered())
}

func (r *Runner) Stop() {
	if !r.running.CompareAndSwap(true, false) {
		return
	}
	r.cron.Remove(r.entry)
	ctx := r.cron.Stop()
	<-ctx.Done()
	log.Println("[INFO] Reminder scheduler stopped")
}
