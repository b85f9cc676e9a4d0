// Package reminder sends supplement intake reminders during each plan's
// time slot, at most once per plan per day.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/laurel/internal/model"
	"github.com/alfredjeanlab/laurel/internal/notify"
	"github.com/alfredjeanlab/laurel/internal/store"
)

// JobName is the scheduler name of the reminder job.
const JobName = "supplement-reminders"

// Slot is a named window of local clock time, inclusive at both ends.
type Slot struct {
	Name  string
	Start time.Duration // offset from midnight
	End   time.Duration
}

func clock(h, m int) time.Duration {
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
}

// DefaultSlots are the intake windows plans can be scheduled in. Windows
// overlap; a plan is reminded in whichever of its slots is open.
var DefaultSlots = []Slot{
	{Name: "breakfast_before", Start: clock(6, 0), End: clock(9, 59)},
	{Name: "breakfast_after", Start: clock(7, 0), End: clock(10, 59)},
	{Name: "lunch_before", Start: clock(11, 0), End: clock(12, 29)},
	{Name: "lunch_after", Start: clock(12, 0), End: clock(13, 59)},
	{Name: "dinner_before", Start: clock(17, 0), End: clock(18, 29)},
	{Name: "dinner_after", Start: clock(18, 0), End: clock(20, 59)},
}

// ActiveSlots returns the names of the slots open at t's local clock time.
// Slot ends are inclusive to the minute.
func ActiveSlots(slots []Slot, t time.Time) []string {
	sinceMidnight := clock(t.Hour(), t.Minute())
	var out []string
	for _, s := range slots {
		if sinceMidnight >= s.Start && sinceMidnight <= s.End {
			out = append(out, s.Name)
		}
	}
	return out
}

// Job records reminder notifications for plans whose slot is open.
type Job struct {
	store  store.Store
	slots  []Slot
	logger *slog.Logger
	now    func() time.Time
}

func New(s store.Store, logger *slog.Logger) *Job {
	return &Job{
		store:  s,
		slots:  DefaultSlots,
		logger: logger.With("job", JobName),
		now:    time.Now,
	}
}

func (j *Job) Name() string { return JobName }

func (j *Job) Run(ctx context.Context) error {
	now := j.now()
	active := ActiveSlots(j.slots, now)
	if len(active) == 0 {
		return nil
	}

	plans, err := j.store.DueSupplementPlans(ctx, active)
	if err != nil {
		return fmt.Errorf("list due supplement plans: %w", err)
	}

	sent := 0
	for _, p := range plans {
		ok, err := j.remind(ctx, p, now)
		if err != nil {
			j.logger.Error("supplement reminder", "plan_id", p.ID, "user_id", p.UserID, "err", err)
			continue
		}
		if ok {
			sent++
		}
	}
	if sent > 0 {
		j.logger.Info("supplement reminders sent", "count", sent, "slots", active)
	}
	return nil
}

func (j *Job) remind(ctx context.Context, p model.SupplementPlan, now time.Time) (bool, error) {
	seen, err := j.store.HasNotificationToday(ctx, p.UserID, model.NotificationSupplement, p.ID, now)
	if err != nil || seen {
		return false, err
	}
	planID := p.ID
	n := &model.Notification{
		UserID:    p.UserID,
		Type:      model.NotificationSupplement,
		RelatedID: &planID,
		Title:     "Supplement reminder",
		Body:      fmt.Sprintf("Time to take '%s' (%s)!", p.SupplementName, p.TimeSlot),
		LinkURL:   "/my/supplements",
	}
	if err := notify.Record(ctx, j.store, n); err != nil {
		return false, err
	}
	return true, nil
}
