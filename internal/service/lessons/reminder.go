package lessons

import (
	"context"
	"time"

	"go.uber.org/zap"

	"maestro/backend/internal/notify"
	"maestro/backend/internal/store"
)

// Reminder polls for lessons about to start and emits a reminder event for
// each. The poll interval doubles as the query window, so every lesson is
// picked up in exactly one poll.
type Reminder struct {
	repo     store.LessonRepository
	notifier notify.Notifier
	log      *zap.Logger
	lead     time.Duration
	interval time.Duration
}

func NewReminder(repo store.LessonRepository, notifier notify.Notifier, log *zap.Logger, lead, interval time.Duration) *Reminder {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if lead <= 0 {
		lead = time.Hour
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reminder{repo: repo, notifier: notifier, log: log, lead: lead, interval: interval}
}

func (r *Reminder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("reminder worker started",
		zap.Duration("lead", r.lead),
		zap.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			r.log.Info("reminder worker stopped")
			return
		case now := <-ticker.C:
			r.tick(ctx, now.UTC())
		}
	}
}

func (r *Reminder) tick(ctx context.Context, now time.Time) {
	upcoming, err := r.repo.UpcomingWithin(ctx, now.Add(r.lead), r.interval)
	if err != nil {
		r.log.Warn("reminder poll failed", zap.Error(err))
		return
	}
	for _, l := range upcoming {
		r.notifier.Emit(ctx, notify.EventLessonReminder, map[string]any{
			"lesson_id":  l.ID.String(),
			"course_id":  l.CourseID.String(),
			"student_id": l.StudentID.String(),
			"teacher_id": l.TeacherID.String(),
			"date":       l.Date.Format("2006-01-02"),
			"start_time": l.StartTime.String(),
			"end_time":   l.EndTime.String(),
		})
	}
}
