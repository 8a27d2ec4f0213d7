package lessons

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"maestro/backend/internal/domain"
	"maestro/backend/internal/notify"
	"maestro/backend/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// Scheduler books, reschedules and cancels lessons, expanding recurring
// seeds into their occurrence series.
type Scheduler struct {
	repo     store.LessonRepository
	dir      store.Directory
	notifier notify.Notifier
	log      *zap.Logger
	horizon  int
}

func NewScheduler(repo store.LessonRepository, dir store.Directory, notifier notify.Notifier, log *zap.Logger, horizon int) *Scheduler {
	if horizon <= 0 {
		horizon = domain.DefaultOccurrenceCount
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{repo: repo, dir: dir, notifier: notifier, log: log, horizon: horizon}
}

type CreateInput struct {
	CourseID          uuid.UUID
	StudentID         uuid.UUID
	TeacherID         uuid.UUID
	Date              time.Time
	StartTime         domain.TimeOfDay
	EndTime           domain.TimeOfDay
	Classroom         string
	PrivateNotes      string
	Objectives        string
	RecurrencePattern domain.RecurrencePattern
	SkipNotification  bool
}

func (s *Scheduler) Create(ctx context.Context, in CreateInput) (domain.Lesson, store.SeriesResult, error) {
	if in.CourseID == uuid.Nil {
		return domain.Lesson{}, store.SeriesResult{}, validationError("course_id is required")
	}
	if in.StudentID == uuid.Nil {
		return domain.Lesson{}, store.SeriesResult{}, validationError("student_id is required")
	}
	if in.TeacherID == uuid.Nil {
		return domain.Lesson{}, store.SeriesResult{}, validationError("teacher_id is required")
	}
	if in.Date.IsZero() {
		return domain.Lesson{}, store.SeriesResult{}, validationError("date is required")
	}
	if in.StartTime.IsZero() && in.EndTime.IsZero() {
		return domain.Lesson{}, store.SeriesResult{}, validationError("start_time and end_time are required")
	}
	if !in.StartTime.Before(in.EndTime) {
		return domain.Lesson{}, store.SeriesResult{}, validationError("end_time must be after start_time")
	}

	pattern := in.RecurrencePattern
	if pattern == "" {
		pattern = domain.RecurrenceNone
	}
	if !pattern.Valid() {
		return domain.Lesson{}, store.SeriesResult{}, validationError("unknown recurrence pattern")
	}

	enrolled, err := s.dir.IsEnrolled(ctx, in.StudentID, in.CourseID)
	if err != nil {
		return domain.Lesson{}, store.SeriesResult{}, err
	}
	if !enrolled {
		return domain.Lesson{}, store.SeriesResult{}, validationError("student is not enrolled in this course")
	}

	lesson := domain.Lesson{
		CourseID:          in.CourseID,
		StudentID:         in.StudentID,
		TeacherID:         in.TeacherID,
		Date:              truncateToDay(in.Date),
		StartTime:         in.StartTime,
		EndTime:           in.EndTime,
		Classroom:         strings.TrimSpace(in.Classroom),
		PrivateNotes:      in.PrivateNotes,
		Objectives:        in.Objectives,
		Status:            domain.LessonStatusScheduled,
		IsRecurring:       pattern != domain.RecurrenceNone,
		RecurrencePattern: pattern,
	}

	if pattern == domain.RecurrenceNone {
		created, err := s.repo.Create(ctx, lesson)
		if err != nil {
			return domain.Lesson{}, store.SeriesResult{}, err
		}
		if !in.SkipNotification {
			s.emitLessonEvent(ctx, notify.EventLessonCreated, created)
		}
		return created, store.SeriesResult{}, nil
	}

	res, err := s.repo.CreateSeries(ctx, lesson, s.horizon)
	if err != nil {
		return domain.Lesson{}, store.SeriesResult{}, err
	}
	if len(res.Skipped) > 0 {
		s.log.Info("series occurrences skipped over conflicts",
			zap.String("teacher_id", lesson.TeacherID.String()),
			zap.Int("skipped", len(res.Skipped)))
	}
	seed := res.Written[0]
	if !in.SkipNotification {
		for _, l := range res.Written {
			s.emitLessonEvent(ctx, notify.EventLessonCreated, l)
		}
	}
	return seed, res, nil
}

type UpdateInput struct {
	Patch            store.LessonPatch
	Cascade          bool
	SkipNotification bool
}

func (s *Scheduler) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (domain.Lesson, store.SeriesResult, error) {
	if id == uuid.Nil {
		return domain.Lesson{}, store.SeriesResult{}, validationError("lesson_id is required")
	}
	if in.Patch.Empty() {
		return domain.Lesson{}, store.SeriesResult{}, validationError("no fields to update")
	}
	if in.Patch.StartTime != nil && in.Patch.EndTime != nil && !in.Patch.StartTime.Before(*in.Patch.EndTime) {
		return domain.Lesson{}, store.SeriesResult{}, validationError("end_time must be after start_time")
	}
	if in.Patch.Date != nil {
		day := truncateToDay(*in.Patch.Date)
		in.Patch.Date = &day
	}

	updated, res, err := s.repo.Update(ctx, id, in.Patch, in.Cascade)
	if err != nil {
		return domain.Lesson{}, store.SeriesResult{}, err
	}
	if len(res.Skipped) > 0 {
		s.log.Info("cascade skipped conflicting siblings",
			zap.String("lesson_id", id.String()),
			zap.Int("skipped", len(res.Skipped)))
	}
	if !in.SkipNotification {
		s.emitLessonEvent(ctx, notify.EventLessonModified, updated)
		for _, sib := range res.Written {
			s.emitLessonEvent(ctx, notify.EventLessonModified, sib)
		}
	}
	return updated, res, nil
}

type CancelInput struct {
	Cascade          bool
	SkipNotification bool
}

// Cancel soft deletes a lesson, optionally with the rest of its series, and
// offers each freed slot to enrolled students who asked to hear about them.
func (s *Scheduler) Cancel(ctx context.Context, id uuid.UUID, in CancelInput) ([]domain.Lesson, error) {
	if id == uuid.Nil {
		return nil, validationError("lesson_id is required")
	}
	cancelled, err := s.repo.Cancel(ctx, id, in.Cascade)
	if err != nil {
		return nil, err
	}
	if in.SkipNotification {
		return cancelled, nil
	}
	for _, l := range cancelled {
		s.emitLessonEvent(ctx, notify.EventLessonCancelled, l)
		s.broadcastFreeSlot(ctx, l)
	}
	return cancelled, nil
}

func (s *Scheduler) MarkCompleted(ctx context.Context, id uuid.UUID) (domain.Lesson, error) {
	if id == uuid.Nil {
		return domain.Lesson{}, validationError("lesson_id is required")
	}
	return s.repo.MarkCompleted(ctx, id)
}

func (s *Scheduler) Get(ctx context.Context, id uuid.UUID) (domain.Lesson, error) {
	if id == uuid.Nil {
		return domain.Lesson{}, validationError("lesson_id is required")
	}
	return s.repo.Get(ctx, id)
}

func (s *Scheduler) List(ctx context.Context, filter store.LessonFilter) ([]domain.Lesson, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, validationError("unknown lesson status")
	}
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateTo.Before(*filter.DateFrom) {
		return nil, validationError("date_to must not be before date_from")
	}
	return s.repo.List(ctx, filter)
}

// HasConflict answers whether the teacher is free for the proposed slot.
// Advisory only: the booking path re-checks under the calendar lock.
func (s *Scheduler) HasConflict(ctx context.Context, teacherID uuid.UUID, date time.Time, start, end domain.TimeOfDay, excludeID uuid.UUID) (bool, error) {
	if teacherID == uuid.Nil {
		return false, validationError("teacher_id is required")
	}
	if !start.Before(end) {
		return false, validationError("end_time must be after start_time")
	}
	existing, err := s.repo.ListScheduled(ctx, teacherID, truncateToDay(date))
	if err != nil {
		return false, err
	}
	for _, l := range existing {
		if excludeID != uuid.Nil && l.ID == excludeID {
			continue
		}
		if domain.Overlaps(start, end, l.StartTime, l.EndTime) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Scheduler) Next(ctx context.Context, studentID uuid.UUID, from time.Time) (domain.Lesson, error) {
	if studentID == uuid.Nil {
		return domain.Lesson{}, validationError("student_id is required")
	}
	return s.repo.Next(ctx, studentID, truncateToDay(from))
}

func (s *Scheduler) History(ctx context.Context, studentID uuid.UUID, limit int) ([]domain.Lesson, error) {
	if studentID == uuid.Nil {
		return nil, validationError("student_id is required")
	}
	return s.repo.History(ctx, studentID, limit)
}

func (s *Scheduler) emitLessonEvent(ctx context.Context, event string, l domain.Lesson) {
	s.notifier.Emit(ctx, event, map[string]any{
		"lesson_id":  l.ID.String(),
		"course_id":  l.CourseID.String(),
		"student_id": l.StudentID.String(),
		"teacher_id": l.TeacherID.String(),
		"date":       l.Date.Format("2006-01-02"),
		"start_time": l.StartTime.String(),
		"end_time":   l.EndTime.String(),
	})
}

// broadcastFreeSlot tells the course's other students about the opened slot.
// Only students who opted in hear about it; the cancelled lesson's own
// student never does.
func (s *Scheduler) broadcastFreeSlot(ctx context.Context, l domain.Lesson) {
	students, err := s.dir.EnrolledStudents(ctx, l.CourseID)
	if err != nil {
		s.log.Warn("free slot broadcast: listing students failed",
			zap.String("course_id", l.CourseID.String()), zap.Error(err))
		return
	}
	for _, studentID := range students {
		if studentID == l.StudentID {
			continue
		}
		pref, err := s.dir.NotifyPreference(ctx, studentID)
		if err != nil {
			s.log.Warn("free slot broadcast: reading preference failed",
				zap.String("student_id", studentID.String()), zap.Error(err))
			continue
		}
		if !pref.FreeSlotAlerts {
			continue
		}
		s.notifier.Emit(ctx, notify.EventFreeSlot, map[string]any{
			"student_id": studentID.String(),
			"course_id":  l.CourseID.String(),
			"teacher_id": l.TeacherID.String(),
			"date":       l.Date.Format("2006-01-02"),
			"start_time": l.StartTime.String(),
			"end_time":   l.EndTime.String(),
		})
	}
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
