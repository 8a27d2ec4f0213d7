package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"maestro/backend/internal/domain"
)

// LessonPatch carries the fields an update may change. Nil means "leave
// untouched".
type LessonPatch struct {
	Date         *time.Time
	StartTime    *domain.TimeOfDay
	EndTime      *domain.TimeOfDay
	Classroom    *string
	PrivateNotes *string
	Objectives   *string
}

func (p LessonPatch) Empty() bool {
	return p.Date == nil && p.StartTime == nil && p.EndTime == nil &&
		p.Classroom == nil && p.PrivateNotes == nil && p.Objectives == nil
}

// TouchesSchedule reports whether the patch changes date or times and so
// requires a conflict re-check.
func (p LessonPatch) TouchesSchedule() bool {
	return p.Date != nil || p.StartTime != nil || p.EndTime != nil
}

// SeriesSafe strips the fields that must never cascade to series siblings:
// the date (siblings have distinct dates) and the private notes.
func (p LessonPatch) SeriesSafe() LessonPatch {
	return LessonPatch{
		StartTime:  p.StartTime,
		EndTime:    p.EndTime,
		Classroom:  p.Classroom,
		Objectives: p.Objectives,
	}
}

// SeriesResult reports the outcome of a best-effort operation across a
// recurring series: the lessons written and the dates skipped because the
// slot was already taken.
type SeriesResult struct {
	Written []domain.Lesson
	Skipped []time.Time
}

type LessonFilter struct {
	TeacherID uuid.UUID
	StudentID uuid.UUID
	CourseID  uuid.UUID
	DateFrom  *time.Time
	DateTo    *time.Time
	// Status filters to one status; when empty, cancelled lessons are
	// excluded.
	Status domain.LessonStatus
}

type LessonRepository interface {
	// Create conflict-checks and inserts a single lesson as one atomic unit
	// against other bookings for the same teacher. Returns ErrConflict when
	// the slot is taken.
	Create(ctx context.Context, lesson domain.Lesson) (domain.Lesson, error)

	// CreateSeries inserts the seed and up to count generated occurrences in
	// one transaction. The seed insert is conflict-checked and fails the
	// whole call; occurrences that conflict are skipped and reported.
	CreateSeries(ctx context.Context, seed domain.Lesson, count int) (SeriesResult, error)

	Get(ctx context.Context, id uuid.UUID) (domain.Lesson, error)

	// Update applies the patch, re-running the conflict check (excluding the
	// lesson itself) when the patch touches the schedule. With cascade, the
	// series-safe subset is applied to every sibling in the same
	// transaction; siblings whose new times would conflict are skipped and
	// reported.
	Update(ctx context.Context, id uuid.UUID, patch LessonPatch, cascade bool) (domain.Lesson, SeriesResult, error)

	// Cancel soft-terminates the lesson, and with cascade every sibling in
	// its series. Returns every lesson that transitioned to cancelled.
	Cancel(ctx context.Context, id uuid.UUID, cascade bool) ([]domain.Lesson, error)

	// MarkCompleted transitions scheduled -> completed. Terminal states are
	// refused with ErrAlreadyProcessed.
	MarkCompleted(ctx context.Context, id uuid.UUID) (domain.Lesson, error)

	// ListScheduled returns the scheduled lessons for a teacher on a date,
	// the conflict detector's read.
	ListScheduled(ctx context.Context, teacherID uuid.UUID, date time.Time) ([]domain.Lesson, error)

	List(ctx context.Context, filter LessonFilter) ([]domain.Lesson, error)
	Next(ctx context.Context, studentID uuid.UUID, from time.Time) (domain.Lesson, error)
	History(ctx context.Context, studentID uuid.UUID, limit int) ([]domain.Lesson, error)

	// UpcomingWithin returns scheduled lessons starting in [at, at+window),
	// used by the reminder cron.
	UpcomingWithin(ctx context.Context, at time.Time, window time.Duration) ([]domain.Lesson, error)
}
