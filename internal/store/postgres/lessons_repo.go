package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"maestro/backend/internal/domain"
	"maestro/backend/internal/store"
)

type LessonRepo struct {
	db *bun.DB
}

func NewLessonRepo(db *bun.DB) *LessonRepo {
	return &LessonRepo{db: db}
}

// inTeacherTx serializes all booking mutations for one teacher: the conflict
// check and the write that follows it must be atomic with respect to every
// other booking for that teacher.
func (r *LessonRepo) inTeacherTx(ctx context.Context, teacherID uuid.UUID, fn func(ctx context.Context, tx bun.Tx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockTeacherCalendar(ctx, tx, teacherID); err != nil {
			return err
		}
		return fn(ctx, tx)
	})
}

func lockTeacherCalendar(ctx context.Context, tx bun.Tx, teacherID uuid.UUID) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", teacherID.String()).Exec(ctx)
	return err
}

func (r *LessonRepo) Create(ctx context.Context, lesson domain.Lesson) (domain.Lesson, error) {
	var out domain.Lesson
	err := r.inTeacherTx(ctx, lesson.TeacherID, func(ctx context.Context, tx bun.Tx) error {
		existing, err := listScheduledTx(ctx, tx, lesson.TeacherID, lesson.Date)
		if err != nil {
			return err
		}
		if overlapsAny(existing, lesson.StartTime, lesson.EndTime, uuid.Nil) {
			return store.ErrConflict
		}
		out, err = insertLesson(ctx, tx, lesson)
		return err
	})
	if err != nil {
		return domain.Lesson{}, err
	}
	return out, nil
}

func (r *LessonRepo) CreateSeries(ctx context.Context, seed domain.Lesson, count int) (store.SeriesResult, error) {
	var res store.SeriesResult
	err := r.inTeacherTx(ctx, seed.TeacherID, func(ctx context.Context, tx bun.Tx) error {
		existing, err := listScheduledTx(ctx, tx, seed.TeacherID, seed.Date)
		if err != nil {
			return err
		}
		if overlapsAny(existing, seed.StartTime, seed.EndTime, uuid.Nil) {
			return store.ErrConflict
		}

		inserted, err := insertLesson(ctx, tx, seed)
		if err != nil {
			return err
		}
		res.Written = append(res.Written, inserted)

		for date := range domain.Occurrences(seed.Date, seed.RecurrencePattern, count) {
			onDate, err := listScheduledTx(ctx, tx, seed.TeacherID, date)
			if err != nil {
				return err
			}
			if overlapsAny(onDate, seed.StartTime, seed.EndTime, uuid.Nil) {
				res.Skipped = append(res.Skipped, date)
				continue
			}

			occ := inserted
			occ.ID = uuid.Nil
			occ.Date = date
			occ.IsRecurring = false
			occ.RecurrencePattern = domain.RecurrenceNone
			occ.ParentLessonID = inserted.ID
			occ.CreatedAt = time.Time{}
			occ.UpdatedAt = time.Time{}

			created, err := insertLesson(ctx, tx, occ)
			if err != nil {
				return err
			}
			res.Written = append(res.Written, created)
		}
		return nil
	})
	if err != nil {
		return store.SeriesResult{}, err
	}
	return res, nil
}

func (r *LessonRepo) Get(ctx context.Context, id uuid.UUID) (domain.Lesson, error) {
	var l domain.Lesson
	err := r.db.NewSelect().
		Model(&l).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Lesson{}, store.ErrNotFound
		}
		return domain.Lesson{}, err
	}
	return l, nil
}

func (r *LessonRepo) Update(ctx context.Context, id uuid.UUID, patch store.LessonPatch, cascade bool) (domain.Lesson, store.SeriesResult, error) {
	cur, err := r.Get(ctx, id)
	if err != nil {
		return domain.Lesson{}, store.SeriesResult{}, err
	}

	var out domain.Lesson
	var res store.SeriesResult
	err = r.inTeacherTx(ctx, cur.TeacherID, func(ctx context.Context, tx bun.Tx) error {
		cur, err := getLessonTx(ctx, tx, id)
		if err != nil {
			return err
		}

		eff := applyPatch(cur, patch)
		// A one-sided time patch can invert the interval even when the
		// patched value is valid on its own.
		if !eff.StartTime.Before(eff.EndTime) {
			return store.ErrInvalidInterval
		}
		if patch.TouchesSchedule() && cur.Status == domain.LessonStatusScheduled {
			existing, err := listScheduledTx(ctx, tx, eff.TeacherID, eff.Date)
			if err != nil {
				return err
			}
			if overlapsAny(existing, eff.StartTime, eff.EndTime, cur.ID) {
				return store.ErrConflict
			}
		}
		if err := updateLesson(ctx, tx, &eff, patchColumns(patch)); err != nil {
			return err
		}
		out = eff

		if !cascade || !cur.InSeries() {
			return nil
		}
		safe := patch.SeriesSafe()
		if safe.Empty() {
			return nil
		}

		siblings, err := listSiblingsTx(ctx, tx, cur.SeriesKey(), cur.ID)
		if err != nil {
			return err
		}
		for _, sib := range siblings {
			effSib := applyPatch(sib, safe)
			if !effSib.StartTime.Before(effSib.EndTime) {
				return store.ErrInvalidInterval
			}
			if safe.TouchesSchedule() && sib.Status == domain.LessonStatusScheduled {
				onDate, err := listScheduledTx(ctx, tx, sib.TeacherID, sib.Date)
				if err != nil {
					return err
				}
				if overlapsAny(onDate, effSib.StartTime, effSib.EndTime, sib.ID) {
					res.Skipped = append(res.Skipped, sib.Date)
					continue
				}
			}
			if err := updateLesson(ctx, tx, &effSib, patchColumns(safe)); err != nil {
				return err
			}
			res.Written = append(res.Written, effSib)
		}
		return nil
	})
	if err != nil {
		return domain.Lesson{}, store.SeriesResult{}, err
	}
	return out, res, nil
}

func (r *LessonRepo) Cancel(ctx context.Context, id uuid.UUID, cascade bool) ([]domain.Lesson, error) {
	cur, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status == domain.LessonStatusCompleted {
		return nil, store.ErrAlreadyProcessed
	}

	var cancelled []domain.Lesson
	err = r.inTeacherTx(ctx, cur.TeacherID, func(ctx context.Context, tx bun.Tx) error {
		cancelled = nil

		ids := []uuid.UUID{id}
		if cascade && cur.InSeries() {
			siblings, err := listSiblingsTx(ctx, tx, cur.SeriesKey(), cur.ID)
			if err != nil {
				return err
			}
			for _, sib := range siblings {
				ids = append(ids, sib.ID)
			}
		}

		// Completed siblings stay completed; only scheduled rows move.
		err := tx.NewUpdate().
			Model((*domain.Lesson)(nil)).
			Set("status = ?", domain.LessonStatusCancelled).
			Set("updated_at = ?", time.Now().UTC()).
			Where("id IN (?)", bun.In(ids)).
			Where("status = ?", domain.LessonStatusScheduled).
			Returning("*").
			Scan(ctx, &cancelled)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func (r *LessonRepo) MarkCompleted(ctx context.Context, id uuid.UUID) (domain.Lesson, error) {
	var out domain.Lesson
	err := r.db.NewUpdate().
		Model((*domain.Lesson)(nil)).
		Set("status = ?", domain.LessonStatusCompleted).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", domain.LessonStatusScheduled).
		Returning("*").
		Scan(ctx, &out)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Distinguish a missing row from a terminal one.
			if _, getErr := r.Get(ctx, id); getErr != nil {
				return domain.Lesson{}, getErr
			}
			return domain.Lesson{}, store.ErrAlreadyProcessed
		}
		return domain.Lesson{}, err
	}
	return out, nil
}

func (r *LessonRepo) ListScheduled(ctx context.Context, teacherID uuid.UUID, date time.Time) ([]domain.Lesson, error) {
	var rows []domain.Lesson
	err := r.db.NewSelect().
		Model(&rows).
		Where("teacher_id = ?", teacherID).
		Where("lesson_date = ?", date.Format("2006-01-02")).
		Where("status = ?", domain.LessonStatusScheduled).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *LessonRepo) List(ctx context.Context, filter store.LessonFilter) ([]domain.Lesson, error) {
	q := r.db.NewSelect().Model((*domain.Lesson)(nil))

	if filter.TeacherID != uuid.Nil {
		q = q.Where("teacher_id = ?", filter.TeacherID)
	}
	if filter.StudentID != uuid.Nil {
		q = q.Where("student_id = ?", filter.StudentID)
	}
	if filter.CourseID != uuid.Nil {
		q = q.Where("course_id = ?", filter.CourseID)
	}
	if filter.DateFrom != nil {
		q = q.Where("lesson_date >= ?", filter.DateFrom.Format("2006-01-02"))
	}
	if filter.DateTo != nil {
		q = q.Where("lesson_date <= ?", filter.DateTo.Format("2006-01-02"))
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	} else {
		q = q.Where("status != ?", domain.LessonStatusCancelled)
	}

	var rows []domain.Lesson
	err := q.OrderExpr("lesson_date ASC, start_time ASC").Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *LessonRepo) Next(ctx context.Context, studentID uuid.UUID, from time.Time) (domain.Lesson, error) {
	var l domain.Lesson
	err := r.db.NewSelect().
		Model(&l).
		Where("student_id = ?", studentID).
		Where("lesson_date >= ?", from.Format("2006-01-02")).
		Where("status = ?", domain.LessonStatusScheduled).
		OrderExpr("lesson_date ASC, start_time ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Lesson{}, store.ErrNotFound
		}
		return domain.Lesson{}, err
	}
	return l, nil
}

func (r *LessonRepo) History(ctx context.Context, studentID uuid.UUID, limit int) ([]domain.Lesson, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []domain.Lesson
	err := r.db.NewSelect().
		Model(&rows).
		Where("student_id = ?", studentID).
		OrderExpr("lesson_date DESC, start_time DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *LessonRepo) UpcomingWithin(ctx context.Context, at time.Time, window time.Duration) ([]domain.Lesson, error) {
	at = at.UTC()
	until := at.Add(window)
	from := domain.NewTimeOfDay(at.Hour(), at.Minute())
	to := domain.NewTimeOfDay(until.Hour(), until.Minute())
	fromDate := at.Format("2006-01-02")
	toDate := until.Format("2006-01-02")

	q := r.db.NewSelect().
		Model((*domain.Lesson)(nil)).
		Where("status = ?", domain.LessonStatusScheduled)

	if fromDate == toDate {
		q = q.Where("lesson_date = ?", fromDate).
			Where("start_time >= ?", from).
			Where("start_time < ?", to)
	} else {
		// The window crosses midnight: the tail lives on the next date.
		q = q.Where("(lesson_date = ? AND start_time >= ?) OR (lesson_date = ? AND start_time < ?)",
			fromDate, from, toDate, to)
	}

	var rows []domain.Lesson
	err := q.OrderExpr("lesson_date ASC, start_time ASC").Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func getLessonTx(ctx context.Context, tx bun.Tx, id uuid.UUID) (domain.Lesson, error) {
	var l domain.Lesson
	err := tx.NewSelect().
		Model(&l).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Lesson{}, store.ErrNotFound
		}
		return domain.Lesson{}, err
	}
	return l, nil
}

func listScheduledTx(ctx context.Context, tx bun.Tx, teacherID uuid.UUID, date time.Time) ([]domain.Lesson, error) {
	var rows []domain.Lesson
	err := tx.NewSelect().
		Model(&rows).
		Where("teacher_id = ?", teacherID).
		Where("lesson_date = ?", date.Format("2006-01-02")).
		Where("status = ?", domain.LessonStatusScheduled).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// listSiblingsTx returns the other lessons generated from the same seed.
// Matching the series key against parent_lesson_id means a cascade started
// from a generated occurrence never rewrites the seed row itself.
func listSiblingsTx(ctx context.Context, tx bun.Tx, seriesKey, excludeID uuid.UUID) ([]domain.Lesson, error) {
	var rows []domain.Lesson
	err := tx.NewSelect().
		Model(&rows).
		Where("parent_lesson_id = ?", seriesKey).
		Where("id != ?", excludeID).
		OrderExpr("lesson_date ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func insertLesson(ctx context.Context, tx bun.Tx, lesson domain.Lesson) (domain.Lesson, error) {
	_, err := tx.NewInsert().Model(&lesson).Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23P01" && pgErr.ConstraintName == "lessons_no_overlap" {
			return domain.Lesson{}, store.ErrConflict
		}
		return domain.Lesson{}, err
	}
	return lesson, nil
}

func updateLesson(ctx context.Context, tx bun.Tx, lesson *domain.Lesson, columns []string) error {
	lesson.UpdatedAt = time.Now().UTC()
	_, err := tx.NewUpdate().
		Model(lesson).
		Column(append(columns, "updated_at")...).
		WherePK().
		Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23P01" && pgErr.ConstraintName == "lessons_no_overlap" {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

// applyPatch returns a copy of the lesson with the patched fields replaced.
func applyPatch(l domain.Lesson, p store.LessonPatch) domain.Lesson {
	if p.Date != nil {
		l.Date = *p.Date
	}
	if p.StartTime != nil {
		l.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		l.EndTime = *p.EndTime
	}
	if p.Classroom != nil {
		l.Classroom = *p.Classroom
	}
	if p.PrivateNotes != nil {
		l.PrivateNotes = *p.PrivateNotes
	}
	if p.Objectives != nil {
		l.Objectives = *p.Objectives
	}
	return l
}

func patchColumns(p store.LessonPatch) []string {
	var cols []string
	if p.Date != nil {
		cols = append(cols, "lesson_date")
	}
	if p.StartTime != nil {
		cols = append(cols, "start_time")
	}
	if p.EndTime != nil {
		cols = append(cols, "end_time")
	}
	if p.Classroom != nil {
		cols = append(cols, "classroom")
	}
	if p.PrivateNotes != nil {
		cols = append(cols, "private_notes")
	}
	if p.Objectives != nil {
		cols = append(cols, "objectives")
	}
	return cols
}

// overlapsAny reports whether the proposed [start, end) interval overlaps any
// of the given lessons, ignoring excludeID (a lesson being rescheduled is
// not a conflict with itself).
func overlapsAny(lessons []domain.Lesson, start, end domain.TimeOfDay, excludeID uuid.UUID) bool {
	for _, l := range lessons {
		if excludeID != uuid.Nil && l.ID == excludeID {
			continue
		}
		if domain.Overlaps(start, end, l.StartTime, l.EndTime) {
			return true
		}
	}
	return false
}
