package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type LessonStatus string

const (
	LessonStatusScheduled LessonStatus = "scheduled"
	LessonStatusCompleted LessonStatus = "completed"
	LessonStatusCancelled LessonStatus = "cancelled"
)

func (s LessonStatus) Valid() bool {
	switch s {
	case LessonStatusScheduled, LessonStatusCompleted, LessonStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further status transition is allowed.
func (s LessonStatus) Terminal() bool {
	return s == LessonStatusCompleted || s == LessonStatusCancelled
}

type Lesson struct {
	bun.BaseModel `bun:"table:lessons"`

	ID                uuid.UUID         `bun:"id,pk,type:uuid"`
	CourseID          uuid.UUID         `bun:"course_id,notnull,type:uuid"`
	StudentID         uuid.UUID         `bun:"student_id,notnull,type:uuid"`
	TeacherID         uuid.UUID         `bun:"teacher_id,notnull,type:uuid"`
	Date              time.Time         `bun:"lesson_date,notnull,type:date"`
	StartTime         TimeOfDay         `bun:"start_time,notnull,type:time"`
	EndTime           TimeOfDay         `bun:"end_time,notnull,type:time"`
	Classroom         string            `bun:"classroom"`
	PrivateNotes      string            `bun:"private_notes"`
	Objectives        string            `bun:"objectives"`
	Status            LessonStatus      `bun:"status,notnull"`
	IsRecurring       bool              `bun:"is_recurring,notnull"`
	RecurrencePattern RecurrencePattern `bun:"recurrence_pattern,notnull"`
	ParentLessonID    uuid.UUID         `bun:"parent_lesson_id,type:uuid,nullzero"`
	CreatedAt         time.Time         `bun:"created_at,notnull"`
	UpdatedAt         time.Time         `bun:"updated_at,notnull"`
}

// SeriesKey identifies the recurring series this lesson belongs to: the
// parent's id for generated occurrences, the lesson's own id for the seed.
func (l *Lesson) SeriesKey() uuid.UUID {
	if l.ParentLessonID != uuid.Nil {
		return l.ParentLessonID
	}
	return l.ID
}

// InSeries reports whether the lesson is part of a recurring series, either
// as the seed or as a generated occurrence.
func (l *Lesson) InSeries() bool {
	return l.IsRecurring || l.ParentLessonID != uuid.Nil
}

func (l *Lesson) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if l.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			l.ID = id
		}
		if l.CreatedAt.IsZero() {
			l.CreatedAt = now
		}
		if l.UpdatedAt.IsZero() {
			l.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		l.UpdatedAt = now
	}
	return nil
}
