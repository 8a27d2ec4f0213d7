package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"maestro/backend/internal/domain"
	"maestro/backend/internal/store"
)

// DirectoryRepo answers lookup questions about courses, schools, memberships
// and notification preferences.
type DirectoryRepo struct {
	db *bun.DB
}

func NewDirectoryRepo(db *bun.DB) *DirectoryRepo {
	return &DirectoryRepo{db: db}
}

func (r *DirectoryRepo) IsEnrolled(ctx context.Context, studentID, courseID uuid.UUID) (bool, error) {
	return r.db.NewSelect().
		Model((*domain.CourseEnrollment)(nil)).
		Where("student_id = ?", studentID).
		Where("course_id = ?", courseID).
		Exists(ctx)
}

func (r *DirectoryRepo) ResolveApprover(ctx context.Context, kind domain.RequestKind, targetID uuid.UUID) (uuid.UUID, error) {
	var approverID uuid.UUID
	var err error
	switch kind {
	case domain.RequestKindEnrollment:
		err = r.db.NewSelect().
			Table("courses").
			Column("teacher_id").
			Where("id = ?", targetID).
			Scan(ctx, &approverID)
	case domain.RequestKindTeacherSchool:
		err = r.db.NewSelect().
			Table("schools").
			Column("admin_id").
			Where("id = ?", targetID).
			Scan(ctx, &approverID)
	default:
		return uuid.Nil, fmt.Errorf("unknown request kind %q", kind)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, store.ErrNotFound
		}
		return uuid.Nil, err
	}
	return approverID, nil
}

func (r *DirectoryRepo) EnrolledStudents(ctx context.Context, courseID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.NewSelect().
		Model((*domain.CourseEnrollment)(nil)).
		Column("student_id").
		Where("course_id = ?", courseID).
		Scan(ctx, &ids)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// NotifyPreference treats a missing row as everything off, matching the
// column defaults.
func (r *DirectoryRepo) NotifyPreference(ctx context.Context, userID uuid.UUID) (store.NotifyPreference, error) {
	var pref store.NotifyPreference
	err := r.db.NewSelect().
		Table("notification_preferences").
		Column("free_slot_alerts").
		Where("user_id = ?", userID).
		Scan(ctx, &pref.FreeSlotAlerts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.NotifyPreference{}, nil
		}
		return store.NotifyPreference{}, err
	}
	return pref, nil
}
