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

// EnrollmentRequestStore persists student enrollment requests and, on
// approval, the course membership that results from them.
type EnrollmentRequestStore struct {
	db *bun.DB
}

func NewEnrollmentRequestStore(db *bun.DB) *EnrollmentRequestStore {
	return &EnrollmentRequestStore{db: db}
}

func (s *EnrollmentRequestStore) Kind() domain.RequestKind {
	return domain.RequestKindEnrollment
}

func (s *EnrollmentRequestStore) HasMembership(ctx context.Context, requesterID, targetID uuid.UUID) (bool, error) {
	return s.db.NewSelect().
		Model((*domain.CourseEnrollment)(nil)).
		Where("student_id = ?", requesterID).
		Where("course_id = ?", targetID).
		Exists(ctx)
}

func (s *EnrollmentRequestStore) HasPending(ctx context.Context, requesterID, targetID uuid.UUID) (bool, error) {
	return s.db.NewSelect().
		Model((*domain.EnrollmentRequest)(nil)).
		Where("student_id = ?", requesterID).
		Where("course_id = ?", targetID).
		Where("status = ?", domain.RequestStatusPending).
		Exists(ctx)
}

func (s *EnrollmentRequestStore) Create(ctx context.Context, requesterID, targetID, approverID uuid.UUID) (domain.ApprovalRequest, error) {
	req := domain.EnrollmentRequest{
		StudentID: requesterID,
		CourseID:  targetID,
		TeacherID: approverID,
		Status:    domain.RequestStatusPending,
	}
	_, err := s.db.NewInsert().Model(&req).Exec(ctx)
	if err != nil {
		if isPendingDuplicate(err, "enrollment_requests_pending_uniq") {
			return domain.ApprovalRequest{}, store.ErrAlreadyPending
		}
		return domain.ApprovalRequest{}, err
	}
	return req.Approval(), nil
}

func (s *EnrollmentRequestStore) Get(ctx context.Context, id uuid.UUID) (domain.ApprovalRequest, error) {
	var req domain.EnrollmentRequest
	err := s.db.NewSelect().Model(&req).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ApprovalRequest{}, store.ErrNotFound
		}
		return domain.ApprovalRequest{}, err
	}
	return req.Approval(), nil
}

// Transition moves a pending request to a terminal status. The conditional
// update and the membership insert commit together, so two approvers racing
// on the same request produce exactly one membership row.
func (s *EnrollmentRequestStore) Transition(ctx context.Context, id uuid.UUID, to domain.RequestStatus) (domain.ApprovalRequest, error) {
	var req domain.EnrollmentRequest
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewUpdate().
			Model((*domain.EnrollmentRequest)(nil)).
			Set("status = ?", to).
			Set("updated_at = ?", time.Now().UTC()).
			Where("id = ?", id).
			Where("status = ?", domain.RequestStatusPending).
			Returning("*").
			Scan(ctx, &req)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return transitionMiss(ctx, tx, (*domain.EnrollmentRequest)(nil), id)
			}
			return err
		}
		if to != domain.RequestStatusApproved {
			return nil
		}
		membership := domain.CourseEnrollment{
			StudentID:  req.StudentID,
			CourseID:   req.CourseID,
			EnrolledAt: time.Now().UTC(),
		}
		_, err = tx.NewInsert().
			Model(&membership).
			On("CONFLICT DO NOTHING").
			Exec(ctx)
		return err
	})
	if err != nil {
		return domain.ApprovalRequest{}, err
	}
	return req.Approval(), nil
}

func (s *EnrollmentRequestStore) ListByApprover(ctx context.Context, approverID uuid.UUID, onlyPending bool) ([]domain.ApprovalRequest, error) {
	var rows []domain.EnrollmentRequest
	q := s.db.NewSelect().
		Model(&rows).
		Where("teacher_id = ?", approverID)
	if onlyPending {
		q = q.Where("status = ?", domain.RequestStatusPending)
	}
	if err := q.OrderExpr("created_at ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.ApprovalRequest, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Approval())
	}
	return out, nil
}

func (s *EnrollmentRequestStore) ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]domain.ApprovalRequest, error) {
	var rows []domain.EnrollmentRequest
	err := s.db.NewSelect().
		Model(&rows).
		Where("student_id = ?", requesterID).
		OrderExpr("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ApprovalRequest, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Approval())
	}
	return out, nil
}

// TeacherSchoolRequestStore persists teacher-to-school join requests and the
// school membership created when an admin approves one.
type TeacherSchoolRequestStore struct {
	db *bun.DB
}

func NewTeacherSchoolRequestStore(db *bun.DB) *TeacherSchoolRequestStore {
	return &TeacherSchoolRequestStore{db: db}
}

func (s *TeacherSchoolRequestStore) Kind() domain.RequestKind {
	return domain.RequestKindTeacherSchool
}

func (s *TeacherSchoolRequestStore) HasMembership(ctx context.Context, requesterID, targetID uuid.UUID) (bool, error) {
	return s.db.NewSelect().
		Model((*domain.TeacherSchool)(nil)).
		Where("teacher_id = ?", requesterID).
		Where("school_id = ?", targetID).
		Exists(ctx)
}

func (s *TeacherSchoolRequestStore) HasPending(ctx context.Context, requesterID, targetID uuid.UUID) (bool, error) {
	return s.db.NewSelect().
		Model((*domain.TeacherSchoolRequest)(nil)).
		Where("teacher_id = ?", requesterID).
		Where("school_id = ?", targetID).
		Where("status = ?", domain.RequestStatusPending).
		Exists(ctx)
}

func (s *TeacherSchoolRequestStore) Create(ctx context.Context, requesterID, targetID, approverID uuid.UUID) (domain.ApprovalRequest, error) {
	req := domain.TeacherSchoolRequest{
		TeacherID: requesterID,
		SchoolID:  targetID,
		AdminID:   approverID,
		Status:    domain.RequestStatusPending,
	}
	_, err := s.db.NewInsert().Model(&req).Exec(ctx)
	if err != nil {
		if isPendingDuplicate(err, "teacher_school_requests_pending_uniq") {
			return domain.ApprovalRequest{}, store.ErrAlreadyPending
		}
		return domain.ApprovalRequest{}, err
	}
	return req.Approval(), nil
}

func (s *TeacherSchoolRequestStore) Get(ctx context.Context, id uuid.UUID) (domain.ApprovalRequest, error) {
	var req domain.TeacherSchoolRequest
	err := s.db.NewSelect().Model(&req).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ApprovalRequest{}, store.ErrNotFound
		}
		return domain.ApprovalRequest{}, err
	}
	return req.Approval(), nil
}

func (s *TeacherSchoolRequestStore) Transition(ctx context.Context, id uuid.UUID, to domain.RequestStatus) (domain.ApprovalRequest, error) {
	var req domain.TeacherSchoolRequest
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewUpdate().
			Model((*domain.TeacherSchoolRequest)(nil)).
			Set("status = ?", to).
			Set("updated_at = ?", time.Now().UTC()).
			Where("id = ?", id).
			Where("status = ?", domain.RequestStatusPending).
			Returning("*").
			Scan(ctx, &req)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return transitionMiss(ctx, tx, (*domain.TeacherSchoolRequest)(nil), id)
			}
			return err
		}
		if to != domain.RequestStatusApproved {
			return nil
		}
		membership := domain.TeacherSchool{
			TeacherID: req.TeacherID,
			SchoolID:  req.SchoolID,
			JoinedAt:  time.Now().UTC(),
		}
		_, err = tx.NewInsert().
			Model(&membership).
			On("CONFLICT DO NOTHING").
			Exec(ctx)
		return err
	})
	if err != nil {
		return domain.ApprovalRequest{}, err
	}
	return req.Approval(), nil
}

func (s *TeacherSchoolRequestStore) ListByApprover(ctx context.Context, approverID uuid.UUID, onlyPending bool) ([]domain.ApprovalRequest, error) {
	var rows []domain.TeacherSchoolRequest
	q := s.db.NewSelect().
		Model(&rows).
		Where("admin_id = ?", approverID)
	if onlyPending {
		q = q.Where("status = ?", domain.RequestStatusPending)
	}
	if err := q.OrderExpr("created_at ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.ApprovalRequest, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Approval())
	}
	return out, nil
}

func (s *TeacherSchoolRequestStore) ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]domain.ApprovalRequest, error) {
	var rows []domain.TeacherSchoolRequest
	err := s.db.NewSelect().
		Model(&rows).
		Where("teacher_id = ?", requesterID).
		OrderExpr("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ApprovalRequest, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Approval())
	}
	return out, nil
}

// transitionMiss tells apart an unknown request id from one already decided.
func transitionMiss(ctx context.Context, tx bun.Tx, model any, id uuid.UUID) error {
	exists, err := tx.NewSelect().Model(model).Where("id = ?", id).Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrAlreadyProcessed
}

func isPendingDuplicate(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}
