package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
)

// Terminal reports whether the status may never transition again.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected
}

type RequestKind string

const (
	RequestKindEnrollment    RequestKind = "enrollment"
	RequestKindTeacherSchool RequestKind = "teacher_school"
)

// ApprovalRequest is the workflow-neutral projection of a pending ask: a
// student asking to join a course, or a teacher asking to join a school. The
// approval engine only ever sees this shape.
type ApprovalRequest struct {
	ID          uuid.UUID
	Kind        RequestKind
	RequesterID uuid.UUID
	TargetID    uuid.UUID
	ApproverID  uuid.UUID
	Status      RequestStatus
	CreatedAt   time.Time
}

type EnrollmentRequest struct {
	bun.BaseModel `bun:"table:enrollment_requests"`

	ID        uuid.UUID     `bun:"id,pk,type:uuid"`
	StudentID uuid.UUID     `bun:"student_id,notnull,type:uuid"`
	CourseID  uuid.UUID     `bun:"course_id,notnull,type:uuid"`
	TeacherID uuid.UUID     `bun:"teacher_id,notnull,type:uuid"`
	Status    RequestStatus `bun:"status,notnull"`
	CreatedAt time.Time     `bun:"created_at,notnull"`
	UpdatedAt time.Time     `bun:"updated_at,notnull"`
}

func (r *EnrollmentRequest) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return touchRequest(&r.ID, &r.CreatedAt, &r.UpdatedAt, query)
}

func (r *EnrollmentRequest) Approval() ApprovalRequest {
	return ApprovalRequest{
		ID:          r.ID,
		Kind:        RequestKindEnrollment,
		RequesterID: r.StudentID,
		TargetID:    r.CourseID,
		ApproverID:  r.TeacherID,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
	}
}

type TeacherSchoolRequest struct {
	bun.BaseModel `bun:"table:teacher_school_requests"`

	ID        uuid.UUID     `bun:"id,pk,type:uuid"`
	TeacherID uuid.UUID     `bun:"teacher_id,notnull,type:uuid"`
	SchoolID  uuid.UUID     `bun:"school_id,notnull,type:uuid"`
	AdminID   uuid.UUID     `bun:"admin_id,notnull,type:uuid"`
	Status    RequestStatus `bun:"status,notnull"`
	CreatedAt time.Time     `bun:"created_at,notnull"`
	UpdatedAt time.Time     `bun:"updated_at,notnull"`
}

func (r *TeacherSchoolRequest) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return touchRequest(&r.ID, &r.CreatedAt, &r.UpdatedAt, query)
}

func (r *TeacherSchoolRequest) Approval() ApprovalRequest {
	return ApprovalRequest{
		ID:          r.ID,
		Kind:        RequestKindTeacherSchool,
		RequesterID: r.TeacherID,
		TargetID:    r.SchoolID,
		ApproverID:  r.AdminID,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
	}
}

// CourseEnrollment is the durable membership fact created when an enrollment
// request is approved.
type CourseEnrollment struct {
	bun.BaseModel `bun:"table:course_enrollments"`

	StudentID  uuid.UUID `bun:"student_id,pk,type:uuid"`
	CourseID   uuid.UUID `bun:"course_id,pk,type:uuid"`
	EnrolledAt time.Time `bun:"enrolled_at,notnull"`
}

// TeacherSchool is the durable membership fact created when a teacher-school
// request is approved.
type TeacherSchool struct {
	bun.BaseModel `bun:"table:teacher_schools"`

	TeacherID uuid.UUID `bun:"teacher_id,pk,type:uuid"`
	SchoolID  uuid.UUID `bun:"school_id,pk,type:uuid"`
	JoinedAt  time.Time `bun:"joined_at,notnull"`
}

func touchRequest(id *uuid.UUID, createdAt, updatedAt *time.Time, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if *id == uuid.Nil {
			v7, err := uuid.NewV7()
			if err != nil {
				return err
			}
			*id = v7
		}
		if createdAt.IsZero() {
			*createdAt = now
		}
		if updatedAt.IsZero() {
			*updatedAt = now
		}
	case *bun.UpdateQuery:
		*updatedAt = now
	}
	return nil
}
