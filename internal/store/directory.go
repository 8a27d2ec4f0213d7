package store

import (
	"context"

	"github.com/google/uuid"

	"maestro/backend/internal/domain"
)

// NotifyPreference holds the per-user alerting facts the scheduler consults
// before broadcasting.
type NotifyPreference struct {
	FreeSlotAlerts bool
}

// Directory resolves identity and membership facts owned by the surrounding
// application. The engine treats them as ground truth at call time and never
// caches them.
type Directory interface {
	IsEnrolled(ctx context.Context, studentID, courseID uuid.UUID) (bool, error)

	// ResolveApprover returns the user authorized to decide requests against
	// the target: the course's teacher, or the school's admin. Unknown
	// targets yield ErrNotFound.
	ResolveApprover(ctx context.Context, kind domain.RequestKind, targetID uuid.UUID) (uuid.UUID, error)

	EnrolledStudents(ctx context.Context, courseID uuid.UUID) ([]uuid.UUID, error)
	NotifyPreference(ctx context.Context, userID uuid.UUID) (NotifyPreference, error)
}
