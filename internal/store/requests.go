package store

import (
	"context"

	"github.com/google/uuid"

	"maestro/backend/internal/domain"
)

// RequestStore is the persistence side of one approval workflow. The two
// implementations differ only in the tables they touch and the membership
// row an approval inserts.
type RequestStore interface {
	Kind() domain.RequestKind

	HasMembership(ctx context.Context, requesterID, targetID uuid.UUID) (bool, error)
	HasPending(ctx context.Context, requesterID, targetID uuid.UUID) (bool, error)

	Create(ctx context.Context, requesterID, targetID, approverID uuid.UUID) (domain.ApprovalRequest, error)
	Get(ctx context.Context, id uuid.UUID) (domain.ApprovalRequest, error)

	// Transition moves a pending request to a terminal status. The status
	// re-check, the update, and (for an approval) the membership insert run
	// in one transaction; a request that is no longer pending yields
	// ErrAlreadyProcessed.
	Transition(ctx context.Context, id uuid.UUID, to domain.RequestStatus) (domain.ApprovalRequest, error)

	ListByApprover(ctx context.Context, approverID uuid.UUID, onlyPending bool) ([]domain.ApprovalRequest, error)
	ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]domain.ApprovalRequest, error)
}
