package approvals

import (
	"context"

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

// Engine runs the two-party request lifecycle: a requester submits against a
// target, the resolved approver decides, and an approval materializes the
// membership. The same engine serves enrollment and teacher-school requests;
// the store decides which tables are involved.
type Engine struct {
	requests store.RequestStore
	dir      store.Directory
	notifier notify.Notifier
	log      *zap.Logger
}

func NewEngine(requests store.RequestStore, dir store.Directory, notifier notify.Notifier, log *zap.Logger) *Engine {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{requests: requests, dir: dir, notifier: notifier, log: log}
}

func (e *Engine) Submit(ctx context.Context, requesterID, targetID uuid.UUID) (domain.ApprovalRequest, error) {
	if requesterID == uuid.Nil {
		return domain.ApprovalRequest{}, validationError("requester_id is required")
	}
	if targetID == uuid.Nil {
		return domain.ApprovalRequest{}, validationError("target_id is required")
	}

	approverID, err := e.dir.ResolveApprover(ctx, e.requests.Kind(), targetID)
	if err != nil {
		return domain.ApprovalRequest{}, err
	}

	member, err := e.requests.HasMembership(ctx, requesterID, targetID)
	if err != nil {
		return domain.ApprovalRequest{}, err
	}
	if member {
		return domain.ApprovalRequest{}, store.ErrAlreadyMember
	}

	pending, err := e.requests.HasPending(ctx, requesterID, targetID)
	if err != nil {
		return domain.ApprovalRequest{}, err
	}
	if pending {
		return domain.ApprovalRequest{}, store.ErrAlreadyPending
	}

	// Create still maps the partial unique index to ErrAlreadyPending, so a
	// race between two submits cannot slip past the check above.
	req, err := e.requests.Create(ctx, requesterID, targetID, approverID)
	if err != nil {
		return domain.ApprovalRequest{}, err
	}

	e.notifier.Emit(ctx, notify.EventRequestSubmitted, requestPayload(req))
	return req, nil
}

// Approve moves a pending request to approved and creates the membership.
// Only the approver the request was addressed to may decide it.
func (e *Engine) Approve(ctx context.Context, requestID, approverID uuid.UUID) (domain.ApprovalRequest, error) {
	return e.decide(ctx, requestID, approverID, domain.RequestStatusApproved, notify.EventRequestApproved)
}

func (e *Engine) Reject(ctx context.Context, requestID, approverID uuid.UUID) (domain.ApprovalRequest, error) {
	return e.decide(ctx, requestID, approverID, domain.RequestStatusRejected, notify.EventRequestRejected)
}

func (e *Engine) decide(ctx context.Context, requestID, approverID uuid.UUID, to domain.RequestStatus, event string) (domain.ApprovalRequest, error) {
	if requestID == uuid.Nil {
		return domain.ApprovalRequest{}, validationError("request_id is required")
	}
	if approverID == uuid.Nil {
		return domain.ApprovalRequest{}, validationError("approver_id is required")
	}

	req, err := e.requests.Get(ctx, requestID)
	if err != nil {
		return domain.ApprovalRequest{}, err
	}
	if req.ApproverID != approverID {
		return domain.ApprovalRequest{}, store.ErrForbidden
	}

	decided, err := e.requests.Transition(ctx, requestID, to)
	if err != nil {
		return domain.ApprovalRequest{}, err
	}

	e.log.Info("request decided",
		zap.String("kind", string(decided.Kind)),
		zap.String("request_id", decided.ID.String()),
		zap.String("status", string(decided.Status)))
	e.notifier.Emit(ctx, event, requestPayload(decided))
	return decided, nil
}

func (e *Engine) Get(ctx context.Context, requestID uuid.UUID) (domain.ApprovalRequest, error) {
	if requestID == uuid.Nil {
		return domain.ApprovalRequest{}, validationError("request_id is required")
	}
	return e.requests.Get(ctx, requestID)
}

// Inbox lists requests addressed to an approver.
func (e *Engine) Inbox(ctx context.Context, approverID uuid.UUID, onlyPending bool) ([]domain.ApprovalRequest, error) {
	if approverID == uuid.Nil {
		return nil, validationError("approver_id is required")
	}
	return e.requests.ListByApprover(ctx, approverID, onlyPending)
}

func (e *Engine) Submitted(ctx context.Context, requesterID uuid.UUID) ([]domain.ApprovalRequest, error) {
	if requesterID == uuid.Nil {
		return nil, validationError("requester_id is required")
	}
	return e.requests.ListByRequester(ctx, requesterID)
}

func requestPayload(req domain.ApprovalRequest) map[string]any {
	return map[string]any{
		"request_id":   req.ID.String(),
		"kind":         string(req.Kind),
		"requester_id": req.RequesterID.String(),
		"target_id":    req.TargetID.String(),
		"approver_id":  req.ApproverID.String(),
		"status":       string(req.Status),
	}
}
