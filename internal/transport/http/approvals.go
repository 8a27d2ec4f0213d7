package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"maestro/backend/internal/domain"
)

type submitRequestBody struct {
	RequesterID uuid.UUID `json:"requester_id" validate:"required"`
	TargetID    uuid.UUID `json:"target_id" validate:"required"`
}

type decideRequestBody struct {
	ApproverID uuid.UUID `json:"approver_id" validate:"required"`
}

type requestResponse struct {
	ID          uuid.UUID `json:"id"`
	Kind        string    `json:"kind"`
	RequesterID uuid.UUID `json:"requester_id"`
	TargetID    uuid.UUID `json:"target_id"`
	ApproverID  uuid.UUID `json:"approver_id"`
	Status      string    `json:"status"`
	CreatedAt   string    `json:"created_at,omitempty"`
}

func toRequestResponse(req domain.ApprovalRequest) requestResponse {
	out := requestResponse{
		ID:          req.ID,
		Kind:        string(req.Kind),
		RequesterID: req.RequesterID,
		TargetID:    req.TargetID,
		ApproverID:  req.ApproverID,
		Status:      string(req.Status),
	}
	if !req.CreatedAt.IsZero() {
		out.CreatedAt = req.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return out
}

func toRequestResponses(reqs []domain.ApprovalRequest) []requestResponse {
	out := make([]requestResponse, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, toRequestResponse(r))
	}
	return out
}

func (s *Server) submitRequest(svc ApprovalService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body submitRequestBody
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
		if err := s.validate.Struct(body); err != nil {
			return err
		}
		req, err := svc.Submit(c.Context(), body.RequesterID, body.TargetID)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toRequestResponse(req))
	}
}

func (s *Server) getRequest(svc ApprovalService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c, "id")
		if err != nil {
			return err
		}
		req, err := svc.Get(c.Context(), id)
		if err != nil {
			return err
		}
		return c.JSON(toRequestResponse(req))
	}
}

func (s *Server) decideRequest(svc ApprovalService, approve bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c, "id")
		if err != nil {
			return err
		}
		var body decideRequestBody
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
		if err := s.validate.Struct(body); err != nil {
			return err
		}

		var req domain.ApprovalRequest
		if approve {
			req, err = svc.Approve(c.Context(), id, body.ApproverID)
		} else {
			req, err = svc.Reject(c.Context(), id, body.ApproverID)
		}
		if err != nil {
			return err
		}
		return c.JSON(toRequestResponse(req))
	}
}

func (s *Server) requestInbox(svc ApprovalService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		approverID, err := parseIDParam(c, "approverId")
		if err != nil {
			return err
		}
		onlyPending := c.QueryBool("pending")
		reqs, err := svc.Inbox(c.Context(), approverID, onlyPending)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"requests": toRequestResponses(reqs)})
	}
}

func (s *Server) submittedRequests(svc ApprovalService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		requesterID, err := parseIDParam(c, "requesterId")
		if err != nil {
			return err
		}
		reqs, err := svc.Submitted(c.Context(), requesterID)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"requests": toRequestResponses(reqs)})
	}
}
