package http

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"maestro/backend/internal/domain"
	"maestro/backend/internal/service/approvals"
	"maestro/backend/internal/service/lessons"
	"maestro/backend/internal/store"
)

// LessonService is the part of the scheduler the HTTP layer talks to.
type LessonService interface {
	Create(ctx context.Context, in lessons.CreateInput) (domain.Lesson, store.SeriesResult, error)
	Update(ctx context.Context, id uuid.UUID, in lessons.UpdateInput) (domain.Lesson, store.SeriesResult, error)
	Cancel(ctx context.Context, id uuid.UUID, in lessons.CancelInput) ([]domain.Lesson, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) (domain.Lesson, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Lesson, error)
	List(ctx context.Context, filter store.LessonFilter) ([]domain.Lesson, error)
	HasConflict(ctx context.Context, teacherID uuid.UUID, date time.Time, start, end domain.TimeOfDay, excludeID uuid.UUID) (bool, error)
	Next(ctx context.Context, studentID uuid.UUID, from time.Time) (domain.Lesson, error)
	History(ctx context.Context, studentID uuid.UUID, limit int) ([]domain.Lesson, error)
}

// ApprovalService is one approval engine; the server carries one per
// request kind.
type ApprovalService interface {
	Submit(ctx context.Context, requesterID, targetID uuid.UUID) (domain.ApprovalRequest, error)
	Approve(ctx context.Context, requestID, approverID uuid.UUID) (domain.ApprovalRequest, error)
	Reject(ctx context.Context, requestID, approverID uuid.UUID) (domain.ApprovalRequest, error)
	Get(ctx context.Context, requestID uuid.UUID) (domain.ApprovalRequest, error)
	Inbox(ctx context.Context, approverID uuid.UUID, onlyPending bool) ([]domain.ApprovalRequest, error)
	Submitted(ctx context.Context, requesterID uuid.UUID) ([]domain.ApprovalRequest, error)
}

type Server struct {
	lessons     LessonService
	enrollments ApprovalService
	teacherReqs ApprovalService
	log         *zap.Logger
	validate    *validator.Validate
}

func NewServer(lessonSvc LessonService, enrollments, teacherReqs ApprovalService, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		lessons:     lessonSvc,
		enrollments: enrollments,
		teacherReqs: teacherReqs,
		log:         log,
		validate:    validator.New(),
	}
}

func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: s.errorHandler,
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	l := api.Group("/lessons")
	l.Post("/", s.createLesson)
	l.Get("/", s.listLessons)
	l.Get("/availability", s.checkAvailability)
	l.Get("/:id", s.getLesson)
	l.Patch("/:id", s.updateLesson)
	l.Delete("/:id", s.cancelLesson)
	l.Post("/:id/complete", s.completeLesson)

	api.Get("/students/:id/next-lesson", s.nextLesson)
	api.Get("/students/:id/lesson-history", s.lessonHistory)

	registerApprovalRoutes(api.Group("/enrollment-requests"), s, s.enrollments)
	registerApprovalRoutes(api.Group("/teacher-school-requests"), s, s.teacherReqs)

	return app
}

func registerApprovalRoutes(g fiber.Router, s *Server, svc ApprovalService) {
	g.Post("/", s.submitRequest(svc))
	g.Get("/:id", s.getRequest(svc))
	g.Post("/:id/approve", s.decideRequest(svc, true))
	g.Post("/:id/reject", s.decideRequest(svc, false))
	g.Get("/inbox/:approverId", s.requestInbox(svc))
	g.Get("/submitted/:requesterId", s.submittedRequests(svc))
}

// errorHandler maps service and store errors onto HTTP statuses.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
	}

	status := fiber.StatusInternalServerError
	var lessonVErr *lessons.ValidationError
	var approvalVErr *approvals.ValidationError
	var invalidErr *validator.InvalidValidationError
	var fieldErrs validator.ValidationErrors

	switch {
	case errors.As(err, &lessonVErr),
		errors.As(err, &approvalVErr),
		errors.As(err, &fieldErrs),
		errors.As(err, &invalidErr),
		errors.Is(err, store.ErrInvalidInterval):
		status = fiber.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, store.ErrForbidden):
		status = fiber.StatusForbidden
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrAlreadyPending),
		errors.Is(err, store.ErrAlreadyMember),
		errors.Is(err, store.ErrAlreadyProcessed):
		status = fiber.StatusConflict
	}

	if status == fiber.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err))
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func parseIDParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}
