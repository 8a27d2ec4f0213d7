package http

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"maestro/backend/internal/domain"
	"maestro/backend/internal/service/lessons"
	"maestro/backend/internal/store"
)

type createLessonRequest struct {
	CourseID          uuid.UUID `json:"course_id" validate:"required"`
	StudentID         uuid.UUID `json:"student_id" validate:"required"`
	TeacherID         uuid.UUID `json:"teacher_id" validate:"required"`
	Date              string    `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime         string    `json:"start_time" validate:"required"`
	EndTime           string    `json:"end_time" validate:"required"`
	Classroom         string    `json:"classroom"`
	PrivateNotes      string    `json:"private_notes"`
	Objectives        string    `json:"objectives"`
	RecurrencePattern string    `json:"recurrence_pattern"`
	SkipNotification  bool      `json:"skip_notification"`
}

type lessonResponse struct {
	ID                uuid.UUID `json:"id"`
	CourseID          uuid.UUID `json:"course_id"`
	StudentID         uuid.UUID `json:"student_id"`
	TeacherID         uuid.UUID `json:"teacher_id"`
	Date              string    `json:"date"`
	StartTime         string    `json:"start_time"`
	EndTime           string    `json:"end_time"`
	Classroom         string    `json:"classroom,omitempty"`
	PrivateNotes      string    `json:"private_notes,omitempty"`
	Objectives        string    `json:"objectives,omitempty"`
	Status            string    `json:"status"`
	IsRecurring       bool      `json:"is_recurring"`
	RecurrencePattern string    `json:"recurrence_pattern"`
	ParentLessonID    string    `json:"parent_lesson_id,omitempty"`
}

func toLessonResponse(l domain.Lesson) lessonResponse {
	out := lessonResponse{
		ID:                l.ID,
		CourseID:          l.CourseID,
		StudentID:         l.StudentID,
		TeacherID:         l.TeacherID,
		Date:              l.Date.Format("2006-01-02"),
		StartTime:         l.StartTime.String(),
		EndTime:           l.EndTime.String(),
		Classroom:         l.Classroom,
		PrivateNotes:      l.PrivateNotes,
		Objectives:        l.Objectives,
		Status:            string(l.Status),
		IsRecurring:       l.IsRecurring,
		RecurrencePattern: string(l.RecurrencePattern),
	}
	if l.ParentLessonID != uuid.Nil {
		out.ParentLessonID = l.ParentLessonID.String()
	}
	return out
}

func toLessonResponses(ls []domain.Lesson) []lessonResponse {
	out := make([]lessonResponse, 0, len(ls))
	for _, l := range ls {
		out = append(out, toLessonResponse(l))
	}
	return out
}

type seriesResponse struct {
	Lesson  lessonResponse   `json:"lesson"`
	Written []lessonResponse `json:"written,omitempty"`
	Skipped []string         `json:"skipped_dates,omitempty"`
}

func toSeriesResponse(lesson domain.Lesson, res store.SeriesResult) seriesResponse {
	out := seriesResponse{Lesson: toLessonResponse(lesson)}
	if len(res.Written) > 0 {
		out.Written = toLessonResponses(res.Written)
	}
	for _, d := range res.Skipped {
		out.Skipped = append(out.Skipped, d.Format("2006-01-02"))
	}
	return out
}

func (s *Server) createLesson(c *fiber.Ctx) error {
	var req createLessonRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if err := s.validate.Struct(req); err != nil {
		return err
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid date")
	}
	start, err := domain.ParseTimeOfDay(req.StartTime)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid start_time")
	}
	end, err := domain.ParseTimeOfDay(req.EndTime)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid end_time")
	}

	lesson, res, err := s.lessons.Create(c.Context(), lessons.CreateInput{
		CourseID:          req.CourseID,
		StudentID:         req.StudentID,
		TeacherID:         req.TeacherID,
		Date:              date,
		StartTime:         start,
		EndTime:           end,
		Classroom:         req.Classroom,
		PrivateNotes:      req.PrivateNotes,
		Objectives:        req.Objectives,
		RecurrencePattern: domain.RecurrencePattern(req.RecurrencePattern),
		SkipNotification:  req.SkipNotification,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toSeriesResponse(lesson, res))
}

type updateLessonRequest struct {
	Date             *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StartTime        *string `json:"start_time"`
	EndTime          *string `json:"end_time"`
	Classroom        *string `json:"classroom"`
	PrivateNotes     *string `json:"private_notes"`
	Objectives       *string `json:"objectives"`
	Cascade          bool    `json:"cascade"`
	SkipNotification bool    `json:"skip_notification"`
}

func (s *Server) updateLesson(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var req updateLessonRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if err := s.validate.Struct(req); err != nil {
		return err
	}

	var patch store.LessonPatch
	if req.Date != nil {
		date, err := time.Parse("2006-01-02", *req.Date)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid date")
		}
		patch.Date = &date
	}
	if req.StartTime != nil {
		start, err := domain.ParseTimeOfDay(*req.StartTime)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid start_time")
		}
		patch.StartTime = &start
	}
	if req.EndTime != nil {
		end, err := domain.ParseTimeOfDay(*req.EndTime)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid end_time")
		}
		patch.EndTime = &end
	}
	patch.Classroom = req.Classroom
	patch.PrivateNotes = req.PrivateNotes
	patch.Objectives = req.Objectives

	updated, res, err := s.lessons.Update(c.Context(), id, lessons.UpdateInput{
		Patch:            patch,
		Cascade:          req.Cascade,
		SkipNotification: req.SkipNotification,
	})
	if err != nil {
		return err
	}
	return c.JSON(toSeriesResponse(updated, res))
}

func (s *Server) cancelLesson(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	cascade := c.QueryBool("cascade")
	skip := c.QueryBool("skip_notification")
	cancelled, err := s.lessons.Cancel(c.Context(), id, lessons.CancelInput{
		Cascade:          cascade,
		SkipNotification: skip,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"cancelled": toLessonResponses(cancelled)})
}

func (s *Server) completeLesson(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	lesson, err := s.lessons.MarkCompleted(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(toLessonResponse(lesson))
}

func (s *Server) getLesson(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	lesson, err := s.lessons.Get(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(toLessonResponse(lesson))
}

func (s *Server) listLessons(c *fiber.Ctx) error {
	var filter store.LessonFilter
	var err error

	if v := c.Query("teacher_id"); v != "" {
		if filter.TeacherID, err = uuid.Parse(v); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid teacher_id")
		}
	}
	if v := c.Query("student_id"); v != "" {
		if filter.StudentID, err = uuid.Parse(v); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid student_id")
		}
	}
	if v := c.Query("course_id"); v != "" {
		if filter.CourseID, err = uuid.Parse(v); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid course_id")
		}
	}
	if v := c.Query("date_from"); v != "" {
		from, err := time.Parse("2006-01-02", v)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid date_from")
		}
		filter.DateFrom = &from
	}
	if v := c.Query("date_to"); v != "" {
		to, err := time.Parse("2006-01-02", v)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid date_to")
		}
		filter.DateTo = &to
	}
	filter.Status = domain.LessonStatus(c.Query("status"))

	rows, err := s.lessons.List(c.Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"lessons": toLessonResponses(rows)})
}

func (s *Server) checkAvailability(c *fiber.Ctx) error {
	teacherID, err := uuid.Parse(c.Query("teacher_id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid teacher_id")
	}
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid date")
	}
	start, err := domain.ParseTimeOfDay(c.Query("start_time"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid start_time")
	}
	end, err := domain.ParseTimeOfDay(c.Query("end_time"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid end_time")
	}
	excludeID := uuid.Nil
	if v := c.Query("exclude_lesson_id"); v != "" {
		if excludeID, err = uuid.Parse(v); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid exclude_lesson_id")
		}
	}

	conflict, err := s.lessons.HasConflict(c.Context(), teacherID, date, start, end, excludeID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"available": !conflict})
}

func (s *Server) nextLesson(c *fiber.Ctx) error {
	studentID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	from := time.Now().UTC()
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse("2006-01-02", v); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid from")
		}
	}
	lesson, err := s.lessons.Next(c.Context(), studentID, from)
	if err != nil {
		return err
	}
	return c.JSON(toLessonResponse(lesson))
}

func (s *Server) lessonHistory(c *fiber.Ctx) error {
	studentID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid limit")
		}
	}
	rows, err := s.lessons.History(c.Context(), studentID, limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"lessons": toLessonResponses(rows)})
}
