package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jaker3001/lyfehub/internal/store"
)

// CreateTask handles POST /api/v1/tasks.
func (h *Handlers) CreateTask(c *fiber.Ctx) error {
	var req CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	if req.Title == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_title", "Bad Request",
			"Task title is required")
	}

	if req.Status != "" && !store.IsValidTaskStatus(store.TaskStatus(req.Status)) {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_status", "Bad Request",
			"Unknown task status: "+req.Status)
	}

	in := store.TaskInput{
		Title:              req.Title,
		Description:        req.Description,
		Status:             store.TaskStatus(req.Status),
		AcceptanceCriteria: req.AcceptanceCriteria,
		ContextLinks:       req.ContextLinks,
		Notes:              req.Notes,
	}
	if req.Priority != nil {
		in.Priority = *req.Priority
	}

	t, err := h.store.CreateTask(in, scopeFrom(c))
	if err != nil {
		return storeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

// ListTasks handles GET /api/v1/tasks.
func (h *Handlers) ListTasks(c *fiber.Ctx) error {
	f := store.TaskFilter{}
	if st := c.Query("status"); st != "" {
		if !store.IsValidTaskStatus(store.TaskStatus(st)) {
			return problemResponse(c, fiber.StatusBadRequest,
				"invalid_status", "Bad Request",
				"Unknown task status: "+st)
		}
		f.Status = store.TaskStatus(st)
	}

	tasks, err := h.store.ListTasks(scopeFrom(c), f)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(fiber.Map{"tasks": tasks, "count": len(tasks)})
}

// GetTask handles GET /api/v1/tasks/:id.
func (h *Handlers) GetTask(c *fiber.Ctx) error {
	t, err := h.store.GetTask(c.Params("id"), scopeFrom(c))
	if err != nil {
		return storeError(c, err)
	}
	if t == nil {
		return problemResponse(c, fiber.StatusNotFound,
			"not_found", "Not Found",
			"task not found: "+c.Params("id"))
	}
	return c.JSON(t)
}

// UpdateTask handles PATCH /api/v1/tasks/:id.
func (h *Handlers) UpdateTask(c *fiber.Ctx) error {
	var req UpdateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	patch := store.TaskPatch{
		Title:              req.Title,
		Description:        req.Description,
		AcceptanceCriteria: req.AcceptanceCriteria,
		StatusReason:       req.StatusReason,
		Priority:           req.Priority,
		ContextLinks:       req.ContextLinks,
		Notes:              req.Notes,
		SessionID:          req.SessionID,
		CompletedAt:        req.CompletedAt,
	}

	if req.Status != nil {
		st := store.TaskStatus(*req.Status)
		if !store.IsValidTaskStatus(st) {
			return problemResponse(c, fiber.StatusBadRequest,
				"invalid_status", "Bad Request",
				"Unknown task status: "+*req.Status)
		}
		patch.Status = &st
	}

	if req.LogEntry != nil {
		if req.LogEntry.Message == "" {
			return problemResponse(c, fiber.StatusBadRequest,
				"missing_log_message", "Bad Request",
				"Log entry message is required")
		}
		patch.LogEntry = &store.LogEntryInput{
			Type:    store.LogType(req.LogEntry.Type),
			Message: req.LogEntry.Message,
			Details: req.LogEntry.Details,
		}
	}

	t, err := h.store.UpdateTask(c.Params("id"), patch, scopeFrom(c))
	if err != nil {
		return storeError(c, err)
	}
	if t == nil {
		return problemResponse(c, fiber.StatusNotFound,
			"not_found", "Not Found",
			"task not found: "+c.Params("id"))
	}
	return c.JSON(t)
}

// DeleteTask handles DELETE /api/v1/tasks/:id.
func (h *Handlers) DeleteTask(c *fiber.Ctx) error {
	deleted, err := h.store.DeleteTask(c.Params("id"), scopeFrom(c))
	if err != nil {
		return storeError(c, err)
	}
	if !deleted {
		return problemResponse(c, fiber.StatusNotFound,
			"not_found", "Not Found",
			"task not found: "+c.Params("id"))
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// PickTask handles POST /api/v1/tasks/:id/pick.
func (h *Handlers) PickTask(c *fiber.Ctx) error {
	var req PickRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return problemResponse(c, fiber.StatusBadRequest,
				"invalid_body", "Bad Request",
				"Invalid request body: "+err.Error())
		}
	}

	t, err := h.store.Pick(c.Params("id"), req.SessionID, scopeFrom(c))
	if err != nil {
		return storeError(c, err)
	}

	if h.metrics != nil {
		h.metrics.RecordTransition(string(store.StatusReady), string(store.StatusInProgress))
	}
	return c.JSON(t)
}

// CompleteTask handles POST /api/v1/tasks/:id/complete.
func (h *Handlers) CompleteTask(c *fiber.Ctx) error {
	var req CompleteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return problemResponse(c, fiber.StatusBadRequest,
				"invalid_body", "Bad Request",
				"Invalid request body: "+err.Error())
		}
	}

	t, err := h.store.Complete(c.Params("id"), req.Notes, scopeFrom(c))
	if err != nil {
		return storeError(c, err)
	}

	if h.metrics != nil {
		h.metrics.RecordTransition(string(store.StatusInProgress), string(store.StatusReview))
	}
	return c.JSON(t)
}

// SubmitReview handles POST /api/v1/tasks/:id/review.
func (h *Handlers) SubmitReview(c *fiber.Ctx) error {
	return h.submitReview(c, "work", h.store.SubmitReview)
}

// SubmitPlanReview handles POST /api/v1/tasks/:id/plan-review.
func (h *Handlers) SubmitPlanReview(c *fiber.Ctx) error {
	return h.submitReview(c, "plan", h.store.SubmitPlanReview)
}

func (h *Handlers) submitReview(c *fiber.Ctx, reviewType string, submit func(string, store.ReviewInput, store.Scope) (*store.ReviewResult, error)) error {
	var req ReviewRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	if len(req.Criteria) == 0 {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_criteria", "Bad Request",
			"At least one reviewed criterion is required")
	}

	res, err := submit(c.Params("id"), store.ReviewInput{
		Criteria:       req.Criteria,
		GeneralComment: req.GeneralComment,
	}, scopeFrom(c))
	if err != nil {
		return storeError(c, err)
	}

	if h.metrics != nil {
		result := "partial"
		if res.AllApproved {
			result = "approved"
		}
		h.metrics.RecordReview(reviewType, result)
	}
	return c.JSON(res)
}

// AddLogEntry handles POST /api/v1/tasks/:id/log.
func (h *Handlers) AddLogEntry(c *fiber.Ctx) error {
	var req LogEntryBody
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	if req.Message == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_log_message", "Bad Request",
			"Log entry message is required")
	}

	t, err := h.store.AddLogEntry(c.Params("id"), store.LogType(req.Type), req.Message, req.Details, scopeFrom(c))
	if err != nil {
		return storeError(c, err)
	}
	if t == nil {
		return problemResponse(c, fiber.StatusNotFound,
			"not_found", "Not Found",
			"task not found: "+c.Params("id"))
	}
	return c.JSON(t)
}

// ScheduleTask handles POST /api/v1/tasks/:id/schedule.
func (h *Handlers) ScheduleTask(c *fiber.Ctx) error {
	var req ScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	if req.Date == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_date", "Bad Request",
			"Schedule date is required (YYYY-MM-DD)")
	}

	t, err := h.store.Schedule(c.Params("id"), store.ScheduleInput{
		Date:   req.Date,
		Start:  req.Start,
		End:    req.End,
		AllDay: req.AllDay,
	}, scopeFrom(c))
	if err != nil {
		return storeError(c, err)
	}
	if t == nil {
		return problemResponse(c, fiber.StatusNotFound,
			"not_found", "Not Found",
			"task not found: "+c.Params("id"))
	}
	return c.JSON(t)
}

// UnscheduleTask handles POST /api/v1/tasks/:id/unschedule.
func (h *Handlers) UnscheduleTask(c *fiber.Ctx) error {
	t, err := h.store.Unschedule(c.Params("id"), scopeFrom(c))
	if err != nil {
		return storeError(c, err)
	}
	if t == nil {
		return problemResponse(c, fiber.StatusNotFound,
			"not_found", "Not Found",
			"task not found: "+c.Params("id"))
	}
	return c.JSON(t)
}

// GetCalendar handles GET /api/v1/calendar?from=YYYY-MM-DD&to=YYYY-MM-DD.
func (h *Handlers) GetCalendar(c *fiber.Ctx) error {
	from := c.Query("from")
	to := c.Query("to")
	if from == "" || to == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_range", "Bad Request",
			"Both from and to query parameters are required (YYYY-MM-DD)")
	}

	tasks, err := h.store.ListCalendar(scopeFrom(c), from, to)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(fiber.Map{"tasks": tasks, "count": len(tasks)})
}
