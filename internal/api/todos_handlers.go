package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jaker3001/lyfehub/internal/store"
)

// CreateTodo handles POST /api/v1/todos.
func (h *Handlers) CreateTodo(c *fiber.Ctx) error {
	var req CreateTodoRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	if req.Text == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_text", "Bad Request",
			"Todo text is required")
	}

	td, err := h.store.CreateTodo(req.Text, scopeFrom(c))
	if err != nil {
		return storeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(td)
}

// ListTodos handles GET /api/v1/todos.
func (h *Handlers) ListTodos(c *fiber.Ctx) error {
	todos, err := h.store.ListTodos(scopeFrom(c))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(fiber.Map{"todos": todos, "count": len(todos)})
}

// GetTodo handles GET /api/v1/todos/:id.
func (h *Handlers) GetTodo(c *fiber.Ctx) error {
	td, err := h.store.GetTodo(c.Params("id"), scopeFrom(c))
	if err != nil {
		return storeError(c, err)
	}
	if td == nil {
		return problemResponse(c, fiber.StatusNotFound,
			"not_found", "Not Found",
			"todo not found: "+c.Params("id"))
	}
	return c.JSON(td)
}

// UpdateTodo handles PATCH /api/v1/todos/:id.
func (h *Handlers) UpdateTodo(c *fiber.Ctx) error {
	var req UpdateTodoRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	td, err := h.store.UpdateTodo(c.Params("id"), store.TodoPatch{
		Text: req.Text,
		Done: req.Done,
	}, scopeFrom(c))
	if err != nil {
		return storeError(c, err)
	}
	if td == nil {
		return problemResponse(c, fiber.StatusNotFound,
			"not_found", "Not Found",
			"todo not found: "+c.Params("id"))
	}
	return c.JSON(td)
}

// ToggleTodo handles POST /api/v1/todos/:id/toggle.
func (h *Handlers) ToggleTodo(c *fiber.Ctx) error {
	td, err := h.store.ToggleTodo(c.Params("id"), scopeFrom(c))
	if err != nil {
		return storeError(c, err)
	}
	if td == nil {
		return problemResponse(c, fiber.StatusNotFound,
			"not_found", "Not Found",
			"todo not found: "+c.Params("id"))
	}
	return c.JSON(td)
}

// DeleteTodo handles DELETE /api/v1/todos/:id.
func (h *Handlers) DeleteTodo(c *fiber.Ctx) error {
	deleted, err := h.store.DeleteTodo(c.Params("id"), scopeFrom(c))
	if err != nil {
		return storeError(c, err)
	}
	if !deleted {
		return problemResponse(c, fiber.StatusNotFound,
			"not_found", "Not Found",
			"todo not found: "+c.Params("id"))
	}
	return c.SendStatus(fiber.StatusNoContent)
}
