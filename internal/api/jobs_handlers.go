package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jaker3001/lyfehub/internal/store"
)

// CreateJob handles POST /api/v1/jobs.
func (h *Handlers) CreateJob(c *fiber.Ctx) error {
	var req CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	if req.ClientName == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_client_name", "Bad Request",
			"Job client name is required")
	}

	j, err := h.store.CreateJob(store.JobInput{
		ClientName:  req.ClientName,
		Address:     req.Address,
		JobType:     req.JobType,
		Description: req.Description,
	}, scopeFrom(c))
	if err != nil {
		return storeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(j)
}

// ListJobs handles GET /api/v1/jobs.
func (h *Handlers) ListJobs(c *fiber.Ctx) error {
	f := store.JobFilter{}
	if ph := c.Query("phase"); ph != "" {
		f.Phase = store.JobPhase(ph)
	}

	jobs, err := h.store.ListJobs(scopeFrom(c), f)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(fiber.Map{"jobs": jobs, "count": len(jobs)})
}

// GetJob handles GET /api/v1/jobs/:id.
func (h *Handlers) GetJob(c *fiber.Ctx) error {
	j, err := h.store.GetJob(c.Params("id"), scopeFrom(c))
	if err != nil {
		return storeError(c, err)
	}
	if j == nil {
		return problemResponse(c, fiber.StatusNotFound,
			"not_found", "Not Found",
			"job not found: "+c.Params("id"))
	}
	return c.JSON(j)
}

// UpdateJob handles PATCH /api/v1/jobs/:id.
func (h *Handlers) UpdateJob(c *fiber.Ctx) error {
	var req UpdateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	j, err := h.store.UpdateJob(c.Params("id"), store.JobPatch{
		ClientName:  req.ClientName,
		Address:     req.Address,
		JobType:     req.JobType,
		Description: req.Description,
	}, scopeFrom(c))
	if err != nil {
		return storeError(c, err)
	}
	if j == nil {
		return problemResponse(c, fiber.StatusNotFound,
			"not_found", "Not Found",
			"job not found: "+c.Params("id"))
	}
	return c.JSON(j)
}

// DeleteJob handles DELETE /api/v1/jobs/:id.
func (h *Handlers) DeleteJob(c *fiber.Ctx) error {
	deleted, err := h.store.DeleteJob(c.Params("id"), scopeFrom(c))
	if err != nil {
		return storeError(c, err)
	}
	if !deleted {
		return problemResponse(c, fiber.StatusNotFound,
			"not_found", "Not Found",
			"job not found: "+c.Params("id"))
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AdvanceJobPhase handles POST /api/v1/jobs/:id/advance.
func (h *Handlers) AdvanceJobPhase(c *fiber.Ctx) error {
	j, err := h.store.AdvancePhase(c.Params("id"), scopeFrom(c))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(j)
}

// AddLedgerEntry handles POST /api/v1/jobs/:id/ledger.
func (h *Handlers) AddLedgerEntry(c *fiber.Ctx) error {
	var req LedgerEntryRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	if !store.ValidLedgerKinds[req.Kind] {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_kind", "Bad Request",
			"Ledger kind must be invoice, payment, or expense")
	}
	if req.AmountCents <= 0 {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_amount", "Bad Request",
			"Ledger amount must be a positive number of cents")
	}

	entry, err := h.store.AddLedgerEntry(c.Params("id"), req.Kind, req.AmountCents, req.Memo, scopeFrom(c))
	if err != nil {
		return storeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

// ListLedger handles GET /api/v1/jobs/:id/ledger.
func (h *Handlers) ListLedger(c *fiber.Ctx) error {
	entries, err := h.store.ListLedger(c.Params("id"), scopeFrom(c))
	if err != nil {
		return storeError(c, err)
	}

	var invoiced, paid, expenses int64
	for _, e := range entries {
		switch e.Kind {
		case store.LedgerInvoice:
			invoiced += e.AmountCents
		case store.LedgerPayment:
			paid += e.AmountCents
		case store.LedgerExpense:
			expenses += e.AmountCents
		}
	}

	return c.JSON(fiber.Map{
		"entries": entries,
		"count":   len(entries),
		"totals": fiber.Map{
			"invoiced_cents": invoiced,
			"paid_cents":     paid,
			"expense_cents":  expenses,
			"balance_cents":  invoiced - paid,
		},
	})
}

// ListJobActivity handles GET /api/v1/jobs/:id/activity.
func (h *Handlers) ListJobActivity(c *fiber.Ctx) error {
	activity, err := h.store.ListJobActivity(c.Params("id"), scopeFrom(c))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(fiber.Map{"activity": activity, "count": len(activity)})
}
