package api

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/jaker3001/lyfehub/internal/store"
)

// CreateTaskRequest is the body of POST /api/v1/tasks.
type CreateTaskRequest struct {
	Title              string   `json:"title"`
	Description        string   `json:"description,omitempty"`
	Status             string   `json:"status,omitempty"`
	Priority           *int     `json:"priority,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	ContextLinks       []string `json:"context_links,omitempty"`
	Notes              string   `json:"notes,omitempty"`
}

// UpdateTaskRequest is the body of PATCH /api/v1/tasks/:id. Absent fields are
// left untouched.
type UpdateTaskRequest struct {
	Title              *string       `json:"title,omitempty"`
	Description        *string       `json:"description,omitempty"`
	AcceptanceCriteria *[]string     `json:"acceptance_criteria,omitempty"`
	Status             *string       `json:"status,omitempty"`
	StatusReason       string        `json:"status_reason,omitempty"`
	Priority           *int          `json:"priority,omitempty"`
	ContextLinks       *[]string     `json:"context_links,omitempty"`
	Notes              *string       `json:"notes,omitempty"`
	SessionID          *string       `json:"session_id,omitempty"`
	CompletedAt        *int64        `json:"completed_at,omitempty"`
	LogEntry           *LogEntryBody `json:"log_entry,omitempty"`
}

// LogEntryBody is a caller-supplied activity log entry.
type LogEntryBody struct {
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

// PickRequest is the body of POST /api/v1/tasks/:id/pick.
type PickRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// CompleteRequest is the body of POST /api/v1/tasks/:id/complete.
type CompleteRequest struct {
	Notes string `json:"notes,omitempty"`
}

// ScheduleRequest is the body of POST /api/v1/tasks/:id/schedule.
type ScheduleRequest struct {
	Date   string `json:"date"`
	Start  string `json:"start,omitempty"`
	End    string `json:"end,omitempty"`
	AllDay bool   `json:"all_day,omitempty"`
}

// ReviewRequest is the body of the review and plan-review endpoints.
type ReviewRequest struct {
	Criteria       []store.ReviewCriterion `json:"criteria"`
	GeneralComment string                  `json:"general_comment,omitempty"`
}

// CreateTodoRequest is the body of POST /api/v1/todos.
type CreateTodoRequest struct {
	Text string `json:"text"`
}

// UpdateTodoRequest is the body of PATCH /api/v1/todos/:id.
type UpdateTodoRequest struct {
	Text *string `json:"text,omitempty"`
	Done *bool   `json:"done,omitempty"`
}

// CreateJobRequest is the body of POST /api/v1/jobs.
type CreateJobRequest struct {
	ClientName  string `json:"client_name"`
	Address     string `json:"address,omitempty"`
	JobType     string `json:"job_type,omitempty"`
	Description string `json:"description,omitempty"`
}

// UpdateJobRequest is the body of PATCH /api/v1/jobs/:id.
type UpdateJobRequest struct {
	ClientName  *string `json:"client_name,omitempty"`
	Address     *string `json:"address,omitempty"`
	JobType     *string `json:"job_type,omitempty"`
	Description *string `json:"description,omitempty"`
}

// LedgerEntryRequest is the body of POST /api/v1/jobs/:id/ledger.
type LedgerEntryRequest struct {
	Kind        string `json:"kind"` // invoice | payment | expense
	AmountCents int64  `json:"amount_cents"`
	Memo        string `json:"memo,omitempty"`
}

// TokenResponse is the body returned by POST /api/v1/auth/token.
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"` // unix seconds
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
}

// ProblemDetail is an RFC 7807 Problem Details error response.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// problemResponse returns an RFC 7807 Problem Detail error response.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}

// storeError translates a store error into an HTTP response. StateErrors
// carry their own status (404 for missing rows, 400 for precondition
// violations); anything else is a 500.
func storeError(c *fiber.Ctx, err error) error {
	if se, ok := store.AsStateError(err); ok {
		switch se.Status {
		case fiber.StatusNotFound:
			return problemResponse(c, se.Status, "not_found", "Not Found", se.Message)
		default:
			return problemResponse(c, se.Status, "precondition_failed", "Bad Request", se.Message)
		}
	}
	return problemResponse(c, fiber.StatusInternalServerError,
		"internal_error", "Internal Server Error", "An internal error occurred")
}
