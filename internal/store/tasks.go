package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a board task.
type TaskStatus string

const (
	StatusPlanned    TaskStatus = "planned"
	StatusReady      TaskStatus = "ready"
	StatusInProgress TaskStatus = "in_progress"
	StatusBlocked    TaskStatus = "blocked"
	StatusReview     TaskStatus = "review"
	StatusDone       TaskStatus = "done"
)

// ValidTaskStatuses is the set of all recognized task statuses.
var ValidTaskStatuses = map[TaskStatus]bool{
	StatusPlanned:    true,
	StatusReady:      true,
	StatusInProgress: true,
	StatusBlocked:    true,
	StatusReview:     true,
	StatusDone:       true,
}

// IsValidTaskStatus returns true if the status is recognized.
func IsValidTaskStatus(st TaskStatus) bool {
	return ValidTaskStatuses[st]
}

// LogType classifies an activity log entry. The set is open: consumers may
// append entries with types not listed here, and readers must treat unknown
// types as free-form notes.
type LogType string

const (
	LogCreated             LogType = "created"
	LogStatusChange        LogType = "status_change"
	LogUpdate              LogType = "update"
	LogNote                LogType = "note"
	LogBlocked             LogType = "blocked"
	LogReview              LogType = "review"
	LogReviewSubmitted     LogType = "review_submitted"
	LogPlanReviewSubmitted LogType = "plan_review_submitted"
	LogScheduled           LogType = "scheduled"
	LogUnscheduled         LogType = "unscheduled"
)

// LogEntry is a single immutable record in a task's activity log. Entries are
// only ever appended; the log is the task's audit trail.
type LogEntry struct {
	ID        string          `json:"id"`
	Timestamp int64           `json:"timestamp"` // unix ms
	Type      LogType         `json:"type"`
	Message   string          `json:"message"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// CriterionReview records the outcome for one acceptance criterion in the
// most recent review submission.
type CriterionReview struct {
	Status     string `json:"status"` // approved | needs_work
	Comment    string `json:"comment,omitempty"`
	ReviewedAt int64  `json:"reviewed_at"` // unix ms
}

// ReviewState holds the outcome of the latest review submission. It is
// overwritten wholesale on each submission, never merged.
type ReviewState struct {
	LastReviewAt int64                   `json:"last_review_at"` // unix ms
	ReviewType   string                  `json:"review_type,omitempty"`
	Criteria     map[int]CriterionReview `json:"criteria"`
}

// Task is a kanban board task with its review workflow state.
type Task struct {
	ID                 string       `json:"id"`
	OwnerID            string       `json:"owner_id,omitempty"`
	Title              string       `json:"title"`
	Description        string       `json:"description"`
	AcceptanceCriteria []string     `json:"acceptance_criteria"`
	Status             TaskStatus   `json:"status"`
	Priority           int          `json:"priority"` // 1 = highest, 5 = lowest
	ContextLinks       []string     `json:"context_links"`
	Notes              string       `json:"notes"`
	ActivityLog        []LogEntry   `json:"activity_log"`
	ReviewState        *ReviewState `json:"review_state,omitempty"`
	SessionID          string       `json:"session_id,omitempty"`
	ScheduledDate      string       `json:"scheduled_date,omitempty"` // YYYY-MM-DD
	ScheduledStart     string       `json:"scheduled_start,omitempty"`
	ScheduledEnd       string       `json:"scheduled_end,omitempty"`
	AllDay             bool         `json:"is_all_day"`
	CreatedAt          int64        `json:"created_at"` // unix ms
	UpdatedAt          int64        `json:"updated_at"`
	CompletedAt        int64        `json:"completed_at,omitempty"` // 0 = not completed
}

// TaskInput holds the fields accepted at task creation.
type TaskInput struct {
	Title              string
	Description        string
	Status             TaskStatus
	Priority           int
	AcceptanceCriteria []string
	ContextLinks       []string
	Notes              string
}

// LogEntryInput is a caller-supplied activity log entry.
type LogEntryInput struct {
	Type    LogType
	Message string
	Details json.RawMessage
}

// TaskPatch is a partial update: only non-nil fields are written.
//
// Setting Status here performs NO precondition checking; it is the
// administrative correction path. The guarded transitions are Pick, Complete,
// SubmitReview and SubmitPlanReview.
type TaskPatch struct {
	Title              *string
	Description        *string
	AcceptanceCriteria *[]string
	Status             *TaskStatus
	StatusReason       string // recorded in the status_change log entry
	Priority           *int
	ContextLinks       *[]string
	Notes              *string
	SessionID          *string
	CompletedAt        *int64
	LogEntry           *LogEntryInput
}

// TaskFilter filters task listings.
type TaskFilter struct {
	Status TaskStatus
}

// ScheduleInput places a task on the calendar.
type ScheduleInput struct {
	Date   string // YYYY-MM-DD, required
	Start  string // HH:MM, optional
	End    string // HH:MM, optional
	AllDay bool
}

// notesSeparator joins prior notes with completion notes on Complete.
const notesSeparator = "\n\n---\n\n"

const taskColumns = `id, owner_id, title, description, acceptance_criteria, status, priority,
	context_links, notes, activity_log, review_state, session_id,
	scheduled_date, scheduled_start, scheduled_end, is_all_day,
	created_at, updated_at, completed_at`

// CreateTask inserts a new task owned by the scope's user (unowned when
// created under the system scope). The activity log starts with one
// `created` entry.
func (s *Store) CreateTask(in TaskInput, scope Scope) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	status := in.Status
	if status == "" {
		status = StatusPlanned
	}
	priority := in.Priority
	if priority == 0 {
		priority = 3
	}

	t := &Task{
		ID:                 uuid.New().String(),
		OwnerID:            scope.UserID(),
		Title:              in.Title,
		Description:        in.Description,
		AcceptanceCriteria: emptyIfNil(in.AcceptanceCriteria),
		Status:             status,
		Priority:           priority,
		ContextLinks:       emptyIfNil(in.ContextLinks),
		Notes:              in.Notes,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	t.ActivityLog = []LogEntry{newLogEntry(LogCreated,
		fmt.Sprintf("Task created: %s", t.Title),
		mustJSON(map[string]interface{}{
			"title":    t.Title,
			"status":   t.Status,
			"priority": t.Priority,
		}))}

	query := `
	INSERT INTO tasks (` + taskColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		t.ID,
		nullString(t.OwnerID),
		t.Title, t.Description,
		mustJSONString(t.AcceptanceCriteria),
		string(t.Status), t.Priority,
		mustJSONString(t.ContextLinks),
		t.Notes,
		mustJSONString(t.ActivityLog),
		nil, // review_state
		nullString(t.SessionID),
		nullString(t.ScheduledDate), nullString(t.ScheduledStart), nullString(t.ScheduledEnd),
		boolToInt(t.AllDay),
		t.CreatedAt, t.UpdatedAt,
		sql.NullInt64{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.logger.Info().Str("task_id", t.ID).Str("title", t.Title).Msg("task created")
	return t, nil
}

// GetTask retrieves a task by ID within the given scope. Returns (nil, nil)
// when the task does not exist or is not visible to the scope.
func (s *Store) GetTask(id string, scope Scope) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getTaskLocked(id, scope)
}

// ListTasks returns tasks visible to the scope, optionally filtered by
// status, ordered by priority (1 first) then newest first.
func (s *Store) ListTasks(scope Scope, f TaskFilter) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clause, args := scope.ownerClause()
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + clause
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY priority ASC, created_at DESC`

	return s.queryTasks(query, args...)
}

// CountTasksByStatus returns the number of tasks in each status, across all
// owners. Used for the status gauges.
func (s *Store) CountTasksByStatus() (map[TaskStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[TaskStatus]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("failed to scan task count: %w", err)
		}
		counts[TaskStatus(st)] = n
	}
	return counts, rows.Err()
}

// ListCalendar returns tasks scheduled within [startDate, endDate]
// (inclusive, YYYY-MM-DD), ordered by date then start time.
func (s *Store) ListCalendar(scope Scope, startDate, endDate string) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clause, args := scope.ownerClause()
	query := `SELECT ` + taskColumns + ` FROM tasks
	WHERE ` + clause + ` AND scheduled_date IS NOT NULL AND scheduled_date >= ? AND scheduled_date <= ?
	ORDER BY scheduled_date ASC, scheduled_start ASC`
	args = append(args, startDate, endDate)

	return s.queryTasks(query, args...)
}

// UpdateTask applies a partial update. Returns (nil, nil) when the task is
// missing or out of scope. See TaskPatch for the status trapdoor caveat.
func (s *Store) UpdateTask(id string, patch TaskPatch, scope Scope) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateTaskLocked(id, patch, scope)
}

// Pick transitions a ready task to in_progress and binds it to a work
// session. Returns a 400-class StateError naming the actual status when the
// task is not ready, and a 404-class one when it is missing.
func (s *Store) Pick(id, sessionID string, scope Scope) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.getTaskLocked(id, scope)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, NewNotFound("task", id)
	}
	if t.Status != StatusReady {
		return nil, NewPrecondition(
			"cannot pick up task in '%s' status; only tasks in 'ready' status can be picked up", t.Status)
	}

	reason := "Picked up for work"
	if sessionID != "" {
		reason = "Picked up by " + sessionID
	}

	st := StatusInProgress
	return s.updateTaskLocked(id, TaskPatch{
		Status:       &st,
		StatusReason: reason,
		SessionID:    &sessionID,
	}, scope)
}

// Complete transitions an in_progress task to review, stamps completed_at,
// and appends the completion notes to the task's notes.
func (s *Store) Complete(id, notes string, scope Scope) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.getTaskLocked(id, scope)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, NewNotFound("task", id)
	}
	if t.Status != StatusInProgress {
		return nil, NewPrecondition(
			"cannot complete task in '%s' status; only tasks in 'in_progress' status can be completed", t.Status)
	}

	merged := t.Notes
	if notes != "" {
		if merged != "" {
			merged += notesSeparator + notes
		} else {
			merged = notes
		}
	}

	now := time.Now().UnixMilli()
	st := StatusReview
	return s.updateTaskLocked(id, TaskPatch{
		Status:      &st,
		Notes:       &merged,
		CompletedAt: &now,
	}, scope)
}

// AddLogEntry appends a free-form entry to the activity log without touching
// any other field. Returns (nil, nil) when the task is missing.
func (s *Store) AddLogEntry(id string, typ LogType, message string, details json.RawMessage, scope Scope) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateTaskLocked(id, TaskPatch{
		LogEntry: &LogEntryInput{Type: typ, Message: message, Details: details},
	}, scope)
}

// Schedule places the task on the calendar, logging the before/after
// placement. Scheduling is independent of task status.
func (s *Store) Schedule(id string, in ScheduleInput, scope Scope) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.getTaskLocked(id, scope)
	if err != nil || t == nil {
		return nil, err
	}

	before := placementDetails(t)
	t.ScheduledDate = in.Date
	t.ScheduledStart = in.Start
	t.ScheduledEnd = in.End
	t.AllDay = in.AllDay

	msg := "Scheduled for " + in.Date
	if in.AllDay {
		msg += " (all day)"
	} else if in.Start != "" {
		msg += " " + in.Start
		if in.End != "" {
			msg += "-" + in.End
		}
	}

	t.ActivityLog = append(t.ActivityLog, newLogEntry(LogScheduled, msg,
		mustJSON(map[string]interface{}{"from": before, "to": placementDetails(t)})))
	t.UpdatedAt = time.Now().UnixMilli()

	if err := s.writeTaskLocked(t); err != nil {
		return nil, err
	}
	return s.getTaskLocked(id, scope)
}

// Unschedule removes the task's calendar placement, logging what was cleared.
func (s *Store) Unschedule(id string, scope Scope) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.getTaskLocked(id, scope)
	if err != nil || t == nil {
		return nil, err
	}

	before := placementDetails(t)
	t.ScheduledDate = ""
	t.ScheduledStart = ""
	t.ScheduledEnd = ""
	t.AllDay = false

	t.ActivityLog = append(t.ActivityLog, newLogEntry(LogUnscheduled, "Removed from calendar",
		mustJSON(map[string]interface{}{"from": before, "to": placementDetails(t)})))
	t.UpdatedAt = time.Now().UnixMilli()

	if err := s.writeTaskLocked(t); err != nil {
		return nil, err
	}
	return s.getTaskLocked(id, scope)
}

// DeleteTask hard-deletes a task. Returns false when nothing was deleted.
func (s *Store) DeleteTask(id string, scope Scope) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clause, args := scope.ownerClause()
	query := `DELETE FROM tasks WHERE id = ? AND ` + clause
	res, err := s.db.Exec(query, append([]interface{}{id}, args...)...)
	if err != nil {
		return false, fmt.Errorf("failed to delete task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		s.logger.Info().Str("task_id", id).Msg("task deleted")
	}
	return rows > 0, nil
}

// updateTaskLocked is the single write path for task mutations. Callers must
// hold s.mu. The activity log is always rewritten as part of the update.
func (s *Store) updateTaskLocked(id string, patch TaskPatch, scope Scope) (*Task, error) {
	t, err := s.getTaskLocked(id, scope)
	if err != nil || t == nil {
		return nil, err
	}

	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.AcceptanceCriteria != nil {
		t.AcceptanceCriteria = emptyIfNil(*patch.AcceptanceCriteria)
	}
	if patch.Priority != nil {
		t.Priority = *patch.Priority
	}
	if patch.ContextLinks != nil {
		t.ContextLinks = emptyIfNil(*patch.ContextLinks)
	}
	if patch.Notes != nil {
		t.Notes = *patch.Notes
	}
	if patch.SessionID != nil {
		t.SessionID = *patch.SessionID
	}
	if patch.CompletedAt != nil {
		t.CompletedAt = *patch.CompletedAt
	}

	if patch.Status != nil && *patch.Status != t.Status {
		from := t.Status
		to := *patch.Status
		t.Status = to
		t.ActivityLog = append(t.ActivityLog, statusChangeEntry(from, to, patch.StatusReason))
	}

	if patch.LogEntry != nil {
		t.ActivityLog = append(t.ActivityLog,
			newLogEntry(patch.LogEntry.Type, patch.LogEntry.Message, patch.LogEntry.Details))
	}

	t.UpdatedAt = time.Now().UnixMilli()

	if err := s.writeTaskLocked(t); err != nil {
		return nil, err
	}

	// Reload rather than trusting the in-memory copy: if the write had
	// failed we would otherwise hand back state the database never saw.
	return s.getTaskLocked(id, scope)
}

// statusChangeEntry builds the log entry for a status transition. Transitions
// into blocked or review that carry a reason are reclassified so the log can
// be filtered by "why was this blocked / under review" without wading through
// generic status-change noise.
func statusChangeEntry(from, to TaskStatus, reason string) LogEntry {
	typ := LogStatusChange
	msg := fmt.Sprintf("Status changed from %s to %s", from, to)

	if reason != "" {
		switch to {
		case StatusBlocked:
			typ = LogBlocked
			msg = "🚫 Blocked: " + reason
		case StatusReview:
			typ = LogReview
			msg = "🔍 Review: " + reason
		default:
			msg += ": " + reason
		}
	}

	details := map[string]interface{}{"from": from, "to": to}
	if reason != "" {
		details["reason"] = reason
	} else {
		details["reason"] = nil
	}

	return newLogEntry(typ, msg, mustJSON(details))
}

func (s *Store) getTaskLocked(id string, scope Scope) (*Task, error) {
	clause, args := scope.ownerClause()
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ? AND ` + clause

	row := s.db.QueryRow(query, append([]interface{}{id}, args...)...)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// writeTaskLocked persists the full task row, including the serialized
// activity log and review state.
func (s *Store) writeTaskLocked(t *Task) error {
	var reviewState interface{}
	if t.ReviewState != nil {
		reviewState = mustJSONString(t.ReviewState)
	}

	query := `
	UPDATE tasks SET
		title = ?, description = ?, acceptance_criteria = ?, status = ?, priority = ?,
		context_links = ?, notes = ?, activity_log = ?, review_state = ?, session_id = ?,
		scheduled_date = ?, scheduled_start = ?, scheduled_end = ?, is_all_day = ?,
		updated_at = ?, completed_at = ?
	WHERE id = ?
	`

	_, err := s.db.Exec(query,
		t.Title, t.Description,
		mustJSONString(t.AcceptanceCriteria),
		string(t.Status), t.Priority,
		mustJSONString(t.ContextLinks),
		t.Notes,
		mustJSONString(t.ActivityLog),
		reviewState,
		nullString(t.SessionID),
		nullString(t.ScheduledDate), nullString(t.ScheduledStart), nullString(t.ScheduledEnd),
		boolToInt(t.AllDay),
		t.UpdatedAt,
		sql.NullInt64{Int64: t.CompletedAt, Valid: t.CompletedAt != 0},
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to write task: %w", err)
	}
	return nil
}

func (s *Store) queryTasks(query string, args ...interface{}) ([]*Task, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*Task, error) {
	t := &Task{}
	var ownerID, reviewState, sessionID, schedDate, schedStart, schedEnd sql.NullString
	var criteria, links, activity string
	var allDay int
	var completedAt sql.NullInt64
	var status string

	err := row.Scan(
		&t.ID, &ownerID, &t.Title, &t.Description,
		&criteria, &status, &t.Priority,
		&links, &t.Notes, &activity, &reviewState, &sessionID,
		&schedDate, &schedStart, &schedEnd, &allDay,
		&t.CreatedAt, &t.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = TaskStatus(status)
	t.OwnerID = ownerID.String
	t.SessionID = sessionID.String
	t.ScheduledDate = schedDate.String
	t.ScheduledStart = schedStart.String
	t.ScheduledEnd = schedEnd.String
	t.AllDay = allDay != 0
	if completedAt.Valid {
		t.CompletedAt = completedAt.Int64
	}

	if err := json.Unmarshal([]byte(criteria), &t.AcceptanceCriteria); err != nil {
		return nil, fmt.Errorf("failed to decode acceptance criteria: %w", err)
	}
	if err := json.Unmarshal([]byte(links), &t.ContextLinks); err != nil {
		return nil, fmt.Errorf("failed to decode context links: %w", err)
	}
	if err := json.Unmarshal([]byte(activity), &t.ActivityLog); err != nil {
		return nil, fmt.Errorf("failed to decode activity log: %w", err)
	}
	if reviewState.Valid && reviewState.String != "" {
		rs := &ReviewState{}
		if err := json.Unmarshal([]byte(reviewState.String), rs); err != nil {
			return nil, fmt.Errorf("failed to decode review state: %w", err)
		}
		t.ReviewState = rs
	}

	return t, nil
}

func newLogEntry(typ LogType, message string, details json.RawMessage) LogEntry {
	return LogEntry{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UnixMilli(),
		Type:      typ,
		Message:   message,
		Details:   details,
	}
}

func placementDetails(t *Task) map[string]interface{} {
	if t.ScheduledDate == "" {
		return nil
	}
	return map[string]interface{}{
		"date":       t.ScheduledDate,
		"start":      t.ScheduledStart,
		"end":        t.ScheduledEnd,
		"is_all_day": t.AllDay,
	}
}

func emptyIfNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// mustJSON marshals v, panicking on failure (for known-good inputs).
func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic("store: failed to marshal: " + err.Error())
	}
	return b
}

func mustJSONString(v interface{}) string {
	return string(mustJSON(v))
}
