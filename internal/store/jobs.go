package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobPhase is a stage in the restoration workflow. Phases advance strictly
// one step at a time; closed is terminal.
type JobPhase string

const (
	PhaseLead       JobPhase = "lead"
	PhaseInspection JobPhase = "inspection"
	PhaseMitigation JobPhase = "mitigation"
	PhaseRebuild    JobPhase = "rebuild"
	PhaseInvoiced   JobPhase = "invoiced"
	PhaseClosed     JobPhase = "closed"
)

// jobPhaseOrder is the canonical phase sequence.
var jobPhaseOrder = []JobPhase{
	PhaseLead, PhaseInspection, PhaseMitigation, PhaseRebuild, PhaseInvoiced, PhaseClosed,
}

// NextPhase returns the phase following p, or "" when p is terminal or
// unknown.
func NextPhase(p JobPhase) JobPhase {
	for i, ph := range jobPhaseOrder {
		if ph == p && i+1 < len(jobPhaseOrder) {
			return jobPhaseOrder[i+1]
		}
	}
	return ""
}

// Ledger entry kinds.
const (
	LedgerInvoice = "invoice"
	LedgerPayment = "payment"
	LedgerExpense = "expense"
)

// ValidLedgerKinds is the set of recognized ledger entry kinds.
var ValidLedgerKinds = map[string]bool{
	LedgerInvoice: true,
	LedgerPayment: true,
	LedgerExpense: true,
}

// Job is a restoration job tracked through the Apex workflow.
type Job struct {
	ID          string   `json:"id"`
	OwnerID     string   `json:"owner_id,omitempty"`
	ClientName  string   `json:"client_name"`
	Address     string   `json:"address"`
	JobType     string   `json:"job_type"` // e.g. water, fire, mold
	Phase       JobPhase `json:"phase"`
	Description string   `json:"description"`
	CreatedAt   int64    `json:"created_at"` // unix ms
	UpdatedAt   int64    `json:"updated_at"`
	ClosedAt    int64    `json:"closed_at,omitempty"` // 0 = open
}

// JobActivity is an append-only activity feed row for a job.
type JobActivity struct {
	ID        string          `json:"id"`
	JobID     string          `json:"job_id"`
	Type      string          `json:"type"`
	Message   string          `json:"message"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt int64           `json:"created_at"` // unix ms
}

// LedgerEntry is an immutable accounting row attached to a job.
type LedgerEntry struct {
	ID          string `json:"id"`
	JobID       string `json:"job_id"`
	Kind        string `json:"kind"` // invoice | payment | expense
	AmountCents int64  `json:"amount_cents"`
	Memo        string `json:"memo"`
	CreatedAt   int64  `json:"created_at"` // unix ms
}

// JobInput holds the fields accepted at job creation.
type JobInput struct {
	ClientName  string
	Address     string
	JobType     string
	Description string
}

// JobPatch is a partial update. Phase changes go through AdvancePhase, not
// here.
type JobPatch struct {
	ClientName  *string
	Address     *string
	JobType     *string
	Description *string
}

// JobFilter filters job listings.
type JobFilter struct {
	Phase JobPhase
}

const jobColumns = `id, owner_id, client_name, address, job_type, phase, description,
	created_at, updated_at, closed_at`

// CreateJob inserts a new job in the lead phase and seeds its activity feed.
func (s *Store) CreateJob(in JobInput, scope Scope) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	j := &Job{
		ID:          uuid.New().String(),
		OwnerID:     scope.UserID(),
		ClientName:  in.ClientName,
		Address:     in.Address,
		JobType:     in.JobType,
		Phase:       PhaseLead,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.db.Exec(
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, nullString(j.OwnerID), j.ClientName, j.Address, j.JobType,
		string(j.Phase), j.Description, j.CreatedAt, j.UpdatedAt, sql.NullInt64{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := s.appendJobActivityLocked(j.ID, "created",
		fmt.Sprintf("Job opened for %s", j.ClientName),
		mustJSON(map[string]interface{}{"client": j.ClientName, "job_type": j.JobType})); err != nil {
		return nil, err
	}

	s.logger.Info().Str("job_id", j.ID).Str("client", j.ClientName).Msg("job created")
	return j, nil
}

// GetJob retrieves a job. Returns (nil, nil) when missing or out of scope.
func (s *Store) GetJob(id string, scope Scope) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getJobLocked(id, scope)
}

// ListJobs returns jobs visible to the scope, optionally filtered by phase,
// newest first.
func (s *Store) ListJobs(scope Scope, f JobFilter) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clause, args := scope.ownerClause()
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE ` + clause
	if f.Phase != "" {
		query += ` AND phase = ?`
		args = append(args, string(f.Phase))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return jobs, nil
}

// UpdateJob applies a partial update and records it in the activity feed.
// Returns (nil, nil) when missing.
func (s *Store) UpdateJob(id string, patch JobPatch, scope Scope) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, err := s.getJobLocked(id, scope)
	if err != nil || j == nil {
		return nil, err
	}

	changed := []string{}
	if patch.ClientName != nil && *patch.ClientName != j.ClientName {
		j.ClientName = *patch.ClientName
		changed = append(changed, "client_name")
	}
	if patch.Address != nil && *patch.Address != j.Address {
		j.Address = *patch.Address
		changed = append(changed, "address")
	}
	if patch.JobType != nil && *patch.JobType != j.JobType {
		j.JobType = *patch.JobType
		changed = append(changed, "job_type")
	}
	if patch.Description != nil && *patch.Description != j.Description {
		j.Description = *patch.Description
		changed = append(changed, "description")
	}

	j.UpdatedAt = time.Now().UnixMilli()

	_, err = s.db.Exec(
		`UPDATE jobs SET client_name = ?, address = ?, job_type = ?, description = ?, updated_at = ? WHERE id = ?`,
		j.ClientName, j.Address, j.JobType, j.Description, j.UpdatedAt, j.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}

	if len(changed) > 0 {
		if err := s.appendJobActivityLocked(j.ID, "update", "Job details updated",
			mustJSON(map[string]interface{}{"fields": changed})); err != nil {
			return nil, err
		}
	}

	return s.getJobLocked(id, scope)
}

// AdvancePhase moves a job one step forward in the phase sequence. Returns a
// 400-class StateError when the job is closed, and a 404-class one when it is
// missing.
func (s *Store) AdvancePhase(id string, scope Scope) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, err := s.getJobLocked(id, scope)
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, NewNotFound("job", id)
	}

	next := NextPhase(j.Phase)
	if next == "" {
		return nil, NewPrecondition("cannot advance job in '%s' phase; it is terminal", j.Phase)
	}

	now := time.Now().UnixMilli()
	from := j.Phase
	j.Phase = next
	j.UpdatedAt = now
	if next == PhaseClosed {
		j.ClosedAt = now
	}

	_, err = s.db.Exec(
		`UPDATE jobs SET phase = ?, updated_at = ?, closed_at = ? WHERE id = ?`,
		string(j.Phase), j.UpdatedAt,
		sql.NullInt64{Int64: j.ClosedAt, Valid: j.ClosedAt != 0}, j.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to advance job phase: %w", err)
	}

	if err := s.appendJobActivityLocked(j.ID, "phase_change",
		fmt.Sprintf("Phase advanced from %s to %s", from, next),
		mustJSON(map[string]interface{}{"from": from, "to": next})); err != nil {
		return nil, err
	}

	s.logger.Info().Str("job_id", j.ID).Str("from", string(from)).Str("to", string(next)).Msg("job phase advanced")
	return s.getJobLocked(id, scope)
}

// AddLedgerEntry appends an immutable accounting row to a job. Returns a
// 404-class StateError when the job is missing.
func (s *Store) AddLedgerEntry(jobID, kind string, amountCents int64, memo string, scope Scope) (*LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, err := s.getJobLocked(jobID, scope)
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, NewNotFound("job", jobID)
	}

	e := &LedgerEntry{
		ID:          uuid.New().String(),
		JobID:       jobID,
		Kind:        kind,
		AmountCents: amountCents,
		Memo:        memo,
		CreatedAt:   time.Now().UnixMilli(),
	}

	_, err = s.db.Exec(
		`INSERT INTO job_ledger (id, job_id, kind, amount_cents, memo, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.JobID, e.Kind, e.AmountCents, e.Memo, e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add ledger entry: %w", err)
	}

	if err := s.appendJobActivityLocked(jobID, "ledger",
		fmt.Sprintf("%s recorded: %d cents", titleCase(kind), amountCents),
		mustJSON(map[string]interface{}{"kind": kind, "amount_cents": amountCents})); err != nil {
		return nil, err
	}

	return e, nil
}

// ListLedger returns a job's accounting rows, oldest first.
func (s *Store) ListLedger(jobID string, scope Scope) ([]*LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, err := s.getJobLocked(jobID, scope)
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, NewNotFound("job", jobID)
	}

	rows, err := s.db.Query(
		`SELECT id, job_id, kind, amount_cents, memo, created_at FROM job_ledger
		WHERE job_id = ? ORDER BY created_at ASC, rowid ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger: %w", err)
	}
	defer rows.Close()

	var entries []*LedgerEntry
	for rows.Next() {
		e := &LedgerEntry{}
		if err := rows.Scan(&e.ID, &e.JobID, &e.Kind, &e.AmountCents, &e.Memo, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger: %w", err)
	}
	return entries, nil
}

// ListJobActivity returns a job's activity feed, oldest first.
func (s *Store) ListJobActivity(jobID string, scope Scope) ([]*JobActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, err := s.getJobLocked(jobID, scope)
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, NewNotFound("job", jobID)
	}

	rows, err := s.db.Query(
		`SELECT id, job_id, type, message, details, created_at FROM job_activity
		WHERE job_id = ? ORDER BY created_at ASC, rowid ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list job activity: %w", err)
	}
	defer rows.Close()

	var acts []*JobActivity
	for rows.Next() {
		a := &JobActivity{}
		var details sql.NullString
		if err := rows.Scan(&a.ID, &a.JobID, &a.Type, &a.Message, &details, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job activity: %w", err)
		}
		if details.Valid {
			a.Details = json.RawMessage(details.String)
		}
		acts = append(acts, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job activity: %w", err)
	}
	return acts, nil
}

// DeleteJob hard-deletes a job; activity and ledger rows cascade. Returns
// false when nothing was deleted.
func (s *Store) DeleteJob(id string, scope Scope) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clause, args := scope.ownerClause()
	res, err := s.db.Exec(`DELETE FROM jobs WHERE id = ? AND `+clause,
		append([]interface{}{id}, args...)...)
	if err != nil {
		return false, fmt.Errorf("failed to delete job: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (s *Store) getJobLocked(id string, scope Scope) (*Job, error) {
	clause, args := scope.ownerClause()
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ? AND `+clause,
		append([]interface{}{id}, args...)...)

	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

func scanJob(row rowScanner) (*Job, error) {
	j := &Job{}
	var ownerID sql.NullString
	var phase string
	var closedAt sql.NullInt64

	err := row.Scan(&j.ID, &ownerID, &j.ClientName, &j.Address, &j.JobType,
		&phase, &j.Description, &j.CreatedAt, &j.UpdatedAt, &closedAt)
	if err != nil {
		return nil, err
	}

	j.OwnerID = ownerID.String
	j.Phase = JobPhase(phase)
	if closedAt.Valid {
		j.ClosedAt = closedAt.Int64
	}
	return j, nil
}

func (s *Store) appendJobActivityLocked(jobID, typ, message string, details json.RawMessage) error {
	var d interface{}
	if details != nil {
		d = string(details)
	}
	_, err := s.db.Exec(
		`INSERT INTO job_activity (id, job_id, type, message, details, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), jobID, typ, message, d, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to append job activity: %w", err)
	}
	return nil
}
