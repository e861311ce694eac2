package store

import (
	"fmt"
	"strings"
	"time"
)

// Criterion review statuses.
const (
	CriterionApproved  = "approved"
	CriterionNeedsWork = "needs_work"
)

// ReviewCriterion is one reviewed acceptance criterion, addressed by its
// position in the task's criteria list.
type ReviewCriterion struct {
	Index   int    `json:"index"`
	Status  string `json:"status"` // approved | needs_work
	Comment string `json:"comment,omitempty"`
}

// ReviewInput is a review submission.
type ReviewInput struct {
	Criteria       []ReviewCriterion `json:"criteria"`
	GeneralComment string            `json:"general_comment,omitempty"`
}

// ReviewResult is the outcome of a review submission. Approved and NeedsWork
// are counts; a needs_work criterion submitted without a comment is not
// counted (a comment is required for it to count) but still defeats
// AllApproved.
type ReviewResult struct {
	Task        *Task `json:"task"`
	AllApproved bool  `json:"all_approved"`
	Approved    int   `json:"approved"`
	NeedsWork   int   `json:"needs_work"`
}

// reviewSpec parameterizes the shared review runner. Work review and plan
// review are the same aggregation with different endpoints.
type reviewSpec struct {
	name            string     // used in log messages and errors
	sourceStatus    TaskStatus // required current status
	targetStatus    TaskStatus // status on full approval
	labelPrefix     string     // synthetic label for out-of-range indices
	logType         LogType
	reviewType      string // tagged into ReviewState
	setsCompletedAt bool
}

var workReviewSpec = reviewSpec{
	name:         "review",
	sourceStatus: StatusReview,
	targetStatus: StatusDone,
	labelPrefix:  "Criterion",
	logType:      LogReviewSubmitted,
	// completing a work review completes the task
	setsCompletedAt: true,
}

var planReviewSpec = reviewSpec{
	name:         "plan review",
	sourceStatus: StatusPlanned,
	targetStatus: StatusReady,
	labelPrefix:  "Plan item",
	logType:      LogPlanReviewSubmitted,
	reviewType:   "plan",
}

// SubmitReview records a review of an in-review task's acceptance criteria.
// Full approval (every criterion submitted, every one approved) moves the
// task to done and stamps completed_at.
func (s *Store) SubmitReview(id string, in ReviewInput, scope Scope) (*ReviewResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runReviewLocked(id, in, workReviewSpec, scope)
}

// SubmitPlanReview records a review of a planned task's acceptance criteria
// as a plan. Full approval moves the task to ready; completed_at is not
// touched.
func (s *Store) SubmitPlanReview(id string, in ReviewInput, scope Scope) (*ReviewResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runReviewLocked(id, in, planReviewSpec, scope)
}

func (s *Store) runReviewLocked(id string, in ReviewInput, spec reviewSpec, scope Scope) (*ReviewResult, error) {
	t, err := s.getTaskLocked(id, scope)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, NewNotFound("task", id)
	}
	if t.Status != spec.sourceStatus {
		return nil, NewPrecondition(
			"cannot submit %s for task in '%s' status; task must be in '%s' status",
			spec.name, t.Status, spec.sourceStatus)
	}

	now := time.Now().UnixMilli()

	var approved, needsWork []ReviewCriterion
	for _, c := range in.Criteria {
		switch c.Status {
		case CriterionApproved:
			approved = append(approved, c)
		case CriterionNeedsWork:
			// A needs-work verdict without a comment gives the author
			// nothing to act on, so it does not count.
			if strings.TrimSpace(c.Comment) != "" {
				needsWork = append(needsWork, c)
			}
		}
	}

	msg := s.renderReviewMessage(t, spec, approved, needsWork, in.GeneralComment)

	t.ActivityLog = append(t.ActivityLog, newLogEntry(spec.logType, msg,
		mustJSON(map[string]interface{}{
			"approved":   len(approved),
			"needs_work": len(needsWork),
			"criteria":   in.Criteria,
		})))

	// Last write wins: the new review state is built only from this
	// submission. Previously reviewed indices that were not resubmitted are
	// dropped, which is what makes the completeness check below meaningful.
	state := &ReviewState{
		LastReviewAt: now,
		ReviewType:   spec.reviewType,
		Criteria:     make(map[int]CriterionReview, len(in.Criteria)),
	}
	for _, c := range in.Criteria {
		state.Criteria[c.Index] = CriterionReview{
			Status:     c.Status,
			Comment:    c.Comment,
			ReviewedAt: now,
		}
	}
	t.ReviewState = state

	allApproved := len(in.Criteria) == len(t.AcceptanceCriteria)
	for _, c := range in.Criteria {
		if c.Status != CriterionApproved {
			allApproved = false
			break
		}
	}

	if allApproved {
		t.ActivityLog = append(t.ActivityLog, statusChangeEntry(t.Status, spec.targetStatus, ""))
		t.Status = spec.targetStatus
		if spec.setsCompletedAt {
			t.CompletedAt = now
		}
	}

	t.UpdatedAt = now

	if err := s.writeTaskLocked(t); err != nil {
		return nil, err
	}

	fresh, err := s.getTaskLocked(id, scope)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("task_id", id).
		Str("kind", spec.name).
		Int("approved", len(approved)).
		Int("needs_work", len(needsWork)).
		Bool("all_approved", allApproved).
		Msg("review submitted")

	return &ReviewResult{
		Task:        fresh,
		AllApproved: allApproved,
		Approved:    len(approved),
		NeedsWork:   len(needsWork),
	}, nil
}

// renderReviewMessage builds the human-readable log message for a review
// submission. Indices outside the criteria list degrade to a synthetic
// "<labelPrefix> <index>" label instead of failing.
func (s *Store) renderReviewMessage(t *Task, spec reviewSpec, approved, needsWork []ReviewCriterion, generalComment string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s submitted: %d approved, %d need work",
		titleCase(spec.name), len(approved), len(needsWork))

	label := func(idx int) string {
		if idx >= 0 && idx < len(t.AcceptanceCriteria) {
			return t.AcceptanceCriteria[idx]
		}
		return fmt.Sprintf("%s %d", spec.labelPrefix, idx)
	}

	for _, c := range approved {
		fmt.Fprintf(&b, "\n✅ %s", label(c.Index))
	}
	for _, c := range needsWork {
		fmt.Fprintf(&b, "\n⚠️ %s: %s", label(c.Index), c.Comment)
	}
	if generalComment != "" {
		fmt.Fprintf(&b, "\nComment: %s", generalComment)
	}
	return b.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
