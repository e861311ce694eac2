package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "lyfehub-test.db")
	store, err := New(dbPath, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNew_CreatesDB(t *testing.T) {
	store := newTestStore(t)

	tables := []string{"tasks", "todos", "jobs", "job_activity", "job_ledger", "meta"}
	for _, table := range tables {
		var count int
		err := store.db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s should exist", table)
	}

	var idxCount int
	err := store.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name LIKE 'idx_%'").Scan(&idxCount)
	require.NoError(t, err)
	assert.Greater(t, idxCount, 0, "indices should be created")
}

func TestTask_CreateDefaults(t *testing.T) {
	store := newTestStore(t)
	scope := UserScope("user-1")

	task, err := store.CreateTask(TaskInput{Title: "Fix the gutter"}, scope)
	require.NoError(t, err)

	assert.Equal(t, StatusPlanned, task.Status)
	assert.Equal(t, 3, task.Priority)
	assert.Equal(t, "user-1", task.OwnerID)
	assert.Empty(t, task.AcceptanceCriteria)
	assert.Empty(t, task.ContextLinks)
	require.Len(t, task.ActivityLog, 1)
	assert.Equal(t, LogCreated, task.ActivityLog[0].Type)

	var details map[string]interface{}
	require.NoError(t, json.Unmarshal(task.ActivityLog[0].Details, &details))
	assert.Equal(t, "Fix the gutter", details["title"])
	assert.Equal(t, "planned", details["status"])
	assert.Equal(t, float64(3), details["priority"])

	// Round trip
	got, err := store.GetTask(task.ID, scope)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, task.Title, got.Title)
	require.Len(t, got.ActivityLog, 1)
}

func TestTask_GetIdempotent(t *testing.T) {
	store := newTestStore(t)
	scope := UserScope("user-1")

	task, err := store.CreateTask(TaskInput{Title: "stable read"}, scope)
	require.NoError(t, err)

	a, err := store.GetTask(task.ID, scope)
	require.NoError(t, err)
	b, err := store.GetTask(task.ID, scope)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTask_UpdatePartialMerge(t *testing.T) {
	store := newTestStore(t)
	scope := UserScope("user-1")

	task, err := store.CreateTask(TaskInput{
		Title:    "Original",
		Notes:    "keep me",
		Priority: 2,
	}, scope)
	require.NoError(t, err)

	title := "Renamed"
	updated, err := store.UpdateTask(task.ID, TaskPatch{Title: &title}, scope)
	require.NoError(t, err)
	require.NotNil(t, updated)

	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, "keep me", updated.Notes)
	assert.Equal(t, 2, updated.Priority)
	// A pure field edit without a status change appends nothing.
	assert.Len(t, updated.ActivityLog, 1)
	assert.Zero(t, updated.CompletedAt)
}

func TestTask_UpdateStatusChangeLogged(t *testing.T) {
	store := newTestStore(t)
	scope := UserScope("user-1")

	task, err := store.CreateTask(TaskInput{Title: "mover"}, scope)
	require.NoError(t, err)

	st := StatusReady
	updated, err := store.UpdateTask(task.ID, TaskPatch{Status: &st}, scope)
	require.NoError(t, err)

	require.Len(t, updated.ActivityLog, 2)
	entry := updated.ActivityLog[1]
	assert.Equal(t, LogStatusChange, entry.Type)
	assert.Contains(t, entry.Message, "planned")
	assert.Contains(t, entry.Message, "ready")

	var details map[string]interface{}
	require.NoError(t, json.Unmarshal(entry.Details, &details))
	assert.Equal(t, "planned", details["from"])
	assert.Equal(t, "ready", details["to"])
	assert.Nil(t, details["reason"])
}

func TestTask_BlockedReclassification(t *testing.T) {
	store := newTestStore(t)
	scope := UserScope("user-1")

	task, err := store.CreateTask(TaskInput{Title: "stuck"}, scope)
	require.NoError(t, err)

	st := StatusBlocked
	updated, err := store.UpdateTask(task.ID, TaskPatch{
		Status:       &st,
		StatusReason: "waiting on parts",
	}, scope)
	require.NoError(t, err)

	require.Len(t, updated.ActivityLog, 2)
	entry := updated.ActivityLog[1]
	assert.Equal(t, LogBlocked, entry.Type)
	assert.Contains(t, entry.Message, "waiting on parts")

	var details map[string]interface{}
	require.NoError(t, json.Unmarshal(entry.Details, &details))
	assert.Equal(t, "waiting on parts", details["reason"])
}

func TestTask_UpdateLogEntryEscapeHatch(t *testing.T) {
	store := newTestStore(t)
	scope := UserScope("user-1")

	task, err := store.CreateTask(TaskInput{Title: "annotated"}, scope)
	require.NoError(t, err)

	updated, err := store.UpdateTask(task.ID, TaskPatch{
		LogEntry: &LogEntryInput{Type: LogNote, Message: "client called"},
	}, scope)
	require.NoError(t, err)

	require.Len(t, updated.ActivityLog, 2)
	assert.Equal(t, LogNote, updated.ActivityLog[1].Type)
	assert.Equal(t, "client called", updated.ActivityLog[1].Message)
}

func TestTask_ActivityLogAppendOnly(t *testing.T) {
	store := newTestStore(t)
	scope := UserScope("user-1")

	task, err := store.CreateTask(TaskInput{Title: "audited"}, scope)
	require.NoError(t, err)

	prev := task.ActivityLog
	ops := []func() (*Task, error){
		func() (*Task, error) {
			st := StatusReady
			return store.UpdateTask(task.ID, TaskPatch{Status: &st}, scope)
		},
		func() (*Task, error) { return store.Pick(task.ID, "sess-1", scope) },
		func() (*Task, error) { return store.Complete(task.ID, "done", scope) },
		func() (*Task, error) {
			return store.AddLogEntry(task.ID, LogNote, "extra", nil, scope)
		},
		func() (*Task, error) {
			return store.Schedule(task.ID, ScheduleInput{Date: "2026-09-01", AllDay: true}, scope)
		},
	}

	for i, op := range ops {
		got, err := op()
		require.NoError(t, err, "op %d", i)
		require.NotNil(t, got)
		require.GreaterOrEqual(t, len(got.ActivityLog), len(prev), "op %d shrank the log", i)
		// Existing entries are never mutated.
		assert.Equal(t, prev, got.ActivityLog[:len(prev)], "op %d rewrote log prefix", i)
		prev = got.ActivityLog
	}
}

func TestTask_PickGuard(t *testing.T) {
	store := newTestStore(t)
	scope := UserScope("user-1")

	task, err := store.CreateTask(TaskInput{Title: "not ready"}, scope)
	require.NoError(t, err)

	_, err = store.Pick(task.ID, "sess-1", scope)
	se, ok := AsStateError(err)
	require.True(t, ok)
	assert.Equal(t, 400, se.Status)
	assert.Contains(t, se.Message, "planned")

	// Guard failure leaves the task untouched.
	got, err := store.GetTask(task.ID, scope)
	require.NoError(t, err)
	assert.Equal(t, StatusPlanned, got.Status)
	assert.Empty(t, got.SessionID)
	assert.Len(t, got.ActivityLog, 1)
}

func TestTask_PickSuccess(t *testing.T) {
	store := newTestStore(t)
	scope := UserScope("user-1")

	task, err := store.CreateTask(TaskInput{Title: "ready one", Status: StatusReady}, scope)
	require.NoError(t, err)

	picked, err := store.Pick(task.ID, "sess-42", scope)
	require.NoError(t, err)

	assert.Equal(t, StatusInProgress, picked.Status)
	assert.Equal(t, "sess-42", picked.SessionID)
	require.Len(t, picked.ActivityLog, 2)
	assert.Contains(t, picked.ActivityLog[1].Message, "Picked up by sess-42")
}

func TestTask_CompleteGuard(t *testing.T) {
	store := newTestStore(t)
	scope := UserScope("user-1")

	task, err := store.CreateTask(TaskInput{Title: "idle"}, scope)
	require.NoError(t, err)

	_, err = store.Complete(task.ID, "notes", scope)
	se, ok := AsStateError(err)
	require.True(t, ok)
	assert.Equal(t, 400, se.Status)
	assert.Contains(t, se.Message, "planned")
}

func TestTask_CompleteMergesNotes(t *testing.T) {
	store := newTestStore(t)
	scope := UserScope("user-1")

	task, err := store.CreateTask(TaskInput{
		Title:  "worked",
		Status: StatusInProgress,
		Notes:  "original notes",
	}, scope)
	require.NoError(t, err)

	before := time.Now().UnixMilli()
	done, err := store.Complete(task.ID, "all wired up", scope)
	require.NoError(t, err)

	assert.Equal(t, StatusReview, done.Status)
	assert.Equal(t, "original notes\n\n---\n\nall wired up", done.Notes)
	assert.GreaterOrEqual(t, done.CompletedAt, before)
}

func TestTask_CompleteEmptyPriorNotes(t *testing.T) {
	store := newTestStore(t)
	scope := UserScope("user-1")

	task, err := store.CreateTask(TaskInput{Title: "fresh", Status: StatusInProgress}, scope)
	require.NoError(t, err)

	done, err := store.Complete(task.ID, "first note", scope)
	require.NoError(t, err)
	assert.Equal(t, "first note", done.Notes)
}

func TestTask_OwnershipScoping(t *testing.T) {
	store := newTestStore(t)

	task, err := store.CreateTask(TaskInput{Title: "mine"}, UserScope("owner-b"))
	require.NoError(t, err)

	// Another user cannot see it.
	got, err := store.GetTask(task.ID, UserScope("owner-a"))
	require.NoError(t, err)
	assert.Nil(t, got)

	// System scope sees everything.
	got, err = store.GetTask(task.ID, SystemScope())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "owner-b", got.OwnerID)
}

func TestTask_UnownedVisibleToAll(t *testing.T) {
	store := newTestStore(t)

	task, err := store.CreateTask(TaskInput{Title: "shared"}, SystemScope())
	require.NoError(t, err)
	assert.Empty(t, task.OwnerID)

	got, err := store.GetTask(task.ID, UserScope("anyone"))
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestTask_ListOrdering(t *testing.T) {
	store := newTestStore(t)
	scope := UserScope("user-1")

	for _, in := range []TaskInput{
		{Title: "low", Priority: 5},
		{Title: "high", Priority: 1},
		{Title: "mid", Priority: 3},
	} {
		_, err := store.CreateTask(in, scope)
		require.NoError(t, err)
	}

	tasks, err := store.ListTasks(scope, TaskFilter{})
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "high", tasks[0].Title)
	assert.Equal(t, "mid", tasks[1].Title)
	assert.Equal(t, "low", tasks[2].Title)
}

func TestTask_ListStatusFilter(t *testing.T) {
	store := newTestStore(t)
	scope := UserScope("user-1")

	_, err := store.CreateTask(TaskInput{Title: "a"}, scope)
	require.NoError(t, err)
	_, err = store.CreateTask(TaskInput{Title: "b", Status: StatusReady}, scope)
	require.NoError(t, err)

	ready, err := store.ListTasks(scope, TaskFilter{Status: StatusReady})
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "b", ready[0].Title)
}

func TestTask_ScheduleAndCalendar(t *testing.T) {
	store := newTestStore(t)
	scope := UserScope("user-1")

	task, err := store.CreateTask(TaskInput{Title: "site visit"}, scope)
	require.NoError(t, err)

	scheduled, err := store.Schedule(task.ID, ScheduleInput{
		Date:  "2026-09-03",
		Start: "09:00",
		End:   "10:30",
	}, scope)
	require.NoError(t, err)

	assert.Equal(t, "2026-09-03", scheduled.ScheduledDate)
	assert.False(t, scheduled.AllDay)
	last := scheduled.ActivityLog[len(scheduled.ActivityLog)-1]
	assert.Equal(t, LogScheduled, last.Type)
	assert.Contains(t, last.Message, "2026-09-03")

	// Scheduling does not touch the status lifecycle.
	assert.Equal(t, StatusPlanned, scheduled.Status)

	inRange, err := store.ListCalendar(scope, "2026-09-01", "2026-09-07")
	require.NoError(t, err)
	require.Len(t, inRange, 1)

	outOfRange, err := store.ListCalendar(scope, "2026-10-01", "2026-10-07")
	require.NoError(t, err)
	assert.Empty(t, outOfRange)

	cleared, err := store.Unschedule(task.ID, scope)
	require.NoError(t, err)
	assert.Empty(t, cleared.ScheduledDate)
	last = cleared.ActivityLog[len(cleared.ActivityLog)-1]
	assert.Equal(t, LogUnscheduled, last.Type)

	var details map[string]interface{}
	require.NoError(t, json.Unmarshal(last.Details, &details))
	from := details["from"].(map[string]interface{})
	assert.Equal(t, "2026-09-03", from["date"])
}

func TestTask_DeleteFinality(t *testing.T) {
	store := newTestStore(t)
	scope := UserScope("user-1")

	task, err := store.CreateTask(TaskInput{Title: "doomed", Status: StatusReady}, scope)
	require.NoError(t, err)

	deleted, err := store.DeleteTask(task.ID, scope)
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err := store.GetTask(task.ID, scope)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = store.Pick(task.ID, "sess", scope)
	se, ok := AsStateError(err)
	require.True(t, ok)
	assert.Equal(t, 404, se.Status)

	_, err = store.Complete(task.ID, "", scope)
	se, ok = AsStateError(err)
	require.True(t, ok)
	assert.Equal(t, 404, se.Status)

	_, err = store.SubmitReview(task.ID, ReviewInput{}, scope)
	se, ok = AsStateError(err)
	require.True(t, ok)
	assert.Equal(t, 404, se.Status)

	// Second delete is a no-op.
	deleted, err = store.DeleteTask(task.ID, scope)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestTask_CompletedAtNotImplicitlyCleared(t *testing.T) {
	store := newTestStore(t)
	scope := UserScope("user-1")

	task, err := store.CreateTask(TaskInput{Title: "finisher", Status: StatusInProgress}, scope)
	require.NoError(t, err)

	done, err := store.Complete(task.ID, "", scope)
	require.NoError(t, err)
	require.NotZero(t, done.CompletedAt)
	completedAt := done.CompletedAt

	// Administrative status edit must not clear completed_at.
	st := StatusPlanned
	moved, err := store.UpdateTask(task.ID, TaskPatch{Status: &st}, scope)
	require.NoError(t, err)
	assert.Equal(t, completedAt, moved.CompletedAt)
}

func TestTask_CountByStatus(t *testing.T) {
	store := newTestStore(t)
	scope := UserScope("user-1")

	for i := 0; i < 3; i++ {
		_, err := store.CreateTask(TaskInput{Title: "planned task"}, scope)
		require.NoError(t, err)
	}
	_, err := store.CreateTask(TaskInput{Title: "ready task", Status: StatusReady}, scope)
	require.NoError(t, err)

	counts, err := store.CountTasksByStatus()
	require.NoError(t, err)
	assert.Equal(t, 3, counts[StatusPlanned])
	assert.Equal(t, 1, counts[StatusReady])
	assert.Zero(t, counts[StatusDone])
}
