package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTodo_CRUD(t *testing.T) {
	store := newTestStore(t)
	scope := UserScope("user-1")

	td, err := store.CreateTodo("buy tarps", scope)
	require.NoError(t, err)
	assert.False(t, td.Done)
	assert.Equal(t, "user-1", td.OwnerID)

	got, err := store.GetTodo(td.ID, scope)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "buy tarps", got.Text)

	text := "buy more tarps"
	updated, err := store.UpdateTodo(td.ID, TodoPatch{Text: &text}, scope)
	require.NoError(t, err)
	assert.Equal(t, "buy more tarps", updated.Text)

	toggled, err := store.ToggleTodo(td.ID, scope)
	require.NoError(t, err)
	assert.True(t, toggled.Done)

	toggled, err = store.ToggleTodo(td.ID, scope)
	require.NoError(t, err)
	assert.False(t, toggled.Done)

	deleted, err := store.DeleteTodo(td.ID, scope)
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err = store.GetTodo(td.ID, scope)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTodo_ListOrderOpenFirst(t *testing.T) {
	store := newTestStore(t)
	scope := UserScope("user-1")

	a, err := store.CreateTodo("first", scope)
	require.NoError(t, err)
	_, err = store.CreateTodo("second", scope)
	require.NoError(t, err)

	_, err = store.ToggleTodo(a.ID, scope)
	require.NoError(t, err)

	todos, err := store.ListTodos(scope)
	require.NoError(t, err)
	require.Len(t, todos, 2)
	assert.Equal(t, "second", todos[0].Text)
	assert.True(t, todos[1].Done)
}

func TestTodo_Scoping(t *testing.T) {
	store := newTestStore(t)

	td, err := store.CreateTodo("private", UserScope("owner-b"))
	require.NoError(t, err)

	got, err := store.GetTodo(td.ID, UserScope("owner-a"))
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = store.GetTodo(td.ID, SystemScope())
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestTodo_RetentionSweepsOldDone(t *testing.T) {
	store := newTestStore(t)
	scope := UserScope("user-1")

	td, err := store.CreateTodo("ancient", scope)
	require.NoError(t, err)
	_, err = store.ToggleTodo(td.ID, scope)
	require.NoError(t, err)

	// Age the row past the 30-day window.
	_, err = store.db.Exec(`UPDATE todos SET updated_at = updated_at - (31 * 24 * 60 * 60 * 1000) WHERE id = ?`, td.ID)
	require.NoError(t, err)

	keep, err := store.CreateTodo("fresh", scope)
	require.NoError(t, err)

	require.NoError(t, store.RunRetention(context.Background()))

	got, err := store.GetTodo(td.ID, scope)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = store.GetTodo(keep.ID, scope)
	require.NoError(t, err)
	require.NotNil(t, got)
}
