package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Todo is a lightweight checklist item, independent of the task board.
type Todo struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id,omitempty"`
	Text      string `json:"text"`
	Done      bool   `json:"done"`
	CreatedAt int64  `json:"created_at"` // unix ms
	UpdatedAt int64  `json:"updated_at"`
}

// TodoPatch is a partial update: only non-nil fields are written.
type TodoPatch struct {
	Text *string
	Done *bool
}

// CreateTodo inserts a new checklist item owned by the scope's user.
func (s *Store) CreateTodo(text string, scope Scope) (*Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	td := &Todo{
		ID:        uuid.New().String(),
		OwnerID:   scope.UserID(),
		Text:      text,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.Exec(
		`INSERT INTO todos (id, owner_id, text, done, created_at, updated_at) VALUES (?, ?, ?, 0, ?, ?)`,
		td.ID, nullString(td.OwnerID), td.Text, td.CreatedAt, td.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create todo: %w", err)
	}
	return td, nil
}

// GetTodo retrieves a checklist item. Returns (nil, nil) when missing or out
// of scope.
func (s *Store) GetTodo(id string, scope Scope) (*Todo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getTodoLocked(id, scope)
}

// ListTodos returns the scope's checklist: open items first, newest first
// within each group.
func (s *Store) ListTodos(scope Scope) ([]*Todo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clause, args := scope.ownerClause()
	query := `SELECT id, owner_id, text, done, created_at, updated_at FROM todos
	WHERE ` + clause + ` ORDER BY done ASC, created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	defer rows.Close()

	var todos []*Todo
	for rows.Next() {
		td, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}
		todos = append(todos, td)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating todos: %w", err)
	}
	return todos, nil
}

// UpdateTodo applies a partial update. Returns (nil, nil) when missing.
func (s *Store) UpdateTodo(id string, patch TodoPatch, scope Scope) (*Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	td, err := s.getTodoLocked(id, scope)
	if err != nil || td == nil {
		return nil, err
	}

	if patch.Text != nil {
		td.Text = *patch.Text
	}
	if patch.Done != nil {
		td.Done = *patch.Done
	}
	td.UpdatedAt = time.Now().UnixMilli()

	_, err = s.db.Exec(
		`UPDATE todos SET text = ?, done = ?, updated_at = ? WHERE id = ?`,
		td.Text, boolToInt(td.Done), td.UpdatedAt, td.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update todo: %w", err)
	}
	return s.getTodoLocked(id, scope)
}

// ToggleTodo flips the done flag. Returns (nil, nil) when missing.
func (s *Store) ToggleTodo(id string, scope Scope) (*Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	td, err := s.getTodoLocked(id, scope)
	if err != nil || td == nil {
		return nil, err
	}

	flipped := !td.Done
	_, err = s.db.Exec(
		`UPDATE todos SET done = ?, updated_at = ? WHERE id = ?`,
		boolToInt(flipped), time.Now().UnixMilli(), td.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to toggle todo: %w", err)
	}
	return s.getTodoLocked(id, scope)
}

// DeleteTodo hard-deletes a checklist item. Returns false when nothing was
// deleted.
func (s *Store) DeleteTodo(id string, scope Scope) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clause, args := scope.ownerClause()
	res, err := s.db.Exec(`DELETE FROM todos WHERE id = ? AND `+clause,
		append([]interface{}{id}, args...)...)
	if err != nil {
		return false, fmt.Errorf("failed to delete todo: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (s *Store) getTodoLocked(id string, scope Scope) (*Todo, error) {
	clause, args := scope.ownerClause()
	row := s.db.QueryRow(
		`SELECT id, owner_id, text, done, created_at, updated_at FROM todos WHERE id = ? AND `+clause,
		append([]interface{}{id}, args...)...)

	td, err := scanTodo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get todo: %w", err)
	}
	return td, nil
}

func scanTodo(row rowScanner) (*Todo, error) {
	td := &Todo{}
	var ownerID sql.NullString
	var done int
	if err := row.Scan(&td.ID, &ownerID, &td.Text, &done, &td.CreatedAt, &td.UpdatedAt); err != nil {
		return nil, err
	}
	td.OwnerID = ownerID.String
	td.Done = done != 0
	return td, nil
}
