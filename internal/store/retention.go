package store

import (
	"context"
	"fmt"
	"time"
)

// RunRetention cleans up old data. Tasks and jobs are never purged: their
// activity logs are audit trails and only an explicit delete removes them.
// Completed checklist items older than 30 days are swept.
func (s *Store) RunRetention(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	thirtyDaysAgo := time.Now().UnixMilli() - (30 * 24 * 60 * 60 * 1000)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM todos WHERE done = 1 AND updated_at < ?`, thirtyDaysAgo)
	if err != nil {
		return fmt.Errorf("failed to delete old todos: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Info().Int64("purged_todos", n).Msg("retention sweep completed")
	}
	return nil
}

// DBSizeBytes returns the database size in bytes.
func (s *Store) DBSizeBytes() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pageCount, pageSize int64
	if err := s.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	if err := s.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, fmt.Errorf("failed to get page size: %w", err)
	}
	return pageCount * pageSize, nil
}
