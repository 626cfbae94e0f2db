package store

import (
	"context"
	"time"

	"autoengineer/internal/logging"
)

// CleanupConfig configures automatic cleanup behavior. Zero disables a strategy.
type CleanupConfig struct {
	Retention time.Duration
	MaxRows   int
}

// CleanupStats reports cleanup results.
type CleanupStats struct {
	ExpiredDeleted  int64
	OverflowDeleted int64
}

// ExecutionsDeleted is the total across strategies.
func (c CleanupStats) ExecutionsDeleted() int64 {
	return c.ExpiredDeleted + c.OverflowDeleted
}

// PruneOlderThan deletes executions created more than d ago.
func (s *ToolStore) PruneOlderThan(ctx context.Context, d time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-d).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM tool_executions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logging.Store("PruneOlderThan(%v): deleted %d executions", d, n)
	}
	return n, nil
}

// PruneToSize keeps the newest maxRows executions and deletes the rest.
func (s *ToolStore) PruneToSize(ctx context.Context, maxRows int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if maxRows < 0 {
		maxRows = 0
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM tool_executions WHERE id NOT IN (
			SELECT id FROM tool_executions
			ORDER BY created_at DESC, id DESC LIMIT ?
		)`, maxRows)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logging.Store("PruneToSize(%d): deleted %d executions", maxRows, n)
	}
	return n, nil
}

// Cleanup applies the age strategy, then the size strategy.
func (s *ToolStore) Cleanup(ctx context.Context, cfg CleanupConfig) (CleanupStats, error) {
	var stats CleanupStats
	var err error

	if cfg.Retention > 0 {
		if stats.ExpiredDeleted, err = s.PruneOlderThan(ctx, cfg.Retention); err != nil {
			logging.StoreWarn("Cleanup: age pruning failed: %v", err)
			return stats, err
		}
	}
	if cfg.MaxRows > 0 {
		if stats.OverflowDeleted, err = s.PruneToSize(ctx, cfg.MaxRows); err != nil {
			logging.StoreWarn("Cleanup: size pruning failed: %v", err)
			return stats, err
		}
	}
	logging.StoreDebug("Cleanup: expired=%d overflow=%d", stats.ExpiredDeleted, stats.OverflowDeleted)
	return stats, nil
}
