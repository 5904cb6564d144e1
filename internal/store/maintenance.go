package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ResetStuckProcessing recovers from a crash: segments left processing revert
// to pending (without counting a retry) and their open batches are marked
// failed. Run once at daemon start before the analyzer begins.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	var reverted int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(
			ctx,
			`UPDATE segments SET status = ?, batch_id = NULL WHERE status = ?`,
			SegmentPending,
			SegmentProcessing,
		)
		if err != nil {
			return fmt.Errorf("reset stuck segments: %w", err)
		}
		reverted, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reset rows affected: %w", err)
		}

		if _, err := tx.ExecContext(
			ctx,
			`UPDATE batches SET status = ?, error_message = ? WHERE status = ?`,
			BatchFailed,
			"interrupted by daemon restart",
			BatchProcessing,
		); err != nil {
			return fmt.Errorf("fail interrupted batches: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reverted, nil
}

// CollectStats returns row counts per lifecycle state.
func (s *Store) CollectStats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	var stats Stats

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM segments GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("segment stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return stats, err
		}
		switch SegmentStatus(status) {
		case SegmentPending:
			stats.SegmentsPending = count
		case SegmentProcessing:
			stats.SegmentsProcessing = count
		case SegmentCompleted:
			stats.SegmentsCompleted = count
		case SegmentFailed:
			stats.SegmentsFailed = count
		}
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	batchRows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM batches GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("batch stats: %w", err)
	}
	defer batchRows.Close()
	for batchRows.Next() {
		var (
			status string
			count  int
		)
		if err := batchRows.Scan(&status, &count); err != nil {
			return stats, err
		}
		switch BatchStatus(status) {
		case BatchProcessing:
			stats.BatchesProcessing = count
		case BatchCompleted:
			stats.BatchesCompleted = count
		case BatchFailed:
			stats.BatchesFailed = count
		}
	}
	if err := batchRows.Err(); err != nil {
		return stats, err
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM timeline_cards`).Scan(&stats.Cards); err != nil {
		return stats, fmt.Errorf("card stats: %w", err)
	}
	return stats, nil
}

// CheckHealth returns diagnostic information about the database file.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{
		DBPath:        s.path,
		SchemaVersion: strconv.Itoa(schemaVersion),
	}

	if s.path == "" {
		return health, errors.New("database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping database: %w", err)
	}
	health.DatabaseReadable = true

	expected := []string{"segments", "batches", "timeline_cards", "settings", "digest_log"}
	missing := make(map[string]struct{}, len(expected))
	for _, table := range expected {
		missing[table] = struct{}{}
	}

	rows, err := s.db.QueryContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("scan table name: %w", err)
		}
		health.TablesPresent = append(health.TablesPresent, name)
		delete(missing, name)
	}
	if err := rows.Err(); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("iterate tables: %w", err)
	}
	for name := range missing {
		health.MissingTables = append(health.MissingTables, name)
	}

	if len(health.MissingTables) == 0 {
		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(1) FROM segments").Scan(&health.TotalSegments); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count segments: %w", err)
		}
		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(1) FROM timeline_cards").Scan(&health.TotalCards); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count cards: %w", err)
		}
	}

	var integrityResult string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}
