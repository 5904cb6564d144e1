package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrSegmentClaimed is returned when a claim races another claim and at least
// one requested segment is no longer pending.
var ErrSegmentClaimed = errors.New("segment already claimed")

const batchColumns = "id, span_start, span_end, status, observations_json, error_message, created_at, completed_at"

// ClaimBatch atomically creates a batch over the given pending segments and
// flips them to processing. The batch span is computed from the member rows
// inside the transaction. If any segment is missing or not pending the whole
// claim rolls back with ErrSegmentClaimed.
func (s *Store) ClaimBatch(ctx context.Context, segmentIDs []int64) (*Batch, error) {
	if len(segmentIDs) == 0 {
		return nil, errors.New("claim requires at least one segment")
	}

	var batchID int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		placeholders := makePlaceholders(len(segmentIDs))
		args := int64Args(segmentIDs)

		var (
			count    int
			startRaw sql.NullString
			endRaw   sql.NullString
		)
		row := tx.QueryRowContext(
			ctx,
			`SELECT COUNT(1), MIN(start_time), MAX(end_time) FROM segments
             WHERE id IN (`+placeholders+`) AND status = ?`,
			append(args, SegmentPending)...,
		)
		if err := row.Scan(&count, &startRaw, &endRaw); err != nil {
			return fmt.Errorf("inspect claim segments: %w", err)
		}
		if count != len(segmentIDs) {
			return ErrSegmentClaimed
		}

		now := time.Now().UTC()
		res, err := tx.ExecContext(
			ctx,
			`INSERT INTO batches (span_start, span_end, status, created_at) VALUES (?, ?, ?, ?)`,
			startRaw.String,
			endRaw.String,
			BatchProcessing,
			formatTime(now),
		)
		if err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
		batchID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("batch insert id: %w", err)
		}

		updateArgs := append([]any{SegmentProcessing, batchID}, int64Args(segmentIDs)...)
		updateArgs = append(updateArgs, SegmentPending)
		updateRes, err := tx.ExecContext(
			ctx,
			`UPDATE segments SET status = ?, batch_id = ?
             WHERE id IN (`+placeholders+`) AND status = ?`,
			updateArgs...,
		)
		if err != nil {
			return fmt.Errorf("claim segments: %w", err)
		}
		affected, err := updateRes.RowsAffected()
		if err != nil {
			return fmt.Errorf("claim rows affected: %w", err)
		}
		if affected != int64(len(segmentIDs)) {
			return ErrSegmentClaimed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetBatch(ctx, batchID)
}

// CompleteBatch durably records an accepted analysis: the raw observation
// payload, all timeline cards, the batch completion, and the member segment
// completion land in one transaction.
func (s *Store) CompleteBatch(ctx context.Context, batchID int64, rawObservations string, cards []TimelineCard) error {
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(
			ctx,
			`UPDATE batches SET status = ?, observations_json = ?, error_message = NULL, completed_at = ?
             WHERE id = ? AND status = ?`,
			BatchCompleted,
			nullableString(rawObservations),
			formatTime(now),
			batchID,
			BatchProcessing,
		)
		if err != nil {
			return fmt.Errorf("complete batch: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("complete rows affected: %w", err)
		}
		if affected != 1 {
			return fmt.Errorf("batch %d is not processing", batchID)
		}

		for _, card := range cards {
			if !ValidCategory(card.Category) {
				return fmt.Errorf("card category %q not in fixed set", card.Category)
			}
			appSites, err := json.Marshal(card.AppSites)
			if err != nil {
				return fmt.Errorf("marshal app sites: %w", err)
			}
			distractions, err := json.Marshal(card.Distractions)
			if err != nil {
				return fmt.Errorf("marshal distractions: %w", err)
			}
			if _, err := tx.ExecContext(
				ctx,
				`INSERT INTO timeline_cards (
                    batch_id, category, title, summary, start_time, end_time,
                    app_sites_json, distractions_json, productivity_score, created_at
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				batchID,
				card.Category,
				card.Title,
				nullableString(card.Summary),
				formatTime(card.StartTime),
				formatTime(card.EndTime),
				string(appSites),
				string(distractions),
				card.ProductivityScore,
				formatTime(now),
			); err != nil {
				return fmt.Errorf("insert card: %w", err)
			}
		}

		if _, err := tx.ExecContext(
			ctx,
			`UPDATE segments SET status = ?, error_message = NULL WHERE batch_id = ?`,
			SegmentCompleted,
			batchID,
		); err != nil {
			return fmt.Errorf("complete segments: %w", err)
		}
		return nil
	})
}

// FailBatch marks a batch failed and either reverts its segments to pending
// with an incremented retry count or, once a segment's retries reach the
// limit, marks that segment permanently failed. rawObservations may carry the
// rejected payload for diagnosis and is stored on the batch row.
func (s *Store) FailBatch(ctx context.Context, batchID int64, errDetail, rawObservations string, retryLimit int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(
			ctx,
			`UPDATE batches SET status = ?, error_message = ?, observations_json = ?
             WHERE id = ? AND status = ?`,
			BatchFailed,
			nullableString(errDetail),
			nullableString(rawObservations),
			batchID,
			BatchProcessing,
		)
		if err != nil {
			return fmt.Errorf("fail batch: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("fail rows affected: %w", err)
		}
		if affected != 1 {
			return fmt.Errorf("batch %d is not processing", batchID)
		}

		// Exhausted segments stay attached to the failed batch for inspection.
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE segments SET status = ?, retry_count = retry_count + 1, error_message = ?
             WHERE batch_id = ? AND status = ? AND retry_count + 1 >= ?`,
			SegmentFailed,
			nullableString(errDetail),
			batchID,
			SegmentProcessing,
			retryLimit,
		); err != nil {
			return fmt.Errorf("fail exhausted segments: %w", err)
		}

		if _, err := tx.ExecContext(
			ctx,
			`UPDATE segments SET status = ?, retry_count = retry_count + 1, batch_id = NULL, error_message = ?
             WHERE batch_id = ? AND status = ?`,
			SegmentPending,
			nullableString(errDetail),
			batchID,
			SegmentProcessing,
		); err != nil {
			return fmt.Errorf("revert segments: %w", err)
		}
		return nil
	})
}

// GetBatch fetches a batch by identifier. Returns nil when absent.
func (s *Store) GetBatch(ctx context.Context, id int64) (*Batch, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+batchColumns+` FROM batches WHERE id = ?`, id)
	batch, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return batch, nil
}

// Batches returns batches filtered by status set (or all batches when no
// status is provided), oldest first.
func (s *Store) Batches(ctx context.Context, statuses ...BatchStatus) ([]*Batch, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + batchColumns + ` FROM batches`
	orderClause := ` ORDER BY span_start`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ensureContext(ctx), baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ensureContext(ctx), baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

func scanBatch(scanner interface{ Scan(dest ...any) error }) (*Batch, error) {
	var (
		id           int64
		spanStartRaw string
		spanEndRaw   string
		statusStr    string
		observations sql.NullString
		errorMessage sql.NullString
		createdRaw   string
		completedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&spanStartRaw,
		&spanEndRaw,
		&statusStr,
		&observations,
		&errorMessage,
		&createdRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	batch := &Batch{
		ID:               id,
		Status:           BatchStatus(statusStr),
		ObservationsJSON: observations.String,
		ErrorMessage:     errorMessage.String,
	}
	if start, err := parseTimeString(spanStartRaw); err == nil {
		batch.SpanStart = start
	}
	if end, err := parseTimeString(spanEndRaw); err == nil {
		batch.SpanEnd = end
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		batch.CreatedAt = created
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			batch.CompletedAt = &completed
		}
	}
	return batch, nil
}
