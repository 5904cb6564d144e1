package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const segmentColumns = "id, media_path, start_time, end_time, duration_seconds, status, batch_id, retry_count, error_message, created_at"

// InsertSegment persists a freshly captured segment in pending state and
// returns the stored row.
func (s *Store) InsertSegment(ctx context.Context, mediaPath string, start, end time.Time) (*Segment, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("segment end %s not after start %s", end, start)
	}
	now := time.Now().UTC()

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO segments (
            media_path, start_time, end_time, duration_seconds, status, retry_count, created_at
        ) VALUES (?, ?, ?, ?, ?, 0, ?)`,
		mediaPath,
		formatTime(start),
		formatTime(end),
		end.Sub(start).Seconds(),
		SegmentPending,
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert segment: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetSegment(ctx, id)
}

// GetSegment fetches a segment by identifier. Returns nil when absent.
func (s *Store) GetSegment(ctx context.Context, id int64) (*Segment, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+segmentColumns+` FROM segments WHERE id = ?`, id)
	segment, err := scanSegment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get segment: %w", err)
	}
	return segment, nil
}

// SegmentsByStatus returns segments matching a status ordered by start time.
func (s *Store) SegmentsByStatus(ctx context.Context, status SegmentStatus) ([]*Segment, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+segmentColumns+` FROM segments WHERE status = ? ORDER BY start_time`,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("query segments by status: %w", err)
	}
	defer rows.Close()
	return collectSegments(rows)
}

// PendingSegmentsBefore returns pending segments whose recording finished
// before the cutoff, oldest first. Segments still settling (recently closed)
// are excluded by passing now minus the settle delay.
func (s *Store) PendingSegmentsBefore(ctx context.Context, cutoff time.Time) ([]*Segment, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+segmentColumns+` FROM segments WHERE status = ? AND end_time < ? ORDER BY start_time`,
		SegmentPending,
		formatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("query pending segments: %w", err)
	}
	defer rows.Close()
	return collectSegments(rows)
}

// SegmentsForBatch returns the member segments of a batch ordered by start time.
func (s *Store) SegmentsForBatch(ctx context.Context, batchID int64) ([]*Segment, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+segmentColumns+` FROM segments WHERE batch_id = ? ORDER BY start_time`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query batch segments: %w", err)
	}
	defer rows.Close()
	return collectSegments(rows)
}

func collectSegments(rows *sql.Rows) ([]*Segment, error) {
	var segments []*Segment
	for rows.Next() {
		segment, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		segments = append(segments, segment)
	}
	return segments, rows.Err()
}

func scanSegment(scanner interface{ Scan(dest ...any) error }) (*Segment, error) {
	var (
		id           int64
		mediaPath    string
		startRaw     string
		endRaw       string
		duration     float64
		statusStr    string
		batchID      sql.NullInt64
		retryCount   int
		errorMessage sql.NullString
		createdRaw   string
	)

	if err := scanner.Scan(
		&id,
		&mediaPath,
		&startRaw,
		&endRaw,
		&duration,
		&statusStr,
		&batchID,
		&retryCount,
		&errorMessage,
		&createdRaw,
	); err != nil {
		return nil, err
	}

	segment := &Segment{
		ID:              id,
		MediaPath:       mediaPath,
		DurationSeconds: duration,
		Status:          SegmentStatus(statusStr),
		RetryCount:      retryCount,
		ErrorMessage:    errorMessage.String,
	}
	if batchID.Valid {
		v := batchID.Int64
		segment.BatchID = &v
	}
	if start, err := parseTimeString(startRaw); err == nil {
		segment.StartTime = start
	}
	if end, err := parseTimeString(endRaw); err == nil {
		segment.EndTime = end
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		segment.CreatedAt = created
	}
	return segment, nil
}
