package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AppendDigestLog records one digest send attempt.
func (s *Store) AppendDigestLog(ctx context.Context, entry DigestLogEntry) error {
	sendTime := entry.SendTime
	if sendTime.IsZero() {
		sendTime = time.Now().UTC()
	}
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO digest_log (period, send_time, success, error_message, retry_count)
         VALUES (?, ?, ?, ?, ?)`,
		entry.Period,
		formatTime(sendTime),
		boolToInt(entry.Success),
		nullableString(entry.ErrorMessage),
		entry.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("append digest log: %w", err)
	}
	return nil
}

// LastSuccessfulDigest returns the send time of the most recent successful
// digest for a period, or found=false when the period never succeeded.
func (s *Store) LastSuccessfulDigest(ctx context.Context, period string) (time.Time, bool, error) {
	var raw string
	err := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT send_time FROM digest_log WHERE period = ? AND success = 1
         ORDER BY send_time DESC LIMIT 1`,
		period,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last successful digest: %w", err)
	}
	sent, err := parseTimeString(raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse digest send time: %w", err)
	}
	return sent, true, nil
}

// DigestAttemptsOn counts send attempts for a period on a calendar day. The
// day is interpreted in the location of the provided time.
func (s *Store) DigestAttemptsOn(ctx context.Context, period string, day time.Time) (int, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	var count int
	err := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT COUNT(1) FROM digest_log WHERE period = ? AND send_time >= ? AND send_time < ?`,
		period,
		formatTime(dayStart),
		formatTime(dayEnd),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count digest attempts: %w", err)
	}
	return count, nil
}

// DigestLogEntries returns the most recent attempts, newest first.
func (s *Store) DigestLogEntries(ctx context.Context, limit int) ([]*DigestLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT id, period, send_time, success, error_message, retry_count
         FROM digest_log ORDER BY send_time DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query digest log: %w", err)
	}
	defer rows.Close()

	var entries []*DigestLogEntry
	for rows.Next() {
		var (
			entry        DigestLogEntry
			sendRaw      string
			success      int
			errorMessage sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.Period, &sendRaw, &success, &errorMessage, &entry.RetryCount); err != nil {
			return nil, err
		}
		entry.Success = success != 0
		entry.ErrorMessage = errorMessage.String
		if sent, err := parseTimeString(sendRaw); err == nil {
			entry.SendTime = sent
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
