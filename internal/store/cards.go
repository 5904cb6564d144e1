package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const cardColumns = "id, batch_id, category, title, summary, start_time, end_time, app_sites_json, distractions_json, productivity_score, created_at"

// CardsBetween returns timeline cards overlapping [from, to) ordered by start
// time.
func (s *Store) CardsBetween(ctx context.Context, from, to time.Time) ([]*TimelineCard, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+cardColumns+` FROM timeline_cards
         WHERE end_time > ? AND start_time < ? ORDER BY start_time`,
		formatTime(from),
		formatTime(to),
	)
	if err != nil {
		return nil, fmt.Errorf("query cards between: %w", err)
	}
	defer rows.Close()
	return collectCards(rows)
}

// RecentCards returns the most recent cards by start time, newest first. Used
// as rolling context for inference prompts.
func (s *Store) RecentCards(ctx context.Context, limit int) ([]*TimelineCard, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+cardColumns+` FROM timeline_cards ORDER BY start_time DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent cards: %w", err)
	}
	defer rows.Close()
	return collectCards(rows)
}

// CardsForBatch returns the cards produced by one batch ordered by start time.
func (s *Store) CardsForBatch(ctx context.Context, batchID int64) ([]*TimelineCard, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+cardColumns+` FROM timeline_cards WHERE batch_id = ? ORDER BY start_time`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query batch cards: %w", err)
	}
	defer rows.Close()
	return collectCards(rows)
}

func collectCards(rows *sql.Rows) ([]*TimelineCard, error) {
	var cards []*TimelineCard
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

func scanCard(scanner interface{ Scan(dest ...any) error }) (*TimelineCard, error) {
	var (
		id           int64
		batchID      int64
		category     string
		title        string
		summary      sql.NullString
		startRaw     string
		endRaw       string
		appSites     sql.NullString
		distractions sql.NullString
		score        int
		createdRaw   string
	)

	if err := scanner.Scan(
		&id,
		&batchID,
		&category,
		&title,
		&summary,
		&startRaw,
		&endRaw,
		&appSites,
		&distractions,
		&score,
		&createdRaw,
	); err != nil {
		return nil, err
	}

	card := &TimelineCard{
		ID:                id,
		BatchID:           batchID,
		Category:          category,
		Title:             title,
		Summary:           summary.String,
		ProductivityScore: score,
	}
	if appSites.Valid && appSites.String != "" {
		if err := json.Unmarshal([]byte(appSites.String), &card.AppSites); err != nil {
			return nil, fmt.Errorf("decode app sites: %w", err)
		}
	}
	if distractions.Valid && distractions.String != "" {
		if err := json.Unmarshal([]byte(distractions.String), &card.Distractions); err != nil {
			return nil, fmt.Errorf("decode distractions: %w", err)
		}
	}
	if start, err := parseTimeString(startRaw); err == nil {
		card.StartTime = start
	}
	if end, err := parseTimeString(endRaw); err == nil {
		card.EndTime = end
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		card.CreatedAt = created
	}
	return card, nil
}
