package store

import (
	"context"
	"time"

	"leadgen/internal/models"
)

// InsertDuplicateEvent appends a duplicate-detection audit row.
func (s *Store) InsertDuplicateEvent(ctx context.Context, ev *models.DuplicateEvent) error {
	const query = `
		INSERT INTO duplicate_events (lead_id, matched_lead_id, match_keys, window_hours, match_mode, include_sources, action, reason_code, created_at)
		VALUES (:lead_id, :matched_lead_id, :match_keys, :window_hours, :match_mode, :include_sources, :action, :reason_code, now())
		RETURNING id, created_at`

	stmt, err := s.db.PrepareNamedContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	var row struct {
		ID        int64     `db:"id"`
		CreatedAt time.Time `db:"created_at"`
	}
	if err := stmt.GetContext(ctx, &row, ev); err != nil {
		return err
	}
	ev.ID = row.ID
	ev.CreatedAt = row.CreatedAt
	return nil
}

// InsertStateTransition appends a generic guarded-transition audit row for
// outcomes that are not errors but must remain observable
// (concurrent_routing_attempt, no_eligible_buyers, already_delivered,
// retry_exhausted, ...).
func (s *Store) InsertStateTransition(ctx context.Context, t *models.StateTransition) error {
	const query = `
		INSERT INTO state_transitions (lead_id, component, outcome, detail, created_at)
		VALUES (:lead_id, :component, :outcome, :detail, now())
		RETURNING id, created_at`

	stmt, err := s.db.PrepareNamedContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	var row struct {
		ID        int64     `db:"id"`
		CreatedAt time.Time `db:"created_at"`
	}
	if err := stmt.GetContext(ctx, &row, t); err != nil {
		return err
	}
	t.ID = row.ID
	t.CreatedAt = row.CreatedAt
	return nil
}
