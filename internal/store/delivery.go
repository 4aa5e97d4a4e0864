package store

import (
	"context"
	"time"

	"leadgen/internal/models"
)

// InsertDeliveryAttempt appends a delivery attempt record. Attempts are
// never updated or deleted, matching §4.8's append-only contract.
func (s *Store) InsertDeliveryAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error {
	const query = `
		INSERT INTO delivery_attempts (lead_id, attempt_number, outcome, http_status, error_message, delivery_id, created_at)
		VALUES (:lead_id, :attempt_number, :outcome, :http_status, :error_message, :delivery_id, now())
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
	if err := stmt.GetContext(ctx, &row, attempt); err != nil {
		return err
	}
	attempt.ID = row.ID
	attempt.CreatedAt = row.CreatedAt
	return nil
}

// DeliveryAttemptsByLead retrieves every attempt made for a lead, oldest
// first.
func (s *Store) DeliveryAttemptsByLead(ctx context.Context, leadID int64) ([]models.DeliveryAttempt, error) {
	var attempts []models.DeliveryAttempt
	err := s.db.SelectContext(ctx, &attempts,
		"SELECT * FROM delivery_attempts WHERE lead_id = $1 ORDER BY attempt_number ASC", leadID)
	return attempts, err
}
