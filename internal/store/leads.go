package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"leadgen/internal/models"
)

// InsertLeadIdempotent performs the race-safe idempotent insert: a
// single-statement upsert keyed on (source_id, idempotency_key). Concurrent
// callers racing on the same key both succeed; exactly one observes
// createdNew=true.
func (s *Store) InsertLeadIdempotent(ctx context.Context, lead *models.Lead) (createdNew bool, err error) {
	const query = `
		INSERT INTO leads (
			source_id, offer_id, market_id, vertical_id, idempotency_key,
			name, email, phone, postal_code, country_code, city, region_code,
			message, utm_source, utm_medium, utm_campaign,
			status, billing_status, created_at, updated_at
		) VALUES (
			:source_id, :offer_id, :market_id, :vertical_id, :idempotency_key,
			:name, :email, :phone, :postal_code, :country_code, :city, :region_code,
			:message, :utm_source, :utm_medium, :utm_campaign,
			:status, :billing_status, now(), now()
		)
		ON CONFLICT (source_id, idempotency_key)
		DO UPDATE SET id = leads.id
		RETURNING id, (xmax = 0) AS created_new, created_at, updated_at, status`

	stmt, err := s.db.PrepareNamedContext(ctx, query)
	if err != nil {
		return false, fmt.Errorf("prepare idempotent insert: %w", err)
	}
	defer stmt.Close()

	var row struct {
		ID         int64     `db:"id"`
		CreatedNew bool      `db:"created_new"`
		CreatedAt  time.Time `db:"created_at"`
		UpdatedAt  time.Time `db:"updated_at"`
		Status     string    `db:"status"`
	}
	if err := stmt.GetContext(ctx, &row, lead); err != nil {
		return false, fmt.Errorf("idempotent insert: %w", err)
	}

	lead.ID = row.ID
	lead.CreatedAt = row.CreatedAt
	lead.UpdatedAt = row.UpdatedAt
	lead.Status = row.Status
	return row.CreatedNew, nil
}

// GetLeadByID retrieves a lead by ID.
func (s *Store) GetLeadByID(ctx context.Context, id int64) (*models.Lead, error) {
	var lead models.Lead
	err := s.db.GetContext(ctx, &lead, "SELECT * FROM leads WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

// SetNormalizedFields persists normalized_phone/normalized_email without
// touching status, using COALESCE so a nil input does not clobber an
// existing value.
func (s *Store) SetNormalizedFields(ctx context.Context, leadID int64, normalizedPhone, normalizedEmail *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE leads
		SET updated_at = now(),
		    normalized_phone = COALESCE($1, normalized_phone),
		    normalized_email = COALESCE($2, normalized_email)
		WHERE id = $3`, normalizedPhone, normalizedEmail, leadID)
	return err
}

// MarkDuplicate records a duplicate match against the lead. "reject" sets
// is_duplicate and, if the lead is still "received", also transitions it to
// "rejected" guarded on that precondition. "flag" sets is_duplicate without
// touching status. "accept" records duplicate_of_lead_id only and leaves
// is_duplicate untouched, per the duplicate policy's action contract.
func (s *Store) MarkDuplicate(ctx context.Context, leadID int64, normalizedPhone, normalizedEmail *string, matchedLeadID int64, action, reasonCode string) error {
	switch action {
	case models.DuplicateActionReject:
		_, err := s.db.ExecContext(ctx, `
			UPDATE leads
			SET updated_at = now(),
			    normalized_phone = COALESCE($1, normalized_phone),
			    normalized_email = COALESCE($2, normalized_email),
			    is_duplicate = true,
			    duplicate_of_lead_id = $3,
			    status = CASE WHEN status = 'received' THEN 'rejected' ELSE status END,
			    validation_reason = CASE WHEN status = 'received' THEN $4 ELSE validation_reason END
			WHERE id = $5`,
			normalizedPhone, normalizedEmail, matchedLeadID, reasonCode, leadID)
		return err

	case models.DuplicateActionAccept:
		_, err := s.db.ExecContext(ctx, `
			UPDATE leads
			SET updated_at = now(),
			    normalized_phone = COALESCE($1, normalized_phone),
			    normalized_email = COALESCE($2, normalized_email),
			    duplicate_of_lead_id = $3
			WHERE id = $4`,
			normalizedPhone, normalizedEmail, matchedLeadID, leadID)
		return err

	default: // "flag"
		_, err := s.db.ExecContext(ctx, `
			UPDATE leads
			SET updated_at = now(),
			    normalized_phone = COALESCE($1, normalized_phone),
			    normalized_email = COALESCE($2, normalized_email),
			    is_duplicate = true,
			    duplicate_of_lead_id = $3
			WHERE id = $4`,
			normalizedPhone, normalizedEmail, matchedLeadID, leadID)
		return err
	}
}

// DuplicateCandidate is the result row of FindDuplicateCandidate.
type DuplicateCandidate struct {
	MatchedLeadID int64 `db:"matched_lead_id"`
	PhoneMatch    int   `db:"phone_match"`
	EmailMatch    int   `db:"email_match"`
}

// FindDuplicateCandidate runs the window-bounded duplicate lookup. Returns
// nil if no candidate satisfies match_mode.
func (s *Store) FindDuplicateCandidate(ctx context.Context, offerID, sourceID, leadID int64, windowHours int, excludeStatuses []string, includeSourcesAny bool, matchMode string, normPhone, normEmail *string) (*DuplicateCandidate, error) {
	if excludeStatuses == nil {
		excludeStatuses = []string{}
	}

	const query = `
	WITH candidates AS (
	  SELECT
	    l.id AS matched_lead_id,
	    l.created_at AS matched_created_at,
	    (CASE WHEN $1::text IS NOT NULL AND l.normalized_phone = $1 THEN 1 ELSE 0 END) AS phone_match,
	    (CASE WHEN $2::text IS NOT NULL AND l.normalized_email = $2 THEN 1 ELSE 0 END) AS email_match
	  FROM leads l
	  WHERE l.offer_id = $3
	    AND l.id <> $4
	    AND l.created_at >= (now() - ($5::int * INTERVAL '1 hour'))
	    AND NOT (l.status = ANY($6))
	    AND ($7 OR l.source_id = $8)
	    AND (
	      ($1::text IS NOT NULL AND l.normalized_phone = $1)
	      OR
	      ($2::text IS NOT NULL AND l.normalized_email = $2)
	    )
	),
	filtered AS (
	  SELECT * FROM candidates
	  WHERE
	    CASE
	      WHEN $9 = 'any' THEN (phone_match = 1 OR email_match = 1)
	      WHEN $9 = 'all' THEN
	        ( ($1::text IS NULL OR phone_match = 1)
	          AND ($2::text IS NULL OR email_match = 1)
	          AND (CASE WHEN ($1::text IS NOT NULL AND $2::text IS NOT NULL)
	                    THEN (phone_match = 1 AND email_match = 1)
	                    ELSE true END) )
	      ELSE false
	    END
	)
	SELECT matched_lead_id, phone_match, email_match
	FROM filtered
	ORDER BY matched_created_at DESC, matched_lead_id DESC
	LIMIT 1`

	var c DuplicateCandidate
	err := s.db.GetContext(ctx, &c, query,
		normPhone, normEmail, offerID, leadID, windowHours, excludeStatuses,
		includeSourcesAny, sourceID, matchMode)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateLeadValidated performs the guarded received -> validated (or
// received -> rejected) transition. Returns false if the lead was not in
// "received" when the update ran (already processed, concurrent caller, or
// not found).
func (s *Store) UpdateLeadValidated(ctx context.Context, leadID int64, accepted bool, reason string) (bool, error) {
	var query string
	if accepted {
		query = `UPDATE leads SET status = 'validated', updated_at = now() WHERE id = $1 AND status = 'received'`
	} else {
		query = `UPDATE leads SET status = 'rejected', rejection_reason = $2, rejected_at = now(), updated_at = now() WHERE id = $1 AND status = 'received'`
	}

	var res sql.Result
	var err error
	if accepted {
		res, err = s.db.ExecContext(ctx, query, leadID)
	} else {
		res, err = s.db.ExecContext(ctx, query, leadID, reason)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateLeadRouted performs the guarded validated -> routed transition,
// assigning buyer_id and the computed price. Status stays "routed" rather
// than advancing further until delivery succeeds.
func (s *Store) UpdateLeadRouted(ctx context.Context, leadID, buyerID int64, price float64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE leads
		SET buyer_id = $1, price = $2, status = 'routed', routed_at = now(), updated_at = now()
		WHERE id = $3 AND status = 'validated'`, buyerID, price, leadID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateLeadDelivered performs the guarded routed -> delivered transition.
func (s *Store) UpdateLeadDelivered(ctx context.Context, leadID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE leads
		SET status = 'delivered', delivered_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'routed'`, leadID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkLeadBilled flips billing_status for a delivered lead. It never
// touches status or buyer_id/price and is the only write surface exposed to
// the billing collaborator.
func (s *Store) MarkLeadBilled(ctx context.Context, leadID int64, billingStatus string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE leads SET billing_status = $1, updated_at = now()
		WHERE id = $2 AND status IN ('delivered', 'accepted')`, billingStatus, leadID)
	return err
}

// StuckRoutedLeads returns leads that have been "routed" for longer than
// olderThan without advancing to "delivered" or "rejected".
func (s *Store) StuckRoutedLeads(ctx context.Context, olderThan time.Duration, limit int) ([]models.Lead, error) {
	var leads []models.Lead
	err := s.db.SelectContext(ctx, &leads, `
		SELECT * FROM leads
		WHERE status = 'routed' AND routed_at < $1
		ORDER BY routed_at ASC
		LIMIT $2`, time.Now().Add(-olderThan), limit)
	return leads, err
}

// RoutedLeadsWithoutSuccessfulDelivery returns leads stuck in "routed" that
// have no delivery_attempts row with outcome='success' — the operator
// replay target for leadgenctl's verify/replay subcommands.
func (s *Store) RoutedLeadsWithoutSuccessfulDelivery(ctx context.Context, limit int) ([]models.Lead, error) {
	var leads []models.Lead
	err := s.db.SelectContext(ctx, &leads, `
		SELECT l.* FROM leads l
		WHERE l.status = 'routed'
		  AND NOT EXISTS (
		    SELECT 1 FROM delivery_attempts da
		    WHERE da.lead_id = l.id AND da.outcome = 'success'
		  )
		ORDER BY l.routed_at ASC
		LIMIT $1`, limit)
	return leads, err
}

// DeliveryAttemptCount returns how many attempts have been recorded for a
// lead, used to compute the next attempt_number and to enforce max_attempts.
func (s *Store) DeliveryAttemptCount(ctx context.Context, leadID int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM delivery_attempts WHERE lead_id = $1", leadID)
	return n, err
}

// LastDeliveredAtByBuyer supports the rotation routing strategy.
func (s *Store) LastDeliveredAtByBuyer(ctx context.Context, offerID int64, buyerIDs []int64) (map[int64]*time.Time, error) {
	out := make(map[int64]*time.Time, len(buyerIDs))
	for _, id := range buyerIDs {
		out[id] = nil
	}
	if len(buyerIDs) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(buyerIDs))
	args := make([]interface{}, 0, len(buyerIDs)+1)
	args = append(args, offerID)
	for i, id := range buyerIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		SELECT buyer_id, MAX(delivered_at) AS last_delivered_at
		FROM leads
		WHERE offer_id = $1 AND buyer_id IN (%s) AND delivered_at IS NOT NULL
		GROUP BY buyer_id`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var buyerID int64
		var lastDeliveredAt time.Time
		if err := rows.Scan(&buyerID, &lastDeliveredAt); err != nil {
			return nil, err
		}
		out[buyerID] = &lastDeliveredAt
	}
	return out, rows.Err()
}
