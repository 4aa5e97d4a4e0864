package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"leadgen/internal/models"
)

// GetBuyer retrieves a buyer by ID.
func (s *Store) GetBuyer(ctx context.Context, id int64) (*models.Buyer, error) {
	var b models.Buyer
	err := s.db.GetContext(ctx, &b, "SELECT * FROM buyers WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBuyerOffer retrieves a buyer's enrollment in an offer, if any.
func (s *Store) GetBuyerOffer(ctx context.Context, buyerID, offerID int64) (*models.BuyerOffer, error) {
	var bo models.BuyerOffer
	err := s.db.GetContext(ctx, &bo, "SELECT * FROM buyer_offers WHERE buyer_id = $1 AND offer_id = $2", buyerID, offerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bo, nil
}

// BuyerOffersByOffer retrieves every enrollment row for an offer, used by
// the router's capacity/priority lookups.
func (s *Store) BuyerOffersByOffer(ctx context.Context, offerID int64) ([]models.BuyerOffer, error) {
	var rows []models.BuyerOffer
	err := s.db.SelectContext(ctx, &rows, "SELECT * FROM buyer_offers WHERE offer_id = $1", offerID)
	return rows, err
}

// BuyerOffersByBuyer retrieves every enrollment row for a buyer across all
// offers, used by the GET /api/v1/buyers/:id operator endpoint.
func (s *Store) BuyerOffersByBuyer(ctx context.Context, buyerID int64) ([]models.BuyerOffer, error) {
	var rows []models.BuyerOffer
	err := s.db.SelectContext(ctx, &rows, "SELECT * FROM buyer_offers WHERE buyer_id = $1", buyerID)
	return rows, err
}

// GetExclusiveBuyer returns the buyer_id holding an active exclusivity
// grant for (offer, scope_type, scope_value), requiring the buyer itself be
// active. Returns nil if there is none.
func (s *Store) GetExclusiveBuyer(ctx context.Context, offerID int64, scopeType, scopeValue string) (*int64, error) {
	var buyerID int64
	err := s.db.GetContext(ctx, &buyerID, `
		SELECT oe.buyer_id
		FROM offer_exclusivities oe
		JOIN buyers b ON b.id = oe.buyer_id
		WHERE oe.offer_id = $1
		  AND oe.scope_type = $2
		  AND oe.scope_value = $3
		  AND oe.is_active = true
		  AND b.is_active = true
		LIMIT 1`, offerID, scopeType, scopeValue)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &buyerID, nil
}

// EligibleBuyer is a candidate produced by EligibleBuyers, carrying exactly
// the fields the routing strategies need.
type EligibleBuyer struct {
	BuyerID         int64      `db:"buyer_id"`
	RoutingPriority int        `db:"routing_priority"`
	PricePerLead    *float64   `db:"price_per_lead"`
	CapacityPerDay  *int       `db:"capacity_per_day"`
	CapacityPerHour *int       `db:"capacity_per_hour"`
	PauseUntil      *time.Time `db:"pause_until"`
}

// EligibleBuyers implements the buyer eligibility predicate: active buyer,
// active enrollment, active service-area coverage of the lead's market by
// postal code or city, and min_balance_required satisfied. Capacity and
// pause filtering are enforced by the caller (Router), gated on the routing
// policy's respect_capacity/respect_pause flags; capacity additionally
// requires counting already-routed leads in the current day/hour window.
func (s *Store) EligibleBuyers(ctx context.Context, offerID, marketID int64, postalCode, city string) ([]EligibleBuyer, error) {
	conditions := make([]string, 0, 2)
	args := []interface{}{offerID, marketID}

	if postalCode != "" {
		args = append(args, postalCode)
		conditions = append(conditions, fmt.Sprintf("(bsa.scope_type = 'postal_code' AND bsa.scope_value = $%d)", len(args)))
	}
	if city != "" {
		args = append(args, city)
		conditions = append(conditions, fmt.Sprintf("(bsa.scope_type = 'city' AND bsa.scope_value = $%d)", len(args)))
	}
	if len(conditions) == 0 {
		return nil, nil
	}

	serviceAreaMatch := conditions[0]
	for _, c := range conditions[1:] {
		serviceAreaMatch += " OR " + c
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT
		  bo.buyer_id, bo.routing_priority, bo.price_per_lead,
		  bo.capacity_per_day, bo.capacity_per_hour, bo.pause_until
		FROM buyer_offers bo
		JOIN buyers b ON b.id = bo.buyer_id
		JOIN buyer_service_areas bsa ON bsa.buyer_id = bo.buyer_id
		WHERE bo.offer_id = $1
		  AND bo.is_active = true
		  AND b.is_active = true
		  AND bsa.market_id = $2
		  AND bsa.is_active = true
		  AND (%s)
		  AND (bo.min_balance_required IS NULL OR b.balance >= bo.min_balance_required)
		ORDER BY bo.routing_priority DESC, bo.buyer_id ASC`, serviceAreaMatch)

	var buyers []EligibleBuyer
	err := s.db.SelectContext(ctx, &buyers, query, args...)
	return buyers, err
}

// CapacityUsedToday counts how many leads a buyer has already been routed
// today. Local-to-the-market calendar days are out of scope; UTC calendar
// day is used as the simplifying rule.
func (s *Store) CapacityUsedToday(ctx context.Context, offerID, buyerID int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM leads
		WHERE offer_id = $1 AND buyer_id = $2
		  AND routed_at >= date_trunc('day', now())`, offerID, buyerID)
	return n, err
}

// CapacityUsedThisHour counts how many leads a buyer has been routed in the
// current clock hour.
func (s *Store) CapacityUsedThisHour(ctx context.Context, offerID, buyerID int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM leads
		WHERE offer_id = $1 AND buyer_id = $2
		  AND routed_at >= date_trunc('hour', now())`, offerID, buyerID)
	return n, err
}

// BuyerBalance is a read-only projection of a buyer's balance. The core
// never mutates balance itself — billing owns that write path.
func (s *Store) BuyerBalance(ctx context.Context, buyerID int64) (float64, error) {
	var balance float64
	err := s.db.GetContext(ctx, &balance, "SELECT balance FROM buyers WHERE id = $1", buyerID)
	return balance, err
}
