// Package route implements the eligibility, exclusivity, and
// strategy-selection stages of buyer routing.
package route

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"time"

	"leadgen/internal/models"
	"leadgen/internal/store"
)

// Errors surfaced to the caller.
var ErrRoutingPolicyInvalid = errors.New("invalid_routing_policy")

// No-route reasons, written to the state_transitions audit log and
// returned to callers that need to distinguish them (the ingestion
// service's no-route metric label, tests).
const (
	ReasonExclusiveBuyerIneligibleFailClosed = "exclusive_buyer_ineligible_fail_closed"
	ReasonNoEligibleBuyers                   = "no_eligible_buyers"
	ReasonStrategySelectionFailed            = "strategy_selection_failed"
	ReasonConcurrentRoutingAttempt           = "concurrent_routing_attempt"
	ReasonAlreadyRouted                      = "already_routed"
)

// Store is the slice of internal/store the router depends on.
type Store interface {
	GetExclusiveBuyer(ctx context.Context, offerID int64, scopeType, scopeValue string) (*int64, error)
	EligibleBuyers(ctx context.Context, offerID, marketID int64, postalCode, city string) ([]store.EligibleBuyer, error)
	CapacityUsedToday(ctx context.Context, offerID, buyerID int64) (int, error)
	CapacityUsedThisHour(ctx context.Context, offerID, buyerID int64) (int, error)
	LastDeliveredAtByBuyer(ctx context.Context, offerID int64, buyerIDs []int64) (map[int64]*time.Time, error)
	UpdateLeadRouted(ctx context.Context, leadID, buyerID int64, price float64) (bool, error)
	GetBuyerOffer(ctx context.Context, buyerID, offerID int64) (*models.BuyerOffer, error)
	InsertStateTransition(ctx context.Context, t *models.StateTransition) error
}

// Result describes a routing outcome. BuyerID is zero when NoRouteReason is
// set.
type Result struct {
	BuyerID       int64
	Price         float64
	NoRouteReason string
}

// Router selects a buyer for a validated lead and performs the guarded
// validated -> routed transition.
type Router struct {
	store Store
}

// New builds a Router over the given store.
func New(s Store) *Router {
	return &Router{store: s}
}

// Route runs eligibility, exclusivity, and strategy selection end to end.
// lead.Status must be "validated"; the caller is responsible for having
// reached that state.
func (r *Router) Route(ctx context.Context, lead *models.Lead, offer *models.Offer, config *models.RoutingPolicyConfig) (Result, error) {
	city := ""
	if lead.City != nil {
		city = *lead.City
	}

	buyer, noRouteReason, err := r.selectBuyer(ctx, lead, offer, config, lead.PostalCode, city)
	if err != nil {
		return Result{}, err
	}
	if noRouteReason != "" {
		r.audit(ctx, lead.ID, noRouteReason)
		return Result{NoRouteReason: noRouteReason}, nil
	}

	price := r.effectivePrice(ctx, buyer.BuyerID, offer)

	ok, err := r.store.UpdateLeadRouted(ctx, lead.ID, buyer.BuyerID, price)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		r.audit(ctx, lead.ID, ReasonConcurrentRoutingAttempt)
		return Result{NoRouteReason: ReasonConcurrentRoutingAttempt}, nil
	}

	return Result{BuyerID: buyer.BuyerID, Price: price}, nil
}

func (r *Router) selectBuyer(ctx context.Context, lead *models.Lead, offer *models.Offer, config *models.RoutingPolicyConfig, postalCode, city string) (*store.EligibleBuyer, string, error) {
	exclusiveBuyerID, err := r.findExclusiveBuyer(ctx, offer.ID, postalCode, city)
	if err != nil {
		return nil, "", err
	}

	eligible, err := r.store.EligibleBuyers(ctx, offer.ID, offer.MarketID, postalCode, city)
	if err != nil {
		return nil, "", err
	}
	if config.RespectPause {
		eligible = filterByPause(eligible)
	}
	if config.RespectCapacity {
		eligible, err = r.filterByCapacity(ctx, offer.ID, eligible)
		if err != nil {
			return nil, "", err
		}
	}

	if exclusiveBuyerID != nil {
		for i := range eligible {
			if eligible[i].BuyerID == *exclusiveBuyerID {
				return &eligible[i], "", nil
			}
		}
		if config.ExclusivityFallback == models.ExclusivityFailClosed || config.ExclusivityFallback == "" {
			return nil, ReasonExclusiveBuyerIneligibleFailClosed, nil
		}
		// fallback_allowed: continue to regular selection below.
	}

	if len(eligible) == 0 {
		return nil, ReasonNoEligibleBuyers, nil
	}

	selected, err := r.selectByStrategy(ctx, lead, offer, config, eligible)
	if err != nil {
		return nil, "", err
	}
	if selected == nil {
		return nil, ReasonStrategySelectionFailed, nil
	}
	return selected, "", nil
}

func (r *Router) findExclusiveBuyer(ctx context.Context, offerID int64, postalCode, city string) (*int64, error) {
	if postalCode != "" {
		id, err := r.store.GetExclusiveBuyer(ctx, offerID, models.ScopeTypePostalCode, postalCode)
		if err != nil {
			return nil, err
		}
		if id != nil {
			return id, nil
		}
	}
	if city != "" {
		id, err := r.store.GetExclusiveBuyer(ctx, offerID, models.ScopeTypeCity, city)
		if err != nil {
			return nil, err
		}
		if id != nil {
			return id, nil
		}
	}
	return nil, nil
}

// filterByPause drops candidates whose pause_until is set and still in the
// future. Applied only when the routing policy's respect_pause is true.
func filterByPause(candidates []store.EligibleBuyer) []store.EligibleBuyer {
	out := make([]store.EligibleBuyer, 0, len(candidates))
	now := time.Now()
	for _, c := range candidates {
		if c.PauseUntil != nil && c.PauseUntil.After(now) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (r *Router) filterByCapacity(ctx context.Context, offerID int64, candidates []store.EligibleBuyer) ([]store.EligibleBuyer, error) {
	out := make([]store.EligibleBuyer, 0, len(candidates))
	for _, c := range candidates {
		if c.CapacityPerDay != nil {
			used, err := r.store.CapacityUsedToday(ctx, offerID, c.BuyerID)
			if err != nil {
				return nil, err
			}
			if used >= *c.CapacityPerDay {
				continue
			}
		}
		if c.CapacityPerHour != nil {
			used, err := r.store.CapacityUsedThisHour(ctx, offerID, c.BuyerID)
			if err != nil {
				return nil, err
			}
			if used >= *c.CapacityPerHour {
				continue
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *Router) selectByStrategy(ctx context.Context, lead *models.Lead, offer *models.Offer, config *models.RoutingPolicyConfig, eligible []store.EligibleBuyer) (*store.EligibleBuyer, error) {
	tieBreakers := config.TieBreakers
	if len(tieBreakers) == 0 {
		tieBreakers = models.DefaultTieBreakers
	}
	switch config.Strategy {
	case models.RoutingStrategyRotation:
		return r.selectByRotation(ctx, offer.ID, eligible, tieBreakers)
	case models.RoutingStrategyWeighted:
		return selectByWeighted(lead.ID, eligible, tieBreakers), nil
	case models.RoutingStrategyPriority, "":
		return selectByPriority(eligible, tieBreakers), nil
	default:
		return selectByPriority(eligible, tieBreakers), nil
	}
}

// tieBreakerLess reports whether a should be preferred over b, evaluating
// each configured tie-breaker in order until one is decisive. Falls back to
// buyer_id ascending if the list is exhausted without a decision.
func tieBreakerLess(a, b store.EligibleBuyer, tieBreakers []string) bool {
	for _, tb := range tieBreakers {
		switch tb {
		case "routing_priority_desc":
			if a.RoutingPriority != b.RoutingPriority {
				return a.RoutingPriority > b.RoutingPriority
			}
		case "routing_priority_asc":
			if a.RoutingPriority != b.RoutingPriority {
				return a.RoutingPriority < b.RoutingPriority
			}
		case "buyer_id_desc":
			if a.BuyerID != b.BuyerID {
				return a.BuyerID > b.BuyerID
			}
		case "buyer_id_asc":
			if a.BuyerID != b.BuyerID {
				return a.BuyerID < b.BuyerID
			}
		}
	}
	return a.BuyerID < b.BuyerID
}

// selectByPriority picks the highest routing_priority number, tie-broken by
// the configured (or default) tie-breakers.
func selectByPriority(eligible []store.EligibleBuyer, tieBreakers []string) *store.EligibleBuyer {
	if len(eligible) == 0 {
		return nil
	}
	best := &eligible[0]
	for i := 1; i < len(eligible); i++ {
		c := &eligible[i]
		if tieBreakerLess(*c, *best, tieBreakers) {
			best = c
		}
	}
	return best
}

// selectByRotation restricts to the top priority tier (the highest
// routing_priority value present), then picks whichever buyer in that tier
// was delivered to longest ago. A buyer never delivered to sorts first.
// Remaining ties within the tier fall back to the configured tie-breakers.
func (r *Router) selectByRotation(ctx context.Context, offerID int64, eligible []store.EligibleBuyer, tieBreakers []string) (*store.EligibleBuyer, error) {
	if len(eligible) == 0 {
		return nil, nil
	}

	topPriority := eligible[0].RoutingPriority
	for _, c := range eligible {
		if c.RoutingPriority > topPriority {
			topPriority = c.RoutingPriority
		}
	}

	tier := make([]store.EligibleBuyer, 0, len(eligible))
	buyerIDs := make([]int64, 0, len(eligible))
	for _, c := range eligible {
		if c.RoutingPriority == topPriority {
			tier = append(tier, c)
			buyerIDs = append(buyerIDs, c.BuyerID)
		}
	}

	lastDelivered, err := r.store.LastDeliveredAtByBuyer(ctx, offerID, buyerIDs)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(tier, func(i, j int) bool {
		ti, tj := lastDelivered[tier[i].BuyerID], lastDelivered[tier[j].BuyerID]
		switch {
		case ti == nil && tj == nil:
			return tieBreakerLess(tier[i], tier[j], tieBreakers)
		case ti == nil:
			return true
		case tj == nil:
			return false
		case !ti.Equal(*tj):
			return ti.Before(*tj)
		default:
			return tieBreakerLess(tier[i], tier[j], tieBreakers)
		}
	})

	return &tier[0], nil
}

// selectByWeighted treats routing_priority itself as the selection weight
// and seeds math/rand with the lead's ID so repeated routing attempts for
// the same lead (e.g. a replay) are stable. Falls back to priority
// selection when every eligible buyer's weight is zero or negative.
func selectByWeighted(leadID int64, eligible []store.EligibleBuyer, tieBreakers []string) *store.EligibleBuyer {
	if len(eligible) == 0 {
		return nil
	}

	total := 0.0
	for _, c := range eligible {
		if c.RoutingPriority > 0 {
			total += float64(c.RoutingPriority)
		}
	}
	if total <= 0 {
		return selectByPriority(eligible, tieBreakers)
	}

	rng := rand.New(rand.NewSource(leadID))
	roll := rng.Float64() * total
	acc := 0.0
	for i := range eligible {
		if eligible[i].RoutingPriority <= 0 {
			continue
		}
		acc += float64(eligible[i].RoutingPriority)
		if roll < acc {
			return &eligible[i]
		}
	}
	return &eligible[len(eligible)-1]
}

// effectivePrice resolves BuyerOffer.price_per_lead override else
// Offer.default_price.
func (r *Router) effectivePrice(ctx context.Context, buyerID int64, offer *models.Offer) float64 {
	bo, err := r.store.GetBuyerOffer(ctx, buyerID, offer.ID)
	if err == nil && bo != nil && bo.PricePerLead != nil {
		return *bo.PricePerLead
	}
	return offer.DefaultPrice
}

func (r *Router) audit(ctx context.Context, leadID int64, outcome string) {
	_ = r.store.InsertStateTransition(ctx, &models.StateTransition{
		LeadID:    leadID,
		Component: "route",
		Outcome:   outcome,
	})
}
