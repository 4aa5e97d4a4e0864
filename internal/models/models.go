package models

import "time"

// Source kinds.
const (
	SourceKindLandingPage = "landing_page"
	SourceKindPartnerAPI  = "partner_api"
	SourceKindEmbedForm   = "embed_form"
)

// Lead statuses. Monotonic received -> validated -> routed -> delivered,
// with rejected absorbing from received or validated, and accepted as a
// terminal status the billing collaborator may set after delivery.
const (
	LeadStatusReceived  = "received"
	LeadStatusValidated = "validated"
	LeadStatusRouted    = "routed"
	LeadStatusDelivered = "delivered"
	LeadStatusAccepted  = "accepted"
	LeadStatusRejected  = "rejected"
)

// Lead billing statuses.
const (
	BillingStatusPending  = "pending"
	BillingStatusBilled   = "billed"
	BillingStatusPaid     = "paid"
	BillingStatusDisputed = "disputed"
	BillingStatusRefunded = "refunded"
)

// Scope types shared by BuyerServiceArea and OfferExclusivity.
const (
	ScopeTypePostalCode = "postal_code"
	ScopeTypeCity       = "city"
)

// DeliveryAttempt outcomes.
const (
	OutcomeSuccess          = "success"
	OutcomeTransientFailure = "transient_failure"
	OutcomePermanentFailure = "permanent_failure"
	OutcomeTimeout          = "timeout"
)

// Market is immutable from the core's viewpoint.
type Market struct {
	ID       int64  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Timezone string `db:"timezone" json:"timezone"`
	Currency string `db:"currency" json:"currency"`
	IsActive bool   `db:"is_active" json:"is_active"`
}

// Vertical is a stable, sluggified category.
type Vertical struct {
	ID       int64  `db:"id" json:"id"`
	Slug     string `db:"slug" json:"slug"`
	Name     string `db:"name" json:"name"`
	IsActive bool   `db:"is_active" json:"is_active"`
}

// Offer is the unit of sale: one vertical, one market, one pair of policies.
type Offer struct {
	ID                 int64     `db:"id" json:"id"`
	MarketID           int64     `db:"market_id" json:"market_id"`
	VerticalID         int64     `db:"vertical_id" json:"vertical_id"`
	Name               string    `db:"name" json:"name"`
	ValidationPolicyID int64     `db:"validation_policy_id" json:"validation_policy_id"`
	RoutingPolicyID    int64     `db:"routing_policy_id" json:"routing_policy_id"`
	DefaultPrice       float64   `db:"default_price" json:"default_price"`
	IsActive           bool      `db:"is_active" json:"is_active"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// Source is the ingress point bound to exactly one Offer.
type Source struct {
	ID           int64     `db:"id" json:"id"`
	OfferID      int64     `db:"offer_id" json:"offer_id"`
	SourceKey    string    `db:"source_key" json:"source_key"`
	Kind         string    `db:"kind" json:"kind"`
	Hostname     *string   `db:"hostname" json:"hostname,omitempty"`
	PathPrefix   *string   `db:"path_prefix" json:"path_prefix,omitempty"`
	HashedAPIKey *string   `db:"hashed_api_key" json:"-"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// ValidationPolicy binds a named, versioned rules document to an Offer.
type ValidationPolicy struct {
	ID       int64  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Version  int    `db:"version" json:"version"`
	RulesRaw []byte `db:"rules" json:"rules"`
	IsActive bool   `db:"is_active" json:"is_active"`
}

// RoutingPolicy binds a named, versioned config document to an Offer.
type RoutingPolicy struct {
	ID        int64  `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	Version   int    `db:"version" json:"version"`
	ConfigRaw []byte `db:"config" json:"config"`
	IsActive  bool   `db:"is_active" json:"is_active"`
}

// Buyer is the recipient of delivered leads.
type Buyer struct {
	ID            int64     `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Email         string    `db:"email" json:"email"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	Balance       float64   `db:"balance" json:"balance"`
	CreditLimit   *float64  `db:"credit_limit" json:"credit_limit,omitempty"`
	WebhookURL    *string   `db:"webhook_url" json:"webhook_url,omitempty"`
	WebhookSecret *string   `db:"webhook_secret" json:"-"`
	EmailNotify   bool      `db:"email_notifications" json:"email_notifications"`
	SMSNotify     bool      `db:"sms_notifications" json:"sms_notifications"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// BuyerOffer is a buyer's enrollment in an Offer.
type BuyerOffer struct {
	ID                 int64      `db:"id" json:"id"`
	BuyerID            int64      `db:"buyer_id" json:"buyer_id"`
	OfferID            int64      `db:"offer_id" json:"offer_id"`
	IsActive           bool       `db:"is_active" json:"is_active"`
	RoutingPriority    int        `db:"routing_priority" json:"routing_priority"`
	CapacityPerDay     *int       `db:"capacity_per_day" json:"capacity_per_day,omitempty"`
	CapacityPerHour    *int       `db:"capacity_per_hour" json:"capacity_per_hour,omitempty"`
	PricePerLead       *float64   `db:"price_per_lead" json:"price_per_lead,omitempty"`
	WebhookURLOverride *string    `db:"webhook_url_override" json:"webhook_url_override,omitempty"`
	MinBalanceRequired *float64   `db:"min_balance_required" json:"min_balance_required,omitempty"`
	PauseUntil         *time.Time `db:"pause_until" json:"pause_until,omitempty"`
}

// BuyerServiceArea is a buyer's coverage grant within a Market.
type BuyerServiceArea struct {
	ID         int64  `db:"id" json:"id"`
	BuyerID    int64  `db:"buyer_id" json:"buyer_id"`
	MarketID   int64  `db:"market_id" json:"market_id"`
	ScopeType  string `db:"scope_type" json:"scope_type"`
	ScopeValue string `db:"scope_value" json:"scope_value"`
	IsActive   bool   `db:"is_active" json:"is_active"`
}

// OfferExclusivity grants one buyer sole eligibility for a scope within an
// Offer. At most one active row per (offer, scope_type, scope_value).
type OfferExclusivity struct {
	ID         int64  `db:"id" json:"id"`
	OfferID    int64  `db:"offer_id" json:"offer_id"`
	BuyerID    int64  `db:"buyer_id" json:"buyer_id"`
	ScopeType  string `db:"scope_type" json:"scope_type"`
	ScopeValue string `db:"scope_value" json:"scope_value"`
	IsActive   bool   `db:"is_active" json:"is_active"`
}

// Lead is the unit the whole pipeline moves through. Its classification
// tuple (MarketID, OfferID, VerticalID, SourceID) is immutable after insert.
type Lead struct {
	ID               int64      `db:"id" json:"id"`
	SourceID         int64      `db:"source_id" json:"source_id"`
	OfferID          int64      `db:"offer_id" json:"offer_id"`
	MarketID         int64      `db:"market_id" json:"market_id"`
	VerticalID       int64      `db:"vertical_id" json:"vertical_id"`
	IdempotencyKey   string     `db:"idempotency_key" json:"idempotency_key"`
	Name             string     `db:"name" json:"name"`
	Email            string     `db:"email" json:"email"`
	Phone            string     `db:"phone" json:"phone"`
	PostalCode       string     `db:"postal_code" json:"postal_code"`
	CountryCode      string     `db:"country_code" json:"country_code"`
	City             *string    `db:"city" json:"city,omitempty"`
	RegionCode       *string    `db:"region_code" json:"region_code,omitempty"`
	Message          *string    `db:"message" json:"message,omitempty"`
	UTMSource        *string    `db:"utm_source" json:"utm_source,omitempty"`
	UTMMedium        *string    `db:"utm_medium" json:"utm_medium,omitempty"`
	UTMCampaign      *string    `db:"utm_campaign" json:"utm_campaign,omitempty"`
	NormalizedEmail  *string    `db:"normalized_email" json:"normalized_email,omitempty"`
	NormalizedPhone  *string    `db:"normalized_phone" json:"normalized_phone,omitempty"`
	Status           string     `db:"status" json:"status"`
	BillingStatus    string     `db:"billing_status" json:"billing_status"`
	BuyerID          *int64     `db:"buyer_id" json:"buyer_id,omitempty"`
	Price            *float64   `db:"price" json:"price,omitempty"`
	IsDuplicate      bool       `db:"is_duplicate" json:"is_duplicate"`
	DuplicateOfID    *int64     `db:"duplicate_of_lead_id" json:"duplicate_of,omitempty"`
	ValidationReason *string    `db:"validation_reason" json:"validation_reason,omitempty"`
	RejectionReason  *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`
	RoutedAt         *time.Time `db:"routed_at" json:"routed_at,omitempty"`
	DeliveredAt      *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	AcceptedAt       *time.Time `db:"accepted_at" json:"accepted_at,omitempty"`
	RejectedAt       *time.Time `db:"rejected_at" json:"rejected_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// DeliveryAttempt is an append-only record of one outbound webhook attempt.
type DeliveryAttempt struct {
	ID            int64     `db:"id" json:"id"`
	LeadID        int64     `db:"lead_id" json:"lead_id"`
	AttemptNumber int       `db:"attempt_number" json:"attempt_number"`
	Outcome       string    `db:"outcome" json:"outcome"`
	HTTPStatus    *int      `db:"http_status" json:"http_status,omitempty"`
	ErrorMessage  *string   `db:"error_message" json:"error_message,omitempty"`
	DeliveryID    string    `db:"delivery_id" json:"delivery_id"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// DuplicateEvent is an audit record binding a lead to its matched prior lead.
type DuplicateEvent struct {
	ID             int64     `db:"id" json:"id"`
	LeadID         int64     `db:"lead_id" json:"lead_id"`
	MatchedLeadID  int64     `db:"matched_lead_id" json:"matched_lead_id"`
	MatchKeysRaw   string    `db:"match_keys" json:"match_keys"`
	WindowHours    int       `db:"window_hours" json:"window_hours"`
	MatchMode      string    `db:"match_mode" json:"match_mode"`
	IncludeSources string    `db:"include_sources" json:"include_sources"`
	Action         string    `db:"action" json:"action"`
	ReasonCode     string    `db:"reason_code" json:"reason_code"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// StateTransition is a generic append-only audit log of guarded-transition
// outcomes that are not errors per se (concurrent_routing_attempt,
// no_eligible_buyers, already_delivered, retry_exhausted, ...) but must
// remain observable.
type StateTransition struct {
	ID        int64     `db:"id" json:"id"`
	LeadID    int64     `db:"lead_id" json:"lead_id"`
	Component string    `db:"component" json:"component"`
	Outcome   string    `db:"outcome" json:"outcome"`
	Detail    *string   `db:"detail" json:"detail,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
