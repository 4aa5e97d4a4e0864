package models

import "time"

// Domain event types published to the broker for downstream analytics
// consumers. The core never reads these back.
const (
	EventTypeLeadValidated = "LEAD_VALIDATED"
	EventTypeLeadRouted    = "LEAD_ROUTED"
	EventTypeLeadDelivered = "LEAD_DELIVERED"
	EventTypeLeadRejected  = "LEAD_REJECTED"
)

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// LeadValidatedEvent is published once a lead clears the validator.
type LeadValidatedEvent struct {
	BaseEvent
	LeadID  int64 `json:"lead_id"`
	OfferID int64 `json:"offer_id"`
}

// LeadRoutedEvent is published once a lead is assigned a buyer.
type LeadRoutedEvent struct {
	BaseEvent
	LeadID  int64   `json:"lead_id"`
	OfferID int64   `json:"offer_id"`
	BuyerID int64   `json:"buyer_id"`
	Price   float64 `json:"price"`
}

// LeadDeliveredEvent is published once a delivery attempt succeeds.
type LeadDeliveredEvent struct {
	BaseEvent
	LeadID        int64  `json:"lead_id"`
	BuyerID       int64  `json:"buyer_id"`
	DeliveryID    string `json:"delivery_id"`
	AttemptNumber int    `json:"attempt_number"`
}

// LeadRejectedEvent is published when the pipeline terminates a lead without
// delivery (validation failure or a reject-action duplicate).
type LeadRejectedEvent struct {
	BaseEvent
	LeadID int64  `json:"lead_id"`
	Reason string `json:"reason"`
}
