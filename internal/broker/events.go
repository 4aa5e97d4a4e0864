package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"leadgen/internal/models"

	"go.uber.org/zap"

	"github.com/segmentio/kafka-go"
)

// EventPublisher publishes the lead pipeline's domain events for downstream
// analytics and billing consumers. Nothing inside the core pipeline reads
// these back.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishLeadValidated publishes a LeadValidated event
func (ep *EventPublisher) PublishLeadValidated(ctx context.Context, event *models.LeadValidatedEvent) error {
	key := fmt.Sprintf("lead-%d", event.LeadID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishLeadRouted publishes a LeadRouted event
func (ep *EventPublisher) PublishLeadRouted(ctx context.Context, event *models.LeadRoutedEvent) error {
	key := fmt.Sprintf("lead-%d", event.LeadID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishLeadDelivered publishes a LeadDelivered event
func (ep *EventPublisher) PublishLeadDelivered(ctx context.Context, event *models.LeadDeliveredEvent) error {
	key := fmt.Sprintf("lead-%d", event.LeadID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishLeadRejected publishes a LeadRejected event
func (ep *EventPublisher) PublishLeadRejected(ctx context.Context, event *models.LeadRejectedEvent) error {
	key := fmt.Sprintf("lead-%d", event.LeadID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes inbound domain events read from the broker. The core
// pipeline does not consume its own events; this exists for the billing and
// analytics side-consumers described in SPEC_FULL.md.
type EventHandler struct {
	onLeadDelivered func(context.Context, *models.LeadDeliveredEvent) error
	onLeadRejected  func(context.Context, *models.LeadRejectedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnLeadDelivered registers a handler for LeadDelivered events
func (eh *EventHandler) OnLeadDelivered(handler func(context.Context, *models.LeadDeliveredEvent) error) {
	eh.onLeadDelivered = handler
}

// OnLeadRejected registers a handler for LeadRejected events
func (eh *EventHandler) OnLeadRejected(handler func(context.Context, *models.LeadRejectedEvent) error) {
	eh.onLeadRejected = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	zap.L().Debug("handling event", zap.String("type", baseEvent.EventType), zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeLeadDelivered:
		if eh.onLeadDelivered != nil {
			var event models.LeadDeliveredEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal LeadDelivered event: %w", err)
			}
			return eh.onLeadDelivered(ctx, &event)
		}

	case models.EventTypeLeadRejected:
		if eh.onLeadRejected != nil {
			var event models.LeadRejectedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal LeadRejected event: %w", err)
			}
			return eh.onLeadRejected(ctx, &event)
		}

	default:
		zap.L().Debug("unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
