package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"leadgen/internal/broker"
	"leadgen/internal/deliver"
	"leadgen/internal/models"
	"leadgen/internal/queue"
	"leadgen/internal/util"
)

// Store is the slice of internal/store the delivery worker depends on.
type Store interface {
	GetLeadByID(ctx context.Context, id int64) (*models.Lead, error)
	GetBuyer(ctx context.Context, id int64) (*models.Buyer, error)
	GetBuyerOffer(ctx context.Context, buyerID, offerID int64) (*models.BuyerOffer, error)
	GetSourceByID(ctx context.Context, id int64) (*models.Source, error)
}

// DeliveryWorker drains the Redis Streams delivery queue and executes one
// webhook attempt per task, re-enqueueing after the configured backoff when
// the attempt fails transiently and the lead still has retry budget left.
type DeliveryWorker struct {
	queue      *queue.Queue
	store      Store
	executor   *deliver.Executor
	publisher  *broker.EventPublisher
	consumerID string
}

// NewDeliveryWorker builds a DeliveryWorker. consumerID should be unique per
// process so XREADGROUP's pending-entries list can attribute in-flight
// tasks correctly.
func NewDeliveryWorker(q *queue.Queue, s Store, executor *deliver.Executor, publisher *broker.EventPublisher, consumerID string) *DeliveryWorker {
	return &DeliveryWorker{queue: q, store: s, executor: executor, publisher: publisher, consumerID: consumerID}
}

// Run polls the queue until ctx is cancelled, dispatching each task to
// attemptDelivery.
func (w *DeliveryWorker) Run(ctx context.Context) error {
	zap.L().Info("starting delivery worker", zap.String("consumer", w.consumerID))
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("delivery worker stopping", zap.String("consumer", w.consumerID))
			return ctx.Err()
		default:
		}

		tasks, err := w.queue.Dequeue(ctx, w.consumerID, 10, 5*time.Second)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			zap.L().Error("dequeue failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, task := range tasks {
			w.attemptDelivery(ctx, task)
		}
	}
}

func (w *DeliveryWorker) attemptDelivery(ctx context.Context, task queue.Task) {
	start := time.Now()
	lead, err := w.store.GetLeadByID(ctx, task.LeadID)
	if err != nil {
		zap.L().Error("load lead for delivery failed", zap.Int64("lead_id", task.LeadID), zap.Error(err))
		return
	}
	if lead.Status != models.LeadStatusRouted || lead.BuyerID == nil {
		// Already delivered by a concurrent attempt, or rerouted away; drop
		// the task without retrying.
		_ = w.queue.Ack(ctx, task.MessageID)
		return
	}

	buyer, err := w.store.GetBuyer(ctx, *lead.BuyerID)
	if err != nil {
		zap.L().Error("load buyer for delivery failed", zap.Int64("buyer_id", *lead.BuyerID), zap.Error(err))
		return
	}
	buyerOffer, err := w.store.GetBuyerOffer(ctx, *lead.BuyerID, lead.OfferID)
	if err != nil {
		zap.L().Error("load buyer offer for delivery failed", zap.Int64("buyer_id", *lead.BuyerID), zap.Error(err))
		return
	}

	source, err := w.store.GetSourceByID(ctx, lead.SourceID)
	if err != nil {
		zap.L().Error("load source for delivery failed", zap.Int64("source_id", lead.SourceID), zap.Error(err))
		return
	}

	webhookURL := ""
	if buyerOffer.WebhookURLOverride != nil {
		webhookURL = *buyerOffer.WebhookURLOverride
	} else if buyer.WebhookURL != nil {
		webhookURL = *buyer.WebhookURL
	}
	webhookSecret := ""
	if buyer.WebhookSecret != nil {
		webhookSecret = *buyer.WebhookSecret
	}

	result, err := w.executor.Attempt(ctx, lead, source.SourceKey, webhookURL, webhookSecret, *lead.BuyerID, lead.Price)
	util.DeliveryLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		zap.L().Error("delivery attempt errored", zap.Int64("lead_id", lead.ID), zap.Error(err))
		return
	}
	util.DeliveryAttemptsTotal.WithLabelValues(result.Outcome).Inc()

	switch result.Outcome {
	case models.OutcomeSuccess:
		_ = w.queue.Ack(ctx, task.MessageID)
		if result.Delivered {
			util.LeadsDeliveredTotal.Inc()
			if w.publisher != nil {
				_ = w.publisher.PublishLeadDelivered(ctx, &models.LeadDeliveredEvent{
					BaseEvent: models.BaseEvent{
						EventID:   uuid.New().String(),
						EventType: models.EventTypeLeadDelivered,
						Timestamp: time.Now(),
					},
					LeadID:        lead.ID,
					BuyerID:       *lead.BuyerID,
					DeliveryID:    result.DeliveryID,
					AttemptNumber: result.AttemptNumber,
				})
			}
		}
	case models.OutcomePermanentFailure:
		// Not retryable; drop it and let monitoring surface the
		// retry_exhausted / rejection path through stuck-lead alerts.
		_ = w.queue.Ack(ctx, task.MessageID)
	default:
		if result.AttemptNumber >= deliver.DefaultConfig().MaxAttempts {
			util.DeliveryRetriesExhaustedTotal.Inc()
			_ = w.queue.Ack(ctx, task.MessageID)
			return
		}
		_ = w.queue.Ack(ctx, task.MessageID)
		delay := deliver.DefaultConfig().NextDelay(result.AttemptNumber + 1)
		go w.reenqueueAfter(task.LeadID, delay)
	}
}

func (w *DeliveryWorker) reenqueueAfter(leadID int64, delay time.Duration) {
	time.Sleep(delay)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := w.queue.Enqueue(ctx, leadID); err != nil {
		zap.L().Error("re-enqueue after delay failed", zap.Int64("lead_id", leadID), zap.Error(err))
	}
}

// ReclaimLoop periodically reclaims tasks abandoned by a crashed consumer,
// handing them back to this worker's own consumer ID.
func (w *DeliveryWorker) ReclaimLoop(ctx context.Context, interval, minIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tasks, err := w.queue.ReclaimStuck(ctx, w.consumerID, minIdle, 50)
			if err != nil {
				zap.L().Error("reclaim stuck deliveries failed", zap.Error(err))
				continue
			}
			for _, task := range tasks {
				w.attemptDelivery(ctx, task)
			}
		}
	}
}

// DomainEventWorker consumes the Kafka domain-event topic for side
// consumers (billing, analytics) that live outside the core pipeline. The
// core pipeline never reads its own events back.
type DomainEventWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewDomainEventWorker wires a DomainEventWorker with the given handlers.
func NewDomainEventWorker(consumer *broker.Consumer, eventHandler *broker.EventHandler) *DomainEventWorker {
	return &DomainEventWorker{consumer: consumer, eventHandler: eventHandler}
}

// Start starts the worker
func (w *DomainEventWorker) Start(ctx context.Context) error {
	zap.L().Info("starting domain event worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *DomainEventWorker) Stop() error {
	zap.L().Info("stopping domain event worker")
	return w.consumer.Close()
}
