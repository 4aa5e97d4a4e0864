package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"leadgen/internal/broker"
	"leadgen/internal/classify"
	"leadgen/internal/duplicate"
	"leadgen/internal/idempotency"
	"leadgen/internal/models"
	"leadgen/internal/normalize"
	"leadgen/internal/queue"
	"leadgen/internal/route"
	"leadgen/internal/util"
	"leadgen/internal/validate"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidIdempotencyKey is surfaced to the HTTP layer as a 400.
var ErrInvalidIdempotencyKey = idempotency.ErrInvalidKey

// Store is the slice of internal/store the ingestion service depends on
// directly, plus every narrower Store interface its collaborators (the
// classifier, the idempotency acquirer, the duplicate engine, the router)
// declare for themselves. Composing the interface this way, rather than
// depending on the concrete *store.Store, keeps the service substitutable
// in tests the same way worker.Store and deliver.Store are.
type Store interface {
	classify.Store
	idempotency.Store
	duplicate.Store
	route.Store

	GetLeadByID(ctx context.Context, id int64) (*models.Lead, error)
	GetValidationPolicy(ctx context.Context, offerID int64) (*models.ValidationPolicy, error)
	GetRoutingPolicy(ctx context.Context, offerID int64) (*models.RoutingPolicy, error)
	UpdateLeadValidated(ctx context.Context, leadID int64, accepted bool, reason string) (bool, error)
}

// IngestionService runs the full synchronous front door: classify,
// idempotent insert, normalize, duplicate detection, validation, and
// routing. Delivery itself is handed off to the queue and the async
// DeliveryWorker.
type IngestionService struct {
	store          Store
	queue          *queue.Queue
	classifier     *classify.Classifier
	idempotency    *idempotency.Acquirer
	duplicate      *duplicate.Engine
	router         *route.Router
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewIngestionService wires an IngestionService over its collaborators.
func NewIngestionService(
	s Store,
	cache duplicate.Cache,
	q *queue.Queue,
	eventPublisher *broker.EventPublisher,
) *IngestionService {
	return &IngestionService{
		store:          s,
		queue:          q,
		classifier:     classify.New(s),
		idempotency:    idempotency.New(s),
		duplicate:      duplicate.New(s, cache),
		router:         route.New(s),
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// CreateLeadRequest is the JSON body of POST /api/leads.
type CreateLeadRequest struct {
	Source         string  `json:"source,omitempty"`
	SourceKey      string  `json:"source_key,omitempty"`
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
	Name           string  `json:"name" binding:"required"`
	Email          string  `json:"email" binding:"required"`
	Phone          string  `json:"phone" binding:"required"`
	PostalCode     string  `json:"postal_code" binding:"required"`
	CountryCode    string  `json:"country_code,omitempty"`
	City           string  `json:"city,omitempty"`
	RegionCode     string  `json:"region_code,omitempty"`
	Message        string  `json:"message,omitempty"`
	UTMSource      string  `json:"utm_source,omitempty"`
	UTMMedium      string  `json:"utm_medium,omitempty"`
	UTMCampaign    string  `json:"utm_campaign,omitempty"`
	Consent        *bool   `json:"consent,omitempty"`
	GDPRConsent    *bool   `json:"gdpr_consent,omitempty"`
	SourceID       *int64  `json:"-"` // populated from the optional admin header, not the body
}

// CreateLeadResponse is the 202 body of POST /api/leads.
type CreateLeadResponse struct {
	LeadID     int64    `json:"lead_id"`
	Status     string   `json:"status"`
	BuyerID    *int64   `json:"buyer_id,omitempty"`
	SourceID   int64    `json:"source_id"`
	OfferID    int64    `json:"offer_id"`
	MarketID   int64    `json:"market_id"`
	VerticalID int64    `json:"vertical_id"`
	Price      *float64 `json:"price,omitempty"`
}

// CreateLead runs the full ingestion pipeline for one inbound submission.
func (s *IngestionService) CreateLead(ctx context.Context, req *CreateLeadRequest, hostname, path string) (*CreateLeadResponse, error) {
	ctx, span := util.StartSpan(ctx, "IngestionService.CreateLead")
	defer span.End()

	source, offer, err := s.classifier.Resolve(ctx, classify.Request{
		SourceID:  req.SourceID,
		SourceKey: stringPtrOrNil(req.SourceKey),
		Hostname:  hostname,
		Path:      path,
	})
	if err != nil {
		util.ClassificationFailedTotal.WithLabelValues(err.Error()).Inc()
		return nil, err
	}

	countryCode := req.CountryCode
	if countryCode == "" {
		countryCode = "US"
	}

	key, err := idempotency.ResolveKey(req.IdempotencyKey, source.ID, req.Name, req.Email, req.Phone, countryCode, req.PostalCode, req.Message)
	if err != nil {
		return nil, err
	}

	lead := &models.Lead{
		SourceID:       source.ID,
		OfferID:        offer.ID,
		MarketID:       offer.MarketID,
		VerticalID:     offer.VerticalID,
		IdempotencyKey: key,
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		PostalCode:     req.PostalCode,
		CountryCode:    countryCode,
		City:           stringPtrOrNil(req.City),
		RegionCode:     stringPtrOrNil(req.RegionCode),
		Message:        stringPtrOrNil(req.Message),
		UTMSource:      stringPtrOrNil(req.UTMSource),
		UTMMedium:      stringPtrOrNil(req.UTMMedium),
		UTMCampaign:    stringPtrOrNil(req.UTMCampaign),
		Status:         models.LeadStatusReceived,
		BillingStatus:  models.BillingStatusPending,
	}

	createdNew, err := s.idempotency.Acquire(ctx, lead)
	if err != nil {
		return nil, fmt.Errorf("idempotent insert: %w", err)
	}

	if !createdNew {
		util.LeadsIdempotentReplayTotal.WithLabelValues(source.SourceKey).Inc()
		existing, err := s.store.GetLeadByID(ctx, lead.ID)
		if err != nil {
			return nil, err
		}
		s.logger.Info("ingestion replay", zap.Int64("lead_id", existing.ID), zap.String("idempotency_key", key))
		return s.toResponse(existing, source, offer), nil
	}

	util.LeadsIngestedTotal.WithLabelValues(source.SourceKey).Inc()
	s.logger.Info("lead ingested", zap.Int64("lead_id", lead.ID), zap.Int64("offer_id", offer.ID))

	if err := s.runPipeline(ctx, lead, source, offer); err != nil {
		s.logger.Error("pipeline stage failed after ingestion", zap.Int64("lead_id", lead.ID), zap.Error(err))
	}

	final, err := s.store.GetLeadByID(ctx, lead.ID)
	if err != nil {
		return nil, err
	}
	return s.toResponse(final, source, offer), nil
}

// runPipeline advances a freshly-inserted lead through validation rules ->
// normalize -> duplicate detection -> validated transition -> route ->
// enqueue. A validation rejection is persisted here; duplicate rejection
// and no-route outcomes are persisted by the duplicate engine and router.
func (s *IngestionService) runPipeline(ctx context.Context, lead *models.Lead, source *models.Source, offer *models.Offer) error {
	validationPolicy, err := s.store.GetValidationPolicy(ctx, offer.ID)
	if err != nil {
		return fmt.Errorf("load validation policy: %w", err)
	}
	if validationPolicy == nil {
		return errors.New("validation_policy_not_configured")
	}
	rules, err := validate.ParseRules(validationPolicy.RulesRaw)
	if err != nil {
		return fmt.Errorf("parse validation policy: %w", err)
	}

	result := validate.Validate(lead, rules)
	if !result.Accepted {
		util.LeadsRejectedTotal.WithLabelValues(result.Reason).Inc()
		if _, err := s.store.UpdateLeadValidated(ctx, lead.ID, false, result.Reason); err != nil {
			return fmt.Errorf("reject lead: %w", err)
		}
		s.publishRejected(ctx, lead.ID, result.Reason)
		return nil
	}

	var normPhone, normEmail *string
	if p := normalize.Phone(lead.Phone); p != "" {
		normPhone = &p
	}
	if em := normalize.Email(lead.Email); em != "" {
		normEmail = &em
	}
	if err := s.store.SetNormalizedFields(ctx, lead.ID, normPhone, normEmail); err != nil {
		return fmt.Errorf("persist normalized fields: %w", err)
	}

	if rules.Duplicate != nil && rules.Duplicate.Enabled {
		dupResult, err := s.duplicate.Detect(ctx, lead, source.ID, rules.Duplicate)
		if err != nil {
			return fmt.Errorf("duplicate detection: %w", err)
		}
		if dupResult.IsDuplicate {
			util.DuplicateActionsTotal.WithLabelValues(dupResult.Action).Inc()
			if dupResult.Action == models.DuplicateActionReject {
				util.LeadsRejectedTotal.WithLabelValues(rules.Duplicate.ReasonCode).Inc()
				s.publishRejected(ctx, lead.ID, rules.Duplicate.ReasonCode)
				return nil
			}
		}
	}

	ok, err := s.store.UpdateLeadValidated(ctx, lead.ID, true, "")
	if err != nil {
		return fmt.Errorf("mark validated: %w", err)
	}
	if !ok {
		return nil
	}
	util.LeadsValidatedTotal.Inc()
	s.publishValidated(ctx, lead.ID, offer.ID)

	routingPolicy, err := s.store.GetRoutingPolicy(ctx, offer.ID)
	if err != nil {
		return fmt.Errorf("load routing policy: %w", err)
	}
	if routingPolicy == nil {
		return errors.New("routing_policy_not_configured")
	}
	var routingConfig models.RoutingPolicyConfig
	if err := json.Unmarshal(routingPolicy.ConfigRaw, &routingConfig); err != nil {
		return fmt.Errorf("parse routing policy: %w", err)
	}

	start := time.Now()
	lead.Status = models.LeadStatusValidated
	routeResult, err := s.router.Route(ctx, lead, offer, &routingConfig)
	util.RoutingLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("route lead: %w", err)
	}
	if routeResult.NoRouteReason != "" {
		util.RoutingNoRouteTotal.WithLabelValues(routeResult.NoRouteReason).Inc()
		return nil
	}

	util.LeadsRoutedTotal.Inc()
	s.publishRouted(ctx, lead.ID, offer.ID, routeResult.BuyerID, routeResult.Price)

	if _, err := s.queue.Enqueue(ctx, lead.ID); err != nil {
		return fmt.Errorf("enqueue delivery: %w", err)
	}
	return nil
}

func (s *IngestionService) publishValidated(ctx context.Context, leadID, offerID int64) {
	if s.eventPublisher == nil {
		return
	}
	_ = s.eventPublisher.PublishLeadValidated(ctx, &models.LeadValidatedEvent{
		BaseEvent: models.BaseEvent{EventID: uuid.New().String(), EventType: models.EventTypeLeadValidated, Timestamp: time.Now()},
		LeadID:    leadID,
		OfferID:   offerID,
	})
}

func (s *IngestionService) publishRouted(ctx context.Context, leadID, offerID, buyerID int64, price float64) {
	if s.eventPublisher == nil {
		return
	}
	_ = s.eventPublisher.PublishLeadRouted(ctx, &models.LeadRoutedEvent{
		BaseEvent: models.BaseEvent{EventID: uuid.New().String(), EventType: models.EventTypeLeadRouted, Timestamp: time.Now()},
		LeadID:    leadID,
		OfferID:   offerID,
		BuyerID:   buyerID,
		Price:     price,
	})
}

func (s *IngestionService) publishRejected(ctx context.Context, leadID int64, reason string) {
	if s.eventPublisher == nil {
		return
	}
	_ = s.eventPublisher.PublishLeadRejected(ctx, &models.LeadRejectedEvent{
		BaseEvent: models.BaseEvent{EventID: uuid.New().String(), EventType: models.EventTypeLeadRejected, Timestamp: time.Now()},
		LeadID:    leadID,
		Reason:    reason,
	})
}

func (s *IngestionService) toResponse(lead *models.Lead, source *models.Source, offer *models.Offer) *CreateLeadResponse {
	return &CreateLeadResponse{
		LeadID:     lead.ID,
		Status:     lead.Status,
		BuyerID:    lead.BuyerID,
		SourceID:   source.ID,
		OfferID:    offer.ID,
		MarketID:   offer.MarketID,
		VerticalID: offer.VerticalID,
		Price:      lead.Price,
	}
}

// GetLead retrieves a lead by ID.
func (s *IngestionService) GetLead(ctx context.Context, leadID int64) (*models.Lead, error) {
	return s.store.GetLeadByID(ctx, leadID)
}

func stringPtrOrNil(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
