package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"leadgen/internal/models"
	"leadgen/internal/queue"
	"leadgen/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *queue.Queue {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q, err := queue.New(context.Background(), rdb, "deliveries", "delivery-workers")
	require.NoError(t, err)
	return q
}

func pendingCount(t *testing.T, q *queue.Queue) int {
	tasks, err := q.Dequeue(context.Background(), "counter", 100, 0)
	require.NoError(t, err)
	return len(tasks)
}

type fakeStore struct {
	source          *models.Source
	offer           *models.Offer
	validationRules []byte
	routingConfig   []byte
	eligible        []store.EligibleBuyer

	leads          map[int64]*models.Lead
	nextID         int64
	insertedByKey  map[string]int64
	validatedCalls []bool
	routedCalls    int
	normalizedLead int64
	normalizedEml  *string
	normalizedPhn  *string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		leads:         map[int64]*models.Lead{},
		insertedByKey: map[string]int64{},
	}
}

func (f *fakeStore) GetSourceByID(ctx context.Context, id int64) (*models.Source, error) { return f.source, nil }
func (f *fakeStore) GetSourceByKey(ctx context.Context, key string) (*models.Source, error) {
	return f.source, nil
}
func (f *fakeStore) FindSourcesByHostname(ctx context.Context, hostname string) ([]models.Source, error) {
	return []models.Source{*f.source}, nil
}
func (f *fakeStore) GetOffer(ctx context.Context, id int64) (*models.Offer, error) { return f.offer, nil }

func (f *fakeStore) InsertLeadIdempotent(ctx context.Context, lead *models.Lead) (bool, error) {
	if existingID, ok := f.insertedByKey[lead.IdempotencyKey]; ok {
		lead.ID = existingID
		existing := f.leads[existingID]
		lead.Status = existing.Status
		lead.CreatedAt = existing.CreatedAt
		lead.UpdatedAt = existing.UpdatedAt
		return false, nil
	}
	f.nextID++
	lead.ID = f.nextID
	lead.CreatedAt = time.Now()
	lead.UpdatedAt = lead.CreatedAt
	f.insertedByKey[lead.IdempotencyKey] = lead.ID
	stored := *lead
	f.leads[lead.ID] = &stored
	return true, nil
}

func (f *fakeStore) FindDuplicateCandidate(ctx context.Context, offerID, sourceID, leadID int64, windowHours int, excludeStatuses []string, includeSourcesAny bool, matchMode string, normPhone, normEmail *string) (*store.DuplicateCandidate, error) {
	return nil, nil
}
func (f *fakeStore) SetNormalizedFields(ctx context.Context, leadID int64, normalizedPhone, normalizedEmail *string) error {
	f.normalizedLead = leadID
	f.normalizedPhn = normalizedPhone
	f.normalizedEml = normalizedEmail
	return nil
}
func (f *fakeStore) MarkDuplicate(ctx context.Context, leadID int64, normalizedPhone, normalizedEmail *string, matchedLeadID int64, action, reasonCode string) error {
	return nil
}
func (f *fakeStore) InsertDuplicateEvent(ctx context.Context, ev *models.DuplicateEvent) error { return nil }

func (f *fakeStore) GetExclusiveBuyer(ctx context.Context, offerID int64, scopeType, scopeValue string) (*int64, error) {
	return nil, nil
}
func (f *fakeStore) EligibleBuyers(ctx context.Context, offerID, marketID int64, postalCode, city string) ([]store.EligibleBuyer, error) {
	return f.eligible, nil
}
func (f *fakeStore) CapacityUsedToday(ctx context.Context, offerID, buyerID int64) (int, error) { return 0, nil }
func (f *fakeStore) CapacityUsedThisHour(ctx context.Context, offerID, buyerID int64) (int, error) {
	return 0, nil
}
func (f *fakeStore) LastDeliveredAtByBuyer(ctx context.Context, offerID int64, buyerIDs []int64) (map[int64]*time.Time, error) {
	return map[int64]*time.Time{}, nil
}
func (f *fakeStore) UpdateLeadRouted(ctx context.Context, leadID, buyerID int64, price float64) (bool, error) {
	f.routedCalls++
	lead := f.leads[leadID]
	lead.Status = models.LeadStatusRouted
	lead.BuyerID = &buyerID
	lead.Price = &price
	return true, nil
}
func (f *fakeStore) GetBuyerOffer(ctx context.Context, buyerID, offerID int64) (*models.BuyerOffer, error) {
	return &models.BuyerOffer{BuyerID: buyerID, OfferID: offerID}, nil
}
func (f *fakeStore) InsertStateTransition(ctx context.Context, t *models.StateTransition) error { return nil }

func (f *fakeStore) GetLeadByID(ctx context.Context, id int64) (*models.Lead, error) { return f.leads[id], nil }
func (f *fakeStore) GetValidationPolicy(ctx context.Context, offerID int64) (*models.ValidationPolicy, error) {
	if f.validationRules == nil {
		return nil, nil
	}
	return &models.ValidationPolicy{ID: 1, RulesRaw: f.validationRules, IsActive: true}, nil
}
func (f *fakeStore) GetRoutingPolicy(ctx context.Context, offerID int64) (*models.RoutingPolicy, error) {
	if f.routingConfig == nil {
		return nil, nil
	}
	return &models.RoutingPolicy{ID: 1, ConfigRaw: f.routingConfig, IsActive: true}, nil
}
func (f *fakeStore) UpdateLeadValidated(ctx context.Context, leadID int64, accepted bool, reason string) (bool, error) {
	f.validatedCalls = append(f.validatedCalls, accepted)
	lead := f.leads[leadID]
	if accepted {
		lead.Status = models.LeadStatusValidated
	} else {
		lead.Status = models.LeadStatusRejected
		lead.RejectionReason = &reason
	}
	return true, nil
}

func baseFakeStore() *fakeStore {
	fs := newFakeStore()
	fs.source = &models.Source{ID: 1, OfferID: 1, SourceKey: "aus-plb-v1", IsActive: true}
	fs.offer = &models.Offer{ID: 1, MarketID: 1, VerticalID: 1, DefaultPrice: 10, IsActive: true}
	rules, _ := json.Marshal(models.ValidationPolicyRules{
		RequiredFields: []string{"name", "email", "phone", "postal_code"},
	})
	fs.validationRules = rules
	cfg, _ := json.Marshal(models.RoutingPolicyConfig{Strategy: models.RoutingStrategyPriority})
	fs.routingConfig = cfg
	fs.eligible = []store.EligibleBuyer{{BuyerID: 99, RoutingPriority: 1}}
	return fs
}

func baseRequest() *CreateLeadRequest {
	return &CreateLeadRequest{
		SourceID:   int64Ptr(1),
		Name:       "Jane",
		Email:      "jane@example.com",
		Phone:      "+14155551234",
		PostalCode: "90210",
	}
}

func int64Ptr(v int64) *int64 { return &v }

func TestCreateLeadRoutesAndEnqueues(t *testing.T) {
	fs := baseFakeStore()
	q := newTestQueue(t)
	svc := NewIngestionService(fs, nil, q, nil)

	resp, err := svc.CreateLead(context.Background(), baseRequest(), "leads.example.com", "/submit")
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusRouted, resp.Status)
	require.NotNil(t, resp.BuyerID)
	assert.Equal(t, int64(99), *resp.BuyerID)
	assert.Equal(t, 1, pendingCount(t, q))
}

func TestCreateLeadIdempotentReplayShortCircuits(t *testing.T) {
	fs := baseFakeStore()
	q := newTestQueue(t)
	svc := NewIngestionService(fs, nil, q, nil)

	req := baseRequest()
	req.IdempotencyKey = "replay-me-0000000001"
	first, err := svc.CreateLead(context.Background(), req, "leads.example.com", "/submit")
	require.NoError(t, err)

	second, err := svc.CreateLead(context.Background(), req, "leads.example.com", "/submit")
	require.NoError(t, err)

	assert.Equal(t, first.LeadID, second.LeadID)
	assert.Equal(t, 1, pendingCount(t, q)) // pipeline never re-runs on replay
}

func TestCreateLeadMissingRequiredFieldIsRejected(t *testing.T) {
	fs := baseFakeStore()
	q := newTestQueue(t)
	svc := NewIngestionService(fs, nil, q, nil)

	req := baseRequest()
	req.Email = ""
	req.IdempotencyKey = "missing-email-0000001" // a derived key would need the email
	resp, err := svc.CreateLead(context.Background(), req, "leads.example.com", "/submit")
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusRejected, resp.Status)
	assert.Equal(t, 0, pendingCount(t, q))
}

func TestCreateLeadNoEligibleBuyersStaysValidated(t *testing.T) {
	fs := baseFakeStore()
	fs.eligible = nil
	q := newTestQueue(t)
	svc := NewIngestionService(fs, nil, q, nil)

	resp, err := svc.CreateLead(context.Background(), baseRequest(), "leads.example.com", "/submit")
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusValidated, resp.Status)
	assert.Nil(t, resp.BuyerID)
	assert.Equal(t, 0, pendingCount(t, q))
}
