package deliver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leadgen/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	attempts       []*models.DeliveryAttempt
	attemptCount   int
	deliveredOK    bool
	transitions    []string
}

func (f *fakeStore) InsertDeliveryAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error {
	f.attempts = append(f.attempts, attempt)
	return nil
}

func (f *fakeStore) DeliveryAttemptCount(ctx context.Context, leadID int64) (int, error) {
	return f.attemptCount, nil
}

func (f *fakeStore) UpdateLeadDelivered(ctx context.Context, leadID int64) (bool, error) {
	return f.deliveredOK, nil
}

func (f *fakeStore) InsertStateTransition(ctx context.Context, t *models.StateTransition) error {
	f.transitions = append(f.transitions, t.Outcome)
	return nil
}

func testLead() *models.Lead {
	return &models.Lead{ID: 1, OfferID: 2, SourceID: 3, Name: "Jane", Email: "jane@example.com", Phone: "+14155551234", PostalCode: "90210", CountryCode: "US", IdempotencyKey: "idem-abc"}
}

func price(v float64) *float64 { return &v }

func TestAttemptSuccessMarksDelivered(t *testing.T) {
	var gotSignature, gotDeliveryID, gotUserAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Webhook-Signature")
		gotDeliveryID = r.Header.Get("X-LeadGen-Delivery-Id")
		gotUserAgent = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	fs := &fakeStore{deliveredOK: true}
	e := NewExecutor(fs, DefaultConfig())

	res, err := e.Attempt(context.Background(), testLead(), "aus-plb-v1", srv.URL, "secret", 7, price(9.99))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSuccess, res.Outcome)
	assert.True(t, res.Delivered)
	assert.Equal(t, res.DeliveryID, gotDeliveryID)
	assert.NotEqual(t, "idem-abc", gotDeliveryID) // header carries a fresh attempt id, not the lead's idempotency key
	assert.NotEmpty(t, gotSignature)
	assert.Equal(t, "LeadGen/1.0", gotUserAgent)
	require.Len(t, fs.attempts, 1)
	assert.Equal(t, 1, fs.attempts[0].AttemptNumber)
}

func TestAttemptServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fs := &fakeStore{}
	e := NewExecutor(fs, DefaultConfig())

	res, err := e.Attempt(context.Background(), testLead(), "aus-plb-v1", srv.URL, "secret", 7, price(9.99))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeTransientFailure, res.Outcome)
	assert.False(t, res.Delivered)
}

func TestAttemptClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	fs := &fakeStore{}
	e := NewExecutor(fs, DefaultConfig())

	res, err := e.Attempt(context.Background(), testLead(), "aus-plb-v1", srv.URL, "secret", 7, price(9.99))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomePermanentFailure, res.Outcome)
}

func TestAttemptTooManyRequestsIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	fs := &fakeStore{}
	e := NewExecutor(fs, DefaultConfig())

	res, err := e.Attempt(context.Background(), testLead(), "aus-plb-v1", srv.URL, "secret", 7, price(9.99))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeTransientFailure, res.Outcome)
}

func TestAttemptNoWebhookConfigured(t *testing.T) {
	fs := &fakeStore{}
	e := NewExecutor(fs, DefaultConfig())
	_, err := e.Attempt(context.Background(), testLead(), "aus-plb-v1", "", "secret", 7, price(9.99))
	assert.ErrorIs(t, err, ErrNoWebhookConfigured)
}

func TestAttemptExhaustsRetriesWritesTransition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fs := &fakeStore{attemptCount: 2} // this call will be attempt #3, the configured max
	e := NewExecutor(fs, DefaultConfig())

	_, err := e.Attempt(context.Background(), testLead(), "aus-plb-v1", srv.URL, "secret", 7, price(9.99))
	require.NoError(t, err)
	assert.Contains(t, fs.transitions, "retry_exhausted")
}

func TestNextDelayUsesScheduleThenExponential(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, time.Duration(0), c.NextDelay(1))
	assert.Equal(t, 5*time.Second, c.NextDelay(2))
	assert.Equal(t, 15*time.Second, c.NextDelay(3))
	assert.Equal(t, 45*time.Second, c.NextDelay(4))
}

func TestSignIsDeterministic(t *testing.T) {
	body := []byte(`{"a":1}`)
	assert.Equal(t, Sign(body, "secret"), Sign(body, "secret"))
	assert.NotEqual(t, Sign(body, "secret"), Sign(body, "other"))
}
