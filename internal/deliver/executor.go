// Package deliver implements the outbound webhook executor: HMAC-signed
// JSON POST with explicit timeouts, outcome classification, and a bounded
// retry schedule.
package deliver

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"leadgen/internal/models"
	"leadgen/internal/util"

	"github.com/google/uuid"
)

// ErrNoWebhookConfigured is returned when neither the BuyerOffer override
// nor the Buyer's own webhook_url is set.
var ErrNoWebhookConfigured = errors.New("no_webhook_configured")

// Config bounds every outbound HTTP attempt and the retry schedule built on
// top of it.
type Config struct {
	MaxAttempts    int
	RetryDelays    []time.Duration // indexed by attempt number - 1; beyond this, NextDelay grows ExponentialBase
	ExponentialBase time.Duration
	ConnectTimeout time.Duration
	TotalTimeout   time.Duration
}

// DefaultConfig returns the standard three-attempt retry schedule: an
// immediate first attempt, then 5s and 15s backoffs.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		RetryDelays:     []time.Duration{0, 5 * time.Second, 15 * time.Second},
		ExponentialBase: 5 * time.Second,
		ConnectTimeout:  5 * time.Second,
		TotalTimeout:    10 * time.Second,
	}
}

// NextDelay returns how long to wait before attemptNumber (1-indexed). For
// attempts beyond the configured schedule it falls back to base * 3^(n-2),
// so with the defaults attempt 4 waits 45s.
func (c Config) NextDelay(attemptNumber int) time.Duration {
	idx := attemptNumber - 1
	if idx >= 0 && idx < len(c.RetryDelays) {
		return c.RetryDelays[idx]
	}
	d := c.ExponentialBase
	for i := 2; i < attemptNumber; i++ {
		d *= 3
	}
	return d
}

// Store is the slice of internal/store the executor depends on.
type Store interface {
	InsertDeliveryAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error
	DeliveryAttemptCount(ctx context.Context, leadID int64) (int, error)
	UpdateLeadDelivered(ctx context.Context, leadID int64) (bool, error)
	InsertStateTransition(ctx context.Context, t *models.StateTransition) error
}

// Executor performs outbound webhook attempts and persists their outcome.
type Executor struct {
	store      Store
	httpClient *http.Client
	config     Config
}

// NewExecutor builds an Executor with an http.Client whose Transport
// enforces a connect timeout distinct from the overall request timeout.
func NewExecutor(s Store, config Config) *Executor {
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: config.ConnectTimeout}).DialContext,
	}
	return &Executor{
		store: s,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   config.TotalTimeout,
		},
		config: config,
	}
}

// AttemptResult summarizes one delivery attempt.
type AttemptResult struct {
	Outcome       string
	HTTPStatus    int
	DeliveryID    string
	AttemptNumber int
	Delivered     bool // true if the lead's routed -> delivered transition succeeded
}

// Attempt performs exactly one delivery attempt for lead against the
// effective webhook URL/secret (already resolved by the caller via
// BuyerOffer override else Buyer default), persists the DeliveryAttempt
// row, and on success performs the guarded routed -> delivered transition.
// The X-LeadGen-Delivery-Id header is fresh per attempt; the body's
// "idempotency" field is always the lead's own idempotency_key, so a buyer
// that receives the same lead twice can dedupe regardless of attempt.
func (e *Executor) Attempt(ctx context.Context, lead *models.Lead, sourceKey, webhookURL, webhookSecret string, buyerID int64, price *float64) (AttemptResult, error) {
	if webhookURL == "" {
		return AttemptResult{}, ErrNoWebhookConfigured
	}

	count, err := e.store.DeliveryAttemptCount(ctx, lead.ID)
	if err != nil {
		return AttemptResult{}, err
	}
	attemptNumber := count + 1

	ctx, span := util.StartDeliverySpan(ctx, "Executor.Attempt", lead.ID, attemptNumber)
	defer span.End()

	// The X-LeadGen-Delivery-Id header is a fresh identifier per attempt;
	// the body's "idempotency" field is the Lead's stable idempotency_key,
	// so a buyer that sees the same lead delivered twice (retry racing
	// acceptance) can dedupe on the body field regardless of attempt.
	attemptID := NewDeliveryAttemptID()
	envelope := FormatPayload(lead, sourceKey, buyerID, lead.IdempotencyKey, price, time.Now())
	body, signature, err := MarshalSigned(envelope, webhookSecret)
	if err != nil {
		return AttemptResult{}, err
	}

	outcome, httpStatus, attemptErr := e.post(ctx, webhookURL, body, signature, attemptID)

	attempt := &models.DeliveryAttempt{
		LeadID:        lead.ID,
		AttemptNumber: attemptNumber,
		Outcome:       outcome,
		DeliveryID:    attemptID,
	}
	if httpStatus != 0 {
		hs := httpStatus
		attempt.HTTPStatus = &hs
	}
	if attemptErr != nil {
		msg := attemptErr.Error()
		attempt.ErrorMessage = &msg
	}
	if err := e.store.InsertDeliveryAttempt(ctx, attempt); err != nil {
		return AttemptResult{}, err
	}

	result := AttemptResult{
		Outcome:       outcome,
		HTTPStatus:    httpStatus,
		DeliveryID:    attemptID,
		AttemptNumber: attemptNumber,
	}

	if outcome == models.OutcomeSuccess {
		delivered, err := e.store.UpdateLeadDelivered(ctx, lead.ID)
		if err != nil {
			return result, err
		}
		result.Delivered = delivered
		if !delivered {
			_ = e.store.InsertStateTransition(ctx, &models.StateTransition{
				LeadID:    lead.ID,
				Component: "deliver",
				Outcome:   "already_delivered",
			})
		}
	} else if attemptNumber >= e.config.MaxAttempts {
		_ = e.store.InsertStateTransition(ctx, &models.StateTransition{
			LeadID:    lead.ID,
			Component: "deliver",
			Outcome:   "retry_exhausted",
		})
	}

	return result, nil
}

// post issues the signed HTTP request and classifies the outcome: 2xx is
// success; 408/429/5xx, network errors, and timeouts are
// transient_failure; any other 4xx is permanent_failure.
func (e *Executor) post(ctx context.Context, url string, body []byte, signature, deliveryID string) (outcome string, httpStatus int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return models.OutcomePermanentFailure, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "LeadGen/1.0")
	req.Header.Set("X-LeadGen-Delivery-Id", deliveryID)
	req.Header.Set("X-LeadGen-Event", "lead.delivered")
	req.Header.Set("X-Webhook-Signature", signature)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return models.OutcomeTimeout, 0, err
		}
		return models.OutcomeTransientFailure, 0, err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		return models.OutcomeSuccess, status, nil
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return models.OutcomeTransientFailure, status, nil
	case status >= 400:
		return models.OutcomePermanentFailure, status, nil
	default:
		return models.OutcomeTransientFailure, status, nil
	}
}

// NewDeliveryAttemptID generates the fresh UUID that Attempt sends as each
// attempt's X-LeadGen-Delivery-Id; it is unrelated to the lead's
// idempotency key.
func NewDeliveryAttemptID() string {
	return uuid.NewString()
}
