package deliver

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"leadgen/internal/models"
)

// Envelope is the outbound webhook body, matching the wire shape buyers
// integrate against: {"event":"lead.delivered","data":{...}}.
type Envelope struct {
	Event string  `json:"event"`
	Data  Payload `json:"data"`
}

// Payload is the "data" object of the outbound webhook body.
type Payload struct {
	LeadID      int64           `json:"lead_id"`
	ReceivedAt  time.Time       `json:"received_at"`
	DeliveredAt time.Time       `json:"delivered_at"`
	Idempotency string          `json:"idempotency"`
	Contact     PayloadContact  `json:"contact"`
	Details     PayloadDetails  `json:"details"`
	Metadata    PayloadMetadata `json:"metadata"`
}

// PayloadContact carries the buyer-facing contact fields.
type PayloadContact struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	PostalCode string `json:"postal_code"`
}

// PayloadDetails carries free-text and attribution fields a buyer may use
// for routing or QA but that aren't part of the contact record itself.
type PayloadDetails struct {
	Message string `json:"message,omitempty"`
	Source  string `json:"source"`
}

// PayloadMetadata carries fields a buyer needs for reconciliation.
type PayloadMetadata struct {
	Price   *float64 `json:"price,omitempty"`
	BuyerID int64    `json:"buyer_id"`
}

// FormatPayload builds the outbound envelope for a delivery attempt.
// deliveredAt is the time of this specific attempt, not the lead's
// persisted delivered_at column, which is only set once the attempt
// succeeds.
func FormatPayload(lead *models.Lead, sourceKey string, buyerID int64, idempotencyKey string, price *float64, deliveredAt time.Time) Envelope {
	message := ""
	if lead.Message != nil {
		message = *lead.Message
	}
	return Envelope{
		Event: "lead.delivered",
		Data: Payload{
			LeadID:      lead.ID,
			ReceivedAt:  lead.CreatedAt,
			DeliveredAt: deliveredAt,
			Idempotency: idempotencyKey,
			Contact: PayloadContact{
				Name:       lead.Name,
				Phone:      lead.Phone,
				Email:      lead.Email,
				PostalCode: lead.PostalCode,
			},
			Details: PayloadDetails{
				Message: message,
				Source:  sourceKey,
			},
			Metadata: PayloadMetadata{
				Price:   price,
				BuyerID: buyerID,
			},
		},
	}
}

// Sign computes the HMAC-SHA256 signature a buyer can verify against their
// configured webhook secret: the hex-encoded HMAC of the raw body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// MarshalSigned marshals the envelope and returns both the raw body and its
// signature, so callers never sign a body different from the one sent.
func MarshalSigned(e Envelope, secret string) (body []byte, signature string, err error) {
	body, err = json.Marshal(e)
	if err != nil {
		return nil, "", err
	}
	return body, Sign(body, secret), nil
}
