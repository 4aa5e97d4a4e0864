// Package idempotency derives and enforces the per-source idempotency key:
// a client may supply one explicitly, or the core derives one
// deterministically from the request body so that retried requests without
// a client-supplied key still collapse to one Lead.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
	"unicode"

	"leadgen/internal/models"
)

// ErrInvalidKey is returned when a client-supplied idempotency key fails
// the format check.
var ErrInvalidKey = errors.New("invalid_idempotency_key")

// ErrDerivationFailed is returned when email, phone, or postal_code is
// empty and no client key was supplied, so a stable key cannot be derived.
var ErrDerivationFailed = errors.New("idempotency_derivation_failed")

var clientKeyRE = regexp.MustCompile(`^[A-Za-z0-9._:-]{16,128}$`)

// Store is the slice of internal/store idempotency depends on.
type Store interface {
	InsertLeadIdempotent(ctx context.Context, lead *models.Lead) (createdNew bool, err error)
}

// Acquirer performs the race-safe insert-or-fetch and reports whether this
// call was the one that created the row.
type Acquirer struct {
	store Store
}

// New builds an Acquirer over the given store.
func New(store Store) *Acquirer {
	return &Acquirer{store: store}
}

// ResolveKey returns the idempotency key to use for a lead: the
// client-supplied key if present and well-formed, otherwise a key derived
// deterministically from the fields that define "the same submission" so
// that an ingestion retry lacking a client key still collapses with the
// original.
func ResolveKey(clientKey string, sourceID int64, name, email, phone, countryCode, postalCode, message string) (string, error) {
	clientKey = strings.TrimSpace(clientKey)
	if clientKey != "" {
		if !clientKeyRE.MatchString(clientKey) {
			return "", ErrInvalidKey
		}
		return clientKey, nil
	}
	return DeriveKey(sourceID, name, email, phone, countryCode, postalCode, message)
}

// DeriveKey produces a stable SHA-256 hex digest over the fields that
// identify "the same submission" when no client key was supplied:
// source_id, trimmed name, lowercased/trimmed email, whitespace-stripped
// phone, uppercased country_code, uppercased/trimmed postal_code, and
// trimmed message, in that fixed order. Requires non-empty email, phone,
// and postal_code.
func DeriveKey(sourceID int64, name, email, phone, countryCode, postalCode, message string) (string, error) {
	e := strings.ToLower(strings.TrimSpace(email))
	p := stripWhitespace(phone)
	z := strings.ToUpper(strings.TrimSpace(postalCode))
	if e == "" || p == "" || z == "" {
		return "", ErrDerivationFailed
	}

	n := strings.TrimSpace(name)
	cc := strings.ToUpper(strings.TrimSpace(countryCode))
	m := strings.TrimSpace(message)

	h := sha256.New()
	h.Write([]byte(strings.Join([]string{itoa(sourceID), n, e, p, cc, z, m}, "|")))
	return hex.EncodeToString(h.Sum(nil)), nil
}

func stripWhitespace(s string) string {
	var b strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Acquire inserts the lead idempotently, filling in the persisted lead's ID
// and existing status on lead itself, and reports whether this call created
// it.
func (a *Acquirer) Acquire(ctx context.Context, lead *models.Lead) (createdNew bool, err error) {
	return a.store.InsertLeadIdempotent(ctx, lead)
}
