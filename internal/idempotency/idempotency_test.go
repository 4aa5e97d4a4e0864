package idempotency

import (
	"context"
	"testing"

	"leadgen/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveKeyAcceptsWellFormedClientKey(t *testing.T) {
	key, err := ResolveKey("lead-123.abc-456789", 1, "Jane Doe", "a@b.com", "+14155551234", "US", "90210", "hi")
	require.NoError(t, err)
	assert.Equal(t, "lead-123.abc-456789", key)
}

func TestResolveKeyRejectsMalformedClientKey(t *testing.T) {
	_, err := ResolveKey("has a space in it!", 1, "Jane Doe", "a@b.com", "+14155551234", "US", "90210", "hi")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestResolveKeyRejectsKeyBelowMinimumLength(t *testing.T) {
	_, err := ResolveKey("too-short", 1, "Jane Doe", "a@b.com", "+14155551234", "US", "90210", "hi")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestResolveKeyDerivesWhenAbsent(t *testing.T) {
	key, err := ResolveKey("", 1, "Jane Doe", "a@b.com", "+14155551234", "US", "90210", "hi")
	require.NoError(t, err)
	assert.Len(t, key, 64) // hex-encoded sha256
}

func TestResolveKeyDerivationFailsOnEmptyEmail(t *testing.T) {
	_, err := ResolveKey("", 1, "Jane Doe", "", "+14155551234", "US", "90210", "hi")
	assert.ErrorIs(t, err, ErrDerivationFailed)
}

func TestDeriveKeyIsStableAndCaseInsensitiveOnEmail(t *testing.T) {
	k1, err := DeriveKey(1, "Jane Doe", "A@B.com", "+14155551234", "US", "90210", "hi")
	require.NoError(t, err)
	k2, err := DeriveKey(1, "Jane Doe", "a@b.com", "+14155551234", "US", "90210", "hi")
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestDeriveKeyDiffersBySource(t *testing.T) {
	k1, err := DeriveKey(1, "Jane Doe", "a@b.com", "+14155551234", "US", "90210", "hi")
	require.NoError(t, err)
	k2, err := DeriveKey(2, "Jane Doe", "a@b.com", "+14155551234", "US", "90210", "hi")
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
}

func TestDeriveKeyDiffersByName(t *testing.T) {
	k1, err := DeriveKey(1, "Jane Doe", "a@b.com", "+14155551234", "US", "90210", "hi")
	require.NoError(t, err)
	k2, err := DeriveKey(1, "John Smith", "a@b.com", "+14155551234", "US", "90210", "hi")
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
}

func TestDeriveKeyFailsOnEmptyPhone(t *testing.T) {
	_, err := DeriveKey(1, "Jane Doe", "a@b.com", "", "US", "90210", "hi")
	assert.ErrorIs(t, err, ErrDerivationFailed)
}

func TestDeriveKeyFailsOnEmptyPostalCode(t *testing.T) {
	_, err := DeriveKey(1, "Jane Doe", "a@b.com", "+14155551234", "US", "", "hi")
	assert.ErrorIs(t, err, ErrDerivationFailed)
}

type fakeStore struct {
	createdNew bool
	called     int
}

func (f *fakeStore) InsertLeadIdempotent(ctx context.Context, lead *models.Lead) (bool, error) {
	f.called++
	lead.ID = 1
	lead.Status = models.LeadStatusReceived
	return f.createdNew, nil
}

func TestAcquireDelegatesToStore(t *testing.T) {
	fs := &fakeStore{createdNew: true}
	a := New(fs)

	lead := &models.Lead{}
	createdNew, err := a.Acquire(context.Background(), lead)
	require.NoError(t, err)
	assert.True(t, createdNew)
	assert.Equal(t, 1, fs.called)
	assert.Equal(t, int64(1), lead.ID)
}
