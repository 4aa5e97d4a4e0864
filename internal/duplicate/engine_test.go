package duplicate

import (
	"context"
	"testing"

	"leadgen/internal/models"
	"leadgen/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	candidate      *store.DuplicateCandidate
	markedAction   string
	markedMatchID  int64
	eventsInserted int
}

func (f *fakeStore) FindDuplicateCandidate(ctx context.Context, offerID, sourceID, leadID int64, windowHours int, excludeStatuses []string, includeSourcesAny bool, matchMode string, normPhone, normEmail *string) (*store.DuplicateCandidate, error) {
	return f.candidate, nil
}

func (f *fakeStore) SetNormalizedFields(ctx context.Context, leadID int64, normalizedPhone, normalizedEmail *string) error {
	return nil
}

func (f *fakeStore) MarkDuplicate(ctx context.Context, leadID int64, normalizedPhone, normalizedEmail *string, matchedLeadID int64, action, reasonCode string) error {
	f.markedAction = action
	f.markedMatchID = matchedLeadID
	return nil
}

func (f *fakeStore) InsertDuplicateEvent(ctx context.Context, ev *models.DuplicateEvent) error {
	f.eventsInserted++
	return nil
}

func basePolicy() *models.DuplicatePolicyRules {
	return &models.DuplicatePolicyRules{
		Enabled:     true,
		WindowHours: 24,
		Scope:       "offer",
		Keys:        []string{"phone", "email"},
		MatchMode:   models.MatchModeAny,
		IncludeSources: models.IncludeSourcesAny,
		Action:      models.DuplicateActionReject,
		ReasonCode:  "duplicate_detected",
	}
}

func TestDetectDisabledPolicyIsNoop(t *testing.T) {
	fs := &fakeStore{}
	e := New(fs, nil)
	policy := basePolicy()
	policy.Enabled = false

	lead := &models.Lead{ID: 1, OfferID: 9, Phone: "+14155551234"}
	res, err := e.Detect(context.Background(), lead, 5, policy)
	require.NoError(t, err)
	assert.False(t, res.IsDuplicate)
	assert.Equal(t, 0, fs.eventsInserted)
}

func TestDetectInvalidScope(t *testing.T) {
	fs := &fakeStore{}
	e := New(fs, nil)
	policy := basePolicy()
	policy.Scope = "global"

	lead := &models.Lead{ID: 1, OfferID: 9, Phone: "+14155551234"}
	_, err := e.Detect(context.Background(), lead, 5, policy)
	assert.ErrorIs(t, err, ErrInvalidPolicyScope)
}

func TestDetectInvalidWindowHours(t *testing.T) {
	fs := &fakeStore{}
	e := New(fs, nil)
	policy := basePolicy()
	policy.WindowHours = 0

	lead := &models.Lead{ID: 1, OfferID: 9, Phone: "+14155551234"}
	_, err := e.Detect(context.Background(), lead, 5, policy)
	assert.ErrorIs(t, err, ErrInvalidWindowHours)
}

func TestDetectNoCandidateIsNotDuplicate(t *testing.T) {
	fs := &fakeStore{candidate: nil}
	e := New(fs, nil)
	policy := basePolicy()

	lead := &models.Lead{ID: 1, OfferID: 9, Phone: "+14155551234"}
	res, err := e.Detect(context.Background(), lead, 5, policy)
	require.NoError(t, err)
	assert.False(t, res.IsDuplicate)
}

func TestDetectMatchRejectsAndAudits(t *testing.T) {
	fs := &fakeStore{candidate: &store.DuplicateCandidate{MatchedLeadID: 77, PhoneMatch: 1}}
	e := New(fs, nil)
	policy := basePolicy()

	lead := &models.Lead{ID: 1, OfferID: 9, Phone: "+14155551234"}
	res, err := e.Detect(context.Background(), lead, 5, policy)
	require.NoError(t, err)
	assert.True(t, res.IsDuplicate)
	assert.Equal(t, int64(77), res.MatchedLeadID)
	assert.Equal(t, []string{"phone"}, res.MatchedKeys)
	assert.Equal(t, models.DuplicateActionReject, fs.markedAction)
	assert.Equal(t, 1, fs.eventsInserted)
}

func TestDetectMatchFlagsWithoutRejecting(t *testing.T) {
	fs := &fakeStore{candidate: &store.DuplicateCandidate{MatchedLeadID: 77, PhoneMatch: 1}}
	e := New(fs, nil)
	policy := basePolicy()
	policy.Action = models.DuplicateActionFlag

	lead := &models.Lead{ID: 1, OfferID: 9, Phone: "+14155551234"}
	res, err := e.Detect(context.Background(), lead, 5, policy)
	require.NoError(t, err)
	assert.True(t, res.IsDuplicate)
	assert.Equal(t, models.DuplicateActionFlag, res.Action)
	assert.Equal(t, models.DuplicateActionFlag, fs.markedAction)
	assert.Equal(t, int64(77), fs.markedMatchID)
}

func TestDetectMatchAcceptsAndStillReportsDuplicate(t *testing.T) {
	fs := &fakeStore{candidate: &store.DuplicateCandidate{MatchedLeadID: 77, EmailMatch: 1}}
	e := New(fs, nil)
	policy := basePolicy()
	policy.Action = models.DuplicateActionAccept

	lead := &models.Lead{ID: 1, OfferID: 9, Email: "a@b.com"}
	res, err := e.Detect(context.Background(), lead, 5, policy)
	require.NoError(t, err)
	assert.True(t, res.IsDuplicate)
	assert.Equal(t, models.DuplicateActionAccept, res.Action)
	assert.Equal(t, models.DuplicateActionAccept, fs.markedAction)
	assert.Equal(t, int64(77), fs.markedMatchID)
}

func TestDetectMinFieldsNotSatisfiedSkips(t *testing.T) {
	fs := &fakeStore{candidate: &store.DuplicateCandidate{MatchedLeadID: 77, PhoneMatch: 1}}
	e := New(fs, nil)
	policy := basePolicy()
	policy.Keys = []string{"phone"}
	policy.MinFields = []string{"email"}

	lead := &models.Lead{ID: 1, OfferID: 9, Phone: "+14155551234", Email: ""}
	res, err := e.Detect(context.Background(), lead, 5, policy)
	require.NoError(t, err)
	assert.False(t, res.IsDuplicate)
}
