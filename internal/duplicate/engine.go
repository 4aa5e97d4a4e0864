// Package duplicate implements the window-bounded duplicate detection
// engine: normalize configured keys, look back within the policy's window,
// and apply the configured action when a match is found.
package duplicate

import (
	"context"
	"errors"
	"time"

	"leadgen/internal/models"
	"leadgen/internal/normalize"
	"leadgen/internal/store"
)

// Errors surfaced to callers; both are policy-authoring mistakes, not
// runtime lead-data problems, so they are fail-closed at the caller.
var (
	ErrInvalidPolicyScope = errors.New("invalid_policy_scope")
	ErrInvalidWindowHours = errors.New("invalid_window_hours")
)

// Store is the slice of internal/store the duplicate engine depends on.
type Store interface {
	FindDuplicateCandidate(ctx context.Context, offerID, sourceID, leadID int64, windowHours int, excludeStatuses []string, includeSourcesAny bool, matchMode string, normPhone, normEmail *string) (*store.DuplicateCandidate, error)
	SetNormalizedFields(ctx context.Context, leadID int64, normalizedPhone, normalizedEmail *string) error
	MarkDuplicate(ctx context.Context, leadID int64, normalizedPhone, normalizedEmail *string, matchedLeadID int64, action, reasonCode string) error
	InsertDuplicateEvent(ctx context.Context, ev *models.DuplicateEvent) error
}

// Cache is the read-through accelerator backed by internal/redisclient.
// A cache hit lets the engine skip the CTE scan for the common case of an
// "any"-mode match against a single key; any other shape of policy, or a
// cache miss, falls through to Store for the authoritative answer.
type Cache interface {
	GetDuplicateCandidate(ctx context.Context, offerID int64, key string) (int64, bool, error)
	CacheDuplicateCandidate(ctx context.Context, offerID int64, key string, leadID int64, ttl time.Duration) error
}

// cacheTTL is chosen well under the minimum allowed window_hours (1h) so a
// cache hit is never stale enough to be wrong, and a miss never means more
// than "ask the database".
const cacheTTL = 5 * time.Minute

// Result describes the outcome of Detect.
type Result struct {
	IsDuplicate   bool
	Action        string
	MatchedLeadID int64
	MatchedKeys   []string
}

// Engine runs duplicate detection for one lead against one policy.
type Engine struct {
	store Store
	cache Cache
}

// New builds an Engine. cache may be nil, in which case every check goes
// straight to Store.
func New(s Store, cache Cache) *Engine {
	return &Engine{store: s, cache: cache}
}

// Detect normalizes the configured match keys, short-circuits via cache
// when possible, otherwise queries Store, then applies the policy's action
// and writes the audit trail.
func (e *Engine) Detect(ctx context.Context, lead *models.Lead, sourceID int64, policy *models.DuplicatePolicyRules) (Result, error) {
	if !policy.Enabled {
		return Result{}, nil
	}
	if policy.Scope != "offer" {
		return Result{}, ErrInvalidPolicyScope
	}
	if policy.WindowHours <= 0 || policy.WindowHours > 8760 {
		return Result{}, ErrInvalidWindowHours
	}

	var normPhone, normEmail *string
	if containsKey(policy.Keys, "phone") {
		if p := normalize.Phone(lead.Phone); p != "" {
			normPhone = &p
		}
	}
	if containsKey(policy.Keys, "email") {
		if em := normalize.Email(lead.Email); em != "" {
			normEmail = &em
		}
	}

	if !minFieldsSatisfied(policy.MinFields, normPhone, normEmail) {
		return Result{}, nil
	}
	if normPhone == nil && normEmail == nil {
		return Result{}, nil
	}

	matchedLeadID, matchedKeys, err := e.findMatch(ctx, lead.OfferID, sourceID, lead.ID, policy, normPhone, normEmail)
	if err != nil {
		return Result{}, err
	}

	e.primeCache(ctx, lead.OfferID, lead.ID, normPhone, normEmail)

	if matchedLeadID == 0 {
		_ = e.store.SetNormalizedFields(ctx, lead.ID, normPhone, normEmail)
		return Result{}, nil
	}

	if err := e.store.MarkDuplicate(ctx, lead.ID, normPhone, normEmail, matchedLeadID, policy.Action, policy.ReasonCode); err != nil {
		return Result{}, err
	}

	ev := &models.DuplicateEvent{
		LeadID:         lead.ID,
		MatchedLeadID:  matchedLeadID,
		MatchKeysRaw:   joinKeys(matchedKeys),
		WindowHours:    policy.WindowHours,
		MatchMode:      policy.MatchMode,
		IncludeSources: policy.IncludeSources,
		Action:         policy.Action,
		ReasonCode:     policy.ReasonCode,
	}
	if err := e.store.InsertDuplicateEvent(ctx, ev); err != nil {
		return Result{}, err
	}

	return Result{
		IsDuplicate:   true,
		Action:        policy.Action,
		MatchedLeadID: matchedLeadID,
		MatchedKeys:   matchedKeys,
	}, nil
}

func (e *Engine) findMatch(ctx context.Context, offerID, sourceID, leadID int64, policy *models.DuplicatePolicyRules, normPhone, normEmail *string) (int64, []string, error) {
	if policy.MatchMode == models.MatchModeAny && e.cache != nil {
		if normPhone != nil {
			if id, hit, err := e.cache.GetDuplicateCandidate(ctx, offerID, *normPhone); err == nil && hit && id != leadID {
				return id, []string{"phone"}, nil
			}
		}
		if normEmail != nil {
			if id, hit, err := e.cache.GetDuplicateCandidate(ctx, offerID, *normEmail); err == nil && hit && id != leadID {
				return id, []string{"email"}, nil
			}
		}
	}

	includeSourcesAny := policy.IncludeSources != models.IncludeSourcesSameSourceOnly
	cand, err := e.store.FindDuplicateCandidate(ctx, offerID, sourceID, leadID, policy.WindowHours, policy.ExcludeStatuses, includeSourcesAny, policy.MatchMode, normPhone, normEmail)
	if err != nil {
		return 0, nil, err
	}
	if cand == nil {
		return 0, nil, nil
	}

	var keys []string
	if cand.PhoneMatch == 1 {
		keys = append(keys, "phone")
	}
	if cand.EmailMatch == 1 {
		keys = append(keys, "email")
	}
	return cand.MatchedLeadID, keys, nil
}

func (e *Engine) primeCache(ctx context.Context, offerID, leadID int64, normPhone, normEmail *string) {
	if e.cache == nil {
		return
	}
	if normPhone != nil {
		_ = e.cache.CacheDuplicateCandidate(ctx, offerID, *normPhone, leadID, cacheTTL)
	}
	if normEmail != nil {
		_ = e.cache.CacheDuplicateCandidate(ctx, offerID, *normEmail, leadID, cacheTTL)
	}
}

func containsKey(keys []string, k string) bool {
	for _, key := range keys {
		if key == k {
			return true
		}
	}
	return false
}

func minFieldsSatisfied(minFields []string, normPhone, normEmail *string) bool {
	for _, f := range minFields {
		if f == "phone" && normPhone == nil {
			return false
		}
		if f == "email" && normEmail == nil {
			return false
		}
	}
	return true
}

func joinKeys(keys []string) string {
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ","
		}
		out += k
	}
	return out
}
