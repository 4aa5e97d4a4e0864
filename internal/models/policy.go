package models

// ValidationPolicyRules is the parsed body of a ValidationPolicy's rules
// document. Unknown keys are rejected at load time so a typo in an
// operator-authored policy fails loudly instead of silently no-opping.
type ValidationPolicyRules struct {
	RequiredFields              []string `json:"required_fields"`
	AllowedPostalCodes          []string `json:"allowed_postal_codes,omitempty"`
	AllowedCities                []string `json:"allowed_cities,omitempty"`
	PhoneRegion                 string   `json:"phone_region,omitempty"`
	AllowedCountryCodes         []string `json:"allowed_country_codes,omitempty"`
	DisposableEmailBlocklist    bool     `json:"disposable_email_blocklist_enabled"`
	Duplicate                   *DuplicatePolicyRules `json:"duplicate,omitempty"`
}

// DuplicatePolicyRules is the parsed body of the duplicate-detection clause
// embedded in a ValidationPolicy document.
type DuplicatePolicyRules struct {
	Enabled          bool     `json:"enabled"`
	WindowHours      int      `json:"window_hours"`
	Scope            string   `json:"scope"`
	Keys             []string `json:"keys"`
	MatchMode        string   `json:"match_mode"`
	ExcludeStatuses  []string `json:"exclude_statuses,omitempty"`
	IncludeSources   string   `json:"include_sources"`
	Action           string   `json:"action"`
	ReasonCode       string   `json:"reason_code"`
	MinFields        []string `json:"min_fields,omitempty"`
}

// RoutingPolicyConfig is the parsed body of a RoutingPolicy's config
// document.
type RoutingPolicyConfig struct {
	Strategy            string   `json:"strategy"`
	ExclusivityFallback string   `json:"exclusivity_fallback"`
	TieBreakers         []string `json:"tie_breakers,omitempty"`
	RespectCapacity     bool     `json:"respect_capacity"`
	RespectPause        bool     `json:"respect_pause"`
}

// DefaultTieBreakers is applied when a RoutingPolicyConfig doesn't specify
// tie_breakers: highest routing_priority first, then lowest buyer_id.
var DefaultTieBreakers = []string{"routing_priority_desc", "buyer_id_asc"}

// Routing strategies.
const (
	RoutingStrategyPriority = "priority"
	RoutingStrategyRotation = "rotation"
	RoutingStrategyWeighted = "weighted"
)

// Exclusivity fallback behaviors.
const (
	ExclusivityFailClosed      = "fail_closed"
	ExclusivityFallbackAllowed = "fallback_allowed"
)

// Duplicate detection match modes, include-sources scopes, and actions.
const (
	MatchModeAny = "any"
	MatchModeAll = "all"

	IncludeSourcesAny            = "any"
	IncludeSourcesSameSourceOnly = "same_source_only"

	DuplicateActionReject = "reject"
	DuplicateActionFlag   = "flag"
	DuplicateActionAccept = "accept"
)
