package validate

import (
	"regexp"
	"strings"

	"leadgen/internal/models"
)

// Result is the outcome of running a Lead against a ValidationPolicyRules
// document.
type Result struct {
	Accepted bool
	Reason   string // set when Accepted is false
}

// Known region phone prefixes. Only the regions the pack's example policies
// exercise are implemented; an unrecognized phone_region rejects the lead
// with phone_region_unsupported rather than halting the policy.
var regionE164Prefix = map[string]string{
	"US": "+1",
	"CA": "+1",
	"GB": "+44",
	"AU": "+61",
}

var disposableEmailDomains = map[string]bool{
	"mailinator.com": true,
	"trashmail.com":  true,
	"tempmail.com":   true,
	"10minutemail.com": true,
	"guerrillamail.com": true,
}

var e164RE = regexp.MustCompile(`^\+[1-9]\d{7,15}$`)

// Validate applies every configured rule in order, stopping at the first
// failure.
func Validate(lead *models.Lead, rules *models.ValidationPolicyRules) Result {
	for _, field := range rules.RequiredFields {
		if !hasField(lead, field) {
			return Result{Accepted: false, Reason: "missing_required_field:" + field}
		}
	}

	if len(rules.AllowedPostalCodes) > 0 && !contains(rules.AllowedPostalCodes, lead.PostalCode) {
		return Result{Accepted: false, Reason: "postal_not_allowed"}
	}

	if len(rules.AllowedCities) > 0 {
		city := ""
		if lead.City != nil {
			city = *lead.City
		}
		if !contains(rules.AllowedCities, city) {
			return Result{Accepted: false, Reason: "city_not_allowed"}
		}
	}

	if rules.PhoneRegion != "" {
		prefix, known := regionE164Prefix[rules.PhoneRegion]
		if !known {
			return Result{Accepted: false, Reason: "phone_region_unsupported"}
		}
		if !e164RE.MatchString(lead.Phone) || !strings.HasPrefix(lead.Phone, prefix) {
			return Result{Accepted: false, Reason: "phone_region_mismatch"}
		}
	}

	if len(rules.AllowedCountryCodes) > 0 && !contains(rules.AllowedCountryCodes, lead.CountryCode) {
		return Result{Accepted: false, Reason: "country_not_allowed"}
	}

	if rules.DisposableEmailBlocklist && isDisposableEmail(lead.Email) {
		return Result{Accepted: false, Reason: "disposable_email"}
	}

	return Result{Accepted: true}
}

func hasField(lead *models.Lead, field string) bool {
	switch field {
	case "name":
		return lead.Name != ""
	case "email":
		return lead.Email != ""
	case "phone":
		return lead.Phone != ""
	case "postal_code":
		return lead.PostalCode != ""
	case "country_code":
		return lead.CountryCode != ""
	case "city":
		return lead.City != nil && *lead.City != ""
	case "message":
		return lead.Message != nil && *lead.Message != ""
	default:
		// An unrecognized required_fields entry is a misconfiguration the
		// caller should have rejected at policy-load time; treat as failed
		// so it never silently passes.
		return false
	}
}

func contains(set []string, value string) bool {
	for _, s := range set {
		if strings.EqualFold(s, value) {
			return true
		}
	}
	return false
}

func isDisposableEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	return disposableEmailDomains[domain]
}
