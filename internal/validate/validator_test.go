package validate

import (
	"testing"

	"leadgen/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func baseLead() *models.Lead {
	return &models.Lead{
		Name:        "Jane Doe",
		Email:       "jane@example.com",
		Phone:       "+14155551234",
		PostalCode:  "90210",
		CountryCode: "US",
		City:        strp("Beverly Hills"),
	}
}

func TestParseRulesRejectsUnknownFields(t *testing.T) {
	_, err := ParseRules([]byte(`{"required_fields":["email"],"totally_unknown":true}`))
	require.Error(t, err)
	var mis *ErrPolicyMisconfigured
	assert.ErrorAs(t, err, &mis)
}

func TestParseRulesAccepts(t *testing.T) {
	rules, err := ParseRules([]byte(`{"required_fields":["email","phone"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"email", "phone"}, rules.RequiredFields)
}

func TestValidateMissingRequiredField(t *testing.T) {
	lead := baseLead()
	lead.Email = ""
	rules := &models.ValidationPolicyRules{RequiredFields: []string{"email"}}

	res := Validate(lead, rules)
	assert.False(t, res.Accepted)
	assert.Equal(t, "missing_required_field:email", res.Reason)
}

func TestValidatePostalCodeNotAllowed(t *testing.T) {
	lead := baseLead()
	rules := &models.ValidationPolicyRules{AllowedPostalCodes: []string{"10001"}}

	res := Validate(lead, rules)
	assert.False(t, res.Accepted)
	assert.Equal(t, "postal_not_allowed", res.Reason)
}

func TestValidatePhoneRegionMismatch(t *testing.T) {
	lead := baseLead()
	lead.Phone = "+442071234567"
	rules := &models.ValidationPolicyRules{PhoneRegion: "US"}

	res := Validate(lead, rules)
	assert.False(t, res.Accepted)
	assert.Equal(t, "phone_region_mismatch", res.Reason)
}

func TestValidateDisposableEmailBlocked(t *testing.T) {
	lead := baseLead()
	lead.Email = "spammer@mailinator.com"
	rules := &models.ValidationPolicyRules{DisposableEmailBlocklist: true}

	res := Validate(lead, rules)
	assert.False(t, res.Accepted)
	assert.Equal(t, "disposable_email", res.Reason)
}

func TestValidateAcceptsClean(t *testing.T) {
	lead := baseLead()
	rules := &models.ValidationPolicyRules{
		RequiredFields:           []string{"email", "phone", "postal_code"},
		AllowedCountryCodes:      []string{"US", "CA"},
		DisposableEmailBlocklist: true,
	}

	res := Validate(lead, rules)
	assert.True(t, res.Accepted)
	assert.Empty(t, res.Reason)
}
