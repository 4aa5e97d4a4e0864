// Package validate implements the field-validation stage. A
// ValidationPolicy's JSON rules document is parsed once at load time with
// unknown keys rejected loudly, then applied per lead.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"

	"leadgen/internal/models"
)

// ErrPolicyMisconfigured wraps any parse failure of a policy document. The
// caller treats this fail-closed: the lead is never accepted, and its status
// is left unchanged.
type ErrPolicyMisconfigured struct {
	Cause error
}

func (e *ErrPolicyMisconfigured) Error() string {
	return fmt.Sprintf("policy_misconfigured: %v", e.Cause)
}

func (e *ErrPolicyMisconfigured) Unwrap() error { return e.Cause }

// ParseRules decodes a ValidationPolicy's raw rules document, rejecting any
// key the schema does not recognize.
func ParseRules(raw []byte) (*models.ValidationPolicyRules, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var rules models.ValidationPolicyRules
	if err := dec.Decode(&rules); err != nil {
		return nil, &ErrPolicyMisconfigured{Cause: err}
	}
	return &rules, nil
}
