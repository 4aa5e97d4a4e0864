// Package normalize implements the pure, side-effect-free field
// normalization rules shared by ingestion and duplicate detection.
package normalize

import (
	"regexp"
	"strings"
)

var (
	emailSyntaxRE = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	e164RE        = regexp.MustCompile(`^\+[1-9]\d{7,15}$`)
	nonDigitRE    = regexp.MustCompile(`\D+`)
)

// Email lowercases and trims the input, returning "" if the result is not a
// plausible address. Full syntax validation is the validator's job; this
// only guards against feeding garbage into the duplicate-matching index.
func Email(email string) string {
	e := strings.ToLower(strings.TrimSpace(email))
	if e == "" {
		return ""
	}
	if !emailSyntaxRE.MatchString(e) {
		return ""
	}
	return e
}

// Phone passes through an already-E.164 number unchanged, otherwise strips
// every non-digit character. Returns "" if fewer than 7 digits remain.
func Phone(phone string) string {
	p := strings.TrimSpace(phone)
	if p == "" {
		return ""
	}
	if e164RE.MatchString(p) {
		return p
	}
	digits := nonDigitRE.ReplaceAllString(p, "")
	if len(digits) < 7 {
		return ""
	}
	return digits
}

// Postal trims and uppercases a postal/zip code for stable comparison.
func Postal(postal string) string {
	return strings.ToUpper(strings.TrimSpace(postal))
}
