package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmail(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"  Jane.Doe@Example.COM ", "jane.doe@example.com"},
		{"", ""},
		{"   ", ""},
		{"not-an-email", ""},
		{"a@b.c", "a@b.c"},
		{"has space@example.com", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Email(c.in), "input %q", c.in)
	}
}

func TestPhone(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"+14155551234", "+14155551234"},
		{"(415) 555-1234", "4155551234"},
		{"415-5555", "4155555"},
		{"123", ""},
		{"", ""},
		{"+0155551234", "01555" + "51234"}, // not matching E.164 (leading zero after +) -> digit strip
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Phone(c.in), "input %q", c.in)
	}
}

func TestPhoneTooShortAfterStrip(t *testing.T) {
	assert.Equal(t, "", Phone("12-34"))
}

func TestPostal(t *testing.T) {
	assert.Equal(t, "90210", Postal("  90210 "))
	assert.Equal(t, "SW1A1AA", Postal("sw1a1aa"))
}
