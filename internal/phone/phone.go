// Package phone canonicalizes provider phone numbers to E.164 so every
// lookup key (customers, conversations, phone mappings) agrees on one form.
package phone

import (
	"fmt"
	"strings"
)

// Normalizer converts raw phone strings to E.164. DefaultCountryCode is
// prepended to national numbers without one; the provider feed is NANP, so
// "1" is the usual choice.
type Normalizer struct {
	DefaultCountryCode string
}

// NewNormalizer returns a Normalizer with the given default country code.
// An empty code falls back to "1".
func NewNormalizer(defaultCountryCode string) *Normalizer {
	if defaultCountryCode == "" {
		defaultCountryCode = "1"
	}
	return &Normalizer{DefaultCountryCode: defaultCountryCode}
}

// Normalize returns the E.164 form of raw, e.g. "(555) 123-4567" ->
// "+15551234567". It accepts the usual formatting noise (spaces, dots,
// dashes, parentheses) and an optional leading "+".
func (n *Normalizer) Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("phone number is empty")
	}

	hasPlus := strings.HasPrefix(trimmed, "+")

	var digits strings.Builder
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	num := digits.String()
	if num == "" {
		return "", fmt.Errorf("phone number %q contains no digits", raw)
	}

	if hasPlus {
		if len(num) < 8 || len(num) > 15 {
			return "", fmt.Errorf("phone number %q has %d digits, expected 8-15", raw, len(num))
		}
		return "+" + num, nil
	}

	cc := n.DefaultCountryCode
	switch {
	case len(num) == 10:
		// National NANP number without country code.
		return "+" + cc + num, nil
	case len(num) == 10+len(cc) && strings.HasPrefix(num, cc):
		return "+" + num, nil
	case len(num) >= 8 && len(num) <= 15:
		// Already international, just missing the plus.
		return "+" + num, nil
	default:
		return "", fmt.Errorf("phone number %q has %d digits, expected 8-15", raw, len(num))
	}
}
