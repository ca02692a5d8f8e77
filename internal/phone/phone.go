// Package phone canonicalizes phone numbers for the loose equality the
// correlation engine relies on. Matching is substring containment over the
// digit strings, which tolerates country-code prefix differences between the
// provider and the helpdesk contact record. It can over-match very short
// numbers; that trade-off is accepted here rather than hidden.
package phone

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

var digitsRe = regexp.MustCompile(`[0-9]+`)

const defaultRegion = "US"

// Canonicalize strips +, spaces, hyphens, parentheses and anything else that
// is not a digit. Empty input yields an empty string.
func Canonicalize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.Join(digitsRe.FindAllString(raw, -1), "")
}

// Equivalent reports whether two numbers refer to the same line: one
// canonical digit string must contain the other. Symmetric by construction;
// empty canonical forms never match anything.
func Equivalent(a, b string) bool {
	da := Canonicalize(a)
	db := Canonicalize(b)
	if da == "" || db == "" {
		return false
	}
	return strings.Contains(da, db) || strings.Contains(db, da)
}

// NormalizeE164 ensures the value begins with + and only contains digits
// afterward. It does not validate the number.
func NormalizeE164(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	digits := Canonicalize(raw)
	if digits == "" {
		return ""
	}
	return "+" + digits
}

// DisplayE164 formats a number to strict E.164 for logs and provider calls
// when it parses as a valid number; otherwise the trimmed input is returned
// unchanged. Never used for equality.
func DisplayE164(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return trimmed
	}
	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return trimmed
	}
	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}
	return phonenumbers.Format(number, phonenumbers.E164)
}
