// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "US"

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	trimmed := strings.TrimSpace(input)
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

// AreaCode returns the 3-digit area code of a NANP number, or "" when the
// number cannot be parsed or carries no geographic prefix. Used by the
// caller-ID selector for local-presence scoring.
func AreaCode(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return ""
	}

	national := phonenumbers.GetNationalSignificantNumber(number)
	if len(national) < 10 {
		return ""
	}

	return national[:3]
}

// LastDigits returns the trailing n digits of a number, ignoring formatting.
// Intake deduplication matches leads re-imported under a new id by comparing
// the last 10 digits.
func LastDigits(input string, n int) string {
	var digits strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	s := digits.String()
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
