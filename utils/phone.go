// Package utils provides utility functions for the application.
package utils

import "strings"

// NormalizePhone canonicalizes a counterparty phone number: digits only,
// no leading plus or zeros-after-country-code munging beyond what the
// gateway already guarantees. The gateway reports numbers without "+".
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.TrimPrefix(phone, "+")
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeText canonicalizes inbound message text for keyword and button
// label matching: trimmed and lowercased, exact match semantics.
func NormalizeText(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
