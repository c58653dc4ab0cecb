// Package prompt sanitizes user questions before they reach a provider.
package prompt

import (
	"regexp"
	"sort"
	"strings"
)

// PIIType names a kind of personal data found in a question
type PIIType string

const (
	PIITypeEmail      PIIType = "email"
	PIITypePhone      PIIType = "phone"
	PIITypeSSN        PIIType = "ssn"
	PIITypeCreditCard PIIType = "credit_card"
	PIITypeIBAN       PIIType = "iban"
)

// Detection is one PII match, as a byte range of the input
type Detection struct {
	Type  PIIType
	Value string
	Start int
	End   int
}

type detector struct {
	piiType PIIType
	pattern *regexp.Regexp
	valid   func(string) bool
}

// Detectors run in priority order; a later match overlapping an earlier one is dropped.
// Phone numbers need separators so bare amounts are never mistaken for them.
var detectors = []detector{
	{piiType: PIITypeCreditCard, pattern: regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`), valid: luhnCheck},
	{piiType: PIITypeIBAN, pattern: regexp.MustCompile(`\b[A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){2,7}(?: ?[A-Z0-9]{1,4})?\b`)},
	{piiType: PIITypeSSN, pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), valid: looksLikeSSN},
	{piiType: PIITypePhone, pattern: regexp.MustCompile(`(?:\+?1[-. ]?)?\(?\b\d{3}\)?[-. ]\d{3}[-. ]\d{4}\b`)},
	{piiType: PIITypeEmail, pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)},
}

// DetectPII returns the non-overlapping PII matches in text, ordered by position
func DetectPII(text string) []Detection {
	var found []Detection
	for _, d := range detectors {
		for _, loc := range d.pattern.FindAllStringIndex(text, -1) {
			value := text[loc[0]:loc[1]]
			if d.valid != nil && !d.valid(value) {
				continue
			}
			if overlaps(found, loc[0], loc[1]) {
				continue
			}
			found = append(found, Detection{Type: d.piiType, Value: value, Start: loc[0], End: loc[1]})
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Start < found[j].Start })
	return found
}

// ContainsPII reports whether text contains any PII
func ContainsPII(text string) bool {
	return len(DetectPII(text)) > 0
}

// RedactPII replaces every PII match with a typed placeholder
func RedactPII(text string) string {
	detections := DetectPII(text)
	if len(detections) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for _, d := range detections {
		b.WriteString(text[last:d.Start])
		b.WriteString(redactionFor(d.Type))
		last = d.End
	}
	b.WriteString(text[last:])
	return b.String()
}

func overlaps(found []Detection, start, end int) bool {
	for _, d := range found {
		if start < d.End && d.Start < end {
			return true
		}
	}
	return false
}

func redactionFor(t PIIType) string {
	switch t {
	case PIITypeEmail:
		return "[EMAIL_REDACTED]"
	case PIITypePhone:
		return "[PHONE_REDACTED]"
	case PIITypeSSN:
		return "[SSN_REDACTED]"
	case PIITypeCreditCard:
		return "[CARD_REDACTED]"
	case PIITypeIBAN:
		return "[IBAN_REDACTED]"
	default:
		return "[REDACTED]"
	}
}

// looksLikeSSN rejects numbers the SSA never issues
func looksLikeSSN(s string) bool {
	digits := strings.ReplaceAll(s, "-", "")
	if len(digits) != 9 {
		return false
	}
	if digits[:3] == "000" || digits[3:5] == "00" || digits[5:] == "0000" {
		return false
	}
	return !strings.HasPrefix(digits, "666") && !strings.HasPrefix(digits, "9")
}

// luhnCheck validates a card number, ignoring spaces and dashes
func luhnCheck(cardNumber string) bool {
	cardNumber = strings.NewReplacer(" ", "", "-", "").Replace(cardNumber)
	if len(cardNumber) < 13 || len(cardNumber) > 19 {
		return false
	}

	sum := 0
	second := false
	for i := len(cardNumber) - 1; i >= 0; i-- {
		digit := int(cardNumber[i] - '0')
		if second {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		second = !second
	}
	return sum%10 == 0
}
