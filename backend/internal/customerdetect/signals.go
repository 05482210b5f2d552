// Package customerdetect implements C8: collecting per-customer signals from
// an inbound message/document, aggregating them, and applying the
// auto-select gate. S3 is reserved and disabled, matching spec.md §4.8.
package customerdetect

import (
	"regexp"
	"strings"
)

const (
	ScoreS1 = 0.95
	ScoreS2 = 0.75
	ScoreS4 = 0.98
)

var genericEmailDomains = map[string]bool{
	"gmail.com": true, "googlemail.com": true, "outlook.com": true,
	"hotmail.com": true, "yahoo.com": true, "aol.com": true, "icloud.com": true,
	"gmx.de": true, "web.de": true, "t-online.de": true,
}

// erpNumberPatterns implements S4's regex list; the first match across all
// three wins (spec.md §4.8).
var erpNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Kundennr[.:]?\s*([A-Z0-9-]{3,20})`),
	regexp.MustCompile(`(?i)Customer\s*No[.:]?\s*([A-Z0-9-]{3,20})`),
	regexp.MustCompile(`(?i)Debitor[.:]?\s*([A-Z0-9-]{3,20})`),
}

// ExtractERPNumber returns the first ERP customer number found in text, or
// "" if none of the three patterns matched.
func ExtractERPNumber(text string) string {
	for _, re := range erpNumberPatterns {
		if m := re.FindStringSubmatch(text); len(m) == 2 {
			return strings.ToUpper(strings.TrimSpace(m[1]))
		}
	}
	return ""
}

// SenderDomain returns the lowercase domain part of an email address, or ""
// if the address has no '@'.
func SenderDomain(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 {
		return ""
	}
	return strings.ToLower(email[i+1:])
}

// IsGenericDomain reports whether domain is a free-mail provider excluded
// from S2 per spec.md §4.8.
func IsGenericDomain(domain string) bool {
	return genericEmailDomains[strings.ToLower(domain)]
}

var (
	datePattern  = regexp.MustCompile(`\d{1,4}[./-]\d{1,2}[./-]\d{1,4}`)
	phonePattern = regexp.MustCompile(`(?i)(tel|fax|phone)[.:]?\s*[+\d]`)
	emailPattern = regexp.MustCompile(`[[:alnum:].\-_+]+@[[:alnum:].\-]+\.[[:alpha:]]{2,}`)
	legalForms   = []string{"GmbH", "AG", "KG", "OHG", "Ltd", "Inc", "Corp"}
)

// ExtractCompanyNameCandidate implements S5's name extraction: scan the
// first 500 characters, skip lines that look like a date, phone/fax, or
// email, and prefer a 10-100 char line carrying a legal-form token.
func ExtractCompanyNameCandidate(text string) string {
	head := text
	if len(head) > 500 {
		head = head[:500]
	}
	for _, line := range strings.Split(head, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 10 || len(line) > 100 {
			continue
		}
		if datePattern.MatchString(line) || phonePattern.MatchString(line) || emailPattern.MatchString(line) {
			continue
		}
		for _, form := range legalForms {
			if strings.Contains(line, form) {
				return line
			}
		}
	}
	return ""
}

// S5Score computes `min(0.85, 0.40 + 0.60 * similarity)` when similarity is
// at least 0.40, and reports absent otherwise (spec.md §4.8).
func S5Score(similarity float64) (score float64, ok bool) {
	if similarity < 0.40 {
		return 0, false
	}
	s := 0.40 + 0.60*similarity
	if s > 0.85 {
		s = 0.85
	}
	return s, true
}
