package policy

import (
	"regexp"
)

type maskRule struct {
	pattern *regexp.Regexp
	replace func(string) string
}

func fixed(replacement string) func(string) string {
	return func(string) string { return replacement }
}

// Rules run in order; card numbers go first so the phone patterns cannot
// swallow them.
var defaultRules = []maskRule{
	{regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`), fixed("[email_redacted]")},
	{regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`), maskCardNumber},
	{regexp.MustCompile(`\b\d{2}\.?\d{3}\.?\d{3}/?\d{4}\-?\d{2}\b`), fixed("**.***.***/****-**")},
	{regexp.MustCompile(`\b\d{3}\.?\d{3}\.?\d{3}\-?\d{2}\b`), fixed("***.***.***-**")},
	// Phones need a "+" country code or a parenthesised area code, so
	// dates, version strings and error codes pass through.
	{regexp.MustCompile(`\+\d{1,3}[\s\-]?(?:\(?\d{1,4}\)?[\s\-]?)?\d{3,5}[\s\-]?\d{4}\b`), fixed("[phone_redacted]")},
	{regexp.MustCompile(`\(\d{2,3}\)\s?\d{3,5}[\s\-]?\d{4}\b`), fixed("[phone_redacted]")},
}

// Masker redacts personal data from end-user text before it leaves the
// process. A disabled Masker returns its input untouched.
type Masker struct {
	enabled bool
	rules   []maskRule
}

func NewMasker(enabled bool) *Masker {
	return &Masker{enabled: enabled, rules: defaultRules}
}

func (m *Masker) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Masker) Mask(value string) string {
	if !m.Enabled() {
		return value
	}
	for _, rule := range m.rules {
		value = rule.pattern.ReplaceAllStringFunc(value, rule.replace)
	}
	return value
}

// MaskAll returns a new slice; the input is never modified.
func (m *Masker) MaskAll(values []string) []string {
	out := make([]string, len(values))
	for i, value := range values {
		out[i] = m.Mask(value)
	}
	return out
}

func maskCardNumber(value string) string {
	digits := make([]rune, 0, len(value))
	for _, char := range value {
		if char >= '0' && char <= '9' {
			digits = append(digits, char)
		}
	}
	if len(digits) < 8 {
		return "[card_redacted]"
	}

	last4 := string(digits[len(digits)-4:])
	return "**** **** **** " + last4
}
