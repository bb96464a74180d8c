package capture

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName is the matching key for people, clients and courts:
// decomposed, stripped of diacritics, whitespace-collapsed, trimmed and
// upper-cased. It is lossy on purpose.
func NormalizeName(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, value)
	if err != nil {
		stripped = value
	}
	return strings.ToUpper(strings.Join(strings.Fields(stripped), " "))
}

// NormalizeOAB strips everything but letters and digits and upper-cases the rest.
func NormalizeOAB(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// CaseNumberKey reduces a case number to its digits so the CNJ-formatted and
// bare forms of the same number collide.
func CaseNumberKey(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DedupeCases keeps the first occurrence of every case number. Records
// without a usable number are dropped.
func DedupeCases(cases []CapturedCase) []CapturedCase {
	seen := make(map[string]struct{}, len(cases))
	out := make([]CapturedCase, 0, len(cases))
	for _, c := range cases {
		key := CaseNumberKey(c.NumeroProcesso)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
