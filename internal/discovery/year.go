package discovery

import "regexp"

// yearPattern matches a standalone 20xx token. Digits on either side disqualify
// it so "120234" or "2023456" never yield a year.
var yearPattern = regexp.MustCompile(`(?:^|[^0-9])(20[0-9]{2})(?:[^0-9]|$)`)

// ExtractYear returns the first standalone 20xx token in s, or "".
func ExtractYear(s string) string {
	m := yearPattern.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// CandidateYear prefers a year in the display text over one in the URL.
func CandidateYear(displayText, rawURL string) string {
	if y := ExtractYear(displayText); y != "" {
		return y
	}
	return ExtractYear(rawURL)
}
