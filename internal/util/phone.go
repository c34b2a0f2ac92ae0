package util

import (
	"regexp"
	"strings"
)

var phoneJunk = regexp.MustCompile(`[^\d\+]+`)

// NormalizePhone reduces input to E.164-like form: digits and a leading plus,
// with the 00 international prefix rewritten to +.
func NormalizePhone(raw string) string {
	s := phoneJunk.ReplaceAllString(strings.TrimSpace(raw), "")

	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}

	return s
}
