package phone

import "strings"

// Normalize strips every non-digit character from raw, keeping the digits
// in their original order. Empty input yields an empty string.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
