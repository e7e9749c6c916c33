package matching

import "strings"

// normalizePhone strips everything but digits.
func normalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// lastDigits returns the trailing n digits of a normalized phone, or the
// whole thing when shorter.
func lastDigits(raw string, n int) string {
	digits := normalizePhone(raw)
	if len(digits) <= n {
		return digits
	}
	return digits[len(digits)-n:]
}

// phoneSuffixMatches reports whether two phones agree on their 10-digit
// suffix, falling back to last-4 when either side is short.
func phoneSuffixMatches(a, b string) bool {
	da, db := normalizePhone(a), normalizePhone(b)
	if da == "" || db == "" {
		return false
	}
	if len(da) >= 10 && len(db) >= 10 {
		return lastDigits(da, 10) == lastDigits(db, 10)
	}
	if len(da) >= 4 && len(db) >= 4 {
		return lastDigits(da, 4) == lastDigits(db, 4)
	}
	return da == db
}

// normalizeName lowercases and collapses whitespace for comparison.
func normalizeName(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(raw))), " ")
}

// nameTokens splits a normalized name into comparison tokens.
func nameTokens(raw string) []string {
	return strings.Fields(normalizeName(raw))
}

func normalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func normalizeUsername(raw string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(raw)), "@")
}
