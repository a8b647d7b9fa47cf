package handlers

import "strings"

// normalizePhone renders North American numbers as E.164 so "(555) 000-0000",
// "15550000000" and "+1 555 000 0000" all name the same salon or customer.
// Other inputs keep their digits behind a "+" when one was given, or pass
// through trimmed.
func normalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	digits := sanitizeDigits(raw)
	switch {
	case digits == "":
		return raw
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		return "+" + digits
	case strings.HasPrefix(raw, "+"):
		return "+" + digits
	default:
		return raw
	}
}

func sanitizeDigits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
