package phone

import "strings"

// minE164Len is "+1" plus a 10-digit US number.
const minE164Len = 12

// ToE164 normalizes a US phone number to E.164 form: every non-digit is
// stripped, a missing country code defaults to 1, and the result is prefixed
// with "+". Returns the empty string when the input contains no digits.
func ToE164(usPhone string) string {
	var b strings.Builder
	for _, r := range usPhone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if !strings.HasPrefix(digits, "1") {
		digits = "1" + digits
	}
	return "+" + digits
}

// Valid reports whether s looks like a normalized US E.164 number.
func Valid(s string) bool {
	return strings.HasPrefix(s, "+") && len(s) >= minE164Len
}
