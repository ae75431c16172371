package whatsapp

import "strings"

// NormalizePhone reduces a phone number to the digit form used as wa_id.
// Bare 11-digit local numbers are assumed to be Brazilian.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	d := b.String()
	if d == "" {
		return ""
	}
	if strings.HasPrefix(d, "55") {
		return d
	}
	if len(d) == 11 {
		return "55" + d
	}
	return d
}
