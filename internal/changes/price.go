package changes

import (
	"strconv"
	"strings"
	"unicode"
)

// ParsePrice extracts a number from a display price such as "1 234,56 ₽"
// or "1.234,56". Runs of digits, whitespace, '.' and ',' are concatenated;
// spaces and NBSPs are dropped; with both separators present '.' groups
// thousands and ',' is the decimal point, with only ',' present it is the
// decimal point. ok is false when no number can be read.
func ParsePrice(raw string) (value float64, ok bool) {
	if raw == "" {
		return 0, false
	}

	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			if r != ' ' && r != '\u00a0' {
				b.WriteRune(r)
			}
		}
	}
	s := strings.TrimSpace(b.String())
	if s == "" {
		return 0, false
	}

	if strings.Contains(s, ".") && strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
	}
	s = strings.ReplaceAll(s, ",", ".")

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
