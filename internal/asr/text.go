package asr

import (
	"strings"
	"unicode"
)

// Placeholder strings some recognizer builds return while a result is
// still pending server-side. Never valid final text.
var placeholderResults = map[string]struct{}{
	"等待识别结果...":          {},
	"识别结果将在服务器处理完成后显示": {},
}

// SanitizeText strips control characters and astral-plane runes that the
// downstream pipeline cannot render or synthesize.
func SanitizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 0x10000 {
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// IsValidResult reports whether recognized text is usable: non-empty
// after sanitization and not a known placeholder.
func IsValidResult(s string) bool {
	clean := SanitizeText(s)
	if clean == "" {
		return false
	}
	_, placeholder := placeholderResults[clean]
	return !placeholder
}
