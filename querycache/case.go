package querycache

import (
	"strings"
	"unicode"
)

// snakeEndpoint normalizes an endpoint name ("getPosts", "get-post",
// "HTTPPosts") into the snake_case segment that leads every cache key.
// Punctuation collapses into a single underscore so keys never carry the
// KeySeparator by accident.
func snakeEndpoint(s string) string {
	if s == "" {
		return ""
	}

	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	pendingSep := false
	write := func(r rune) {
		if pendingSep && b.Len() > 0 {
			b.WriteByte('_')
		}
		pendingSep = false
		b.WriteRune(r)
	}

	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					pendingSep = true
				}
			}
			write(unicode.ToLower(r))
		case unicode.IsLower(r), unicode.IsDigit(r):
			write(r)
		default:
			pendingSep = true
		}
	}

	return b.String()
}
