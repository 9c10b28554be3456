package natstransport

import (
	"strings"
	"unicode"
)

// namespace joins values into a NATS subject under prefix, dropping empty
// values and normalizing each one with formatForNamespace.
func namespace(prefix string, values ...string) string {
	parts := make([]string, 0, len(values)+1)
	parts = append(parts, prefix)
	for _, v := range values {
		if v == "" {
			continue
		}
		parts = append(parts, formatForNamespace(v))
	}
	return strings.Join(parts, ".")
}

// formatForNamespace converts camelCase boundaries and underscores to
// dashes and drops characters that are not valid in a subject token.
// Dots and wildcards pass through.
func formatForNamespace(value string) string {
	var b strings.Builder
	b.Grow(len(value) + 4)
	var prev rune
	for _, r := range value {
		switch {
		case unicode.IsUpper(r) && unicode.IsLower(prev):
			b.WriteByte('-')
			b.WriteRune(unicode.ToLower(r))
		case r == '_':
			b.WriteByte('-')
		case r <= unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)),
			r == '-', r == '.', r == '*', r == '>':
			b.WriteRune(r)
		}
		prev = r
	}
	return b.String()
}
