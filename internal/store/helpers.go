package store

import (
	"strings"
)

// EncodeTags flattens tags into the comma-wrapped form the durable
// backends store (",a,b,"), so a single LIKE '%,tag,%' matches exactly
func EncodeTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return "," + strings.Join(tags, ",") + ","
}

// DecodeTags is the inverse of EncodeTags
func DecodeTags(encoded string) []string {
	trimmed := strings.Trim(encoded, ",")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, ",")
}

// GlobToLike converts a glob pattern (* and ?) into a SQL LIKE pattern
// using backslash as the escape character
func GlobToLike(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
