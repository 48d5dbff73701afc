package domain

import (
	"strings"
	"unicode/utf8"
)

const (
	// MaxTitleLength bounds derived ticket titles.
	MaxTitleLength = 80
	ellipsis       = "..."
)

// Truncate shortens s to at most max runes. A cut string keeps max-3 runes
// followed by "...", so its length is exactly max.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max <= len(ellipsis) {
		return string(runes[:max])
	}
	return string(runes[:max-len(ellipsis)]) + ellipsis
}

// DeriveTitle builds a short title from the first line of the description,
// cut at the first sentence terminator. It falls back to "category - problem".
func DeriveTitle(category, problemType, description string) string {
	for _, line := range strings.Split(description, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if idx := strings.IndexAny(line, ".!?"); idx > 0 {
			line = line[:idx]
		}
		return Truncate(strings.TrimSpace(line), MaxTitleLength)
	}
	category = strings.TrimSpace(category)
	problemType = strings.TrimSpace(problemType)
	switch {
	case category != "" && problemType != "":
		return Truncate(category+" - "+problemType, MaxTitleLength)
	case category != "":
		return Truncate(category, MaxTitleLength)
	default:
		return Truncate(problemType, MaxTitleLength)
	}
}

// TrimmedLength counts runes after trimming surrounding whitespace.
func TrimmedLength(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}
