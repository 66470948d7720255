package channel

import "unicode/utf8"

// TruncateText cuts text to at most limit runes, ending with "..." when cut.
func TruncateText(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	const suffix = "..."
	if limit <= len(suffix) {
		return string([]rune(text)[:limit])
	}
	return string([]rune(text)[:limit-len(suffix)]) + suffix
}
