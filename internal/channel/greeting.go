package channel

import "strings"

// DefaultGreetings are answered with the bot's welcome text.
var DefaultGreetings = []string{"/start", "start", "hi", "hello", "xin chào"}

// MatchGreeting reports whether text is one of tokens, ignoring case and
// surrounding space.
func MatchGreeting(text string, tokens []string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	for _, token := range tokens {
		if strings.EqualFold(text, strings.TrimSpace(token)) {
			return true
		}
	}
	return false
}
