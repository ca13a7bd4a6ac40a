package chunking

import (
	"strings"
	"unicode"
)

// LastFragment returns a trailing piece of text at most maxLen runes long.
// It prefers to start the fragment at a sentence start inside the trailing
// window, then at a word start, and only cuts mid-word when the window holds
// a single unbroken run. Rune-based, so multi-byte characters stay whole.
func LastFragment(text string, maxLen int) string {
	text = strings.TrimSpace(text)
	if maxLen <= 0 || text == "" {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	start := len(runes) - maxLen

	for i := start; i < len(runes); i++ {
		if sentenceStartsAt(runes, i) {
			if frag := strings.TrimSpace(string(runes[i:])); frag != "" {
				return frag
			}
		}
	}
	for i := start; i < len(runes); i++ {
		if unicode.IsSpace(runes[i-1]) {
			if frag := strings.TrimSpace(string(runes[i:])); frag != "" {
				return frag
			}
		}
	}
	return string(runes[start:])
}

// sentenceStartsAt reports whether position i directly follows a sentence
// terminator and at least one whitespace rune.
func sentenceStartsAt(runes []rune, i int) bool {
	if i < 2 || !unicode.IsSpace(runes[i-1]) {
		return false
	}
	j := i - 1
	for j > 0 && unicode.IsSpace(runes[j]) {
		j--
	}
	return isTerminator(runes[j])
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
