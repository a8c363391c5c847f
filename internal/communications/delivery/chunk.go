package delivery

import (
	"strings"
	"unicode/utf8"
)

// splitMessage breaks msg into chunks of at most maxLen bytes. It prefers a
// newline in the back half of the window and otherwise cuts on a rune
// boundary, so every chunk stays valid UTF-8 and nothing is dropped.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen || maxLen < utf8.UTFMax {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > maxLen {
		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		} else {
			for cut > 0 && !utf8.RuneStart(msg[cut]) {
				cut--
			}
		}
		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	if msg != "" {
		chunks = append(chunks, msg)
	}
	return chunks
}
