package extract

import (
	"strings"
	"unicode"
)

// preprocessText collapses whitespace runs to a single space, strips control
// characters, trims, and re-applies the length cap. Truncation cuts on the
// last space before the cap when one is reasonably close, so tokens are not
// split mid-word.
func preprocessText(text string, maxLen int) string {
	var sb strings.Builder
	sb.Grow(len(text))

	lastSpace := true
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace {
				sb.WriteByte(' ')
				lastSpace = true
			}
		case unicode.IsControl(r):
			// dropped
		default:
			sb.WriteRune(r)
			lastSpace = false
		}
	}

	out := strings.TrimSpace(sb.String())
	if maxLen > 0 && len(out) > maxLen {
		out = truncate(out, maxLen)
	}
	return out
}

func truncate(s string, maxLen int) string {
	cut := maxLen
	// Back up to a rune boundary.
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	head := s[:cut]
	if i := strings.LastIndexByte(head, ' '); i > maxLen/2 {
		head = head[:i]
	}
	return strings.TrimRight(head, " ")
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
