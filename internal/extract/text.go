package extract

import (
	"fmt"
	"os"
	"unicode/utf8"
)

// extractText reads a plain-text or Markdown file. Content that is not valid
// UTF-8 is salvaged by keeping printable ASCII bytes only. Reading stops
// early once maxLen bytes of usable text are available.
func extractText(path string, maxLen int) (string, Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", Metadata{}, fmt.Errorf("extract: read %s: %w", path, ErrExtractionFailed)
	}

	// The cap is re-applied after preprocessing; reading a little past it
	// here is fine, holding the whole file in memory for huge inputs is not.
	if maxLen > 0 && len(data) > 4*maxLen {
		cut := 4 * maxLen
		// Back up to a rune boundary so the validity check below does not
		// reject a valid file over a clipped trailing rune.
		for cut > 0 && !isRuneStart(data[cut]) {
			cut--
		}
		data = data[:cut]
	}

	if utf8.Valid(data) {
		return string(data), Metadata{}, nil
	}

	ascii := make([]byte, 0, len(data))
	for _, b := range data {
		if b == '\n' || b == '\t' || (b >= 0x20 && b < 0x7F) {
			ascii = append(ascii, b)
		}
	}
	if len(ascii) == 0 {
		return "", Metadata{}, fmt.Errorf("extract: %s is not decodable text: %w", path, ErrCorruptedFile)
	}
	return string(ascii), Metadata{}, nil
}
