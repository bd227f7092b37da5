// Package tokenize turns filenames and extracted document text into
// normalized word lists for rule matching.
package tokenize

import (
	"path/filepath"
	"strings"
	"unicode"
)

// MaxContentTokens caps the number of tokens produced from document content
// so matching cost stays bounded regardless of input size.
const MaxContentTokens = 500

// Filename tokenizes a file name: the extension is stripped, the stem is split
// on delimiters and on camelCase / digit-letter boundaries, and every token is
// lower-cased. Tokens of length <= 1 are dropped. Order is preserved and
// duplicates are kept.
func Filename(name string) []string {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))

	var out []string
	for _, frag := range splitDelimiters(stem) {
		for _, tok := range splitBoundaries(frag) {
			tok = strings.ToLower(tok)
			if len(tok) > 1 {
				out = append(out, tok)
			}
		}
	}
	return out
}

// Content tokenizes extracted document text: lower-cased, split on anything
// that is not a letter or digit, tokens of length <= 2 dropped, deduplicated
// preserving first-seen order, capped at MaxContentTokens.
func Content(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	var out []string
	for _, tok := range fields {
		if len(tok) <= 2 {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
		if len(out) >= MaxContentTokens {
			break
		}
	}
	return out
}

// splitDelimiters breaks a filename stem on spaces, hyphens, underscores,
// dots, brackets, and other punctuation.
func splitDelimiters(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		switch r {
		case ' ', '-', '_', '.', '(', ')', '[', ']', '{', '}':
			return true
		}
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
}

// splitBoundaries breaks a fragment on camelCase/PascalCase transitions and
// on digit-letter transitions: "invoiceMarch2024" -> invoice, March, 2024.
func splitBoundaries(s string) []string {
	runes := []rune(s)
	if len(runes) == 0 {
		return nil
	}

	var out []string
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		boundary := (unicode.IsLower(prev) && unicode.IsUpper(cur)) ||
			(unicode.IsDigit(prev) != unicode.IsDigit(cur))
		if boundary {
			out = append(out, string(runes[start:i]))
			start = i
		}
	}
	out = append(out, string(runes[start:]))
	return out
}
