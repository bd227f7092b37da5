package extract

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF concatenates per-page text with newline separators, stopping
// once the text cap is reached, and collects title/author/page-count
// metadata from the document Info dictionary when present.
func extractPDF(path string, maxLen int) (string, Metadata, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", Metadata{}, fmt.Errorf("extract: open pdf %s: %w", path, ErrCorruptedFile)
	}
	defer f.Close()

	meta := Metadata{PageCount: r.NumPage()}
	if info := r.Trailer().Key("Info"); !info.IsNull() {
		meta.Title = info.Key("Title").Text()
		meta.Author = info.Key("Author").Text()
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page does not fail the document.
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(text)
		if maxLen > 0 && sb.Len() >= maxLen {
			break
		}
	}

	out := sb.String()
	if strings.TrimSpace(out) == "" && meta.PageCount > 0 {
		return "", meta, fmt.Errorf("extract: no extractable text in %s: %w", path, ErrExtractionFailed)
	}
	return out, meta, nil
}
