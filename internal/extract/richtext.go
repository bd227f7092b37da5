package extract

import (
	"fmt"
	"strconv"
	"strings"

	"code.sajari.com/docconv"
)

// extractRichDocument handles rtf, doc, docx, and odt through docconv's
// format sniffing. Best-effort: whatever plain text the converter recovers
// is accepted, an empty result is treated as a corrupted document.
func extractRichDocument(path string, maxLen int) (string, Metadata, error) {
	res, err := docconv.ConvertPath(path)
	if err != nil {
		return "", Metadata{}, fmt.Errorf("extract: convert %s: %v: %w", path, err, ErrExtractionFailed)
	}
	if strings.TrimSpace(res.Body) == "" {
		return "", Metadata{}, fmt.Errorf("extract: empty conversion for %s: %w", path, ErrCorruptedFile)
	}

	var meta Metadata
	if res.Meta != nil {
		meta.Title = res.Meta["Title"]
		meta.Author = res.Meta["Author"]
		if pages, convErr := strconv.Atoi(res.Meta["Pages"]); convErr == nil {
			meta.PageCount = pages
		}
	}

	body := res.Body
	if maxLen > 0 && len(body) > 4*maxLen {
		body = body[:4*maxLen]
	}
	return body, meta, nil
}
