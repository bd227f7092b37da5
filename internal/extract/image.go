package extract

import (
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// ocrLanguage is the tesseract language pack used for recognition. The
// original system ran platform OCR with language correction enabled;
// pinning an explicit language model is the tesseract equivalent.
const ocrLanguage = "eng"

// extractImage runs OCR over an image file and joins the recognized lines
// with newlines. A clean run that finds no text is not an error: images
// without any text are matched by filename alone.
func extractImage(path string, _ int) (string, Metadata, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(ocrLanguage); err != nil {
		return "", Metadata{}, fmt.Errorf("extract: ocr language: %v: %w", err, ErrExtractionFailed)
	}
	// Automatic page segmentation gives the best accuracy on arbitrary
	// photos and scans.
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		return "", Metadata{}, fmt.Errorf("extract: ocr segmentation: %v: %w", err, ErrExtractionFailed)
	}
	if err := client.SetImage(path); err != nil {
		return "", Metadata{}, fmt.Errorf("extract: ocr open %s: %v: %w", path, err, ErrCorruptedFile)
	}

	text, err := client.Text()
	if err != nil {
		return "", Metadata{}, fmt.Errorf("extract: ocr %s: %v: %w", path, err, ErrExtractionFailed)
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), Metadata{}, nil
}
