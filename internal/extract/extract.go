// Package extract produces bounded plain text from files of several formats.
// Dispatch is a strategy table keyed by the lower-cased file extension; every
// failure is one of the typed errors in errors.go and never fatal to callers.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default bounds. Extraction stops as soon as the text cap is reached, and
// files above the size cap are rejected before any parsing work starts.
const (
	DefaultMaxTextLen  = 10_000
	DefaultMaxFileSize = 50 << 20 // 50MB
)

// FileType is the detected document category of a source file.
type FileType string

const (
	TypePDF      FileType = "pdf"
	TypeText     FileType = "text"
	TypeRichText FileType = "richtext"
	TypeDocument FileType = "document"
	TypeImage    FileType = "image"
)

// Metadata holds format-specific details collected during extraction.
type Metadata struct {
	PageCount int    `json:"page_count,omitempty"`
	Title     string `json:"title,omitempty"`
	Author    string `json:"author,omitempty"`
}

// Content is the result of a successful extraction. It is produced per
// processing run and never persisted.
type Content struct {
	SourcePath  string    `json:"source_path"`
	Type        FileType  `json:"type"`
	Text        string    `json:"text"`
	ExtractedAt time.Time `json:"extracted_at"`
	Metadata    Metadata  `json:"metadata"`
}

// strategy extracts bounded plain text plus metadata from a file on disk.
type strategy func(path string, maxLen int) (string, Metadata, error)

// Extractor dispatches files to per-format extraction strategies.
type Extractor struct {
	maxTextLen  int
	maxFileSize int64
	strategies  map[string]entry
}

type entry struct {
	typ FileType
	fn  strategy
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxTextLen overrides the extracted-text cap.
func WithMaxTextLen(n int) Option {
	return func(e *Extractor) { e.maxTextLen = n }
}

// WithMaxFileSize overrides the source-file size limit in bytes.
func WithMaxFileSize(n int64) Option {
	return func(e *Extractor) { e.maxFileSize = n }
}

// New creates an Extractor with the full strategy table registered.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		maxTextLen:  DefaultMaxTextLen,
		maxFileSize: DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.strategies = map[string]entry{
		".pdf":      {TypePDF, extractPDF},
		".txt":      {TypeText, extractText},
		".md":       {TypeText, extractText},
		".markdown": {TypeText, extractText},
		".csv":      {TypeText, extractText},
		".log":      {TypeText, extractText},
		".rtf":      {TypeRichText, extractRichDocument},
		".doc":      {TypeDocument, extractRichDocument},
		".docx":     {TypeDocument, extractRichDocument},
		".odt":      {TypeDocument, extractRichDocument},
		".jpg":      {TypeImage, extractImage},
		".jpeg":     {TypeImage, extractImage},
		".png":      {TypeImage, extractImage},
		".gif":      {TypeImage, extractImage},
		".heic":     {TypeImage, extractImage},
		".webp":     {TypeImage, extractImage},
		".tiff":     {TypeImage, extractImage},
		".bmp":      {TypeImage, extractImage},
	}
	return e
}

// Supported reports whether files with the given extension (with or without
// a leading dot, any case) can be extracted.
func (e *Extractor) Supported(ext string) bool {
	_, ok := e.strategies[normalizeExt(ext)]
	return ok
}

// Extract runs pre-checks, dispatches to the format strategy, and applies
// text post-processing. The returned error is always one of the package's
// typed errors.
func (e *Extractor) Extract(path string) (*Content, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("extract: %s: %w", path, ErrFileNotFound)
		}
		return nil, fmt.Errorf("extract: stat %s: %w", path, ErrExtractionFailed)
	}
	if info.Size() > e.maxFileSize {
		return nil, fmt.Errorf("extract: %s is %d bytes: %w", path, info.Size(), ErrFileTooLarge)
	}

	ent, ok := e.strategies[normalizeExt(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("extract: %s: %w", path, ErrUnsupportedFileType)
	}

	text, meta, err := ent.fn(path, e.maxTextLen)
	if err != nil {
		return nil, err
	}

	return &Content{
		SourcePath:  path,
		Type:        ent.typ,
		Text:        preprocessText(text, e.maxTextLen),
		ExtractedAt: time.Now(),
		Metadata:    meta,
	}, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
