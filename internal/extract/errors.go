package extract

import "errors"

// Extraction failures are typed so the pipeline can log and skip a file
// without inspecting platform error strings.
var (
	ErrFileNotFound        = errors.New("file not found")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrExtractionFailed    = errors.New("extraction failed")
	ErrFileTooLarge        = errors.New("file too large")
	ErrCorruptedFile       = errors.New("corrupted file")
)
