package fileops

import "errors"

// Move failures map OS-level errors onto a small set of sentinels so callers
// and the API can react without inspecting errno values.
var (
	ErrSourceNotFound           = errors.New("source file not found")
	ErrDestinationNotAccessible = errors.New("destination not accessible")
	ErrInsufficientSpace        = errors.New("insufficient disk space")
	ErrPermissionDenied         = errors.New("permission denied")
	ErrFileInUse                = errors.New("file in use")
	ErrOperationCancelled       = errors.New("operation cancelled")
	ErrUnknown                  = errors.New("file operation failed")

	ErrNothingToUndo     = errors.New("nothing to undo")
	ErrOperationNotFound = errors.New("operation not found")
)
