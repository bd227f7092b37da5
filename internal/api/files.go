package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/othala/internal/fileops"
	"github.com/starford/othala/internal/rules"
)

const maxUploadBytes = 50 << 20 // 50 MB

// FileHandler accepts uploads into the inbox directory, where the watcher or
// an explicit process call picks them up.
type FileHandler struct {
	store rules.Store
}

// NewFileHandler creates a handler that resolves the inbox from settings.
func NewFileHandler(store rules.Store) *FileHandler {
	return &FileHandler{store: store}
}

// safeName validates that the filename is a plain name (no path separators,
// no traversal) and returns the absolute path under the inbox.
func safeName(inbox, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	// Reject anything with path separators or traversal.
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	abs := filepath.Join(inbox, cleaned)
	// Double-check the resolved path is under the inbox.
	if !strings.HasPrefix(abs, inbox+string(os.PathSeparator)) && abs != inbox {
		return "", fmt.Errorf("path escapes inbox directory")
	}
	return abs, nil
}

// Upload handles POST /api/files (multipart/form-data, field "file").
//
//	@Summary		Upload a file into the inbox
//	@Tags			operations
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"File to drop into the inbox"
//	@Success		201		{object}	map[string]any
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files [post]
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	settings, err := h.store.GetSettings(r.Context())
	if err != nil || settings.InboxPath == "" {
		writeJSON(w, http.StatusConflict, errorBody("no inbox directory configured"))
		return
	}

	abs, err := safeName(settings.InboxPath, header.Filename)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	if err := os.MkdirAll(settings.InboxPath, 0o755); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to create inbox dir"))
		return
	}

	// An existing inbox file must not be truncated; suffix like a move would.
	abs, err = fileops.ResolveConflict(settings.InboxPath, filepath.Base(abs))
	if err != nil {
		writeJSON(w, http.StatusConflict, errorBody("no conflict-free filename available"))
		return
	}

	dst, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to create file"))
		return
	}
	defer dst.Close()

	written, err := io.Copy(dst, file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to write file"))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"filename": filepath.Base(abs),
		"path":     abs,
		"size":     written,
	})
}
