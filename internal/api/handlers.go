package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/othala/internal/extract"
	"github.com/starford/othala/internal/fileops"
	"github.com/starford/othala/internal/organizer"
	"github.com/starford/othala/internal/rules"
)

// Handler holds API route handlers.
type Handler struct {
	org   *organizer.Organizer
	store rules.Store
}

// NewHandler creates a new Handler.
func NewHandler(org *organizer.Organizer, store rules.Store) *Handler {
	return &Handler{org: org, store: store}
}

// Status handles GET /api/status.
//
//	@Summary		Report pipeline state and rule count
//	@Tags			status
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	active, err := h.store.ActiveRules(r.Context())
	if err != nil {
		slog.Error("status failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		State:       h.org.State(),
		WatchedPath: h.org.WatchedPath(),
		RuleCount:   len(active),
	})
}

// ListRules handles GET /api/rules.
//
//	@Summary		List all rules in creation order
//	@Tags			rules
//	@Produce		json
//	@Success		200	{object}	RuleListResponse
//	@Security		BearerAuth
//	@Router			/rules [get]
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListRules(r.Context())
	if err != nil {
		slog.Error("list rules failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, RuleListResponse{Rules: items, Total: len(items)})
}

// GetRule handles GET /api/rules/{id}.
//
//	@Summary		Get a single rule
//	@Tags			rules
//	@Produce		json
//	@Param			id	path		string	true	"Rule id"
//	@Success		200	{object}	rules.Rule
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rules/{id} [get]
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rule, err := h.store.GetRule(r.Context(), id)
	if err != nil {
		if errors.Is(err, rules.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get rule failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// CreateRule handles POST /api/rules.
//
//	@Summary		Create a rule
//	@Tags			rules
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SaveRuleRequest	true	"Rule to create"
//	@Success		201		{object}	rules.Rule
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rules [post]
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRule(w, r)
	if !ok {
		return
	}
	rule := rules.Rule{
		Name:        req.Name,
		Description: req.Description,
		Keywords:    req.Keywords,
		Destination: req.Destination,
		Active:      req.Active == nil || *req.Active,
	}
	if err := h.store.SaveRule(r.Context(), &rule); err != nil {
		slog.Error("create rule failed", slog.String("name", req.Name), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// UpdateRule handles PUT /api/rules/{id}.
//
//	@Summary		Update a rule, regenerating embeddings when keywords change
//	@Tags			rules
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Rule id"
//	@Param			body	body		SaveRuleRequest	true	"Updated rule"
//	@Success		200		{object}	rules.Rule
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rules/{id} [put]
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := h.store.GetRule(r.Context(), id)
	if err != nil {
		if errors.Is(err, rules.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("update rule failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}

	req, ok := decodeRule(w, r)
	if !ok {
		return
	}
	existing.Name = req.Name
	existing.Description = req.Description
	existing.Keywords = req.Keywords
	existing.Destination = req.Destination
	if req.Active != nil {
		existing.Active = *req.Active
	}
	if err := h.store.SaveRule(r.Context(), existing); err != nil {
		slog.Error("update rule failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

// DeleteRule handles DELETE /api/rules/{id}.
//
//	@Summary		Delete a rule
//	@Tags			rules
//	@Param			id	path	string	true	"Rule id"
//	@Success		204	"Rule deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rules/{id} [delete]
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteRule(r.Context(), id); err != nil {
		if errors.Is(err, rules.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("delete rule failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSettings handles GET /api/settings.
//
//	@Summary		Get configured paths and monitoring toggle
//	@Tags			settings
//	@Produce		json
//	@Success		200	{object}	rules.Settings
//	@Security		BearerAuth
//	@Router			/settings [get]
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.GetSettings(r.Context())
	if err != nil {
		slog.Error("get settings failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// UpdateSettings handles PUT /api/settings.
//
//	@Summary		Update settings and reconcile the watcher
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SettingsRequest	true	"New settings"
//	@Success		200		{object}	rules.Settings
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/settings [put]
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	settings := &rules.Settings{
		InboxPath:         req.InboxPath,
		ArchivePath:       req.ArchivePath,
		MonitoringEnabled: req.MonitoringEnabled,
	}
	if err := h.org.ApplySettings(r.Context(), settings); err != nil {
		slog.Error("update settings failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// Process handles POST /api/process.
//
//	@Summary		Organize a single file immediately
//	@Tags			operations
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ProcessRequest	true	"File to organize"
//	@Success		200		{object}	fileops.FileOperation
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/process [post]
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}

	op, err := h.org.ProcessFile(r.Context(), req.Path, rules.TriggerManual)
	if err != nil {
		switch {
		case errors.Is(err, extract.ErrFileNotFound), errors.Is(err, fileops.ErrSourceNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("file not found"))
		case errors.Is(err, extract.ErrUnsupportedFileType):
			writeJSON(w, http.StatusBadRequest, errorBody("unsupported file type"))
		case errors.Is(err, organizer.ErrNoMatch):
			writeJSON(w, http.StatusUnprocessableEntity, errorBody("no matching rule"))
		default:
			slog.Error("process failed", slog.String("path", req.Path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, op)
}

// Operations handles GET /api/operations.
//
//	@Summary		List undoable operations, newest first
//	@Tags			operations
//	@Produce		json
//	@Success		200	{object}	OperationListResponse
//	@Security		BearerAuth
//	@Router			/operations [get]
func (h *Handler) Operations(w http.ResponseWriter, r *http.Request) {
	ops := h.org.Operations()
	if ops == nil {
		ops = []fileops.FileOperation{}
	}
	writeJSON(w, http.StatusOK, OperationListResponse{Operations: ops})
}

// UndoLast handles POST /api/operations/undo.
//
//	@Summary		Undo the most recent move
//	@Tags			operations
//	@Produce		json
//	@Success		200	{object}	fileops.FileOperation
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/operations/undo [post]
func (h *Handler) UndoLast(w http.ResponseWriter, r *http.Request) {
	op, err := h.org.UndoLast(r.Context())
	if err != nil {
		h.writeUndoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, op)
}

// Undo handles POST /api/operations/{id}/undo.
//
//	@Summary		Undo a specific move
//	@Tags			operations
//	@Produce		json
//	@Param			id	path		string	true	"Operation id"
//	@Success		200	{object}	fileops.FileOperation
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/operations/{id}/undo [post]
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	op, err := h.org.Undo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeUndoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, op)
}

func (h *Handler) writeUndoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fileops.ErrNothingToUndo):
		writeJSON(w, http.StatusNotFound, errorBody("nothing to undo"))
	case errors.Is(err, fileops.ErrOperationNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("operation not found"))
	case errors.Is(err, fileops.ErrSourceNotFound):
		writeJSON(w, http.StatusConflict, errorBody("organized file no longer at its destination"))
	default:
		slog.Error("undo failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// Moves handles GET /api/moves.
//
//	@Summary		List recent move-log rows
//	@Tags			operations
//	@Produce		json
//	@Param			limit	query		int	false	"Max rows"
//	@Success		200		{object}	MoveListResponse
//	@Security		BearerAuth
//	@Router			/moves [get]
func (h *Handler) Moves(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	moves, err := h.store.RecentMoves(r.Context(), limit)
	if err != nil {
		slog.Error("list moves failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if moves == nil {
		moves = []rules.MoveRecord{}
	}
	writeJSON(w, http.StatusOK, MoveListResponse{Moves: moves})
}

// decodeRule reads and validates a rule payload, writing the error response
// itself on failure.
func decodeRule(w http.ResponseWriter, r *http.Request) (*SaveRuleRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req SaveRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return nil, false
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return nil, false
	}
	return &req, true
}
