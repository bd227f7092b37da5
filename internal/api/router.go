package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/othala/internal/organizer"
	"github.com/starford/othala/internal/rules"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(org *organizer.Organizer, store rules.Store, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(org, store)
	fh := NewFileHandler(store)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Pipeline state.
	r.Get("/status", h.Status)

	// Rules CRUD.
	r.Get("/rules", h.ListRules)
	r.Post("/rules", h.CreateRule)
	r.Get("/rules/{id}", h.GetRule)
	r.Put("/rules/{id}", h.UpdateRule)
	r.Delete("/rules/{id}", h.DeleteRule)

	// Settings.
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)

	// Operations.
	r.Post("/process", h.Process)
	r.Get("/operations", h.Operations)
	r.Post("/operations/undo", h.UndoLast)
	r.Post("/operations/{id}/undo", h.Undo)
	r.Get("/moves", h.Moves)

	// Uploads into the inbox (auth-protected).
	r.Post("/files", fh.Upload)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
