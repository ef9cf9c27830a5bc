package api

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced. When
// deps.Events is set the broker is mounted at GET /events inside the auth group.
func NewRouter(deps Deps, authEnabled bool, token string) chi.Router {
	h := NewHandler(deps)
	ah := NewAttachmentHandler(deps.Vault)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Post("/messages", h.SendMessage)

	r.Get("/directives", h.ListDirectives)
	r.Post("/directives", h.AddDirective)
	r.Delete("/directives/{index}", h.RemoveDirective)

	r.Get("/search", h.Search)

	r.Get("/documents/*", h.GetDocument)
	r.Patch("/documents/*", h.PatchMetadata)

	r.Get("/briefing", h.GetBriefing)

	r.Post("/attachments", ah.Upload)
	r.Get("/attachments/{filename}", ah.ServeFile)

	if deps.Events != nil {
		r.Get("/events", deps.Events.ServeHTTP)
	}
	return r
}
