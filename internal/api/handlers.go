package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/synapse/internal/agent"
	"github.com/starford/synapse/internal/apperr"
	"github.com/starford/synapse/internal/briefing"
	"github.com/starford/synapse/internal/bulkedit"
	"github.com/starford/synapse/internal/checksum"
	"github.com/starford/synapse/internal/directive"
	"github.com/starford/synapse/internal/frontmatter"
	"github.com/starford/synapse/internal/search"
	"github.com/starford/synapse/internal/sse"
	"github.com/starford/synapse/internal/vault"
)

const (
	maxMessageBytes = 60 << 20 // base64 attachments
	maxJSONBytes    = 1 << 20
)

// MessageHandler processes one inbound message.
type MessageHandler interface {
	Handle(ctx context.Context, msg agent.Message) agent.Result
}

// Searcher runs document searches.
type Searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Result, error)
}

// Deps are the collaborators the API serves.
type Deps struct {
	Engine     MessageHandler
	Vault      *vault.Service
	Directives *directive.Store
	Search     Searcher
	Briefing   *briefing.Builder
	Events     *sse.Broker // optional
	Now        func() time.Time
}

// Handler holds API route handlers.
type Handler struct {
	deps Deps
}

// NewHandler creates a new Handler.
func NewHandler(deps Deps) *Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Handler{deps: deps}
}

// documentPath extracts the document path from the URL (everything after
// /api/documents/). Encoded slashes are accepted.
func documentPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// SendMessage handles POST /api/messages.
//
//	@Summary		Process a capture message
//	@Tags			messages
//	@Accept			json
//	@Produce		json
//	@Param			body	body		MessageRequest	true	"Message"
//	@Success		200		{object}	MessageResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/messages [post]
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if !decodeJSON(w, r, maxMessageBytes, &req) {
		return
	}
	res := h.deps.Engine.Handle(r.Context(), req.message())
	writeJSON(w, http.StatusOK, res)
}

// ListDirectives handles GET /api/directives.
//
//	@Summary		List standing directives
//	@Tags			directives
//	@Produce		json
//	@Success		200	{object}	DirectiveListResponse
//	@Security		BearerAuth
//	@Router			/directives [get]
func (h *Handler) ListDirectives(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Directives.List(r.Context())
	if err != nil {
		writeError(w, "list directives", err)
		return
	}
	writeJSON(w, http.StatusOK, DirectiveListResponse{Directives: nonNil(list)})
}

// AddDirective handles POST /api/directives.
//
//	@Summary		Add a standing directive
//	@Tags			directives
//	@Accept			json
//	@Produce		json
//	@Param			body	body		DirectiveRequest	true	"Directive"
//	@Success		201		{object}	DirectiveAddResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/directives [post]
func (h *Handler) AddDirective(w http.ResponseWriter, r *http.Request) {
	var req DirectiveRequest
	if !decodeJSON(w, r, maxJSONBytes, &req) {
		return
	}
	idx, err := h.deps.Directives.Add(r.Context(), req.Text)
	switch {
	case errors.Is(err, directive.ErrEmpty):
		writeJSON(w, http.StatusBadRequest, errorBody("text is required"))
		return
	case errors.Is(err, directive.ErrTooLong):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err != nil {
		writeError(w, "add directive", err)
		return
	}
	list, err := h.deps.Directives.List(r.Context())
	if err != nil {
		writeError(w, "list directives", err)
		return
	}
	h.publish(sse.DirectivesUpdated, map[string]int{"count": len(list)})
	writeJSON(w, http.StatusCreated, DirectiveAddResponse{Index: idx, Directives: nonNil(list)})
}

// RemoveDirective handles DELETE /api/directives/{index}.
//
//	@Summary		Remove a standing directive by its 1-based index
//	@Tags			directives
//	@Produce		json
//	@Param			index	path		int	true	"Directive number"
//	@Success		200		{object}	DirectiveRemoveResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/directives/{index} [delete]
func (h *Handler) RemoveDirective(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("index must be a number"))
		return
	}
	removed, ok, err := h.deps.Directives.Remove(r.Context(), idx)
	if err != nil {
		writeError(w, "remove directive", err, slog.Int("index", idx))
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("no such directive"))
		return
	}
	list, err := h.deps.Directives.List(r.Context())
	if err != nil {
		writeError(w, "list directives", err)
		return
	}
	h.publish(sse.DirectivesUpdated, map[string]int{"count": len(list)})
	writeJSON(w, http.StatusOK, DirectiveRemoveResponse{Removed: removed, Directives: nonNil(list)})
}

// Search handles GET /api/search.
//
//	@Summary		Search documents by keyword, metadata or body text
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	false	"Search terms, space separated"
//	@Param			folders	query		string	false	"Comma-separated folders, or all"
//	@Param			mode	query		string	false	"Search mode"	Enums(default, metadata, grep)
//	@Success		200		{object}	search.Result
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := search.ParseMode(q.Get("mode"))
	terms := strings.Fields(q.Get("q"))
	if len(terms) == 0 && mode == search.ModeGrep {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required for grep"))
		return
	}
	var folders []string
	for _, f := range strings.Split(q.Get("folders"), ",") {
		if f = strings.TrimSpace(f); f != "" {
			folders = append(folders, f)
		}
	}
	res, err := h.deps.Search.Search(r.Context(), search.Query{Terms: terms, Folders: folders, Mode: mode})
	if err != nil {
		writeError(w, "search", err, slog.String("query", q.Get("q")))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetDocument handles GET /api/documents/*.
//
//	@Summary		Get a document split into metadata and body
//	@Tags			documents
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	DocumentResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	p := documentPath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	data, err := h.deps.Vault.Read(r.Context(), p)
	if err != nil {
		writeError(w, "get document", err, slog.String("path", p))
		return
	}
	resp := DocumentResponse{Path: p, Checksum: checksum.Sum(data)}
	meta, body, err := frontmatter.Parse(data)
	if err != nil {
		meta, body, resp.Malformed = frontmatter.NewMetadata(), data, true
	}
	resp.Metadata, resp.Body = meta, string(body)
	w.Header().Set("ETag", checksum.ETag(resp.Checksum))
	writeJSON(w, http.StatusOK, resp)
}

// PatchMetadata handles PATCH /api/documents/*.
//
//	@Summary		Update metadata fields of one document
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			path		path		string					true	"Document path"
//	@Param			If-Match	header		string					false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body		MetadataPatchRequest	true	"Fields to set; null removes"
//	@Success		200			{object}	MetadataPatchResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Failure		412			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [patch]
func (h *Handler) PatchMetadata(w http.ResponseWriter, r *http.Request) {
	p := documentPath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req MetadataPatchRequest
	if !decodeJSON(w, r, maxJSONBytes, &req) {
		return
	}
	ifMatch := checksum.FromETag(r.Header.Get("If-Match"))
	updates := make(map[string]any, len(req.Metadata))
	for k, v := range req.Metadata {
		if k = strings.TrimSpace(k); k != "" {
			updates[k] = bulkedit.NormalizeValue(v)
		}
	}
	changes, err := frontmatter.NewEditor(h.deps.Vault).UpdateIfMatch(r.Context(), p, updates, ifMatch)
	if ifMatch != "" && apperr.IsConflict(err) {
		writeJSON(w, http.StatusPreconditionFailed, errorBody("If-Match does not match the current checksum"))
		return
	}
	if err != nil {
		writeError(w, "patch document", err, slog.String("path", p))
		return
	}
	if changes == nil {
		changes = []frontmatter.Change{}
	}
	writeJSON(w, http.StatusOK, MetadataPatchResponse{Path: p, Changes: changes})
}

// GetBriefing handles GET /api/briefing.
//
//	@Summary		Build the daily briefing now
//	@Tags			briefing
//	@Produce		json
//	@Success		200	{object}	BriefingResponse
//	@Security		BearerAuth
//	@Router			/briefing [get]
func (h *Handler) GetBriefing(w http.ResponseWriter, r *http.Request) {
	br, err := h.deps.Briefing.Build(r.Context(), h.deps.Now())
	if err != nil {
		writeError(w, "briefing", err)
		return
	}
	writeJSON(w, http.StatusOK, BriefingResponse{Text: br.Render(), Briefing: br})
}

func (h *Handler) publish(typ string, data any) {
	if h.deps.Events != nil {
		h.deps.Events.Publish(sse.Event{Type: typ, Data: data})
	}
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
