package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/synapse/internal/vault"
)

const maxUploadBytes = 50 << 20 // 50 MB

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".svg": true,
}

// AttachmentHandler serves and accepts attachment files.
type AttachmentHandler struct {
	vault *vault.Service
}

// NewAttachmentHandler creates a handler storing files through v.
func NewAttachmentHandler(v *vault.Service) *AttachmentHandler {
	return &AttachmentHandler{vault: v}
}

func (h *AttachmentHandler) attachPath() string {
	return filepath.Join(h.vault.Root(), filepath.FromSlash(h.vault.AttachmentsFolder()))
}

// safeName validates that name is a plain file name and returns its absolute
// path under the attachments folder.
func (h *AttachmentHandler) safeName(name string) (string, error) {
	if name == "" {
		return "", errors.New("filename is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") || strings.HasPrefix(cleaned, ".") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	return filepath.Join(h.attachPath(), cleaned), nil
}

// ServeFile handles GET /attachments/{filename}.
func (h *AttachmentHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	abs, err := h.safeName(chi.URLParam(r, "filename"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if info, statErr := os.Stat(abs); statErr != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, abs)
}

// Upload handles POST /api/attachments (multipart/form-data, field "file").
//
//	@Summary		Upload an attachment into the vault
//	@Tags			attachments
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"File to upload"
//	@Success		201		{object}	AttachmentUploadResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/attachments [post]
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
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

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}
	saved, err := h.vault.SaveAttachment(r.Context(), header.Filename, data)
	if err != nil {
		writeError(w, "save attachment", err, slog.String("filename", header.Filename))
		return
	}
	writeJSON(w, http.StatusCreated, AttachmentUploadResponse{
		Filename: saved,
		Size:     int64(len(data)),
		Link:     wikiLink(saved),
	})
}

// wikiLink returns the embed form for images and a plain link otherwise.
func wikiLink(name string) string {
	if imageExts[strings.ToLower(filepath.Ext(name))] {
		return "![[" + name + "]]"
	}
	return "[[" + name + "]]"
}
