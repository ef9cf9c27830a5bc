package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

const maxAttachmentSize = 10 << 20 // 10 MB

var extByMediaType = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/svg+xml":   ".svg",
	"application/pdf": ".pdf",
}

type attachmentResult struct {
	Filename string `json:"filename"`
	Size     int    `json:"size"`
	Link     string `json:"link"`
}

// fetcher downloads the bytes behind a URL and reports the extension implied
// by its media type ("" when unknown).
type fetcher func(ctx context.Context, rawURL string) ([]byte, string, error)

func (s *Server) saveAttachment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.storeAttachment(ctx, req, fetchHTTP)
}

func (s *Server) storeAttachment(ctx context.Context, req mcp.CallToolRequest, fetch fetcher) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var data []byte
	var ext string
	if strings.HasPrefix(rawURL, "data:") {
		data, ext, err = decodeDataURI(rawURL)
	} else {
		data, ext, err = fetch(ctx, rawURL)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(data) > maxAttachmentSize {
		return mcp.NewToolResultError(fmt.Sprintf("file too large: %d bytes (max %d)", len(data), maxAttachmentSize)), nil
	}

	name := req.GetString("filename", "")
	if name == "" {
		name = nameFromURL(rawURL, ext)
	}
	fileExt := strings.ToLower(path.Ext(name))
	if !allowedExt(fileExt) {
		return mcp.NewToolResultError(fmt.Sprintf("unsupported file extension %q (allowed: png, jpg, jpeg, gif, webp, svg, pdf)", fileExt)), nil
	}
	if err := checkContent(data, fileExt); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	saved, err := s.vault.SaveAttachment(ctx, name, data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save attachment: %v", err)), nil
	}
	link := "[[" + saved + "]]"
	if fileExt != ".pdf" {
		link = "!" + link
	}
	out, _ := json.Marshal(attachmentResult{Filename: saved, Size: len(data), Link: link})
	return mcp.NewToolResultText(string(out)), nil
}

func allowedExt(ext string) bool {
	if ext == ".jpeg" {
		return true
	}
	for _, e := range extByMediaType {
		if e == ext {
			return true
		}
	}
	return false
}

// decodeDataURI parses a data:<mediatype>;base64,<data> URI.
func decodeDataURI(uri string) ([]byte, string, error) {
	meta, encoded, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", errors.New("invalid data URI: missing comma separator")
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, "", errors.New("only base64 data URIs are supported")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(encoded); err != nil {
			return nil, "", fmt.Errorf("invalid base64 data: %w", err)
		}
	}
	mediaType, _, _ = strings.Cut(mediaType, ";")
	ext := extByMediaType[mediaType]
	if ext == "" {
		return nil, "", fmt.Errorf("unsupported media type in data URI: %s", mediaType)
	}
	return data, ext, nil
}

// fetchHTTP downloads an http(s) URL, refusing loopback and cloud metadata hosts.
func fetchHTTP(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported scheme: %s (only http/https)", u.Scheme)
	}
	if err := checkHost(u.Hostname()); err != nil {
		return nil, "", err
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(r *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects (max 5)")
			}
			return checkHost(r.URL.Hostname())
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body failed: %w", err)
	}
	if len(data) > maxAttachmentSize {
		return nil, "", fmt.Errorf("file too large: exceeds %d bytes", maxAttachmentSize)
	}
	mediaType, _, _ := strings.Cut(resp.Header.Get("Content-Type"), ";")
	return data, extByMediaType[strings.TrimSpace(mediaType)], nil
}

func checkHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return nil //nolint:nilerr // the client reports DNS failures
		}
		ip = ips[0]
	}
	if ip.IsLoopback() {
		return fmt.Errorf("blocked host: loopback address %s", host)
	}
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("blocked host: cloud metadata address %s", host)
	}
	return nil
}

// nameFromURL takes the last path segment of rawURL, or a random name with
// ext when there is none.
func nameFromURL(rawURL, ext string) string {
	if ext == "" {
		ext = ".bin"
	}
	if !strings.HasPrefix(rawURL, "data:") {
		if u, err := url.Parse(rawURL); err == nil {
			if base := path.Base(u.Path); strings.Contains(base, ".") && base != "." {
				return base
			}
		}
	}
	return uuid.NewString() + ext
}

// checkContent verifies data looks like the declared extension.
func checkContent(data []byte, ext string) error {
	if ext == ".svg" {
		head := data[:min(len(data), 1024)]
		if !bytes.Contains(head, []byte("<svg")) {
			return errors.New("content does not appear to be a valid SVG (missing <svg tag)")
		}
		return nil
	}
	detected := http.DetectContentType(data)
	mediaType, _, _ := strings.Cut(detected, ";")
	got := extByMediaType[mediaType]
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	if got != ext {
		return fmt.Errorf("content does not match extension %s (detected: %s)", ext, detected)
	}
	return nil
}
