// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the Synapse assistant as tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/synapse/internal/agent"
	"github.com/starford/synapse/internal/apperr"
	"github.com/starford/synapse/internal/directive"
	"github.com/starford/synapse/internal/search"
	"github.com/starford/synapse/internal/vault"
)

const formatURI = "synapse://document-format"

// MessageHandler processes one inbound message.
type MessageHandler interface {
	Handle(ctx context.Context, msg agent.Message) agent.Result
}

// Searcher runs document searches.
type Searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Result, error)
}

// Server wraps the MCP server with Synapse tools.
type Server struct {
	mcp        *server.MCPServer
	engine     MessageHandler
	vault      *vault.Service
	directives *directive.Store
	search     Searcher
}

// New creates a new MCP server with all tools registered.
func New(engine MessageHandler, v *vault.Service, directives *directive.Store, s Searcher) *Server {
	srv := &Server{engine: engine, vault: v, directives: directives, search: s}

	srv.mcp = server.NewMCPServer(
		"Synapse",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	srv.mcp.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Send a message to the assistant as if typed in chat. "+
			"It files captures, answers questions from the vault, edits document metadata "+
			"and manages standing directives, then returns its reply."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Message text")),
		mcp.WithString("thread_id", mcp.Description("Optional conversation thread identifier")),
	), srv.sendMessage)

	srv.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Search vault documents by keyword, list metadata, or grep body text."),
		mcp.WithString("query", mcp.Description("Search terms, space separated")),
		mcp.WithString("folders", mcp.Description("Comma-separated folders to search (empty for all)")),
		mcp.WithString("mode", mcp.Description("Search mode"), mcp.Enum("default", "metadata", "grep")),
	), srv.searchDocuments)

	srv.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read the full content of a vault document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path or file name (e.g. Actions/taxes.md or taxes)")),
	), srv.readDocument)

	srv.mcp.AddTool(mcp.NewTool("list_directives",
		mcp.WithDescription("List the standing directives the assistant follows."),
	), srv.listDirectives)

	srv.mcp.AddTool(mcp.NewTool("add_directive",
		mcp.WithDescription("Add a standing directive."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Directive text")),
	), srv.addDirective)

	srv.mcp.AddTool(mcp.NewTool("remove_directive",
		mcp.WithDescription("Remove a standing directive by its number as shown by list_directives."),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("1-based directive number")),
	), srv.removeDirective)

	srv.mcp.AddTool(mcp.NewTool("get_document_format",
		mcp.WithDescription("Returns the vault document format: header fields, folders and linking rules."),
	), srv.getDocumentFormat)

	srv.mcp.AddTool(mcp.NewTool("save_attachment",
		mcp.WithDescription("Download an image or PDF (http/https URL or base64 data URI) into the "+
			"vault attachments folder. Returns the saved name and a wiki-link to embed."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data: URI")),
		mcp.WithString("filename", mcp.Description("Optional file name; derived from the URL when empty")),
	), srv.saveAttachment)

	srv.mcp.AddResource(
		mcp.NewResource(formatURI, "Document Format",
			mcp.WithResourceDescription("Markdown document format used in the vault."),
			mcp.WithMIMEType("text/markdown"),
		),
		srv.readFormatResource,
	)

	return srv
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) sendMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("text is required"), nil
	}
	res := s.engine.Handle(ctx, agent.Message{Text: text, ThreadID: req.GetString("thread_id", "")})
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := search.Query{
		Terms: strings.Fields(req.GetString("query", "")),
		Mode:  search.ParseMode(req.GetString("mode", "")),
	}
	for _, f := range strings.Split(req.GetString("folders", ""), ",") {
		if f = strings.TrimSpace(f); f != "" {
			q.Folders = append(q.Folders, f)
		}
	}
	if q.Mode == search.ModeGrep && len(q.Terms) == 0 {
		return mcp.NewToolResultError("query is required for grep"), nil
	}
	res, err := s.search.Search(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.vault.Find(ctx, name, "")
	if err != nil {
		return mcp.NewToolResultError(describe(name, err)), nil
	}
	data, err := s.vault.Read(ctx, p)
	if err != nil {
		return mcp.NewToolResultError(describe(name, err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) listDirectives(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := s.directives.Render(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) addDirective(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	idx, err := s.directives.Add(ctx, text)
	if errors.Is(err, directive.ErrEmpty) {
		return mcp.NewToolResultError("text is required"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("added directive #%d", idx)), nil
}

func (s *Server) removeDirective(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idx, err := req.RequireInt("index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	removed, ok, err := s.directives.Remove(ctx, idx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no directive #%d", idx)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("removed directive #%d: %s", idx, removed)), nil
}

func (s *Server) getDocumentFormat(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DocumentFormatContract), nil
}

func (s *Server) readFormatResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     DocumentFormatContract,
		},
	}, nil
}

func describe(name string, err error) string {
	switch {
	case apperr.IsNotFound(err):
		return fmt.Sprintf("not found: %s", name)
	case apperr.IsPathEscape(err):
		return fmt.Sprintf("path is outside the vault: %s", name)
	default:
		return err.Error()
	}
}
