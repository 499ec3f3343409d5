// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes wiki tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/pageservice"
)

const contractURI = "wikistore://page-format"

// Server wraps the MCP server with wiki tools.
type Server struct {
	mcp *server.MCPServer
	svc *pageservice.Service
}

// New creates a new MCP server with all wiki tools registered.
func New(svc *pageservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Wikistore",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("find_pages",
		mcp.WithDescription("Find pages whose name contains the query, plus pages reachable through a matching alias or heading."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Text to look for")),
	), s.findPages)

	s.mcp.AddTool(mcp.NewTool("read_page",
		mcp.WithDescription("Read the full text of a wiki page."),
		mcp.WithString("word", mcp.Required(), mcp.Description("Wiki word of the page")),
	), s.readPage)

	s.mcp.AddTool(mcp.NewTool("write_page",
		mcp.WithDescription("Create or replace a wiki page. "+
			"Content SHOULD follow the page format contract ([[links]], optional YAML front matter, "+
			"todo: lines). Read the contract first via the get_page_contract tool or the "+
			contractURI+" resource."),
		mcp.WithString("word", mcp.Required(), mcp.Description("Wiki word of the page")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Page text")),
		mcp.WithString("etag", mcp.Description("ETag from read_page_details; the write fails if the page changed since")),
	), s.writePage)

	s.mcp.AddTool(mcp.NewTool("read_page_details",
		mcp.WithDescription("Read a page with its properties, links, backlinks, todos and ETag as JSON."),
		mcp.WithString("word", mcp.Required(), mcp.Description("Wiki word of the page")),
	), s.readPageDetails)

	s.mcp.AddTool(mcp.NewTool("rename_page",
		mcp.WithDescription("Rename a page. Its properties, todos, links and aliases move with it."),
		mcp.WithString("from", mcp.Required(), mcp.Description("Current wiki word")),
		mcp.WithString("to", mcp.Required(), mcp.Description("New wiki word")),
	), s.renamePage)

	s.mcp.AddTool(mcp.NewTool("list_pages",
		mcp.WithDescription("List all pages or pages whose word starts with a prefix."),
		mcp.WithString("prefix", mcp.Description("Optional prefix (empty for all)")),
	), s.listPages)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all pages that link to the specified page."),
		mcp.WithString("word", mcp.Required(), mcp.Description("Wiki word to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("undefined_words",
		mcp.WithDescription("List link targets that do not resolve to any page."),
	), s.undefinedWords)

	s.mcp.AddTool(mcp.NewTool("resolve_link",
		mcp.WithDescription("Resolve link text through aliases to the page it names."),
		mcp.WithString("term", mcp.Required(), mcp.Description("Link target text")),
	), s.resolveLink)

	s.mcp.AddTool(mcp.NewTool("get_page_contract",
		mcp.WithDescription("Returns the wiki page format contract. "+
			"Call this before writing pages to ensure they are indexed as intended."),
	), s.getPageContract)

	s.mcp.AddTool(mcp.NewTool("upload_block",
		mcp.WithDescription("Download an asset from an http(s) or base64 data: URL and store it as a data block."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data: URI")),
		mcp.WithString("name", mcp.Description("Block name; derived from the URL when empty")),
		mcp.WithString("placement", mcp.Description("intern or extern (default extern)")),
	), s.uploadBlock)

	// Resource: page format contract.
	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Page Format Contract",
			mcp.WithResourceDescription("How page text is turned into links, properties, aliases and todos."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func toolError(word string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", word))
	case errors.Is(err, apperr.ErrConflict):
		return mcp.NewToolResultError(fmt.Sprintf("page changed since it was read: %s", word))
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) findPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	words, err := s.svc.ListPages(ctx, "", query)
	if err != nil {
		return toolError(query, err), nil
	}
	terms, err := s.svc.Wiki().GetWikiLinksStartingWith(ctx, query)
	if err != nil {
		return toolError(query, err), nil
	}
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		seen[w] = true
	}
	for _, t := range terms {
		if !seen[t.Word] {
			seen[t.Word] = true
			words = append(words, t.Word)
		}
	}
	if len(words) == 0 {
		return mcp.NewToolResultText("no pages found"), nil
	}
	return mcp.NewToolResultText(strings.Join(words, "\n")), nil
}

func (s *Server) readPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	word, err := req.RequireString("word")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := s.svc.Wiki().GetContent(ctx, word)
	if err != nil {
		return toolError(word, err), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) readPageDetails(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	word, err := req.RequireString("word")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, err := s.svc.GetPage(ctx, word)
	if err != nil {
		return toolError(word, err), nil
	}
	return jsonResult(page), nil
}

func (s *Server) writePage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	word, err := req.RequireString("word")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, err := s.svc.SavePage(ctx, word, content, req.GetString("etag", ""))
	if err != nil {
		return toolError(word, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %s (etag %s)", page.Word, page.ETag)), nil
}

func (s *Server) renamePage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := req.RequireString("from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := req.RequireString("to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.svc.RenamePage(ctx, from, to); err != nil {
		return toolError(from, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("renamed: %s -> %s", from, to)), nil
}

func (s *Server) listPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	words, err := s.svc.ListPages(ctx, req.GetString("prefix", ""), "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(strings.Join(words, "\n")), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	word, err := req.RequireString("word")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.svc.Backlinks(ctx, word)
	if err != nil {
		return toolError(word, err), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(bl, "\n")), nil
}

func (s *Server) undefinedWords(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	words, err := s.svc.Wiki().GetUndefinedWords(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(words) == 0 {
		return mcp.NewToolResultText("every link resolves"), nil
	}
	return mcp.NewToolResultText(strings.Join(words, "\n")), nil
}

func (s *Server) resolveLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	term, err := req.RequireString("term")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	word, err := s.svc.Wiki().GetUnAliasedWikiWord(ctx, term)
	if err != nil {
		return toolError(term, err), nil
	}
	return mcp.NewToolResultText(word), nil
}

func (s *Server) getPageContract(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PageFormatContract), nil
}

func (s *Server) readContractResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     PageFormatContract,
		},
	}, nil
}
