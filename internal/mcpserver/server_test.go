package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/wikistore/internal/indexer"
	"github.com/starford/wikistore/internal/pageservice"
	"github.com/starford/wikistore/internal/testutil"
	"github.com/starford/wikistore/internal/wikidata"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	wd := testutil.TestWiki(t, wikidata.BackendSQLite)
	return New(pageservice.NewService(wd, indexer.New(wd, nil)))
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process "call tool" helper, so handlers are
	// invoked directly.
	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"find_pages":        srv.findPages,
		"read_page":         srv.readPage,
		"read_page_details": srv.readPageDetails,
		"write_page":        srv.writePage,
		"rename_page":       srv.renamePage,
		"list_pages":        srv.listPages,
		"get_backlinks":     srv.getBacklinks,
		"undefined_words":   srv.undefinedWords,
		"resolve_link":      srv.resolveLink,
		"get_page_contract": srv.getPageContract,
		"upload_block":      srv.uploadBlock,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestWriteAndReadPage(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "write_page", map[string]any{
		"word":    "Test",
		"content": "# Test\nHello",
	})
	if r.IsError || !strings.HasPrefix(resultText(r), "saved: Test") {
		t.Errorf("write result = %q", resultText(r))
	}

	r = callTool(t, srv, "read_page", map[string]any{"word": "Test"})
	if text := resultText(r); text != "# Test\nHello" {
		t.Errorf("read result = %q", text)
	}
}

func TestWritePageWithStaleETag(t *testing.T) {
	srv := testServer(t)
	_ = callTool(t, srv, "write_page", map[string]any{"word": "Doc", "content": "v1"})

	r := callTool(t, srv, "write_page", map[string]any{"word": "Doc", "content": "v2", "etag": "old"})
	if !r.IsError {
		t.Error("expected error for stale etag")
	}

	r = callTool(t, srv, "read_page_details", map[string]any{"word": "Doc"})
	var page pageservice.PageDetail
	if err := json.Unmarshal([]byte(resultText(r)), &page); err != nil {
		t.Fatal(err)
	}
	r = callTool(t, srv, "write_page", map[string]any{"word": "Doc", "content": "v2", "etag": page.ETag})
	if r.IsError {
		t.Errorf("write with current etag failed: %s", resultText(r))
	}
}

func TestListPages(t *testing.T) {
	srv := testServer(t)
	for _, w := range []string{"Apple", "Apricot", "Banana"} {
		_ = callTool(t, srv, "write_page", map[string]any{"word": w, "content": "x"})
	}

	r := callTool(t, srv, "list_pages", map[string]any{"prefix": "Ap"})
	if text := resultText(r); text != "Apple\nApricot" {
		t.Errorf("list = %q", text)
	}
}

func TestReadPageMissing(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "read_page", map[string]any{"word": "Nope"})
	if !r.IsError {
		t.Error("expected error for missing page")
	}
}

func TestBacklinksAndUndefined(t *testing.T) {
	srv := testServer(t)
	_ = callTool(t, srv, "write_page", map[string]any{"word": "A", "content": "links to [[B]]"})

	r := callTool(t, srv, "undefined_words", map[string]any{})
	if text := resultText(r); text != "B" {
		t.Errorf("undefined = %q, want B", text)
	}

	_ = callTool(t, srv, "write_page", map[string]any{"word": "B", "content": "here"})
	r = callTool(t, srv, "get_backlinks", map[string]any{"word": "B"})
	if text := resultText(r); text != "A" {
		t.Errorf("backlinks = %q, want A", text)
	}
}

func TestRenameAndResolve(t *testing.T) {
	srv := testServer(t)
	_ = callTool(t, srv, "write_page", map[string]any{"word": "Robert", "content": "---\nalias: Bob\n---\n"})

	r := callTool(t, srv, "rename_page", map[string]any{"from": "Robert", "to": "Rob"})
	if r.IsError {
		t.Fatalf("rename failed: %s", resultText(r))
	}
	r = callTool(t, srv, "resolve_link", map[string]any{"term": "Bob"})
	if text := resultText(r); text != "Rob" {
		t.Errorf("resolve = %q, want Rob", text)
	}

	r = callTool(t, srv, "find_pages", map[string]any{"query": "Bo"})
	if text := resultText(r); text != "Rob" {
		t.Errorf("find = %q, want Rob", text)
	}
}

func TestUploadBlockFromDataURI(t *testing.T) {
	srv := testServer(t)
	payload := []byte("plain block text")
	uri := "data:text/plain;base64," + base64.StdEncoding.EncodeToString(payload)

	r := callTool(t, srv, "upload_block", map[string]any{"url": uri, "name": "notes/readme"})
	if r.IsError {
		t.Fatalf("upload failed: %s", resultText(r))
	}
	var res uploadResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatal(err)
	}
	if res.Name != "notes/readme" || res.Placement != "extern" || res.Size != len(payload) {
		t.Errorf("result = %+v", res)
	}

	got, err := srv.svc.Wiki().RetrieveDataBlockAsText(context.Background(), "notes/readme")
	if err != nil || got != string(payload) {
		t.Errorf("stored block = %q, %v", got, err)
	}
}

func TestUploadBlockRejectsLoopback(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "upload_block", map[string]any{"url": "http://127.0.0.1/secret.png"})
	if !r.IsError {
		t.Error("expected loopback download to be refused")
	}
}

func TestDecodeDataURI(t *testing.T) {
	data, ext, err := decodeDataURI("data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png")))
	if err != nil || string(data) != "png" || ext != ".png" {
		t.Errorf("decode = %q %q %v", data, ext, err)
	}
	if _, _, err := decodeDataURI("data:text/plain,raw"); err == nil {
		t.Error("expected error for non-base64 data URI")
	}
}

func TestContractToolMatchesResource(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_page_contract", map[string]any{})
	contents, err := srv.readContractResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.Text != resultText(r) {
		t.Error("contract resource and tool differ")
	}
}
