package sse

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// drain collects the frames already queued on ch.
func drain(ch chan []byte, settle time.Duration) []string {
	time.Sleep(settle)
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPageFrame(t *testing.T) {
	b := NewBroker(time.Minute)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishPage(PageRenamed, "Beta", "Alpha")

	select {
	case msg := <-ch:
		want := "id: 1\nevent: page.renamed\ndata: {\"word\":\"Beta\",\"old_word\":\"Alpha\"}\n\n"
		if string(msg) != want {
			t.Errorf("frame = %q, want %q", msg, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestGraphUpdatesAreCoalesced(t *testing.T) {
	b := NewBroker(200 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishPage(PageSaved, "A", "")
	b.PublishPage(PageRenamed, "C", "B")
	b.PublishBlock(BlockStored, "blob")

	got := drain(ch, 50*time.Millisecond)
	if len(got) != 4 {
		t.Fatalf("frames = %d, want 4: %q", len(got), got)
	}
	if !strings.Contains(got[1], "event: graph.updated\ndata: {\"words\":[\"A\"]}") {
		t.Errorf("first graph frame = %q", got[1])
	}
	for _, f := range got[2:] {
		if strings.Contains(f, GraphUpdated) {
			t.Errorf("graph.updated inside the throttle window: %q", f)
		}
	}

	// The changes held back by the throttle arrive once it expires.
	got = drain(ch, 300*time.Millisecond)
	if len(got) != 1 {
		t.Fatalf("trailing frames = %d, want 1: %q", len(got), got)
	}
	if !strings.Contains(got[0], "data: {\"words\":[\"B\",\"C\"]}") {
		t.Errorf("trailing graph frame = %q", got[0])
	}
}

func TestBlockChangesLeaveGraphAlone(t *testing.T) {
	b := NewBroker(10 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishBlock(BlockStored, "blob")
	b.PublishBlock(BlockDeleted, "blob")

	got := drain(ch, 50*time.Millisecond)
	if len(got) != 2 {
		t.Fatalf("frames = %d, want 2: %q", len(got), got)
	}
	if !strings.Contains(got[1], "event: block.deleted\ndata: {\"name\":\"blob\"}") {
		t.Errorf("block frame = %q", got[1])
	}
}

func TestLinkChangesOnlyFeedGraph(t *testing.T) {
	b := NewBroker(time.Minute)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishLinks("Home")
	b.PublishLinks("Other")

	got := drain(ch, 50*time.Millisecond)
	if len(got) != 1 {
		t.Fatalf("frames = %d, want 1: %q", len(got), got)
	}
	want := "id: 1\nevent: graph.updated\ndata: {\"words\":[\"Home\"]}\n\n"
	if got[0] != want {
		t.Errorf("frame = %q, want %q", got[0], want)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(time.Minute)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishPage(PageSaved, "X", "")
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.HasPrefix(body, "retry: 3000\n\n") {
		t.Errorf("missing retry hint: %q", body)
	}
	if !strings.Contains(body, "event: page.saved") {
		t.Errorf("handler output missing event: %q", body)
	}
	if w.Header().Get("Content-Type") != "text/event-stream" {
		t.Errorf("content type = %q", w.Header().Get("Content-Type"))
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestReplayAfterLastEventID(t *testing.T) {
	b := NewBroker(time.Minute)
	defer b.Close()
	for _, name := range []string{"one", "two", "three"} {
		b.PublishBlock(BlockStored, name)
	}
	// Let the loop record the frames before the client connects.
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	if strings.Contains(body, `"one"`) {
		t.Errorf("frame 1 was replayed: %q", body)
	}
	for _, want := range []string{"id: 2\n", `"two"`, "id: 3\n", `"three"`} {
		if !strings.Contains(body, want) {
			t.Errorf("replay missing %q in %q", want, body)
		}
	}
}

func TestReplayIsBounded(t *testing.T) {
	b := NewBroker(time.Minute)
	defer b.Close()
	for i := range backlog + 6 {
		b.PublishBlock(BlockStored, fmt.Sprintf("b%d", i))
	}
	time.Sleep(50 * time.Millisecond)

	ch := b.subscribe(1)
	defer b.Unsubscribe(ch)
	got := drain(ch, 50*time.Millisecond)
	if len(got) != backlog {
		t.Fatalf("replayed %d frames, want %d", len(got), backlog)
	}
	if !strings.HasPrefix(got[0], "id: 7\n") {
		t.Errorf("oldest replayed frame = %q", got[0])
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer and then some; none of this may block.
	for i := 0; i < clientBuffer+6; i++ {
		b.PublishBlock(BlockStored, "x")
	}
	if n := len(drain(ch, 50*time.Millisecond)); n != clientBuffer {
		t.Errorf("delivered %d frames, want %d", n, clientBuffer)
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.PublishPage(PageSaved, "X", "")
	b.PublishBlock(BlockStored, "x")
	if _, ok := <-b.Subscribe(); ok {
		t.Fatal("subscribe after close returns a closed channel")
	}
}
