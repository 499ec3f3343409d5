package internal

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/starford/wikistore/internal/sse"
	"github.com/starford/wikistore/internal/wikidata"
)

func TestOpenWikiCreatesDataDir(t *testing.T) {
	cfg := NewDefaultConfig().Wiki
	cfg.DataDir = t.TempDir() + "/nested/data"
	cfg.Backend = wikidata.BackendLite

	wd, err := OpenWiki(context.Background(), cfg, NewLogger(0))
	if err != nil {
		t.Fatalf("OpenWiki: %v", err)
	}
	defer wd.Close()
	if wd.RootWord() != "WikiHome" {
		t.Errorf("root word = %q", wd.RootWord())
	}
}

func TestStoreEventsReachBroker(t *testing.T) {
	broker := sse.NewBroker(time.Minute)
	defer broker.Close()
	ch := broker.Subscribe()
	defer broker.Unsubscribe(ch)

	cfg := NewDefaultConfig().Wiki
	cfg.DataDir = t.TempDir()
	wd, err := OpenWiki(context.Background(), cfg, NewLogger(0), wikidata.WithListener(publishTo(broker)))
	if err != nil {
		t.Fatalf("OpenWiki: %v", err)
	}
	defer wd.Close()

	if err := wd.SetContent(context.Background(), "Page", "text"); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: page.saved") || !strings.Contains(s, `"word":"Page"`) {
			t.Errorf("unexpected message %q", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestPublishToMapsEventKinds(t *testing.T) {
	broker := sse.NewBroker(time.Minute)
	defer broker.Close()
	ch := broker.Subscribe()
	defer broker.Unsubscribe(ch)

	publish := publishTo(broker)
	publish(wikidata.Event{Kind: wikidata.EventBlockStored, Name: "blob"})
	publish(wikidata.Event{Kind: wikidata.EventGraphUpdated, Word: "Home"})
	publish(wikidata.Event{Kind: wikidata.EventPageRenamed, Word: "New", OldWord: "Old"})

	want := []string{
		"event: block.stored\ndata: {\"name\":\"blob\"}",
		"event: graph.updated\ndata: {\"words\":[\"Home\"]}",
		"event: page.renamed\ndata: {\"word\":\"New\",\"old_word\":\"Old\"}",
	}
	for _, w := range want {
		select {
		case msg := <-ch:
			if !strings.Contains(string(msg), w) {
				t.Errorf("frame %q does not contain %q", msg, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no frame for %q", w)
		}
	}
}
