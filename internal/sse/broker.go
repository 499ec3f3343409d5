// Package sse streams wiki change notifications to HTTP clients as
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"sync/atomic"
	"time"
)

// Event names written to the stream.
const (
	PageSaved    = "page.saved"
	PageRenamed  = "page.renamed"
	PageDeleted  = "page.deleted"
	BlockStored  = "block.stored"
	BlockDeleted = "block.deleted"
	GraphUpdated = "graph.updated"
)

// PageChange is the payload of the page events.
type PageChange struct {
	Word    string `json:"word"`
	OldWord string `json:"old_word,omitempty"`
}

// BlockChange is the payload of the block events.
type BlockChange struct {
	Name string `json:"name"`
}

// GraphChange is the payload of graph.updated: every page whose links may
// have changed since the previous graph.updated.
type GraphChange struct {
	Words []string `json:"words"`
}

const (
	clientBuffer = 64
	// backlog is how many frames are kept for Last-Event-ID replay.
	backlog = 64
)

type change struct {
	kind  string
	data  any
	words []string
}

type frame struct {
	id  uint64
	raw []byte
}

type subscription struct {
	ch    chan []byte
	after uint64
}

// Broker fans wiki changes out to subscribers. Page changes are followed
// by a graph.updated event, sent at most once per throttle interval and
// carrying the words collected since the last one.
//
// A single goroutine owns the subscribers, the replay backlog and the
// graph throttle; the public methods talk to it over channels.
type Broker struct {
	graphMin time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	changeCh      chan change
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker whose graph.updated events are at least
// graphThrottle apart.
func NewBroker(graphThrottle time.Duration) *Broker {
	if graphThrottle <= 0 {
		graphThrottle = 2 * time.Second
	}

	b := &Broker{
		graphMin:      graphThrottle,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		changeCh:      make(chan change, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq       uint64
		history   []frame
		lastGraph time.Time
		pending   = make(map[string]struct{})
		timer     *time.Timer
		timerC    <-chan time.Time
	)

	send := func(ch chan []byte, raw []byte) {
		select {
		case ch <- raw:
		default:
			// Slow client; it can catch up through Last-Event-ID.
		}
	}
	broadcast := func(kind string, data any) {
		payload, err := json.Marshal(data)
		if err != nil {
			return
		}
		seq++
		f := frame{id: seq, raw: fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", seq, kind, payload)}
		history = append(history, f)
		if len(history) > backlog {
			history = slices.Delete(history, 0, len(history)-backlog)
		}
		for ch := range clients {
			send(ch, f.raw)
		}
	}
	flushGraph := func() {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
		if len(pending) == 0 {
			return
		}
		words := slices.Sorted(maps.Keys(pending))
		clear(pending)
		lastGraph = time.Now()
		broadcast(GraphUpdated, GraphChange{Words: words})
	}

	for {
		select {
		case <-b.stopCh:
			if timer != nil {
				timer.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = struct{}{}
			if sub.after == 0 {
				continue
			}
			for _, f := range history {
				if f.id > sub.after {
					send(sub.ch, f.raw)
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case c := <-b.changeCh:
			if c.kind != "" {
				broadcast(c.kind, c.data)
			}
			if len(c.words) == 0 {
				continue
			}
			for _, w := range c.words {
				pending[w] = struct{}{}
			}
			if wait := b.graphMin - time.Since(lastGraph); wait <= 0 {
				flushGraph()
			} else if timer == nil {
				timer = time.NewTimer(wait)
				timerC = timer.C
			}

		case <-timerC:
			timer, timerC = nil, nil
			flushGraph()

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the broker and closes every subscriber channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client that receives changes from now on.
func (b *Broker) Subscribe() chan []byte {
	return b.subscribe(0)
}

// subscribe adds a client and first replays the kept frames with ids
// above after.
func (b *Broker) subscribe(after uint64) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, after: after}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// PublishPage announces a page change. oldWord is set for renames.
func (b *Broker) PublishPage(kind, word, oldWord string) {
	words := []string{word}
	if oldWord != "" {
		words = append(words, oldWord)
	}
	b.publish(change{kind: kind, data: PageChange{Word: word, OldWord: oldWord}, words: words})
}

// PublishBlock announces a data block change. Blocks are not part of the
// link graph.
func (b *Broker) PublishBlock(kind, name string) {
	b.publish(change{kind: kind, data: BlockChange{Name: name}})
}

// PublishLinks records that the outgoing links of word changed. It only
// feeds the throttled graph.updated event.
func (b *Broker) PublishLinks(word string) {
	b.publish(change{words: []string{word}})
}

func (b *Broker) publish(c change) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- c:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). A reconnecting
// client sending Last-Event-ID first receives the kept frames it missed.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	after, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("retry: 3000\n\n"))
	flusher.Flush()

	ch := b.subscribe(after)
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
