// Package monitor exposes a live WebSocket feed of segmented phrases
// and their recognition results, for a dashboard to observe what the
// listener is doing. It is an enrichment beyond the core segmentation
// contract (spec §6 names one external interface, the recognizer; this
// is a second) that exercises the teacher's coder/websocket dependency
// from the server side instead of the client side it was used for.
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/lokutor-ai/phrasecap/internal/logging"
	"github.com/lokutor-ai/phrasecap/pkg/audio"
	"github.com/lokutor-ai/phrasecap/pkg/recognize"
)

// PhraseEvent is the JSON shape broadcast to every connected dashboard
// client each time a phrase is segmented (and, once available, its
// recognition result).
type PhraseEvent struct {
	Timestamp   time.Time       `json:"timestamp"`
	DurationMS  int64           `json:"duration_ms"`
	SampleRate  int             `json:"sample_rate"`
	SampleWidth int             `json:"sample_width"`
	Transcript  string          `json:"transcript,omitempty"`
	Reply       string          `json:"reply,omitempty"`
	Intent      json.RawMessage `json:"intent,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Hub accepts inbound WebSocket connections and broadcasts PhraseEvents
// to all of them, one-to-many, in the same broadcast shape as the
// teacher's ManagedStream.events channel fan-out — but over the wire to
// a dashboard rather than only printed to stdout by cmd/agent.
type Hub struct {
	log logging.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan PhraseEvent
}

// NewHub builds an empty Hub.
func NewHub(log logging.Logger) *Hub {
	if log == nil {
		log = logging.NoOpLogger{}
	}
	return &Hub{log: log, clients: make(map[*client]struct{})}
}

// ServeHTTP upgrades the request to a WebSocket and registers the
// connection as a broadcast recipient until it disconnects or the
// request context is cancelled.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn("monitor: websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "closing")

	c := &client{conn: conn, send: make(chan PhraseEvent, 16)}
	h.register(c)
	defer h.unregister(c)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, ev)
			cancel()
			if err != nil {
				h.log.Debug("monitor: client write failed, dropping", "error", err)
				return
			}
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast fans ev out to every currently connected client. A client
// whose send buffer is full misses this event (the client itself stays
// registered) rather than being allowed to back-pressure the listener's
// worker goroutine, which is the one calling this.
func (h *Hub) Broadcast(ev PhraseEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			h.log.Debug("monitor: dropping event for slow client")
		}
	}
}

// PhraseEventFromData builds a PhraseEvent with no recognition result
// yet attached, for broadcasting the instant a phrase is segmented.
func PhraseEventFromData(at time.Time, data audio.Data) PhraseEvent {
	return PhraseEvent{
		Timestamp:   at,
		DurationMS:  data.Duration().Milliseconds(),
		SampleRate:  data.SampleRate,
		SampleWidth: data.SampleWidth,
	}
}

// WithResult attaches a recognizer result (or its error) to an existing
// PhraseEvent before broadcast.
func WithResult(ev PhraseEvent, result recognize.Result, err error) PhraseEvent {
	if err != nil {
		ev.Error = err.Error()
		return ev
	}
	ev.Transcript = result.Transcript
	ev.Reply = result.Reply
	ev.Intent = result.Intent
	return ev
}
