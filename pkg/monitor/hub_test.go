package monitor

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/lokutor-ai/phrasecap/pkg/audio"
)

func TestHubBroadcastsToConnectedClient(t *testing.T) {
	hub := NewHub(nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// Give the server goroutine time to register the connection before
	// broadcasting, matching the handler's register-then-loop order.
	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.Lock()
		n := len(hub.clients)
		hub.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	ev := PhraseEventFromData(time.Unix(0, 0).UTC(), audio.New(make([]byte, 3200), 16000, 2))
	ev.Transcript = "hello world"
	hub.Broadcast(ev)

	var got PhraseEvent
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("Read: %v", err)
	}

	if got.Transcript != "hello world" {
		t.Errorf("Transcript = %q, want %q", got.Transcript, "hello world")
	}
	if got.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", got.SampleRate)
	}
}

func TestHubDropsSlowClientsWithoutBlocking(t *testing.T) {
	hub := NewHub(nil)
	c := &client{send: make(chan PhraseEvent)} // unbuffered, nobody reads
	hub.register(c)
	defer hub.unregister(c)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			hub.Broadcast(PhraseEvent{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a slow client instead of dropping")
	}
}
