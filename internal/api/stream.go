package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	applog "github.com/sunbk201/tilespoof/internal/log"
	"github.com/sunbk201/tilespoof/internal/prompt"
)

type eventType string

const (
	eventSpoof    eventType = "spoof"
	eventOverride eventType = "override"
	eventPrompt   eventType = "prompt"
)

// event is one line of the /events stream.
type event struct {
	Type    eventType       `json:"type"`
	Enabled *bool           `json:"enabled,omitempty"`
	Armed   *bool           `json:"armed,omitempty"`
	Prompt  *prompt.Pending `json:"prompt,omitempty"`
	Time    time.Time       `json:"time"`
}

func (s *APIServer) publish(e event) {
	e.Time = time.Now()
	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("json.Marshal event", slog.Any("error", err))
		return
	}
	_, _ = s.events.Write(append(data, '\n'))
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *APIServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	stream(w, r, s.opts.Logs, "text/plain; charset=utf-8")
}

func (s *APIServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	stream(w, r, s.events, "application/x-ndjson")
}

// stream forwards every broadcast line to the client, as WebSocket text
// messages when the request asks for an upgrade and as a chunked response
// otherwise.
func stream(w http.ResponseWriter, r *http.Request, b *applog.Broadcaster, contentType string) {
	if websocket.IsWebSocketUpgrade(r) {
		streamWS(w, r, b)
		return
	}
	streamHTTP(w, r, b, contentType)
}

func streamWS(w http.ResponseWriter, r *http.Request, b *applog.Broadcaster) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer func() { _ = conn.Close() }()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// read pump, only to notice the client going away
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func streamHTTP(w http.ResponseWriter, r *http.Request, b *applog.Broadcaster, contentType string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
