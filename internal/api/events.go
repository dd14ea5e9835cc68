package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
)

// Events upgrades to a WebSocket and streams analysis progress events for
// one session. The stream is read-only for the client; incoming frames are
// drained and ignored so pings and close frames are handled.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	sessionKey := strings.TrimSpace(r.URL.Query().Get("session_key"))
	if sessionKey == "" {
		Error(w, http.StatusBadRequest, "session_key is required")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_key", sessionKey)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := h.bus.Subscribe(sessionKey)
	defer unsubscribe()

	slog.Info("Event stream opened", "session_key", sessionKey, "ip", r.RemoteAddr)

	// Drain the read side so control frames are processed and a client
	// close ends the stream.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				slog.Warn("Failed to encode event", "error", err)
				continue
			}
			if err := ws.Write(ctx, websocket.MessageText, payload); err != nil {
				if websocket.CloseStatus(err) != -1 {
					slog.Debug("WebSocket closed by client", "session_key", sessionKey)
				} else {
					slog.Warn("WebSocket write error", "error", err, "session_key", sessionKey)
				}
				return
			}
		}
	}
}
