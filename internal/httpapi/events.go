package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API binds to loopback only; the browser UI connects from file://
	// or localhost origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

const eventWriteTimeout = 5 * time.Second

// handleEvents upgrades to a websocket and streams driver state: one
// snapshot immediately, then one per published change.
func (r *router) handleEvents(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.deps.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	states, cancel := r.deps.Control.Subscribe()
	defer cancel()

	// Reads only service close frames.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(state any) bool {
		conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
		return conn.WriteJSON(state) == nil
	}
	if !send(r.deps.Control.State()) {
		return
	}
	for {
		select {
		case state, ok := <-states:
			if !ok || !send(state) {
				return
			}
		case <-req.Context().Done():
			return
		}
	}
}
