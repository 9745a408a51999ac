package handler

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is enforced by the CORS layer in front of the mux.
	CheckOrigin: func(*http.Request) bool { return true },
}

const (
	watchWriteWait = 10 * time.Second
	watchPingEvery = 30 * time.Second
)

// watch upgrades to a websocket and streams change events for one thread.
// Clients re-poll on each event; the socket never carries full state.
func (h *Handler) watch(w http.ResponseWriter, r *http.Request) {
	userID := trimQuery(r, "user_id")
	threadID := trimQuery(r, "thread_id")
	if userID == "" || threadID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id and thread_id are required"})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("watch upgrade: %v", err)
		return
	}
	defer conn.Close()

	events := h.svc.Watch(userID, threadID)
	defer h.svc.Unwatch(userID, threadID, events)

	// Drain reads so close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(watchPingEvery)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			if ev.Deleted {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
