package service

import "sync"

// Event is the lightweight change notification pushed to watch subscribers.
// It carries enough to decide whether to re-poll, never the state itself.
type Event struct {
	ThreadID    string `json:"thread_id"`
	CurrentNode string `json:"currentNode"`
	Status      string `json:"status"`
	LastUpdated int64  `json:"lastUpdated"`
	Deleted     bool   `json:"deleted,omitempty"`
}

// watchHub fans change events out to per-thread subscribers.
type watchHub struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func newWatchHub() *watchHub {
	return &watchHub{subs: make(map[string]map[chan Event]struct{})}
}

func watchKey(userID, threadID string) string {
	return userID + "/" + threadID
}

// Subscribe registers a buffered channel for one thread's events. The
// caller must Unsubscribe when done.
func (h *watchHub) Subscribe(userID, threadID string) chan Event {
	ch := make(chan Event, 8)
	key := watchKey(userID, threadID)
	h.mu.Lock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[chan Event]struct{})
	}
	h.subs[key][ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *watchHub) Unsubscribe(userID, threadID string, ch chan Event) {
	key := watchKey(userID, threadID)
	h.mu.Lock()
	if set, ok := h.subs[key]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(h.subs, key)
		}
	}
	h.mu.Unlock()
	close(ch)
}

// Publish delivers the event to every subscriber without blocking; a slow
// consumer misses intermediate events and catches up on its next poll.
func (h *watchHub) Publish(userID, threadID string, ev Event) {
	key := watchKey(userID, threadID)
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[key] {
		select {
		case ch <- ev:
		default:
		}
	}
}
