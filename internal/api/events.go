package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"meshmap/internal/store"
)

type event struct {
	Name string
	Data any
}

// EventHub fans store change notifications out to server-sent-event
// subscribers. It implements store.Notifier; the store calls it inline
// from the ingest path, so broadcasts never block: a subscriber that
// cannot keep up loses events rather than stalling ingestion.
type EventHub struct {
	mu   sync.Mutex
	subs map[chan event]struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{subs: map[chan event]struct{}{}}
}

func (h *EventHub) OnNodeChanged(nodeID string) {
	h.broadcast(event{Name: "node_update", Data: map[string]string{"node_id": nodeID}})
}

func (h *EventHub) OnPacketReceived(p *store.Packet) {
	h.broadcast(event{Name: "packet_update", Data: p})
}

func (h *EventHub) broadcast(ev event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *EventHub) subscribe() chan event {
	ch := make(chan event, 64)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *EventHub) unsubscribe(ch chan event) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// streamEvents is the GET /api/events handler: a server-sent-event stream
// of node_update and packet_update events, one per store change.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeJSONError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.hub.subscribe()
	defer s.hub.unsubscribe(ch)

	fmt.Fprintf(w, "event: status\ndata: {\"msg\":\"connected\"}\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			data, err := json.Marshal(ev.Data)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
			flusher.Flush()
		}
	}
}
