package sse

import (
	"fmt"
	"net/http"
	"time"
)

// DefaultKeepAlive is the comment interval that keeps proxies from closing
// idle streams.
const DefaultKeepAlive = 25 * time.Second

// Serve streams topic events to w until the request ends or the hub closes.
// The first event is "connected" carrying the client id.
func Serve(h *Hub, w http.ResponseWriter, r *http.Request, topic string, keepAlive time.Duration) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	client, err := h.Register(topic)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer h.Unregister(client)

	// long-lived; the server write timeout must not apply
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	write(w, Event{Type: EventConnected, Data: fmt.Appendf(nil, `{"client_id":%q,"topic":%q}`, client.id, topic)})
	flusher.Flush()

	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-client.Events():
			if !ok {
				return
			}
			write(w, ev)
			flusher.Flush()
		case <-ticker.C:
			_, _ = fmt.Fprintf(w, ": keepalive %d\n\n", time.Now().Unix())
			flusher.Flush()
		}
	}
}

func write(w http.ResponseWriter, ev Event) {
	if ev.Type != "" {
		_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", ev.Data)
}
