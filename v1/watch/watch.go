// Package watch exposes the lock lifecycle as a live feed for
// operational tooling. It is strictly read-only: closing a watcher
// never affects the lock protocol.
package watch

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/mirkobrombin/go-strata/v1/journal"
)

var upgrader = websocket.Upgrader{}

// WebSocketHandler streams journal events over WebSocket as JSON, one
// event per message. An optional "name" query parameter filters the
// feed to one lock name.
func WebSocketHandler(j *journal.InMemory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		ch := j.Subscribe()
		defer j.Unsubscribe(ch)
		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if name != "" && ev.Name != name {
					continue
				}
				data, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			case <-r.Context().Done():
				return
			}
		}
	}
}

// SSEHandler streams journal events over Server-Sent Events.
func SSEHandler(j *journal.InMemory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "stream unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		ch := j.Subscribe()
		defer j.Unsubscribe(ch)
		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if name != "" && ev.Name != name {
					continue
				}
				data, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	}
}
