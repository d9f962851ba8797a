package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Broker manages SSE connections and broadcasts run updates
type Broker struct {
	clients map[chan string]bool
	mu      sync.RWMutex
}

// NewBroker creates a broker with no clients
func NewBroker() *Broker {
	return &Broker{
		clients: make(map[chan string]bool),
	}
}

// Register adds a new SSE client
func (b *Broker) Register(client chan string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client] = true
	slog.Debug("SSE client connected", "total", len(b.clients))
}

// Unregister removes an SSE client
func (b *Broker) Unregister(client chan string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.clients[client] {
		return
	}
	delete(b.clients, client)
	close(client)
	slog.Debug("SSE client disconnected", "total", len(b.clients))
}

// Clients returns the number of connected clients
func (b *Broker) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast sends an event to all connected clients.
// Clients whose buffer is full miss the message.
func (b *Broker) Broadcast(eventType string, data any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	jsonData, err := json.Marshal(data)
	if err != nil {
		slog.Warn("failed to marshal event data", "type", eventType, "error", err)
		return
	}

	message := fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, string(jsonData))

	for client := range b.clients {
		select {
		case client <- message:
		default:
		}
	}
}

// LogBatch is the payload broadcast for appended events
type LogBatch struct {
	RunID  string     `json:"run_id"`
	From   int        `json:"from"`
	Events []RunEvent `json:"events"`
}

// Forward returns a Listener that broadcasts every appended batch of runID
func (b *Broker) Forward(runID string) Listener {
	return func(from int, batch []RunEvent) {
		b.Broadcast("log", LogBatch{RunID: runID, From: from, Events: batch})
	}
}
