// Package dashboard pushes live pipeline state to connected web
// clients over WebSocket.
package dashboard

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Broadcaster pushes pipeline state to connected dashboard clients via WebSocket.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[*websocket.Conn]bool),
	}
}

// HandleWS is the WebSocket upgrade handler for /ws.
func (b *Broadcaster) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️  WebSocket upgrade failed: %v", err)
		return
	}

	b.mu.Lock()
	b.clients[conn] = true
	total := len(b.clients)
	b.mu.Unlock()

	log.Printf("📊 Dashboard client connected (%d total)", total)

	// Read loop (to detect disconnect)
	go func() {
		defer func() {
			b.mu.Lock()
			delete(b.clients, conn)
			remain := len(b.clients)
			b.mu.Unlock()
			conn.Close()
			log.Printf("📊 Dashboard client disconnected (%d remain)", remain)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// ClientCount returns the number of connected dashboard clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// PipelineState is the JSON payload pushed to the dashboard.
type PipelineState struct {
	EngineName       string  `json:"engine_name"`
	Classes          int     `json:"classes"`
	NumWorkers       int     `json:"num_workers"`
	GraphWorkers     int     `json:"graph_workers"`
	QueueDepth       int     `json:"queue_depth"`
	QueuedFrames     int     `json:"queued_frames"`
	TotalJobs        int64   `json:"total_jobs"`
	TotalFrames      int64   `json:"total_frames"`
	TotalFailures    int64   `json:"total_failures"`
	AvgLatencyMs     int64   `json:"avg_latency_ms"`
	LastBatchFrames  int     `json:"last_batch_frames"`
	DeviceMemoryMB   float64 `json:"device_memory_mb"`
	PinnedMemoryMB   float64 `json:"pinned_memory_mb"`
}

// Broadcast sends the pipeline state to all connected WebSocket clients.
func (b *Broadcaster) Broadcast(state *PipelineState) {
	data, err := json.Marshal(state)
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for conn := range b.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(b.clients, conn)
		}
	}
}
