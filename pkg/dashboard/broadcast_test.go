package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestBroadcastReachesClient(t *testing.T) {
	t.Parallel()
	b := NewBroadcaster()
	srv := httptest.NewServer(http.HandlerFunc(b.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	waitFor(t, "client registration", func() bool { return b.ClientCount() == 1 })

	b.Broadcast(&PipelineState{EngineName: "unet-glow", TotalFrames: 42})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var got PipelineState
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.EngineName != "unet-glow" || got.TotalFrames != 42 {
		t.Fatalf("state = %+v", got)
	}

	conn.Close()
	waitFor(t, "client removal", func() bool { return b.ClientCount() == 0 })
}

func TestBroadcastDropsDeadClients(t *testing.T) {
	t.Parallel()
	b := NewBroadcaster()
	srv := httptest.NewServer(http.HandlerFunc(b.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	waitFor(t, "client registration", func() bool { return b.ClientCount() == 1 })

	conn.Close()
	// Repeated broadcasts eventually notice the dead connection even if
	// the read loop has not fired yet.
	waitFor(t, "dead client removal", func() bool {
		b.Broadcast(&PipelineState{})
		return b.ClientCount() == 0
	})
}
