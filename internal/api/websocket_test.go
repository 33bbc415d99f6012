package api

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rawblock/ordinals-indexer/pkg/models"
)

func streamServer(t *testing.T, h *Hub) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/stream", h.Subscribe)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.mu.Lock()
		got := len(h.clients)
		h.mu.Unlock()
		if got == n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", got, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_PublishReachesSubscriber(t *testing.T) {
	h := NewHub()
	runDone := make(chan struct{})
	go func() { h.Run(); close(runDone) }()
	defer h.Close()

	conn, _, err := websocket.DefaultDialer.Dial(streamServer(t, h), nil)
	if err != nil {
		t.Fatalf("dialing stream: %v", err)
	}
	defer conn.Close()
	waitForClients(t, h, 1)

	h.Publish(models.IndexEvent{
		Type:          "bitmap",
		InscriptionID: "bm1i0",
		BlockHeight:   850000,
		Detail:        "850000.bitmap",
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading event: %v", err)
	}
	var got streamEnvelope
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	if got.Type != "index_event" || got.Event.InscriptionID != "bm1i0" || got.Event.BlockHeight != 850000 {
		t.Errorf("event = %+v", got)
	}

	// Close stops the loop and hangs up the client.
	h.Close()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection still open after hub close")
	}
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	h := NewHub()
	// No Run loop draining; overfill the queue and make sure Publish drops
	// instead of stalling the caller.
	done := make(chan struct{})
	go func() {
		for i := 0; i < eventBuffer+10; i++ {
			h.Publish(models.IndexEvent{Type: "mint", InscriptionID: fmt.Sprintf("m%d", i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
}
