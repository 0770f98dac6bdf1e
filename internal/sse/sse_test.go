package sse

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestBroadcastDeliversToConnectedClient(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("client.Do failed: %v", err)
	}
	defer resp.Body.Close()

	// Give the server a moment to register the client before broadcasting.
	for i := 0; i < 50 && hub.ClientCount() == 0; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 registered client, got %d", hub.ClientCount())
	}

	hub.Broadcast(Event{Name: "observation-created", Data: map[string]any{"id": 1}})

	reader := bufio.NewReader(resp.Body)
	var lines []string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		lines = append(lines, line)
		if strings.HasPrefix(line, "data:") {
			break
		}
	}

	found := false
	for _, l := range lines {
		if strings.Contains(l, "observation-created") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an event line naming observation-created, got %v", lines)
	}
}

func TestBroadcastNonBlockingForSlowClient(t *testing.T) {
	hub := NewHub()
	ch, unregister := hub.register()
	defer unregister()

	for i := 0; i < 100; i++ {
		hub.Broadcast(Event{Name: "x", Data: i})
	}

	select {
	case <-ch:
	default:
		t.Fatal("expected at least one buffered event")
	}
}

func TestShutdownThenUnregisterDoesNotPanic(t *testing.T) {
	hub := NewHub()
	ch, unregister := hub.register()

	hub.Shutdown()
	if _, ok := <-ch; ok {
		t.Fatal("expected the client channel to be closed by Shutdown")
	}

	// The connection goroutine's deferred unregister runs after Shutdown
	// already closed the channel; it must be a no-op, not a second close.
	unregister()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after shutdown, got %d", got)
	}
}
