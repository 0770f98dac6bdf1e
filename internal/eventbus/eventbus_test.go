package eventbus

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPublishSubscribeRoundTrip(t *testing.T) {
	bus, err := Start(0)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer bus.Shutdown()

	received := make(chan Message, 1)
	if _, err := bus.Subscribe(SubjectObservationCreated, func(m Message) {
		received <- m
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	event := ObservationCreatedEvent{ID: 1, Project: "demo", Type: "command", Title: "ran build"}
	if err := bus.Publish(SubjectObservationCreated, event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-received:
		var decoded ObservationCreatedEvent
		if err := json.Unmarshal(msg.Data, &decoded); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if decoded.ID != 1 || decoded.Project != "demo" {
			t.Errorf("unexpected event payload: %+v", decoded)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}
