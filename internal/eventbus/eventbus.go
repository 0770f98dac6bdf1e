// Package eventbus embeds a NATS server as the worker's internal publish
// layer: one writer (ingest, session completion) fanning typed events out
// to however many readers are listening, currently the SSE hub and the
// plugin host, without the writer blocking on or knowing about them.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	nc "github.com/nats-io/nats.go"
)

// Subjects published by the ingest/session pipeline.
const (
	SubjectObservationCreated = "observation.created"
	SubjectSummaryCreated     = "summary.created"
	SubjectCheckpointCreated  = "checkpoint.created"
	SubjectSessionStarted     = "session.started"
	SubjectSessionCompleted   = "session.completed"
)

// Bus wraps an embedded NATS server and a client connection to it.
type Bus struct {
	server *natsserver.Server
	conn   *nc.Conn
}

// Start launches an embedded NATS server on port (0 picks a free port)
// and connects a client to it.
func Start(port int) (*Bus, error) {
	opts := &natsserver.Options{
		Port:     port,
		HTTPPort: -1,
		NoLog:    true,
		NoSigs:   true,
	}

	srv, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("embedded NATS server failed to start in time")
	}

	conn, err := nc.Connect(srv.ClientURL(),
		nc.Name("kiro-memory-worker"),
		nc.ReconnectWait(2*time.Second),
		nc.MaxReconnects(-1),
	)
	if err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("connect to embedded NATS server: %w", err)
	}

	return &Bus{server: srv, conn: conn}, nil
}

// Shutdown drains the client connection and stops the embedded server.
func (b *Bus) Shutdown() {
	if b.conn != nil {
		b.conn.Drain()
	}
	if b.server != nil {
		b.server.Shutdown()
	}
}

// Publish JSON-encodes v and publishes it to subject.
func (b *Bus) Publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event for %s: %w", subject, err)
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Message is a delivered event, decoded JSON payload included.
type Message struct {
	Subject string
	Data    []byte
}

// Subscribe registers an asynchronous handler for subject.
func (b *Bus) Subscribe(subject string, handler func(Message)) (*nc.Subscription, error) {
	sub, err := b.conn.Subscribe(subject, func(msg *nc.Msg) {
		handler(Message{Subject: msg.Subject, Data: msg.Data})
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}
	return sub, nil
}
