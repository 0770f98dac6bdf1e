// Package ingest runs the full observation pipeline: validate, redact,
// categorize, dedup, write, queue for embedding, and fan out: one ordered
// pass over a candidate, each step able to short-circuit.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/kiro-memory/worker/internal/categorizer"
	"github.com/kiro-memory/worker/internal/eventbus"
	"github.com/kiro-memory/worker/internal/logging"
	"github.com/kiro-memory/worker/internal/secretfilter"
	"github.com/kiro-memory/worker/internal/store"
	"github.com/kiro-memory/worker/internal/vectorindex"
)

// Size limits enforced during validation.
const (
	MaxTypeLen    = 100
	MaxTitleLen   = 500
	MaxContentLen = 100_000
	MaxSummaryLen = 50_000
)

// Candidate is an unwritten observation awaiting the ingest pipeline.
type Candidate struct {
	MemorySessionID *int64
	Project         string
	Type            string
	Title           string
	Subtitle        string
	Text            string
	Narrative       string
	Facts           string
	Concepts        string
	FilesRead       string
	FilesModified   string
	PromptNumber    int
}

// ValidationError reports why a candidate was rejected before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate enforces the size and non-emptiness invariants on a candidate.
func Validate(c Candidate) error {
	if c.Type == "" || len(c.Type) > MaxTypeLen {
		return &ValidationError{Field: "type", Reason: "must be non-empty and at most 100 chars"}
	}
	if len(c.Title) > MaxTitleLen {
		return &ValidationError{Field: "title", Reason: "must be at most 500 chars"}
	}
	if len(c.Text) > MaxContentLen {
		return &ValidationError{Field: "text", Reason: "must be at most 100KB"}
	}
	for _, field := range []struct {
		name  string
		value string
	}{{"narrative", c.Narrative}, {"facts", c.Facts}, {"concepts", c.Concepts}} {
		if len(field.value) > MaxSummaryLen {
			return &ValidationError{Field: field.name, Reason: "must be at most 50KB"}
		}
	}
	return nil
}

// HookDispatcher is the narrow surface the plugin host exposes to ingest;
// defined here so ingest has no compile-time dependency on pluginhost.
type HookDispatcher interface {
	OnObservation(ctx context.Context, o *store.Observation)
}

// Pipeline wires together every collaborator an ingest call needs.
type Pipeline struct {
	store  *store.Store
	index  *vectorindex.Index
	bus    *eventbus.Bus
	hooks  HookDispatcher
	log    *logging.Logger
	embedQ chan int64
}

// New builds a Pipeline and starts its background embedding worker.
// embedQueueSize bounds how many observation ids may be pending embedding
// at once; beyond that, Ingest still succeeds but the embed step is skipped
// for that call and logged.
func New(s *store.Store, idx *vectorindex.Index, bus *eventbus.Bus, hooks HookDispatcher, log *logging.Logger, embedQueueSize int) *Pipeline {
	p := &Pipeline{store: s, index: idx, bus: bus, hooks: hooks, log: log, embedQ: make(chan int64, embedQueueSize)}
	return p
}

// EmbedQueue exposes the pending-embed channel so a worker goroutine (driven
// by an embedding.Provider, which ingest itself stays independent of) can
// drain it. See cmd/kiro-memory-worker/main.go for the consumer wiring.
func (p *Pipeline) EmbedQueue() <-chan int64 {
	return p.embedQ
}

// Ingest runs the full pipeline and returns the new observation's id, or
// store.DuplicateID if suppressed by the dedup window.
func (p *Pipeline) Ingest(ctx context.Context, c Candidate) (int64, error) {
	if err := Validate(c); err != nil {
		return 0, err
	}

	c.Title = secretfilter.Redact(c.Title)
	c.Text = secretfilter.Redact(c.Text)
	c.Narrative = secretfilter.Redact(c.Narrative)

	category := categorizer.Categorize(categorizer.Fields{
		Type:          c.Type,
		Title:         c.Title,
		Text:          c.Text,
		Narrative:     c.Narrative,
		FilesModified: c.FilesModified,
	})

	now := time.Now().UnixMilli()
	hash := contentHash(c.Project, c.Type, c.Title, c.Narrative)

	if _, found, err := p.store.FindDuplicate(ctx, hash, c.Type, now); err != nil {
		return 0, fmt.Errorf("dedup check: %w", err)
	} else if found {
		return store.DuplicateID, nil
	}

	obs := &store.Observation{
		MemorySessionID: c.MemorySessionID,
		Project:         c.Project,
		Type:            c.Type,
		Title:           c.Title,
		Subtitle:        c.Subtitle,
		Text:            c.Text,
		Narrative:       c.Narrative,
		Facts:           c.Facts,
		Concepts:        c.Concepts,
		FilesRead:       c.FilesRead,
		FilesModified:   c.FilesModified,
		PromptNumber:    c.PromptNumber,
		CreatedAtEpoch:  now,
		ContentHash:     hash,
		DiscoveryTokens: discoveryTokens(c.Text),
		AutoCategory:    category,
	}

	id, err := p.store.InsertObservation(ctx, obs)
	if err != nil {
		return 0, fmt.Errorf("write observation: %w", err)
	}
	obs.ID = id

	p.queueEmbed(id)
	p.fanOut(ctx, obs)

	return id, nil
}

// contentHash hashes project|type|title|narrative.
func contentHash(project, obsType, title, narrative string) string {
	h := sha256.New()
	h.Write([]byte(project))
	h.Write([]byte{'|'})
	h.Write([]byte(obsType))
	h.Write([]byte{'|'})
	h.Write([]byte(title))
	h.Write([]byte{'|'})
	h.Write([]byte(narrative))
	return hex.EncodeToString(h.Sum(nil))
}

// discoveryTokens estimates token cost as ceil(len(content)/4).
func discoveryTokens(content string) int {
	return (len(content) + 3) / 4
}

// queueEmbed best-effort enqueues id for async embedding; a full queue is
// logged and swallowed rather than blocking the caller.
func (p *Pipeline) queueEmbed(id int64) {
	select {
	case p.embedQ <- id:
	default:
		if p.log != nil {
			p.log.Warn().Int64("observation_id", id).Msg("embed queue full, dropping best-effort embed")
		}
	}
}

// fanOut emits the observation-created SSE/NATS event and dispatches the
// onObservation plugin hook. Both are best-effort: a
// publish or hook failure is logged and never fails the ingest call.
func (p *Pipeline) fanOut(ctx context.Context, obs *store.Observation) {
	if p.bus != nil {
		event := eventbus.ObservationCreatedEvent{
			ID: obs.ID, Project: obs.Project, Type: obs.Type, Title: obs.Title, CreatedAtEpoch: obs.CreatedAtEpoch,
		}
		if err := p.bus.Publish(eventbus.SubjectObservationCreated, event); err != nil && p.log != nil {
			p.log.Warn().Err(err).Msg("failed to publish observation-created event")
		}
	}
	if p.hooks != nil {
		p.hooks.OnObservation(ctx, obs)
	}
}
