package session

import (
	"context"

	"github.com/kiro-memory/worker/internal/store"
)

// SummaryInput is the material an end-of-session Generator synthesizes
// from.
type SummaryInput struct {
	SessionID        int64
	Project          string
	UserPrompt       string
	Observations     []*store.Observation
	StartedAtEpoch   int64
	CompletedAtEpoch int64
}

// Generator synthesizes an end-of-session Summary. Two built-in variants
// exist: Template (pure rule-based) and LLM (provider-backed, falling back
// to Template on any failure).
type Generator interface {
	Generate(ctx context.Context, input SummaryInput) (*store.Summary, error)
}
