// Package importexport implements the newline-delimited-JSON streaming
// export and hash-deduplicating import pipeline.
package importexport

import "github.com/kiro-memory/worker/internal/store"

// FormatVersion is recorded in every export's leading _meta record.
const FormatVersion = 1

// MetaEnvelope is the first line of every export.
type MetaEnvelope struct {
	Meta MetaInfo `json:"_meta"`
}

// MetaInfo carries the export's format version, timestamp, per-type row
// counts, and the filters (if any) that were applied.
type MetaInfo struct {
	Version    int            `json:"version"`
	ExportedAt string         `json:"exported_at"`
	Counts     map[string]int `json:"counts"`
	Filters    *Filters       `json:"filters,omitempty"`
}

// Filters records the project/type restriction an export was run with.
type Filters struct {
	Project string `json:"project,omitempty"`
	Type    string `json:"type,omitempty"`
}

// Record is one non-meta NDJSON line: a _type discriminator plus exactly
// one of the three row payloads.
type Record struct {
	RecordType  string             `json:"_type"`
	Observation *store.Observation `json:"observation,omitempty"`
	Summary     *store.Summary     `json:"summary,omitempty"`
	Prompt      *store.UserPrompt  `json:"prompt,omitempty"`
}

const (
	TypeObservation = "observation"
	TypeSummary     = "summary"
	TypePrompt      = "prompt"
)
