package importexport

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kiro-memory/worker/internal/store"
)

const exportPageSize = 100

// ExportOptions restricts an export to one project and/or observation
// type.
type ExportOptions struct {
	Project string
	Type    string
}

// Export streams a _meta record followed by one record per row, fetching
// each table in pages so the full result set never sits in memory at
// once. write is called once per NDJSON line, without a trailing newline;
// the caller owns flushing/backpressure.
func Export(ctx context.Context, s *store.Store, opts ExportOptions, write func(line string) error) error {
	obsCount, err := s.CountObservations(ctx, opts.Project, opts.Type)
	if err != nil {
		return err
	}
	summCount, err := s.CountSummaries(ctx, opts.Project)
	if err != nil {
		return err
	}
	promptCount, err := s.CountPrompts(ctx, opts.Project)
	if err != nil {
		return err
	}

	meta := MetaEnvelope{Meta: MetaInfo{
		Version:    FormatVersion,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Counts: map[string]int{
			TypeObservation: obsCount,
			TypeSummary:     summCount,
			TypePrompt:      promptCount,
		},
	}}
	if opts.Project != "" || opts.Type != "" {
		meta.Meta.Filters = &Filters{Project: opts.Project, Type: opts.Type}
	}
	if err := writeJSON(write, meta); err != nil {
		return err
	}

	var afterID int64
	for {
		batch, err := s.ObservationsPage(ctx, opts.Project, opts.Type, afterID, exportPageSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}
		for _, o := range batch {
			if err := writeJSON(write, Record{RecordType: TypeObservation, Observation: o}); err != nil {
				return err
			}
		}
		afterID = batch[len(batch)-1].ID
	}

	afterID = 0
	for {
		batch, err := s.SummariesPage(ctx, opts.Project, afterID, exportPageSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}
		for _, sm := range batch {
			if err := writeJSON(write, Record{RecordType: TypeSummary, Summary: sm}); err != nil {
				return err
			}
		}
		afterID = batch[len(batch)-1].ID
	}

	afterID = 0
	for {
		batch, err := s.PromptsPage(ctx, opts.Project, afterID, exportPageSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}
		for _, p := range batch {
			if err := writeJSON(write, Record{RecordType: TypePrompt, Prompt: p}); err != nil {
				return err
			}
		}
		afterID = batch[len(batch)-1].ID
	}

	return nil
}

func writeJSON(write func(string) error, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return write(string(data))
}
