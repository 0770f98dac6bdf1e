package ingest

import (
	"context"
	"time"

	"github.com/kiro-memory/worker/internal/embedding"
	"github.com/kiro-memory/worker/internal/logging"
	"github.com/kiro-memory/worker/internal/store"
	"github.com/kiro-memory/worker/internal/vectorindex"
)

// RunEmbedWorker drains p's embed queue until ctx is canceled, embedding and
// upserting each observation id. A failure is logged and swallowed; the
// observation stays searchable by FTS even if it never gets a vector.
func RunEmbedWorker(ctx context.Context, p *Pipeline, idx *vectorindex.Index, provider embedding.Provider, log *logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-p.embedQ:
			if !ok {
				return
			}
			embedOne(ctx, p.store, idx, provider, id, log)
		}
	}
}

func embedOne(ctx context.Context, s *store.Store, idx *vectorindex.Index, provider embedding.Provider, id int64, log *logging.Logger) {
	obs, err := s.GetObservation(ctx, id)
	if err != nil {
		if log != nil {
			log.Warn().Err(err).Int64("observation_id", id).Msg("embed worker: observation not found")
		}
		return
	}
	vec, err := provider.Embed(ctx, obs.Title+"\n"+obs.Text+"\n"+obs.Narrative)
	if err != nil {
		if log != nil {
			log.Warn().Err(err).Int64("observation_id", id).Msg("embed worker: provider call failed")
		}
		return
	}
	if err := idx.Upsert(ctx, id, vec, provider, time.Now().UnixMilli()); err != nil && log != nil {
		log.Warn().Err(err).Int64("observation_id", id).Msg("embed worker: upsert failed")
	}
}
