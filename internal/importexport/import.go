package importexport

import (
	"bufio"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/kiro-memory/worker/internal/store"
)

const importBatchSize = 100

// maxLineBytes generously covers the largest single record: a 100KB text
// field plus a 50KB narrative/facts/concepts field plus JSON overhead.
const maxLineBytes = 256 * 1024

// ImportOptions controls one import run.
type ImportOptions struct {
	// DryRun performs all validation and dedup checks but writes nothing.
	DryRun bool
}

// ImportError records one line that failed validation or parsing, with its
// 1-based line number.
type ImportError struct {
	Line   int
	Reason string
}

// ImportResult summarizes one import run.
type ImportResult struct {
	Imported int
	Skipped  int
	Errors   []ImportError
}

type pendingRow struct {
	kind string
	obs  *store.Observation
	summ *store.Summary
	prmt *store.UserPrompt
}

// Import reads NDJSON from r line by line. Blank lines and the leading
// _meta record are skipped; malformed JSON or records failing required-field
// validation are counted as errors with their line number; duplicate
// observations (by content hash) are counted as skipped. Inserts are
// batched in transactions of up to 100 rows.
func Import(ctx context.Context, s *store.Store, r io.Reader, opts ImportOptions) (ImportResult, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var result ImportResult
	var batch []pendingRow
	seenHashes := make(map[string]bool)

	flush := func() error {
		if len(batch) == 0 || opts.DryRun {
			batch = batch[:0]
			return nil
		}
		err := s.Transact(ctx, func(tx *sql.Tx) error {
			for _, row := range batch {
				var insertErr error
				switch row.kind {
				case TypeObservation:
					_, insertErr = store.InsertObservationTx(ctx, tx, row.obs)
				case TypeSummary:
					_, insertErr = store.InsertSummaryTx(ctx, tx, row.summ)
				case TypePrompt:
					_, insertErr = store.InsertUserPromptTx(ctx, tx, row.prmt)
				}
				if insertErr != nil {
					return insertErr
				}
			}
			return nil
		})
		batch = batch[:0]
		return err
	}

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var probe struct {
			Meta       json.RawMessage `json:"_meta"`
			RecordType string          `json:"_type"`
		}
		if err := json.Unmarshal([]byte(line), &probe); err != nil {
			result.Errors = append(result.Errors, ImportError{Line: lineNo, Reason: "malformed JSON"})
			continue
		}
		if probe.Meta != nil {
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			result.Errors = append(result.Errors, ImportError{Line: lineNo, Reason: "malformed JSON"})
			continue
		}

		switch rec.RecordType {
		case TypeObservation:
			o := rec.Observation
			if o == nil {
				result.Errors = append(result.Errors, ImportError{Line: lineNo, Reason: "observation record missing its payload"})
				continue
			}
			if err := validateObservation(o); err != nil {
				result.Errors = append(result.Errors, ImportError{Line: lineNo, Reason: err.Error()})
				continue
			}
			hash := contentHash(o.Project, o.Type, o.Title, o.Narrative)
			if seenHashes[hash] {
				result.Skipped++
				continue
			}
			dup, err := existingHash(ctx, s, hash)
			if err != nil {
				return result, err
			}
			if dup {
				result.Skipped++
				continue
			}
			seenHashes[hash] = true
			o.ContentHash = hash
			batch = append(batch, pendingRow{kind: TypeObservation, obs: o})
			result.Imported++

		case TypeSummary:
			sm := rec.Summary
			if sm == nil {
				result.Errors = append(result.Errors, ImportError{Line: lineNo, Reason: "summary record missing its payload"})
				continue
			}
			if err := validateSummary(sm); err != nil {
				result.Errors = append(result.Errors, ImportError{Line: lineNo, Reason: err.Error()})
				continue
			}
			batch = append(batch, pendingRow{kind: TypeSummary, summ: sm})
			result.Imported++

		case TypePrompt:
			p := rec.Prompt
			if p == nil {
				result.Errors = append(result.Errors, ImportError{Line: lineNo, Reason: "prompt record missing its payload"})
				continue
			}
			if err := validatePrompt(p); err != nil {
				result.Errors = append(result.Errors, ImportError{Line: lineNo, Reason: err.Error()})
				continue
			}
			batch = append(batch, pendingRow{kind: TypePrompt, prmt: p})
			result.Imported++

		default:
			result.Errors = append(result.Errors, ImportError{Line: lineNo, Reason: fmt.Sprintf("unknown _type %q", rec.RecordType)})
			continue
		}

		if len(batch) >= importBatchSize {
			if err := flush(); err != nil {
				return result, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return result, err
	}
	if err := flush(); err != nil {
		return result, err
	}
	return result, nil
}

func validateObservation(o *store.Observation) error {
	if o.Project == "" {
		return fmt.Errorf("observation missing project")
	}
	if o.Type == "" {
		return fmt.Errorf("observation missing type")
	}
	if o.Title == "" {
		return fmt.Errorf("observation missing title")
	}
	return nil
}

func validateSummary(sm *store.Summary) error {
	if sm.Project == "" {
		return fmt.Errorf("summary missing project")
	}
	return nil
}

func validatePrompt(p *store.UserPrompt) error {
	if p.Project == "" {
		return fmt.Errorf("prompt missing project")
	}
	if p.PromptText == "" {
		return fmt.Errorf("prompt missing text")
	}
	return nil
}

// contentHash mirrors the ingest-side observation content hash:
// SHA-256 over project|type|title|narrative.
func contentHash(project, obsType, title, narrative string) string {
	sum := sha256.Sum256([]byte(project + "|" + obsType + "|" + title + "|" + narrative))
	return hex.EncodeToString(sum[:])
}

func existingHash(ctx context.Context, s *store.Store, hash string) (bool, error) {
	var id int64
	err := s.DB().QueryRowContext(ctx, "SELECT id FROM observations WHERE content_hash = ? LIMIT 1", hash).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
