// Package backup snapshots the live database through SQLite's own online
// backup facility (VACUUM INTO), writes a manifest alongside it, and
// enforces filename-pattern validation before any restore/rotation touches
// the filesystem.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/kiro-memory/worker/internal/store"
)

// Restore rejection reasons, distinguished so the HTTP layer can map an
// unknown filename to a conflict rather than a generic failure.
var (
	ErrInvalidFilename = errors.New("invalid backup filename")
	ErrUnknownBackup   = errors.New("backup not found")
)

// filenamePattern matches backup-YYYY-MM-DD-HHmmss[-mmm].db exactly,
// guarding every listing/restore lookup against path traversal.
var filenamePattern = regexp.MustCompile(`^backup-\d{4}-\d{2}-\d{2}-\d{6}(-\d{3})?\.db$`)

// Manifest is the *.meta.json sidecar written alongside each backup file.
type Manifest struct {
	Filename      string         `json:"filename"`
	CreatedAtISO  string         `json:"created_at_iso"`
	CreatedEpoch  int64          `json:"created_at_epoch"`
	SchemaVersion int            `json:"schema_version"`
	RecordCounts  map[string]int `json:"record_counts"`
}

// Manager creates, lists, rotates, and restores database backups.
type Manager struct {
	store     *store.Store
	dbPath    string
	backupDir string
	maxKeep   int
}

// New builds a Manager. backupDir is typically <dataDir>/backups.
func New(s *store.Store, dbPath, backupDir string, maxKeep int) *Manager {
	return &Manager{store: s, dbPath: dbPath, backupDir: backupDir, maxKeep: maxKeep}
}

// Create performs one backup pass: VACUUM INTO a fresh file, write its
// manifest, then rotate out anything beyond maxKeep.
func (m *Manager) Create(ctx context.Context) (string, error) {
	if err := os.MkdirAll(m.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	now := time.Now()
	filename := fmt.Sprintf("backup-%s-%03d.db", now.Format("2006-01-02-150405"), now.Nanosecond()/1_000_000)
	if !filenamePattern.MatchString(filename) {
		return "", fmt.Errorf("generated backup filename %q failed its own pattern", filename)
	}
	fullPath := filepath.Join(m.backupDir, filename)

	if _, err := m.store.DB().ExecContext(ctx, "VACUUM INTO ?", fullPath); err != nil {
		return "", fmt.Errorf("VACUUM INTO %s: %w", fullPath, err)
	}

	counts, err := m.recordCounts(ctx)
	if err != nil {
		return "", fmt.Errorf("count records for manifest: %w", err)
	}

	manifest := Manifest{
		Filename:      filename,
		CreatedAtISO:  now.UTC().Format(time.RFC3339),
		CreatedEpoch:  now.UnixMilli(),
		SchemaVersion: store.SchemaVersion,
		RecordCounts:  counts,
	}
	if err := writeManifest(fullPath, manifest); err != nil {
		return "", err
	}

	if err := m.rotate(); err != nil {
		return filename, fmt.Errorf("backup written but rotation failed: %w", err)
	}
	return filename, nil
}

func (m *Manager) recordCounts(ctx context.Context) (map[string]int, error) {
	counts := map[string]int{}
	for table, key := range map[string]string{
		"observations": "observations",
		"summaries":    "summaries",
		"user_prompts": "prompts",
	} {
		var n int
		if err := m.store.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, nil
}

func manifestPath(backupFilePath string) string {
	return backupFilePath + ".meta.json"
}

func writeManifest(backupFilePath string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath(backupFilePath), data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// List returns backup filenames, newest first, validated against
// filenamePattern (a corrupted or foreign file in the directory is skipped,
// not an error).
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !filenamePattern.MatchString(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// rotate deletes the oldest backups beyond maxKeep, each with its manifest.
func (m *Manager) rotate() error {
	if m.maxKeep <= 0 {
		return nil
	}
	names, err := m.List()
	if err != nil {
		return err
	}
	if len(names) <= m.maxKeep {
		return nil
	}
	for _, name := range names[m.maxKeep:] {
		full := filepath.Join(m.backupDir, name)
		os.Remove(full)
		os.Remove(manifestPath(full))
	}
	return nil
}

// Restore validates filename against the pattern and the listed backup set,
// then copies it over the live database file. Callers must restart the
// worker afterward; an open *sql.DB cannot be swapped underneath itself.
func (m *Manager) Restore(filename string) error {
	if !filenamePattern.MatchString(filename) {
		return fmt.Errorf("%w: %s", ErrInvalidFilename, filename)
	}

	listed, err := m.List()
	if err != nil {
		return err
	}
	found := false
	for _, n := range listed {
		if n == filename {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownBackup, filename)
	}

	src := filepath.Join(m.backupDir, filename)
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	if err := os.WriteFile(m.dbPath, data, 0o644); err != nil {
		return fmt.Errorf("restore over live database: %w", err)
	}
	return nil
}
