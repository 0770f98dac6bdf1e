// Package report aggregates a project's recent activity into a weekly or
// monthly digest, rendered as JSON or Markdown.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kiro-memory/worker/internal/store"
)

// Period selects the report window.
type Period string

const (
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// maxRows bounds how many observations feed one report; beyond this the
// counts still reflect the window but highlights are taken from the most
// recent rows only.
const maxRows = 2000

// Report is the aggregated activity digest for one project and window.
type Report struct {
	Project       string         `json:"project"`
	Period        Period         `json:"period"`
	SinceEpoch    int64          `json:"since_epoch"`
	UntilEpoch    int64          `json:"until_epoch"`
	Sessions      int            `json:"sessions"`
	Observations  int            `json:"observations"`
	ByType        map[string]int `json:"by_type"`
	ByCategory    map[string]int `json:"by_category"`
	TopFiles      []FileCount    `json:"top_files"`
	Knowledge     []Highlight    `json:"knowledge"`
	SummaryDigest []Highlight    `json:"summaries"`
}

// FileCount is one modified file with its touch count.
type FileCount struct {
	File  string `json:"file"`
	Count int    `json:"count"`
}

// Highlight is one headline row referenced from a report.
type Highlight struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type,omitempty"`
}

// WindowMS returns the period's length in milliseconds.
func (p Period) WindowMS() int64 {
	if p == PeriodMonthly {
		return 30 * 24 * int64(time.Hour/time.Millisecond)
	}
	return 7 * 24 * int64(time.Hour/time.Millisecond)
}

// Valid reports whether p is a recognized period.
func (p Period) Valid() bool {
	return p == PeriodWeekly || p == PeriodMonthly
}

// Build assembles a Report for project over the given period ending at
// nowEpoch.
func Build(ctx context.Context, s *store.Store, project string, period Period, nowEpoch int64) (*Report, error) {
	since := nowEpoch - period.WindowMS()

	observations, err := s.ObservationsSince(ctx, project, since, maxRows)
	if err != nil {
		return nil, err
	}
	summaries, err := s.SummariesSince(ctx, project, since, 20)
	if err != nil {
		return nil, err
	}
	sessions, err := s.CountSessionsSince(ctx, project, since)
	if err != nil {
		return nil, err
	}

	r := &Report{
		Project:      project,
		Period:       period,
		SinceEpoch:   since,
		UntilEpoch:   nowEpoch,
		Sessions:     sessions,
		Observations: len(observations),
		ByType:       map[string]int{},
		ByCategory:   map[string]int{},
	}

	files := map[string]int{}
	for _, o := range observations {
		r.ByType[o.Type]++
		if o.AutoCategory != "" {
			r.ByCategory[o.AutoCategory]++
		}
		for _, f := range strings.Split(o.FilesModified, ",") {
			f = strings.TrimSpace(f)
			if f != "" {
				files[f]++
			}
		}
		if o.IsKnowledge() && len(r.Knowledge) < 10 {
			r.Knowledge = append(r.Knowledge, Highlight{ID: o.ID, Title: o.Title, Type: o.Type})
		}
	}

	r.TopFiles = topFiles(files, 10)

	for _, sm := range summaries {
		if len(r.SummaryDigest) >= 10 {
			break
		}
		title := sm.Request
		if title == "" {
			title = firstLine(sm.Completed)
		}
		r.SummaryDigest = append(r.SummaryDigest, Highlight{ID: sm.ID, Title: title})
	}

	return r, nil
}

func topFiles(counts map[string]int, limit int) []FileCount {
	out := make([]FileCount, 0, len(counts))
	for f, n := range counts {
		out = append(out, FileCount{File: f, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].File < out[j].File
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Markdown renders the report as a human-readable document, the format the
// stdio tool adapter hands back to the agent.
func (r *Report) Markdown() string {
	var b strings.Builder
	project := r.Project
	if project == "" {
		project = "all projects"
	}
	fmt.Fprintf(&b, "# %s activity report — %s\n\n", capitalize(string(r.Period)), project)
	fmt.Fprintf(&b, "Window: %s — %s\n\n",
		time.UnixMilli(r.SinceEpoch).UTC().Format("2006-01-02"),
		time.UnixMilli(r.UntilEpoch).UTC().Format("2006-01-02"))
	fmt.Fprintf(&b, "- Sessions: %d\n- Observations: %d\n\n", r.Sessions, r.Observations)

	if len(r.ByType) > 0 {
		b.WriteString("## Observations by type\n\n")
		for _, t := range sortedKeys(r.ByType) {
			fmt.Fprintf(&b, "- %s: %d\n", t, r.ByType[t])
		}
		b.WriteString("\n")
	}
	if len(r.TopFiles) > 0 {
		b.WriteString("## Most-touched files\n\n")
		for _, fc := range r.TopFiles {
			fmt.Fprintf(&b, "- %s (%d)\n", fc.File, fc.Count)
		}
		b.WriteString("\n")
	}
	if len(r.Knowledge) > 0 {
		b.WriteString("## Knowledge recorded\n\n")
		for _, h := range r.Knowledge {
			fmt.Fprintf(&b, "- [%s] %s (#%d)\n", h.Type, h.Title, h.ID)
		}
		b.WriteString("\n")
	}
	if len(r.SummaryDigest) > 0 {
		b.WriteString("## Session summaries\n\n")
		for _, h := range r.SummaryDigest {
			fmt.Fprintf(&b, "- %s (#%d)\n", h.Title, h.ID)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
