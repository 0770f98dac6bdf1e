package session

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kiro-memory/worker/internal/store"
)

// Caps on each template-summary field.
const (
	maxInvestigated = 5
	maxLearned      = 5
	maxCompleted    = 10
	maxNextSteps    = 5
)

var actionItemPattern = regexp.MustCompile(`(?i)\b(TODO|FIXME|HACK|XXX)\b[:\s]*(.*)`)

// TemplateGenerator is the pure rule-based summary generator: it partitions
// a session's observations by type into investigated/learned/completed,
// mines TODO/FIXME/HACK/XXX markers out of observation text for next-steps,
// and appends a notes line with duration and observation count.
type TemplateGenerator struct{}

// NewTemplateGenerator builds a TemplateGenerator.
func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

// Generate implements Generator.
func (g *TemplateGenerator) Generate(_ context.Context, input SummaryInput) (*store.Summary, error) {
	var investigated, learned, completed, nextSteps []string

	for _, o := range input.Observations {
		switch {
		case o.Type == "file-read" || o.Type == "research":
			investigated = appendCapped(investigated, headline(o), maxInvestigated)
		}
		switch {
		case o.Type == "research" || o.IsKnowledge():
			text := o.Narrative
			if text == "" {
				text = o.Text
			}
			if text != "" {
				learned = appendCapped(learned, text, maxLearned)
			}
		}
		switch {
		case o.Type == "file-write" || o.Type == "command" || o.AutoCategory == "debugging":
			completed = appendCapped(completed, headline(o), maxCompleted)
		}
		for _, item := range mineActionItems(o.Text) {
			nextSteps = appendCapped(nextSteps, item, maxNextSteps)
		}
	}

	duration := time.Duration(input.CompletedAtEpoch-input.StartedAtEpoch) * time.Millisecond
	notes := fmt.Sprintf("Session lasted %s across %d observations.", duration.Round(time.Second), len(input.Observations))

	return &store.Summary{
		Request:      input.UserPrompt,
		Investigated: strings.Join(investigated, "\n"),
		Learned:      strings.Join(learned, "\n"),
		Completed:    strings.Join(completed, "\n"),
		NextSteps:    strings.Join(nextSteps, "\n"),
		Notes:        notes,
	}, nil
}

func headline(o *store.Observation) string {
	if o.Title != "" {
		return o.Title
	}
	return o.Type
}

func appendCapped(list []string, item string, limit int) []string {
	if len(list) >= limit || item == "" {
		return list
	}
	return append(list, item)
}

// mineActionItems extracts TODO/FIXME/HACK/XXX markers from free text,
// trimming the marker itself from the reported item.
func mineActionItems(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if m := actionItemPattern.FindStringSubmatch(line); m != nil {
			item := strings.TrimSpace(m[2])
			if item == "" {
				item = strings.ToUpper(m[1])
			}
			out = append(out, item)
		}
	}
	return out
}
