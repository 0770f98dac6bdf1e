package categorizer

import "testing"

func TestCategorizeKnowledgeType(t *testing.T) {
	got := Categorize(Fields{Type: "decision", Title: "Use esbuild"})
	if got != CategoryKnowledge {
		t.Errorf("expected knowledge category, got %s", got)
	}
}

func TestCategorizeDebugging(t *testing.T) {
	got := Categorize(Fields{Type: "command", Title: "Fix crash in parser", Text: "stack trace shows nil deref"})
	if got != CategoryDebugging {
		t.Errorf("expected debugging category, got %s", got)
	}
}

func TestCategorizeFallsBackToGeneral(t *testing.T) {
	got := Categorize(Fields{Type: "file-read", Title: "Read README.md"})
	if got != CategoryGeneral {
		t.Errorf("expected general category, got %s", got)
	}
}
