package scoring

import "testing"

func TestCompositeAlwaysInUnitRange(t *testing.T) {
	rank := -5.0
	cosine := 0.9
	s := Signals{AgeHours: 1000, ObservationProject: "demo", QueryProject: "demo", FTSRank: &rank, Cosine: &cosine, ObservationType: "decision"}
	got := Composite(SearchWeights, s)
	if got < 0 || got > 1 {
		t.Fatalf("expected score in [0,1], got %f", got)
	}
}

func TestProjectMatchIncreasesScore(t *testing.T) {
	base := Signals{AgeHours: 5, ObservationType: "file-read"}
	matching := base
	matching.ObservationProject, matching.QueryProject = "demo", "demo"
	mismatching := base
	mismatching.ObservationProject, mismatching.QueryProject = "demo", "other"

	matchScore := Composite(ContextWeights, matching)
	mismatchScore := Composite(ContextWeights, mismatching)
	if matchScore < mismatchScore {
		t.Errorf("expected matching project score >= mismatching, got %f < %f", matchScore, mismatchScore)
	}
}

func TestKnowledgeTypeBoostsScore(t *testing.T) {
	knowledge := Signals{AgeHours: 5, ObservationType: "constraint"}
	ordinary := Signals{AgeHours: 5, ObservationType: "file-read"}
	if Composite(ContextWeights, knowledge) <= Composite(ContextWeights, ordinary) {
		t.Errorf("expected knowledge type to score higher than an ordinary type with identical signals")
	}
}

func TestRecencyMonotonicDecay(t *testing.T) {
	newer := Recency(1)
	older := Recency(1000)
	if newer <= older {
		t.Errorf("expected recency to decay with age, got newer=%f older=%f", newer, older)
	}
}

func TestSemanticClampsNegativeCosine(t *testing.T) {
	if got := Semantic(-0.5); got != 0 {
		t.Errorf("expected negative cosine to clamp to 0, got %f", got)
	}
}
