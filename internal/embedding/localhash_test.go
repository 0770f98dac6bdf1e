package embedding

import (
	"context"
	"math"
	"testing"
)

func TestLocalHashProviderDeterministic(t *testing.T) {
	p := NewLocalHashProvider(64)
	a, err := p.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	b, err := p.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected deterministic output, dim %d differs: %f != %f", i, a[i], b[i])
		}
	}
}

func TestLocalHashProviderIsUnitVector(t *testing.T) {
	p := NewLocalHashProvider(32)
	vec, err := p.Embed(context.Background(), "some observation text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if math.Abs(norm-1) > 1e-4 {
		t.Errorf("expected unit vector, norm = %f", norm)
	}
}

func TestLocalHashProviderDiffersForDifferentText(t *testing.T) {
	p := NewLocalHashProvider(32)
	a, _ := p.Embed(context.Background(), "alpha")
	b, _ := p.Embed(context.Background(), "beta")
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Errorf("expected different texts to produce different vectors")
	}
}
