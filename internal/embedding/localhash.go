package embedding

import (
	"context"
	"crypto/sha256"
	"math"
)

// LocalHashProvider produces a deterministic unit vector from a SHA-256
// based pseudo-random expansion of the input text. It has no predictive
// value but keeps search and smart-context working (degraded to a
// recency/keyword-dominated ranking) when no real provider is configured,
// satisfying the "absence-tolerant" requirement.
type LocalHashProvider struct {
	dimensions int
}

// NewLocalHashProvider builds a fallback provider with a fixed dimension.
func NewLocalHashProvider(dimensions int) *LocalHashProvider {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &LocalHashProvider{dimensions: dimensions}
}

// Embed never fails: it expands repeated SHA-256 rounds into dimensions
// floats, then normalizes to a unit vector.
func (p *LocalHashProvider) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, p.dimensions)
	seed := sha256.Sum256([]byte(text))
	block := seed
	for i := 0; i < p.dimensions; i++ {
		if i > 0 && i%len(block) == 0 {
			block = sha256.Sum256(block[:])
		}
		b := block[i%len(block)]
		vec[i] = (float32(b)/255.0)*2 - 1
	}
	normalize(vec)
	return vec, nil
}

func normalize(vec []float32) {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return
	}
	norm := math.Sqrt(sumSq)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}

// Dimensions returns the fixed dimension this provider always produces.
func (p *LocalHashProvider) Dimensions() int {
	return p.dimensions
}

// Name identifies this fallback provider in embedding rows and stats.
func (p *LocalHashProvider) Name() string {
	return "local-hash"
}
