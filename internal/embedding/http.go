package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPProvider calls an OpenAI/LM-Studio/Ollama-compatible /embeddings
// endpoint.
type HTTPProvider struct {
	baseURL    string
	model      string
	apiKey     string
	client     *http.Client
	dimensions int
}

// NewHTTPProvider builds a provider against baseURL (e.g.
// "http://localhost:1234/v1"). dimensions seeds the advertised dimension
// until the first successful call observes the provider's actual output
// size.
func NewHTTPProvider(baseURL, model, apiKey string, dimensions int) *HTTPProvider {
	return &HTTPProvider{
		baseURL:    baseURL,
		model:      model,
		apiKey:     apiKey,
		client:     &http.Client{Timeout: 10 * time.Second},
		dimensions: dimensions,
	}
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed calls the provider's /embeddings endpoint. Callers carry their own
// timeout via ctx.
func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Input: text, Model: p.model})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call embedding API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding API error: %s - %s", resp.Status, string(respBody))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embedding API returned no vectors")
	}

	vec := parsed.Data[0].Embedding
	p.dimensions = len(vec)
	return vec, nil
}

// Dimensions returns the last observed (or seeded) vector size.
func (p *HTTPProvider) Dimensions() int {
	return p.dimensions
}

// Name identifies this provider in embedding rows and stats.
func (p *HTTPProvider) Name() string {
	return "http:" + p.model
}
