package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/kiro-memory/worker/internal/logging"
	"github.com/kiro-memory/worker/internal/store"
)

// LLMGenerator sends a fixed-template prompt to an OpenAI/Anthropic/Ollama
// -compatible chat endpoint and requires a JSON object back with the
// summary's five fields. Any failure (network, non-2xx, non-JSON, missing
// field) falls back to TemplateGenerator.
type LLMGenerator struct {
	baseURL  string
	model    string
	apiKey   string
	client   *http.Client
	fallback *TemplateGenerator
	log      *logging.Logger
}

// NewLLMGenerator builds an LLMGenerator against baseURL/model, falling back
// to log via logger when a call degrades to TemplateGenerator.
func NewLLMGenerator(baseURL, model, apiKey string, log *logging.Logger) *LLMGenerator {
	return &LLMGenerator{
		baseURL:  baseURL,
		model:    model,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 20 * time.Second},
		fallback: NewTemplateGenerator(),
		log:      log,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// summaryFields is the JSON shape the prompt requires the model to return.
type summaryFields struct {
	Request      string `json:"request"`
	Investigated string `json:"investigated"`
	Learned      string `json:"learned"`
	Completed    string `json:"completed"`
	NextSteps    string `json:"next_steps"`
	Notes        string `json:"notes"`
}

// Generate implements Generator.
func (g *LLMGenerator) Generate(ctx context.Context, input SummaryInput) (*store.Summary, error) {
	summary, err := g.generateViaLLM(ctx, input)
	if err != nil {
		if g.log != nil {
			g.log.WarnFallback(callerLocation(), "LLM summary", err)
		}
		return g.fallback.Generate(ctx, input)
	}
	return summary, nil
}

func (g *LLMGenerator) generateViaLLM(ctx context.Context, input SummaryInput) (*store.Summary, error) {
	req := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You summarize a coding agent's session. Respond with a single JSON object with keys: request, investigated, learned, completed, next_steps, notes. No prose outside the JSON."},
			{Role: "user", Content: buildPrompt(input)},
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call chat API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chat API error: %s - %s", resp.Status, string(respBody))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("chat API returned no choices")
	}

	var fields summaryFields
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return nil, fmt.Errorf("summary response is not valid JSON: %w", err)
	}
	if fields.Investigated == "" && fields.Learned == "" && fields.Completed == "" {
		return nil, fmt.Errorf("summary response missing required fields")
	}

	return &store.Summary{
		Request:      fields.Request,
		Investigated: fields.Investigated,
		Learned:      fields.Learned,
		Completed:    fields.Completed,
		NextSteps:    fields.NextSteps,
		Notes:        fields.Notes,
	}, nil
}

func buildPrompt(input SummaryInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "User request: %s\n\nObservations:\n", input.UserPrompt)
	for _, o := range input.Observations {
		fmt.Fprintf(&sb, "- [%s] %s: %s\n", o.Type, o.Title, o.Text)
	}
	return sb.String()
}

func callerLocation() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", file, line)
}
