// Package toolproxy is the stateless stdio tool adapter: it reads
// length-framed JSON-RPC-style tool calls, relays each to the worker's HTTP
// surface, and writes back a single Markdown text block.
package toolproxy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kiro-memory/worker/internal/logging"
)

// callTimeout bounds one relayed HTTP call.
const callTimeout = 10 * time.Second

// request is one framed tool call from the agent host.
type request struct {
	ID     json.RawMessage `json:"id"`
	Tool   string          `json:"tool"`
	Args   map[string]any  `json:"args"`
	Method string          `json:"method,omitempty"`
}

// textBlock is the single content block every tool returns.
type textBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// response is one framed reply.
type response struct {
	ID      json.RawMessage `json:"id"`
	Content []textBlock     `json:"content,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Proxy relays tool calls to the worker over HTTP.
type Proxy struct {
	baseURL string
	token   string
	client  *http.Client
	log     *logging.Logger
}

// New builds a Proxy against the worker at baseURL (e.g.
// http://127.0.0.1:3001). token is the worker token, used only by tools
// that hit authenticated routes.
func New(baseURL, token string, log *logging.Logger) *Proxy {
	return &Proxy{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: callTimeout},
		log:     log,
	}
}

// ToolNames lists every tool the adapter registers, in registration order.
func ToolNames() []string {
	return []string{
		"search", "timeline", "get_observations", "get_context",
		"semantic_search", "embedding_stats", "store_knowledge",
		"resume_session", "save_memory", "generate_report",
	}
}

// Run reads framed requests from r until EOF or ctx cancellation, writing
// one framed response per request to w. A malformed frame ends the stream;
// a failing tool call only fails that one request.
func (p *Proxy) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := readFrame(br)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		var req request
		if err := json.Unmarshal(payload, &req); err != nil {
			if writeErr := writeFrame(w, response{Error: "malformed request"}); writeErr != nil {
				return writeErr
			}
			continue
		}
		if req.Tool == "" {
			req.Tool = req.Method
		}

		text, err := p.dispatch(ctx, req)
		resp := response{ID: req.ID}
		if err != nil {
			resp.Error = err.Error()
			if p.log != nil {
				p.log.Warn().Str("tool", req.Tool).Err(err).Msg("tool call failed")
			}
		} else {
			resp.Content = []textBlock{{Type: "text", Text: text}}
		}
		if err := writeFrame(w, resp); err != nil {
			return err
		}
	}
}

// readFrame parses one Content-Length framed message.
func readFrame(br *bufio.Reader) ([]byte, error) {
	var length int
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if v, ok := strings.CutPrefix(line, "Content-Length:"); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid Content-Length header")
			}
			length = n
		}
	}
	if length == 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(br, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// writeFrame emits one Content-Length framed message.
func writeFrame(w io.Writer, resp response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Content-Length: %d\r\n\r\n", len(payload))
	buf.Write(payload)
	_, err = w.Write(buf.Bytes())
	return err
}

// get relays a GET and decodes the JSON response into out.
func (p *Proxy) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return err
	}
	return p.do(req, out)
}

// getText relays a GET and returns the raw body (for markdown responses).
func (p *Proxy) getText(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("worker returned %d", resp.StatusCode)
	}
	return string(body), nil
}

// post relays a JSON POST and decodes the JSON response into out.
func (p *Proxy) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return p.do(req, out)
}

func (p *Proxy) do(req *http.Request, out any) error {
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var eb struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		if eb.Error != "" {
			return fmt.Errorf("worker returned %d: %s", resp.StatusCode, eb.Error)
		}
		return fmt.Errorf("worker returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
