package toolproxy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kiro-memory/worker/internal/logging"
)

func frameRequest(t *testing.T, req request) string {
	t.Helper()
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	return fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(payload), payload)
}

func readResponses(t *testing.T, out *bytes.Buffer) []response {
	t.Helper()
	br := bufio.NewReader(out)
	var responses []response
	for {
		payload, err := readFrame(br)
		if err == io.EOF {
			return responses
		}
		require.NoError(t, err)
		var resp response
		require.NoError(t, json.Unmarshal(payload, &resp))
		responses = append(responses, resp)
	}
}

func testProxy(t *testing.T, handler http.Handler) *Proxy {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return New(ts.URL, "", logging.New("test", logging.LevelSilent, io.Discard))
}

func TestSearchToolFormatsMarkdown(t *testing.T) {
	p := testProxy(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/search", r.URL.Path)
		require.Equal(t, "tokens", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"observations":[{"id":7,"type":"research","title":"JWT expiry","narrative":"expires in 1h"}],"summaries":[]}`)
	}))

	var out bytes.Buffer
	in := frameRequest(t, request{ID: json.RawMessage(`1`), Tool: "search", Args: map[string]any{"query": "tokens"}})
	require.NoError(t, p.Run(context.Background(), strings.NewReader(in), &out))

	responses := readResponses(t, &out)
	require.Len(t, responses, 1)
	require.Empty(t, responses[0].Error)
	require.Len(t, responses[0].Content, 1)
	require.Equal(t, "text", responses[0].Content[0].Type)
	require.Contains(t, responses[0].Content[0].Text, "**#7** [research] JWT expiry")
}

func TestUnknownToolReturnsErrorAndStreamContinues(t *testing.T) {
	p := testProxy(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"observations":[],"summaries":[]}`)
	}))

	var out bytes.Buffer
	in := frameRequest(t, request{ID: json.RawMessage(`1`), Tool: "does_not_exist"}) +
		frameRequest(t, request{ID: json.RawMessage(`2`), Tool: "search", Args: map[string]any{"query": "x"}})
	require.NoError(t, p.Run(context.Background(), strings.NewReader(in), &out))

	responses := readResponses(t, &out)
	require.Len(t, responses, 2)
	require.Contains(t, responses[0].Error, "unknown tool")
	require.Empty(t, responses[1].Error)
}

func TestWorkerErrorIsRelayedNotFatal(t *testing.T) {
	p := testProxy(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"q is required"}`)
	}))

	var out bytes.Buffer
	in := frameRequest(t, request{ID: json.RawMessage(`9`), Tool: "search", Args: map[string]any{"query": "x"}})
	require.NoError(t, p.Run(context.Background(), strings.NewReader(in), &out))

	responses := readResponses(t, &out)
	require.Len(t, responses, 1)
	require.Contains(t, responses[0].Error, "q is required")
}

func TestGenerateReportPassesMarkdownThrough(t *testing.T) {
	p := testProxy(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/report", r.URL.Path)
		require.Equal(t, "markdown", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "text/markdown")
		fmt.Fprint(w, "# Weekly activity report — demo\n")
	}))

	var out bytes.Buffer
	in := frameRequest(t, request{ID: json.RawMessage(`3`), Tool: "generate_report", Args: map[string]any{"project": "demo"}})
	require.NoError(t, p.Run(context.Background(), strings.NewReader(in), &out))

	responses := readResponses(t, &out)
	require.Len(t, responses, 1)
	require.Contains(t, responses[0].Content[0].Text, "# Weekly activity report — demo")
}

func TestReadFrameRejectsMissingLength(t *testing.T) {
	_, err := readFrame(bufio.NewReader(strings.NewReader("\r\n")))
	require.Error(t, err)
}

func TestToolNamesCoverProtocolSet(t *testing.T) {
	names := ToolNames()
	require.Len(t, names, 10)
	require.Contains(t, names, "semantic_search")
	require.Contains(t, names, "resume_session")
}
