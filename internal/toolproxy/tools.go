package toolproxy

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// dispatch routes one tool call to its relay implementation.
func (p *Proxy) dispatch(ctx context.Context, req request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	switch req.Tool {
	case "search":
		return p.toolSearch(ctx, req.Args)
	case "timeline":
		return p.toolTimeline(ctx, req.Args)
	case "get_observations":
		return p.toolGetObservations(ctx, req.Args)
	case "get_context":
		return p.toolGetContext(ctx, req.Args)
	case "semantic_search":
		return p.toolSemanticSearch(ctx, req.Args)
	case "embedding_stats":
		return p.toolEmbeddingStats(ctx, req.Args)
	case "store_knowledge":
		return p.toolStoreKnowledge(ctx, req.Args)
	case "resume_session":
		return p.toolResumeSession(ctx, req.Args)
	case "save_memory":
		return p.toolSaveMemory(ctx, req.Args)
	case "generate_report":
		return p.toolGenerateReport(ctx, req.Args)
	default:
		return "", fmt.Errorf("unknown tool: %s", req.Tool)
	}
}

func strArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

// observationLine is the wire shape shared by every observation-bearing
// worker response the adapter formats.
type observationLine struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	Narrative string `json:"narrative"`
	Project   string `json:"project"`
	CreatedAt string `json:"created_at"`
}

func formatObservations(header string, obs []observationLine) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\n")
	if len(obs) == 0 {
		b.WriteString("_No results._\n")
		return b.String()
	}
	for _, o := range obs {
		fmt.Fprintf(&b, "- **#%d** [%s] %s", o.ID, o.Type, o.Title)
		if o.CreatedAt != "" {
			fmt.Fprintf(&b, " (%s)", o.CreatedAt)
		}
		b.WriteString("\n")
		if o.Narrative != "" {
			fmt.Fprintf(&b, "  %s\n", firstLine(o.Narrative))
		}
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func (p *Proxy) toolSearch(ctx context.Context, args map[string]any) (string, error) {
	q := strArg(args, "query")
	if q == "" {
		q = strArg(args, "q")
	}
	if q == "" {
		return "", fmt.Errorf("query is required")
	}
	params := url.Values{"q": {q}}
	if v := strArg(args, "project"); v != "" {
		params.Set("project", v)
	}
	if v := strArg(args, "type"); v != "" {
		params.Set("type", v)
	}
	params.Set("limit", fmt.Sprint(intArg(args, "limit", 10)))

	var resp struct {
		Observations []observationLine `json:"observations"`
		Summaries    []struct {
			ID      int64  `json:"id"`
			Request string `json:"request"`
		} `json:"summaries"`
	}
	if err := p.get(ctx, "/api/search?"+params.Encode(), &resp); err != nil {
		return "", err
	}

	out := formatObservations(fmt.Sprintf("## Search results for %q", q), resp.Observations)
	if len(resp.Summaries) > 0 {
		out += "\n### Matching session summaries\n\n"
		for _, sm := range resp.Summaries {
			out += fmt.Sprintf("- summary #%d: %s\n", sm.ID, sm.Request)
		}
	}
	return out, nil
}

func (p *Proxy) toolTimeline(ctx context.Context, args map[string]any) (string, error) {
	anchor := intArg(args, "anchor", 0)
	if anchor <= 0 {
		return "", fmt.Errorf("anchor is required")
	}
	params := url.Values{
		"anchor":       {fmt.Sprint(anchor)},
		"depth_before": {fmt.Sprint(intArg(args, "depth_before", 5))},
		"depth_after":  {fmt.Sprint(intArg(args, "depth_after", 5))},
	}
	var resp struct {
		Entries []observationLine `json:"entries"`
	}
	if err := p.get(ctx, "/api/timeline?"+params.Encode(), &resp); err != nil {
		return "", err
	}
	return formatObservations(fmt.Sprintf("## Timeline around observation #%d", anchor), resp.Entries), nil
}

func (p *Proxy) toolGetObservations(ctx context.Context, args map[string]any) (string, error) {
	raw, ok := args["ids"].([]any)
	if !ok || len(raw) == 0 {
		return "", fmt.Errorf("ids is required")
	}
	ids := make([]int64, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(float64); ok {
			ids = append(ids, int64(f))
		}
	}
	var resp struct {
		Observations []observationLine `json:"observations"`
	}
	if err := p.post(ctx, "/api/observations/batch", map[string]any{"ids": ids}, &resp); err != nil {
		return "", err
	}
	return formatObservations("## Observations", resp.Observations), nil
}

func (p *Proxy) toolGetContext(ctx context.Context, args map[string]any) (string, error) {
	project := strArg(args, "project")
	if project == "" {
		return "", fmt.Errorf("project is required")
	}
	path := "/api/context/" + url.PathEscape(project)
	if q := strArg(args, "query"); q != "" {
		path += "?q=" + url.QueryEscape(q)
	}
	var resp struct {
		Observations []observationLine `json:"observations"`
		Summaries    []struct {
			ID        int64  `json:"id"`
			Request   string `json:"request"`
			Completed string `json:"completed"`
		} `json:"summaries"`
		TokensUsed int `json:"tokensUsed"`
	}
	if err := p.get(ctx, path, &resp); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Context for %s (%d tokens)\n\n", project, resp.TokensUsed)
	for _, sm := range resp.Summaries {
		fmt.Fprintf(&b, "- summary #%d: %s\n", sm.ID, sm.Request)
	}
	if len(resp.Summaries) > 0 {
		b.WriteString("\n")
	}
	b.WriteString(formatObservations("### Observations", resp.Observations))
	return b.String(), nil
}

func (p *Proxy) toolSemanticSearch(ctx context.Context, args map[string]any) (string, error) {
	q := strArg(args, "query")
	if q == "" {
		return "", fmt.Errorf("query is required")
	}
	params := url.Values{"q": {q}, "limit": {fmt.Sprint(intArg(args, "limit", 10))}}
	if v := strArg(args, "project"); v != "" {
		params.Set("project", v)
	}
	var resp struct {
		Results []struct {
			ID     int64   `json:"id"`
			Title  string  `json:"title"`
			Type   string  `json:"type"`
			Score  float64 `json:"score"`
			Source string  `json:"source"`
		} `json:"results"`
	}
	if err := p.get(ctx, "/api/hybrid-search?"+params.Encode(), &resp); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Semantic search for %q\n\n", q)
	if len(resp.Results) == 0 {
		b.WriteString("_No results._\n")
	}
	for _, r := range resp.Results {
		fmt.Fprintf(&b, "- **#%d** [%s] %s (score %.3f, %s)\n", r.ID, r.Type, r.Title, r.Score, r.Source)
	}
	return b.String(), nil
}

func (p *Proxy) toolEmbeddingStats(ctx context.Context, args map[string]any) (string, error) {
	path := "/api/embeddings/stats"
	if v := strArg(args, "project"); v != "" {
		path += "?project=" + url.QueryEscape(v)
	}
	var resp struct {
		Total        int            `json:"total"`
		MissingCount int            `json:"missingCount"`
		ByProvider   map[string]int `json:"byProvider"`
	}
	if err := p.get(ctx, path, &resp); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("## Embedding stats\n\n")
	fmt.Fprintf(&b, "- Embedded: %d\n- Missing: %d\n", resp.Total, resp.MissingCount)
	for provider, n := range resp.ByProvider {
		fmt.Fprintf(&b, "- %s: %d\n", provider, n)
	}
	return b.String(), nil
}

func (p *Proxy) toolStoreKnowledge(ctx context.Context, args map[string]any) (string, error) {
	body := map[string]any{
		"project":        strArg(args, "project"),
		"knowledge_type": strArg(args, "knowledge_type"),
		"title":          strArg(args, "title"),
		"content":        strArg(args, "content"),
		"narrative":      strArg(args, "narrative"),
	}
	if md, ok := args["metadata"]; ok {
		body["metadata"] = md
	}
	var resp struct {
		ID        int64 `json:"id"`
		Duplicate bool  `json:"duplicate"`
	}
	if err := p.post(ctx, "/api/knowledge", body, &resp); err != nil {
		return "", err
	}
	if resp.Duplicate {
		return "Already recorded (duplicate within dedup window).", nil
	}
	return fmt.Sprintf("Stored knowledge observation #%d.", resp.ID), nil
}

func (p *Proxy) toolResumeSession(ctx context.Context, args map[string]any) (string, error) {
	project := strArg(args, "project")
	if project == "" {
		return "", fmt.Errorf("project is required")
	}
	var resp struct {
		Checkpoint struct {
			ID              int64  `json:"id"`
			Task            string `json:"task"`
			Progress        string `json:"progress"`
			NextSteps       string `json:"next_steps"`
			OpenQuestions   string `json:"open_questions"`
			RelevantFiles   string `json:"relevant_files"`
			ContextSnapshot string `json:"context_snapshot"`
		} `json:"checkpoint"`
	}
	if err := p.get(ctx, "/api/checkpoint?project="+url.QueryEscape(project), &resp); err != nil {
		return "", err
	}

	cp := resp.Checkpoint
	var b strings.Builder
	fmt.Fprintf(&b, "## Resuming %s from checkpoint #%d\n\n", project, cp.ID)
	if cp.Task != "" {
		fmt.Fprintf(&b, "**Task:** %s\n\n", cp.Task)
	}
	if cp.Progress != "" {
		fmt.Fprintf(&b, "**Progress:** %s\n\n", cp.Progress)
	}
	if cp.NextSteps != "" {
		fmt.Fprintf(&b, "**Next steps:** %s\n\n", cp.NextSteps)
	}
	if cp.OpenQuestions != "" {
		fmt.Fprintf(&b, "**Open questions:** %s\n\n", cp.OpenQuestions)
	}
	if cp.RelevantFiles != "" {
		fmt.Fprintf(&b, "**Relevant files:** %s\n\n", cp.RelevantFiles)
	}
	return b.String(), nil
}

func (p *Proxy) toolSaveMemory(ctx context.Context, args map[string]any) (string, error) {
	body := map[string]any{
		"project": strArg(args, "project"),
		"type":    strArg(args, "type"),
		"title":   strArg(args, "title"),
		"content": strArg(args, "content"),
	}
	var resp struct {
		ID        int64 `json:"id"`
		Duplicate bool  `json:"duplicate"`
	}
	if err := p.post(ctx, "/api/memory/save", body, &resp); err != nil {
		return "", err
	}
	if resp.Duplicate {
		return "Already saved (duplicate within dedup window).", nil
	}
	return fmt.Sprintf("Saved observation #%d.", resp.ID), nil
}

func (p *Proxy) toolGenerateReport(ctx context.Context, args map[string]any) (string, error) {
	params := url.Values{"format": {"markdown"}}
	if v := strArg(args, "project"); v != "" {
		params.Set("project", v)
	}
	if v := strArg(args, "period"); v != "" {
		params.Set("period", v)
	}
	return p.getText(ctx, "/api/report?"+params.Encode())
}
