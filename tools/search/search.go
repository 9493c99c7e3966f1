// Package search performs web searches against a Perplexity-compatible
// chat-completions endpoint, returning its answer plus citations.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oasis "github.com/lattice-run/agentcore"
)

// Tool performs web searches via a Perplexity-compatible API.
type Tool struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// New creates a Tool. apiKey authenticates against the Perplexity API;
// model defaults to "sonar" if empty.
func New(apiKey, model string) *Tool {
	if model == "" {
		model = "sonar"
	}
	return &Tool{
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

func (t *Tool) Definitions() []oasis.ToolDefinition {
	return []oasis.ToolDefinition{{
		Name:        "perplexity_search",
		Description: "Search the web for current/real-time information: recent events, news, prices, weather, or anything requiring up-to-date data.",
		Parameters: json.RawMessage(`{"type":"object","properties":{
			"query":{"type":"string","description":"Search query optimized for a web search engine"},
			"max_results":{"type":"integer","description":"Maximum number of citations to include (default 5)"}
		},"required":["query"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (oasis.ToolResult, error) {
	var p struct {
		Query      string `json:"query"`
		MaxResults int    `json:"max_results"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return oasis.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if p.Query == "" {
		return oasis.ToolResult{Error: "query is required"}, nil
	}
	if p.MaxResults <= 0 {
		p.MaxResults = 5
	}

	content, err := t.search(ctx, p.Query, p.MaxResults)
	if err != nil {
		return oasis.ToolResult{Error: err.Error()}, nil
	}
	return oasis.ToolResult{Content: content}, nil
}

type perplexityRequest struct {
	Model    string              `json:"model"`
	Messages []perplexityMessage `json:"messages"`
}

type perplexityMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityResponse struct {
	Choices []struct {
		Message perplexityMessage `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

func (t *Tool) search(ctx context.Context, query string, maxResults int) (string, error) {
	if t.apiKey == "" {
		return "", fmt.Errorf("no search API key configured")
	}

	reqBody, err := json.Marshal(perplexityRequest{
		Model: t.model,
		Messages: []perplexityMessage{
			{Role: "user", Content: query},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.perplexity.ai/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("perplexity search error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("perplexity API %d: %s", resp.StatusCode, string(body))
	}

	var data perplexityResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("perplexity parse error: %w", err)
	}
	if len(data.Choices) == 0 {
		return fmt.Sprintf("No results found for %q.", query), nil
	}

	var out strings.Builder
	out.WriteString(strings.TrimSpace(data.Choices[0].Message.Content))

	citations := data.Citations
	if len(citations) > maxResults {
		citations = citations[:maxResults]
	}
	if len(citations) > 0 {
		out.WriteString("\n\nSources:\n")
		for _, c := range citations {
			fmt.Fprintf(&out, "- %s\n", c)
		}
	}
	return out.String(), nil
}
