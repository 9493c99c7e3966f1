// Package social models a minimal social-network posting tool, just
// enough calling contract to exercise the agent loop's claim guard for
// "I posted/tweeted this" style replies.
package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	oasis "github.com/lattice-run/agentcore"
)

// Tool posts text to a configured social-network webhook endpoint.
type Tool struct {
	webhookURL string
	apiKey     string
	httpClient *http.Client
}

// Compile-time interface check.
var _ oasis.Tool = (*Tool)(nil)

// New creates a social Tool posting to webhookURL, authenticated with apiKey.
func New(webhookURL, apiKey string) *Tool {
	return &Tool{
		webhookURL: webhookURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *Tool) Definitions() []oasis.ToolDefinition {
	return []oasis.ToolDefinition{{
		Name:        "social_post",
		Description: "Post text to the configured social network. Use when the user explicitly asks to post/tweet/share something.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"text":{"type":"string","description":"The text to post"}},"required":["text"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (oasis.ToolResult, error) {
	var p struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return oasis.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if p.Text == "" {
		return oasis.ToolResult{Error: "text is required"}, nil
	}
	if t.webhookURL == "" {
		return oasis.ToolResult{Error: "no social webhook configured"}, nil
	}

	body, err := json.Marshal(map[string]string{"text": p.Text})
	if err != nil {
		return oasis.ToolResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", t.webhookURL, bytes.NewReader(body))
	if err != nil {
		return oasis.ToolResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return oasis.ToolResult{Error: fmt.Sprintf("post failed: %s", err)}, nil
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode >= 300 {
		return oasis.ToolResult{Error: fmt.Sprintf("post failed: %d %s", resp.StatusCode, string(respBody))}, nil
	}

	return oasis.ToolResult{Content: fmt.Sprintf("posted: %q", p.Text)}, nil
}
