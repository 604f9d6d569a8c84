// Package tools holds the built-in tools offered to the model through the
// inline tool-call protocol.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"llmgram/internal/llm"
)

const (
	readURLToolName = "read_url"
	maxReadURLChars = 50000
	jinaReaderBase  = "https://r.jina.ai/"
)

// ReadURLTool fetches web pages as clean markdown via the Jina AI Reader.
type ReadURLTool struct {
	client     *http.Client
	readerBase string
}

func NewReadURLTool() *ReadURLTool {
	return &ReadURLTool{
		client:     &http.Client{Timeout: 30 * time.Second},
		readerBase: jinaReaderBase,
	}
}

func (t *ReadURLTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        readURLToolName,
		Description: "Fetch and read a web page. Returns the page content as clean markdown.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"url": map[string]interface{}{
					"type":        "string",
					"description": "The URL to fetch and read",
				},
			},
			"required":             []string{"url"},
			"additionalProperties": false,
		},
	}
}

func (t *ReadURLTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var payload struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &payload); err != nil {
		return "", fmt.Errorf("parse read_url args: %w", err)
	}
	if payload.URL == "" {
		return "", fmt.Errorf("url is required")
	}

	url := payload.URL
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}

	req, err := http.NewRequestWithContext(ctx, "GET", t.readerBase+url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		// Fetch failures go back as content so the model can recover.
		return fmt.Sprintf("Error fetching URL: %v", err), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusText := http.StatusText(resp.StatusCode)
		if statusText == "" {
			statusText = "Unknown"
		}
		return fmt.Sprintf("Error: HTTP %d %s - Unable to fetch this URL.", resp.StatusCode, statusText), nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("Error reading response: %v", err), nil
	}

	content := string(body)
	if len(content) > maxReadURLChars {
		content = content[:maxReadURLChars] + "\n\n[Content truncated at 50,000 characters]"
	}
	return content, nil
}
