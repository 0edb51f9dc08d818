// Package ai talks to an OpenAI-compatible chat completion endpoint. The
// endpoint is usually a local llama.cpp server, so requests are plain HTTP
// JSON with generous timeouts and every failure degrades to a fixed,
// user-facing fallback string.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/braydio/Rufus/internal/models"
)

// FallbackReply is the apology users see whenever the completion API fails.
const FallbackReply = "Sorry, something went wrong talking to the AI."

const defaultMaxTokens = 600

type completionRequest struct {
	Model       string               `json:"model"`
	Messages    []models.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens"`
	Stream      bool                 `json:"stream"`
}

type completionResponse struct {
	Choices []struct {
		Message models.ChatMessage `json:"message"`
	} `json:"choices"`
}

// Client is a chat completion client bound to one endpoint and model.
type Client struct {
	httpClient *http.Client
	apiURL     string
	model      string
}

// New returns a client for the given endpoint. The HTTP timeout is long
// because local models can take minutes on big prompts.
func New(apiURL, model string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 160 * time.Second},
		apiURL:     apiURL,
		model:      model,
	}
}

// ChatCompletion posts the messages and returns the assistant's text. Any
// non-200 status or malformed body is an error.
func (c *Client) ChatCompletion(ctx context.Context, messages []models.ChatMessage, temperature float64, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	payload, err := json.Marshal(completionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      false,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("chat API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode chat API response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("chat API response missing choices")
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

// Query is the conversational entry point: it never fails, converting any
// API error into the fallback apology.
func (c *Client) Query(ctx context.Context, messages []models.ChatMessage) string {
	reply, err := c.ChatCompletion(ctx, messages, 0.7, defaultMaxTokens)
	if err != nil {
		slog.Error("chat completion failed", "error", err)
		return FallbackReply
	}
	return reply
}

// Reformat rewrites a user query with a low-temperature pass. On any failure
// the raw input comes back unchanged.
func (c *Client) Reformat(ctx context.Context, reformatPrompt, input string) string {
	reply, err := c.ChatCompletion(ctx, []models.ChatMessage{
		{Role: "system", Content: reformatPrompt},
		{Role: "user", Content: input},
	}, 0.3, 150)
	if err != nil {
		slog.Warn("reformat pass failed, using raw input", "error", err)
		return input
	}
	slog.Info("reformatted prompt", "prompt", reply)
	return reply
}

// Summarize condenses an assistant reply for the memory buffer. Failures
// fall back to the original text.
func (c *Client) Summarize(ctx context.Context, summaryPrompt, text string) string {
	reply, err := c.ChatCompletion(ctx, []models.ChatMessage{
		{Role: "system", Content: summaryPrompt},
		{Role: "user", Content: text},
	}, 0.7, defaultMaxTokens)
	if err != nil {
		slog.Warn("summary pass failed, keeping full reply", "error", err)
		return text
	}
	return reply
}

// WebSearch relays a query through the backend's web search hook.
func (c *Client) WebSearch(ctx context.Context, query string) string {
	reply, err := c.ChatCompletion(ctx, []models.ChatMessage{
		{Role: "system", Content: "Use !web to search the web when relevant."},
		{Role: "user", Content: "!web " + query},
	}, 0.7, defaultMaxTokens)
	if err != nil {
		slog.Error("web search query failed", "error", err)
		return "An error occurred while performing web search."
	}
	return reply
}
