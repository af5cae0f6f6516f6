package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultOpenAIBaseURL is where llama-server exposes its OpenAI-compatible API.
const DefaultOpenAIBaseURL = "http://localhost:8080/v1"

// OpenAI performs generation via an OpenAI-compatible API (llama-server, vLLM).
type OpenAI struct {
	baseURL string
	apiKey  string
	model   string
	apiType string // "completions" or "chat_completions"
	client  *http.Client
}

// NewOpenAI creates an OpenAI-compatible runner. If baseURL is empty,
// DefaultOpenAIBaseURL is used.
func NewOpenAI(baseURL, apiKey, model, apiType string) *OpenAI {
	u := strings.TrimSuffix(baseURL, "/")
	if u == "" {
		u = DefaultOpenAIBaseURL
	}
	return &OpenAI{
		baseURL: u,
		apiKey:  apiKey,
		model:   model,
		apiType: apiType,
		client:  &http.Client{},
	}
}

// Name returns "openai-completions" or "openai-chat".
func (g *OpenAI) Name() string {
	if g.apiType == "chat_completions" {
		return "openai-chat"
	}
	return "openai-completions"
}

// Close is a no-op (no subprocess to manage).
func (g *OpenAI) Close() error { return nil }

// Heartbeat checks that the API answers GET /models.
func (g *OpenAI) Heartbeat(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	g.setHeaders(req)
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (status %d)", resp.StatusCode)
	}
	return nil
}

// Complete sends a completion request to the API and returns the response text.
func (g *OpenAI) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	if g.apiType == "chat_completions" {
		return g.completeChat(ctx, prompt, opts)
	}
	return g.completeText(ctx, prompt, opts)
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// --- Completions API ---

type completionsRequest struct {
	Model       string   `json:"model,omitempty"`
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float64  `json:"temperature"`
	Stop        []string `json:"stop,omitempty"`
}

type completionsResponse struct {
	Choices []completionsChoice `json:"choices"`
	Error   *apiError           `json:"error,omitempty"`
}

type completionsChoice struct {
	Text string `json:"text"`
}

func (g *OpenAI) completeText(ctx context.Context, prompt string, opts Options) (string, error) {
	reqBody := completionsRequest{
		Model:       g.model,
		Prompt:      prompt,
		MaxTokens:   opts.MaxNewTokens,
		Temperature: opts.Temperature,
		Stop:        opts.Stop,
	}

	var result completionsResponse
	if err := g.post(ctx, "/completions", reqBody, &result); err != nil {
		return "", err
	}
	if result.Error != nil {
		return "", fmt.Errorf("API error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return result.Choices[0].Text, nil
}

// --- Chat Completions API ---

type chatCompletionsRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stop        []string      `json:"stop,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

func (g *OpenAI) completeChat(ctx context.Context, prompt string, opts Options) (string, error) {
	reqBody := chatCompletionsRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		MaxTokens:   opts.MaxNewTokens,
		Temperature: opts.Temperature,
		Stop:        opts.Stop,
	}

	var result chatCompletionsResponse
	if err := g.post(ctx, "/chat/completions", reqBody, &result); err != nil {
		return "", err
	}
	if result.Error != nil {
		return "", fmt.Errorf("API error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return result.Choices[0].Message.Content, nil
}

// post sends body as JSON to path and decodes the reply into out.
func (g *OpenAI) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	g.setHeaders(httpReq)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w (body: %s)", err, string(respBody))
	}
	return nil
}

// setHeaders sets common headers for API requests.
func (g *OpenAI) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
}
