package runner

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// DefaultOllamaBaseURL is the default base URL for a local Ollama server.
const DefaultOllamaBaseURL = "http://localhost:11434"

// DefaultOllamaModel is used when no model is configured.
const DefaultOllamaModel = "codeqwen:latest"

// Mode selects which Ollama endpoint a runner talks to.
type Mode int

const (
	// ModeChat sends the prompt as a user message to /api/chat and returns the
	// assistant reply.
	ModeChat Mode = iota
	// ModeRaw sends the prompt to /api/generate with templating disabled and
	// returns the literal continuation. Models often echo the prompt here.
	ModeRaw
)

// Ollama implements Runner on top of the Ollama API client.
type Ollama struct {
	client *api.Client
	model  string
	mode   Mode
}

// NewOllama returns a runner for the Ollama server at baseURL.
// If baseURL is empty, DefaultOllamaBaseURL is used.
func NewOllama(baseURL, model string, mode Mode) (*Ollama, error) {
	u := strings.TrimSuffix(baseURL, "/")
	if u == "" {
		u = DefaultOllamaBaseURL
	}
	base, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("ollama: invalid base url %q: %w", u, err)
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	return &Ollama{
		client: api.NewClient(base, &http.Client{}),
		model:  model,
		mode:   mode,
	}, nil
}

// Name returns "ollama-chat" or "ollama-raw".
func (o *Ollama) Name() string {
	if o.mode == ModeRaw {
		return "ollama-raw"
	}
	return "ollama-chat"
}

// Close is a no-op (the Ollama server owns the model).
func (o *Ollama) Close() error { return nil }

// Heartbeat checks that the Ollama server is reachable.
func (o *Ollama) Heartbeat(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := o.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama: %w", err)
	}
	return nil
}

// Complete generates a completion for prompt.
func (o *Ollama) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	stream := false
	options := ollamaOptions(opts)

	var sb strings.Builder
	var err error
	switch o.mode {
	case ModeRaw:
		req := &api.GenerateRequest{
			Model:   o.model,
			Prompt:  prompt,
			Raw:     true,
			Stream:  &stream,
			Options: options,
		}
		err = o.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
			sb.WriteString(resp.Response)
			return nil
		})
	default:
		req := &api.ChatRequest{
			Model: o.model,
			Messages: []api.Message{
				{Role: "user", Content: prompt},
			},
			Stream:  &stream,
			Options: options,
		}
		err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			sb.WriteString(resp.Message.Content)
			return nil
		})
	}
	if err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	return sb.String(), nil
}

func ollamaOptions(opts Options) map[string]any {
	m := map[string]any{
		"temperature": opts.Temperature,
	}
	if opts.MaxNewTokens > 0 {
		m["num_predict"] = opts.MaxNewTokens
	}
	if len(opts.Stop) > 0 {
		m["stop"] = opts.Stop
	}
	return m
}
