// Package runner wraps the model backends behind a single completion call.
//
// Each backend is a deployment choice, not a pipeline stage: a server runs
// exactly one primary Runner, optionally backed by a Fallback.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	vcomplete "github.com/vcomplete/vcomplete"
)

// Backend names accepted in runner.backend.
const (
	BackendChat       = "chat"
	BackendCompletion = "completion"
	BackendOpenAI     = "openai"
	BackendLlama      = "llama"
)

var (
	// ErrEmptyResponse is returned when a backend answers without any text field.
	ErrEmptyResponse = errors.New("runner: no text in response")
	// ErrLlamaUnavailable is returned by the llama backend in builds without -tags llama.
	ErrLlamaUnavailable = errors.New("llama runner unavailable: build with -tags llama")
)

// Options are the per-request generation settings.
type Options struct {
	MaxNewTokens int
	Temperature  float64
	Stop         []string
}

// Runner generates a completion for a prompt.
type Runner interface {
	// Complete returns the raw model output for prompt.
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
	// Name identifies the backend in logs and health output.
	Name() string
	Close() error
}

// Pinger is implemented by runners whose backend can be probed for reachability.
type Pinger interface {
	Heartbeat(ctx context.Context) error
}

// New creates the runner described by rc, wrapping it in a Fallback when
// rc.Fallback names a backend.
func New(rc vcomplete.RunnerConfig) (Runner, error) {
	primary, err := newBackend(rc)
	if err != nil {
		return nil, err
	}
	if rc.Fallback == nil || rc.Fallback.Backend == "" {
		return primary, nil
	}
	secondary, err := newBackend(*rc.Fallback)
	if err != nil {
		primary.Close()
		return nil, fmt.Errorf("fallback: %w", err)
	}
	return &Fallback{Primary: primary, Secondary: secondary}, nil
}

func newBackend(rc vcomplete.RunnerConfig) (Runner, error) {
	switch rc.Backend {
	case BackendChat, BackendCompletion:
		mode := ModeChat
		if rc.Backend == BackendCompletion {
			mode = ModeRaw
		}
		r, err := NewOllama(rc.BaseURL, rc.Model, mode)
		if err != nil {
			return nil, err
		}
		return r, nil
	case BackendOpenAI:
		return NewOpenAI(rc.BaseURL, rc.APIKey, rc.Model, rc.APIType), nil
	case BackendLlama:
		r, err := NewLlama(rc.ModelPath, LlamaOptions{
			CtxSize:   rc.CtxSize,
			GPULayers: rc.GPULayers,
			Debug:     slog.Default().Enabled(context.Background(), slog.LevelDebug),
		})
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", rc.Backend)
	}
}
