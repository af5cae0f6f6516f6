//go:build !llama

package runner

import "context"

// LlamaOptions controls how a GGUF model is loaded.
type LlamaOptions struct {
	CtxSize   int
	GPULayers int
	Debug     bool
}

// Llama is unavailable in builds without -tags llama.
type Llama struct{}

// NewLlama always fails with ErrLlamaUnavailable.
func NewLlama(modelPath string, opt LlamaOptions) (*Llama, error) {
	return nil, ErrLlamaUnavailable
}

// Name returns "llama".
func (r *Llama) Name() string { return "llama" }

// Complete always fails with ErrLlamaUnavailable.
func (r *Llama) Complete(ctx context.Context, prompt string, s Options) (string, error) {
	return "", ErrLlamaUnavailable
}

// Close is a no-op.
func (r *Llama) Close() error { return nil }
