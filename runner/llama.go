//go:build llama

package runner

import (
	"context"
	"fmt"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"
)

// LlamaOptions controls how a GGUF model is loaded.
type LlamaOptions struct {
	CtxSize   int
	GPULayers int
	// Debug makes llama.cpp print prediction diagnostics to stderr.
	Debug bool
}

// Llama runs a quantized GGUF model in-process via llama.cpp.
type Llama struct {
	mu    sync.Mutex // llama.cpp contexts are not safe for concurrent use
	model *llama.LLama
	path  string
	debug bool
}

// NewLlama loads the model at modelPath.
func NewLlama(modelPath string, opt LlamaOptions) (*Llama, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("llama: model path is required")
	}
	ll, err := llama.New(modelPath,
		llama.SetContext(opt.CtxSize),
		llama.SetGPULayers(opt.GPULayers),
	)
	if err != nil {
		return nil, fmt.Errorf("llama: load %s: %w", modelPath, err)
	}
	return &Llama{model: ll, path: modelPath, debug: opt.Debug}, nil
}

// Name returns "llama".
func (r *Llama) Name() string { return "llama" }

// Complete predicts a continuation of prompt. Cancelling ctx stops generation
// at the next token.
func (r *Llama) Complete(ctx context.Context, prompt string, s Options) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	resp, err := r.model.Predict(prompt, predictOptions(ctx, s, r.debug)...)
	if err != nil {
		return "", fmt.Errorf("llama: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return resp, nil
}

// predictOptions translates s into llama.cpp options. The token callback stops
// generation once ctx is done.
func predictOptions(ctx context.Context, s Options, debug bool) []llama.PredictOption {
	opts := []llama.PredictOption{
		llama.SetTemperature(float32(s.Temperature)),
		llama.SetTokenCallback(func(string) bool { return ctx.Err() == nil }),
	}
	if s.MaxNewTokens > 0 {
		opts = append(opts, llama.SetTokens(s.MaxNewTokens))
	}
	if len(s.Stop) > 0 {
		opts = append(opts, llama.SetStopWords(s.Stop...))
	}
	if debug {
		opts = append(opts, llama.Debug)
	}
	return opts
}

// Close frees the model.
func (r *Llama) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.model.Free()
	return nil
}
