// Package generate orchestrates model inference to produce code completions.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	vcomplete "github.com/vcomplete/vcomplete"
	"github.com/vcomplete/vcomplete/cleanup"
	"github.com/vcomplete/vcomplete/runner"
)

// MaxTemperature is the largest sampling temperature a request may ask for.
const MaxTemperature = 2.0

// Engine validates requests, calls the model runner and cleans its output.
type Engine struct {
	runner    runner.Runner
	runnerErr error            // why runner is nil
	cleaner   *cleanup.Cleaner // nil when cleanup is disabled
	cache     *ResponseCache   // nil when caching is disabled
	sem       *semaphore.Weighted
	stats     *Stats
	config    *vcomplete.Config
}

// NewEngine creates a new engine from the on-disk configuration.
func NewEngine() *Engine {
	cfg, err := vcomplete.LoadConfig()
	if err != nil {
		slog.Warn("failed to load config, using defaults", "error", err)
		cfg = vcomplete.DefaultConfig()
	}
	for _, w := range vcomplete.ValidateConfig(cfg) {
		slog.Warn("config", "warning", w)
	}
	return NewEngineWithConfig(cfg)
}

// NewEngineWithConfig creates an engine whose runner is built from cfg.
// A runner that cannot be created leaves the engine answering not_configured.
func NewEngineWithConfig(cfg *vcomplete.Config) *Engine {
	rc := vcomplete.ResolveRunner(cfg)
	r, err := runner.New(rc)
	if err != nil {
		slog.Warn("model runner not available", "backend", rc.Backend, "error", err)
		e := NewEngineWithRunner(cfg, nil)
		e.runnerErr = err
		return e
	}
	slog.Info("model runner ready", "runner", r.Name(), "model", rc.Model)
	return NewEngineWithRunner(cfg, r)
}

// NewEngineWithRunner creates an engine around an existing runner.
func NewEngineWithRunner(cfg *vcomplete.Config, r runner.Runner) *Engine {
	maxConcurrent := cfg.Server.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	e := &Engine{
		runner: r,
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
		stats:  newStats(),
		config: cfg,
	}
	if cfg.CleanupEnabled() {
		e.cleaner = cleanup.New(cleanup.Options{
			FenceTag: cfg.Cleanup.FenceTag,
			Keywords: cfg.Cleanup.Keywords,
		})
	}
	if cfg.CacheEnabled() && cfg.CacheTTL() > 0 {
		e.cache = NewResponseCache(cfg.CacheTTL(), cfg.Cache.Capacity)
	}
	return e
}

// Close releases resources held by the engine.
func (e *Engine) Close() {
	if e.runner != nil {
		if err := e.runner.Close(); err != nil {
			slog.Warn("failed to close runner", "error", err)
		}
	}
	if e.cache != nil {
		e.cache.Close()
	}
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *vcomplete.Config {
	return e.config
}

// Backend returns the runner name, or "none" when no runner is available.
func (e *Engine) Backend() string {
	if e.runner == nil {
		return "none"
	}
	return e.runner.Name()
}

// Ping reports whether the model backend is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if e.runner == nil {
		if e.runnerErr != nil {
			return fmt.Errorf("model runner not configured: %w", e.runnerErr)
		}
		return errors.New("model runner not configured")
	}
	if p, ok := e.runner.(runner.Pinger); ok {
		return p.Heartbeat(ctx)
	}
	return nil
}

// Stats returns a snapshot of request counters and model latency.
func (e *Engine) Stats() vcomplete.Stats {
	requests, errs, fallbacks := e.stats.counts()
	mean, p50, p95 := e.stats.latencySummary()
	s := vcomplete.Stats{
		Requests:   requests,
		Errors:     errs,
		Fallbacks:  fallbacks,
		MeanMillis: mean,
		P50Millis:  p50,
		P95Millis:  p95,
	}
	if e.cache != nil {
		s.CacheHits, s.CacheMisses = e.cache.Metrics()
	}
	return s
}

// GenerateResult holds a response together with the intermediate values
// that produced it.
type GenerateResult struct {
	Response *vcomplete.Response
	Raw      string         // model output before cleanup
	Cleanup  cleanup.Result // zero when served from cache or cleanup is off
	Cached   bool
	Duration time.Duration // model call time, zero on cache hits
}

// Generate processes a request and returns a response.
func (e *Engine) Generate(ctx context.Context, req *vcomplete.Request) *vcomplete.Response {
	return e.GenerateVerbose(ctx, req).Response
}

// GenerateVerbose is Generate plus the raw model output and cleanup report.
func (e *Engine) GenerateVerbose(ctx context.Context, req *vcomplete.Request) *GenerateResult {
	result := &GenerateResult{}
	result.Response = e.generate(ctx, req, result)
	e.stats.recordRequest(result.Response.Error != nil)
	return result
}

func (e *Engine) generate(ctx context.Context, req *vcomplete.Request, result *GenerateResult) *vcomplete.Response {
	if strings.TrimSpace(req.Prompt) == "" {
		return errorResponse(vcomplete.CodeInvalidRequest, "prompt must not be empty")
	}

	opts, err := e.options(req)
	if err != nil {
		return errorResponse(vcomplete.CodeInvalidRequest, err.Error())
	}

	if e.runner == nil {
		msg := "model runner not configured"
		if e.runnerErr != nil {
			msg += ": " + e.runnerErr.Error()
		}
		return errorResponse(vcomplete.CodeNotConfigured, msg)
	}

	if e.cache != nil {
		if text, ok := e.cache.Get(req.Prompt, opts); ok {
			slog.Debug("cache hit", "prompt_len", len(req.Prompt))
			result.Cached = true
			return &vcomplete.Response{Text: text}
		}
	}

	callCtx := ctx
	if timeout := e.config.RequestTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := e.sem.Acquire(callCtx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return errorResponse(vcomplete.CodeTimeout, "timed out waiting for a free model slot")
		}
		return errorResponse(vcomplete.CodeBusy, "request cancelled while waiting for a free model slot")
	}
	start := time.Now()
	raw, err := e.runner.Complete(callCtx, req.Prompt, opts)
	result.Duration = time.Since(start)
	e.sem.Release(1)

	if err != nil {
		slog.Error("generation error", "runner", e.runner.Name(), "error", err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return errorResponse(vcomplete.CodeTimeout, fmt.Sprintf("model did not respond within %s", e.config.RequestTimeout()))
		}
		return errorResponse(vcomplete.CodeAPIError, err.Error())
	}
	e.stats.recordLatency(result.Duration)
	result.Raw = raw

	slog.Debug("raw completion", "runner", e.runner.Name(), "raw", raw, "duration", result.Duration)

	text := raw
	if e.cleaner != nil {
		// The prompt is trimmed for echo matching only; the model saw it verbatim.
		result.Cleanup = e.cleaner.Process(raw, strings.TrimSpace(req.Prompt))
		text = result.Cleanup.Text
		if result.Cleanup.Fallback {
			e.stats.recordFallback()
		}
	}

	if e.cache != nil {
		e.cache.Set(req.Prompt, opts, text)
	}
	return &vcomplete.Response{Text: text}
}

// options resolves per-request generation settings against the config.
func (e *Engine) options(req *vcomplete.Request) (runner.Options, error) {
	rc := e.config.Runner
	opts := runner.Options{
		MaxNewTokens: rc.MaxNewTokens,
		Stop:         rc.Stop,
	}
	if rc.Temperature != nil {
		opts.Temperature = *rc.Temperature
	}

	if req.MaxNewTokens != nil {
		n := *req.MaxNewTokens
		if n < 1 {
			return opts, fmt.Errorf("max_new_tokens must be positive, got %d", n)
		}
		if rc.MaxNewTokensLimit > 0 && n > rc.MaxNewTokensLimit {
			return opts, fmt.Errorf("max_new_tokens must be at most %d, got %d", rc.MaxNewTokensLimit, n)
		}
		opts.MaxNewTokens = n
	}
	if req.Temperature != nil {
		t := *req.Temperature
		if t < 0 || t > MaxTemperature {
			return opts, fmt.Errorf("temperature must be between 0 and %g, got %g", MaxTemperature, t)
		}
		opts.Temperature = t
	}
	return opts, nil
}

func errorResponse(code, message string) *vcomplete.Response {
	return &vcomplete.Response{
		Error: &vcomplete.Error{Code: code, Message: message},
	}
}
