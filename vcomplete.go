// Package vcomplete defines the request/response types for the vcomplete HTTP API.
// Messages are JSON-encoded; the editor client posts the text before the cursor
// and receives generated Verilog to insert.
package vcomplete

// Error codes returned in Error.Code.
const (
	CodeInvalidRequest = "invalid_request"
	CodeNotConfigured  = "not_configured"
	CodeBusy           = "busy"
	CodeTimeout        = "timeout"
	CodeAPIError       = "api_error"
	CodeConfigError    = "config_error"
)

// Request is sent from the editor client to the server.
type Request struct {
	// Prompt is the code before the editor cursor. Must not be blank.
	Prompt string `json:"prompt"`
	// MaxNewTokens caps the number of generated tokens. nil means the configured default.
	MaxNewTokens *int `json:"max_new_tokens,omitempty"`
	// Temperature is the sampling temperature. nil means the configured default.
	Temperature *float64 `json:"temperature,omitempty"`
}

// Response is sent from the server back to the editor client.
type Response struct {
	// Text is the cleaned completion. Empty when nothing usable was generated.
	Text string `json:"text"`
	// Error is set when the server cannot fulfill the request.
	Error *Error `json:"error,omitempty"`
}

// Error describes a server-side error returned to the client.
type Error struct {
	// Code is a machine-readable error identifier (e.g. "invalid_request", "api_error").
	Code string `json:"code"`
	// Message is a human-readable error description.
	Message string `json:"message"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
	// Error explains a non-ok status.
	Error string `json:"error,omitempty"`
}

// Stats summarizes request handling since the engine was created.
type Stats struct {
	Requests    int     `json:"requests"`
	Errors      int     `json:"errors"`
	CacheHits   uint64  `json:"cache_hits"`
	CacheMisses uint64  `json:"cache_misses"`
	Fallbacks   int     `json:"fallbacks"`
	MeanMillis  float64 `json:"mean_ms"`
	P50Millis   float64 `json:"p50_ms"`
	P95Millis   float64 `json:"p95_ms"`
}

// ConfigResponse is returned by the config endpoints.
type ConfigResponse struct {
	// Config is the current configuration with secrets redacted.
	Config *Config `json:"config,omitempty"`
	// Warnings contains configuration warnings.
	Warnings []string `json:"warnings,omitempty"`
	// Error is set when the operation fails.
	Error *Error `json:"error,omitempty"`
}
