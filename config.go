package vcomplete

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	defaults "github.com/vcomplete/vcomplete/default"
)

// Config represents the vcomplete server configuration.
type Config struct {
	Server  ServerConfig  `toml:"server" json:"server"`
	Runner  RunnerConfig  `toml:"runner" json:"runner"`
	Cleanup CleanupConfig `toml:"cleanup" json:"cleanup"`
	Cache   CacheConfig   `toml:"cache" json:"cache"`
}

// ServerConfig holds settings for the HTTP listener.
type ServerConfig struct {
	Addr                  string   `toml:"addr" json:"addr"`
	MaxConcurrent         int      `toml:"max_concurrent" json:"max_concurrent,omitempty"`
	RequestTimeoutSeconds int      `toml:"request_timeout_seconds" json:"request_timeout_seconds,omitempty"`
	MaxBodyBytes          int64    `toml:"max_body_bytes" json:"max_body_bytes,omitempty"`
	AllowedOrigins        []string `toml:"allowed_origins" json:"allowed_origins,omitempty"`
}

// RunnerConfig selects and configures the model backend.
type RunnerConfig struct {
	// Backend is one of "chat", "completion", "openai" or "llama".
	Backend string `toml:"backend" json:"backend"`
	// BaseURL is the backend endpoint. Empty means the backend's default.
	BaseURL string `toml:"base_url" json:"base_url,omitempty"`
	APIKey  string `toml:"api_key" json:"api_key,omitempty"`
	// APIType is "completions" or "chat_completions" (openai backend only).
	APIType string `toml:"api_type" json:"api_type,omitempty"`
	Model   string `toml:"model" json:"model,omitempty"`
	// ModelPath is the GGUF file loaded by the llama backend.
	ModelPath         string        `toml:"model_path" json:"model_path,omitempty"`
	CtxSize           int           `toml:"ctx_size" json:"ctx_size,omitempty"`
	GPULayers         int           `toml:"gpu_layers" json:"gpu_layers,omitempty"`
	MaxNewTokens      int           `toml:"max_new_tokens" json:"max_new_tokens,omitempty"`
	MaxNewTokensLimit int           `toml:"max_new_tokens_limit" json:"max_new_tokens_limit,omitempty"`
	Temperature       *float64      `toml:"temperature" json:"temperature,omitempty"`
	Stop              []string      `toml:"stop" json:"stop,omitempty"`
	Fallback          *RunnerConfig `toml:"fallback" json:"fallback,omitempty"`
}

// CleanupConfig configures the completion post-processor.
type CleanupConfig struct {
	Enabled  *bool    `toml:"enabled" json:"enabled,omitempty"`
	FenceTag string   `toml:"fence_tag" json:"fence_tag,omitempty"`
	Keywords []string `toml:"keywords" json:"keywords,omitempty"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Enabled    *bool `toml:"enabled" json:"enabled,omitempty"`
	TTLMinutes int   `toml:"ttl_minutes" json:"ttl_minutes,omitempty"`
	Capacity   int   `toml:"capacity" json:"capacity,omitempty"`
}

// ConfigDir returns the config directory path.
// Resolution order: $VCOMPLETE_CONFIG_DIR > $XDG_CONFIG_HOME/vcomplete > ~/.config/vcomplete
func ConfigDir() string {
	if dir := os.Getenv("VCOMPLETE_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "vcomplete")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "vcomplete-config")
	}
	return filepath.Join(home, ".config", "vcomplete")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// DefaultConfig returns the default configuration from the embedded default_config.toml.
func DefaultConfig() *Config {
	var cfg Config
	if _, err := toml.Decode(defaults.DefaultConfigTOML, &cfg); err != nil {
		panic("vcomplete: invalid embedded default_config.toml: " + err.Error())
	}
	return &cfg
}

// LoadConfig loads config from disk or returns defaults if not found.
func LoadConfig() (*Config, error) {
	return LoadConfigFile(ConfigPath())
}

// LoadConfigFile loads config from path, filling missing fields with defaults.
// A missing file yields the defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg, DefaultConfig())
	return &cfg, nil
}

func applyDefaults(cfg, defaults *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaults.Server.Addr
	}
	if cfg.Server.MaxConcurrent == 0 {
		cfg.Server.MaxConcurrent = defaults.Server.MaxConcurrent
	}
	if cfg.Server.RequestTimeoutSeconds == 0 {
		cfg.Server.RequestTimeoutSeconds = defaults.Server.RequestTimeoutSeconds
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = defaults.Server.MaxBodyBytes
	}
	if cfg.Server.AllowedOrigins == nil {
		cfg.Server.AllowedOrigins = defaults.Server.AllowedOrigins
	}

	if cfg.Runner.Backend == "" {
		cfg.Runner.Backend = defaults.Runner.Backend
	}
	applyRunnerDefaults(&cfg.Runner, &defaults.Runner)
	if cfg.Runner.Fallback != nil {
		applyRunnerDefaults(cfg.Runner.Fallback, &defaults.Runner)
	}

	if cfg.Cleanup.Enabled == nil {
		cfg.Cleanup.Enabled = defaults.Cleanup.Enabled
	}
	if cfg.Cleanup.FenceTag == "" {
		cfg.Cleanup.FenceTag = defaults.Cleanup.FenceTag
	}
	if len(cfg.Cleanup.Keywords) == 0 {
		cfg.Cleanup.Keywords = defaults.Cleanup.Keywords
	}

	if cfg.Cache.Enabled == nil {
		cfg.Cache.Enabled = defaults.Cache.Enabled
	}
	if cfg.Cache.TTLMinutes == 0 {
		cfg.Cache.TTLMinutes = defaults.Cache.TTLMinutes
	}
	if cfg.Cache.Capacity == 0 {
		cfg.Cache.Capacity = defaults.Cache.Capacity
	}
}

// applyRunnerDefaults fills generation settings. Backend and BaseURL are left
// alone: an empty BaseURL means "whatever the backend listens on by default".
func applyRunnerDefaults(rc, defaults *RunnerConfig) {
	if rc.APIType == "" {
		rc.APIType = defaults.APIType
	}
	if rc.Model == "" {
		rc.Model = defaults.Model
	}
	if rc.CtxSize == 0 {
		rc.CtxSize = defaults.CtxSize
	}
	if rc.MaxNewTokens == 0 {
		rc.MaxNewTokens = defaults.MaxNewTokens
	}
	if rc.MaxNewTokensLimit == 0 {
		rc.MaxNewTokensLimit = defaults.MaxNewTokensLimit
	}
	if rc.Temperature == nil {
		rc.Temperature = defaults.Temperature
	}
}

// ValidateConfig checks configuration for potential issues and returns warnings.
func ValidateConfig(cfg *Config) []string {
	var warnings []string
	if cfg == nil {
		return warnings
	}
	switch ResolveBackend(cfg) {
	case "chat", "completion":
	case "openai":
		if cfg.Runner.APIType != "completions" && cfg.Runner.APIType != "chat_completions" {
			warnings = append(warnings, "runner.api_type must be \"completions\" or \"chat_completions\"; got "+cfg.Runner.APIType)
		}
	case "llama":
		if ResolveModelPath(cfg) == "" {
			warnings = append(warnings, "llama backend selected but runner.model_path is not set")
		}
	default:
		warnings = append(warnings, "unknown runner.backend: "+ResolveBackend(cfg))
	}
	if fb := cfg.Runner.Fallback; fb != nil && fb.Backend == "" {
		warnings = append(warnings, "runner.fallback is present but has no backend; it will be ignored")
	}
	if cfg.Cleanup.Enabled != nil && *cfg.Cleanup.Enabled && ResolveBackend(cfg) == "chat" {
		warnings = append(warnings, "cleanup is enabled for the chat backend; conversational replies without code lines will come back empty")
	}
	if cfg.Runner.MaxNewTokens > cfg.Runner.MaxNewTokensLimit && cfg.Runner.MaxNewTokensLimit > 0 {
		warnings = append(warnings, "runner.max_new_tokens exceeds runner.max_new_tokens_limit")
	}
	if cfg.Server.MaxConcurrent < 1 {
		warnings = append(warnings, "server.max_concurrent must be at least 1")
	}
	return warnings
}

// RequestTimeout returns the per-request model deadline.
func (cfg *Config) RequestTimeout() time.Duration {
	return time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second
}

// CacheTTL returns the response cache entry lifetime.
func (cfg *Config) CacheTTL() time.Duration {
	return time.Duration(cfg.Cache.TTLMinutes) * time.Minute
}

// CleanupEnabled reports whether raw completions are post-processed.
func (cfg *Config) CleanupEnabled() bool {
	if cfg.Cleanup.Enabled == nil {
		return true
	}
	return *cfg.Cleanup.Enabled
}

// CacheEnabled reports whether the response cache is on.
func (cfg *Config) CacheEnabled() bool {
	if cfg.Cache.Enabled == nil {
		return true
	}
	return *cfg.Cache.Enabled
}

// Redacted returns a copy of cfg safe to send to clients.
func (cfg *Config) Redacted() *Config {
	out := *cfg
	if out.Runner.APIKey != "" {
		out.Runner.APIKey = "redacted"
	}
	if fb := cfg.Runner.Fallback; fb != nil {
		fbCopy := *fb
		if fbCopy.APIKey != "" {
			fbCopy.APIKey = "redacted"
		}
		out.Runner.Fallback = &fbCopy
	}
	return &out
}

// ResolveBackend returns the runner backend.
// Priority: $VCOMPLETE_BACKEND env > config value.
func ResolveBackend(cfg *Config) string {
	if backend := os.Getenv("VCOMPLETE_BACKEND"); backend != "" {
		return backend
	}
	if cfg != nil {
		return cfg.Runner.Backend
	}
	return ""
}

// ResolveBaseURL returns the runner base URL.
// Priority: $VCOMPLETE_BASE_URL env > config value.
func ResolveBaseURL(cfg *Config) string {
	if url := os.Getenv("VCOMPLETE_BASE_URL"); url != "" {
		return url
	}
	if cfg != nil {
		return cfg.Runner.BaseURL
	}
	return ""
}

// ResolveAPIKey returns the runner API key.
// Priority: $VCOMPLETE_API_KEY env > config value.
func ResolveAPIKey(cfg *Config) string {
	if key := os.Getenv("VCOMPLETE_API_KEY"); key != "" {
		return key
	}
	if cfg != nil {
		return cfg.Runner.APIKey
	}
	return ""
}

// ResolveModel returns the model name.
// Priority: $VCOMPLETE_MODEL env > config value.
func ResolveModel(cfg *Config) string {
	if model := os.Getenv("VCOMPLETE_MODEL"); model != "" {
		return model
	}
	if cfg != nil {
		return cfg.Runner.Model
	}
	return ""
}

// ResolveModelPath returns the GGUF model path for the llama backend.
// Priority: $VCOMPLETE_MODEL_PATH env > config value.
func ResolveModelPath(cfg *Config) string {
	if path := os.Getenv("VCOMPLETE_MODEL_PATH"); path != "" {
		return path
	}
	if cfg != nil {
		return cfg.Runner.ModelPath
	}
	return ""
}

// ResolveAddr returns the HTTP listen address.
// Priority: $VCOMPLETE_ADDR env > config value.
func ResolveAddr(cfg *Config) string {
	if addr := os.Getenv("VCOMPLETE_ADDR"); addr != "" {
		return addr
	}
	if cfg != nil {
		return cfg.Server.Addr
	}
	return ""
}

// ResolveRunner returns the primary runner settings with environment overrides applied.
func ResolveRunner(cfg *Config) RunnerConfig {
	rc := cfg.Runner
	rc.Backend = ResolveBackend(cfg)
	rc.BaseURL = ResolveBaseURL(cfg)
	rc.APIKey = ResolveAPIKey(cfg)
	rc.Model = ResolveModel(cfg)
	rc.ModelPath = ResolveModelPath(cfg)
	return rc
}
