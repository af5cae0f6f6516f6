package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"

	vcomplete "github.com/vcomplete/vcomplete"
	"github.com/vcomplete/vcomplete/generate"
)

// Generator processes a generation request and returns a response.
type Generator interface {
	Generate(ctx context.Context, req *vcomplete.Request) *vcomplete.Response
	Backend() string
	Ping(ctx context.Context) error
	Stats() vcomplete.Stats
	Config() *vcomplete.Config
	Close()
}

// ConfigLoader reads the configuration. It is called at startup and on every reload.
type ConfigLoader func() (*vcomplete.Config, error)

// EngineBuilder creates a Generator from a loaded configuration.
type EngineBuilder func(cfg *vcomplete.Config) Generator

// defaultMaxBodyBytes applies when the config leaves server.max_body_bytes unset.
const defaultMaxBodyBytes = 1 << 20

// healthTimeout bounds the backend probe behind /healthz.
const healthTimeout = 3 * time.Second

type ctxKey int

const requestIDKey ctxKey = 0

// Server serves the generation API over HTTP.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	load       ConfigLoader
	build      EngineBuilder

	maxBodyBytes   int64
	allowedOrigins []string

	mu     sync.RWMutex
	engine Generator
}

// NewServer creates a server bound to addr serving engines built by generate.NewEngineWithConfig.
func NewServer(addr string, cfg *vcomplete.Config, load ConfigLoader) (*Server, error) {
	return NewServerWithBuilder(addr, cfg, load, func(cfg *vcomplete.Config) Generator {
		return generate.NewEngineWithConfig(cfg)
	})
}

// NewServerWithBuilder creates a server bound to addr with an engine built from cfg.
// Listener settings (body limit, allowed origins) come from cfg and are not reloaded.
func NewServerWithBuilder(addr string, cfg *vcomplete.Config, load ConfigLoader, build EngineBuilder) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		listener:       listener,
		load:           load,
		build:          build,
		engine:         build(cfg),
		maxBodyBytes:   cfg.Server.MaxBodyBytes,
		allowedOrigins: cfg.Server.AllowedOrigins,
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = defaultMaxBodyBytes
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve accepts connections until Shutdown is called.
func (s *Server) Serve() error {
	err := s.httpServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, waits for in-flight ones and closes the engine.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.mu.Lock()
	if s.engine != nil {
		s.engine.Close()
		s.engine = nil
	}
	s.mu.Unlock()
	return err
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/generate/{$}", s.handleGenerate)
	mux.HandleFunc("POST /api/v1/generate", s.handleGenerate)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/v1/stats", s.handleStats)
	mux.HandleFunc("GET /api/v1/config", s.handleConfig)
	mux.HandleFunc("POST /api/v1/config/reload", s.handleReload)

	return gzhttp.GzipHandler(s.withCORS(s.withRequestID(mux)))
}

func (s *Server) currentEngine() Generator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	engine := s.currentEngine()
	if engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody(vcomplete.CodeNotConfigured, "server is shutting down"))
		return
	}

	var req vcomplete.Request
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody(vcomplete.CodeInvalidRequest, "request body too large"))
			return
		}
		slog.Warn("invalid request", "request_id", requestID(r.Context()), "error", err)
		writeJSON(w, http.StatusBadRequest, errorBody(vcomplete.CodeInvalidRequest, "invalid JSON body: "+err.Error()))
		return
	}

	slog.Debug("request", "request_id", requestID(r.Context()), "prompt", req.Prompt)

	resp := engine.Generate(r.Context(), &req)

	status := http.StatusOK
	if resp.Error != nil {
		status = statusForCode(resp.Error.Code)
		slog.Warn("generate failed", "request_id", requestID(r.Context()), "code", resp.Error.Code, "error", resp.Error.Message)
	}

	slog.Debug("response", "request_id", requestID(r.Context()), "text", resp.Text)

	writeJSON(w, status, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	engine := s.currentEngine()
	if engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, vcomplete.HealthResponse{Status: "shutting_down"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := engine.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, vcomplete.HealthResponse{
			Status:  "unreachable",
			Backend: engine.Backend(),
			Error:   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, vcomplete.HealthResponse{Status: "ok", Backend: engine.Backend()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	engine := s.currentEngine()
	if engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody(vcomplete.CodeNotConfigured, "server is shutting down"))
		return
	}
	writeJSON(w, http.StatusOK, engine.Stats())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	engine := s.currentEngine()
	if engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody(vcomplete.CodeNotConfigured, "server is shutting down"))
		return
	}
	cfg := engine.Config()
	writeJSON(w, http.StatusOK, vcomplete.ConfigResponse{
		Config:   cfg.Redacted(),
		Warnings: vcomplete.ValidateConfig(cfg),
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.load()
	if err != nil {
		slog.Warn("config reload failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, vcomplete.ConfigResponse{
			Error: &vcomplete.Error{Code: vcomplete.CodeConfigError, Message: err.Error()},
		})
		return
	}
	warnings := vcomplete.ValidateConfig(cfg)
	for _, warn := range warnings {
		slog.Warn("config", "warning", warn)
	}

	// Respond immediately; loading a local model can take a long time.
	go s.reloadEngine(cfg)

	writeJSON(w, http.StatusAccepted, vcomplete.ConfigResponse{
		Config:   cfg.Redacted(),
		Warnings: warnings,
	})
}

func (s *Server) reloadEngine(cfg *vcomplete.Config) {
	next := s.build(cfg)

	s.mu.Lock()
	prev := s.engine
	if prev == nil {
		// Shut down while the new engine was being built.
		s.mu.Unlock()
		next.Close()
		return
	}
	s.engine = next
	s.mu.Unlock()

	prev.Close()
	slog.Info("engine reloaded", "backend", next.Backend())
}

// withRequestID assigns each request an ID, reusing the client's X-Request-ID if present.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withCORS lets the browser editor call the API from another origin.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			h := w.Header()
			if slices.Contains(s.allowedOrigins, "*") {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			h.Set("Access-Control-Expose-Headers", "X-Request-ID")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// statusForCode maps an engine error code to an HTTP status.
func statusForCode(code string) int {
	switch code {
	case vcomplete.CodeInvalidRequest:
		return http.StatusBadRequest
	case vcomplete.CodeNotConfigured, vcomplete.CodeBusy:
		return http.StatusServiceUnavailable
	case vcomplete.CodeTimeout:
		return http.StatusGatewayTimeout
	case vcomplete.CodeAPIError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(code, message string) *vcomplete.Response {
	return &vcomplete.Response{Error: &vcomplete.Error{Code: code, Message: message}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}
