package runner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeOllama records the last request body and answers /api/chat and
// /api/generate with a single non-streamed message.
type fakeOllama struct {
	path string
	body map[string]any
}

func (f *fakeOllama) handler(t *testing.T, reply string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.path = r.URL.Path
		if r.URL.Path == "/" {
			return // heartbeat
		}
		if err := json.NewDecoder(r.Body).Decode(&f.body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		switch r.URL.Path {
		case "/api/chat":
			json.NewEncoder(w).Encode(map[string]any{
				"model":   f.body["model"],
				"message": map[string]string{"role": "assistant", "content": reply},
				"done":    true,
			})
		case "/api/generate":
			json.NewEncoder(w).Encode(map[string]any{
				"model":    f.body["model"],
				"response": reply,
				"done":     true,
			})
		default:
			http.NotFound(w, r)
		}
	}
}

func TestOllamaChat(t *testing.T) {
	fake := &fakeOllama{}
	srv := httptest.NewServer(fake.handler(t, "module m; endmodule"))
	defer srv.Close()

	r, err := NewOllama(srv.URL, "", ModeChat)
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Complete(context.Background(), "write a module", Options{MaxNewTokens: 64, Temperature: 0.2})
	if err != nil {
		t.Fatal(err)
	}
	if got != "module m; endmodule" {
		t.Errorf("unexpected reply %q", got)
	}
	if fake.path != "/api/chat" {
		t.Errorf("expected /api/chat, got %s", fake.path)
	}
	if fake.body["model"] != DefaultOllamaModel {
		t.Errorf("expected default model, got %v", fake.body["model"])
	}
	if fake.body["stream"] != false {
		t.Errorf("expected stream=false, got %v", fake.body["stream"])
	}
	msgs, _ := fake.body["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	opts, _ := fake.body["options"].(map[string]any)
	if opts["num_predict"] != float64(64) {
		t.Errorf("expected num_predict 64, got %v", opts["num_predict"])
	}
	if opts["temperature"] != 0.2 {
		t.Errorf("expected temperature 0.2, got %v", opts["temperature"])
	}
	if r.Name() != "ollama-chat" {
		t.Errorf("unexpected name %q", r.Name())
	}
}

func TestOllamaRawGenerate(t *testing.T) {
	fake := &fakeOllama{}
	srv := httptest.NewServer(fake.handler(t, "wire a;\nwire b;"))
	defer srv.Close()

	r, err := NewOllama(srv.URL+"/", "codellama:7b-code", ModeRaw)
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Complete(context.Background(), "wire a;", Options{Stop: []string{"endmodule"}})
	if err != nil {
		t.Fatal(err)
	}
	if got != "wire a;\nwire b;" {
		t.Errorf("unexpected reply %q", got)
	}
	if fake.path != "/api/generate" {
		t.Errorf("expected /api/generate, got %s", fake.path)
	}
	if fake.body["raw"] != true {
		t.Errorf("expected raw=true, got %v", fake.body["raw"])
	}
	if fake.body["prompt"] != "wire a;" {
		t.Errorf("expected prompt to be forwarded, got %v", fake.body["prompt"])
	}
	opts, _ := fake.body["options"].(map[string]any)
	if _, ok := opts["num_predict"]; ok {
		t.Error("expected num_predict to be omitted when unset")
	}
	if r.Name() != "ollama-raw" {
		t.Errorf("unexpected name %q", r.Name())
	}
}

func TestOllamaServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model \"nope\" not found"}`))
	}))
	defer srv.Close()

	r, err := NewOllama(srv.URL, "nope", ModeRaw)
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.Complete(context.Background(), "module", Options{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected backend message in error, got %v", err)
	}
}

func TestNewOllamaInvalidURL(t *testing.T) {
	if _, err := NewOllama("http://[::1", "", ModeChat); err == nil {
		t.Error("expected error for malformed base url")
	}
}

func TestOllamaHeartbeat(t *testing.T) {
	fake := &fakeOllama{}
	srv := httptest.NewServer(fake.handler(t, ""))

	r, err := NewOllama(srv.URL, "", ModeRaw)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Heartbeat(context.Background()); err != nil {
		t.Errorf("expected reachable server, got %v", err)
	}

	srv.Close()
	if err := r.Heartbeat(context.Background()); err == nil {
		t.Error("expected error after server shut down")
	}
}
