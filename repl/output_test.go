package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"

	vcomplete "github.com/vcomplete/vcomplete"
	"github.com/vcomplete/vcomplete/cleanup"
	"github.com/vcomplete/vcomplete/generate"
)

func TestCRLFWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &crlfWriter{w: &buf}
	n, err := w.Write([]byte("a\nb\n"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("expected original length 4, got %d", n)
	}
	if buf.String() != "a\r\nb\r\n" {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestWriteEntryRoundTrips(t *testing.T) {
	tokens := 64
	s := &session{maxNewTokens: &tokens}
	result := &generate.GenerateResult{
		Response: &vcomplete.Response{Text: "reg [3:0] count;\nendmodule"},
		Raw:      "```verilog\nmodule counter(input clk);\n  reg [3:0] count;\nendmodule\n```",
		Cleanup: cleanup.Result{
			Text:        "reg [3:0] count;\nendmodule",
			FenceOpen:   true,
			FenceClose:  true,
			EchoRemoved: true,
		},
		Duration: 1500 * time.Millisecond,
	}

	var buf bytes.Buffer
	if err := writeEntry(&buf, newEntry(s, "module counter(input clk);", result)); err != nil {
		t.Fatal(err)
	}

	var got entry
	if _, err := toml.Decode(buf.String(), &got); err != nil {
		t.Fatalf("entry is not valid TOML: %v\n%s", err, buf.String())
	}
	if got.Request.Prompt != "module counter(input clk);" {
		t.Errorf("unexpected prompt %q", got.Request.Prompt)
	}
	if got.Request.MaxNewTokens == nil || *got.Request.MaxNewTokens != 64 {
		t.Errorf("expected max_new_tokens 64, got %v", got.Request.MaxNewTokens)
	}
	if got.Request.Temperature != nil {
		t.Errorf("expected temperature omitted, got %v", *got.Request.Temperature)
	}
	if got.Result == nil {
		t.Fatal("expected result table")
	}
	if got.Result.Raw != result.Raw || got.Result.Text != result.Response.Text {
		t.Errorf("unexpected result %+v", got.Result)
	}
	if !got.Result.FenceOpen || !got.Result.EchoRemoved || got.Result.Fallback {
		t.Errorf("unexpected cleanup flags %+v", got.Result)
	}
	if got.Result.DurationMS != 1500 {
		t.Errorf("expected duration 1500ms, got %d", got.Result.DurationMS)
	}
	if got.Error != nil {
		t.Errorf("unexpected error table %+v", got.Error)
	}
}

func TestWriteEntryError(t *testing.T) {
	result := &generate.GenerateResult{
		Response: &vcomplete.Response{Error: &vcomplete.Error{Code: vcomplete.CodeAPIError, Message: "connection refused"}},
	}

	var buf bytes.Buffer
	if err := writeEntry(&buf, newEntry(&session{}, "module m;", result)); err != nil {
		t.Fatal(err)
	}
	var got entry
	if _, err := toml.Decode(buf.String(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Result != nil {
		t.Errorf("expected no result table, got %+v", got.Result)
	}
	if got.Error == nil || got.Error.Code != vcomplete.CodeAPIError {
		t.Errorf("unexpected error table %+v", got.Error)
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name   string
		result *generate.GenerateResult
		want   string
	}{
		{
			name:   "error",
			result: &generate.GenerateResult{Response: &vcomplete.Response{Error: &vcomplete.Error{Code: "timeout", Message: "slow"}}},
			want:   "error [timeout]: slow",
		},
		{
			name:   "empty",
			result: &generate.GenerateResult{Response: &vcomplete.Response{}},
			want:   "(empty completion)",
		},
		{
			name:   "plain",
			result: &generate.GenerateResult{Response: &vcomplete.Response{Text: "wire a;"}},
			want:   "wire a;",
		},
		{
			name: "tagged",
			result: &generate.GenerateResult{
				Response: &vcomplete.Response{Text: "wire a;"},
				Cleanup:  cleanup.Result{Fallback: true},
				Cached:   true,
			},
			want: "(cached, keyword fallback)\nwire a;",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := summary(tt.result); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSessionCommands(t *testing.T) {
	cfg := vcomplete.DefaultConfig()
	engine := generate.NewEngineWithRunner(cfg, nil)
	defer engine.Close()

	s := &session{lines: []string{"module m;"}}
	var out bytes.Buffer

	for _, cmd := range []string{":tokens 32", ":temp 0.2"} {
		if quit, err := s.command(cmd, &out, engine); quit || err != nil {
			t.Fatalf("%s: quit=%v err=%v", cmd, quit, err)
		}
	}
	req := s.request()
	if req.Prompt != "module m;" || *req.MaxNewTokens != 32 || *req.Temperature != 0.2 {
		t.Errorf("unexpected request %+v", req)
	}

	s.command(":tokens", &out, engine)
	s.command(":clear", &out, engine)
	if s.maxNewTokens != nil || len(s.lines) != 0 {
		t.Errorf("expected reset session, got %+v", s)
	}

	if _, err := s.command(":tokens many", &out, engine); err == nil {
		t.Error("expected error for non-numeric tokens")
	}
	if _, err := s.command(":bogus", &out, engine); err == nil {
		t.Error("expected error for unknown command")
	}

	if _, err := s.command(":stats", &out, engine); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "requests=0") {
		t.Errorf("unexpected stats output %q", out.String())
	}

	if quit, _ := s.command(":quit", &out, engine); !quit {
		t.Error("expected :quit to exit")
	}
}

func TestSessionJoinsLines(t *testing.T) {
	s := &session{lines: []string{"module m(", "  input clk", ");"}}
	if got := s.request().Prompt; got != "module m(\n  input clk\n);" {
		t.Errorf("unexpected prompt %q", got)
	}
}
