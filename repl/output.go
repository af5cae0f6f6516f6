package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/term"

	"github.com/vcomplete/vcomplete/generate"
)

// termWriter wraps a file and converts \n to \r\n when the file is a terminal
// (raw mode disables the kernel's NL→CRNL translation).
// When the file is redirected, \n passes through unchanged.
func termWriter(f *os.File) io.Writer {
	if term.IsTerminal(int(f.Fd())) {
		return &crlfWriter{w: f}
	}
	return f
}

type crlfWriter struct {
	w io.Writer
}

func (c *crlfWriter) Write(p []byte) (int, error) {
	replaced := bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))
	_, err := c.w.Write(replaced)
	return len(p), err // report original length to caller
}

// entry is one logged completion.
type entry struct {
	Request requestEntry `toml:"request"`
	Result  *resultEntry `toml:"result,omitempty"`
	Error   *errorEntry  `toml:"error,omitempty"`
}

type requestEntry struct {
	Timestamp    time.Time `toml:"timestamp"`
	Prompt       string    `toml:"prompt,multiline"`
	MaxNewTokens *int      `toml:"max_new_tokens,omitempty"`
	Temperature  *float64  `toml:"temperature,omitempty"`
}

type resultEntry struct {
	Raw         string `toml:"raw,multiline"`
	Text        string `toml:"text,multiline"`
	FenceOpen   bool   `toml:"fence_open"`
	FenceClose  bool   `toml:"fence_close"`
	EchoRemoved bool   `toml:"echo_removed"`
	Fallback    bool   `toml:"fallback"`
	Cached      bool   `toml:"cached"`
	DurationMS  int64  `toml:"duration_ms"`
}

type errorEntry struct {
	Code    string `toml:"code"`
	Message string `toml:"message"`
}

func newEntry(s *session, prompt string, result *generate.GenerateResult) *entry {
	e := &entry{
		Request: requestEntry{
			Timestamp:    time.Now().UTC().Truncate(time.Second),
			Prompt:       prompt,
			MaxNewTokens: s.maxNewTokens,
			Temperature:  s.temperature,
		},
	}
	if resp := result.Response; resp.Error != nil {
		e.Error = &errorEntry{Code: resp.Error.Code, Message: resp.Error.Message}
		return e
	}
	e.Result = &resultEntry{
		Raw:         result.Raw,
		Text:        result.Response.Text,
		FenceOpen:   result.Cleanup.FenceOpen,
		FenceClose:  result.Cleanup.FenceClose,
		EchoRemoved: result.Cleanup.EchoRemoved,
		Fallback:    result.Cleanup.Fallback,
		Cached:      result.Cached,
		DurationMS:  result.Duration.Milliseconds(),
	}
	return e
}

// writeEntry writes a single TOML-formatted entry to w.
func writeEntry(w io.Writer, e *entry) error {
	fmt.Fprintf(w, "# %s\n\n", strings.Repeat("═", 60))
	if err := toml.NewEncoder(w).Encode(e); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

// summary is the short tty rendering of a result.
func summary(result *generate.GenerateResult) string {
	resp := result.Response
	if resp.Error != nil {
		return fmt.Sprintf("error [%s]: %s", resp.Error.Code, resp.Error.Message)
	}
	if resp.Text == "" {
		return "(empty completion)"
	}
	var tags []string
	if result.Cached {
		tags = append(tags, "cached")
	}
	if result.Cleanup.EchoRemoved {
		tags = append(tags, "echo removed")
	}
	if result.Cleanup.Fallback {
		tags = append(tags, "keyword fallback")
	}
	var sb strings.Builder
	if len(tags) > 0 {
		fmt.Fprintf(&sb, "(%s)\n", strings.Join(tags, ", "))
	}
	sb.WriteString(resp.Text)
	return sb.String()
}
