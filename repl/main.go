// Command vcomplete-repl is an interactive test REPL for vcomplete completions.
// Prompt lines accumulate until an empty line submits them. The cleaned
// completion is shown on the terminal and a structured TOML record with the
// raw model output is written to stdout.
//
// Usage:
//
//	./vcomplete-repl             # interactive, TOML on screen
//	./vcomplete-repl > log.toml  # prompt on screen, TOML to file
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	vcomplete "github.com/vcomplete/vcomplete"
	"github.com/vcomplete/vcomplete/generate"
)

const (
	firstPrompt = "v> "
	contPrompt  = ".. "
)

// session holds the pending prompt and per-request overrides.
type session struct {
	lines        []string
	maxNewTokens *int
	temperature  *float64
}

func (s *session) request() *vcomplete.Request {
	return &vcomplete.Request{
		Prompt:       strings.Join(s.lines, "\n"),
		MaxNewTokens: s.maxNewTokens,
		Temperature:  s.temperature,
	}
}

// command applies a ":" command. It reports whether the REPL should exit.
func (s *session) command(line string, out io.Writer, engine *generate.Engine) (quit bool, err error) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, ":"), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "q", "quit":
		return true, nil
	case "clear":
		s.lines = nil
	case "tokens":
		if arg == "" {
			s.maxNewTokens = nil
			return false, nil
		}
		n, err := strconv.Atoi(arg)
		if err != nil {
			return false, fmt.Errorf("tokens: %w", err)
		}
		s.maxNewTokens = &n
	case "temp":
		if arg == "" {
			s.temperature = nil
			return false, nil
		}
		t, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return false, fmt.Errorf("temp: %w", err)
		}
		s.temperature = &t
	case "stats":
		st := engine.Stats()
		fmt.Fprintf(out, "requests=%d errors=%d fallbacks=%d cache_hits=%d p50=%.0fms p95=%.0fms\r\n",
			st.Requests, st.Errors, st.Fallbacks, st.CacheHits, st.P50Millis, st.P95Millis)
	default:
		return false, fmt.Errorf("unknown command :%s", name)
	}
	return false, nil
}

func main() {
	editor, err := NewEditor()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer editor.Close()

	tty := editor.Out()

	fmt.Fprint(tty, "\033[2J\033[H") // clear screen
	fmt.Fprint(tty, "vcomplete repl\r\n")
	fmt.Fprint(tty, "\r\nenter a Verilog prompt; an empty line submits it\r\n")
	fmt.Fprint(tty, "\r\ncommands:\r\n")
	fmt.Fprint(tty, "  :tokens [n]  set max_new_tokens (no argument resets)\r\n")
	fmt.Fprint(tty, "  :temp [t]    set temperature (no argument resets)\r\n")
	fmt.Fprint(tty, "  :clear       discard the pending prompt\r\n")
	fmt.Fprint(tty, "  :stats       show engine counters\r\n")
	fmt.Fprint(tty, "  :quit        exit\r\n\r\n")

	engine := generate.NewEngine()
	defer engine.Close()
	fmt.Fprintf(tty, "backend: %s\r\n\r\n", engine.Backend())

	// stdout writer: converts \n → \r\n when stdout is a terminal (raw mode),
	// passes \n through unchanged when redirected to a file.
	out := termWriter(os.Stdout)

	s := &session{}
	for {
		p := firstPrompt
		if len(s.lines) > 0 {
			p = contPrompt
		}
		line, err := editor.ReadLine(p)
		if err == io.EOF || err == ErrInterrupt {
			break
		}
		if err != nil {
			fmt.Fprintf(tty, "read error: %v\r\n", err)
			break
		}

		if strings.HasPrefix(line, ":") {
			quit, err := s.command(line, tty, engine)
			if err != nil {
				fmt.Fprintf(tty, "error: %v\r\n", err)
			}
			if quit {
				break
			}
			continue
		}

		if line != "" {
			s.lines = append(s.lines, line)
			continue
		}
		if len(s.lines) == 0 {
			continue
		}

		req := s.request()
		result := engine.GenerateVerbose(context.Background(), req)

		fmt.Fprintf(tty, "%s\r\n\r\n", strings.ReplaceAll(summary(result), "\n", "\r\n"))
		if err := writeEntry(out, newEntry(s, req.Prompt, result)); err != nil {
			fmt.Fprintf(tty, "error: writing log entry: %v\r\n", err)
		}
		s.lines = nil
	}
}
