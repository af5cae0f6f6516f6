package main

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func readLines(t *testing.T, input string, n int) []string {
	t.Helper()
	e := newEditor(strings.NewReader(input), io.Discard)
	var lines []string
	for i := 0; i < n; i++ {
		line, err := e.ReadLine("> ")
		if err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		lines = append(lines, line)
	}
	return lines
}

func TestReadLineEditing(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "wire a;\r", "wire a;"},
		{"newline terminator", "reg r;\n", "reg r;"},
		{"backspace", "wirex\x7f a;\r", "wire a;"},
		{"insert after left arrow", "wire ;\x1b[Da\r", "wire a;"},
		{"home then insert", "a;\x01wire \r", "wire a;"},
		{"end after home", "wire\x01\x05 a;\r", "wire a;"},
		{"clear line", "garbage\x15reg r;\r", "reg r;"},
		{"delete key", "wire aa;\x1b[D\x1b[D\x1b[3~\r", "wire a;"},
		{"tab indents", "\treg r;\r", "  reg r;"},
		{"utf8 backspace", "// é\x7f\x7f\r", "//"},
		{"utf8 insert", "// \xc3\xa9\r", "// é"},
		{"right arrow at end is ignored", "a\x1b[C\r", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := readLines(t, tt.input, 1)[0]
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadLineCtrlD(t *testing.T) {
	e := newEditor(strings.NewReader("\x04"), io.Discard)
	if _, err := e.ReadLine("> "); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}

	// Ctrl-D on a non-empty line is ignored.
	e = newEditor(strings.NewReader("a\x04b\r"), io.Discard)
	line, err := e.ReadLine("> ")
	if err != nil || line != "ab" {
		t.Errorf("got %q, %v", line, err)
	}
}

func TestReadLineCtrlC(t *testing.T) {
	e := newEditor(strings.NewReader("abc\x03"), io.Discard)
	if _, err := e.ReadLine("> "); !errors.Is(err, ErrInterrupt) {
		t.Errorf("expected ErrInterrupt, got %v", err)
	}
}

func TestReadLineHistory(t *testing.T) {
	input := "module m;\r" + "wire a;\r" + "\x1b[A\x1b[A\r" + "dra\x1b[A\x1b[Bft\r"
	lines := readLines(t, input, 4)
	want := []string{"module m;", "wire a;", "module m;", "draft"}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestHistorySkipsDuplicatesAndBlank(t *testing.T) {
	e := newEditor(strings.NewReader(""), io.Discard)
	for _, line := range []string{"a", "a", "", "b"} {
		e.remember(line)
	}
	if strings.Join(e.history, ",") != "a,b" {
		t.Errorf("unexpected history %q", e.history)
	}

	for i := 0; i < maxHistory+10; i++ {
		e.remember(strings.Repeat("x", i+1))
	}
	if len(e.history) != maxHistory {
		t.Errorf("expected history capped at %d, got %d", maxHistory, len(e.history))
	}
}

func TestRedrawMovesCursorBack(t *testing.T) {
	var out strings.Builder
	e := newEditor(strings.NewReader(""), &out)
	e.buf = []byte("wire a;")
	e.pos = 4
	e.redraw("> ")
	if got := out.String(); got != "\r\x1b[K> wire a;\x1b[3D" {
		t.Errorf("unexpected redraw %q", got)
	}
}

func TestUTF8RuneLen(t *testing.T) {
	tests := []struct {
		lead byte
		want int
	}{
		{'a', 1},
		{0xC3, 2},
		{0xE2, 3},
		{0xF0, 4},
	}
	for _, tt := range tests {
		if got := utf8RuneLen(tt.lead); got != tt.want {
			t.Errorf("utf8RuneLen(%#x) = %d, want %d", tt.lead, got, tt.want)
		}
	}
}
