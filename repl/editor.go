package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/term"
)

// ErrInterrupt is returned when the user presses Ctrl-C.
var ErrInterrupt = errors.New("interrupted")

// maxHistory bounds the number of remembered lines.
const maxHistory = 200

// Editor is a minimal raw-mode line editor with history.
// It reads from /dev/tty so it works even when stdout is redirected.
type Editor struct {
	in  *bufio.Reader
	out io.Writer

	tty      *os.File // nil when constructed over plain streams
	oldState *term.State

	buf     []byte
	pos     int // cursor byte offset into buf
	history []string
	hpos    int // index into history while browsing; len(history) means the live line
	live    string
}

// NewEditor opens /dev/tty and switches to raw mode.
func NewEditor() (*Editor, error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/tty: %w", err)
	}

	old, err := term.MakeRaw(int(tty.Fd()))
	if err != nil {
		tty.Close()
		return nil, fmt.Errorf("raw mode: %w", err)
	}

	e := newEditor(tty, tty)
	e.tty = tty
	e.oldState = old
	return e, nil
}

func newEditor(in io.Reader, out io.Writer) *Editor {
	return &Editor{in: bufio.NewReader(in), out: out}
}

// Close restores terminal state and closes the tty.
func (e *Editor) Close() {
	if e.tty == nil {
		return
	}
	term.Restore(int(e.tty.Fd()), e.oldState)
	e.tty.Close()
}

// Out returns the writer used for prompts and UI.
func (e *Editor) Out() io.Writer {
	return e.out
}

// ReadLine displays the prompt and reads one edited line.
// It returns io.EOF when the user presses Ctrl-D on empty input.
func (e *Editor) ReadLine(prompt string) (string, error) {
	e.buf = e.buf[:0]
	e.pos = 0
	e.hpos = len(e.history)
	e.redraw(prompt)

	for {
		b, err := e.in.ReadByte()
		if err != nil {
			return "", err
		}

		switch b {
		case 3: // Ctrl-C
			fmt.Fprint(e.out, "\r\n")
			return "", ErrInterrupt

		case 4: // Ctrl-D
			if len(e.buf) == 0 {
				fmt.Fprint(e.out, "\r\n")
				return "", io.EOF
			}

		case 13, 10: // Enter
			fmt.Fprint(e.out, "\r\n")
			line := string(e.buf)
			e.remember(line)
			return line, nil

		case 127, 8: // Backspace / Ctrl-H
			if e.pos > 0 {
				size := prevRuneLen(e.buf, e.pos)
				e.buf = append(e.buf[:e.pos-size], e.buf[e.pos:]...)
				e.pos -= size
			}

		case 1: // Ctrl-A
			e.pos = 0

		case 5: // Ctrl-E
			e.pos = len(e.buf)

		case 21: // Ctrl-U
			e.buf = e.buf[:0]
			e.pos = 0

		case 9: // Tab inserts indentation
			e.insert([]byte("  "))

		case 27:
			e.escape()

		default:
			if b >= 32 {
				ch := []byte{b}
				if b >= 0xC0 {
					for i := 1; i < utf8RuneLen(b); i++ {
						next, err := e.in.ReadByte()
						if err != nil {
							return "", err
						}
						ch = append(ch, next)
					}
				}
				e.insert(ch)
			}
		}

		e.redraw(prompt)
	}
}

// escape handles an ANSI escape sequence after the ESC byte.
func (e *Editor) escape() {
	b, err := e.in.ReadByte()
	if err != nil || b != '[' {
		return
	}
	b, err = e.in.ReadByte()
	if err != nil {
		return
	}
	switch b {
	case 'A': // Up
		e.browse(-1)
	case 'B': // Down
		e.browse(1)
	case 'D': // Left
		if e.pos > 0 {
			e.pos -= prevRuneLen(e.buf, e.pos)
		}
	case 'C': // Right
		if e.pos < len(e.buf) {
			_, size := utf8.DecodeRune(e.buf[e.pos:])
			e.pos += size
		}
	case 'H':
		e.pos = 0
	case 'F':
		e.pos = len(e.buf)
	case '1', '3', '4': // \x1b[1~ Home, \x1b[3~ Delete, \x1b[4~ End
		e.in.ReadByte() // '~'
		switch b {
		case '1':
			e.pos = 0
		case '4':
			e.pos = len(e.buf)
		case '3':
			if e.pos < len(e.buf) {
				_, size := utf8.DecodeRune(e.buf[e.pos:])
				e.buf = append(e.buf[:e.pos], e.buf[e.pos+size:]...)
			}
		}
	}
}

func (e *Editor) insert(ch []byte) {
	e.buf = append(e.buf, ch...)
	copy(e.buf[e.pos+len(ch):], e.buf[e.pos:len(e.buf)-len(ch)])
	copy(e.buf[e.pos:], ch)
	e.pos += len(ch)
}

// browse moves through history by delta, keeping the unfinished line.
func (e *Editor) browse(delta int) {
	next := e.hpos + delta
	if next < 0 || next > len(e.history) {
		return
	}
	if e.hpos == len(e.history) {
		e.live = string(e.buf)
	}
	e.hpos = next
	line := e.live
	if next < len(e.history) {
		line = e.history[next]
	}
	e.buf = append(e.buf[:0], line...)
	e.pos = len(e.buf)
}

func (e *Editor) remember(line string) {
	if line == "" {
		return
	}
	if n := len(e.history); n > 0 && e.history[n-1] == line {
		return
	}
	e.history = append(e.history, line)
	if len(e.history) > maxHistory {
		e.history = e.history[len(e.history)-maxHistory:]
	}
}

// redraw clears the current line and redraws prompt + buffer with cursor.
func (e *Editor) redraw(prompt string) {
	fmt.Fprintf(e.out, "\r\x1b[K%s%s", prompt, e.buf)
	if tail := utf8.RuneCount(e.buf[e.pos:]); tail > 0 {
		fmt.Fprintf(e.out, "\x1b[%dD", tail)
	}
}

// prevRuneLen returns the byte size of the rune ending at pos.
func prevRuneLen(buf []byte, pos int) int {
	if pos <= 0 {
		return 0
	}
	_, size := utf8.DecodeLastRune(buf[:pos])
	return size
}

// utf8RuneLen returns the byte length of a UTF-8 sequence from its leading byte.
func utf8RuneLen(lead byte) int {
	switch {
	case lead < 0xC0:
		return 1
	case lead < 0xE0:
		return 2
	case lead < 0xF0:
		return 3
	default:
		return 4
	}
}
