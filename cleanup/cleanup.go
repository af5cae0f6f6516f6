// Package cleanup turns a raw model completion into insertable code.
//
// Completion-style runners continue the prompt literally, so their output
// often repeats the prompt, wraps the code in a Markdown fence, or drifts
// into prose. Clean strips the fence, drops an echoed prompt and, when the
// remainder does not look like code, keeps only lines that start with a
// recognized keyword.
package cleanup

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const fence = "```"

// edgeSpace is what gets trimmed next to fences and after an echoed prompt.
const edgeSpace = "\r\n "

// DefaultFenceTag is the language tag expected after an opening fence.
const DefaultFenceTag = "verilog"

// DefaultKeywords is the Verilog vocabulary used to recognize code lines.
var DefaultKeywords = []string{"module", "input", "output", "always", "endmodule", "reg", "wire", "assign"}

// Options configures a Cleaner.
type Options struct {
	// FenceTag follows the opening ``` marker (e.g. "verilog").
	FenceTag string
	// Keywords are the line-start tokens that mark structured code.
	Keywords []string
}

// Result describes what Clean did. Text is the cleaned output.
type Result struct {
	Text        string
	FenceOpen   bool // opening fence removed
	FenceClose  bool // closing fence removed
	EchoRemoved bool
	Fallback    bool // structural fallback produced Text
}

// Cleaner post-processes raw completions. It is immutable and safe for
// concurrent use.
type Cleaner struct {
	openFence string
	keywords  []string
}

// New creates a Cleaner. Empty options fall back to the Verilog defaults.
func New(opts Options) *Cleaner {
	tag := opts.FenceTag
	if tag == "" {
		tag = DefaultFenceTag
	}
	var keywords []string
	for _, kw := range opts.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	return &Cleaner{openFence: fence + tag, keywords: keywords}
}

var defaultCleaner = New(Options{})

// Clean post-processes raw with the default Verilog options.
func Clean(raw, prompt string) string {
	return defaultCleaner.Clean(raw, prompt)
}

// Clean returns the cleaned completion for raw given the prompt that produced it.
// It never fails; an empty string means nothing recognizable was generated.
func (c *Cleaner) Clean(raw, prompt string) string {
	return c.Process(raw, prompt).Text
}

// Process is Clean with a report of which steps applied.
func (c *Cleaner) Process(raw, prompt string) Result {
	var res Result
	text := raw

	if strings.HasPrefix(text, c.openFence) {
		text = strings.TrimLeft(text[len(c.openFence):], edgeSpace)
		res.FenceOpen = true
	}
	if strings.HasSuffix(text, fence) {
		text = strings.TrimRight(text[:len(text)-len(fence)], edgeSpace)
		res.FenceClose = true
	}

	// The cut is len(prompt) runes of the un-normalized text. When normalization
	// dropped characters from one side only, the cut lands a little early or late.
	if np := normalize(prompt); strings.HasPrefix(normalize(text), np) {
		text = strings.TrimLeft(dropRunes(text, utf8.RuneCountInString(prompt)), edgeSpace)
		res.EchoRemoved = true
		if text == "" {
			res.Text = ""
			return res
		}
	}

	if c.hasCodeLine(text) {
		res.Text = text
		return res
	}

	res.Text = c.keywordLines(raw)
	res.Fallback = true
	return res
}

// Normalize lowercases s and removes all whitespace and semicolons, so that an
// echoed prompt matches regardless of indentation or statement terminators.
func Normalize(s string) string {
	return normalize(s)
}

func normalize(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) || r == ';' {
			continue
		}
		sb.WriteRune(unicode.ToLower(r))
	}
	return sb.String()
}

// dropRunes removes the first n runes of s.
func dropRunes(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[i:]
		}
		n--
	}
	return ""
}

func (c *Cleaner) hasCodeLine(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if c.isCodeLine(line) {
			return true
		}
	}
	return false
}

// keywordLines keeps the lines of raw that start with a keyword.
func (c *Cleaner) keywordLines(raw string) string {
	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		if c.isCodeLine(line) {
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// isCodeLine reports whether line, ignoring leading whitespace, begins with a
// keyword as a whole token: "reg [3:0] q;" matches "reg", "register" does not.
func (c *Cleaner) isCodeLine(line string) bool {
	line = strings.TrimLeftFunc(line, unicode.IsSpace)
	for _, kw := range c.keywords {
		if !strings.HasPrefix(line, kw) {
			continue
		}
		next, _ := utf8.DecodeRuneInString(line[len(kw):])
		if next == utf8.RuneError || !isIdentRune(next) {
			return true
		}
	}
	return false
}

func isIdentRune(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
