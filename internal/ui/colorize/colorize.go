// Package colorize highlights assembly listings for the terminal.
package colorize

import (
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/xyproto/env/v2"
)

// Lexer tokenizes the listing syntax produced by asmtext.Print.
var Lexer = lexers.Register(chroma.MustNewLexer(
	&chroma.Config{
		Name:            "sctools asm",
		Aliases:         []string{"sca", "scasm"},
		Filenames:       []string{"*.sca"},
		CaseInsensitive: true,
		EnsureNL:        true,
	},
	func() chroma.Rules {
		return chroma.Rules{
			"root": {
				{Pattern: `[a-z_]\w*:`, Type: chroma.NameLabel},
				{Pattern: `[ \t]+`, Type: chroma.Text},
				{Pattern: `;[^\n]*`, Type: chroma.Comment},
				{Pattern: `\n`, Type: chroma.Text},
				{Pattern: `\.[a-z_]+`, Type: chroma.NameDecorator, Mutator: chroma.Push("operands")},
				{Pattern: `(enter|leave(_\d_\d)?)\b`, Type: chroma.KeywordType, Mutator: chroma.Push("operands")},
				{Pattern: `(j|jz|jnz|\w+_jz|switch|call(_[0-9a-f])?|callindirect|native)\b`, Type: chroma.KeywordReserved, Mutator: chroma.Push("operands")},
				{Pattern: `pushf?\b`, Type: chroma.KeywordPseudo, Mutator: chroma.Push("operands")},
				{Pattern: `[a-z_]\w*`, Type: chroma.Keyword, Mutator: chroma.Push("operands")},
			},
			"operands": {
				{Pattern: `\n`, Type: chroma.Text, Mutator: chroma.Pop(1)},
				{Pattern: `;[^\n]*`, Type: chroma.Comment},
				{Pattern: `[ \t]+`, Type: chroma.Text},
				{Pattern: `[,:]`, Type: chroma.Punctuation},
				{Pattern: `'(\\.|[^'\\\n])*'`, Type: chroma.LiteralString},
				{Pattern: `[-+]?(\d+\.\d*(e[-+]?\d+)?|\d+e[-+]?\d+|inf\b|nan\b)`, Type: chroma.LiteralNumberFloat},
				{Pattern: `[-+]?0x[0-9a-f]+`, Type: chroma.LiteralNumberHex},
				{Pattern: `[-+]?\d+`, Type: chroma.LiteralNumber},
				{Pattern: `[a-z_]\w*`, Type: chroma.Name},
			},
		}
	},
))

// Enabled reports whether output should be colored. SCTOOLS_NO_COLOR and
// NO_COLOR disable it.
func Enabled() bool {
	return !env.Bool("SCTOOLS_NO_COLOR") && !env.Has("NO_COLOR")
}

func style() *chroma.Style {
	for _, name := range []string{"disasm-dark", "dracula", "monokai"} {
		if s := styles.Get(name); s != nil {
			return s
		}
	}
	return styles.Fallback
}

func formatter() chroma.Formatter {
	for _, name := range []string{"terminal16m", "terminal256"} {
		if f := formatters.Get(name); f != nil {
			return f
		}
	}
	return formatters.Fallback
}

// Listing highlights a whole listing. The input is returned unchanged when
// colors are disabled.
func Listing(code string) (string, error) {
	if !Enabled() {
		return code, nil
	}
	it, err := Lexer.Tokenise(nil, code)
	if err != nil {
		return code, err
	}
	var buf strings.Builder
	if err := formatter().Format(&buf, style(), it); err != nil {
		return code, err
	}
	out := buf.String()
	// EnsureNL added a newline the input did not have.
	if !strings.HasSuffix(code, "\n") {
		if i := strings.LastIndexByte(out, '\n'); i >= 0 {
			out = out[:i] + out[i+1:]
		}
	}
	return out, nil
}

// Line highlights one listing line, falling back to the plain text.
func Line(line string) string {
	out, err := Listing(line)
	if err != nil {
		return line
	}
	return out
}

var (
	gutterStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170")).Bold(true)
)

// Gutter renders an address column entry.
func Gutter(addr int, selected bool) string {
	s := fmt.Sprintf("%06X", addr)
	if !Enabled() {
		return s
	}
	if selected {
		return selectedStyle.Render(s)
	}
	return gutterStyle.Render(s)
}

// StripANSI removes escape sequences from s.
func StripANSI(s string) string {
	var sb strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// VisibleWidth counts the characters of s outside escape sequences.
func VisibleWidth(s string) int {
	return len([]rune(StripANSI(s)))
}
