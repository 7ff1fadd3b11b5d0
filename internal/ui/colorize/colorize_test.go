package colorize

import (
	"strings"
	"testing"

	"github.com/alecthomas/chroma/v2"
	"github.com/xyproto/env/v2"
)

func setenv(t *testing.T, key, value string) {
	t.Helper()
	t.Cleanup(env.Load)
	t.Setenv(key, value)
	env.Load()
}

func TestLexer(t *testing.T) {
	src := ".target gta5\nmain:\n    PUSH 3 ; note\n    SWITCH 1:a, 0x10:b\n    J main\n    PUSHF -1.5\n    STRING 'x'\n"
	it, err := Lexer.Tokenise(nil, src)
	if err != nil {
		t.Fatal(err)
	}
	got := make(map[string]chroma.TokenType)
	for _, tok := range it.Tokens() {
		if strings.TrimSpace(tok.Value) != "" {
			got[tok.Value] = tok.Type
		}
	}

	tests := []struct {
		value string
		want  chroma.TokenType
	}{
		{".target", chroma.NameDecorator},
		{"gta5", chroma.Name},
		{"main:", chroma.NameLabel},
		{"PUSH", chroma.KeywordPseudo},
		{"3", chroma.LiteralNumber},
		{"; note", chroma.Comment},
		{"SWITCH", chroma.KeywordReserved},
		{":", chroma.Punctuation},
		{"0x10", chroma.LiteralNumberHex},
		{"J", chroma.KeywordReserved},
		{"main", chroma.Name},
		{"PUSHF", chroma.KeywordPseudo},
		{"-1.5", chroma.LiteralNumberFloat},
		{"STRING", chroma.Keyword},
		{"'x'", chroma.LiteralString},
	}
	for _, tt := range tests {
		if got[tt.value] != tt.want {
			t.Errorf("%q: type %v, want %v", tt.value, got[tt.value], tt.want)
		}
	}
}

func TestDisabled(t *testing.T) {
	setenv(t, "SCTOOLS_NO_COLOR", "1")
	line := "    LEAVE 0 1"
	if got := Line(line); got != line {
		t.Errorf("Line() = %q", got)
	}
	if got := Gutter(0x10, true); got != "000010" {
		t.Errorf("Gutter() = %q", got)
	}
}

func TestEnabled(t *testing.T) {
	setenv(t, "SCTOOLS_NO_COLOR", "")
	line := "    LEAVE 0 1"
	if !Enabled() {
		t.Skip("NO_COLOR is set in the environment")
	}
	got := Line(line)
	if got == line || StripANSI(got) != line {
		t.Errorf("Line() = %q", got)
	}
	if VisibleWidth(got) != len(line) {
		t.Errorf("VisibleWidth() = %d, want %d", VisibleWidth(got), len(line))
	}
}
