// Package asmtext reads and writes the textual assembly listing format.
//
// A listing is line oriented:
//
//	.target gta5
//	main:
//	    ENTER 0 2 'main'
//	    PUSH 3            ; shortest integer push
//	    SWITCH 1:a 2:b
//	    LEAVE 0 1
//
// Operands are separated by spaces or commas. Comments run from ';' to the
// end of the line.
package asmtext

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Source is a parsed listing.
type Source struct {
	Lines []*Line `@@*`
}

// Line is one line: an optional label followed by an optional directive
// or instruction.
type Line struct {
	Pos       lexer.Position
	Label     *string      `( @Ident ":" )?`
	Directive *Directive   `( @@`
	Inst      *Instruction `| @@ )?`
	EOL       string       `@EOL`
}

// Directive is a dot-command such as .target or .byte.
type Directive struct {
	Pos      lexer.Position
	Name     string     `@Directive`
	Operands []*Operand `@@*`
}

// Instruction is a mnemonic with its operands.
type Instruction struct {
	Pos      lexer.Position
	Mnemonic string     `@Ident`
	Operands []*Operand `@@*`
}

// Operand is a number, a value:label switch case, a quoted string or a
// label reference.
type Operand struct {
	Pos    lexer.Position
	Number *string `( @(Float | Special | Hex | Int)`
	Case   *string `  ( ":" @Ident )? )`
	String *string `| @String`
	Label  *string `| @Ident`
}

var asmLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `;[^\n]*`},
	{Name: "Whitespace", Pattern: `[ \t\r,]+`},
	{Name: "EOL", Pattern: `\n`},
	{Name: "String", Pattern: `'(\\.|[^'\\\n])*'`},
	{Name: "Float", Pattern: `[-+]?(\d+\.\d*([eE][-+]?\d+)?|\d+[eE][-+]?\d+)`},
	{Name: "Special", Pattern: `[-+]?(inf|nan)\b`},
	{Name: "Hex", Pattern: `[-+]?0[xX][0-9a-fA-F]+`},
	{Name: "Int", Pattern: `[-+]?\d+`},
	{Name: "Directive", Pattern: `\.[a-zA-Z_]+`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Punct", Pattern: `:`},
})

var parser = participle.MustBuild[Source](
	participle.Lexer(asmLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(2),
)

// Parse parses a listing. name is used in error positions.
func Parse(name, src string) (*Source, error) {
	if !strings.HasSuffix(src, "\n") {
		src += "\n"
	}
	return parser.ParseString(name, src)
}

func (o *Operand) kind() string {
	switch {
	case o.Case != nil:
		return "case"
	case o.Number != nil:
		return "number"
	case o.String != nil:
		return "string"
	default:
		return "label"
	}
}

// Int parses the operand as an integer.
func (o *Operand) Int() (int64, bool) {
	if o.Number == nil || o.Case != nil {
		return 0, false
	}
	base := 10
	if strings.ContainsAny(*o.Number, "xX") {
		base = 0
	}
	v, err := strconv.ParseInt(*o.Number, base, 64)
	return v, err == nil
}

// Float parses the operand as a float; integers are accepted.
func (o *Operand) Float() (float64, bool) {
	if o.Number == nil || o.Case != nil {
		return 0, false
	}
	if v, ok := o.Int(); ok {
		return float64(v), true
	}
	v, err := strconv.ParseFloat(*o.Number, 32)
	return v, err == nil
}
