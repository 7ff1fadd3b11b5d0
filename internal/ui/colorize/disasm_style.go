package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

// DisasmDark is the listing style.
var DisasmDark = styles.Register(chroma.MustNewStyle("disasm-dark", chroma.StyleEntries{
	chroma.Text:       "#FFFFFF",
	chroma.Background: "bg:#1e1e1e",
	chroma.Comment:    "#4F4F4F",

	chroma.Keyword:         "#FFFFFF",      // mnemonics
	chroma.KeywordPseudo:   "#EBC2ED",      // PUSH, PUSHF
	chroma.KeywordType:     "#7C9C9D",      // prologues and returns
	chroma.KeywordReserved: "bold #FF8700", // control flow
	chroma.NameDecorator:   "#EBC2ED",      // directives
	chroma.Name:            "#7C9C9D",      // label references

	chroma.LiteralNumber:      "#FF5F87",
	chroma.LiteralNumberHex:   "#FF5F87",
	chroma.LiteralNumberFloat: "#FF5F87",

	chroma.NameLabel: "#FFD700",

	chroma.Punctuation: "#FFFFFF",
	chroma.String:      "#EACD53",
}))
