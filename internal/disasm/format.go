package disasm

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"sctools/internal/isa"
)

// Namer renders a code address used as a jump, case or call target.
type Namer func(addr int) string

// LabelName is the default Namer.
func LabelName(addr int) string { return fmt.Sprintf("lbl_%06X", addr) }

// String formats the instruction with default label names.
func (in Inst) String() string { return Format(in, nil) }

// Format renders in as its mnemonic followed by space-separated operands.
// Strings are single-quoted and switch cases print as value:label. Invalid
// bytes print as a .byte directive.
func Format(in Inst, names Namer) string {
	if names == nil {
		names = LabelName
	}
	info := in.Info()
	if info.Has(isa.FlagInvalid) {
		return fmt.Sprintf(".byte 0x%02X", in.Raw[0])
	}
	ops, err := operands(in, names)
	if err != nil {
		return fmt.Sprintf("%s ; %v", info.Mnemonic, err)
	}
	if len(ops) == 0 {
		return info.Mnemonic
	}
	return info.Mnemonic + " " + strings.Join(ops, " ")
}

func operands(in Inst, names Namer) ([]string, error) {
	switch in.Info().Shape {
	case isa.ShapeU8, isa.ShapeU8x2, isa.ShapeU8x3:
		bs, err := in.U8s()
		if err != nil {
			return nil, err
		}
		out := make([]string, len(bs))
		for i, b := range bs {
			out[i] = strconv.Itoa(int(b))
		}
		return out, nil
	case isa.ShapeU16:
		v, err := in.U16()
		return []string{strconv.Itoa(int(v))}, err
	case isa.ShapeS16:
		v, err := in.S16()
		return []string{strconv.Itoa(int(v))}, err
	case isa.ShapeU24:
		v, err := in.U24()
		return []string{strconv.Itoa(int(v))}, err
	case isa.ShapeU32:
		v, err := in.U32()
		return []string{strconv.FormatUint(uint64(v), 10)}, err
	case isa.ShapeF32:
		v, err := in.F32()
		return []string{FormatFloat(v)}, err
	case isa.ShapeJumpRel, isa.ShapeJumpAbs:
		t, err := in.JumpTarget()
		return []string{names(t)}, err
	case isa.ShapeCall24, isa.ShapeCall32, isa.ShapeCallBanked:
		t, err := in.CallTarget()
		return []string{names(t)}, err
	case isa.ShapeSwitch:
		cases, err := in.Cases()
		if err != nil {
			return nil, err
		}
		out := make([]string, len(cases))
		for i, c := range cases {
			out[i] = fmt.Sprintf("%d:%s", c.Value, names(c.Target))
		}
		return out, nil
	case isa.ShapeEnter:
		e, err := in.Enter()
		if err != nil {
			return nil, err
		}
		out := []string{strconv.Itoa(int(e.Params)), strconv.Itoa(int(e.FrameSize))}
		if n := len(e.Field); n > 0 {
			// Padding and empty names are kept so the text encodes back
			// to the same length.
			out = append(out, Quote(string(e.Field[:n-1])))
		}
		return out, nil
	case isa.ShapeLeave:
		l, err := in.Leave()
		return []string{strconv.Itoa(int(l.Params)), strconv.Itoa(int(l.Returns))}, err
	case isa.ShapeNative:
		n, err := in.Native()
		idx := strconv.Itoa(int(n.Index))
		if in.set.Native == isa.NativeHashed {
			idx = fmt.Sprintf("0x%08X", n.Index)
		}
		return []string{strconv.Itoa(int(n.Params)), strconv.Itoa(int(n.Returns)), idx}, err
	case isa.ShapeString, isa.ShapeString32:
		s, err := in.Text()
		return []string{Quote(s)}, err
	}
	return nil, nil
}

// FormatFloat prints f so that the text assembler reads back the same bits.
func FormatFloat(f float32) string {
	switch {
	case math.IsNaN(float64(f)):
		return "nan"
	case math.IsInf(float64(f), 1):
		return "inf"
	case math.IsInf(float64(f), -1):
		return "-inf"
	}
	s := strconv.FormatFloat(float64(f), 'g', -1, 32)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// Quote single-quotes s, escaping quotes, backslashes and non-printable
// bytes so that any byte sequence survives a trip through the assembler.
func Quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\t':
			sb.WriteString(`\t`)
		case c < 0x20 || c >= 0x7F:
			fmt.Fprintf(&sb, `\x%02X`, c)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('\'')
	return sb.String()
}

// Unquote reverses Quote.
func Unquote(s string) (string, error) {
	if len(s) < 2 || s[0] != '\'' || s[len(s)-1] != '\'' {
		return "", fmt.Errorf("not a quoted string: %s", s)
	}
	s = s[1 : len(s)-1]
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			sb.WriteByte(c)
			continue
		}
		i++
		if i >= len(s) {
			return "", fmt.Errorf("dangling escape in %q", s)
		}
		switch s[i] {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case '0':
			sb.WriteByte(0)
		case 'x':
			if i+2 >= len(s) {
				return "", fmt.Errorf("short \\x escape in %q", s)
			}
			v, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err != nil {
				return "", fmt.Errorf("bad \\x escape in %q: %w", s, err)
			}
			sb.WriteByte(byte(v))
			i += 2
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String(), nil
}
