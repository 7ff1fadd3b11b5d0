package asmtext

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	"sctools/internal/asm"
	"sctools/internal/disasm"
	"sctools/internal/fault"
	"sctools/internal/isa"
	"sctools/internal/optimize"
)

// Options control assembly.
type Options struct {
	Optimize        bool
	StripNames      bool
	RequireFunction bool
	// Name is used in error positions.
	Name string
}

// Result is an assembled listing.
type Result struct {
	Set     *isa.Set
	Image   *asm.Image
	Fusions int
}

// Error is an assembly error at a source position.
type Error struct {
	Pos lexer.Position
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Pos, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Assemble assembles src for set. A .target directive before the first
// instruction overrides set.
func Assemble(set *isa.Set, src string, opts Options) (*Result, error) {
	parsed, err := Parse(opts.Name, src)
	if err != nil {
		return nil, err
	}
	a := &assembler{opts: opts, uses: make(map[string]lexer.Position)}
	a.reset(set)
	for _, line := range parsed.Lines {
		if err := a.line(line); err != nil {
			return nil, err
		}
		if err := a.e.Err(); err != nil {
			return nil, &Error{Pos: line.Pos, Err: err}
		}
	}
	res := &Result{Set: a.e.Set()}
	if opts.Optimize {
		res.Fusions = optimize.Optimize(a.e)
	}
	im, err := a.e.Finish()
	if err != nil {
		var fe *fault.Error
		if errors.As(err, &fe) && fe.Label != "" {
			if pos, ok := a.uses[strings.ToLower(fe.Label)]; ok {
				return nil, &Error{Pos: pos, Err: err}
			}
		}
		return nil, err
	}
	res.Image = im
	return res, nil
}

type assembler struct {
	opts    Options
	e       *asm.Emitter
	started bool
	uses    map[string]lexer.Position // first reference of each label
}

func (a *assembler) reset(set *isa.Set) {
	a.e = asm.NewEmitter(set)
	a.e.IncludeNames = !a.opts.StripNames
	a.e.RequireFunction = a.opts.RequireFunction
}

func (a *assembler) use(label string, pos lexer.Position) string {
	if _, ok := a.uses[strings.ToLower(label)]; !ok {
		a.uses[strings.ToLower(label)] = pos
	}
	return label
}

func errorf(pos lexer.Position, format string, args ...any) error {
	return &Error{Pos: pos, Err: fmt.Errorf(format, args...)}
}

// reserved reports whether name reads as an instruction on set, or as a
// float literal, and so cannot be a label.
func reserved(set *isa.Set, name string) bool {
	switch strings.ToUpper(name) {
	case "PUSH", "PUSHF", "NAN", "INF":
		return true
	}
	_, ok := set.Opcode(name)
	return ok
}

func (a *assembler) line(l *Line) error {
	if l.Label != nil {
		if reserved(a.e.Set(), *l.Label) {
			return errorf(l.Pos, "%s is an instruction name and cannot be a label", *l.Label)
		}
		a.started = true
		a.e.Label(*l.Label)
	}
	switch {
	case l.Directive != nil:
		return a.directive(l.Directive)
	case l.Inst != nil:
		a.started = true
		return a.instruction(l.Inst)
	}
	return nil
}

func (a *assembler) directive(d *Directive) error {
	switch strings.ToLower(d.Name) {
	case ".target":
		if len(d.Operands) != 1 || d.Operands[0].Label == nil {
			return errorf(d.Pos, ".target takes a target name")
		}
		if a.started {
			return errorf(d.Pos, ".target must come before any label or instruction")
		}
		set, err := isa.Lookup(*d.Operands[0].Label)
		if err != nil {
			return &Error{Pos: d.Pos, Err: err}
		}
		a.reset(set)
	case ".byte":
		a.started = true
		raw := make([]byte, 0, len(d.Operands))
		for _, o := range d.Operands {
			v, ok := o.Int()
			if !ok || v < 0 || v > math.MaxUint8 {
				return errorf(o.Pos, ".byte takes values from 0 to 255")
			}
			raw = append(raw, byte(v))
		}
		if len(raw) == 0 {
			return errorf(d.Pos, ".byte needs at least one value")
		}
		a.e.Raw(raw)
	default:
		return errorf(d.Pos, "unknown directive %s", d.Name)
	}
	return nil
}

func (a *assembler) instruction(in *Instruction) error {
	set := a.e.Set()
	ops := in.Operands
	switch strings.ToUpper(in.Mnemonic) {
	case "PUSH":
		if len(ops) != 1 {
			return errorf(in.Pos, "PUSH takes one operand")
		}
		if ops[0].Label != nil {
			a.e.PushAddress(a.use(*ops[0].Label, ops[0].Pos))
			return nil
		}
		v, ok := ops[0].Int()
		if !ok || v < math.MinInt32 || v > math.MaxUint32 {
			return errorf(ops[0].Pos, "PUSH takes a 32-bit integer or a label, use PUSHF for floats")
		}
		a.e.PushInt(int32(v))
		return nil
	case "PUSHF":
		if len(ops) != 1 {
			return errorf(in.Pos, "PUSHF takes one operand")
		}
		f, ok := ops[0].Float()
		if !ok {
			return errorf(ops[0].Pos, "PUSHF takes a number")
		}
		a.e.PushFloat(float32(f))
		return nil
	}

	op, ok := set.Opcode(in.Mnemonic)
	if !ok {
		return errorf(in.Pos, "%s has no instruction %s", set.Name, in.Mnemonic)
	}
	info := set.Info(op)
	want := func(n int) error {
		if len(ops) != n {
			return errorf(in.Pos, "%s takes %d operands, got %d", info.Mnemonic, n, len(ops))
		}
		return nil
	}
	ints := func(lo, hi int64) ([]int64, error) {
		out := make([]int64, len(ops))
		for i, o := range ops {
			v, ok := o.Int()
			if !ok {
				return nil, errorf(o.Pos, "%s: operand %d is a %s, want an integer", info.Mnemonic, i+1, o.kind())
			}
			if v < lo || v > hi {
				return nil, errorf(o.Pos, "%s: %d is outside [%d, %d]", info.Mnemonic, v, lo, hi)
			}
			out[i] = v
		}
		return out, nil
	}
	label := func() (string, error) {
		if err := want(1); err != nil {
			return "", err
		}
		if ops[0].Label == nil {
			return "", errorf(ops[0].Pos, "%s takes a label", info.Mnemonic)
		}
		return a.use(*ops[0].Label, ops[0].Pos), nil
	}

	switch info.Shape {
	case isa.ShapeNone, isa.ShapeImmInt, isa.ShapeImmFloat, isa.ShapeImmLeave:
		if err := want(0); err != nil {
			return err
		}
		a.e.Op(op)
	case isa.ShapeU8, isa.ShapeU8x2, isa.ShapeU8x3:
		if err := want(info.Size - 1); err != nil {
			return err
		}
		vs, err := ints(0, math.MaxUint8)
		if err != nil {
			return err
		}
		bs := make([]uint8, len(vs))
		for i, v := range vs {
			bs[i] = uint8(v)
		}
		a.e.OpU8(op, bs...)
	case isa.ShapeU16, isa.ShapeS16, isa.ShapeU24, isa.ShapeU32:
		if err := want(1); err != nil {
			return err
		}
		return a.scalar(op, info.Shape, ints)
	case isa.ShapeF32:
		if err := want(1); err != nil {
			return err
		}
		f, ok := ops[0].Float()
		if !ok {
			return errorf(ops[0].Pos, "%s takes a number", info.Mnemonic)
		}
		a.e.OpF32(op, float32(f))
	case isa.ShapeJumpRel, isa.ShapeJumpAbs:
		l, err := label()
		if err != nil {
			return err
		}
		a.e.Jump(op, l)
	case isa.ShapeCall24, isa.ShapeCall32, isa.ShapeCallBanked:
		l, err := label()
		if err != nil {
			return err
		}
		a.e.CallOp(op, l)
	case isa.ShapeSwitch:
		cases := make([]asm.Case, len(ops))
		for i, o := range ops {
			if o.Case == nil {
				return errorf(o.Pos, "SWITCH operands are value:label")
			}
			v, err := caseValue(o)
			if err != nil {
				return err
			}
			cases[i] = asm.Case{Value: v, Label: a.use(*o.Case, o.Pos)}
		}
		a.e.Switch(cases)
	case isa.ShapeEnter:
		if len(ops) != 2 && len(ops) != 3 {
			return errorf(in.Pos, "ENTER takes params, frame size and an optional name")
		}
		name := ""
		if len(ops) == 3 {
			s := ops[2]
			if s.String == nil {
				return errorf(s.Pos, "ENTER name must be a quoted string")
			}
			var err error
			if name, err = disasm.Unquote(*s.String); err != nil {
				return &Error{Pos: s.Pos, Err: err}
			}
			ops = ops[:2]
		}
		vs, err := ints(0, math.MaxUint16)
		if err != nil {
			return err
		}
		if vs[0] > math.MaxUint8 {
			return errorf(ops[0].Pos, "ENTER: %d params do not fit in a byte", vs[0])
		}
		if len(in.Operands) == 3 {
			a.e.EnterNamed(uint8(vs[0]), uint16(vs[1]), name)
		} else {
			a.e.Enter(uint8(vs[0]), uint16(vs[1]), "")
		}
	case isa.ShapeLeave:
		if err := want(2); err != nil {
			return err
		}
		vs, err := ints(0, math.MaxUint8)
		if err != nil {
			return err
		}
		// The explicit form, even where a LEAVE_x_y shortcut exists.
		a.e.Raw([]byte{byte(op), byte(vs[0]), byte(vs[1])})
	case isa.ShapeNative:
		if err := want(3); err != nil {
			return err
		}
		vs, err := ints(0, math.MaxUint32)
		if err != nil {
			return err
		}
		if vs[0] > math.MaxUint8 || vs[1] > math.MaxUint8 {
			return errorf(in.Pos, "NATIVE: parameter and return counts must fit in a byte")
		}
		a.e.Native(uint8(vs[0]), uint8(vs[1]), uint32(vs[2]))
	case isa.ShapeString, isa.ShapeString32:
		if err := want(1); err != nil {
			return err
		}
		if ops[0].String == nil {
			return errorf(ops[0].Pos, "%s takes a quoted string", info.Mnemonic)
		}
		s, err := disasm.Unquote(*ops[0].String)
		if err != nil {
			return &Error{Pos: ops[0].Pos, Err: err}
		}
		a.e.StringOp(op, s)
	default:
		return errorf(in.Pos, "%s cannot be assembled", info.Mnemonic)
	}
	return nil
}

func (a *assembler) scalar(op isa.Opcode, shape isa.Shape, ints func(lo, hi int64) ([]int64, error)) error {
	switch shape {
	case isa.ShapeU16:
		vs, err := ints(0, math.MaxUint16)
		if err != nil {
			return err
		}
		a.e.OpU16(op, uint16(vs[0]))
	case isa.ShapeS16:
		vs, err := ints(math.MinInt16, math.MaxInt16)
		if err != nil {
			return err
		}
		a.e.OpS16(op, int16(vs[0]))
	case isa.ShapeU24:
		vs, err := ints(0, 0xFFFFFF)
		if err != nil {
			return err
		}
		a.e.OpU24(op, uint32(vs[0]))
	case isa.ShapeU32:
		vs, err := ints(math.MinInt32, math.MaxUint32)
		if err != nil {
			return err
		}
		a.e.OpU32(op, uint32(vs[0]))
	}
	return nil
}

func caseValue(o *Operand) (int32, error) {
	n := Operand{Number: o.Number}
	v, ok := n.Int()
	if !ok {
		return 0, errorf(o.Pos, "case value %s is not an integer", *o.Number)
	}
	if v < math.MinInt32 || v > math.MaxUint32 {
		return 0, errorf(o.Pos, "case value %s does not fit in 32 bits", *o.Number)
	}
	return int32(v), nil
}
