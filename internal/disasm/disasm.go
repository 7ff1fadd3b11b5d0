// Package disasm decodes script bytecode into instruction views.
//
// An Inst borrows its bytes from the caller's code buffer and is only
// valid as long as that buffer is. Operand accessors check the opcode's
// shape first; asking a jump for its string operand is a usage error
// (fault.ErrOperandMismatch), not a decode failure.
package disasm

import (
	"encoding/binary"
	"math"

	"sctools/internal/fault"
	"sctools/internal/isa"
)

// Inst is a decoded instruction.
type Inst struct {
	Addr int    // global code offset of the opcode byte
	Raw  []byte // full encoding, Raw[0] is the opcode
	set  *isa.Set
}

// View wraps already-sized instruction bytes. The optimizer uses it on
// buffer slots, which have no global address yet.
func View(set *isa.Set, addr int, raw []byte) Inst {
	return Inst{Addr: addr, Raw: raw, set: set}
}

// Stream is a linear sequence of instructions.
type Stream []Inst

func (in Inst) Set() *isa.Set { return in.set }
func (in Inst) Opcode() isa.Opcode { return isa.Opcode(in.Raw[0]) }
func (in Inst) Info() isa.Info { return in.set.Info(in.Opcode()) }
func (in Inst) Mnemonic() string { return in.Info().Mnemonic }
func (in Inst) Size() int { return len(in.Raw) }

// End is the address of the following instruction.
func (in Inst) End() int { return in.Addr + len(in.Raw) }

func (in Inst) mismatch(what string) error {
	return fault.Usage("operand", in.Addr,
		fault.Wrapf(fault.ErrOperandMismatch, "%s has no %s operand", in.Mnemonic(), what))
}

func (in Inst) need(n int) error {
	if len(in.Raw) < n {
		return fault.Malformed("operand", in.Addr,
			fault.Wrapf(fault.ErrTruncated, "%s needs %d bytes, have %d", in.Mnemonic(), n, len(in.Raw)))
	}
	return nil
}

func (in Inst) shape(want ...isa.Shape) bool {
	s := in.Info().Shape
	for _, w := range want {
		if s == w {
			return true
		}
	}
	return false
}

// U8 returns the i-th byte operand of a u8, u8x2 or u8x3 instruction.
func (in Inst) U8(i int) (uint8, error) {
	n := 0
	switch in.Info().Shape {
	case isa.ShapeU8:
		n = 1
	case isa.ShapeU8x2:
		n = 2
	case isa.ShapeU8x3:
		n = 3
	}
	if i < 0 || i >= n {
		return 0, in.mismatch("u8")
	}
	if err := in.need(2 + i); err != nil {
		return 0, err
	}
	return in.Raw[1+i], nil
}

// U8s returns every byte operand of a u8, u8x2 or u8x3 instruction.
func (in Inst) U8s() ([]uint8, error) {
	if !in.shape(isa.ShapeU8, isa.ShapeU8x2, isa.ShapeU8x3) {
		return nil, in.mismatch("u8")
	}
	if err := in.need(in.Info().Size); err != nil {
		return nil, err
	}
	return in.Raw[1:in.Info().Size], nil
}

func (in Inst) U16() (uint16, error) {
	if !in.shape(isa.ShapeU16) {
		return 0, in.mismatch("u16")
	}
	if err := in.need(3); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(in.Raw[1:]), nil
}

func (in Inst) S16() (int16, error) {
	if !in.shape(isa.ShapeS16, isa.ShapeJumpRel) {
		return 0, in.mismatch("s16")
	}
	if err := in.need(3); err != nil {
		return 0, err
	}
	return int16(binary.LittleEndian.Uint16(in.Raw[1:])), nil
}

func (in Inst) U24() (uint32, error) {
	if !in.shape(isa.ShapeU24, isa.ShapeCall24) {
		return 0, in.mismatch("u24")
	}
	if err := in.need(4); err != nil {
		return 0, err
	}
	return readU24(in.Raw[1:]), nil
}

func (in Inst) U32() (uint32, error) {
	if !in.shape(isa.ShapeU32, isa.ShapeJumpAbs, isa.ShapeCall32) {
		return 0, in.mismatch("u32")
	}
	if err := in.need(5); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(in.Raw[1:]), nil
}

func (in Inst) F32() (float32, error) {
	if !in.shape(isa.ShapeF32) {
		return 0, in.mismatch("f32")
	}
	if err := in.need(5); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(in.Raw[1:])), nil
}

// Text returns the literal of an inline string instruction, without the
// length prefix and terminating NUL.
func (in Inst) Text() (string, error) {
	var start int
	switch in.Info().Shape {
	case isa.ShapeString:
		start = 2
	case isa.ShapeString32:
		start = 5
	default:
		return "", in.mismatch("string")
	}
	if err := in.need(start + 1); err != nil {
		return "", err
	}
	return string(in.Raw[start : len(in.Raw)-1]), nil
}

// Enter holds the operands of a function prologue.
type Enter struct {
	Params    uint8
	FrameSize uint16
	Name      string // empty when the prologue carries no name
	// Field is the stored name field: 0xFF padding, name and terminator.
	// It is nil when the length byte is zero.
	Field []byte
}

func (in Inst) Enter() (Enter, error) {
	if !in.shape(isa.ShapeEnter) {
		return Enter{}, in.mismatch("enter")
	}
	if err := in.need(4); err != nil {
		return Enter{}, err
	}
	e := Enter{Params: in.Raw[1], FrameSize: binary.LittleEndian.Uint16(in.Raw[2:])}
	if in.set.NamedPrologue && len(in.Raw) > 5 {
		e.Field = in.Raw[5:]
		name := e.Field[:len(e.Field)-1]
		// Some compilers pad the name with leading 0xFF bytes.
		for len(name) > 0 && name[0] == 0xFF {
			name = name[1:]
		}
		e.Name = string(name)
	}
	return e, nil
}

// Leave holds the operands of a return.
type Leave struct {
	Params  uint8
	Returns uint8
}

func (in Inst) Leave() (Leave, error) {
	info := in.Info()
	switch info.Shape {
	case isa.ShapeLeave:
		if err := in.need(3); err != nil {
			return Leave{}, err
		}
		return Leave{Params: in.Raw[1], Returns: in.Raw[2]}, nil
	case isa.ShapeImmLeave:
		return Leave{Params: uint8(info.Value >> 8), Returns: uint8(info.Value)}, nil
	}
	return Leave{}, in.mismatch("leave")
}

// Native holds the operands of a native command call. Index is the command
// table index, or the command hash on hashed targets.
type Native struct {
	Params  uint8
	Returns uint8
	Index   uint32
}

func (in Inst) Native() (Native, error) {
	if !in.shape(isa.ShapeNative) {
		return Native{}, in.mismatch("native")
	}
	if err := in.need(in.Info().Size); err != nil {
		return Native{}, err
	}
	b := in.Raw
	switch in.set.Native {
	case isa.NativeBanked:
		return Native{
			Params:  b[1] >> 1 & 0x1F,
			Returns: b[1] & 0x1,
			Index:   uint32(b[1]>>6&0x3)<<8 | uint32(b[2]),
		}, nil
	case isa.NativeHashed:
		return Native{Params: b[1], Returns: b[2], Index: binary.LittleEndian.Uint32(b[3:])}, nil
	default:
		return Native{
			Params:  b[1] >> 2 & 0x3F,
			Returns: b[1] & 0x3,
			Index:   uint32(binary.BigEndian.Uint16(b[2:])),
		}, nil
	}
}

// Case is one entry of a switch instruction.
type Case struct {
	Value  int32
	Target int // absolute code address
}

// Cases decodes the case table of a switch.
func (in Inst) Cases() ([]Case, error) {
	if !in.shape(isa.ShapeSwitch) {
		return nil, in.mismatch("switch")
	}
	if err := in.need(2); err != nil {
		return nil, err
	}
	n := int(in.Raw[1])
	entry := in.set.Switch.EntrySize
	if err := in.need(2 + n*entry); err != nil {
		return nil, err
	}
	cases := make([]Case, n)
	for i := range cases {
		off := 2 + i*entry
		c := Case{Value: int32(binary.LittleEndian.Uint32(in.Raw[off:]))}
		if in.set.Switch.Relative {
			rel := int16(binary.LittleEndian.Uint16(in.Raw[off+4:]))
			c.Target = in.Addr + off + entry + int(rel)
		} else {
			c.Target = int(binary.LittleEndian.Uint32(in.Raw[off+4:]))
		}
		cases[i] = c
	}
	return cases, nil
}

// JumpTarget returns the address a jump transfers control to.
func (in Inst) JumpTarget() (int, error) {
	switch in.Info().Shape {
	case isa.ShapeJumpRel:
		rel, err := in.S16()
		if err != nil {
			return 0, err
		}
		return in.End() + int(rel), nil
	case isa.ShapeJumpAbs:
		v, err := in.U32()
		return int(v), err
	}
	return 0, in.mismatch("jump")
}

// CallTarget returns the address of the function a call enters.
func (in Inst) CallTarget() (int, error) {
	info := in.Info()
	switch info.Shape {
	case isa.ShapeCall24:
		v, err := in.U24()
		return int(v), err
	case isa.ShapeCall32:
		v, err := in.U32()
		return int(v), err
	case isa.ShapeCallBanked:
		if err := in.need(3); err != nil {
			return 0, err
		}
		return int(info.Value)<<16 | int(binary.LittleEndian.Uint16(in.Raw[1:])), nil
	}
	return 0, in.mismatch("call")
}

// Int returns the integer an integer-push instruction places on the stack.
func (in Inst) Int() (int32, error) {
	info := in.Info()
	if !isIntPush(info.Mnemonic) && info.Shape != isa.ShapeImmInt {
		return 0, in.mismatch("integer constant")
	}
	switch info.Shape {
	case isa.ShapeImmInt:
		return info.Value, nil
	case isa.ShapeU8:
		v, err := in.U8(0)
		return int32(v), err
	case isa.ShapeU16:
		v, err := in.U16()
		return int32(v), err
	case isa.ShapeS16:
		v, err := in.S16()
		return int32(v), err
	case isa.ShapeU24:
		v, err := in.U24()
		return int32(v), err
	case isa.ShapeU32:
		v, err := in.U32()
		return int32(v), err
	}
	return 0, in.mismatch("integer constant")
}

func isIntPush(mnemonic string) bool {
	switch mnemonic {
	case "PUSH_CONST_U8", "PUSH_CONST_S16", "PUSH_CONST_U16", "PUSH_CONST_U24", "PUSH_CONST_U32":
		return true
	}
	return false
}

func readU24(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}
