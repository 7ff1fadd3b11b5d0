// Package isa describes the instruction sets of the supported script
// virtual machines.
//
// Every target is a Set: a 256-entry table of opcode descriptors plus a
// handful of layout parameters (page size, switch entry layout, native
// call layout). The decoder, assembler, optimizer and analyzers are all
// generic over a Set; nothing outside this package branches on the target
// name.
package isa

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"sctools/internal/fault"
)

// Opcode is the first byte of every instruction.
type Opcode byte

// Shape is the operand layout that follows an opcode byte.
type Shape uint8

const (
	ShapeNone       Shape = iota // no operands
	ShapeU8                      // u8
	ShapeU8x2                    // u8 u8
	ShapeU8x3                    // u8 u8 u8
	ShapeU16                     // u16
	ShapeS16                     // s16
	ShapeU24                     // u24
	ShapeU32                     // u32
	ShapeF32                     // f32
	ShapeJumpRel                 // s16 displacement from the end of the instruction
	ShapeJumpAbs                 // u32 absolute code address
	ShapeCall24                  // u24 absolute function address
	ShapeCall32                  // u32 absolute function address
	ShapeCallBanked              // u16 offset, 64 KiB bank taken from Info.Value
	ShapeSwitch                  // u8 count, then count entries
	ShapeEnter                   // function prologue
	ShapeLeave                   // u8 params, u8 returns
	ShapeNative                  // native command call, layout per target
	ShapeString                  // u8 length, bytes, NUL
	ShapeString32                // u32 length, bytes, NUL
	ShapeImmInt                  // integer implied by the opcode (Info.Value)
	ShapeImmFloat                // float implied by the opcode (Info.Value)
	ShapeImmLeave                // params/returns implied by the opcode (Info.Value = params<<8 | returns)
)

var shapeNames = [...]string{
	"none", "u8", "u8x2", "u8x3", "u16", "s16", "u24", "u32", "f32",
	"jump-rel", "jump-abs", "call24", "call32", "call-banked", "switch",
	"enter", "leave", "native", "string", "string32", "imm-int", "imm-float", "imm-leave",
}

func (s Shape) String() string {
	if int(s) < len(shapeNames) {
		return shapeNames[s]
	}
	return fmt.Sprintf("shape(%d)", uint8(s))
}

// Branch classifies how an instruction transfers control.
type Branch uint8

const (
	BranchNone      Branch = iota
	BranchAlways           // unconditional jump
	BranchIfZero           // taken when the popped condition is zero
	BranchIfNonZero        // taken when the popped condition is not zero
)

// Flags are opcode classification bits.
type Flags uint8

const (
	FlagCall        Flags = 1 << iota // calls a script function
	FlagTerminator                    // control does not fall through (return)
	FlagSwitch                        // multi-way branch
	FlagPrologue                      // function entry
	FlagControlFlow                   // the interpreter may switch code pages after it
	FlagInvalid                       // byte value has no instruction
)

// Info describes one opcode of a target.
type Info struct {
	Mnemonic string
	Shape    Shape
	Branch   Branch
	Flags    Flags
	// Value carries the operand implied by the opcode itself: the constant
	// of PUSH_CONST_n, the bank of CALL_n, the counts of LEAVE_x_y.
	Value int32
	// Size is the constant byte size, or 0 when it depends on the operands.
	Size int
}

func (i Info) Has(f Flags) bool { return i.Flags&f != 0 }

// IsJump reports whether the instruction is a jump (conditional or not).
func (i Info) IsJump() bool { return i.Branch != BranchNone }

// IsConditional reports whether the jump may fall through.
func (i Info) IsConditional() bool {
	return i.Branch == BranchIfZero || i.Branch == BranchIfNonZero
}

// NativeLayout selects the encoding of native command calls.
type NativeLayout uint8

const (
	// NativePacked: u8 (params<<2 | returns), u16 big-endian command index.
	NativePacked NativeLayout = iota
	// NativeBanked: u8 (indexHi<<6 | params<<1 | returns), u8 indexLo.
	NativeBanked
	// NativeHashed: u8 params, u8 returns, u32 command hash.
	NativeHashed
)

// SwitchLayout describes the entries of a switch instruction.
type SwitchLayout struct {
	EntrySize int  // bytes per case
	Relative  bool // s16 displacement (true) or u32 absolute address (false)
}

// Set is the instruction-set descriptor of one target.
type Set struct {
	Name        string
	Description string
	// PageSize is the code page size, or 0 when code is not paged.
	PageSize int
	// NamedPrologue is true when ENTER embeds a length-prefixed name.
	NamedPrologue bool
	Switch        SwitchLayout
	Native        NativeLayout
	// Mnemonics of the page padding instructions. J is also used by the
	// emitter for unconditional jumps.
	NOP, J Opcode
	HasNOP bool

	ops    [256]Info
	byName map[string]Opcode
}

// def is one row of a target table.
type def struct {
	op     Opcode
	name   string
	shape  Shape
	branch Branch
	flags  Flags
	value  int32
}

func newSet(s Set, defs []def) *Set {
	set := s
	for i := range set.ops {
		set.ops[i] = Info{
			Mnemonic: fmt.Sprintf("INVALID_%02X", i),
			Flags:    FlagInvalid,
			Size:     1,
		}
	}
	set.byName = make(map[string]Opcode, len(defs))
	for _, d := range defs {
		info := Info{
			Mnemonic: d.name,
			Shape:    d.shape,
			Branch:   d.branch,
			Flags:    d.flags,
			Value:    d.value,
		}
		if info.Branch != BranchNone || info.Has(FlagCall|FlagSwitch|FlagTerminator) {
			info.Flags |= FlagControlFlow
		}
		info.Size = set.shapeSize(d.shape)
		set.ops[d.op] = info
		set.byName[d.name] = d.op
	}
	return &set
}

func (s *Set) shapeSize(sh Shape) int {
	switch sh {
	case ShapeNone, ShapeImmInt, ShapeImmFloat, ShapeImmLeave:
		return 1
	case ShapeU8:
		return 2
	case ShapeU8x2, ShapeU16, ShapeS16, ShapeJumpRel, ShapeCallBanked, ShapeLeave:
		return 3
	case ShapeU8x3, ShapeU24, ShapeCall24:
		return 4
	case ShapeU32, ShapeF32, ShapeJumpAbs, ShapeCall32:
		return 5
	case ShapeNative:
		switch s.Native {
		case NativeBanked:
			return 3
		case NativeHashed:
			return 7
		default:
			return 4
		}
	case ShapeEnter:
		if s.NamedPrologue {
			return 0
		}
		return 4
	default: // switch, strings
		return 0
	}
}

// Info returns the descriptor of op.
func (s *Set) Info(op Opcode) Info { return s.ops[op] }

// Opcode looks up a mnemonic, ignoring case.
func (s *Set) Opcode(mnemonic string) (Opcode, bool) {
	op, ok := s.byName[strings.ToUpper(mnemonic)]
	return op, ok
}

// MustOpcode is Opcode for mnemonics known to exist in the table.
func (s *Set) MustOpcode(mnemonic string) Opcode {
	op, ok := s.Opcode(mnemonic)
	if !ok {
		panic(fmt.Sprintf("isa: %s has no opcode %s", s.Name, mnemonic))
	}
	return op
}

// Mnemonics returns every valid mnemonic sorted by opcode value.
func (s *Set) Mnemonics() []string {
	var names []string
	for i := range s.ops {
		if !s.ops[i].Has(FlagInvalid) {
			names = append(names, s.ops[i].Mnemonic)
		}
	}
	return names
}

// ConstantByteSize returns the size of instructions with opcode op, or 0
// when the size has to be computed from the instruction bytes.
func (s *Set) ConstantByteSize(op Opcode) int { return s.ops[op].Size }

// InstructionByteSize returns the size of the instruction starting at b[0].
// It never reads past len(b); a header too short to size the instruction is
// reported as fault.ErrTruncated. The returned size may exceed len(b).
func (s *Set) InstructionByteSize(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, fault.ErrTruncated
	}
	info := s.ops[b[0]]
	if info.Size != 0 {
		return info.Size, nil
	}
	switch info.Shape {
	case ShapeEnter:
		if len(b) < 5 {
			return 0, fault.ErrTruncated
		}
		return int(b[4]) + 5, nil
	case ShapeSwitch:
		if len(b) < 2 {
			return 0, fault.ErrTruncated
		}
		return s.Switch.EntrySize*int(b[1]) + 2, nil
	case ShapeString:
		if len(b) < 2 {
			return 0, fault.ErrTruncated
		}
		return int(b[1]) + 2, nil
	case ShapeString32:
		if len(b) < 5 {
			return 0, fault.ErrTruncated
		}
		n := uint64(binary.LittleEndian.Uint32(b[1:])) + 5
		if n > math.MaxInt32 {
			return 0, fault.ErrTruncated
		}
		return int(n), nil
	}
	return 1, nil
}

// IsNOP reports whether op is the padding no-op of the target.
func (s *Set) IsNOP(op Opcode) bool { return s.HasNOP && op == s.NOP }

// Paged reports whether the finished code must respect page boundaries.
func (s *Set) Paged() bool { return s.PageSize > 0 }

// JumpSize is the size of the unconditional jump used for page skips.
func (s *Set) JumpSize() int { return s.ops[s.J].Size }

// PushConstOpcode returns the single-byte opcode pushing v, if the target
// has one.
func (s *Set) PushConstOpcode(v int32) (Opcode, bool) {
	for i := range s.ops {
		if s.ops[i].Shape == ShapeImmInt && s.ops[i].Value == v {
			return Opcode(i), true
		}
	}
	return 0, false
}

// PushFloatOpcode returns the single-byte opcode pushing f, if any.
func (s *Set) PushFloatOpcode(f float32) (Opcode, bool) {
	for i := range s.ops {
		if s.ops[i].Shape == ShapeImmFloat && float32(s.ops[i].Value) == f {
			return Opcode(i), true
		}
	}
	return 0, false
}

var registry = map[string]*Set{}

func register(s *Set) *Set {
	registry[s.Name] = s
	return s
}

// Lookup returns the registered target called name.
func Lookup(name string) (*Set, error) {
	s, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown target %q (known: %s)", name, strings.Join(Targets(), ", "))
	}
	return s, nil
}

// Targets lists the registered target names.
func Targets() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
