package asm

import (
	"encoding/binary"
	"math"
	"strconv"

	"sctools/internal/fault"
	"sctools/internal/isa"
)

// FlushStrategy decides where a freshly encoded instruction goes.
type FlushStrategy interface {
	Flush(b *Buffer, raw []byte) *Ref
}

type appendFlush struct{}

func (appendFlush) Flush(b *Buffer, raw []byte) *Ref { return b.Append(raw) }

// AppendFlush adds instructions at the end of the buffer.
func AppendFlush() FlushStrategy { return appendFlush{} }

type updateFlush struct{ ref *Ref }

func (s updateFlush) Flush(b *Buffer, raw []byte) *Ref {
	b.Update(s.ref, raw)
	return s.ref
}

// UpdateFlush rewrites r with the next instruction.
func UpdateFlush(r *Ref) FlushStrategy { return updateFlush{ref: r} }

type insertAfterFlush struct{ ref *Ref }

func (s *insertAfterFlush) Flush(b *Buffer, raw []byte) *Ref {
	s.ref = b.InsertAfter(s.ref, raw)
	return s.ref
}

// InsertAfterFlush inserts instructions after r, each one after the
// previously inserted.
func InsertAfterFlush(r *Ref) FlushStrategy { return &insertAfterFlush{ref: r} }

// Case is a switch entry whose target is a label.
type Case struct {
	Value int32
	Label string
}

// Emitter encodes instructions for one target into a Buffer.
//
// Errors are sticky: after the first failure every method returns nil and
// Err (and Finish) report it.
type Emitter struct {
	set     *isa.Set
	buf     *Buffer
	labels  *Labels
	flush   FlushStrategy
	scratch []byte
	err     error

	// IncludeNames embeds function names in named prologues.
	IncludeNames bool
	// RequireFunction rejects instructions emitted before the first Enter.
	RequireFunction bool
	inFunction      bool
}

func NewEmitter(set *isa.Set) *Emitter {
	return &Emitter{
		set:          set,
		buf:          NewBuffer(),
		labels:       NewLabels(),
		flush:        AppendFlush(),
		scratch:      make([]byte, 0, 64),
		IncludeNames: true,
	}
}

func (e *Emitter) Set() *isa.Set { return e.set }
func (e *Emitter) Buffer() *Buffer { return e.buf }
func (e *Emitter) Labels() *Labels { return e.labels }
func (e *Emitter) Err() error { return e.err }

// SetFlush installs s and returns the previous strategy.
func (e *Emitter) SetFlush(s FlushStrategy) FlushStrategy {
	prev := e.flush
	e.flush = s
	return prev
}

// Finish finalizes the buffer. See Buffer.Finish.
func (e *Emitter) Finish() (*Image, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.buf.Finish(e.set, e.labels)
}

func (e *Emitter) fail(err error) *Ref {
	if e.err == nil {
		e.err = err
	}
	return nil
}

func (e *Emitter) mismatch(op isa.Opcode, want string) *Ref {
	info := e.set.Info(op)
	return e.fail(fault.Usage("emit", -1,
		fault.Wrapf(fault.ErrOperandMismatch, "%s is %s, not %s", info.Mnemonic, info.Shape, want)))
}

// begin starts encoding op after checking that its shape is one of want.
func (e *Emitter) begin(op isa.Opcode, want ...isa.Shape) bool {
	if e.err != nil {
		return false
	}
	info := e.set.Info(op)
	if info.Has(isa.FlagInvalid) {
		e.fail(fault.Usage("emit", -1, fault.Wrapf(fault.ErrUnknownOpcode, "%s has no opcode %02X", e.set.Name, op)))
		return false
	}
	if e.RequireFunction && !e.inFunction && !info.Has(isa.FlagPrologue) {
		e.fail(fault.Usage("emit", -1, fault.Wrapf(fault.ErrNotInFunction, "%s", info.Mnemonic)))
		return false
	}
	for _, w := range want {
		if info.Shape == w {
			e.scratch = append(e.scratch[:0], byte(op))
			return true
		}
	}
	name := "other"
	if len(want) > 0 {
		name = want[0].String()
	}
	e.mismatch(op, name)
	return false
}

func (e *Emitter) end() *Ref { return e.flush.Flush(e.buf, e.scratch) }

// Label appends a marker and binds name to it.
func (e *Emitter) Label(name string) *Ref {
	if e.err != nil {
		return nil
	}
	r := e.buf.AppendMarker()
	if err := e.labels.Bind(name, r); err != nil {
		return e.fail(err)
	}
	return r
}

// Op emits an instruction without operands.
func (e *Emitter) Op(op isa.Opcode) *Ref {
	if !e.begin(op, isa.ShapeNone, isa.ShapeImmInt, isa.ShapeImmFloat, isa.ShapeImmLeave) {
		return nil
	}
	return e.end()
}

// OpU8 emits a u8, u8x2 or u8x3 instruction; the operand count must match.
func (e *Emitter) OpU8(op isa.Opcode, vs ...uint8) *Ref {
	shapes := [...]isa.Shape{isa.ShapeU8, isa.ShapeU8x2, isa.ShapeU8x3}
	if len(vs) < 1 || len(vs) > 3 {
		if e.err == nil {
			e.mismatch(op, strconv.Itoa(len(vs))+" u8 operands")
		}
		return nil
	}
	if !e.begin(op, shapes[len(vs)-1]) {
		return nil
	}
	e.scratch = append(e.scratch, vs...)
	return e.end()
}

func (e *Emitter) OpU16(op isa.Opcode, v uint16) *Ref {
	if !e.begin(op, isa.ShapeU16) {
		return nil
	}
	e.scratch = binary.LittleEndian.AppendUint16(e.scratch, v)
	return e.end()
}

func (e *Emitter) OpS16(op isa.Opcode, v int16) *Ref {
	if !e.begin(op, isa.ShapeS16) {
		return nil
	}
	e.scratch = binary.LittleEndian.AppendUint16(e.scratch, uint16(v))
	return e.end()
}

func (e *Emitter) OpU24(op isa.Opcode, v uint32) *Ref {
	if v > 0xFFFFFF {
		return e.fail(fault.Usage("emit", -1, fault.Wrapf(fault.ErrBadOperand, "%d does not fit in u24", v)))
	}
	if !e.begin(op, isa.ShapeU24) {
		return nil
	}
	e.scratch = append(e.scratch, byte(v), byte(v>>8), byte(v>>16))
	return e.end()
}

func (e *Emitter) OpU32(op isa.Opcode, v uint32) *Ref {
	if !e.begin(op, isa.ShapeU32) {
		return nil
	}
	e.scratch = binary.LittleEndian.AppendUint32(e.scratch, v)
	return e.end()
}

func (e *Emitter) OpF32(op isa.Opcode, f float32) *Ref {
	if !e.begin(op, isa.ShapeF32) {
		return nil
	}
	e.scratch = binary.LittleEndian.AppendUint32(e.scratch, math.Float32bits(f))
	return e.end()
}

// Enter emits a function prologue. On targets with named prologues the
// name is embedded when IncludeNames is set, truncated to 254 bytes.
func (e *Emitter) Enter(params uint8, frameSize uint16, name string) *Ref {
	return e.enter(params, frameSize, name, name != "")
}

// EnterNamed is Enter with the name field always stored when names are
// included, so an empty name encodes as a lone terminator.
func (e *Emitter) EnterNamed(params uint8, frameSize uint16, name string) *Ref {
	return e.enter(params, frameSize, name, true)
}

func (e *Emitter) enter(params uint8, frameSize uint16, name string, field bool) *Ref {
	op, ok := e.opcode("ENTER")
	if !ok || !e.begin(op, isa.ShapeEnter) {
		return nil
	}
	e.scratch = append(e.scratch, params)
	e.scratch = binary.LittleEndian.AppendUint16(e.scratch, frameSize)
	if e.set.NamedPrologue {
		if e.IncludeNames && field {
			if len(name) > math.MaxUint8-1 {
				name = name[:math.MaxUint8-1]
			}
			e.scratch = append(e.scratch, byte(len(name)+1))
			e.scratch = append(e.scratch, name...)
			e.scratch = append(e.scratch, 0)
		} else {
			e.scratch = append(e.scratch, 0)
		}
	}
	e.inFunction = true
	return e.end()
}

// Leave emits a return, using a LEAVE_p_r shortcut when the target has one.
func (e *Emitter) Leave(params, returns uint8) *Ref {
	if params < 4 && returns < 4 {
		if op, ok := e.set.Opcode("LEAVE_" + strconv.Itoa(int(params)) + "_" + strconv.Itoa(int(returns))); ok {
			return e.Op(op)
		}
	}
	op, ok := e.opcode("LEAVE")
	if !ok || !e.begin(op, isa.ShapeLeave) {
		return nil
	}
	e.scratch = append(e.scratch, params, returns)
	return e.end()
}

// PushInt emits the shortest push of v the target has.
func (e *Emitter) PushInt(v int32) *Ref {
	if op, ok := e.set.PushConstOpcode(v); ok {
		return e.Op(op)
	}
	if op, ok := e.set.Opcode("PUSH_CONST_U8"); ok && v >= 0 && v <= math.MaxUint8 {
		return e.OpU8(op, uint8(v))
	}
	if op, ok := e.set.Opcode("PUSH_CONST_S16"); ok && v >= math.MinInt16 && v <= math.MaxInt16 {
		return e.OpS16(op, int16(v))
	}
	if op, ok := e.set.Opcode("PUSH_CONST_U16"); ok && v >= 0 && v <= math.MaxUint16 {
		return e.OpU16(op, uint16(v))
	}
	if op, ok := e.set.Opcode("PUSH_CONST_U24"); ok && v >= 0 && v <= 0xFFFFFF {
		return e.OpU24(op, uint32(v))
	}
	op, ok := e.opcode("PUSH_CONST_U32")
	if !ok {
		return nil
	}
	return e.OpU32(op, uint32(v))
}

// PushFloat emits the shortest push of f.
func (e *Emitter) PushFloat(f float32) *Ref {
	if op, ok := e.set.PushFloatOpcode(f); ok && !(f == 0 && math.Signbit(float64(f))) {
		return e.Op(op)
	}
	op, ok := e.opcode("PUSH_CONST_F")
	if !ok {
		return nil
	}
	return e.OpF32(op, f)
}

// PushAddress pushes the code address of label, patched at Finish.
func (e *Emitter) PushAddress(label string) *Ref {
	if op, ok := e.set.Opcode("PUSH_CONST_U24"); ok {
		r := e.OpU24(op, 0)
		e.reference(label, r, 1, Absolute24)
		return r
	}
	op, ok := e.opcode("PUSH_CONST_U32")
	if !ok {
		return nil
	}
	r := e.OpU32(op, 0)
	e.reference(label, r, 1, Absolute32)
	return r
}

// Jump emits the jump op to label.
func (e *Emitter) Jump(op isa.Opcode, label string) *Ref {
	if !e.begin(op, isa.ShapeJumpRel, isa.ShapeJumpAbs) {
		return nil
	}
	if e.set.Info(op).Shape == isa.ShapeJumpAbs {
		e.scratch = binary.LittleEndian.AppendUint32(e.scratch, 0)
		r := e.end()
		e.reference(label, r, 1, Absolute32)
		return r
	}
	e.scratch = append(e.scratch, 0, 0)
	r := e.end()
	e.reference(label, r, 1, Relative)
	return r
}

// Call emits a call to the function at label. Banked targets get CALL_0,
// whose bank is fixed up together with the address.
func (e *Emitter) Call(label string) *Ref {
	if op, ok := e.set.Opcode("CALL"); ok {
		return e.CallOp(op, label)
	}
	op, ok := e.opcode("CALL_0")
	if !ok {
		return nil
	}
	return e.CallOp(op, label)
}

// CallOp emits the call opcode op to label.
func (e *Emitter) CallOp(op isa.Opcode, label string) *Ref {
	if !e.begin(op, isa.ShapeCall24, isa.ShapeCall32, isa.ShapeCallBanked) {
		return nil
	}
	info := e.set.Info(op)
	var kind FixupKind
	switch info.Shape {
	case isa.ShapeCall24:
		e.scratch = append(e.scratch, 0, 0, 0)
		kind = Absolute24
	case isa.ShapeCall32:
		e.scratch = binary.LittleEndian.AppendUint32(e.scratch, 0)
		kind = Absolute32
	default:
		// The bank is added at Finish, so start from the first one.
		e.scratch[0] -= byte(info.Value)
		e.scratch = append(e.scratch, 0, 0)
		kind = Bank16
	}
	r := e.end()
	e.reference(label, r, 1, kind)
	return r
}

// Switch emits a multi-way branch.
func (e *Emitter) Switch(cases []Case) *Ref {
	op, ok := e.opcode("SWITCH")
	if !ok {
		return nil
	}
	if len(cases) > math.MaxUint8 {
		return e.fail(fault.Usage("emit", -1, fault.Wrapf(fault.ErrBadOperand, "%d switch cases, at most 255", len(cases))))
	}
	if !e.begin(op, isa.ShapeSwitch) {
		return nil
	}
	layout := e.set.Switch
	e.scratch = append(e.scratch, byte(len(cases)))
	for _, c := range cases {
		e.scratch = binary.LittleEndian.AppendUint32(e.scratch, uint32(c.Value))
		e.scratch = append(e.scratch, make([]byte, layout.EntrySize-4)...)
	}
	r := e.end()
	kind := Absolute32
	if layout.Relative {
		kind = Relative
	}
	for i, c := range cases {
		e.reference(c.Label, r, 2+i*layout.EntrySize+4, kind)
	}
	return r
}

// Native emits a native command call. index is the command hash on hashed
// targets.
func (e *Emitter) Native(params, returns uint8, index uint32) *Ref {
	op, ok := e.opcode("NATIVE")
	if !ok || !e.begin(op, isa.ShapeNative) {
		return nil
	}
	bad := func(format string, args ...any) *Ref {
		return e.fail(fault.Usage("emit", -1, fault.Wrapf(fault.ErrBadOperand, format, args...)))
	}
	switch e.set.Native {
	case isa.NativePacked:
		if params > 0x3F || returns > 0x3 || index > math.MaxUint16 {
			return bad("native %d %d %d does not fit the packed layout", params, returns, index)
		}
		e.scratch = append(e.scratch, params<<2|returns, byte(index>>8), byte(index))
	case isa.NativeBanked:
		if params > 0x1F || returns > 0x1 || index > 0x3FF {
			return bad("native %d %d %d does not fit the banked layout", params, returns, index)
		}
		e.scratch = append(e.scratch, byte(index>>8)<<6|params<<1|returns, byte(index))
	case isa.NativeHashed:
		e.scratch = append(e.scratch, params, returns)
		e.scratch = binary.LittleEndian.AppendUint32(e.scratch, index)
	}
	return e.end()
}

// String emits an inline string literal. Short strings use STRING, long
// ones STRING_U32 when the target has it.
func (e *Emitter) String(s string) *Ref {
	if len(s)+1 <= math.MaxUint8 {
		if op, ok := e.set.Opcode("STRING"); ok && e.set.Info(op).Shape == isa.ShapeString {
			return e.StringOp(op, s)
		}
	}
	op, ok := e.set.Opcode("STRING_U32")
	if !ok {
		return e.fail(fault.Usage("emit", -1, fault.Wrapf(fault.ErrBadOperand, "%s has no inline string of %d bytes", e.set.Name, len(s))))
	}
	return e.StringOp(op, s)
}

// StringOp emits the string opcode op with literal s.
func (e *Emitter) StringOp(op isa.Opcode, s string) *Ref {
	if !e.begin(op, isa.ShapeString, isa.ShapeString32) {
		return nil
	}
	if e.set.Info(op).Shape == isa.ShapeString {
		if len(s)+1 > math.MaxUint8 {
			return e.fail(fault.Usage("emit", -1, fault.Wrapf(fault.ErrBadOperand, "string of %d bytes needs STRING_U32", len(s))))
		}
		e.scratch = append(e.scratch, byte(len(s)+1))
	} else {
		e.scratch = binary.LittleEndian.AppendUint32(e.scratch, uint32(len(s)+1))
	}
	e.scratch = append(e.scratch, s...)
	e.scratch = append(e.scratch, 0)
	return e.end()
}

// Raw emits bytes verbatim as one instruction. The bytes must decode to
// exactly one instruction of the target.
func (e *Emitter) Raw(raw []byte) *Ref {
	if e.err != nil {
		return nil
	}
	size, err := e.set.InstructionByteSize(raw)
	if err != nil || size != len(raw) {
		return e.fail(fault.Usage("emit", -1, fault.Wrapf(fault.ErrBadOperand, "% X is not one instruction", raw)))
	}
	if e.set.Info(isa.Opcode(raw[0])).Has(isa.FlagPrologue) {
		e.inFunction = true
	}
	e.scratch = append(e.scratch[:0], raw...)
	return e.end()
}

func (e *Emitter) opcode(mnemonic string) (isa.Opcode, bool) {
	op, ok := e.set.Opcode(mnemonic)
	if !ok && e.err == nil {
		e.fail(fault.Usage("emit", -1, fault.Wrapf(fault.ErrUnknownOpcode, "%s has no %s", e.set.Name, mnemonic)))
	}
	return op, ok
}

func (e *Emitter) reference(label string, r *Ref, offset int, kind FixupKind) {
	if r == nil {
		return
	}
	e.labels.Reference(label, r, offset, kind)
}
