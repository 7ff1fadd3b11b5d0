package disasm

import (
	"sctools/internal/fault"
	"sctools/internal/isa"
)

// Enumerator walks code forward from address 0, one instruction per Next.
// It cannot be rewound; start a new one to rescan.
type Enumerator struct {
	set  *isa.Set
	code []byte
	pos  int
	cur  Inst
	err  error
}

func NewEnumerator(set *isa.Set, code []byte) *Enumerator {
	return &Enumerator{set: set, code: code}
}

// Next decodes the next instruction. It returns false at the end of code or
// on the first decode error, which Err then reports.
func (e *Enumerator) Next() bool {
	if e.err != nil || e.pos >= len(e.code) {
		return false
	}
	in, err := Decode(e.set, e.code, e.pos)
	if err != nil {
		e.err = err
		return false
	}
	e.cur = in
	e.pos = in.End()
	return true
}

// Inst returns the instruction decoded by the last successful Next.
func (e *Enumerator) Inst() Inst { return e.cur }

func (e *Enumerator) Err() error { return e.err }

// Decode decodes the single instruction at addr.
func Decode(set *isa.Set, code []byte, addr int) (Inst, error) {
	if addr < 0 || addr >= len(code) {
		return Inst{}, fault.Malformed("decode", addr,
			fault.Wrapf(fault.ErrTruncated, "address outside code of %d bytes", len(code)))
	}
	size, err := set.InstructionByteSize(code[addr:])
	if err != nil {
		return Inst{}, fault.Malformed("decode", addr, err)
	}
	if addr+size > len(code) {
		return Inst{}, fault.Malformed("decode", addr,
			fault.Wrapf(fault.ErrTruncated, "%s needs %d bytes, %d left",
				set.Info(isa.Opcode(code[addr])).Mnemonic, size, len(code)-addr))
	}
	end := addr + size
	return Inst{Addr: addr, Raw: code[addr:end:end], set: set}, nil
}

// All decodes the whole of code.
func All(set *isa.Set, code []byte) (Stream, error) {
	var out Stream
	e := NewEnumerator(set, code)
	for e.Next() {
		out = append(out, e.Inst())
	}
	return out, e.Err()
}
