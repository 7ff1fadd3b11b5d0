// Package asm builds bytecode: an instruction buffer with stable
// references, a label table with pending fixups, a per-target emitter and
// the finishing pass that lays code out in pages and patches addresses.
package asm

import (
	"slices"

	"sctools/internal/isa"
)

// SlotKind is the state of one logical instruction slot.
type SlotKind uint8

const (
	SlotInstruction SlotKind = iota
	SlotMarker               // zero-length label position
	SlotTombstone            // removed instruction
)

func (k SlotKind) String() string {
	switch k {
	case SlotMarker:
		return "marker"
	case SlotTombstone:
		return "tombstone"
	default:
		return "instruction"
	}
}

type slot struct {
	off, n int
	kind   SlotKind
}

// Ref identifies one logical instruction of a Buffer. The buffer keeps
// every Ref it issued pointing at the same instruction when slots are
// inserted in front of it.
type Ref struct {
	index int
}

// Index is the current logical position of the instruction.
func (r *Ref) Index() int { return r.index }

// Buffer stores instruction bytes in an append-only arena behind an
// ordered slot table. It is not safe for concurrent use.
type Buffer struct {
	arena []byte
	slots []slot
	refs  []*Ref
}

func NewBuffer() *Buffer {
	return &Buffer{
		arena: make([]byte, 0, 0x4000),
		slots: make([]slot, 0, 0x1000),
		refs:  make([]*Ref, 0, 0x1000),
	}
}

// Len is the number of slots, tombstones and markers included.
func (b *Buffer) Len() int { return len(b.slots) }

// Ref returns the reference of the slot at index i.
func (b *Buffer) Ref(i int) *Ref { return b.refs[i] }

func (b *Buffer) Kind(r *Ref) SlotKind { return b.slots[r.index].kind }

// IsEmpty reports whether r holds no bytes (marker or tombstone).
func (b *Buffer) IsEmpty(r *Ref) bool { return b.slots[r.index].n == 0 }

// Bytes returns the current encoding of r. The slice aliases the arena and
// must not be modified; use Update to change an instruction.
func (b *Buffer) Bytes(r *Ref) []byte {
	s := b.slots[r.index]
	return b.arena[s.off : s.off+s.n : s.off+s.n]
}

// Opcode returns the first byte of a non-empty slot.
func (b *Buffer) Opcode(r *Ref) isa.Opcode { return isa.Opcode(b.arena[b.slots[r.index].off]) }

// Instructions counts the slots that still hold an instruction.
func (b *Buffer) Instructions() int {
	n := 0
	for _, s := range b.slots {
		if s.kind == SlotInstruction {
			n++
		}
	}
	return n
}

func (b *Buffer) Append(raw []byte) *Ref {
	return b.insert(len(b.slots), b.store(raw, SlotInstruction))
}

// AppendMarker appends a zero-length slot that labels bind to.
func (b *Buffer) AppendMarker() *Ref {
	return b.insert(len(b.slots), slot{off: len(b.arena), kind: SlotMarker})
}

// InsertBefore places raw in a new slot in front of r. r and every slot
// after it move up by one.
func (b *Buffer) InsertBefore(r *Ref, raw []byte) *Ref {
	return b.insert(r.index, b.store(raw, SlotInstruction))
}

// InsertAfter places raw in a new slot right after r.
func (b *Buffer) InsertAfter(r *Ref, raw []byte) *Ref {
	return b.insert(r.index+1, b.store(raw, SlotInstruction))
}

// Update replaces the bytes of r. Encodings that are not longer than the
// current one are rewritten in place; longer ones move to the arena tail
// and the old bytes become dead space until Finish.
func (b *Buffer) Update(r *Ref, raw []byte) {
	s := &b.slots[r.index]
	if len(raw) <= s.n {
		copy(b.arena[s.off:], raw)
		s.n = len(raw)
	} else {
		s.off = len(b.arena)
		s.n = len(raw)
		b.arena = append(b.arena, raw...)
	}
	s.kind = SlotInstruction
	if s.n == 0 {
		s.kind = SlotTombstone
	}
}

// Remove turns r into a tombstone. Indexes do not change.
func (b *Buffer) Remove(r *Ref) {
	s := &b.slots[r.index]
	s.n = 0
	s.kind = SlotTombstone
}

// Next returns the first slot after r that holds bytes, skipping
// tombstones. It stops at markers unless acrossMarkers is set.
func (b *Buffer) Next(r *Ref, acrossMarkers bool) (*Ref, bool) {
	for i := r.index + 1; i < len(b.slots); i++ {
		switch b.slots[i].kind {
		case SlotInstruction:
			return b.refs[i], true
		case SlotMarker:
			if !acrossMarkers {
				return nil, false
			}
		}
	}
	return nil, false
}

// Prev is Next walking backward.
func (b *Buffer) Prev(r *Ref, acrossMarkers bool) (*Ref, bool) {
	for i := r.index - 1; i >= 0; i-- {
		switch b.slots[i].kind {
		case SlotInstruction:
			return b.refs[i], true
		case SlotMarker:
			if !acrossMarkers {
				return nil, false
			}
		}
	}
	return nil, false
}

func (b *Buffer) store(raw []byte, kind SlotKind) slot {
	s := slot{off: len(b.arena), n: len(raw), kind: kind}
	if len(raw) == 0 {
		s.kind = SlotTombstone
	}
	b.arena = append(b.arena, raw...)
	return s
}

func (b *Buffer) insert(i int, s slot) *Ref {
	r := &Ref{index: i}
	b.slots = slices.Insert(b.slots, i, s)
	b.refs = slices.Insert(b.refs, i, r)
	for j := i + 1; j < len(b.refs); j++ {
		b.refs[j].index = j
	}
	return r
}
