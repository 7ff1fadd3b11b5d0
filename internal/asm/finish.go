package asm

import (
	"encoding/binary"
	"math"

	"sctools/internal/fault"
	"sctools/internal/isa"
)

// Image is finished code.
type Image struct {
	Code     []byte
	PageSize int // 0 when the target is not paged
	// Offsets holds the final code offset of every buffer slot. Markers and
	// tombstones take the offset of the next placed instruction.
	Offsets []int
	// Labels maps every bound label to its final offset.
	Labels map[string]int
}

// Offset returns the final offset of r.
func (im *Image) Offset(r *Ref) int { return im.Offsets[r.index] }

// Pages splits the code into pages. The last page may be short.
func (im *Image) Pages() [][]byte {
	if im.PageSize <= 0 || len(im.Code) <= im.PageSize {
		return [][]byte{im.Code}
	}
	var pages [][]byte
	for off := 0; off < len(im.Code); off += im.PageSize {
		end := min(off+im.PageSize, len(im.Code))
		pages = append(pages, im.Code[off:end])
	}
	return pages
}

// Finish compacts the buffer into dense code, pads page boundaries on paged
// targets and resolves every label reference. It is all-or-nothing: on
// error no image is returned.
func (b *Buffer) Finish(set *isa.Set, labels *Labels) (*Image, error) {
	im := &Image{
		Code:     make([]byte, 0, len(b.arena)),
		PageSize: set.PageSize,
		Offsets:  make([]int, len(b.slots)),
		Labels:   make(map[string]int),
	}

	var waiting []int
	for i, s := range b.slots {
		if s.kind != SlotInstruction {
			waiting = append(waiting, i)
			continue
		}
		raw := b.arena[s.off : s.off+s.n]
		if set.Paged() {
			code, err := padPage(set, im.Code, raw)
			if err != nil {
				return nil, err
			}
			im.Code = code
		}
		off := len(im.Code)
		im.Offsets[i] = off
		for _, w := range waiting {
			im.Offsets[w] = off
		}
		waiting = waiting[:0]
		im.Code = append(im.Code, raw...)
	}
	for _, w := range waiting {
		im.Offsets[w] = len(im.Code)
	}

	if labels == nil {
		return im, nil
	}
	for _, l := range labels.All() {
		if l.Bound == nil {
			if len(l.Pending) == 0 {
				continue
			}
			return nil, fault.Malformed("finish", im.Offsets[l.Pending[0].Ref.index], fault.ErrUnboundLabel).WithLabel(l.Name)
		}
		target := im.Offsets[l.Bound.index]
		im.Labels[l.Name] = target
		for _, fx := range l.Pending {
			if b.slots[fx.Ref.index].kind != SlotInstruction {
				continue
			}
			if err := b.patch(im, fx, target); err != nil {
				return nil, err.WithLabel(l.Name)
			}
		}
	}
	return im, nil
}

func (b *Buffer) patch(im *Image, fx Fixup, target int) *fault.Error {
	s := b.slots[fx.Ref.index]
	inst := im.Offsets[fx.Ref.index]
	if fx.Offset < 1 || fx.Offset+fx.Kind.width() > s.n {
		return fault.Usage("finish", inst, fault.Wrapf(fault.ErrBadOperand, "fixup at +%d outside %d-byte instruction", fx.Offset, s.n))
	}
	pos := inst + fx.Offset
	dst := im.Code[pos:]
	switch fx.Kind {
	case Relative:
		rel := target - (pos + 2)
		if rel < math.MinInt16 || rel > math.MaxInt16 {
			return fault.Malformed("finish", inst, fault.Wrapf(fault.ErrOutOfRange, "displacement %d does not fit in s16", rel))
		}
		binary.LittleEndian.PutUint16(dst, uint16(int16(rel)))
	case Absolute24:
		if target > 0xFFFFFF {
			return fault.Malformed("finish", inst, fault.Wrapf(fault.ErrOutOfRange, "address %06X does not fit in u24", target))
		}
		dst[0], dst[1], dst[2] = byte(target), byte(target>>8), byte(target>>16)
	case Absolute32:
		binary.LittleEndian.PutUint32(dst, uint32(target))
	case Bank16:
		bank := target >> 16
		if bank > 0xF {
			return fault.Malformed("finish", inst, fault.Wrapf(fault.ErrOutOfRange, "address %06X is past the last call bank", target))
		}
		im.Code[inst] += byte(bank)
		binary.LittleEndian.PutUint16(dst, uint16(target))
	}
	return nil
}

// padPage appends the padding needed so raw does not straddle a page
// boundary. The interpreter only switches pages after a control-flow
// instruction or a NOP, so any other instruction must leave one spare byte
// at the end of its page. When enough room is left, the padding starts
// with a jump to the next page followed by NOPs.
func padPage(set *isa.Set, code, raw []byte) ([]byte, error) {
	page := set.PageSize
	offset := len(code) % page
	op := isa.Opcode(raw[0])
	limit := page
	if !set.Info(op).Has(isa.FlagControlFlow) && !set.IsNOP(op) {
		limit--
	}
	if offset+len(raw) <= limit {
		return code, nil
	}
	if len(raw) > limit {
		return nil, fault.Malformed("finish", len(code),
			fault.Wrapf(fault.ErrOutOfRange, "%d-byte %s does not fit in a page", len(raw), set.Info(op).Mnemonic))
	}

	left := page - offset
	jump := set.JumpSize()
	if left > jump {
		next := len(code) + left
		code = append(code, byte(set.J))
		switch set.Info(set.J).Shape {
		case isa.ShapeJumpAbs:
			code = binary.LittleEndian.AppendUint32(code, uint32(next))
		default:
			code = binary.LittleEndian.AppendUint16(code, uint16(int16(left-jump)))
		}
		left -= jump
	}
	for range left {
		code = append(code, byte(set.NOP))
	}
	return code, nil
}
