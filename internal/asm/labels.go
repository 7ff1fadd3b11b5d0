package asm

import (
	"strings"

	"sctools/internal/fault"
)

// FixupKind selects how a label address is written into an operand.
type FixupKind uint8

const (
	// Relative writes target - (operand address + 2) as an s16.
	Relative FixupKind = iota
	// Absolute24 writes the target as a little-endian u24.
	Absolute24
	// Absolute32 writes the target as a little-endian u32.
	Absolute32
	// Bank16 writes the low 16 bits and adds the 64 KiB bank number to the
	// opcode byte (banked CALL_n opcodes are numbered consecutively).
	Bank16
)

func (k FixupKind) width() int {
	switch k {
	case Absolute24:
		return 3
	case Absolute32:
		return 4
	default:
		return 2
	}
}

// Fixup is an operand waiting for a label address.
type Fixup struct {
	Ref    *Ref
	Offset int // operand offset within the instruction
	Kind   FixupKind
}

// Label is a named code position and the operands that refer to it.
type Label struct {
	Name    string
	Bound   *Ref
	Pending []Fixup
}

// Labels is the label table of one assembly unit. Names are case-insensitive.
type Labels struct {
	byName map[string]*Label
	order  []*Label
}

func NewLabels() *Labels {
	return &Labels{byName: make(map[string]*Label)}
}

func (t *Labels) get(name string) *Label {
	key := strings.ToLower(name)
	l, ok := t.byName[key]
	if !ok {
		l = &Label{Name: name}
		t.byName[key] = l
		t.order = append(t.order, l)
	}
	return l
}

// Lookup returns the label called name, if it was bound or referenced.
func (t *Labels) Lookup(name string) (*Label, bool) {
	l, ok := t.byName[strings.ToLower(name)]
	return l, ok
}

// Bind attaches name to the slot r. A label can be bound once.
func (t *Labels) Bind(name string, r *Ref) error {
	l := t.get(name)
	if l.Bound != nil {
		return fault.Usage("label", -1, fault.ErrLabelRebound).WithLabel(name)
	}
	l.Bound = r
	return nil
}

// Reference queues an operand of r to be patched with the address of name.
func (t *Labels) Reference(name string, r *Ref, offset int, kind FixupKind) {
	l := t.get(name)
	l.Pending = append(l.Pending, Fixup{Ref: r, Offset: offset, Kind: kind})
}

// All returns the labels in order of first appearance.
func (t *Labels) All() []*Label { return t.order }
