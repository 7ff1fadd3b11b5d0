// Package optimize is a peephole optimizer over an asm.Buffer.
//
// Patterns look at two consecutive instructions. Tombstones are skipped
// but label markers are not crossed, so code is never fused across a jump
// target. After a successful fusion the scan steps back one instruction,
// because the fused instruction may now pair with its predecessor as well
// as its successor. Every fusion lowers the number of instructions or the
// number of plain IADD/IMUL instructions, so the pass terminates.
package optimize

import (
	"slices"

	"sctools/internal/asm"
	"sctools/internal/disasm"
	"sctools/internal/isa"
)

type pattern struct {
	name  string
	apply func(c *pass, first, second *asm.Ref) bool
}

// Optimizer holds the patterns available on one target, in priority order.
type Optimizer struct {
	set      *isa.Set
	patterns []pattern
	// Counts records fusions per pattern across runs.
	Counts map[string]int
}

// New builds the optimizer for set. Patterns that need opcodes the target
// lacks are left out.
func New(set *isa.Set) *Optimizer {
	o := &Optimizer{set: set, Counts: make(map[string]int)}
	for _, base := range []string{
		"LOCAL_U8", "LOCAL_U16", "STATIC_U8", "STATIC_U16", "GLOBAL_U16", "GLOBAL_U24",
		"IOFFSET_U8", "IOFFSET_S16", "ARRAY_U8", "ARRAY_U16",
	} {
		if p, ok := combinedLoadStore(set, base); ok {
			o.patterns = append(o.patterns, p)
		}
	}
	for _, build := range []func(*isa.Set) (pattern, bool){
		addMulS16, addMulU8, pushConstU8, compareAndJZ, foldConstant,
	} {
		if p, ok := build(set); ok {
			o.patterns = append(o.patterns, p)
		}
	}
	return o
}

// Patterns lists the pattern names in priority order.
func (o *Optimizer) Patterns() []string {
	names := make([]string, len(o.patterns))
	for i, p := range o.patterns {
		names[i] = p.name
	}
	return names
}

// Optimize runs a fresh optimizer for the emitter's target.
func Optimize(e *asm.Emitter) int { return New(e.Set()).Run(e) }

// Run optimizes everything emitted so far and returns the number of
// fusions. A second Run on the same emitter returns 0.
func (o *Optimizer) Run(e *asm.Emitter) int {
	if e.Err() != nil || len(o.patterns) == 0 {
		return 0
	}
	c := &pass{e: e, buf: e.Buffer(), set: o.set, pinned: pinned(e.Labels())}
	fused := 0
	for i := 0; i < c.buf.Len(); i++ {
		first := c.buf.Ref(i)
		if c.buf.Kind(first) != asm.SlotInstruction {
			continue
		}
		second, ok := c.buf.Next(first, false)
		if !ok {
			continue
		}
		name, ok := o.apply(c, first, second)
		if !ok {
			continue
		}
		fused++
		o.Counts[name]++
		if prev, ok := c.buf.Prev(first, false); ok {
			i = prev.Index() - 1
		} else {
			i = first.Index() - 1
		}
	}
	return fused
}

func (o *Optimizer) apply(c *pass, first, second *asm.Ref) (string, bool) {
	for _, p := range o.patterns {
		if p.apply(c, first, second) {
			return p.name, true
		}
	}
	return "", false
}

// pass is the state shared by the patterns during one Run.
type pass struct {
	e      *asm.Emitter
	buf    *asm.Buffer
	set    *isa.Set
	pinned map[*asm.Ref]bool // instructions with operands waiting for a label
}

func pinned(labels *asm.Labels) map[*asm.Ref]bool {
	m := make(map[*asm.Ref]bool)
	for _, l := range labels.All() {
		for _, fx := range l.Pending {
			m[fx.Ref] = true
		}
	}
	return m
}

func (c *pass) op(r *asm.Ref) isa.Opcode { return c.buf.Opcode(r) }

func (c *pass) view(r *asm.Ref) disasm.Inst { return disasm.View(c.set, 0, c.buf.Bytes(r)) }

// rewrite replaces r with whatever emit produces.
func (c *pass) rewrite(r *asm.Ref, emit func(e *asm.Emitter)) {
	prev := c.e.SetFlush(asm.UpdateFlush(r))
	emit(c.e)
	c.e.SetFlush(prev)
}

// insertAfter places whatever emit produces right after r.
func (c *pass) insertAfter(r *asm.Ref, emit func(e *asm.Emitter)) {
	prev := c.e.SetFlush(asm.InsertAfterFlush(r))
	emit(c.e)
	c.e.SetFlush(prev)
}

// retag rewrites r with a different opcode and the same operands.
func (c *pass) retag(r *asm.Ref, op isa.Opcode) {
	raw := slices.Clone(c.buf.Bytes(r))
	raw[0] = byte(op)
	c.rewrite(r, func(e *asm.Emitter) { e.Raw(raw) })
}

func lookup(set *isa.Set, names ...string) ([]isa.Opcode, bool) {
	ops := make([]isa.Opcode, len(names))
	for i, n := range names {
		op, ok := set.Opcode(n)
		if !ok {
			return nil, false
		}
		ops[i] = op
	}
	return ops, true
}

// combinedLoadStore fuses an address instruction with the LOAD or STORE
// that follows it: LOCAL_U8 n; LOAD -> LOCAL_U8_LOAD n.
func combinedLoadStore(set *isa.Set, base string) (pattern, bool) {
	ops, ok := lookup(set, base, base+"_LOAD", base+"_STORE", "LOAD", "STORE")
	if !ok {
		return pattern{}, false
	}
	addr, fusedLoad, fusedStore, load, store := ops[0], ops[1], ops[2], ops[3], ops[4]
	return pattern{
		name: base + " load/store",
		apply: func(c *pass, first, second *asm.Ref) bool {
			if c.op(first) != addr {
				return false
			}
			var repl isa.Opcode
			switch c.op(second) {
			case load:
				repl = fusedLoad
			case store:
				repl = fusedStore
			default:
				return false
			}
			c.retag(first, repl)
			c.buf.Remove(second)
			return true
		},
	}, true
}

// addMulS16: PUSH_CONST_S16 n; IADD -> IADD_S16 n.
func addMulS16(set *isa.Set) (pattern, bool) {
	ops, ok := lookup(set, "PUSH_CONST_S16", "IADD", "IMUL", "IADD_S16", "IMUL_S16")
	if !ok {
		return pattern{}, false
	}
	push, iadd, imul, iaddS16, imulS16 := ops[0], ops[1], ops[2], ops[3], ops[4]
	return pattern{
		name: "add/mul s16",
		apply: func(c *pass, first, second *asm.Ref) bool {
			if c.op(first) != push {
				return false
			}
			switch c.op(second) {
			case iadd:
				c.retag(first, iaddS16)
			case imul:
				c.retag(first, imulS16)
			default:
				return false
			}
			c.buf.Remove(second)
			return true
		},
	}, true
}

// addMulU8: a small push followed by IADD/IMUL becomes IADD_U8/IMUL_U8.
// For the multi-byte pushes only the last byte is folded into the
// arithmetic and the push shrinks by one byte.
func addMulU8(set *isa.Set) (pattern, bool) {
	ops, ok := lookup(set, "PUSH_CONST_U8", "PUSH_CONST_U8_U8", "PUSH_CONST_U8_U8_U8",
		"IADD", "IMUL", "IADD_U8", "IMUL_U8")
	if !ok {
		return pattern{}, false
	}
	u8, u8u8, u8u8u8, iadd, imul, iaddU8, imulU8 := ops[0], ops[1], ops[2], ops[3], ops[4], ops[5], ops[6]
	return pattern{
		name: "add/mul u8",
		apply: func(c *pass, first, second *asm.Ref) bool {
			var repl isa.Opcode
			switch c.op(second) {
			case iadd:
				repl = iaddU8
			case imul:
				repl = imulU8
			default:
				return false
			}
			info := c.set.Info(c.op(first))
			raw := slices.Clone(c.buf.Bytes(first))
			switch {
			case info.Shape == isa.ShapeImmInt && info.Value >= 0 && info.Value <= 7:
				c.rewrite(first, func(e *asm.Emitter) { e.OpU8(repl, uint8(info.Value)) })
			case c.op(first) == u8:
				c.rewrite(first, func(e *asm.Emitter) { e.OpU8(repl, raw[1]) })
			case c.op(first) == u8u8:
				c.rewrite(first, func(e *asm.Emitter) { e.OpU8(u8, raw[1]) })
				c.insertAfter(first, func(e *asm.Emitter) { e.OpU8(repl, raw[2]) })
			case c.op(first) == u8u8u8:
				c.rewrite(first, func(e *asm.Emitter) { e.OpU8(u8u8, raw[1], raw[2]) })
				c.insertAfter(first, func(e *asm.Emitter) { e.OpU8(repl, raw[3]) })
			default:
				return false
			}
			c.buf.Remove(second)
			return true
		},
	}, true
}

// pushConstU8 coalesces byte pushes: U8 a; U8 b -> U8_U8 a b, and
// U8_U8 a b; U8 c -> U8_U8_U8 a b c.
func pushConstU8(set *isa.Set) (pattern, bool) {
	ops, ok := lookup(set, "PUSH_CONST_U8", "PUSH_CONST_U8_U8", "PUSH_CONST_U8_U8_U8")
	if !ok {
		return pattern{}, false
	}
	u8, u8u8, u8u8u8 := ops[0], ops[1], ops[2]
	return pattern{
		name: "push u8",
		apply: func(c *pass, first, second *asm.Ref) bool {
			if c.op(second) != u8 {
				return false
			}
			a := slices.Clone(c.buf.Bytes(first))
			b := c.buf.Bytes(second)[1]
			switch c.op(first) {
			case u8:
				c.rewrite(first, func(e *asm.Emitter) { e.OpU8(u8u8, a[1], b) })
			case u8u8:
				c.rewrite(first, func(e *asm.Emitter) { e.OpU8(u8u8u8, a[1], a[2], b) })
			default:
				return false
			}
			c.buf.Remove(second)
			return true
		},
	}, true
}

// compareAndJZ: IEQ; JZ l -> IEQ_JZ l. The jump keeps its slot so its
// label fixup still applies; the compare is removed.
func compareAndJZ(set *isa.Set) (pattern, bool) {
	cmps := []string{"IEQ", "INE", "IGT", "IGE", "ILT", "ILE"}
	names := append([]string{"JZ"}, cmps...)
	for _, n := range cmps {
		names = append(names, n+"_JZ")
	}
	ops, ok := lookup(set, names...)
	if !ok {
		return pattern{}, false
	}
	jz := ops[0]
	fused := make(map[isa.Opcode]isa.Opcode, len(cmps))
	for i := range cmps {
		fused[ops[1+i]] = ops[1+len(cmps)+i]
	}
	return pattern{
		name: "compare+jz",
		apply: func(c *pass, first, second *asm.Ref) bool {
			repl, ok := fused[c.op(first)]
			if !ok || c.op(second) != jz {
				return false
			}
			c.retag(second, repl)
			c.buf.Remove(first)
			return true
		},
	}, true
}

// foldConstant: an integer push followed by an immediate add or multiply
// becomes the shortest push of the result.
func foldConstant(set *isa.Set) (pattern, bool) {
	arith := map[isa.Opcode]bool{}
	mul := map[isa.Opcode]bool{}
	for _, n := range []string{"IADD_U8", "IADD_S16", "IMUL_U8", "IMUL_S16"} {
		if op, ok := set.Opcode(n); ok {
			arith[op] = true
			mul[op] = n[1] == 'M'
		}
	}
	if len(arith) == 0 {
		return pattern{}, false
	}
	return pattern{
		name: "fold constant",
		apply: func(c *pass, first, second *asm.Ref) bool {
			if !arith[c.op(second)] || c.pinned[first] {
				return false
			}
			v, err := c.view(first).Int()
			if err != nil {
				return false
			}
			imm, err := immediate(c.view(second))
			if err != nil {
				return false
			}
			if mul[c.op(second)] {
				v *= imm
			} else {
				v += imm
			}
			c.rewrite(first, func(e *asm.Emitter) { e.PushInt(v) })
			c.buf.Remove(second)
			return true
		},
	}, true
}

func immediate(in disasm.Inst) (int32, error) {
	if in.Info().Shape == isa.ShapeS16 {
		v, err := in.S16()
		return int32(v), err
	}
	v, err := in.U8(0)
	return int32(v), err
}
