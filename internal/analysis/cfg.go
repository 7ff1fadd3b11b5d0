package analysis

import (
	"slices"

	"sctools/internal/disasm"
	"sctools/internal/fault"
	"sctools/internal/isa"
)

// BuildCFG fills f.Blocks from the program's instructions. Blocks are
// built in one pass and never merged afterwards.
func (p *Program) BuildCFG(f *Function) error { return p.buildCFG(f) }

func (p *Program) buildCFG(f *Function) error {
	insts := p.Instructions(f.Start, f.End)
	if len(insts) == 0 {
		f.Blocks = nil
		return nil
	}
	index := make(map[int]int, len(insts))
	for i, in := range insts {
		index[in.Addr] = i
	}
	check := func(in disasm.Inst, target int) error {
		if _, ok := index[target]; !ok {
			return fault.Structure("cfg", in.Addr,
				fault.Wrapf(fault.ErrBadTarget, "%s targets %06X, outside %s [%06X, %06X) or inside an instruction",
					in.Mnemonic(), target, f.Name, f.Start, f.End))
		}
		return nil
	}

	starts := []int{f.Start}
	for _, in := range insts {
		info := in.Info()
		switch {
		case info.IsJump():
			t, err := in.JumpTarget()
			if err != nil {
				return err
			}
			if err := check(in, t); err != nil {
				return err
			}
			starts = append(starts, t)
		case info.Has(isa.FlagSwitch):
			cases, err := in.Cases()
			if err != nil {
				return err
			}
			for _, c := range cases {
				if err := check(in, c.Target); err != nil {
					return err
				}
				starts = append(starts, c.Target)
			}
		case !info.Has(isa.FlagTerminator):
			continue
		}
		if in.End() < f.End {
			starts = append(starts, in.End())
		}
	}
	slices.Sort(starts)
	starts = slices.Compact(starts)

	f.Blocks = make([]*Block, len(starts))
	for k, start := range starts {
		b := &Block{Start: start, End: f.End}
		if k+1 < len(starts) {
			b.End = starts[k+1]
		}
		f.Blocks[k] = b
	}
	for k, b := range f.Blocks {
		lo := index[b.Start]
		hi := len(insts)
		if k+1 < len(f.Blocks) {
			hi = index[f.Blocks[k+1].Start]
		}
		body := insts[lo:hi]
		for _, in := range body {
			if !in.Info().Has(isa.FlagCall) {
				continue
			}
			t, err := in.CallTarget()
			if err != nil {
				return err
			}
			b.Calls = append(b.Calls, CallSite{Addr: in.Addr, Target: t})
		}
		if err := connect(b, body[len(body)-1], f.End); err != nil {
			return err
		}
	}
	return nil
}

// connect adds the successors of b, whose last instruction is last.
func connect(b *Block, last disasm.Inst, end int) error {
	info := last.Info()
	next := last.End()
	fall := func(kind EdgeKind) {
		if next < end {
			b.Succs = append(b.Succs, Edge{To: next, Kind: kind})
		}
	}
	switch {
	case info.Has(isa.FlagTerminator):
		b.Term = true
	case info.Has(isa.FlagSwitch):
		cases, err := last.Cases()
		if err != nil {
			return err
		}
		for _, c := range cases {
			v := c.Value
			b.Succs = append(b.Succs, Edge{To: c.Target, Kind: SwitchCase, Value: &v})
		}
		fall(Unconditional)
	case info.IsJump():
		t, err := last.JumpTarget()
		if err != nil {
			return err
		}
		switch info.Branch {
		case isa.BranchAlways:
			b.Succs = append(b.Succs, Edge{To: t, Kind: Unconditional})
		case isa.BranchIfZero:
			b.Succs = append(b.Succs, Edge{To: t, Kind: IfFalse})
			fall(IfTrue)
		case isa.BranchIfNonZero:
			b.Succs = append(b.Succs, Edge{To: t, Kind: IfTrue})
			fall(IfFalse)
		}
	default:
		fall(Unconditional)
	}
	return nil
}
