// Package analysis recovers functions and control-flow graphs from
// decoded script bytecode.
package analysis

import (
	"fmt"
	"sort"

	"sctools/internal/disasm"
	"sctools/internal/isa"
)

// EdgeKind tags a control-flow edge.
type EdgeKind uint8

const (
	Unconditional EdgeKind = iota
	IfTrue
	IfFalse
	SwitchCase
)

func (k EdgeKind) String() string {
	switch k {
	case Unconditional:
		return "unconditional"
	case IfTrue:
		return "true"
	case IfFalse:
		return "false"
	case SwitchCase:
		return "case"
	}
	return fmt.Sprintf("edge(%d)", uint8(k))
}

// Edge is a successor of a block. To is the start address of the target
// block; Value is set for switch cases only.
type Edge struct {
	To    int
	Kind  EdgeKind
	Value *int32
}

// CallSite is a call instruction inside a block.
type CallSite struct {
	Addr   int
	Target int
}

// Block is a basic block, a half-open byte range [Start, End).
type Block struct {
	Start, End int
	Succs      []Edge
	Calls      []CallSite
	// Term is set when the block ends in a return.
	Term bool
}

// Function is a half-open byte range [Start, End) with its blocks, which
// partition the range in address order.
type Function struct {
	Name       string
	Start, End int
	Blocks     []*Block
}

// Block returns the block starting at addr.
func (f *Function) Block(addr int) (*Block, int) {
	i := sort.Search(len(f.Blocks), func(i int) bool { return f.Blocks[i].Start >= addr })
	if i < len(f.Blocks) && f.Blocks[i].Start == addr {
		return f.Blocks[i], i
	}
	return nil, -1
}

// Reachable returns the blocks reachable from the entry block, in address
// order. The rest are dead code, usually jumps the compiler left after a
// return.
func (f *Function) Reachable() []*Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	seen := make([]bool, len(f.Blocks))
	work := []int{0}
	seen[0] = true
	for len(work) > 0 {
		b := f.Blocks[work[len(work)-1]]
		work = work[:len(work)-1]
		for _, e := range b.Succs {
			if _, i := f.Block(e.To); i >= 0 && !seen[i] {
				seen[i] = true
				work = append(work, i)
			}
		}
	}
	var out []*Block
	for i, ok := range seen {
		if ok {
			out = append(out, f.Blocks[i])
		}
	}
	return out
}

// Program is the result of analyzing a code image.
type Program struct {
	Set       *isa.Set
	Code      []byte
	Insts     disasm.Stream
	Functions []*Function
}

// Analyze decodes code, delimits its functions and builds every CFG.
// It is all-or-nothing: on error no Program is returned.
func Analyze(set *isa.Set, code []byte, opts ScanOptions) (*Program, error) {
	insts, err := disasm.All(set, code)
	if err != nil {
		return nil, err
	}
	funcs, err := scan(set, insts, opts)
	if err != nil {
		return nil, err
	}
	p := &Program{Set: set, Code: code, Insts: insts, Functions: funcs}
	for _, f := range funcs {
		if err := p.buildCFG(f); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Instructions returns the decoded instructions in [start, end).
func (p *Program) Instructions(start, end int) disasm.Stream {
	lo := sort.Search(len(p.Insts), func(i int) bool { return p.Insts[i].Addr >= start })
	hi := sort.Search(len(p.Insts), func(i int) bool { return p.Insts[i].Addr >= end })
	return p.Insts[lo:hi]
}

// FunctionAt returns the function containing addr.
func (p *Program) FunctionAt(addr int) *Function {
	i := sort.Search(len(p.Functions), func(i int) bool { return p.Functions[i].End > addr })
	if i < len(p.Functions) && p.Functions[i].Start <= addr {
		return p.Functions[i]
	}
	return nil
}

// Function looks a function up by name.
func (p *Program) Function(name string) *Function {
	for _, f := range p.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Targets returns every address that is a jump, case or call target,
// sorted. Printers emit a label line at each.
func (p *Program) Targets() []int {
	seen := make(map[int]struct{})
	for _, in := range p.Insts {
		for _, t := range targets(in) {
			seen[t] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Ints(out)
	return out
}

// targets decodes the branch and call targets of one instruction. Decode
// errors yield no targets; the CFG builder reports them.
func targets(in disasm.Inst) []int {
	info := in.Info()
	switch {
	case info.IsJump():
		if t, err := in.JumpTarget(); err == nil {
			return []int{t}
		}
	case info.Has(isa.FlagSwitch):
		cases, err := in.Cases()
		if err != nil {
			return nil
		}
		out := make([]int, len(cases))
		for i, c := range cases {
			out[i] = c.Target
		}
		return out
	case info.Has(isa.FlagCall):
		if t, err := in.CallTarget(); err == nil {
			return []int{t}
		}
	}
	return nil
}
