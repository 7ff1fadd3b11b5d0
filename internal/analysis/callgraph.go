package analysis

import (
	"fmt"

	"github.com/zboralski/lattice"
)

// CallGraph builds the function call graph. Every function becomes a node;
// calls to addresses that are not a function start are named by address.
func CallGraph(p *Program) *lattice.Graph {
	g := &lattice.Graph{}
	for _, f := range p.Functions {
		g.Nodes = append(g.Nodes, f.Name)
		for _, b := range f.Blocks {
			for _, c := range b.Calls {
				g.Edges = append(g.Edges, lattice.Edge{Caller: f.Name, Callee: p.calleeName(c.Target)})
			}
		}
	}
	g.Dedup()
	return g
}

func (p *Program) calleeName(addr int) string {
	if f := p.FunctionAt(addr); f != nil && f.Start == addr {
		return f.Name
	}
	return fmt.Sprintf("0x%06x", addr)
}

// LatticeCFG converts the blocks of f for rendering. Block bounds are
// instruction indices relative to the function start, as lattice expects.
func LatticeCFG(p *Program, f *Function) *lattice.FuncCFG {
	insts := p.Instructions(f.Start, f.End)
	index := make(map[int]int, len(insts))
	for i, in := range insts {
		index[in.Addr] = i
	}
	out := &lattice.FuncCFG{Name: f.Name}
	for id, b := range f.Blocks {
		lb := &lattice.BasicBlock{
			ID:    id,
			Start: index[b.Start],
			End:   len(insts),
			Term:  b.Term,
		}
		if id+1 < len(f.Blocks) {
			lb.End = index[f.Blocks[id+1].Start]
		}
		for _, e := range b.Succs {
			_, to := f.Block(e.To)
			lb.Succs = append(lb.Succs, lattice.Successor{BlockID: to, Cond: edgeCond(e)})
		}
		for _, c := range b.Calls {
			lb.Calls = append(lb.Calls, lattice.CallSite{Offset: index[c.Addr], Callee: p.calleeName(c.Target)})
		}
		out.Blocks = append(out.Blocks, lb)
	}
	return out
}

// LatticeCFGs converts every function.
func LatticeCFGs(p *Program) *lattice.CFGGraph {
	g := &lattice.CFGGraph{}
	for _, f := range p.Functions {
		g.Funcs = append(g.Funcs, LatticeCFG(p, f))
	}
	return g
}

// edgeCond uses the T/F convention of lattice's renderer.
func edgeCond(e Edge) string {
	switch e.Kind {
	case IfTrue:
		return "T"
	case IfFalse:
		return "F"
	case SwitchCase:
		return fmt.Sprintf("case %d", *e.Value)
	}
	return ""
}
