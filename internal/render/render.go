// Package render writes Graphviz DOT for control flow and call graphs.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zboralski/lattice"
	lrender "github.com/zboralski/lattice/render"

	"sctools/internal/analysis"
)

// CFG renders the control flow graph of one function.
func CFG(p *analysis.Program, f *analysis.Function) string {
	g := &lattice.CFGGraph{Funcs: []*lattice.FuncCFG{analysis.LatticeCFG(p, f)}}
	return lrender.DOTCFG(g, f.Name)
}

// CFGs renders every function into one graph.
func CFGs(p *analysis.Program, title string) string {
	return lrender.DOTCFG(analysis.LatticeCFGs(p), title)
}

// CallGraph renders the call graph of p.
func CallGraph(p *analysis.Program, title string) string {
	return lrender.DOT(analysis.CallGraph(p), title)
}

// FileName turns a function name into a file name.
func FileName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, name)
	if name == "" {
		name = "_"
	}
	return name + ".dot"
}

// WriteCFGs writes one DOT file per function with more than one block
// into dir and returns the number written.
func WriteCFGs(dir string, p *analysis.Program) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("mkdir cfg: %w", err)
	}
	seen := make(map[string]int)
	n := 0
	for _, f := range p.Functions {
		if len(f.Blocks) < 2 {
			continue
		}
		name := FileName(f.Name)
		if c := seen[name]; c > 0 {
			name = fmt.Sprintf("%s_%d.dot", strings.TrimSuffix(name, ".dot"), c)
		}
		seen[FileName(f.Name)]++
		if err := os.WriteFile(filepath.Join(dir, name), []byte(CFG(p, f)), 0o644); err != nil {
			return n, fmt.Errorf("write cfg dot %s: %w", f.Name, err)
		}
		n++
	}
	return n, nil
}
