package cmd

import (
	"fmt"

	"sctools/internal/analysis"
	"sctools/internal/image"
)

// loadProgram reads an image or raw code file and analyzes it. Raw files
// are decoded for target. Names from the image's function table replace
// the recovered ones.
func loadProgram(path, target string, lenient bool) (*image.File, *analysis.Program, error) {
	f, err := image.Read(path, target)
	if err != nil {
		return nil, nil, err
	}
	set, err := f.Set()
	if err != nil {
		return nil, nil, err
	}
	p, err := analysis.Analyze(set, f.Code, analysis.ScanOptions{Lenient: lenient})
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	names := make(map[int]string, len(f.Functions))
	for _, fn := range f.Functions {
		names[fn.Start] = fn.Name
	}
	for _, fn := range p.Functions {
		if n, ok := names[fn.Start]; ok && n != "" {
			fn.Name = n
		}
	}
	logger.Debug("loaded", "file", path, "target", set.Name, "bytes", len(f.Code), "functions", len(p.Functions))
	return f, p, nil
}

// functionTable converts analyzed functions for an image file.
func functionTable(p *analysis.Program) []image.Function {
	out := make([]image.Function, len(p.Functions))
	for i, fn := range p.Functions {
		out[i] = image.Function{Name: fn.Name, Start: fn.Start, End: fn.End}
	}
	return out
}
