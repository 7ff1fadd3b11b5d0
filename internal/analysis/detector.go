package analysis

import (
	"fmt"

	"sctools/internal/isa"
)

// Finding is something a detector noticed about the program.
type Finding struct {
	Kind     string                 `json:"kind"`
	Addr     int                    `json:"addr"`
	Function string                 `json:"function,omitempty"`
	Comment  string                 `json:"comment"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Detector interface for pattern detection on a program
type Detector interface {
	// Detect analyzes p and returns findings, possibly enriching or
	// extending those of earlier detectors
	Detect(p *Program, findings []Finding) []Finding
}

// DetectorChain runs multiple detectors in sequence
type DetectorChain struct {
	detectors []Detector
}

// NewDetectorChain creates a new detector chain
func NewDetectorChain(detectors ...Detector) *DetectorChain {
	return &DetectorChain{
		detectors: detectors,
	}
}

// DefaultDetectors is the chain used by the CLI.
func DefaultDetectors() *DetectorChain {
	return NewDetectorChain(
		&UnreachableDetector{},
		&PageSkipDetector{},
		&InvalidOpcodeDetector{},
	)
}

// Detect runs all detectors in sequence
func (dc *DetectorChain) Detect(p *Program) []Finding {
	var result []Finding
	for _, detector := range dc.detectors {
		result = detector.Detect(p, result)
	}
	return result
}

// UnreachableDetector reports blocks no path from the function entry
// reaches, typically a J the compiler left after a LEAVE.
type UnreachableDetector struct{}

func (d *UnreachableDetector) Detect(p *Program, findings []Finding) []Finding {
	for _, f := range p.Functions {
		live := make(map[int]bool, len(f.Blocks))
		for _, b := range f.Reachable() {
			live[b.Start] = true
		}
		for _, b := range f.Blocks {
			if live[b.Start] {
				continue
			}
			findings = append(findings, Finding{
				Kind:     "unreachable",
				Addr:     b.Start,
				Function: f.Name,
				Comment:  fmt.Sprintf("block [%06X, %06X) is unreachable", b.Start, b.End),
				Metadata: map[string]interface{}{"size": b.End - b.Start},
			})
		}
	}
	return findings
}

// PageSkipDetector reports page-skip jumps: an unconditional J to the
// next page followed by NOP fill up to the boundary.
type PageSkipDetector struct{}

func (d *PageSkipDetector) Detect(p *Program, findings []Finding) []Finding {
	set := p.Set
	if !set.Paged() || !set.HasNOP {
		return findings
	}
	for i, in := range p.Insts {
		if in.Opcode() != set.J {
			continue
		}
		target, err := in.JumpTarget()
		if err != nil || target%set.PageSize != 0 || target <= in.Addr {
			continue
		}
		fill := 0
		for _, next := range p.Insts[i+1:] {
			if next.Addr >= target || !set.IsNOP(next.Opcode()) {
				break
			}
			fill += next.Size()
		}
		if in.End()+fill != target {
			continue
		}
		name := ""
		if f := p.FunctionAt(in.Addr); f != nil {
			name = f.Name
		}
		findings = append(findings, Finding{
			Kind:     "page-skip",
			Addr:     in.Addr,
			Function: name,
			Comment:  fmt.Sprintf("skip to page %d with %d bytes of fill", target/set.PageSize, fill),
			Metadata: map[string]interface{}{"page": target / set.PageSize, "fill": fill},
		})
	}
	return findings
}

// InvalidOpcodeDetector reports bytes that are not instructions of the
// target. It only finds anything in programs scanned leniently.
type InvalidOpcodeDetector struct{}

func (d *InvalidOpcodeDetector) Detect(p *Program, findings []Finding) []Finding {
	for _, in := range p.Insts {
		if !in.Info().Has(isa.FlagInvalid) {
			continue
		}
		name := ""
		if f := p.FunctionAt(in.Addr); f != nil {
			name = f.Name
		}
		findings = append(findings, Finding{
			Kind:     "invalid-opcode",
			Addr:     in.Addr,
			Function: name,
			Comment:  fmt.Sprintf("byte 0x%02X is not a %s opcode", in.Raw[0], p.Set.Name),
		})
	}
	return findings
}
