package asmtext

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"sctools/internal/analysis"
	"sctools/internal/disasm"
	"sctools/internal/fault"
	"sctools/internal/isa"
)

// PrintOptions control listings.
type PrintOptions struct {
	// Addresses appends each instruction's address as a comment.
	Addresses bool
	// RawBytes appends the encoded bytes as a comment.
	RawBytes bool
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Labels names every jump, case and call target of p. Function starts use
// the function name when it is a usable identifier that is not an
// instruction name.
func Labels(p *analysis.Program) map[int]string {
	names := make(map[int]string)
	taken := make(map[string]bool)
	for _, f := range p.Functions {
		n := strings.ToLower(f.Name)
		if identRe.MatchString(f.Name) && !reserved(p.Set, f.Name) && !taken[n] {
			names[f.Start] = f.Name
			taken[n] = true
		}
	}
	for _, addr := range p.Targets() {
		if _, ok := names[addr]; ok {
			continue
		}
		name := disasm.LabelName(addr)
		for taken[strings.ToLower(name)] {
			name += "_"
		}
		names[addr] = name
		taken[strings.ToLower(name)] = true
	}
	return names
}

// Print writes p as a listing that Assemble turns back into the same
// bytes.
func Print(w io.Writer, p *analysis.Program, opts PrintOptions) error {
	names := Labels(p)
	for _, addr := range p.Targets() {
		if addr == len(p.Code) {
			continue
		}
		if in := p.Instructions(addr, addr+1); len(in) == 0 {
			return fault.Structure("print", addr,
				fault.Wrapf(fault.ErrBadTarget, "target %06X is not an instruction start", addr))
		}
	}
	namer := func(addr int) string {
		if n, ok := names[addr]; ok {
			return n
		}
		return disasm.LabelName(addr)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, ".target %s\n", p.Set.Name)
	for _, f := range p.Functions {
		fmt.Fprintf(bw, "\n; %s [%06X, %06X)\n", f.Name, f.Start, f.End)
		for _, in := range p.Instructions(f.Start, f.End) {
			if n, ok := names[in.Addr]; ok {
				fmt.Fprintf(bw, "%s:\n", n)
			}
			line := "    " + text(in, namer)
			if c := comment(in, opts); c != "" {
				line = fmt.Sprintf("%-40s ; %s", line, c)
			}
			fmt.Fprintln(bw, line)
		}
	}
	if n, ok := names[len(p.Code)]; ok {
		fmt.Fprintf(bw, "%s:\n", n)
	}
	return bw.Flush()
}

// text formats in, or spells out its bytes when the prologue name field
// has no terminator and ENTER could not reproduce it.
func text(in disasm.Inst, names disasm.Namer) string {
	if in.Info().Shape == isa.ShapeEnter {
		if e, err := in.Enter(); err == nil && len(e.Field) > 0 && e.Field[len(e.Field)-1] != 0 {
			bs := make([]string, len(in.Raw))
			for i, b := range in.Raw {
				bs[i] = fmt.Sprintf("0x%02X", b)
			}
			return ".byte " + strings.Join(bs, " ")
		}
	}
	return disasm.Format(in, names)
}

func comment(in disasm.Inst, opts PrintOptions) string {
	var parts []string
	if opts.Addresses {
		parts = append(parts, fmt.Sprintf("%06X", in.Addr))
	}
	if opts.RawBytes {
		raw := in.Raw
		suffix := ""
		if len(raw) > 16 {
			raw, suffix = raw[:16], " .."
		}
		parts = append(parts, fmt.Sprintf("% X%s", raw, suffix))
	}
	return strings.Join(parts, " ")
}
