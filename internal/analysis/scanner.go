package analysis

import (
	"fmt"

	"sctools/internal/disasm"
	"sctools/internal/fault"
	"sctools/internal/isa"
)

// ScanOptions tune function delimiting.
type ScanOptions struct {
	// Lenient accepts bytes that are not instructions of the target and
	// treats each as a one-byte instruction. The invalid opcode detector
	// reports them afterwards.
	Lenient bool
}

// scanState is either outsideFunction or inFunction.
type scanState interface{ scanState() }

type outsideFunction struct{}

type inFunction struct {
	start int
	name  string
}

func (outsideFunction) scanState() {}
func (inFunction) scanState()      {}

type scanner struct {
	set   *isa.Set
	insts disasm.Stream
	state scanState
	funcs []*Function
}

// ScanFunctions delimits the functions of a decoded instruction stream.
// Blocks are left empty.
func ScanFunctions(set *isa.Set, insts disasm.Stream, opts ScanOptions) ([]*Function, error) {
	return scan(set, insts, opts)
}

func scan(set *isa.Set, insts disasm.Stream, opts ScanOptions) ([]*Function, error) {
	s := &scanner{set: set, insts: insts, state: outsideFunction{}}
	for i, in := range insts {
		info := in.Info()
		if info.Has(isa.FlagInvalid) && !opts.Lenient {
			return nil, fault.Malformed("scan", in.Addr,
				fault.Wrapf(fault.ErrUnknownOpcode, "byte 0x%02X", in.Raw[0]))
		}
		if info.Has(isa.FlagPrologue) {
			if err := s.prologue(i); err != nil {
				return nil, err
			}
			continue
		}
		if _, ok := s.state.(outsideFunction); ok {
			s.state = inFunction{start: in.Addr}
		}
	}
	if len(insts) > 0 {
		s.close(insts[len(insts)-1].End())
	}
	return s.funcs, nil
}

func (s *scanner) prologue(i int) error {
	in := s.insts[i]
	enter, err := in.Enter()
	if err != nil {
		return err
	}
	start := in.Addr
	if cur, ok := s.state.(inFunction); ok {
		start = s.correct(i, cur)
		s.close(start)
	}
	s.state = inFunction{start: start, name: enter.Name}
	return nil
}

// close ends the current function at end.
func (s *scanner) close(end int) {
	cur, ok := s.state.(inFunction)
	if !ok {
		return
	}
	name := cur.name
	switch {
	case name != "":
	case cur.start == 0:
		name = "main"
	default:
		name = fmt.Sprintf("func_%06d", cur.start)
	}
	s.funcs = append(s.funcs, &Function{Name: name, Start: cur.start, End: end})
	s.state = outsideFunction{}
}

// correct returns where the function whose prologue is insts[i] really
// starts. A compiler that hit a page boundary between functions leaves
//
//	LEAVE; J prologue; NOP...; <page>; ENTER
//
// and the jump with its fill belong to the new function. A terminator
// followed only by NOPs gives the NOPs to the new function.
func (s *scanner) correct(i int, cur inFunction) int {
	start := s.insts[i].Addr
	j := i - 1
	if j < 0 || s.terminator(j) {
		return start
	}
	for j >= 0 && s.set.IsNOP(s.insts[j].Opcode()) {
		j--
	}
	switch {
	case j < 0 || s.insts[j].Addr < cur.start:
		return start
	case s.terminator(j):
		return s.insts[j].End()
	case s.pageSkip(j, start):
		k := j - 1
		for k >= 0 && s.set.IsNOP(s.insts[k].Opcode()) {
			k--
		}
		if k >= 0 && s.insts[k].Addr >= cur.start && s.terminator(k) {
			return s.insts[j].Addr
		}
	}
	return start
}

func (s *scanner) terminator(i int) bool { return s.insts[i].Info().Has(isa.FlagTerminator) }

// pageSkip reports whether insts[i] is an unconditional J to target.
func (s *scanner) pageSkip(i, target int) bool {
	in := s.insts[i]
	if in.Opcode() != s.set.J {
		return false
	}
	t, err := in.JumpTarget()
	return err == nil && t == target
}
