// Package fault classifies the errors produced by the bytecode engine.
//
// Every failure in the core is one of three kinds: malformed input
// (bad bytes, unbound labels, overflowing patches), usage errors made by
// the calling layer, and structural inconsistencies found while recovering
// functions and blocks. Callers assert on the kind with KindOf or on a
// specific sentinel with errors.Is.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the class of an engine error.
type Kind int

const (
	KindUnknown Kind = iota
	KindMalformed
	KindUsage
	KindStructure
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed input"
	case KindUsage:
		return "usage"
	case KindStructure:
		return "structure"
	default:
		return "unknown"
	}
}

// Malformed input.
var (
	ErrTruncated     = errors.New("truncated instruction")
	ErrUnknownOpcode = errors.New("unknown opcode")
	ErrUnboundLabel  = errors.New("label referenced but never bound")
	ErrOutOfRange    = errors.New("branch/offset out of range")
)

// Programmer errors in the calling layer.
var (
	ErrOperandMismatch = errors.New("operand kind mismatch")
	ErrLabelRebound    = errors.New("label already bound")
	ErrNotInFunction   = errors.New("instruction outside of a function")
	ErrBadOperand      = errors.New("invalid operand")
)

// Structural findings during recovery.
var (
	ErrBadTarget = errors.New("branch target is not an instruction of the function")
)

// Error is an engine error tagged with its kind and location.
// Addr is -1 when no address applies.
type Error struct {
	Kind  Kind
	Op    string
	Addr  int
	Label string
	Err   error
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Err.Error())
	if e.Label != "" {
		fmt.Fprintf(&sb, " (label %q)", e.Label)
	}
	if e.Addr >= 0 {
		fmt.Fprintf(&sb, " at %06X", e.Addr)
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Malformed builds a malformed-input error at addr.
func Malformed(op string, addr int, err error) *Error {
	return &Error{Kind: KindMalformed, Op: op, Addr: addr, Err: err}
}

// Usage builds a programmer error at addr.
func Usage(op string, addr int, err error) *Error {
	return &Error{Kind: KindUsage, Op: op, Addr: addr, Err: err}
}

// Structure builds a structural inconsistency error at addr.
func Structure(op string, addr int, err error) *Error {
	return &Error{Kind: KindStructure, Op: op, Addr: addr, Err: err}
}

// WithLabel returns a copy of e naming the offending label.
func (e *Error) WithLabel(name string) *Error {
	c := *e
	c.Label = name
	return &c
}

// Wrapf wraps a sentinel with extra context while keeping it matchable.
func Wrapf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
