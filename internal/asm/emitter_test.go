package asm

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"sctools/internal/disasm"
	"sctools/internal/fault"
	"sctools/internal/isa"
)

func finish(t *testing.T, e *Emitter) (*Image, disasm.Stream) {
	t.Helper()
	im, err := e.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	stream, err := disasm.All(e.Set(), im.Code)
	if err != nil {
		t.Fatalf("decode finished code: %v", err)
	}
	return im, stream
}

func at(t *testing.T, stream disasm.Stream, addr int) disasm.Inst {
	t.Helper()
	for _, in := range stream {
		if in.Addr == addr {
			return in
		}
	}
	t.Fatalf("no instruction at %06X", addr)
	return disasm.Inst{}
}

func fill(e *Emitter, n int) {
	op := e.Set().MustOpcode("PUSH_CONST_U8_U8_U8")
	for range n {
		e.OpU8(op, 1, 2, 3)
	}
}

func TestLabelResolution(t *testing.T) {
	e := NewEmitter(isa.GTA5)
	e.Enter(0, 2, "main")
	e.Label("top")
	back := e.Jump(isa.GTA5.MustOpcode("JZ"), "top")
	fwd := e.Jump(isa.GTA5.MustOpcode("J"), "after")
	e.PushInt(1)
	e.Label("after")
	e.Leave(0, 0)

	im, stream := finish(t, e)
	tests := []struct {
		name  string
		ref   *Ref
		label string
	}{
		{"backward", back, "top"},
		{"forward", fwd, "after"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := at(t, stream, im.Offset(tt.ref))
			target, err := in.JumpTarget()
			if err != nil {
				t.Fatalf("JumpTarget: %v", err)
			}
			if target != im.Labels[tt.label] {
				t.Errorf("target = %06X, want %06X", target, im.Labels[tt.label])
			}
		})
	}
	if im.Labels["top"] != 10 {
		t.Errorf("top = %d, want 10 (after the named prologue)", im.Labels["top"])
	}
}

func TestLabelAcrossPage(t *testing.T) {
	e := NewEmitter(isa.GTA5)
	e.Enter(0, 0, "")
	jz := e.Jump(isa.GTA5.MustOpcode("JZ"), "far")
	// Pushes run from 0x0008 to 0x3FFC; the last one does not fit and
	// moves to the next page.
	fill(e, 4094)
	e.Label("far")
	e.Leave(0, 0)
	back := e.Jump(isa.GTA5.MustOpcode("J"), "start")
	e.Label("start")

	im, stream := finish(t, e)
	if len(im.Pages()) != 2 {
		t.Fatalf("pages = %d, want 2", len(im.Pages()))
	}
	for _, in := range stream {
		if in.Addr/0x4000 != (in.End()-1)/0x4000 {
			t.Errorf("%s at %06X straddles a page boundary", in.Mnemonic(), in.Addr)
		}
	}

	skip := at(t, stream, 0x3FFC)
	if skip.Mnemonic() != "J" {
		t.Fatalf("page skip = %s, want J", skip)
	}
	if target, _ := skip.JumpTarget(); target != 0x4000 {
		t.Errorf("page skip target = %06X, want 004000", target)
	}
	if at(t, stream, 0x3FFF).Mnemonic() != "NOP" {
		t.Errorf("page tail should be NOP padded")
	}

	in := at(t, stream, im.Offset(jz))
	if target, _ := in.JumpTarget(); target != im.Labels["far"] || target != 0x4004 {
		t.Errorf("JZ target = %06X, far = %06X", target, im.Labels["far"])
	}
	in = at(t, stream, im.Offset(back))
	if target, _ := in.JumpTarget(); target != len(im.Code) {
		t.Errorf("J target = %06X, want end of code %06X", target, len(im.Code))
	}
}

func TestFinishErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(e *Emitter)
		want  error
		kind  fault.Kind
		label string
	}{
		{
			name: "unbound label",
			build: func(e *Emitter) {
				e.Jump(e.Set().MustOpcode("J"), "nowhere")
			},
			want: fault.ErrUnboundLabel, kind: fault.KindMalformed, label: "nowhere",
		},
		{
			name: "relative jump too far",
			build: func(e *Emitter) {
				e.Jump(e.Set().MustOpcode("J"), "far")
				fill(e, 9000)
				e.Label("far")
			},
			want: fault.ErrOutOfRange, kind: fault.KindMalformed, label: "far",
		},
		{
			name: "label bound twice",
			build: func(e *Emitter) {
				e.Label("twice")
				e.Label("TWICE")
			},
			want: fault.ErrLabelRebound, kind: fault.KindUsage, label: "TWICE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEmitter(isa.GTA5)
			tt.build(e)
			im, err := e.Finish()
			if im != nil {
				t.Errorf("partial image returned")
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if fault.KindOf(err) != tt.kind {
				t.Errorf("kind = %v, want %v", fault.KindOf(err), tt.kind)
			}
			var fe *fault.Error
			if errors.As(err, &fe) && fe.Label != tt.label {
				t.Errorf("label = %q, want %q", fe.Label, tt.label)
			}
		})
	}
}

func TestAbsoluteFixups(t *testing.T) {
	e := NewEmitter(isa.GTA4)
	e.Enter(0, 2, "ignored")
	call := e.Call("fn")
	addr := e.PushAddress("fn")
	jnz := e.Jump(isa.GTA4.MustOpcode("JNZ"), "fn")
	e.Leave(0, 0)
	e.Label("fn")
	e.Enter(0, 2, "")
	e.Leave(0, 0)

	im, stream := finish(t, e)
	fn := im.Labels["fn"]
	if in := at(t, stream, im.Offset(call)); in.Mnemonic() != "CALL" {
		t.Errorf("call = %s", in)
	} else if target, _ := in.CallTarget(); target != fn {
		t.Errorf("call target = %d, want %d", target, fn)
	}
	if v, _ := at(t, stream, im.Offset(addr)).U32(); int(v) != fn {
		t.Errorf("pushed address = %d, want %d", v, fn)
	}
	if target, _ := at(t, stream, im.Offset(jnz)).JumpTarget(); target != fn {
		t.Errorf("jnz target = %d, want %d", target, fn)
	}
	if stream[0].Size() != 4 {
		t.Errorf("gta4 ENTER is %d bytes, want 4", stream[0].Size())
	}
}

func TestBankedCall(t *testing.T) {
	e := NewEmitter(isa.RDR2)
	e.Enter(0, 2, "main")
	call := e.Call("far")
	e.Leave(0, 0)
	fill(e, 0x4100)
	e.Label("far")
	e.Enter(0, 2, "far")
	e.Leave(0, 0)

	im, stream := finish(t, e)
	far := im.Labels["far"]
	if far < 0x10000 {
		t.Fatalf("far = %06X, test needs it past the first bank", far)
	}
	in := at(t, stream, im.Offset(call))
	if want := "CALL_" + strings.ToUpper(string("0123456789abcdef"[far>>16])); in.Mnemonic() != want {
		t.Errorf("call opcode = %s, want %s", in.Mnemonic(), want)
	}
	if target, _ := in.CallTarget(); target != far {
		t.Errorf("call target = %06X, want %06X", target, far)
	}
}

func TestSwitchFixups(t *testing.T) {
	for _, set := range []*isa.Set{isa.GTA5, isa.RDR2, isa.GTA4} {
		t.Run(set.Name, func(t *testing.T) {
			e := NewEmitter(set)
			e.Enter(1, 3, "")
			sw := e.Switch([]Case{{1, "one"}, {-7, "two"}, {300, "one"}})
			e.Leave(1, 0)
			e.Label("one")
			e.PushInt(1)
			e.Label("two")
			e.Leave(1, 0)

			im, stream := finish(t, e)
			cases, err := at(t, stream, im.Offset(sw)).Cases()
			if err != nil {
				t.Fatalf("Cases: %v", err)
			}
			want := []disasm.Case{
				{Value: 1, Target: im.Labels["one"]},
				{Value: -7, Target: im.Labels["two"]},
				{Value: 300, Target: im.Labels["one"]},
			}
			if len(cases) != len(want) {
				t.Fatalf("cases = %v", cases)
			}
			for i := range want {
				if cases[i] != want[i] {
					t.Errorf("case %d = %+v, want %+v", i, cases[i], want[i])
				}
			}
		})
	}
}

func TestPushInt(t *testing.T) {
	tests := []struct {
		set  *isa.Set
		v    int32
		want string
	}{
		{isa.GTA5, -1, "PUSH_CONST_M1"},
		{isa.GTA5, 7, "PUSH_CONST_7"},
		{isa.GTA5, 8, "PUSH_CONST_U8 8"},
		{isa.GTA5, 255, "PUSH_CONST_U8 255"},
		{isa.GTA5, 256, "PUSH_CONST_S16 256"},
		{isa.GTA5, -2, "PUSH_CONST_S16 -2"},
		{isa.GTA5, 40000, "PUSH_CONST_U24 40000"},
		{isa.GTA5, -40000, "PUSH_CONST_U32 4294927296"},
		{isa.GTA5, 0x1000000, "PUSH_CONST_U32 16777216"},
		{isa.GTA4, 159, "PUSH_CONST_159"},
		{isa.GTA4, -16, "PUSH_CONST_M16"},
		{isa.GTA4, 160, "PUSH_CONST_U16 160"},
		{isa.GTA4, -17, "PUSH_CONST_U32 4294967279"},
	}

	for _, tt := range tests {
		t.Run(tt.set.Name+"/"+tt.want, func(t *testing.T) {
			e := NewEmitter(tt.set)
			e.PushInt(tt.v)
			_, stream := finish(t, e)
			if len(stream) != 1 || stream[0].String() != tt.want {
				t.Fatalf("got %v, want %s", stream, tt.want)
			}
			if v, err := stream[0].Int(); err != nil || v != tt.v {
				t.Errorf("Int() = %d, %v", v, err)
			}
		})
	}
}

func TestShapes(t *testing.T) {
	tests := []struct {
		name  string
		set   *isa.Set
		build func(e *Emitter)
		want  string
	}{
		{"rdr2 leave shortcut", isa.RDR2, func(e *Emitter) { e.Leave(1, 2) }, "LEAVE_1_2"},
		{"rdr2 leave long", isa.RDR2, func(e *Emitter) { e.Leave(5, 0) }, "LEAVE 5 0"},
		{"gta5 native", isa.GTA5, func(e *Emitter) { e.Native(3, 1, 0x1234) }, "NATIVE 3 1 4660"},
		{"rdr2 native", isa.RDR2, func(e *Emitter) { e.Native(4, 1, 0x2FF) }, "NATIVE 4 1 767"},
		{"gta4 native", isa.GTA4, func(e *Emitter) { e.Native(2, 1, 0xCAFEBABE) }, "NATIVE 2 1 0xCAFEBABE"},
		{"rdr2 string", isa.RDR2, func(e *Emitter) { e.String("hi") }, "STRING 'hi'"},
		{"gta4 string", isa.GTA4, func(e *Emitter) { e.String("x") }, "STRING 'x'"},
		{"gta5 float shortcut", isa.GTA5, func(e *Emitter) { e.PushFloat(3) }, "PUSH_CONST_F3"},
		{"gta5 float", isa.GTA5, func(e *Emitter) { e.PushFloat(0.25) }, "PUSH_CONST_F 0.25"},
		{"gta5 named enter", isa.GTA5, func(e *Emitter) { e.Enter(2, 9, "fn") }, "ENTER 2 9 'fn'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEmitter(tt.set)
			tt.build(e)
			_, stream := finish(t, e)
			if len(stream) != 1 || stream[0].String() != tt.want {
				t.Errorf("got %v, want %s", stream, tt.want)
			}
		})
	}

	e := NewEmitter(isa.RDR2)
	e.String(strings.Repeat("a", 300))
	_, stream := finish(t, e)
	if stream[0].Mnemonic() != "STRING_U32" {
		t.Errorf("long string uses %s", stream[0].Mnemonic())
	}
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name  string
		set   *isa.Set
		build func(e *Emitter)
		want  error
	}{
		{"shape mismatch", isa.GTA5, func(e *Emitter) { e.OpU16(isa.GTA5.MustOpcode("IADD"), 1) }, fault.ErrOperandMismatch},
		{"u8 count", isa.GTA5, func(e *Emitter) { e.OpU8(isa.GTA5.MustOpcode("PUSH_CONST_U8"), 1, 2) }, fault.ErrOperandMismatch},
		{"no inline strings", isa.GTA5, func(e *Emitter) { e.String("x") }, fault.ErrBadOperand},
		{"native overflow", isa.RDR2, func(e *Emitter) { e.Native(40, 0, 1) }, fault.ErrBadOperand},
		{"invalid opcode", isa.GTA5, func(e *Emitter) { e.Op(0xF0) }, fault.ErrUnknownOpcode},
		{"outside function", isa.GTA5, func(e *Emitter) {
			e.RequireFunction = true
			e.Label("ok")
			e.PushInt(1)
		}, fault.ErrNotInFunction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEmitter(tt.set)
			tt.build(e)
			if !errors.Is(e.Err(), tt.want) {
				t.Fatalf("err = %v, want %v", e.Err(), tt.want)
			}
			if fault.KindOf(e.Err()) != fault.KindUsage {
				t.Errorf("kind = %v, want usage", fault.KindOf(e.Err()))
			}
			// Sticky: later calls are ignored.
			if r := e.PushInt(1); r != nil {
				t.Errorf("emit after error returned a reference")
			}
		})
	}
}

func TestFlushStrategies(t *testing.T) {
	e := NewEmitter(isa.GTA5)
	first := e.PushInt(1)
	last := e.Leave(0, 1)

	prev := e.SetFlush(UpdateFlush(first))
	e.OpU8(isa.GTA5.MustOpcode("PUSH_CONST_U8"), 9)
	e.SetFlush(InsertAfterFlush(first))
	e.Op(isa.GTA5.MustOpcode("DUP"))
	e.Op(isa.GTA5.MustOpcode("IADD"))
	e.SetFlush(prev)
	e.Op(isa.GTA5.MustOpcode("NOP"))

	_, stream := finish(t, e)
	var got []string
	for _, in := range stream {
		got = append(got, in.String())
	}
	want := "PUSH_CONST_U8 9|DUP|IADD|LEAVE 0 1|NOP"
	if strings.Join(got, "|") != want {
		t.Errorf("got %s, want %s", strings.Join(got, "|"), want)
	}
	if last.Index() != 3 {
		t.Errorf("LEAVE index = %d, want 3", last.Index())
	}
}

func TestEnterNamed(t *testing.T) {
	tests := []struct {
		name  string
		build func(e *Emitter)
		want  []byte
	}{
		{"empty name", func(e *Emitter) { e.EnterNamed(0, 2, "") }, []byte{0x2D, 0, 2, 0, 1, 0}},
		{"padded name", func(e *Emitter) { e.EnterNamed(0, 2, "\xFFab") }, []byte{0x2D, 0, 2, 0, 4, 0xFF, 'a', 'b', 0}},
		{"plain enter drops empty", func(e *Emitter) { e.Enter(0, 2, "") }, []byte{0x2D, 0, 2, 0, 0}},
		{"stripped", func(e *Emitter) { e.IncludeNames = false; e.EnterNamed(0, 2, "x") }, []byte{0x2D, 0, 2, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEmitter(isa.GTA5)
			tt.build(e)
			im, _ := finish(t, e)
			if !bytes.Equal(im.Code, tt.want) {
				t.Errorf("code = % X, want % X", im.Code, tt.want)
			}
		})
	}
}

func TestRawPrologueStartsFunction(t *testing.T) {
	e := NewEmitter(isa.GTA5)
	e.RequireFunction = true
	e.Raw([]byte{0x2D, 0, 2, 0, 3, 'a', 'b', 'c'})
	e.PushInt(1)
	if err := e.Err(); err != nil {
		t.Fatalf("push after a raw prologue: %v", err)
	}
}
