package asmtext

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"sctools/internal/analysis"
	"sctools/internal/fault"
	"sctools/internal/isa"
)

const gta5Source = `
.target gta5
main:
    ENTER 0 3 'main'
    PUSH 1
    PUSH 300
    PUSH -5
    PUSH 70000
    PUSH 0x1000000
    PUSHF 1.0
    PUSHF 2.5
    PUSHF -inf
    PUSH helper             ; address of a function
    LOCAL_U8 2
    STORE
    NATIVE 1 0 42
    CALL helper
    SWITCH 1:one, 2:two, -3:two
    J done
one:
    PUSH 7
    JZ done
two:
    ILT_JZ done
done:
    LEAVE 0 0
helper:
    ENTER 0 2
    LEAVE 0 1
`

const rdr2Source = `
.target rdr2
main:
    ENTER 1 4 'entry point'
    STRING 'a\'b\x01'
    STRING_U32 'long'
    PUSH_CONST_U8_U8 1 2
    NATIVE 2 1 300
    CALL_0 helper
    JZ main
    LEAVE 1 0
helper:
    ENTER 0 2 'helper'
    LEAVE_0_1
`

const gta4Source = `
.target gta4
main:
    ENTER 1 4
    PUSH 100
    PUSH 1000
    PUSH -100
    PUSHF 0.5
    CALL helper
    SWITCH 0x10:a 0x20:b
a:  JNZ b
    NATIVE 1 1 0xDEADBEEF
b:
    LEAVE 1 0
helper:
    ENTER 0 2
    LEAVE 0 1
`

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		src  string
		set  *isa.Set
	}{
		{"gta5", gta5Source, isa.GTA5},
		{"rdr2", rdr2Source, isa.RDR2},
		{"gta4", gta4Source, isa.GTA4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, err := Assemble(isa.GTA5, tt.src, Options{Name: tt.name})
			if err != nil {
				t.Fatalf("Assemble: %v", err)
			}
			if first.Set != tt.set {
				t.Fatalf(".target selected %s", first.Set.Name)
			}

			text := listing(t, first)
			second, err := Assemble(isa.GTA5, text, Options{})
			if err != nil {
				t.Fatalf("re-Assemble: %v\n%s", err, text)
			}
			if !bytes.Equal(first.Image.Code, second.Image.Code) {
				t.Fatalf("code differs after a round trip\n%s", text)
			}
			if again := listing(t, second); again != text {
				t.Errorf("listing is not stable\nfirst:\n%s\nsecond:\n%s", text, again)
			}
		})
	}
}

func listing(t *testing.T, res *Result) string {
	t.Helper()
	p, err := analysis.Analyze(res.Set, res.Image.Code, analysis.ScanOptions{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	var buf bytes.Buffer
	if err := Print(&buf, p, PrintOptions{Addresses: true, RawBytes: true}); err != nil {
		t.Fatalf("Print: %v", err)
	}
	return buf.String()
}

func TestPageRoundTrip(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("main:\n    ENTER 0 0\n")
	for range 4093 {
		sb.WriteString("    PUSH_CONST_U8_U8_U8 1 2 3\n")
	}
	sb.WriteString("    LEAVE 0 0\nnext:\n    ENTER 0 0\n    LEAVE 0 0\n")

	first, err := Assemble(isa.GTA5, sb.String(), Options{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(first.Image.Code) <= isa.GTA5.PageSize {
		t.Fatalf("code did not cross a page")
	}
	text := listing(t, first)
	if !strings.Contains(text, "J lbl_004000") {
		t.Errorf("listing lacks the page-skip jump")
	}
	second, err := Assemble(isa.GTA5, text, Options{})
	if err != nil {
		t.Fatalf("re-Assemble: %v", err)
	}
	if !bytes.Equal(first.Image.Code, second.Image.Code) {
		t.Errorf("paged code differs after a round trip")
	}
}

func TestOptimizeOption(t *testing.T) {
	src := "PUSH 1\nPUSH 2\nIADD\nLEAVE 0 1\n"
	plain, err := Assemble(isa.GTA5, src, Options{})
	if err != nil {
		t.Fatal(err)
	}
	opt, err := Assemble(isa.GTA5, src, Options{Optimize: true})
	if err != nil {
		t.Fatal(err)
	}
	if opt.Fusions == 0 || len(opt.Image.Code) >= len(plain.Image.Code) {
		t.Errorf("optimized %d bytes (%d fusions), plain %d", len(opt.Image.Code), opt.Fusions, len(plain.Image.Code))
	}
	want := []byte{byte(isa.GTA5.MustOpcode("PUSH_CONST_3")), byte(isa.GTA5.MustOpcode("LEAVE")), 0, 1}
	if !bytes.Equal(opt.Image.Code, want) {
		t.Errorf("code = % X, want % X", opt.Image.Code, want)
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
		is   error
	}{
		{"unknown mnemonic", "ENTER 0 0\nFROB\n", 2, nil},
		{"operand count", "LEAVE 0\n", 1, nil},
		{"operand kind", "J 5\n", 1, nil},
		{"range", "LOCAL_U8 256\n", 1, nil},
		{"late target", "NOP\n.target gta4\n", 2, nil},
		{"unbound label", "ENTER 0 0\n\nJ nowhere\n", 3, fault.ErrUnboundLabel},
		{"rebound label", "a:\na:\n", 2, fault.ErrLabelRebound},
		{"bad syntax", "ENTER 0 0\nJ :\n", 2, nil},
		{"instruction label", "ENTER 0 0\nnop:\n", 2, nil},
		{"pseudo-op label", "ENTER 0 0\n\nPUSHF:\n", 3, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble(isa.GTA5, tt.src, Options{Name: "t.asm"})
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("err = %v, want %v", err, tt.is)
			}
			if !strings.Contains(err.Error(), "t.asm:"+itoa(tt.line)+":") {
				t.Errorf("err = %v, want line %d", err, tt.line)
			}
		})
	}
}

func TestRequireFunction(t *testing.T) {
	_, err := Assemble(isa.GTA5, "PUSH 1\n", Options{RequireFunction: true})
	if !errors.Is(err, fault.ErrNotInFunction) {
		t.Errorf("err = %v", err)
	}
}

func itoa(n int) string {
	var b [8]byte
	i := len(b)
	for {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
		if n == 0 {
			return string(b[i:])
		}
	}
}

func TestPrologueEncodings(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want string
	}{
		{"empty name", []byte{0x2D, 0, 2, 0, 1, 0, 0x2E, 0, 0}, "ENTER 0 2 ''"},
		{"padded name", []byte{0x2D, 0, 2, 0, 5, 0xFF, 0xFF, 'a', 'b', 0, 0x2E, 0, 0}, `ENTER 0 2 '\xFF\xFFab'`},
		{"unterminated name", []byte{0x2D, 0, 2, 0, 3, 'a', 'b', 'c', 0x2E, 0, 0}, ".byte 0x2D 0x00 0x02 0x00 0x03 0x61 0x62 0x63"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := analysis.Analyze(isa.GTA5, tt.code, analysis.ScanOptions{})
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			var buf bytes.Buffer
			if err := Print(&buf, p, PrintOptions{}); err != nil {
				t.Fatalf("Print: %v", err)
			}
			text := buf.String()
			if !strings.Contains(text, tt.want) {
				t.Errorf("listing lacks %q:\n%s", tt.want, text)
			}
			res, err := Assemble(isa.GTA5, text, Options{})
			if err != nil {
				t.Fatalf("Assemble: %v\n%s", err, text)
			}
			if !bytes.Equal(res.Image.Code, tt.code) {
				t.Errorf("code = % X, want % X", res.Image.Code, tt.code)
			}
		})
	}
}

func TestInstructionNamedFunction(t *testing.T) {
	src := `main:
    ENTER 0 0 'main'
    CALL callee
    LEAVE 0 0
callee:
    ENTER 0 0 'NOP'
    LEAVE 0 0
`
	first, err := Assemble(isa.GTA5, src, Options{})
	if err != nil {
		t.Fatal(err)
	}
	text := listing(t, first)
	if strings.Contains(text, "NOP:") {
		t.Errorf("function name used as a label:\n%s", text)
	}
	second, err := Assemble(isa.GTA5, text, Options{})
	if err != nil {
		t.Fatalf("re-Assemble: %v\n%s", err, text)
	}
	if !bytes.Equal(first.Image.Code, second.Image.Code) {
		t.Errorf("code differs after a round trip\n%s", text)
	}
}
