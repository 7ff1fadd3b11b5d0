package isa

import (
	"errors"
	"testing"

	"sctools/internal/fault"
)

// Byte sizes of the five-generation interpreter, opcode 0x00 to 0x7E.
var gta5Sizes = []int{
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	1, 1, 1, 1, 1, 2, 3, 4, 5, 5, 1, 1, 4, 0, 3, 1, 1, 1, 1, 1, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 1,
	2, 2, 2, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 4, 4, 4,
	4, 4, 0, 1, 1, 2, 2, 2, 2, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
}

func TestGTA5ConstantSizes(t *testing.T) {
	for op, want := range gta5Sizes {
		if got := GTA5.ConstantByteSize(Opcode(op)); got != want {
			t.Errorf("opcode %02X (%s): size = %d, want %d", op, GTA5.Info(Opcode(op)).Mnemonic, got, want)
		}
	}
	for op := len(gta5Sizes); op < 256; op++ {
		if !GTA5.Info(Opcode(op)).Has(FlagInvalid) {
			t.Errorf("opcode %02X should be invalid", op)
		}
	}
}

func TestInstructionByteSize(t *testing.T) {
	tests := []struct {
		name  string
		set   *Set
		bytes []byte
		want  int
	}{
		{"gta5 enter unnamed", GTA5, []byte{0x2D, 0, 2, 0, 0}, 5},
		{"gta5 enter named", GTA5, []byte{0x2D, 0, 2, 0, 5, 'm', 'a', 'i', 'n', 0}, 10},
		{"gta5 switch 3 cases", GTA5, []byte{0x62, 3}, 20},
		{"gta5 switch empty", GTA5, []byte{0x62, 0}, 2},
		{"gta5 native", GTA5, []byte{0x2C, 0, 0, 0}, 4},
		{"rdr2 string", RDR2, []byte{0x6F, 4, 'a', 'b', 'c', 0}, 6},
		{"rdr2 string u32", RDR2, []byte{0x70, 3, 0, 0, 0, 'a', 'b', 0}, 8},
		{"rdr2 native", RDR2, []byte{0x2C, 0, 0}, 3},
		{"rdr2 call bank", RDR2, []byte{0x55, 0, 0}, 3},
		{"gta4 enter", GTA4, []byte{0x2F, 1, 4, 0}, 4},
		{"gta4 switch 2 cases", GTA4, []byte{0x42, 2}, 18},
		{"gta4 native", GTA4, []byte{0x2D}, 7},
		{"gta4 jump", GTA4, []byte{0x22}, 5},
		{"gta4 invalid", GTA4, []byte{0x4F}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.set.InstructionByteSize(tt.bytes)
			if err != nil {
				t.Fatalf("InstructionByteSize: %v", err)
			}
			if got != tt.want {
				t.Errorf("size = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestInstructionByteSizeTruncatedHeader(t *testing.T) {
	tests := []struct {
		name  string
		set   *Set
		bytes []byte
	}{
		{"empty", GTA5, nil},
		{"enter without name length", GTA5, []byte{0x2D, 0, 2}},
		{"switch without count", GTA5, []byte{0x62}},
		{"string without length", RDR2, []byte{0x6F}},
		{"string u32 without length", RDR2, []byte{0x70, 1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.set.InstructionByteSize(tt.bytes)
			if !errors.Is(err, fault.ErrTruncated) {
				t.Errorf("err = %v, want ErrTruncated", err)
			}
		})
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		set      *Set
		mnemonic string
		branch   Branch
		flags    Flags
	}{
		{GTA5, "J", BranchAlways, FlagControlFlow},
		{GTA5, "ILE_JZ", BranchIfZero, FlagControlFlow},
		{GTA5, "LEAVE", BranchNone, FlagTerminator | FlagControlFlow},
		{GTA5, "CALL", BranchNone, FlagCall | FlagControlFlow},
		{GTA5, "SWITCH", BranchNone, FlagSwitch | FlagControlFlow},
		{GTA5, "ENTER", BranchNone, FlagPrologue},
		{GTA5, "IADD", BranchNone, 0},
		{RDR2, "CALL_F", BranchNone, FlagCall | FlagControlFlow},
		{RDR2, "LEAVE_3_1", BranchNone, FlagTerminator | FlagControlFlow},
		{GTA4, "JNZ", BranchIfNonZero, FlagControlFlow},
	}

	for _, tt := range tests {
		t.Run(tt.set.Name+"/"+tt.mnemonic, func(t *testing.T) {
			op, ok := tt.set.Opcode(tt.mnemonic)
			if !ok {
				t.Fatalf("%s not found", tt.mnemonic)
			}
			info := tt.set.Info(op)
			if info.Branch != tt.branch {
				t.Errorf("branch = %v, want %v", info.Branch, tt.branch)
			}
			if info.Flags != tt.flags {
				t.Errorf("flags = %b, want %b", info.Flags, tt.flags)
			}
		})
	}
}

func TestImpliedOperands(t *testing.T) {
	op, ok := GTA4.PushConstOpcode(159)
	if !ok || op != 0xFF {
		t.Errorf("gta4 push 159 = %02X %v, want FF", op, ok)
	}
	op, ok = GTA4.PushConstOpcode(-16)
	if !ok || op != 0x50 {
		t.Errorf("gta4 push -16 = %02X %v, want 50", op, ok)
	}
	if _, ok := GTA5.PushConstOpcode(8); ok {
		t.Error("gta5 should not have PUSH_CONST_8")
	}
	op, ok = GTA5.PushFloatOpcode(-1)
	if !ok || GTA5.Info(op).Mnemonic != "PUSH_CONST_FM1" {
		t.Errorf("gta5 push -1.0 = %s", GTA5.Info(op).Mnemonic)
	}
	leave := RDR2.Info(RDR2.MustOpcode("LEAVE_2_3"))
	if leave.Value>>8 != 2 || leave.Value&0xFF != 3 {
		t.Errorf("LEAVE_2_3 value = %x", leave.Value)
	}
	if RDR2.Info(RDR2.MustOpcode("call_a")).Value != 0xA {
		t.Error("CALL_A bank should be 0xA")
	}
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"gta5", "GTA5", "rdr2", "gta4"} {
		if _, err := Lookup(name); err != nil {
			t.Errorf("Lookup(%q): %v", name, err)
		}
	}
	if _, err := Lookup("payne"); err == nil {
		t.Error("expected error for unknown target")
	}
	if got := Targets(); len(got) != 3 || got[0] != "gta4" {
		t.Errorf("Targets() = %v", got)
	}
}
