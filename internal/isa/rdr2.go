package isa

import "fmt"

// RDR2 shares the five-generation encoding but calls through sixteen
// banked CALL_n opcodes, packs native calls into two bytes, carries inline
// strings and has LEAVE_x_y shortcuts.
var RDR2 = register(newSet(Set{
	Name:          "rdr2",
	Description:   "five-generation VM with banked calls and inline strings",
	PageSize:      0x4000,
	NamedPrologue: true,
	Switch:        SwitchLayout{EntrySize: 6, Relative: true},
	Native:        NativeBanked,
	NOP:           0x00,
	J:             0x62,
	HasNOP:        true,
}, rdr2Table()))

func rdr2Table() []def {
	t := []def{
		{0x00, "NOP", ShapeNone, 0, 0, 0},
	}
	t = append(t, seq(0x01, ShapeNone,
		"IADD", "ISUB", "IMUL", "IDIV", "IMOD", "INOT", "INEG",
		"IEQ", "INE", "IGT", "IGE", "ILT", "ILE",
		"FADD", "FSUB", "FMUL", "FDIV", "FMOD", "FNEG",
		"FEQ", "FNE", "FGT", "FGE", "FLT", "FLE",
		"VADD", "VSUB", "VMUL", "VDIV", "VNEG",
		"IAND", "IOR", "IXOR", "I2F", "F2I", "F2V")...)
	t = append(t,
		def{0x25, "PUSH_CONST_U8", ShapeU8, 0, 0, 0},
		def{0x26, "PUSH_CONST_U8_U8", ShapeU8x2, 0, 0, 0},
		def{0x27, "PUSH_CONST_U8_U8_U8", ShapeU8x3, 0, 0, 0},
		def{0x28, "PUSH_CONST_U32", ShapeU32, 0, 0, 0},
		def{0x29, "PUSH_CONST_F", ShapeF32, 0, 0, 0},
		def{0x2A, "DUP", ShapeNone, 0, 0, 0},
		def{0x2B, "DROP", ShapeNone, 0, 0, 0},
		def{0x2C, "NATIVE", ShapeNative, 0, 0, 0},
		def{0x2D, "ENTER", ShapeEnter, 0, FlagPrologue, 0},
		def{0x2E, "LEAVE", ShapeLeave, 0, FlagTerminator, 0},
	)
	t = append(t, seq(0x2F, ShapeNone, "LOAD", "STORE", "STORE_REV", "LOAD_N", "STORE_N")...)
	t = append(t, seq(0x34, ShapeU8,
		"ARRAY_U8", "ARRAY_U8_LOAD", "ARRAY_U8_STORE",
		"LOCAL_U8", "LOCAL_U8_LOAD", "LOCAL_U8_STORE",
		"STATIC_U8", "STATIC_U8_LOAD", "STATIC_U8_STORE",
		"IADD_U8", "IOFFSET_U8_LOAD", "IOFFSET_U8_STORE", "IMUL_U8")...)
	t = append(t, seq(0x41, ShapeS16,
		"PUSH_CONST_S16", "IADD_S16", "IOFFSET_S16_LOAD", "IOFFSET_S16_STORE", "IMUL_S16")...)
	t = append(t, seq(0x46, ShapeU16,
		"ARRAY_U16", "ARRAY_U16_LOAD", "ARRAY_U16_STORE",
		"LOCAL_U16", "LOCAL_U16_LOAD", "LOCAL_U16_STORE",
		"STATIC_U16", "STATIC_U16_LOAD", "STATIC_U16_STORE",
		"GLOBAL_U16", "GLOBAL_U16_LOAD", "GLOBAL_U16_STORE")...)
	for bank := int32(0); bank < 16; bank++ {
		t = append(t, def{Opcode(0x52 + bank), fmt.Sprintf("CALL_%X", bank), ShapeCallBanked, 0, FlagCall, bank})
	}
	t = append(t, def{0x62, "J", ShapeJumpRel, BranchAlways, 0, 0})
	for i, name := range []string{"JZ", "IEQ_JZ", "INE_JZ", "IGT_JZ", "IGE_JZ", "ILT_JZ", "ILE_JZ"} {
		t = append(t, def{Opcode(0x63 + i), name, ShapeJumpRel, BranchIfZero, 0, 0})
	}
	t = append(t,
		def{0x6A, "GLOBAL_U24", ShapeU24, 0, 0, 0},
		def{0x6B, "GLOBAL_U24_LOAD", ShapeU24, 0, 0, 0},
		def{0x6C, "GLOBAL_U24_STORE", ShapeU24, 0, 0, 0},
		def{0x6D, "PUSH_CONST_U24", ShapeU24, 0, 0, 0},
		def{0x6E, "SWITCH", ShapeSwitch, 0, FlagSwitch, 0},
		def{0x6F, "STRING", ShapeString, 0, 0, 0},
		def{0x70, "STRING_U32", ShapeString32, 0, 0, 0},
		def{0x71, "NULL", ShapeNone, 0, 0, 0},
		def{0x72, "TEXT_LABEL_ASSIGN_STRING", ShapeU8, 0, 0, 0},
		def{0x73, "TEXT_LABEL_ASSIGN_INT", ShapeU8, 0, 0, 0},
		def{0x74, "TEXT_LABEL_APPEND_STRING", ShapeU8, 0, 0, 0},
		def{0x75, "TEXT_LABEL_APPEND_INT", ShapeU8, 0, 0, 0},
		def{0x76, "TEXT_LABEL_COPY", ShapeNone, 0, 0, 0},
		def{0x77, "CATCH", ShapeNone, 0, 0, 0},
		def{0x78, "THROW", ShapeNone, 0, FlagControlFlow, 0},
		def{0x79, "CALLINDIRECT", ShapeNone, 0, FlagControlFlow, 0},
	)
	op := Opcode(0x7A)
	for params := int32(0); params < 4; params++ {
		for returns := int32(0); returns < 4; returns++ {
			name := fmt.Sprintf("LEAVE_%d_%d", params, returns)
			t = append(t, def{op, name, ShapeImmLeave, 0, FlagTerminator, params<<8 | returns})
			op++
		}
	}
	t = append(t, pushConsts(0x8A, -1, 7)...)
	t = append(t, pushFloats(0x93, -1, 7)...)
	// Present in the interpreter's jump table but never emitted by the
	// compiler; decoded as single bytes.
	for b := 0x9C; b <= 0xAE; b++ {
		t = append(t, def{Opcode(b), fmt.Sprintf("UNK_%02X", b), ShapeNone, 0, 0, 0})
	}
	return t
}
