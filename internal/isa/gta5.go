package isa

import "strconv"

// GTA5 is the five-generation instruction set: relative s16 jumps,
// absolute u24 calls, named prologues and 6-byte switch entries.
var GTA5 = register(newSet(Set{
	Name:          "gta5",
	Description:   "five-generation VM (relative jumps, u24 calls)",
	PageSize:      0x4000,
	NamedPrologue: true,
	Switch:        SwitchLayout{EntrySize: 6, Relative: true},
	Native:        NativePacked,
	NOP:           0x00,
	J:             0x55,
	HasNOP:        true,
}, gta5Table()))

func gta5Table() []def {
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
		"IADD_U8", "IMUL_U8")...)
	t = append(t, def{0x3F, "IOFFSET", ShapeNone, 0, 0, 0})
	t = append(t, seq(0x40, ShapeU8, "IOFFSET_U8", "IOFFSET_U8_LOAD", "IOFFSET_U8_STORE")...)
	t = append(t, seq(0x43, ShapeS16,
		"PUSH_CONST_S16", "IADD_S16", "IMUL_S16",
		"IOFFSET_S16", "IOFFSET_S16_LOAD", "IOFFSET_S16_STORE")...)
	t = append(t, seq(0x49, ShapeU16,
		"ARRAY_U16", "ARRAY_U16_LOAD", "ARRAY_U16_STORE",
		"LOCAL_U16", "LOCAL_U16_LOAD", "LOCAL_U16_STORE",
		"STATIC_U16", "STATIC_U16_LOAD", "STATIC_U16_STORE",
		"GLOBAL_U16", "GLOBAL_U16_LOAD", "GLOBAL_U16_STORE")...)
	t = append(t, def{0x55, "J", ShapeJumpRel, BranchAlways, 0, 0})
	for i, name := range []string{"JZ", "IEQ_JZ", "INE_JZ", "IGT_JZ", "IGE_JZ", "ILT_JZ", "ILE_JZ"} {
		t = append(t, def{Opcode(0x56 + i), name, ShapeJumpRel, BranchIfZero, 0, 0})
	}
	t = append(t,
		def{0x5D, "CALL", ShapeCall24, 0, FlagCall, 0},
		def{0x5E, "GLOBAL_U24", ShapeU24, 0, 0, 0},
		def{0x5F, "GLOBAL_U24_LOAD", ShapeU24, 0, 0, 0},
		def{0x60, "GLOBAL_U24_STORE", ShapeU24, 0, 0, 0},
		def{0x61, "PUSH_CONST_U24", ShapeU24, 0, 0, 0},
		def{0x62, "SWITCH", ShapeSwitch, 0, FlagSwitch, 0},
		def{0x63, "STRING", ShapeNone, 0, 0, 0},
		def{0x64, "STRINGHASH", ShapeNone, 0, 0, 0},
		def{0x65, "TEXT_LABEL_ASSIGN_STRING", ShapeU8, 0, 0, 0},
		def{0x66, "TEXT_LABEL_ASSIGN_INT", ShapeU8, 0, 0, 0},
		def{0x67, "TEXT_LABEL_APPEND_STRING", ShapeU8, 0, 0, 0},
		def{0x68, "TEXT_LABEL_APPEND_INT", ShapeU8, 0, 0, 0},
		def{0x69, "TEXT_LABEL_COPY", ShapeNone, 0, 0, 0},
		def{0x6A, "CATCH", ShapeNone, 0, 0, 0},
		def{0x6B, "THROW", ShapeNone, 0, FlagControlFlow, 0},
		def{0x6C, "CALLINDIRECT", ShapeNone, 0, FlagControlFlow, 0},
	)
	t = append(t, pushConsts(0x6D, -1, 7)...)
	t = append(t, pushFloats(0x76, -1, 7)...)
	return t
}

// seq numbers names consecutively from first, all with the same shape.
func seq(first Opcode, shape Shape, names ...string) []def {
	out := make([]def, len(names))
	for i, n := range names {
		out[i] = def{first + Opcode(i), n, shape, 0, 0, 0}
	}
	return out
}

// pushConsts builds PUSH_CONST_<v> rows for lo..hi. Negative constants are
// spelled with an M prefix (PUSH_CONST_M1).
func pushConsts(first Opcode, lo, hi int32) []def {
	var out []def
	for v := lo; v <= hi; v++ {
		out = append(out, def{first + Opcode(v-lo), "PUSH_CONST_" + constSuffix(v), ShapeImmInt, 0, 0, v})
	}
	return out
}

func pushFloats(first Opcode, lo, hi int32) []def {
	var out []def
	for v := lo; v <= hi; v++ {
		out = append(out, def{first + Opcode(v-lo), "PUSH_CONST_F" + constSuffix(v), ShapeImmFloat, 0, 0, v})
	}
	return out
}

func constSuffix(v int32) string {
	if v < 0 {
		return "M" + strconv.Itoa(int(-v))
	}
	return strconv.Itoa(int(v))
}
