package isa

// GTA4 is the four-generation instruction set. Jumps and calls carry
// absolute u32 addresses, switch entries are 8 bytes, prologues are a
// fixed 4 bytes and small integers from -16 to 159 have one-byte pushes.
// Code is a single unpaged block and there is no NOP.
var GTA4 = register(newSet(Set{
	Name:        "gta4",
	Description: "four-generation VM (absolute jumps, hashed natives)",
	Switch:      SwitchLayout{EntrySize: 8, Relative: false},
	Native:      NativeHashed,
	J:           0x22,
}, gta4Table()))

func gta4Table() []def {
	t := seq(0x01, ShapeNone,
		"IADD", "ISUB", "IMUL", "IDIV", "IMOD", "INOT", "INEG",
		"IEQ", "INE", "IGT", "IGE", "ILT", "ILE",
		"FADD", "FSUB", "FMUL", "FDIV", "FMOD", "FNEG",
		"FEQ", "FNE", "FGT", "FGE", "FLT", "FLE",
		"VADD", "VSUB", "VMUL", "VDIV", "VNEG",
		"IAND", "IOR", "IXOR")
	t = append(t,
		def{0x22, "J", ShapeJumpAbs, BranchAlways, 0, 0},
		def{0x23, "JZ", ShapeJumpAbs, BranchIfZero, 0, 0},
		def{0x24, "JNZ", ShapeJumpAbs, BranchIfNonZero, 0, 0},
		def{0x25, "I2F", ShapeNone, 0, 0, 0},
		def{0x26, "F2I", ShapeNone, 0, 0, 0},
		def{0x27, "F2V", ShapeNone, 0, 0, 0},
		def{0x28, "PUSH_CONST_U16", ShapeU16, 0, 0, 0},
		def{0x29, "PUSH_CONST_U32", ShapeU32, 0, 0, 0},
		def{0x2A, "PUSH_CONST_F", ShapeF32, 0, 0, 0},
		def{0x2B, "DUP", ShapeNone, 0, 0, 0},
		def{0x2C, "DROP", ShapeNone, 0, 0, 0},
		def{0x2D, "NATIVE", ShapeNative, 0, 0, 0},
		def{0x2E, "CALL", ShapeCall32, 0, FlagCall, 0},
		def{0x2F, "ENTER", ShapeEnter, 0, FlagPrologue, 0},
		def{0x30, "LEAVE", ShapeLeave, 0, FlagTerminator, 0},
	)
	t = append(t, seq(0x31, ShapeNone,
		"LOAD", "STORE", "STORE_REV", "LOAD_N", "STORE_N",
		"LOCAL_0", "LOCAL_1", "LOCAL_2", "LOCAL_3", "LOCAL_4", "LOCAL_5", "LOCAL_6", "LOCAL_7",
		"LOCAL", "STATIC", "GLOBAL", "ARRAY")...)
	t = append(t,
		def{0x42, "SWITCH", ShapeSwitch, 0, FlagSwitch, 0},
		def{0x43, "STRING", ShapeString, 0, 0, 0},
		def{0x44, "NULL", ShapeNone, 0, 0, 0},
		def{0x45, "TEXT_LABEL_ASSIGN_STRING", ShapeU8, 0, 0, 0},
		def{0x46, "TEXT_LABEL_ASSIGN_INT", ShapeU8, 0, 0, 0},
		def{0x47, "TEXT_LABEL_APPEND_STRING", ShapeU8, 0, 0, 0},
		def{0x48, "TEXT_LABEL_APPEND_INT", ShapeU8, 0, 0, 0},
		def{0x49, "CATCH", ShapeNone, 0, 0, 0},
		def{0x4A, "THROW", ShapeNone, 0, FlagControlFlow, 0},
		def{0x4B, "TEXT_LABEL_COPY", ShapeNone, 0, 0, 0},
		def{0x4C, "XPROTECT_LOAD", ShapeNone, 0, 0, 0},
		def{0x4D, "XPROTECT_STORE", ShapeNone, 0, 0, 0},
		def{0x4E, "XPROTECT_REF", ShapeNone, 0, 0, 0},
	)
	t = append(t, pushConsts(0x50, -16, 159)...)
	return t
}
