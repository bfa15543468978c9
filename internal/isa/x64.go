package isa

// x86_64 register file. The ordinals are backend-internal; only the names
// are stable, which is why the DWARF table is keyed by name.
const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	// RA is the pseudo register for the return address slot. It has no
	// encoding in machine code but unwind tables refer to it.
	RA
	XMM0
	XMM1
	XMM2
	XMM3
	XMM4
	XMM5
	XMM6
	XMM7

	numX64Regs = int(XMM7) + 1
)

var x64RegNames = [numX64Regs]string{
	RAX: "rax", RCX: "rcx", RDX: "rdx", RBX: "rbx",
	RSP: "rsp", RBP: "rbp", RSI: "rsi", RDI: "rdi",
	R8: "r8", R9: "r9", R10: "r10", R11: "r11",
	R12: "r12", R13: "r13", R14: "r14", R15: "r15",
	RA:   "ra",
	XMM0: "xmm0", XMM1: "xmm1", XMM2: "xmm2", XMM3: "xmm3",
	XMM4: "xmm4", XMM5: "xmm5", XMM6: "xmm6", XMM7: "xmm7",
}

var x64RegBanks = [numX64Regs]bankID{
	RAX: bankGPR, RCX: bankGPR, RDX: bankGPR, RBX: bankGPR,
	RSP: bankGPR, RBP: bankGPR, RSI: bankGPR, RDI: bankGPR,
	R8: bankGPR, R9: bankGPR, R10: bankGPR, R11: bankGPR,
	R12: bankGPR, R13: bankGPR, R14: bankGPR, R15: bankGPR,
	RA:   bankGPR,
	XMM0: bankFPR, XMM1: bankFPR, XMM2: bankFPR, XMM3: bankFPR,
	XMM4: bankFPR, XMM5: bankFPR, XMM6: bankFPR, XMM7: bankFPR,
}

// DWARF register numbers for x86_64 (System V ABI, table 3.36).
const (
	DwarfRAX DwarfReg = 0
	DwarfRDX DwarfReg = 1
	DwarfRCX DwarfReg = 2
	DwarfRBX DwarfReg = 3
	DwarfRSI DwarfReg = 4
	DwarfRDI DwarfReg = 5
	DwarfRBP DwarfReg = 6
	DwarfRSP DwarfReg = 7
	DwarfRA  DwarfReg = 16
)

var x64DwarfByName = map[string]DwarfReg{
	"rax": DwarfRAX,
	"rdx": DwarfRDX,
	"rcx": DwarfRCX,
	"rbx": DwarfRBX,
	"rsi": DwarfRSI,
	"rdi": DwarfRDI,
	"rbp": DwarfRBP,
	"rsp": DwarfRSP,
	"r8":  8,
	"r9":  9,
	"r10": 10,
	"r11": 11,
	"r12": 12,
	"r13": 13,
	"r14": 14,
	"r15": 15,
	"ra":  DwarfRA,
}
