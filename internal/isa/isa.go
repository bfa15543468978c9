// Package isa describes the target architectures kiln generates code for:
// register files, calling conventions, pointer width, and the mapping from
// backend registers to the canonical DWARF register numbering used by the
// unwind tables.
package isa

import (
	"errors"
	"fmt"
)

// Arch identifies a supported target architecture.
type Arch string

const (
	// X8664 is the reference architecture. It is currently the only one with
	// a complete register mapping.
	X8664 Arch = "x86_64"
)

// CallConv identifies the calling convention a function was compiled with.
type CallConv uint8

const (
	CallConvSystemV CallConv = iota
	CallConvFast
	CallConvCold
	CallConvWindowsFastcall
)

func (c CallConv) String() string {
	switch c {
	case CallConvSystemV:
		return "system_v"
	case CallConvFast:
		return "fast"
	case CallConvCold:
		return "cold"
	case CallConvWindowsFastcall:
		return "windows_fastcall"
	default:
		return fmt.Sprintf("callconv(%d)", uint8(c))
	}
}

// HasSystemVPrologue reports whether functions compiled with this convention
// carry the System V frame setup the unwind synthesis expects.
func (c CallConv) HasSystemVPrologue() bool {
	return c == CallConvSystemV || c == CallConvFast || c == CallConvCold
}

// Reg is a backend register identifier, meaningful only relative to a
// target's register file.
type Reg uint8

// DwarfReg is a canonical register number in the DWARF register numbering
// for the target architecture.
type DwarfReg uint16

// Register translation failures. These signal configuration or code
// generation bugs and abort the current compile unit.
var (
	ErrUnsupportedArchitecture = errors.New("register mapping is only implemented for x86_64")
	ErrUnsupportedRegisterBank = errors.New("unsupported register bank")
	ErrMissingBank             = errors.New("no register bank for register")
)

// Target carries everything the backend and the unwind synthesis need to
// know about one architecture. The DWARF register table is built once in
// NewTarget and never mutated, so a single Target may be shared by any
// number of concurrent compile tasks.
type Target struct {
	Arch        Arch
	PointerSize int

	dwarf []int32 // indexed by Reg; -1 marks an unmapped register
	names []string
	banks []bankID
}

type bankID uint8

const (
	bankNone bankID = iota
	bankGPR
	bankFPR
)

// NewTarget builds the immutable description for arch. Only X8664 is
// supported; any other tag fails with ErrUnsupportedArchitecture.
func NewTarget(arch Arch) (*Target, error) {
	if arch != X8664 {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedArchitecture, arch)
	}

	t := &Target{
		Arch:        X8664,
		PointerSize: 8,
		dwarf:       make([]int32, numX64Regs),
		names:       make([]string, numX64Regs),
		banks:       make([]bankID, numX64Regs),
	}
	for i := range t.dwarf {
		t.dwarf[i] = -1
	}
	// The table is keyed by register name so the numbering stays aligned with
	// what the platform ABI documents, not with backend ordinals.
	for r, name := range x64RegNames {
		t.names[r] = name
		t.banks[r] = x64RegBanks[r]
		if t.banks[r] != bankGPR {
			continue
		}
		n, ok := x64DwarfByName[name]
		if !ok {
			continue
		}
		t.dwarf[r] = int32(n)
	}

	return t, nil
}

// DwarfReg translates a backend register to its DWARF number.
func (t *Target) DwarfReg(r Reg) (DwarfReg, error) {
	if int(r) >= len(t.banks) || t.banks[r] == bankNone {
		return 0, fmt.Errorf("%w: r%d", ErrMissingBank, r)
	}
	if t.banks[r] != bankGPR {
		return 0, fmt.Errorf("%w: %s (%s)", ErrUnsupportedRegisterBank, bankName(t.banks[r]), t.names[r])
	}
	n := t.dwarf[r]
	if n < 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedRegisterBank, t.names[r])
	}

	return DwarfReg(n), nil
}

// RegName returns the assembly-level name of a backend register.
func (t *Target) RegName(r Reg) string {
	if int(r) >= len(t.names) {
		return fmt.Sprintf("r?%d", r)
	}

	return t.names[r]
}

// ReturnAddrReg is the DWARF register holding the return address.
func (t *Target) ReturnAddrReg() DwarfReg { return DwarfRA }

// EntryCFA is the canonical frame address at function entry for the target's
// calling conventions: stack pointer plus the pushed return address.
func (t *Target) EntryCFA() (DwarfReg, int64) {
	return DwarfRSP, int64(t.PointerSize)
}

// CodeAlignFactor and DataAlignFactor are the factors shared by every unwind
// entry emitted for this target.
func (t *Target) CodeAlignFactor() uint64 { return 1 }
func (t *Target) DataAlignFactor() int64  { return -8 }

func bankName(b bankID) string {
	switch b {
	case bankGPR:
		return "gpr"
	case bankFPR:
		return "fpr"
	default:
		return "none"
	}
}
