package codegen

import (
	"fmt"

	"github.com/kiln-lang/kiln/internal/module"
)

// RelocKind is the width/addressing class of a code relocation.
type RelocKind uint8

const (
	// RelocAbs8 is an absolute 64-bit address.
	RelocAbs8 RelocKind = iota
	// RelocPCRel4 is a 32-bit PC-relative displacement.
	RelocPCRel4
)

func (k RelocKind) String() string {
	switch k {
	case RelocAbs8:
		return "abs8"
	case RelocPCRel4:
		return "pcrel4"
	default:
		return fmt.Sprintf("reloc(%d)", uint8(k))
	}
}

// RelocTargetKind classifies what a relocation refers to.
type RelocTargetKind uint8

const (
	// TargetFunc is a direct reference to a defined function.
	TargetFunc RelocTargetKind = iota
	// TargetMemoryGrow and TargetMemorySize are the built-in memory
	// operations; the Imported variants are their host-provided forms.
	TargetMemoryGrow
	TargetMemorySize
	TargetImportedMemoryGrow
	TargetImportedMemorySize
	// TargetLibCall is a runtime-library routine identified by name.
	TargetLibCall
)

func (k RelocTargetKind) String() string {
	switch k {
	case TargetFunc:
		return "func"
	case TargetMemoryGrow:
		return "memory.grow"
	case TargetMemorySize:
		return "memory.size"
	case TargetImportedMemoryGrow:
		return "imported memory.grow"
	case TargetImportedMemorySize:
		return "imported memory.size"
	case TargetLibCall:
		return "libcall"
	default:
		return fmt.Sprintf("target(%d)", uint8(k))
	}
}

// RelocTarget names the symbol a relocation binds to. Func is meaningful
// only for TargetFunc, LibCall only for TargetLibCall.
type RelocTarget struct {
	Kind    RelocTargetKind  `cbor:"kind"`
	Func    module.FuncIndex `cbor:"func,omitempty"`
	LibCall string           `cbor:"libcall,omitempty"`
}

// Relocation records one deferred address patch in a function's code.
type Relocation struct {
	Kind   RelocKind   `cbor:"kind"`
	Offset uint32      `cbor:"offset"`
	Addend int64       `cbor:"addend"`
	Target RelocTarget `cbor:"target"`
}
