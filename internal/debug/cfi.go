package debug

import (
	"errors"
	"fmt"

	"github.com/kiln-lang/kiln/internal/codegen"
	"github.com/kiln-lang/kiln/internal/isa"
)

// CFIOp tags a CallFrameInstruction variant.
type CFIOp uint8

const (
	// OpAdvanceLoc advances the current code location by Delta bytes.
	OpAdvanceLoc CFIOp = iota
	// OpDefCfa sets both the CFA register and its byte offset.
	OpDefCfa
	// OpDefCfaRegister changes only the CFA register.
	OpDefCfaRegister
	// OpDefCfaOffset changes only the CFA byte offset.
	OpDefCfaOffset
	// OpOffset records that Reg is saved at CFA plus Offset data-alignment
	// units.
	OpOffset
)

// CallFrameInstruction is one unwind-table instruction. Delta is used by
// OpAdvanceLoc; Reg by the register-bearing ops; Offset is a byte offset
// for the CFA ops and a factored offset for OpOffset.
type CallFrameInstruction struct {
	Op     CFIOp
	Delta  uint32
	Reg    isa.DwarfReg
	Offset int64
}

func AdvanceLoc(delta uint32) CallFrameInstruction {
	return CallFrameInstruction{Op: OpAdvanceLoc, Delta: delta}
}

func DefCfa(reg isa.DwarfReg, offset int64) CallFrameInstruction {
	return CallFrameInstruction{Op: OpDefCfa, Reg: reg, Offset: offset}
}

func DefCfaRegister(reg isa.DwarfReg) CallFrameInstruction {
	return CallFrameInstruction{Op: OpDefCfaRegister, Reg: reg}
}

func DefCfaOffset(offset int64) CallFrameInstruction {
	return CallFrameInstruction{Op: OpDefCfaOffset, Offset: offset}
}

func Offset(reg isa.DwarfReg, factored int64) CallFrameInstruction {
	return CallFrameInstruction{Op: OpOffset, Reg: reg, Offset: factored}
}

var (
	// ErrUnsupportedCallConv rejects functions whose calling convention
	// does not carry the System V frame setup the table describes.
	ErrUnsupportedCallConv = errors.New("calling convention has no supported frame layout")
	// ErrMisalignedOffset rejects saved-register offsets that are not an
	// exact multiple of the data alignment factor. This is an upstream
	// code-generation bug, never a value to round.
	ErrMisalignedOffset = errors.New("saved-register offset not a multiple of the data alignment factor")
	// ErrUnencodableOffset rejects offsets the compact encodings cannot
	// represent (negative where an unsigned field is required).
	ErrUnencodableOffset = errors.New("offset not representable in unwind encoding")
)

// CommonEntry is the shared header entry referenced by every function
// entry: format version, alignment factors, the return-address register,
// and the initial instructions describing the calling-convention default
// state at function entry.
type CommonEntry struct {
	Version       uint8
	AddressSize   uint8
	CodeAlign     uint64
	DataAlign     int64
	ReturnAddrReg isa.DwarfReg
	Initial       []CallFrameInstruction
}

// FuncEntry is the per-function entry: its code length and the instruction
// stream describing how the frame state evolves over that range. The
// initial code address is a placeholder until relocation.
type FuncEntry struct {
	CodeLen      uint32
	Instructions []CallFrameInstruction
}

// FrameTable owns one CommonEntry and the FuncEntry records built from each
// function's frame-layout command stream. It must not be shared across
// goroutines while functions are being added.
type FrameTable struct {
	target *isa.Target
	Common CommonEntry
	Funcs  []FuncEntry
}

// NewFrameTable builds the table header for the target: version 4, the
// target's alignment factors, and the entry-state instructions (CFA at the
// stack pointer plus the return-address size, return address saved in the
// first slot below the CFA).
func NewFrameTable(t *isa.Target) *FrameTable {
	cfaReg, cfaOff := t.EntryCFA()

	return &FrameTable{
		target: t,
		Common: CommonEntry{
			Version:       4,
			AddressSize:   uint8(t.PointerSize),
			CodeAlign:     t.CodeAlignFactor(),
			DataAlign:     t.DataAlignFactor(),
			ReturnAddrReg: t.ReturnAddrReg(),
			Initial: []CallFrameInstruction{
				DefCfa(cfaReg, cfaOff),
				Offset(t.ReturnAddrReg(), -cfaOff/t.DataAlignFactor()),
			},
		},
	}
}

// cfaState is the running CFA definition the tracker compares each
// directive against. Only actual changes become instructions; an unwinder
// replays definition state, not every write.
type cfaState struct {
	reg isa.DwarfReg
	off int64
}

// AddFunc compresses one function's frame-layout command stream into a
// FuncEntry. The calling convention must be one the table's entry state
// describes.
func (ft *FrameTable) AddFunc(layout codegen.FrameLayout, codeLen uint32) error {
	if !layout.CallConv.HasSystemVPrologue() {
		return fmt.Errorf("%w: %s", ErrUnsupportedCallConv, layout.CallConv)
	}

	reg, off := ft.target.EntryCFA()
	st := cfaState{reg: reg, off: off}

	var ins []CallFrameInstruction
	for _, cmd := range layout.Commands {
		switch cmd.Kind {
		case codegen.CmdMoveLocationBy:
			ins = append(ins, AdvanceLoc(cmd.Delta))

		case codegen.CmdCFAAt:
			mapped, err := ft.target.DwarfReg(cmd.Reg)
			if err != nil {
				return err
			}
			// Evaluate both change flags independently; together they pick
			// the narrowest instruction that reaches the new state.
			regChanged := mapped != st.reg
			offChanged := cmd.Offset != st.off
			switch {
			case regChanged && offChanged:
				st = cfaState{reg: mapped, off: cmd.Offset}
				ins = append(ins, DefCfa(mapped, cmd.Offset))
			case offChanged:
				st.off = cmd.Offset
				ins = append(ins, DefCfaOffset(cmd.Offset))
			case regChanged:
				st.reg = mapped
				ins = append(ins, DefCfaRegister(mapped))
			}

		case codegen.CmdRegAt:
			if cmd.Offset%ft.Common.DataAlign != 0 {
				return fmt.Errorf("%w: offset %d, factor %d", ErrMisalignedOffset, cmd.Offset, ft.Common.DataAlign)
			}
			factored := cmd.Offset / ft.Common.DataAlign
			if factored < 0 {
				return fmt.Errorf("%w: factored offset %d", ErrUnencodableOffset, factored)
			}
			mapped, err := ft.target.DwarfReg(cmd.Reg)
			if err != nil {
				return err
			}
			ins = append(ins, Offset(mapped, factored))

		default:
			panic(fmt.Sprintf("debug: unknown frame command kind %d", cmd.Kind))
		}
	}

	ft.Funcs = append(ft.Funcs, FuncEntry{CodeLen: codeLen, Instructions: ins})

	return nil
}
