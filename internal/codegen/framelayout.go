package codegen

import (
	"fmt"
	"sort"

	"github.com/kiln-lang/kiln/internal/isa"
	"github.com/kiln-lang/kiln/internal/module"
)

// FrameChangeKind tags a raw frame-change directive attached to an emitted
// instruction by the backend.
type FrameChangeKind uint8

const (
	// FrameCFAAt declares that the canonical frame address is now at
	// Reg + Offset after this instruction.
	FrameCFAAt FrameChangeKind = iota
	// FrameRegAt declares that Reg's entry value is saved at CFA + Offset.
	FrameRegAt
)

// FrameChange is one raw directive. Offset is the CFA offset for FrameCFAAt
// and the saved-slot offset relative to the CFA for FrameRegAt.
type FrameChange struct {
	Kind   FrameChangeKind
	Reg    isa.Reg
	Offset int64
}

// FrameCommandKind tags a FrameCommand variant.
type FrameCommandKind uint8

const (
	// CmdMoveLocationBy advances the code location by Delta bytes.
	CmdMoveLocationBy FrameCommandKind = iota
	// CmdCFAAt sets the canonical frame address to Reg + Offset.
	CmdCFAAt
	// CmdRegAt records that Reg is saved at CFA + Offset.
	CmdRegAt
)

// FrameCommand is one entry in a function's frame-layout command stream.
// The stream is ordered; the cumulative code offset strictly increases
// between successive CmdMoveLocationBy entries.
type FrameCommand struct {
	Kind   FrameCommandKind `cbor:"kind"`
	Delta  uint32           `cbor:"delta,omitempty"`
	Reg    isa.Reg          `cbor:"reg,omitempty"`
	Offset int64            `cbor:"offset,omitempty"`
}

// FrameLayout is the frame-layout command stream of one compiled function
// plus the calling convention it was compiled under.
type FrameLayout struct {
	CallConv isa.CallConv   `cbor:"call_conv"`
	Commands []FrameCommand `cbor:"commands"`
}

// InstructionMeta describes one emitted machine instruction: its code
// offset and size, the source location it lowers, and any frame-change
// directives that take effect once it has executed.
type InstructionMeta struct {
	Offset       uint32
	Size         uint32
	Src          module.SourceLoc
	FrameChanges []FrameChange
}

// BlockMeta groups the instructions of one basic block in emission order.
// Offset is the block's emitted code offset; block layout may differ from
// declaration order, so consumers must sort by it.
type BlockMeta struct {
	Offset uint32
	Insts  []InstructionMeta
}

// sortedBlocks returns blocks ordered by emitted offset without mutating
// the input.
func sortedBlocks(blocks []BlockMeta) []BlockMeta {
	out := make([]BlockMeta, len(blocks))
	copy(out, blocks)
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })

	return out
}

// ExtractFrameLayout derives the ordered frame-layout command stream from a
// function's instruction metadata. For every instruction carrying frame
// changes it emits a single CmdMoveLocationBy covering the gap since the
// previous frame-affecting instruction, then one command per directive.
//
// Offsets must strictly increase across frame-affecting instructions; a
// violation means the backend emitted broken metadata and is a panic, not
// an error.
func ExtractFrameLayout(blocks []BlockMeta) []FrameCommand {
	var out []FrameCommand

	last := uint32(0)
	for _, b := range sortedBlocks(blocks) {
		for _, inst := range b.Insts {
			if len(inst.FrameChanges) == 0 {
				continue
			}
			end := inst.Offset + inst.Size
			if end <= last {
				panic(fmt.Sprintf("codegen: frame change at offset %d not after previous frame change at %d", end, last))
			}
			if delta := end - last; delta != 0 {
				out = append(out, FrameCommand{Kind: CmdMoveLocationBy, Delta: delta})
			}
			for _, c := range inst.FrameChanges {
				switch c.Kind {
				case FrameCFAAt:
					out = append(out, FrameCommand{Kind: CmdCFAAt, Reg: c.Reg, Offset: c.Offset})
				case FrameRegAt:
					out = append(out, FrameCommand{Kind: CmdRegAt, Reg: c.Reg, Offset: c.Offset})
				default:
					panic(fmt.Sprintf("codegen: unrepresentable frame-change kind %d", c.Kind))
				}
			}
			last = end
		}
	}

	return out
}

// InstAddress maps one emitted instruction back to its source location.
type InstAddress struct {
	Src        module.SourceLoc `cbor:"src"`
	CodeOffset uint32           `cbor:"code_offset"`
	CodeLen    uint32           `cbor:"code_len"`
}

// FuncAddressMap is the emitted-offset to source-location transform for one
// function.
type FuncAddressMap struct {
	Insts      []InstAddress `cbor:"insts"`
	BodyOffset uint32        `cbor:"body_offset"`
	BodyLen    uint32        `cbor:"body_len"`
}

// BuildAddressMap flattens instruction metadata into an address transform,
// in ascending emitted-offset order.
func BuildAddressMap(blocks []BlockMeta, bodyLen uint32) FuncAddressMap {
	var insts []InstAddress
	for _, b := range sortedBlocks(blocks) {
		for _, inst := range b.Insts {
			insts = append(insts, InstAddress{Src: inst.Src, CodeOffset: inst.Offset, CodeLen: inst.Size})
		}
	}

	return FuncAddressMap{Insts: insts, BodyLen: bodyLen}
}
