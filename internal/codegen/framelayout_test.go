package codegen

import (
	"testing"

	"github.com/kiln-lang/kiln/internal/isa"
)

func TestExtractFrameLayout_NoDirectives(t *testing.T) {
	blocks := []BlockMeta{
		{Offset: 0, Insts: []InstructionMeta{
			{Offset: 0, Size: 1},
			{Offset: 1, Size: 3},
		}},
	}
	if cmds := ExtractFrameLayout(blocks); len(cmds) != 0 {
		t.Fatalf("expected no commands, got %v", cmds)
	}
}

func TestExtractFrameLayout_SharedMoveForOneInstruction(t *testing.T) {
	// Two directives on one instruction share a single MoveLocationBy.
	blocks := []BlockMeta{
		{Offset: 0, Insts: []InstructionMeta{
			{Offset: 0, Size: 1, FrameChanges: []FrameChange{
				{Kind: FrameCFAAt, Reg: isa.RSP, Offset: 16},
				{Kind: FrameRegAt, Reg: isa.RBP, Offset: -16},
			}},
		}},
	}
	cmds := ExtractFrameLayout(blocks)
	want := []FrameCommand{
		{Kind: CmdMoveLocationBy, Delta: 1},
		{Kind: CmdCFAAt, Reg: isa.RSP, Offset: 16},
		{Kind: CmdRegAt, Reg: isa.RBP, Offset: -16},
	}
	if len(cmds) != len(want) {
		t.Fatalf("commands = %v, want %v", cmds, want)
	}
	for i := range want {
		if cmds[i] != want[i] {
			t.Fatalf("command %d = %+v, want %+v", i, cmds[i], want[i])
		}
	}
}

func TestExtractFrameLayout_DeltaIsGapSinceLastChange(t *testing.T) {
	blocks := []BlockMeta{
		{Offset: 0, Insts: []InstructionMeta{
			{Offset: 0, Size: 1, FrameChanges: []FrameChange{{Kind: FrameCFAAt, Reg: isa.RSP, Offset: 16}}},
			{Offset: 1, Size: 3}, // no frame effect, widens the next delta
			{Offset: 4, Size: 3, FrameChanges: []FrameChange{{Kind: FrameCFAAt, Reg: isa.RBP, Offset: 16}}},
		}},
	}
	cmds := ExtractFrameLayout(blocks)
	if cmds[0].Delta != 1 {
		t.Fatalf("first delta = %d, want 1", cmds[0].Delta)
	}
	if cmds[2].Kind != CmdMoveLocationBy || cmds[2].Delta != 6 {
		t.Fatalf("second move = %+v, want MoveLocationBy(6)", cmds[2])
	}
}

func TestExtractFrameLayout_BlocksSortedByEmittedOffset(t *testing.T) {
	// Declaration order has the later block first; extraction must follow
	// emitted offsets.
	blocks := []BlockMeta{
		{Offset: 8, Insts: []InstructionMeta{
			{Offset: 8, Size: 2, FrameChanges: []FrameChange{{Kind: FrameCFAAt, Reg: isa.RBP, Offset: 16}}},
		}},
		{Offset: 0, Insts: []InstructionMeta{
			{Offset: 0, Size: 1, FrameChanges: []FrameChange{{Kind: FrameCFAAt, Reg: isa.RSP, Offset: 16}}},
		}},
	}
	cmds := ExtractFrameLayout(blocks)
	if len(cmds) != 4 {
		t.Fatalf("commands = %v", cmds)
	}
	if cmds[0].Delta != 1 || cmds[2].Delta != 9 {
		t.Fatalf("deltas = %d, %d; want 1, 9", cmds[0].Delta, cmds[2].Delta)
	}
	if cmds[1].Reg != isa.RSP || cmds[3].Reg != isa.RBP {
		t.Fatalf("commands out of emitted order: %v", cmds)
	}
}

func TestExtractFrameLayout_NonIncreasingOffsetPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for non-increasing offsets")
		}
	}()
	blocks := []BlockMeta{
		{Offset: 0, Insts: []InstructionMeta{
			{Offset: 0, Size: 4, FrameChanges: []FrameChange{{Kind: FrameCFAAt, Reg: isa.RSP, Offset: 16}}},
			{Offset: 1, Size: 2, FrameChanges: []FrameChange{{Kind: FrameCFAAt, Reg: isa.RBP, Offset: 16}}},
		}},
	}
	ExtractFrameLayout(blocks)
}

func TestExtractFrameLayout_UnknownDirectiveKindPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for unrepresentable directive kind")
		}
	}()
	blocks := []BlockMeta{
		{Offset: 0, Insts: []InstructionMeta{
			{Offset: 0, Size: 1, FrameChanges: []FrameChange{{Kind: FrameChangeKind(99)}}},
		}},
	}
	ExtractFrameLayout(blocks)
}

func TestBuildAddressMap_FollowsEmittedOrder(t *testing.T) {
	blocks := []BlockMeta{
		{Offset: 4, Insts: []InstructionMeta{{Offset: 4, Size: 2, Src: 30}}},
		{Offset: 0, Insts: []InstructionMeta{{Offset: 0, Size: 4, Src: 10}}},
	}
	m := BuildAddressMap(blocks, 6)
	if m.BodyLen != 6 {
		t.Fatalf("BodyLen = %d, want 6", m.BodyLen)
	}
	if len(m.Insts) != 2 || m.Insts[0].Src != 10 || m.Insts[1].Src != 30 {
		t.Fatalf("address map out of order: %+v", m.Insts)
	}
}
