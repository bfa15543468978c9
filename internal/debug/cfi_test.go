package debug

import (
	"errors"
	"testing"

	"github.com/kiln-lang/kiln/internal/codegen"
	"github.com/kiln-lang/kiln/internal/isa"
)

func newX64Table(t *testing.T) *FrameTable {
	t.Helper()
	tgt, err := isa.NewTarget(isa.X8664)
	if err != nil {
		t.Fatalf("NewTarget: %v", err)
	}

	return NewFrameTable(tgt)
}

func sysvLayout(cmds ...codegen.FrameCommand) codegen.FrameLayout {
	return codegen.FrameLayout{CallConv: isa.CallConvSystemV, Commands: cmds}
}

func TestCommonEntry_Defaults(t *testing.T) {
	ft := newX64Table(t)
	c := ft.Common
	if c.Version != 4 || c.AddressSize != 8 || c.CodeAlign != 1 || c.DataAlign != -8 || c.ReturnAddrReg != 16 {
		t.Fatalf("unexpected common entry header: %+v", c)
	}
	want := []CallFrameInstruction{DefCfa(isa.DwarfRSP, 8), Offset(16, 1)}
	if len(c.Initial) != len(want) {
		t.Fatalf("initial instructions = %v, want %v", c.Initial, want)
	}
	for i := range want {
		if c.Initial[i] != want[i] {
			t.Fatalf("initial[%d] = %+v, want %+v", i, c.Initial[i], want[i])
		}
	}
}

func TestAddFunc_RepeatedCFADefinitionEmitsNothing(t *testing.T) {
	ft := newX64Table(t)
	// Entry state is already (rsp, 8); redefining it twice must collapse to
	// zero CFA instructions.
	layout := sysvLayout(
		codegen.FrameCommand{Kind: codegen.CmdCFAAt, Reg: isa.RSP, Offset: 8},
		codegen.FrameCommand{Kind: codegen.CmdCFAAt, Reg: isa.RSP, Offset: 8},
	)
	if err := ft.AddFunc(layout, 16); err != nil {
		t.Fatalf("AddFunc: %v", err)
	}
	if n := len(ft.Funcs[0].Instructions); n != 0 {
		t.Fatalf("expected no instructions for repeated state, got %v", ft.Funcs[0].Instructions)
	}
}

func TestAddFunc_BothChangedEmitsSingleDefCfa(t *testing.T) {
	ft := newX64Table(t)
	layout := sysvLayout(
		codegen.FrameCommand{Kind: codegen.CmdCFAAt, Reg: isa.RBP, Offset: 16},
	)
	if err := ft.AddFunc(layout, 16); err != nil {
		t.Fatalf("AddFunc: %v", err)
	}
	ins := ft.Funcs[0].Instructions
	if len(ins) != 1 || ins[0] != DefCfa(isa.DwarfRBP, 16) {
		t.Fatalf("expected single DefCfa(rbp, 16), got %v", ins)
	}
}

func TestAddFunc_OnlyOffsetChanged(t *testing.T) {
	ft := newX64Table(t)
	layout := sysvLayout(
		codegen.FrameCommand{Kind: codegen.CmdCFAAt, Reg: isa.RSP, Offset: 16},
	)
	if err := ft.AddFunc(layout, 16); err != nil {
		t.Fatalf("AddFunc: %v", err)
	}
	ins := ft.Funcs[0].Instructions
	if len(ins) != 1 || ins[0] != DefCfaOffset(16) {
		t.Fatalf("expected single DefCfaOffset(16), got %v", ins)
	}
}

func TestAddFunc_OnlyRegisterChanged(t *testing.T) {
	ft := newX64Table(t)
	layout := sysvLayout(
		codegen.FrameCommand{Kind: codegen.CmdCFAAt, Reg: isa.RBP, Offset: 8},
	)
	if err := ft.AddFunc(layout, 16); err != nil {
		t.Fatalf("AddFunc: %v", err)
	}
	ins := ft.Funcs[0].Instructions
	if len(ins) != 1 || ins[0] != DefCfaRegister(isa.DwarfRBP) {
		t.Fatalf("expected single DefCfaRegister(rbp), got %v", ins)
	}
}

func TestAddFunc_SavedRegisterFactoredOffset(t *testing.T) {
	ft := newX64Table(t)
	layout := sysvLayout(
		codegen.FrameCommand{Kind: codegen.CmdRegAt, Reg: isa.RBX, Offset: -16},
	)
	if err := ft.AddFunc(layout, 16); err != nil {
		t.Fatalf("AddFunc: %v", err)
	}
	ins := ft.Funcs[0].Instructions
	if len(ins) != 1 || ins[0] != Offset(isa.DwarfRBX, 2) {
		t.Fatalf("expected Offset(rbx, 2), got %v", ins)
	}
}

func TestAddFunc_MisalignedSavedRegisterFails(t *testing.T) {
	ft := newX64Table(t)
	layout := sysvLayout(
		codegen.FrameCommand{Kind: codegen.CmdRegAt, Reg: isa.RBX, Offset: -15},
	)
	if err := ft.AddFunc(layout, 16); !errors.Is(err, ErrMisalignedOffset) {
		t.Fatalf("expected ErrMisalignedOffset, got %v", err)
	}
}

func TestAddFunc_MoveLocationBecomesAdvanceLoc(t *testing.T) {
	ft := newX64Table(t)
	layout := sysvLayout(
		codegen.FrameCommand{Kind: codegen.CmdMoveLocationBy, Delta: 1},
		codegen.FrameCommand{Kind: codegen.CmdCFAAt, Reg: isa.RSP, Offset: 16},
		codegen.FrameCommand{Kind: codegen.CmdMoveLocationBy, Delta: 3},
		codegen.FrameCommand{Kind: codegen.CmdCFAAt, Reg: isa.RBP, Offset: 16},
	)
	if err := ft.AddFunc(layout, 16); err != nil {
		t.Fatalf("AddFunc: %v", err)
	}
	want := []CallFrameInstruction{
		AdvanceLoc(1),
		DefCfaOffset(16),
		AdvanceLoc(3),
		DefCfaRegister(isa.DwarfRBP),
	}
	ins := ft.Funcs[0].Instructions
	if len(ins) != len(want) {
		t.Fatalf("instructions = %v, want %v", ins, want)
	}
	for i := range want {
		if ins[i] != want[i] {
			t.Fatalf("instruction %d = %+v, want %+v", i, ins[i], want[i])
		}
	}
}

func TestAddFunc_UnsupportedCallConv(t *testing.T) {
	ft := newX64Table(t)
	layout := codegen.FrameLayout{CallConv: isa.CallConvWindowsFastcall}
	if err := ft.AddFunc(layout, 16); !errors.Is(err, ErrUnsupportedCallConv) {
		t.Fatalf("expected ErrUnsupportedCallConv, got %v", err)
	}
}

func TestAddFunc_FPRSavedRegisterRejected(t *testing.T) {
	ft := newX64Table(t)
	layout := sysvLayout(
		codegen.FrameCommand{Kind: codegen.CmdRegAt, Reg: isa.XMM0, Offset: -16},
	)
	if err := ft.AddFunc(layout, 16); !errors.Is(err, isa.ErrUnsupportedRegisterBank) {
		t.Fatalf("expected ErrUnsupportedRegisterBank, got %v", err)
	}
}
