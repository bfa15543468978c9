package isa

import (
	"errors"
	"testing"
)

func TestNewTarget_UnsupportedArch(t *testing.T) {
	_, err := NewTarget("aarch64")
	if !errors.Is(err, ErrUnsupportedArchitecture) {
		t.Fatalf("expected ErrUnsupportedArchitecture, got %v", err)
	}
}

func TestDwarfReg_GPRMapping(t *testing.T) {
	tgt, err := NewTarget(X8664)
	if err != nil {
		t.Fatalf("NewTarget: %v", err)
	}
	cases := []struct {
		reg  Reg
		want DwarfReg
	}{
		{RAX, 0},
		{RDX, 1},
		{RCX, 2},
		{RBX, 3},
		{RSI, 4},
		{RDI, 5},
		{RBP, 6},
		{RSP, 7},
		{R8, 8},
		{R15, 15},
		{RA, 16},
	}
	for _, c := range cases {
		got, err := tgt.DwarfReg(c.reg)
		if err != nil {
			t.Fatalf("DwarfReg(%s): %v", tgt.RegName(c.reg), err)
		}
		if got != c.want {
			t.Fatalf("DwarfReg(%s) = %d, want %d", tgt.RegName(c.reg), got, c.want)
		}
	}
}

func TestDwarfReg_FPRBankUnsupported(t *testing.T) {
	tgt, err := NewTarget(X8664)
	if err != nil {
		t.Fatalf("NewTarget: %v", err)
	}
	if _, err := tgt.DwarfReg(XMM3); !errors.Is(err, ErrUnsupportedRegisterBank) {
		t.Fatalf("expected ErrUnsupportedRegisterBank for xmm3, got %v", err)
	}
}

func TestDwarfReg_MissingBank(t *testing.T) {
	tgt, err := NewTarget(X8664)
	if err != nil {
		t.Fatalf("NewTarget: %v", err)
	}
	if _, err := tgt.DwarfReg(Reg(200)); !errors.Is(err, ErrMissingBank) {
		t.Fatalf("expected ErrMissingBank, got %v", err)
	}
}

func TestEntryConvention(t *testing.T) {
	tgt, err := NewTarget(X8664)
	if err != nil {
		t.Fatalf("NewTarget: %v", err)
	}
	reg, off := tgt.EntryCFA()
	if reg != DwarfRSP || off != 8 {
		t.Fatalf("EntryCFA = (%d, %d), want (7, 8)", reg, off)
	}
	if tgt.ReturnAddrReg() != DwarfRA {
		t.Fatalf("ReturnAddrReg = %d, want 16", tgt.ReturnAddrReg())
	}
	if tgt.CodeAlignFactor() != 1 || tgt.DataAlignFactor() != -8 {
		t.Fatalf("alignment factors = (%d, %d), want (1, -8)", tgt.CodeAlignFactor(), tgt.DataAlignFactor())
	}
}

func TestCallConvPrologueClass(t *testing.T) {
	for _, c := range []CallConv{CallConvSystemV, CallConvFast, CallConvCold} {
		if !c.HasSystemVPrologue() {
			t.Fatalf("%s should have a System V prologue", c)
		}
	}
	if CallConvWindowsFastcall.HasSystemVPrologue() {
		t.Fatalf("windows_fastcall must not claim a System V prologue")
	}
}
