package x64

import (
	"encoding/binary"
	"fmt"

	"github.com/kiln-lang/kiln/internal/codegen"
	"github.com/kiln-lang/kiln/internal/isa"
	"github.com/kiln-lang/kiln/internal/module"
)

// System V integer argument registers, in order, as push/pop encodings.
var (
	argPush = [maxRegParams]byte{0x57, 0x56, 0x52, 0x51} // push rdi/rsi/rdx/rcx
	argPop  = [maxRegParams]byte{0x5f, 0x5e, 0x5a, 0x59} // pop rdi/rsi/rdx/rcx
)

type emitter struct {
	code     []byte
	relocs   []codegen.Relocation
	insts    []codegen.InstructionMeta
	withMeta bool
}

// inst appends one machine-code unit and, when metadata is requested,
// records its offset, size, source location, and frame-change directives.
func (e *emitter) inst(src module.SourceLoc, changes []codegen.FrameChange, b ...byte) uint32 {
	off := uint32(len(e.code))
	e.code = append(e.code, b...)
	if e.withMeta {
		e.insts = append(e.insts, codegen.InstructionMeta{
			Offset:       off,
			Size:         uint32(len(b)),
			Src:          src,
			FrameChanges: changes,
		})
	}

	return off
}

// prologue sets up the System V frame and spills register arguments onto
// the operand stack. Only the prologue carries frame-change directives: the
// CFA rule is stable once it is based on rbp, which also keeps advance
// deltas within the compact encoding.
func (e *emitter) prologue(src module.SourceLoc, sig module.Signature) {
	e.inst(src, []codegen.FrameChange{
		{Kind: codegen.FrameCFAAt, Reg: isa.RSP, Offset: 16},
		{Kind: codegen.FrameRegAt, Reg: isa.RBP, Offset: -16},
	}, 0x55) // push rbp
	e.inst(src, []codegen.FrameChange{
		{Kind: codegen.FrameCFAAt, Reg: isa.RBP, Offset: 16},
	}, 0x48, 0x89, 0xe5) // mov rbp, rsp
	for i := uint8(0); i < sig.Params; i++ {
		e.inst(src, nil, argPush[i])
	}
}

func (e *emitter) callRel32(src module.SourceLoc, target codegen.RelocTarget, prefix ...byte) {
	b := append(append([]byte{}, prefix...), 0xe8, 0, 0, 0, 0)
	off := e.inst(src, nil, b...)
	e.relocs = append(e.relocs, codegen.Relocation{
		Kind:   codegen.RelocPCRel4,
		Offset: off + uint32(len(prefix)) + 1,
		Addend: -4,
		Target: target,
	})
}

// Emit lowers a translated function to machine code.
func (b *Backend) Emit(fn codegen.TranslatedFunc, withMeta bool) (*codegen.CompiledFunc, error) {
	f, ok := fn.(*translatedFunc)
	if !ok {
		return nil, fmt.Errorf("x64: translated function of foreign type %T", fn)
	}

	e := &emitter{withMeta: withMeta}
	e.prologue(f.src, f.sig)

	for _, o := range f.ops {
		switch o.code {
		case opI64Const:
			var imm [8]byte
			binary.LittleEndian.PutUint64(imm[:], o.imm)
			e.inst(o.src, nil, append([]byte{0x48, 0xb8}, imm[:]...)...) // mov rax, imm64
			e.inst(o.src, nil, 0x50)                                    // push rax

		case opAdd:
			e.inst(o.src, nil, 0x59, 0x58, 0x48, 0x01, 0xc8, 0x50) // pop rcx; pop rax; add rax, rcx; push rax

		case opSub:
			e.inst(o.src, nil, 0x59, 0x58, 0x48, 0x29, 0xc8, 0x50) // pop rcx; pop rax; sub rax, rcx; push rax

		case opCall:
			for i := int(o.params) - 1; i >= 0; i-- {
				e.inst(o.src, nil, argPop[i])
			}
			e.callRel32(o.src, codegen.RelocTarget{Kind: codegen.TargetFunc, Func: o.fn})
			if o.results > 0 {
				e.inst(o.src, nil, 0x50) // push rax
			}

		case opMemGrow:
			e.inst(o.src, nil, 0x5f) // pop rdi
			e.callRel32(o.src, codegen.RelocTarget{Kind: codegen.TargetMemoryGrow})
			e.inst(o.src, nil, 0x50) // push rax

		case opMemSize:
			e.callRel32(o.src, codegen.RelocTarget{Kind: codegen.TargetMemorySize})
			e.inst(o.src, nil, 0x50) // push rax

		case opEnd:
			if f.sig.Results > 0 {
				e.inst(o.src, nil, 0x58) // pop rax
			}
			e.inst(o.src, nil, 0x48, 0x89, 0xec) // mov rsp, rbp
			e.inst(o.src, nil, 0x5d)             // pop rbp
			e.inst(o.src, nil, 0xc3)             // ret

		default:
			panic(fmt.Sprintf("x64: decoded op %#02x has no lowering", o.code))
		}
	}

	out := &codegen.CompiledFunc{Code: e.code, Relocs: e.relocs}
	if withMeta {
		out.Blocks = []codegen.BlockMeta{{Offset: 0, Insts: e.insts}}
	}

	return out, nil
}
