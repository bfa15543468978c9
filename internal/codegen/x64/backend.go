// Package x64 is the reference code generator: a stack-machine lowering of
// kiln bytecode to x86_64 with System V frames. It favors obvious encodings
// over fast ones; its job is to exercise the compile pipeline, the
// relocation model, and the unwind synthesis end to end.
package x64

import (
	"fmt"

	"github.com/kiln-lang/kiln/internal/codegen"
	"github.com/kiln-lang/kiln/internal/isa"
	"github.com/kiln-lang/kiln/internal/module"
)

// maxRegParams is how many integer arguments fit the System V parameter
// registers this backend uses.
const maxRegParams = 4

// Backend implements codegen.Backend for x86_64. It holds only the shared
// read-only target description, so one instance serves all workers.
type Backend struct {
	target *isa.Target
}

// New returns an x86_64 backend for the given target description.
func New(target *isa.Target) (*Backend, error) {
	if target.Arch != isa.X8664 {
		return nil, fmt.Errorf("%w: %q", isa.ErrUnsupportedArchitecture, target.Arch)
	}

	return &Backend{target: target}, nil
}

func (b *Backend) Target() *isa.Target { return b.target }

type translatedFunc struct {
	idx module.FuncIndex
	sig module.Signature
	ops []op
	src module.SourceLoc
}

func (f *translatedFunc) CallConv() isa.CallConv { return isa.CallConvSystemV }

// Translate decodes and validates one function body.
func (b *Backend) Translate(m *module.Module, idx module.FuncIndex, body module.FunctionBody) (codegen.TranslatedFunc, error) {
	sig, err := m.FuncSignature(idx)
	if err != nil {
		return nil, err
	}
	ops, err := decodeBody(m, idx, body)
	if err != nil {
		return nil, err
	}

	return &translatedFunc{idx: idx, sig: sig, ops: ops, src: module.SourceLoc(body.Offset)}, nil
}
