package codegen

import (
	"github.com/kiln-lang/kiln/internal/isa"
	"github.com/kiln-lang/kiln/internal/module"
)

// TranslatedFunc is a backend's intermediate form for one function, opaque
// to the pipeline beyond the calling convention it settled on.
type TranslatedFunc interface {
	CallConv() isa.CallConv
}

// CompiledFunc is the machine-code output for one function together with
// the metadata the unwind and debug layers consume. Blocks is nil unless
// instruction metadata was requested.
type CompiledFunc struct {
	Code   []byte
	Relocs []Relocation
	Blocks []BlockMeta
}

// Backend translates function bodies to an intermediate form and emits
// native code for one target. Implementations must be safe for concurrent
// use: the pipeline calls Translate and Emit from many goroutines against
// shared read-only module state.
type Backend interface {
	Target() *isa.Target

	// Translate decodes a function body into the backend's intermediate
	// form.
	Translate(m *module.Module, idx module.FuncIndex, body module.FunctionBody) (TranslatedFunc, error)

	// Emit runs code generation. When withMeta is set the result carries
	// per-instruction metadata (offsets, source locations, frame changes).
	Emit(fn TranslatedFunc, withMeta bool) (*CompiledFunc, error)
}
