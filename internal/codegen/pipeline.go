// Package codegen drives per-function native code generation and collects
// the relocations, address transforms, and frame-layout command streams the
// packaging and unwind layers consume.
package codegen

import (
	"fmt"
	"runtime"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/kiln-lang/kiln/internal/module"
)

var log = commonlog.GetLogger("kiln.codegen")

// Stage names the compile phase a per-function failure occurred in.
type Stage string

const (
	StageTranslate Stage = "translate"
	StageCodegen   Stage = "codegen"
)

// CompileError reports the lowest-index function whose translation or code
// generation failed. The whole module compile is discarded.
type CompileError struct {
	Func  module.FuncIndex
	Stage Stage
	Err   error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("function %d: %s: %v", e.Func, e.Stage, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Options controls a module compile.
type Options struct {
	// DebugInfo requests address transforms and frame-layout command
	// streams in addition to code and relocations.
	DebugInfo bool
	// Workers caps the number of concurrent function compiles; zero means
	// one per CPU.
	Workers int
}

// ModuleCompilation is the all-or-nothing result of compiling every defined
// function. All slices are indexed by defined-function position; the
// AddressMaps and FrameLayouts slices are nil when debug info was not
// requested.
type ModuleCompilation struct {
	Code         [][]byte
	Relocs       [][]Relocation
	AddressMaps  []FuncAddressMap
	FrameLayouts []FrameLayout
}

type funcResult struct {
	code   []byte
	relocs []Relocation
	addr   FuncAddressMap
	layout FrameLayout
}

// CompileModule compiles every function body independently on a fixed
// worker pool and merges the results back in function-index order, so the
// output never depends on completion order. Tasks share only read-only
// module and backend state.
//
// There is no cancellation: a failure is recorded against its function
// index, every started task runs to completion, and the error for the
// lowest failing index is returned. Partial output is never exposed.
func CompileModule(m *module.Module, bodies []module.FunctionBody, b Backend, opts Options) (*ModuleCompilation, error) {
	if len(bodies) != len(m.Funcs) {
		return nil, fmt.Errorf("module %q: %d bodies for %d defined functions", m.Name, len(bodies), len(m.Funcs))
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]funcResult, len(bodies))
	errs := make([]error, len(bodies))

	var g errgroup.Group
	g.SetLimit(workers)
	for i := range bodies {
		idx := module.FuncIndex(i)
		body := bodies[i]
		g.Go(func() error {
			// Slots are per-index, so writes never race.
			results[idx], errs[idx] = compileFunc(m, idx, body, b, opts.DebugInfo)

			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	out := &ModuleCompilation{
		Code:   make([][]byte, len(results)),
		Relocs: make([][]Relocation, len(results)),
	}
	if opts.DebugInfo {
		out.AddressMaps = make([]FuncAddressMap, len(results))
		out.FrameLayouts = make([]FrameLayout, len(results))
	}
	for i, r := range results {
		out.Code[i] = r.code
		out.Relocs[i] = r.relocs
		if opts.DebugInfo {
			out.AddressMaps[i] = r.addr
			out.FrameLayouts[i] = r.layout
		}
	}

	log.Debugf("compiled module %q: %d functions, %d workers", m.Name, len(bodies), workers)

	return out, nil
}

func compileFunc(m *module.Module, idx module.FuncIndex, body module.FunctionBody, b Backend, debugInfo bool) (funcResult, error) {
	trans, err := b.Translate(m, idx, body)
	if err != nil {
		return funcResult{}, &CompileError{Func: idx, Stage: StageTranslate, Err: err}
	}

	compiled, err := b.Emit(trans, debugInfo)
	if err != nil {
		return funcResult{}, &CompileError{Func: idx, Stage: StageCodegen, Err: err}
	}

	r := funcResult{code: compiled.Code, relocs: compiled.Relocs}
	if debugInfo {
		r.addr = BuildAddressMap(compiled.Blocks, uint32(len(compiled.Code)))
		r.layout = FrameLayout{
			CallConv: trans.CallConv(),
			Commands: ExtractFrameLayout(compiled.Blocks),
		}
	}

	return r, nil
}
