// Package module models a kiln bytecode module: function signatures, the
// signature assignment of each defined function, and the raw function
// bodies handed to the backend. Decoding a container format into this model
// is the job of the surrounding pipeline.
package module

import "fmt"

// FuncIndex identifies a defined function by position within the module.
type FuncIndex uint32

// SignatureIndex refers into Module.Signatures.
type SignatureIndex uint32

// SourceLoc is a position in the source container, typically the byte
// offset of a bytecode instruction. Zero means unknown.
type SourceLoc uint32

// Signature is the arity of a function. Kiln bytecode values are uniform
// (64-bit), so counts are all a signature needs.
type Signature struct {
	Params  uint8 `cbor:"params"`
	Results uint8 `cbor:"results"`
}

// Module is the compile-time view of one bytecode module.
type Module struct {
	Name       string           `cbor:"name"`
	Signatures []Signature      `cbor:"signatures"`
	Funcs      []SignatureIndex `cbor:"funcs"`
	FuncNames  []string         `cbor:"func_names,omitempty"`
}

// FunctionBody is the undecoded bytecode of one defined function together
// with its offset in the source container, used for source locations.
type FunctionBody struct {
	Code   []byte `cbor:"code"`
	Offset uint32 `cbor:"offset"`
}

// FuncSignature resolves the signature of a defined function.
func (m *Module) FuncSignature(i FuncIndex) (Signature, error) {
	if int(i) >= len(m.Funcs) {
		return Signature{}, fmt.Errorf("function index %d out of range (%d defined)", i, len(m.Funcs))
	}
	si := m.Funcs[i]
	if int(si) >= len(m.Signatures) {
		return Signature{}, fmt.Errorf("function %d: signature index %d out of range", i, si)
	}

	return m.Signatures[si], nil
}

// FuncName returns the symbol name for a defined function, synthesizing one
// from the index when the module carries no name section.
func (m *Module) FuncName(i FuncIndex) string {
	if int(i) < len(m.FuncNames) && m.FuncNames[i] != "" {
		return m.FuncNames[i]
	}

	return fmt.Sprintf("_kiln_fn%d", i)
}
