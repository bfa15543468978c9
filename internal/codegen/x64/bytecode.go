package x64

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/kiln-lang/kiln/internal/module"
)

// Kiln bytecode opcodes. Values are uniform 64-bit; operands are
// little-endian.
const (
	opI64Const byte = 0x01 // imm64 follows
	opAdd      byte = 0x02
	opSub      byte = 0x03
	opEnd      byte = 0x0f
	opCall     byte = 0x10 // u32 function index follows
	opMemGrow  byte = 0x20
	opMemSize  byte = 0x21
)

var (
	errTruncated      = errors.New("truncated function body")
	errStackUnderflow = errors.New("operand stack underflow")
)

// op is one decoded bytecode operation.
type op struct {
	code byte
	imm  uint64
	fn   module.FuncIndex
	// callee arity, resolved at translation time
	params  uint8
	results uint8
	src     module.SourceLoc
}

// decodeBody validates and decodes a function body into the backend's
// intermediate form. Stack depth is simulated so underflow and result
// mismatches surface here, before code generation.
func decodeBody(m *module.Module, idx module.FuncIndex, body module.FunctionBody) ([]op, error) {
	sig, err := m.FuncSignature(idx)
	if err != nil {
		return nil, err
	}
	if sig.Params > maxRegParams {
		return nil, fmt.Errorf("function %d: %d parameters exceed the supported maximum %d", idx, sig.Params, maxRegParams)
	}

	var (
		ops   []op
		depth = int(sig.Params)
		ended bool
	)
	pop := func(n int, pos int) error {
		depth -= n
		if depth < 0 {
			return fmt.Errorf("%w at offset %d", errStackUnderflow, pos)
		}
		return nil
	}

	code := body.Code
	pos := 0
	for pos < len(code) {
		if ended {
			return nil, fmt.Errorf("trailing bytes after end at offset %d", pos)
		}
		o := op{code: code[pos], src: module.SourceLoc(body.Offset + uint32(pos))}
		switch code[pos] {
		case opI64Const:
			if pos+9 > len(code) {
				return nil, fmt.Errorf("%w: i64.const at offset %d", errTruncated, pos)
			}
			o.imm = binary.LittleEndian.Uint64(code[pos+1:])
			pos += 9
			depth++

		case opAdd, opSub:
			if err := pop(2, pos); err != nil {
				return nil, err
			}
			pos++
			depth++

		case opCall:
			if pos+5 > len(code) {
				return nil, fmt.Errorf("%w: call at offset %d", errTruncated, pos)
			}
			o.fn = module.FuncIndex(binary.LittleEndian.Uint32(code[pos+1:]))
			callee, err := m.FuncSignature(o.fn)
			if err != nil {
				return nil, fmt.Errorf("call at offset %d: %w", pos, err)
			}
			if callee.Params > maxRegParams {
				return nil, fmt.Errorf("call at offset %d: callee has %d parameters, maximum is %d", pos, callee.Params, maxRegParams)
			}
			o.params, o.results = callee.Params, callee.Results
			if err := pop(int(callee.Params), pos); err != nil {
				return nil, err
			}
			pos += 5
			depth += int(callee.Results)

		case opMemGrow:
			if err := pop(1, pos); err != nil {
				return nil, err
			}
			pos++
			depth++

		case opMemSize:
			pos++
			depth++

		case opEnd:
			if err := pop(int(sig.Results), pos); err != nil {
				return nil, err
			}
			if depth != 0 {
				return nil, fmt.Errorf("end at offset %d leaves %d values on the stack", pos, depth)
			}
			pos++
			ended = true

		default:
			return nil, fmt.Errorf("unknown opcode %#02x at offset %d", code[pos], pos)
		}
		ops = append(ops, o)
	}
	if !ended {
		return nil, fmt.Errorf("%w: missing end", errTruncated)
	}

	return ops, nil
}
