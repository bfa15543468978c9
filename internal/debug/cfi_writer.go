package debug

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// cieID distinguishes the shared entry from function entries in the
// serialized table.
const cieID uint32 = 0xffffffff

// ErrAdvanceTooFar rejects an AdvanceLoc delta that does not fit the
// single-byte encoding. The extractor resets its reference point at every
// frame-changing instruction, so a large delta is a logic error upstream,
// never something to truncate.
var ErrAdvanceTooFar = errors.New("advance delta too large for single-byte encoding")

// RelocationSlot records a byte offset in the encoded table whose
// pointer-width placeholder must be patched with the final code address of
// a function entry.
type RelocationSlot struct {
	Func   int    `cbor:"func"`
	Offset uint32 `cbor:"offset"`
}

// Encode serializes the shared entry followed by every function entry and
// returns the buffer plus the relocation slots for the function entries'
// initial-address fields. Encoding is sequential, single-pass, and
// deterministic; addresses are never resolved here.
func (ft *FrameTable) Encode() ([]byte, []RelocationSlot, error) {
	out := &bytes.Buffer{}
	addrSize := int(ft.Common.AddressSize)

	// Shared entry.
	body := &bytes.Buffer{}
	binary.Write(body, binary.LittleEndian, cieID)
	body.WriteByte(ft.Common.Version)
	body.WriteByte(0) // augmentation: empty string
	body.WriteByte(ft.Common.AddressSize)
	body.WriteByte(0) // segment selector size
	uleb128(body, ft.Common.CodeAlign)
	sleb128(body, ft.Common.DataAlign)
	uleb128(body, uint64(ft.Common.ReturnAddrReg))
	for _, in := range ft.Common.Initial {
		if err := encodeInstruction(body, in); err != nil {
			return nil, nil, err
		}
	}
	writeEntry(out, body, addrSize)

	var slots []RelocationSlot
	for i, fe := range ft.Funcs {
		body = &bytes.Buffer{}
		binary.Write(body, binary.LittleEndian, uint32(0)) // offset of the shared entry
		addrPos := body.Len()
		writeAddr(body, 0, addrSize) // initial code address: patched via relocation
		writeAddr(body, uint64(fe.CodeLen), addrSize)
		for _, in := range fe.Instructions {
			if err := encodeInstruction(body, in); err != nil {
				return nil, nil, fmt.Errorf("function entry %d: %w", i, err)
			}
		}

		// The 4-byte length prefix precedes the body in the output.
		slots = append(slots, RelocationSlot{
			Func:   i,
			Offset: uint32(out.Len() + 4 + addrPos),
		})
		writeEntry(out, body, addrSize)
	}

	return out.Bytes(), slots, nil
}

// writeEntry pads body with nops to an address-size boundary (counting the
// length prefix), then writes the prefix and body. The prefix excludes its
// own four bytes.
func writeEntry(out *bytes.Buffer, body *bytes.Buffer, addrSize int) {
	for (4+body.Len())%addrSize != 0 {
		body.WriteByte(0) // DW_CFA_nop
	}
	binary.Write(out, binary.LittleEndian, uint32(body.Len()))
	out.Write(body.Bytes())
}

func writeAddr(b *bytes.Buffer, v uint64, addrSize int) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.Write(tmp[:addrSize])
}

func encodeInstruction(b *bytes.Buffer, in CallFrameInstruction) error {
	switch in.Op {
	case OpAdvanceLoc:
		if in.Delta >= 64 {
			return fmt.Errorf("%w: %d", ErrAdvanceTooFar, in.Delta)
		}
		b.WriteByte(0x40 | byte(in.Delta))

	case OpDefCfa:
		if in.Offset < 0 {
			return fmt.Errorf("%w: cfa offset %d", ErrUnencodableOffset, in.Offset)
		}
		b.WriteByte(0x0c)
		uleb128(b, uint64(in.Reg))
		uleb128(b, uint64(in.Offset))

	case OpDefCfaRegister:
		b.WriteByte(0x0d)
		uleb128(b, uint64(in.Reg))

	case OpDefCfaOffset:
		if in.Offset < 0 {
			return fmt.Errorf("%w: cfa offset %d", ErrUnencodableOffset, in.Offset)
		}
		b.WriteByte(0x0e)
		uleb128(b, uint64(in.Offset))

	case OpOffset:
		if in.Reg >= 64 {
			return fmt.Errorf("%w: register %d needs the extended form", ErrUnencodableOffset, in.Reg)
		}
		if in.Offset < 0 {
			return fmt.Errorf("%w: factored offset %d", ErrUnencodableOffset, in.Offset)
		}
		b.WriteByte(0x80 | byte(in.Reg))
		uleb128(b, uint64(in.Offset))

	default:
		panic(fmt.Sprintf("debug: unknown call-frame instruction op %d", in.Op))
	}

	return nil
}

// uleb128 encodes an unsigned integer in LEB128 format.
func uleb128(b *bytes.Buffer, v uint64) {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b.WriteByte(c)
		if v == 0 {
			break
		}
	}
}

// sleb128 encodes a signed integer in LEB128 format.
func sleb128(b *bytes.Buffer, v int64) {
	for {
		c := byte(v & 0x7f)
		sign := (c & 0x40) != 0
		v >>= 7
		done := (v == 0 && !sign) || (v == -1 && sign)
		if !done {
			c |= 0x80
		}
		b.WriteByte(c)
		if done {
			break
		}
	}
}
