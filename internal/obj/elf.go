// Package obj packages compile output into a relocatable ELF object. It
// writes raw section payloads for downstream link tools; resolving the
// frame table's placeholder addresses is the linker's job, so the
// relocation slots travel alongside the object rather than inside it.
package obj

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
)

// Symbol is one function symbol in the text section.
type Symbol struct {
	Name string
	Off  uint64
	Size uint64
}

// Image is the section payload set for one compiled module.
type Image struct {
	Text       []byte
	DebugFrame []byte
	Symbols    []Symbol
}

// WriteELF writes img as a minimal ELF64 relocatable object.
func WriteELF(outPath string, img Image) error {
	if outPath == "" {
		return errors.New("empty output path")
	}

	b := buildELF64(img)

	return os.WriteFile(outPath, b, 0o644)
}

func buildELF64(img Image) []byte {
	const (
		ehdrSize     = 64
		shdrSize     = 64
		symSize      = 24
		etRel        = 1
		emX8664      = 62
		shtProgbits  = 1
		shtSymtab    = 2
		shtStrtab    = 3
		shfAlloc     = 0x2
		shfExecinstr = 0x4
		textShndx    = 1
	)

	// String and symbol tables for the function symbols. Entry 0 of each
	// table stays null per the ELF spec.
	strtab := &bytes.Buffer{}
	strtab.WriteByte(0)
	symtab := &bytes.Buffer{}
	symtab.Write(make([]byte, symSize))
	for _, s := range img.Symbols {
		sym := make([]byte, symSize)
		binary.LittleEndian.PutUint32(sym[0:], uint32(strtab.Len()))
		sym[4] = 0x12 // STB_GLOBAL, STT_FUNC
		binary.LittleEndian.PutUint16(sym[6:], textShndx)
		binary.LittleEndian.PutUint64(sym[8:], s.Off)
		binary.LittleEndian.PutUint64(sym[16:], s.Size)
		symtab.Write(sym)
		strtab.WriteString(s.Name)
		strtab.WriteByte(0)
	}

	type section struct {
		name    string
		payload []byte
		flags   uint64
		shtype  uint32
		link    uint32
		info    uint32
		entsize uint64
	}
	sections := []section{
		{name: ".text", payload: img.Text, flags: shfAlloc | shfExecinstr, shtype: shtProgbits},
		{name: ".debug_frame", payload: img.DebugFrame, shtype: shtProgbits},
		// sh_link points at .strtab; sh_info is the first non-local symbol.
		{name: ".symtab", payload: symtab.Bytes(), shtype: shtSymtab, link: 4, info: 1, entsize: symSize},
		{name: ".strtab", payload: strtab.Bytes(), shtype: shtStrtab},
	}

	// Section header string table; index 0 stays empty.
	shstr := &bytes.Buffer{}
	shstr.WriteByte(0)
	nameOff := make([]uint32, len(sections)+1)
	for i, s := range sections {
		nameOff[i] = uint32(shstr.Len())
		shstr.WriteString(s.name)
		shstr.WriteByte(0)
	}
	nameOff[len(sections)] = uint32(shstr.Len())
	shstr.WriteString(".shstrtab")
	shstr.WriteByte(0)

	// Layout: [ELF header][payloads...][.shstrtab][section header table].
	cur := uint64(ehdrSize)
	off := make([]uint64, len(sections))
	for i, s := range sections {
		off[i] = cur
		cur += uint64(len(s.payload))
	}
	shstrOff := cur
	cur += uint64(shstr.Len())
	shoff := cur
	shnum := uint16(1 + len(sections) + 1)

	file := &bytes.Buffer{}
	file.Grow(int(cur) + shdrSize*int(shnum))

	ehdr := make([]byte, ehdrSize)
	copy(ehdr[0:4], []byte{0x7f, 'E', 'L', 'F'})
	ehdr[4] = 2 // ELFCLASS64
	ehdr[5] = 1 // ELFDATA2LSB
	ehdr[6] = 1 // EV_CURRENT
	binary.LittleEndian.PutUint16(ehdr[16:], etRel)
	binary.LittleEndian.PutUint16(ehdr[18:], emX8664)
	binary.LittleEndian.PutUint32(ehdr[20:], 1) // e_version
	binary.LittleEndian.PutUint64(ehdr[40:], shoff)
	binary.LittleEndian.PutUint16(ehdr[52:], ehdrSize)
	binary.LittleEndian.PutUint16(ehdr[58:], shdrSize)
	binary.LittleEndian.PutUint16(ehdr[60:], shnum)
	binary.LittleEndian.PutUint16(ehdr[62:], uint16(1+len(sections))) // e_shstrndx
	file.Write(ehdr)

	for _, s := range sections {
		file.Write(s.payload)
	}
	file.Write(shstr.Bytes())

	writeShdr := func(nameOff, shtype uint32, flags, off, size uint64, link, info uint32, entsize uint64) {
		sh := make([]byte, shdrSize)
		binary.LittleEndian.PutUint32(sh[0:], nameOff)
		binary.LittleEndian.PutUint32(sh[4:], shtype)
		binary.LittleEndian.PutUint64(sh[8:], flags)
		binary.LittleEndian.PutUint64(sh[24:], off)
		binary.LittleEndian.PutUint64(sh[32:], size)
		binary.LittleEndian.PutUint32(sh[40:], link)
		binary.LittleEndian.PutUint32(sh[44:], info)
		binary.LittleEndian.PutUint64(sh[48:], 1) // sh_addralign
		binary.LittleEndian.PutUint64(sh[56:], entsize)
		file.Write(sh)
	}
	file.Write(make([]byte, shdrSize)) // null section
	for i, s := range sections {
		writeShdr(nameOff[i], s.shtype, s.flags, off[i], uint64(len(s.payload)), s.link, s.info, s.entsize)
	}
	writeShdr(nameOff[len(sections)], shtStrtab, 0, shstrOff, uint64(shstr.Len()), 0, 0, 0)

	return file.Bytes()
}
