// Package elftest builds small synthetic ELF images for unit tests.
package elftest

import (
	"bytes"
	"encoding/binary"
)

const (
	ClassELF32 = 1
	ClassELF64 = 2

	TypeProgbits = 1
	TypeStrtab   = 3
	TypeNobits   = 8
)

// Section describes one section to lay out. Size is only used for NOBITS
// sections, every other section is as large as its Data.
type Section struct {
	Name string
	Type uint32
	Addr uint64
	Data []byte
	Size uint64
}

// Builder lays out an image as: header, section data, .shstrtab, section
// header table, then an optional trailer.
type Builder struct {
	Class    byte
	Sections []Section
	// EntPad is appended to every section header entry to test stride handling.
	EntPad int
	// Trailer is appended after everything else, e.g. a prelink tag.
	Trailer []byte
}

// Image is the result of Builder.Build.
type Image struct {
	Data    []byte
	offsets map[string]uint64
}

// SectionOffset returns the file offset of the named section.
func (i *Image) SectionOffset(name string) uint64 {
	return i.offsets[name]
}

func align(buf *bytes.Buffer, n int) {
	for buf.Len()%n != 0 {
		buf.WriteByte(0)
	}
}

// Build lays out the image.
func (b Builder) Build() *Image {
	class := b.Class
	if class == 0 {
		class = ClassELF32
	}
	is64 := class == ClassELF64
	ehsize, shentsize := 52, 40
	if is64 {
		ehsize, shentsize = 64, 64
	}
	shentsize += b.EntPad

	img := &Image{offsets: make(map[string]uint64)}

	var body bytes.Buffer
	body.Write(make([]byte, ehsize))

	shstrtab := []byte{0}
	nameIdx := make([]uint32, len(b.Sections))
	offsets := make([]uint64, len(b.Sections))
	for i, s := range b.Sections {
		nameIdx[i] = uint32(len(shstrtab))
		shstrtab = append(append(shstrtab, s.Name...), 0)
		align(&body, 4)
		offsets[i] = uint64(body.Len())
		if s.Type != TypeNobits {
			body.Write(s.Data)
		}
		img.offsets[s.Name] = offsets[i]
	}
	shstrName := uint32(len(shstrtab))
	shstrtab = append(append(shstrtab, ".shstrtab"...), 0)
	align(&body, 4)
	shstrOff := uint64(body.Len())
	body.Write(shstrtab)
	img.offsets[".shstrtab"] = shstrOff

	align(&body, 8)
	shoff := uint64(body.Len())
	shnum := len(b.Sections) + 2 // null + sections + .shstrtab

	le := binary.LittleEndian
	writeEntry := func(name, typ uint32, addr, off, size uint64) {
		entry := make([]byte, shentsize)
		le.PutUint32(entry[0:], name)
		le.PutUint32(entry[4:], typ)
		if is64 {
			le.PutUint64(entry[16:], addr)
			le.PutUint64(entry[24:], off)
			le.PutUint64(entry[32:], size)
			le.PutUint64(entry[48:], 1) // addralign
		} else {
			le.PutUint32(entry[12:], uint32(addr))
			le.PutUint32(entry[16:], uint32(off))
			le.PutUint32(entry[20:], uint32(size))
			le.PutUint32(entry[32:], 1) // addralign
		}
		body.Write(entry)
	}
	writeEntry(0, 0, 0, 0, 0)
	for i, s := range b.Sections {
		size := uint64(len(s.Data))
		if s.Type == TypeNobits {
			size = s.Size
		}
		writeEntry(nameIdx[i], s.Type, s.Addr, offsets[i], size)
	}
	writeEntry(shstrName, TypeStrtab, 0, shstrOff, uint64(len(shstrtab)))
	body.Write(b.Trailer)

	data := body.Bytes()
	copy(data[0:], []byte{0x7f, 'E', 'L', 'F', class, 1 /* LSB */, 1 /* EV_CURRENT */})
	le.PutUint16(data[16:], 3) // ET_DYN
	if is64 {
		le.PutUint16(data[18:], 183) // EM_AARCH64
		le.PutUint32(data[20:], 1)
		le.PutUint64(data[40:], shoff)
		le.PutUint16(data[52:], uint16(ehsize))
		le.PutUint16(data[58:], uint16(shentsize))
		le.PutUint16(data[60:], uint16(shnum))
		le.PutUint16(data[62:], uint16(shnum-1))
	} else {
		le.PutUint16(data[18:], 40) // EM_ARM
		le.PutUint32(data[20:], 1)
		le.PutUint32(data[32:], uint32(shoff))
		le.PutUint16(data[40:], uint16(ehsize))
		le.PutUint16(data[46:], uint16(shentsize))
		le.PutUint16(data[48:], uint16(shnum))
		le.PutUint16(data[50:], uint16(shnum-1))
	}
	img.Data = data
	return img
}

// Strings joins strs as a NUL terminated string table.
func Strings(strs ...string) []byte {
	var buf bytes.Buffer
	for _, s := range strs {
		buf.WriteString(s)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

// Words encodes vals as little-endian words of the given size (4 or 8).
func Words(size int, vals ...uint64) []byte {
	out := make([]byte, 0, size*len(vals))
	for _, v := range vals {
		if size == 8 {
			out = binary.LittleEndian.AppendUint64(out, v)
		} else {
			out = binary.LittleEndian.AppendUint32(out, uint32(v))
		}
	}
	return out
}
