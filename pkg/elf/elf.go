// Package elf is a minimal, section-aware ELF reader and patcher.
//
// It parses just enough of the container to enumerate sections, resolve
// their names and do section-relative random access over a read/write file.
// Reads go through a buffered stream so section scans never load whole
// sections into memory.
package elf

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andlibutils/andlibutils/internal/buffer"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const (
	ELFCLASS32 = 1
	ELFCLASS64 = 2

	ELFDATA2LSB = 1
	ELFDATA2MSB = 2

	SHT_NULL     = 0
	SHT_PROGBITS = 1
	SHT_STRTAB   = 3
	SHT_NOBITS   = 8
)

// ELFMAG is the magic at the start of every ELF file.
var ELFMAG = [4]byte{0x7f, 'E', 'L', 'F'}

var (
	// ErrInvalid is returned by every section operation on a file whose
	// header did not carry the ELF magic.
	ErrInvalid = errors.New("elf: invalid ELF header magic")
	// ErrNoSection is returned when a section-relative operation has no
	// current section to work on.
	ErrNoSection = errors.New("elf: no such section")
)

// Header holds the parsed ELF header fields. Everything except Magic is
// meaningless when Valid returns false.
type Header struct {
	Magic     [4]byte
	Class     uint8
	Data      uint8
	Type      uint16
	Machine   uint16
	Version   uint32
	PhOff     uint64
	PhEntSize uint16
	PhNum     uint16
	ShOff     uint64
	ShEntSize uint16
	ShNum     uint16
	ShStrNdx  uint16
}

// Valid reports whether the header carries the ELF magic.
func (h Header) Valid() bool {
	return h.Magic == ELFMAG
}

// Is64 reports whether the file uses the ELFCLASS64 layout.
func (h Header) Is64() bool {
	return h.Class == ELFCLASS64
}

// PointerSize is the size of an address in the file's address space.
func (h Header) PointerSize() int {
	if h.Is64() {
		return 8
	}
	return 4
}

func (h Header) String() string {
	if !h.Valid() {
		return "invalid ELF"
	}
	class := "ELF32"
	if h.Is64() {
		class = "ELF64"
	}
	endian := "LSB"
	if h.Data == ELFDATA2MSB {
		endian = "MSB"
	}
	return fmt.Sprintf("%s %s type=%d machine=%d sections=%d@%#x", class, endian, h.Type, h.Machine, h.ShNum, h.ShOff)
}

// Section is one parsed section header.
type Section struct {
	NameIndex uint32
	Type      uint32
	Addr      uint64
	Offset    uint64
	Size      uint64
	// EffectiveSize is the number of bytes the section occupies in the file;
	// zero for SHT_NOBITS.
	EffectiveSize uint64
	Name          string
}

func (s *Section) contains(ofs uint64) bool {
	return ofs >= s.Offset && ofs < s.Offset+s.Size
}

// Reader provides section-relative access to an ELF file.
type Reader struct {
	Header

	s         *buffer.Stream
	sections  []Section
	cur       int // index into sections, -1 when there is no current section
	lastExact bool
}

// NewReader parses the ELF header from f. A file without the ELF magic is not
// an error: the returned Reader reports Valid() == false and refuses all
// section operations.
func NewReader(f io.ReadWriteSeeker, bufSize int) (*Reader, error) {
	r := &Reader{
		s:   buffer.NewSize(f, bufSize),
		cur: -1,
	}
	if err := r.readHeader(); err != nil {
		return nil, err
	}
	return r, nil
}

// Open opens name on fs with the given flag and parses its ELF header.
func Open(fs afero.Fs, name string, flag int, bufSize int) (*Reader, error) {
	f, err := fs.OpenFile(name, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", name, err)
	}
	r, err := NewReader(f, bufSize)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// OpenReadWrite opens name for in-place patching.
func OpenReadWrite(fs afero.Fs, name string, bufSize int) (*Reader, error) {
	return Open(fs, name, os.O_RDWR, bufSize)
}

func (r *Reader) readHeader() error {
	for i := range r.Magic {
		b, err := r.s.ReadByte()
		if err == io.EOF {
			return nil // too short to be an ELF
		} else if err != nil {
			return errors.Wrap(err, "elf: failed to read magic")
		}
		r.Magic[i] = b
		if b != ELFMAG[i] {
			return nil
		}
	}

	var err error
	read8 := func() uint8 {
		var v uint8
		if err == nil {
			v, err = r.s.ReadUint8()
		}
		return v
	}
	read16 := func() uint16 {
		var v uint16
		if err == nil {
			v, err = r.s.ReadUint16()
		}
		return v
	}
	read32 := func() uint32 {
		var v uint32
		if err == nil {
			v, err = r.s.ReadUint32()
		}
		return v
	}
	readAddr := func() uint64 {
		var v uint64
		if err == nil {
			if r.Is64() {
				v, err = r.s.ReadUint64()
			} else {
				var v32 uint32
				v32, err = r.s.ReadUint32()
				v = uint64(v32)
			}
		}
		return v
	}
	skip := func(n int64) {
		if err == nil {
			err = r.s.Skip(n)
		}
	}

	r.Class = read8()
	r.Data = read8()
	skip(10) // rest of e_ident
	r.Type = read16()
	r.Machine = read16()
	r.Version = read32()
	readAddr() // e_entry
	r.PhOff = readAddr()
	r.ShOff = readAddr()
	skip(6) // e_flags, e_ehsize
	r.PhEntSize = read16()
	r.PhNum = read16()
	r.ShEntSize = read16()
	r.ShNum = read16()
	r.ShStrNdx = read16()
	if err != nil {
		return errors.Wrap(err, "elf: failed to read header")
	}
	return nil
}

// ReadSections parses the section header table and resolves section names
// through the section name string table.
func (r *Reader) ReadSections() error {
	if !r.Valid() {
		return ErrInvalid
	}
	r.sections = r.sections[:0]
	r.cur = -1

	// name, type, flags, addr, offset, size
	fields := int64(6 * 4)
	if r.Is64() {
		fields = 2*4 + 4*8
	}
	if r.ShNum > 0 && int64(r.ShEntSize) < fields {
		return fmt.Errorf("elf: section header entry size %d is smaller than %d", r.ShEntSize, fields)
	}
	if err := r.Seek(r.ShOff); err != nil {
		return err
	}

	for i := 0; i < int(r.ShNum); i++ {
		var sec Section
		var err error
		if sec.NameIndex, err = r.ReadUint32(); err != nil {
			return errors.Wrapf(err, "elf: failed to read section header %d", i)
		}
		if sec.Type, err = r.ReadUint32(); err != nil {
			return errors.Wrapf(err, "elf: failed to read section header %d", i)
		}
		if err := r.Skip(int64(r.PointerSize())); err != nil { // sh_flags
			return errors.Wrapf(err, "elf: failed to read section header %d", i)
		}
		for _, v := range []*uint64{&sec.Addr, &sec.Offset, &sec.Size} {
			if *v, err = r.ReadWord(); err != nil {
				return errors.Wrapf(err, "elf: failed to read section header %d", i)
			}
		}
		if err := r.Skip(int64(r.ShEntSize) - fields); err != nil {
			return errors.Wrapf(err, "elf: failed to read section header %d", i)
		}
		if sec.Type != SHT_NOBITS {
			sec.EffectiveSize = sec.Size
		}
		r.sections = append(r.sections, sec)
	}

	if int(r.ShStrNdx) < len(r.sections) {
		strtab := r.sections[r.ShStrNdx].Offset
		for i := range r.sections {
			if err := r.Seek(strtab + uint64(r.sections[i].NameIndex)); err != nil {
				return err
			}
			name, err := r.ReadString()
			if err != nil {
				return errors.Wrapf(err, "elf: failed to read name of section %d", i)
			}
			r.sections[i].Name = name
		}
	}
	return nil
}

// Sections returns the parsed sections in file order.
func (r *Reader) Sections() []Section {
	return r.sections
}

func (r *Reader) findByName(name string) int {
	for i := range r.sections {
		if r.sections[i].Name == name {
			return i
		}
	}
	return -1
}

func (r *Reader) findByOffset(ofs uint64) int {
	for i := range r.sections {
		if r.sections[i].contains(ofs) {
			return i
		}
	}
	return -1
}

// Section returns the first section called name.
func (r *Reader) Section(name string) (*Section, bool) {
	if i := r.findByName(name); i >= 0 {
		return &r.sections[i], true
	}
	return nil, false
}

// HasSection reports whether a section called name exists.
func (r *Reader) HasSection(name string) bool {
	return r.findByName(name) >= 0
}

// SectionAddr returns the virtual address of the named section.
func (r *Reader) SectionAddr(name string) (uint64, bool) {
	if s, ok := r.Section(name); ok {
		return s.Addr, true
	}
	return 0, false
}

// SectionOffsetToFileOffset translates an offset inside the named section to
// a file offset.
func (r *Reader) SectionOffsetToFileOffset(name string, ofs uint64) (uint64, bool) {
	if s, ok := r.Section(name); ok {
		return s.Offset + ofs, true
	}
	return 0, false
}

// Pos returns the current file offset.
func (r *Reader) Pos() uint64 {
	return uint64(r.s.Pos())
}

// Seek moves to the file offset ofs. The current section is only looked up
// again when ofs leaves the section it was in.
func (r *Reader) Seek(ofs uint64) error {
	if err := r.s.Seek(int64(ofs)); err != nil {
		return err
	}
	if r.cur < 0 || !r.sections[r.cur].contains(ofs) {
		r.cur = r.findByOffset(ofs)
	}
	return nil
}

// Reseek seeks relative to the current position.
func (r *Reader) Reseek(delta int64) error {
	pos := int64(r.Pos()) + delta
	if pos < 0 {
		return errors.Errorf("elf: cannot seek to negative offset %d", pos)
	}
	return r.Seek(uint64(pos))
}

// SeekSection makes the named section current and moves to ofs inside it.
// When the section does not exist there is no current section afterwards.
func (r *Reader) SeekSection(name string, ofs uint64) error {
	if !r.Valid() {
		return ErrInvalid
	}
	r.cur = r.findByName(name)
	if r.cur < 0 {
		return fmt.Errorf("%w: %s", ErrNoSection, name)
	}
	return r.s.Seek(int64(r.sections[r.cur].Offset + ofs))
}

// CurrentSection returns the name of the section containing the cursor.
func (r *Reader) CurrentSection() (string, bool) {
	if r.cur < 0 {
		return "", false
	}
	return r.sections[r.cur].Name, true
}

// CurrentOffsetInSection returns the cursor position relative to the start
// of the current section.
func (r *Reader) CurrentOffsetInSection() (uint64, bool) {
	if r.cur < 0 {
		return 0, false
	}
	return r.Pos() - r.sections[r.cur].Offset, true
}

// FinishedSection reports whether the cursor has consumed all file bytes of
// the current section. With no current section there is nothing left to read
// so it reports true.
func (r *Reader) FinishedSection() bool {
	ofs, ok := r.CurrentOffsetInSection()
	if !ok {
		return true
	}
	return ofs >= r.sections[r.cur].EffectiveSize
}

// SeekString scans the rest of the current section for a NUL terminated
// string ending with pattern. On a match it returns the section offset where
// pattern starts and leaves the cursor just past the terminator, so calling
// it again continues the scan. Only the last len(pattern) characters of each
// string are kept, in a ring buffer.
func (r *Reader) SeekString(pattern string) (uint64, bool, error) {
	if !r.Valid() {
		return 0, false, ErrInvalid
	}
	ofs, ok := r.CurrentOffsetInSection()
	if !ok {
		return 0, false, ErrNoSection
	}
	n := len(pattern)
	if n == 0 {
		return 0, false, errors.New("elf: empty search pattern")
	}
	sec := &r.sections[r.cur]
	if ofs >= sec.EffectiveSize {
		return 0, false, nil
	}

	ring := make([]byte, n)
	length, ind := 0, 0
	for remaining := sec.EffectiveSize - ofs; remaining > 0; remaining-- {
		ch, err := r.s.ReadByte()
		if err != nil {
			return 0, false, errors.Wrapf(err, "elf: failed to scan section %s", sec.Name)
		}
		if ch != 0 {
			ring[ind] = ch
			ind = (ind + 1) % n
			length++
			continue
		}
		if length >= n && ringEquals(ring, ind, pattern) {
			r.lastExact = length == n
			end := r.Pos() - sec.Offset
			return end - uint64(n) - 1, true, nil
		}
		length = 0
	}
	return 0, false, nil
}

// ring[start] holds the oldest of the last len(ring) characters.
func ringEquals(ring []byte, start int, pattern string) bool {
	for j := 0; j < len(pattern); j++ {
		if ring[(start+j)%len(ring)] != pattern[j] {
			return false
		}
	}
	return true
}

// LastMatchExact reports whether the most recent SeekString match was the
// whole string rather than a suffix of a longer one.
func (r *Reader) LastMatchExact() bool {
	return r.lastExact
}

// ReadUint8 reads a byte at the cursor.
func (r *Reader) ReadUint8() (uint8, error) { return r.s.ReadUint8() }

// ReadUint16 reads a little-endian uint16 at the cursor.
func (r *Reader) ReadUint16() (uint16, error) { return r.s.ReadUint16() }

// ReadUint32 reads a little-endian uint32 at the cursor.
func (r *Reader) ReadUint32() (uint32, error) { return r.s.ReadUint32() }

// ReadUint64 reads a little-endian uint64 at the cursor.
func (r *Reader) ReadUint64() (uint64, error) { return r.s.ReadUint64() }

// ReadWord reads a pointer sized little-endian value.
func (r *Reader) ReadWord() (uint64, error) {
	if r.Is64() {
		return r.s.ReadUint64()
	}
	v, err := r.s.ReadUint32()
	return uint64(v), err
}

// WriteUint32 writes v little-endian at the cursor.
func (r *Reader) WriteUint32(v uint32) error { return r.s.WriteUint32(v) }

// WriteUint64 writes v little-endian at the cursor.
func (r *Reader) WriteUint64(v uint64) error { return r.s.WriteUint64(v) }

// WriteWord writes a pointer sized little-endian value.
func (r *Reader) WriteWord(v uint64) error {
	if r.Is64() {
		return r.s.WriteUint64(v)
	}
	return r.s.WriteUint32(uint32(v))
}

// ReadString reads a NUL terminated string at the cursor.
func (r *Reader) ReadString() (string, error) {
	var sb strings.Builder
	for {
		b, err := r.s.ReadByte()
		if err != nil {
			return "", err
		}
		if b == 0 {
			return sb.String(), nil
		}
		sb.WriteByte(b)
	}
}

// Skip advances the cursor by n bytes without changing the current section.
func (r *Reader) Skip(n int64) error {
	return r.s.Skip(n)
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.s.Close()
}
