// Package buffer provides a read-ahead buffered random access stream over a file.
//
// Reads are served from a fixed block that is refilled only once it has been
// consumed. Writes are never buffered: every byte goes straight to the
// underlying file at the logical position.
package buffer

import (
	"io"

	"github.com/pkg/errors"
)

// DefaultBufferSize is the size of the read-ahead block.
const DefaultBufferSize = 1024

// State is the read-ahead state of a Stream.
type State uint8

const (
	// Idle means the underlying file position equals the logical position.
	Idle State = iota
	// BufferedAhead means the underlying file position is past the logical
	// position because unconsumed bytes sit in the read-ahead block.
	BufferedAhead
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case BufferedAhead:
		return "buffered-ahead"
	default:
		return "unknown"
	}
}

// Stream is a sequential-read optimized random access view of a file.
// The zero value is not usable; create one with New or NewSize.
type Stream struct {
	f   io.ReadWriteSeeker
	pos int64 // logical position
	d   []byte
	n   int // bytes currently buffered
	i   int // current reading index into d
}

// New creates a Stream with the default buffer size. f must be positioned at
// offset 0.
func New(f io.ReadWriteSeeker) *Stream {
	return NewSize(f, DefaultBufferSize)
}

// NewSize creates a Stream whose read-ahead block is size bytes.
// A size <= 0 selects DefaultBufferSize.
func NewSize(f io.ReadWriteSeeker, size int) *Stream {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Stream{f: f, d: make([]byte, size)}
}

// Pos returns the logical position.
func (s *Stream) Pos() int64 { return s.pos }

// State reports whether read-ahead bytes are pending.
func (s *Stream) State() State {
	if s.i < s.n {
		return BufferedAhead
	}
	return Idle
}

func (s *Stream) discard() {
	s.n = 0
	s.i = 0
}

// ReadByte implements io.ByteReader. It returns io.EOF when the file is exhausted.
func (s *Stream) ReadByte() (byte, error) {
	if s.i >= s.n {
		s.discard()
		n, err := s.f.Read(s.d)
		if n <= 0 {
			if err == nil || err == io.EOF {
				return 0, io.EOF
			}
			return 0, errors.Wrapf(err, "buffer: failed to read at %#x", s.pos)
		}
		s.n = n
	}
	b := s.d[s.i]
	s.i++
	s.pos++
	return b, nil
}

// ReadUint8 reads one unsigned byte.
func (s *Stream) ReadUint8() (uint8, error) {
	return s.ReadByte()
}

// ReadUint16 reads a little-endian uint16.
func (s *Stream) ReadUint16() (uint16, error) {
	var v uint16
	for shift := 0; shift < 16; shift += 8 {
		b, err := s.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= uint16(b) << shift
	}
	return v, nil
}

// ReadUint32 reads a little-endian uint32.
func (s *Stream) ReadUint32() (uint32, error) {
	var v uint32
	for shift := 0; shift < 32; shift += 8 {
		b, err := s.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= uint32(b) << shift
	}
	return v, nil
}

// ReadUint64 reads a little-endian uint64.
func (s *Stream) ReadUint64() (uint64, error) {
	var v uint64
	for shift := 0; shift < 64; shift += 8 {
		b, err := s.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= uint64(b) << shift
	}
	return v, nil
}

// WriteByte implements io.ByteWriter. The byte is written through to the file
// at the logical position. Pending read-ahead is dropped first.
func (s *Stream) WriteByte(b byte) error {
	if s.State() == BufferedAhead {
		if _, err := s.f.Seek(s.pos, io.SeekStart); err != nil {
			return errors.Wrapf(err, "buffer: failed to resync to %#x", s.pos)
		}
	}
	s.discard()
	if _, err := s.f.Write([]byte{b}); err != nil {
		return errors.Wrapf(err, "buffer: failed to write at %#x", s.pos)
	}
	s.pos++
	return nil
}

// WriteUint16 writes v little-endian.
func (s *Stream) WriteUint16(v uint16) error {
	return s.writeLE(uint64(v), 2)
}

// WriteUint32 writes v little-endian.
func (s *Stream) WriteUint32(v uint32) error {
	return s.writeLE(uint64(v), 4)
}

// WriteUint64 writes v little-endian.
func (s *Stream) WriteUint64(v uint64) error {
	return s.writeLE(v, 8)
}

func (s *Stream) writeLE(v uint64, size int) error {
	for i := 0; i < size; i++ {
		if err := s.WriteByte(byte(v >> (8 * i))); err != nil {
			return err
		}
	}
	return nil
}

// Skip advances the logical position by n bytes. Bytes beyond the buffered
// remainder are skipped on the underlying file.
func (s *Stream) Skip(n int64) error {
	if n < 0 {
		return s.Seek(s.pos + n)
	}
	if remain := int64(s.n - s.i); n > remain {
		if _, err := s.f.Seek(n-remain, io.SeekCurrent); err != nil {
			return errors.Wrapf(err, "buffer: failed to skip %d bytes at %#x", n, s.pos)
		}
		s.discard()
	} else {
		s.i += int(n)
	}
	s.pos += n
	return nil
}

// Seek moves the logical position to pos. It is a no-op when pos is already
// the logical position, which keeps the read-ahead block alive.
func (s *Stream) Seek(pos int64) error {
	if pos == s.pos {
		return nil
	}
	if pos < 0 {
		return errors.Errorf("buffer: negative position %d", pos)
	}
	if _, err := s.f.Seek(pos, io.SeekStart); err != nil {
		return errors.Wrapf(err, "buffer: failed to seek to %#x", pos)
	}
	s.pos = pos
	s.discard()
	return nil
}

// Close closes the underlying file if it implements io.Closer.
func (s *Stream) Close() error {
	if c, ok := s.f.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
