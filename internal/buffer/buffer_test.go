package buffer

import (
	"io"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memFile(t *testing.T, data []byte) (afero.Fs, afero.File) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/lib.so", data, 0o644))
	f, err := fs.OpenFile("/lib.so", os.O_RDWR, 0)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return fs, f
}

func TestReadLittleEndian(t *testing.T) {
	_, f := memFile(t, []byte{0xff, 0x34, 0x12, 0x78, 0x56, 0x34, 0x12, 0x01, 0, 0, 0, 0, 0, 0, 0x80})
	s := NewSize(f, 4)

	b, err := s.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xff), b, "unsigned byte must not go negative")

	h, err := s.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), h)

	w, err := s.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x12345678), w)

	q, err := s.ReadUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x8000000000000001), q)
	assert.Equal(t, int64(15), s.Pos())

	_, err = s.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}

func TestWriteAfterReadAhead(t *testing.T) {
	fs, f := memFile(t, []byte("0123456789abcdef"))
	s := NewSize(f, 8)

	for i := 0; i < 3; i++ {
		_, err := s.ReadByte()
		require.NoError(t, err)
	}
	assert.Equal(t, BufferedAhead, s.State())

	require.NoError(t, s.WriteUint16(0x5958)) // "XY"
	assert.Equal(t, Idle, s.State())
	assert.Equal(t, int64(5), s.Pos())

	b, err := s.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('5'), b)

	require.NoError(t, f.Sync())
	got, err := afero.ReadFile(fs, "/lib.so")
	require.NoError(t, err)
	assert.Equal(t, "012XY56789abcdef", string(got))
}

func TestSkip(t *testing.T) {
	_, f := memFile(t, []byte("0123456789abcdef"))
	s := NewSize(f, 4)

	_, err := s.ReadByte()
	require.NoError(t, err)
	// inside the buffered block
	require.NoError(t, s.Skip(2))
	b, err := s.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('3'), b)

	// past the buffered block
	require.NoError(t, s.Skip(6))
	b, err = s.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('a'), b)
	assert.Equal(t, int64(11), s.Pos())

	require.NoError(t, s.Skip(-4))
	b, err = s.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('7'), b)
}

func TestSeekSamePositionKeepsBuffer(t *testing.T) {
	_, f := memFile(t, []byte("0123456789"))
	s := NewSize(f, 8)

	_, err := s.ReadByte()
	require.NoError(t, err)
	require.Equal(t, BufferedAhead, s.State())

	require.NoError(t, s.Seek(1))
	assert.Equal(t, BufferedAhead, s.State())

	require.NoError(t, s.Seek(7))
	assert.Equal(t, Idle, s.State())
	b, err := s.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('7'), b)

	assert.Error(t, s.Seek(-1))
}
