package prelink

import (
	"bytes"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trailer(addr uint32, tag string) []byte {
	return append([]byte{byte(addr), byte(addr >> 8), byte(addr >> 16), byte(addr >> 24)}, tag...)
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Info
	}{
		{
			name: "prelinked",
			data: append([]byte("\x7fELF some body"), trailer(0xafd00000, "PRE ")...),
			want: Info{Addr: 0xafd00000, Prelinked: true},
		},
		{
			name: "exactly a trailer",
			data: trailer(0x12345678, "PRE "),
			want: Info{Addr: 0x12345678, Prelinked: true},
		},
		{
			name: "wrong tag",
			data: append([]byte("body"), trailer(0xafd00000, "PRE\x00")...),
			want: Info{},
		},
		{
			name: "too short",
			data: []byte("PRE "),
			want: Info{},
		},
		{
			name: "empty",
			data: nil,
			want: Info{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect(bytes.NewReader(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInfoString(t *testing.T) {
	assert.Equal(t, "not prelinked", Info{}.String())
	assert.Equal(t, "prelinked @ 0xafd00000", Info{Addr: 0xafd00000, Prelinked: true}.String())
}

func TestMap(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := map[string][]byte{
		"/system/lib/libc.so":       trailer(0xafd00000, "PRE "),
		"/system/lib/libm.so":       trailer(0xafc00000, "PRE "),
		"/system/lib/libz.so":       []byte("not prelinked at all"),
		"/system/lib/libandroid.so": []byte("short"),
	}
	for name, data := range files {
		require.NoError(t, afero.WriteFile(fs, name, data, 0o644))
	}

	entries, err := Map(fs, []string{
		"/system/lib/libz.so",
		"/system/lib/libc.so",
		"/system/lib/missing.so",
		"/system/lib/libandroid.so",
		"/system/lib/libm.so",
	}, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to process 1 file(s)")

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"libm.so", "libc.so", "libandroid.so", "libz.so", "missing.so"}, names)
	assert.Error(t, entries[4].Err)
	assert.NoError(t, entries[0].Err)
}

func TestMapFuncReportsEveryFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	names := []string{"/a.so", "/b.so", "/c.so", "/d.so", "/e.so"}
	for i, name := range names {
		require.NoError(t, afero.WriteFile(fs, name, trailer(uint32(0x1000*(5-i)), "PRE "), 0o644))
	}

	var seen atomic.Int32
	entries, err := MapFunc(fs, names, 3, func(e Entry) {
		assert.True(t, e.Prelinked)
		seen.Add(1)
	})
	require.NoError(t, err)
	assert.Equal(t, int32(len(names)), seen.Load())
	assert.Equal(t, "/e.so", entries[0].Path)
	assert.Equal(t, "/a.so", entries[4].Path)
}

func TestDetectFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/libc.so", trailer(0xafd00000, "PRE "), 0o644))

	info, err := DetectFile(fs, "/libc.so")
	require.NoError(t, err)
	assert.True(t, info.Prelinked)

	_, err = DetectFile(fs, "/nope.so")
	assert.Error(t, err)
}
