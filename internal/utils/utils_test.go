package utils

import (
	"testing"

	"github.com/apex/log/handlers/cli"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndent(t *testing.T) {
	var padding int
	var got string
	Indent(func(s string) {
		padding = cli.Default.Padding
		got = s
	}, 2)("found match")
	assert.Equal(t, "found match", got)
	assert.Equal(t, normalPadding*2, padding)
	assert.Equal(t, normalPadding, cli.Default.Padding)
}

func TestTempSibling(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/lib/libfoo.so.temp0000", nil, 0o644))
	require.NoError(t, afero.WriteFile(fs, "/lib/libfoo.so.temp0001", nil, 0o644))

	tmp, err := TempSibling(fs, "/lib/libfoo.so")
	require.NoError(t, err)
	assert.Equal(t, "/lib/libfoo.so.temp0002", tmp)
}

func TestCopyAndReplace(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/in/libfoo.so", []byte("original"), 0o755))
	require.NoError(t, afero.WriteFile(fs, "/out/libfoo.so", []byte("stale"), 0o644))

	require.NoError(t, CopyFile(fs, "/in/libfoo.so", "/in/libfoo.so.temp0000"))
	got, err := afero.ReadFile(fs, "/in/libfoo.so.temp0000")
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))

	require.NoError(t, ReplaceFile(fs, "/in/libfoo.so.temp0000", "/out/libfoo.so"))
	got, err = afero.ReadFile(fs, "/out/libfoo.so")
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))

	exists, err := afero.Exists(fs, "/in/libfoo.so.temp0000")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.Error(t, CopyFile(fs, "/in/missing.so", "/in/x"))
}
