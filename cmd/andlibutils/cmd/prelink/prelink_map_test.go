package prelink

import (
	"bytes"
	"errors"
	"testing"

	"github.com/andlibutils/andlibutils/pkg/prelink"
	"github.com/stretchr/testify/assert"
)

func TestWriteMap(t *testing.T) {
	entries := []prelink.Entry{
		{Path: "system/lib/libc.so", Info: prelink.Info{Addr: 0xafd00000, Prelinked: true}},
		{Path: "system/lib/libz.so"},
		{Path: "system/lib/missing.so", Err: errors.New("boom")},
	}
	var buf bytes.Buffer
	writeMap(&buf, entries, false)
	assert.Equal(t,
		"prelinked @ 0xAFD00000: system/lib/libc.so\n"+
			"not prelinked:          system/lib/libz.so\n",
		buf.String())
}
