// Package prelink recovers the load address that Android's apriori prelinker
// stamps into the trailer of a shared object.
package prelink

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// TrailerSize is the size of the prelink trailer: a little-endian uint32
// address followed by Magic.
const TrailerSize = 8

// Magic tags the end of a prelinked file.
var Magic = [4]byte{'P', 'R', 'E', ' '}

// DefaultJobs bounds how many files Map inspects at once.
const DefaultJobs = 8

// Info is the prelink state of a file.
type Info struct {
	Addr      uint32
	Prelinked bool
}

func (i Info) String() string {
	if !i.Prelinked {
		return "not prelinked"
	}
	return fmt.Sprintf("prelinked @ %#08x", i.Addr)
}

// Detect reads the trailer of r. Files shorter than TrailerSize are never prelinked.
func Detect(r io.ReadSeeker) (Info, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return Info{}, errors.Wrap(err, "prelink: failed to get file size")
	}
	if size < TrailerSize {
		return Info{}, nil
	}
	if _, err := r.Seek(size-TrailerSize, io.SeekStart); err != nil {
		return Info{}, errors.Wrap(err, "prelink: failed to seek to trailer")
	}
	var trailer [TrailerSize]byte
	if _, err := io.ReadFull(r, trailer[:]); err != nil {
		return Info{}, errors.Wrap(err, "prelink: failed to read trailer")
	}
	if !bytes.Equal(trailer[4:], Magic[:]) {
		return Info{}, nil
	}
	return Info{
		Addr:      binary.LittleEndian.Uint32(trailer[:4]),
		Prelinked: true,
	}, nil
}

// DetectFile opens name read-only on fs and detects its prelink state.
func DetectFile(fs afero.Fs, name string) (Info, error) {
	f, err := fs.Open(name)
	if err != nil {
		return Info{}, fmt.Errorf("failed to open file %s: %w", name, err)
	}
	defer f.Close()
	return Detect(f)
}

// Entry is one row of a prelink map.
type Entry struct {
	Path string
	Info
	Err error
}

// Name returns the base name of the entry's file.
func (e Entry) Name() string {
	return filepath.Base(e.Path)
}

// Map detects the prelink state of every file and returns the entries ordered
// by prelink address. Prelinked files come first and ties fall back to the file
// name. Files that could not be inspected are kept with Err set and the
// returned error counts them.
func Map(fs afero.Fs, names []string, jobs int) ([]Entry, error) {
	return MapFunc(fs, names, jobs, nil)
}

// MapFunc is Map with a callback invoked once per file as soon as it has been
// inspected. fn may be called concurrently.
func MapFunc(fs afero.Fs, names []string, jobs int, fn func(Entry)) ([]Entry, error) {
	if jobs <= 0 {
		jobs = DefaultJobs
	}
	entries := make([]Entry, len(names))

	var g errgroup.Group
	g.SetLimit(jobs)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			info, err := DetectFile(fs, name)
			entries[i] = Entry{Path: name, Info: info, Err: err}
			if fn != nil {
				fn(entries[i])
			}
			return nil
		})
	}
	g.Wait()

	var failed []string
	for _, e := range entries {
		if e.Err != nil {
			failed = append(failed, e.Path)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entryLess(entries[i], entries[j])
	})
	if len(failed) > 0 {
		return entries, fmt.Errorf("prelink: failed to process %d file(s): %s", len(failed), strings.Join(failed, ", "))
	}
	return entries, nil
}

func entryLess(a, b Entry) bool {
	switch {
	case a.Prelinked && b.Prelinked:
		if a.Addr != b.Addr {
			return a.Addr < b.Addr
		}
	case a.Prelinked != b.Prelinked:
		return a.Prelinked
	}
	return a.Name() < b.Name()
}
