// Package jni renames JNI native methods inside compiled shared objects.
//
// RegisterNatives tables are arrays of JNINativeMethod{name, signature, fnPtr}
// stored in .data, where name and signature point into .rodata. Renaming a
// method means pointing its name field at another string that already exists
// in .rodata. The file layout never changes.
package jni

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/andlibutils/andlibutils/internal/config"
	"github.com/andlibutils/andlibutils/internal/utils"
	"github.com/andlibutils/andlibutils/pkg/elf"
	"github.com/andlibutils/andlibutils/pkg/prelink"
	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/afero"
)

var (
	ErrInvalidContainer = errors.New("not a valid ELF")
	ErrMissingSection   = errors.New("missing section")
	ErrInvalidSignature = errors.New("invalid function signature")
	ErrStringNotFound   = errors.New("string not found")
	ErrNoMatchesFound   = errors.New("found no matches")
	ErrIO               = errors.New("i/o failure")
)

func ioError(err error, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, fmt.Sprintf(format, args...), err)
}

// Match is one rewritten method registration record.
type Match struct {
	// Offset is the file offset of the name field.
	Offset uint64
	// Addr is the virtual address of the name field.
	Addr uint64
	Old uint64
	New uint64
}

// Result describes a successful rename.
type Result struct {
	Prelink    prelink.Info
	StringBase uint64
	Matches    []Match
}

// Count returns the number of rewritten records.
func (r *Result) Count() int {
	return len(r.Matches)
}

type addrSet map[uint64]struct{}

func (s addrSet) has(addr uint64) bool {
	_, ok := s[addr]
	return ok
}

func (s addrSet) sorted() []uint64 {
	addrs := lo.Keys(s)
	slices.Sort(addrs)
	return addrs
}

// Renamer patches one file in place. It is not safe for concurrent use.
type Renamer struct {
	label   string
	conf    config.Rename
	log     log.Interface
	prelink prelink.Info
	r       *elf.Reader
}

// NewRenamer opens path on fs for patching. label names the file in messages,
// which matters when path is a temporary copy.
func NewRenamer(fs afero.Fs, path, label string, conf *config.Rename) (*Renamer, error) {
	rn := &Renamer{
		label: label,
		log:   log.Log,
	}
	if conf != nil {
		rn.conf = *conf
	}
	if rn.conf.StringSection == "" {
		rn.conf.StringSection = config.DefaultStringSection
	}
	if rn.conf.DataSection == "" {
		rn.conf.DataSection = config.DefaultDataSection
	}

	var err error
	rn.prelink, err = prelink.DetectFile(fs, path)
	if err != nil {
		return nil, ioError(err, "failed to check prelink state of %s", label)
	}

	rn.r, err = elf.OpenReadWrite(fs, path, rn.conf.BufferSize)
	if err != nil {
		return nil, ioError(err, "failed to open %s", label)
	}
	if rn.r.Valid() {
		if err := rn.r.ReadSections(); err != nil {
			rn.r.Close()
			return nil, ioError(err, "failed to parse sections of %s", label)
		}
	}
	return rn, nil
}

// SetLogger sets where progress and warnings go. Progress is logged at debug level.
func (rn *Renamer) SetLogger(l log.Interface) {
	rn.log = l
}

// Prelink returns the prelink state detected when the file was opened.
func (rn *Renamer) Prelink() prelink.Info {
	return rn.prelink
}

// Close closes the underlying file.
func (rn *Renamer) Close() error {
	return rn.r.Close()
}

// SplitSignature splits "name(args)ret" into "name" and "(args)ret".
func SplitSignature(signature string) (string, string, error) {
	idx := strings.IndexByte(signature, '(')
	if idx < 0 {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidSignature, signature)
	}
	return signature[:idx], signature[idx:], nil
}

// Rename points every registration record of signature at newName, which
// must already exist in the string section.
func (rn *Renamer) Rename(signature, newName string) (*Result, error) {
	strSect := rn.conf.StringSection
	dataSect := rn.conf.DataSection

	if !rn.r.Valid() {
		return nil, fmt.Errorf("%w: file %s", ErrInvalidContainer, rn.label)
	}
	if rn.r.Data == elf.ELFDATA2MSB {
		rn.log.Warnf("%s is big-endian, addresses will be read as little-endian", rn.label)
	}
	for _, name := range []string{dataSect, strSect} {
		if !rn.r.HasSection(name) {
			return nil, fmt.Errorf("%w: file %s does not have a %s section", ErrMissingSection, rn.label, name)
		}
	}

	res := &Result{Prelink: rn.prelink}
	strAddr, _ := rn.r.SectionAddr(strSect)
	res.StringBase = strAddr
	rn.log.Debugf("%s section @ %#08x", strSect, strAddr)
	if rn.prelink.Prelinked {
		res.StringBase += uint64(rn.prelink.Addr)
		rn.log.Debugf("file prelinked  @ %#08x", rn.prelink.Addr)
		rn.log.Debugf("=> %s base @ %#08x", strSect, res.StringBase)
	}

	funcName, onlySig, err := SplitSignature(signature)
	if err != nil {
		return nil, err
	}

	funcAddrs, err := rn.findString(funcName, strSect, false, res.StringBase, "function name")
	if err != nil {
		return nil, err
	}
	sigAddrs, err := rn.findString(onlySig, strSect, false, res.StringBase, "signature")
	if err != nil {
		return nil, err
	}
	newAddrs, err := rn.findString(newName, strSect, true, res.StringBase, "new function name")
	if err != nil {
		return nil, err
	}
	newAddr := newAddrs.sorted()[0]

	rn.log.Debugf("Searching %s for occurrences of the function...", dataSect)
	if err := rn.r.SeekSection(dataSect, 0); err != nil {
		return nil, ioError(err, "failed to seek to %s", dataSect)
	}
	dataAddr, _ := rn.r.SectionAddr(dataSect)
	word := uint64(rn.r.PointerSize())

	var last uint64
	haveLast := false
	for !rn.r.FinishedSection() {
		cur, err := rn.r.ReadWord()
		if err != nil {
			return nil, ioError(err, "failed to read %s", dataSect)
		}
		if haveLast && funcAddrs.has(last) && sigAddrs.has(cur) {
			ofs, _ := rn.r.CurrentOffsetInSection()
			m := Match{
				Offset: rn.r.Pos() - 2*word,
				Addr:   dataAddr + ofs - 2*word,
				Old:    last,
				New:    newAddr,
			}
			utils.Indent(rn.log.Debug, 2)(fmt.Sprintf("found match @ %#08x replace to new offset: %#08x", m.Addr, m.New))
			if err := rn.r.Reseek(-2 * int64(word)); err != nil {
				return nil, ioError(err, "failed to seek back to match @ %#08x", m.Addr)
			}
			if err := rn.r.WriteWord(newAddr); err != nil {
				return nil, ioError(err, "failed to patch match @ %#08x", m.Addr)
			}
			if err := rn.r.Skip(int64(word)); err != nil {
				return nil, ioError(err, "failed to skip signature @ %#08x", m.Addr+word)
			}
			res.Matches = append(res.Matches, m)
		}
		last, haveLast = cur, true
	}

	switch {
	case res.Count() == 0:
		return nil, fmt.Errorf("%w: %s in %s", ErrNoMatchesFound, signature, rn.label)
	case res.Count() > 1:
		rn.log.Warnf("Found and replaced %d matches?!", res.Count())
	}
	return res, nil
}

// findString collects the addresses of section strings ending with str.
// In best mode only one address is kept: the first exact match, or failing
// that the last partial one.
func (rn *Renamer) findString(str, section string, best bool, base uint64, label string) (addrSet, error) {
	if len(str) == 0 {
		return nil, fmt.Errorf("%w: invalid %s - empty string", ErrStringNotFound, label)
	}

	rn.log.Debugf("Searching %s for %s %q...", section, label, str)
	if err := rn.r.SeekSection(section, 0); err != nil {
		return nil, ioError(err, "failed to seek to %s", section)
	}
	sectAddr, _ := rn.r.SectionAddr(section)

	addrs := make(addrSet)
	var bestAddr uint64
	haveBest := false
	for {
		ofs, found, err := rn.r.SeekString(str)
		if err != nil {
			return nil, ioError(err, "failed to search %s for %s", section, label)
		}
		if !found {
			break
		}
		if best {
			bestAddr, haveBest = ofs+base, true
		} else {
			addrs[ofs+base] = struct{}{}
		}
		utils.Indent(rn.log.Debug, 2)(fmt.Sprintf("found %s @ %#08x", label, ofs+sectAddr))
		if best && rn.r.LastMatchExact() {
			break
		}
	}
	if haveBest {
		addrs[bestAddr] = struct{}{}
	}

	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s not found in %s: %s", ErrStringNotFound, label, section, str)
	}
	return addrs, nil
}

// Config is the input of Run.
type Config struct {
	Input     string
	Signature string
	NewName   string
	// Output is where the patched file goes, defaults to Input.
	Output string
	Rename *config.Rename
	Logger log.Interface
}

// Run renames on a temporary copy next to the output and only replaces the
// output once the rename succeeded. The input is never modified otherwise.
func Run(fs afero.Fs, conf *Config) (*Result, error) {
	out := conf.Output
	if out == "" {
		out = conf.Input
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, ioError(err, "failed to create output folder %s", dir)
		}
	}

	tmp, err := utils.TempSibling(fs, out)
	if err != nil {
		return nil, ioError(err, "failed to pick a temp file")
	}
	defer func() {
		if _, err := fs.Stat(tmp); !os.IsNotExist(err) {
			fs.Remove(tmp)
		}
	}()

	if err := utils.CopyFile(fs, conf.Input, tmp); err != nil {
		return nil, ioError(err, "failed to copy input")
	}

	rn, err := NewRenamer(fs, tmp, conf.Input, conf.Rename)
	if err != nil {
		return nil, err
	}
	if conf.Logger != nil {
		rn.SetLogger(conf.Logger)
	}
	res, err := rn.Rename(conf.Signature, conf.NewName)
	if cerr := rn.Close(); err == nil && cerr != nil {
		err = ioError(cerr, "failed to close %s", tmp)
	}
	if err != nil {
		return nil, err
	}

	if err := utils.ReplaceFile(fs, tmp, out); err != nil {
		return nil, ioError(err, "failed to write result")
	}
	return res, nil
}
