package magic

import (
	"fmt"
	"io"

	"github.com/spf13/afero"
)

type Magic [4]byte

var (
	ELF      Magic = [4]byte{0x7f, 'E', 'L', 'F'}
	MachO32  Magic = [4]byte{0xce, 0xfa, 0xed, 0xfe}
	MachO64  Magic = [4]byte{0xcf, 0xfa, 0xed, 0xfe}
	PE       Magic = [4]byte{'M', 'Z', 0x90, 0x00}
	ZipLocal Magic = [4]byte{'P', 'K', 0x03, 0x04}
)

func readMagic(fs afero.Fs, filePath string) (Magic, error) {
	var magic Magic

	f, err := fs.Open(filePath)
	if err != nil {
		return magic, fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer f.Close()

	if _, err = io.ReadFull(f, magic[:]); err != nil {
		return magic, fmt.Errorf("failed to read magic: %w", err)
	}
	return magic, nil
}

// IsELF returns true if the file starts with the ELF magic. The error explains
// what the file looks like otherwise.
func IsELF(fs afero.Fs, filePath string) (bool, error) {
	magic, err := readMagic(fs, filePath)
	if err != nil {
		return false, err
	}

	switch magic {
	case ELF:
		return true, nil
	case MachO32, MachO64:
		return false, fmt.Errorf("%s is a MachO file, not an ELF", filePath)
	case ZipLocal:
		return false, fmt.Errorf("%s is a zip archive (extract the lib/ folder of the APK first)", filePath)
	default:
		if magic[0] == PE[0] && magic[1] == PE[1] {
			return false, fmt.Errorf("%s is a PE file, not an ELF", filePath)
		}
	}

	return false, fmt.Errorf("%s is not an ELF file", filePath)
}
