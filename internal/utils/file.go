package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// maxTempFiles bounds the search for a free temp name.
const maxTempFiles = 10000

// TempSibling returns an unused path of the form <path>.tempNNNN in the same
// directory as path, so a later rename onto path never crosses filesystems.
func TempSibling(fs afero.Fs, path string) (string, error) {
	for i := 0; i < maxTempFiles; i++ {
		tmp := fmt.Sprintf("%s.temp%04d", path, i)
		if _, err := fs.Stat(tmp); os.IsNotExist(err) {
			return tmp, nil
		} else if err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", tmp, err)
		}
	}
	return "", fmt.Errorf("failed to find a free temp file name for %s", path)
}

// CopyFile copies src to dst, creating or truncating dst.
func CopyFile(fs afero.Fs, src, dst string) error {
	in, err := fs.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	mode := os.FileMode(0o644)
	if info, err := in.Stat(); err == nil {
		mode = info.Mode().Perm()
	}

	out, err := fs.OpenFile(dst, os.O_RDWR|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("failed to sync %s: %w", dst, err)
	}
	return out.Close()
}

// ReplaceFile moves src onto dst, replacing dst if it exists.
func ReplaceFile(fs afero.Fs, src, dst string) error {
	if dir := filepath.Dir(dst); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create folder %s: %w", dir, err)
		}
	}
	if err := fs.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", src, dst, err)
	}
	return nil
}
