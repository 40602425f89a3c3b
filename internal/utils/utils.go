// Package utils provides filesystem helpers shared by the mirroring engine.
package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

const DefaultDirMode fs.FileMode = os.FileMode(0755) // 'rwxr-xr-x'

// DirIsEmpty returns true if the given dir has no entries
func DirIsEmpty(path string) (bool, error) {
	dirents, err := os.ReadDir(path)
	if err != nil {
		return false, err
	}
	return len(dirents) == 0, nil
}

// RemoveAll removes path and any children it contains. git is known to leave
// read-only objects behind which os.RemoveAll cannot delete, so on a
// permission error the write-protection bits are cleared and the removal is
// retried exactly once before the error is treated as hard failure.
func RemoveAll(path string, log *slog.Logger) error {
	err := os.RemoveAll(path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrPermission) {
		return err
	}

	log.Info("clearing write protection and retrying delete", "path", path, "err", err)
	if err := makeWritable(path); err != nil {
		return fmt.Errorf("unable to clear write protection on '%s' err:%w", path, err)
	}
	return os.RemoveAll(path)
}

// makeWritable walks path adding owner write (and for dirs, execute) bits so
// that a following removal can traverse and delete every entry.
func makeWritable(path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		mode := info.Mode().Perm() | 0200
		if d.IsDir() {
			// dirs also need execute to list and unlink children
			mode |= 0300
		}
		return os.Chmod(p, mode)
	})
}
