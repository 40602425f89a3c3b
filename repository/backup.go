package repository

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/repostash/repostash/internal/utils"
)

const backupPrefix = "backup-"

// backupSlot tracks the sideways move of an existing destination directory
// while a fresh clone replaces it. The backup lives as a sibling of dst
// (backup-<base>) so the move is always a same-volume atomic rename.
type backupSlot struct {
	dst    string
	backup string
	log    *slog.Logger
}

// takeBackup moves an existing dst out of the way and returns a slot that
// can later commit or restore it. When dst does not exist there is nothing
// to protect and takeBackup returns a nil slot.
func takeBackup(dst string, log *slog.Logger) (*backupSlot, error) {
	if _, err := os.Stat(dst); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("unable to stat destination path:%s err:%w", dst, err)
	}

	// an empty destination has nothing worth protecting, treat it as fresh
	if empty, err := utils.DirIsEmpty(dst); err == nil && empty {
		if err := os.Remove(dst); err != nil {
			return nil, fmt.Errorf("unable to remove empty destination path:%s err:%w", dst, err)
		}
		return nil, nil
	}

	backup := filepath.Join(filepath.Dir(dst), backupPrefix+filepath.Base(dst))

	// a stale backup from an interrupted earlier run blocks the rename
	if _, err := os.Stat(backup); err == nil {
		log.Info("removing stale backup", "path", backup)
		if err := utils.RemoveAll(backup, log); err != nil {
			return nil, fmt.Errorf("unable to remove stale backup path:%s err:%w", backup, err)
		}
	}

	if err := os.Rename(dst, backup); err != nil {
		return nil, fmt.Errorf("unable to move destination to backup path:%s err:%w", dst, err)
	}

	return &backupSlot{dst: dst, backup: backup, log: log}, nil
}

// commit discards the backup after a successful clone. A failed deletion is
// logged and otherwise ignored, the fresh clone at dst is already good.
func (s *backupSlot) commit() {
	if s == nil {
		return
	}
	if err := utils.RemoveAll(s.backup, s.log); err != nil {
		s.log.Error("unable to remove backup after successful clone", "path", s.backup, "err", err)
	}
}

// restore puts the backed-up directory back at dst after a failed clone,
// removing whatever partial state the clone left behind first. If the
// rollback itself fails both directories are kept for manual recovery.
func (s *backupSlot) restore() error {
	if s == nil {
		return nil
	}

	if err := utils.RemoveAll(s.dst, s.log); err != nil {
		s.log.Error("unable to remove partial clone during rollback, backup kept", "dst", s.dst, "backup", s.backup, "err", err)
		return fmt.Errorf("unable to remove partial clone path:%s err:%w", s.dst, err)
	}

	if err := os.Rename(s.backup, s.dst); err != nil {
		s.log.Error("unable to restore backup, both paths kept for manual recovery", "dst", s.dst, "backup", s.backup, "err", err)
		return fmt.Errorf("unable to restore backup path:%s err:%w", s.backup, err)
	}

	return nil
}
