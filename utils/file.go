package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gosimple/slug"
)

// EnsureDir creates dir (and parents) if it doesn't exist
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, os.ModePerm)
}

// BackupFileName returns the file name for a backup export of userID taken at t.
// e.g. "yams-backup-3f2a-device-20260102-030405.json"
func BackupFileName(userID string, t time.Time) string {
	name := slug.Make(userID)
	if name == "" {
		name = "device"
	}
	return fmt.Sprintf("yams-backup-%s-%s.json", name, t.UTC().Format("20060102-150405"))
}

// WriteFileAtomic writes data to a temp file next to path and renames it into
// place, so a crash never leaves a truncated file behind.
func WriteFileAtomic(path string, data []byte) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path))
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
