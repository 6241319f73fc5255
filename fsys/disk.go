package fsys

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/google/renameio"
	"github.com/pkg/errors"
	"github.com/pkg/fileutils"
)

func init() {
	Register("disk", func() Filesystem { return Disk{} })
}

// file and directory modes
const (
	FileMode = 0644
	DirMode  = 0755
)

// Disk stores content unchanged.
type Disk struct{}

func (Disk) Name() string { return "disk" }

func (Disk) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile goes through a temporary file in the same directory and
// a rename, so readers never see a partial file.
func (fs Disk) WriteFile(path string, data []byte) (err error) {
	err = fs.MkdirAll(filepath.Dir(path))
	if err != nil {
		return
	}
	err = renameio.WriteFile(path, data, FileMode)
	if err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return
}

func (Disk) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func (Disk) MkdirAll(path string) (err error) {
	if _, err = os.Stat(path); os.IsNotExist(err) {
		err = os.MkdirAll(path, DirMode)
		if err != nil {
			return
		}
	}
	return
}

func (Disk) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (Disk) IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (Disk) ReadDir(path string) (names []string, err error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return
	}
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return
}

func (Disk) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

func (fs Disk) Copy(src, dst string) (err error) {
	err = fs.MkdirAll(filepath.Dir(dst))
	if err != nil {
		return
	}
	return fileutils.CopyFile(dst, src)
}

func (Disk) Unwrap(raw []byte) ([]byte, error) {
	return raw, nil
}
