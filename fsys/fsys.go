// Package fsys is the physical file layer under a session folder.
package fsys

import (
	"fmt"
	"sort"
	"sync"
)

// Filesystem is the set of file operations a store needs.  Paths are
// absolute host paths.  Implementations may transform content on the
// way to disk; ReadFile always returns what was given to WriteFile.
type Filesystem interface {
	Name() string
	ReadFile(path string) ([]byte, error)
	// WriteFile replaces path atomically, creating parent directories.
	WriteFile(path string, data []byte) error
	Rename(oldpath, newpath string) error
	MkdirAll(path string) error
	Exists(path string) bool
	IsDir(path string) bool
	// ReadDir lists entry names in path, sorted.
	ReadDir(path string) ([]string, error)
	RemoveAll(path string) error
	Copy(src, dst string) error
	// Unwrap turns bytes as stored on disk back into content.  It is
	// used by readers that bypass ReadFile, such as revision history.
	Unwrap(raw []byte) ([]byte, error)
}

// Default is the filesystem used when none is configured.
const Default = "disk"

var (
	mu       sync.RWMutex
	registry = map[string]func() Filesystem{}
)

// Register makes a filesystem available by name.
func Register(name string, factory func() Filesystem) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := registry[name]; ok {
		panic(fmt.Sprintf("filesystem %q registered twice", name))
	}
	registry[name] = factory
}

// Get returns the filesystem registered under name.
func Get(name string) (fs Filesystem, err error) {
	if name == "" {
		name = Default
	}
	mu.RLock()
	factory, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown filesystem: %q (have %v)", name, Names())
	}
	return factory(), nil
}

// Names lists registered filesystems in sorted order.
func Names() (names []string) {
	mu.RLock()
	defer mu.RUnlock()
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}
