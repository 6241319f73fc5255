// Package steps keeps versioned chains of slot values.  A chain is
// an ordered list of named versions of one slot plus a pointer to the
// latest one.  Two backends share one contract: Flat keeps an index
// file beside the moved versions, Git commits each version.
package steps

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/t7a/slotbase/fsys"
	"github.com/t7a/slotbase/layout"
)

// Default is the backend used when none is configured.
const Default = "disk"

// ErrNothingToPromote is returned by Promote when the slot has no
// representation file to move into its chain.
var ErrNothingToPromote = errors.New("nothing to promote")

// Host is what a backend needs from the store that owns it.
type Host interface {
	FS() fsys.Filesystem
	Dir() string
	// LoadIn resolves base inside dir with the usual representation
	// order.  symbol names the definition inside source text.
	LoadIn(dir, base, symbol string, visited map[string]bool) (interface{}, error)
	// DecodeAs turns the content of one representation into a value.
	DecodeAs(kind layout.Kind, symbol string, data []byte) (interface{}, error)
}

// Backend stores and retrieves the versions of a slot.  slot is the
// Steps-kind path of the slot.  Lookups report found == false when
// the chain or the requested version does not exist.
type Backend interface {
	Name() string
	// Promote moves the slot's current representation into its
	// chain as version label.  pos < 0 appends; an existing pos is
	// overwritten in place.
	Promote(slot *layout.Path, label string, pos int) error
	// Steps lists version labels oldest first.
	Steps(slot *layout.Path) ([]string, error)
	Latest(slot *layout.Path, visited map[string]bool) (v interface{}, found bool, err error)
	Step(slot *layout.Path, label string) (v interface{}, found bool, err error)
	// Offset counts back from the latest version; 0 is latest.
	Offset(slot *layout.Path, n int) (v interface{}, found bool, err error)
}

var (
	mu       sync.RWMutex
	registry = map[string]func(Host) (Backend, error){}
)

// Register makes a backend available by name.
func Register(name string, factory func(Host) (Backend, error)) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := registry[name]; ok {
		panic(fmt.Sprintf("step backend %q registered twice", name))
	}
	registry[name] = factory
}

// Open returns the backend registered under name bound to host.
func Open(name string, host Host) (b Backend, err error) {
	if name == "" {
		name = Default
	}
	mu.RLock()
	factory, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown step backend: %q (have %v)", name, Names())
	}
	return factory(host)
}

// Names lists registered backends in sorted order.
func Names() (names []string) {
	mu.RLock()
	defer mu.RUnlock()
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

// ValidLabel reports whether label can name a version.  Labels
// become part of file names and commit subjects; "~" separates the
// ordinal of a repeated label.
func ValidLabel(label string) error {
	if label == "" {
		return errors.New("empty step label")
	}
	if strings.ContainsAny(label, "~/\\\n\x00") {
		return errors.Errorf("invalid step label: %q", label)
	}
	return nil
}

// movable are the representations that can become a version.
var movable = []layout.Kind{layout.Value, layout.Source, layout.Generator}

// present returns the movable representations of base found in dir.
func present(fs fsys.Filesystem, dir, base string) (kinds []layout.Kind) {
	for _, k := range movable {
		if fs.Exists(filepath.Join(dir, base+k.Suffix())) && !fs.IsDir(filepath.Join(dir, base+k.Suffix())) {
			kinds = append(kinds, k)
		}
	}
	return
}

// move renames every representation of src in srcDir to dst in
// dstDir, clearing stale representations of dst first.
func move(fs fsys.Filesystem, srcDir, src, dstDir, dst string) (err error) {
	kinds := present(fs, srcDir, src)
	if len(kinds) == 0 {
		return errors.Wrap(ErrNothingToPromote, filepath.Join(srcDir, src))
	}
	err = fs.MkdirAll(dstDir)
	if err != nil {
		return
	}
	for _, k := range movable {
		stale := filepath.Join(dstDir, dst+k.Suffix())
		if fs.Exists(stale) {
			err = fs.RemoveAll(stale)
			if err != nil {
				return
			}
		}
	}
	for _, k := range kinds {
		err = fs.Rename(filepath.Join(srcDir, src+k.Suffix()), filepath.Join(dstDir, dst+k.Suffix()))
		if err != nil {
			return errors.Wrapf(err, "promote %s", src)
		}
	}
	return
}
