// Package layout names the files a slot occupies inside a session
// folder.
package layout

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Kind is the physical representation of a slot.
type Kind int

const (
	Value Kind = iota
	Source
	Generator
	Reference
	Steps
)

// Kinds lists every representation in load order.
var Kinds = []Kind{Value, Source, Generator, Reference, Steps}

var kindNames = []string{"value", "source", "generator", "reference", "steps"}

var suffixes = []string{"", ".src", ".gen", ".ref", ".steps"}

// reserved file names
const (
	ConfigFile = ".$.config"
	GraphSlot  = "$depsgraph.meta"
	LatestRef  = ".latest.ref"
)

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Suffix is the file name suffix for the kind.
func (k Kind) Suffix() string {
	if k < 0 || int(k) >= len(suffixes) {
		return ""
	}
	return suffixes[k]
}

// ParseKind accepts the names printed by Kind.String.
func ParseKind(s string) (k Kind, err error) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return k, fmt.Errorf("unknown representation kind: %q", s)
}

// Path locates one representation of one slot.
type Path struct {
	Dir    string
	Prefix string
	Name   string // logical slot name
	Kind   Kind
	Base   string // prefix + name + suffix
	Abs    string
}

func (path Path) New(dir, prefix, name string, kind Kind) (res *Path) {
	path.Dir = filepath.Clean(dir)
	path.Prefix = prefix
	path.Name = name
	path.Kind = kind
	path.Base = prefix + name + kind.Suffix()
	path.Abs = filepath.Join(path.Dir, path.Base)
	return &path
}

// Physical is the prefixed slot name without any suffix.
func (path *Path) Physical() string {
	return path.Prefix + path.Name
}

// Candidates returns the paths to try for a kind, prefixed variant
// first.
func Candidates(dir, prefix, name string, kind Kind) (paths []*Path) {
	if prefix != "" {
		paths = append(paths, Path{}.New(dir, prefix, name, kind))
	}
	paths = append(paths, Path{}.New(dir, "", name, kind))
	return
}

// Parse maps a file name found in a session folder back to a slot
// name and kind.  Hidden files are never slots.
func Parse(base string) (name string, kind Kind, ok bool) {
	if base == "" || strings.HasPrefix(base, ".") {
		return
	}
	for _, k := range Kinds[1:] {
		suffix := k.Suffix()
		if strings.HasSuffix(base, suffix) && len(base) > len(suffix) {
			return strings.TrimSuffix(base, suffix), k, true
		}
	}
	return base, Value, true
}

// StepBase is the file name of one version inside a flat step chain.
func StepBase(physical, label string) string {
	return physical + "." + label
}

// StepsDir is the chain sub-namespace for a physical slot name.
func StepsDir(dir, physical string) string {
	return filepath.Join(dir, physical+Steps.Suffix())
}

// Valid reports whether name can be used as a slot name.
func Valid(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty slot name")
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("slot name contains a path separator: %q", name)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("slot name starts with a dot: %q", name)
	}
	return nil
}
