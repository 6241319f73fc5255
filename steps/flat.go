package steps

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/slotbase/layout"
)

func init() {
	Register("disk", func(host Host) (Backend, error) { return &Flat{Host: host}, nil })
}

// Flat keeps a chain in the {name}.steps directory: each version is
// moved there as {name}.{label} ({name}.{label}~N for a repeated
// label), the index file {name}.steps lists versions one per line,
// and .latest.ref names the latest one.
type Flat struct {
	Host Host
}

func (b *Flat) Name() string { return "disk" }

func (b *Flat) chain(slot *layout.Path) string {
	return layout.StepsDir(b.Host.Dir(), slot.Physical())
}

func (b *Flat) indexPath(slot *layout.Path) string {
	return filepath.Join(b.chain(slot), slot.Physical()+layout.Steps.Suffix())
}

func (b *Flat) index(slot *layout.Path) (lines []string, err error) {
	buf, err := b.Host.FS().ReadFile(b.indexPath(slot))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(buf), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return
}

// entry picks the version name for label at index line i:
// {name}.{label}, or {name}.{label}~N when another line already
// uses that name.
func entry(physical, label string, lines []string, i int) string {
	taken := map[string]bool{}
	for j, line := range lines {
		if j != i {
			taken[line] = true
		}
	}
	base := layout.StepBase(physical, label)
	name := base
	for n := 2; taken[name]; n++ {
		name = fmt.Sprintf("%s~%d", base, n)
	}
	return name
}

// label recovers the step label from an index line.
func label(physical, line string) string {
	label := strings.TrimPrefix(line, physical+".")
	i := strings.LastIndex(label, "~")
	if i < 0 {
		return label
	}
	if _, err := strconv.Atoi(label[i+1:]); err != nil {
		return label
	}
	return label[:i]
}

func (b *Flat) Promote(slot *layout.Path, label string, pos int) (err error) {
	defer Return(&err)
	err = ValidLabel(label)
	Ck(err)
	fs := b.Host.FS()
	chain := b.chain(slot)
	lines, err := b.index(slot)
	Ck(err)
	i := len(lines)
	if pos >= 0 && pos < len(lines) {
		i = pos
	} else if pos >= 0 {
		log.Infof("%s: step position %d out of range, appending", slot.Physical(), pos)
	}
	name := entry(slot.Physical(), label, lines, i)
	err = move(fs, b.Host.Dir(), slot.Physical(), chain, name)
	if err != nil {
		return
	}
	if i < len(lines) {
		if lines[i] != name {
			b.drop(chain, lines[i])
		}
		lines[i] = name
	} else {
		lines = append(lines, name)
	}
	err = fs.WriteFile(b.indexPath(slot), []byte(strings.Join(lines, "\n")+"\n"))
	Ck(err)
	if i == len(lines)-1 {
		err = fs.WriteFile(filepath.Join(chain, layout.LatestRef), []byte(name))
		Ck(err)
	}
	log.Debugf("promoted %s to %s", slot.Physical(), name)
	return
}

// drop removes the files of a version replaced in the index.
func (b *Flat) drop(chain, name string) {
	for _, k := range movable {
		path := filepath.Join(chain, name+k.Suffix())
		if b.Host.FS().Exists(path) {
			err := b.Host.FS().RemoveAll(path)
			if err != nil {
				log.Warnf("remove replaced version %s: %v", path, err)
			}
		}
	}
}

func (b *Flat) Steps(slot *layout.Path) (labels []string, err error) {
	lines, err := b.index(slot)
	if err != nil {
		return
	}
	for _, line := range lines {
		labels = append(labels, label(slot.Physical(), line))
	}
	return
}

// exists reports whether some representation of entry is in chain.
func (b *Flat) exists(chain, entry string) bool {
	fs := b.Host.FS()
	for _, k := range []layout.Kind{layout.Value, layout.Source, layout.Generator, layout.Reference} {
		if fs.Exists(filepath.Join(chain, entry+k.Suffix())) {
			return true
		}
	}
	return false
}

func (b *Flat) load(slot *layout.Path, entry string, visited map[string]bool) (v interface{}, found bool, err error) {
	v, err = b.Host.LoadIn(b.chain(slot), entry, slot.Name, visited)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Latest follows .latest.ref.  Without a usable ref it scans the
// index from the end for the first version still on disk.
func (b *Flat) Latest(slot *layout.Path, visited map[string]bool) (v interface{}, found bool, err error) {
	fs := b.Host.FS()
	chain := b.chain(slot)
	if !fs.IsDir(chain) {
		return
	}
	buf, err := fs.ReadFile(filepath.Join(chain, layout.LatestRef))
	if err == nil {
		entry := strings.TrimSpace(string(buf))
		if b.exists(chain, entry) {
			return b.load(slot, entry, visited)
		}
	} else if !os.IsNotExist(err) {
		return
	}
	lines, err := b.index(slot)
	if err != nil {
		return
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if b.exists(chain, lines[i]) {
			return b.load(slot, lines[i], visited)
		}
	}
	return nil, false, nil
}

// Step returns the newest version carrying label.
func (b *Flat) Step(slot *layout.Path, want string) (v interface{}, found bool, err error) {
	lines, err := b.index(slot)
	if err != nil {
		return
	}
	chain := b.chain(slot)
	for i := len(lines) - 1; i >= 0; i-- {
		if label(slot.Physical(), lines[i]) == want && b.exists(chain, lines[i]) {
			return b.load(slot, lines[i], nil)
		}
	}
	return
}

func (b *Flat) Offset(slot *layout.Path, n int) (v interface{}, found bool, err error) {
	lines, err := b.index(slot)
	if err != nil {
		return
	}
	i := len(lines) - 1 - n
	if n < 0 || i < 0 {
		return
	}
	if !b.exists(b.chain(slot), lines[i]) {
		return
	}
	return b.load(slot, lines[i], nil)
}
