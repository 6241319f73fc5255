package scope

import (
	"sort"
	"time"
)

// Graph maps a slot name to the dependencies it was derived from.
type Graph struct {
	slots map[string][]*Dependency
}

func NewGraph() *Graph {
	return &Graph{slots: map[string][]*Dependency{}}
}

// Get returns the dependencies recorded for slot.
func (g *Graph) Get(slot string) []*Dependency {
	return g.slots[slot]
}

func (g *Graph) Has(slot string) bool {
	_, ok := g.slots[slot]
	return ok
}

// Set replaces the entry for slot.
func (g *Graph) Set(slot string, deps ...*Dependency) {
	g.slots[slot] = nil
	for _, d := range deps {
		g.Attach(slot, d)
	}
}

// Attach adds d to the entry for slot unless a dependency with the
// same key is already there.
func (g *Graph) Attach(slot string, d *Dependency) {
	for _, have := range g.slots[slot] {
		if have.Key() == d.Key() {
			return
		}
	}
	g.slots[slot] = append(g.slots[slot], d)
}

// Covered reports whether a dependency recorded for slot already
// contains slot.
func (g *Graph) Covered(slot string) bool {
	for _, d := range g.slots[slot] {
		if d.Contains(slot) {
			return true
		}
	}
	return false
}

// Slots lists the slots with an entry, sorted.
func (g *Graph) Slots() (slots []string) {
	for slot := range g.slots {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	return
}

// Trace returns every slot that slot transitively depends on, sorted.
func (g *Graph) Trace(slot string) (out []string) {
	seen := map[string]bool{slot: true}
	queue := []string{slot}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, d := range g.slots[cur] {
			for _, s := range d.Slots() {
				if seen[s] {
					continue
				}
				seen[s] = true
				out = append(out, s)
				queue = append(queue, s)
			}
		}
	}
	sort.Strings(out)
	return
}

// Snapshot is the persisted form of a Graph.  Dependencies shared by
// several slots are stored once and referenced by key.
type Snapshot struct {
	Deps  map[string]DependencyRecord `msgpack:"deps" json:"deps" yaml:"deps"`
	Slots map[string][]string         `msgpack:"slots" json:"slots" yaml:"slots"`
}

type DependencyRecord struct {
	ID      string        `msgpack:"id" json:"id" yaml:"id"`
	Name    string        `msgpack:"name" json:"name" yaml:"name"`
	Entries []EntryRecord `msgpack:"entries" json:"entries" yaml:"entries"`
}

type EntryRecord struct {
	At   int64  `msgpack:"at" json:"at" yaml:"at"` // unix nanoseconds
	Slot string `msgpack:"slot" json:"slot" yaml:"slot"`
}

func (g *Graph) Snapshot() (snap Snapshot) {
	snap.Deps = map[string]DependencyRecord{}
	snap.Slots = map[string][]string{}
	for slot, deps := range g.slots {
		keys := []string{}
		for _, d := range deps {
			key := d.Key()
			keys = append(keys, key)
			if _, ok := snap.Deps[key]; ok {
				continue
			}
			rec := DependencyRecord{ID: d.ID, Name: d.Name}
			for _, e := range d.entries {
				rec.Entries = append(rec.Entries, EntryRecord{At: e.At.UnixNano(), Slot: e.Slot})
			}
			snap.Deps[key] = rec
		}
		snap.Slots[slot] = keys
	}
	return
}

// GraphFromSnapshot rebuilds a graph, restoring shared dependencies
// as shared pointers.
func GraphFromSnapshot(snap Snapshot) *Graph {
	g := NewGraph()
	deps := map[string]*Dependency{}
	for key, rec := range snap.Deps {
		d := &Dependency{ID: rec.ID, Name: rec.Name}
		for _, e := range rec.Entries {
			d.addAt(time.Unix(0, e.At), e.Slot)
		}
		deps[key] = d
	}
	for slot, keys := range snap.Slots {
		g.slots[slot] = []*Dependency{}
		for _, key := range keys {
			if d, ok := deps[key]; ok {
				g.Attach(slot, d)
			}
		}
	}
	return g
}
