// Package scope records which slots a unit of work read and wrote,
// and keeps the resulting dependency graph.
package scope

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Entry is one timestamped slot reference.
type Entry struct {
	At   time.Time
	Slot string
}

// Dependency is a set of slot names ordered by the time they were
// added.  An unnamed Dependency is identified by its ID, a named one
// by its name.
type Dependency struct {
	ID      string
	Name    string
	entries []Entry
}

// NewDependency returns an empty Dependency with a fresh ID.
func NewDependency(name string, slots ...string) *Dependency {
	d := &Dependency{
		ID:   uuid.Must(uuid.NewV7()).String(),
		Name: name,
	}
	d.Update(slots...)
	return d
}

// Key is the identity used to deduplicate dependencies.
func (d *Dependency) Key() string {
	if d.Name != "" {
		return "name:" + d.Name
	}
	return "id:" + d.ID
}

// Add records slot at the current time.  A slot already present is
// left where it is.
func (d *Dependency) Add(slot string) {
	d.addAt(time.Now(), slot)
}

// Update adds each slot in order.
func (d *Dependency) Update(slots ...string) {
	for _, slot := range slots {
		d.Add(slot)
	}
}

func (d *Dependency) addAt(at time.Time, slot string) {
	if d.Contains(slot) {
		return
	}
	e := Entry{At: at, Slot: slot}
	i := sort.Search(len(d.entries), func(i int) bool {
		return d.entries[i].At.After(at)
	})
	d.entries = append(d.entries, Entry{})
	copy(d.entries[i+1:], d.entries[i:])
	d.entries[i] = e
}

func (d *Dependency) Contains(slot string) bool {
	for _, e := range d.entries {
		if e.Slot == slot {
			return true
		}
	}
	return false
}

// Slots returns the slot names in time order.
func (d *Dependency) Slots() (slots []string) {
	for _, e := range d.entries {
		slots = append(slots, e.Slot)
	}
	return
}

func (d *Dependency) Entries() []Entry {
	return append([]Entry(nil), d.entries...)
}

func (d *Dependency) Len() int {
	return len(d.entries)
}
