package scope

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrNoFrame is returned by Exit when no frame is open.
var ErrNoFrame = errors.New("no open scope")

// Mode selects when a repeated read is left out of the active frame.
type Mode int

const (
	// SuppressFrame skips a read only if the active frame already
	// recorded it.  Sibling scopes each record their own reads.
	SuppressFrame Mode = iota
	// SuppressGlobal skips a read once any dependency in the graph
	// covers the slot, whichever frame recorded it.
	SuppressGlobal
)

// Frame is one open scope.
type Frame struct {
	Label string
	// Deps collects the slots read inside the frame.
	Deps *Dependency
	// Resident holds names that were cached before the frame began.
	Resident map[string]bool
	stored   []string
	seen     map[string]bool
}

// Stored returns the slots written inside the frame, in write order.
func (f *Frame) Stored() []string {
	return append([]string(nil), f.stored...)
}

// Touched returns every slot read or written inside the frame.
func (f *Frame) Touched() (names []string) {
	seen := map[string]bool{}
	for _, name := range append(f.Deps.Slots(), f.stored...) {
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return
}

// Tracker is a stack of frames over a dependency graph.
type Tracker struct {
	Graph  *Graph
	Mode   Mode
	frames []*Frame
}

func NewTracker(graph *Graph, mode Mode) *Tracker {
	if graph == nil {
		graph = NewGraph()
	}
	return &Tracker{Graph: graph, Mode: mode}
}

// Enter pushes a new frame.
func (t *Tracker) Enter(label string) (f *Frame) {
	f = &Frame{
		Label:    label,
		Deps:     NewDependency(""),
		Resident: map[string]bool{},
		seen:     map[string]bool{},
	}
	t.frames = append(t.frames, f)
	log.Debugf("enter scope %q depth %d", label, len(t.frames))
	return
}

// Active returns the innermost frame or nil.
func (t *Tracker) Active() *Frame {
	if len(t.frames) == 0 {
		return nil
	}
	return t.frames[len(t.frames)-1]
}

func (t *Tracker) Depth() int {
	return len(t.frames)
}

// Exit pops the innermost frame and merges what it wrote into the
// graph.  A slot without an entry gets the frame's read dependency.
// For a slot that already has one, the frame's write-set is folded
// into each existing dependency and the frame's read dependency is
// attached next to them, so repeated writes accumulate provenance.
func (t *Tracker) Exit() (f *Frame, err error) {
	f = t.Active()
	if f == nil {
		return nil, ErrNoFrame
	}
	t.frames = t.frames[:len(t.frames)-1]
	for _, name := range f.stored {
		existing := t.Graph.Get(name)
		if len(existing) == 0 {
			t.Graph.Set(name, f.Deps)
			continue
		}
		for _, d := range existing {
			if d == f.Deps {
				continue
			}
			d.Update(f.stored...)
		}
		t.Graph.Attach(name, f.Deps)
	}
	log.Debugf("exit scope %q read %v wrote %v", f.Label, f.Deps.Slots(), f.stored)
	return
}

// AddLoaded records a read in the active frame.  It returns false
// when there is no frame or the read is suppressed.
func (t *Tracker) AddLoaded(name string) bool {
	f := t.Active()
	if f == nil {
		return false
	}
	switch t.Mode {
	case SuppressGlobal:
		if t.Graph.Covered(name) || f.Deps.Contains(name) {
			return false
		}
	default:
		if f.Deps.Contains(name) {
			return false
		}
	}
	f.Deps.Add(name)
	if !t.Graph.Covered(name) {
		t.Graph.Attach(name, NewDependency("", name))
	}
	return true
}

// AddStored records a write in the active frame.
func (t *Tracker) AddStored(name string) bool {
	f := t.Active()
	if f == nil {
		return false
	}
	if !f.seen[name] {
		f.seen[name] = true
		f.stored = append(f.stored, name)
	}
	return true
}
