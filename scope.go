package slotbase

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/slotbase/layout"
	"github.com/t7a/slotbase/scope"
	"github.com/t7a/slotbase/source"
)

// Enter opens a scope.  Reads and writes until the matching Exit are
// attributed to it.
func (s *Store) Enter(label string) *scope.Frame {
	f := s.tracker.Enter(label)
	for name := range s.cache {
		f.Resident[name] = true
	}
	return f
}

// Exit closes the innermost scope: its writes are merged into the
// dependency graph, the names it touched are dropped from the cache
// unless locked, resident before the scope, or code, and the graph is
// saved.
func (s *Store) Exit() (err error) {
	f, err := s.tracker.Exit()
	if err != nil {
		return
	}
	for _, name := range f.Touched() {
		v, ok := s.cache[name]
		if !ok || s.locked[name] || f.Resident[name] || protected(v) {
			continue
		}
		delete(s.cache, name)
	}
	return s.saveGraph()
}

// Depth is the number of open scopes.
func (s *Store) Depth() int {
	return s.tracker.Depth()
}

// Call runs fn in its own scope.  Parameters without a value in args
// and without a default are loaded from the slots of the same name.
// The scope is closed even when fn fails.
func (s *Store) Call(fn source.Callable, args map[string]interface{}) (out interface{}, err error) {
	s.Enter(fn.CallableName())
	defer func() {
		xerr := s.Exit()
		if err == nil {
			err = xerr
		}
	}()
	return s.invoke(fn, args)
}

// invoke resolves fn's parameters and calls it.
func (s *Store) invoke(fn source.Callable, args map[string]interface{}) (out interface{}, err error) {
	params := fn.Params()
	if params == nil {
		return fn.Call(args)
	}
	in := map[string]interface{}{}
	for _, p := range params {
		if v, ok := args[p.Name]; ok {
			in[p.Name] = v
			continue
		}
		if p.HasDefault {
			continue
		}
		v, err := s.Load(p.Name)
		if err != nil {
			return nil, errors.Wrapf(err, "parameter %s of %s", p.Name, fn.CallableName())
		}
		in[p.Name] = v
	}
	return fn.Call(in)
}

// Provenance returns the dependencies recorded for name.
func (s *Store) Provenance(name string) []*scope.Dependency {
	return s.tracker.Graph.Get(name)
}

// Trace returns every slot name transitively depends on.
func (s *Store) Trace(name string) []string {
	return s.tracker.Graph.Trace(name)
}

func (s *Store) graphPath() string {
	return filepath.Join(s.dir, layout.GraphSlot)
}

func (s *Store) saveGraph() (err error) {
	defer Return(&err)
	buf, err := s.codec.Marshal(s.tracker.Graph.Snapshot())
	Ck(err, "encode dependency graph")
	err = s.fs.WriteFile(s.graphPath(), buf)
	Ck(err)
	return
}

// loadGraph reads the graph saved by an earlier session.  A graph that
// cannot be decoded is logged and replaced by an empty one.
func (s *Store) loadGraph() (g *scope.Graph, err error) {
	defer Return(&err)
	buf, err := s.fs.ReadFile(s.graphPath())
	if os.IsNotExist(err) {
		return scope.NewGraph(), nil
	}
	Ck(err)
	var snap scope.Snapshot
	err = s.codec.Unmarshal(buf, &snap)
	if err != nil {
		log.Warnf("ignoring unreadable dependency graph: %v", err)
		return scope.NewGraph(), nil
	}
	return scope.GraphFromSnapshot(snap), nil
}
