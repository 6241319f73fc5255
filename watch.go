package slotbase

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/t7a/slotbase/layout"
)

// Event is a change to one representation of a slot.
type Event struct {
	Name string
	Kind layout.Kind
	Op   fsnotify.Op
}

// Watch reports changes in the session folder until ctx is done.  The
// watcher is in place when Watch returns, so changes made afterwards
// are seen.  Hidden files and the dependency graph are not reported.
func (s *Store) Watch(ctx context.Context) (events <-chan Event, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return
	}
	err = watcher.Add(s.dir)
	if err != nil {
		watcher.Close()
		return nil, errors.Wrapf(err, "watch %s", s.dir)
	}
	ch := make(chan Event)
	go func() {
		defer close(ch)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				name, kind, ok := layout.Parse(filepath.Base(ev.Name))
				if !ok || name == layout.GraphSlot {
					continue
				}
				select {
				case ch <- Event{Name: name, Kind: kind, Op: ev.Op}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("watch %s: %v", s.dir, err)
			}
		}
	}()
	return ch, nil
}
