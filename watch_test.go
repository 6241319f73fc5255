package slotbase

import (
	"context"
	"testing"
	"time"

	"github.com/t7a/slotbase/layout"
)

func TestWatch(t *testing.T) {
	s := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := s.Watch(ctx)
	tassert(t, err == nil, "%v", err)

	mustStore(t, s, "w", "hello")
	fn := compile(t, s, "f", "def f():\n    return 1\n")
	mustStore(t, s, "f", fn)

	want := map[string]layout.Kind{"w": layout.Value, "f": layout.Source}
	timeout := time.After(10 * time.Second)
	for len(want) > 0 {
		select {
		case ev, ok := <-events:
			tassert(t, ok, "event channel closed")
			if kind, ok := want[ev.Name]; ok && kind == ev.Kind {
				delete(want, ev.Name)
			}
		case <-timeout:
			t.Fatalf("no events for %v", want)
		}
	}

	cancel()
	for range events {
	}
}
