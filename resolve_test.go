package slotbase

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pkg/errors"
	"github.com/t7a/slotbase/codec"
	"github.com/t7a/slotbase/layout"
	"github.com/t7a/slotbase/source"
)

func TestRoundTrip(t *testing.T) {
	for _, name := range []string{"msgpack", "json", "yaml"} {
		t.Run(name, func(t *testing.T) {
			s := setup(t, WithCodec(name))
			values := map[string]interface{}{
				"str":  "hello",
				"list": []interface{}{"a", "b"},
				"map":  map[string]interface{}{"k": "v"},
				"flag": true,
			}
			for k, v := range values {
				mustStore(t, s, k, v)
			}
			s2 := reopen(t, s)
			for k, want := range values {
				got := mustLoad(t, s2, k)
				tassert(t, reflect.DeepEqual(got, want), "%s: got %#v want %#v", k, got, want)
				// repeated loads agree
				again := mustLoad(t, s2, k)
				tassert(t, reflect.DeepEqual(again, got), "%s: reread %#v", k, again)
			}
		})
	}
}

func TestIntegersLoadAsInt64(t *testing.T) {
	s := setup(t)
	mustStore(t, s, "small", 5)
	mustStore(t, s, "big", 1<<40)
	mustStore(t, s, "neg", -3)
	s2 := reopen(t, s)
	tassert(t, mustLoad(t, s2, "small") == int64(5), "small %#v", mustLoad(t, s2, "small"))
	tassert(t, mustLoad(t, s2, "big") == int64(1<<40), "big %#v", mustLoad(t, s2, "big"))
	tassert(t, mustLoad(t, s2, "neg") == int64(-3), "neg %#v", mustLoad(t, s2, "neg"))
}

func TestNilIsNotAbsent(t *testing.T) {
	s := setup(t)
	mustStore(t, s, "empty", nil)
	s2 := reopen(t, s)
	v, err := s2.Load("empty")
	tassert(t, err == nil, "nil slot: %v", err)
	tassert(t, v == nil, "nil slot loaded %#v", v)
	tassert(t, s2.Contains("empty"), "nil slot not contained")

	_, err = s2.Load("missing")
	tassert(t, errors.Is(err, ErrNotFound), "missing slot: %v", err)
	var nf *NotFoundError
	tassert(t, errors.As(err, &nf) && nf.Name == "missing", "%#v", err)
	tassert(t, !s2.Contains("missing"), "missing slot contained")
}

func TestInvalidNames(t *testing.T) {
	s := setup(t)
	for _, name := range []string{"", "a/b", ".hidden"} {
		_, err := s.Store(name, 1)
		tassert(t, err != nil, "stored %q", name)
		_, err = s.Load(name)
		tassert(t, err != nil, "loaded %q", name)
		tassert(t, !s.Contains(name), "contains %q", name)
	}
}

func TestStoreReplacesRepresentation(t *testing.T) {
	s := setup(t)
	fn, err := s.Compile("f", "def f():\n    return 1\n")
	tassert(t, err == nil, "%v", err)
	mustStore(t, s, "x", fn)
	tassert(t, fileExists(s, "x.src"), "source missing")
	mustStore(t, s, "x", 2)
	tassert(t, fileExists(s, "x"), "value missing")
	tassert(t, !fileExists(s, "x.src"), "stale source kept")
}

func TestReference(t *testing.T) {
	s := setup(t)
	mustStore(t, s, "x", "target")
	err := s.SetReference("x", "alias")
	tassert(t, err == nil, "%v", err)
	tassert(t, fileExists(s, "alias.ref"), "ref file missing")
	tassert(t, mustLoad(t, reopen(t, s), "alias") == "target", "reference not followed")
}

func TestReferenceCycle(t *testing.T) {
	s := setup(t)
	tassert(t, s.SetReference("b", "a") == nil, "set a")
	tassert(t, s.SetReference("a", "b") == nil, "set b")
	_, err := s.Load("a")
	tassert(t, errors.Is(err, ErrCycle), "expected cycle, got %v", err)
	var ce *CycleError
	tassert(t, errors.As(err, &ce) && ce.Target == "a", "%#v", err)
}

func TestReferenceToSelf(t *testing.T) {
	s := setup(t)
	tassert(t, s.SetReference("me", "me") == nil, "set")
	_, err := s.Load("me")
	tassert(t, errors.Is(err, ErrCycle), "expected cycle, got %v", err)
}

func TestForbidden(t *testing.T) {
	s := setup(t, Forbid(layout.Reference, layout.Source))
	err := s.SetReference("x", "alias")
	tassert(t, errors.Is(err, ErrForbidden), "ref allowed: %v", err)
	fn, err := s.Compile("f", "def f():\n    return 1\n")
	tassert(t, err == nil, "%v", err)
	_, err = s.Store("f", fn)
	tassert(t, errors.Is(err, ErrForbidden), "source allowed: %v", err)

	// a forbidden file already on disk is refused, not skipped
	err = os.WriteFile(filepath.Join(s.Dir(), "y.ref"), []byte("x"), 0644)
	tassert(t, err == nil, "%v", err)
	_, err = s.Load("y")
	var fe *ForbiddenError
	tassert(t, errors.As(err, &fe) && fe.Kind == layout.Reference, "got %v", err)
}

func TestSourceSlot(t *testing.T) {
	s := setup(t)
	fn, err := s.Compile("double", `
    @step(double)
    def double(n):
        return n * 2
`)
	tassert(t, err == nil, "%v", err)
	mustStore(t, s, "double", fn)
	buf, err := os.ReadFile(filepath.Join(s.Dir(), "double.src"))
	tassert(t, err == nil, "%v", err)
	want := "def double(n):\n    return n * 2\n"
	tassert(t, string(buf) == want, "normalized source %q", buf)

	s2 := reopen(t, s)
	v := mustLoad(t, s2, "double")
	loaded, ok := v.(source.Callable)
	tassert(t, ok, "loaded %T", v)
	out, err := loaded.Call(map[string]interface{}{"n": 21})
	tassert(t, err == nil && out == int64(42), "call %v %v", out, err)
}

func TestTypeSlot(t *testing.T) {
	s := setup(t)
	typ := &source.Type{
		Name:  "Point",
		Attrs: []source.Attr{{Name: "x", Value: 1}, {Name: "y", Value: 2}},
	}
	mustStore(t, s, "Point", typ)
	tassert(t, fileExists(s, "Point.src"), "type not stored as source")
	v := mustLoad(t, reopen(t, s), "Point")
	ctor, ok := v.(source.Callable)
	tassert(t, ok, "loaded %T", v)
	out, err := ctor.Call(nil)
	tassert(t, err == nil, "%v", err)
	m, ok := out.(map[string]interface{})
	tassert(t, ok && m["x"] == int64(1) && m["y"] == int64(2), "instance %#v", out)
}

func TestSourceUnderOtherName(t *testing.T) {
	s := setup(t)
	fn, err := s.Compile("double", "def double(n):\n    return n * 2\n")
	tassert(t, err == nil, "%v", err)
	mustStore(t, s, "f", fn)
	mustStore(t, s, "my-fn", fn)
	buf, err := os.ReadFile(filepath.Join(s.Dir(), "f.src"))
	tassert(t, err == nil, "%v", err)
	want := "def double(n):\n    return n * 2\nf = double\n"
	tassert(t, string(buf) == want, "source %q", buf)

	s2 := reopen(t, s)
	for _, name := range []string{"f", "my-fn"} {
		loaded, ok := mustLoad(t, s2, name).(source.Callable)
		tassert(t, ok, "%s not callable", name)
		out, err := loaded.Call(map[string]interface{}{"n": 4})
		tassert(t, err == nil && out == int64(8), "%s: %v %v", name, out, err)
	}

	// storing the loaded value again keeps it loadable
	mustStore(t, s2, "g", mustLoad(t, s2, "f"))
	loaded, ok := mustLoad(t, reopen(t, s2), "g").(source.Callable)
	tassert(t, ok, "g not callable")
	out, err := loaded.Call(map[string]interface{}{"n": 5})
	tassert(t, err == nil && out == int64(10), "g: %v %v", out, err)
}

func TestTypeUnderOtherName(t *testing.T) {
	s := setup(t)
	typ := &source.Type{Name: "Point", Attrs: []source.Attr{{Name: "x", Value: 1}}}
	mustStore(t, s, "origin", typ)
	ctor, ok := mustLoad(t, reopen(t, s), "origin").(source.Callable)
	tassert(t, ok, "type not loadable under another name")
	out, err := ctor.Call(nil)
	m, _ := out.(map[string]interface{})
	tassert(t, err == nil && m["x"] == int64(1), "instance %#v %v", out, err)
}

func TestGeneratorUnderOtherName(t *testing.T) {
	s := setup(t)
	fn, err := s.Compile("answer", "def answer():\n    return 42\n")
	tassert(t, err == nil, "%v", err)
	_, err = s.StoreGen("result", fn)
	tassert(t, err == nil, "%v", err)
	tassert(t, mustLoad(t, reopen(t, s), "result") == int64(42), "generator under another name")
}

func TestGoCallableStaysInMemory(t *testing.T) {
	s := setup(t)
	g := &source.GoFunc{
		Name: "add",
		Fn: func(args map[string]interface{}) (interface{}, error) {
			return 1, nil
		},
	}
	mustStore(t, s, "add", g)
	mustStore(t, s, "raw", func() {})
	tassert(t, !fileExists(s, "add") && !fileExists(s, "add.src"), "go callable written")
	tassert(t, !fileExists(s, "raw"), "go func written")
	tassert(t, s.Contains("add") && s.Contains("raw"), "not cached")
	tassert(t, !reopen(t, s).Contains("add"), "go callable persisted")
}

func TestUnserializable(t *testing.T) {
	s := setup(t)
	_, err := s.Store("ch", make(chan int))
	tassert(t, errors.Is(err, ErrUnserializable), "got %v", err)
	tassert(t, !s.Contains("ch"), "failed store cached")
}

func TestValueFallsBackToSource(t *testing.T) {
	s := setup(t, WithCodec("json"))
	src := "def f():\n    return 7\n"
	err := os.WriteFile(filepath.Join(s.Dir(), "f"), []byte(src), 0644)
	tassert(t, err == nil, "%v", err)
	_, err = s.Load("f")
	tassert(t, errors.Is(err, ErrNotFound), "undecodable value: %v", err)
	tassert(t, errors.Is(err, codec.ErrFormat), "format error lost: %v", err)

	err = os.WriteFile(filepath.Join(s.Dir(), "f.src"), []byte(src), 0644)
	tassert(t, err == nil, "%v", err)
	v, err := s.Load("f")
	tassert(t, err == nil, "%v", err)
	_, ok := v.(source.Callable)
	tassert(t, ok, "loaded %T", v)
}

func TestGenerator(t *testing.T) {
	s := setup(t)
	fn, err := s.Compile("answer", "def answer():\n    return 40 + 2\n")
	tassert(t, err == nil, "%v", err)
	out, err := s.StoreGen("answer", fn)
	tassert(t, err == nil && out == int64(42), "StoreGen %v %v", out, err)
	tassert(t, fileExists(s, "answer.gen"), "generator file missing")
	tassert(t, mustLoad(t, reopen(t, s), "answer") == int64(42), "generator not called")
}

func TestGeneratorReadsStore(t *testing.T) {
	s := setup(t)
	mustStore(t, s, "base", 10)
	fn, err := s.Compile("plus", "def plus():\n    return load_slot(\"base\") + 1\n")
	tassert(t, err == nil, "%v", err)
	_, err = s.StoreGen("plus", fn)
	tassert(t, err == nil, "%v", err)
	tassert(t, mustLoad(t, reopen(t, s), "plus") == int64(11), "generator result")
}

func TestGeneratorRunsOnDiskLoads(t *testing.T) {
	s := setup(t)
	mustStore(t, s, "count", 0)
	fn, err := s.Compile("tick", "def tick():\n    n = load_slot(\"count\") + 1\n    store_slot(\"count\", n)\n    return n\n")
	tassert(t, err == nil, "%v", err)
	out, err := s.StoreGen("tick", fn)
	tassert(t, err == nil && out == int64(1), "StoreGen %v %v", out, err)
	tassert(t, mustLoad(t, s, "tick") == int64(2), "first load runs the generator")
	tassert(t, mustLoad(t, s, "tick") == int64(2), "cached load ran the generator")
	tassert(t, mustLoad(t, reopen(t, s), "tick") == int64(3), "load after reopen")
}

func TestRemove(t *testing.T) {
	s := setup(t)
	mustStore(t, s, "x", 1)
	tassert(t, s.Promote("x", "one", -1) == nil, "promote")
	mustStore(t, s, "x", 2)
	tassert(t, s.Remove("x") == nil, "remove")
	tassert(t, !s.Contains("x"), "x survived")
	tassert(t, !fileExists(s, "x.steps"), "chain survived")
}
