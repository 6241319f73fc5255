package slotbase

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pkg/errors"
)

func TestNames(t *testing.T) {
	s := setup(t)
	mustStore(t, s, "b", 1)
	mustStore(t, s, "a", 2)
	tassert(t, s.Promote("a", "one", -1) == nil, "promote")
	tassert(t, s.SetReference("b", "c") == nil, "ref")
	mustStore(t, s, "d", compile(t, s, "d", "def d():\n    return 1\n"))
	got, err := reopen(t, s).Names("")
	tassert(t, err == nil, "%v", err)
	tassert(t, reflect.DeepEqual(got, []string{"a", "b", "c", "d"}), "names %v", got)
	got, err = s.Names("^[ab]$")
	tassert(t, err == nil && reflect.DeepEqual(got, []string{"a", "b"}), "filtered %v %v", got, err)
	_, err = s.Names("(")
	tassert(t, err != nil, "bad pattern accepted")
}

func TestStoreAll(t *testing.T) {
	s := setup(t)
	for _, name := range []string{"a1", "a2", "_a3", "b1"} {
		mustStore(t, s, name, name)
		err := os.Remove(filepath.Join(s.Dir(), name))
		tassert(t, err == nil, "%v", err)
	}
	stored, err := s.StoreAll("^_?a")
	tassert(t, err == nil, "%v", err)
	tassert(t, reflect.DeepEqual(stored, []string{"a1", "a2"}), "stored %v", stored)
	tassert(t, fileExists(s, "a1") && fileExists(s, "a2"), "files not written")
	tassert(t, !fileExists(s, "_a3") && !fileExists(s, "b1"), "unmatched names written")
}

func TestStoreAllSkipsUnserializable(t *testing.T) {
	s := setup(t)
	mustStore(t, s, "a1", "one")
	mustStore(t, s, "a2", "two")
	for _, name := range []string{"a1", "a2"} {
		err := os.Remove(filepath.Join(s.Dir(), name))
		tassert(t, err == nil, "%v", err)
	}
	// a value that only ever lived in memory
	s.cache["a_chan"] = make(chan int)

	stored, err := s.StoreAll("^a")
	tassert(t, reflect.DeepEqual(stored, []string{"a1", "a2"}), "stored %v", stored)
	var batch *BatchError
	tassert(t, errors.As(err, &batch), "got %v", err)
	tassert(t, len(batch.Failures) == 1, "failures %v", batch.Failures)
	tassert(t, errors.Is(batch.Failures["a_chan"], ErrUnserializable), "failure %v", batch.Failures["a_chan"])
	tassert(t, fileExists(s, "a1") && fileExists(s, "a2"), "other names not written")
	tassert(t, !fileExists(s, "a_chan"), "unserializable value written")
}

func TestLoadAllIsolatesFailures(t *testing.T) {
	s := setup(t, WithCodec("json"))
	mustStore(t, s, "p1", "one")
	mustStore(t, s, "p2", "two")
	mustStore(t, s, "q", "other")
	err := os.WriteFile(filepath.Join(s.Dir(), "p3"), []byte("{not json"), 0644)
	tassert(t, err == nil, "%v", err)

	values, err := reopen(t, s).LoadAll("^p")
	want := map[string]interface{}{"p1": "one", "p2": "two"}
	tassert(t, reflect.DeepEqual(values, want), "values %v", values)
	var batch *BatchError
	tassert(t, errors.As(err, &batch), "got %v", err)
	tassert(t, len(batch.Failures) == 1 && errors.Is(batch.Failures["p3"], ErrNotFound), "failures %v", batch.Failures)
}

func TestRunAll(t *testing.T) {
	s := setup(t)
	mustStore(t, s, "step_a", compile(t, s, "step_a", "def step_a():\n    store_slot(\"from_a\", 1)\n    return 1\n"))
	mustStore(t, s, "step_b", compile(t, s, "step_b", "def step_b():\n    return 2\n"))
	mustStore(t, s, "step_bad", compile(t, s, "step_bad", "def step_bad():\n    return 1 // 0\n"))
	mustStore(t, s, "step_value", 3)

	results, err := reopen(t, s).RunAll("^step_")
	tassert(t, reflect.DeepEqual(results, map[string]interface{}{"step_a": int64(1), "step_b": int64(2)}), "results %v", results)
	var batch *BatchError
	tassert(t, errors.As(err, &batch), "got %v", err)
	_, failed := batch.Failures["step_bad"]
	tassert(t, failed && len(batch.Failures) == 1, "failures %v", batch.Failures)
	tassert(t, reflect.DeepEqual(labels(t, s, "from_a"), []string{"step_a"}), "from_a steps %v", labels(t, s, "from_a"))
}
