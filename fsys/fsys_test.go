package fsys

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/hlubek/readercomp"
)

func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper()
	if !cond {
		t.Fatalf(txt, args...)
	}
}

func all(t *testing.T) (out []Filesystem) {
	for _, name := range Names() {
		fs, err := Get(name)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, fs)
	}
	return
}

func TestRoundTrip(t *testing.T) {
	for _, fs := range all(t) {
		dir := t.TempDir()
		path := filepath.Join(dir, "sub", "x")
		want := bytes.Repeat([]byte("hello world "), 100)
		err := fs.WriteFile(path, want)
		tassert(t, err == nil, "%s: %v", fs.Name(), err)
		tassert(t, fs.Exists(path), "%s: missing after write", fs.Name())
		tassert(t, !fs.IsDir(path), "%s: file reported as dir", fs.Name())
		tassert(t, fs.IsDir(filepath.Dir(path)), "%s: parent not created", fs.Name())
		got, err := fs.ReadFile(path)
		tassert(t, err == nil, "%s: %v", fs.Name(), err)
		ok, err := readercomp.Equal(bytes.NewReader(got), bytes.NewReader(want), 4096)
		tassert(t, err == nil && ok, "%s: content mismatch", fs.Name())
	}
}

func TestLZMACompresses(t *testing.T) {
	fs := LZMA{}
	dir := t.TempDir()
	path := filepath.Join(dir, "x")
	want := bytes.Repeat([]byte("a"), 10000)
	err := fs.WriteFile(path, want)
	tassert(t, err == nil, "%v", err)
	raw, err := os.ReadFile(path)
	tassert(t, err == nil, "%v", err)
	tassert(t, len(raw) < len(want), "not compressed: %d bytes", len(raw))
	got, err := fs.Unwrap(raw)
	tassert(t, err == nil && bytes.Equal(got, want), "unwrap: %v", err)
}

func TestRenameCopyRemove(t *testing.T) {
	for _, fs := range all(t) {
		dir := t.TempDir()
		a := filepath.Join(dir, "a")
		b := filepath.Join(dir, "b")
		c := filepath.Join(dir, "d", "c")
		err := fs.WriteFile(a, []byte("content"))
		tassert(t, err == nil, "%v", err)
		err = fs.Rename(a, b)
		tassert(t, err == nil, "%v", err)
		tassert(t, !fs.Exists(a) && fs.Exists(b), "%s: rename", fs.Name())
		err = fs.Copy(b, c)
		tassert(t, err == nil, "%v", err)
		got, err := fs.ReadFile(c)
		tassert(t, err == nil && string(got) == "content", "%s: copy got %q %v", fs.Name(), got, err)
		names, err := fs.ReadDir(dir)
		tassert(t, err == nil && len(names) == 2 && names[0] == "b" && names[1] == "d", "%s: %v %v", fs.Name(), names, err)
		err = fs.RemoveAll(filepath.Join(dir, "d"))
		tassert(t, err == nil && !fs.Exists(c), "%s: remove %v", fs.Name(), err)
	}
}

func TestMissing(t *testing.T) {
	fs := Disk{}
	_, err := fs.ReadFile(filepath.Join(t.TempDir(), "nope"))
	tassert(t, os.IsNotExist(err), "got %v", err)
}
