package source

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"go.starlark.net/starlark"
)

func TestCompileCall(t *testing.T) {
	f, err := Compile("double", "    def double(x, scale = 2):\n        return x * scale\n", nil)
	tassert(t, err == nil, "%v", err)
	tassert(t, f.CallableName() == "double", "name %q", f.CallableName())
	params := f.Params()
	tassert(t, len(params) == 2, "params %v", params)
	tassert(t, params[0].Name == "x" && !params[0].HasDefault, "param 0 %v", params[0])
	tassert(t, params[1].Name == "scale" && params[1].HasDefault, "param 1 %v", params[1])
	out, err := f.Call(map[string]interface{}{"x": 21})
	tassert(t, err == nil, "%v", err)
	tassert(t, out == int64(42), "got %#v", out)
	src, err := f.Source()
	tassert(t, err == nil, "%v", err)
	tassert(t, strings.HasPrefix(src, "def double(x, scale = 2):\n"), "src %q", src)
}

func TestParamsSkipVarargs(t *testing.T) {
	f, err := Compile("f", "def f(a, *rest, b = 1, **kw):\n    return a\n", nil)
	tassert(t, err == nil, "%v", err)
	params := f.Params()
	tassert(t, len(params) == 2, "params %v", params)
	tassert(t, params[0].Name == "a" && params[1].Name == "b", "params %v", params)
}

func TestCompileNotFunction(t *testing.T) {
	_, err := Compile("x", "x = 1\n", nil)
	tassert(t, err != nil, "expected error")
}

func TestCallError(t *testing.T) {
	f, err := Compile("boom", "def boom():\n    fail(\"no\")\n", nil)
	tassert(t, err == nil, "%v", err)
	_, err = f.Call(nil)
	tassert(t, err != nil && strings.Contains(err.Error(), "no"), "got %v", err)
}

func TestLookupValue(t *testing.T) {
	v, err := Lookup("x.src", "x = {\"a\": [1, 2.5, None, True]}\n", "x", nil)
	tassert(t, err == nil, "%v", err)
	m := v.(map[string]interface{})
	list := m["a"].([]interface{})
	tassert(t, list[0] == int64(1) && list[1] == 2.5 && list[2] == nil && list[3] == true, "got %#v", list)
	_, err = Lookup("x.src", "y = 1\n", "x", nil)
	tassert(t, err != nil, "expected missing symbol error")
}

func TestBind(t *testing.T) {
	src := "def double(n):\n    return n * 2\n"
	cases := []struct {
		name string
		want string
	}{
		{"double", src},
		{"f", src + "f = double\n"},
		{"my-fn", src},
		{"if", src},
	}
	for _, c := range cases {
		got := Bind(src, c.name, "double")
		tassert(t, got == c.want, "%s: got %q", c.name, got)
	}
}

func TestLookupSlot(t *testing.T) {
	v, err := LookupSlot("my-fn.src", "def double(n):\n    return n * 2\n", "my-fn", nil)
	tassert(t, err == nil, "%v", err)
	f, ok := v.(*Func)
	tassert(t, ok && f.CallableName() == "my-fn", "got %#v", v)
	_, err = LookupSlot("x.src", "def a():\n    pass\ndef b():\n    pass\n", "x", nil)
	tassert(t, errors.Is(err, ErrUndefined), "ambiguous text resolved: %v", err)
	_, err = Lookup("x.src", "def a():\n    pass\n", "x", nil)
	tassert(t, errors.Is(err, ErrUndefined), "Lookup fell back: %v", err)
}

func TestGoFunc(t *testing.T) {
	g := &GoFunc{
		Name: "add",
		Args: []Param{{Name: "a"}, {Name: "b"}},
		Fn: func(args map[string]interface{}) (interface{}, error) {
			return args["a"].(int64) + args["b"].(int64), nil
		},
	}
	f, err := Compile("apply", "def apply(fn):\n    return fn(1, b = 2)\n", nil)
	tassert(t, err == nil, "%v", err)
	out, err := f.Call(map[string]interface{}{"fn": g})
	tassert(t, err == nil, "%v", err)
	tassert(t, out == int64(3), "got %#v", out)
	_, err = (&Func{name: "g"}).Source()
	tassert(t, errors.Is(err, ErrNoSource), "got %v", err)
}

func TestGoFuncReturnedFromStarlark(t *testing.T) {
	g := &GoFunc{Name: "id", Args: []Param{{Name: "v"}}, Fn: func(args map[string]interface{}) (interface{}, error) {
		return args["v"], nil
	}}
	f, err := Compile("same", "def same(fn):\n    return fn\n", nil)
	tassert(t, err == nil, "%v", err)
	out, err := f.Call(map[string]interface{}{"fn": g})
	tassert(t, err == nil, "%v", err)
	tassert(t, out == Callable(g), "got %#v", out)
}

func TestReflectFunc(t *testing.T) {
	sv, err := ToStarlark(strings.ToUpper)
	tassert(t, err == nil, "%v", err)
	_, ok := sv.(starlark.Callable)
	tassert(t, ok, "got %T", sv)
}

func TestToStarlarkUnsupported(t *testing.T) {
	_, err := ToStarlark(make(chan bool))
	tassert(t, err != nil, "expected error")
}

func TestStructRoundTrip(t *testing.T) {
	type pt struct {
		X int
		Y int
		z int
	}
	sv, err := ToStarlark(pt{X: 1, Y: 2})
	tassert(t, err == nil, "%v", err)
	v, err := FromStarlark(sv)
	tassert(t, err == nil, "%v", err)
	m := v.(map[string]interface{})
	tassert(t, len(m) == 2 && m["X"] == int64(1) && m["Y"] == int64(2), "got %#v", m)
}

func TestEnv(t *testing.T) {
	var got []interface{}
	record := &GoFunc{Name: "record", Args: []Param{{Name: "v"}}, Fn: func(args map[string]interface{}) (interface{}, error) {
		got = append(got, args["v"])
		return nil, nil
	}}
	sv, err := ToStarlark(record)
	tassert(t, err == nil, "%v", err)
	env := starlark.StringDict{"record": sv}
	f, err := Compile("f", "def f(x):\n    record(x + 1)\n", env)
	tassert(t, err == nil, "%v", err)
	out, err := f.Call(map[string]interface{}{"x": 1})
	tassert(t, err == nil, "%v", err)
	tassert(t, out == nil, "got %#v", out)
	tassert(t, len(got) == 1 && got[0] == int64(2), "recorded %#v", got)
}
