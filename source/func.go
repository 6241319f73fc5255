// Package source handles slots whose content is program text: the
// Source and Generator representations, callables, and structured
// type descriptors.  Text is Starlark.
package source

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// ErrNoSource is returned by Source for callables built from Go code.
var ErrNoSource = errors.New("no source text available")

// Param describes one declared parameter of a callable.
type Param struct {
	Name       string
	HasDefault bool
}

// Callable is anything a store can invoke as a step.
type Callable interface {
	CallableName() string
	Params() []Param
	Call(args map[string]interface{}) (interface{}, error)
}

// Sourcer is implemented by callables whose text can be extracted.
type Sourcer interface {
	Source() (string, error)
}

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Predeclared is the environment stored source is evaluated in:
// the struct builtin plus env.
func Predeclared(env starlark.StringDict) starlark.StringDict {
	out := starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
	}
	for k, v := range env {
		out[k] = v
	}
	return out
}

func thread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			log.Infof("%s: %s", name, msg)
		},
	}
}

// Eval executes src and returns its globals.
func Eval(filename, src string, env starlark.StringDict) (globals starlark.StringDict, err error) {
	globals, err = starlark.ExecFileOptions(fileOptions, thread(filename), filename, src, Predeclared(env))
	if err != nil {
		return nil, errors.Wrapf(err, "eval %s", filename)
	}
	return
}

// ErrUndefined is returned when evaluated text does not define the
// requested symbol.
var ErrUndefined = errors.New("symbol not defined")

// Lookup evaluates src and returns the global named symbol as Go
// data.  A function comes back as a *Func carrying src.
func Lookup(filename, src, symbol string, env starlark.StringDict) (v interface{}, err error) {
	globals, err := Eval(filename, src, env)
	if err != nil {
		return
	}
	return lookup(globals, filename, src, symbol)
}

// LookupSlot is Lookup for text stored under slot name symbol: when
// the text does not bind symbol, its only top-level function is the
// slot's value.
func LookupSlot(filename, src, symbol string, env starlark.StringDict) (v interface{}, err error) {
	globals, err := Eval(filename, src, env)
	if err != nil {
		return
	}
	v, err = lookup(globals, filename, src, symbol)
	if !errors.Is(err, ErrUndefined) {
		return
	}
	var only *starlark.Function
	for _, sv := range globals {
		fn, ok := sv.(*starlark.Function)
		if !ok {
			continue
		}
		if only != nil {
			return nil, err
		}
		only = fn
	}
	if only == nil {
		return nil, err
	}
	return &Func{name: symbol, src: src, fn: only}, nil
}

func lookup(globals starlark.StringDict, filename, src, symbol string) (v interface{}, err error) {
	sv, ok := globals[symbol]
	if !ok {
		return nil, errors.Wrapf(ErrUndefined, "%s: %q (have %v)", filename, symbol, names(globals))
	}
	if fn, ok := sv.(*starlark.Function); ok {
		return &Func{name: symbol, src: src, fn: fn}, nil
	}
	return FromStarlark(sv)
}

// Bind returns src with a line binding name to symbol, so that
// evaluating it defines name.  src is returned as is when the names
// match or name is not an identifier.
func Bind(src, name, symbol string) string {
	if name == symbol || !isIdent(name) || !isIdent(symbol) {
		return src
	}
	if src != "" && !strings.HasSuffix(src, "\n") {
		src += "\n"
	}
	return src + name + " = " + symbol + "\n"
}

func isIdent(name string) bool {
	expr, err := fileOptions.ParseExpr("", name, 0)
	if err != nil {
		return false
	}
	id, ok := expr.(*syntax.Ident)
	return ok && id.Name == name
}

// Compile normalizes src and returns the callable it defines under
// name.
func Compile(name, src string, env starlark.StringDict) (f *Func, err error) {
	src = Normalize(src)
	v, err := Lookup(name, src, name, env)
	if err != nil {
		return
	}
	f, ok := v.(*Func)
	if !ok {
		return nil, fmt.Errorf("%s is a %T, not a function", name, v)
	}
	return
}

func names(d starlark.StringDict) (out []string) {
	for k := range d {
		out = append(out, k)
	}
	sort.Strings(out)
	return
}

// Func is a Starlark callable.  Functions compiled from text keep
// that text so they can be written back as a Source slot.
type Func struct {
	name string
	src  string
	fn   starlark.Callable
}

func (f *Func) CallableName() string {
	return f.name
}

func (f *Func) String() string {
	return fmt.Sprintf("<function %s>", f.name)
}

func (f *Func) Source() (string, error) {
	if f.src == "" {
		return "", errors.Wrap(ErrNoSource, f.name)
	}
	return f.src, nil
}

func (f *Func) Params() (params []Param) {
	fn, ok := f.fn.(*starlark.Function)
	if !ok {
		return
	}
	// *args and **kwargs come last
	n := fn.NumParams()
	if fn.HasKwargs() {
		n--
	}
	if fn.HasVarargs() {
		n--
	}
	for i := 0; i < n; i++ {
		name, _ := fn.Param(i)
		params = append(params, Param{Name: name, HasDefault: fn.ParamDefault(i) != nil})
	}
	return
}

// Call invokes the function with keyword arguments only.
func (f *Func) Call(args map[string]interface{}) (out interface{}, err error) {
	var kwargs []starlark.Tuple
	for _, k := range sortedKeys(args) {
		sv, err := ToStarlark(args[k])
		if err != nil {
			return nil, errors.Wrapf(err, "%s: argument %s", f.name, k)
		}
		kwargs = append(kwargs, starlark.Tuple{starlark.String(k), sv})
	}
	res, err := starlark.Call(thread(f.name), f.fn, nil, kwargs)
	if err != nil {
		return nil, errors.Wrapf(err, "call %s", f.name)
	}
	return FromStarlark(res)
}

// GoFunc adapts a Go function to Callable.  It has no source text, so
// a store keeps it in memory only.
type GoFunc struct {
	Name string
	Args []Param
	Fn   func(args map[string]interface{}) (interface{}, error)
}

func (g *GoFunc) CallableName() string { return g.Name }

func (g *GoFunc) Params() []Param { return g.Args }

func (g *GoFunc) Call(args map[string]interface{}) (interface{}, error) {
	return g.Fn(args)
}
