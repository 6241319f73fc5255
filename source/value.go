package source

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/reusee/starlarkutil"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// ToStarlark converts a Go value into a Starlark value.  Go functions
// become builtins; callables keep their identity.
func ToStarlark(v interface{}) (starlark.Value, error) {
	switch v := v.(type) {

	case nil:
		return starlark.None, nil
	case starlark.Value:
		return v, nil
	case *Func:
		return v.fn, nil
	case Callable:
		return builtin(v), nil

	case bool:
		return starlark.Bool(v), nil
	case []byte:
		return starlark.Bytes(v), nil
	case string:
		return starlark.String(v), nil

	case int:
		return starlark.MakeInt(v), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case uint64:
		return starlark.MakeUint64(v), nil
	case float64:
		return starlark.Float(v), nil

	case []interface{}:
		elems := make([]starlark.Value, len(v))
		for i, e := range v {
			sv, err := ToStarlark(e)
			if err != nil {
				return nil, err
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil

	case map[string]interface{}:
		d := starlark.NewDict(len(v))
		for _, k := range sortedKeys(v) {
			sv, err := ToStarlark(v[k])
			if err != nil {
				return nil, err
			}
			err = d.SetKey(starlark.String(k), sv)
			if err != nil {
				return nil, err
			}
		}
		return d, nil
	}

	value := reflect.ValueOf(v)
	switch value.Kind() {

	case reflect.Bool:
		return starlark.Bool(value.Bool()), nil
	case reflect.String:
		return starlark.String(value.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return starlark.MakeInt64(value.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return starlark.MakeUint64(value.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return starlark.Float(value.Float()), nil

	case reflect.Slice, reflect.Array:
		elems := make([]starlark.Value, value.Len())
		for i := range elems {
			sv, err := ToStarlark(value.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil

	case reflect.Map:
		d := starlark.NewDict(value.Len())
		iter := value.MapRange()
		for iter.Next() {
			k, err := ToStarlark(iter.Key().Interface())
			if err != nil {
				return nil, err
			}
			e, err := ToStarlark(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			err = d.SetKey(k, e)
			if err != nil {
				return nil, err
			}
		}
		return d, nil

	case reflect.Struct:
		typ := value.Type()
		fields := starlark.StringDict{}
		for i := 0; i < value.NumField(); i++ {
			field := typ.Field(i)
			if !field.IsExported() {
				continue
			}
			sv, err := ToStarlark(value.Field(i).Interface())
			if err != nil {
				return nil, err
			}
			fields[field.Name] = sv
		}
		return starlarkstruct.FromStringDict(starlarkstruct.Default, fields), nil

	case reflect.Pointer, reflect.Interface:
		elem := value.Elem()
		if !elem.IsValid() {
			return starlark.None, nil
		}
		return ToStarlark(elem.Interface())

	case reflect.Func:
		return starlarkutil.MakeFunc("", value.Interface()), nil
	}

	return nil, fmt.Errorf("unsupported type for starlark: %T", v)
}

// FromStarlark converts a Starlark value into plain Go data.  Ints
// that fit come back as int64, functions as *Func.
func FromStarlark(v starlark.Value) (interface{}, error) {
	switch v := v.(type) {

	case nil, starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(v), nil
	case starlark.String:
		return string(v), nil
	case starlark.Bytes:
		return []byte(v), nil
	case starlark.Float:
		return float64(v), nil
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return i, nil
		}
		if u, ok := v.Uint64(); ok {
			return u, nil
		}
		return v.BigInt(), nil

	case *starlark.List:
		return fromIterable(v, v.Len())
	case starlark.Tuple:
		return fromIterable(v, v.Len())

	case *starlark.Dict:
		out := make(map[string]interface{}, v.Len())
		for _, item := range v.Items() {
			k, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key %s is not a string", item[0].String())
			}
			e, err := FromStarlark(item[1])
			if err != nil {
				return nil, err
			}
			out[string(k)] = e
		}
		return out, nil

	case *starlarkstruct.Struct:
		out := map[string]interface{}{}
		for _, name := range v.AttrNames() {
			attr, err := v.Attr(name)
			if err != nil {
				return nil, err
			}
			e, err := FromStarlark(attr)
			if err != nil {
				return nil, err
			}
			out[name] = e
		}
		return out, nil

	case *goBuiltin:
		return v.c, nil

	case starlark.Callable:
		return &Func{name: v.Name(), fn: v}, nil
	}
	return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
}

func fromIterable(v starlark.Iterable, n int) (interface{}, error) {
	out := make([]interface{}, 0, n)
	iter := v.Iterate()
	defer iter.Done()
	var x starlark.Value
	for iter.Next(&x) {
		e, err := FromStarlark(x)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func sortedKeys(m map[string]interface{}) (keys []string) {
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return
}

// goBuiltin exposes a Go Callable to Starlark code.
type goBuiltin struct {
	*starlark.Builtin
	c Callable
}

func builtin(c Callable) *goBuiltin {
	b := starlark.NewBuiltin(c.CallableName(), func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		params := c.Params()
		if len(args) > len(params) {
			return nil, fmt.Errorf("%s: got %d positional arguments, want at most %d", fn.Name(), len(args), len(params))
		}
		in := map[string]interface{}{}
		for i, arg := range args {
			v, err := FromStarlark(arg)
			if err != nil {
				return nil, err
			}
			in[params[i].Name] = v
		}
		for _, kv := range kwargs {
			v, err := FromStarlark(kv[1])
			if err != nil {
				return nil, err
			}
			in[string(kv[0].(starlark.String))] = v
		}
		out, err := c.Call(in)
		if err != nil {
			return nil, err
		}
		return ToStarlark(out)
	})
	return &goBuiltin{Builtin: b, c: c}
}
