package slotbase

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/t7a/slotbase/codec"
	"github.com/t7a/slotbase/layout"
	"github.com/t7a/slotbase/source"
	"go.starlark.net/starlark"
)

// Load returns the value of slot name, recording the read in the
// active scope.  A cached value is returned as is; otherwise the
// representations are tried in order: Value, Source, Generator,
// Reference, Steps, each with the prefixed name first.  A slot stored
// as nil loads as (nil, nil); a missing slot is an ErrNotFound.
func (s *Store) Load(name string) (v interface{}, err error) {
	err = layout.Valid(name)
	if err != nil {
		return
	}
	v, ok := s.cache[name]
	if !ok {
		v, err = s.resolve(s.dir, s.prefix, name, name, map[string]bool{name: true})
		if err != nil {
			return nil, err
		}
		s.cache[name] = v
	}
	s.tracker.AddLoaded(name)
	return
}

// Contains reports whether name is cached or has a usable
// representation on disk.
func (s *Store) Contains(name string) bool {
	if layout.Valid(name) != nil {
		return false
	}
	if _, ok := s.cache[name]; ok {
		return true
	}
	for _, kind := range layout.Kinds {
		if s.forbidden[kind] {
			continue
		}
		if s.find(s.dir, s.prefix, name, kind) != nil {
			return true
		}
	}
	return false
}

// find returns the first existing candidate path for kind.
func (s *Store) find(dir, prefix, name string, kind layout.Kind) *layout.Path {
	for _, path := range layout.Candidates(dir, prefix, name, kind) {
		if kind == layout.Steps {
			if s.fs.IsDir(path.Abs) {
				return path
			}
			continue
		}
		if s.fs.Exists(path.Abs) && !s.fs.IsDir(path.Abs) {
			return path
		}
	}
	return nil
}

// resolve walks the representation order for name inside dir.
func (s *Store) resolve(dir, prefix, name, symbol string, visited map[string]bool) (v interface{}, err error) {
	for _, kind := range layout.Kinds {
		path := s.find(dir, prefix, name, kind)
		if path == nil {
			continue
		}
		if s.forbidden[kind] {
			return nil, &ForbiddenError{Name: name, Kind: kind}
		}
		log.Debugf("load %s as %s from %s", name, kind, path.Base)
		return s.loadPath(path, symbol, visited)
	}
	return nil, &NotFoundError{Name: name, Dir: dir}
}

func (s *Store) loadPath(path *layout.Path, symbol string, visited map[string]bool) (v interface{}, err error) {
	if path.Kind == layout.Steps {
		v, found, err := s.chains.Latest(path, visited)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, &NotFoundError{Name: path.Name, Dir: path.Dir}
		}
		return v, nil
	}
	data, err := s.fs.ReadFile(path.Abs)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path.Base)
	}
	if path.Kind == layout.Reference {
		target := strings.TrimSpace(string(data))
		if visited[target] {
			return nil, &CycleError{Target: target, Visited: sortedKeys(visited)}
		}
		visited[target] = true
		log.Debugf("follow reference %s -> %s", path.Base, target)
		return s.resolve(path.Dir, "", target, target, visited)
	}
	v, err = s.decode(path.Kind, path.Base, symbol, data)
	if errors.Is(err, codec.ErrFormat) {
		// a Value file that is not codec data may be source text
		src := s.find(path.Dir, path.Prefix, path.Name, layout.Source)
		if src == nil || s.forbidden[layout.Source] {
			log.Warnf("%s: %v", path.Base, err)
			return nil, &NotFoundError{Name: path.Name, Dir: path.Dir, Err: err}
		}
		return s.loadPath(src, symbol, visited)
	}
	return
}

// decode turns the content of one representation into a value.
func (s *Store) decode(kind layout.Kind, filename, symbol string, data []byte) (v interface{}, err error) {
	switch kind {
	case layout.Value:
		return codec.Decode(s.codec, data)
	case layout.Source:
		return source.LookupSlot(filename, string(data), symbol, s.env())
	case layout.Generator:
		v, err = source.LookupSlot(filename, string(data), symbol, s.env())
		if err != nil {
			return
		}
		gen, ok := v.(source.Callable)
		if !ok {
			return nil, errors.Errorf("%s: generator %s is a %T", filename, symbol, v)
		}
		log.Infof("calling generator %s", filename)
		return gen.Call(nil)
	}
	return nil, errors.Errorf("%s: cannot decode %s representation", filename, kind)
}

// Store writes value to slot name and records the write in the active
// scope.  Callables with source text and type descriptors become
// Source slots; callables without text stay in memory only; anything
// else is encoded as a Value.
func (s *Store) Store(name string, value interface{}) (out interface{}, err error) {
	err = layout.Valid(name)
	if err != nil {
		return
	}
	err = s.write(name, value)
	if err != nil {
		return nil, err
	}
	s.cache[name] = value
	s.tracker.AddStored(name)
	return value, nil
}

func (s *Store) write(name string, value interface{}) (err error) {
	switch v := value.(type) {
	case *source.Type:
		src, err := v.Render()
		if err != nil {
			return &UnserializableError{Name: name, Err: err}
		}
		return s.put(s.prefix, name, layout.Source, []byte(source.Bind(src, name, v.Name)))
	case source.Sourcer:
		src, err := v.Source()
		if errors.Is(err, source.ErrNoSource) {
			log.Warnf("unable to store %s: %v; keeping it in memory", name, err)
			return nil
		}
		if err != nil {
			return &UnserializableError{Name: name, Err: err}
		}
		src = source.Normalize(src)
		if c, ok := v.(source.Callable); ok {
			src = source.Bind(src, name, c.CallableName())
		}
		return s.put(s.prefix, name, layout.Source, []byte(src))
	case source.Callable:
		log.Warnf("unable to store %s: no source text for %s; keeping it in memory", name, v.CallableName())
		return nil
	}
	if value != nil && reflect.TypeOf(value).Kind() == reflect.Func {
		log.Warnf("unable to store %s: Go functions have no source text; keeping it in memory", name)
		return nil
	}
	buf, err := s.codec.Marshal(value)
	if err != nil {
		return &UnserializableError{Name: name, Err: err}
	}
	err = s.put(s.prefix, name, layout.Value, buf)
	if err != nil {
		return
	}
	if s.prefix != "" && s.prefixRefs {
		return s.put("", name, layout.Reference, []byte(s.prefix+name))
	}
	return
}

// put replaces whatever representation prefix+name had with data as
// kind.  Step chains are left alone.
func (s *Store) put(prefix, name string, kind layout.Kind, data []byte) (err error) {
	if s.forbidden[kind] {
		return &ForbiddenError{Name: name, Kind: kind}
	}
	path := layout.Path{}.New(s.dir, prefix, name, kind)
	for _, k := range []layout.Kind{layout.Value, layout.Source, layout.Generator, layout.Reference} {
		if k == kind {
			continue
		}
		other := layout.Path{}.New(s.dir, prefix, name, k)
		if s.fs.Exists(other.Abs) && !s.fs.IsDir(other.Abs) {
			err = s.fs.RemoveAll(other.Abs)
			if err != nil {
				return
			}
		}
	}
	log.Debugf("store %s as %s in %s", name, kind, path.Base)
	return s.fs.WriteFile(path.Abs, data)
}

// StoreGen writes fn as a Generator slot and returns fn's result.
// A load that finds name on disk rather than in the cache calls the
// generator again.
func (s *Store) StoreGen(name string, fn *source.Func) (out interface{}, err error) {
	err = layout.Valid(name)
	if err != nil {
		return
	}
	src, err := fn.Source()
	if err != nil {
		return nil, &UnserializableError{Name: name, Err: err}
	}
	src = source.Bind(source.Normalize(src), name, fn.CallableName())
	err = s.put(s.prefix, name, layout.Generator, []byte(src))
	if err != nil {
		return
	}
	s.tracker.AddStored(name)
	return fn.Call(nil)
}

// SetReference makes ref resolve to the slot physically named target.
func (s *Store) SetReference(target, ref string) (err error) {
	err = layout.Valid(ref)
	if err != nil {
		return
	}
	err = s.put(s.prefix, ref, layout.Reference, []byte(target))
	if err != nil {
		return
	}
	delete(s.cache, ref)
	s.tracker.AddStored(ref)
	return
}

// Remove deletes every representation of name, its step chain
// included, and drops it from the cache.
func (s *Store) Remove(name string) (err error) {
	err = layout.Valid(name)
	if err != nil {
		return
	}
	delete(s.cache, name)
	for _, kind := range layout.Kinds {
		for _, path := range layout.Candidates(s.dir, s.prefix, name, kind) {
			if !s.fs.Exists(path.Abs) {
				continue
			}
			err = s.fs.RemoveAll(path.Abs)
			if err != nil {
				return
			}
		}
	}
	return
}

// Compile turns src into a callable that can use the store builtins.
func (s *Store) Compile(name, src string) (*source.Func, error) {
	return source.Compile(name, src, s.env())
}

// env is the set of builtins stored source can call: load_slot,
// store_slot and has_slot, all bound to s and tracked like direct
// calls.
func (s *Store) env() starlark.StringDict {
	env := starlark.StringDict{}
	add := func(g *source.GoFunc) {
		sv, err := source.ToStarlark(g)
		if err != nil {
			panic(err)
		}
		env[g.Name] = sv
	}
	add(&source.GoFunc{
		Name: "load_slot",
		Args: []source.Param{{Name: "name"}},
		Fn: func(args map[string]interface{}) (interface{}, error) {
			name, ok := args["name"].(string)
			if !ok {
				return nil, errors.Errorf("load_slot: name must be a string")
			}
			return s.Load(name)
		},
	})
	add(&source.GoFunc{
		Name: "store_slot",
		Args: []source.Param{{Name: "name"}, {Name: "value"}},
		Fn: func(args map[string]interface{}) (interface{}, error) {
			name, ok := args["name"].(string)
			if !ok {
				return nil, errors.Errorf("store_slot: name must be a string")
			}
			return s.Store(name, args["value"])
		},
	})
	add(&source.GoFunc{
		Name: "has_slot",
		Args: []source.Param{{Name: "name"}},
		Fn: func(args map[string]interface{}) (interface{}, error) {
			name, _ := args["name"].(string)
			return s.Contains(name), nil
		},
	})
	return env
}

// physical lists the slot names present in dir, prefix stripped.
func (s *Store) physical() (names map[string]bool, err error) {
	names = map[string]bool{}
	entries, err := s.fs.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return names, nil
		}
		return
	}
	for _, base := range entries {
		name, _, ok := layout.Parse(filepath.Base(base))
		if !ok || name == layout.GraphSlot {
			continue
		}
		if s.prefix != "" && strings.HasPrefix(name, s.prefix) {
			name = strings.TrimPrefix(name, s.prefix)
		}
		names[name] = true
	}
	return
}
