package slotbase

import (
	"os"
	"path/filepath"
	"reflect"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/slotbase/codec"
	"github.com/t7a/slotbase/fsys"
	"github.com/t7a/slotbase/layout"
	"github.com/t7a/slotbase/scope"
	"github.com/t7a/slotbase/source"
	"github.com/t7a/slotbase/steps"
)

// Store is a folder of named slots.  A Store is not safe for
// concurrent use; open scopes belong to the caller driving it.
type Store struct {
	dir        string
	conf       Config
	codec      codec.Codec
	fs         fsys.Filesystem
	chains     steps.Backend
	prefix     string
	prefixRefs bool
	forbidden  map[layout.Kind]bool
	cache      map[string]interface{}
	locked     map[string]bool
	tracker    *scope.Tracker
}

// Option configures Open.
type Option func(*options)

type options struct {
	conf       Config
	prefix     string
	prefixRefs bool
	forbid     []layout.Kind
	mode       scope.Mode
	locked     []string
}

// WithCodec selects the codec for Value slots.
func WithCodec(name string) Option {
	return func(o *options) { o.conf.Serializer = name }
}

// WithFilesystem selects the physical file layer.
func WithFilesystem(name string) Option {
	return func(o *options) { o.conf.Filesystem = name }
}

// WithVersionBackend selects the step-chain backend.
func WithVersionBackend(name string) Option {
	return func(o *options) { o.conf.VersionController = name }
}

// WithPrefix qualifies physical names with prefix + "_".
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithPrefixAsReference makes prefixed Value writes also leave an
// unprefixed Reference to the prefixed blob.
func WithPrefixAsReference() Option {
	return func(o *options) { o.prefixRefs = true }
}

// Forbid disables representation kinds.
func Forbid(kinds ...layout.Kind) Option {
	return func(o *options) { o.forbid = append(o.forbid, kinds...) }
}

// WithSuppress selects how repeated reads are deduplicated.
func WithSuppress(mode scope.Mode) Option {
	return func(o *options) { o.mode = mode }
}

// WithLocked pins names in the in-memory cache.
func WithLocked(names ...string) Option {
	return func(o *options) { o.locked = append(o.locked, names...) }
}

// Open opens the session folder dir, creating it if needed.  Choices
// recorded in the folder's config are used for anything the options
// leave unset.
func Open(dir string, opts ...Option) (s *Store, err error) {
	defer Return(&err)
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	dir, err = filepath.Abs(filepath.Clean(dir))
	Ck(err)
	err = mkdir(dir)
	Ck(err)
	stored, err := readConfig(dir)
	Ck(err)
	conf := o.conf.merge(stored).merge(Config{
		Storager:          DefaultStorager,
		Serializer:        codec.Default,
		Filesystem:        fsys.Default,
		VersionController: steps.Default,
	})
	if conf.Storager != DefaultStorager {
		return nil, errors.Errorf("unsupported store variant: %q", conf.Storager)
	}

	s = &Store{
		dir:        dir,
		conf:       conf,
		prefixRefs: o.prefixRefs,
		forbidden:  map[layout.Kind]bool{},
		cache:      map[string]interface{}{},
		locked:     map[string]bool{},
	}
	if o.prefix != "" {
		s.prefix = o.prefix + "_"
	}
	for _, k := range o.forbid {
		s.forbidden[k] = true
	}
	for _, name := range o.locked {
		s.locked[name] = true
	}
	s.codec, err = codec.Get(conf.Serializer)
	Ck(err)
	s.fs, err = fsys.Get(conf.Filesystem)
	Ck(err)
	s.chains, err = steps.Open(conf.VersionController, host{s})
	Ck(err)
	err = writeConfig(dir, conf)
	Ck(err)

	graph, err := s.loadGraph()
	Ck(err)
	s.tracker = scope.NewTracker(graph, o.mode)
	log.Debugf("opened %s with %+v", dir, conf)
	return
}

func mkdir(dir string) (err error) {
	if _, err = os.Stat(dir); os.IsNotExist(err) {
		err = os.MkdirAll(dir, fsys.DirMode)
	}
	return
}

// Dir is the absolute session folder.
func (s *Store) Dir() string { return s.dir }

// Config returns the collaborators in use.
func (s *Store) Config() Config { return s.conf }

// Prefix returns the active physical prefix including its separator.
func (s *Store) Prefix() string { return s.prefix }

// SetPrefix qualifies physical names with prefix + sep.  The cache is
// emptied because it is keyed by logical name.
func (s *Store) SetPrefix(prefix, sep string) {
	if sep == "" {
		sep = "_"
	}
	s.prefix = prefix + sep
	s.EmptyScope()
}

// ResetPrefix drops the active prefix.
func (s *Store) ResetPrefix() {
	s.prefix = ""
	s.EmptyScope()
}

// Lock pins names in the cache: scope exits and EmptyScope keep them.
func (s *Store) Lock(names ...string) {
	for _, name := range names {
		s.locked[name] = true
	}
}

func (s *Store) Unlock(names ...string) {
	for _, name := range names {
		delete(s.locked, name)
	}
}

// SetLocked replaces the locked set.
func (s *Store) SetLocked(names ...string) {
	s.locked = map[string]bool{}
	s.Lock(names...)
}

func (s *Store) Locked(name string) bool {
	return s.locked[name]
}

// Cached reports whether name is resident in memory.
func (s *Store) Cached(name string) bool {
	_, ok := s.cache[name]
	return ok
}

// EmptyScope drops every cached value that is not locked, protected,
// or named with a leading underscore.
func (s *Store) EmptyScope() {
	for name, v := range s.cache {
		if s.locked[name] || protected(v) || name[0] == '_' {
			continue
		}
		delete(s.cache, name)
	}
}

// Purge deletes the session folder and starts over with an empty one.
func (s *Store) Purge() (err error) {
	defer Return(&err)
	// empty the folder in place; it may be the working directory
	names, err := s.fs.ReadDir(s.dir)
	Ck(err)
	for _, name := range names {
		err = s.fs.RemoveAll(filepath.Join(s.dir, name))
		Ck(err)
	}
	err = writeConfig(s.dir, s.conf)
	Ck(err)
	s.chains, err = steps.Open(s.conf.VersionController, host{s})
	Ck(err)
	for name := range s.cache {
		if !s.locked[name] {
			delete(s.cache, name)
		}
	}
	s.tracker.Graph = scope.NewGraph()
	log.Infof("purged %s", s.dir)
	return
}

// protected values are code; they stay cached across scope exits.
func protected(v interface{}) bool {
	switch v.(type) {
	case source.Callable, *source.Type:
		return true
	}
	return v != nil && reflect.TypeOf(v).Kind() == reflect.Func
}

// host adapts a Store to steps.Host.
type host struct {
	s *Store
}

func (h host) FS() fsys.Filesystem { return h.s.fs }

func (h host) Dir() string { return h.s.dir }

func (h host) LoadIn(dir, base, symbol string, visited map[string]bool) (interface{}, error) {
	if visited == nil {
		visited = map[string]bool{}
	}
	return h.s.resolve(dir, "", base, symbol, visited)
}

func (h host) DecodeAs(kind layout.Kind, symbol string, data []byte) (interface{}, error) {
	return h.s.decode(kind, symbol, symbol, data)
}
