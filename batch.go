package slotbase

import (
	"regexp"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/t7a/slotbase/source"
)

// names lists cached and on-disk slot names matching pattern, sorted.
func (s *Store) names(pattern string) (out []string, err error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return
	}
	all, err := s.physical()
	if err != nil {
		return
	}
	for name := range s.cache {
		all[name] = true
	}
	for name := range all {
		if re.MatchString(name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return
}

// Names lists every slot name matching pattern.
func (s *Store) Names(pattern string) ([]string, error) {
	return s.names(pattern)
}

// StoreAll writes every cached value whose name matches pattern.
// Names starting with an underscore are skipped.  A failure on one
// name is logged and collected in a *BatchError; the rest are still
// stored.
func (s *Store) StoreAll(pattern string) (stored []string, err error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return
	}
	var names []string
	for name := range s.cache {
		if name[0] == '_' || !re.MatchString(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	batch := &BatchError{}
	for _, name := range names {
		_, err := s.Store(name, s.cache[name])
		if err != nil {
			log.Warnf("store %s: %v", name, err)
			batch.add(name, err)
			continue
		}
		stored = append(stored, name)
	}
	return stored, batch.orNil()
}

// LoadAll loads every slot whose name matches pattern.  Failures are
// isolated the same way as in StoreAll.
func (s *Store) LoadAll(pattern string) (values map[string]interface{}, err error) {
	names, err := s.names(pattern)
	if err != nil {
		return
	}
	values = map[string]interface{}{}
	batch := &BatchError{}
	for _, name := range names {
		v, err := s.Load(name)
		if err != nil {
			log.Warnf("load %s: %v", name, err)
			batch.add(name, err)
			continue
		}
		values[name] = v
	}
	return values, batch.orNil()
}

// RunAll runs, in name order, every slot matching pattern that holds
// a callable.  Each runs as its own step with opts.
func (s *Store) RunAll(pattern string, opts ...StepOption) (results map[string]interface{}, err error) {
	names, err := s.names(pattern)
	if err != nil {
		return
	}
	results = map[string]interface{}{}
	batch := &BatchError{}
	for _, name := range names {
		v, err := s.Load(name)
		if err != nil {
			batch.add(name, err)
			continue
		}
		fn, ok := v.(source.Callable)
		if !ok {
			continue
		}
		out, err := s.RunStep(fn, opts...)
		if err != nil {
			log.Warnf("run %s: %v", name, err)
			batch.add(name, err)
			continue
		}
		results[name] = out
	}
	return results, batch.orNil()
}
