package slotbase

import (
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/t7a/slotbase/layout"
	"github.com/t7a/slotbase/source"
	"github.com/t7a/slotbase/steps"
)

// StepOption configures RunStep.
type StepOption func(*stepConfig)

type stepConfig struct {
	outputs []string
	keep    bool
	pos     int
	label   string
	args    map[string]interface{}
}

// WithOutput stores the step result under name.  With several names
// a list result is spread over them element by element.
func WithOutput(names ...string) StepOption {
	return func(c *stepConfig) { c.outputs = append(c.outputs, names...) }
}

// WithKeepHistory controls whether every slot written by the step is
// promoted into its chain.  It defaults to true.
func WithKeepHistory(keep bool) StepOption {
	return func(c *stepConfig) { c.keep = keep }
}

// WithPosition overwrites the chain entry at pos instead of appending.
func WithPosition(pos int) StepOption {
	return func(c *stepConfig) { c.pos = pos }
}

// WithLabel names the step; the callable's name is used otherwise.
func WithLabel(label string) StepOption {
	return func(c *stepConfig) { c.label = label }
}

// WithArgs supplies argument values ahead of slot lookup.
func WithArgs(args map[string]interface{}) StepOption {
	return func(c *stepConfig) { c.args = args }
}

// RunStep runs target as a named step.  target is a source.Callable,
// the name of a slot holding one, or a source.Import.  The step runs
// in its own scope; afterwards the slots it wrote become new versions
// in their chains.
func (s *Store) RunStep(target interface{}, opts ...StepOption) (out interface{}, err error) {
	cfg := stepConfig{keep: true, pos: -1}
	for _, opt := range opts {
		opt(&cfg)
	}
	fn, err := s.callable(target)
	if err != nil {
		return
	}
	label := cfg.label
	if label == "" {
		label = fn.CallableName()
	}
	err = steps.ValidLabel(label)
	if err != nil {
		return
	}

	f := s.Enter(label)
	out, err = s.invoke(fn, cfg.args)
	var outputs []string
	if err == nil && out != nil {
		outputs, err = s.storeOutputs(cfg.outputs, out)
	}
	xerr := s.Exit()
	if err != nil {
		return nil, errors.Wrapf(err, "step %s", label)
	}
	if xerr != nil {
		return nil, xerr
	}

	promote := outputs
	if cfg.keep {
		promote = f.Stored()
	}
	for _, name := range promote {
		err = s.Promote(name, label, cfg.pos)
		if errors.Is(err, steps.ErrNothingToPromote) {
			log.Warnf("step %s: %s has nothing on disk to promote", label, name)
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	return
}

func (s *Store) storeOutputs(names []string, out interface{}) (stored []string, err error) {
	switch len(names) {
	case 0:
		return
	case 1:
		_, err = s.Store(names[0], out)
		if err != nil {
			return
		}
		return names, nil
	}
	list, ok := out.([]interface{})
	if !ok || len(list) != len(names) {
		log.Warnf("step returned %T, cannot spread over outputs %v", out, names)
		return
	}
	for i, name := range names {
		_, err = s.Store(name, list[i])
		if err != nil {
			return
		}
		stored = append(stored, name)
	}
	return
}

func (s *Store) callable(target interface{}) (fn source.Callable, err error) {
	switch t := target.(type) {
	case source.Callable:
		return t, nil
	case string:
		v, err := s.Load(t)
		if err != nil {
			return nil, err
		}
		fn, ok := v.(source.Callable)
		if !ok {
			return nil, errors.Errorf("slot %s holds a %T, not a callable", t, v)
		}
		return fn, nil
	case source.Import:
		// imported files are plain text, whatever the store's file layer
		return t.Load(os.ReadFile, s.env())
	}
	return nil, errors.Errorf("cannot run a %T as a step", target)
}

// chain returns the Steps path of name, preferring an existing
// prefixed chain.
func (s *Store) chain(name string) *layout.Path {
	if path := s.find(s.dir, s.prefix, name, layout.Steps); path != nil {
		return path
	}
	return layout.Path{}.New(s.dir, s.prefix, name, layout.Steps)
}

// Promote moves the current representation of name into its chain as
// version label.  pos < 0 appends.
func (s *Store) Promote(name, label string, pos int) (err error) {
	err = layout.Valid(name)
	if err != nil {
		return
	}
	path := layout.Path{}.New(s.dir, s.prefix, name, layout.Steps)
	return s.chains.Promote(path, label, pos)
}

// Steps lists the version labels of name, oldest first.
func (s *Store) Steps(name string) ([]string, error) {
	return s.chains.Steps(s.chain(name))
}

// LoadStep returns version label of name.
func (s *Store) LoadStep(name, label string) (v interface{}, err error) {
	v, found, err := s.chains.Step(s.chain(name), label)
	if err != nil {
		return
	}
	if !found {
		return nil, &NotFoundError{Name: layout.StepBase(name, label), Dir: s.dir}
	}
	return
}

// LoadStepOffset returns the version n steps before the latest.
func (s *Store) LoadStepOffset(name string, n int) (v interface{}, err error) {
	v, found, err := s.chains.Offset(s.chain(name), n)
	if err != nil {
		return
	}
	if !found {
		return nil, &NotFoundError{Name: name, Dir: s.dir}
	}
	return
}
