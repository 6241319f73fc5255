package slotbase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/t7a/slotbase/layout"
)

// sentinels matched by the typed errors below
var (
	ErrNotFound       = errors.New("slot not found")
	ErrForbidden      = errors.New("representation forbidden")
	ErrCycle          = errors.New("reference cycle")
	ErrUnserializable = errors.New("value cannot be serialized")
)

// NotFoundError means no representation of a slot exists.  Err is set
// when a representation existed but could not be decoded.
type NotFoundError struct {
	Name string
	Dir  string
	Err  error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("slot not found: %s in %s: %v", e.Name, e.Dir, e.Err)
	}
	return fmt.Sprintf("slot not found: %s in %s", e.Name, e.Dir)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func (e *NotFoundError) Unwrap() error { return e.Err }

// ForbiddenError is returned when a disabled representation kind
// would be read or written.
type ForbiddenError struct {
	Name string
	Kind layout.Kind
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("%s representation is disabled: %s", e.Kind, e.Name)
}

func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }

// CycleError is returned when following references revisits a slot.
type CycleError struct {
	Target  string
	Visited []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("reference cycle at %s (visited %s)", e.Target, strings.Join(e.Visited, ", "))
}

func (e *CycleError) Is(target error) bool { return target == ErrCycle }

// UnserializableError wraps a codec failure while storing.
type UnserializableError struct {
	Name string
	Err  error
}

func (e *UnserializableError) Error() string {
	return fmt.Sprintf("cannot serialize %s: %v", e.Name, e.Err)
}

func (e *UnserializableError) Is(target error) bool { return target == ErrUnserializable }

func (e *UnserializableError) Unwrap() error { return e.Err }

// BatchError collects per-slot failures of a batch operation.  The
// batch itself ran to completion.
type BatchError struct {
	Failures map[string]error
}

func (e *BatchError) Error() string {
	var names []string
	for name := range e.Failures {
		names = append(names, name)
	}
	sort.Strings(names)
	var parts []string
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Failures[name]))
	}
	return fmt.Sprintf("%d slots failed: %s", len(names), strings.Join(parts, "; "))
}

func (e *BatchError) add(name string, err error) {
	if e.Failures == nil {
		e.Failures = map[string]error{}
	}
	e.Failures[name] = err
}

// orNil returns e only if something failed.
func (e *BatchError) orNil() error {
	if len(e.Failures) == 0 {
		return nil
	}
	return e
}

func sortedKeys(set map[string]bool) (keys []string) {
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return
}
