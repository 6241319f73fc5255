// Package codec turns in-memory values into bytes and back.
package codec

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Codec serializes values for the Value representation.
type Codec interface {
	Name() string
	Marshal(v interface{}) ([]byte, error)
	// Unmarshal decodes data into the value pointed to by v.
	Unmarshal(data []byte, v interface{}) error
}

// Default is the codec used when neither the caller nor the session
// config names one.
const Default = "msgpack"

// ErrFormat matches every FormatError.
var ErrFormat = errors.New("undecodable data")

// FormatError is returned when bytes cannot be decoded by a codec.
type FormatError struct {
	Codec string
	Err   error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: cannot decode: %v", e.Codec, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

var (
	mu       sync.RWMutex
	registry = map[string]func() Codec{}
)

// Register makes a codec available by name.  It panics on a duplicate
// name.
func Register(name string, factory func() Codec) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := registry[name]; ok {
		panic(fmt.Sprintf("codec %q registered twice", name))
	}
	registry[name] = factory
}

// Get returns a fresh codec registered under name.
func Get(name string) (c Codec, err error) {
	if name == "" {
		name = Default
	}
	mu.RLock()
	factory, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown codec: %q (have %v)", name, Names())
	}
	return factory(), nil
}

// Names lists registered codecs in sorted order.
func Names() (names []string) {
	mu.RLock()
	defer mu.RUnlock()
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

// Decode decodes data into a dynamically typed value.
func Decode(c Codec, data []byte) (v interface{}, err error) {
	err = c.Unmarshal(data, &v)
	if err != nil {
		return nil, err
	}
	return
}
