package codec

import (
	"gopkg.in/yaml.v3"
)

func init() {
	Register("yaml", func() Codec { return YAML{} })
}

// YAML stores values as YAML documents.
type YAML struct{}

func (YAML) Name() string { return "yaml" }

func (YAML) Marshal(v interface{}) (buf []byte, err error) {
	defer func() {
		// yaml.v3 panics on some unsupported kinds such as funcs
		if r := recover(); r != nil {
			err = &unsupportedError{v: r}
		}
	}()
	return yaml.Marshal(v)
}

func (c YAML) Unmarshal(data []byte, v interface{}) (err error) {
	err = yaml.Unmarshal(data, v)
	if err != nil {
		return &FormatError{Codec: c.Name(), Err: err}
	}
	return
}

type unsupportedError struct {
	v interface{}
}

func (e *unsupportedError) Error() string {
	return "yaml: cannot marshal: " + toString(e.v)
}

func toString(v interface{}) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "unsupported value"
}
