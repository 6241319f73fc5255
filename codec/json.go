package codec

import (
	"encoding/json"
)

func init() {
	Register("json", func() Codec { return JSON{} })
}

// JSON stores values as JSON text.  Numbers decode as float64.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (c JSON) Unmarshal(data []byte, v interface{}) (err error) {
	err = json.Unmarshal(data, v)
	if err != nil {
		return &FormatError{Codec: c.Name(), Err: err}
	}
	return
}
