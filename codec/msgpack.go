package codec

import (
	"math"

	"github.com/vmihailenco/msgpack"
)

func init() {
	Register("msgpack", func() Codec { return Msgpack{} })
}

// Msgpack is the default codec.  Dynamically typed results are
// loosened so that integers come back as int64 (uint64 only above
// math.MaxInt64) and maps with string keys as map[string]interface{}.
type Msgpack struct{}

func (Msgpack) Name() string { return "msgpack" }

func (Msgpack) Marshal(v interface{}) (buf []byte, err error) {
	return msgpack.Marshal(v)
}

func (c Msgpack) Unmarshal(data []byte, v interface{}) (err error) {
	err = msgpack.Unmarshal(data, v)
	if err != nil {
		return &FormatError{Codec: c.Name(), Err: err}
	}
	if p, ok := v.(*interface{}); ok {
		*p = loosen(*p)
	}
	return
}

func loosen(v interface{}) interface{} {
	switch v := v.(type) {
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint:
		return loosen(uint64(v))
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v)
		}
		return v
	case float32:
		return float64(v)
	case []interface{}:
		for i := range v {
			v[i] = loosen(v[i])
		}
		return v
	case map[string]interface{}:
		for k, e := range v {
			v[k] = loosen(e)
		}
		return v
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, e := range v {
			ks, ok := k.(string)
			if !ok {
				// not representable with string keys; keep as is
				for k2, e2 := range v {
					v[k2] = loosen(e2)
				}
				return v
			}
			out[ks] = loosen(e)
		}
		return out
	}
	return v
}
