package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack is the default codec: compact, fast, and able to carry
// arbitrary values. The zero value is ready to use.
//
// Be mindful of struct tag differences vs JSON. Use `msgpack:"fieldName"`
// tags if you need explicit control.
type Msgpack struct{}

func (Msgpack) Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (Msgpack) Decode(b []byte) (any, error) {
	var v any
	err := msgpack.Unmarshal(b, &v)
	return v, err
}
