package codec

import "fmt"

// Bytes is an identity codec for []byte values. Useful when values are
// already serialized by the caller.
type Bytes struct{}

func (Bytes) Encode(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("codec: Bytes expects []byte, got %T", v)
	}
	return b, nil
}

func (Bytes) Decode(b []byte) (any, error) { return b, nil }

// String is a trivial codec for string values. By convention this
// assumes UTF-8 and performs no validation.
type String struct{}

func (String) Encode(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("codec: String expects string, got %T", v)
	}
	return []byte(s), nil
}

func (String) Decode(b []byte) (any, error) { return string(b), nil }
