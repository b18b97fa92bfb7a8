// Package codec holds the serializers regions store values with. A
// region inherits its parent's codec unless one is set at creation.
package codec

// Codec encodes/decodes arbitrary region values to []byte for storage.
// Decode of bytes produced by Encode must yield an equal value, though
// not necessarily the identical Go type (e.g. numeric widening).
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(b []byte) (any, error)
}
