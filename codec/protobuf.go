package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// Protobuf serializes proto.Message values. All values stored through it
// must be of the single concrete message type produced by the
// constructor (e.g. func() proto.Message { return &mypb.User{} }).
type Protobuf struct {
	new func() proto.Message
}

func NewProtobuf(ctor func() proto.Message) Protobuf {
	return Protobuf{new: ctor}
}

func (c Protobuf) Encode(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("codec: Protobuf expects proto.Message, got %T", v)
	}
	return proto.Marshal(m)
}

func (c Protobuf) Decode(b []byte) (any, error) {
	m := c.new()
	err := proto.Unmarshal(b, m)
	return m, err
}
