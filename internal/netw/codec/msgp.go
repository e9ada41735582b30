package codec

import (
	"fmt"

	"github.com/Allen1211/msgp/msgp"

	"github.com/allen1211/bitpres/pkg/common/utils"
)

type MsgpCodec struct {
}

func (c *MsgpCodec) Decode(data []byte, i interface{}) error {
	d, ok := i.(msgp.Decodable)
	if !ok {
		return fmt.Errorf("%T is not decodable", i)
	}
	return utils.MsgpDecode(data, d)
}

func (c *MsgpCodec) Encode(i interface{}) ([]byte, error) {
	e, ok := i.(msgp.Encodable)
	if !ok {
		return nil, fmt.Errorf("%T is not encodable", i)
	}
	return utils.MsgpEncode(e)
}
