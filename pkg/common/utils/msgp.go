package utils

import (
	"bytes"

	"github.com/Allen1211/msgp/msgp"
)

func MsgpEncode(e msgp.Encodable) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := msgp.Encode(buf, e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func MsgpDecode(data []byte, d msgp.Decodable) error {
	return msgp.Decode(bytes.NewReader(data), d)
}
