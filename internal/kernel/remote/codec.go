package remote

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype of the kernel service.
const CodecName = "cbor"

// Codec encodes kernel messages as deterministic CBOR.
type Codec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ encoding.Codec = (*Codec)(nil)

var defaultCodec = mustCodec()

func mustCodec() *Codec {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("remote: CBOR encoder initialization failed: " + err.Error())
	}
	dec, err := cbor.DecOptions{
		MaxArrayElements: 1 << 16,
	}.DecMode()
	if err != nil {
		panic("remote: CBOR decoder initialization failed: " + err.Error())
	}
	return &Codec{enc: enc, dec: dec}
}

// Marshal encodes v.
func (c *Codec) Marshal(v any) ([]byte, error) {
	data, err := c.enc.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cbor marshal %T: %w", v, err)
	}
	return data, nil
}

// Unmarshal decodes data into v.
func (c *Codec) Unmarshal(data []byte, v any) error {
	if err := c.dec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("cbor unmarshal %T: %w", v, err)
	}
	return nil
}

// Name returns CodecName.
func (c *Codec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(defaultCodec)
}
